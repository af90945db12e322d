package workers

import (
	"context"
	"time"

	"portfolio-host-service/internal/config"

	"github.com/rs/zerolog/log"
)

const expiryBatchSize = 200

// ExpiryWorker drops cached pages for tenants whose paid period has ended
// since the previous sweep
type ExpiryWorker struct {
	cfg       *config.Config
	sweeper   ExpirySweeper
	lastSweep time.Time
	now       func() time.Time
	stopCh    chan struct{}
}

// NewExpiryWorker creates a new expiry worker. The first sweep looks back one
// interval.
func NewExpiryWorker(cfg *config.Config, sweeper ExpirySweeper) *ExpiryWorker {
	return &ExpiryWorker{
		cfg:       cfg,
		sweeper:   sweeper,
		lastSweep: time.Now().Add(-cfg.Workers.ExpiryInterval),
		now:       time.Now,
		stopCh:    make(chan struct{}),
	}
}

// Start starts the expiry worker
func (w *ExpiryWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.cfg.Workers.ExpiryInterval).Msg("Starting expiry worker")

	ticker := time.NewTicker(w.cfg.Workers.ExpiryInterval)
	defer ticker.Stop()

	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Expiry worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("Expiry worker stopped")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// Stop stops the worker
func (w *ExpiryWorker) Stop() {
	close(w.stopCh)
}

func (w *ExpiryWorker) run(ctx context.Context) {
	to := w.now()
	swept, err := w.sweeper.SweepExpired(ctx, w.lastSweep, to, expiryBatchSize)
	if err != nil {
		// the window is retried on the next tick
		log.Error().Err(err).Int("swept", swept).Msg("Failed to sweep expired entitlements")
		return
	}

	w.lastSweep = to
	if swept > 0 {
		log.Info().Int("tenants", swept).Msg("Invalidated tenants with lapsed entitlement")
	}
}
