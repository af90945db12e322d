package workers

import (
	"context"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const verificationBatchSize = 50

// VerificationWorker polls the edge provider for bindings awaiting ownership
// or certificate verification
type VerificationWorker struct {
	cfg      *config.Config
	bindings BindingChecker
	limiter  *rate.Limiter
	stopCh   chan struct{}
}

// NewVerificationWorker creates a new verification worker
func NewVerificationWorker(cfg *config.Config, bindings BindingChecker) *VerificationWorker {
	limit := rate.Inf
	if cfg.Limits.ProviderPollsPerSecond > 0 {
		limit = rate.Limit(cfg.Limits.ProviderPollsPerSecond)
	}
	return &VerificationWorker{
		cfg:      cfg,
		bindings: bindings,
		limiter:  rate.NewLimiter(limit, 1),
		stopCh:   make(chan struct{}),
	}
}

// Start starts the verification worker
func (w *VerificationWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.cfg.Workers.VerificationInterval).Msg("Starting verification worker")

	ticker := time.NewTicker(w.cfg.Workers.VerificationInterval)
	defer ticker.Stop()

	// Run immediately on start
	w.run(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Verification worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("Verification worker stopped")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// Stop stops the worker
func (w *VerificationWorker) Stop() {
	close(w.stopCh)
}

func (w *VerificationWorker) run(ctx context.Context) {
	log.Debug().Msg("Running binding verification check")

	pending, err := w.bindings.PendingBindings(ctx, verificationBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to get bindings pending verification")
		return
	}

	if len(pending) == 0 {
		return
	}

	log.Info().Int("count", len(pending)).Msg("Processing bindings for verification")

	for i := range pending {
		if err := w.limiter.Wait(ctx); err != nil {
			return
		}
		w.check(ctx, &pending[i])
	}
}

// check polls one binding and reports whether its status moved
func (w *VerificationWorker) check(ctx context.Context, binding *models.DomainBinding) bool {
	// CheckBinding may update binding in place
	previous := binding.Status

	updated, err := w.bindings.CheckBinding(ctx, binding)
	if err != nil {
		log.Error().Err(err).Str("domain", binding.Domain).Msg("Binding verification error")
		return false
	}

	if updated.Status == previous {
		return false
	}
	log.Info().
		Str("domain", binding.Domain).
		Str("tenant_id", binding.TenantID.String()).
		Str("from", string(previous)).
		Str("to", string(updated.Status)).
		Msg("Binding status changed")
	return true
}
