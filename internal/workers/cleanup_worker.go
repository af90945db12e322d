package workers

import (
	"context"
	"time"

	"portfolio-host-service/internal/config"

	"github.com/rs/zerolog/log"
)

const abandonBatchSize = 100

// CleanupWorker handles cleanup of old data and abandoned binding attempts
type CleanupWorker struct {
	cfg        *config.Config
	bindings   BindingChecker
	activities ActivityPruner
	events     BillingEventPruner
	stopCh     chan struct{}
}

// NewCleanupWorker creates a new cleanup worker
func NewCleanupWorker(
	cfg *config.Config,
	bindings BindingChecker,
	activities ActivityPruner,
	events BillingEventPruner,
) *CleanupWorker {
	return &CleanupWorker{
		cfg:        cfg,
		bindings:   bindings,
		activities: activities,
		events:     events,
		stopCh:     make(chan struct{}),
	}
}

// Start starts the cleanup worker
func (w *CleanupWorker) Start(ctx context.Context) {
	log.Info().Dur("interval", w.cfg.Workers.CleanupInterval).Msg("Starting cleanup worker")

	ticker := time.NewTicker(w.cfg.Workers.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Cleanup worker stopping (context cancelled)")
			return
		case <-w.stopCh:
			log.Info().Msg("Cleanup worker stopped")
			return
		case <-ticker.C:
			w.run(ctx)
		}
	}
}

// Stop stops the worker
func (w *CleanupWorker) Stop() {
	close(w.stopCh)
}

func (w *CleanupWorker) run(ctx context.Context) {
	log.Debug().Msg("Running cleanup")

	abandoned, err := w.bindings.AbandonStale(ctx, w.cfg.Limits.AbandonBindingAfter, abandonBatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to abandon stale bindings")
	} else if abandoned > 0 {
		log.Info().Int("abandoned", abandoned).Msg("Abandoned stale binding attempts")
	}

	activitiesDeleted, err := w.activities.CleanupOldActivities(ctx, w.cfg.Workers.ActivityRetention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup old activities")
	} else if activitiesDeleted > 0 {
		log.Info().Int64("deleted", activitiesDeleted).Msg("Cleaned up old activities")
	}

	eventsDeleted, err := w.events.CleanupOlderThan(ctx, w.cfg.Workers.EventRetention)
	if err != nil {
		log.Error().Err(err).Msg("Failed to cleanup processed billing events")
	} else if eventsDeleted > 0 {
		log.Info().Int64("deleted", eventsDeleted).Msg("Cleaned up processed billing events")
	}
}
