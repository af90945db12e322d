package workers

import (
	"context"
	"time"

	"portfolio-host-service/internal/models"
)

// BindingChecker polls pending domain bindings
type BindingChecker interface {
	PendingBindings(ctx context.Context, limit int) ([]models.DomainBinding, error)
	CheckBinding(ctx context.Context, binding *models.DomainBinding) (*models.DomainBinding, error)
	AbandonStale(ctx context.Context, olderThan time.Duration, limit int) (int, error)
}

// ActivityPruner deletes old binding activity
type ActivityPruner interface {
	CleanupOldActivities(ctx context.Context, olderThan time.Duration) (int64, error)
}

// BillingEventPruner deletes old processed billing event ids
type BillingEventPruner interface {
	CleanupOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// ExpirySweeper invalidates tenants whose paid period ended in a window
type ExpirySweeper interface {
	SweepExpired(ctx context.Context, from, to time.Time, batch int) (int, error)
}
