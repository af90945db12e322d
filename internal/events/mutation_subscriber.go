package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/services"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	mutationConsumer   = "portfolio-host-mutations"
	mutationQueueGroup = "portfolio-host-workers"
	handleTimeout      = 10 * time.Second
)

// TenantInvalidator drops every cached entry of a tenant
type TenantInvalidator interface {
	Invalidate(ctx context.Context, tenantID uuid.UUID) error
}

// ackable is the subset of *nats.Msg the handler acknowledges through
type ackable interface {
	Ack(opts ...nats.AckOpt) error
	Nak(opts ...nats.AckOpt) error
}

// MutationSubscriber invalidates a tenant's cached pages when the portfolio
// app reports a content change
type MutationSubscriber struct {
	js          nats.JetStreamContext
	cfg         config.NATSConfig
	invalidator TenantInvalidator
	subs        []*nats.Subscription
}

// NewMutationSubscriber creates a subscriber and ensures the mutation stream exists
func NewMutationSubscriber(conn *nats.Conn, cfg config.NATSConfig, invalidator TenantInvalidator) (*MutationSubscriber, error) {
	js, err := conn.JetStream(nats.MaxWait(30 * time.Second))
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	_, err = js.AddStream(&nats.StreamConfig{
		Name:        cfg.MutationStream,
		Description: "Portfolio content mutations",
		Subjects:    []string{cfg.MutationSubject},
		Storage:     nats.FileStorage,
		Retention:   nats.LimitsPolicy,
		MaxAge:      24 * time.Hour,
		Discard:     nats.DiscardOld,
	})
	if err != nil && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
		log.Warn().Err(err).Str("stream", cfg.MutationStream).Msg("Could not create mutation stream, subscribing anyway")
	}

	return &MutationSubscriber{
		js:          js,
		cfg:         cfg,
		invalidator: invalidator,
	}, nil
}

// Start subscribes with a queue group so each event is handled by one replica
func (s *MutationSubscriber) Start() error {
	var sub *nats.Subscription
	var err error
	for i := 0; i < 3; i++ {
		sub, err = s.js.QueueSubscribe(
			s.cfg.MutationSubject,
			mutationQueueGroup,
			func(msg *nats.Msg) { s.handle(msg.Data, msg) },
			nats.Durable(mutationConsumer),
			nats.DeliverNew(),
			nats.ManualAck(),
			nats.AckWait(30*time.Second),
			nats.MaxDeliver(5),
			nats.BindStream(s.cfg.MutationStream),
		)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to subscribe to mutation events, retrying")
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return fmt.Errorf("failed to subscribe to mutation events: %w", err)
	}

	s.subs = append(s.subs, sub)
	log.Info().Str("subject", s.cfg.MutationSubject).Str("queue", mutationQueueGroup).Msg("Subscribed to tenant mutation events")
	return nil
}

func (s *MutationSubscriber) handle(data []byte, msg ackable) {
	var event models.TenantMutationEvent
	if err := json.Unmarshal(data, &event); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed mutation event")
		_ = msg.Ack()
		return
	}

	tenantID, err := uuid.Parse(event.TenantID)
	if err != nil {
		log.Warn().Str("tenant_id", event.TenantID).Msg("Dropping mutation event with invalid tenant id")
		_ = msg.Ack()
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	err = s.invalidator.Invalidate(ctx, tenantID)
	switch {
	case err == nil, errors.Is(err, services.ErrTenantNotFound):
		log.Debug().Str("tenant_id", event.TenantID).Str("event_type", event.EventType).Msg("Tenant invalidated after mutation")
		_ = msg.Ack()
	default:
		log.Error().Err(err).Str("tenant_id", event.TenantID).Msg("Failed to invalidate tenant, will retry")
		_ = msg.Nak()
	}
}

// Stop drains the subscriptions
func (s *MutationSubscriber) Stop() {
	for _, sub := range s.subs {
		if !sub.IsValid() {
			continue
		}
		if err := sub.Drain(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain mutation subscription")
		}
	}
}
