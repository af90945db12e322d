package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const applyTimeout = 5 * time.Second

// RemoteInvalidator drops keys announced by another replica
type RemoteInvalidator interface {
	ApplyRemote(ctx context.Context, keys []string) error
}

// coreConn is the subset of *nats.Conn used for core pub/sub
type coreConn interface {
	Publish(subject string, data []byte) error
	Subscribe(subject string, cb nats.MsgHandler) (*nats.Subscription, error)
}

type invalidationMessage struct {
	Origin string   `json:"origin"`
	Keys   []string `json:"keys"`
	SentAt string   `json:"sent_at"`
}

// InvalidationBus fans cache invalidations out to every replica over a
// core NATS subject. Each replica ignores its own announcements.
type InvalidationBus struct {
	conn    coreConn
	subject string
	origin  string
	sub     *nats.Subscription
}

// NewInvalidationBus creates a bus on subject
func NewInvalidationBus(conn *nats.Conn, subject string) *InvalidationBus {
	return newInvalidationBus(conn, subject)
}

func newInvalidationBus(conn coreConn, subject string) *InvalidationBus {
	return &InvalidationBus{
		conn:    conn,
		subject: subject,
		origin:  uuid.NewString(),
	}
}

// Broadcast announces keys to the other replicas
func (b *InvalidationBus) Broadcast(ctx context.Context, keys []string) error {
	data, err := json.Marshal(invalidationMessage{
		Origin: b.origin,
		Keys:   keys,
		SentAt: time.Now().UTC().Format(time.RFC3339Nano),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal invalidation: %w", err)
	}
	if err := b.conn.Publish(b.subject, data); err != nil {
		return fmt.Errorf("failed to publish invalidation: %w", err)
	}
	return nil
}

// Listen applies invalidations from other replicas until Stop is called
func (b *InvalidationBus) Listen(target RemoteInvalidator) error {
	sub, err := b.conn.Subscribe(b.subject, func(msg *nats.Msg) {
		b.handle(target, msg)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.subject, err)
	}
	b.sub = sub
	log.Info().Str("subject", b.subject).Msg("Listening for cache invalidations")
	return nil
}

func (b *InvalidationBus) handle(target RemoteInvalidator, msg *nats.Msg) {
	var m invalidationMessage
	if err := json.Unmarshal(msg.Data, &m); err != nil {
		log.Warn().Err(err).Msg("Dropping malformed invalidation message")
		return
	}
	if m.Origin == b.origin || len(m.Keys) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := target.ApplyRemote(ctx, m.Keys); err != nil {
		log.Error().Err(err).Strs("keys", m.Keys).Msg("Failed to apply remote invalidation")
	}
}

// Stop unsubscribes from the invalidation subject
func (b *InvalidationBus) Stop() {
	if b.sub == nil {
		return
	}
	if err := b.sub.Unsubscribe(); err != nil {
		log.Warn().Err(err).Msg("Failed to unsubscribe from invalidations")
	}
}
