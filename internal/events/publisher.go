package events

import (
	"context"
	"fmt"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"

	sharedevents "github.com/Tesseract-Nexus/go-shared/events"
	"github.com/rs/zerolog/log"
	"github.com/sirupsen/logrus"
)

const publishTimeout = 10 * time.Second

// domainPublisher is the subset of the shared publisher used here
type domainPublisher interface {
	PublishDomain(ctx context.Context, event *sharedevents.DomainEvent) error
}

// BindingPublisher emits domain lifecycle events for custom domain bindings
type BindingPublisher struct {
	publisher     domainPublisher
	shared        *sharedevents.Publisher
	primaryDomain string
	sync          bool
}

// NewBindingPublisher connects the shared NATS publisher and ensures the
// domain events stream exists
func NewBindingPublisher(cfg *config.Config, logger *logrus.Logger) (*BindingPublisher, error) {
	publisherCfg := sharedevents.DefaultPublisherConfig(cfg.NATS.URL)
	publisherCfg.Name = "portfolio-host-service"

	pub, err := sharedevents.NewPublisher(publisherCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create event publisher: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := pub.EnsureStream(ctx, sharedevents.StreamDomains, []string{"domain.>"}); err != nil {
		log.Warn().Err(err).Msg("Failed to ensure domain events stream")
	}

	return &BindingPublisher{
		publisher:     pub,
		shared:        pub,
		primaryDomain: cfg.Platform.PrimaryDomain,
	}, nil
}

// PublishBinding publishes the event in the background
func (p *BindingPublisher) PublishBinding(eventType string, binding *models.DomainBinding, previousStatus models.BindingStatus) {
	if p == nil || p.publisher == nil {
		return
	}

	event := p.toDomainEvent(eventType, binding, previousStatus)
	publish := func() {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := p.publisher.PublishDomain(ctx, event); err != nil {
			log.Error().Err(err).
				Str("event_type", eventType).
				Str("domain", binding.Domain).
				Msg("Failed to publish domain event")
			return
		}
		log.Debug().
			Str("event_type", eventType).
			Str("domain", binding.Domain).
			Str("tenant_id", binding.TenantID.String()).
			Msg("Domain event published")
	}

	if p.sync {
		publish()
		return
	}
	go publish()
}

func (p *BindingPublisher) toDomainEvent(eventType string, binding *models.DomainBinding, previousStatus models.BindingStatus) *sharedevents.DomainEvent {
	event := sharedevents.NewDomainEvent(eventType, binding.TenantID.String())
	event.DomainID = binding.ID.String()
	event.Domain = binding.Domain
	event.DomainType = "custom"
	event.Status = string(binding.Status)
	event.PreviousStatus = string(previousStatus)
	event.StatusMessage = binding.Reason
	event.DNSVerified = binding.Status == models.BindingStatusVerified
	event.TargetType = "portfolio"
	event.DomainURL = "https://" + binding.Domain
	event.AdminURL = "https://" + p.primaryDomain + "/dashboard/domain"
	if binding.VerifiedAt != nil {
		event.DNSVerifiedAt = binding.VerifiedAt.Format(time.RFC3339)
	}
	return event
}

// IsConnected returns true if the shared publisher is connected to NATS
func (p *BindingPublisher) IsConnected() bool {
	return p != nil && p.shared != nil && p.shared.IsConnected()
}

// Close closes the NATS connection
func (p *BindingPublisher) Close() {
	if p != nil && p.shared != nil {
		p.shared.Close()
	}
}
