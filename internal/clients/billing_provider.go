package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"

	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

var (
	ErrBillingUnavailable = errors.New("billing provider unavailable")
	ErrCustomerNotFound   = errors.New("billing customer not found")
	ErrInvalidSignature   = errors.New("invalid webhook signature")
	ErrIgnoredEvent       = errors.New("billing event type not handled")
)

// SubscriptionSnapshot is the provider's current view of a customer's subscription
type SubscriptionSnapshot struct {
	CustomerRef      string
	Status           models.SubscriptionStatus
	ProductRef       string
	CurrentPeriodEnd *time.Time
}

// StripeBillingClient reads subscription state from Stripe and verifies its webhooks
type StripeBillingClient struct {
	api           *client.API
	webhookSecret string
	proProduct    string
	metrics       *metrics.Metrics
}

// NewStripeBillingClient creates a Stripe client bounded by cfg.Timeout
func NewStripeBillingClient(cfg config.BillingConfig, m *metrics.Metrics) *StripeBillingClient {
	return newStripeBillingClient(cfg, m, &stripe.BackendConfig{})
}

func newStripeBillingClient(cfg config.BillingConfig, m *metrics.Metrics, backendCfg *stripe.BackendConfig) *StripeBillingClient {
	backendCfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	backendCfg.MaxNetworkRetries = stripe.Int64(1)
	backendCfg.LeveledLogger = &stripe.LeveledLogger{Level: stripe.LevelError}

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)
	api := client.New(cfg.SecretKey, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})

	return &StripeBillingClient{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		proProduct:    cfg.ProProductRef,
		metrics:       m,
	}
}

// GetSubscription returns the customer's most relevant subscription.
// A customer without subscriptions yields status none.
func (c *StripeBillingClient) GetSubscription(ctx context.Context, customerRef string) (*SubscriptionSnapshot, error) {
	start := time.Now()

	params := &stripe.SubscriptionListParams{
		Customer: stripe.String(customerRef),
		Status:   stripe.String("all"),
	}
	params.Context = ctx
	params.Limit = stripe.Int64(10)

	var best *SubscriptionSnapshot
	iter := c.api.Subscriptions.List(params)
	for iter.Next() {
		snap := SnapshotFromSubscription(iter.Subscription())
		if c.proProduct != "" && snap.ProductRef != c.proProduct {
			continue
		}
		if best == nil || betterSnapshot(snap, best) {
			best = snap
		}
	}
	err := iter.Err()
	c.metrics.ProviderCall("billing", "list_subscriptions", time.Since(start).Seconds(), err)

	if err != nil {
		return nil, classifyStripeError(err)
	}
	if best == nil {
		return &SubscriptionSnapshot{CustomerRef: customerRef, Status: models.SubscriptionStatusNone}, nil
	}
	return best, nil
}

// FindCustomerByEmail returns the newest customer with this email
func (c *StripeBillingClient) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	start := time.Now()

	params := &stripe.CustomerListParams{Email: stripe.String(email)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	var customerRef string
	iter := c.api.Customers.List(params)
	if iter.Next() {
		customerRef = iter.Customer().ID
	}
	err := iter.Err()
	c.metrics.ProviderCall("billing", "find_customer", time.Since(start).Seconds(), err)

	if err != nil {
		return "", classifyStripeError(err)
	}
	if customerRef == "" {
		return "", ErrCustomerNotFound
	}
	return customerRef, nil
}

// GetCustomerEmail returns the email stored on a billing customer
func (c *StripeBillingClient) GetCustomerEmail(ctx context.Context, customerRef string) (string, error) {
	start := time.Now()

	params := &stripe.CustomerParams{}
	params.Context = ctx

	cust, err := c.api.Customers.Get(customerRef, params)
	c.metrics.ProviderCall("billing", "get_customer", time.Since(start).Seconds(), err)

	if err != nil {
		return "", classifyStripeError(err)
	}
	return cust.Email, nil
}

// ParseWebhook verifies the signature and converts the payload into a BillingEvent.
// Events this service does not act on return ErrIgnoredEvent.
func (c *StripeBillingClient) ParseWebhook(payload []byte, signature string) (*models.BillingEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return BillingEventFromStripe(&event)
}

// BillingEventFromStripe converts a verified Stripe event
func BillingEventFromStripe(event *stripe.Event) (*models.BillingEvent, error) {
	be := &models.BillingEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		OccurredAt: time.Unix(event.Created, 0).UTC(),
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted",
		"customer.subscription.paused", "customer.subscription.resumed":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("failed to parse subscription: %w", err)
		}
		snap := SnapshotFromSubscription(&sub)
		be.CustomerRef = snap.CustomerRef
		be.Status = snap.Status
		be.ProductRef = snap.ProductRef
		be.CurrentPeriodEnd = snap.CurrentPeriodEnd

	case "checkout.session.completed":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("failed to parse checkout session: %w", err)
		}
		if session.Customer != nil {
			be.CustomerRef = session.Customer.ID
		}
		be.CustomerEmail = session.CustomerEmail
		if session.CustomerDetails != nil && session.CustomerDetails.Email != "" {
			be.CustomerEmail = session.CustomerDetails.Email
		}

	default:
		return nil, ErrIgnoredEvent
	}

	if be.CustomerRef == "" {
		return nil, fmt.Errorf("billing event %s has no customer", event.ID)
	}
	return be, nil
}

// SnapshotFromSubscription maps a Stripe subscription onto the local status enum
func SnapshotFromSubscription(sub *stripe.Subscription) *SubscriptionSnapshot {
	snap := &SubscriptionSnapshot{Status: MapSubscriptionStatus(sub.Status)}
	if sub.Customer != nil {
		snap.CustomerRef = sub.Customer.ID
	}
	if sub.CurrentPeriodEnd > 0 {
		end := time.Unix(sub.CurrentPeriodEnd, 0).UTC()
		snap.CurrentPeriodEnd = &end
	}
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.Price != nil && item.Price.Product != nil {
				snap.ProductRef = item.Price.Product.ID
				break
			}
		}
	}
	return snap
}

// MapSubscriptionStatus maps Stripe statuses onto the local status enum
func MapSubscriptionStatus(status stripe.SubscriptionStatus) models.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.SubscriptionStatusActive
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusUnpaid:
		return models.SubscriptionStatusPastDue
	case stripe.SubscriptionStatusCanceled:
		return models.SubscriptionStatusCancelled
	default:
		return models.SubscriptionStatusInactive
	}
}

// betterSnapshot prefers active subscriptions, then the later period end
func betterSnapshot(a, b *SubscriptionSnapshot) bool {
	aActive := a.Status == models.SubscriptionStatusActive
	bActive := b.Status == models.SubscriptionStatusActive
	if aActive != bActive {
		return aActive
	}
	if a.CurrentPeriodEnd == nil {
		return false
	}
	return b.CurrentPeriodEnd == nil || a.CurrentPeriodEnd.After(*b.CurrentPeriodEnd)
}

// classifyStripeError separates provider outages from request errors
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		if stripeErr.HTTPStatusCode == http.StatusNotFound || stripeErr.Code == stripe.ErrorCodeResourceMissing {
			return ErrCustomerNotFound
		}
		if stripeErr.HTTPStatusCode >= http.StatusInternalServerError || stripeErr.HTTPStatusCode == http.StatusTooManyRequests {
			return fmt.Errorf("%w: %s", ErrBillingUnavailable, stripeErr.Msg)
		}
		log.Warn().Str("type", string(stripeErr.Type)).Int("status", stripeErr.HTTPStatusCode).Msg("Billing provider request failed")
		return fmt.Errorf("billing provider error: %s", stripeErr.Msg)
	}
	return fmt.Errorf("%w: %v", ErrBillingUnavailable, err)
}
