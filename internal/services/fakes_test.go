package services

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"portfolio-host-service/internal/cache"
	"portfolio-host-service/internal/clients"
	"portfolio-host-service/internal/models"
	"portfolio-host-service/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
)

// fakeTenantStore mirrors the TenantRepository guards in memory
type fakeTenantStore struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*models.Tenant

	lookups     int32
	lookupDelay time.Duration
}

func newFakeTenantStore() *fakeTenantStore {
	return &fakeTenantStore{tenants: make(map[uuid.UUID]*models.Tenant)}
}

func (s *fakeTenantStore) add(tenant *models.Tenant) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	if tenant.ID == uuid.Nil {
		tenant.ID = uuid.New()
	}
	if tenant.SubscriptionStatus == "" {
		tenant.SubscriptionStatus = models.SubscriptionStatusNone
	}
	cp := *tenant
	s.tenants[tenant.ID] = &cp
	return tenant
}

func (s *fakeTenantStore) get(id uuid.UUID) *models.Tenant {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *s.tenants[id]
	return &cp
}

func (s *fakeTenantStore) lookupCount() int {
	return int(atomic.LoadInt32(&s.lookups))
}

func (s *fakeTenantStore) find(match func(*models.Tenant) bool) (*models.Tenant, error) {
	for _, t := range s.tenants {
		if match(t) {
			cp := *t
			return &cp, nil
		}
	}
	return nil, repository.ErrTenantNotFound
}

func (s *fakeTenantStore) Create(ctx context.Context, tenant *models.Tenant) error {
	s.add(tenant)
	return nil
}

func (s *fakeTenantStore) GetByID(ctx context.Context, id uuid.UUID) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t *models.Tenant) bool { return t.ID == id })
}

func (s *fakeTenantStore) GetByUsername(ctx context.Context, username string) (*models.Tenant, error) {
	atomic.AddInt32(&s.lookups, 1)
	time.Sleep(s.lookupDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t *models.Tenant) bool { return t.UsernameValue() == username })
}

func (s *fakeTenantStore) GetByCustomDomain(ctx context.Context, domain string) (*models.Tenant, error) {
	atomic.AddInt32(&s.lookups, 1)
	time.Sleep(s.lookupDelay)
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t *models.Tenant) bool { return t.DomainValue() == domain })
}

func (s *fakeTenantStore) GetByBillingCustomer(ctx context.Context, customerRef string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t *models.Tenant) bool {
		return t.BillingCustomerRef != nil && *t.BillingCustomerRef == customerRef
	})
}

func (s *fakeTenantStore) GetUnlinkedByEmail(ctx context.Context, email string) (*models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.find(func(t *models.Tenant) bool { return t.Email == email && t.BillingCustomerRef == nil })
}

func (s *fakeTenantStore) SetCustomDomain(ctx context.Context, tenantID uuid.UUID, domain string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.tenants {
		if t.ID != tenantID && t.DomainValue() == domain {
			return repository.ErrDomainTaken
		}
	}
	t, ok := s.tenants[tenantID]
	if !ok {
		return repository.ErrTenantNotFound
	}
	t.CustomDomain = &domain
	return nil
}

func (s *fakeTenantStore) ClearCustomDomain(ctx context.Context, tenantID uuid.UUID, expected string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok || t.DomainValue() != expected {
		return repository.ErrDomainNotBound
	}
	t.CustomDomain = nil
	return nil
}

func (s *fakeTenantStore) SetUsername(ctx context.Context, tenantID uuid.UUID, username string, expectedChanges int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tenants[tenantID]
	if !ok || t.UsernameChanges != expectedChanges {
		return repository.ErrUsernameConflict
	}
	for _, other := range s.tenants {
		if other.ID != tenantID && other.UsernameValue() == username {
			return repository.ErrUsernameTaken
		}
	}
	t.Username = &username
	t.UsernameChanges++
	return nil
}

func (s *fakeTenantStore) LinkBillingCustomer(ctx context.Context, tenantID uuid.UUID, customerRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, other := range s.tenants {
		if other.ID != tenantID && other.BillingCustomerRef != nil && *other.BillingCustomerRef == customerRef {
			return repository.ErrBillingCustomerInUse
		}
	}
	t := s.tenants[tenantID]
	if t.BillingCustomerRef != nil && *t.BillingCustomerRef != customerRef {
		return repository.ErrCustomerAlreadyLinked
	}
	t.BillingCustomerRef = &customerRef
	return nil
}

func (s *fakeTenantStore) UpdateSubscription(ctx context.Context, tenantID uuid.UUID, state models.SubscriptionState) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := s.tenants[tenantID]
	if t.SubscriptionSyncedAt != nil && t.SubscriptionSyncedAt.After(state.ObservedAt) {
		return false, nil
	}
	observed := state.ObservedAt
	t.SubscriptionStatus = state.Status
	t.ProductRef = state.ProductRef
	t.CurrentPeriodEnd = state.CurrentPeriodEnd
	t.SubscriptionSyncedAt = &observed
	return true, nil
}

func (s *fakeTenantStore) ListEntitlementsEndedBetween(ctx context.Context, from, to time.Time, limit int) ([]models.Tenant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Tenant
	for _, t := range s.tenants {
		if t.SubscriptionStatus == models.SubscriptionStatusActive && t.CurrentPeriodEnd != nil &&
			t.CurrentPeriodEnd.After(from) && !t.CurrentPeriodEnd.After(to) {
			out = append(out, *t)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeTenantStore) Delete(ctx context.Context, tenantID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tenants[tenantID]; !ok {
		return repository.ErrTenantNotFound
	}
	delete(s.tenants, tenantID)
	return nil
}

// fakeBindingStore mirrors the BindingRepository guards, including the
// one-in-flight-per-tenant unique index
type fakeBindingStore struct {
	mu         sync.Mutex
	bindings   []*models.DomainBinding
	activities []models.DomainActivity
}

func newFakeBindingStore() *fakeBindingStore {
	return &fakeBindingStore{}
}

func (s *fakeBindingStore) statuses(tenantID uuid.UUID) []models.BindingStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.BindingStatus
	for _, b := range s.bindings {
		if b.TenantID == tenantID {
			out = append(out, b.Status)
		}
	}
	return out
}

func (s *fakeBindingStore) latest(match func(*models.DomainBinding) bool) (*models.DomainBinding, error) {
	// newest first so ties on RequestedAt favor the last insert
	var found []*models.DomainBinding
	for i := len(s.bindings) - 1; i >= 0; i-- {
		if match(s.bindings[i]) {
			found = append(found, s.bindings[i])
		}
	}
	if len(found) == 0 {
		return nil, repository.ErrBindingNotFound
	}
	sort.SliceStable(found, func(i, j int) bool { return found[i].RequestedAt.After(found[j].RequestedAt) })
	cp := *found[0]
	return &cp, nil
}

func (s *fakeBindingStore) Create(ctx context.Context, binding *models.DomainBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.TenantID == binding.TenantID && b.Status.InFlight() {
			return repository.ErrBindingInFlight
		}
	}
	if binding.ID == uuid.Nil {
		binding.ID = uuid.New()
	}
	cp := *binding
	s.bindings = append(s.bindings, &cp)
	return nil
}

func (s *fakeBindingStore) GetByID(ctx context.Context, id uuid.UUID) (*models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(b *models.DomainBinding) bool { return b.ID == id })
}

func (s *fakeBindingStore) GetInFlightByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(b *models.DomainBinding) bool { return b.TenantID == tenantID && b.Status.InFlight() })
}

func (s *fakeBindingStore) GetPendingByDomain(ctx context.Context, domain string) (*models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(b *models.DomainBinding) bool {
		return b.Domain == domain && b.Status == models.BindingStatusPendingVerification
	})
}

func (s *fakeBindingStore) GetLatestByTenant(ctx context.Context, tenantID uuid.UUID) (*models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.latest(func(b *models.DomainBinding) bool { return b.TenantID == tenantID })
}

func (s *fakeBindingStore) Transition(ctx context.Context, id uuid.UUID, from, to models.BindingStatus, fields map[string]interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.ID != id {
			continue
		}
		if b.Status != from {
			return repository.ErrStaleTransition
		}
		b.Status = to
		for k, v := range fields {
			switch k {
			case "reason":
				b.Reason = v.(string)
			case "provider_ref":
				b.ProviderRef = v.(string)
			case "verification_records":
				b.VerificationRecords = v.([]models.DNSRecord)
			case "verified_at":
				at := v.(time.Time)
				b.VerifiedAt = &at
			}
		}
		return nil
	}
	return repository.ErrStaleTransition
}

func (s *fakeBindingStore) RecordCheck(ctx context.Context, id uuid.UUID, checkedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bindings {
		if b.ID == id {
			b.LastCheckedAt = &checkedAt
			b.CheckAttempts++
		}
	}
	return nil
}

func (s *fakeBindingStore) ListPendingVerification(ctx context.Context, limit int) ([]models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DomainBinding
	for _, b := range s.bindings {
		if b.Status == models.BindingStatusPendingVerification && len(out) < limit {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeBindingStore) ListStaleInFlight(ctx context.Context, requestedBefore time.Time, limit int) ([]models.DomainBinding, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DomainBinding
	for _, b := range s.bindings {
		if b.Status.InFlight() && b.RequestedAt.Before(requestedBefore) && len(out) < limit {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeBindingStore) LogActivity(ctx context.Context, activity *models.DomainActivity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activities = append(s.activities, *activity)
	return nil
}

func (s *fakeBindingStore) GetActivities(ctx context.Context, tenantID uuid.UUID, limit int) ([]models.DomainActivity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.DomainActivity
	for i := len(s.activities) - 1; i >= 0 && len(out) < limit; i-- {
		if s.activities[i].TenantID == tenantID {
			out = append(out, s.activities[i])
		}
	}
	return out, nil
}

type fakeBillingEventStore struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func newFakeBillingEventStore() *fakeBillingEventStore {
	return &fakeBillingEventStore{claimed: make(map[string]bool)}
}

func (s *fakeBillingEventStore) Claim(ctx context.Context, event *models.ProcessedBillingEvent) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.claimed[event.EventID] {
		return false, nil
	}
	s.claimed[event.EventID] = true
	return true, nil
}

func (s *fakeBillingEventStore) Release(ctx context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.claimed, eventID)
	return nil
}

// MockEdgeProvider is a mock implementation of EdgeProvider
type MockEdgeProvider struct {
	mock.Mock
}

func (m *MockEdgeProvider) RegisterHostname(ctx context.Context, domain string) (*clients.CustomHostname, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.CustomHostname), args.Error(1)
}

func (m *MockEdgeProvider) GetHostname(ctx context.Context, hostnameID string) (*clients.CustomHostname, error) {
	args := m.Called(ctx, hostnameID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.CustomHostname), args.Error(1)
}

func (m *MockEdgeProvider) GetHostnameByName(ctx context.Context, domain string) (*clients.CustomHostname, error) {
	args := m.Called(ctx, domain)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.CustomHostname), args.Error(1)
}

func (m *MockEdgeProvider) DeleteHostname(ctx context.Context, hostnameID string) error {
	args := m.Called(ctx, hostnameID)
	return args.Error(0)
}

// MockBillingProvider is a mock implementation of BillingProvider
type MockBillingProvider struct {
	mock.Mock
}

func (m *MockBillingProvider) GetSubscription(ctx context.Context, customerRef string) (*clients.SubscriptionSnapshot, error) {
	args := m.Called(ctx, customerRef)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*clients.SubscriptionSnapshot), args.Error(1)
}

func (m *MockBillingProvider) FindCustomerByEmail(ctx context.Context, email string) (string, error) {
	args := m.Called(ctx, email)
	return args.String(0), args.Error(1)
}

func (m *MockBillingProvider) GetCustomerEmail(ctx context.Context, customerRef string) (string, error) {
	args := m.Called(ctx, customerRef)
	return args.String(0), args.Error(1)
}

// MockPagePurger is a mock implementation of PagePurger
type MockPagePurger struct {
	mock.Mock
}

func (m *MockPagePurger) Purge(ctx context.Context, tags []string) error {
	args := m.Called(ctx, tags)
	return args.Error(0)
}

type publishedEvent struct {
	eventType string
	domain    string
	status    models.BindingStatus
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

func (p *recordingPublisher) PublishBinding(eventType string, binding *models.DomainBinding, previous models.BindingStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{eventType: eventType, domain: binding.Domain, status: binding.Status})
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.eventType)
	}
	return out
}

var errCacheDown = errors.New("cache down")

// failingCache errors on every call
type failingCache struct{}

func (failingCache) Get(ctx context.Context, key string) (*models.ResolvedHost, error) {
	return nil, errCacheDown
}

func (failingCache) Set(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration) error {
	return errCacheDown
}

func (failingCache) Delete(ctx context.Context, keys ...string) error {
	return errCacheDown
}

func (failingCache) Generation(ctx context.Context, key string) (int64, error) {
	return 0, errCacheDown
}

func (failingCache) SetIfGeneration(ctx context.Context, key string, entry *models.ResolvedHost, ttl time.Duration, gen int64) (bool, error) {
	return false, errCacheDown
}

var _ cache.HostCache = failingCache{}

// clock is a settable time source
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock(t time.Time) *clock {
	return &clock{now: t}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
