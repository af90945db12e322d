package services

import (
	"context"
	"strings"

	"portfolio-host-service/internal/clients"
)

const dnsHostnamePrefix = "dns:"

// DNSEdgeProvider stands in for the edge provider when none is configured.
// A hostname counts as verified once its routing records point at the platform.
type DNSEdgeProvider struct {
	validator *DomainValidator
}

// NewDNSEdgeProvider creates a DNS-only edge provider
func NewDNSEdgeProvider(validator *DomainValidator) *DNSEdgeProvider {
	return &DNSEdgeProvider{validator: validator}
}

func (p *DNSEdgeProvider) RegisterHostname(ctx context.Context, domain string) (*clients.CustomHostname, error) {
	return &clients.CustomHostname{
		ID:       dnsHostnamePrefix + domain,
		Hostname: domain,
		Status:   "pending",
	}, nil
}

func (p *DNSEdgeProvider) GetHostname(ctx context.Context, hostnameID string) (*clients.CustomHostname, error) {
	if !strings.HasPrefix(hostnameID, dnsHostnamePrefix) {
		return nil, clients.ErrHostnameNotFound
	}
	return p.GetHostnameByName(ctx, strings.TrimPrefix(hostnameID, dnsHostnamePrefix))
}

func (p *DNSEdgeProvider) GetHostnameByName(ctx context.Context, domain string) (*clients.CustomHostname, error) {
	hostname := &clients.CustomHostname{
		ID:       dnsHostnamePrefix + domain,
		Hostname: domain,
		Status:   "pending",
	}

	configured, message := p.validator.IsRoutingConfigured(ctx, domain, p.validator.DetectDomainType(domain))
	if configured {
		hostname.Status = "active"
	} else {
		hostname.VerificationErrors = []string{message}
	}
	return hostname, nil
}

func (p *DNSEdgeProvider) DeleteHostname(ctx context.Context, hostnameID string) error {
	return nil
}
