package services

import (
	"context"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"

	"github.com/rs/zerolog/log"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{3,20}$`)

// Common two-part public suffixes treated as a single TLD
var twoPartTLDs = map[string]bool{
	"co.uk": true, "com.au": true, "co.in": true, "co.nz": true,
	"com.br": true, "com.mx": true, "co.za": true, "com.sg": true,
	"org.uk": true, "net.au": true, "com.cn": true, "co.jp": true,
}

// NormalizeHost lowercases a host and strips any port and trailing dot
func NormalizeHost(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.Trim(host, "[]")
	return strings.TrimSuffix(strings.ToLower(host), ".")
}

// NormalizeDomain is NormalizeHost plus stripping a leading www.
func NormalizeDomain(domain string) string {
	return strings.TrimPrefix(NormalizeHost(domain), "www.")
}

// NormalizeUsername lowercases a username for storage and lookup
func NormalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

// ValidateUsername checks the username format: 3 to 20 of [a-zA-Z0-9_-]
func ValidateUsername(username string) error {
	if !usernamePattern.MatchString(username) {
		return fmt.Errorf("%w: must be 3-20 characters of letters, digits, '_' or '-'", ErrInvalidUsername)
	}
	return nil
}

// DomainValidator validates custom domains and checks their DNS setup
type DomainValidator struct {
	cfg      *config.Config
	resolver *net.Resolver
}

// NewDomainValidator creates a new domain validator
func NewDomainValidator(cfg *config.Config) *DomainValidator {
	return &DomainValidator{
		cfg: cfg,
		// Default dialer respects /etc/resolv.conf
		resolver: &net.Resolver{PreferGo: true},
	}
}

// ValidateDomainFormat validates a normalized domain name
func (v *DomainValidator) ValidateDomainFormat(domain string) error {
	if len(domain) == 0 {
		return fmt.Errorf("%w: domain cannot be empty", ErrInvalidDomainFormat)
	}

	if len(domain) > 253 {
		return fmt.Errorf("%w: domain exceeds maximum length of 253 characters", ErrInvalidDomainFormat)
	}

	for i, r := range domain {
		if !((r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '.') {
			return fmt.Errorf("%w: invalid character '%c' at position %d", ErrInvalidDomainFormat, r, i)
		}
	}

	parts := strings.Split(domain, ".")
	if len(parts) < 2 {
		return fmt.Errorf("%w: domain must have at least two parts", ErrInvalidDomainFormat)
	}

	for _, part := range parts {
		if len(part) == 0 {
			return fmt.Errorf("%w: domain parts cannot be empty", ErrInvalidDomainFormat)
		}
		if len(part) > 63 {
			return fmt.Errorf("%w: domain label exceeds maximum length of 63 characters", ErrInvalidDomainFormat)
		}
		if strings.HasPrefix(part, "-") || strings.HasSuffix(part, "-") {
			return fmt.Errorf("%w: domain labels cannot start or end with hyphen", ErrInvalidDomainFormat)
		}
	}

	// Check it's not our platform domain
	primary := v.cfg.Platform.PrimaryDomain
	if primary != "" && (domain == primary || strings.HasSuffix(domain, "."+primary)) {
		return fmt.Errorf("%w: cannot use platform domain", ErrInvalidDomainFormat)
	}

	return nil
}

// DetectDomainType determines if domain is apex or subdomain
func (v *DomainValidator) DetectDomainType(domain string) models.DomainType {
	parts := strings.Split(domain, ".")
	if len(parts) > 2 {
		lastTwo := parts[len(parts)-2] + "." + parts[len(parts)-1]
		if twoPartTLDs[lastTwo] && len(parts) == 3 {
			return models.DomainTypeApex
		}
		return models.DomainTypeSubdomain
	}
	return models.DomainTypeApex
}

// RoutingRecords returns the DNS records a tenant adds to route the domain to the platform.
// Apex domains use A records when a proxy IP is configured, otherwise CNAME flattening.
func (v *DomainValidator) RoutingRecords(domain string, domainType models.DomainType) []models.DNSRecord {
	records := []models.DNSRecord{}

	if domainType == models.DomainTypeApex && v.cfg.Platform.ProxyIP != "" {
		records = append(records, models.DNSRecord{
			RecordType: "A",
			Host:       domain,
			Value:      v.cfg.Platform.ProxyIP,
			TTL:        300,
			Purpose:    "routing",
		})
	} else {
		records = append(records, models.DNSRecord{
			RecordType: "CNAME",
			Host:       domain,
			Value:      v.cfg.Platform.ProxyDomain,
			TTL:        300,
			Purpose:    "routing",
		})
	}

	if domainType == models.DomainTypeApex {
		records = append(records, models.DNSRecord{
			RecordType: "CNAME",
			Host:       "www." + domain,
			Value:      v.cfg.Platform.ProxyDomain,
			TTL:        300,
			Purpose:    "routing",
		})
	}

	return records
}

// GetRequiredDNSRecords merges routing records with the provider's verification records
func (v *DomainValidator) GetRequiredDNSRecords(binding *models.DomainBinding) []models.DNSRecord {
	records := v.RoutingRecords(binding.Domain, binding.DomainType)
	for i := range records {
		records[i].IsVerified = binding.IsVerified()
	}
	return append(records, binding.VerificationRecords...)
}

// CheckDomainExists verifies if a domain is registered by checking for NS records.
// Lookup failures other than NXDOMAIN are treated as "exists" to not block the user.
func (v *DomainValidator) CheckDomainExists(ctx context.Context, domainName string) (bool, error) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	baseDomain := v.getBaseDomain(domainName)

	ns, err := v.resolver.LookupNS(checkCtx, baseDomain)
	if err != nil {
		if dnsErr, ok := err.(*net.DNSError); ok {
			if dnsErr.IsNotFound {
				log.Info().Str("domain", baseDomain).Msg("Domain not found (NXDOMAIN)")
				return false, nil
			}
			if dnsErr.IsTimeout {
				log.Warn().Str("domain", baseDomain).Msg("DNS lookup timed out, assuming domain exists")
				return true, nil
			}
		}
		log.Warn().Err(err).Str("domain", baseDomain).Msg("NS lookup failed, assuming domain exists")
		return true, nil
	}

	return len(ns) > 0, nil
}

// IsRoutingConfigured checks whether the domain already points at the platform
func (v *DomainValidator) IsRoutingConfigured(ctx context.Context, domain string, domainType models.DomainType) (bool, string) {
	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if domainType == models.DomainTypeApex && v.cfg.Platform.ProxyIP != "" {
		ips, err := v.resolver.LookupIP(checkCtx, "ip4", domain)
		if err != nil {
			return false, fmt.Sprintf("A record not found for %s", domain)
		}
		for _, ip := range ips {
			if ip.String() == v.cfg.Platform.ProxyIP {
				return true, "Routing DNS is configured correctly"
			}
		}
		return false, fmt.Sprintf("A record not pointing to %s. Found: %v", v.cfg.Platform.ProxyIP, ips)
	}

	cname, err := v.resolver.LookupCNAME(checkCtx, domain)
	if err != nil {
		return false, fmt.Sprintf("CNAME record not found for %s. Please add: %s CNAME %s",
			domain, domain, v.cfg.Platform.ProxyDomain)
	}

	cname = strings.TrimSuffix(cname, ".")
	if strings.EqualFold(cname, v.cfg.Platform.ProxyDomain) {
		return true, "Routing DNS is configured correctly"
	}
	return false, fmt.Sprintf("CNAME record for %s points to %s instead of %s", domain, cname, v.cfg.Platform.ProxyDomain)
}

// getBaseDomain extracts the registrable domain from a full domain name
func (v *DomainValidator) getBaseDomain(domain string) string {
	parts := strings.Split(domain, ".")
	if len(parts) <= 2 {
		return domain
	}

	lastTwo := parts[len(parts)-2] + "." + parts[len(parts)-1]
	if twoPartTLDs[lastTwo] {
		return parts[len(parts)-3] + "." + lastTwo
	}

	return lastTwo
}
