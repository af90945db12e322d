package services

import (
	"testing"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/models"

	"github.com/stretchr/testify/assert"
)

func testConfig() *config.Config {
	return &config.Config{
		Platform: config.PlatformConfig{
			PrimaryDomain: "folio.page",
			ProxyDomain:   "edge.folio.page",
		},
		Cache: config.CacheConfig{
			TTL:         5 * time.Minute,
			NegativeTTL: time.Minute,
		},
		Edge:   config.EdgeConfig{Timeout: 2 * time.Second},
		Limits: config.LimitsConfig{MaxVerificationAttempts: 5},
	}
}

func TestNormalizeHost(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Bob.DEV", "bob.dev"},
		{"bob.dev.", "bob.dev"},
		{"bob.dev:8443", "bob.dev"},
		{" www.Bob.dev.:443 ", "www.bob.dev"},
		{"[::1]:8080", "::1"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeHost(tt.in))
		})
	}
}

func TestNormalizeDomain(t *testing.T) {
	assert.Equal(t, "bob.dev", NormalizeDomain("WWW.bob.dev."))
	assert.Equal(t, "shop.bob.dev", NormalizeDomain("shop.bob.dev"))
}

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		wantErr  bool
	}{
		{name: "simple", username: "alice"},
		{name: "with symbols", username: "bob_the-dev"},
		{name: "min length", username: "abc"},
		{name: "max length", username: "abcdefghijklmnopqrst"},
		{name: "too short", username: "ab", wantErr: true},
		{name: "too long", username: "abcdefghijklmnopqrstu", wantErr: true},
		{name: "dot", username: "bob.dev", wantErr: true},
		{name: "space", username: "bob dev", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateUsername(tt.username)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidUsername)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDomainValidator_ValidateDomainFormat(t *testing.T) {
	validator := NewDomainValidator(testConfig())

	tests := []struct {
		name    string
		domain  string
		wantErr bool
	}{
		{name: "valid apex domain", domain: "example.com"},
		{name: "valid subdomain", domain: "shop.example.com"},
		{name: "valid with numbers", domain: "shop123.example.com"},
		{name: "valid with hyphen", domain: "my-shop.example.com"},
		{name: "empty domain", domain: "", wantErr: true},
		{name: "single part", domain: "example", wantErr: true},
		{name: "platform domain", domain: "folio.page", wantErr: true},
		{name: "platform subdomain", domain: "alice.folio.page", wantErr: true},
		{name: "starts with hyphen", domain: "-example.com", wantErr: true},
		{name: "ends with hyphen", domain: "example-.com", wantErr: true},
		{name: "empty label", domain: "example..com", wantErr: true},
		{
			name:    "too long label",
			domain:  "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa.com",
			wantErr: true,
		},
		{name: "invalid characters", domain: "exam_ple.com", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validator.ValidateDomainFormat(tt.domain)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidDomainFormat)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestDomainValidator_DetectDomainType(t *testing.T) {
	validator := NewDomainValidator(testConfig())

	tests := []struct {
		name     string
		domain   string
		expected models.DomainType
	}{
		{name: "apex domain", domain: "example.com", expected: models.DomainTypeApex},
		{name: "subdomain", domain: "shop.example.com", expected: models.DomainTypeSubdomain},
		{name: "deep subdomain", domain: "api.shop.example.com", expected: models.DomainTypeSubdomain},
		{name: "co.uk apex", domain: "example.co.uk", expected: models.DomainTypeApex},
		{name: "co.uk subdomain", domain: "shop.example.co.uk", expected: models.DomainTypeSubdomain},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, validator.DetectDomainType(tt.domain))
		})
	}
}

func TestDomainValidator_GetRequiredDNSRecords(t *testing.T) {
	t.Run("apex with proxy IP", func(t *testing.T) {
		cfg := testConfig()
		cfg.Platform.ProxyIP = "1.2.3.4"
		validator := NewDomainValidator(cfg)

		binding := &models.DomainBinding{
			Domain:     "example.com",
			DomainType: models.DomainTypeApex,
			VerificationRecords: []models.DNSRecord{
				{RecordType: "TXT", Host: "_cf-custom-hostname.example.com", Value: "token", Purpose: "verification"},
			},
		}

		records := validator.GetRequiredDNSRecords(binding)

		assert.Len(t, records, 3) // A + www CNAME + provider TXT
		assert.Equal(t, "A", records[0].RecordType)
		assert.Equal(t, "1.2.3.4", records[0].Value)
		assert.Equal(t, "www.example.com", records[1].Host)
		assert.Equal(t, "edge.folio.page", records[1].Value)
		assert.Equal(t, "TXT", records[2].RecordType)
	})

	t.Run("subdomain without proxy IP", func(t *testing.T) {
		validator := NewDomainValidator(testConfig())

		binding := &models.DomainBinding{
			Domain:     "portfolio.example.com",
			DomainType: models.DomainTypeSubdomain,
		}

		records := validator.GetRequiredDNSRecords(binding)

		assert.Len(t, records, 1)
		assert.Equal(t, "CNAME", records[0].RecordType)
		assert.Equal(t, "portfolio.example.com", records[0].Host)
		assert.Equal(t, "edge.folio.page", records[0].Value)
		assert.False(t, records[0].IsVerified)
	})
}
