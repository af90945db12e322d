package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/metrics"
	"portfolio-host-service/internal/models"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

var (
	ErrEdgeUnavailable  = errors.New("edge provider unavailable")
	ErrHostnameNotFound = errors.New("custom hostname not found")
)

// Cloudflare API error codes
const (
	cfCodeHostnameExists   = 1406
	cfCodeHostnameNotFound = 1436
)

// EdgeRejectionError is returned when the provider refuses a hostname
type EdgeRejectionError struct {
	Code   int
	Reason string
}

func (e *EdgeRejectionError) Error() string {
	return fmt.Sprintf("edge provider rejected hostname: %s (code: %d)", e.Reason, e.Code)
}

// CloudflareError represents an error from the Cloudflare API
type CloudflareError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// CustomHostname represents a Cloudflare for SaaS custom hostname
type CustomHostname struct {
	ID                    string                 `json:"id"`
	Hostname              string                 `json:"hostname"`
	SSL                   *CustomHostnameSSL     `json:"ssl,omitempty"`
	CustomOriginServer    string                 `json:"custom_origin_server,omitempty"`
	Status                string                 `json:"status,omitempty"`
	VerificationErrors    []string               `json:"verification_errors,omitempty"`
	OwnershipVerification *OwnershipVerification `json:"ownership_verification,omitempty"`
	CreatedAt             string                 `json:"created_at,omitempty"`
}

// CustomHostnameSSL represents SSL configuration for a custom hostname
type CustomHostnameSSL struct {
	ID                string                `json:"id,omitempty"`
	Status            string                `json:"status,omitempty"`
	Method            string                `json:"method,omitempty"`
	Type              string                `json:"type,omitempty"`
	ValidationRecords []SSLValidationRecord `json:"validation_records,omitempty"`
	ValidationErrors  []SSLValidationError  `json:"validation_errors,omitempty"`
}

// SSLValidationRecord represents a validation record for custom hostname SSL
type SSLValidationRecord struct {
	TXTName  string `json:"txt_name,omitempty"`
	TXTValue string `json:"txt_value,omitempty"`
}

// SSLValidationError represents a validation error
type SSLValidationError struct {
	Message string `json:"message"`
}

// OwnershipVerification represents DNS TXT verification for custom hostname
type OwnershipVerification struct {
	Type  string `json:"type,omitempty"`
	Name  string `json:"name,omitempty"`
	Value string `json:"value,omitempty"`
}

// Verified returns true once the hostname is active and its certificate issued
func (h *CustomHostname) Verified() bool {
	return h.Status == "active" && (h.SSL == nil || h.SSL.Status == "active")
}

// FailureReason reports whether the provider has given up on the hostname
func (h *CustomHostname) FailureReason() (string, bool) {
	switch h.Status {
	case "moved", "deleted", "blocked":
		return h.reason("hostname " + h.Status), true
	}
	if h.SSL != nil {
		switch h.SSL.Status {
		case "validation_timed_out", "issuance_timed_out", "deleted":
			return h.reason("certificate " + strings.ReplaceAll(h.SSL.Status, "_", " ")), true
		}
	}
	return "", false
}

func (h *CustomHostname) reason(fallback string) string {
	if len(h.VerificationErrors) > 0 {
		return h.VerificationErrors[0]
	}
	if h.SSL != nil && len(h.SSL.ValidationErrors) > 0 {
		return h.SSL.ValidationErrors[0].Message
	}
	return fallback
}

// Records returns the DNS records the provider needs to see before it activates the hostname
func (h *CustomHostname) Records() []models.DNSRecord {
	var records []models.DNSRecord
	if ov := h.OwnershipVerification; ov != nil && ov.Name != "" {
		records = append(records, models.DNSRecord{
			RecordType: strings.ToUpper(ov.Type),
			Host:       ov.Name,
			Value:      ov.Value,
			TTL:        300,
			Purpose:    "verification",
			IsVerified: h.Status == "active",
		})
	}
	if h.SSL != nil {
		for _, vr := range h.SSL.ValidationRecords {
			if vr.TXTName == "" {
				continue
			}
			records = append(records, models.DNSRecord{
				RecordType: "TXT",
				Host:       vr.TXTName,
				Value:      vr.TXTValue,
				TTL:        300,
				Purpose:    "certificate",
				IsVerified: h.SSL.Status == "active",
			})
		}
	}
	return records
}

type cloudflareEnvelope struct {
	Success bool              `json:"success"`
	Errors  []CloudflareError `json:"errors"`
	Result  json.RawMessage   `json:"result"`
}

func (e *cloudflareEnvelope) hasCode(code int) bool {
	for _, cfErr := range e.Errors {
		if cfErr.Code == code {
			return true
		}
	}
	return false
}

type createCustomHostnameRequest struct {
	Hostname           string             `json:"hostname"`
	SSL                *CustomHostnameSSL `json:"ssl,omitempty"`
	CustomOriginServer string             `json:"custom_origin_server,omitempty"`
}

// CloudflareSaaSClient manages custom hostnames through the Cloudflare for SaaS API
type CloudflareSaaSClient struct {
	http         *resty.Client
	zoneID       string
	originServer string
	metrics      *metrics.Metrics
}

// NewCloudflareSaaSClient creates a new Cloudflare for SaaS client
func NewCloudflareSaaSClient(cfg config.EdgeConfig, m *metrics.Metrics) *CloudflareSaaSClient {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetAuthToken(cfg.APIToken).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return r != nil && r.StatusCode() >= http.StatusInternalServerError
		}).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")

	return &CloudflareSaaSClient{
		http:         client,
		zoneID:       cfg.ZoneID,
		originServer: cfg.OriginServer,
		metrics:      m,
	}
}

// RegisterHostname creates a custom hostname. An existing registration for
// the same hostname is returned as is.
func (c *CloudflareSaaSClient) RegisterHostname(ctx context.Context, domain string) (*CustomHostname, error) {
	log.Info().Str("domain", domain).Str("zone_id", c.zoneID).Msg("Creating Cloudflare Custom Hostname")

	reqBody := createCustomHostnameRequest{
		Hostname: domain,
		SSL: &CustomHostnameSSL{
			Method: "txt",
			Type:   "dv",
		},
		CustomOriginServer: c.originServer,
	}

	var hostname CustomHostname
	env, err := c.do(ctx, "register", http.MethodPost, "/zones/{zone}/custom_hostnames", reqBody, nil, &hostname)
	if err != nil {
		if env != nil && env.hasCode(cfCodeHostnameExists) {
			log.Info().Str("domain", domain).Msg("Custom hostname already exists, fetching existing")
			return c.GetHostnameByName(ctx, domain)
		}
		return nil, err
	}

	log.Info().
		Str("domain", domain).
		Str("id", hostname.ID).
		Str("status", hostname.Status).
		Msg("Successfully created Cloudflare Custom Hostname")

	return &hostname, nil
}

// GetHostname retrieves a custom hostname by its ID
func (c *CloudflareSaaSClient) GetHostname(ctx context.Context, hostnameID string) (*CustomHostname, error) {
	var hostname CustomHostname
	if _, err := c.do(ctx, "get", http.MethodGet, "/zones/{zone}/custom_hostnames/"+hostnameID, nil, nil, &hostname); err != nil {
		return nil, err
	}
	return &hostname, nil
}

// GetHostnameByName retrieves a custom hostname by domain name
func (c *CloudflareSaaSClient) GetHostnameByName(ctx context.Context, domain string) (*CustomHostname, error) {
	var hostnames []CustomHostname
	query := map[string]string{"hostname": domain}
	if _, err := c.do(ctx, "lookup", http.MethodGet, "/zones/{zone}/custom_hostnames", nil, query, &hostnames); err != nil {
		return nil, err
	}
	if len(hostnames) == 0 {
		return nil, ErrHostnameNotFound
	}
	return &hostnames[0], nil
}

// DeleteHostname removes a custom hostname. A hostname that is already gone is not an error.
func (c *CloudflareSaaSClient) DeleteHostname(ctx context.Context, hostnameID string) error {
	log.Info().Str("hostname_id", hostnameID).Msg("Deleting Cloudflare Custom Hostname")

	_, err := c.do(ctx, "delete", http.MethodDelete, "/zones/{zone}/custom_hostnames/"+hostnameID, nil, nil, nil)
	if errors.Is(err, ErrHostnameNotFound) {
		log.Debug().Str("hostname_id", hostnameID).Msg("Custom hostname not found, already deleted")
		return nil
	}
	return err
}

// do executes a request and decodes the Cloudflare envelope. Transport
// failures, throttling and 5xx map to ErrEdgeUnavailable; other API errors
// map to ErrHostnameNotFound or *EdgeRejectionError.
func (c *CloudflareSaaSClient) do(ctx context.Context, op, method, path string, body interface{}, query map[string]string, out interface{}) (*cloudflareEnvelope, error) {
	start := time.Now()

	var env cloudflareEnvelope
	req := c.http.R().
		SetContext(ctx).
		SetPathParam("zone", c.zoneID).
		SetResult(&env).
		SetError(&env)
	if body != nil {
		req.SetBody(body)
	}
	if query != nil {
		req.SetQueryParams(query)
	}

	resp, err := req.Execute(method, path)
	c.metrics.ProviderCall("edge", op, time.Since(start).Seconds(), err)

	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrEdgeUnavailable, op, err)
	}
	if resp.StatusCode() == http.StatusTooManyRequests || resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s: status %d", ErrEdgeUnavailable, op, resp.StatusCode())
	}

	if !env.Success {
		if resp.StatusCode() == http.StatusNotFound || env.hasCode(cfCodeHostnameNotFound) {
			return &env, ErrHostnameNotFound
		}
		rejection := &EdgeRejectionError{Reason: "cloudflare API request failed"}
		if len(env.Errors) > 0 {
			rejection.Code = env.Errors[0].Code
			rejection.Reason = env.Errors[0].Message
		}
		return &env, rejection
	}

	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &env, fmt.Errorf("failed to parse %s response: %w", op, err)
		}
	}
	return &env, nil
}
