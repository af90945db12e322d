package clients

import (
	"context"
	"fmt"
	"time"

	"portfolio-host-service/internal/config"
	"portfolio-host-service/internal/metrics"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

// RenderCacheClient asks the rendering layer to revalidate cached pages by tag
type RenderCacheClient struct {
	http    *resty.Client
	url     string
	metrics *metrics.Metrics
}

type revalidateRequest struct {
	Tags []string `json:"tags"`
}

// NewRenderCacheClient creates a render cache purge client.
// An empty revalidate URL disables purging.
func NewRenderCacheClient(cfg config.RenderConfig, m *metrics.Metrics) *RenderCacheClient {
	client := resty.New().
		SetTimeout(cfg.Timeout).
		SetRetryCount(1).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-revalidate-secret", cfg.RevalidateSecret)

	return &RenderCacheClient{
		http:    client,
		url:     cfg.RevalidateURL,
		metrics: m,
	}
}

// Enabled returns true if a revalidate endpoint is configured
func (c *RenderCacheClient) Enabled() bool {
	return c.url != ""
}

// Purge revalidates every page tagged with one of tags
func (c *RenderCacheClient) Purge(ctx context.Context, tags []string) error {
	if !c.Enabled() || len(tags) == 0 {
		return nil
	}

	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(revalidateRequest{Tags: tags}).
		Post(c.url)
	if err == nil && resp.IsError() {
		err = fmt.Errorf("revalidate returned status %d", resp.StatusCode())
	}
	c.metrics.ProviderCall("render", "purge", time.Since(start).Seconds(), err)

	if err != nil {
		return fmt.Errorf("failed to purge render cache: %w", err)
	}

	log.Debug().Strs("tags", tags).Msg("Render cache purged")
	return nil
}
