package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Tesseract-Nexus/go-shared/secrets"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Database DatabaseConfig `json:"database"`
	Redis    RedisConfig    `json:"redis"`
	NATS     NATSConfig     `json:"nats"`
	Platform PlatformConfig `json:"platform"`
	Cache    CacheConfig    `json:"cache"`
	Edge     EdgeConfig     `json:"edge"`
	Billing  BillingConfig  `json:"billing"`
	Render   RenderConfig   `json:"render"`
	Limits   LimitsConfig   `json:"limits"`
	Workers  WorkersConfig  `json:"workers"`
}

type ServerConfig struct {
	Port string `json:"port"`
	Host string `json:"host"`
	Mode string `json:"mode"`
	// Extra CORS origins for the admin UI
	AllowedOrigins []string `json:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	DBName   string `json:"dbname"`
	SSLMode  string `json:"sslmode"`
}

type RedisConfig struct {
	Host     string `json:"host"`
	Port     string `json:"port"`
	Password string `json:"password"`
	DB       string `json:"db"`
	URL      string `json:"url"`
}

type NATSConfig struct {
	URL string `json:"url"`
	// Subjects published by the app when tenant-visible content changes
	MutationSubject string `json:"mutation_subject"`
	MutationStream  string `json:"mutation_stream"`
	// Core subject replicas use to drop each other's local host cache entries
	InvalidationSubject string `json:"invalidation_subject"`
}

type PlatformConfig struct {
	PrimaryDomain string `json:"primary_domain"` // e.g. folio.page, tenants live at <username>.folio.page
	ProxyDomain   string `json:"proxy_domain"`   // CNAME target for custom subdomains
	ProxyIP       string `json:"proxy_ip"`       // A record target for apex custom domains
}

type CacheConfig struct {
	TTL         time.Duration `json:"ttl"`
	NegativeTTL time.Duration `json:"negative_ttl"`
	KeyPrefix   string        `json:"key_prefix"`
}

// EdgeConfig configures the Cloudflare for SaaS custom hostname API
type EdgeConfig struct {
	Enabled      bool          `json:"enabled"`
	BaseURL      string        `json:"base_url"`
	APIToken     string        `json:"api_token"`
	ZoneID       string        `json:"zone_id"`
	OriginServer string        `json:"origin_server"` // target the custom hostname is served from
	Timeout      time.Duration `json:"timeout"`
}

type BillingConfig struct {
	SecretKey     string        `json:"secret_key"`
	WebhookSecret string        `json:"webhook_secret"`
	ProProductRef string        `json:"pro_product_ref"`
	Timeout       time.Duration `json:"timeout"`
}

// RenderConfig points at the rendering layer's page-cache purge endpoint
type RenderConfig struct {
	RevalidateURL    string        `json:"revalidate_url"`
	RevalidateSecret string        `json:"revalidate_secret"`
	Timeout          time.Duration `json:"timeout"`
}

type LimitsConfig struct {
	MaxVerificationAttempts int           `json:"max_verification_attempts"`
	AbandonBindingAfter     time.Duration `json:"abandon_binding_after"`
	ProviderPollsPerSecond  float64       `json:"provider_polls_per_second"`
}

type WorkersConfig struct {
	VerificationInterval time.Duration `json:"verification_interval"`
	ExpiryInterval       time.Duration `json:"expiry_interval"`
	CleanupInterval      time.Duration `json:"cleanup_interval"`
	ActivityRetention    time.Duration `json:"activity_retention"`
	EventRetention       time.Duration `json:"event_retention"`
}

func NewConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8093"),
			Host:           getEnv("HOST", "0.0.0.0"),
			Mode:           getEnv("GIN_MODE", "debug"),
			AllowedOrigins: splitAndTrim(os.Getenv("CORS_ALLOWED_ORIGINS"), ","),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: secrets.GetDBPassword(),
			DBName:   getEnv("DB_NAME", "portfolio_db"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Redis: buildRedisConfig(),
		NATS: NATSConfig{
			URL:             getEnv("NATS_URL", "nats://localhost:4222"),
			MutationSubject: getEnv("NATS_MUTATION_SUBJECT", "portfolio.tenant.>"),
			MutationStream:  getEnv("NATS_MUTATION_STREAM", "PORTFOLIO_TENANT_EVENTS"),

			InvalidationSubject: getEnv("NATS_INVALIDATION_SUBJECT", "portfolio.cache.invalidate"),
		},
		Platform: PlatformConfig{
			PrimaryDomain: strings.ToLower(getEnv("PRIMARY_DOMAIN", "folio.page")),
			ProxyDomain:   getEnv("PROXY_DOMAIN", "edge.folio.page"),
			ProxyIP:       getEnv("PROXY_IP", ""),
		},
		Cache: CacheConfig{
			TTL:         getDurationEnv("HOST_CACHE_TTL", 5*time.Minute),
			NegativeTTL: getDurationEnv("HOST_CACHE_NEGATIVE_TTL", time.Minute),
			KeyPrefix:   getEnv("HOST_CACHE_PREFIX", "host:resolve:"),
		},
		Edge: EdgeConfig{
			Enabled:      getBoolEnv("EDGE_ENABLED", true),
			BaseURL:      getEnv("EDGE_API_URL", "https://api.cloudflare.com/client/v4"),
			APIToken:     secrets.GetSecretOrEnv("EDGE_API_TOKEN_SECRET_NAME", "EDGE_API_TOKEN", ""),
			ZoneID:       getEnv("EDGE_ZONE_ID", ""),
			OriginServer: getEnv("EDGE_ORIGIN_SERVER", "origin.folio.page"),
			Timeout:      getDurationEnv("EDGE_TIMEOUT", 10*time.Second),
		},
		Billing: BillingConfig{
			SecretKey:     secrets.GetSecretOrEnv("BILLING_SECRET_KEY_SECRET_NAME", "BILLING_SECRET_KEY", ""),
			WebhookSecret: secrets.GetSecretOrEnv("BILLING_WEBHOOK_SECRET_NAME", "BILLING_WEBHOOK_SECRET", ""),
			ProProductRef: getEnv("BILLING_PRO_PRODUCT", ""),
			Timeout:       getDurationEnv("BILLING_TIMEOUT", 10*time.Second),
		},
		Render: RenderConfig{
			RevalidateURL:    getEnv("RENDER_REVALIDATE_URL", ""),
			RevalidateSecret: secrets.GetSecretOrEnv("RENDER_REVALIDATE_SECRET_NAME", "RENDER_REVALIDATE_SECRET", ""),
			Timeout:          getDurationEnv("RENDER_TIMEOUT", 5*time.Second),
		},
		Limits: LimitsConfig{
			MaxVerificationAttempts: getIntEnv("MAX_VERIFICATION_ATTEMPTS", 288),
			AbandonBindingAfter:     getDurationEnv("ABANDON_BINDING_AFTER", 72*time.Hour),
			ProviderPollsPerSecond:  getFloatEnv("PROVIDER_POLLS_PER_SECOND", 2),
		},
		Workers: WorkersConfig{
			VerificationInterval: getDurationEnv("VERIFICATION_INTERVAL", 5*time.Minute),
			ExpiryInterval:       getDurationEnv("EXPIRY_SWEEP_INTERVAL", 10*time.Minute),
			CleanupInterval:      getDurationEnv("CLEANUP_INTERVAL", 24*time.Hour),
			ActivityRetention:    getDurationEnv("ACTIVITY_RETENTION", 30*24*time.Hour),
			EventRetention:       getDurationEnv("BILLING_EVENT_RETENTION", 90*24*time.Hour),
		},
	}
}

func (c *DatabaseConfig) DSN() string {
	return "host=" + c.Host +
		" port=" + c.Port +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.DBName +
		" sslmode=" + c.SSLMode
}

func buildRedisConfig() RedisConfig {
	if url := os.Getenv("REDIS_URL"); url != "" {
		return RedisConfig{URL: url}
	}

	host := getEnv("REDIS_HOST", "localhost")
	port := getEnv("REDIS_PORT", "6379")
	password := secrets.GetRedisPassword()
	db := getEnv("REDIS_DB", "0")

	var url string
	if password != "" {
		url = "redis://:" + password + "@" + host + ":" + port + "/" + db
	} else {
		url = "redis://" + host + ":" + port + "/" + db
	}

	return RedisConfig{
		Host:     host,
		Port:     port,
		Password: password,
		DB:       db,
		URL:      url,
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getIntEnv(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getFloatEnv(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBoolEnv(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return fallback
}

// splitAndTrim splits a string by separator and trims whitespace from each element
func splitAndTrim(s, sep string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, sep)
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
