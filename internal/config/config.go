package config

type Config struct {
	Environment string `mapstructure:"environment" yaml:"environment"`
	Port        int    `mapstructure:"port" yaml:"port"`
	LogLevel    string `mapstructure:"log_level" yaml:"log_level"`

	// DefaultTenantID is applied when a public request carries no X-Tenant-Id.
	DefaultTenantID string `mapstructure:"default_tenant_id" yaml:"default_tenant_id"`

	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Broker    BrokerConfig    `mapstructure:"broker" yaml:"broker"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	JWT       JWTConfig       `mapstructure:"jwt" yaml:"jwt"`
	Lockout   LockoutConfig   `mapstructure:"lockout" yaml:"lockout"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	CORS      CORSConfig      `mapstructure:"cors" yaml:"cors"`
	Consumer  ConsumerConfig  `mapstructure:"consumer" yaml:"consumer"`
}

// DatabaseConfig holds the relational store connection settings.
type DatabaseConfig struct {
	URL             string `mapstructure:"url" yaml:"url"`
	MaxOpenConns    int    `mapstructure:"max_open_conns" yaml:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"` // seconds
}

// BrokerConfig holds the RabbitMQ connection and retry settings.
type BrokerConfig struct {
	URL string `mapstructure:"url" yaml:"url"`
	// PublishRetries bounds the exponential backoff before an event is
	// routed to the local dead-letter queue.
	PublishRetries int `mapstructure:"publish_retries" yaml:"publish_retries"`
	// DeadLetterDir is where unpublishable events are persisted.
	DeadLetterDir string `mapstructure:"dead_letter_dir" yaml:"dead_letter_dir"`
}

// ConsumerConfig bounds broker consumption.
type ConsumerConfig struct {
	Prefetch       int `mapstructure:"prefetch" yaml:"prefetch"`
	Handlers       int `mapstructure:"handlers" yaml:"handlers"`
	HandlerTimeout int `mapstructure:"handler_timeout" yaml:"handler_timeout"` // seconds
}

// CacheConfig holds Redis settings shared by the rate limiter and the
// process caches' invalidation fan-out.
type CacheConfig struct {
	Nodes    []string `mapstructure:"nodes" yaml:"nodes"`
	TTL      int      `mapstructure:"ttl" yaml:"ttl"` // seconds
	Password string   `mapstructure:"password" yaml:"password"`
	DB       int      `mapstructure:"db" yaml:"db"`
}

// JWTConfig configures token minting and verification. When both PEM paths
// are set the deployment uses RS256; otherwise HS512 with the shared secret.
type JWTConfig struct {
	Secret                string `mapstructure:"secret" yaml:"secret"`
	Issuer                string `mapstructure:"issuer" yaml:"issuer"`
	ExpirationSeconds     int    `mapstructure:"expiration_seconds" yaml:"expiration_seconds"`
	RefreshExpirationDays int    `mapstructure:"refresh_expiration_days" yaml:"refresh_expiration_days"`
	PrivateKeyPath        string `mapstructure:"private_key_path" yaml:"private_key_path"`
	PublicKeyPath         string `mapstructure:"public_key_path" yaml:"public_key_path"`
}

// LockoutConfig controls the failed-login lockout state machine.
type LockoutConfig struct {
	Threshold       int `mapstructure:"threshold" yaml:"threshold"`
	DurationMinutes int `mapstructure:"duration_minutes" yaml:"duration_minutes"`
}

// RateLimitConfig controls the gateway token bucket.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// GatewayConfig holds edge-specific settings.
type GatewayConfig struct {
	// MaxBodyBytes bounds buffered request bodies; larger requests get 413.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes" yaml:"max_body_bytes"`
	// RequestTimeout is the end-to-end deadline per request, in seconds.
	RequestTimeout int `mapstructure:"request_timeout" yaml:"request_timeout"`
	// Balancer selects instance picking: round_robin | random | least_requests.
	Balancer string `mapstructure:"balancer" yaml:"balancer"`
	// Services maps logical service names to discovery settings.
	Services map[string]ServiceConfig `mapstructure:"services" yaml:"services"`
}

// ServiceConfig describes one routable backend.
type ServiceConfig struct {
	// Static endpoints used when DNS discovery is disabled.
	Endpoints []string           `mapstructure:"endpoints" yaml:"endpoints"`
	Discovery DNSDiscoveryConfig `mapstructure:"discovery" yaml:"discovery"`
}

// DNSDiscoveryConfig enables dynamic endpoint discovery for a service.
type DNSDiscoveryConfig struct {
	Enabled        bool   `mapstructure:"enabled" yaml:"enabled"`
	Service        string `mapstructure:"service" yaml:"service"`
	Port           int    `mapstructure:"port" yaml:"port"`
	Scheme         string `mapstructure:"scheme" yaml:"scheme"` // http | https
	RefreshSeconds int    `mapstructure:"refresh_seconds" yaml:"refresh_seconds"`
	UseSRV         bool   `mapstructure:"use_srv" yaml:"use_srv"`
}

// CORSConfig handles Cross-Origin Resource Sharing.
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods" yaml:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers" yaml:"allowed_headers"`
	ExposedHeaders   []string `mapstructure:"exposed_headers" yaml:"exposed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials" yaml:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age" yaml:"max_age"`
}
