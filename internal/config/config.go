// Package config loads the MovieStar gateway and CLI settings from the
// environment, with per-environment service URLs and a YAML overlay for
// list view batch sizes.
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"time"

	"github.com/kelseyhightower/envconfig"
)

const (
	// MinPortNumber is the minimum valid port number.
	MinPortNumber = 1
	// MaxPortNumber is the maximum valid port number.
	MaxPortNumber = 65535
	// DefaultBatchSize is the loader batch size used when none is configured.
	DefaultBatchSize = 12
)

// Config is the gateway and CLI configuration, read from environment
// variables with one prefix per section (SERVER_PORT, IDENTITY_CLIENT_ID...).
type Config struct {
	Environment EnvironmentConfig `envconfig:"ENVIRONMENT"`
	Server      ServerConfig      `envconfig:"SERVER"`
	Redis       RedisConfig       `envconfig:"REDIS"`
	API         APIConfig         `envconfig:"API"`
	Identity    IdentityConfig    `envconfig:"IDENTITY"`
	Session     SessionConfig     `envconfig:"SESSION"`
	Loader      LoaderConfig      `envconfig:"LOADER"`
	Upload      UploadConfig      `envconfig:"UPLOAD"`
	Security    SecurityConfig    `envconfig:"SECURITY"`
	Logging     LoggingConfig     `envconfig:"LOGGING"`
}

// Environment selects per-environment defaults for service URLs and views.
type Environment string

const (
	Local   Environment = "LOCAL"
	NonProd Environment = "NONPROD"
	Prod    Environment = "PROD"
)

// EnvironmentConfig holds environment-specific settings.
type EnvironmentConfig struct {
	// Environment indicates the current running environment (LOCAL, NONPROD, PROD).
	Environment Environment `envconfig:"ENV" default:"LOCAL"`
}

// ServerConfig is the gateway's HTTP listener. TLS is served when both
// TLSCert and TLSKey are set.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"0.0.0.0"`
	Port int    `envconfig:"PORT" default:"8080"`

	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT"     default:"15s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT"    default:"30s"`
	IdleTimeout     time.Duration `envconfig:"IDLE_TIMEOUT"     default:"60s"`
	ShutdownTimeout time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"30s"`

	TLSCert string `envconfig:"TLS_CERT"`
	TLSKey  string `envconfig:"TLS_KEY"`

	// AppURL is where the browser is sent after login and logout.
	AppURL string `envconfig:"APP_URL" default:"/"`
}

// RedisConfig is the session store connection. Password and DB override
// the values embedded in URL.
type RedisConfig struct {
	URL      string `envconfig:"URL"      default:"redis://localhost:6379"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB"       default:"0"`

	// Pool settings, passed through to go-redis.
	MaxRetries   int           `envconfig:"MAX_RETRIES"   default:"3"`
	PoolSize     int           `envconfig:"POOL_SIZE"     default:"10"`
	MinIdleConn  int           `envconfig:"MIN_IDLE_CONN" default:"2"`
	DialTimeout  time.Duration `envconfig:"DIAL_TIMEOUT"  default:"5s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT"  default:"3s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout  time.Duration `envconfig:"POOL_TIMEOUT"  default:"4s"`
	IdleTimeout  time.Duration `envconfig:"IDLE_TIMEOUT"  default:"300s"`
}

// APIConfig contains settings for the remote movie catalog REST API.
type APIConfig struct {
	// BaseURL is the catalog API root, e.g. "http://localhost:8081/api".
	// Empty means "use the environment default" (see GetServiceURLs).
	BaseURL string `envconfig:"BASE_URL"`
	// Timeout bounds each outbound API call.
	Timeout time.Duration `envconfig:"TIMEOUT"  default:"15s"`
}

// IdentityConfig contains the identity provider client settings.
// Endpoints left empty are discovered from IssuerURL.
type IdentityConfig struct {
	// IssuerURL is the OIDC issuer, e.g. "http://localhost:8180/realms/moviestar".
	IssuerURL string `envconfig:"ISSUER_URL"`
	// ClientID is the public or confidential client registered for the app.
	ClientID string `envconfig:"CLIENT_ID"          default:"moviestar-frontend"`
	// ClientSecret is only set for confidential clients.
	ClientSecret string `envconfig:"CLIENT_SECRET"`
	// AuthURL overrides the discovered authorization endpoint.
	AuthURL string `envconfig:"AUTH_URL"`
	// TokenURL overrides the discovered token endpoint.
	TokenURL string `envconfig:"TOKEN_URL"`
	// EndSessionURL overrides the discovered end_session endpoint.
	EndSessionURL string `envconfig:"END_SESSION_URL"`
	// RedirectURL is the callback registered for the authorization code flow.
	RedirectURL string `envconfig:"REDIRECT_URL"       default:"http://localhost:8080/api/v1/auth/callback"`
	// Scopes requested on login.
	Scopes []string `envconfig:"SCOPES"             default:"openid,profile,email"`
	// MinValidity is the skew window: tokens expiring sooner are refreshed before use.
	MinValidity time.Duration `envconfig:"MIN_VALIDITY"       default:"30s"`
	// RefreshTimeout bounds a single call to the token endpoint.
	RefreshTimeout time.Duration `envconfig:"REFRESH_TIMEOUT"    default:"10s"`
	// AdminRole is the realm role that unlocks the back office.
	AdminRole string `envconfig:"ADMIN_ROLE"         default:"ADMIN"`
	// LoginStateTTL bounds how long a pending browser login may take.
	LoginStateTTL time.Duration `envconfig:"LOGIN_STATE_TTL"    default:"10m"`
}

// SessionConfig contains browser session cookie settings.
type SessionConfig struct {
	// CookieName is the name of the session cookie.
	CookieName string `envconfig:"COOKIE_NAME"   default:"moviestar_session"`
	// TTL is used when the provider does not report a refresh token lifetime.
	TTL time.Duration `envconfig:"TTL"           default:"12h"`
	// SecureCookies determines if cookies should be marked as secure.
	SecureCookies bool `envconfig:"SECURE_COOKIES" default:"true"`
	// SameSite sets the SameSite attribute for cookies (strict, lax, none).
	SameSite string `envconfig:"SAME_SITE"     default:"lax"`
}

// LoaderConfig contains incremental list loading settings.
type LoaderConfig struct {
	// DefaultBatchSize is the number of items revealed per batch.
	DefaultBatchSize int `envconfig:"DEFAULT_BATCH_SIZE"  default:"12"`
	// ProximityThreshold is how close (rows or pixels) the sentinel must be to trigger a load.
	ProximityThreshold int `envconfig:"PROXIMITY_THRESHOLD" default:"200"`
	// Views holds per-view batch sizes loaded from the YAML overlay.
	Views map[string]int `ignored:"true"`
}

// UploadConfig contains the image upload provider settings.
type UploadConfig struct {
	// URL is the direct-upload endpoint.
	URL string `envconfig:"URL"           default:"https://api.imgbb.com/1/upload"`
	// APIKey authenticates against the upload provider.
	APIKey string `envconfig:"API_KEY"`
	// MaxBytes is the largest accepted image.
	MaxBytes int64 `envconfig:"MAX_BYTES"     default:"5242880"`
	// AllowedTypes lists accepted MIME types.
	AllowedTypes []string `envconfig:"ALLOWED_TYPES" default:"image/jpeg,image/png,image/webp,image/gif"`
	// Timeout bounds a single upload.
	Timeout time.Duration `envconfig:"TIMEOUT"       default:"30s"`
}

// SecurityConfig covers rate limiting, CORS and proxy trust.
type SecurityConfig struct {
	// RateLimitRPS is the per-client request rate; 0 disables limiting.
	RateLimitRPS int `envconfig:"RATE_LIMIT_RPS" default:"50"`

	AllowedOrigins   []string `envconfig:"ALLOWED_ORIGINS"   default:"http://localhost:5173"`
	AllowedMethods   []string `envconfig:"ALLOWED_METHODS"   default:"GET,POST,PUT,PATCH,DELETE,OPTIONS"`
	AllowedHeaders   []string `envconfig:"ALLOWED_HEADERS"   default:"Content-Type,X-Request-ID"`
	AllowCredentials bool     `envconfig:"ALLOW_CREDENTIALS" default:"true"`
	// MaxAge is the preflight cache lifetime in seconds.
	MaxAge int `envconfig:"MAX_AGE" default:"86400"`

	// TrustedProxies are peer addresses whose X-Forwarded-For and X-Real-IP
	// headers are believed.
	TrustedProxies []string `envconfig:"TRUSTED_PROXIES"`
}

// LoggingConfig selects the logrus level, formatter (json or text) and
// output (stdout, stderr or a file path).
type LoggingConfig struct {
	Level  string `envconfig:"LEVEL"  default:"info"`
	Format string `envconfig:"FORMAT" default:"json"`
	Output string `envconfig:"OUTPUT" default:"stdout"`
}

// Load reads configuration from environment variables, overlays the YAML
// view settings, and returns a validated Config instance.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	views, err := loadViewBatchSizes(cfg.Environment.Environment)
	if err != nil {
		return nil, fmt.Errorf("failed to load view configuration: %w", err)
	}
	cfg.Loader.Views = views

	urls := cfg.GetServiceURLs()
	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = urls.CatalogAPIBaseURL
	}
	if cfg.Identity.IssuerURL == "" {
		cfg.Identity.IssuerURL = urls.IdentityIssuerURL
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if c.Server.Port < MinPortNumber || c.Server.Port > MaxPortNumber {
		return errors.New("server port must be between 1 and 65535")
	}

	if _, err := url.ParseRequestURI(c.API.BaseURL); err != nil {
		return fmt.Errorf("invalid API base URL %q: %w", c.API.BaseURL, err)
	}

	if c.Identity.ClientID == "" {
		return errors.New("identity client id is required")
	}

	if c.Identity.IssuerURL == "" && c.Identity.TokenURL == "" {
		return errors.New("either identity issuer URL or token URL is required")
	}

	if c.Identity.MinValidity < 0 {
		return errors.New("identity min validity must not be negative")
	}

	if c.Identity.RefreshTimeout <= 0 {
		return errors.New("identity refresh timeout must be positive")
	}

	if c.Loader.ProximityThreshold < 0 {
		return errors.New("loader proximity threshold must not be negative")
	}

	switch c.Session.SameSite {
	case "strict", "lax", "none":
	default:
		return fmt.Errorf("unsupported session same-site mode: %s", c.Session.SameSite)
	}

	return nil
}

// ServerAddr is the listen address, bracketing IPv6 hosts.
func (c *Config) ServerAddr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsTLSEnabled reports whether both a certificate and a key are configured.
func (c *Config) IsTLSEnabled() bool {
	return c.Server.TLSCert != "" && c.Server.TLSKey != ""
}

// BatchSize returns the configured batch size for a list view, falling back
// to the loader default. Non-positive values are passed through so the loader
// can report them as configuration errors.
func (c *Config) BatchSize(view string) int {
	if size, ok := c.Loader.Views[view]; ok {
		return size
	}
	if c.Loader.DefaultBatchSize != 0 {
		return c.Loader.DefaultBatchSize
	}
	return DefaultBatchSize
}

// IsRedisConfigured reports whether a Redis URL is configured.
func (c *Config) IsRedisConfigured() bool {
	return c.Redis.URL != ""
}
