package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	apperrors "agency-platform/pkg/errors"
)

const (
	envAppEnv                = "APP_ENV"
	envServiceName           = "SERVICE_NAME"
	envLogLevel              = "LOG_LEVEL"
	envPort                  = "PORT"
	envServerReadTimeout     = "SERVER_READ_TIMEOUT"
	envServerWriteTimeout    = "SERVER_WRITE_TIMEOUT"
	envServerShutdownTimeout = "SERVER_SHUTDOWN_TIMEOUT"
	envBaseDomain            = "BASE_DOMAIN"
	envDBHost                = "DB_HOST"
	envDBPort                = "DB_PORT"
	envDBName                = "DB_NAME"
	envDBUser                = "DB_USER"
	envDBPassword            = "DB_PASSWORD"
	envDBSSLMode             = "DB_SSL_MODE"
	envDBMaxConns            = "DB_MAX_CONNS"
	envDBMinConns            = "DB_MIN_CONNS"
	envRedisAddr             = "REDIS_ADDR"
	envRedisPassword         = "REDIS_PASSWORD"
	envRedisDB               = "REDIS_DB"
	envJWTSecret             = "JWT_SECRET"
	envJWTAccessTTL          = "JWT_ACCESS_TTL"
	envJWTRefreshTTL         = "JWT_REFRESH_TTL"
	envPasswordResetTTL      = "PASSWORD_RESET_TTL"
	envBcryptCost            = "BCRYPT_COST"
	envTenantCacheTTL        = "TENANT_CACHE_TTL"
	envStoreTimeout          = "STORE_TIMEOUT"
	envMailProvider          = "MAIL_PROVIDER"
	envMailAPIKey            = "MAIL_API_KEY"
	envMailFrom              = "MAIL_FROM"
	envMailResetURL          = "MAIL_RESET_URL"

	envRateLimitPrefix    = "RATE_LIMIT_"
	envRateLimitWindowSfx = "_WINDOW"
	envRateLimitMaxSfx    = "_MAX"
)

const (
	defaultAppEnv             = "development"
	defaultServiceName        = "agency-platform"
	defaultLogLevel           = "info"
	defaultServerPort         = "8080"
	defaultServerReadTimeout  = 10 * time.Second
	defaultServerWriteTimeout = 10 * time.Second
	defaultServerShutdown     = 10 * time.Second
	defaultBaseDomain         = "localhost"
	defaultDBHost             = "localhost"
	defaultDBPort             = 5432
	defaultDBName             = "agencyplatform"
	defaultDBUser             = "agencyplatform_app"
	defaultDBSSLMode          = "disable"
	defaultDBMaxConns         = 25
	defaultDBMinConns         = 5
	defaultRedisDB            = 0
	defaultAccessTTL          = 7 * 24 * time.Hour
	defaultRefreshTTL         = 30 * 24 * time.Hour
	defaultPasswordResetTTL   = time.Hour
	defaultBcryptCost         = 12
	defaultTenantCacheTTL     = 30 * time.Second
	defaultStoreTimeout       = 2 * time.Second
	defaultMailResetURL       = "http://localhost:3000/reset-password"
	defaultMailFrom           = "no-reply@agency-platform.local"

	minJWTSecretLength       = 32
	minUniqueCharsInSecret   = 16
	minRepeatedCharThreshold = 4
	maxRepeatedChars         = 2
	hoursPerDay              = 24
	daySuffix                = "d"
)

// Rate limit policy names. The values double as the env var segment, e.g.
// RATE_LIMIT_AUTH_MAX.
const (
	PolicyDefault  = "default"
	PolicyAuth     = "auth"
	PolicyUpload   = "upload"
	PolicyTenant   = "tenant"
	PolicyOperator = "operator"
	// PolicyPasswordReset guards reset-link requests. Every hit counts.
	PolicyPasswordReset = "password_reset"
)

type Config struct {
	App       AppConfig
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Tenant    TenantConfig
	Mail      MailConfig
}

type AppConfig struct {
	Environment string
	ServiceName string
	LogLevel    string
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	BaseDomain      string
}

type DatabaseConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig is optional. An empty Addr selects the in-process stores.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

type AuthConfig struct {
	Secret           string
	AccessTTL        time.Duration
	RefreshTTL       time.Duration
	PasswordResetTTL time.Duration
	BcryptCost       int
}

type RateLimitRule struct {
	Window time.Duration
	Max    int
}

type RateLimitConfig struct {
	Policies map[string]RateLimitRule
}

type TenantConfig struct {
	CacheTTL     time.Duration
	StoreTimeout time.Duration
}

type MailConfig struct {
	Provider string
	APIKey   string
	From     string
	ResetURL string
}

// DefaultRateLimits returns the built-in policy table.
func DefaultRateLimits() map[string]RateLimitRule {
	return map[string]RateLimitRule{
		PolicyDefault:  {Window: 15 * time.Minute, Max: 100},
		PolicyAuth:     {Window: 15 * time.Minute, Max: 5},
		PolicyUpload:   {Window: time.Minute, Max: 10},
		PolicyTenant:   {Window: 15 * time.Minute, Max: 100},
		PolicyOperator: {Window: 15 * time.Minute, Max: 500},

		PolicyPasswordReset: {Window: time.Hour, Max: 5},
	}
}

// Load reads configuration from the environment. A missing or weak signing
// secret is reported as an error wrapping errors.ErrConfig.
func Load() (*Config, error) {
	cfg := &Config{
		App: AppConfig{
			Environment: getEnv(envAppEnv, defaultAppEnv),
			ServiceName: getEnv(envServiceName, defaultServiceName),
			LogLevel:    getEnv(envLogLevel, defaultLogLevel),
		},
		Server: ServerConfig{
			Port:            getEnv(envPort, defaultServerPort),
			ReadTimeout:     getDurationEnv(envServerReadTimeout, defaultServerReadTimeout),
			WriteTimeout:    getDurationEnv(envServerWriteTimeout, defaultServerWriteTimeout),
			ShutdownTimeout: getDurationEnv(envServerShutdownTimeout, defaultServerShutdown),
			BaseDomain:      getEnv(envBaseDomain, defaultBaseDomain),
		},
		Database: DatabaseConfig{
			Host:     getEnv(envDBHost, defaultDBHost),
			Port:     getIntEnv(envDBPort, defaultDBPort),
			Database: getEnv(envDBName, defaultDBName),
			User:     getEnv(envDBUser, defaultDBUser),
			Password: os.Getenv(envDBPassword),
			SSLMode:  getEnv(envDBSSLMode, defaultDBSSLMode),
			MaxConns: getIntEnv(envDBMaxConns, defaultDBMaxConns),
			MinConns: getIntEnv(envDBMinConns, defaultDBMinConns),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv(envRedisAddr),
			Password: os.Getenv(envRedisPassword),
			DB:       getIntEnv(envRedisDB, defaultRedisDB),
		},
		Auth: AuthConfig{
			Secret:           os.Getenv(envJWTSecret),
			AccessTTL:        getDurationEnv(envJWTAccessTTL, defaultAccessTTL),
			RefreshTTL:       getDurationEnv(envJWTRefreshTTL, defaultRefreshTTL),
			PasswordResetTTL: getDurationEnv(envPasswordResetTTL, defaultPasswordResetTTL),
			BcryptCost:       getIntEnv(envBcryptCost, defaultBcryptCost),
		},
		RateLimit: RateLimitConfig{Policies: loadRateLimits()},
		Tenant: TenantConfig{
			CacheTTL:     getDurationEnv(envTenantCacheTTL, defaultTenantCacheTTL),
			StoreTimeout: getDurationEnv(envStoreTimeout, defaultStoreTimeout),
		},
		Mail: MailConfig{
			Provider: os.Getenv(envMailProvider),
			APIKey:   os.Getenv(envMailAPIKey),
			From:     getEnv(envMailFrom, defaultMailFrom),
			ResetURL: getEnv(envMailResetURL, defaultMailResetURL),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func loadRateLimits() map[string]RateLimitRule {
	policies := DefaultRateLimits()
	for name, rule := range policies {
		prefix := envRateLimitPrefix + strings.ToUpper(name)
		rule.Window = getDurationEnv(prefix+envRateLimitWindowSfx, rule.Window)
		rule.Max = getIntEnv(prefix+envRateLimitMaxSfx, rule.Max)
		policies[name] = rule
	}
	return policies
}

func (c *Config) Validate() error {
	if err := c.validate(); err != nil {
		return fmt.Errorf("%w: %s", apperrors.ErrConfig, err.Error())
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port == "" {
		return errors.New(messages.required(envPort))
	}

	if c.Database.Password == "" {
		return errors.New(messages.required(envDBPassword))
	}

	if c.Auth.Secret == "" {
		return errors.New(messages.required(envJWTSecret))
	}

	if len(c.Auth.Secret) < minJWTSecretLength {
		return errors.New(messages.secretTooShort(envJWTSecret, minJWTSecretLength))
	}

	if !hasMinimumEntropy(c.Auth.Secret) {
		return errors.New(messages.secretLowEntropy(envJWTSecret))
	}

	if c.Auth.AccessTTL <= 0 || c.Auth.RefreshTTL <= 0 || c.Auth.PasswordResetTTL <= 0 {
		return errors.New(messages.nonPositive("token lifetimes"))
	}

	if c.Auth.RefreshTTL < c.Auth.AccessTTL {
		return errors.New(errRefreshShorterThanAccess)
	}

	for name, rule := range c.RateLimit.Policies {
		if rule.Window <= 0 || rule.Max <= 0 {
			return errors.New(messages.nonPositive(envRateLimitPrefix + strings.ToUpper(name)))
		}
	}

	if c.Tenant.StoreTimeout <= 0 {
		return errors.New(messages.nonPositive(envStoreTimeout))
	}

	return nil
}

func hasMinimumEntropy(secret string) bool {
	if len(secret) < minJWTSecretLength {
		return false
	}

	charCounts := make(map[rune]int)
	for _, char := range secret {
		charCounts[char]++
	}

	if len(charCounts) < minUniqueCharsInSecret {
		return false
	}

	repeatedChars := 0
	for _, count := range charCounts {
		if count > len(secret)/minRepeatedCharThreshold {
			repeatedChars++
		}
	}

	return repeatedChars <= maxRepeatedChars
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getDurationEnv accepts Go durations ("15m"), day counts ("7d") and bare
// integers, which are read as minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if duration, err := time.ParseDuration(value); err == nil {
		return duration
	}
	if days, ok := strings.CutSuffix(value, daySuffix); ok {
		if n, err := strconv.Atoi(days); err == nil {
			return time.Duration(n) * hoursPerDay * time.Hour
		}
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	return defaultValue
}
