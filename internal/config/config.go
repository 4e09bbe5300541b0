package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration required by the API process.
// All values come from env; a .env file in the working directory is loaded first when present
// and never overrides variables already set.
// No business logic should depend on raw environment variables.
type Config struct {
	App      AppConfig
	DB       DBConfig
	Redis    RedisConfig
	Auth     AuthConfig
	Billing  BillingConfig
	Ingest   IngestConfig
	Realtime RealtimeConfig
}

type AppConfig struct {
	Env  string
	Port int
	// LogLevel overrides the env-derived level: debug, info, warn or error.
	LogLevel string
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string

	// AutoMigrate applies embedded migrations at startup.
	AutoMigrate bool

	// Pool sizing. Zero keeps the pool defaults in pkg/utils.
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// DevLogin enables POST /v1/auth/login, which issues tokens without a password.
	// Refused in production.
	DevLogin bool
}

// BillingConfig is the coin rate card used for estimates and the pre-call check.
type BillingConfig struct {
	RateVoiceCoins     int64
	RateVideoCoins     int64
	MinBillableSeconds int
}

// IngestConfig sizes the dedup state of the server ingest path.
type IngestConfig struct {
	SeenCapacity int
	SeenTTL      time.Duration
	// ClaimTTL is how long a transaction id stays claimed in Redis across instances.
	ClaimTTL time.Duration
}

type RealtimeConfig struct {
	// AllowedOrigins for websocket upgrades. Empty allows same-origin only.
	AllowedOrigins []string
	// SessionSeenCapacity bounds the seen-set of one websocket connection.
	SessionSeenCapacity int
	// SyncLimit is how many recent transactions a sync request replays.
	SyncLimit int
	// MaxConnsPerUser caps open websocket connections per user across instances.
	MaxConnsPerUser int
}

func Load() (Config, error) {
	// Missing .env is normal outside local development.
	_ = godotenv.Load()

	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	c.App.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))
	c.DB.AutoMigrate = optionalBool("DB_AUTO_MIGRATE")
	{
		n, err := optionalInt("DB_MAX_OPEN_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxOpenConns = n
	}
	{
		n, err := optionalInt("DB_MAX_IDLE_CONNS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.MaxIdleConns = n
	}
	c.DB.ConnMaxLifetime = mustDuration("DB_CONN_MAX_LIFETIME")
	c.DB.ConnMaxIdleTime = mustDuration("DB_CONN_MAX_IDLE_TIME")

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")

	c.Auth.DevLogin = optionalBool("AUTH_DEV_LOGIN")

	{
		n, err := optionalInt("RATE_VOICE_COINS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Billing.RateVoiceCoins = int64(n)
	}
	{
		n, err := optionalInt("RATE_VIDEO_COINS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Billing.RateVideoCoins = int64(n)
	}
	{
		n, err := optionalInt("MIN_BILLABLE_SECONDS")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Billing.MinBillableSeconds = n
	}

	{
		n, err := optionalInt("SEEN_CAPACITY")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Ingest.SeenCapacity = n
	}
	c.Ingest.SeenTTL = mustDuration("SEEN_TTL")
	c.Ingest.ClaimTTL = mustDuration("CLAIM_TTL")

	c.Realtime.AllowedOrigins = splitList(os.Getenv("WS_ALLOWED_ORIGINS"))
	{
		n, err := optionalInt("WS_SEEN_CAPACITY")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Realtime.SessionSeenCapacity = n
	}
	{
		n, err := optionalInt("WS_SYNC_LIMIT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Realtime.SyncLimit = n
	}
	{
		n, err := optionalInt("WS_MAX_CONNS_PER_USER")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Realtime.MaxConnsPerUser = n
	}

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports every problem at once and fills defaults for optional values.
func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}
	switch c.App.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error, got %q", c.App.LogLevel))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			// Allowed values are enforced below.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}
	if c.DB.MaxOpenConns < 0 || c.DB.MaxIdleConns < 0 {
		errs = append(errs, errors.New("DB_MAX_OPEN_CONNS and DB_MAX_IDLE_CONNS must not be negative"))
	}
	if c.DB.MaxOpenConns > 0 && c.DB.MaxIdleConns > c.DB.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) must not exceed DB_MAX_OPEN_CONNS (%d)", c.DB.MaxIdleConns, c.DB.MaxOpenConns))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		// Default: short-lived access tokens.
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		// Default: longer-lived refresh tokens.
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}
	if c.Auth.DevLogin && c.IsProduction() {
		errs = append(errs, errors.New("AUTH_DEV_LOGIN must not be enabled in production"))
	}

	if c.Billing.RateVoiceCoins < 0 || c.Billing.RateVideoCoins < 0 {
		errs = append(errs, errors.New("RATE_VOICE_COINS and RATE_VIDEO_COINS must not be negative"))
	}
	if c.Billing.RateVoiceCoins == 0 {
		c.Billing.RateVoiceCoins = 20
	}
	if c.Billing.RateVideoCoins == 0 {
		c.Billing.RateVideoCoins = 40
	}
	if c.Billing.MinBillableSeconds < 0 {
		errs = append(errs, fmt.Errorf("MIN_BILLABLE_SECONDS must not be negative, got %d", c.Billing.MinBillableSeconds))
	}

	if c.Ingest.SeenCapacity < 0 {
		errs = append(errs, fmt.Errorf("SEEN_CAPACITY must not be negative, got %d", c.Ingest.SeenCapacity))
	}
	if c.Ingest.SeenCapacity == 0 {
		c.Ingest.SeenCapacity = 100_000
	}
	if c.Ingest.SeenTTL <= 0 {
		c.Ingest.SeenTTL = 24 * time.Hour
	}
	if c.Ingest.ClaimTTL <= 0 {
		c.Ingest.ClaimTTL = 24 * time.Hour
	}

	if c.Realtime.SessionSeenCapacity <= 0 {
		c.Realtime.SessionSeenCapacity = 2_000
	}
	if c.Realtime.SyncLimit <= 0 {
		c.Realtime.SyncLimit = 50
	}
	if c.Realtime.MaxConnsPerUser <= 0 {
		c.Realtime.MaxConnsPerUser = 5
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalBool(key string) bool {
	b, _ := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	return b
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
