package config

import (
	"fmt"
	"net"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	minJWTSecretLength = 32
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	JWTSecret              string
	JWTIssuer              string
	JWTAccessTTL           time.Duration
	JWTRefreshTTL          time.Duration
	JWTHeader              string
	JWTPrefix              string
	BlacklistSweepInterval time.Duration

	RevocationBackend string
	RateLimitBackend  string
	RedisURL          string

	CORSOrigins         []string
	TrustProxyHeaders   bool
	TrustedProxies      []string
	RateLimitRPM        int
	LoginRateLimitRPM   int
	RefreshRateLimitRPM int

	BcryptCost              int
	PasswordHashConcurrency int

	SeedAdminUsername string
	SeedAdminPassword string
	SeedCompanyName   string

	LogFormat string
	LogLevel  string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		DatabaseURL:             strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:              int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:              int32(getInt("DB_MIN_CONNS", 2)),
		JWTSecret:               strings.TrimSpace(os.Getenv("JWT_SECRET")),
		JWTIssuer:               getEnv("JWT_ISSUER", "go-business-hub"),
		JWTAccessTTL:            getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:           getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		JWTHeader:               getEnv("JWT_HEADER", "Authorization"),
		JWTPrefix:               getEnv("JWT_PREFIX", "Bearer"),
		BlacklistSweepInterval:  getDuration("BLACKLIST_SWEEP_INTERVAL", time.Hour),
		RevocationBackend:       strings.ToLower(getEnv("REVOCATION_BACKEND", BackendMemory)),
		RateLimitBackend:        strings.ToLower(getEnv("RATE_LIMIT_BACKEND", BackendMemory)),
		RedisURL:                strings.TrimSpace(os.Getenv("REDIS_URL")),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		TrustProxyHeaders:       getBool("TRUST_PROXY_HEADERS", false),
		TrustedProxies:          splitCSV(os.Getenv("TRUSTED_PROXIES")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 100),
		LoginRateLimitRPM:       getInt("LOGIN_RATE_LIMIT_RPM", 10),
		RefreshRateLimitRPM:     getInt("REFRESH_RATE_LIMIT_RPM", 20),
		BcryptCost:              getInt("BCRYPT_COST", 12),
		PasswordHashConcurrency: getInt("PASSWORD_HASH_CONCURRENCY", runtime.GOMAXPROCS(0)),
		SeedAdminUsername:       getEnv("SEED_ADMIN_USERNAME", "admin"),
		SeedAdminPassword:       getEnv("SEED_ADMIN_PASSWORD", "admin123"),
		SeedCompanyName:         getEnv("SEED_COMPANY_NAME", "Default Company"),
		LogFormat:               strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		LogLevel:                strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < minJWTSecretLength {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretLength)
	}

	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.JWTRefreshTTL < c.JWTAccessTTL {
		return fmt.Errorf("JWT_REFRESH_TTL must not be shorter than JWT_ACCESS_TTL")
	}

	if strings.TrimSpace(c.JWTHeader) == "" {
		return fmt.Errorf("JWT_HEADER cannot be empty")
	}

	if c.BlacklistSweepInterval <= 0 {
		return fmt.Errorf("BLACKLIST_SWEEP_INTERVAL must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.DBMaxConns < c.DBMinConns {
		return fmt.Errorf("DB_MAX_CONNS must be >= DB_MIN_CONNS")
	}

	for key, backend := range map[string]string{
		"REVOCATION_BACKEND": c.RevocationBackend,
		"RATE_LIMIT_BACKEND": c.RateLimitBackend,
	} {
		if backend != BackendMemory && backend != BackendRedis {
			return fmt.Errorf("%s must be %q or %q", key, BackendMemory, BackendRedis)
		}
		if backend == BackendRedis && c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when %s=redis", key)
		}
	}

	if c.TrustProxyHeaders && len(c.TrustedProxies) == 0 {
		return fmt.Errorf("TRUSTED_PROXIES is required when TRUST_PROXY_HEADERS=true")
	}

	for _, proxy := range c.TrustedProxies {
		if _, _, err := net.ParseCIDR(proxy); err == nil {
			continue
		}
		if net.ParseIP(proxy) == nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an IP or CIDR", proxy)
		}
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	if c.PasswordHashConcurrency <= 0 {
		return fmt.Errorf("PASSWORD_HASH_CONCURRENCY must be positive")
	}

	if strings.TrimSpace(c.SeedAdminUsername) == "" || c.SeedAdminPassword == "" {
		return fmt.Errorf("SEED_ADMIN_USERNAME and SEED_ADMIN_PASSWORD cannot be empty")
	}

	return nil
}

// UsesRedis reports whether any component needs a Redis connection.
func (c *Config) UsesRedis() bool {
	return c.RevocationBackend == BackendRedis || c.RateLimitBackend == BackendRedis
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
