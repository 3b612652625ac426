package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Redis    RedisConfig
	Server   ServerConfig
	Admin    AdminConfig
	Delivery DeliveryConfig
	Policy   PolicyConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type AdminConfig struct {
	JWTSecret   string
	TokenExpiry time.Duration
}

type DeliveryConfig struct {
	AWSRegion   string
	FromAddress string
	TOTPIssuer  string
}

// PolicyConfig carries the abuse-prevention thresholds. The defaults are the
// production policy; tests override individual knobs.
type PolicyConfig struct {
	MaxFailedLogins    int           // consecutive failures before an account lock
	AccountLockFor     time.Duration // length of a threshold-induced lock
	IPFailureThreshold int           // strikes within IPWindow before an address block
	IPWindow           time.Duration
	CodeTTL            time.Duration
	MinResponseMs      int // response-time floor for denied logins
	ResponseJitterMs   int
	CleanupInterval    time.Duration
	AttemptRetention   time.Duration // how long raw login attempts are kept
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	jwtSecret := getEnv("ADMIN_JWT_SECRET", "")
	if jwtSecret == "" {
		return nil, fmt.Errorf("ADMIN_JWT_SECRET is required")
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "aegis"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: parseList(getEnv("TRUSTED_PROXIES", "")),
		},
		Admin: AdminConfig{
			JWTSecret:   jwtSecret,
			TokenExpiry: getEnvAsDuration("ADMIN_TOKEN_EXPIRY", 15*time.Minute),
		},
		Delivery: DeliveryConfig{
			AWSRegion:   getEnv("AWS_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM_ADDRESS", "no-reply@aegis.local"),
			TOTPIssuer:  getEnv("TOTP_ISSUER", "aegis"),
		},
		Policy: PolicyConfig{
			MaxFailedLogins:    getEnvAsInt("MAX_FAILED_LOGINS", 5),
			AccountLockFor:     getEnvAsDuration("ACCOUNT_LOCK_DURATION", 30*time.Minute),
			IPFailureThreshold: getEnvAsInt("IP_FAILURE_THRESHOLD", 10),
			IPWindow:           getEnvAsDuration("IP_FAILURE_WINDOW", 15*time.Minute),
			CodeTTL:            getEnvAsDuration("CODE_TTL", 10*time.Minute),
			MinResponseMs:      getEnvAsInt("MIN_RESPONSE_MS", 250),
			ResponseJitterMs:   getEnvAsInt("RESPONSE_JITTER_MS", 100),
			CleanupInterval:    getEnvAsDuration("CLEANUP_INTERVAL", 1*time.Hour),
			AttemptRetention:   getEnvAsDuration("ATTEMPT_RETENTION", 30*24*time.Hour),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateJWTSecret(jwtSecret, env); err != nil {
		return nil, err
	}

	if cfg.Policy.MaxFailedLogins < 1 {
		return nil, fmt.Errorf("MAX_FAILED_LOGINS must be at least 1")
	}
	if cfg.Policy.IPFailureThreshold < cfg.Policy.MaxFailedLogins {
		// An address must survive at least one full account lockout cycle,
		// otherwise a single mistyped password chain blocks the office NAT.
		return nil, fmt.Errorf("IP_FAILURE_THRESHOLD must not be lower than MAX_FAILED_LOGINS")
	}

	return cfg, nil
}

// validateJWTSecret enforces minimum security standards for the admin secret
func validateJWTSecret(secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("ADMIN_JWT_SECRET must be at least %d characters in %s environment (got %d)",
			minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}

	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("ADMIN_JWT_SECRET cannot be a common weak value")
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	for i, p := range parts {
		parts[i] = strings.TrimSpace(p)
	}
	return parts
}
