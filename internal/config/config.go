package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port       string
	DBAdapter  string
	SQLiteFile string
	SecretKey  string
	// PostgreSQL connection settings
	PostgresDSN      string
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	// Token lifetimes
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	VerifyTokenTTL  time.Duration
	ResetTokenTTL   time.Duration
	// Cooldown windows for abusable email-sending actions
	ResendCooldown time.Duration
	ResetCooldown  time.Duration
	// Outbound email
	SMTPAddr       string
	FromEmail      string
	FrontendDomain string
	// HTTP surface
	AllowedOrigins []string
	RateLimitRPS   int
}

func getenv(key, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func getduration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %q", key, v)
	}
	return d, nil
}

// BuildPostgresDSN constructs a PostgreSQL DSN from individual components
// or returns the provided DSN.
func (c *Config) BuildPostgresDSN() (string, error) {
	if c.PostgresDSN != "" {
		return c.PostgresDSN, nil
	}

	if c.PostgresHost == "" {
		return "", errors.New("POSTGRES_HOST or POSTGRES_DSN must be set")
	}
	if c.PostgresUser == "" {
		return "", errors.New("POSTGRES_USER must be set")
	}
	if c.PostgresDB == "" {
		return "", errors.New("POSTGRES_DB must be set")
	}

	port := c.PostgresPort
	if port == "" {
		port = "5432"
	}

	sslMode := c.PostgresSSLMode
	if sslMode == "" {
		sslMode = "disable"
	}

	dsn := fmt.Sprintf("host=%s port=%s user=%s dbname=%s sslmode=%s",
		c.PostgresHost, port, c.PostgresUser, c.PostgresDB, sslMode)

	if c.PostgresPassword != "" {
		dsn += " password=" + c.PostgresPassword
	}

	return dsn, nil
}

func New() (*Config, error) {
	c := &Config{
		Port:       getenv("PORT", "8080"),
		DBAdapter:  getenv("DB_ADAPTER", "postgres"),
		SQLiteFile: getenv("SQLITE_FILE", "./data/authd.db"),
		SecretKey:  os.Getenv("SECRET_KEY"),
		// PostgreSQL settings
		PostgresDSN:      getenv("POSTGRES_DSN", ""),
		PostgresHost:     getenv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getenv("POSTGRES_PORT", "5432"),
		PostgresUser:     getenv("POSTGRES_USER", "authd"),
		PostgresPassword: getenv("POSTGRES_PASSWORD", ""),
		PostgresDB:       getenv("POSTGRES_DB", "authd"),
		PostgresSSLMode:  getenv("POSTGRES_SSLMODE", "disable"),
		// Outbound email
		SMTPAddr:       getenv("SMTP_ADDR", ""),
		FromEmail:      getenv("FROM_EMAIL", "no-reply@localhost"),
		FrontendDomain: getenv("FRONTEND_DOMAIN", "http://localhost:3000"),
	}

	// The signing secret is process-wide state loaded exactly once; refusing
	// to start without it beats failing on the first mint call.
	if c.SecretKey == "" {
		return nil, errors.New("SECRET_KEY must be set")
	}

	var err error
	if c.AccessTokenTTL, err = getduration("ACCESS_TOKEN_TTL", 30*time.Minute); err != nil {
		return nil, err
	}
	if c.RefreshTokenTTL, err = getduration("REFRESH_TOKEN_TTL", 7*24*time.Hour); err != nil {
		return nil, err
	}
	if c.VerifyTokenTTL, err = getduration("VERIFY_TOKEN_TTL", time.Hour); err != nil {
		return nil, err
	}
	if c.ResetTokenTTL, err = getduration("RESET_TOKEN_TTL", 15*time.Minute); err != nil {
		return nil, err
	}
	if c.ResendCooldown, err = getduration("RESEND_COOLDOWN", 5*time.Minute); err != nil {
		return nil, err
	}
	if c.ResetCooldown, err = getduration("RESET_COOLDOWN", time.Minute); err != nil {
		return nil, err
	}

	if origins := getenv("ALLOWED_ORIGINS", ""); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				c.AllowedOrigins = append(c.AllowedOrigins, o)
			}
		}
	}

	rps := getenv("RATE_LIMIT_RPS", "20")
	n, err := strconv.Atoi(rps)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("invalid RATE_LIMIT_RPS: %s", rps)
	}
	c.RateLimitRPS = n

	// Validate PostgreSQL configuration if using postgres
	if c.DBAdapter == "postgres" {
		dsn, err := c.BuildPostgresDSN()
		if err != nil {
			return nil, fmt.Errorf("postgres configuration error: %w", err)
		}
		c.PostgresDSN = dsn
	}

	if c.DBAdapter == "sqlite" && c.SQLiteFile == "" {
		return nil, errors.New("SQLITE_FILE must be set when DB_ADAPTER=sqlite")
	}

	if _, err := strconv.Atoi(c.Port); err != nil {
		return nil, fmt.Errorf("invalid PORT: %s", c.Port)
	}

	return c, nil
}
