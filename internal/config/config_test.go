package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRequiresSecretKey(t *testing.T) {
	t.Setenv("SECRET_KEY", "")
	t.Setenv("DB_ADAPTER", "memory")
	_, err := New()
	require.Error(t, err)
}

func TestNewDefaults(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("DB_ADAPTER", "memory")
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, "8080", c.Port)
	require.Equal(t, 30*time.Minute, c.AccessTokenTTL)
	require.Equal(t, 7*24*time.Hour, c.RefreshTokenTTL)
	require.Equal(t, time.Hour, c.VerifyTokenTTL)
	require.Equal(t, 15*time.Minute, c.ResetTokenTTL)
	require.Equal(t, 5*time.Minute, c.ResendCooldown)
	require.Equal(t, time.Minute, c.ResetCooldown)
	require.Equal(t, 20, c.RateLimitRPS)
}

func TestNewParsesOverrides(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("ACCESS_TOKEN_TTL", "10m")
	t.Setenv("RESET_COOLDOWN", "90s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	c, err := New()
	require.NoError(t, err)
	require.Equal(t, 10*time.Minute, c.AccessTokenTTL)
	require.Equal(t, 90*time.Second, c.ResetCooldown)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
}

func TestNewRejectsBadDuration(t *testing.T) {
	t.Setenv("SECRET_KEY", "s3cr3t")
	t.Setenv("DB_ADAPTER", "memory")
	t.Setenv("ACCESS_TOKEN_TTL", "soon")
	_, err := New()
	require.Error(t, err)
}

func TestBuildPostgresDSN(t *testing.T) {
	c := &Config{
		PostgresHost:     "db.internal",
		PostgresPort:     "5433",
		PostgresUser:     "authd",
		PostgresPassword: "pw",
		PostgresDB:       "authd",
	}
	dsn, err := c.BuildPostgresDSN()
	require.NoError(t, err)
	require.Equal(t, "host=db.internal port=5433 user=authd dbname=authd sslmode=disable password=pw", dsn)

	c.PostgresDSN = "postgres://u:p@h/db"
	dsn, err = c.BuildPostgresDSN()
	require.NoError(t, err)
	require.Equal(t, "postgres://u:p@h/db", dsn)
}
