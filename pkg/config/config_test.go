package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 24*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, "refresh_token:", cfg.Redis.KeyPrefix)
	assert.True(t, cfg.Database.AutoMigrate)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("JWT_SECRET", "override")
	t.Setenv("JWT_EXPIRATION", "5m")
	t.Setenv("REFRESH_TOKEN_EXPIRATION", "2h")
	t.Setenv("API_PREFIX", "/api/v1/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/tasks?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "override", cfg.JWT.Secret)
	assert.Equal(t, 5*time.Minute, cfg.JWT.Expiration)
	assert.Equal(t, 2*time.Hour, cfg.JWT.RefreshExpiration)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, "postgres://u:p@db:5432/tasks?sslmode=disable", cfg.Database.DSN())
}

func TestLoadFallsBackOnBadDuration(t *testing.T) {
	t.Setenv("JWT_EXPIRATION", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, cfg.JWT.Expiration)
}

func TestDSNFromParts(t *testing.T) {
	db := DatabaseConfig{Host: "h", Port: 5433, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5433 user=u password=p dbname=n sslmode=disable", db.DSN())
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Env:      EnvDevelopment,
			JWT:      JWTConfig{Secret: "s", Expiration: time.Minute, RefreshExpiration: time.Hour},
			Password: PasswordConfig{BcryptCost: 10},
		}
	}

	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty secret", func(c *Config) { c.JWT.Secret = "" }},
		{"dev secret in production", func(c *Config) { c.Env = EnvProduction; c.JWT.Secret = devJWTSecret }},
		{"zero access ttl", func(c *Config) { c.JWT.Expiration = 0 }},
		{"negative refresh ttl", func(c *Config) { c.JWT.RefreshExpiration = -time.Second }},
		{"bcrypt cost too high", func(c *Config) { c.Password.BcryptCost = 99 }},
	}

	require.NoError(t, base().Validate())
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
