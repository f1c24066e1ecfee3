package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port            string        `mapstructure:"PORT"`
	Env             string        `mapstructure:"ENV"`
	DatabaseURL     string        `mapstructure:"DATABASE_URL"`
	DBMaxConns      int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns      int32         `mapstructure:"DB_MIN_CONNS"`
	JWTSecret       string        `mapstructure:"JWT_SECRET"`
	AuthIssuer      string        `mapstructure:"AUTH_ISSUER"`
	AuthTokenTTL    time.Duration `mapstructure:"AUTH_TOKEN_TTL"`
	AdminEmail      string        `mapstructure:"ADMIN_EMAIL"`
	CORSOrigins     []string      `mapstructure:"CORS_ORIGINS"`
	MountPrefixes   []string      `mapstructure:"MOUNT_PREFIXES"`
	PresenceWindow  time.Duration `mapstructure:"PRESENCE_WINDOW"`
	VideoBaseURL    string        `mapstructure:"VIDEO_BASE_URL"`
	MevoBaseURL     string        `mapstructure:"MEVO_BASE_URL"`
	MevoAPIKey      string        `mapstructure:"MEVO_API_KEY"`
	MevoCallbackURL string        `mapstructure:"MEVO_CALLBACK_URL"`
	TokenRevocation bool          `mapstructure:"TOKEN_REVOCATION"`
	RedisURL        string        `mapstructure:"REDIS_URL"`
	RateLimitRPS    float64       `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int           `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 1)
	v.SetDefault("AUTH_ISSUER", "clinic-api")
	v.SetDefault("AUTH_TOKEN_TTL", "168h")
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("MOUNT_PREFIXES", "/.netlify/functions/api,/api")
	v.SetDefault("PRESENCE_WINDOW", "120s")
	v.SetDefault("VIDEO_BASE_URL", "https://meet.jit.si")
	v.SetDefault("TOKEN_REVOCATION", false)
	v.SetDefault("RATE_LIMIT_RPS", 5)
	v.SetDefault("RATE_LIMIT_BURST", 20)

	for _, key := range []string{
		"PORT", "ENV", "DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS",
		"JWT_SECRET", "AUTH_ISSUER", "AUTH_TOKEN_TTL", "ADMIN_EMAIL",
		"CORS_ORIGINS", "MOUNT_PREFIXES", "PRESENCE_WINDOW", "VIDEO_BASE_URL",
		"MEVO_BASE_URL", "MEVO_API_KEY", "MEVO_CALLBACK_URL",
		"TOKEN_REVOCATION", "REDIS_URL", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		v.BindEnv(key)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		cfg.CORSOrigins = splitList(v.GetString("CORS_ORIGINS"))
	}
	if len(cfg.MountPrefixes) <= 1 {
		cfg.MountPrefixes = splitList(v.GetString("MOUNT_PREFIXES"))
	}
	cfg.AdminEmail = strings.ToLower(strings.TrimSpace(cfg.AdminEmail))

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() && cfg.JWTSecret == "" {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: JWT_SECRET is not set; a random signing key is generated.")
		log.Println("WARNING: Sessions will not survive a restart.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration is safe to run. Outside development
// JWT_SECRET must be set and long enough for HS256.
func (c *Config) Validate() error {
	if !c.IsDev() && c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required when ENV=%q", c.Env)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < 32 {
		return fmt.Errorf("JWT_SECRET must be at least 32 bytes, got %d", len(c.JWTSecret))
	}
	if c.AuthTokenTTL <= 0 {
		return fmt.Errorf("AUTH_TOKEN_TTL must be positive, got %s", c.AuthTokenTTL)
	}
	if c.PresenceWindow <= 0 {
		return fmt.Errorf("PRESENCE_WINDOW must be positive, got %s", c.PresenceWindow)
	}
	if c.AuthIssuer == "" {
		return fmt.Errorf("AUTH_ISSUER must not be empty")
	}
	if c.RedisURL != "" && !c.TokenRevocation {
		log.Println("WARNING: REDIS_URL is set but TOKEN_REVOCATION is disabled; Redis will not be used")
	}
	return nil
}
