package config

import (
	"fmt"
	"log"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port                  string   `mapstructure:"PORT"`
	Env                   string   `mapstructure:"ENV"`
	DatabaseURL           string   `mapstructure:"DATABASE_URL"`
	DBMaxConns            int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns            int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins           []string `mapstructure:"CORS_ORIGINS"`
	AuthJWTSecret         string   `mapstructure:"AUTH_JWT_SECRET"`
	DefaultServiceMinutes float64  `mapstructure:"DEFAULT_SERVICE_MINUTES"`
	NearTurnAhead         int      `mapstructure:"NEAR_TURN_AHEAD"`
	NearTurnMinutes       float64  `mapstructure:"NEAR_TURN_MINUTES"`
	InsightURL            string   `mapstructure:"INSIGHT_URL"`
	InsightTimeoutSecs    int      `mapstructure:"INSIGHT_TIMEOUT_SECS"`
	RateLimitRPS          float64  `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst        int      `mapstructure:"RATE_LIMIT_BURST"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 5)
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("DEFAULT_SERVICE_MINUTES", 7.5)
	v.SetDefault("NEAR_TURN_AHEAD", 3)
	v.SetDefault("NEAR_TURN_MINUTES", 10)
	v.SetDefault("INSIGHT_TIMEOUT_SECS", 10)
	v.SetDefault("RATE_LIMIT_RPS", 100)
	v.SetDefault("RATE_LIMIT_BURST", 200)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_JWT_SECRET")
	v.BindEnv("DEFAULT_SERVICE_MINUTES")
	v.BindEnv("NEAR_TURN_AHEAD")
	v.BindEnv("NEAR_TURN_MINUTES")
	v.BindEnv("INSIGHT_URL")
	v.BindEnv("INSIGHT_TIMEOUT_SECS")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: All requests are treated as admin. Do NOT use in production.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run. In production a JWT
// secret is required so that real authentication is enforced, and the
// prediction/notification thresholds must stay in sensible ranges.
func (c *Config) Validate() error {
	if c.IsProduction() && c.AuthJWTSecret == "" {
		return fmt.Errorf("AUTH_JWT_SECRET is required in production (ENV=%q)", c.Env)
	}
	if c.DefaultServiceMinutes <= 0 {
		return fmt.Errorf("DEFAULT_SERVICE_MINUTES must be positive, got %v", c.DefaultServiceMinutes)
	}
	if c.NearTurnAhead < 0 {
		return fmt.Errorf("NEAR_TURN_AHEAD must not be negative, got %d", c.NearTurnAhead)
	}
	if c.NearTurnMinutes < 0 {
		return fmt.Errorf("NEAR_TURN_MINUTES must not be negative, got %v", c.NearTurnMinutes)
	}
	if c.InsightTimeoutSecs <= 0 {
		return fmt.Errorf("INSIGHT_TIMEOUT_SECS must be positive, got %d", c.InsightTimeoutSecs)
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("DB_MIN_CONNS (%d) must not exceed DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	return nil
}
