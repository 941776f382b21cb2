package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
)

type Config struct {
	Logs     LogConfig
	DB       PostgresConfig
	Stripe   StripeConfig
	Supabase SupabaseConfig
	Gemini   GeminiConfig
	Redis    RedisConfig
	Server   ServerConfig
}

type LogConfig struct {
	Style string
	Level string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Name     string
	// DSN overrides the individual fields when set (DATABASE_URL).
	DSN          string
	MaxOpenConns int
}

type StripeConfig struct {
	SecretKey           string
	WebhookSecret       string
	PriceIDMonthly      string
	PriceIDAnnual       string
	FrontendURL         string
	RetentionCouponID   string
	LegacyPlanInference bool
}

type SupabaseConfig struct {
	URL       string
	JWTSecret string
	Audience  string
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type RedisConfig struct {
	URL string
}

type ServerConfig struct {
	Addr         string
	Environment  string
	AllowOrigins []string
}

// Configured reports whether a Postgres backend has been configured.
func (c PostgresConfig) Configured() bool {
	return c.DSN != "" || c.URL != ""
}

// ConnString builds a lib/pq connection string.
func (c PostgresConfig) ConnString() string {
	if c.DSN != "" {
		return c.DSN
	}
	name := c.Name
	if name == "" {
		name = "postgres"
	}
	port := c.Port
	if port == "" {
		port = "5432"
	}
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=require",
		c.URL, port, c.Username, c.Password, name,
	)
}

// IsDevelopment returns true outside production.
func (c *Config) IsDevelopment() bool {
	return c.Server.Environment != "production"
}

// Validate checks the settings that production refuses to run without.
func (c *Config) Validate() error {
	if c.IsDevelopment() {
		return nil
	}
	var errs []error
	if !c.DB.Configured() {
		errs = append(errs, errors.New("DATABASE_URL or POSTGRES_URL is required in production"))
	}
	if c.Supabase.URL == "" && c.Supabase.JWTSecret == "" {
		errs = append(errs, errors.New("SUPABASE_URL or SUPABASE_JWT_SECRET is required in production"))
	}
	if c.Stripe.SecretKey != "" && c.Stripe.WebhookSecret == "" {
		errs = append(errs, errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set"))
	}
	return errors.Join(errs...)
}

func LoadConfig() (*Config, error) {
	cfg := &Config{
		Logs: LogConfig{
			Style: getEnv("LOG_STYLE", "text"),
			Level: getEnv("LOG_LEVEL", "info"),
		},
		DB: PostgresConfig{
			Username: os.Getenv("POSTGRES_USER"),
			Password: os.Getenv("POSTGRES_PWD"),
			URL:      os.Getenv("POSTGRES_URL"),
			Port:     os.Getenv("POSTGRES_PORT"),
			Name:     os.Getenv("POSTGRES_DB"),
			DSN:      os.Getenv("DATABASE_URL"),

			MaxOpenConns: getEnvInt("POSTGRES_MAX_CONNS", 10),
		},
		Stripe: StripeConfig{
			SecretKey:           os.Getenv("STRIPE_SECRET_KEY"),
			WebhookSecret:       os.Getenv("STRIPE_WEBHOOK_SECRET"),
			PriceIDMonthly:      os.Getenv("STRIPE_PRICE_MONTHLY"),
			PriceIDAnnual:       os.Getenv("STRIPE_PRICE_ANNUAL"),
			FrontendURL:         getEnv("FRONTEND_URL", "http://localhost:3000"),
			RetentionCouponID:   getEnv("STRIPE_RETENTION_COUPON", "RETENTION_30"),
			LegacyPlanInference: getEnvBool("STRIPE_LEGACY_PLAN_INFERENCE", false),
		},
		Supabase: SupabaseConfig{
			URL:       strings.TrimRight(os.Getenv("SUPABASE_URL"), "/"),
			JWTSecret: os.Getenv("SUPABASE_JWT_SECRET"),
			Audience:  getEnv("SUPABASE_JWT_AUDIENCE", "authenticated"),
		},
		Gemini: GeminiConfig{
			APIKey: os.Getenv("GEMINI_API_KEY"),
			Model:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Server: ServerConfig{
			Addr:         getEnv("SERVER_ADDR", "0.0.0.0:"+getEnv("PORT", "8080")),
			Environment:  getEnv("APP_ENV", "development"),
			AllowOrigins: splitList(getEnv("ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// NewLogger builds the process logger from LOG_STYLE (json|text) and LOG_LEVEL.
func NewLogger(c LogConfig) *slog.Logger {
	return NewLoggerTo(os.Stdout, c)
}

func NewLoggerTo(w io.Writer, c LogConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(c.Level)}
	if strings.EqualFold(c.Style, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		i, err := strconv.Atoi(val)
		if err == nil {
			return i
		}
	}
	return defaultVal
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
