package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Token    TokenConfig
	CORS     CORSConfig
	Log      LogConfig
	Dispatch DispatchConfig
	SendGrid SendGridConfig
	Mail     MailConfig
	Metrics  MetricsConfig
	Docs     DocsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// TokenConfig configures the API tokens issued by POST /token/.
type TokenConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// DispatchConfig schedules the notification delivery jobs.
type DispatchConfig struct {
	Enabled bool
	// Cron specs, robfig/cron syntax with descriptors ("@every 5m", "@weekly").
	AssignmentSchedule string
	ProjectSchedule    string
	ReminderSchedule   string
	MailQueueSchedule  string
	CleanupSchedule    string
	Timezone           string

	BatchSize    int
	SendCooldown time.Duration
	LockTTL      time.Duration

	AutumnStartMonth int
	SpringStartMonth int
}

// SendGridConfig configures the provider used by the generic mail queue.
type SendGridConfig struct {
	APIKey        string
	FromEmail     string
	FromName      string
	SubjectPrefix string
}

// MailConfig controls how per-site SMTP delivery behaves.
type MailConfig struct {
	DefaultSiteID string
	// Console logs messages instead of sending them. Development only.
	Console bool
	// SiteCacheTTL bounds how long a resolved site configuration is reused.
	SiteCacheTTL time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// DocsConfig toggles the Swagger UI.
type DocsConfig struct {
	Enabled bool
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Token = TokenConfig{
		Secret:     v.GetString("TOKEN_SECRET"),
		Expiration: parseDuration(v.GetString("TOKEN_EXPIRATION"), 30*24*time.Hour),
		Issuer:     v.GetString("TOKEN_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Dispatch = DispatchConfig{
		Enabled:            v.GetBool("ENABLE_DISPATCH"),
		AssignmentSchedule: v.GetString("DISPATCH_ASSIGNMENT_SCHEDULE"),
		ProjectSchedule:    v.GetString("DISPATCH_PROJECT_SCHEDULE"),
		ReminderSchedule:   v.GetString("DISPATCH_REMINDER_SCHEDULE"),
		MailQueueSchedule:  v.GetString("DISPATCH_MAIL_QUEUE_SCHEDULE"),
		CleanupSchedule:    v.GetString("DISPATCH_CLEANUP_SCHEDULE"),
		Timezone:           v.GetString("DISPATCH_TIMEZONE"),
		BatchSize:          v.GetInt("DISPATCH_BATCH_SIZE"),
		SendCooldown:       parseDuration(v.GetString("DISPATCH_SEND_COOLDOWN"), 500*time.Millisecond),
		LockTTL:            parseDuration(v.GetString("DISPATCH_LOCK_TTL"), 10*time.Minute),
		AutumnStartMonth:   v.GetInt("SEMESTER_AUTUMN_START_MONTH"),
		SpringStartMonth:   v.GetInt("SEMESTER_SPRING_START_MONTH"),
	}

	cfg.SendGrid = SendGridConfig{
		APIKey:        v.GetString("SENDGRID_API_KEY"),
		FromEmail:     v.GetString("SENDGRID_FROM_EMAIL"),
		FromName:      v.GetString("SENDGRID_FROM_NAME"),
		SubjectPrefix: v.GetString("SENDGRID_SUBJECT_PREFIX"),
	}

	cfg.Mail = MailConfig{
		DefaultSiteID: v.GetString("MAIL_DEFAULT_SITE_ID"),
		Console:       v.GetBool("MAIL_CONSOLE"),
		SiteCacheTTL:  parseDuration(v.GetString("MAIL_SITE_CACHE_TTL"), 10*time.Minute),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}
	cfg.Docs = DocsConfig{Enabled: v.GetBool("ENABLE_DOCS")}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "lms")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("TOKEN_SECRET", "dev_secret")
	v.SetDefault("TOKEN_EXPIRATION", "720h")
	v.SetDefault("TOKEN_ISSUER", "lms-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_DISPATCH", false)
	v.SetDefault("DISPATCH_ASSIGNMENT_SCHEDULE", "@every 5m")
	v.SetDefault("DISPATCH_PROJECT_SCHEDULE", "@every 5m")
	v.SetDefault("DISPATCH_REMINDER_SCHEDULE", "0 9 * * *")
	v.SetDefault("DISPATCH_MAIL_QUEUE_SCHEDULE", "@every 1m")
	v.SetDefault("DISPATCH_CLEANUP_SCHEDULE", "@weekly")
	v.SetDefault("DISPATCH_TIMEZONE", "UTC")
	v.SetDefault("DISPATCH_BATCH_SIZE", 200)
	v.SetDefault("DISPATCH_SEND_COOLDOWN", "500ms")
	v.SetDefault("DISPATCH_LOCK_TTL", "10m")
	v.SetDefault("SEMESTER_AUTUMN_START_MONTH", 9)
	v.SetDefault("SEMESTER_SPRING_START_MONTH", 1)

	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_FROM_EMAIL", "noreply@lms.local")
	v.SetDefault("SENDGRID_FROM_NAME", "LMS")
	v.SetDefault("SENDGRID_SUBJECT_PREFIX", "[LMS] ")

	v.SetDefault("MAIL_DEFAULT_SITE_ID", "")
	v.SetDefault("MAIL_CONSOLE", false)
	v.SetDefault("MAIL_SITE_CACHE_TTL", "10m")

	v.SetDefault("ENABLE_METRICS", true)
	v.SetDefault("ENABLE_DOCS", true)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
