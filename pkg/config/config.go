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

	Database     DatabaseConfig
	Redis        RedisConfig
	JWT          JWTConfig
	CORS         CORSConfig
	Log          LogConfig
	GitHub       GitHubConfig
	Provisioning ProvisioningConfig
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
	Enabled     bool
	Host        string
	Port        int
	Password    string
	DB          int
	PoolSize    int
	DialTimeout time.Duration
}

type JWTConfig struct {
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

// GitHubConfig configures the repository hosting gateway.
type GitHubConfig struct {
	Token         string
	Org           string
	APIURL        string
	Host          string
	WebhookURL    string
	WebhookSecret string
	StaffTeam     string
	AdminTeam     string
	RateLimit     float64
	RateBurst     int
	MaxRetries    int
	RetryBackoff  time.Duration
	TeamCacheTTL  time.Duration
	CloneDir      string
}

// ProvisioningConfig tunes the progression and bulk provisioning services.
type ProvisioningConfig struct {
	SeedRepoURL    string
	SeedRepoPath   string
	GradeToAdvance float64
	Concurrency    int
	SubjectTimeout time.Duration
	AsyncWorkers   int
	AsyncRetries   int
	JobStateTTL    time.Duration
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

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
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
		Enabled:     v.GetBool("REDIS_ENABLED"),
		Host:        v.GetString("REDIS_HOST"),
		Port:        v.GetInt("REDIS_PORT"),
		Password:    v.GetString("REDIS_PASSWORD"),
		DB:          v.GetInt("REDIS_DB"),
		PoolSize:    v.GetInt("REDIS_POOL_SIZE"),
		DialTimeout: parseDuration(v.GetString("REDIS_DIAL_TIMEOUT"), 2*time.Second),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.GitHub = GitHubConfig{
		Token:         v.GetString("GITHUB_TOKEN"),
		Org:           v.GetString("GITHUB_ORG"),
		APIURL:        v.GetString("GITHUB_API_URL"),
		Host:          strings.TrimRight(v.GetString("GITHUB_HOST"), "/"),
		WebhookURL:    v.GetString("GITHUB_WEBHOOK_URL"),
		WebhookSecret: v.GetString("GITHUB_WEBHOOK_SECRET"),
		StaffTeam:     v.GetString("GITHUB_STAFF_TEAM"),
		AdminTeam:     v.GetString("GITHUB_ADMIN_TEAM"),
		RateLimit:     v.GetFloat64("GITHUB_RATE_LIMIT"),
		RateBurst:     v.GetInt("GITHUB_RATE_BURST"),
		MaxRetries:    v.GetInt("GITHUB_MAX_RETRIES"),
		RetryBackoff:  parseDuration(v.GetString("GITHUB_RETRY_BACKOFF"), time.Second),
		TeamCacheTTL:  parseDuration(v.GetString("GITHUB_TEAM_CACHE_TTL"), time.Hour),
		CloneDir:      v.GetString("GITHUB_CLONE_DIR"),
	}

	cfg.Provisioning = ProvisioningConfig{
		SeedRepoURL:    v.GetString("SDMM_SEED_REPO_URL"),
		SeedRepoPath:   v.GetString("SDMM_SEED_REPO_PATH"),
		GradeToAdvance: v.GetFloat64("SDMM_GRADE_TO_ADVANCE"),
		Concurrency:    v.GetInt("PROVISION_CONCURRENCY"),
		SubjectTimeout: parseDuration(v.GetString("PROVISION_SUBJECT_TIMEOUT"), 2*time.Minute),
		AsyncWorkers:   v.GetInt("PROVISION_ASYNC_WORKERS"),
		AsyncRetries:   v.GetInt("PROVISION_ASYNC_RETRIES"),
		JobStateTTL:    parseDuration(v.GetString("PROVISION_JOB_STATE_TTL"), time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "course_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_ENABLED", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "2s")

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "course-portal")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("GITHUB_TOKEN", "")
	v.SetDefault("GITHUB_ORG", "")
	v.SetDefault("GITHUB_API_URL", "")
	v.SetDefault("GITHUB_HOST", "https://github.com")
	v.SetDefault("GITHUB_WEBHOOK_URL", "")
	v.SetDefault("GITHUB_WEBHOOK_SECRET", "")
	v.SetDefault("GITHUB_STAFF_TEAM", "staff")
	v.SetDefault("GITHUB_ADMIN_TEAM", "admin")
	v.SetDefault("GITHUB_RATE_LIMIT", 10)
	v.SetDefault("GITHUB_RATE_BURST", 5)
	v.SetDefault("GITHUB_MAX_RETRIES", 3)
	v.SetDefault("GITHUB_RETRY_BACKOFF", "1s")
	v.SetDefault("GITHUB_TEAM_CACHE_TTL", "1h")
	v.SetDefault("GITHUB_CLONE_DIR", "")

	v.SetDefault("SDMM_SEED_REPO_URL", "")
	v.SetDefault("SDMM_SEED_REPO_PATH", "")
	v.SetDefault("SDMM_GRADE_TO_ADVANCE", 60)
	v.SetDefault("PROVISION_CONCURRENCY", 4)
	v.SetDefault("PROVISION_SUBJECT_TIMEOUT", "2m")
	v.SetDefault("PROVISION_ASYNC_WORKERS", 1)
	v.SetDefault("PROVISION_ASYNC_RETRIES", 2)
	v.SetDefault("PROVISION_JOB_STATE_TTL", "1h")
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
