package config

import (
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type LookupFunc func(string) (string, bool)

type Profile string

const (
	ProfileDev  Profile = "dev"
	ProfileTest Profile = "test"
	ProfileProd Profile = "prod"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"

	TrainingBackendPostgres = "postgres"
	TrainingBackendS3       = "s3"
	TrainingBackendMemory   = "memory"
)

// defaultAnthropicModel replaces the default model when the provider is switched to
// anthropic without naming one.
const defaultAnthropicModel = "claude-sonnet-4-5"

type Config struct {
	Profile       Profile
	Service       ServiceConfig
	HTTP          HTTPConfig
	Database      DatabaseConfig
	Pool          PoolConfig
	AI            AIConfig
	Training      TrainingConfig
	ObjectStore   ObjectStoreConfig
	Observability ObservabilityConfig
}

type ServiceConfig struct {
	Name string
}

type HTTPConfig struct {
	Address            string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	IdleTimeout        time.Duration
	CORSAllowedOrigins string
}

type DatabaseConfig struct {
	Host      string
	Port      int
	Name      string
	User      string
	Password  string
	SSLMode   string
	Schema    string
	AdminName string
}

// DSN returns a pgx connection URL for the configured database.
func (c DatabaseConfig) DSN() string {
	return c.dsnFor(c.Name)
}

// AdminDSN points at the administrative database used for listing databases.
func (c DatabaseConfig) AdminDSN() string {
	return c.dsnFor(c.AdminName)
}

func (c DatabaseConfig) dsnFor(database string) string {
	u := url.URL{
		Scheme: "postgres",
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + database,
	}
	if c.Password != "" {
		u.User = url.UserPassword(c.User, c.Password)
	} else if c.User != "" {
		u.User = url.User(c.User)
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": []string{c.SSLMode}}.Encode()
	}
	return u.String()
}

type PoolConfig struct {
	MinConns       int
	MaxConns       int
	AcquireTimeout time.Duration
}

type AIConfig struct {
	Provider     string
	BaseURL      string
	APIKey       string
	Model        string
	Temperature  float64
	Timeout      time.Duration
	MaxTokens    int
	ContextItems int
}

type TrainingConfig struct {
	Backend     string
	DSN         string
	AutoMigrate bool
}

type ObjectStoreConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKeyID      string
	SecretAccessKey  string
	UseSSL           bool
	Prefix           string
	AutoCreateBucket bool
}

type ObservabilityConfig struct {
	LogLevel slog.Level
	LogJSON  bool
}

func LoadFromEnv(serviceName string) (Config, error) {
	return Load(serviceName, os.LookupEnv)
}

func Load(serviceName string, lookup LookupFunc) (Config, error) {
	if lookup == nil {
		return Config{}, fmt.Errorf("lookup function is required")
	}

	profile := ProfileDev
	if raw, ok := lookup("NLSQL_PROFILE"); ok {
		profile = Profile(strings.ToLower(strings.TrimSpace(raw)))
	}
	if !isValidProfile(profile) {
		return Config{}, fmt.Errorf("invalid NLSQL_PROFILE: %q", profile)
	}

	cfg := defaultsForProfile(profile)
	if serviceName != "" {
		cfg.Service.Name = serviceName
	}

	appliers := []func() error{
		func() error { return applyString(lookup, "NLSQL_SERVICE_NAME", &cfg.Service.Name) },
		func() error { return applyString(lookup, "NLSQL_HTTP_ADDR", &cfg.HTTP.Address) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_READ_TIMEOUT", &cfg.HTTP.ReadTimeout) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_WRITE_TIMEOUT", &cfg.HTTP.WriteTimeout) },
		func() error { return applyDuration(lookup, "NLSQL_HTTP_IDLE_TIMEOUT", &cfg.HTTP.IdleTimeout) },
		func() error { return applyString(lookup, "NLSQL_CORS_ALLOWED_ORIGINS", &cfg.HTTP.CORSAllowedOrigins) },
		func() error { return applyString(lookup, "NLSQL_DB_HOST", &cfg.Database.Host) },
		func() error { return applyInt(lookup, "NLSQL_DB_PORT", &cfg.Database.Port) },
		func() error { return applyString(lookup, "NLSQL_DB_NAME", &cfg.Database.Name) },
		func() error { return applyString(lookup, "NLSQL_DB_USER", &cfg.Database.User) },
		func() error { return applyString(lookup, "NLSQL_DB_PASSWORD", &cfg.Database.Password) },
		func() error { return applyString(lookup, "NLSQL_DB_SSLMODE", &cfg.Database.SSLMode) },
		func() error { return applyString(lookup, "NLSQL_DB_SCHEMA", &cfg.Database.Schema) },
		func() error { return applyString(lookup, "NLSQL_DB_ADMIN_NAME", &cfg.Database.AdminName) },
		func() error { return applyInt(lookup, "NLSQL_POOL_MIN_CONNS", &cfg.Pool.MinConns) },
		func() error { return applyInt(lookup, "NLSQL_POOL_MAX_CONNS", &cfg.Pool.MaxConns) },
		func() error { return applyDuration(lookup, "NLSQL_POOL_ACQUIRE_TIMEOUT", &cfg.Pool.AcquireTimeout) },
		func() error { return applyString(lookup, "NLSQL_AI_PROVIDER", &cfg.AI.Provider) },
		func() error { return applyString(lookup, "NLSQL_AI_BASE_URL", &cfg.AI.BaseURL) },
		func() error { return applyString(lookup, "NLSQL_AI_API_KEY", &cfg.AI.APIKey) },
		func() error { return applyString(lookup, "NLSQL_AI_MODEL", &cfg.AI.Model) },
		func() error { return applyFloat(lookup, "NLSQL_AI_TEMPERATURE", &cfg.AI.Temperature) },
		func() error { return applyDuration(lookup, "NLSQL_AI_TIMEOUT", &cfg.AI.Timeout) },
		func() error { return applyInt(lookup, "NLSQL_AI_MAX_TOKENS", &cfg.AI.MaxTokens) },
		func() error { return applyInt(lookup, "NLSQL_AI_CONTEXT_ITEMS", &cfg.AI.ContextItems) },
		func() error { return applyString(lookup, "NLSQL_TRAINING_BACKEND", &cfg.Training.Backend) },
		func() error { return applyString(lookup, "NLSQL_TRAINING_DSN", &cfg.Training.DSN) },
		func() error { return applyBool(lookup, "NLSQL_TRAINING_AUTO_MIGRATE", &cfg.Training.AutoMigrate) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_ENDPOINT", &cfg.ObjectStore.Endpoint) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_REGION", &cfg.ObjectStore.Region) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_BUCKET", &cfg.ObjectStore.Bucket) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_ACCESS_KEY", &cfg.ObjectStore.AccessKeyID) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_SECRET_KEY", &cfg.ObjectStore.SecretAccessKey) },
		func() error { return applyBool(lookup, "NLSQL_OBJECTSTORE_USE_SSL", &cfg.ObjectStore.UseSSL) },
		func() error { return applyString(lookup, "NLSQL_OBJECTSTORE_PREFIX", &cfg.ObjectStore.Prefix) },
		func() error { return applyBool(lookup, "NLSQL_OBJECTSTORE_AUTO_CREATE_BUCKET", &cfg.ObjectStore.AutoCreateBucket) },
		func() error { return applyBool(lookup, "NLSQL_LOG_JSON", &cfg.Observability.LogJSON) },
		func() error { return applyLogLevel(lookup, "NLSQL_LOG_LEVEL", &cfg.Observability.LogLevel) },
	}
	for _, apply := range appliers {
		if err := apply(); err != nil {
			return Config{}, err
		}
	}

	cfg.AI.Provider = strings.ToLower(cfg.AI.Provider)
	if cfg.AI.Provider == ProviderAnthropic {
		if _, ok := lookup("NLSQL_AI_BASE_URL"); !ok {
			cfg.AI.BaseURL = ""
		}
		if _, ok := lookup("NLSQL_AI_MODEL"); !ok {
			cfg.AI.Model = defaultAnthropicModel
		}
	}
	cfg.Training.Backend = strings.ToLower(cfg.Training.Backend)
	if cfg.Training.DSN == "" {
		cfg.Training.DSN = cfg.Database.DSN()
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Service.Name == "" {
		return fmt.Errorf("service name is required")
	}
	if c.HTTP.Address == "" {
		return fmt.Errorf("http address is required")
	}
	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}
	if c.Pool.MaxConns < 1 {
		return fmt.Errorf("pool max conns must be at least 1, got %d", c.Pool.MaxConns)
	}
	if c.Pool.MinConns < 0 || c.Pool.MinConns > c.Pool.MaxConns {
		return fmt.Errorf("pool min conns must be between 0 and %d, got %d", c.Pool.MaxConns, c.Pool.MinConns)
	}
	switch c.AI.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("invalid ai provider: %q", c.AI.Provider)
	}
	switch c.Training.Backend {
	case TrainingBackendPostgres, TrainingBackendS3, TrainingBackendMemory:
	default:
		return fmt.Errorf("invalid training backend: %q", c.Training.Backend)
	}
	return nil
}

func defaultsForProfile(profile Profile) Config {
	cfg := Config{
		Profile: profile,
		Service: ServiceConfig{Name: "nlsql-api"},
		HTTP: HTTPConfig{
			Address:            ":8080",
			ReadTimeout:        10 * time.Second,
			WriteTimeout:       0,
			IdleTimeout:        60 * time.Second,
			CORSAllowedOrigins: "*",
		},
		Database: DatabaseConfig{
			Host:      "127.0.0.1",
			Port:      5432,
			Name:      "postgres",
			User:      "postgres",
			SSLMode:   "disable",
			Schema:    "public",
			AdminName: "postgres",
		},
		Pool: PoolConfig{
			MinConns: 1,
			MaxConns: 10,
		},
		AI: AIConfig{
			Provider:     ProviderOpenAI,
			BaseURL:      "https://generativelanguage.googleapis.com/v1beta/openai",
			Model:        "gemini-1.5-flash",
			Temperature:  0.1,
			Timeout:      60 * time.Second,
			MaxTokens:    2048,
			ContextItems: 10,
		},
		Training: TrainingConfig{
			Backend:     TrainingBackendPostgres,
			AutoMigrate: true,
		},
		ObjectStore: ObjectStoreConfig{
			Endpoint:         "localhost:9000",
			Region:           "us-east-1",
			Bucket:           "nlsql",
			AccessKeyID:      "minio",
			SecretAccessKey:  "miniostorage",
			UseSSL:           false,
			Prefix:           "training",
			AutoCreateBucket: true,
		},
		Observability: ObservabilityConfig{
			LogLevel: slog.LevelDebug,
			LogJSON:  true,
		},
	}

	switch profile {
	case ProfileTest:
		cfg.HTTP.Address = ":18080"
		cfg.Training.Backend = TrainingBackendMemory
		cfg.Training.AutoMigrate = false
		cfg.Observability.LogLevel = slog.LevelWarn
	case ProfileProd:
		cfg.Observability.LogLevel = slog.LevelInfo
		cfg.Training.AutoMigrate = false
		cfg.ObjectStore.UseSSL = true
		cfg.ObjectStore.AutoCreateBucket = false
	}

	return cfg
}

func isValidProfile(profile Profile) bool {
	switch profile {
	case ProfileDev, ProfileTest, ProfileProd:
		return true
	default:
		return false
	}
}

func applyString(lookup LookupFunc, key string, dst *string) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	*dst = strings.TrimSpace(raw)
	return nil
}

func applyDuration(lookup LookupFunc, key string, dst *time.Duration) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyBool(lookup LookupFunc, key string, dst *bool) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyInt(lookup LookupFunc, key string, dst *int) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyFloat(lookup LookupFunc, key string, dst *float64) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = value
	return nil
}

func applyLogLevel(lookup LookupFunc, key string, dst *slog.Level) error {
	raw, ok := lookup(key)
	if !ok {
		return nil
	}
	level := strings.ToLower(strings.TrimSpace(raw))
	switch level {
	case "debug":
		*dst = slog.LevelDebug
	case "info":
		*dst = slog.LevelInfo
	case "warn", "warning":
		*dst = slog.LevelWarn
	case "error":
		*dst = slog.LevelError
	default:
		return fmt.Errorf("invalid %s: %q", key, raw)
	}
	return nil
}
