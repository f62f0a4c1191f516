// Package config resolves pipeline settings from the environment, an
// optional .env file, and an optional surpad.toml in the user's home
// directory (lowest precedence).
package config

import (
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/viper"
)

const (
	// DirName is the dot directory under the user's home where the
	// optional config file and cached state live.
	DirName = ".surpad"

	configName = "surpad"
)

// Config holds every knob the dispatcher and worker need.
type Config struct {
	// Broker and result backend, redis:// URIs.
	BrokerURL     string `mapstructure:"celery_broker_url" toml:"celery_broker_url"`
	ResultBackend string `mapstructure:"celery_result_backend" toml:"celery_result_backend"`

	DatabaseURL string `mapstructure:"database_url" toml:"database_url"`

	MinioEndpoint  string `mapstructure:"minio_endpoint" toml:"minio_endpoint"`
	MinioAccessKey string `mapstructure:"minio_access_key" toml:"minio_access_key"`
	MinioSecretKey string `mapstructure:"minio_secret_key" toml:"minio_secret_key"`
	MinioBucket    string `mapstructure:"minio_bucket" toml:"minio_bucket"`
	// MinioSecure selects https; development MinIO is plain http.
	MinioSecure bool `mapstructure:"minio_secure" toml:"minio_secure"`

	// Environment toggles log verbosity; "development" gets console
	// output at debug level.
	Environment string `mapstructure:"environment" toml:"environment"`

	// UploadDir is the staging volume shared by the dispatcher and the
	// workers; queue payloads carry paths into it.
	UploadDir string `mapstructure:"upload_dir" toml:"upload_dir"`

	HTTPAddr string `mapstructure:"http_addr" toml:"http_addr"`

	// WebhookURL, when set, receives a POST with the final manifest for
	// every terminal job via the notifications queue.
	WebhookURL string `mapstructure:"public_webhook_url" toml:"public_webhook_url"`
}

// Dir returns the surpad dot directory, creating it if needed.
func Dir() (string, error) {
	home, err := homedir.Dir()
	if err != nil {
		return "", errors.Wrap(err, "failed locating home directory")
	}
	dir := filepath.Join(home, DirName)
	return dir, os.MkdirAll(dir, 0700)
}

// Load resolves the configuration. Environment variables win over the
// optional ~/.surpad/surpad.toml file; defaults fill the rest.
func Load() (*Config, error) {
	// A .env next to the binary is a development convenience; missing is fine.
	_ = godotenv.Load()

	v := viper.New()

	for env, key := range map[string]string{
		"CELERY_BROKER_URL":     "celery_broker_url",
		"CELERY_RESULT_BACKEND": "celery_result_backend",
		"DATABASE_URL":          "database_url",
		"MINIO_ENDPOINT":        "minio_endpoint",
		"MINIO_ACCESS_KEY":      "minio_access_key",
		"MINIO_SECRET_KEY":      "minio_secret_key",
		"MINIO_BUCKET":          "minio_bucket",
		"MINIO_SECURE":          "minio_secure",
		"ENVIRONMENT":           "environment",
		"UPLOAD_DIR":            "upload_dir",
		"HTTP_ADDR":             "http_addr",
		"PUBLIC_WEBHOOK_URL":    "public_webhook_url",
	} {
		if err := v.BindEnv(key, env); err != nil {
			return nil, errors.Wrapf(err, "failed binding %s", env)
		}
	}

	v.SetDefault("celery_broker_url", "redis://localhost:6379/0")
	v.SetDefault("celery_result_backend", "redis://localhost:6379/0")
	v.SetDefault("minio_endpoint", "localhost:9000")
	v.SetDefault("minio_access_key", "minioadmin")
	v.SetDefault("minio_secret_key", "minioadmin123")
	v.SetDefault("minio_bucket", "binaa-layers")
	v.SetDefault("environment", "production")
	v.SetDefault("upload_dir", "/app/uploads")
	v.SetDefault("http_addr", ":8001")

	if dir, err := Dir(); err == nil {
		v.SetConfigName(configName)
		v.SetConfigType("toml")
		v.AddConfigPath(dir)
		v.ReadInConfig() // absent file is not an error
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed unmarshaling configuration")
	}
	return cfg, nil
}

// Development reports whether verbose development logging is wanted.
func (c *Config) Development() bool {
	return strings.EqualFold(c.Environment, "development")
}

// Validate checks the settings a running service cannot do without.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.BrokerURL == "" {
		return errors.New("CELERY_BROKER_URL is required")
	}
	return nil
}
