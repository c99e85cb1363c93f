package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/notes-bin/pictureteam/internal/auth"
)

// EnvPrefix prefixes every environment override, e.g. PT_DATABASE_URL.
const EnvPrefix = "PT_"

type Config struct {
	Host               string         `json:"host"`
	Port               string         `json:"port"`
	LogJSON            bool           `json:"log_json"`
	Database           DatabaseConfig `json:"database"`
	TokenSecret        string         `json:"token_secret"`
	TokenTTL           int            `json:"token_ttl"` // seconds
	ImageStoragePath   string         `json:"image_storage_path"`
	MaxUploadSize      int64          `json:"max_upload_size"`
	Storage            StorageConfig  `json:"storage"`
	Redis              RedisConfig    `json:"redis"`
	TopRefreshInterval int            `json:"top_refresh_interval"` // seconds
}

type DatabaseConfig struct {
	Driver         string `json:"driver"` // "postgres" or "sqlite"
	URL            string `json:"url"`
	MaxConns       int    `json:"max_conns"`
	AcquireTimeout int    `json:"acquire_timeout"` // seconds
}

type StorageConfig struct {
	Backend         string `json:"backend"` // "local", "s3" or "gcs"
	Bucket          string `json:"bucket"`
	Endpoint        string `json:"endpoint"`
	Region          string `json:"region"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key"`
}

type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
	CacheTTL int    `json:"cache_ttl"` // seconds a rating summary stays cached
}

func Default() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    "8080",
		LogJSON: true,
		Database: DatabaseConfig{
			Driver:         "sqlite",
			URL:            "data/pictureteam.db",
			MaxConns:       5,
			AcquireTimeout: 5,
		},
		TokenTTL:           int((24 * time.Hour).Seconds()),
		ImageStoragePath:   "images",
		MaxUploadSize:      32 << 20,
		Storage:            StorageConfig{Backend: "local"},
		Redis:              RedisConfig{PoolSize: 10, CacheTTL: 300},
		TopRefreshInterval: 60,
	}
}

// Load builds the configuration from defaults, the JSON file at path (if
// it exists), a .env file in the working directory (if any) and finally
// PT_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist):
		slog.Info("Config file not found, using defaults", "path", path)
	default:
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if cfg.TokenSecret == "" {
		slog.Warn("No token secret configured, generating one; tokens will not survive a restart")
		secret, err := auth.RandomString(32)
		if err != nil {
			return nil, fmt.Errorf("generate token secret: %w", err)
		}
		cfg.TokenSecret = secret
	}
	return &cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}
	switch c.Storage.Backend {
	case "local":
	case "s3", "gcs":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage backend %s requires a bucket", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	if c.Database.MaxConns < 1 {
		return errors.New("database.max_conns must be positive")
	}
	if c.TopRefreshInterval < 1 {
		return errors.New("top_refresh_interval must be positive")
	}
	if c.TokenTTL < 1 {
		return errors.New("token_ttl must be positive")
	}
	return nil
}

func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c *Config) AcquireTimeout() time.Duration {
	return time.Duration(c.Database.AcquireTimeout) * time.Second
}

func (c *Config) TokenLifetime() time.Duration {
	return time.Duration(c.TokenTTL) * time.Second
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"HOST":                      &c.Host,
		"PORT":                      &c.Port,
		"DATABASE_DRIVER":           &c.Database.Driver,
		"DATABASE_URL":              &c.Database.URL,
		"TOKEN_SECRET":              &c.TokenSecret,
		"IMAGE_STORAGE_PATH":        &c.ImageStoragePath,
		"STORAGE_BACKEND":           &c.Storage.Backend,
		"STORAGE_BUCKET":            &c.Storage.Bucket,
		"STORAGE_ENDPOINT":          &c.Storage.Endpoint,
		"STORAGE_REGION":            &c.Storage.Region,
		"STORAGE_ACCESS_KEY_ID":     &c.Storage.AccessKeyID,
		"STORAGE_SECRET_ACCESS_KEY": &c.Storage.SecretAccessKey,
		"REDIS_ADDR":                &c.Redis.Addr,
		"REDIS_PASSWORD":            &c.Redis.Password,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"DATABASE_MAX_CONNS":       &c.Database.MaxConns,
		"DATABASE_ACQUIRE_TIMEOUT": &c.Database.AcquireTimeout,
		"TOKEN_TTL":                &c.TokenTTL,
		"REDIS_DB":                 &c.Redis.DB,
		"REDIS_POOL_SIZE":          &c.Redis.PoolSize,
		"REDIS_CACHE_TTL":          &c.Redis.CacheTTL,
		"TOP_REFRESH_INTERVAL":     &c.TopRefreshInterval,
	}
	for key, dst := range ints {
		v, ok := os.LookupEnv(EnvPrefix + key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MAX_UPLOAD_SIZE"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%sMAX_UPLOAD_SIZE: %w", EnvPrefix, err)
		}
		c.MaxUploadSize = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "LOG_JSON"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%sLOG_JSON: %w", EnvPrefix, err)
		}
		c.LogJSON = b
	}
	return nil
}
