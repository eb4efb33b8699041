package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backend names accepted by STORAGE_TYPE
const (
	StorageMemory    = "memory"
	StorageFile      = "file"
	StorageRedis     = "redis"
	StorageAzure     = "azure"
	StorageFirestore = "firestore"
)

type Config struct {
	Host               string        `yaml:"host"`
	Port               string        `yaml:"port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	AnalysisTimeout    time.Duration `yaml:"analysis_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`
	MaxImageBytes      int64         `yaml:"max_image_bytes"`
	LogLevel           string        `yaml:"log_level"`
	Storage            StorageConfig `yaml:"storage"`
}

// StorageConfig selects and configures the key-value backend
type StorageConfig struct {
	Type       string          `yaml:"type"`
	QueueDepth int             `yaml:"queue_depth"`
	Dir        string          `yaml:"dir"`
	Redis      RedisConfig     `yaml:"redis"`
	Azure      AzureConfig     `yaml:"azure"`
	Firestore  FirestoreConfig `yaml:"firestore"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

type AzureConfig struct {
	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	Container   string `yaml:"container"`
	ServiceURL  string `yaml:"service_url"`
}

type FirestoreConfig struct {
	ProjectID       string `yaml:"project_id"`
	Collection      string `yaml:"collection"`
	CredentialsFile string `yaml:"credentials_file"`
}

func (c *Config) ServerAddress() string {
	// Trim any whitespace from host and port
	host := strings.TrimSpace(c.Host)
	port := strings.TrimSpace(c.Port)
	return net.JoinHostPort(host, port)
}

// Defaults returns the configuration used when nothing is set
func Defaults() *Config {
	return &Config{
		Host:               "127.0.0.1",
		Port:               "8080",
		RequestTimeout:     60 * time.Second,
		AnalysisTimeout:    30 * time.Second,
		MaxRequestBodySize: 1024 * 1024, // 1MB
		MaxImageBytes:      20 * 1024 * 1024,
		LogLevel:           "info",
		Storage: StorageConfig{
			Type:       StorageFile,
			QueueDepth: 64,
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "olive:",
			},
			Azure: AzureConfig{
				Container: "olive-inspector",
			},
			Firestore: FirestoreConfig{
				Collection: "olive_inspector",
			},
		},
	}
}

// LoadFromEnv builds the configuration from defaults, then the YAML file
// named by CONFIG_FILE (if any), then environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := Defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() {
	c.Host = getEnvOrDefault("HOST", c.Host)
	c.Port = getEnvOrDefault("PORT", c.Port)
	c.RequestTimeout = parseDurationOrDefault("REQUEST_TIMEOUT", c.RequestTimeout)
	c.AnalysisTimeout = parseDurationOrDefault("ANALYSIS_TIMEOUT", c.AnalysisTimeout)
	c.MaxRequestBodySize = parseIntOrDefault("MAX_REQUEST_BODY_SIZE", c.MaxRequestBodySize)
	c.MaxImageBytes = parseIntOrDefault("MAX_IMAGE_BYTES", c.MaxImageBytes)
	c.LogLevel = getEnvOrDefault("LOG_LEVEL", c.LogLevel)

	s := &c.Storage
	s.Type = strings.ToLower(getEnvOrDefault("STORAGE_TYPE", s.Type))
	s.QueueDepth = int(parseIntOrDefault("STORAGE_QUEUE_DEPTH", int64(s.QueueDepth)))
	s.Dir = getEnvOrDefault("STORAGE_DIR", s.Dir)
	s.Redis.Addr = getEnvOrDefault("REDIS_ADDR", s.Redis.Addr)
	s.Redis.Password = getEnvOrDefault("REDIS_PASSWORD", s.Redis.Password)
	s.Redis.DB = int(parseIntOrDefault("REDIS_DB", int64(s.Redis.DB)))
	s.Redis.Prefix = getEnvOrDefault("REDIS_PREFIX", s.Redis.Prefix)
	s.Azure.AccountName = getEnvOrDefault("AZURE_STORAGE_ACCOUNT", s.Azure.AccountName)
	s.Azure.AccountKey = getEnvOrDefault("AZURE_STORAGE_KEY", s.Azure.AccountKey)
	s.Azure.Container = getEnvOrDefault("AZURE_STORAGE_CONTAINER", s.Azure.Container)
	s.Azure.ServiceURL = getEnvOrDefault("AZURE_STORAGE_URL", s.Azure.ServiceURL)
	s.Firestore.ProjectID = getEnvOrDefault("FIRESTORE_PROJECT_ID", s.Firestore.ProjectID)
	s.Firestore.Collection = getEnvOrDefault("FIRESTORE_COLLECTION", s.Firestore.Collection)
	s.Firestore.CredentialsFile = getEnvOrDefault("GOOGLE_APPLICATION_CREDENTIALS", s.Firestore.CredentialsFile)
}

// Validate checks ranges and the backend-specific required fields
func (c *Config) Validate() error {
	// Validate port is numeric and in range
	p, err := strconv.Atoi(strings.TrimSpace(c.Port))
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid PORT: %q", c.Port)
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0 (got %d)", c.MaxRequestBodySize)
	}
	if c.MaxImageBytes <= 0 {
		return fmt.Errorf("MAX_IMAGE_BYTES must be > 0 (got %d)", c.MaxImageBytes)
	}
	if c.RequestTimeout <= 0 || c.AnalysisTimeout <= 0 {
		return fmt.Errorf("timeouts must be > 0 (got request=%s, analysis=%s)",
			c.RequestTimeout, c.AnalysisTimeout)
	}

	switch c.Storage.Type {
	case StorageMemory, StorageFile:
	case StorageRedis:
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required for redis storage")
		}
	case StorageAzure:
		if c.Storage.Azure.AccountName == "" || c.Storage.Azure.AccountKey == "" {
			return fmt.Errorf("AZURE_STORAGE_ACCOUNT and AZURE_STORAGE_KEY are required for azure storage")
		}
	case StorageFirestore:
		if c.Storage.Firestore.ProjectID == "" {
			return fmt.Errorf("FIRESTORE_PROJECT_ID is required for firestore storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_TYPE: %q", c.Storage.Type)
	}
	return nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(strings.TrimSpace(value)); err == nil && duration > 0 {
			return duration
		}
	}
	return defaultValue
}

func parseIntOrDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}
