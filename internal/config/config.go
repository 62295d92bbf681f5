package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" json:"server"`
	Database DatabaseConfig `yaml:"database" json:"database"`
	Auth     AuthConfig     `yaml:"auth" json:"auth"`
	Platform PlatformConfig `yaml:"platform" json:"platform"`
	Backup   BackupConfig   `yaml:"backup" json:"backup"`
	Security SecurityConfig `yaml:"security" json:"security"`
	Storage  StorageConfig  `yaml:"storage" json:"storage"`
	Logging  LoggingConfig  `yaml:"logging" json:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host string    `yaml:"host" json:"host"`
	Port int       `yaml:"port" json:"port"`
	TLS  TLSConfig `yaml:"tls" json:"tls"`
}

// TLSConfig contains TLS/HTTPS settings
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" json:"enabled"`
	CertFile string `yaml:"cert_file" json:"cert_file"`
	KeyFile  string `yaml:"key_file" json:"key_file"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path           string `yaml:"path" json:"path"`
	MaxConnections int    `yaml:"max_connections" json:"max_connections"`
}

// AuthConfig contains panel authentication settings
type AuthConfig struct {
	JWTSecret            string `yaml:"jwt_secret" json:"jwt_secret"`
	AccessTokenDuration  string `yaml:"access_token_duration" json:"access_token_duration"`
	RefreshTokenDuration string `yaml:"refresh_token_duration" json:"refresh_token_duration"`
	BcryptCost           int    `yaml:"bcrypt_cost" json:"bcrypt_cost"`
}

// PlatformConfig contains settings for the external collaboration platform
type PlatformConfig struct {
	APIBaseURL     string `yaml:"api_base_url" json:"api_base_url"`
	BotToken       string `yaml:"bot_token" json:"bot_token"`
	RequestTimeout string `yaml:"request_timeout" json:"request_timeout"`
}

// BackupConfig contains backup engine tunables
type BackupConfig struct {
	// MessagePageSize is the fixed batch size for message pagination.
	MessagePageSize int `yaml:"message_page_size" json:"message_page_size"`
	// MaxMessagesPerChannel is the hard per-channel ceiling across a backup.
	MaxMessagesPerChannel int `yaml:"max_messages_per_channel" json:"max_messages_per_channel"`
	// MaxMessagesPerRun caps a single channel crawl invocation.
	MaxMessagesPerRun int `yaml:"max_messages_per_run" json:"max_messages_per_run"`
	// MessagePageDelay is the pause between message page fetches.
	MessagePageDelay string `yaml:"message_page_delay" json:"message_page_delay"`
	// EntityFetchDelay is the pause between role/channel enumeration calls.
	EntityFetchDelay string `yaml:"entity_fetch_delay" json:"entity_fetch_delay"`
	// JobTimeout bounds one whole backup job.
	JobTimeout string `yaml:"job_timeout" json:"job_timeout"`
	// SchedulePollInterval is how often the schedule runner checks for due workspaces.
	SchedulePollInterval string `yaml:"schedule_poll_interval" json:"schedule_poll_interval"`
	// EncryptionKey (base64, 32 bytes) protects export credentials at rest.
	EncryptionKey string `yaml:"encryption_key" json:"encryption_key"`
}

// SecurityConfig contains security settings
type SecurityConfig struct {
	RateLimit RateLimitConfig `yaml:"rate_limit" json:"rate_limit"`
	CORS      CORSConfig      `yaml:"cors" json:"cors"`
}

// RateLimitConfig contains rate limiting settings
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled" json:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute" json:"requests_per_minute"`
}

// CORSConfig contains CORS settings
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins" json:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods" json:"allowed_methods"`
}

// StorageConfig contains storage paths
type StorageConfig struct {
	DataDir   string `yaml:"data_dir" json:"data_dir"`
	ExportDir string `yaml:"export_dir" json:"export_dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" json:"level"`
	Format     string `yaml:"format" json:"format"`
	File       string `yaml:"file" json:"file"`
	MaxSize    int    `yaml:"max_size" json:"max_size"`
	MaxBackups int    `yaml:"max_backups" json:"max_backups"`
	MaxAge     int    `yaml:"max_age" json:"max_age"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	cfg := Default()

	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = resolveConfigPath()
	}

	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	// Environment overrides
	if jwtSecret := os.Getenv("JWT_SECRET"); jwtSecret != "" {
		cfg.Auth.JWTSecret = jwtSecret
	}
	if botToken := os.Getenv("PLATFORM_BOT_TOKEN"); botToken != "" {
		cfg.Platform.BotToken = botToken
	}
	if dbPath := os.Getenv("DATABASE_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}
	if dataDir := os.Getenv("DATA_DIR"); dataDir != "" {
		cfg.Storage.DataDir = dataDir
	}
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if encKey := os.Getenv("ENCRYPTION_KEY"); encKey != "" {
		cfg.Backup.EncryptionKey = encKey
	}

	cfg.normalizeStoragePaths(configPath)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in defaults, before file and env overrides.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Database: DatabaseConfig{
			Path:           "./data/guildvault.db",
			MaxConnections: 25,
		},
		Auth: AuthConfig{
			JWTSecret:            os.Getenv("JWT_SECRET"),
			AccessTokenDuration:  "15m",
			RefreshTokenDuration: "168h",
			BcryptCost:           12,
		},
		Platform: PlatformConfig{
			APIBaseURL:     "https://discord.com/api/v10",
			RequestTimeout: "30s",
		},
		Backup: BackupConfig{
			MessagePageSize:       100,
			MaxMessagesPerChannel: 10000,
			MaxMessagesPerRun:     1000,
			MessagePageDelay:      "1s",
			EntityFetchDelay:      "100ms",
			JobTimeout:            "1h",
			SchedulePollInterval:  "30s",
		},
		Security: SecurityConfig{
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
			},
			CORS: CORSConfig{
				AllowedOrigins: []string{"http://localhost:5173"},
				AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			},
		},
		Storage: StorageConfig{
			DataDir:   "./data",
			ExportDir: "./data/exports",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			File:       "",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
		},
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" || c.Auth.JWTSecret == "change-me-in-production" {
		return fmt.Errorf("JWT_SECRET must be set to a secure value")
	}

	if len(c.Auth.JWTSecret) > 1 && c.Auth.JWTSecret[0] == '$' && c.Auth.JWTSecret[1] == '{' {
		return fmt.Errorf("JWT_SECRET contains unexpanded environment variable")
	}

	if c.Server.TLS.Enabled {
		if c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "" {
			return fmt.Errorf("TLS is enabled but cert_file or key_file is missing")
		}
	}

	if c.Auth.BcryptCost < 10 || c.Auth.BcryptCost > 14 {
		return fmt.Errorf("bcrypt_cost must be between 10 and 14")
	}

	if c.Platform.BotToken == "" {
		return fmt.Errorf("PLATFORM_BOT_TOKEN must be set")
	}

	if c.Backup.MessagePageSize < 1 || c.Backup.MessagePageSize > 100 {
		return fmt.Errorf("message_page_size must be between 1 and 100")
	}

	for name, value := range map[string]string{
		"message_page_delay":     c.Backup.MessagePageDelay,
		"entity_fetch_delay":     c.Backup.EntityFetchDelay,
		"job_timeout":            c.Backup.JobTimeout,
		"schedule_poll_interval": c.Backup.SchedulePollInterval,
		"request_timeout":        c.Platform.RequestTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s: %w", name, err)
		}
	}

	return nil
}

// Duration parses a config duration string with a fallback.
func Duration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func resolveConfigPath() string {
	candidates := []string{"./configs/config.yaml", "../configs/config.yaml"}
	for _, candidate := range candidates {
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}

	return "./configs/config.yaml"
}

func (c *Config) normalizeStoragePaths(configPath string) {
	baseDir := filepath.Dir(configPath)
	if !filepath.IsAbs(baseDir) {
		if absBase, err := filepath.Abs(baseDir); err == nil {
			baseDir = absBase
		}
	}

	rootDir := baseDir
	if filepath.Base(baseDir) == "configs" {
		rootDir = filepath.Dir(baseDir)
	}

	resolvePath := func(value string) string {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			return ""
		}
		if filepath.IsAbs(trimmed) {
			return filepath.Clean(trimmed)
		}
		return filepath.Clean(filepath.Join(rootDir, trimmed))
	}

	if strings.TrimSpace(c.Storage.DataDir) == "" {
		c.Storage.DataDir = filepath.Join(rootDir, "data")
	}
	c.Storage.DataDir = resolvePath(c.Storage.DataDir)

	if strings.TrimSpace(c.Storage.ExportDir) == "" {
		c.Storage.ExportDir = filepath.Join(c.Storage.DataDir, "exports")
	}
	c.Storage.ExportDir = resolvePath(c.Storage.ExportDir)
}
