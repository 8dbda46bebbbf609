package config

import (
	"fmt"
	"sync"

	"github.com/spf13/viper"
)

var (
	instance *Config
	once     sync.Once
	mu       sync.RWMutex
)

// Known store backends.
const (
	BackendReindexer = "reindexer"
	BackendSQLite    = "sqlite"
	BackendMemory    = "memory"
)

// Config represents the application configuration
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Store       StoreConfig       `mapstructure:"store"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency"`
	Serializer  SerializerConfig  `mapstructure:"serializer"`
	Content     ContentConfig     `mapstructure:"content"`
	Navigation  NavigationConfig  `mapstructure:"navigation"`
	Auth        AuthConfig        `mapstructure:"auth"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host" validate:"required"`
	Port int    `mapstructure:"port" validate:"required,min=1,max=65535"`
}

// StoreConfig selects and configures the content store backend
type StoreConfig struct {
	Backend   string          `mapstructure:"backend" validate:"required"`
	Reindexer ReindexerConfig `mapstructure:"reindexer"`
	SQLite    SQLiteConfig    `mapstructure:"sqlite"`
}

// ReindexerConfig contains Reindexer database configuration
type ReindexerConfig struct {
	DSN            string `mapstructure:"dsn"`
	MaxConnections int    `mapstructure:"max_connections" validate:"min=1"`
}

// SQLiteConfig contains the embedded store configuration
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// CacheConfig contains cache configuration
type CacheConfig struct {
	Shards int `mapstructure:"shards" validate:"min=1"`
	TTL    int `mapstructure:"ttl" validate:"min=0"` // TTL in seconds
}

// ConcurrencyConfig contains concurrency settings
type ConcurrencyConfig struct {
	HTTPMaxWorkers   int `mapstructure:"http_max_workers" validate:"min=1"`
	VerifierWorkers  int `mapstructure:"verifier_workers" validate:"min=1"`
	DBMaxConnections int `mapstructure:"db_max_connections" validate:"min=1"`
}

// SerializerConfig bounds tree serialization
type SerializerConfig struct {
	MaxDepth int `mapstructure:"max_depth" validate:"min=1"`
}

// ContentConfig carries content-tree defaults
type ContentConfig struct {
	DefaultLocale string `mapstructure:"default_locale" validate:"required"`
}

// NavigationConfig points at the menu definition file
type NavigationConfig struct {
	MenuPath string `mapstructure:"menu_path"`
	Watch    bool   `mapstructure:"watch"`
}

// AuthConfig maps bearer tokens to subjects and roles. Authentication proper
// lives outside this service; these static tokens are the glue that binds an
// inbound request to an identity for the authorization predicate.
type AuthConfig struct {
	Tokens map[string]TokenConfig `mapstructure:"tokens"`
}

// TokenConfig is one configured token's identity
type TokenConfig struct {
	Subject string   `mapstructure:"subject"`
	Roles   []string `mapstructure:"roles"`
}

// Get returns the singleton configuration instance
func Get() *Config {
	once.Do(func() {
		if instance == nil {
			instance = &Config{}
		}
	})
	mu.RLock()
	defer mu.RUnlock()
	return instance
}

// Load initializes and loads configuration from file and environment variables
func Load(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("APP")
	viper.AutomaticEnv()

	// Set default values
	setDefaults()

	// Load from file if provided
	if configPath != "" {
		viper.SetConfigFile(configPath)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables
	bindEnvVars()

	// Unmarshal configuration
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := validate(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	instance = cfg
	return nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)

	// Store defaults: cproto (RPC/TCP) is the primary protocol, port 6534
	viper.SetDefault("store.backend", BackendReindexer)
	viper.SetDefault("store.reindexer.dsn", "cproto://localhost:6534/contentd")
	viper.SetDefault("store.reindexer.max_connections", 10)
	viper.SetDefault("store.sqlite.path", "contentd.db")

	// Cache defaults
	viper.SetDefault("cache.shards", 16)
	viper.SetDefault("cache.ttl", 300)

	// Concurrency defaults
	viper.SetDefault("concurrency.http_max_workers", 100)
	viper.SetDefault("concurrency.verifier_workers", 4)
	viper.SetDefault("concurrency.db_max_connections", 10)

	// Serializer defaults
	viper.SetDefault("serializer.max_depth", 64)

	// Content defaults
	viper.SetDefault("content.default_locale", "en")

	// Navigation defaults: empty path serves the built-in menu
	viper.SetDefault("navigation.menu_path", "")
	viper.SetDefault("navigation.watch", true)
}

// bindEnvVars binds environment variables to viper keys
func bindEnvVars() {
	// Server
	viper.BindEnv("server.host", "APP_SERVER_HOST")
	viper.BindEnv("server.port", "APP_SERVER_PORT")

	// Store
	viper.BindEnv("store.backend", "APP_STORE_BACKEND")
	viper.BindEnv("store.reindexer.dsn", "APP_STORE_REINDEXER_DSN")
	viper.BindEnv("store.reindexer.max_connections", "APP_STORE_REINDEXER_MAX_CONNECTIONS")
	viper.BindEnv("store.sqlite.path", "APP_STORE_SQLITE_PATH")

	// Cache
	viper.BindEnv("cache.shards", "APP_CACHE_SHARDS")
	viper.BindEnv("cache.ttl", "APP_CACHE_TTL")

	// Concurrency
	viper.BindEnv("concurrency.http_max_workers", "APP_CONCURRENCY_HTTP_MAX_WORKERS")
	viper.BindEnv("concurrency.verifier_workers", "APP_CONCURRENCY_VERIFIER_WORKERS")
	viper.BindEnv("concurrency.db_max_connections", "APP_CONCURRENCY_DB_MAX_CONNECTIONS")

	// Serializer
	viper.BindEnv("serializer.max_depth", "APP_SERIALIZER_MAX_DEPTH")

	// Content
	viper.BindEnv("content.default_locale", "APP_CONTENT_DEFAULT_LOCALE")

	// Navigation
	viper.BindEnv("navigation.menu_path", "APP_NAVIGATION_MENU_PATH")
	viper.BindEnv("navigation.watch", "APP_NAVIGATION_WATCH")
}

// validate performs validation on the configuration
func validate(cfg *Config) error {
	// Validate Server
	if cfg.Server.Host == "" {
		return fmt.Errorf("server.host is required")
	}
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}

	// Validate Store
	switch cfg.Store.Backend {
	case BackendReindexer:
		if cfg.Store.Reindexer.DSN == "" {
			return fmt.Errorf("store.reindexer.dsn is required for the reindexer backend")
		}
		if cfg.Store.Reindexer.MaxConnections < 1 {
			return fmt.Errorf("store.reindexer.max_connections must be at least 1")
		}
	case BackendSQLite:
		if cfg.Store.SQLite.Path == "" {
			return fmt.Errorf("store.sqlite.path is required for the sqlite backend")
		}
	case BackendMemory:
		// Nothing to validate.
	default:
		return fmt.Errorf("store.backend must be one of %s, %s, %s", BackendReindexer, BackendSQLite, BackendMemory)
	}

	// Validate Cache
	if cfg.Cache.Shards < 1 {
		return fmt.Errorf("cache.shards must be at least 1")
	}
	if cfg.Cache.TTL < 0 {
		return fmt.Errorf("cache.ttl must be non-negative")
	}

	// Validate Concurrency
	if cfg.Concurrency.HTTPMaxWorkers < 1 {
		return fmt.Errorf("concurrency.http_max_workers must be at least 1")
	}
	if cfg.Concurrency.VerifierWorkers < 1 {
		return fmt.Errorf("concurrency.verifier_workers must be at least 1")
	}
	if cfg.Concurrency.DBMaxConnections < 1 {
		return fmt.Errorf("concurrency.db_max_connections must be at least 1")
	}

	// Validate Serializer
	if cfg.Serializer.MaxDepth < 1 {
		return fmt.Errorf("serializer.max_depth must be at least 1")
	}

	// Validate Content
	if cfg.Content.DefaultLocale == "" {
		return fmt.Errorf("content.default_locale is required")
	}

	return nil
}

// Reload reloads the configuration (thread-safe)
func Reload(configPath string) error {
	mu.Lock()
	defer mu.Unlock()

	// Reset instance to allow reload
	instance = nil
	once = sync.Once{}

	return Load(configPath)
}
