package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API        APIConfig        `yaml:"api"`
	TokenStore TokenStoreConfig `yaml:"token_store"`
	Log        LogConfig        `yaml:"log"`
	DevServer  DevServerConfig  `yaml:"devserver"`
}

type APIConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"` // 0 leaves the transport default
}

type TokenStoreConfig struct {
	Driver        string      `yaml:"driver"` // "file" or "redis"
	Path          string      `yaml:"path"`
	EncryptionKey string      `yaml:"encryption_key"` // hex, 32 bytes; empty stores plaintext
	Redis         RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

type DevServerConfig struct {
	Host          string        `yaml:"host"`
	Port          int           `yaml:"port"`
	JWTSecret     string        `yaml:"jwt_secret"`
	TokenTTL      time.Duration `yaml:"token_ttl"`
	AdminEmail    string        `yaml:"admin_email"`
	AdminPassword string        `yaml:"admin_password"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`

	// LoginRateLimit is the number of login attempts allowed per client
	// address in LoginRateWindow. 0 disables throttling.
	LoginRateLimit  int           `yaml:"login_rate_limit"`
	LoginRateWindow time.Duration `yaml:"login_rate_window"`
}

// Load builds the configuration from defaults, an optional YAML file, a .env
// file in the working directory and finally the process environment.
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		expanded := expandEnvVars(string(data))

		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

func defaults() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://127.0.0.1:8000/api",
			Timeout: 30 * time.Second,
		},
		TokenStore: TokenStoreConfig{
			Driver: "file",
			Path:   defaultTokenPath(),
			Redis: RedisConfig{
				Addr: "127.0.0.1:6379",
				Key:  "edusync:token",
			},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		DevServer: DevServerConfig{
			Host:          "127.0.0.1",
			Port:          8000,
			JWTSecret:     "edusync-dev-secret",
			TokenTTL:      24 * time.Hour,
			AdminEmail:    "admin@edusync.local",
			AdminPassword: "admin12345",
			ReadTimeout:   30 * time.Second,
			WriteTimeout:  30 * time.Second,

			LoginRateLimit:  6,
			LoginRateWindow: time.Minute,
		},
	}
}

func defaultTokenPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".edusync", "token")
	}
	return filepath.Join(home, ".edusync", "token")
}

func expandEnvVars(s string) string {
	return os.ExpandEnv(s)
}

// loadDotEnv loads variables from path without overriding ones already set.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("EDUSYNC_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("EDUSYNC_API_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.API.Timeout = d
		}
	}
	if v := os.Getenv("EDUSYNC_TOKEN_DRIVER"); v != "" {
		cfg.TokenStore.Driver = v
	}
	if v := os.Getenv("EDUSYNC_TOKEN_PATH"); v != "" {
		cfg.TokenStore.Path = v
	}
	if v := os.Getenv("EDUSYNC_ENCRYPTION_KEY"); v != "" {
		cfg.TokenStore.EncryptionKey = v
	}
	if v := os.Getenv("EDUSYNC_REDIS_ADDR"); v != "" {
		cfg.TokenStore.Redis.Addr = v
	}
	if v := os.Getenv("EDUSYNC_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("EDUSYNC_DEV_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.DevServer.Port = port
		}
	}
	if v := os.Getenv("EDUSYNC_JWT_SECRET"); v != "" {
		cfg.DevServer.JWTSecret = v
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.API.BaseURL) == "" {
		return errors.New("api.base_url is required")
	}
	if c.API.Timeout < 0 {
		return errors.New("api.timeout must not be negative")
	}
	switch c.TokenStore.Driver {
	case "file":
		if c.TokenStore.Path == "" {
			return errors.New("token_store.path is required for the file driver")
		}
	case "redis":
		if c.TokenStore.Redis.Addr == "" {
			return errors.New("token_store.redis.addr is required for the redis driver")
		}
		if c.TokenStore.Redis.Key == "" {
			return errors.New("token_store.redis.key is required for the redis driver")
		}
	default:
		return fmt.Errorf("token_store.driver must be file or redis, got %q", c.TokenStore.Driver)
	}
	if k := c.TokenStore.EncryptionKey; k != "" {
		raw, err := hex.DecodeString(k)
		if err != nil {
			return fmt.Errorf("token_store.encryption_key: %w", err)
		}
		if len(raw) != 32 {
			return fmt.Errorf("token_store.encryption_key must be 32 bytes, got %d", len(raw))
		}
	}
	if c.DevServer.Port < 1 || c.DevServer.Port > 65535 {
		return fmt.Errorf("devserver.port out of range: %d", c.DevServer.Port)
	}
	if c.DevServer.TokenTTL <= 0 {
		return errors.New("devserver.token_ttl must be positive")
	}
	if c.DevServer.LoginRateLimit < 0 {
		return errors.New("devserver.login_rate_limit must not be negative")
	}
	if c.DevServer.LoginRateLimit > 0 && c.DevServer.LoginRateWindow <= 0 {
		return errors.New("devserver.login_rate_window must be positive when throttling is enabled")
	}
	return nil
}

// DevServerAddr returns the listen address of the reference backend.
func (c *Config) DevServerAddr() string {
	return fmt.Sprintf("%s:%d", c.DevServer.Host, c.DevServer.Port)
}
