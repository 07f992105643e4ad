package inits

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "REGISTER_"

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Backend   BackendConfig   `koanf:"backend"`
	ImageHost ImageHostConfig `koanf:"imagehost"`
	Session   SessionConfig   `koanf:"session"`
	Turnstile TurnstileConfig `koanf:"turnstile"`
	Log       LogConfig       `koanf:"log"`
}

type ServerConfig struct {
	Host               string   `koanf:"host"`
	Port               int      `koanf:"port"`
	Mode               string   `koanf:"mode"` // debug, release, test
	MaxMultipartMemory int64    `koanf:"max_multipart_memory"`
	AllowedDomains     []string `koanf:"allowed_domains"`
	AllowedOrigins     []string `koanf:"allowed_origins"`
	RateLimit          float64  `koanf:"rate_limit"` // upload/submit requests per minute
	RateBurst          int      `koanf:"rate_burst"`
	LoginURL           string   `koanf:"login_url"`
}

type BackendConfig struct {
	BaseURL      string        `koanf:"base_url"`
	RegisterPath string        `koanf:"register_path"`
	Timeout      time.Duration `koanf:"timeout"`
}

type ImageHostConfig struct {
	BaseURL      string        `koanf:"base_url"`
	UploadPreset string        `koanf:"upload_preset"`
	CloudName    string        `koanf:"cloud_name"`
	Timeout      time.Duration `koanf:"timeout"`
}

type SessionConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	CleanupInterval time.Duration `koanf:"cleanup_interval"`
	Cookie          string        `koanf:"cookie"`
}

type TurnstileConfig struct {
	Secret    string `koanf:"secret"`
	TestToken string `koanf:"test_token"`
}

type LogConfig struct {
	Level  string `koanf:"level"`  // debug, info, warn, error
	Format string `koanf:"format"` // json, text
}

// LoadConfig reads .env into the environment, then layers the optional YAML
// file and REGISTER_* variables on top. REGISTER_IMAGEHOST__CLOUD_NAME maps
// to imagehost.cloud_name.
func LoadConfig(configPath, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Warn("could not load .env file", "path", envPath, "error", err)
		}
	}

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	conf := &Config{}
	if err := k.Unmarshal("", conf); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	conf.applyDefaults()
	return conf, nil
}

func envKey(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	return strings.ReplaceAll(s, "__", ".")
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.Mode == "" {
		c.Server.Mode = "debug"
	}
	if c.Server.MaxMultipartMemory == 0 {
		c.Server.MaxMultipartMemory = 8 << 20 // 8 MiB
	}
	if c.Server.RateLimit == 0 {
		c.Server.RateLimit = 60
	}
	if c.Server.RateBurst == 0 {
		c.Server.RateBurst = 10
	}
	if c.Server.LoginURL == "" {
		c.Server.LoginURL = "/login"
	}
	if c.Backend.RegisterPath == "" {
		c.Backend.RegisterPath = "/user/register"
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 15 * time.Second
	}
	if c.ImageHost.Timeout == 0 {
		c.ImageHost.Timeout = 30 * time.Second
	}
	if c.Session.TTL == 0 {
		c.Session.TTL = time.Hour
	}
	if c.Session.CleanupInterval == 0 {
		c.Session.CleanupInterval = 10 * time.Minute
	}
	if c.Session.Cookie == "" {
		c.Session.Cookie = "register_session"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
}

// Validate reports the settings the gateway cannot run without.
func (c *Config) Validate() error {
	var missing []string
	if c.Backend.BaseURL == "" {
		missing = append(missing, "backend.base_url")
	}
	if c.ImageHost.BaseURL == "" {
		missing = append(missing, "imagehost.base_url")
	}
	if c.ImageHost.UploadPreset == "" {
		missing = append(missing, "imagehost.upload_preset")
	}
	if c.ImageHost.CloudName == "" {
		missing = append(missing, "imagehost.cloud_name")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
