package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	defaultHost               = "0.0.0.0"
	defaultPort               = 2222
	defaultHostKeyPath        = ".data/host_ed25519"
	defaultIdleTimeout        = 120 * time.Second
	defaultMaxSessions        = 32
	defaultRateLimitPerMinute = 30
	defaultHTTPAddr           = "0.0.0.0:8080"
	defaultDBPath             = ".data/termfolio.db"
	defaultStateDir           = ".data/state"
	defaultAccessTTL          = 24 * time.Hour
	defaultRefreshTTL         = 30 * 24 * time.Hour
	defaultPromptHost         = "termfolio"
	defaultTheme              = "default"
	defaultLogLevel           = "info"
	defaultLogFormat          = "logfmt"
	defaultAuthRatePerMinute  = 20
	minimumRateLimit          = 1
	maximumConfiguredSessions = 1024
	minSecretBytes            = 32
)

// Config captures startup settings for every entrypoint.
type Config struct {
	Host               string        `yaml:"ssh_host"`
	Port               int           `yaml:"ssh_port"`
	HostKeyPath        string        `yaml:"ssh_host_key_path"`
	IdleTimeout        time.Duration `yaml:"ssh_idle_timeout"`
	MaxSessions        int           `yaml:"ssh_max_sessions"`
	RateLimitPerMinute int           `yaml:"ssh_rate_limit_per_minute"`

	HTTPAddr          string        `yaml:"http_addr"`
	APIURL            string        `yaml:"api_url"`
	JWTSecret         string        `yaml:"-"`
	DBPath            string        `yaml:"db_path"`
	StateDir          string        `yaml:"state_dir"`
	AccessTTL         time.Duration `yaml:"access_ttl"`
	RefreshTTL        time.Duration `yaml:"refresh_ttl"`
	AuthRatePerMinute int           `yaml:"auth_rate_limit_per_minute"`

	PromptHost  string `yaml:"prompt_host"`
	Theme       string `yaml:"theme"`
	ContentPath string `yaml:"content_path"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
}

// Default returns the configuration used when neither a file nor env overrides are present.
func Default() Config {
	return Config{
		Host:               defaultHost,
		Port:               defaultPort,
		HostKeyPath:        defaultHostKeyPath,
		IdleTimeout:        defaultIdleTimeout,
		MaxSessions:        defaultMaxSessions,
		RateLimitPerMinute: defaultRateLimitPerMinute,
		HTTPAddr:           defaultHTTPAddr,
		DBPath:             defaultDBPath,
		StateDir:           defaultStateDir,
		AccessTTL:          defaultAccessTTL,
		RefreshTTL:         defaultRefreshTTL,
		AuthRatePerMinute:  defaultAuthRatePerMinute,
		PromptHost:         defaultPromptHost,
		Theme:              defaultTheme,
		LogLevel:           defaultLogLevel,
		LogFormat:          defaultLogFormat,
	}
}

// LoadFromEnv loads runtime configuration. When TERMFOLIO_CONFIG names a YAML
// file it is applied first; environment variables always win.
func LoadFromEnv() (Config, error) {
	cfg := Default()
	if path, ok := os.LookupEnv("TERMFOLIO_CONFIG"); ok {
		if strings.TrimSpace(path) == "" {
			return Config{}, fmt.Errorf("TERMFOLIO_CONFIG must not be empty")
		}
		fileCfg, err := LoadFile(path, cfg)
		if err != nil {
			return Config{}, err
		}
		cfg = fileCfg
	}

	var err error
	if cfg.Host, err = readRequiredOrDefault("TERMFOLIO_SSH_HOST", cfg.Host); err != nil {
		return Config{}, err
	}
	if cfg.Port, err = readInt("TERMFOLIO_SSH_PORT", cfg.Port, 1, 65535); err != nil {
		return Config{}, err
	}
	if cfg.HostKeyPath, err = readRequiredOrDefault("TERMFOLIO_SSH_HOST_KEY_PATH", cfg.HostKeyPath); err != nil {
		return Config{}, err
	}
	if cfg.IdleTimeout, err = readDuration("TERMFOLIO_SSH_IDLE_TIMEOUT", cfg.IdleTimeout); err != nil {
		return Config{}, err
	}
	if cfg.MaxSessions, err = readInt("TERMFOLIO_SSH_MAX_SESSIONS", cfg.MaxSessions, 1, maximumConfiguredSessions); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitPerMinute, err = readInt("TERMFOLIO_SSH_RATE_LIMIT_PER_MINUTE", cfg.RateLimitPerMinute, minimumRateLimit, 10000); err != nil {
		return Config{}, err
	}
	if cfg.HTTPAddr, err = readRequiredOrDefault("TERMFOLIO_HTTP_ADDR", cfg.HTTPAddr); err != nil {
		return Config{}, err
	}
	if cfg.APIURL, err = readRequiredOrDefault("TERMFOLIO_API_URL", cfg.APIURL); err != nil {
		return Config{}, err
	}
	if cfg.JWTSecret, err = readRequiredOrDefault("TERMFOLIO_JWT_SECRET", cfg.JWTSecret); err != nil {
		return Config{}, err
	}
	if cfg.DBPath, err = readRequiredOrDefault("TERMFOLIO_DB_PATH", cfg.DBPath); err != nil {
		return Config{}, err
	}
	if cfg.StateDir, err = readRequiredOrDefault("TERMFOLIO_STATE_DIR", cfg.StateDir); err != nil {
		return Config{}, err
	}
	if cfg.AccessTTL, err = readDuration("TERMFOLIO_ACCESS_TTL", cfg.AccessTTL); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = readDuration("TERMFOLIO_REFRESH_TTL", cfg.RefreshTTL); err != nil {
		return Config{}, err
	}
	if cfg.AuthRatePerMinute, err = readInt("TERMFOLIO_AUTH_RATE_LIMIT_PER_MINUTE", cfg.AuthRatePerMinute, minimumRateLimit, 10000); err != nil {
		return Config{}, err
	}
	if cfg.PromptHost, err = readRequiredOrDefault("TERMFOLIO_PROMPT_HOST", cfg.PromptHost); err != nil {
		return Config{}, err
	}
	if cfg.Theme, err = readRequiredOrDefault("TERMFOLIO_THEME", cfg.Theme); err != nil {
		return Config{}, err
	}
	if cfg.ContentPath, err = readRequiredOrDefault("TERMFOLIO_CONTENT", cfg.ContentPath); err != nil {
		return Config{}, err
	}
	if cfg.LogLevel, err = readRequiredOrDefault("TERMFOLIO_LOG_LEVEL", cfg.LogLevel); err != nil {
		return Config{}, err
	}
	if cfg.LogFormat, err = readRequiredOrDefault("TERMFOLIO_LOG_FORMAT", cfg.LogFormat); err != nil {
		return Config{}, err
	}

	if err := cfg.normalize(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML document onto base.
func LoadFile(path string, base Config) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

// ValidateServe checks the settings only the serve entrypoint needs.
func (c Config) ValidateServe() error {
	if len(c.JWTSecret) < minSecretBytes {
		return fmt.Errorf("TERMFOLIO_JWT_SECRET must be set to at least %d bytes", minSecretBytes)
	}
	if c.AccessTTL >= c.RefreshTTL {
		return errors.New("access token ttl must be shorter than refresh token ttl")
	}
	return nil
}

// SSHAddress is the listen address of the wish server.
func (c Config) SSHAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c *Config) normalize() error {
	if strings.TrimSpace(c.Host) == "" {
		return fmt.Errorf("TERMFOLIO_SSH_HOST must not be blank")
	}
	cleanHostKeyPath := filepath.Clean(c.HostKeyPath)
	if cleanHostKeyPath == "." {
		return fmt.Errorf("TERMFOLIO_SSH_HOST_KEY_PATH must not resolve to current directory")
	}
	c.HostKeyPath = cleanHostKeyPath
	cleanStateDir := filepath.Clean(c.StateDir)
	if cleanStateDir == "." {
		return fmt.Errorf("TERMFOLIO_STATE_DIR must not resolve to current directory")
	}
	c.StateDir = cleanStateDir

	if c.APIURL == "" {
		c.APIURL = "http://" + loopbackAddr(c.HTTPAddr)
	}
	c.APIURL = strings.TrimRight(c.APIURL, "/")
	if !strings.HasPrefix(c.APIURL, "http://") && !strings.HasPrefix(c.APIURL, "https://") {
		return fmt.Errorf("TERMFOLIO_API_URL must be an http(s) URL")
	}

	switch c.LogFormat {
	case "logfmt", "json", "text":
	default:
		return fmt.Errorf("TERMFOLIO_LOG_FORMAT must be one of logfmt, json, text")
	}
	if c.IdleTimeout <= 0 || c.AccessTTL <= 0 || c.RefreshTTL <= 0 {
		return fmt.Errorf("durations must be greater than 0")
	}
	return nil
}

// loopbackAddr rewrites a wildcard listen address to one a local client can dial.
func loopbackAddr(listen string) string {
	switch {
	case strings.HasPrefix(listen, "0.0.0.0:"):
		return "127.0.0.1:" + strings.TrimPrefix(listen, "0.0.0.0:")
	case strings.HasPrefix(listen, ":"):
		return "127.0.0.1" + listen
	default:
		return listen
	}
}

func readRequiredOrDefault(key, fallback string) (string, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	if raw == "" {
		return "", fmt.Errorf("%s must not be empty", key)
	}

	return raw, nil
}

func readInt(key string, fallback, min, max int) (int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	if parsed < min || parsed > max {
		return 0, fmt.Errorf("%s must be between %d and %d", key, min, max)
	}

	return parsed, nil
}

func readDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s must be a valid duration: %w", key, err)
	}
	if parsed <= 0 {
		return 0, fmt.Errorf("%s must be greater than 0", key)
	}

	return parsed, nil
}
