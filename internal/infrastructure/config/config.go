package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/GriffinCanCode/apiclient-shell/internal/shared/paths"
	"github.com/bytedance/sonic"
	"github.com/goccy/go-yaml"
	"github.com/kelseyhightower/envconfig"
	"github.com/pelletier/go-toml/v2"
)

// ErrAppHomeNotSet is returned when no application home can be resolved.
var ErrAppHomeNotSet = paths.ErrAppHomeNotSet

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	App       AppConfig
	Logging   LogConfig
	Worker    WorkerConfig
	Proxy     ProxyConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds the window ingress configuration.
type ServerConfig struct {
	Host string `envconfig:"HOST" default:"127.0.0.1"`
	// Port 0 picks a free port.
	Port int `envconfig:"PORT" default:"0"`
}

// AppConfig holds application level options.
type AppConfig struct {
	Home          string `envconfig:"APP_HOME"`
	SettingsFile  string `envconfig:"APP_SETTINGS_FILE"`
	Dev           bool   `envconfig:"APP_DEV" default:"false"`
	AssetsDir     string `envconfig:"APP_ASSETS_DIR" default:"dist"`
	SkipTelemetry bool   `envconfig:"APP_SKIP_TELEMETRY" default:"false"`
	WithDevtools  bool   `envconfig:"APP_WITH_DEVTOOLS" default:"false"`
	SkipAppUpdate bool   `envconfig:"APP_SKIP_UPDATE" default:"false"`
	// Opener is the command that shows a window URL. Empty uses the platform default.
	Opener string `envconfig:"APP_OPENER"`
	// Version is stamped at build time.
	Version string `ignored:"true"`
	// ProtocolFile is set when the app was started from an http-client:// link.
	ProtocolFile *ProtocolFile `ignored:"true"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// WorkerConfig holds worker process configuration.
type WorkerConfig struct {
	// CallTimeout bounds each worker call. Zero waits indefinitely.
	CallTimeout  time.Duration `envconfig:"WORKER_CALL_TIMEOUT" default:"0"`
	StopTimeout  time.Duration `envconfig:"WORKER_STOP_TIMEOUT" default:"5s"`
	HTTPTimeout  time.Duration `envconfig:"WORKER_HTTP_TIMEOUT" default:"90s"`
	RateLimit    float64       `envconfig:"WORKER_RATE_LIMIT" default:"0"`
	StoreRetries int           `envconfig:"WORKER_STORE_RETRIES" default:"3"`
}

// ProxyConfig holds the outbound proxy configuration.
type ProxyConfig struct {
	URL            string `envconfig:"PROXY_URL"`
	Username       string `envconfig:"PROXY_USERNAME"`
	Password       string `envconfig:"PROXY_PASSWORD"`
	SystemSettings bool   `envconfig:"PROXY_SYSTEM_SETTINGS" default:"false"`
	// All applies the proxy to the controller's own traffic too, not only to user requests.
	All bool `envconfig:"PROXY_ALL" default:"false"`
}

// RateLimitConfig holds ingress rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond float64 `envconfig:"RATE_LIMIT_RPS" default:"200"`
	Burst             int     `envconfig:"RATE_LIMIT_BURST" default:"400"`
	Enabled           bool    `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "127.0.0.1",
		},
		App: AppConfig{
			AssetsDir: "dist",
		},
		Logging: LogConfig{
			Level: "info",
		},
		Worker: WorkerConfig{
			StopTimeout:  5 * time.Second,
			HTTPTimeout:  90 * time.Second,
			StoreRetries: 3,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 200,
			Burst:             400,
			Enabled:           true,
		},
	}
}

// ResolveHome fixes the application home. executable is used to detect a
// portable installation.
func (c *Config) ResolveHome(executable string) (paths.Home, error) {
	home, err := paths.ResolveHome(c.App.Home, executable)
	if err != nil {
		return "", err
	}
	if err := home.Ensure(); err != nil {
		return "", err
	}
	c.App.Home = home.String()
	return home, nil
}

// WorkerEnv returns the variables that hand the resolved options to the worker
// process, which loads them with Load.
func (c *Config) WorkerEnv() []string {
	return []string{
		"LOG_LEVEL=" + c.Logging.Level,
		"LOG_DEV=" + strconv.FormatBool(c.Logging.Development),
		"WORKER_HTTP_TIMEOUT=" + c.Worker.HTTPTimeout.String(),
		"WORKER_RATE_LIMIT=" + strconv.FormatFloat(c.Worker.RateLimit, 'f', -1, 64),
		"WORKER_STORE_RETRIES=" + strconv.Itoa(c.Worker.StoreRetries),
		"PROXY_URL=" + c.Proxy.URL,
		"PROXY_USERNAME=" + c.Proxy.Username,
		"PROXY_PASSWORD=" + c.Proxy.Password,
		"PROXY_SYSTEM_SETTINGS=" + strconv.FormatBool(c.Proxy.SystemSettings),
	}
}

// Settings mirrors the command line options in a settings file. Absent keys
// leave the current value alone.
type Settings struct {
	Dev                 *bool   `json:"dev" toml:"dev" yaml:"dev"`
	DebugLevel          *string `json:"debugLevel" toml:"debugLevel" yaml:"debugLevel"`
	WithDevtools        *bool   `json:"withDevtools" toml:"withDevtools" yaml:"withDevtools"`
	Port                *int    `json:"port" toml:"port" yaml:"port"`
	SkipAppUpdate       *bool   `json:"skipAppUpdate" toml:"skipAppUpdate" yaml:"skipAppUpdate"`
	SkipTelemetry       *bool   `json:"skipTelemetry" toml:"skipTelemetry" yaml:"skipTelemetry"`
	Proxy               *string `json:"proxy" toml:"proxy" yaml:"proxy"`
	ProxyUsername       *string `json:"proxyUsername" toml:"proxyUsername" yaml:"proxyUsername"`
	ProxyPassword       *string `json:"proxyPassword" toml:"proxyPassword" yaml:"proxyPassword"`
	ProxySystemSettings *bool   `json:"proxySystemSettings" toml:"proxySystemSettings" yaml:"proxySystemSettings"`
	ProxyAll            *bool   `json:"proxyAll" toml:"proxyAll" yaml:"proxyAll"`
}

// ReadSettings decodes a settings file, picking the format from its extension.
// A missing file yields empty settings.
func ReadSettings(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &Settings{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read settings: %w", err)
	}

	var s Settings
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, &s)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &s)
	default:
		if len(strings.TrimSpace(string(data))) == 0 {
			return &s, nil
		}
		err = sonic.Unmarshal(data, &s)
	}
	if err != nil {
		return nil, fmt.Errorf("parse settings %s: %w", path, err)
	}
	return &s, nil
}

// Merge applies the settings file on top of the configuration.
func (c *Config) Merge(s *Settings) {
	setBool(&c.App.Dev, s.Dev)
	setString(&c.Logging.Level, s.DebugLevel)
	setBool(&c.App.WithDevtools, s.WithDevtools)
	if s.Port != nil {
		c.Server.Port = *s.Port
	}
	setBool(&c.App.SkipAppUpdate, s.SkipAppUpdate)
	setBool(&c.App.SkipTelemetry, s.SkipTelemetry)
	setString(&c.Proxy.URL, s.Proxy)
	setString(&c.Proxy.Username, s.ProxyUsername)
	setString(&c.Proxy.Password, s.ProxyPassword)
	setBool(&c.Proxy.SystemSettings, s.ProxySystemSettings)
	setBool(&c.Proxy.All, s.ProxyAll)
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
