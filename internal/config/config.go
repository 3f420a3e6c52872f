// File: internal/config/config.go
package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Environment variables holding the platform credentials. They are read from the
// environment only and never written to a config file.
const (
	EnvPlatformIdentity = "SCRIBE_PLATFORM_IDENTITY"
	EnvPlatformSecret   = "SCRIBE_PLATFORM_SECRET"
)

// Interface defines the contract for accessing application configuration.
// This allows for dependency injection and mocking in tests.
type Interface interface {
	Logger() LoggerConfig
	Browser() BrowserConfig
	Platform() PlatformConfig
	Timeouts() TimeoutConfig
	Server() ServerConfig
}

// Config holds the entire application configuration.
type Config struct {
	LoggerCfg   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	BrowserCfg  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	PlatformCfg PlatformConfig `mapstructure:"platform" yaml:"platform"`
	TimeoutCfg  TimeoutConfig  `mapstructure:"timeouts" yaml:"timeouts"`
	ServerCfg   ServerConfig   `mapstructure:"server" yaml:"server"`
}

var _ Interface = (*Config)(nil)

func (c *Config) Logger() LoggerConfig     { return c.LoggerCfg }
func (c *Config) Browser() BrowserConfig   { return c.BrowserCfg }
func (c *Config) Platform() PlatformConfig { return c.PlatformCfg }
func (c *Config) Timeouts() TimeoutConfig  { return c.TimeoutCfg }
func (c *Config) Server() ServerConfig     { return c.ServerCfg }

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser instances.
type BrowserConfig struct {
	Headless bool `mapstructure:"headless" yaml:"headless"`
	// NoSandbox disables the Chrome sandbox. Only needed inside some containers.
	NoSandbox bool `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	// Mobile switches the persona to a mobile client. The platform serves
	// different markup per client class.
	Mobile    bool     `mapstructure:"mobile" yaml:"mobile"`
	UserAgent string   `mapstructure:"user_agent" yaml:"user_agent"`
	ExecPath  string   `mapstructure:"exec_path" yaml:"exec_path"`
	Width     int      `mapstructure:"width" yaml:"width"`
	Height    int      `mapstructure:"height" yaml:"height"`
	Locale    string   `mapstructure:"locale" yaml:"locale"`
	Timezone  string   `mapstructure:"timezone" yaml:"timezone"`
	Args      []string `mapstructure:"args" yaml:"args"`
	// DebugDir, when set, receives a screenshot whenever a stage fails.
	DebugDir string `mapstructure:"debug_dir" yaml:"debug_dir"`
}

// PlatformConfig describes where the target platform lives and how its URLs are shaped.
type PlatformConfig struct {
	BaseURL        string `mapstructure:"base_url" yaml:"base_url"`
	LoginPath      string `mapstructure:"login_path" yaml:"login_path"`
	WorksPath      string `mapstructure:"works_path" yaml:"works_path"`
	NewChapterPath string `mapstructure:"new_chapter_path" yaml:"new_chapter_path"`
	// WorkURLTemplate is the conventional URL of a single work. "{id}" is replaced by the work ID.
	WorkURLTemplate string `mapstructure:"work_url_template" yaml:"work_url_template"`
	// WorkLinkPattern is a substring present in every link that points at a work.
	WorkLinkPattern string `mapstructure:"work_link_pattern" yaml:"work_link_pattern"`

	Identity string `mapstructure:"identity" yaml:"-"`
	Secret   string `mapstructure:"secret" yaml:"-"`
}

// LoginURL returns the absolute login page URL.
func (p PlatformConfig) LoginURL() string { return joinURL(p.BaseURL, p.LoginPath) }

// WorksURL returns the absolute URL listing the caller's works.
func (p PlatformConfig) WorksURL() string { return joinURL(p.BaseURL, p.WorksPath) }

// NewChapterURL returns the absolute URL of the chapter editor for a work.
// An empty id yields the editor the platform defaults to.
func (p PlatformConfig) NewChapterURL(id string) string {
	path := strings.ReplaceAll(p.NewChapterPath, "{id}", url.PathEscape(id))
	return joinURL(p.BaseURL, path)
}

// WorkURL returns the conventional URL for a work.
func (p PlatformConfig) WorkURL(id string) string {
	path := strings.ReplaceAll(p.WorkURLTemplate, "{id}", url.PathEscape(id))
	return joinURL(p.BaseURL, path)
}

func joinURL(base, path string) string {
	if strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://") {
		return path
	}
	return strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
}

// TimeoutConfig bounds every wait in the workflow.
type TimeoutConfig struct {
	// Locator is the overall budget for resolving one locator set.
	Locator        time.Duration `mapstructure:"locator" yaml:"locator"`
	Navigation     time.Duration `mapstructure:"navigation" yaml:"navigation"`
	LoginConfirm   time.Duration `mapstructure:"login_confirm" yaml:"login_confirm"`
	AutosaveSettle time.Duration `mapstructure:"autosave_settle" yaml:"autosave_settle"`
	Verify         time.Duration `mapstructure:"verify" yaml:"verify"`
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	Fetch          time.Duration `mapstructure:"fetch" yaml:"fetch"`
	// Operation wraps a whole submit or list call.
	Operation time.Duration `mapstructure:"operation" yaml:"operation"`
}

// ServerConfig configures the HTTP edge.
type ServerConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
	// MaxSessions caps concurrently open browser sessions.
	MaxSessions   int           `mapstructure:"max_sessions" yaml:"max_sessions"`
	RatePerMinute float64       `mapstructure:"rate_per_minute" yaml:"rate_per_minute"`
	Burst         int           `mapstructure:"burst" yaml:"burst"`
	AcquireWait   time.Duration `mapstructure:"acquire_wait" yaml:"acquire_wait"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "scribe-cli")
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.no_sandbox", false)
	v.SetDefault("browser.mobile", false)
	v.SetDefault("browser.width", 1366)
	v.SetDefault("browser.height", 900)
	v.SetDefault("browser.locale", "zh-CN")
	v.SetDefault("browser.timezone", "Asia/Shanghai")

	// -- Platform --
	v.SetDefault("platform.base_url", "https://writer.example.com")
	v.SetDefault("platform.login_path", "/")
	v.SetDefault("platform.works_path", "/writer/works")
	v.SetDefault("platform.new_chapter_path", "/writer/works/{id}/chapters/new")
	v.SetDefault("platform.work_url_template", "/writer/works/{id}")
	v.SetDefault("platform.work_link_pattern", "/writer/works/")

	// -- Timeouts --
	v.SetDefault("timeouts.locator", "10s")
	v.SetDefault("timeouts.navigation", "30s")
	v.SetDefault("timeouts.login_confirm", "20s")
	v.SetDefault("timeouts.autosave_settle", "3s")
	v.SetDefault("timeouts.verify", "15s")
	v.SetDefault("timeouts.poll_interval", "500ms")
	v.SetDefault("timeouts.fetch", "15s")
	v.SetDefault("timeouts.operation", "5m")

	// -- Server --
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.max_sessions", 2)
	v.SetDefault("server.rate_per_minute", 30)
	v.SetDefault("server.burst", 5)
	v.SetDefault("server.acquire_wait", "30s")
	v.SetDefault("server.read_timeout", "30s")
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Credentials only ever come from the environment.
	_ = v.BindEnv("platform.identity", EnvPlatformIdentity)
	_ = v.BindEnv("platform.secret", EnvPlatformSecret)

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if cfg.PlatformCfg.Identity == "" {
		cfg.PlatformCfg.Identity = os.Getenv(EnvPlatformIdentity)
	}
	if cfg.PlatformCfg.Secret == "" {
		cfg.PlatformCfg.Secret = os.Getenv(EnvPlatformSecret)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.PlatformCfg.Validate(); err != nil {
		return fmt.Errorf("platform configuration invalid: %w", err)
	}
	if err := c.TimeoutCfg.Validate(); err != nil {
		return fmt.Errorf("timeouts configuration invalid: %w", err)
	}
	if c.BrowserCfg.Width < 0 || c.BrowserCfg.Height < 0 {
		return fmt.Errorf("browser.width and browser.height must not be negative")
	}
	if c.ServerCfg.MaxSessions <= 0 {
		return fmt.Errorf("server.max_sessions must be a positive integer")
	}
	if c.ServerCfg.RatePerMinute <= 0 {
		return fmt.Errorf("server.rate_per_minute must be positive")
	}
	return nil
}

// Validate checks the platform section.
func (p *PlatformConfig) Validate() error {
	u, err := url.Parse(p.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("base_url %q must be an absolute URL", p.BaseURL)
	}
	if !strings.Contains(p.WorkURLTemplate, "{id}") {
		return fmt.Errorf("work_url_template must contain the {id} placeholder")
	}
	if p.WorkLinkPattern == "" {
		return fmt.Errorf("work_link_pattern is required")
	}
	return nil
}

// Validate checks that no wait is unbounded.
func (t *TimeoutConfig) Validate() error {
	checks := map[string]time.Duration{
		"locator":       t.Locator,
		"navigation":    t.Navigation,
		"login_confirm": t.LoginConfirm,
		"verify":        t.Verify,
		"poll_interval": t.PollInterval,
		"fetch":         t.Fetch,
		"operation":     t.Operation,
	}
	for name, d := range checks {
		if d <= 0 {
			return fmt.Errorf("%s must be a positive duration", name)
		}
	}
	if t.AutosaveSettle < 0 {
		return fmt.Errorf("autosave_settle must not be negative")
	}
	return nil
}
