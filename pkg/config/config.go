package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when no path is given.
const DefaultPath = "helmsman.yaml"

type Config struct {
	App          AppConfig                 `mapstructure:"app" yaml:"app"`
	Gateways     map[string]GatewayConfig  `mapstructure:"gateways" yaml:"gateways"`
	Providers    map[string]ProviderConfig `mapstructure:"providers" yaml:"providers"`
	Memory       MemoryConfig              `mapstructure:"memory" yaml:"memory"`
	Logger       LoggerConfig              `mapstructure:"logger" yaml:"logger"`
	Executor     ExecutorConfig            `mapstructure:"executor" yaml:"executor"`
	Browser      BrowserConfig             `mapstructure:"browser" yaml:"browser"`
	Safety       SafetyConfig              `mapstructure:"safety" yaml:"safety"`
	Orchestrator OrchestratorConfig        `mapstructure:"orchestrator" yaml:"orchestrator"`
	Metrics      MetricsConfig             `mapstructure:"metrics" yaml:"metrics"`
}

type AppConfig struct {
	Name       string `mapstructure:"name" yaml:"name"`
	Workspace  string `mapstructure:"workspace" yaml:"workspace"`
	PromptsDir string `mapstructure:"prompts_dir" yaml:"prompts_dir"`
}

type GatewayConfig struct {
	Token          string        `mapstructure:"token" yaml:"token"`
	Enabled        bool          `mapstructure:"enabled" yaml:"enabled"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout" yaml:"confirm_timeout"`
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key" yaml:"api_key"`
	Model   string `mapstructure:"model" yaml:"model"`
	BaseURL string `mapstructure:"base_url" yaml:"base_url,omitempty"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type MemoryConfig struct {
	Type         string `mapstructure:"type" yaml:"type"`
	Path         string `mapstructure:"path" yaml:"path"`
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`
}

// LoggerConfig controls zap output and log rotation.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	OracleLog   string      `mapstructure:"oracle_log" yaml:"oracle_log"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

type ColorConfig struct {
	Debug string `mapstructure:"debug" yaml:"debug"`
	Info  string `mapstructure:"info" yaml:"info"`
	Warn  string `mapstructure:"warn" yaml:"warn"`
	Error string `mapstructure:"error" yaml:"error"`
}

type ExecutorConfig struct {
	Shell   string        `mapstructure:"shell" yaml:"shell"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	WorkDir string        `mapstructure:"work_dir" yaml:"work_dir"`
}

type BrowserConfig struct {
	Headless         bool          `mapstructure:"headless" yaml:"headless"`
	ActionTimeout    time.Duration `mapstructure:"action_timeout" yaml:"action_timeout"`
	ScreenshotDir    string        `mapstructure:"screenshot_dir" yaml:"screenshot_dir"`
	SearchURL        string        `mapstructure:"search_url" yaml:"search_url"`
	Adaptive         bool          `mapstructure:"adaptive" yaml:"adaptive"`
	MaxIterations    int           `mapstructure:"max_iterations" yaml:"max_iterations"`
	StepDelay        time.Duration `mapstructure:"step_delay" yaml:"step_delay"`
	FallbackDistance int           `mapstructure:"fallback_distance" yaml:"fallback_distance"`
}

type SafetyConfig struct {
	ExtraCommands []string `mapstructure:"extra_commands" yaml:"extra_commands"`
	ExtraPatterns []string `mapstructure:"extra_patterns" yaml:"extra_patterns"`
}

type OrchestratorConfig struct {
	Concurrent  bool `mapstructure:"concurrent" yaml:"concurrent"`
	AutoApprove bool `mapstructure:"auto_approve" yaml:"auto_approve"`
}

type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "helmsman")
	v.SetDefault("app.workspace", ".")
	v.SetDefault("app.prompts_dir", "prompts")

	v.SetDefault("memory.type", "sqlite")
	v.SetDefault("memory.path", "helmsman.db")
	v.SetDefault("memory.history_limit", 10)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.service_name", "helmsman")
	v.SetDefault("logger.oracle_log", filepath.Join("logs", "oracle.jsonl"))
	v.SetDefault("logger.max_size", 10)
	v.SetDefault("logger.max_backups", 1)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.colors.debug", "cyan")
	v.SetDefault("logger.colors.info", "green")
	v.SetDefault("logger.colors.warn", "yellow")
	v.SetDefault("logger.colors.error", "red")

	v.SetDefault("executor.shell", "/bin/sh")
	v.SetDefault("executor.timeout", 60*time.Second)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.action_timeout", 30*time.Second)
	v.SetDefault("browser.search_url", "https://duckduckgo.com/?q=")
	v.SetDefault("browser.adaptive", false)
	v.SetDefault("browser.max_iterations", 20)
	v.SetDefault("browser.step_delay", time.Second)
	v.SetDefault("browser.fallback_distance", 500)

	v.SetDefault("gateways.telegram.confirm_timeout", 2*time.Minute)
}

// Load reads path (JSON or YAML by extension) over the defaults and applies
// HELMSMAN_* environment overrides. A missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix("HELMSMAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		expanded, err := homedir.Expand(path)
		if err != nil {
			return nil, fmt.Errorf("expand config path: %w", err)
		}
		v.SetConfigFile(expanded)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.applyFallbacks()
	return &cfg, nil
}

// applyFallbacks fills values that viper cannot default because they live
// inside maps or must never be zero.
func (c *Config) applyFallbacks() {
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		if c.Providers == nil {
			c.Providers = make(map[string]ProviderConfig)
		}
		p, ok := c.Providers["openai"]
		if !ok {
			p = ProviderConfig{Model: "gpt-4o-mini", Enabled: true}
		}
		if p.APIKey == "" {
			p.APIKey = key
		}
		c.Providers["openai"] = p
	}
	if c.Browser.MaxIterations <= 0 {
		c.Browser.MaxIterations = 20
	}
	if c.Browser.FallbackDistance <= 0 {
		c.Browser.FallbackDistance = 500
	}
	if c.Executor.Timeout <= 0 {
		c.Executor.Timeout = 60 * time.Second
	}
	if c.Memory.HistoryLimit <= 0 {
		c.Memory.HistoryLimit = 10
	}
	for _, p := range []*string{&c.Memory.Path, &c.Browser.ScreenshotDir, &c.App.Workspace, &c.App.PromptsDir, &c.Executor.WorkDir} {
		if expanded, err := homedir.Expand(*p); err == nil {
			*p = expanded
		}
	}
}

// WriteDefault writes a starter YAML configuration to path. It refuses to
// overwrite an existing file.
func WriteDefault(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists", path)
	}
	v := viper.New()
	SetDefaults(v)
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return err
	}
	cfg.Providers = map[string]ProviderConfig{
		"openai": {Model: "gpt-4o-mini", Enabled: true},
	}
	cfg.Gateways = map[string]GatewayConfig{
		"telegram": {ConfirmTimeout: 2 * time.Minute},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("marshal default config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

// GetDefaultProvider returns the first enabled provider
func (c *Config) GetDefaultProvider() (string, ProviderConfig) {
	for name, p := range c.Providers {
		if p.Enabled {
			return name, p
		}
	}
	return "", ProviderConfig{}
}

// GetTelegramConfig returns telegram config if enabled
func (c *Config) GetTelegramConfig() (GatewayConfig, bool) {
	tg, ok := c.Gateways["telegram"]
	if ok && tg.Enabled && tg.Token != "" {
		if tg.ConfirmTimeout <= 0 {
			tg.ConfirmTimeout = 2 * time.Minute
		}
		return tg, true
	}
	return GatewayConfig{}, false
}
