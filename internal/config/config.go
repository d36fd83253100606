// Package config loads file-based configuration. Timeout knobs are written
// in seconds in config.yaml (they line up with the Retry-After header); the
// accessors convert to time.Duration once so the rest of the service only
// ever sees durations.
package config

import (
	"log/slog"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/danielledeleo/wikiprint/internal/logger"
)

const configFilename = "config.yaml"

// Config holds the service configuration as read from config.yaml.
type Config struct {
	Host      string `yaml:"host"`
	LogFormat string `yaml:"log_format"`
	LogLevel  string `yaml:"log_level"`

	// Render queue sizing. Timeouts are in seconds.
	RenderConcurrency  int `yaml:"render_concurrency"`
	QueueTimeoutSecs   int `yaml:"queue_timeout"`
	RenderTimeoutSecs  int `yaml:"render_execution_timeout"`
	MaxRenderQueueSize int `yaml:"max_render_queue_size"`

	// Browser settings.
	ChromePath      string   `yaml:"chrome_path"`
	ChromeFlags     []string `yaml:"chrome_flags"`
	UserAgent       string   `yaml:"user_agent"`
	MobileUserAgent string   `yaml:"mobile_user_agent"`

	// HostBlacklist is a regex matched case-insensitively against the
	// host of every URL the browser is asked to fetch.
	HostBlacklist string `yaml:"host_blacklist"`

	// PDF options.
	PDFMarginInches    float64 `yaml:"pdf_margin_inches"`
	PDFPrintBackground bool    `yaml:"pdf_print_background"`

	// Upstream wiki endpoints and per-job header overrides.
	RenderURLTemplate string            `yaml:"render_url_template"`
	ProbeURLTemplate  string            `yaml:"probe_url_template"`
	RequestHeaders    map[string]string `yaml:"request_headers"`

	denyHosts *regexp.Regexp
}

// QueueTimeout is the in-core (millisecond-resolution) queue residency budget.
func (c *Config) QueueTimeout() time.Duration {
	return time.Duration(c.QueueTimeoutSecs) * time.Second
}

// RenderTimeout is the in-core execution budget for a started render.
func (c *Config) RenderTimeout() time.Duration {
	return time.Duration(c.RenderTimeoutSecs) * time.Second
}

// DenyHosts is the compiled, case-insensitive host deny regex, or nil when
// no blacklist is configured.
func (c *Config) DenyHosts() *regexp.Regexp {
	return c.denyHosts
}

// SetupConfig reads config.yaml, initializes the logger, and writes a
// default config file on first run.
func SetupConfig() *Config {
	viper.SetDefault("host", "0.0.0.0:3030")
	viper.SetDefault("log_format", "pretty") // pretty, json, or text
	viper.SetDefault("log_level", "info")    // debug, info, warn, error
	viper.SetDefault("render_concurrency", 2)
	viper.SetDefault("queue_timeout", 60)            // seconds
	viper.SetDefault("render_execution_timeout", 90) // seconds
	viper.SetDefault("max_render_queue_size", 50)
	viper.SetDefault("chrome_flags", []string{"--no-sandbox", "--disable-dev-shm-usage"})
	viper.SetDefault("user_agent", "wikiprint/1 (PDF render service)")
	viper.SetDefault("mobile_user_agent", "")
	viper.SetDefault("host_blacklist", `^(localhost|127\.0\.0\.1|\[?::1\]?|10\.\d+\.\d+\.\d+|192\.168\.\d+\.\d+)$`)
	viper.SetDefault("pdf_margin_inches", 0.5)
	viper.SetDefault("pdf_print_background", true)
	viper.SetDefault("render_url_template", "")
	viper.SetDefault("probe_url_template", "")

	viper.SetConfigFile(configFilename)
	viper.AddConfigPath(".")
	err := viper.ReadInConfig()

	createDefaultConfigFile := false

	if err != nil {
		if strings.Contains(err.Error(), "no such file or directory") {
			createDefaultConfigFile = true
		} else {
			slog.Error("failed to read config", "error", err)
			os.Exit(1)
		}
	}

	// Initialize logger with configured format and level
	logger.InitLogger(
		logger.ParseLogFormat(viper.GetString("log_format")),
		logger.ParseLogLevel(viper.GetString("log_level")),
	)

	config := &Config{
		Host:               viper.GetString("host"),
		LogFormat:          viper.GetString("log_format"),
		LogLevel:           viper.GetString("log_level"),
		RenderConcurrency:  viper.GetInt("render_concurrency"),
		QueueTimeoutSecs:   viper.GetInt("queue_timeout"),
		RenderTimeoutSecs:  viper.GetInt("render_execution_timeout"),
		MaxRenderQueueSize: viper.GetInt("max_render_queue_size"),
		ChromePath:         viper.GetString("chrome_path"),
		ChromeFlags:        viper.GetStringSlice("chrome_flags"),
		UserAgent:          viper.GetString("user_agent"),
		MobileUserAgent:    viper.GetString("mobile_user_agent"),
		HostBlacklist:      viper.GetString("host_blacklist"),
		PDFMarginInches:    viper.GetFloat64("pdf_margin_inches"),
		PDFPrintBackground: viper.GetBool("pdf_print_background"),
		RenderURLTemplate:  viper.GetString("render_url_template"),
		ProbeURLTemplate:   viper.GetString("probe_url_template"),
		RequestHeaders:     viper.GetStringMapString("request_headers"),
	}

	if err := config.Compile(); err != nil {
		slog.Error("invalid host_blacklist regex", "error", err)
		os.Exit(1)
	}

	if createDefaultConfigFile {
		slog.Info("config not found, writing defaults", "file", configFilename)
		conf, err := os.Create(configFilename)
		if err != nil {
			slog.Error("failed to create config file", "error", err)
			os.Exit(1)
		}

		if err := yaml.NewEncoder(conf).Encode(config); err != nil {
			slog.Error("failed to write config file", "error", err)
			os.Exit(1)
		}
	}

	return config
}

// Compile validates and compiles the host blacklist. Exposed so tests can
// build configs without going through viper.
func (c *Config) Compile() error {
	if c.HostBlacklist == "" {
		c.denyHosts = nil
		return nil
	}
	re, err := regexp.Compile("(?i)" + c.HostBlacklist)
	if err != nil {
		return err
	}
	c.denyHosts = re
	return nil
}
