// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the merged view of defaults, config file, environment and flags
type Config struct {
	Serial    SerialConfig    `mapstructure:"serial"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Log       LogConfig       `mapstructure:"log"`
	Monitor   MonitorConfig   `mapstructure:"monitor"`
	Indicator IndicatorConfig `mapstructure:"indicator"`
	Reporter  ReporterConfig  `mapstructure:"reporter"`
}

// SerialConfig selects the UART device
type SerialConfig struct {
	Port    string        `mapstructure:"port"`
	Baud    int           `mapstructure:"baud"`
	RX      int           `mapstructure:"rx"`
	TX      int           `mapstructure:"tx"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// BridgeConfig selects a WebSocket UART bridge instead of a local port
type BridgeConfig struct {
	URL         string `mapstructure:"url"`
	Username    string `mapstructure:"username"`
	NoSSLVerify bool   `mapstructure:"no_ssl_verify"`
}

// LogConfig configures logrus output
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// MonitorConfig tunes the control loop
type MonitorConfig struct {
	Interval      time.Duration `mapstructure:"interval"`
	Retries       int           `mapstructure:"retries"`
	Backoff       time.Duration `mapstructure:"backoff"`
	Range         int           `mapstructure:"range"`
	Moderate      uint16        `mapstructure:"moderate"`
	Poor          uint16        `mapstructure:"poor"`
	MetricsAddr   string        `mapstructure:"metrics_addr"`
	StatsInterval time.Duration `mapstructure:"stats_interval"`
	TUI           bool          `mapstructure:"tui"`
}

// IndicatorConfig names the GPIO lines of the tri-color LED. Empty names
// leave that line disconnected.
type IndicatorConfig struct {
	Green string `mapstructure:"green"`
	Red   string `mapstructure:"red"`
	Blue  string `mapstructure:"blue"`
}

// ReporterConfig selects where readings are sent
type ReporterConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	SSID      string  `mapstructure:"ssid"`
	WPS       bool    `mapstructure:"wps"`
	Interface string  `mapstructure:"interface"`
	Host      string  `mapstructure:"host"`
	Port      uint16  `mapstructure:"port"`
	Transport string  `mapstructure:"transport"`
	Codec     string  `mapstructure:"codec"`
	Path      string  `mapstructure:"path"`
	Topic     string  `mapstructure:"topic"`
	Username  string  `mapstructure:"username"`
	RateLimit float64 `mapstructure:"rate_limit"`
}

// envPrefix is prepended to every environment override, e.g. NDIRSTAT_SERIAL_PORT
const envPrefix = "NDIRSTAT"

// cfg holds the configuration loaded before each command runs
var cfg = defaultConfig()

// flagBindings maps config keys to flag names
var flagBindings = map[string]string{
	"serial.port":            "port",
	"serial.baud":            "baud",
	"serial.rx":              "rx",
	"serial.tx":              "tx",
	"serial.timeout":         "timeout",
	"bridge.url":             "url",
	"bridge.username":        "username",
	"bridge.no_ssl_verify":   "no-ssl-verify",
	"log.level":              "log-level",
	"log.file":               "log-file",
	"monitor.interval":       "interval",
	"monitor.retries":        "retries",
	"monitor.backoff":        "backoff",
	"monitor.range":          "range",
	"monitor.metrics_addr":   "metrics-addr",
	"monitor.tui":            "tui",
	"monitor.stats_interval": "stats-interval",
	"indicator.green":        "led-green",
	"indicator.red":          "led-red",
	"indicator.blue":         "led-blue",
	"reporter.enabled":       "report",
	"reporter.host":          "server",
	"reporter.port":          "server-port",
	"reporter.transport":     "transport",
	"reporter.codec":         "codec",
	"reporter.ssid":          "ssid",
	"reporter.wps":           "wps",
}

func defaultConfig() *Config {
	c := &Config{}
	c.Serial.Baud = 9600
	c.Serial.Timeout = time.Second
	c.Log.Level = "info"
	return c
}

func setDefaults(v *viper.Viper) {
	// Every key needs a default so environment overrides reach Unmarshal
	v.SetDefault("serial.port", "")
	v.SetDefault("serial.baud", 9600)
	v.SetDefault("serial.rx", 0)
	v.SetDefault("serial.tx", 0)
	v.SetDefault("serial.timeout", "1s")

	v.SetDefault("bridge.url", "")
	v.SetDefault("bridge.username", "")
	v.SetDefault("bridge.no_ssl_verify", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.compress", false)
	v.SetDefault("log.max_size_mb", 10)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 28)

	v.SetDefault("monitor.interval", "5s")
	v.SetDefault("monitor.retries", 2)
	v.SetDefault("monitor.backoff", "200ms")
	v.SetDefault("monitor.range", 5000)
	v.SetDefault("monitor.moderate", 1000)
	v.SetDefault("monitor.poor", 2000)
	v.SetDefault("monitor.stats_interval", "60s")
	v.SetDefault("monitor.metrics_addr", "")
	v.SetDefault("monitor.tui", true)

	v.SetDefault("indicator.green", "")
	v.SetDefault("indicator.red", "")
	v.SetDefault("indicator.blue", "")

	v.SetDefault("reporter.enabled", false)
	v.SetDefault("reporter.ssid", "")
	v.SetDefault("reporter.wps", false)
	v.SetDefault("reporter.interface", "")
	v.SetDefault("reporter.host", "")
	v.SetDefault("reporter.port", 5000)
	v.SetDefault("reporter.transport", "tcp")
	v.SetDefault("reporter.codec", "json")
	v.SetDefault("reporter.path", "/")
	v.SetDefault("reporter.topic", "")
	v.SetDefault("reporter.username", "")
	v.SetDefault("reporter.rate_limit", 0)
}

// loadConfig merges the config file, NDIRSTAT_* environment and the flags
// of the running command. A missing config file is not an error.
func loadConfig(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	if path == "" {
		v.SetEnvPrefix(envPrefix)
		_ = v.BindEnv("config")
		path = v.GetString("config")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/ndirstat")
		v.SetConfigName("ndirstat")
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if flags != nil {
		for key, name := range flagBindings {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	c := &Config{}
	if err := v.Unmarshal(c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return c, nil
}
