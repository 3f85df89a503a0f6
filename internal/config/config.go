// Package config loads the foundry-mcp settings. Values are layered:
// defaults, then a TOML file, then FOUNDRY_* environment variables, then
// command line flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "FOUNDRY_"

// Config holds the binary's settings.
type Config struct {
	URL              string
	UserID           string
	Password         string
	BridgeID         string
	Transport        string
	ListenAddr       string
	RequestTimeout   time.Duration
	RPCTimeout       time.Duration
	HandshakeTimeout time.Duration
	LogLevel         string
	ToolRPS          float64
	ToolBurst        int
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		BridgeID:         "foundry-mcp-bridge",
		Transport:        "stdio",
		ListenAddr:       ":8080",
		RequestTimeout:   30 * time.Second,
		RPCTimeout:       15 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		LogLevel:         "info",
		ToolRPS:          5,
		ToolBurst:        3,
	}
}

type fileConfig struct {
	URL              string  `toml:"url"`
	UserID           string  `toml:"user_id"`
	Password         string  `toml:"password"`
	BridgeID         string  `toml:"bridge_id"`
	Transport        string  `toml:"transport"`
	ListenAddr       string  `toml:"listen_addr"`
	RequestTimeout   string  `toml:"request_timeout"`
	RPCTimeout       string  `toml:"rpc_timeout"`
	HandshakeTimeout string  `toml:"handshake_timeout"`
	LogLevel         string  `toml:"log_level"`
	ToolRPS          float64 `toml:"tool_rps"`
	ToolBurst        int     `toml:"tool_burst"`
}

// setting binds one key to its field. set parses the textual form used by
// environment variables and flags.
type setting struct {
	key   string
	usage string
	set   func(*Config, string) error
}

func (s setting) env() string {
	return EnvPrefix + strings.ToUpper(s.key)
}

func (s setting) flag() string {
	return strings.ReplaceAll(s.key, "_", "-")
}

var settings = []setting{
	{"url", "remote base URL", stringField(func(c *Config) *string { return &c.URL })},
	{"user_id", "user id to log in as", stringField(func(c *Config) *string { return &c.UserID })},
	{"password", "login password", stringField(func(c *Config) *string { return &c.Password })},
	{"bridge_id", "companion module id", stringField(func(c *Config) *string { return &c.BridgeID })},
	{"transport", "MCP transport: stdio, sse or http", stringField(func(c *Config) *string { return &c.Transport })},
	{"listen_addr", "listen address of the HTTP transports", stringField(func(c *Config) *string { return &c.ListenAddr })},
	{"request_timeout", "socket callback timeout", durationField(func(c *Config) *time.Duration { return &c.RequestTimeout })},
	{"rpc_timeout", "default RPC call timeout", durationField(func(c *Config) *time.Duration { return &c.RPCTimeout })},
	{"handshake_timeout", "channel handshake timeout", durationField(func(c *Config) *time.Duration { return &c.HandshakeTimeout })},
	{"log_level", "log level", stringField(func(c *Config) *string { return &c.LogLevel })},
	{"tool_rps", "calls per second allowed per tool", func(c *Config, v string) error {
		rps, err := strconv.ParseFloat(v, 64)
		c.ToolRPS = rps

		return err
	}},
	{"tool_burst", "burst size per tool", func(c *Config, v string) error {
		burst, err := strconv.Atoi(v)
		c.ToolBurst = burst

		return err
	}},
}

func stringField(field func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*field(c) = strings.TrimSpace(v)

		return nil
	}
}

func durationField(field func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*field(c) = d

		return nil
	}
}

// Load resolves the settings from args and the environment. getenv is
// usually os.Getenv. pflag.ErrHelp is returned unchanged.
func Load(args []string, getenv func(string) string) (Config, error) {
	flags := pflag.NewFlagSet("foundry-mcp", pflag.ContinueOnError)
	configPath := flags.String("config", "", "path to a TOML config file (env "+EnvPrefix+"CONFIG)")
	for _, s := range settings {
		flags.String(s.flag(), "", s.usage+" (env "+s.env()+")")
	}
	if err := flags.Parse(args); err != nil {
		return Config{}, err
	}

	cfg := Default()

	path := *configPath
	if path == "" {
		path = getenv(EnvPrefix + "CONFIG")
	}
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	for _, s := range settings {
		if v := getenv(s.env()); v != "" {
			if err := s.set(&cfg, v); err != nil {
				return Config{}, fmt.Errorf("parse %s: %w", s.env(), err)
			}
		}
	}

	for _, s := range settings {
		if !flags.Changed(s.flag()) {
			continue
		}
		v, _ := flags.GetString(s.flag())
		if err := s.set(&cfg, v); err != nil {
			return Config{}, fmt.Errorf("parse --%s: %w", s.flag(), err)
		}
	}

	return cfg, cfg.Validate()
}

func loadFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	values := map[string]string{
		"url":               raw.URL,
		"user_id":           raw.UserID,
		"password":          raw.Password,
		"bridge_id":         raw.BridgeID,
		"transport":         raw.Transport,
		"listen_addr":       raw.ListenAddr,
		"request_timeout":   raw.RequestTimeout,
		"rpc_timeout":       raw.RPCTimeout,
		"handshake_timeout": raw.HandshakeTimeout,
		"log_level":         raw.LogLevel,
	}
	for _, s := range settings {
		if !meta.IsDefined(s.key) {
			continue
		}
		switch s.key {
		case "tool_rps":
			cfg.ToolRPS = raw.ToolRPS
		case "tool_burst":
			cfg.ToolBurst = raw.ToolBurst
		default:
			if err := s.set(cfg, values[s.key]); err != nil {
				return fmt.Errorf("parse %s: %w", s.key, err)
			}
		}
	}

	return nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.URL == "" {
		errs = append(errs, errors.New("url is required"))
	}
	if c.UserID == "" {
		errs = append(errs, errors.New("user_id is required"))
	}
	switch c.Transport {
	case "stdio", "sse", "http":
	default:
		errs = append(errs, fmt.Errorf("transport %q is not one of stdio, sse, http", c.Transport))
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if c.ToolRPS < 0 || c.ToolBurst < 0 {
		errs = append(errs, errors.New("tool_rps and tool_burst must not be negative"))
	}

	return errors.Join(errs...)
}

// Level returns the parsed log level.
func (c Config) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		return zerolog.InfoLevel
	}

	return level
}
