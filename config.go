package main

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"slices"
	"sort"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/peterbourgon/ff/v3"

	"github.com/shazow/wifibridge/internal/api"
	"github.com/shazow/wifibridge/internal/bridge"
	"github.com/shazow/wifibridge/wifi"
	"github.com/shazow/wifibridge/wifi/connman"
)

const envVarPrefix = "WIFIBRIDGE"

var backends = []string{"connman", "networkmanager", "mock"}

// Config is the shared configuration of every command. Values come from
// flags, then WIFIBRIDGE_* environment variables, then the config file.
type Config struct {
	ConfigFile       string
	Listen           string
	Backend          string
	Interface        string
	MacAddress       string
	ConnectTimeout   time.Duration
	SubscriberBuffer int
	LogLevel         string
	LogJSON          bool
	AgentPath        string
}

func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.ConfigFile, "config", "", "path to a toml config file (env: WIFIBRIDGE_CONFIG)")
	fs.StringVar(&c.Listen, "listen", api.DefaultListen, "address of the local API")
	fs.StringVar(&c.Backend, "backend", "connman", "remote network service: connman, networkmanager or mock")
	fs.StringVar(&c.Interface, "interface", bridge.DefaultInterface, "interface name reported in ipInfo")
	fs.StringVar(&c.MacAddress, "mac-address", bridge.DefaultInfo.MacAddress, "MAC address reported by getinfo")
	fs.DurationVar(&c.ConnectTimeout, "connect-timeout", bridge.DefaultConnectTimeout, "how long a connect may stay pending, 0 to wait forever")
	fs.IntVar(&c.SubscriberBuffer, "subscriber-buffer", bridge.DefaultSubscriberBuffer, "pushes queued per subscriber before dropping")
	fs.StringVar(&c.LogLevel, "log-level", "info", "log level: debug, info, warn or error")
	fs.BoolVar(&c.LogJSON, "log-json", false, "log as JSON instead of text")
	fs.StringVar(&c.AgentPath, "agent-path", connman.DefaultAgentPath, "object path of the exported connman agent")
}

// Options are the ff parse options used for the root flag set.
func (c *Config) Options() []ff.Option {
	return []ff.Option{
		ff.WithEnvVarPrefix(envVarPrefix),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(tomlParser),
	}
}

// Validate checks the values that flag parsing cannot.
func (c *Config) Validate() error {
	if !slices.Contains(backends, c.Backend) {
		return fmt.Errorf("unknown backend %q, expected one of %v", c.Backend, backends)
	}
	if c.ConnectTimeout < 0 {
		return fmt.Errorf("connect-timeout must not be negative: %s", c.ConnectTimeout)
	}
	if c.SubscriberBuffer < 1 {
		return fmt.Errorf("subscriber-buffer must be at least 1: %d", c.SubscriberBuffer)
	}
	if _, err := net.ParseMAC(c.MacAddress); err != nil {
		return fmt.Errorf("invalid mac-address: %w", err)
	}
	if _, _, err := net.SplitHostPort(c.Listen); err != nil {
		return fmt.Errorf("invalid listen address: %w", err)
	}
	return nil
}

func (c *Config) bridgeConfig(remote wifi.Remote, logger *slog.Logger) *bridge.Config {
	info := bridge.DefaultInfo
	info.MacAddress = c.MacAddress
	return &bridge.Config{
		Remote:           remote,
		Logger:           logger,
		Interface:        c.Interface,
		Info:             info,
		ConnectTimeout:   c.ConnectTimeout,
		SubscriberBuffer: c.SubscriberBuffer,
	}
}

// tomlParser is an ff.ConfigFileParser for flat toml files. Every top-level
// key names a flag.
func tomlParser(r io.Reader, set func(name, value string) error) error {
	var m map[string]any
	if _, err := toml.NewDecoder(r).Decode(&m); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		switch v := m[k].(type) {
		case map[string]any, []map[string]any:
			return fmt.Errorf("config file key %q: tables are not supported", k)
		case []any:
			for _, item := range v {
				if err := set(k, fmt.Sprint(item)); err != nil {
					return err
				}
			}
		default:
			if err := set(k, fmt.Sprint(v)); err != nil {
				return err
			}
		}
	}
	return nil
}
