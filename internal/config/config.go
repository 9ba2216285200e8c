// Package config provides Viper-based configuration loading for the game server.
package config

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ListenerConfig holds TCP listener settings for the line protocol.
type ListenerConfig struct {
	// Host is the bind address for the game listener.
	Host string `mapstructure:"host" yaml:"host"`
	// Port is the TCP port for the game listener.
	Port int `mapstructure:"port" yaml:"port"`
	// ReadTimeout is the per-read timeout. Zero disables it: an idle client
	// simply never progresses its game.
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	// WriteTimeout bounds a single line write to a client.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	// ShutdownGrace is how long Stop waits for connection workers to exit.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace" yaml:"shutdown_grace"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// WebSocketConfig holds settings for the optional WebSocket listener.
type WebSocketConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Host    string `mapstructure:"host" yaml:"host"`
	Port    int    `mapstructure:"port" yaml:"port"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// Addr returns the "host:port" listen address.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// AdminConfig holds the gRPC admin (health) endpoint settings.
type AdminConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	GRPCHost string `mapstructure:"grpc_host" yaml:"grpc_host"`
	GRPCPort int    `mapstructure:"grpc_port" yaml:"grpc_port"`
}

// Addr returns the "host:port" gRPC address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.GRPCHost, a.GRPCPort)
}

// GameConfig holds matchmaking and session defaults.
type GameConfig struct {
	// GridSizes lists the board sizes clients may request.
	GridSizes []int `mapstructure:"grid_sizes" yaml:"grid_sizes"`
	// DefaultGridSize is the size a session holds before it sends GRIDSIZE.
	DefaultGridSize int `mapstructure:"default_grid_size" yaml:"default_grid_size"`
	// DefaultName is the display name a session holds before it sends NAME.
	DefaultName string `mapstructure:"default_name" yaml:"default_name"`
}

// Supports reports whether size is an allowed grid size.
func (g GameConfig) Supports(size int) bool {
	return slices.Contains(g.GridSizes, size)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level" yaml:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format" yaml:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Listener  ListenerConfig  `mapstructure:"listener" yaml:"listener"`
	WebSocket WebSocketConfig `mapstructure:"websocket" yaml:"websocket"`
	Admin     AdminConfig     `mapstructure:"admin" yaml:"admin"`
	Game      GameConfig      `mapstructure:"game" yaml:"game"`
	Logging   LoggingConfig   `mapstructure:"logging" yaml:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateListener(c.Listener); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateWebSocket(c.WebSocket); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateAdmin(c.Admin); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validatePort(key string, port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("%s must be 1-65535, got %d", key, port)
	}
	return nil
}

func validateListener(l ListenerConfig) error {
	var errs []string
	if err := validatePort("listener.port", l.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, "listener.read_timeout must not be negative")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "listener.write_timeout must not be negative")
	}
	if l.ShutdownGrace < 0 {
		errs = append(errs, "listener.shutdown_grace must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	if !w.Enabled {
		return nil
	}
	var errs []string
	if err := validatePort("websocket.port", w.Port); err != nil {
		errs = append(errs, err.Error())
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	if !a.Enabled {
		return nil
	}
	var errs []string
	if a.GRPCHost == "" {
		errs = append(errs, "admin.grpc_host must not be empty")
	}
	if err := validatePort("admin.grpc_port", a.GRPCPort); err != nil {
		errs = append(errs, err.Error())
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if len(g.GridSizes) == 0 {
		errs = append(errs, "game.grid_sizes must not be empty")
	}
	for _, size := range g.GridSizes {
		if size < 3 || size%2 == 0 {
			errs = append(errs, fmt.Sprintf("game.grid_sizes entries must be odd and >= 3, got %d", size))
		}
	}
	if !g.Supports(g.DefaultGridSize) {
		errs = append(errs, fmt.Sprintf("game.default_grid_size %d is not listed in game.grid_sizes", g.DefaultGridSize))
	}
	if strings.TrimSpace(g.DefaultName) == "" {
		errs = append(errs, "game.default_name must not be empty")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result. A missing file is not an error: defaults
// and environment overrides still apply.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()

	// Environment variable overrides with TTT_ prefix
	v.SetEnvPrefix("TTT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			v.SetConfigFile(path)
			if err := v.ReadInConfig(); err != nil {
				return Config{}, fmt.Errorf("reading config file: %w", err)
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("checking config file: %w", err)
		}
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when no file or environment override is present.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Defaults are static and always decode.
	_ = v.Unmarshal(&cfg)
	return cfg
}

// Dump renders cfg as YAML in the same shape Load accepts.
func Dump(cfg Config) ([]byte, error) {
	out, err := yaml.Marshal(cfg)
	if err != nil {
		return nil, fmt.Errorf("marshalling config: %w", err)
	}
	return out, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listener.host", "0.0.0.0")
	v.SetDefault("listener.port", 6000)
	v.SetDefault("listener.read_timeout", "0s")
	v.SetDefault("listener.write_timeout", "30s")
	v.SetDefault("listener.shutdown_grace", "5s")

	v.SetDefault("websocket.enabled", false)
	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 6080)
	v.SetDefault("websocket.path", "/ws")

	v.SetDefault("admin.enabled", true)
	v.SetDefault("admin.grpc_host", "127.0.0.1")
	v.SetDefault("admin.grpc_port", 6051)

	v.SetDefault("game.grid_sizes", []int{3, 5, 7})
	v.SetDefault("game.default_grid_size", 3)
	v.SetDefault("game.default_name", "Player")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
