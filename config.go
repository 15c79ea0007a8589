package main

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"gregoryjjb/pinrelay/gpio"
	"gregoryjjb/pinrelay/relay"
)

const (
	ConfigFileName = "pinrelay.toml"

	DefaultHost   = "0.0.0.0"
	DefaultPort   = 8000
	DefaultDriver = gpio.DriverSimulated
)

var ErrValidation = errors.New("invalid config")

// Flags are the command line overrides. Zero values mean "not set".
type Flags struct {
	ConfigPath string
	Host       string
	Port       int
	Driver     string
	Level      string
}

type HTTPServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// tomlConfig mirrors the layout of pinrelay.toml
type tomlConfig struct {
	HTTPServer  HTTPServerConfig `toml:"http_server"`
	Driver      string           `toml:"driver"`
	AllowedPins []int            `toml:"allowed_pins"`
	HistorySize int              `toml:"history_size"`
	LogLevel    string           `toml:"log_level"`
}

type Config struct {
	HTTPServer  HTTPServerConfig
	Driver      string
	AllowedPins []int
	HistorySize int
	LogLevel    zerolog.Level

	// Path of the config file that was loaded, empty if none
	Path string
}

// NewConfig layers defaults, the TOML file, the environment and flags,
// in increasing order of precedence.
func NewConfig(fsys PinrelayFS, flags Flags, getenv func(string) string) (*Config, error) {
	t := tomlConfig{
		HTTPServer: HTTPServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Driver:      DefaultDriver,
		HistorySize: relay.DefaultHistorySize,
		LogLevel:    zerolog.LevelInfoValue,
	}

	path, err := findConfigFile(fsys, flags.ConfigPath, getenv)
	if err != nil {
		return nil, err
	}
	if path != "" {
		data, err := afero.ReadFile(fsys, path)
		if err != nil {
			return nil, fmt.Errorf("read config %q: %w", path, err)
		}
		if err := toml.Unmarshal(data, &t); err != nil {
			return nil, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	if v := getenv("HOST"); v != "" {
		t.HTTPServer.Host = v
	}
	if v := getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("%w: PORT %q is not a number", ErrValidation, v)
		}
		t.HTTPServer.Port = port
	}
	if v := getenv("PINRELAY_DRIVER"); v != "" {
		t.Driver = v
	}
	if v := getenv("PINRELAY_LOG_LEVEL"); v != "" {
		t.LogLevel = v
	}

	if flags.Host != "" {
		t.HTTPServer.Host = flags.Host
	}
	if flags.Port != 0 {
		t.HTTPServer.Port = flags.Port
	}
	if flags.Driver != "" {
		t.Driver = flags.Driver
	}
	if flags.Level != "" {
		t.LogLevel = flags.Level
	}

	c := &Config{
		HTTPServer:  t.HTTPServer,
		Driver:      t.Driver,
		AllowedPins: t.AllowedPins,
		HistorySize: t.HistorySize,
		Path:        path,
	}
	c.LogLevel, err = zerolog.ParseLevel(t.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("%w: log level: %v", ErrValidation, err)
	}

	if err := c.validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) validate() error {
	if c.HTTPServer.Port < 1 || c.HTTPServer.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrValidation, c.HTTPServer.Port)
	}
	switch c.Driver {
	case gpio.DriverRPIO, gpio.DriverPeriph, gpio.DriverSimulated:
	default:
		return fmt.Errorf("%w: unknown driver %q", ErrValidation, c.Driver)
	}
	for _, pin := range c.AllowedPins {
		if pin < 0 {
			return fmt.Errorf("%w: allowed pin %d is negative", ErrValidation, pin)
		}
	}
	if c.HistorySize < 0 {
		return fmt.Errorf("%w: history_size cannot be negative", ErrValidation)
	}
	return nil
}

// Address is the host:port the HTTP server listens on
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.HTTPServer.Host, c.HTTPServer.Port)
}

// findConfigFile returns the explicit path if given (it must exist),
// otherwise the first of the working directory and the user config dir
// that holds a config file, otherwise "".
func findConfigFile(fsys PinrelayFS, explicit string, getenv func(string) string) (string, error) {
	if explicit == "" {
		explicit = getenv("PINRELAY_CONFIG")
	}
	if explicit != "" {
		path, err := fsys.Abs(explicit)
		if err != nil {
			return "", err
		}
		if _, err := fsys.Stat(path); err != nil {
			return "", fmt.Errorf("config file %q: %w", path, err)
		}
		return path, nil
	}

	var candidates []string
	if cwdPath, err := fsys.Abs(ConfigFileName); err == nil {
		candidates = append(candidates, cwdPath)
	}
	if home, err := fsys.HomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "pinrelay", ConfigFileName))
	}

	for _, path := range candidates {
		_, err := fsys.Stat(path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", err
		}
	}
	return "", nil
}
