// Package config loads the daemon configuration from a JSON file and the
// environment.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/metroloop/metroloop/common"
	"github.com/metroloop/metroloop/internal/scheduler"
	"github.com/metroloop/metroloop/internal/transport"
	"github.com/spf13/afero"
)

// ErrInvalidConfig wraps every error returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

const (
	DefaultListen          = "127.0.0.1"
	DefaultMaxConns        = 64
	DefaultShutdownTimeout = 5 * time.Second
)

// Duration is a time.Duration that reads and writes JSON as "25ms" style
// strings. Bare numbers are taken as milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var ms float64
	if err := json.Unmarshal(b, &ms); err != nil {
		return fmt.Errorf("duration must be a string like \"25ms\" or a number of milliseconds: %s", b)
	}
	*d = Duration(ms * float64(time.Millisecond))
	return nil
}

// D returns the value as a time.Duration.
func (d Duration) D() time.Duration { return time.Duration(d) }

// Defaults are the transport settings used when a start request leaves
// them to the daemon, e.g. a bare "metroloop start".
type Defaults struct {
	BPM             float64 `json:"bpm"`
	TimeSignature   string  `json:"timeSignature"`
	MeasuresPerLoop int     `json:"measuresPerLoop"`
}

// Config is the daemon configuration.
type Config struct {
	Listen          string   `json:"listen"`
	Port            int      `json:"port"`
	Secret          string   `json:"secret,omitempty"`
	AllowedOrigins  []string `json:"allowedOrigins,omitempty"`
	MaxConns        int      `json:"maxConns"`
	PollInterval    Duration `json:"pollInterval"`
	Lookahead       Duration `json:"lookahead"`
	ShutdownTimeout Duration `json:"shutdownTimeout"`
	Debug           bool     `json:"debug"`
	Defaults        Defaults `json:"defaults"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Listen:          DefaultListen,
		Port:            common.DefaultPort,
		MaxConns:        DefaultMaxConns,
		PollInterval:    Duration(scheduler.DefaultPollInterval),
		Lookahead:       Duration(scheduler.DefaultLookahead),
		ShutdownTimeout: Duration(DefaultShutdownTimeout),
		Defaults: Defaults{
			BPM:             transport.DefaultBPM,
			TimeSignature:   transport.DefaultMeter.String(),
			MeasuresPerLoop: transport.DefaultMeasuresPerLoop,
		},
	}
}

// DefaultPath returns <user config dir>/metroloop/config.json.
func DefaultPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "metroloop", "config.json"), nil
}

// Load builds a configuration from the defaults, the JSON file and the
// environment, in that order of precedence. The file is path if given,
// else $METROLOOP_CONFIG, else DefaultPath; only the last may be missing.
// getenv is usually os.Getenv. The result is not validated.
func Load(fsys afero.Fs, path string, getenv func(string) string) (*Config, error) {
	cfg := Default()

	required := true
	if path == "" {
		path = getenv(common.ConfigEnv)
	}
	if path == "" {
		p, err := DefaultPath()
		if err != nil {
			return nil, fmt.Errorf("failed to locate config directory: %w", err)
		}
		path, required = p, false
	}

	data, err := afero.ReadFile(fsys, path)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !required:
	case err != nil:
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(getenv); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as indented JSON, creating parent
// directories as needed.
func Save(fsys afero.Fs, path string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return afero.WriteFile(fsys, path, append(data, '\n'), 0o600)
}

// ApplyEnv overrides fields from METROLOOP_* environment variables.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	if v := getenv(common.ListenEnv); v != "" {
		c.Listen = v
	}
	if v := getenv(common.PortEnv); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.PortEnv, err)
		}
		c.Port = port
	}
	if v := getenv(common.SecretEnv); v != "" {
		c.Secret = v
	}
	if v := getenv(common.MaxConnsEnv); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.MaxConnsEnv, err)
		}
		c.MaxConns = n
	}
	if v := getenv(common.PollIntervalEnv); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.PollIntervalEnv, err)
		}
		c.PollInterval = Duration(d)
	}
	if v := getenv(common.LookaheadEnv); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", common.LookaheadEnv, err)
		}
		c.Lookahead = Duration(d)
	}
	if v := getenv(common.DebugEnv); v != "" {
		c.Debug = v == "1" || strings.EqualFold(v, "true")
	}
	return nil
}

// Addr returns the host:port the daemon listens on.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Listen, strconv.Itoa(c.Port))
}

// Settings converts Defaults into validated transport settings.
func (c *Config) Settings() (transport.Settings, error) {
	meter, err := transport.ParseMeter(c.Defaults.TimeSignature)
	if err != nil {
		return transport.Settings{}, err
	}
	s := transport.Settings{
		Tempo: transport.Tempo{BPM: c.Defaults.BPM},
		Meter: meter,
		Loop:  transport.Loop{MeasuresPerLoop: c.Defaults.MeasuresPerLoop},
	}
	if err := transport.NewState().ApplyUpdate(s.Update()); err != nil {
		return transport.Settings{}, err
	}
	return s, nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	switch {
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", ErrInvalidConfig, c.Port)
	case c.MaxConns < 0:
		return fmt.Errorf("%w: maxConns must not be negative", ErrInvalidConfig)
	case c.PollInterval <= 0:
		return fmt.Errorf("%w: pollInterval must be positive", ErrInvalidConfig)
	case c.Lookahead <= c.PollInterval:
		return fmt.Errorf("%w: lookahead %s must be greater than pollInterval %s",
			ErrInvalidConfig, c.Lookahead.D(), c.PollInterval.D())
	case c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: shutdownTimeout must be positive", ErrInvalidConfig)
	}
	if _, err := c.Settings(); err != nil {
		return fmt.Errorf("%w: defaults: %v", ErrInvalidConfig, err)
	}
	return nil
}
