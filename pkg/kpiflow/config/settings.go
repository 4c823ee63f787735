package config

import (
	"errors"
	"fmt"
	"time"
)

// Store drivers understood by store.Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverGorm   = "gorm"
)

// Settings is the typed configuration of a kpiflow process.
type Settings struct {
	// Addr is the HTTP listen address.
	Addr string

	Store     StoreSettings
	Retention RetentionSettings
	Log       LogSettings
	Expr      ExprSettings
	Telemetry TelemetrySettings
}

// StoreSettings selects the record store.
type StoreSettings struct {
	// Driver is one of "memory", "sqlite" or "gorm".
	Driver string
	// Path is the database file. Ignored by the memory driver.
	Path string
}

// RetentionSettings controls pruning of old evaluation results.
type RetentionSettings struct {
	// MaxAge is how long results are kept. Zero keeps them forever.
	MaxAge time.Duration
	// Interval is the time between sweeps.
	Interval time.Duration
}

// LogSettings configures the slog handler.
type LogSettings struct {
	Level  string // debug, info, warn, error
	Format string // text or json
}

// ExprSettings configures the formula evaluator.
type ExprSettings struct {
	Placeholder string
	// MaxLength caps substituted expression length in bytes. Zero disables the cap.
	MaxLength int
}

// TelemetrySettings toggles OpenTelemetry metrics and tracing.
type TelemetrySettings struct {
	Enabled bool
}

// Defaults returns the settings used when no configuration is given.
func Defaults() Settings {
	return Settings{
		Addr: ":8080",
		Store: StoreSettings{
			Driver: DriverSQLite,
			Path:   "kpiflow.db",
		},
		Retention: RetentionSettings{
			Interval: time.Hour,
		},
		Log: LogSettings{
			Level:  "info",
			Format: "text",
		},
		Expr: ExprSettings{
			Placeholder: "ATTR",
			MaxLength:   4096,
		},
	}
}

// FromConfig reads Settings out of a Config, falling back to Defaults for
// anything missing.
func FromConfig(cfg Config) Settings {
	s := Defaults()
	s.Addr = cfg.String("addr", s.Addr)

	st := cfg.Section("store")
	s.Store.Driver = st.String("driver", s.Store.Driver)
	s.Store.Path = st.String("path", s.Store.Path)

	rt := cfg.Section("retention")
	s.Retention.MaxAge = rt.Duration("max_age", s.Retention.MaxAge)
	s.Retention.Interval = rt.Duration("interval", s.Retention.Interval)

	lg := cfg.Section("log")
	s.Log.Level = lg.String("level", s.Log.Level)
	s.Log.Format = lg.String("format", s.Log.Format)

	ex := cfg.Section("expr")
	s.Expr.Placeholder = ex.String("placeholder", s.Expr.Placeholder)
	s.Expr.MaxLength = ex.Int("max_length", s.Expr.MaxLength)

	s.Telemetry.Enabled = cfg.Section("telemetry").Bool("enabled", s.Telemetry.Enabled)
	return s
}

// Load reads and validates settings from a YAML or JSON file. An empty path
// returns Defaults.
func Load(path string) (Settings, error) {
	if path == "" {
		return Defaults(), nil
	}
	cfg, err := FromFile(path)
	if err != nil {
		return Settings{}, err
	}
	s := FromConfig(cfg)
	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// Validate reports the first invalid setting.
func (s Settings) Validate() error {
	switch s.Store.Driver {
	case DriverMemory:
	case DriverSQLite, DriverGorm:
		if s.Store.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", s.Store.Driver)
		}
	default:
		return fmt.Errorf("unknown store driver %q", s.Store.Driver)
	}
	if s.Retention.MaxAge < 0 {
		return errors.New("retention.max_age must not be negative")
	}
	if s.Retention.MaxAge > 0 && s.Retention.Interval <= 0 {
		return errors.New("retention.interval must be positive when retention is enabled")
	}
	if s.Expr.MaxLength < 0 {
		return errors.New("expr.max_length must not be negative")
	}
	switch s.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", s.Log.Format)
	}
	return nil
}
