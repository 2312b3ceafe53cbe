package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the saferespawn service.
type Config struct {
	LogLevel string `yaml:"log_level"`

	// Host bridge (HTTP + websocket)
	HTTP HTTPConfig `yaml:"http"`

	// Database (optional cooldown / permission persistence)
	Database DatabaseConfig `yaml:"database"`

	Respawn    Respawn    `yaml:"respawn"`
	Icons      Icons      `yaml:"icons"`
	GUI        GUI        `yaml:"gui"`
	Permission Permission `yaml:"permission"`
	Audit      Audit      `yaml:"audit"`
}

// HTTPConfig holds the host bridge listener settings.
type HTTPConfig struct {
	BindAddress string        `yaml:"bind_address"`
	Port        int           `yaml:"port"`
	CallTimeout time.Duration `yaml:"call_timeout"` // host round-trip deadline (default: 5s)
	ReadTimeout time.Duration `yaml:"read_timeout"` // idle host disconnect (default: 120s)
	QueueSize   int           `yaml:"queue_size"`   // inbound host event queue (default: 256)
}

// Addr returns host:port for the listener.
func (h HTTPConfig) Addr() string {
	return fmt.Sprintf("%s:%d", h.BindAddress, h.Port)
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Icons configures the optional external icon service.
type Icons struct {
	Enabled      bool          `yaml:"enabled"`
	FetchTimeout time.Duration `yaml:"fetch_timeout"`
}

// GUI holds overlay colours. Colours use the host's "r g b a" notation.
type GUI struct {
	TextColor     string `yaml:"text_color"`
	CooldownColor string `yaml:"cooldown_color"`
	DisabledColor string `yaml:"disabled_color"`
	FontSize      int    `yaml:"font_size"`
}

// Permission configures who may use safe respawns.
type Permission struct {
	// Source is "static" (GrantAll / Players below) or "database".
	Source        string        `yaml:"source"`
	GrantAll      bool          `yaml:"grant_all"`
	Players       []uint64      `yaml:"players,omitempty"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	// CacheTTL bounds how long a grant change takes to reach online players.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// Audit configures the compressed respawn audit log.
type Audit struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
	Prefix  string `yaml:"prefix"`
}

// Default returns Config with sensible defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		HTTP: HTTPConfig{
			BindAddress: "127.0.0.1",
			Port:        28090,
			CallTimeout: 5 * time.Second,
			ReadTimeout: 120 * time.Second,
			QueueSize:   256,
		},
		Database: DatabaseConfig{
			Enabled:  false,
			Host:     "127.0.0.1",
			Port:     5432,
			User:     "saferespawn",
			Password: "saferespawn",
			DBName:   "saferespawn",
			SSLMode:  "disable",
		},
		Respawn: DefaultRespawn(),
		Icons: Icons{
			Enabled:      false,
			FetchTimeout: 10 * time.Second,
		},
		GUI: GUI{
			TextColor:     "1 1 1 1",
			CooldownColor: "0.7 0.7 0.7 1",
			DisabledColor: "0.3 0.3 0.3 1",
			FontSize:      18,
		},
		Permission: Permission{
			Source:        "static",
			GrantAll:      true,
			SweepInterval: 5 * time.Minute,
			CacheTTL:      time.Minute,
		},
		Audit: Audit{
			Enabled: false,
			Dir:     "logs/audit",
			Prefix:  "respawns",
		},
	}
}

// Validate checks values that would break the service at runtime.
func (c Config) Validate() error {
	var errs []error

	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port %d out of range", c.HTTP.Port))
	}
	if c.HTTP.CallTimeout <= 0 {
		errs = append(errs, errors.New("http.call_timeout must be positive"))
	}
	switch c.Permission.Source {
	case "static", "database":
	default:
		errs = append(errs, fmt.Errorf("permission.source %q must be static or database", c.Permission.Source))
	}
	if c.Permission.SweepInterval <= 0 {
		errs = append(errs, errors.New("permission.sweep_interval must be positive"))
	}
	if c.Permission.CacheTTL < 0 {
		errs = append(errs, errors.New("permission.cache_ttl must not be negative"))
	}
	if c.Permission.Source == "database" && !c.Database.Enabled {
		errs = append(errs, errors.New("permission.source database requires database.enabled"))
	}
	if err := c.Respawn.Validate(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Load loads config from a YAML file.
// If the file doesn't exist, returns defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("validating config %s: %w", path, err)
	}

	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
// Rewriting the loaded config keeps newly added keys visible to operators.
func Save(path string, cfg Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir %s: %w", dir, err)
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing config %s: %w", path, err)
	}
	return nil
}
