// Package config loads runtime settings from a YAML file, an optional .env
// file and BATCHQC_* environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full application configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Auth    AuthConfig    `yaml:"auth"`
	Export  ExportConfig  `yaml:"export"`
	Log     LogConfig     `yaml:"log"`
}

type ServerConfig struct {
	Addr          string        `yaml:"addr"`
	SecureCookies bool          `yaml:"secure_cookies"`
	SessionTTL    time.Duration `yaml:"session_ttl"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	// TrustedProxies lists proxy addresses or CIDRs whose X-Forwarded-For
	// and X-Real-IP headers are believed.
	TrustedProxies []string `yaml:"trusted_proxies"`
}

// StorageConfig selects the store driver: memory, sqlite or postgres.
type StorageConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	// Seed loads the embedded fixture batches on startup.
	Seed bool `yaml:"seed"`
}

type AuthConfig struct {
	Users []User `yaml:"users"`
}

// User is a configured account. PasswordHash is a bcrypt hash.
type User struct {
	Username     string `yaml:"username"`
	PasswordHash string `yaml:"password_hash"`
	Role         string `yaml:"role"`
}

type ExportConfig struct {
	ControllerFallback string `yaml:"controller_fallback"`
	// TimeZone is an IANA zone name for printed control dates. Empty means
	// the server's local zone.
	TimeZone string `yaml:"timezone"`
}

// Location resolves TimeZone.
func (c ExportConfig) Location() (*time.Location, error) {
	if c.TimeZone == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("export.timezone: %w", err)
	}
	return loc, nil
}

// Proxies parses TrustedProxies. Bare addresses become single-host prefixes.
func (c ServerConfig) Proxies() ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(c.TrustedProxies))
	for _, v := range c.TrustedProxies {
		v = strings.TrimSpace(v)
		if strings.Contains(v, "/") {
			p, err := netip.ParsePrefix(v)
			if err != nil {
				return nil, fmt.Errorf("server.trusted_proxies: %w", err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(v)
		if err != nil {
			return nil, fmt.Errorf("server.trusted_proxies: %w", err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:        ":8080",
			SessionTTL:  24 * time.Hour,
			IdleTimeout: 30 * time.Minute,
		},
		Storage: StorageConfig{Driver: "sqlite", DSN: "batchqc.db", Seed: true},
		Export:  ExportConfig{ControllerFallback: "Иванов И.И."},
		Log:     LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads path (a missing file is not an error), then .env, then the
// environment. An empty path skips the file. The result is not validated;
// callers apply their own overrides first and then call Validate.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	// .env is optional
	_ = godotenv.Load()

	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BATCHQC_ADDR", &cfg.Server.Addr)
	str("BATCHQC_STORAGE_DRIVER", &cfg.Storage.Driver)
	str("BATCHQC_STORAGE_DSN", &cfg.Storage.DSN)
	str("BATCHQC_CONTROLLER_FALLBACK", &cfg.Export.ControllerFallback)
	str("BATCHQC_LOG_LEVEL", &cfg.Log.Level)
	str("BATCHQC_LOG_FORMAT", &cfg.Log.Format)
	str("BATCHQC_TIMEZONE", &cfg.Export.TimeZone)
	if v, ok := lookup("BATCHQC_TRUSTED_PROXIES"); ok && v != "" {
		cfg.Server.TrustedProxies = strings.Split(v, ",")
	}

	for key, dst := range map[string]*bool{
		"BATCHQC_SECURE_COOKIES": &cfg.Server.SecureCookies,
		"BATCHQC_STORAGE_SEED":   &cfg.Storage.Seed,
	} {
		if v, ok := lookup(key); ok && v != "" {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = b
		}
	}
	for key, dst := range map[string]*time.Duration{
		"BATCHQC_SESSION_TTL":  &cfg.Server.SessionTTL,
		"BATCHQC_IDLE_TIMEOUT": &cfg.Server.IdleTimeout,
	} {
		if v, ok := lookup(key); ok && v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			*dst = d
		}
	}
	return nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	switch c.Storage.Driver {
	case "memory":
	case "sqlite", "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver)
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Server.SessionTTL <= 0 || c.Server.IdleTimeout <= 0 {
		return errors.New("server.session_ttl and server.idle_timeout must be positive")
	}
	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	if _, err := c.Server.Proxies(); err != nil {
		return err
	}
	if _, err := c.Export.Location(); err != nil {
		return err
	}
	for i, u := range c.Auth.Users {
		if u.Username == "" || u.PasswordHash == "" {
			return fmt.Errorf("auth.users[%d]: username and password_hash are required", i)
		}
	}
	return nil
}
