// Package config provides configuration management for nspawnium.
//
// This package handles loading configuration from multiple sources:
//   - YAML configuration files
//   - Environment variables (with NSP_ prefix)
//   - .env files
//   - Default values
//
// # Configuration Sources Priority
//
// Configuration is loaded in the following order (later sources override earlier ones):
//  1. Default values (hardcoded)
//  2. Configuration files (./config.yaml, /etc/nspawnium/config.yaml)
//  3. .env files
//  4. Environment variables (NSP_ prefix)
//
// The plain variables HOST, PORT, MACHINES_DIR, and UNITS_DIR are honored as
// aliases for their NSP_ counterparts.
//
// # Usage Example
//
//	cfg, err := config.Load("config.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("Server: %s:%d\n", cfg.Server.Host, cfg.Server.Port)
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure for nspawnium.
type Config struct {
	// Server contains HTTP server configuration
	Server ServerConfig `mapstructure:"server"`

	// Paths contains the host directories the daemon operates on
	Paths PathsConfig `mapstructure:"paths"`

	// Network contains bridge settings for container attachment
	Network NetworkConfig `mapstructure:"network"`

	// Auth contains admin login and token settings
	Auth AuthConfig `mapstructure:"auth"`

	// Jobs contains creation job retention settings
	Jobs JobsConfig `mapstructure:"jobs"`

	// Logging contains logging settings
	Logging LoggingConfig `mapstructure:"logging"`

	// Security contains rate limiting and CORS settings
	Security SecurityConfig `mapstructure:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	// Host is the server bind address (default: 0.0.0.0)
	Host string `mapstructure:"host"`

	// Port is the server listen port (default: 8080)
	Port int `mapstructure:"port"`

	// ReadTimeout is the maximum duration for reading requests
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout is the maximum duration for writing responses
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is the maximum duration for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// Debug enables debug logging and echo debug mode
	Debug bool `mapstructure:"debug"`
}

// PathsConfig contains the host directories the daemon reads and writes.
type PathsConfig struct {
	// MachinesDir is where container root filesystems live
	MachinesDir string `mapstructure:"machines_dir"`

	// UnitsDir is where per-container host unit files are written
	UnitsDir string `mapstructure:"units_dir"`

	// StateDir holds the daemon's own state (database, forward rules)
	StateDir string `mapstructure:"state_dir"`
}

// DatabasePath is the sqlite file holding authored container records.
func (p *PathsConfig) DatabasePath() string {
	return filepath.Join(p.StateDir, "nspawnium.db")
}

// ForwardsPath is the JSON file holding port-forward rules.
func (p *PathsConfig) ForwardsPath() string {
	return filepath.Join(p.StateDir, "port_forwards.json")
}

// NetworkConfig contains bridge settings.
type NetworkConfig struct {
	// Bridge is the host bridge new containers attach to
	Bridge string `mapstructure:"bridge"`
}

// AuthConfig contains the single admin account and JWT settings. The
// password is stored as a bcrypt hash; the daemon never sees the plaintext
// outside the login request.
type AuthConfig struct {
	// AdminUser is the admin login name
	AdminUser string `mapstructure:"admin_user"`

	// AdminPasswordHash is the bcrypt hash of the admin password
	AdminPasswordHash string `mapstructure:"admin_password_hash"`

	// JWTSecret is the secret key for signing JWT tokens
	JWTSecret string `mapstructure:"jwt_secret"`

	// JWTExpiration is the JWT token expiration duration (default: 24h)
	JWTExpiration time.Duration `mapstructure:"jwt_expiration"`
}

// JobsConfig contains creation job retention settings.
type JobsConfig struct {
	// TTL is how long finished jobs stay queryable (default: 1h)
	TTL time.Duration `mapstructure:"ttl"`

	// SweepInterval is how often expired jobs are dropped
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error)
	Level string `mapstructure:"level"`

	// Format is the log format (json, text)
	Format string `mapstructure:"format"`
}

// SecurityConfig contains rate limiting and CORS settings.
type SecurityConfig struct {
	// RateLimit is the maximum requests per second per client
	RateLimit int `mapstructure:"rate_limit"`

	// AllowedOrigins are the CORS allowed origins
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

var cfg *Config

// Load reads configuration from a file and environment variables.
// If cfgFile is empty, it searches for config.yaml in standard locations.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (NSP_ prefix, plus plain aliases)
//  2. .env file
//  3. Configuration file
//  4. Default values
func Load(cfgFile string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/nspawnium")
	}

	if err := v.ReadInConfig(); err != nil {
		// If config file was explicitly specified, fail on any error
		// other than the file being absent; for auto-discovery, only
		// fail on errors other than ConfigFileNotFoundError.
		if cfgFile != "" {
			if !isFileNotFoundError(err) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		} else {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.MergeInConfig() // Ignore error if .env file doesn't exist

	v.SetEnvPrefix("NSP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Plain aliases consumed for compatibility with existing deployments.
	_ = v.BindEnv("server.host", "NSP_SERVER_HOST", "HOST")
	_ = v.BindEnv("server.port", "NSP_SERVER_PORT", "PORT")
	_ = v.BindEnv("paths.machines_dir", "NSP_PATHS_MACHINES_DIR", "MACHINES_DIR")
	_ = v.BindEnv("paths.units_dir", "NSP_PATHS_UNITS_DIR", "UNITS_DIR")

	cfg = &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.debug", false)

	v.SetDefault("paths.machines_dir", "/var/lib/machines")
	v.SetDefault("paths.units_dir", "/etc/systemd/nspawn")
	v.SetDefault("paths.state_dir", "/var/lib/nspawnium")

	v.SetDefault("network.bridge", "br0")

	v.SetDefault("auth.admin_user", "admin")
	v.SetDefault("auth.jwt_secret", "change-me-in-production")
	v.SetDefault("auth.jwt_expiration", "24h")

	v.SetDefault("jobs.ttl", "1h")
	v.SetDefault("jobs.sweep_interval", "5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("security.rate_limit", 100)
	v.SetDefault("security.allowed_origins", []string{"*"})
}

func validate(cfg *Config) error {
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", cfg.Server.Port)
	}

	if cfg.Paths.MachinesDir == "" {
		return fmt.Errorf("machines dir is required")
	}

	if cfg.Paths.UnitsDir == "" {
		return fmt.Errorf("units dir is required")
	}

	if cfg.Paths.StateDir == "" {
		return fmt.Errorf("state dir is required")
	}

	return nil
}

func Get() *Config {
	return cfg
}

// isFileNotFoundError checks if an error is a file not found error.
func isFileNotFoundError(err error) bool {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return errors.Is(pathErr, os.ErrNotExist)
	}
	return false
}
