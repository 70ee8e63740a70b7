package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

// LoggingConfig configures application logging.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	Path    string `mapstructure:"path"`
	Console bool   `mapstructure:"console"`
}

// Config represents the application configuration.
type Config struct {
	Jobs             int           `mapstructure:"jobs"`
	HashThreads      int           `mapstructure:"hash_threads"`
	Algo             string        `mapstructure:"algo"`
	PreferExternalB3 bool          `mapstructure:"prefer_external_b3"`
	Exclude          []string      `mapstructure:"exclude"`
	ExcludePrefixes  []string      `mapstructure:"exclude_prefixes"`
	Logging          LoggingConfig `mapstructure:"logging"`
}

// Load loads configuration from file and environment variables. An
// explicit file path overrides the search; otherwise the config file
// locations are (in order of precedence):
//   - $XDG_CONFIG_HOME/mirror/config.yaml
//   - $HOME/.config/mirror/config.yaml
//
// Environment variables are prefixed with MIRROR_ (e.g. MIRROR_JOBS,
// MIRROR_B3THREADS via the hash_threads alias below).
func Load(file string) (*Config, error) {
	v := viper.New()

	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		dir, err := ConfigDir()
		if err != nil {
			return nil, err
		}
		v.AddConfigPath(dir)
	}

	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			// An explicit file must exist and parse; the searched
			// default may be absent.
			if file != "" || !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Jobs < 1 {
		cfg.Jobs = DefaultJobs()
	}

	return &cfg, nil
}

// setDefaults registers defaults on the given viper instance.
func setDefaults(v *viper.Viper) {
	v.SetDefault("jobs", DefaultJobs())
	v.SetDefault("hash_threads", DefaultHashThreads)
	v.SetDefault("algo", DefaultAlgo)
	v.SetDefault("prefer_external_b3", false)
	v.SetDefault("exclude", DefaultExcludes)
	v.SetDefault("exclude_prefixes", DefaultExcludePrefixes)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.path", "")
	v.SetDefault("logging.console", false)

	// MIRROR_B3THREADS predates the hash_threads key; honour it when set.
	if raw := os.Getenv("MIRROR_B3THREADS"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			v.SetDefault("hash_threads", n)
		}
	}
}

// ConfigDir returns the configuration directory path.
func ConfigDir() (string, error) {
	if xdgConfigHome := os.Getenv("XDG_CONFIG_HOME"); xdgConfigHome != "" {
		return filepath.Join(xdgConfigHome, "mirror"), nil
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".config", "mirror"), nil
}

// StateDir returns $XDG_STATE_HOME/mirror/ for log files.
func StateDir() string {
	return filepath.Join(xdg.StateHome, "mirror")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(StateDir(), "mirror.log")
}

// EnsureStateDir creates the state directory if it doesn't exist.
func EnsureStateDir() error {
	if err := os.MkdirAll(StateDir(), 0o755); err != nil {
		return fmt.Errorf("creating state directory: %w", err)
	}
	return nil
}
