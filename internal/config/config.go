package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of the environment variables read by Load.
const EnvPrefix = "MADXBIND"

// Config holds all runtime configuration for an engine session.
type Config struct {
	// Backend names the engine driver, see native.Register.
	Backend   string `mapstructure:"backend"`
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
	// CommandLog is a file receiving every submitted command; empty disables it.
	CommandLog string `mapstructure:"command_log"`
	// ModelPaths are the directories searched for model definitions.
	ModelPaths []string `mapstructure:"model_paths"`
	// Verbose passes all engine output to the logger; otherwise only
	// warnings and errors get through.
	Verbose bool `mapstructure:"verbose"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Backend:   "memory",
		LogLevel:  "info",
		LogFormat: "text",
	}
}

func setDefaults(v *viper.Viper) {
	d := Default()
	v.SetDefault("backend", d.Backend)
	v.SetDefault("log_level", d.LogLevel)
	v.SetDefault("log_format", d.LogFormat)
	v.SetDefault("command_log", "")
	v.SetDefault("model_paths", []string{})
	v.SetDefault("verbose", false)
}

// Load reads the configuration. path is an optional config file; when it is
// empty only defaults and the environment are used.
func Load(path string) (Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks the enumerated fields. When backends is non-empty the
// configured backend must be one of them. All problems are reported
// together.
func (c Config) Validate(backends ...string) error {
	var errs []error
	if !slices.Contains(logLevels, c.LogLevel) {
		errs = append(errs, fmt.Errorf("invalid log level %q, must be one of: %s", c.LogLevel, strings.Join(logLevels, ", ")))
	}
	if !slices.Contains(logFormats, c.LogFormat) {
		errs = append(errs, fmt.Errorf("invalid log format %q, must be one of: %s", c.LogFormat, strings.Join(logFormats, ", ")))
	}
	if c.Backend == "" {
		errs = append(errs, errors.New("backend must not be empty"))
	} else if len(backends) > 0 && !slices.Contains(backends, c.Backend) {
		errs = append(errs, fmt.Errorf("unknown backend %q, registered: %s", c.Backend, strings.Join(backends, ", ")))
	}
	return errors.Join(errs...)
}
