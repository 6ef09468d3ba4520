package config

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/goforbroke1006/argwait"
)

// Config is the complete argwait configuration
type Config struct {
	Walk    WalkConfig    `mapstructure:"walk"`
	Loop    LoopConfig    `mapstructure:"loop"`
	Errors  ErrorsConfig  `mapstructure:"errors"`
	Logging LoggingConfig `mapstructure:"logging"`
	Output  OutputConfig  `mapstructure:"output"`
}

// WalkConfig controls directory enumeration
type WalkConfig struct {
	// Include lists glob patterns a file name must match (empty = every file)
	Include []string `mapstructure:"include"`
	// Exclude lists glob patterns that skip files and whole directories
	Exclude []string `mapstructure:"exclude"`
	// MaxDepth limits recursion below the root directory (0 = unlimited)
	MaxDepth int `mapstructure:"max_depth"`
}

// LoopConfig controls the event loop
type LoopConfig struct {
	// Workers bounds concurrent blocking filesystem calls
	Workers int `mapstructure:"workers"`
}

// ErrorsConfig controls what happens to errors nobody handles
type ErrorsConfig struct {
	// Policy is "fatal" or "hold"
	Policy string `mapstructure:"policy"`
}

// LoggingConfig controls the diagnostic log
type LoggingConfig struct {
	// Level is one of debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format is "text" or "json"
	Format string `mapstructure:"format"`
}

// OutputConfig controls how results are printed
type OutputConfig struct {
	// Format is one of text, json, yaml
	Format string `mapstructure:"format"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Walk: WalkConfig{
			Include:  []string{},
			Exclude:  []string{".git"},
			MaxDepth: 0,
		},
		Loop: LoopConfig{
			Workers: argwait.DefaultWorkers,
		},
		Errors: ErrorsConfig{
			Policy: string(argwait.Fatal),
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "text",
		},
		Output: OutputConfig{
			Format: "text",
		},
	}
}

// SetDefaults registers the defaults on v so they apply without a config file
func SetDefaults(v *viper.Viper) {
	defaults := Default()

	v.SetDefault("walk.include", defaults.Walk.Include)
	v.SetDefault("walk.exclude", defaults.Walk.Exclude)
	v.SetDefault("walk.max_depth", defaults.Walk.MaxDepth)

	v.SetDefault("loop.workers", defaults.Loop.Workers)

	v.SetDefault("errors.policy", defaults.Errors.Policy)

	v.SetDefault("logging.level", defaults.Logging.Level)
	v.SetDefault("logging.format", defaults.Logging.Format)

	v.SetDefault("output.format", defaults.Output.Format)
}

// Load reads the configuration from v into a Config and validates it
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, ValidationErrors(errs)
	}

	return &cfg, nil
}

// ConfigDir returns the path to the user's config directory
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "argwait")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".argwait"
	}
	return filepath.Join(home, ".config", "argwait")
}
