// Package config merges command-line flags with an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/pepperpark/mailcopy/internal/syncer"
)

// Config holds the settings of one copy run.
type Config struct {
	Source      string            `mapstructure:"source"`
	Destination string            `mapstructure:"destination"`
	Exclude     []string          `mapstructure:"exclude"`
	LimitSize   int64             `mapstructure:"limit_size"`
	BufferSize  int               `mapstructure:"buffer_size"`
	DryRun      bool              `mapstructure:"dry_run"`
	Map         map[string]string `mapstructure:"-"`
	StartTLS    bool              `mapstructure:"starttls"`
	Insecure    bool              `mapstructure:"insecure"`
	Verbose     bool              `mapstructure:"verbose"`
	Progress    bool              `mapstructure:"progress"`
	Confirm     bool              `mapstructure:"confirm"`
	Report      string            `mapstructure:"report"`
}

// flag name -> config key, for flags whose names differ from their key.
var flagKeys = map[string]string{
	"limit-size":  "limit_size",
	"buffer-size": "buffer_size",
	"dry-run":     "dry_run",
}

// Load reads path (if non-empty) and overlays flags that were set on the
// command line. The file's map is a list of src=dst pairs like the --map
// flag, since viper folds mapping keys to lower case; flag pairs win.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("buffer_size", syncer.DefaultBufferSize)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config %s: %w", path, err)
		}
	}

	var mapPairs []string
	if flags != nil {
		var bindErr error
		flags.VisitAll(func(f *pflag.Flag) {
			switch f.Name {
			case "map":
				mapPairs, _ = flags.GetStringArray("map")
				return
			case "config":
				return
			}
			key := f.Name
			if k, ok := flagKeys[key]; ok {
				key = k
			}
			if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
				bindErr = err
			}
		})
		if bindErr != nil {
			return nil, bindErr
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	pairs, err := ParseMappings(append(v.GetStringSlice("map"), mapPairs...))
	if err != nil {
		return nil, err
	}
	cfg.Map = pairs
	return cfg, nil
}

// ParseMappings converts `src=dst` pairs into a map.
func ParseMappings(pairs []string) (map[string]string, error) {
	m := make(map[string]string, len(pairs))
	for _, p := range pairs {
		parts := strings.SplitN(p, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("invalid map value (expected src=dst): %s", p)
		}
		m[parts[0]] = parts[1]
	}
	return m, nil
}

// Validate checks the settings needed to start a run.
func (c *Config) Validate() error {
	var errs []error
	if c.Source == "" {
		errs = append(errs, errors.New("missing source url"))
	}
	if c.Destination == "" {
		errs = append(errs, errors.New("missing destination url"))
	}
	if c.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("buffer-size must be positive, got %d", c.BufferSize))
	}
	return errors.Join(errs...)
}

// SyncOptions converts the settings for the sync engine.
func (c *Config) SyncOptions() syncer.Options {
	return syncer.Options{
		DryRun:     c.DryRun,
		LimitSize:  c.LimitSize,
		BufferSize: c.BufferSize,
		Exclude:    c.Exclude,
		Map:        c.Map,
	}
}
