package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"

	"phi-sanitizer/internal/fakegen"
	"phi-sanitizer/internal/narrative"
	"phi-sanitizer/internal/sanitizer"
)

// EnvPrefix prefixes every environment override, e.g.
// PHI_SANITIZER_IDENTITY_SALT.
const EnvPrefix = "PHI_SANITIZER"

// Config is the merged run configuration.
type Config struct {
	Input    string `mapstructure:"input"`
	Output   string `mapstructure:"output"`
	Database string `mapstructure:"db"`

	Identity IdentityConfig `mapstructure:"identity"`
	Log      LogConfig      `mapstructure:"log"`
	Match    MatchConfig    `mapstructure:"match"`
	Fake     FakeConfig     `mapstructure:"fake"`

	ReceivingPlaceholder string `mapstructure:"receiving_placeholder"`
}

type IdentityConfig struct {
	Salt string `mapstructure:"salt"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// MatchConfig holds the free-text matching thresholds.
type MatchConfig struct {
	MinNameLength int  `mapstructure:"min_name_length"`
	MinOrgLength  int  `mapstructure:"min_org_length"`
	MinMRNLength  int  `mapstructure:"min_mrn_length"`
	WholeWords    bool `mapstructure:"whole_words"`
}

type FakeConfig struct {
	MRNPrefix             string  `mapstructure:"mrn_prefix"`
	MRNSuffixLength       int     `mapstructure:"mrn_suffix_length"`
	DefaultState          string  `mapstructure:"default_state"`
	OutOfStateProbability float64 `mapstructure:"out_of_state_probability"`
	Seed                  uint64  `mapstructure:"seed"`
}

// New returns a viper instance carrying the defaults and env binding.
// Flags are bound onto it by the caller before Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault("input", "")
	v.SetDefault("output", "output")
	v.SetDefault("db", "database/mappings.db")
	v.SetDefault("identity.salt", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("match.min_name_length", 2)
	v.SetDefault("match.min_org_length", 3)
	v.SetDefault("match.min_mrn_length", 3)
	v.SetDefault("match.whole_words", false)
	v.SetDefault("fake.mrn_prefix", "TX")
	v.SetDefault("fake.mrn_suffix_length", 4)
	v.SetDefault("fake.default_state", "TX")
	v.SetDefault("fake.out_of_state_probability", 0.1)
	v.SetDefault("fake.seed", 0)
	v.SetDefault("receiving_placeholder", "IS")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional YAML file into v and unmarshals the result.
// A missing file is an error only when it was named explicitly.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

// Validate checks thresholds and paths.
func (c *Config) Validate() error {
	var errs []error

	if c.Input == "" {
		errs = append(errs, errors.New("input directory is required"))
	} else if info, err := os.Stat(c.Input); err != nil {
		errs = append(errs, fmt.Errorf("input directory does not exist: %s", c.Input))
	} else if !info.IsDir() {
		errs = append(errs, fmt.Errorf("input path is not a directory: %s", c.Input))
	}
	if c.Output == "" {
		errs = append(errs, errors.New("output directory is required"))
	}
	if c.Database == "" {
		errs = append(errs, errors.New("database path is required"))
	}

	if c.Match.MinNameLength < 1 {
		errs = append(errs, fmt.Errorf("match.min_name_length must be at least 1, got %d", c.Match.MinNameLength))
	}
	if c.Match.MinOrgLength < 1 {
		errs = append(errs, fmt.Errorf("match.min_org_length must be at least 1, got %d", c.Match.MinOrgLength))
	}
	if c.Match.MinMRNLength < 1 {
		errs = append(errs, fmt.Errorf("match.min_mrn_length must be at least 1, got %d", c.Match.MinMRNLength))
	}
	if c.Fake.MRNSuffixLength < 4 {
		errs = append(errs, fmt.Errorf("fake.mrn_suffix_length must be at least 4, got %d", c.Fake.MRNSuffixLength))
	}
	if p := c.Fake.OutOfStateProbability; p < 0 || p > 1 {
		errs = append(errs, fmt.Errorf("fake.out_of_state_probability must be within [0, 1], got %g", p))
	}

	switch strings.ToLower(c.Log.Format) {
	case "console", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be console or json, got %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// Policy returns the narrative matching policy.
func (c *Config) Policy() narrative.Policy {
	return narrative.Policy{
		MinNameLength: c.Match.MinNameLength,
		MinOrgLength:  c.Match.MinOrgLength,
		MinMRNLength:  c.Match.MinMRNLength,
		WholeWords:    c.Match.WholeWords,
	}
}

// Generator returns the synthetic generator options.
func (c *Config) Generator() fakegen.Options {
	return fakegen.Options{
		DefaultState:          c.Fake.DefaultState,
		OutOfStateProbability: c.Fake.OutOfStateProbability,
		MRNPrefix:             c.Fake.MRNPrefix,
		MRNSuffixLength:       c.Fake.MRNSuffixLength,
		Seed:                  c.Fake.Seed,
	}
}

// Sanitizer returns the per-document sanitizer options.
func (c *Config) Sanitizer() sanitizer.Options {
	return sanitizer.Options{
		Policy:               c.Policy(),
		ReceivingPlaceholder: c.ReceivingPlaceholder,
	}
}
