package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phi-sanitizer/internal/narrative"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(New(), "")
	require.NoError(t, err)

	assert.Equal(t, "output", cfg.Output)
	assert.Equal(t, "database/mappings.db", cfg.Database)
	assert.Equal(t, MatchConfig{MinNameLength: 2, MinOrgLength: 3, MinMRNLength: 3}, cfg.Match)
	assert.Equal(t, narrative.DefaultPolicy(), cfg.Policy())
	assert.Equal(t, "TX", cfg.Fake.MRNPrefix)
	assert.Equal(t, 4, cfg.Fake.MRNSuffixLength)
	assert.InDelta(t, 0.1, cfg.Fake.OutOfStateProbability, 1e-9)
	assert.Equal(t, "IS", cfg.ReceivingPlaceholder)
	assert.Equal(t, "IS", cfg.Sanitizer().ReceivingPlaceholder)
	assert.Equal(t, 3, cfg.Policy().MinOrgLength)
}

func TestLoadFileAndEnv(t *testing.T) {
	file := filepath.Join(t.TempDir(), "phi-sanitizer.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
output: /data/out
match:
  min_org_length: 5
fake:
  mrn_prefix: AB
  default_state: CA
`), 0644))
	t.Setenv("PHI_SANITIZER_IDENTITY_SALT", "pepper")
	t.Setenv("PHI_SANITIZER_FAKE_DEFAULT_STATE", "NM")

	cfg, err := Load(New(), file)
	require.NoError(t, err)

	assert.Equal(t, "/data/out", cfg.Output)
	assert.Equal(t, 5, cfg.Match.MinOrgLength)
	assert.Equal(t, 2, cfg.Match.MinNameLength)
	assert.Equal(t, "AB", cfg.Generator().MRNPrefix)
	assert.Equal(t, "pepper", cfg.Identity.Salt)
	assert.Equal(t, "NM", cfg.Fake.DefaultState)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(New(), filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	input := t.TempDir()
	file := filepath.Join(input, "a.hl7")
	require.NoError(t, os.WriteFile(file, []byte("MSH|"), 0644))

	valid := func() *Config {
		cfg, err := Load(New(), "")
		require.NoError(t, err)
		cfg.Input = input
		return cfg
	}

	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing input", func(c *Config) { c.Input = "" }, "input directory is required"},
		{"input not found", func(c *Config) { c.Input = filepath.Join(input, "nope") }, "does not exist"},
		{"input is a file", func(c *Config) { c.Input = file }, "not a directory"},
		{"zero name length", func(c *Config) { c.Match.MinNameLength = 0 }, "min_name_length"},
		{"short mrn suffix", func(c *Config) { c.Fake.MRNSuffixLength = 3 }, "mrn_suffix_length"},
		{"bad probability", func(c *Config) { c.Fake.OutOfStateProbability = 1.5 }, "out_of_state_probability"},
		{"bad log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
