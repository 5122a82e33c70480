package sanitizer

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"phi-sanitizer/internal/progress"
	"phi-sanitizer/internal/store"
)

func writeInputs(t *testing.T, dir string) []string {
	t.Helper()
	inputs := map[string]string{
		"a.hl7":     adtMessage,
		"sub/b.hl7": strings.Replace(adtMessage, "MSG0001", "MSG0002", 1),
		"c.hl7":     "garbage",
	}
	var files []string
	for _, name := range []string{"a.hl7", "c.hl7", "sub/b.hl7"} {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(inputs[name]), 0644))
		files = append(files, path)
	}
	return files
}

func newBatch(st *store.Store, cfg BatchConfig) *Batch {
	s := NewHL7(st, &stubGen{}, DefaultOptions(), zerolog.Nop())
	return NewBatch(s, st, cfg, zerolog.Nop())
}

func TestBatchRun(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := writeInputs(t, in)
	st := openStore(t)
	cfg := BatchConfig{InputDir: in, OutputDir: out}

	var statuses []string
	b := newBatch(st, cfg)
	b.OnProgress(func(current, total int, name, status string) {
		assert.Equal(t, 3, total)
		if status != "processing" {
			statuses = append(statuses, name+":"+status)
		}
	})

	stats, err := b.Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Found)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Positive(t, stats.PHIReplaced)
	assert.Equal(t, []string{"a.hl7:success", "c.hl7:failed", "sub/b.hl7:success"}, statuses)
	assert.Equal(t, store.Stats{Patients: 1, Organizations: 1, Providers: 1, MRNMappings: 1}, stats.Store)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "c.hl7", stats.Errors[0].File)
	assert.FileExists(t, filepath.Join(out, LogsDir, "hl7_errors.log"))

	data, err := os.ReadFile(filepath.Join(out, "HL7", "ANON_a.hl7"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "|Lopez^Maria^M|")
	assert.FileExists(t, filepath.Join(out, "HL7", "sub", "ANON_b.hl7"))
	assert.NoFileExists(t, filepath.Join(out, "HL7", "ANON_c.hl7"))

	m, err := progress.ReadManifest(stats.Manifest)
	require.NoError(t, err)
	assert.Equal(t, progress.Counts{Found: 3, Succeeded: 2, Failed: 1, PHIReplaced: stats.PHIReplaced}, m.Counts)
	for _, f := range m.Files {
		assert.NotContains(t, f.Input, "Nguyen")
	}

	rerun, err := newBatch(st, cfg).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 2, rerun.Skipped)
	assert.Equal(t, 1, rerun.Failed)
	assert.Zero(t, rerun.Success)

	retry, err := newBatch(st, BatchConfig{InputDir: in, OutputDir: out, RetryFailed: true}).Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 1, retry.Found)
	assert.Equal(t, 1, retry.Failed)
}

func TestBatchDryRunWritesNothing(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := writeInputs(t, in)

	stats, err := newBatch(openStore(t), BatchConfig{InputDir: in, OutputDir: out, DryRun: true}).
		Run(context.Background(), files)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Success)
	assert.Equal(t, 1, stats.Failed)
	assert.Empty(t, stats.Manifest)
	assert.Empty(t, stats.ErrorLog)

	entries, err := os.ReadDir(out)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestBatchStopsWhenStoreUnavailable(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := writeInputs(t, in)
	st := openStore(t)
	require.NoError(t, st.Close())

	stats, err := newBatch(st, BatchConfig{InputDir: in, OutputDir: out}).Run(context.Background(), files)
	require.ErrorIs(t, err, store.ErrUnavailable)
	assert.Zero(t, stats.Success)
	assert.NoFileExists(t, filepath.Join(out, "HL7", "ANON_a.hl7"))
}

func TestBatchCancelled(t *testing.T) {
	in, out := t.TempDir(), t.TempDir()
	files := writeInputs(t, in)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newBatch(openStore(t), BatchConfig{InputDir: in, OutputDir: out}).Run(ctx, files)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOutputPath(t *testing.T) {
	st := openStore(t)
	cfg := BatchConfig{InputDir: "/data/in", OutputDir: "/data/out"}
	hl7 := NewBatch(NewHL7(st, &stubGen{}, DefaultOptions(), zerolog.Nop()), nil, cfg, zerolog.Nop())
	ccd := NewBatch(NewCCD(st, &stubGen{}, DefaultOptions(), zerolog.Nop()), nil, cfg, zerolog.Nop())

	tests := []struct {
		name  string
		batch *Batch
		input string
		want  string
	}{
		{"hl7 keeps name", hl7, "/data/in/x/msg.txt", "/data/out/HL7/x/ANON_msg.txt"},
		{"ccd forces xml", ccd, "/data/in/ccd.txt", "/data/out/CCD/ANON_ccd.xml"},
		{"outside input dir", ccd, "/elsewhere/doc.xml", "/data/out/CCD/ANON_doc.xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, filepath.FromSlash(tt.want), tt.batch.OutputPath(filepath.FromSlash(tt.input)))
		})
	}
}
