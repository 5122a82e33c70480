package finder

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func fixtureDir(t *testing.T) string {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.hl7"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, "b.txt"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, "c.txt"), "<?xml version=\"1.0\"?><ClinicalDocument/>")
	writeFile(t, filepath.Join(dir, "d.xml"), "<ClinicalDocument/>")
	writeFile(t, filepath.Join(dir, "notes.txt"), "free text")
	writeFile(t, filepath.Join(dir, "ANON_a.hl7"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, ".hidden.hl7"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, "sub", "e.hl7"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, "logs", "f.hl7"), "MSH|^~\\&|APP\n")
	writeFile(t, filepath.Join(dir, ".cache", "g.xml"), "<x/>")
	return dir
}

func TestFind(t *testing.T) {
	dir := fixtureDir(t)

	tests := []struct {
		format Format
		want   []string
	}{
		{FormatHL7, []string{"a.hl7", "b.txt", "sub/e.hl7"}},
		{FormatCCD, []string{"c.txt", "d.xml"}},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			files, err := Find(dir, tt.format)
			require.NoError(t, err)

			var rel []string
			for _, f := range files {
				r, err := filepath.Rel(dir, f)
				require.NoError(t, err)
				rel = append(rel, filepath.ToSlash(r))
			}
			assert.Equal(t, tt.want, rel)
		})
	}
}

func TestFindErrors(t *testing.T) {
	_, err := Find(filepath.Join(t.TempDir(), "missing"), FormatHL7)
	assert.Error(t, err)

	dir := t.TempDir()
	file := filepath.Join(dir, "x.hl7")
	writeFile(t, file, "MSH|")
	_, err = Find(file, FormatHL7)
	assert.Error(t, err)

	_, err = Find(dir, Format("DICOM"))
	assert.Error(t, err)
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"hl7": FormatHL7, " HL7v2 ": FormatHL7, "ccd": FormatCCD, "cda": FormatCCD} {
		got, err := ParseFormat(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("dicom")
	assert.Error(t, err)
}

func TestSelect(t *testing.T) {
	dir := "/in"
	files := []string{"/in/a.hl7", "/in/b.hl7", "/in/c.hl7", "/in/sub/d.hl7"}

	got, err := Select(dir, files, 0, false, nil)
	require.NoError(t, err)
	assert.Equal(t, files, got)

	got, err = Select(dir, files, 2, false, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/a.hl7", "/in/b.hl7"}, got)

	got, err = Select(dir, files, 10, true, nil)
	require.NoError(t, err)
	assert.Equal(t, files, got)

	got, err = Select(dir, files, 3, true, nil)
	require.NoError(t, err)
	assert.Len(t, got, 3)
	assert.IsNonDecreasing(t, got)
	assert.Subset(t, files, got)

	got, err = Select(dir, files, 0, false, []string{"sub/d.hl7", "b.hl7"})
	require.NoError(t, err)
	assert.Equal(t, []string{"/in/sub/d.hl7", "/in/b.hl7"}, got)

	_, err = Select(dir, files, 0, false, []string{"zzz.hl7"})
	assert.Error(t, err)
}
