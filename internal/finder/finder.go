// Package finder discovers and selects input documents.
package finder

import (
	"bytes"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Format is an input wire format.
type Format string

const (
	FormatHL7 Format = "HL7"
	FormatCCD Format = "CCD"
)

// OutputPrefix marks sanitized files so later runs never pick them up.
const OutputPrefix = "ANON_"

// Extensions lists the file extensions searched per format. ".txt" is
// shared, so those files are sniffed before being accepted.
var Extensions = map[Format][]string{
	FormatHL7: {".hl7", ".txt"},
	FormatCCD: {".xml", ".txt"},
}

// ExcludedNames are filenames to skip
var ExcludedNames = map[string]bool{
	".progress.json": true,
	".DS_Store":      true,
	"Thumbs.db":      true,
	"desktop.ini":    true,
	"README.txt":     true,
	"LICENSE.txt":    true,
}

// ExcludedDirs are directory names to skip entirely
var ExcludedDirs = map[string]bool{
	".git":         true,
	"node_modules": true,
	"vendor":       true,
	"__pycache__":  true,
	".venv":        true,
	"venv":         true,
	"logs":         true,
	"database":     true,
	"output":       true,
}

// ParseFormat maps a command or config value to a Format.
func ParseFormat(s string) (Format, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "HL7", "HL7V2":
		return FormatHL7, nil
	case "CCD", "CDA", "CCDA":
		return FormatCCD, nil
	}
	return "", fmt.Errorf("unknown format %q", s)
}

// Find returns every document of format below dir, sorted. Hidden
// directories, excluded directories and previous outputs are skipped.
func Find(dir string, format Format) ([]string, error) {
	exts, ok := Extensions[format]
	if !ok {
		return nil, fmt.Errorf("unknown format %q", format)
	}
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("input directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("input path is not a directory: %s", dir)
	}

	var files []string
	walkFn := func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		name := d.Name()
		if d.IsDir() {
			if path != dir && (ExcludedDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			return nil
		}
		if ExcludedNames[name] || strings.HasPrefix(name, ".") || strings.HasPrefix(name, OutputPrefix) {
			return nil
		}

		ext := strings.ToLower(filepath.Ext(name))
		if !contains(exts, ext) {
			return nil
		}
		if ext == ".txt" && sniff(path) != format {
			return nil
		}
		files = append(files, path)
		return nil
	}

	if err := filepath.WalkDir(dir, walkFn); err != nil {
		return nil, err
	}
	sort.Strings(files)
	return files, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// sniff guesses the format from the first bytes of the file: HL7 messages
// start with an MSH segment, CDA documents with markup.
func sniff(path string) Format {
	file, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer file.Close()

	head := make([]byte, 512)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF {
		return ""
	}
	head = bytes.TrimLeft(head[:n], "\ufeff \t\r\n")
	switch {
	case bytes.HasPrefix(head, []byte("MSH")):
		return FormatHL7
	case bytes.HasPrefix(head, []byte("<")):
		return FormatCCD
	}
	return ""
}

// Select narrows files to the named ones, then to the first count (or a
// random count when random is set). count <= 0 keeps everything. Names
// are matched against the base name or the path relative to dir.
func Select(dir string, files []string, count int, random bool, names []string) ([]string, error) {
	if len(names) > 0 {
		byName := make(map[string]string, len(files)*2)
		for _, f := range files {
			byName[filepath.Base(f)] = f
			if rel, err := filepath.Rel(dir, f); err == nil {
				byName[filepath.ToSlash(rel)] = f
			}
		}
		var picked []string
		for _, n := range names {
			f, ok := byName[filepath.ToSlash(n)]
			if !ok {
				return nil, fmt.Errorf("file not found in %s: %s", dir, n)
			}
			picked = append(picked, f)
		}
		files = picked
	}

	if count <= 0 || count >= len(files) {
		return files, nil
	}
	if !random {
		return files[:count], nil
	}
	picked := make([]string, len(files))
	copy(picked, files)
	rand.Shuffle(len(picked), func(i, j int) { picked[i], picked[j] = picked[j], picked[i] })
	picked = picked[:count]
	sort.Strings(picked)
	return picked, nil
}
