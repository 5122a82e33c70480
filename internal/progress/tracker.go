package progress

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Outcome of the last attempt on an input document.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
)

// Entry is the last attempt on one input document. Digest is the
// SHA-256 of the input bytes at that time.
type Entry struct {
	Status   Status    `json:"status"`
	Digest   string    `json:"digest"`
	Output   string    `json:"output,omitempty"`
	Type     string    `json:"type,omitempty"`
	PHICount int       `json:"phi_count,omitempty"`
	Error    string    `json:"error,omitempty"`
	At       time.Time `json:"at"`
}

type state struct {
	Format  string            `json:"format,omitempty"`
	Updated time.Time         `json:"updated"`
	Totals  Totals            `json:"totals"`
	Entries map[string]*Entry `json:"entries"`
}

// Totals summarizes a progress file.
type Totals struct {
	Sanitized   int `json:"sanitized"`
	Failed      int `json:"failed"`
	PHIReplaced int `json:"phi_replaced"`
}

// Tracker persists per-document outcomes of one format's output folder
// so a later run resumes where this one stopped. A sanitized document is
// skipped only while its bytes are unchanged.
type Tracker struct {
	mu      sync.Mutex
	path    string
	format  string
	entries map[string]*Entry
	logger  zerolog.Logger
}

// NewTracker loads path if it exists. An empty path keeps state in
// memory only.
func NewTracker(path, format string, logger zerolog.Logger) *Tracker {
	t := &Tracker{
		path:    path,
		format:  format,
		entries: make(map[string]*Entry),
		logger:  logger,
	}
	if path != "" {
		t.load()
	}
	return t
}

func (t *Tracker) load() {
	data, err := os.ReadFile(t.path)
	if err != nil {
		return
	}

	var st state
	if err := json.Unmarshal(data, &st); err != nil {
		t.logger.Warn().Err(err).Str("file", t.path).Msg("unreadable progress file, starting over")
		return
	}
	if st.Entries != nil {
		t.entries = st.Entries
	}

	totals := t.totals()
	t.logger.Info().
		Int("sanitized", totals.Sanitized).
		Int("failed", totals.Failed).
		Msg("resuming from progress file")
}

func (t *Tracker) totals() Totals {
	var out Totals
	for _, e := range t.entries {
		switch e.Status {
		case StatusSuccess:
			out.Sanitized++
			out.PHIReplaced += e.PHICount
		case StatusError:
			out.Failed++
		}
	}
	return out
}

// save writes the state after every change; a failure only costs resume.
func (t *Tracker) save() {
	if t.path == "" {
		return
	}

	data, err := json.MarshalIndent(state{
		Format:  t.format,
		Updated: time.Now(),
		Totals:  t.totals(),
		Entries: t.entries,
	}, "", "  ")
	if err != nil {
		t.logger.Warn().Err(err).Msg("marshal progress")
		return
	}
	if err := os.MkdirAll(filepath.Dir(t.path), 0755); err != nil {
		t.logger.Warn().Err(err).Msg("create progress directory")
		return
	}
	if err := os.WriteFile(t.path, data, 0644); err != nil {
		t.logger.Warn().Err(err).Str("file", t.path).Msg("write progress")
	}
}

func digest(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// IsProcessed reports whether path was sanitized before and its bytes
// have not changed since.
func (t *Tracker) IsProcessed(path string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[path]
	if !ok || e.Status != StatusSuccess {
		return false
	}
	return e.Digest != "" && e.Digest == digest(path)
}

// MarkSuccess records a sanitized document.
func (t *Tracker) MarkSuccess(path, output, docType string, phiCount int) {
	t.record(path, &Entry{Status: StatusSuccess, Output: output, Type: docType, PHICount: phiCount})
}

// MarkError records a failed document.
func (t *Tracker) MarkError(path, msg string) {
	t.record(path, &Entry{Status: StatusError, Error: msg})
}

func (t *Tracker) record(path string, e *Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e.Digest = digest(path)
	e.At = time.Now()
	t.entries[path] = e
	t.save()
}

// Failed returns the documents whose last attempt failed, sorted.
func (t *Tracker) Failed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []string
	for path, e := range t.entries {
		if e.Status == StatusError {
			out = append(out, path)
		}
	}
	sort.Strings(out)
	return out
}

// ClearFailed forgets failed documents so --retry attempts them again.
func (t *Tracker) ClearFailed() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for path, e := range t.entries {
		if e.Status == StatusError {
			delete(t.entries, path)
			n++
		}
	}
	if n > 0 {
		t.save()
		t.logger.Info().Int("count", n).Msg("cleared failed documents for retry")
	}
	return n
}

// Totals returns the current counts.
func (t *Tracker) Totals() Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.totals()
}
