package sanitizer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"phi-sanitizer/internal/finder"
	"phi-sanitizer/internal/progress"
	"phi-sanitizer/internal/store"
)

// LogsDir is the directory under the output root that holds error logs,
// run logs and manifests.
const LogsDir = "logs"

// BatchConfig holds the batch configuration
type BatchConfig struct {
	InputDir  string
	OutputDir string
	// DryRun sanitizes in memory and writes no output, progress or
	// manifest.
	DryRun bool
	// RetryFailed limits the run to files whose last attempt failed.
	RetryFailed bool
}

// Stats holds processing statistics
type Stats struct {
	Found       int
	Success     int
	Failed      int
	Skipped     int
	PHIReplaced int
	Store       store.Stats
	ErrorLog    string
	Manifest    string
	Errors      []progress.ErrorEntry
}

// ProgressCallback is called during processing to report progress
type ProgressCallback func(current, total int, filename, status string)

// StatsSource reports store row counts for the manifest.
type StatsSource interface {
	Stats(ctx context.Context) (store.Stats, error)
}

// Batch runs one sanitizer over a list of files. A failed file never
// stops the batch; an unavailable store does.
type Batch struct {
	sanitizer Sanitizer
	stats     StatsSource
	cfg       BatchConfig
	logger    zerolog.Logger
	progress  ProgressCallback
}

// NewBatch creates a batch. stats may be nil.
func NewBatch(s Sanitizer, stats StatsSource, cfg BatchConfig, logger zerolog.Logger) *Batch {
	return &Batch{sanitizer: s, stats: stats, cfg: cfg, logger: logger}
}

// OnProgress registers a progress callback.
func (b *Batch) OnProgress(cb ProgressCallback) { b.progress = cb }

func (b *Batch) report(current, total int, name, status string) {
	if b.progress != nil {
		b.progress(current, total, name, status)
	}
}

// FormatDir returns the output directory for the batch's format.
func (b *Batch) FormatDir() string {
	return filepath.Join(b.cfg.OutputDir, string(b.sanitizer.Format()))
}

// OutputPath maps an input file to its sanitized output path. The
// relative directory is kept; CCD outputs always use ".xml".
func (b *Batch) OutputPath(input string) string {
	rel, err := filepath.Rel(b.cfg.InputDir, input)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = filepath.Base(input)
	}
	dir, name := filepath.Split(rel)
	if b.sanitizer.Format() == finder.FormatCCD {
		name = strings.TrimSuffix(name, filepath.Ext(name)) + ".xml"
	}
	return filepath.Join(b.FormatDir(), dir, finder.OutputPrefix+name)
}

// Run sanitizes files in order.
func (b *Batch) Run(ctx context.Context, files []string) (*Stats, error) {
	format := string(b.sanitizer.Format())
	logsDir := filepath.Join(b.cfg.OutputDir, LogsDir)
	manifest := progress.NewManifest(format, b.cfg.InputDir, b.cfg.OutputDir, b.cfg.DryRun)
	logger := b.logger.With().Str("run_id", manifest.RunID).Str("format", format).Logger()

	var (
		tracker  *progress.Tracker
		errorLog *progress.ErrorLogger
		err      error
	)
	if b.cfg.DryRun {
		errorLog, err = progress.NewErrorLogger("", b.cfg.InputDir)
	} else {
		tracker = progress.NewTracker(filepath.Join(b.FormatDir(), ".progress.json"), format, logger)
		errorLog, err = progress.NewErrorLogger(filepath.Join(logsDir, strings.ToLower(format)+"_errors.log"), b.cfg.InputDir)
	}
	if err != nil {
		return nil, fmt.Errorf("could not create error logger: %w", err)
	}
	defer errorLog.Close()

	if tracker != nil && b.cfg.RetryFailed {
		files = retryable(files, tracker.Failed())
		tracker.ClearFailed()
	}

	stats := &Stats{Found: len(files), ErrorLog: errorLog.Path()}
	manifest.Counts.Found = len(files)
	logger.Info().Int("files", len(files)).Bool("dry_run", b.cfg.DryRun).Msg("starting batch")

	for i, path := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		name := b.relative(path)

		if tracker != nil && tracker.IsProcessed(path) {
			stats.Skipped++
			manifest.Add(progress.FileOutcome{Input: name, Outcome: progress.OutcomeSkipped})
			b.report(i+1, len(files), name, "skipped")
			continue
		}
		b.report(i+1, len(files), name, "processing")

		outputPath := b.OutputPath(path)
		res, err := b.process(ctx, path, outputPath)
		if errors.Is(err, store.ErrUnavailable) {
			logger.Error().Err(err).Str("file", name).Msg("pseudonym store unavailable, stopping run")
			return stats, err
		}
		if err != nil {
			stats.Failed++
			msg := err.Error()
			if tracker != nil {
				tracker.MarkError(path, msg)
			}
			errorLog.Log(path, msg)
			manifest.Add(progress.FileOutcome{Input: name, Outcome: progress.OutcomeFailed, Error: msg})
			logger.Warn().Str("file", name).Err(err).Msg("file failed")
			b.report(i+1, len(files), name, "failed")
			continue
		}

		stats.Success++
		stats.PHIReplaced += res.PHICount
		outcome := progress.FileOutcome{
			Input:    name,
			Outcome:  progress.OutcomeSuccess,
			Type:     res.Type,
			PHICount: res.PHICount,
		}
		if b.cfg.DryRun {
			outcome.Outcome = progress.OutcomeDryRun
		} else {
			outcome.Output = b.relativeOutput(outputPath)
			tracker.MarkSuccess(path, outputPath, res.Type, res.PHICount)
		}
		manifest.Add(outcome)
		logger.Info().Str("file", name).Str("type", res.Type).Int("phi", res.PHICount).Msg("file sanitized")
		b.report(i+1, len(files), name, "success")
	}

	stats.Errors = errorLog.Entries()
	if b.stats != nil {
		st, err := b.stats.Stats(ctx)
		if err != nil {
			return stats, fmt.Errorf("read store stats: %w", err)
		}
		stats.Store = st
		manifest.Store = &st
	}

	if !b.cfg.DryRun {
		path, err := manifest.Write(logsDir)
		if err != nil {
			return stats, err
		}
		stats.Manifest = path
	}

	logger.Info().
		Int("succeeded", stats.Success).
		Int("failed", stats.Failed).
		Int("skipped", stats.Skipped).
		Int("phi_replaced", stats.PHIReplaced).
		Msg("batch complete")
	return stats, nil
}

func (b *Batch) process(ctx context.Context, inputPath, outputPath string) (*Result, error) {
	raw, err := os.ReadFile(inputPath)
	if err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	res, err := b.sanitizer.Sanitize(ctx, raw)
	if err != nil {
		return nil, err
	}
	if b.cfg.DryRun {
		return res, nil
	}
	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := os.WriteFile(outputPath, res.Output, 0644); err != nil {
		return nil, fmt.Errorf("write output: %w", err)
	}
	return res, nil
}

func (b *Batch) relative(path string) string {
	if rel, err := filepath.Rel(b.cfg.InputDir, path); err == nil && !strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(rel)
	}
	return filepath.Base(path)
}

func (b *Batch) relativeOutput(path string) string {
	if rel, err := filepath.Rel(b.cfg.OutputDir, path); err == nil {
		return filepath.ToSlash(rel)
	}
	return path
}

// retryable keeps the files whose last attempt failed.
func retryable(files, failed []string) []string {
	failedSet := make(map[string]bool, len(failed))
	for _, f := range failed {
		failedSet[f] = true
	}
	var out []string
	for _, f := range files {
		if failedSet[f] {
			out = append(out, f)
		}
	}
	return out
}
