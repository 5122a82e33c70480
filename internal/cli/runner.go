package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/rs/zerolog"

	"phi-sanitizer/internal/config"
	"phi-sanitizer/internal/fakegen"
	"phi-sanitizer/internal/finder"
	"phi-sanitizer/internal/identity"
	"phi-sanitizer/internal/logging"
	"phi-sanitizer/internal/sanitizer"
	"phi-sanitizer/internal/store"
)

// Options holds the per-run flags that are not part of Config.
type Options struct {
	Format      finder.Format
	Count       int
	Random      bool
	Files       []string
	DryRun      bool
	RetryFailed bool
	CleanDB     bool
	Verbose     bool
}

// Run sanitizes every selected file of one format.
func Run(ctx context.Context, cfg *config.Config, opts Options, out io.Writer) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	logOpts := logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: opts.Verbose,
		Console: io.Discard,
	}
	if opts.Verbose {
		logOpts.Console = os.Stderr
	}
	if !opts.DryRun {
		logOpts.Dir = filepath.Join(cfg.Output, sanitizer.LogsDir)
	}
	logger, err := logging.New(logOpts)
	if err != nil {
		return err
	}
	defer logger.Close()

	dbPath := cfg.Database
	if opts.DryRun {
		scratch, cleanup, err := scratchStore(cfg.Database)
		if err != nil {
			return err
		}
		defer cleanup()
		dbPath = scratch
	}

	st, err := store.Open(ctx, dbPath,
		store.WithHasher(identity.NewHasher(cfg.Identity.Salt)),
		store.WithLogger(logger.Logger))
	if err != nil {
		return err
	}
	defer st.Close()

	if opts.CleanDB {
		if err := st.Reset(ctx); err != nil {
			return fmt.Errorf("clean database: %w", err)
		}
	}

	files, err := finder.Find(cfg.Input, opts.Format)
	if err != nil {
		return err
	}
	files, err = finder.Select(cfg.Input, files, opts.Count, opts.Random, opts.Files)
	if err != nil {
		return err
	}

	printHeader(out, cfg, opts, len(files))
	if len(files) == 0 {
		fmt.Fprintf(out, "No %s files found in %s\n", opts.Format, cfg.Input)
		return nil
	}

	s := newSanitizer(opts.Format, st, fakegen.New(cfg.Generator()), cfg.Sanitizer(), logger.Logger)
	batch := sanitizer.NewBatch(s, st, sanitizer.BatchConfig{
		InputDir:    cfg.Input,
		OutputDir:   cfg.Output,
		DryRun:      opts.DryRun,
		RetryFailed: opts.RetryFailed,
	}, logger.Logger)

	pb := newProgressBar(out, 50)
	batch.OnProgress(func(current, total int, filename, status string) {
		pb.update(current, total)
	})

	if opts.DryRun {
		fmt.Fprintln(out, color.YellowString("\n[DRY RUN MODE]"))
	}
	fmt.Fprintln(out)

	stats, err := batch.Run(ctx, files)
	if stats != nil && stats.Success+stats.Failed+stats.Skipped > 0 {
		fmt.Fprintln(out)
	}
	if err != nil {
		if errors.Is(err, store.ErrUnavailable) {
			return err
		}
		return fmt.Errorf("processing failed: %w", err)
	}

	printSummary(out, stats, batch.FormatDir(), dbPath, logger.Path(), opts.DryRun)
	return nil
}

func newSanitizer(format finder.Format, st *store.Store, gen fakegen.Generator, opts sanitizer.Options, logger zerolog.Logger) sanitizer.Sanitizer {
	if format == finder.FormatCCD {
		return sanitizer.NewCCD(st, gen, opts, logger)
	}
	return sanitizer.NewHL7(st, gen, opts, logger)
}

// scratchStore copies the persistent store into a temp directory so a dry
// run previews against existing mappings without adding to them.
func scratchStore(dbPath string) (string, func(), error) {
	dir, err := os.MkdirTemp("", "phi-sanitizer-dry-run-*")
	if err != nil {
		return "", nil, fmt.Errorf("%w: create scratch directory: %w", store.ErrUnavailable, err)
	}
	cleanup := func() { os.RemoveAll(dir) }

	scratch := filepath.Join(dir, filepath.Base(dbPath))
	if err := copyFile(dbPath, scratch); err != nil && !errors.Is(err, os.ErrNotExist) {
		cleanup()
		return "", nil, fmt.Errorf("%w: copy store: %w", store.ErrUnavailable, err)
	}
	return scratch, cleanup, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// Stats prints the store's mapping counts.
func Stats(ctx context.Context, cfg *config.Config, out io.Writer) error {
	if _, err := os.Stat(cfg.Database); err != nil {
		return fmt.Errorf("database not found: %s", cfg.Database)
	}
	st, err := store.Open(ctx, cfg.Database, store.WithHasher(identity.NewHasher(cfg.Identity.Salt)))
	if err != nil {
		return err
	}
	defer st.Close()

	stats, err := st.Stats(ctx)
	if err != nil {
		return err
	}

	bold := color.New(color.Bold).SprintFunc()
	fmt.Fprintln(out, bold("Pseudonym Store"))
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Database:       %s\n", cfg.Database)
	fmt.Fprintf(out, "Patients:       %d\n", stats.Patients)
	fmt.Fprintf(out, "Organizations:  %d\n", stats.Organizations)
	fmt.Fprintf(out, "Providers:      %d\n", stats.Providers)
	fmt.Fprintf(out, "MRN mappings:   %d\n", stats.MRNMappings)
	return nil
}

// printHeader prints the CLI header with configuration
func printHeader(out io.Writer, cfg *config.Config, opts Options, found int) {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintln(out, cyan(fmt.Sprintf("PHI Sanitizer (%s)", opts.Format)))
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Input:     %s\n", cfg.Input)
	fmt.Fprintf(out, "Output:    %s\n", cfg.Output)
	fmt.Fprintf(out, "Database:  %s\n", cfg.Database)
	fmt.Fprintf(out, "Files:     %d\n", found)
	if cfg.Identity.Salt == "" {
		fmt.Fprintln(out, color.YellowString("Salt:      none (identity keys are unsalted)"))
	} else {
		fmt.Fprintln(out, "Salt:      (provided)")
	}

	var options []string
	if opts.Count > 0 {
		mode := "first"
		if opts.Random {
			mode = "random"
		}
		options = append(options, fmt.Sprintf("%s %d", mode, opts.Count))
	}
	if len(opts.Files) > 0 {
		options = append(options, fmt.Sprintf("%d named files", len(opts.Files)))
	}
	if opts.RetryFailed {
		options = append(options, "Retry failed")
	}
	if opts.CleanDB {
		options = append(options, "Clean database")
	}
	if opts.DryRun {
		options = append(options, "Dry run")
	}
	if len(options) > 0 {
		fmt.Fprintf(out, "Options:   %s\n", strings.Join(options, ", "))
	}
}

// printSummary prints the processing summary
func printSummary(out io.Writer, stats *sanitizer.Stats, outputDir, dbPath, runLog string, dryRun bool) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()

	failed := fmt.Sprintf("%d failed", stats.Failed)
	if stats.Failed > 0 {
		failed = red(failed)
	}

	fmt.Fprintln(out)
	fmt.Fprintln(out, strings.Repeat("=", 50))
	fmt.Fprintf(out, "Complete! %s, %s, %d skipped\n",
		green(fmt.Sprintf("%d succeeded", stats.Success)), failed, stats.Skipped)
	fmt.Fprintf(out, "PHI:       %d values replaced\n", stats.PHIReplaced)
	fmt.Fprintf(out, "Store:     %d patients, %d organizations, %d providers, %d MRN mappings\n",
		stats.Store.Patients, stats.Store.Organizations, stats.Store.Providers, stats.Store.MRNMappings)

	if dryRun {
		fmt.Fprintln(out, "Output:    none (dry run)")
	} else {
		fmt.Fprintf(out, "Output:    %s\n", outputDir)
		fmt.Fprintf(out, "Database:  %s\n", dbPath)
	}
	for _, e := range stats.Errors {
		fmt.Fprintf(out, "  %s %s: %s\n", red("x"), e.File, e.Error)
	}
	if stats.ErrorLog != "" && stats.Failed > 0 {
		fmt.Fprintf(out, "Errors:    %s\n", stats.ErrorLog)
	}
	if stats.Manifest != "" {
		fmt.Fprintf(out, "Manifest:  %s\n", stats.Manifest)
	}
	if runLog != "" {
		fmt.Fprintf(out, "Run log:   %s\n", runLog)
	}
}

// progressBar represents a terminal progress bar
type progressBar struct {
	out   io.Writer
	width int
}

func newProgressBar(out io.Writer, width int) *progressBar {
	return &progressBar{out: out, width: width}
}

// update updates the progress bar display
func (pb *progressBar) update(current, total int) {
	if total == 0 {
		return
	}

	percent := float64(current) / float64(total)
	filled := int(percent * float64(pb.width))
	if filled > pb.width {
		filled = pb.width
	}

	bar := color.GreenString(strings.Repeat("#", filled)) + strings.Repeat("-", pb.width-filled)
	fmt.Fprintf(pb.out, "\r[%s] %3.0f%%  (%d/%d)", bar, percent*100, current, total)
}
