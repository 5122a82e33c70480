package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"phi-sanitizer/internal/config"
	"phi-sanitizer/internal/finder"
)

// NewRootCommand builds the phi-sanitizer command tree.
func NewRootCommand() *cobra.Command {
	v := config.New()
	var configFile string

	root := &cobra.Command{
		Use:   "phi-sanitizer",
		Short: "De-identify HL7 v2 messages and CDA/CCD documents",
		Long: `phi-sanitizer replaces protected health information in HL7 v2 messages
and CDA/CCD documents with consistent synthetic values.

The same patient, organization and provider always receive the same fake
identity across files and formats, as long as the same database and salt
are used.

KEEP THESE SECRET:
  The database maps original identities to their fakes. Anyone holding
  it, or the salt, can re-identify patients. Only share the output folder.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&configFile, "config", "", "YAML config file")
	pf.String("db", "database/mappings.db", "Pseudonym store (sqlite) path")
	pf.String("salt", "", "Secret salt mixed into identity keys")
	_ = v.BindPFlag("db", pf.Lookup("db"))
	_ = v.BindPFlag("identity.salt", pf.Lookup("salt"))

	load := func() (*config.Config, error) {
		return config.Load(v, configFile)
	}

	root.AddCommand(
		newFormatCommand(finder.FormatHL7, "hl7", "De-identify HL7 v2 messages (.hl7, .txt)", v, load),
		newFormatCommand(finder.FormatCCD, "ccd", "De-identify CDA/CCD documents (.xml, .txt)", v, load),
		newStatsCommand(load),
	)
	return root
}

func newFormatCommand(format finder.Format, use, short string, v *viper.Viper, load func() (*config.Config, error)) *cobra.Command {
	opts := Options{Format: format}

	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Example: fmt.Sprintf(`  # Preview the first 10 files without writing anything
  phi-sanitizer %[1]s -i ./input -n --count 10

  # Process everything, keeping identities consistent with earlier runs
  phi-sanitizer %[1]s -i ./input -o ./output --db ./database/mappings.db

  # Retry only the files that failed last time
  phi-sanitizer %[1]s -i ./input --retry`, use),
		RunE: func(cmd *cobra.Command, args []string) error {
			// hl7 and ccd share the keys, so bind the flags of the running command only.
			for _, key := range []string{"input", "output"} {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(key)); err != nil {
					return err
				}
			}
			cfg, err := load()
			if err != nil {
				return err
			}
			return Run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	f := cmd.Flags()
	f.StringP("input", "i", "", "Input folder (required)")
	f.StringP("output", "o", "output", "Output folder")

	f.IntVarP(&opts.Count, "count", "c", 0, "Process at most this many files (0 = all)")
	f.BoolVarP(&opts.Random, "random", "r", false, "Pick --count files at random")
	f.StringSliceVarP(&opts.Files, "files", "f", nil, "Process only these files (name or relative path)")
	f.BoolVarP(&opts.DryRun, "dry-run", "n", false, "Sanitize against a scratch copy of the store and write nothing")
	f.BoolVar(&opts.RetryFailed, "retry", false, "Retry files that failed in a previous run")
	f.BoolVar(&opts.CleanDB, "clean-db", false, "Delete every stored mapping before processing")
	f.BoolVarP(&opts.Verbose, "verbose", "v", false, "Log every file to the console")
	return cmd
}

func newStatsCommand(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pseudonym store counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			return Stats(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}
}
