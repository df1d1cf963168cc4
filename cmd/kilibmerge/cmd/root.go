package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/OpenTraceLab/kilibmerge/internal/config"
	"github.com/OpenTraceLab/kilibmerge/internal/merge"
	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// Version is reported by --version.
var Version = "0.1.0"

// NewRootCmd builds the kilibmerge command tree. Each call gets its own
// viper instance so commands can be run side by side in tests.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	config.SetDefaults(v)
	config.BindEnv(v)

	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "kilibmerge",
		Short: "Merge per-component KiCad libraries into one library",
		Long: `kilibmerge walks a directory of per-component library downloads (one
directory per part, as produced by vendor library loaders) and builds a
single KiCad library out of them:

  <out>/<name>.pretty/      footprints, one <component>.kicad_mod each
  <out>/<name>.kicad_sym    merged symbols (v6 and newer)
  <out>/<name>.lib          merged symbols (v5)
  <out>/models3d/           .step/.stp/.stl models

Settings can also come from KILIBMERGE_* environment variables or a
.kilibmerge.yaml file.

Examples:
  kilibmerge -l downloads -o out -n MyParts      # merge for KiCad 8
  kilibmerge -f v5                               # legacy .lib output
  kilibmerge --unpack-archives -j 4              # include .zip downloads
  kilibmerge inspect out/MyParts.kicad_sym       # show merged symbols`,
		Version:      Version,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			used, err := config.ReadFile(v, cfgFile)
			if err != nil {
				return err
			}
			if used != "" && v.GetBool(config.KeyVerbose) {
				fmt.Fprintln(cmd.ErrOrStderr(), "Using config file:", used)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMerge(cmd, v)
		},
	}

	flags := rootCmd.Flags()
	flags.StringP(config.KeyName, "n", config.DefaultName, "name of the merged library")
	flags.StringP(config.KeyLibraries, "l", config.DefaultLibraries, "directory holding one subdirectory per component")
	flags.StringP(config.KeyOut, "o", config.DefaultOut, "output directory")
	flags.StringP(config.KeyFormat, "f", string(library.DefaultFormat), "KiCad format version (v5, v6, v7, v8)")
	flags.IntP(config.KeyJobs, "j", config.DefaultJobs, "number of components processed concurrently")
	flags.Bool(config.KeyUnpackArchives, false, "extract .zip components found in the input directory")
	flags.Bool(config.KeyStrictLegacy, true, "reject v5 libraries whose header or footer differs from the first one")

	persistent := rootCmd.PersistentFlags()
	persistent.BoolP(config.KeyVerbose, "v", false, "verbose output")
	persistent.StringVar(&cfgFile, "config", "", "config file (default is ./.kilibmerge.yaml)")

	cobra.CheckErr(v.BindPFlags(flags))
	cobra.CheckErr(v.BindPFlag(config.KeyVerbose, persistent.Lookup(config.KeyVerbose)))

	rootCmd.AddCommand(newInspectCmd())
	return rootCmd
}

// Execute runs the root command and exits non-zero on a fatal error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := NewRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func newLogger(w io.Writer, verbose bool) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		Prefix: "kilibmerge",
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

func runMerge(cmd *cobra.Command, v *viper.Viper) error {
	cfg, err := config.Load(v)
	if err != nil {
		return err
	}

	logger := newLogger(cmd.ErrOrStderr(), cfg.Verbose)
	report, err := merge.Run(cmd.Context(), cfg.MergeOptions(), logger)
	if err != nil {
		return err
	}

	fmt.Fprint(cmd.OutOrStdout(), renderSummary(report, cfg.Verbose))
	return nil
}
