package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/symlib"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <library_file>",
		Short: "Show symbol library information",
		Long: `Display the header and the symbols of a KiCad symbol library, either a
.kicad_sym file (KiCad 6 and newer) or a legacy .lib file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			summary, err := symlib.Inspect(args[0])
			if err != nil {
				return errors.Errorf("error reading library: %w", err)
			}
			showLibrarySummary(cmd.OutOrStdout(), summary)
			return nil
		},
	}
}

func showLibrarySummary(w io.Writer, s *symlib.Summary) {
	fmt.Fprintf(w, "Library: %s\n", s.Path)
	fmt.Fprintf(w, "Format: %s\n", s.Kind)
	fmt.Fprintf(w, "Version: %s\n", s.Version)
	if s.Generator != "" {
		fmt.Fprintf(w, "Generator: %s\n", s.Generator)
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "Symbols: %d\n", len(s.Symbols))
	for _, sym := range s.Symbols {
		fmt.Fprintf(w, "  %s", sym.Name)
		if sym.Reference != "" {
			fmt.Fprintf(w, " [%s]", sym.Reference)
		}
		fmt.Fprintf(w, " units=%d pins=%d", sym.Units, sym.Pins)
		if sym.Footprint != "" {
			fmt.Fprintf(w, " footprint=%s", sym.Footprint)
		}
		fmt.Fprintln(w)
	}
}
