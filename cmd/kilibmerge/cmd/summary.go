package cmd

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"
	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/internal/merge"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39"))

	labelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("214"))

	valueStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("245"))

	failStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196"))
)

// renderSummary formats the end-of-run report. Per-component errors are
// listed only when verbose, the log already carried them.
func renderSummary(r *merge.Report, verbose bool) string {
	var sb strings.Builder

	sb.WriteString(headerStyle.Render("Merged library"))
	sb.WriteString("\n")
	writeRow(&sb, "footprints", r.Layout.FootprintDir)
	writeRow(&sb, "symbols", r.Layout.SymbolFile)
	writeRow(&sb, "models", r.Layout.ModelDir)
	sb.WriteString("\n")

	writeRow(&sb, "components", fmt.Sprintf("%d (%d skipped, %d unpacked)", len(r.Components), len(r.Skipped), len(r.Unpacked)))
	for _, stage := range merge.Stages() {
		st := r.Stats(stage)
		value := fmt.Sprintf("%d ok", st.Processed)
		if st.Failed > 0 {
			value += ", " + failStyle.Render(fmt.Sprintf("%d failed", st.Failed))
		}
		writeRow(&sb, string(stage), value)
	}
	writeRow(&sb, "symbol entries", fmt.Sprint(r.Symbols))
	writeRow(&sb, "model data", humanize.Bytes(uint64(r.ModelBytes)))

	var merr *multierror.Error
	if verbose && errors.As(r.Err(), &merr) {
		sb.WriteString("\n")
		sb.WriteString(labelStyle.Render("Errors:"))
		sb.WriteString("\n")
		for _, e := range merr.Errors {
			sb.WriteString(failStyle.Render("  • " + e.Error()))
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

func writeRow(sb *strings.Builder, label, value string) {
	sb.WriteString(labelStyle.Render(fmt.Sprintf("  %-16s", label)))
	sb.WriteString(valueStyle.Render(value))
	sb.WriteString("\n")
}
