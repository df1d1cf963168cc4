package merge

import (
	"sync"

	"github.com/hashicorp/go-multierror"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// Stage names a merge step.
type Stage string

const (
	StageFootprints Stage = "footprints"
	StageSymbols    Stage = "symbols"
	StageModels     Stage = "models"
)

// Stages lists the merge steps in execution order.
func Stages() []Stage {
	return []Stage{StageFootprints, StageSymbols, StageModels}
}

// StageStats counts outcomes of one stage. For footprints and symbols the
// unit is a component, for models it is a file.
type StageStats struct {
	Processed int
	Failed    int
}

// Report is the outcome of one Run. Per-component failures are collected
// in Errors; they never fail the run.
type Report struct {
	mu sync.Mutex

	Layout     Layout
	Components []library.Component
	Skipped    []library.Skip
	Unpacked   []string // archives turned into components
	Symbols    int      // symbol blocks or legacy sources written
	ModelBytes int64
	Errors     *multierror.Error

	stats map[Stage]*StageStats
}

func newReport(layout Layout) *Report {
	r := &Report{
		Layout: layout,
		stats:  make(map[Stage]*StageStats),
	}
	for _, s := range Stages() {
		r.stats[s] = &StageStats{}
	}
	return r
}

// Stats returns a copy of the counters for stage s.
func (r *Report) Stats(s Stage) StageStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.stats[s]; ok {
		return *st
	}
	return StageStats{}
}

// Err returns the aggregated per-component errors, or nil.
func (r *Report) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.Errors.ErrorOrNil()
}

func (r *Report) done(s Stage) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[s].Processed++
}

func (r *Report) fail(s Stage, component string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stats[s].Failed++
	r.Errors = multierror.Append(r.Errors, errors.WithDetails(
		errors.Errorf("%s: %s: %w", s, component, err),
		"stage", string(s),
		"component", component,
	))
}

func (r *Report) addModelBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ModelBytes += n
}
