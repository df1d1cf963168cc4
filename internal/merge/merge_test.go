package merge

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/symlib"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

func symFile(version int, generator string, names ...string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "(kicad_symbol_lib (version %d) (generator %q)\n", version, generator)
	for _, n := range names {
		fmt.Fprintf(&b, "  (symbol %q (in_bom yes)\n", n)
		b.WriteString("    (property \"Reference\" \"U\" (id 0) (at 0 0 0))\n")
		b.WriteString("  )\n")
	}
	b.WriteString(")\n")
	return b.String()
}

func legacyLib(body ...string) string {
	return "EESchema-LIBRARY Version 2.4\n#encoding utf-8\n" + strings.Join(body, "\n") + "\n#\n#End Library\n"
}

func run(t *testing.T, opts Options) *Report {
	t.Helper()
	report, err := Run(context.Background(), opts, nil)
	require.NoError(t, err)
	return report
}

func TestRunStructured(t *testing.T) {
	in := t.TempDir()
	out := filepath.Join(t.TempDir(), "out")

	// Nested v6 layout.
	writeFixture(t, filepath.Join(in, "A", "KiCADv6", "footprints.pretty", "SOIC8.kicad_mod"), "(footprint A)")
	writeFixture(t, filepath.Join(in, "A", "KiCADv6", "A.kicad_sym"), symFile(20220914, "test_gen", "A"))
	// Flat layout.
	writeFixture(t, filepath.Join(in, "B", "footprints.pretty", "DIP8.kicad_mod"), "(footprint B)")
	writeFixture(t, filepath.Join(in, "B", "B.kicad_sym"), symFile(20211014, "other", "B", "B2"))
	// No footprint, no symbol.
	writeFixture(t, filepath.Join(in, "C", "readme.txt"), "nothing here")
	writeFixture(t, filepath.Join(in, "D.zip"), "not really a zip")

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV6, Jobs: 1})

	assert.Equal(t, "(footprint A)", readFile(t, filepath.Join(out, "Lib.pretty", "A.kicad_mod")))
	assert.Equal(t, "(footprint B)", readFile(t, filepath.Join(out, "Lib.pretty", "B.kicad_mod")))
	assert.NoFileExists(t, filepath.Join(out, "Lib.pretty", "C.kicad_mod"))

	assert.Equal(t, StageStats{Processed: 2, Failed: 1}, report.Stats(StageFootprints))
	assert.Equal(t, StageStats{Processed: 2, Failed: 1}, report.Stats(StageSymbols))
	require.Len(t, report.Skipped, 1)
	assert.Equal(t, library.ReasonArchive, report.Skipped[0].Reason)
	assert.Equal(t, 3, report.Symbols)

	want := strings.Join([]string{
		"(kicad_symbol_lib",
		"  (version 20220914)",
		`  (generator "test_gen")`,
		`  (symbol "A" (in_bom yes)`,
		`    (property "Reference" "U" (id 0) (at 0 0 0))`,
		"  )",
		`  (symbol "B" (in_bom yes)`,
		`    (property "Reference" "U" (id 0) (at 0 0 0))`,
		"  )",
		`  (symbol "B2" (in_bom yes)`,
		`    (property "Reference" "U" (id 0) (at 0 0 0))`,
		"  )",
		")",
		"",
	}, "\n")
	assert.Equal(t, want, readFile(t, filepath.Join(out, "Lib.kicad_sym")))

	err := report.Err()
	require.Error(t, err)
	assert.True(t, errors.Is(err, library.ErrNotFound), "got %v", err)
	assert.Contains(t, err.Error(), "C")

	summary, err := symlib.Inspect(filepath.Join(out, "Lib.kicad_sym"))
	require.NoError(t, err)
	assert.Len(t, summary.Symbols, report.Symbols)
}

func TestRunNoStructuredInputsUsesFormatDefaults(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "A.kicad_mod"), "(footprint A)")

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})
	assert.Equal(t, 0, report.Symbols)
	assert.Equal(t,
		"(kicad_symbol_lib\n  (version 20231120)\n  (generator \"kicad_symbol_editor\")\n)\n",
		readFile(t, filepath.Join(out, "Lib.kicad_sym")))
}

func TestRunExtraFootprints(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	pretty := filepath.Join(in, "Part", "KiCad", "footprints.pretty")
	writeFixture(t, filepath.Join(pretty, "a.kicad_mod"), "first")
	writeFixture(t, filepath.Join(pretty, "b.kicad_mod"), "second")
	writeFixture(t, filepath.Join(pretty, "notes.txt"), "ignored")

	run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV5})

	entries, err := os.ReadDir(filepath.Join(out, "Lib.pretty"))
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"Part.kicad_mod", "Part_b.kicad_mod"}, names)
	assert.Equal(t, "first", readFile(t, filepath.Join(out, "Lib.pretty", "Part.kicad_mod")))
}

func TestRunFootprintNameCollision(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "a.kicad_mod"), "component A")
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "b.kicad_mod"), "component A extra")
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "c.kicad_mod"), "component A other")
	writeFixture(t, filepath.Join(in, "A_b", "footprints.pretty", "x.kicad_mod"), "component A_b")

	for _, jobs := range []int{1, 3} {
		report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8, Jobs: jobs})

		pretty := filepath.Join(out, "Lib.pretty")
		assert.Equal(t, "component A", readFile(t, filepath.Join(pretty, "A.kicad_mod")))
		assert.Equal(t, "component A_b", readFile(t, filepath.Join(pretty, "A_b.kicad_mod")))
		assert.Equal(t, "component A other", readFile(t, filepath.Join(pretty, "A_c.kicad_mod")))

		assert.Equal(t, StageStats{Processed: 1, Failed: 1}, report.Stats(StageFootprints))
		err := report.Err()
		assert.True(t, errors.Is(err, ErrFootprintCollision), "got %v", err)
	}
}

func TestRunHeaderFromFirstReadableSymbol(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "A.kicad_mod"), "(footprint A)")
	writeFixture(t, filepath.Join(in, "B", "B.kicad_sym"), symFile(20220914, "X", "B"))
	writeFixture(t, filepath.Join(in, "C", "C.kicad_sym"), symFile(20231120, "Y", "C"))

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})

	text := readFile(t, filepath.Join(out, "Lib.kicad_sym"))
	assert.True(t, strings.HasPrefix(text, "(kicad_symbol_lib\n  (version 20220914)\n  (generator \"X\")\n"), text)
	assert.Equal(t, StageStats{Processed: 2, Failed: 1}, report.Stats(StageSymbols))
	assert.Equal(t, 2, report.Symbols)
}

func TestRunInvalidUTF8Symbol(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "A.kicad_sym"), symFile(20211014, "kicad_symbol_editor", "A"))
	writeFixture(t, filepath.Join(in, "B", "B.kicad_sym"), "(kicad_symbol_lib (version 20211014)\n  (symbol \"B\xff\"\n  )\n)\n")
	writeFixture(t, filepath.Join(in, "C", "C.kicad_sym"), symFile(20211014, "kicad_symbol_editor", "C"))

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV6})

	assert.Equal(t, StageStats{Processed: 2, Failed: 1}, report.Stats(StageSymbols))
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "UTF-8")

	text := readFile(t, filepath.Join(out, "Lib.kicad_sym"))
	assert.Contains(t, text, `(symbol "A"`)
	assert.Contains(t, text, `(symbol "C"`)
	assert.NotContains(t, text, `"B`)
	assert.Equal(t, 2, report.Symbols)
}

func TestRunLegacy(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "LM358", "KiCad", "LM358.lib"),
		legacyLib("#", "# LM358", "#", "DEF LM358 U 0 40 Y Y 2 L N", "ENDDEF"))
	writeFixture(t, filepath.Join(in, "NE555", "NE555.lib"),
		legacyLib("#", "# NE555", "#", "DEF NE555 U 0 40 Y Y 1 F N", "", "ENDDEF"))

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV5, StrictLegacy: true})

	want := strings.Join([]string{
		"EESchema-LIBRARY Version 2.4",
		"#encoding utf-8",
		"#", "# LM358", "#", "DEF LM358 U 0 40 Y Y 2 L N", "ENDDEF",
		"#", "# NE555", "#", "DEF NE555 U 0 40 Y Y 1 F N", "ENDDEF",
		"#",
		"#End Library",
	}, "\n")
	assert.Equal(t, want, readFile(t, filepath.Join(out, "Lib.lib")))
	assert.Equal(t, StageStats{Processed: 2}, report.Stats(StageSymbols))
	assert.Equal(t, 2, report.Symbols)
}

func TestRunLegacyStrictMismatch(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "A.lib"), legacyLib("DEF A U 0 40 Y Y 1 F N", "ENDDEF"))
	writeFixture(t, filepath.Join(in, "B", "B.lib"), "EESchema-LIBRARY Version 2.3\n#encoding utf-8\nDEF B U 0 40 Y Y 1 F N\nENDDEF\n#\n#End Library\n")

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV5, StrictLegacy: true})
	assert.Equal(t, StageStats{Processed: 1, Failed: 1}, report.Stats(StageSymbols))
	assert.True(t, errors.Is(report.Err(), symlib.ErrLegacyMismatch), "got %v", report.Err())
	assert.NotContains(t, readFile(t, filepath.Join(out, "Lib.lib")), "DEF B")

	out2 := t.TempDir()
	report = run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out2, Format: library.FormatV5})
	assert.Equal(t, StageStats{Processed: 2}, report.Stats(StageSymbols))
	assert.Contains(t, readFile(t, filepath.Join(out2, "Lib.lib")), "DEF B")
}

func TestRunModelCollisions(t *testing.T) {
	in := t.TempDir()
	out := t.TempDir()
	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)

	for _, name := range []string{"A", "B"} {
		path := filepath.Join(in, name, "model.step")
		writeFixture(t, path, "solid "+name)
		require.NoError(t, os.Chmod(path, 0o600))
		require.NoError(t, os.Chtimes(path, mtime, mtime))
	}
	writeFixture(t, filepath.Join(in, "B", "body.STL"), "stl")
	writeFixture(t, filepath.Join(in, "B", "model.wrl"), "vrml")

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})

	models := filepath.Join(out, ModelDirName)
	assert.Equal(t, "solid A", readFile(t, filepath.Join(models, "model.step")))
	assert.Equal(t, "solid B", readFile(t, filepath.Join(models, "model_1.step")))
	assert.FileExists(t, filepath.Join(models, "body.STL"))
	assert.NoFileExists(t, filepath.Join(models, "model.wrl"))
	assert.Equal(t, StageStats{Processed: 3}, report.Stats(StageModels))
	assert.Equal(t, int64(len("solid A")+len("solid B")+len("stl")), report.ModelBytes)

	info, err := os.Stat(filepath.Join(models, "model_1.step"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	assert.True(t, info.ModTime().Equal(mtime), "mtime %v", info.ModTime())

	// A second run into the same output never overwrites.
	run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})
	assert.Equal(t, "solid A", readFile(t, filepath.Join(models, "model.step")))
	assert.FileExists(t, filepath.Join(models, "model_3.step"))
}

func TestRunMissingInputRoot(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")

	report, err := Run(context.Background(), Options{
		Name:       "Lib",
		InputRoot:  filepath.Join(t.TempDir(), "missing"),
		OutputRoot: out,
	}, nil)
	require.Error(t, err)
	assert.Nil(t, report)
	assert.True(t, errors.Is(err, ErrInputRootMissing), "got %v", err)
	assert.NoDirExists(t, out)
}

func TestRunEmptyInputRoot(t *testing.T) {
	out := t.TempDir()
	report := run(t, Options{Name: "Lib", InputRoot: t.TempDir(), OutputRoot: out, Format: library.FormatV5})

	assert.DirExists(t, filepath.Join(out, "Lib.pretty"))
	assert.DirExists(t, filepath.Join(out, ModelDirName))
	assert.Equal(t, "EESchema-LIBRARY Version 2.4\n#encoding utf-8\n#\n#End Library", readFile(t, filepath.Join(out, "Lib.lib")))
	assert.NoError(t, report.Err())
}

func TestRunOutputInsideInput(t *testing.T) {
	in := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "footprints.pretty", "A.kicad_mod"), "(footprint A)")
	out := filepath.Join(in, "out")

	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})
	run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV8})

	assert.Equal(t, StageStats{Processed: 1}, report.Stats(StageFootprints))
}

func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	files := make(map[string]string)
	require.NoError(t, filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files[rel] = readFile(t, path)
		return nil
	}))
	return files
}

func populate(t *testing.T, in string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("Part%02d", i)
		dir := filepath.Join(in, name, "KiCADv6")
		writeFixture(t, filepath.Join(dir, "footprints.pretty", name+".kicad_mod"), "(footprint "+name+")")
		writeFixture(t, filepath.Join(dir, name+".kicad_sym"), symFile(20211014, "kicad_symbol_editor", name))
		writeFixture(t, filepath.Join(in, name, "model.stp"), name)
	}
}

func TestRunIdempotent(t *testing.T) {
	in := t.TempDir()
	populate(t, in, 5)

	out := filepath.Join(t.TempDir(), "out")
	opts := Options{Name: "Lib", InputRoot: in, OutputRoot: out, Format: library.FormatV6, Jobs: 1}
	run(t, opts)
	first := snapshot(t, out)

	require.NoError(t, os.RemoveAll(out))
	run(t, opts)
	assert.Equal(t, first, snapshot(t, out))
}

func TestRunJobsPreservesOrder(t *testing.T) {
	in := t.TempDir()
	populate(t, in, 12)

	seq := filepath.Join(t.TempDir(), "seq")
	par := filepath.Join(t.TempDir(), "par")
	run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: seq, Format: library.FormatV6, Jobs: 1})
	report := run(t, Options{Name: "Lib", InputRoot: in, OutputRoot: par, Format: library.FormatV6, Jobs: 4})

	assert.Equal(t, snapshot(t, seq), snapshot(t, par))
	assert.Equal(t, StageStats{Processed: 12}, report.Stats(StageFootprints))
	assert.Equal(t, StageStats{Processed: 12}, report.Stats(StageModels))
	assert.Equal(t, "Part00", readFile(t, filepath.Join(par, ModelDirName, "model.stp")))
	assert.Equal(t, "Part11", readFile(t, filepath.Join(par, ModelDirName, "model_11.stp")))
}

func TestRunCancelled(t *testing.T) {
	in := t.TempDir()
	populate(t, in, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, Options{Name: "Lib", InputRoot: in, OutputRoot: t.TempDir(), Format: library.FormatV6}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewLayout(t *testing.T) {
	l := NewLayout("out", "Lib", library.FormatV5)
	assert.Equal(t, filepath.Join("out", "Lib.pretty"), l.FootprintDir)
	assert.Equal(t, filepath.Join("out", "Lib.lib"), l.SymbolFile)
	assert.Equal(t, filepath.Join("out", "models3d"), l.ModelDir)

	l = NewLayout("out", "Lib", library.FormatV7)
	assert.Equal(t, filepath.Join("out", "Lib.kicad_sym"), l.SymbolFile)
}

func TestFootprintTargets(t *testing.T) {
	got := footprintTargets("U1", []string{"/x/SOIC.kicad_mod", "/x/SOIC_alt.kicad_mod"})
	assert.Equal(t, []string{"U1.kicad_mod", "U1_SOIC_alt.kicad_mod"}, got)
	assert.Empty(t, footprintTargets("U1", nil))
}

func TestCopyFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := copyFile(filepath.Join(dir, "missing.step"), filepath.Join(dir, "out.step"), copyReplace)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist), "got %v", err)
	assert.Contains(t, err.Error(), "failed to open source")

	src := filepath.Join(dir, "m.step")
	writeFixture(t, src, "solid")
	writeFixture(t, filepath.Join(dir, "taken.step"), "old")
	_, err = copyFile(src, filepath.Join(dir, "taken.step"), copyPreserve)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrExist), "got %v", err)
	assert.Contains(t, err.Error(), "failed to create destination")
	assert.Equal(t, "old", readFile(t, filepath.Join(dir, "taken.step")))
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	writeFixture(t, filepath.Join(dir, "m.step"), "")

	reserved := map[string]bool{"m_1.step": true}
	assert.Equal(t, "m_2.step", uniqueName(dir, "m.step", reserved))
	assert.Equal(t, "m_3.step", uniqueName(dir, "m.step", reserved))
	assert.Equal(t, "other", uniqueName(dir, "other", reserved))
	assert.Equal(t, "other_1", uniqueName(dir, "other", reserved))
}
