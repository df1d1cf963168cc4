package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/internal/merge"
)

func writeFixture(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	_, err := root.ExecuteC()
	return stdout.String(), stderr.String(), err
}

const opAmp = `(kicad_symbol_lib (version 20211014) (generator kicad_symbol_editor)
  (symbol "LM358" (in_bom yes) (on_board yes)
    (property "Reference" "U" (id 0) (at 0 5.08 0))
    (property "Footprint" "Package_SO:SOIC-8" (id 2) (at 0 0 0))
    (symbol "LM358_1_1"
      (pin input line (at -7.62 2.54 0) (length 2.54))
      (pin input line (at -7.62 -2.54 0) (length 2.54))
    )
  )
)
`

func fixtureLibrary(t *testing.T) string {
	t.Helper()
	in := t.TempDir()
	writeFixture(t, filepath.Join(in, "LM358", "KiCADv6", "footprints.pretty", "SOIC8.kicad_mod"), "(footprint SOIC8)")
	writeFixture(t, filepath.Join(in, "LM358", "KiCADv6", "LM358.kicad_sym"), opAmp)
	writeFixture(t, filepath.Join(in, "LM358", "LM358.stp"), "solid")
	return in
}

func TestMergeCommand(t *testing.T) {
	in := fixtureLibrary(t)
	out := filepath.Join(t.TempDir(), "out")

	stdout, _, err := execute(t, "-l", in, "-o", out, "-n", "Parts", "-f", "v6", "-j", "2")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(out, "Parts.pretty", "LM358.kicad_mod"))
	assert.FileExists(t, filepath.Join(out, "Parts.kicad_sym"))
	assert.FileExists(t, filepath.Join(out, "models3d", "LM358.stp"))
	assert.Contains(t, stdout, "Merged library")
	assert.Contains(t, stdout, "footprints")

	stdout, _, err = execute(t, "inspect", filepath.Join(out, "Parts.kicad_sym"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "Symbols: 1")
	assert.Contains(t, stdout, "LM358 [U] units=1 pins=2 footprint=Package_SO:SOIC-8")
}

func TestMergeCommandLegacyFromEnv(t *testing.T) {
	in := t.TempDir()
	writeFixture(t, filepath.Join(in, "A", "KiCad", "A.lib"),
		"EESchema-LIBRARY Version 2.4\n#encoding utf-8\nDEF A U 0 40 Y Y 1 F N\nENDDEF\n#\n#End Library\n")
	out := t.TempDir()
	t.Setenv("KILIBMERGE_FORMAT", "v5")
	t.Setenv("KILIBMERGE_NAME", "Legacy")

	_, _, err := execute(t, "-l", in, "-o", out)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(out, "Legacy.lib"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "EESchema-LIBRARY Version 2.4\n"))
	assert.Contains(t, string(data), "DEF A U")
}

func TestMergeCommandConfigFile(t *testing.T) {
	in := fixtureLibrary(t)
	out := t.TempDir()
	conf := filepath.Join(t.TempDir(), "kilibmerge.yaml")
	writeFixture(t, conf, "name: FromFile\nformat: v7\n")

	_, _, err := execute(t, "--config", conf, "-l", in, "-o", out)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(out, "FromFile.kicad_sym"))
}

func TestMergeCommandMissingInput(t *testing.T) {
	out := filepath.Join(t.TempDir(), "out")
	_, _, err := execute(t, "-l", filepath.Join(t.TempDir(), "missing"), "-o", out)
	require.Error(t, err)
	assert.True(t, errors.Is(err, merge.ErrInputRootMissing), "got %v", err)
	assert.NoDirExists(t, out)
}

func TestMergeCommandInvalidFlags(t *testing.T) {
	_, _, err := execute(t, "-l", t.TempDir(), "-f", "v4")
	assert.Error(t, err)

	_, _, err = execute(t, "-l", t.TempDir(), "-j", "0")
	assert.Error(t, err)

	_, _, err = execute(t, "stray-argument")
	assert.Error(t, err)
}

func TestInspectCommandErrors(t *testing.T) {
	_, _, err := execute(t, "inspect")
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "x.txt")
	writeFixture(t, path, "")
	_, _, err = execute(t, "inspect", path)
	assert.Error(t, err)
}

func TestVersion(t *testing.T) {
	stdout, _, err := execute(t, "--version")
	require.NoError(t, err)
	assert.Contains(t, stdout, Version)
}
