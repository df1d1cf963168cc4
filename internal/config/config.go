// Package config resolves kilibmerge settings from flags, KILIBMERGE_*
// environment variables and an optional .kilibmerge.yaml file, all of
// which are layered by viper.
package config

import (
	"strings"

	"github.com/spf13/viper"
	"gitlab.com/tozd/go/errors"

	"github.com/OpenTraceLab/kilibmerge/internal/merge"
	"github.com/OpenTraceLab/kilibmerge/pkg/kicad/library"
)

// Keys shared by flags, environment variables and the config file.
const (
	KeyName           = "name"
	KeyLibraries      = "libraries"
	KeyOut            = "out"
	KeyFormat         = "format"
	KeyJobs           = "jobs"
	KeyUnpackArchives = "unpack-archives"
	KeyStrictLegacy   = "strict-legacy"
	KeyVerbose        = "verbose"
)

// EnvPrefix is prepended to every environment variable, e.g. KILIBMERGE_FORMAT.
const EnvPrefix = "KILIBMERGE"

// FileName is the config file searched in the working directory.
const FileName = ".kilibmerge"

// Defaults.
const (
	DefaultName      = "LibraryCustom"
	DefaultLibraries = "lib"
	DefaultOut       = "out"
	DefaultJobs      = 1
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.Base("invalid configuration")

// Config is the resolved set of options for one run.
type Config struct {
	Name           string
	Libraries      string
	Out            string
	Format         library.FormatVersion
	Jobs           int
	UnpackArchives bool
	StrictLegacy   bool
	Verbose        bool
}

// SetDefaults registers default values on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyName, DefaultName)
	v.SetDefault(KeyLibraries, DefaultLibraries)
	v.SetDefault(KeyOut, DefaultOut)
	v.SetDefault(KeyFormat, string(library.DefaultFormat))
	v.SetDefault(KeyJobs, DefaultJobs)
	v.SetDefault(KeyUnpackArchives, false)
	v.SetDefault(KeyStrictLegacy, true)
	v.SetDefault(KeyVerbose, false)
}

// BindEnv makes v read KILIBMERGE_<KEY> variables, with dashes in keys
// turned into underscores.
func BindEnv(v *viper.Viper) {
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
}

// ReadFile loads path, or .kilibmerge.{yaml,yml,...} from the working
// directory when path is empty. A missing default file is not an error.
// The file used, if any, is returned.
func ReadFile(v *viper.Viper, path string) (string, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return "", nil
		}
		return "", errors.Errorf("failed to read config: %w", err)
	}
	return v.ConfigFileUsed(), nil
}

// Load reads the settings out of v and validates them.
func Load(v *viper.Viper) (*Config, error) {
	format, err := library.ParseFormat(v.GetString(KeyFormat))
	if err != nil {
		return nil, errors.Errorf("%w: %s", ErrInvalid, err.Error())
	}

	cfg := &Config{
		Name:           strings.TrimSpace(v.GetString(KeyName)),
		Libraries:      v.GetString(KeyLibraries),
		Out:            v.GetString(KeyOut),
		Format:         format,
		Jobs:           v.GetInt(KeyJobs),
		UnpackArchives: v.GetBool(KeyUnpackArchives),
		StrictLegacy:   v.GetBool(KeyStrictLegacy),
		Verbose:        v.GetBool(KeyVerbose),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values that cannot be expressed as flag types.
func (c *Config) Validate() error {
	switch {
	case c.Name == "":
		return errors.Errorf("%w: library name is empty", ErrInvalid)
	case strings.ContainsAny(c.Name, `/\`):
		return errors.Errorf("%w: library name %q contains a path separator", ErrInvalid, c.Name)
	case c.Libraries == "":
		return errors.Errorf("%w: input directory is empty", ErrInvalid)
	case c.Out == "":
		return errors.Errorf("%w: output directory is empty", ErrInvalid)
	case c.Jobs < 1:
		return errors.Errorf("%w: jobs must be at least 1, got %d", ErrInvalid, c.Jobs)
	}
	return nil
}

// MergeOptions converts c into options for merge.Run.
func (c *Config) MergeOptions() merge.Options {
	return merge.Options{
		Name:           c.Name,
		InputRoot:      c.Libraries,
		OutputRoot:     c.Out,
		Format:         c.Format,
		Jobs:           c.Jobs,
		UnpackArchives: c.UnpackArchives,
		StrictLegacy:   c.StrictLegacy,
	}
}
