package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/matryer/is"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/retro"
)

func parse(t *testing.T, args ...string) (Config, error) {
	t.Helper()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	Flags(fs)
	require.NoError(t, fs.Parse(args))
	return Load(fs)
}

func TestDefaults(t *testing.T) {
	is := is.New(t)
	c, err := parse(t)
	is.NoErr(err)
	is.Equal(c.MaxPieces, 2)
	is.Equal(c.Store, StoreAuto)
	is.Equal(c.ScoringMode(), retro.Forward)
	is.True(c.Workers >= 1)
	is.True(c.KeepRaw)
}

func TestPrecedence(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	file := filepath.Join(dir, "tablegen.yaml")
	require.NoError(t, os.WriteFile(file, []byte("max-pieces: 3\nmode: backward\nworkers: 2\n"), 0o644))

	c, err := parse(t, "--config", file)
	is.NoErr(err)
	is.Equal(c.MaxPieces, 3)
	is.Equal(c.ScoringMode(), retro.Backward)

	t.Setenv("TABLEGEN_MAX_PIECES", "4")
	c, err = parse(t, "--config", file)
	is.NoErr(err)
	is.Equal(c.MaxPieces, 4) // environment beats the file

	c, err = parse(t, "--config", file, "-n", "1", "--data-dir", dir)
	is.NoErr(err)
	is.Equal(c.MaxPieces, 1) // flags beat everything
	is.Equal(c.Layout().Root, dir)
	is.Equal(c.Workers, 2)
}

func TestValidate(t *testing.T) {
	_, err := parse(t, "--mode", "sideways")
	require.Error(t, err)
	_, err = parse(t, "--store", "tape")
	require.Error(t, err)
	_, err = parse(t, "--workers", "0")
	require.Error(t, err)
	_, err = parse(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
