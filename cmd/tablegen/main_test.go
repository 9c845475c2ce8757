package main

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/stretchr/testify/require"

	"github.com/hailam/tablegen/internal/board"
	"github.com/hailam/tablegen/internal/index"
)

func tablegen(t *testing.T, in string, args ...string) (int, string) {
	t.Helper()
	var out bytes.Buffer
	code := run(context.Background(), args, strings.NewReader(in), &out, io.Discard)
	return code, out.String()
}

func TestUsage(t *testing.T) {
	is := is.New(t)
	code, _ := tablegen(t, "")
	is.Equal(code, 2)
	code, _ = tablegen(t, "", "frobnicate")
	is.Equal(code, 2)
	code, out := tablegen(t, "", "help")
	is.Equal(code, 0)
	is.True(strings.Contains(out, "generate"))
}

func TestPlan(t *testing.T) {
	is := is.New(t)
	code, out := tablegen(t, "", "plan", "-n", "1", "--data-dir", t.TempDir())
	is.Equal(code, 0)
	is.True(strings.Contains(out, "wave 2: KPvK"))
	is.True(strings.Contains(out, "3 tables"))
}

func TestDecode(t *testing.T) {
	pos, err := board.ParseFEN("k7/8/1K6/8/8/8/7Q/8 w - -")
	require.NoError(t, err)
	ti := index.Encode(pos)

	code, out := tablegen(t, "", "decode", "--data-dir", t.TempDir(), "KQvK", strconv.FormatUint(uint64(ti), 10), "white")
	require.Equal(t, 0, code)
	back, err := board.ParseFEN(strings.TrimSpace(out))
	require.NoError(t, err)
	require.Equal(t, ti, index.Encode(back))

	code, _ = tablegen(t, "", "decode", "--data-dir", t.TempDir(), "KvKQ", "0")
	require.Equal(t, 1, code)
}

func TestGenerateCompressProbe(t *testing.T) {
	is := is.New(t)
	dir := t.TempDir()
	common := []string{"--data-dir", dir, "-n", "1", "-j", "2", "--store", "memory"}

	code, out := tablegen(t, "", append([]string{"generate", "--compress"}, common...)...)
	is.Equal(code, 0)
	is.True(strings.Contains(out, "3 computed"))
	is.True(strings.Contains(out, "3 tables compressed"))

	code, out = tablegen(t, "", append([]string{"verify", "--samples", "0"}, common...)...)
	is.Equal(code, 0)
	is.True(strings.Contains(out, "3 tables verified"))

	const fen = "k7/8/1K6/8/8/8/7Q/8 w - -"
	code, out = tablegen(t, "", append([]string{"probe"}, append(common, fen)...)...)
	is.Equal(code, 0)
	is.True(strings.Contains(out, "win in 1"))
	is.True(strings.Contains(out, "best h2h8"))

	code, out = tablegen(t, fen+"\n\nnot a fen\nquit\n8/8/8/8/8/8/8/8 w - -\n", append([]string{"probe"}, common...)...)
	is.Equal(code, 0)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	is.Equal(len(lines), 2) // input after quit is ignored

	code, out = tablegen(t, "", append([]string{"list"}, append(common, "KQvK")...)...)
	is.Equal(code, 0)
	is.True(strings.Contains(out, "win in"))
	is.True(!strings.Contains(out, "unreachable\tunreachable"))

	code, out = tablegen(t, "", append([]string{"status"}, common...)...)
	is.Equal(code, 0)
	is.True(strings.Contains(out, "KRvK"))
	is.True(strings.Contains(out, "finished"))
}
