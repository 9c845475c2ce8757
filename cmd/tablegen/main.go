// Command tablegen generates, compresses, verifies and queries endgame
// tables.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/profile"
	"github.com/rs/zerolog"
	"github.com/spf13/pflag"

	"github.com/hailam/tablegen/internal/config"
	"github.com/hailam/tablegen/internal/logx"
)

type app struct {
	cfg config.Config
	log zerolog.Logger
	fs  *pflag.FlagSet
	in  io.Reader
	out io.Writer
}

type command struct {
	name  string
	args  string
	help  string
	flags func(fs *pflag.FlagSet)
	run   func(ctx context.Context, a *app) error
}

var commands = []command{
	{name: "plan", help: "print the configurations to build, in dependency waves", run: runPlan},
	{name: "generate", help: "build every table up to --max-pieces, resuming finished ones", flags: generateFlags, run: runGenerate},
	{name: "compress", help: "compress raw tables that have no compressed file", run: runCompress},
	{name: "verify", args: "[config...]", help: "compare compressed tables against raw ones", run: runVerify},
	{name: "list", args: "<config>", help: "dump the scores of a table", flags: listFlags, run: runList},
	{name: "decode", args: "<config> <index> [white|black]", help: "print the position at a table index", run: runDecode},
	{name: "probe", args: "[fen...]", help: "look up positions, reading FENs from stdin when none are given", run: runProbe},
	{name: "status", help: "show the catalog and the last run", run: runStatus},
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: tablegen <command> [flags] [args]")
	fmt.Fprintln(w)
	for _, c := range commands {
		fmt.Fprintf(w, "  %-9s %s\n", c.name, c.help)
	}
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Run 'tablegen <command> --help' for the flags of a command.")
}

// run executes one command and returns the process exit code.
func run(ctx context.Context, args []string, in io.Reader, out, errw io.Writer) int {
	if len(args) == 0 {
		usage(errw)
		return 2
	}
	switch args[0] {
	case "help", "-h", "--help":
		usage(out)
		return 0
	}
	var cmd *command
	for i := range commands {
		if commands[i].name == args[0] {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(errw, "unknown command %q\n\n", args[0])
		usage(errw)
		return 2
	}

	fs := pflag.NewFlagSet("tablegen "+cmd.name, pflag.ContinueOnError)
	fs.SetOutput(errw)
	fs.Usage = func() {
		fmt.Fprintf(errw, "usage: tablegen %s [flags] %s\n\n%s\n\n", cmd.name, cmd.args, cmd.help)
		fs.PrintDefaults()
	}
	config.Flags(fs)
	fs.String("cpuprofile", "", "write a CPU profile into this directory")
	if cmd.flags != nil {
		cmd.flags(fs)
	}
	if err := fs.Parse(args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		return 2
	}
	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintln(errw, err)
		return 2
	}

	if dir, _ := fs.GetString("cpuprofile"); dir != "" {
		defer profile.Start(profile.CPUProfile, profile.ProfilePath(dir), profile.Quiet, profile.NoShutdownHook).Stop()
	}

	a := &app{cfg: cfg, log: logx.New(errw, cfg.LogLevel), fs: fs, in: in, out: out}
	if err := cmd.run(ctx, a); err != nil {
		a.log.Error().Err(err).Str("command", cmd.name).Msg("command failed")
		return 1
	}
	return 0
}
