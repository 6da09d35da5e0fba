// Command iconcache resolves icons through the persistent icon cache and
// inspects its stores.
//
// Usage:
//
//	iconcache [-config iconcache.yaml] <command> [flags]
//
// Commands: resolve, stats, clean, clear, rules, reset.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, app *app, args []string) error
}

var commands = []command{
	{"resolve", "resolve an icon or reference and print the result", runResolve},
	{"stats", "print asset store statistics", runStats},
	{"clean", "remove corrupt asset store entries", runClean},
	{"clear", "remove every asset store entry", runClear},
	{"rules", "print registered style rules", runRules},
	{"reset", "drop registered style rules", runReset},
}

var errUsage = errors.New("usage")

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("iconcache", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", defaultConfigPath(), "config file (optional)")
	fs.Usage = func() { usage(fs, stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		usage(fs, stderr)
		return 2
	}

	name := fs.Arg(0)
	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Fprintf(stderr, "unknown command %q\n", name)
		usage(fs, stderr)
		return 2
	}

	a, err := newApp(ctx, *configPath, stdout, stderr)
	if err != nil {
		fmt.Fprintf(stderr, "iconcache: %v\n", err)
		return 1
	}
	err = cmd.run(ctx, a, fs.Args()[1:])
	if cerr := a.close(ctx); cerr != nil {
		a.logger.Warn("shutdown failed", slog.Any("error", cerr))
	}
	switch {
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return 2
	case err != nil:
		fmt.Fprintf(stderr, "iconcache %s: %v\n", name, err)
		return 1
	}
	return 0
}

func usage(fs *flag.FlagSet, w io.Writer) {
	fmt.Fprintln(w, "usage: iconcache [flags] <command> [command flags]")
	fmt.Fprintln(w, "\ncommands:")
	for _, c := range commands {
		fmt.Fprintf(w, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintln(w, "\nflags:")
	fs.PrintDefaults()
}
