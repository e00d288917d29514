// ipamsync inspects and drives IP address synchronization from the command
// line.
//
// Usage:
//
//	ipamsync [flags] <command> [args]
//	ipamsync [flags]              interactive shell when stdin is a terminal
//
// The CLI opens the database directly. DuckDB allows a single writing
// process, so stop ipamsyncd or point -db at a copy first.
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/term"

	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/loader"
	"github.com/xtxerr/ipamsync/internal/logging"
	"github.com/xtxerr/ipamsync/internal/store"
)

// Version is set at build time via ldflags
var Version = "dev"

var log = logging.Component("ipamsync")

func main() {
	cfgPath := flag.String("config", "config.yaml", "config file path")
	dbPath := flag.String("db", "", "database path (overrides config)")
	logLevel := flag.String("log-level", "warn", "log level: debug, info, warn, error")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ipamsync %s\n\nUsage: ipamsync [flags] <command> [args]\n\nFlags:\n", Version)
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nCommands:\n")
		newCLI(loader.DefaultConfig(), nil, os.Stderr).usage()
		fmt.Fprintf(os.Stderr, "  shell\tinteractive shell\n")
	}
	flag.Parse()

	logging.Init(logging.ParseLevel(*logLevel), false)

	cfg, err := loader.Load(*cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			exit(err)
		}
		cfg = loader.DefaultConfig()
	}
	if *dbPath != "" {
		cfg.Store.Path = *dbPath
	}
	if err := loader.Validate(cfg); err != nil {
		exit(err)
	}

	args := flag.Args()
	interactive := len(args) == 1 && args[0] == "shell"
	if len(args) == 0 {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			flag.Usage()
			os.Exit(int(errors.CodeInvalidArgument))
		}
		interactive = true
	}

	st, err := store.New(loader.ToStoreConfig(cfg.Store))
	if err != nil {
		exit(err)
	}
	defer st.Close()

	c := newCLI(cfg, st, os.Stdout)

	if interactive {
		runShell(c, *cfgPath)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = c.exec(ctx, args)
	stop()
	if err != nil {
		st.Close()
		exit(err)
	}
}

// exit reports err and exits with its error code.
func exit(err error) {
	fmt.Fprintf(os.Stderr, "ipamsync: %v\n", err)
	os.Exit(int(errors.ErrorToCode(err)))
}
