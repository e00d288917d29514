package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xtxerr/ipamsync/config"
	"github.com/xtxerr/ipamsync/internal/errors"
	"github.com/xtxerr/ipamsync/internal/loader"
	"github.com/xtxerr/ipamsync/internal/manager"
	"github.com/xtxerr/ipamsync/internal/provider"
	"github.com/xtxerr/ipamsync/internal/result"
	"github.com/xtxerr/ipamsync/internal/snmp"
	"github.com/xtxerr/ipamsync/internal/stats"
	"github.com/xtxerr/ipamsync/internal/store"
	"github.com/xtxerr/ipamsync/internal/wire"
)

// defaultRunsLimit bounds the runs listing.
const defaultRunsLimit = 20

// =============================================================================
// Commands
// =============================================================================

type command struct {
	name    string
	args    string
	help    string
	minArgs int
	maxArgs int
	fn      func(c *cli, ctx context.Context, args []string) error
}

var commands = []command{
	{"run", "<group>", "run a sync group now", 1, 1, (*cli).run},
	{"runs", "[group]", "list recent runs", 0, 1, (*cli).runs},
	{"results", "<run-id>", "show the results of a run", 1, 1, (*cli).results},
	{"subnets", "", "list subnets and their address counts", 0, 0, (*cli).subnets},
	{"groups", "", "list configured sync groups", 0, 0, (*cli).groups},
	{"export", "<run-id> <file>", "write a run as a result stream (- for stdout)", 2, 2, (*cli).export},
	{"decode", "<file>", "print a result stream (- for stdin)", 1, 1, (*cli).decode},
}

func lookup(name string) (command, bool) {
	for _, cmd := range commands {
		if cmd.name == name {
			return cmd, true
		}
	}
	return command{}, false
}

// =============================================================================
// CLI
// =============================================================================

// cli executes commands against the store. The manager is created on the
// first run command, since it seeds the inventory.
type cli struct {
	cfg   *loader.Config
	store *store.Store
	out   io.Writer
	in    io.Reader

	dialer snmp.Dialer
	mgr    *manager.Manager
}

func newCLI(cfg *loader.Config, st *store.Store, out io.Writer) *cli {
	return &cli{cfg: cfg, store: st, out: out, in: os.Stdin, dialer: snmp.NetDialer{}}
}

// exec runs one command line.
func (c *cli) exec(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	if args[0] == "help" {
		c.usage()
		return nil
	}

	cmd, ok := lookup(args[0])
	if !ok {
		return fmt.Errorf("%w: unknown command %q", errors.ErrInvalidArgument, args[0])
	}
	rest := args[1:]
	if len(rest) < cmd.minArgs || len(rest) > cmd.maxArgs {
		return fmt.Errorf("%w: usage: %s %s", errors.ErrInvalidArgument, cmd.name, cmd.args)
	}
	return cmd.fn(c, ctx, rest)
}

func (c *cli) usage() {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %s %s\t%s\n", cmd.name, cmd.args, cmd.help)
	}
	fmt.Fprintf(w, "  help\tshow this help\n")
	w.Flush()
}

func (c *cli) ensureManager(ctx context.Context) (*manager.Manager, error) {
	if c.mgr != nil {
		return c.mgr, nil
	}

	res, err := loader.ApplyInventory(ctx, c.store, c.cfg.Inventory)
	if err != nil {
		for _, e := range res.Errors {
			log.Warn("inventory seed", "error", e)
		}
	}
	groups, err := loader.ResolveGroups(ctx, c.store, c.cfg.Groups)
	if err != nil {
		return nil, err
	}

	c.mgr = manager.New(c.store,
		provider.New(c.store, c.dialer, loader.ToSNMPDefaults(c.cfg.SNMP)),
		loader.ToArchive(c.cfg.Archive),
		stats.NewRegistry(config.DefaultSketchAccuracy),
	)
	c.mgr.SetGroups(groups)
	return c.mgr, nil
}

func (c *cli) run(ctx context.Context, args []string) error {
	mgr, err := c.ensureManager(ctx)
	if err != nil {
		return err
	}
	rep, err := mgr.RunGroup(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Fprintf(c.out, "run %d of %s finished in %s: %s\n",
		rep.Run.ID, rep.Run.Group, rep.Run.Duration().Round(time.Millisecond), formatSummary(rep.Run.Summary))
	if rep.ArchivePath != "" {
		fmt.Fprintf(c.out, "archived to %s\n", rep.ArchivePath)
	}
	c.printResults(rep.Results)
	return nil
}

func (c *cli) runs(ctx context.Context, args []string) error {
	group := ""
	if len(args) > 0 {
		group = args[0]
	}
	runs, err := c.store.ListRuns(ctx, group, defaultRunsLimit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintln(c.out, "no runs")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tGROUP\tSTARTED\tDURATION\tSUCCESS\tINFORMATION\tWARNING\tERROR")
	for _, r := range runs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Group, r.StartedAt.Local().Format(time.DateTime), r.Duration().Round(time.Millisecond),
			r.Summary.Success, r.Summary.Information, r.Summary.Warning, r.Summary.Error)
	}
	return w.Flush()
}

func (c *cli) results(ctx context.Context, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	res, err := c.store.RunResults(ctx, id)
	if err != nil {
		return err
	}
	c.printResults(res)
	return nil
}

func (c *cli) subnets(ctx context.Context, _ []string) error {
	subnets, err := c.store.ListSubnets(ctx)
	if err != nil {
		return err
	}
	if len(subnets) == 0 {
		fmt.Fprintln(c.out, "no subnets")
		return nil
	}

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SUBNET\tCLASS\tNETWORK\tBROADCAST\tADDRESSES")
	for _, s := range subnets {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\n",
			s.Subnet.Name, s.Subnet.ClassName, s.NetworkIP, s.BroadcastIP, s.Addresses)
	}
	return w.Flush()
}

func (c *cli) groups(_ context.Context, _ []string) error {
	groups := append([]loader.GroupConfig(nil), c.cfg.Groups...)
	if len(groups) == 0 {
		fmt.Fprintln(c.out, "no groups configured")
		return nil
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Name < groups[j].Name })

	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "GROUP\tINTERVAL\tDATA SOURCES\tSTATE")
	for _, g := range groups {
		state := "scheduled"
		if g.Disabled {
			state = "disabled"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", g.Name, loader.GroupInterval(g), len(g.DataSources), state)
	}
	return w.Flush()
}

func (c *cli) export(ctx context.Context, args []string) error {
	id, err := parseRunID(args[0])
	if err != nil {
		return err
	}
	run, err := c.store.GetRun(ctx, id)
	if err != nil {
		return err
	}
	res, err := c.store.RunResults(ctx, id)
	if err != nil {
		return err
	}

	out := c.out
	if args[1] != "-" {
		f, err := os.Create(args[1])
		if err != nil {
			return fmt.Errorf("create %s: %w", args[1], err)
		}
		defer f.Close()
		out = f
	}

	if err := wire.NewWriter(out).WriteRunResults(run, res); err != nil {
		return err
	}
	if args[1] != "-" {
		fmt.Fprintf(c.out, "exported run %d with %d results to %s\n", run.ID, len(res), args[1])
	}
	return nil
}

func (c *cli) decode(_ context.Context, args []string) error {
	in := c.in
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
	}

	frames, err := wire.NewReader(in).ReadAll()
	for _, f := range frames {
		switch f.Kind {
		case wire.KindRun:
			fmt.Fprintf(c.out, "run %d of %s started %s finished %s\n",
				f.Run.ID, f.Run.Group, f.Run.StartedAt.Local().Format(time.DateTime), f.Run.FinishedAt.Local().Format(time.DateTime))
		case wire.KindResult:
			fmt.Fprintf(c.out, "  %4d  %s\n", f.Position, formatResultLine(f.Result.DataSourceID, f.Result.Severity.String(), f.Result.Title, f.Result.Message))
		case wire.KindError:
			fmt.Fprintf(c.out, "error %s: %s\n", errors.CodeName(f.Code), f.Message)
		}
	}
	return err
}

// =============================================================================
// Helpers
// =============================================================================

func (c *cli) printResults(res []result.Result) {
	for _, r := range res {
		fmt.Fprintln(c.out, formatResultLine(r.DataSourceID, r.Severity.String(), r.Title, r.Message))
	}
}

func formatResultLine(dataSource int64, severity, title, message string) string {
	return fmt.Sprintf("[%d] %-11s %s: %s", dataSource, severity, title, message)
}

func formatSummary(s result.Summary) string {
	return fmt.Sprintf("%d success, %d information, %d warning, %d error",
		s.Success, s.Information, s.Warning, s.Error)
}

func parseRunID(s string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: run id %q", errors.ErrInvalidArgument, s)
	}
	return id, nil
}
