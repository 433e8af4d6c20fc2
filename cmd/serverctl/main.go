// serverctl manages the game-server directory.
//
// Usage:
//
//	serverctl [--config path] list [--region r] [--tag t]
//	serverctl [--config path] add --url wss://host/play [--id id] [--name n] [--region r] [--tags a,b] [--priority n]
//	serverctl [--config path] remove <id>
//	serverctl [--config path] probe [--region r]
//	serverctl [--config path] best [--region r]
//	serverctl [--config path] lan [--timeout 3s]
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
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rickgao/gamelink/internal/config"
	"github.com/rickgao/gamelink/internal/directory"
)

var errUsage = errors.New("usage: serverctl [--config path] list|add|remove|probe|best|lan [flags]")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "serverctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("serverctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errUsage
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	logger := cfg.Logging.NewLogger(stderr)

	store, closeStore, err := directory.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	c := &ctl{cfg: cfg, store: store, logger: logger, out: stdout}

	sub, subArgs := fs.Arg(0), fs.Args()[1:]
	if (sub == "add" || sub == "remove" || sub == "rm") && isMemory(cfg) {
		logger.Warn("memory backend: changes last only for this invocation")
	}
	switch sub {
	case "list", "ls":
		return c.list(ctx, subArgs)
	case "add":
		return c.add(ctx, subArgs)
	case "remove", "rm":
		return c.remove(ctx, subArgs)
	case "probe":
		return c.probe(ctx, subArgs)
	case "best":
		return c.best(ctx, subArgs)
	case "lan":
		return c.lan(ctx, subArgs)
	default:
		return fmt.Errorf("unknown command %q: %w", sub, errUsage)
	}
}

type ctl struct {
	cfg    *config.Config
	store  directory.Store
	logger *slog.Logger
	out    io.Writer
}

func filterFlags(name string) (*flag.FlagSet, *directory.Filter) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	f := &directory.Filter{}
	fs.StringVar(&f.Region, "region", "", "only this region")
	fs.StringVar(&f.Tag, "tag", "", "only servers with this tag")
	return fs, f
}

func (c *ctl) list(ctx context.Context, args []string) error {
	fs, f := filterFlags("list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	eps, err := c.store.List(ctx, *f)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tREGION\tPRIORITY\tTAGS\tURL")
	for _, e := range eps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n",
			e.ID, dash(e.Name), dash(e.Region), e.Priority, dash(strings.Join(e.Tags, ",")), e.URL)
	}
	return tw.Flush()
}

func (c *ctl) add(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("add", flag.ContinueOnError)
	var e directory.Endpoint
	var tags string
	fs.StringVar(&e.ID, "id", "", "server id (generated when empty)")
	fs.StringVar(&e.Name, "name", "", "display name")
	fs.StringVar(&e.URL, "url", "", "websocket URL")
	fs.StringVar(&e.Region, "region", "", "region")
	fs.StringVar(&tags, "tags", "", "comma separated tags")
	fs.IntVar(&e.Priority, "priority", 0, "tie-break priority (higher wins)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, t := range strings.Split(tags, ",") {
		if t = strings.TrimSpace(t); t != "" {
			e.Tags = append(e.Tags, t)
		}
	}

	stored, err := c.store.Put(ctx, e)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "added %s (%s)\n", stored.ID, stored.URL)
	return nil
}

func (c *ctl) remove(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errors.New("usage: serverctl remove <id>")
	}
	if err := c.store.Delete(ctx, args[0]); err != nil {
		return fmt.Errorf("remove %s: %w", args[0], err)
	}
	fmt.Fprintf(c.out, "removed %s\n", args[0])
	return nil
}

func (c *ctl) service(f directory.Filter) *directory.Service {
	return directory.NewServiceFromConfig(c.store, c.cfg.Directory, c.logger, directory.WithFilter(f))
}

func (c *ctl) probe(ctx context.Context, args []string) error {
	fs, f := filterFlags("probe")
	if err := fs.Parse(args); err != nil {
		return err
	}

	results, err := c.service(*f).Rank(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tID\tNAME\tLATENCY\tSTATUS")
	for i, r := range results {
		status, latency := "ok", r.Latency.Round(100*time.Microsecond).String()
		if !r.Reachable() {
			status, latency = r.Err.Error(), "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, r.Endpoint.ID, dash(r.Endpoint.Name), latency, status)
	}
	return tw.Flush()
}

func (c *ctl) best(ctx context.Context, args []string) error {
	fs, f := filterFlags("best")
	if err := fs.Parse(args); err != nil {
		return err
	}

	r, err := c.service(*f).Best(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "%s\t%s\t%v\n", r.Endpoint.ID, r.Endpoint.URL, r.Latency.Round(100*time.Microsecond))
	return nil
}

func (c *ctl) lan(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("lan", flag.ContinueOnError)
	timeout := fs.Duration("timeout", c.cfg.Directory.MDNS.Timeout, "how long to listen")
	if err := fs.Parse(args); err != nil {
		return err
	}

	browser := directory.NewLANBrowser(directory.LANConfig{
		Service: c.cfg.Directory.MDNS.Service,
		Domain:  c.cfg.Directory.MDNS.Domain,
	}, c.store, c.logger)

	n, err := browser.Scan(ctx, *timeout)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "found %d lan server(s)\n", n)
	if n == 0 {
		return nil
	}
	return c.list(ctx, []string{"--tag", "lan"})
}

func isMemory(cfg *config.Config) bool {
	return cfg.Directory.Backend == "" || cfg.Directory.Backend == config.BackendMemory
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
