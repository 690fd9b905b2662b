package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"chantrack/collector"
	"chantrack/config"
	"chantrack/storage"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	switch command {
	case "run":
		cmdRun(args)
	case "status":
		cmdStatus(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `chantrack - YouTube channel metrics collector

Usage:
  chantrack run [flags]      Collect metrics for the configured row range
  chantrack status [flags]   Show API key quota usage
  chantrack help             Show this help message

Examples:
  chantrack run                           # Collect all roster rows
  chantrack run --rows 2-50               # Collect rows 2 through 50
  chantrack run --rows 10- --verbose      # From row 10 onward, debug logging
  chantrack status --db channels.db       # Quota state of every API key

For help on specific command: chantrack <command> -h
`)
}

func cmdRun(args []string) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dbPath := fs.String("db", "", "Path to the SQLite database (overrides config)")
	rows := fs.String("rows", "", "Row range to process, e.g. 2-50, 7, or 10-")
	batch := fs.Int("batch", 0, "Records buffered before a write flush (overrides config)")
	span := fs.String("span", "", "Operation span policy: activity or age")
	media := fs.String("media", "", "Media slot contents: links or thumbnails")
	verbose := fs.Bool("verbose", false, "Enable debug logging")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chantrack run [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Flags override config and environment.
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *rows != "" {
		start, end, err := config.ParseRowRange(*rows)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		cfg.RowStart, cfg.RowEnd = start, end
	}
	if *batch > 0 {
		cfg.BatchSize = *batch
	}
	if *span != "" {
		cfg.SpanPolicy = *span
	}
	if *media != "" {
		cfg.MediaStyle = *media
	}
	if *verbose {
		cfg.Verbose = true
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Verbose)

	store, err := storage.Open(cfg.DBPath, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := collector.New(cfg, store, nil, logger)
	summary, err := c.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Run %s finished in %s\n", summary.RunID, summary.Elapsed.Round(time.Second))
	fmt.Printf("  processed:  %d\n", summary.Processed)
	fmt.Printf("  succeeded:  %d\n", summary.Succeeded)
	fmt.Printf("  failed:     %d\n", summary.Failed)
	fmt.Printf("  skipped:    %d\n", summary.Skipped)
	fmt.Printf("  quota used: %d units\n", summary.QuotaUsed)
}

func cmdStatus(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	dbPath := fs.String("db", "", "Path to the SQLite database (overrides config)")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: chantrack status [flags]\n\nFlags:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}

	store, err := storage.Open(cfg.DBPath, newLogger(false))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error opening database: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	usages, err := store.QuotaStatus(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading quota state: %v\n", err)
		os.Exit(1)
	}
	if len(usages) == 0 {
		fmt.Println("No credentials configured.")
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "KEY\tUSED\tREMAINING\tUSAGE\tLAST USED")
	for _, u := range usages {
		lastUsed := "-"
		if !u.LastUsed.IsZero() {
			lastUsed = u.LastUsed.Local().Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\t%s\n",
			u.Name, u.Used, u.Remaining, u.UsagePercent, lastUsed)
	}
	w.Flush()
}

// newLogger builds the process logger. Debug level only when asked for.
func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
