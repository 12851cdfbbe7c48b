package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	_ "modernc.org/sqlite"

	"github.com/audera-data/quietwatch/internal/db"
	"github.com/audera-data/quietwatch/internal/noise"
)

const defaultMigrationsDir = "internal/db/migrations"

// runCommand dispatches maintenance subcommands that run to completion and
// exit instead of starting the server.
func runCommand(cmd string, args []string) {
	switch cmd {
	case "migrate":
		runMigrate(args)
	case "recompute":
		runRecompute(args)
	case "purge":
		runPurge(args)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: quietwatch [command] [flags]")
	fmt.Println()
	fmt.Println("With no command, starts the monitor and HTTP server.")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  migrate    Manage database schema migrations")
	fmt.Println("  recompute  Rebuild daily summaries from stored samples")
	fmt.Println("  purge      Delete one day's raw samples")
	fmt.Println("  help       Show this help")
	fmt.Println()
	fmt.Println("Run 'quietwatch <command> -h' for command flags.")
}

func runMigrate(args []string) {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dbPath := fs.String("db", "quietwatch.db", "Path to the SQLite database")
	migrationsDir := fs.String("migrations", defaultMigrationsDir, "Path to the migrations directory")
	fs.Parse(args)

	db.RunMigrateCommand(fs.Args(), *dbPath, *migrationsDir)
}

func runRecompute(args []string) {
	fs := flag.NewFlagSet("recompute", flag.ExitOnError)
	dbPath := fs.String("db", "quietwatch.db", "Path to the SQLite database")
	configFile := fs.String("config", "", "Path to a JSON monitoring config")
	date := fs.String("date", "", "Day to recompute as YYYY-MM-DD")
	all := fs.Bool("all", false, "Recompute every day that has samples")
	fs.Parse(args)

	if *date == "" && !*all {
		fmt.Fprintln(os.Stderr, "recompute requires -date or -all")
		os.Exit(1)
	}
	if *date != "" && *all {
		fmt.Fprintln(os.Stderr, "recompute takes -date or -all, not both")
		os.Exit(1)
	}

	cfg, err := loadMonitorConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	analytics, err := noise.NewAnalytics(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	ctx := context.Background()
	if *all {
		n, err := database.RecomputeAll(ctx, analytics)
		if err != nil {
			fmt.Fprintf(os.Stderr, "recompute failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Recomputed %d day(s)\n", n)
		return
	}

	day, err := time.ParseInLocation("2006-01-02", *date, database.Location())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -date %q: %v\n", *date, err)
		os.Exit(1)
	}
	summary, err := database.RecomputeDay(ctx, analytics, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "recompute failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recomputed %s: score %.1f from %d sample(s)\n",
		summary.Day.Format("2006-01-02"), summary.QuietScore, summary.SampleCount)
}

func runPurge(args []string) {
	fs := flag.NewFlagSet("purge", flag.ExitOnError)
	dbPath := fs.String("db", "quietwatch.db", "Path to the SQLite database")
	date := fs.String("date", "", "Day to purge as YYYY-MM-DD")
	fs.Parse(args)

	if *date == "" {
		fmt.Fprintln(os.Stderr, "purge requires -date")
		os.Exit(1)
	}

	database, err := db.NewDB(*dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	day, err := time.ParseInLocation("2006-01-02", *date, database.Location())
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -date %q: %v\n", *date, err)
		os.Exit(1)
	}

	deleted, err := database.DeleteSamplesForDay(context.Background(), day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Deleted %d sample(s) for %s\n", deleted, *date)
}
