package main

import (
	"fmt"
	"os"
	"strings"
	_ "time/tzdata" // daily date keys need IANA zones on hosts without zoneinfo

	"github.com/hpungsan/arcana/internal/config"
	"github.com/hpungsan/arcana/internal/db"
	"github.com/hpungsan/arcana/internal/logging"
	"github.com/hpungsan/arcana/internal/mcp"
	"github.com/hpungsan/arcana/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"daily": true, "cards": true, "card": true,
	"spreads": true, "spread": true, "draw": true,
	"reading": true, "journal": true,
	"export": true, "import": true, "serve": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
	// Global flags come before the subcommand
	if arg == "--owner" && len(args) > 3 {
		arg = args[3]
	} else if strings.HasPrefix(arg, "--owner=") && len(args) > 2 {
		arg = args[2]
	}
	if cliCommands[arg] {
		return true
	}
	return isHelpOrVersion(args)
}

// isHelpOrVersion returns true if the user is requesting help or version info.
func isHelpOrVersion(args []string) bool {
	if len(args) < 2 {
		return false
	}
	arg := args[1]
	return arg == "--help" || arg == "-h" || arg == "--version" || arg == "-v" || arg == "help"
}

// isTerminal returns true if stdin is a terminal (not piped).
func isTerminal() bool {
	stat, _ := os.Stdin.Stat()
	return (stat.Mode() & os.ModeCharDevice) != 0
}

// printBanner displays a friendly banner when run interactively without args.
func printBanner() {
	fmt.Println(`
     _    ____   ____    _    _   _    _
    / \  |  _ \ / ___|  / \  | \ | |  / \
   / _ \ | |_) | |     / _ \ |  \| | / _ \
  / ___ \|  _ <| |___ / ___ \| |\  |/ ___ \
 /_/   \_\_| \_\\____/_/   \_\_| \_/_/   \_\

  Card of the day, readings and a journal

  Usage: arcana <command> [options]
         arcana --help

  MCP server mode requires piped input.`)
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil, nil)
		if err := app.Run(os.Args); err != nil {
			fatal("%v", err)
		}
		return
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fatal("could not determine data directory: %v", err)
	}

	database, err := db.Init(baseDir)
	if err != nil {
		fatal("failed to initialize database: %v", err)
	}
	defer database.Close()

	cwd, _ := os.Getwd()
	cfg, err := config.LoadWithRepo(baseDir, cwd)
	if err != nil {
		fatal("failed to load config: %v", err)
	}
	db.ConfigurePool(database, cfg)

	// stdout belongs to the MCP transport and to CLI JSON output
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)

	deps, err := ops.NewDeps(database, cfg, baseDir, logger)
	if err != nil {
		fatal("%v", err)
	}

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(deps, logger)
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'arcana --help' for usage.\n")
		database.Close()
		os.Exit(1)
	}

	// MCP server mode (default)
	logger.Info("arcana MCP server starting", "version", Version, "owner", cfg.Owner)
	if err := mcp.Run(deps, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		database.Close()
		os.Exit(1)
	}
}
