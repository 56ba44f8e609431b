package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/hpungsan/lib/internal/config"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/logging"
	"github.com/hpungsan/lib/internal/mcp"
	"github.com/hpungsan/lib/internal/ops"
)

// Version is set via -ldflags at build time.
var Version = "dev"

// cliCommands contains known CLI subcommands.
var cliCommands = map[string]bool{
	"scan": true, "search": true, "info": true, "fts": true,
	"runs": true, "stats": true, "purge": true, "export": true,
	"serve": true, "web": true,
	"help": true,
}

// isCLIMode determines if we should run CLI vs MCP server.
func isCLIMode(args []string) bool {
	if len(args) < 2 {
		return false // No args → MCP server
	}
	arg := args[1]
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
   _    ___ ___
  | |  |_ _| _ )
  | |__ | || _ \
  |____|___|___/

  Local file catalog and search

  Usage: lib <command> [options]
         lib --help

  MCP server mode requires piped input.`)
}

func main() {
	// No args + interactive terminal → show banner and exit
	if len(os.Args) < 2 && isTerminal() {
		printBanner()
		return
	}

	// Handle --help/--version before DB init (no DB needed)
	if isHelpOrVersion(os.Args) {
		app := newCLIApp(nil, zerolog.Nop())
		if err := app.Run(os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	baseDir, err := config.BaseDir()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(baseDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to load config: %v\n", err)
		os.Exit(1)
	}

	// stdout belongs to the MCP stdio transport and to CLI output.
	logger := logging.New(cfg.LogLevel, os.Stderr)

	for _, name := range mcp.ValidateDisabledTools(cfg.DisabledTools) {
		logger.Warn().Str("tool", name).Msg("unknown tool in disabled_tools")
	}

	database, err := db.Open(baseDir, db.OptionsFromConfig(cfg))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: failed to initialize database: %v\n", err)
		os.Exit(1)
	}
	db.ConfigurePool(database, cfg)
	defer database.Close()

	svc := ops.New(database, cfg, baseDir, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// CLI mode: known subcommand
	if isCLIMode(os.Args) {
		app := newCLIApp(svc, logger)
		if err := app.RunContext(ctx, os.Args); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			stop()
			database.Close()
			os.Exit(1)
		}
		return
	}

	// Unknown argument + terminal → show error (don't start MCP server)
	if len(os.Args) >= 2 && isTerminal() {
		fmt.Fprintf(os.Stderr, "error: unknown command %q\n", os.Args[1])
		fmt.Fprintf(os.Stderr, "Run 'lib --help' for usage.\n")
		os.Exit(1)
	}

	// MCP server mode (default). The client is waiting on the handshake, so
	// the startup scan runs alongside the server instead of ahead of it.
	if cfg.AutoScanOnStartup {
		go autoScan(ctx, svc, logger)
	}
	if err := mcp.Run(svc, Version); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		database.Close()
		os.Exit(1)
	}
}

// autoScan scans the configured roots. Failures are logged and never fatal.
func autoScan(ctx context.Context, svc *ops.Service, logger zerolog.Logger) {
	if len(svc.Config().ScanRoots) == 0 {
		logger.Warn().Msg("auto_scan_on_startup is set but no scan roots are configured")
		return
	}
	out, err := svc.ScanRoots(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("startup scan failed")
		return
	}
	logger.Info().Str("run_id", out.RunID).Int("scanned", out.Stats.Scanned).Msg("startup scan finished")
}
