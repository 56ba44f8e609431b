package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/hpungsan/lib/internal/errors"
	"github.com/hpungsan/lib/internal/mcp"
	"github.com/hpungsan/lib/internal/ops"
	"github.com/hpungsan/lib/internal/web"
)

// stdout is where command results go. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// newCLIApp creates the CLI application with all commands.
func newCLIApp(svc *ops.Service, logger zerolog.Logger) *cli.App {
	app := &cli.App{
		Name:    "lib",
		Usage:   "Local file catalog and search",
		Version: Version,
		Commands: []*cli.Command{
			scanCmd(svc),
			searchCmd(svc),
			infoCmd(svc),
			ftsCmd(svc),
			runsCmd(svc),
			statsCmd(svc),
			purgeCmd(svc),
			exportCmd(svc),
			serveCmd(svc, logger),
			webCmd(svc, logger),
		},
	}
	// Disable default exit error handler to allow proper error return in tests
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

// scanCmd creates the scan command.
func scanCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "scan",
		Usage:     "Scan directories into the catalog (all configured roots when none are given)",
		ArgsUsage: "[path...]",
		Action: func(c *cli.Context) error {
			if c.NArg() == 0 {
				output, err := svc.ScanRoots(c.Context)
				if err != nil {
					return outputError(err)
				}
				return outputJSON(output)
			}

			outputs := make([]*ops.ScanDirectoryOutput, 0, c.NArg())
			for _, path := range c.Args().Slice() {
				output, err := svc.ScanDirectory(c.Context, ops.ScanDirectoryInput{Path: path})
				if err != nil {
					return outputError(err)
				}
				outputs = append(outputs, output)
			}
			if len(outputs) == 1 {
				return outputJSON(outputs[0])
			}
			return outputJSON(outputs)
		},
	}
}

// searchCmd creates the search command.
func searchCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "search",
		Usage:     "Search file metadata",
		ArgsUsage: "[path substring]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "ext", Aliases: []string{"e"}, Usage: "Filter by extension (e.g., .md)"},
			&cli.StringFlag{Name: "media-type", Aliases: []string{"m"}, Usage: "Filter by media type"},
			&cli.StringFlag{Name: "root", Aliases: []string{"r"}, Usage: "Filter by scan root"},
			&cli.StringFlag{Name: "kind", Aliases: []string{"k"}, Usage: "Filter by kind: file|dir|symlink"},
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results"},
			&cli.BoolFlag{Name: "snippets", Aliases: []string{"s"}, Usage: "Include content snippets"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.SearchFiles(c.Context, ops.SearchFilesInput{
				Query:          strings.Join(c.Args().Slice(), " "),
				Extension:      c.String("ext"),
				MediaType:      c.String("media-type"),
				ScanRoot:       c.String("root"),
				Kind:           c.String("kind"),
				Limit:          c.Int("limit"),
				IncludeSnippet: c.Bool("snippets"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// infoCmd creates the info command.
func infoCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "info",
		Usage:     "Show the catalog record for a path",
		ArgsUsage: "<path>",
		Action: func(c *cli.Context) error {
			if c.NArg() != 1 {
				return outputError(errors.NewInvalidRequest("exactly one path is required"))
			}
			output, err := svc.GetFileInfo(c.Context, ops.GetFileInfoInput{Path: c.Args().First()})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// ftsCmd creates the fts command.
func ftsCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:      "fts",
		Usage:     "Full-text search over extracted content",
		ArgsUsage: "<query>",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 20, Usage: "Max results"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.FullTextSearch(c.Context, ops.FullTextSearchInput{
				Query: strings.Join(c.Args().Slice(), " "),
				Limit: c.Int("limit"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// runsCmd creates the runs command.
func runsCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List scan runs, newest first",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"l"}, Value: 10, Usage: "Max runs"},
			&cli.StringFlag{Name: "id", Usage: "Show a single run"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.QueryRuns(c.Context, ops.QueryRunsInput{
				Limit: c.Int("limit"),
				ID:    c.String("id"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// statsCmd creates the stats command.
func statsCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show catalog totals",
		Action: func(c *cli.Context) error {
			output, err := svc.CatalogStats(c.Context)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// purgeCmd creates the purge command.
func purgeCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "purge",
		Usage: "Permanently delete soft-deleted records",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "older-than", Usage: "Only purge if deleted more than N days ago (e.g., 7d)"},
		},
		Action: func(c *cli.Context) error {
			input := ops.PurgeInput{}

			if olderThan := c.String("older-than"); olderThan != "" {
				days, err := parseDuration(olderThan)
				if err != nil {
					return outputError(errors.NewInvalidRequest(err.Error()))
				}
				input.OlderThanDays = &days
			}

			output, err := svc.PurgeDeleted(c.Context, input)
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// exportCmd creates the export command.
func exportCmd(svc *ops.Service) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export live records to a JSONL file",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "path", Aliases: []string{"p"}, Usage: "Output path (default: exports/catalog-<timestamp>.jsonl)"},
			&cli.BoolFlag{Name: "compress", Aliases: []string{"z"}, Usage: "Compress with zstd (.jsonl.zst)"},
			&cli.BoolFlag{Name: "snippets", Aliases: []string{"s"}, Usage: "Include content snippets"},
		},
		Action: func(c *cli.Context) error {
			output, err := svc.ExportCatalog(c.Context, ops.ExportInput{
				Path:            c.String("path"),
				Compress:        c.Bool("compress"),
				IncludeSnippets: c.Bool("snippets"),
			})
			if err != nil {
				return outputError(err)
			}
			return outputJSON(output)
		},
	}
}

// serveCmd creates the serve command.
func serveCmd(svc *ops.Service, logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the MCP server (stdio, or streamable HTTP with --http)",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "http", Usage: "Serve over streamable HTTP on listen_host:listen_port"},
		},
		Action: func(c *cli.Context) error {
			if !c.Bool("http") {
				if svc.Config().AutoScanOnStartup {
					go autoScan(c.Context, svc, logger)
				}
				return mcp.Run(svc, Version)
			}

			if svc.Config().AutoScanOnStartup {
				autoScan(c.Context, svc, logger)
			}
			return mcp.RunHTTP(c.Context, svc, Version, svc.Config().ListenAddr(), logger)
		},
	}
}

// webCmd creates the web command.
func webCmd(svc *ops.Service, logger zerolog.Logger) *cli.Command {
	return &cli.Command{
		Name:  "web",
		Usage: "Serve the JSON HTTP API on listen_host:listen_port",
		Action: func(c *cli.Context) error {
			if svc.Config().AutoScanOnStartup {
				autoScan(c.Context, svc, logger)
			}
			srv := web.NewServer(svc, Version, logger)
			return web.Run(c.Context, srv, logger)
		},
	}
}

// Helper functions

// outputJSON marshals result to stdout as JSON.
func outputJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

// outputError formats error for CLI.
func outputError(err error) error {
	if libErr, ok := errors.As(err); ok {
		msg := libErr.Message
		if libErr.Err != nil {
			msg += ": " + libErr.Err.Error()
		}
		return cli.Exit(fmt.Sprintf("[%s] %s", libErr.Code, msg), 1)
	}
	return cli.Exit(err.Error(), 1)
}

// parseDuration parses "7d" format to days.
func parseDuration(s string) (int, error) {
	if numStr, ok := strings.CutSuffix(s, "d"); ok {
		days, err := strconv.Atoi(numStr)
		if err != nil {
			return 0, fmt.Errorf("invalid duration: %s", s)
		}
		if days < 0 {
			return 0, fmt.Errorf("duration must be non-negative")
		}
		return days, nil
	}
	return 0, fmt.Errorf("duration must end with 'd' (days), e.g., 7d")
}
