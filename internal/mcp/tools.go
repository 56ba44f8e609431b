package mcp

import "github.com/mark3labs/mcp-go/mcp"

var searchFilesToolDef = mcp.NewTool("search_files",
	mcp.WithDescription("Search the file catalog by metadata. Returns live records ordered by path."),
	mcp.WithString("query", mcp.Description("Substring to match against the file path")),
	mcp.WithString("extension", mcp.Description("File extension, with or without the leading dot (e.g. .md)")),
	mcp.WithString("media_type", mcp.Description("Media type, e.g. text/markdown")),
	mcp.WithString("scan_root", mcp.Description("Only records last written by a scan of this root")),
	mcp.WithString("kind", mcp.Description("Entry kind"), mcp.Enum("file", "dir", "symlink")),
	mcp.WithNumber("limit", mcp.Description("Maximum results (default 100, max 1000)"), mcp.Min(1), mcp.Max(1000)),
	mcp.WithBoolean("include_snippet", mcp.Description("Include extracted content snippets")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var getFileInfoToolDef = mcp.NewTool("get_file_info",
	mcp.WithDescription("Get the catalog record for one path. A path that is not cataloged returns {\"error\":\"not found\"}."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the file")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var scanDirectoryToolDef = mcp.NewTool("scan_directory",
	mcp.WithDescription("Scan a directory and bring the catalog in line with it. Records a scan run."),
	mcp.WithString("path", mcp.Required(), mcp.Description("Directory to scan")),
	mcp.WithReadOnlyHintAnnotation(false),
	mcp.WithDestructiveHintAnnotation(false),
	mcp.WithIdempotentHintAnnotation(true),
)

var queryRunsToolDef = mcp.NewTool("query_runs",
	mcp.WithDescription("List scan history, newest first."),
	mcp.WithNumber("limit", mcp.Description("Maximum runs (default 10, max 100)"), mcp.Min(1), mcp.Max(100)),
	mcp.WithString("run_id", mcp.Description("Return only this run")),
	mcp.WithReadOnlyHintAnnotation(true),
)

var fullTextSearchToolDef = mcp.NewTool("full_text_search",
	mcp.WithDescription("Ranked full-text search over paths and extracted file content. Supports phrases, AND/OR/NOT, prefix* and column filters such as path:notes."),
	mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
	mcp.WithNumber("limit", mcp.Description("Maximum results (default 50, max 200)"), mcp.Min(1), mcp.Max(200)),
	mcp.WithReadOnlyHintAnnotation(true),
)

var catalogStatsToolDef = mcp.NewTool("catalog_stats",
	mcp.WithDescription("Summarize the catalog: live entries per kind, total bytes, tombstones and the latest run."),
	mcp.WithReadOnlyHintAnnotation(true),
)

var purgeDeletedToolDef = mcp.NewTool("purge_deleted",
	mcp.WithDescription("Permanently remove soft-deleted records."),
	mcp.WithNumber("older_than_days", mcp.Description("Only purge records deleted more than this many days ago"), mcp.Min(0)),
	mcp.WithDestructiveHintAnnotation(true),
)

var exportCatalogToolDef = mcp.NewTool("export_catalog",
	mcp.WithDescription("Export live records as JSONL into the exports directory."),
	mcp.WithString("path", mcp.Description("Destination file directly in the exports directory (default: catalog-<timestamp>.jsonl)")),
	mcp.WithBoolean("compress", mcp.Description("zstd-compress the export (.jsonl.zst)")),
	mcp.WithBoolean("include_snippets", mcp.Description("Include extracted content snippets")),
	mcp.WithDestructiveHintAnnotation(false),
)
