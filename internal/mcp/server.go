// Package mcp exposes the catalog operations as MCP tools.
package mcp

import (
	"context"
	stderrors "errors"
	"net/http"
	"sort"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/rs/zerolog"

	"github.com/hpungsan/lib/internal/ops"
)

// alwaysRegistered tools ignore disabled_tools. full_text_search answers
// FEATURE_DISABLED itself when the feature is off.
var alwaysRegistered = map[string]bool{
	"full_text_search": true,
}

// toolEntry pairs a tool definition with a handler factory.
type toolEntry struct {
	def     mcp.Tool
	handler func(*Handlers) server.ToolHandlerFunc
}

// toolRegistry maps tool names to their definitions and handler factories.
var toolRegistry = map[string]toolEntry{
	"search_files": {
		def:     searchFilesToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleSearchFiles },
	},
	"get_file_info": {
		def:     getFileInfoToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleGetFileInfo },
	},
	"scan_directory": {
		def:     scanDirectoryToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleScanDirectory },
	},
	"query_runs": {
		def:     queryRunsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleQueryRuns },
	},
	"full_text_search": {
		def:     fullTextSearchToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleFullTextSearch },
	},
	"catalog_stats": {
		def:     catalogStatsToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleCatalogStats },
	},
	"purge_deleted": {
		def:     purgeDeletedToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandlePurgeDeleted },
	},
	"export_catalog": {
		def:     exportCatalogToolDef,
		handler: func(h *Handlers) server.ToolHandlerFunc { return h.HandleExportCatalog },
	},
}

// AllToolNames returns every tool name, sorted.
func AllToolNames() []string {
	names := make([]string, 0, len(toolRegistry))
	for name := range toolRegistry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ValidateDisabledTools returns a list of unknown tool names from the given list.
func ValidateDisabledTools(names []string) []string {
	unknown := make([]string, 0)
	for _, name := range names {
		if _, ok := toolRegistry[name]; !ok {
			unknown = append(unknown, name)
		}
	}
	return unknown
}

// NewServer creates an MCP server with the catalog tools registered.
// Tools listed in the service's disabled_tools are left out.
func NewServer(svc *ops.Service, version string) *server.MCPServer {
	s := server.NewMCPServer(
		"lib",
		version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	h := NewHandlers(svc)

	disabled := make(map[string]bool)
	for _, name := range svc.Config().DisabledTools {
		if !alwaysRegistered[name] {
			disabled[name] = true
		}
	}

	for name, entry := range toolRegistry {
		if disabled[name] {
			continue
		}
		s.AddTool(entry.def, entry.handler(h))
	}

	return s
}

// Run serves MCP over stdio until stdin closes.
func Run(svc *ops.Service, version string) error {
	return server.ServeStdio(NewServer(svc, version))
}

// RunHTTP serves MCP over streamable HTTP on addr until ctx is cancelled.
func RunHTTP(ctx context.Context, svc *ops.Service, version, addr string, logger zerolog.Logger) error {
	httpServer := server.NewStreamableHTTPServer(NewServer(svc, version))

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", addr).Msg("mcp http server listening")
		errCh <- httpServer.Start(addr)
	}()

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		logger.Info().Msg("mcp http server shutting down")
		return httpServer.Shutdown(shutdownCtx)
	}
}
