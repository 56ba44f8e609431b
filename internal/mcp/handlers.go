package mcp

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hpungsan/lib/internal/errors"
	"github.com/hpungsan/lib/internal/ops"
)

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	svc *ops.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(svc *ops.Service) *Handlers {
	return &Handlers{svc: svc}
}

// Request types for each tool

// SearchFilesRequest represents the arguments for search_files.
type SearchFilesRequest struct {
	Query          string `json:"query,omitempty"`
	Extension      string `json:"extension,omitempty"`
	MediaType      string `json:"media_type,omitempty"`
	ScanRoot       string `json:"scan_root,omitempty"`
	Kind           string `json:"kind,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	IncludeSnippet bool   `json:"include_snippet,omitempty"`
}

// GetFileInfoRequest represents the arguments for get_file_info.
type GetFileInfoRequest struct {
	Path string `json:"path"`
}

// ScanDirectoryRequest represents the arguments for scan_directory.
type ScanDirectoryRequest struct {
	Path string `json:"path"`
}

// QueryRunsRequest represents the arguments for query_runs.
type QueryRunsRequest struct {
	Limit int    `json:"limit,omitempty"`
	RunID string `json:"run_id,omitempty"`
}

// FullTextSearchRequest represents the arguments for full_text_search.
type FullTextSearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

// PurgeDeletedRequest represents the arguments for purge_deleted.
type PurgeDeletedRequest struct {
	OlderThanDays *int `json:"older_than_days,omitempty"`
}

// ExportCatalogRequest represents the arguments for export_catalog.
type ExportCatalogRequest struct {
	Path            string `json:"path,omitempty"`
	Compress        bool   `json:"compress,omitempty"`
	IncludeSnippets bool   `json:"include_snippets,omitempty"`
}

// Handler implementations

// HandleSearchFiles handles the search_files tool call.
func (h *Handlers) HandleSearchFiles(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[SearchFilesRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.SearchFiles(ctx, ops.SearchFilesInput{
		Query:          input.Query,
		Extension:      input.Extension,
		MediaType:      input.MediaType,
		ScanRoot:       input.ScanRoot,
		Kind:           input.Kind,
		Limit:          input.Limit,
		IncludeSnippet: input.IncludeSnippet,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleGetFileInfo handles the get_file_info tool call.
func (h *Handlers) HandleGetFileInfo(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[GetFileInfoRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.GetFileInfo(ctx, ops.GetFileInfoInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleScanDirectory handles the scan_directory tool call.
func (h *Handlers) HandleScanDirectory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ScanDirectoryRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ScanDirectory(ctx, ops.ScanDirectoryInput{Path: input.Path})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleQueryRuns handles the query_runs tool call.
func (h *Handlers) HandleQueryRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[QueryRunsRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.QueryRuns(ctx, ops.QueryRunsInput{Limit: input.Limit, ID: input.RunID})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleFullTextSearch handles the full_text_search tool call.
func (h *Handlers) HandleFullTextSearch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[FullTextSearchRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.FullTextSearch(ctx, ops.FullTextSearchInput{Query: input.Query, Limit: input.Limit})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleCatalogStats handles the catalog_stats tool call.
func (h *Handlers) HandleCatalogStats(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	result, err := h.svc.CatalogStats(ctx)
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandlePurgeDeleted handles the purge_deleted tool call.
func (h *Handlers) HandlePurgeDeleted(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[PurgeDeletedRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.PurgeDeleted(ctx, ops.PurgeInput{OlderThanDays: input.OlderThanDays})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// HandleExportCatalog handles the export_catalog tool call.
func (h *Handlers) HandleExportCatalog(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	input, err := decode[ExportCatalogRequest](req)
	if err != nil {
		return errorResult(errors.NewInvalidRequest(err.Error())), nil
	}

	result, err := h.svc.ExportCatalog(ctx, ops.ExportInput{
		Path:            input.Path,
		Compress:        input.Compress,
		IncludeSnippets: input.IncludeSnippets,
	})
	if err != nil {
		return errorResult(err), nil
	}

	return successResult(result)
}

// Result helpers

// errorResult creates an MCP error result from any error.
// Uses IsError: true so MCP clients recognize failures properly.
// INTERNAL details are never exposed.
func errorResult(err error) *mcp.CallToolResult {
	content, _ := json.Marshal(errors.Payload(err))
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
