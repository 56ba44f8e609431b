package web

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/hpungsan/lib/internal/errors"
	"github.com/hpungsan/lib/internal/ops"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

// Handlers contains HTTP route handlers for the API.
type Handlers struct {
	svc     *ops.Service
	version string
}

// HandleHealth handles GET /api/health.
func (h *Handlers) HandleHealth(w http.ResponseWriter, r *http.Request) {
	renderJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": h.version,
	})
}

// HandleSearchFiles handles GET /api/files: metadata search.
func (h *Handlers) HandleSearchFiles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	result, err := h.svc.SearchFiles(r.Context(), ops.SearchFilesInput{
		Query:          q.Get("q"),
		Extension:      q.Get("extension"),
		MediaType:      q.Get("media_type"),
		ScanRoot:       q.Get("scan_root"),
		Kind:           q.Get("kind"),
		Limit:          parseIntParam(r, "limit", 0),
		IncludeSnippet: parseBoolParam(r, "include_snippet"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleFileInfo handles GET /api/files/info?path=: single record lookup.
// A path that is not cataloged is a 200 with {"error":"not found"}.
func (h *Handlers) HandleFileInfo(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.GetFileInfo(r.Context(), ops.GetFileInfoInput{Path: r.URL.Query().Get("path")})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// scanRequest is the body of POST /api/scan.
type scanRequest struct {
	Path string `json:"path"`
}

// HandleScan handles POST /api/scan. It scans the given directory, or every
// configured root when no path is sent.
func (h *Handlers) HandleScan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	if req.Path == "" {
		result, err := h.svc.ScanRoots(r.Context())
		if err != nil {
			renderError(w, err)
			return
		}
		renderJSON(w, http.StatusOK, result)
		return
	}

	result, err := h.svc.ScanDirectory(r.Context(), ops.ScanDirectoryInput{Path: req.Path})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleRuns handles GET /api/runs: scan history.
func (h *Handlers) HandleRuns(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.QueryRuns(r.Context(), ops.QueryRunsInput{
		Limit: parseIntParam(r, "limit", 0),
		ID:    r.URL.Query().Get("run_id"),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleFullTextSearch handles GET /api/search?q=: ranked full-text search.
func (h *Handlers) HandleFullTextSearch(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.FullTextSearch(r.Context(), ops.FullTextSearchInput{
		Query: r.URL.Query().Get("q"),
		Limit: parseIntParam(r, "limit", 0),
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandleStats handles GET /api/stats.
func (h *Handlers) HandleStats(w http.ResponseWriter, r *http.Request) {
	result, err := h.svc.CatalogStats(r.Context())
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// HandlePurge handles POST /api/purge?older_than_days=N.
func (h *Handlers) HandlePurge(w http.ResponseWriter, r *http.Request) {
	var input ops.PurgeInput
	if s := r.URL.Query().Get("older_than_days"); s != "" {
		days, err := strconv.Atoi(s)
		if err != nil {
			renderError(w, errors.NewInvalidRequest("older_than_days must be an integer"))
			return
		}
		input.OlderThanDays = &days
	}

	result, err := h.svc.PurgeDeleted(r.Context(), input)
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// exportRequest is the body of POST /api/export.
type exportRequest struct {
	Path            string `json:"path"`
	Compress        bool   `json:"compress"`
	IncludeSnippets bool   `json:"include_snippets"`
}

// HandleExport handles POST /api/export.
func (h *Handlers) HandleExport(w http.ResponseWriter, r *http.Request) {
	var req exportRequest
	if err := decodeBody(w, r, &req); err != nil {
		renderError(w, err)
		return
	}

	result, err := h.svc.ExportCatalog(r.Context(), ops.ExportInput{
		Path:            req.Path,
		Compress:        req.Compress,
		IncludeSnippets: req.IncludeSnippets,
	})
	if err != nil {
		renderError(w, err)
		return
	}
	renderJSON(w, http.StatusOK, result)
}

// decodeBody decodes an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return errors.NewInvalidRequest("invalid request body: " + err.Error())
	}
	return nil
}

// parseIntParam parses an integer query parameter with a default value.
func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return defaultVal
	}
	return v
}

// parseBoolParam parses a boolean query parameter.
func parseBoolParam(r *http.Request, name string) bool {
	s := r.URL.Query().Get(name)
	return s == "true" || s == "1"
}
