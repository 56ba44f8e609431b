package ops

import (
	"context"
	"fmt"
	"html"
	"strings"
	"unicode/utf8"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/db"
	"github.com/hpungsan/lib/internal/errors"
	"github.com/hpungsan/lib/internal/query"
)

// Search limits
const (
	MaxQueryLength  = 1000
	MaxSnippetChars = 300
)

// SearchFilesInput contains parameters for the SearchFiles operation.
type SearchFilesInput struct {
	Query          string // substring of the path
	Extension      string // ".md" or "md"
	MediaType      string
	ScanRoot       string
	Kind           string
	Limit          int // default: 100, max: 1000
	IncludeSnippet bool
}

// SearchFilesOutput contains the result of the SearchFiles operation.
type SearchFilesOutput struct {
	Results []*catalog.FileRecord `json:"results"`
	Count   int                   `json:"count"`
	Limit   int                   `json:"limit"`
}

// SearchFiles finds live catalog records by metadata, ordered by path.
func (s *Service) SearchFiles(ctx context.Context, input SearchFilesInput) (*SearchFilesOutput, error) {
	q := cleanString(input.Query)
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	limit := query.ClampLimit(input.Limit, query.DefaultSearchLimit, query.MaxSearchLimit)
	results, err := s.query.Search(ctx, query.Filters{
		Query:     q,
		Extension: cleanString(input.Extension),
		MediaType: strings.ToLower(cleanString(input.MediaType)),
		ScanRoot:  cleanString(input.ScanRoot),
		Kind:      catalog.Kind(strings.ToLower(cleanString(input.Kind))),
	}, limit)
	if err != nil {
		return nil, err
	}

	if !input.IncludeSnippet {
		for _, r := range results {
			r.ContentSnippet = nil
		}
	}

	return &SearchFilesOutput{
		Results: results,
		Count:   len(results),
		Limit:   limit,
	}, nil
}

// FullTextSearchInput contains parameters for the FullTextSearch operation.
type FullTextSearchInput struct {
	Query string // required
	Limit int    // default: 50, max: 200
}

// FullTextResult is one ranked hit.
type FullTextResult struct {
	Path       string  `json:"path"`
	SizeBytes  int64   `json:"size_bytes"`
	ModifiedAt int64   `json:"modified_at"`
	Extension  *string `json:"extension,omitempty"`
	MediaType  *string `json:"media_type,omitempty"`
	// Snippet is HTML-safe: file content is escaped; only <b>...</b>
	// highlight tags are present.
	Snippet string  `json:"snippet"`
	Rank    float64 `json:"rank"`
}

// FullTextSearchOutput contains the result of the FullTextSearch operation.
type FullTextSearchOutput struct {
	Results []FullTextResult `json:"results"`
	Count   int              `json:"count"`
	Query   string           `json:"query"`
}

// FullTextSearch runs a ranked search over paths and extracted content.
func (s *Service) FullTextSearch(ctx context.Context, input FullTextSearchInput) (*FullTextSearchOutput, error) {
	q := cleanString(input.Query)
	if !s.cfg.FullTextSearchEnabled {
		return nil, errors.NewFeatureDisabled("full-text search", map[string]any{"query": q})
	}
	if q == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}
	if utf8.RuneCountInString(q) > MaxQueryLength {
		return nil, errors.NewInvalidRequest(fmt.Sprintf("query exceeds maximum length of %d characters", MaxQueryLength))
	}

	hits, err := s.query.FullTextSearch(ctx, q, input.Limit)
	if err != nil {
		return nil, err
	}

	results := make([]FullTextResult, len(hits))
	for i, h := range hits {
		snippet := escapeSnippetHTML(h.Snippet)
		snippet = truncateSnippet(snippet, MaxSnippetChars)

		results[i] = FullTextResult{
			Path:       h.Path,
			SizeBytes:  h.SizeBytes,
			ModifiedAt: h.ModifiedAt,
			Extension:  h.Extension,
			MediaType:  h.MediaType,
			Snippet:    snippet,
			Rank:       h.Rank,
		}
	}

	return &FullTextSearchOutput{
		Results: results,
		Count:   len(results),
		Query:   q,
	}, nil
}

// truncateSnippet truncates a snippet to approximately maxChars while:
// 1. Preserving valid UTF-8 (never splits multi-byte runes)
// 2. Preserving markup integrity (closes any open <b> tags)
// 3. Preferring word boundaries when possible
func truncateSnippet(s string, maxChars int) string {
	if maxChars <= 0 {
		return "..."
	}

	if len(s) <= maxChars {
		return s
	}

	truncateAt := maxChars
	for truncateAt > 0 && !utf8.RuneStart(s[truncateAt]) {
		truncateAt--
	}
	if truncateAt == 0 {
		return "..."
	}

	truncated := s[:truncateAt]

	// The only tags present are <b> and </b>; file text may carry entities (&lt;).
	// Drop a partial tag or entity at the cut.
	if lastLT := strings.LastIndex(truncated, "<"); lastLT != -1 && !strings.Contains(truncated[lastLT:], ">") {
		truncated = truncated[:lastLT]
	}
	if lastAmp := strings.LastIndex(truncated, "&"); lastAmp != -1 && !strings.Contains(truncated[lastAmp:], ";") {
		truncated = truncated[:lastAmp]
	}

	if lastSpace := strings.LastIndex(truncated, " "); lastSpace > truncateAt/2 {
		truncated = truncated[:lastSpace]
	}

	unclosed := strings.Count(truncated, "<b>") - strings.Count(truncated, "</b>")
	for range unclosed {
		truncated += "</b>"
	}

	return truncated + "..."
}

// escapeSnippetHTML escapes file content in a snippet and turns the store's
// highlight markers into <b> tags. Nothing else survives as markup.
func escapeSnippetHTML(s string) string {
	const (
		openPlaceholder  = "\x00LIB_B_OPEN\x00"
		closePlaceholder = "\x00LIB_B_CLOSE\x00"
	)

	s = strings.ReplaceAll(s, db.HighlightOpen, openPlaceholder)
	s = strings.ReplaceAll(s, db.HighlightClose, closePlaceholder)

	s = html.EscapeString(s)

	s = strings.ReplaceAll(s, openPlaceholder, "<b>")
	s = strings.ReplaceAll(s, closePlaceholder, "</b>")
	return s
}
