package db

import (
	"context"
	"database/sql"
	"strings"
	"unicode"

	"github.com/hpungsan/lib/internal/catalog"
	"github.com/hpungsan/lib/internal/errors"
)

// Snippet highlight markers. Callers escape the snippet text and then swap
// these for real markup, so they must survive HTML escaping unchanged.
const (
	HighlightOpen  = "[[[B]]]"
	HighlightClose = "[[[/B]]]"
)

// ftsColumns are the column filters accepted in a query, e.g. "path:notes".
var ftsColumns = []string{"path:", "extension:", "media_type:", "content_snippet:"}

// SanitizeQuery makes free text safe for an FTS5 MATCH.
// Quoted phrases, column filters and trailing-* prefixes pass through; any other
// term carrying FTS5 punctuation is quoted as a literal. AND and OR act as
// operators only between two operands. NOT acts as one only between two
// operands when its right side is a phrase, column filter or prefix, so prose
// like "do NOT panic" still matches the text it came from. Operator words in
// any other position are matched as plain words.
func SanitizeQuery(q string) string {
	q = strings.TrimSpace(q)
	if q == "" {
		return q
	}

	if len(q) > 1 && strings.HasPrefix(q, "\"") && strings.HasSuffix(q, "\"") {
		return q
	}

	terms := strings.Fields(q)
	sanitized := make([]string, 0, len(terms))
	prevOperand := false
	for i, term := range terms {
		if isOperator(term) {
			var next string
			if i+1 < len(terms) {
				next = terms[i+1]
			}
			keep := prevOperand && next != "" && !isOperator(next)
			if term == "NOT" {
				keep = keep && isExplicitTerm(next)
			}
			if keep {
				sanitized = append(sanitized, term)
				prevOperand = false
				continue
			}
			sanitized = append(sanitized, `"`+term+`"`)
			prevOperand = true
			continue
		}

		switch {
		case isExplicitTerm(term):
			sanitized = append(sanitized, term)
		case strings.IndexFunc(term, isSpecial) >= 0:
			sanitized = append(sanitized, `"`+strings.ReplaceAll(term, `"`, `""`)+`"`)
		default:
			sanitized = append(sanitized, term)
		}
		prevOperand = true
	}

	return strings.Join(sanitized, " ")
}

func isOperator(term string) bool {
	return term == "AND" || term == "OR" || term == "NOT"
}

// isExplicitTerm reports terms written in FTS5 syntax on purpose: quoted
// phrases, column filters and prefix terms.
func isExplicitTerm(term string) bool {
	quoted := len(term) > 1 && strings.HasPrefix(term, "\"") && strings.HasSuffix(term, "\"")
	return quoted || hasColumnFilter(term) || isPrefixTerm(term)
}

func hasColumnFilter(term string) bool {
	lower := strings.ToLower(term)
	for _, col := range ftsColumns {
		if strings.HasPrefix(lower, col) && len(term) > len(col) {
			return true
		}
	}
	return false
}

// isPrefixTerm matches a bare word with a single trailing '*', e.g. "conf*".
func isPrefixTerm(term string) bool {
	if len(term) < 2 || !strings.HasSuffix(term, "*") {
		return false
	}
	return strings.IndexFunc(term[:len(term)-1], isSpecial) < 0
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '_'
}

// SearchFullText runs a ranked MATCH over the full-text index.
// Results are joined back to live files and ordered by bm25 (most relevant first),
// then path. Malformed queries yield INVALID_REQUEST.
func SearchFullText(ctx context.Context, db *sql.DB, query string, limit int) ([]catalog.SnippetResult, error) {
	match := SanitizeQuery(query)
	if match == "" {
		return nil, errors.NewInvalidRequest("query is required")
	}

	rows, err := db.QueryContext(ctx, `
		SELECT f.path, f.size_bytes, f.modified_at, f.extension, f.media_type,
			snippet(files_fts, -1, ?, ?, '...', 24) AS snip,
			bm25(files_fts) AS rank
		FROM files_fts
		JOIN files f ON f.id = files_fts.rowid
		WHERE files_fts MATCH ? AND f.deleted_at IS NULL
		ORDER BY rank ASC, f.path ASC
		LIMIT ?`,
		HighlightOpen, HighlightClose, match, limit,
	)
	if err != nil {
		return nil, ftsError(err, query)
	}
	defer rows.Close()

	results := make([]catalog.SnippetResult, 0)
	for rows.Next() {
		var r catalog.SnippetResult
		var extension, mediaType, snip sql.NullString
		if err := rows.Scan(&r.Path, &r.SizeBytes, &r.ModifiedAt, &extension, &mediaType, &snip, &r.Rank); err != nil {
			return nil, ftsError(err, query)
		}
		r.Extension = fromNullString(extension)
		r.MediaType = fromNullString(mediaType)
		r.Snippet = snip.String
		results = append(results, r)
	}
	if err := rows.Err(); err != nil {
		return nil, ftsError(err, query)
	}
	return results, nil
}

func ftsError(err error, query string) error {
	if isFTSSyntaxError(err) {
		e := errors.NewInvalidRequest("invalid full-text query: " + err.Error())
		e.Details = map[string]any{"query": query}
		return e
	}
	return classifyError(err)
}
