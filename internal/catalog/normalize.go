package catalog

import (
	"mime"
	"path/filepath"
	"strings"
)

// builtinMediaTypes covers extensions the platform mime table often lacks.
var builtinMediaTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".log":      "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".rs":       "text/x-rust",
	".c":        "text/x-c",
	".h":        "text/x-c",
	".java":     "text/x-java",
	".rb":       "text/x-ruby",
	".sh":       "application/x-sh",
	".toml":     "application/toml",
	".yaml":     "application/yaml",
	".yml":      "application/yaml",
	".json":     "application/json",
	".xml":      "application/xml",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".js":       "text/javascript",
	".ts":       "text/x-typescript",
	".sql":      "application/sql",
	".ini":      "text/plain",
	".pdf":      "application/pdf",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
	".gif":      "image/gif",
	".zip":      "application/zip",
}

// textLikeApplicationTypes are non-text/* media types whose bytes are readable text.
var textLikeApplicationTypes = map[string]bool{
	"application/json":       true,
	"application/xml":        true,
	"application/yaml":       true,
	"application/toml":       true,
	"application/sql":        true,
	"application/javascript": true,
	"application/x-sh":       true,
}

// NormalizePath returns the cleaned absolute form of p.
func NormalizePath(p string) (string, error) {
	p = strings.TrimSpace(p)
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	return filepath.Clean(abs), nil
}

// NormalizeExtension lowercases ext and ensures a leading dot.
// Returns "" for an empty input.
func NormalizeExtension(ext string) string {
	ext = strings.ToLower(strings.TrimSpace(ext))
	if ext == "" {
		return ""
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return ext
}

// Extension returns the normalized extension of path, or nil if it has none.
func Extension(path string) *string {
	ext := NormalizeExtension(filepath.Ext(path))
	if ext == "" || ext == "." {
		return nil
	}
	return &ext
}

// MediaType derives a media type from an extension, or nil if unknown.
// Parameters such as charset are dropped.
func MediaType(ext *string) *string {
	if ext == nil {
		return nil
	}
	if mt, ok := builtinMediaTypes[*ext]; ok {
		return &mt
	}
	mt := mime.TypeByExtension(*ext)
	if mt == "" {
		return nil
	}
	if base, _, err := mime.ParseMediaType(mt); err == nil {
		mt = base
	}
	return &mt
}

// IsTextLike reports whether a media type names readable text.
func IsTextLike(mediaType *string) bool {
	if mediaType == nil {
		return false
	}
	mt := strings.ToLower(*mediaType)
	if strings.HasPrefix(mt, "text/") {
		return true
	}
	return textLikeApplicationTypes[mt]
}

// IsUnder reports whether path equals root or lies beneath it.
func IsUnder(path, root string) bool {
	if path == root {
		return true
	}
	prefix := root
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(path, prefix)
}
