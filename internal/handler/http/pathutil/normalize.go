package pathutil

import (
	"regexp"
	"strings"
)

// PathPattern represents a regex pattern and its corresponding normalized template.
type PathPattern struct {
	Pattern  *regexp.Regexp
	Template string
}

// pathPatterns are evaluated in order, most specific first.
var pathPatterns = []*PathPattern{
	{Pattern: regexp.MustCompile(`^/collections/[^/]+/items/[^/]+$`), Template: "/collections/:collection/items/:id"},
	{Pattern: regexp.MustCompile(`^/collections/[^/]+/items$`), Template: "/collections/:collection/items"},
	{Pattern: regexp.MustCompile(`^/collections/[^/]+$`), Template: "/collections/:collection"},
	{Pattern: regexp.MustCompile(`^/parse/jobs/[^/]+$`), Template: "/parse/jobs/:id"},
}

// NormalizePath collapses identifiers in a request path into templates so
// metric labels stay bounded. Query strings and a trailing slash are
// ignored; paths matching no pattern are returned unchanged.
//
//	NormalizePath("/collections/dropsondes/items/sonde_001") // "/collections/:collection/items/:id"
//	NormalizePath("/parse/jobs/0b9c...")                       // "/parse/jobs/:id"
//	NormalizePath("/parse/file")                               // "/parse/file"
func NormalizePath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx != -1 {
		path = path[:idx]
	}
	if len(path) > 1 && path[len(path)-1] == '/' {
		path = path[:len(path)-1]
	}

	for _, p := range pathPatterns {
		if p.Pattern.MatchString(path) {
			return p.Template
		}
	}
	return path
}

// GetExpectedCardinality returns the expected number of distinct path labels.
func GetExpectedCardinality() int {
	const staticCount = 8 // /, /health, /ready, /live, /metrics, /parse/file, /parse/archive, /parse/jobs
	return len(pathPatterns) + staticCount
}
