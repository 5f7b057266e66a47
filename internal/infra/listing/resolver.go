// Package listing extracts report URLs from archive index pages.
package listing

import (
	"bytes"
	"iter"
	"mime"
	"net/url"
	"slices"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"sonde-catalog/internal/domain/entity"
)

// Resolver turns an archive index page into the report URLs it links to.
// It understands HTML directory listings such as those produced by Apache,
// nginx autoindex or hand-written pages with plain anchors.
type Resolver struct {
	suffixes []string
}

// NewResolver returns a resolver. When suffixes are given, only links whose
// path ends in one of them (case-insensitive) are kept, e.g. ".dat".
func NewResolver(suffixes ...string) *Resolver {
	lower := make([]string, 0, len(suffixes))
	for _, s := range suffixes {
		if s = strings.TrimSpace(s); s != "" {
			lower = append(lower, strings.ToLower(s))
		}
	}
	return &Resolver{suffixes: lower}
}

// Resolve returns the absolute report URLs referenced by content in document
// order. Duplicates are dropped after their first occurrence. Links to
// subdirectories, the parent directory, sort controls and non-http targets
// are skipped. A page without links yields an empty sequence; content that
// is not markup at all yields *entity.ListingFormatError.
func (r *Resolver) Resolve(content entity.RawContent) (iter.Seq[string], error) {
	fail := func(reason string) error {
		return &entity.ListingFormatError{URL: content.URL, Reason: reason}
	}

	if !markupContentType(content.ContentType) {
		return nil, fail("unsupported content type " + content.ContentType)
	}
	if !looksLikeMarkup(content.Data) {
		return nil, fail("content is not an HTML listing")
	}

	base, err := url.Parse(content.URL)
	if err != nil || !base.IsAbs() {
		return nil, fail("listing URL is not absolute")
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(content.Data))
	if err != nil {
		return nil, fail("parse HTML: " + err.Error())
	}

	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if b, err := base.Parse(strings.TrimSpace(href)); err == nil {
			base = b
		}
	}

	seen := make(map[string]struct{})
	var urls []string
	doc.Find("a[href]").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		target, ok := r.accept(base, strings.TrimSpace(href))
		if !ok {
			return
		}
		if _, dup := seen[target]; dup {
			return
		}
		seen[target] = struct{}{}
		urls = append(urls, target)
	})

	return slices.Values(urls), nil
}

func (r *Resolver) accept(base *url.URL, href string) (string, bool) {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "?") {
		return "", false
	}

	u, err := base.Parse(href)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if u.Path == "" || strings.HasSuffix(u.Path, "/") {
		return "", false
	}
	u.Fragment = ""

	if len(r.suffixes) > 0 {
		p := strings.ToLower(u.Path)
		if !slices.ContainsFunc(r.suffixes, func(s string) bool { return strings.HasSuffix(p, s) }) {
			return "", false
		}
	}

	if u.String() == base.String() {
		return "", false
	}
	return u.String(), true
}

func markupContentType(contentType string) bool {
	if contentType == "" {
		return true
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	switch mediaType {
	case "text/html", "application/xhtml+xml", "text/xml", "application/xml", "text/plain":
		return true
	}
	return false
}

func looksLikeMarkup(data []byte) bool {
	trimmed := bytes.TrimSpace(bytes.TrimPrefix(data, []byte("\xef\xbb\xbf")))
	return len(trimmed) > 0 && trimmed[0] == '<'
}
