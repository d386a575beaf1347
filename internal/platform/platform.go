// Package platform hosts the per-site adapters and the URL dispatcher.
//
// Each adapter knows one platform's URL shapes, page selectors, and listing
// API. They all share the same pipeline: fetch the page through a gated
// session, extract title/author/date with a degrade-don't-fail policy,
// rewrite the content tree to Markdown, and write the document under its
// derived key. Collections route through the crawl orchestrator instead.
package platform

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"mdfetch/internal/sanitize"
)

// Kind classifies a target URL.
type Kind int

const (
	KindArticle Kind = iota
	KindAnswer
	KindCollection
	KindShortVideo
)

func (k Kind) String() string {
	switch k {
	case KindAnswer:
		return "answer"
	case KindCollection:
		return "collection"
	case KindShortVideo:
		return "short-video"
	default:
		return "article"
	}
}

var (
	// ErrUnsupportedPlatform marks a URL no adapter claims.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrAuthRequired marks a page served behind an authentication gate.
	ErrAuthRequired = errors.New("authentication required")
	// ErrNotFound marks a page the platform reports as nonexistent.
	ErrNotFound = errors.New("page does not exist")
)

// Options parameterizes one conversion run.
type Options struct {
	// Cookie authenticates the session; only zhihu gates content behind one
	Cookie string
	// BaseDir is where documents and asset folders are written
	BaseDir string
	// HexoEscape wraps math formulas for hexo's renderer
	HexoEscape bool
	// Quiet suppresses progress and summary output
	Quiet bool
}

// Fetch is the single entry point: it classifies rawURL, dispatches to the
// matching adapter, and returns the produced document key or collection
// folder name, relative to opts.BaseDir. A collection that completes with
// failed items returns the folder name together with a
// *crawl.PartialCrawlError so the succeeded subset stays packageable.
func Fetch(rawURL string, opts Options) (string, error) {
	if opts.BaseDir == "" {
		opts.BaseDir = "."
	}

	switch {
	case strings.Contains(rawURL, "zhihu.com"):
		return newZhihu(opts).fetch(rawURL)
	case strings.Contains(rawURL, "csdn.net"):
		return newCSDN(opts).fetch(rawURL)
	case strings.Contains(rawURL, "juejin"):
		return newJuejin(opts).fetch(rawURL)
	case strings.Contains(rawURL, "mp.weixin.qq.com"):
		return newWeixin(opts).fetch(rawURL)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedPlatform, rawURL)
	}
}

// Classify resolves the content kind of a URL without fetching anything.
// Pure substring matching, first match wins, fixed precedence.
func Classify(rawURL string) (Kind, error) {
	switch {
	case strings.Contains(rawURL, "zhihu.com"):
		return classifyZhihu(rawURL), nil
	case strings.Contains(rawURL, "csdn.net"):
		if strings.Contains(rawURL, "category") {
			return KindCollection, nil
		}
		return KindArticle, nil
	case strings.Contains(rawURL, "juejin"):
		if strings.Contains(rawURL, "column") {
			return KindCollection, nil
		}
		return KindArticle, nil
	case strings.Contains(rawURL, "mp.weixin.qq.com"):
		return KindArticle, nil
	default:
		return KindArticle, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, rawURL)
	}
}

var datePattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)

// articleDate scans the selected node's text for the first YYYY-MM-DD date
// and normalizes it to YYYYMMDD. Absence yields the sentinel, never an
// error; partial metadata must not block saving the body.
func articleDate(doc *goquery.Document, selector string) string {
	if m := datePattern.FindString(doc.Find(selector).Text()); m != "" {
		return strings.ReplaceAll(m, "-", "")
	}
	return sanitize.DateUnknown
}

// titleText returns the trimmed text of the title node, or the literal
// fallback when the node is absent.
func titleText(doc *goquery.Document, selector string) string {
	sel := doc.Find(selector)
	if sel.Length() == 0 {
		return "Untitled"
	}
	return strings.TrimSpace(sel.First().Text())
}

// selectionRoot unwraps the first matched node for the rewriter; nil when
// the content element is missing entirely.
func selectionRoot(sel *goquery.Selection) *html.Node {
	if sel.Length() == 0 {
		return nil
	}
	return sel.Nodes[0]
}

func writeDocument(dir, key, content string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	path := filepath.Join(dir, key+".md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write document: %w", err)
	}
	return nil
}

// lastSegment returns the final path segment of a URL, the usual carrier of
// column and article identifiers.
func lastSegment(rawURL string) string {
	trimmed := strings.TrimRight(rawURL, "/")
	if i := strings.LastIndex(trimmed, "/"); i != -1 {
		return trimmed[i+1:]
	}
	return trimmed
}
