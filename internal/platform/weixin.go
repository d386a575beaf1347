package platform

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mdfetch/internal/fetch"
	"mdfetch/internal/markdown"
	"mdfetch/internal/sanitize"
)

// weixin serves public articles only; there is no collection surface to
// crawl. Its image URLs carry no stable filename, so assets are numbered
// sequentially with the format taken from the wx_fmt query parameter.
type weixin struct {
	session *fetch.Session
	opts    Options
	rw      *markdown.Rewriter
}

func newWeixin(opts Options) *weixin {
	session := fetch.NewSession("")
	return &weixin{
		session: session,
		opts:    opts,
		rw: markdown.NewRewriter(session, markdown.Options{
			ImageSrcAttrs:    []string{"data-src", "src"},
			LinkTextAttr:     "data-text",
			MathClass:        "ztext-math",
			MathAttr:         "data-tex",
			SequentialImages: true,
			ImageExtParam:    "wx_fmt",
			HexoEscape:       opts.HexoEscape,
		}),
	}
}

func (w *weixin) fetch(rawURL string) (string, error) {
	return w.article(rawURL, w.opts.BaseDir)
}

func (w *weixin) article(rawURL, dir string) (string, error) {
	doc, err := w.session.Page(rawURL)
	if err != nil {
		return "", err
	}

	title := titleText(doc, "h1#activity-name")
	date := weixinDate(doc)
	author := strings.TrimSpace(doc.Find("div#meta_content a").First().Text())
	if author == "" {
		author = "Unknown"
	}
	key := sanitize.Key(title, author, date)

	body, err := w.rw.Rewrite(selectionRoot(doc.Find("div#js_content")), key, dir)
	if err != nil {
		return "", err
	}

	if err := writeDocument(dir, key, markdown.Document(title, author, rawURL, body)); err != nil {
		return "", err
	}
	return key, nil
}

// weixinDate scans the page's inline scripts for the publish timestamp; the
// date never appears in the rendered DOM.
func weixinDate(doc *goquery.Document) string {
	date := sanitize.DateUnknown
	doc.Find("script[type='text/javascript']").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if m := datePattern.FindString(s.Text()); m != "" {
			date = strings.ReplaceAll(m, "-", "")
			return false
		}
		return true
	})
	return date
}
