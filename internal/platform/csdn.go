package platform

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"mdfetch/internal/crawl"
	"mdfetch/internal/fetch"
	"mdfetch/internal/markdown"
	"mdfetch/internal/sanitize"
)

type csdn struct {
	session *fetch.Session
	opts    Options
	rw      *markdown.Rewriter
}

func newCSDN(opts Options) *csdn {
	session := fetch.NewSession("")
	return &csdn{
		session: session,
		opts:    opts,
		rw: markdown.NewRewriter(session, markdown.Options{
			LinkTextAttr: "data-text",
			MathClass:    "ztext-math",
			MathAttr:     "data-tex",
			HexoEscape:   opts.HexoEscape,
		}),
	}
}

func (c *csdn) fetch(rawURL string) (string, error) {
	if strings.Contains(rawURL, "category") {
		return c.collection(rawURL)
	}
	return c.article(rawURL, c.opts.BaseDir)
}

func (c *csdn) article(rawURL, dir string) (string, error) {
	doc, err := c.session.Page(rawURL)
	if err != nil {
		return "", err
	}

	title := titleText(doc, "h1.title-article")
	date := articleDate(doc, "div.bar-content")
	author := strings.TrimSpace(doc.Find("div.bar-content a").First().Text())
	if author == "" {
		author = "Unknown"
	}
	key := sanitize.Key(title, author, date)

	body, err := c.rw.Rewrite(selectionRoot(doc.Find("div#content_views")), key, dir)
	if err != nil {
		return "", err
	}

	if err := writeDocument(dir, key, markdown.Document(title, author, rawURL, body)); err != nil {
		return "", err
	}
	return key, nil
}

func (c *csdn) collection(rawURL string) (string, error) {
	doc, err := c.session.Page(rawURL)
	if err != nil {
		return "", err
	}

	text := doc.Text()
	title := text
	if i := strings.Index(title, "-"); i != -1 {
		title = title[:i]
	}
	if i := strings.Index(title, "_"); i != -1 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)

	folder := sanitize.Filename(title)
	dir := filepath.Join(c.opts.BaseDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create collection dir: %w", err)
	}

	_, err = crawl.Run(crawl.Job{
		Folder:  dir,
		Prefix:  "csdn",
		Title:   title,
		Total:   csdnTotal(text),
		Listing: &csdnListing{session: c.session, base: rawURL},
		Process: func(item crawl.Item) error {
			_, err := c.article(item.URL, dir)
			return err
		},
		Quiet: c.opts.Quiet,
	})
	return folder, err
}

// csdnTotal parses the article count between "文章数：" and "文章阅读量" in
// the rendered category page text. Unparseable counts degrade to unknown.
func csdnTotal(text string) int {
	_, tail, ok := strings.Cut(text, "文章数：")
	if !ok {
		return 0
	}
	head, _, ok := strings.Cut(tail, "文章阅读量")
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

// csdnListing walks category_<id>.html, category_<id>_2.html, ... until a
// page lists no articles. A 404 past the first page also means the end; the
// platform has no explicit end-of-data signal.
type csdnListing struct {
	session *fetch.Session
	base    string
}

func (l *csdnListing) Page(page int) ([]crawl.Item, bool, error) {
	u := l.base
	if page > 0 {
		u = strings.TrimSuffix(l.base, ".html") + fmt.Sprintf("_%d.html", page+1)
	}

	doc, err := l.session.Page(u)
	if err != nil {
		var terr *fetch.TransportError
		if page > 0 && errors.As(err, &terr) && terr.StatusCode == http.StatusNotFound {
			return nil, false, nil
		}
		return nil, false, err
	}

	var items []crawl.Item
	doc.Find("ul.column_article_list li a").Each(func(_ int, a *goquery.Selection) {
		href, ok := a.Attr("href")
		if !ok || href == "" {
			return
		}
		items = append(items, crawl.Item{
			ID:   lastSegment(href),
			Kind: "article",
			URL:  href,
		})
	})
	return items, len(items) > 0, nil
}
