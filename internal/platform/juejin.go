package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mdfetch/internal/crawl"
	"mdfetch/internal/fetch"
	"mdfetch/internal/markdown"
	"mdfetch/internal/sanitize"
)

const juejinPageSize = 10

type juejin struct {
	session *fetch.Session
	opts    Options
	rw      *markdown.Rewriter
	apiBase string
}

func newJuejin(opts Options) *juejin {
	session := fetch.NewSession("")
	return &juejin{
		session: session,
		opts:    opts,
		rw: markdown.NewRewriter(session, markdown.Options{
			LinkTextAttr: "data-text",
			MathClass:    "ztext-math",
			MathAttr:     "data-tex",
			HexoEscape:   opts.HexoEscape,
		}),
		apiBase: "https://api.juejin.cn",
	}
}

func (j *juejin) fetch(rawURL string) (string, error) {
	if strings.Contains(rawURL, "column") {
		return j.collection(rawURL)
	}
	return j.article(rawURL, j.opts.BaseDir)
}

func (j *juejin) article(rawURL, dir string) (string, error) {
	doc, err := j.session.Page(rawURL)
	if err != nil {
		return "", err
	}

	title := titleText(doc, "h1.article-title")
	date := articleDate(doc, "div.meta-box")
	author := strings.TrimSpace(doc.Find("div.meta-box span.username").First().Text())
	if author == "" {
		author = "Unknown"
	}
	key := sanitize.Key(title, author, date)

	body, err := j.rw.Rewrite(selectionRoot(doc.Find("div.article-viewer")), key, dir)
	if err != nil {
		return "", err
	}

	if err := writeDocument(dir, key, markdown.Document(title, author, rawURL, body)); err != nil {
		return "", err
	}
	return key, nil
}

func (j *juejin) collection(rawURL string) (string, error) {
	doc, err := j.session.Page(rawURL)
	if err != nil {
		return "", err
	}

	title := titleText(doc, "h1.column-title")
	folder := sanitize.Filename(title)
	dir := filepath.Join(j.opts.BaseDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create collection dir: %w", err)
	}

	_, err = crawl.Run(crawl.Job{
		Folder: dir,
		Prefix: "juejin",
		Title:  title,
		Listing: &juejinListing{
			session:  j.session,
			apiBase:  j.apiBase,
			columnID: lastSegment(rawURL),
		},
		Process: func(item crawl.Item) error {
			_, err := j.article(item.URL, dir)
			return err
		},
		Quiet: j.opts.Quiet,
	})
	return folder, err
}

// juejinListing pages through the column items API. The column page itself
// carries no parseable total, so progress stays unbounded.
type juejinListing struct {
	session  *fetch.Session
	apiBase  string
	columnID string
}

func (l *juejinListing) Page(page int) ([]crawl.Item, bool, error) {
	var payload struct {
		Data []struct {
			ArticleID string `json:"article_id"`
			Title     string `json:"title"`
		} `json:"data"`
		HasMore bool `json:"has_more"`
	}

	u := fmt.Sprintf("%s/content_api/v1/column/items?column_id=%s&limit=%d&offset=%d",
		l.apiBase, l.columnID, juejinPageSize, page*juejinPageSize)
	if err := l.session.JSON(u, &payload); err != nil {
		return nil, false, err
	}

	items := make([]crawl.Item, 0, len(payload.Data))
	for _, d := range payload.Data {
		items = append(items, crawl.Item{
			ID:   d.ArticleID,
			Kind: "article",
			URL:  "https://juejin.cn/post/" + d.ArticleID,
		})
	}
	return items, payload.HasMore, nil
}
