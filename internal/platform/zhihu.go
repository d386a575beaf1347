package platform

import (
	"encoding/json"
	"fmt"
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

// Soft-fail signatures zhihu serves with a 200 status. The auth banner is
// the "open the app and scan" interstitial; the other is the famous
// wasteland-of-no-knowledge 404 page.
const (
	zhihuAuthMarker    = "有问题，就会有答案打开知乎App在「我的页」右上角打开扫一扫其他扫码方式"
	zhihuMissingMarker = "你似乎来到了没有知识存在的荒原"
)

const zhihuPageSize = 10

func classifyZhihu(rawURL string) Kind {
	switch {
	case strings.Contains(rawURL, "column"):
		return KindCollection
	case strings.Contains(rawURL, "answer"):
		return KindAnswer
	case strings.Contains(rawURL, "zvideo"):
		return KindShortVideo
	default:
		return KindArticle
	}
}

type zhihu struct {
	session *fetch.Session
	opts    Options
	rw      *markdown.Rewriter
	apiBase string
}

func newZhihu(opts Options) *zhihu {
	session := fetch.NewSession(opts.Cookie)
	return &zhihu{
		session: session,
		opts:    opts,
		rw: markdown.NewRewriter(session, markdown.Options{
			ImageSrcAttrs: []string{"data-original", "src"},
			LinkTextAttr:  "data-text",
			MathClass:     "ztext-math",
			MathAttr:      "data-tex",
			HexoEscape:    opts.HexoEscape,
		}),
		apiBase: "https://www.zhihu.com",
	}
}

func (z *zhihu) gates() []fetch.Gate {
	return []fetch.Gate{
		{Marker: zhihuAuthMarker, Err: ErrAuthRequired},
		{Marker: zhihuMissingMarker, Err: ErrNotFound},
	}
}

func (z *zhihu) fetch(rawURL string) (string, error) {
	switch classifyZhihu(rawURL) {
	case KindCollection:
		return z.collection(rawURL)
	case KindAnswer:
		return z.answer(rawURL, z.opts.BaseDir)
	case KindShortVideo:
		return z.zvideo(rawURL, z.opts.BaseDir)
	default:
		return z.article(rawURL, z.opts.BaseDir)
	}
}

func (z *zhihu) article(rawURL, dir string) (string, error) {
	doc, err := z.session.Page(rawURL, z.gates()...)
	if err != nil {
		return "", err
	}
	return z.save(doc, rawURL, dir, "h1.Post-Title", "div.Post-RichTextContainer")
}

func (z *zhihu) answer(rawURL, dir string) (string, error) {
	doc, err := z.session.Page(rawURL, z.gates()...)
	if err != nil {
		return "", err
	}
	return z.save(doc, rawURL, dir, "h1.QuestionHeader-title", "div.RichContent-inner")
}

func (z *zhihu) save(doc *goquery.Document, rawURL, dir, titleSel, contentSel string) (string, error) {
	title := titleText(doc, titleSel)
	author := doc.Find("div.AuthorInfo meta[itemprop=name]").AttrOr("content", "Unknown")
	date := articleDate(doc, "div.ContentItem-time")
	key := sanitize.Key(title, author, date)

	body, err := z.rw.Rewrite(selectionRoot(doc.Find(contentSel)), key, dir)
	if err != nil {
		return "", err
	}

	if err := writeDocument(dir, key, markdown.Document(title, author, rawURL, body)); err != nil {
		return "", err
	}
	return key, nil
}

// zvideo saves a short video as (<date>)<author>_<title>/<author>_<title>.mp4.
// Unlike an image inside an article, a failed video download is the whole
// item, so it propagates as a hard failure.
func (z *zhihu) zvideo(rawURL, dir string) (string, error) {
	doc, err := z.session.Page(rawURL, z.gates()...)
	if err != nil {
		return "", err
	}

	zop := doc.Find("div.ZVideo-video").AttrOr("data-zop", "")
	if zop == "" {
		return "", fmt.Errorf("zvideo metadata missing: %s", rawURL)
	}
	var meta struct {
		AuthorName string `json:"authorName"`
		Title      string `json:"title"`
	}
	if err := json.Unmarshal([]byte(zop), &meta); err != nil {
		return "", fmt.Errorf("decode zvideo metadata: %w", err)
	}

	stem := sanitize.Filename(meta.AuthorName + "_" + meta.Title)
	key := stem
	if date := articleDate(doc, "div.ZVideo-meta"); date != sanitize.DateUnknown {
		key = "(" + date + ")" + stem
	}

	playURL, err := zhihuPlayURL(doc)
	if err != nil {
		return "", err
	}

	dest := filepath.Join(dir, key, stem+".mp4")
	if err := z.session.Download(playURL, dest); err != nil {
		return "", fmt.Errorf("download video: %w", err)
	}
	return key, nil
}

// zhihuPlayURL digs the playable stream URL out of the page's embedded
// initial-state JSON. Any playlist quality works; the last one wins.
func zhihuPlayURL(doc *goquery.Document) (string, error) {
	raw := doc.Find("script#js-initialData").Text()
	if raw == "" {
		return "", fmt.Errorf("no initial-state script on zvideo page")
	}

	var state struct {
		InitialState struct {
			Entities struct {
				Zvideos map[string]struct {
					Video struct {
						Playlist map[string]struct {
							PlayURL string `json:"playUrl"`
						} `json:"playlist"`
					} `json:"video"`
				} `json:"zvideos"`
			} `json:"entities"`
		} `json:"initialState"`
	}
	if err := json.Unmarshal([]byte(raw), &state); err != nil {
		return "", fmt.Errorf("decode zvideo initial state: %w", err)
	}

	playURL := ""
	for _, v := range state.InitialState.Entities.Zvideos {
		for _, quality := range v.Video.Playlist {
			if quality.PlayURL != "" {
				playURL = quality.PlayURL
			}
		}
	}
	if playURL == "" {
		return "", fmt.Errorf("no playable stream in zvideo data")
	}
	return playURL, nil
}

func (z *zhihu) collection(rawURL string) (string, error) {
	doc, err := z.session.Page(rawURL, z.gates()...)
	if err != nil {
		return "", err
	}

	text := doc.Text()
	title := text
	if i := strings.Index(title, "-"); i != -1 {
		title = title[:i]
	}
	title = strings.TrimSpace(title)

	folder := sanitize.Filename(title)
	dir := filepath.Join(z.opts.BaseDir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create collection dir: %w", err)
	}

	_, err = crawl.Run(crawl.Job{
		Folder: dir,
		Prefix: "zhihu",
		Title:  title,
		Total:  zhihuTotal(text),
		Listing: &zhihuListing{
			session:  z.session,
			apiBase:  z.apiBase,
			columnID: lastSegment(rawURL),
		},
		Process: func(item crawl.Item) error {
			switch item.Kind {
			case "answer":
				_, err := z.answer(item.URL, dir)
				return err
			case "zvideo":
				_, err := z.zvideo(item.URL, dir)
				return err
			default:
				_, err := z.article(item.URL, dir)
				return err
			}
		},
		Quiet: z.opts.Quiet,
	})
	return folder, err
}

// zhihuTotal parses the "·N 篇内容" fragment of the column page text. An
// unparseable count degrades to unknown, never an error.
func zhihuTotal(text string) int {
	head, _, ok := strings.Cut(text, "篇内容")
	if !ok {
		return 0
	}
	if i := strings.LastIndex(head, "·"); i != -1 {
		head = head[i+len("·"):]
	}
	n, err := strconv.Atoi(strings.TrimSpace(head))
	if err != nil {
		return 0
	}
	return n
}

// zhihuListing pages through a column's items API. Member stubs carry their
// type so the crawl can route answers and videos to the right parser.
type zhihuListing struct {
	session  *fetch.Session
	apiBase  string
	columnID string
}

func (l *zhihuListing) Page(page int) ([]crawl.Item, bool, error) {
	var payload struct {
		Data []struct {
			ID       json.Number `json:"id"`
			Type     string      `json:"type"`
			Question struct {
				ID json.Number `json:"id"`
			} `json:"question"`
		} `json:"data"`
		Paging struct {
			IsEnd bool `json:"is_end"`
		} `json:"paging"`
	}

	u := fmt.Sprintf("%s/api/v4/columns/%s/items?limit=%d&offset=%d",
		l.apiBase, l.columnID, zhihuPageSize, page*zhihuPageSize)
	if err := l.session.JSON(u, &payload); err != nil {
		return nil, false, err
	}

	items := make([]crawl.Item, 0, len(payload.Data))
	for _, d := range payload.Data {
		id := d.ID.String()
		var itemURL string
		switch d.Type {
		case "answer":
			itemURL = fmt.Sprintf("https://www.zhihu.com/question/%s/answer/%s", d.Question.ID.String(), id)
		case "zvideo":
			itemURL = "https://www.zhihu.com/zvideo/" + id
		default:
			itemURL = "https://zhuanlan.zhihu.com/p/" + id
		}
		items = append(items, crawl.Item{ID: id, Kind: d.Type, URL: itemURL})
	}
	return items, !payload.Paging.IsEnd, nil
}
