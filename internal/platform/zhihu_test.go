package platform

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestZhihuArticleDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<html><body>
			<h1 class="Post-Title">My Post</h1>
			<div class="AuthorInfo"><meta itemprop="name" content="Bob"></div>
			<div class="ContentItem-time">发布于 2023-05-01 09:00</div>
			<div class="Post-RichTextContainer"><p>hello world</p></div>
		</body></html>`)
	}))
	defer srv.Close()

	dir := t.TempDir()
	z := newZhihu(Options{BaseDir: dir, Quiet: true})

	key, err := z.article(srv.URL+"/p/1", dir)
	if err != nil {
		t.Fatal(err)
	}
	if key != "(20230501)My_Post_Bob" {
		t.Errorf("key = %q", key)
	}

	data, err := os.ReadFile(filepath.Join(dir, key+".md"))
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)
	if !strings.HasPrefix(doc, "# My Post\n\n **Author:** [Bob]\n\n") {
		t.Errorf("document frame wrong:\n%s", doc)
	}
	if !strings.Contains(doc, "hello world") {
		t.Errorf("body content missing:\n%s", doc)
	}
}

func TestZhihuGates(t *testing.T) {
	cases := []struct {
		name   string
		marker string
		want   error
	}{
		{"auth", zhihuAuthMarker, ErrAuthRequired},
		{"missing", zhihuMissingMarker, ErrNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprintf(w, "<html><body><p>%s</p></body></html>", tc.marker)
			}))
			defer srv.Close()

			z := newZhihu(Options{BaseDir: t.TempDir(), Quiet: true})
			if _, err := z.article(srv.URL+"/p/1", z.opts.BaseDir); !errors.Is(err, tc.want) {
				t.Errorf("got %v, want %v", err, tc.want)
			}
		})
	}
}

func TestZhihuListingPagination(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v4/columns/c_123/items" {
			http.NotFound(w, r)
			return
		}
		switch r.URL.Query().Get("offset") {
		case "0":
			fmt.Fprint(w, `{
				"data": [
					{"id": 111, "type": "article"},
					{"id": 222, "type": "answer", "question": {"id": 999}}
				],
				"paging": {"is_end": false}
			}`)
		default:
			fmt.Fprint(w, `{
				"data": [{"id": 333, "type": "zvideo"}],
				"paging": {"is_end": true}
			}`)
		}
	}))
	defer srv.Close()

	z := newZhihu(Options{Quiet: true})
	l := &zhihuListing{session: z.session, apiBase: srv.URL, columnID: "c_123"}

	items, more, err := l.Page(0)
	if err != nil {
		t.Fatal(err)
	}
	if !more {
		t.Error("page 0 should report more pages")
	}
	if len(items) != 2 {
		t.Fatalf("page 0: %d items", len(items))
	}
	if items[0].URL != "https://zhuanlan.zhihu.com/p/111" {
		t.Errorf("article URL = %s", items[0].URL)
	}
	if items[1].URL != "https://www.zhihu.com/question/999/answer/222" {
		t.Errorf("answer URL = %s", items[1].URL)
	}

	items, more, err = l.Page(1)
	if err != nil {
		t.Fatal(err)
	}
	if more {
		t.Error("page 1 should be the last page")
	}
	if len(items) != 1 || items[0].URL != "https://www.zhihu.com/zvideo/333" {
		t.Errorf("page 1 items = %+v", items)
	}
}

func TestZhihuTotal(t *testing.T) {
	cases := []struct {
		text string
		want int
	}{
		{"机器学习专栏 - 知乎·12 篇内容", 12},
		{"专栏页面没有数字", 0},
		{"·abc 篇内容", 0},
	}
	for _, tc := range cases {
		if got := zhihuTotal(tc.text); got != tc.want {
			t.Errorf("zhihuTotal(%q) = %d, want %d", tc.text, got, tc.want)
		}
	}
}
