package markdown

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"

	"mdfetch/internal/fetch"
)

func contentNode(t *testing.T, page string) *html.Node {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err != nil {
		t.Fatal(err)
	}
	sel := doc.Find("div.content")
	if sel.Length() == 0 {
		t.Fatal("no content node in fixture")
	}
	return sel.Nodes[0]
}

func orderedIndexes(t *testing.T, body string, wants ...string) {
	t.Helper()
	last := -1
	for _, want := range wants {
		idx := strings.Index(body, want)
		if idx == -1 {
			t.Fatalf("output missing %q\n%s", want, body)
		}
		if idx < last {
			t.Errorf("%q appears out of order\n%s", want, body)
		}
		last = idx
	}
}

func TestRewriteRoundTrip(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("imagebytes"))
	}))
	defer server.Close()

	page := fmt.Sprintf(`<html><body><div class="content">
		<h2>Section One</h2>
		<figure><img src="%s/assets/pic.png?from=tracker"><figcaption>A caption</figcaption></figure>
		<p>See <a href="https://link.test/?target=https%%3A%%2F%%2Freal.test%%2Fpage" data-text="Real Page">here</a></p>
		<p><span class="ztext-math" data-tex="E=mc^2">E=mc^2</span></p>
	</div></body></html>`, server.URL)

	baseDir := t.TempDir()
	r := NewRewriter(fetch.NewSession(""), Options{
		ImageSrcAttrs: []string{"src"},
		LinkTextAttr:  "data-text",
		MathClass:     "ztext-math",
		MathAttr:      "data-tex",
	})

	body, err := r.Rewrite(contentNode(t, page), "Doc_Key", baseDir)
	if err != nil {
		t.Fatal(err)
	}

	orderedIndexes(t, body,
		"## Section One",
		"Doc_Key/pic.png",
		"A caption",
		"[Real Page](https://real.test/page)",
		"$E=mc^2$",
	)

	asset := filepath.Join(baseDir, "Doc_Key", "pic.png")
	data, err := os.ReadFile(asset)
	if err != nil {
		t.Fatalf("asset not written: %v", err)
	}
	if string(data) != "imagebytes" {
		t.Errorf("asset content = %q", data)
	}
}

func TestRewriteImageFailureIsolated(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.Path, "bad") {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	page := fmt.Sprintf(`<html><body><div class="content">
		<p><img src="%s/bad.jpg"></p>
		<p><img src="%s/good.jpg"></p>
	</div></body></html>`, server.URL, server.URL)

	baseDir := t.TempDir()
	r := NewRewriter(fetch.NewSession(""), Options{})

	body, err := r.Rewrite(contentNode(t, page), "Doc", baseDir)
	if err != nil {
		t.Fatalf("a failed image download must not fail the rewrite: %v", err)
	}

	orderedIndexes(t, body, "Doc/bad.jpg", "Doc/good.jpg")

	if _, err := os.Stat(filepath.Join(baseDir, "Doc", "good.jpg")); err != nil {
		t.Errorf("good asset missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(baseDir, "Doc", "bad.jpg")); err == nil {
		t.Error("failed asset should not exist on disk")
	}
}

func TestRewriteDropsStyleAndLazyPlaceholders(t *testing.T) {
	page := `<html><body><div class="content">
		<style>.x { color: red }</style>
		<img class="lazy loading" src="placeholder.jpg">
		<p>kept text</p>
	</div></body></html>`

	r := NewRewriter(fetch.NewSession(""), Options{})
	body, err := r.Rewrite(contentNode(t, page), "Doc", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	if strings.Contains(body, "color") {
		t.Errorf("style payload leaked into output:\n%s", body)
	}
	if strings.Contains(body, "placeholder") {
		t.Errorf("lazy placeholder leaked into output:\n%s", body)
	}
	if !strings.Contains(body, "kept text") {
		t.Errorf("content text lost:\n%s", body)
	}
}

func TestRewriteMathFIFOPairing(t *testing.T) {
	page := `<html><body><div class="content">
		<p><span class="ztext-math" data-tex="a+b">f1</span></p>
		<p><span class="ztext-math" data-tex="c=d \tag{1}">f2</span></p>
		<p><span class="ztext-math" data-tex="pre $x$ post">f3</span></p>
	</div></body></html>`

	r := NewRewriter(fetch.NewSession(""), Options{
		MathClass: "ztext-math",
		MathAttr:  "data-tex",
	})
	body, err := r.Rewrite(contentNode(t, page), "Doc", t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	orderedIndexes(t, body,
		"$a+b$",
		`$$c=d \tag{1}$$`,
		"pre $x$ post",
	)
	if strings.Contains(body, "$pre") {
		t.Errorf("formula with literal dollar must stay unwrapped:\n%s", body)
	}
}

func TestWrapFormula(t *testing.T) {
	tests := []struct {
		name     string
		formula  string
		block    bool
		hexo     bool
		expected string
	}{
		{
			name:     "inline wrapped",
			formula:  "x+y",
			expected: "$x+y$",
		},
		{
			name:     "block wrapped",
			formula:  `e \tag{2}`,
			block:    true,
			expected: `$$e \tag{2}$$`,
		},
		{
			name:     "literal dollar left alone",
			formula:  "a $b$ c",
			expected: "a $b$ c",
		},
		{
			name:     "hexo escape",
			formula:  "x_i",
			hexo:     true,
			expected: "${% raw %}x_i{% endraw %}$",
		},
		{
			name:     "hexo escape block",
			formula:  `y \tag{3}`,
			block:    true,
			hexo:     true,
			expected: `$${% raw %}y \tag{3}{% endraw %}$$`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRewriter(nil, Options{HexoEscape: tt.hexo})
			if got := r.wrapFormula(tt.formula, tt.block); got != tt.expected {
				t.Errorf("wrapFormula(%q) = %q, want %q", tt.formula, got, tt.expected)
			}
		})
	}
}

func TestAssetName(t *testing.T) {
	t.Run("truncated at first extension", func(t *testing.T) {
		r := NewRewriter(nil, Options{})
		got := r.assetName("https://pic.test/v2/photo.jpg?source=feed", &rewriteState{})
		if got != "photo.jpg" {
			t.Errorf("assetName = %q, want %q", got, "photo.jpg")
		}
	})

	t.Run("no extension keeps full basename", func(t *testing.T) {
		r := NewRewriter(nil, Options{})
		got := r.assetName("https://pic.test/files/photo", &rewriteState{})
		if got != "photo" {
			t.Errorf("assetName = %q, want %q", got, "photo")
		}
	})

	t.Run("sequential names", func(t *testing.T) {
		r := NewRewriter(nil, Options{SequentialImages: true, ImageExtParam: "wx_fmt"})
		st := &rewriteState{}
		urls := []string{
			"https://mm.test/pic?wx_fmt=png",
			"https://mm.test/other.gif",
			"https://mm.test/bare",
		}
		want := []string{"img_00.png", "img_01.gif", "img_02.jpg"}
		for i, u := range urls {
			if got := r.assetName(u, st); got != want[i] {
				t.Errorf("assetName(%q) = %q, want %q", u, got, want[i])
			}
		}
	})
}

func TestMarkdownLinkFallbacks(t *testing.T) {
	r := NewRewriter(nil, Options{LinkTextAttr: "data-text"})

	parse := func(s string) *html.Node {
		return contentNode(t, `<html><body><div class="content">`+s+`</div></body></html>`).FirstChild
	}

	tests := []struct {
		name     string
		html     string
		expected string
	}{
		{
			name:     "title attribute preferred",
			html:     `<a href="https://a.test/x" data-text="Titled">visible</a>`,
			expected: "[Titled](https://a.test/x)",
		},
		{
			name:     "visible text fallback",
			html:     `<a href="https://a.test/x">visible</a>`,
			expected: "[visible](https://a.test/x)",
		},
		{
			name:     "url fallback",
			html:     `<a href="https://a.test/x"></a>`,
			expected: "[https://a.test/x](https://a.test/x)",
		},
		{
			name:     "redirect target unwrapped",
			html:     `<a href="https://link.test/?target=https%3A%2F%2Freal.test%2Fp">t</a>`,
			expected: "[t](https://real.test/p)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.markdownLink(parse(tt.html)); got != tt.expected {
				t.Errorf("markdownLink = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestDocument(t *testing.T) {
	t.Run("with body", func(t *testing.T) {
		got := Document("T", "A", "https://u.test", "body text")
		want := "# T\n\n **Author:** [A]\n\n **Link:** [https://u.test]\n\nbody text"
		if got != want {
			t.Errorf("Document = %q, want %q", got, want)
		}
	})

	t.Run("empty body", func(t *testing.T) {
		got := Document("Test Article", "Alice", "https://u.test", "")
		want := "# Test Article\n\n **Author:** [Alice]\n\n **Link:** [https://u.test]\n\n Content is empty."
		if got != want {
			t.Errorf("Document = %q, want %q", got, want)
		}
	})
}
