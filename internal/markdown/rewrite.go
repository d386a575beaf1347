// Package markdown rewrites platform HTML into self-contained Markdown.
//
// The rewriter walks the source content tree read-only and emits a fresh
// tree, so no pass ever mutates the nodes it is iterating. Structures that
// must survive the generic HTML-to-Markdown conversion verbatim (headings,
// links, math formulas) are swapped for placeholder tokens and backfilled
// afterwards in strict first-in-first-out order per token kind.
package markdown

import (
	"bytes"
	"fmt"
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"golang.org/x/net/html"

	"mdfetch/internal/fetch"
)

// Placeholder tokens are plain letters so the converter's Markdown escaping
// cannot touch them.
const (
	tokenMathBlock  = "@@MATHBLOCK@@"
	tokenMathInline = "@@MATHINLINE@@"
	tokenHeading    = "@@MDHEADING@@"
	tokenLink       = "@@MDLINK@@"
)

// imageExtensions are recognized in original-URL order; a local asset path
// is truncated at the first match to strip tracking suffixes baked into the
// filename.
var imageExtensions = []string{".jpg", ".png", ".gif"}

// Options captures the per-platform quirks the rewriter is parameterized by.
type Options struct {
	// ImageSrcAttrs is the attribute preference order for resolving an image
	// URL, e.g. a lazy-load data attribute before plain src.
	ImageSrcAttrs []string
	// LinkTextAttr is the attribute carrying a link's display title, if the
	// platform uses one (e.g. data-text).
	LinkTextAttr string
	// MathClass is the class of inline math spans (e.g. ztext-math).
	MathClass string
	// MathAttr is the attribute carrying the LaTeX source (e.g. data-tex).
	MathAttr string
	// SequentialImages names assets img_NN.<ext> instead of deriving names
	// from the URL basename, for platforms whose image URLs carry no stable
	// filename.
	SequentialImages bool
	// ImageExtParam is the query parameter carrying the image format when
	// SequentialImages is set (e.g. wx_fmt).
	ImageExtParam string
	// HexoEscape wraps math formulas in {% raw %}/{% endraw %} pairs for
	// static-site generators that would otherwise interpret the braces.
	HexoEscape bool
}

// Rewriter turns a content root node into a Markdown body, rehoming every
// embedded media asset to a local path under the document's key.
type Rewriter struct {
	opts    Options
	session *fetch.Session
}

func NewRewriter(session *fetch.Session, opts Options) *Rewriter {
	if len(opts.ImageSrcAttrs) == 0 {
		opts.ImageSrcAttrs = []string{"src"}
	}
	return &Rewriter{opts: opts, session: session}
}

type rewriteState struct {
	headings   []string
	links      []string
	mathInline []string
	mathBlock  []string
	imgIndex   int
}

// Rewrite transforms the subtree under root into Markdown. Assets are
// written under baseDir/<key>/ and referenced by relative path. A single
// failed image download is logged and skipped; it never aborts the
// document.
func (r *Rewriter) Rewrite(root *html.Node, key, baseDir string) (string, error) {
	if root == nil {
		return "", nil
	}

	st := &rewriteState{}
	container := &html.Node{Type: html.ElementNode, Data: "div"}
	r.transformChildren(root, container, key, baseDir, st)

	var buf bytes.Buffer
	for c := container.FirstChild; c != nil; c = c.NextSibling {
		if err := html.Render(&buf, c); err != nil {
			return "", fmt.Errorf("serialize rewritten tree: %w", err)
		}
	}

	body, err := Convert(buf.String())
	if err != nil {
		return "", fmt.Errorf("convert to markdown: %w", err)
	}

	// Backfill placeholders in encounter order, one stored value per token
	// occurrence. Blocks before inline, matching the extraction passes.
	for _, formula := range st.mathBlock {
		body = strings.Replace(body, tokenMathBlock, r.wrapFormula(formula, true), 1)
	}
	for _, formula := range st.mathInline {
		body = strings.Replace(body, tokenMathInline, r.wrapFormula(formula, false), 1)
	}
	for _, heading := range st.headings {
		body = strings.Replace(body, tokenHeading, heading, 1)
	}
	for _, link := range st.links {
		body = strings.Replace(body, tokenLink, link, 1)
	}

	return strings.TrimSpace(body), nil
}

// transformChildren walks src's children and appends transformed
// replacements to dst.
func (r *Rewriter) transformChildren(src, dst *html.Node, key, baseDir string, st *rewriteState) {
	for c := src.FirstChild; c != nil; c = c.NextSibling {
		switch {
		case c.Type == html.TextNode:
			dst.AppendChild(&html.Node{Type: html.TextNode, Data: c.Data})

		case c.Type != html.ElementNode:
			// comments, doctypes

		case c.Data == "style":
			// stylesheet payloads have no place in a Markdown transcript

		case c.Data == "img" && strings.Contains(attr(c, "class"), "lazy"):
			// lazy-load placeholder, the real image follows separately

		case isHeading(c.Data):
			level := int(c.Data[1] - '0')
			text := strings.TrimSpace(textContent(c))
			st.headings = append(st.headings, strings.Repeat("#", level)+" "+text)
			dst.AppendChild(&html.Node{Type: html.TextNode, Data: tokenHeading})
			dst.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})

		case c.Data == "img":
			r.transformImage(c, dst, key, baseDir, st)

		case c.Data == "figcaption":
			clone := cloneNode(c)
			r.transformChildren(c, clone, key, baseDir, st)
			dst.AppendChild(clone)
			dst.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
			dst.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})

		case c.Data == "a" && attr(c, "href") != "":
			st.links = append(st.links, r.markdownLink(c))
			dst.AppendChild(&html.Node{Type: html.TextNode, Data: tokenLink})

		case r.opts.MathClass != "" && hasClass(c, r.opts.MathClass):
			formula := attr(c, r.opts.MathAttr)
			if formula == "" {
				formula = textContent(c)
			}
			if strings.Contains(formula, `\tag`) {
				st.mathBlock = append(st.mathBlock, formula)
				dst.AppendChild(&html.Node{Type: html.TextNode, Data: tokenMathBlock})
				dst.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
			} else {
				st.mathInline = append(st.mathInline, formula)
				dst.AppendChild(&html.Node{Type: html.TextNode, Data: tokenMathInline})
			}

		default:
			clone := cloneNode(c)
			r.transformChildren(c, clone, key, baseDir, st)
			dst.AppendChild(clone)
		}
	}
}

// transformImage resolves the best source URL, derives a local asset path,
// fetches the asset, and emits an img node pointing at the local copy.
func (r *Rewriter) transformImage(n, dst *html.Node, key, baseDir string, st *rewriteState) {
	var imgURL string
	for _, name := range r.opts.ImageSrcAttrs {
		if v := attr(n, name); v != "" {
			imgURL = v
			break
		}
	}
	if imgURL == "" {
		// no usable URL attribute, keep the node untouched
		dst.AppendChild(cloneNode(n))
		return
	}

	rel := key + "/" + r.assetName(imgURL, st)

	if err := r.session.Download(imgURL, filepath.Join(baseDir, filepath.FromSlash(rel))); err != nil {
		log.Warn("image download failed", "url", imgURL, "err", err)
	}

	img := &html.Node{Type: html.ElementNode, Data: "img", Attr: []html.Attribute{{Key: "src", Val: rel}}}
	if alt := attr(n, "alt"); alt != "" {
		img.Attr = append(img.Attr, html.Attribute{Key: "alt", Val: alt})
	}
	dst.AppendChild(img)
	dst.AppendChild(&html.Node{Type: html.ElementNode, Data: "br"})
}

// assetName derives the local filename for an image URL. In sequential mode
// the name is a zero-padded index with an extension taken from the format
// query parameter, then the URL path, then a jpg default. Otherwise the
// URL basename is escaped and truncated at the first recognized image
// extension; a URL with no match keeps its full escaped basename.
func (r *Rewriter) assetName(imgURL string, st *rewriteState) string {
	if r.opts.SequentialImages {
		ext := ""
		if parsed, err := url.Parse(imgURL); err == nil {
			if r.opts.ImageExtParam != "" {
				if v := parsed.Query().Get(r.opts.ImageExtParam); v != "" {
					ext = "." + v
				}
			}
			if ext == "" {
				ext = path.Ext(parsed.Path)
			}
		}
		if ext == "" {
			ext = ".jpg"
		}
		name := fmt.Sprintf("img_%02d%s", st.imgIndex, ext)
		st.imgIndex++
		return name
	}

	base := imgURL
	if i := strings.LastIndex(base, "/"); i != -1 {
		base = base[i+1:]
	}
	name := url.PathEscape(base)
	for _, ext := range imageExtensions {
		if i := strings.Index(name, ext); i != -1 {
			name = name[:i+len(ext)]
			break
		}
	}
	return name
}

// markdownLink extracts the true destination and label of a hyperlink and
// renders the literal Markdown form. Platforms wrap outbound links in
// redirect query-strings carrying the real URL in a target parameter.
func (r *Rewriter) markdownLink(n *html.Node) string {
	href := attr(n, "href")

	dest := href
	if parsed, err := url.Parse(href); err == nil {
		if target := parsed.Query().Get("target"); target != "" {
			dest = target
		}
	}
	if decoded, err := url.QueryUnescape(dest); err == nil {
		dest = decoded
	}

	label := ""
	if r.opts.LinkTextAttr != "" {
		label = attr(n, r.opts.LinkTextAttr)
	}
	if label == "" {
		label = strings.TrimSpace(textContent(n))
	}
	if label == "" {
		label = dest
	}

	return "[" + label + "](" + dest + ")"
}

// wrapFormula delimits a LaTeX formula for Markdown output. A formula that
// already contains a literal dollar sign is inserted unwrapped to avoid
// double-delimiting.
func (r *Rewriter) wrapFormula(formula string, block bool) string {
	delim := "$"
	if block {
		delim = "$$"
	}
	if r.opts.HexoEscape {
		return delim + "{% raw %}" + formula + "{% endraw %}" + delim
	}
	if strings.Contains(formula, "$") {
		return formula
	}
	return delim + formula + delim
}

// Document assembles the final Markdown file content. An empty body still
// produces a document; the notice stands in for the missing content.
func Document(title, author, link, body string) string {
	if strings.TrimSpace(body) == "" {
		return fmt.Sprintf("# %s\n\n **Author:** [%s]\n\n **Link:** [%s]\n\n Content is empty.", title, author, link)
	}
	return fmt.Sprintf("# %s\n\n **Author:** [%s]\n\n **Link:** [%s]\n\n%s", title, author, link, body)
}

func isHeading(tag string) bool {
	return len(tag) == 2 && tag[0] == 'h' && tag[1] >= '1' && tag[1] <= '6'
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func cloneNode(n *html.Node) *html.Node {
	return &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      append([]html.Attribute(nil), n.Attr...),
	}
}
