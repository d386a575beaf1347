// Package server exposes the converter over a minimal web form and a JSON
// API. Each conversion runs in a per-request temporary directory; the
// resulting documents and media sidecars are streamed back as a ZIP
// attachment and the directory is removed afterwards.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"

	"mdfetch/internal/crawl"
	"mdfetch/internal/platform"
)

const indexHTML = `<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>mdfetch</title></head>
<body>
<h1>mdfetch</h1>
<p>Convert an article or collection into Markdown with local media.</p>
<form method="POST" action="/">
  <label>URL <input type="text" name="url" size="80" required></label><br>
  <label>Cookies <input type="text" name="cookies" size="80"></label><br>
  <label>Website
    <select name="website">
      <option value="zhihu">zhihu</option>
      <option value="csdn">csdn</option>
      <option value="juejin">juejin</option>
      <option value="weixin">weixin</option>
    </select>
  </label><br>
  <button type="submit">Download ZIP</button>
</form>
</body>
</html>`

// supportedWebsites mirrors the form's site selector; the URL itself still
// decides the adapter.
var supportedWebsites = map[string]bool{
	"":       true,
	"zhihu":  true,
	"csdn":   true,
	"juejin": true,
	"weixin": true,
}

// Server handles the web form and the JSON API.
type Server struct {
	stats *Stats
	hexo  bool

	// fetchFn is the conversion entry point, swappable in tests
	fetchFn func(rawURL string, opts platform.Options) (string, error)
}

func New(stats *Stats, hexo bool) *Server {
	return &Server{
		stats:   stats,
		hexo:    hexo,
		fetchFn: platform.Fetch,
	}
}

// Handler builds the route table wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handleIndex)
	mux.HandleFunc("/api/convert", s.handleConvert)
	mux.HandleFunc("/stats", s.handleStats)
	return withRequestLog(mux)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		if err := s.stats.Increment("visit_total"); err != nil {
			log.Warn("stats update failed", "err", err)
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, indexHTML)

	case http.MethodPost:
		if err := r.ParseForm(); err != nil {
			http.Error(w, "malformed form", http.StatusBadRequest)
			return
		}
		s.convert(w, r.FormValue("url"), r.FormValue("cookies"), r.FormValue("website"))

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type convertRequest struct {
	URL     string `json:"url"`
	Cookies string `json:"cookies"`
	Website string `json:"website"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req convertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed request body", http.StatusBadRequest)
		return
	}
	s.convert(w, req.URL, req.Cookies, req.Website)
}

// convert runs one conversion in a scratch directory and streams the result
// back as a ZIP. A collection that completed with failed items still ships
// its partial archive; the failure count rides in a response header.
func (s *Server) convert(w http.ResponseWriter, rawURL, cookie, website string) {
	if rawURL == "" {
		http.Error(w, "url is required", http.StatusBadRequest)
		return
	}
	if !supportedWebsites[strings.ToLower(website)] {
		http.Error(w, "unsupported website", http.StatusBadRequest)
		return
	}

	workDir, err := os.MkdirTemp("", "mdfetch-*")
	if err != nil {
		http.Error(w, "workspace allocation failed", http.StatusInternalServerError)
		return
	}
	defer os.RemoveAll(workDir)

	name, err := s.fetchFn(rawURL, platform.Options{
		Cookie:     cookie,
		BaseDir:    workDir,
		HexoEscape: s.hexo,
		Quiet:      true,
	})

	var partial *crawl.PartialCrawlError
	switch {
	case err == nil:
	case errors.As(err, &partial):
		w.Header().Set("X-Failed-Items", strconv.Itoa(partial.Failed))
	case errors.Is(err, platform.ErrUnsupportedPlatform):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, platform.ErrAuthRequired):
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	case errors.Is(err, platform.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	default:
		log.Error("conversion failed", "url", rawURL, "err", err)
		http.Error(w, "conversion failed", http.StatusBadGateway)
		return
	}

	if err := s.stats.Increment("download_total"); err != nil {
		log.Warn("stats update failed", "err", err)
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+".zip"))
	if err := writeZip(w, workDir); err != nil {
		log.Error("archive streaming failed", "url", rawURL, "err", err)
	}
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counters, err := s.stats.All()
	if err != nil {
		http.Error(w, "stats unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(counters)
}
