// Package fetch provides the HTTP session used by every platform adapter.
//
// A Session carries the browser-like headers the content platforms expect,
// plus an optional authentication cookie. Page fetches run known soft-fail
// markers against the returned text before any selector work happens, so an
// error page never silently degrades into an empty document.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// TransportError reports a network-level fetch failure: a failed request,
// or a response outside the 2xx range.
type TransportError struct {
	// URL is the request target
	URL string
	// StatusCode is the HTTP status, or 0 when the request itself failed
	StatusCode int
	// Err is the underlying cause, if any
	Err error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: unexpected status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Gate is a known text signature that marks a fetched page as unusable:
// an authentication banner or a missing-page notice. When the marker is
// found in the page text the associated error is returned instead of the
// document.
type Gate struct {
	Marker string
	Err    error
}

// Session is an HTTP client with platform-appropriate headers.
type Session struct {
	client *http.Client
	cookie string
}

// NewSession creates a session. The cookie may be empty; only the platform
// that gates content behind authentication needs one.
func NewSession(cookie string) *Session {
	return &Session{
		client: &http.Client{Timeout: 30 * time.Second},
		cookie: cookie,
	}
}

func (s *Session) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Language", "en,zh-CN;q=0.9,zh;q=0.8")
	if s.cookie != "" {
		req.Header.Set("Cookie", s.cookie)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: rawURL, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &TransportError{URL: rawURL, StatusCode: resp.StatusCode}
	}

	return resp, nil
}

// Page fetches a URL and parses it. Each gate marker is matched against the
// page text before the document is handed back; the first match wins. This
// must run before any metadata extraction, since selectors on an error page
// would yield empty fields instead of failing.
func (s *Session) Page(rawURL string, gates ...Gate) (*goquery.Document, error) {
	resp, err := s.get(context.Background(), rawURL)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", rawURL, err)
	}

	text := doc.Text()
	for _, g := range gates {
		if strings.Contains(text, g.Marker) {
			return nil, g.Err
		}
	}

	return doc, nil
}

// JSON fetches a URL and decodes the response body into v.
func (s *Session) JSON(rawURL string, v any) error {
	resp, err := s.get(context.Background(), rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{URL: rawURL, Err: err}
	}

	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("decode %s: %w", rawURL, err)
	}
	return nil
}
