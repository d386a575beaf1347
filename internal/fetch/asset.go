package fetch

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// Download resolves a media URL to bytes and writes them to dest, creating
// any missing parent directories. Inline data-URIs are decoded in place;
// everything else goes through the session. There is no retry at this layer;
// the caller decides whether a failure is fatal for the item.
func (s *Session) Download(rawURL, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("create asset dir: %w", err)
	}

	if strings.HasPrefix(rawURL, "data:") {
		data, err := decodeDataURI(rawURL)
		if err != nil {
			return err
		}
		return os.WriteFile(dest, data, 0o644)
	}

	resp, err := s.get(context.Background(), rawURL)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("create asset file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("write asset %s: %w", dest, err)
	}
	return nil
}

func decodeDataURI(uri string) ([]byte, error) {
	meta, payload, ok := strings.Cut(uri, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data URI")
	}

	if strings.Contains(meta, "base64") {
		data, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			// Some platforms emit unpadded payloads.
			data, err = base64.RawStdEncoding.DecodeString(payload)
			if err != nil {
				return nil, fmt.Errorf("decode data URI: %w", err)
			}
		}
		return data, nil
	}

	decoded, err := url.QueryUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("decode data URI: %w", err)
	}
	return []byte(decoded), nil
}
