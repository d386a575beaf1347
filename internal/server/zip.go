package server

import (
	"archive/zip"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// archiveExtensions filters what makes it into a download: the Markdown
// documents and their media sidecars. Ledger files and anything else a
// crawl leaves behind stay out.
var archiveExtensions = []string{".md", ".jpg", ".png", ".gif", ".mp4"}

func archivable(name string) bool {
	for _, ext := range archiveExtensions {
		if strings.HasSuffix(name, ext) {
			return true
		}
	}
	return false
}

// writeZip streams dir's archivable files into w as a ZIP, with paths
// relative to dir.
func writeZip(w io.Writer, dir string) error {
	zw := zip.NewWriter(w)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !archivable(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}

		dst, err := zw.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()

		_, err = io.Copy(dst, src)
		return err
	})
	if err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}
