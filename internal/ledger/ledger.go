// Package ledger persists per-collection crawl checkpoints.
//
// A ledger is a pair of line-oriented id logs in the collection folder: an
// append-only processed log and a rewritable failed log. Their presence is
// what makes a multi-hundred-article crawl resumable; their absence after a
// crawl is the success marker.
package ledger

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Ledger tracks which collection items have been processed and which
// failed. A single crawl exclusively owns its ledger files for its
// duration; concurrent crawls against the same folder are a caller error.
type Ledger struct {
	processedPath string
	failedPath    string
	processed     map[string]bool
	failed        map[string]bool
}

// Load opens (or initializes) the ledger for a collection folder. The
// prefix namespaces the files per platform, e.g. "zhihu". Missing files
// mean a fresh crawl and yield empty sets.
func Load(dir, prefix string) (*Ledger, error) {
	l := &Ledger{
		processedPath: filepath.Join(dir, prefix+"_processed_articles.txt"),
		failedPath:    filepath.Join(dir, prefix+"_failed_articles.txt"),
	}

	var err error
	if l.processed, err = readIDs(l.processedPath); err != nil {
		return nil, fmt.Errorf("load processed ledger: %w", err)
	}
	if l.failed, err = readIDs(l.failedPath); err != nil {
		return nil, fmt.Errorf("load failed ledger: %w", err)
	}
	return l, nil
}

// Processed reports whether an item id has already been handled; such ids
// are never re-fetched by a resumed run.
func (l *Ledger) Processed(id string) bool { return l.processed[id] }

// Failed reports whether an item id failed on a previous run.
func (l *Ledger) Failed(id string) bool { return l.failed[id] }

// FailedCount returns the number of unresolved failed ids.
func (l *Ledger) FailedCount() int { return len(l.failed) }

// ProcessedCount returns the number of completed ids.
func (l *Ledger) ProcessedCount() int { return len(l.processed) }

// FailedPath returns the on-disk location of the failed-id log.
func (l *Ledger) FailedPath() string { return l.failedPath }

// MarkProcessed appends an id to the processed log. If the id was a retry
// of an earlier failure it is removed from the failed set and that log is
// rewritten.
func (l *Ledger) MarkProcessed(id string) error {
	if err := appendLine(l.processedPath, id); err != nil {
		return fmt.Errorf("record processed id: %w", err)
	}
	l.processed[id] = true

	if l.failed[id] {
		delete(l.failed, id)
		if err := l.rewriteFailed(); err != nil {
			return fmt.Errorf("clear retried id: %w", err)
		}
	}
	return nil
}

// MarkFailed records an id in the failed log for retry on the next run.
func (l *Ledger) MarkFailed(id string) error {
	if l.failed[id] {
		return nil
	}
	if err := appendLine(l.failedPath, id); err != nil {
		return fmt.Errorf("record failed id: %w", err)
	}
	l.failed[id] = true
	return nil
}

// Clear deletes both ledger files. Called on a crawl that completes with
// zero failures; a clean folder needs nothing to resume.
func (l *Ledger) Clear() error {
	for _, p := range []string{l.processedPath, l.failedPath} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove ledger %s: %w", p, err)
		}
	}
	l.processed = map[string]bool{}
	l.failed = map[string]bool{}
	return nil
}

func (l *Ledger) rewriteFailed() error {
	if len(l.failed) == 0 {
		if err := os.Remove(l.failedPath); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil
	}
	var sb strings.Builder
	for id := range l.failed {
		sb.WriteString(id)
		sb.WriteByte('\n')
	}
	return os.WriteFile(l.failedPath, []byte(sb.String()), 0o644)
}

func readIDs(path string) (map[string]bool, error) {
	ids := map[string]bool{}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ids, nil
		}
		return nil, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			ids[line] = true
		}
	}
	return ids, scanner.Err()
}

func appendLine(path, id string) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = f.WriteString(id + "\n")
	return err
}
