// Package crawl drives collection crawls: it pages through a listing,
// dispatches each member item, isolates per-item failures, and keeps the
// checkpoint ledger current so an interrupted crawl resumes where it
// stopped.
package crawl

import (
	"fmt"

	"github.com/charmbracelet/log"

	"mdfetch/internal/ledger"
)

// maxConsecutivePageFailures bounds retries against a persistently broken
// listing endpoint. A single bad page is skipped; a run of them aborts.
const maxConsecutivePageFailures = 5

// Item is one member stub discovered in a collection listing.
type Item struct {
	// ID uniquely identifies the item within its platform
	ID string
	// Kind is the platform's item type (article, answer, zvideo, ...)
	Kind string
	// URL is the canonical single-item address
	URL string
}

// Listing pages through a collection's member stubs, a fixed page size at
// a time.
type Listing interface {
	// Page returns the items of the given zero-based page and reports
	// whether more pages remain after it.
	Page(page int) ([]Item, bool, error)
}

// Job describes one collection crawl.
type Job struct {
	// Folder is the destination directory, already created by the adapter
	Folder string
	// Prefix namespaces the ledger files, usually the platform name
	Prefix string
	// Title is the collection title, for progress display
	Title string
	// Total is the expected item count; zero means unknown and degrades
	// progress to an unbounded indicator
	Total int
	// Listing enumerates member stubs
	Listing Listing
	// Process converts a single item; its error is isolated per item
	Process func(Item) error
	// Quiet suppresses the spinner and summary output
	Quiet bool
}

// Result aggregates the outcome of one crawl run.
type Result struct {
	Processed int
	Skipped   int
	Failed    int
}

// PartialCrawlError reports a crawl that completed but left failed items
// behind. The retained failed-id ledger allows a later run to retry just
// those items; output for the succeeded subset is still usable.
type PartialCrawlError struct {
	Folder     string
	LedgerPath string
	Failed     int
}

func (e *PartialCrawlError) Error() string {
	return fmt.Sprintf("collection crawl completed with %d failed items (ledger: %s)", e.Failed, e.LedgerPath)
}

// Run executes a collection crawl. Every discoverable member is attempted
// exactly once across the lifetime of possibly several resumed runs: ids in
// the processed ledger are skipped, ids in the failed ledger are retried.
// A failing item is recorded and the loop continues; only a run of
// consecutive listing-page failures aborts.
func Run(job Job) (Result, error) {
	led, err := ledger.Load(job.Folder, job.Prefix)
	if err != nil {
		return Result{}, err
	}

	progress := newProgress(job, led.ProcessedCount())
	progress.start()
	defer progress.stop()

	var res Result
	consecutiveFailures := 0

	for page := 0; ; page++ {
		items, more, err := job.Listing.Page(page)
		if err != nil {
			consecutiveFailures++
			log.Warn("listing page fetch failed", "page", page, "err", err)
			if consecutiveFailures >= maxConsecutivePageFailures {
				return res, fmt.Errorf("listing failed %d pages in a row: %w", consecutiveFailures, err)
			}
			continue
		}
		consecutiveFailures = 0

		for _, item := range items {
			if led.Processed(item.ID) {
				res.Skipped++
				continue
			}

			if err := job.Process(item); err != nil {
				log.Error("item failed", "id", item.ID, "kind", item.Kind, "err", err)
				if lerr := led.MarkFailed(item.ID); lerr != nil {
					return res, lerr
				}
				res.Failed++
				continue
			}

			if err := led.MarkProcessed(item.ID); err != nil {
				return res, err
			}
			res.Processed++
			progress.advance()
		}

		if !more {
			break
		}
	}

	progress.stop()
	if !job.Quiet {
		printSummary(job, res, led.FailedCount())
	}

	if led.FailedCount() == 0 {
		if err := led.Clear(); err != nil {
			return res, err
		}
		return res, nil
	}

	return res, &PartialCrawlError{
		Folder:     job.Folder,
		LedgerPath: led.FailedPath(),
		Failed:     led.FailedCount(),
	}
}
