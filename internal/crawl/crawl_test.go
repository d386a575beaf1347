package crawl

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
)

type fakeListing struct {
	pages     [][]Item
	failPages map[int]int // page -> remaining failures
	calls     int
}

func (f *fakeListing) Page(page int) ([]Item, bool, error) {
	f.calls++
	if remaining := f.failPages[page]; remaining > 0 {
		f.failPages[page] = remaining - 1
		return nil, false, errors.New("listing unavailable")
	}
	if page >= len(f.pages) {
		return nil, false, nil
	}
	return f.pages[page], page < len(f.pages)-1, nil
}

func items(ids ...string) []Item {
	out := make([]Item, 0, len(ids))
	for _, id := range ids {
		out = append(out, Item{ID: id, Kind: "article"})
	}
	return out
}

func TestRunCleanCompletion(t *testing.T) {
	dir := t.TempDir()
	listing := &fakeListing{pages: [][]Item{items("1", "2"), items("3", "4")}}

	var seen []string
	res, err := Run(Job{
		Folder:  dir,
		Prefix:  "zhihu",
		Listing: listing,
		Process: func(it Item) error {
			seen = append(seen, it.ID)
			return nil
		},
		Quiet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 4 || res.Failed != 0 {
		t.Errorf("result = %+v", res)
	}
	if strings.Join(seen, ",") != "1,2,3,4" {
		t.Errorf("items processed out of listing order: %v", seen)
	}

	// clean success leaves no ledger files behind
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("ledger files remain after clean crawl: %v", entries)
	}
}

func TestRunIsolatesItemFailures(t *testing.T) {
	dir := t.TempDir()
	listing := &fakeListing{pages: [][]Item{items("1", "2", "3")}}

	res, err := Run(Job{
		Folder:  dir,
		Prefix:  "zhihu",
		Listing: listing,
		Process: func(it Item) error {
			if it.ID == "2" {
				return errors.New("boom")
			}
			return nil
		},
		Quiet: true,
	})

	var partial *PartialCrawlError
	if !errors.As(err, &partial) {
		t.Fatalf("got %v, want *PartialCrawlError", err)
	}
	if partial.Failed != 1 {
		t.Errorf("partial.Failed = %d, want 1", partial.Failed)
	}
	if res.Processed != 2 {
		t.Errorf("res.Processed = %d, want 2 (failure must not stop the loop)", res.Processed)
	}

	data, err := os.ReadFile(partial.LedgerPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "2\n" {
		t.Errorf("failed ledger = %q, want %q", data, "2\n")
	}
}

func TestRunResumeIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	job := func(process func(Item) error) Job {
		return Job{
			Folder:  dir,
			Prefix:  "zhihu",
			Listing: &fakeListing{pages: [][]Item{items("1", "2"), items("3", "4")}},
			Process: process,
			Quiet:   true,
		}
	}

	// first run: item 3 fails
	_, err := Run(job(func(it Item) error {
		if it.ID == "3" {
			return errors.New("transient")
		}
		return nil
	}))
	var partial *PartialCrawlError
	if !errors.As(err, &partial) {
		t.Fatalf("first run: got %v, want partial failure", err)
	}

	// resumed run: only the failed item is attempted again
	var attempted []string
	res, err := Run(job(func(it Item) error {
		attempted = append(attempted, it.ID)
		return nil
	}))
	if err != nil {
		t.Fatalf("resumed run: %v", err)
	}
	if len(attempted) != 1 || attempted[0] != "3" {
		t.Errorf("resumed run attempted %v, want only item 3", attempted)
	}
	if res.Skipped != 3 {
		t.Errorf("res.Skipped = %d, want 3", res.Skipped)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Errorf("ledgers remain after successful resume: %v", entries)
	}
}

func TestRunSkipsBrokenListingPage(t *testing.T) {
	dir := t.TempDir()
	listing := &fakeListing{
		pages:     [][]Item{items("1"), items("2"), items("3")},
		failPages: map[int]int{1: 1},
	}

	var seen []string
	_, err := Run(Job{
		Folder:  dir,
		Prefix:  "csdn",
		Listing: listing,
		Process: func(it Item) error {
			seen = append(seen, it.ID)
			return nil
		},
		Quiet: true,
	})
	if err != nil {
		t.Fatal(err)
	}
	// page 1 was skipped, pages 0 and 2 still made it
	if strings.Join(seen, ",") != "1,3" {
		t.Errorf("seen = %v, want items from pages 0 and 2", seen)
	}
}

func TestRunAbortsAfterConsecutiveListingFailures(t *testing.T) {
	listing := &fakeListing{failPages: map[int]int{}}
	for i := 0; i < 100; i++ {
		listing.failPages[i] = 1
	}

	_, err := Run(Job{
		Folder:  t.TempDir(),
		Prefix:  "zhihu",
		Listing: listing,
		Process: func(Item) error { return fmt.Errorf("should not run") },
		Quiet:   true,
	})
	if err == nil {
		t.Fatal("expected abort error")
	}
	var partial *PartialCrawlError
	if errors.As(err, &partial) {
		t.Fatal("abort must not be reported as partial failure")
	}
	if listing.calls != maxConsecutivePageFailures {
		t.Errorf("listing attempts = %d, want %d", listing.calls, maxConsecutivePageFailures)
	}
}
