package crawl

import (
	"fmt"
	"os"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// progress renders a spinner while items are converted. When the listing
// exposed a parseable total the suffix shows n/total; otherwise it counts
// upward unbounded.
type progress struct {
	spin  *spinner.Spinner
	title string
	total int
	done  int
	quiet bool
}

func newProgress(job Job, alreadyDone int) *progress {
	return &progress{
		spin:  spinner.New(spinner.CharSets[9], 100*time.Millisecond),
		title: job.Title,
		total: job.Total,
		done:  alreadyDone,
		quiet: job.Quiet,
	}
}

func (p *progress) start() {
	if p.quiet {
		return
	}
	p.refresh()
	p.spin.Start()
}

func (p *progress) advance() {
	p.done++
	if p.quiet {
		return
	}
	p.refresh()
}

func (p *progress) refresh() {
	if p.total > 0 {
		p.spin.Suffix = fmt.Sprintf(" %s %d/%d", p.title, p.done, p.total)
	} else {
		p.spin.Suffix = fmt.Sprintf(" %s %d", p.title, p.done)
	}
}

func (p *progress) stop() {
	if p.quiet {
		return
	}
	p.spin.Stop()
}

func printSummary(job Job, res Result, unresolved int) {
	green := color.New(color.FgGreen).SprintFunc()
	if unresolved == 0 {
		fmt.Println(green("✔ Collection crawl complete"))
	} else {
		fmt.Println(color.YellowString("⚠ Collection crawl completed with failures"))
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Field", "Value"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, Align: text.AlignLeft, WidthMax: 20},
		{Number: 2, Align: text.AlignLeft, WidthMax: 80},
	})
	t.AppendRow(table.Row{"Collection", job.Title})
	t.AppendRow(table.Row{"Folder", job.Folder})
	t.AppendRow(table.Row{"Processed", res.Processed})
	t.AppendRow(table.Row{"Skipped (resumed)", res.Skipped})
	t.AppendRow(table.Row{"Failed", unresolved})
	t.Render()
}
