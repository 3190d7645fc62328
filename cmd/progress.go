package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"github.com/MimeLyc/tiered-sub-translator/internal/eventlog"
)

// progressReporter shows chunk progress either as a bar on a terminal or as
// plain lines otherwise.
type progressReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func newProgressReporter(out io.Writer, total int) *progressReporter {
	r := &progressReporter{out: out}
	if isTerminal(out) {
		r.bar = progressbar.NewOptions(total,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("Translating"),
			progressbar.OptionShowCount(),
			progressbar.OptionSetWidth(30),
			progressbar.OptionClearOnFinish(),
		)
	}
	return r
}

// interactive reports whether a bar is drawn. Log mirroring to the console
// is turned off in that case so lines do not tear the bar.
func (r *progressReporter) interactive() bool {
	return r.bar != nil
}

func (r *progressReporter) update(p eventlog.Progress) {
	if r.bar != nil {
		_ = r.bar.Set(p.Processed)
		return
	}
	fmt.Fprintf(r.out, "Batch %d/%d: %d/%d lines (%.0f%%)\n", p.Batch, p.Batches, p.Processed, p.Total, p.Percent)
}

func (r *progressReporter) finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
