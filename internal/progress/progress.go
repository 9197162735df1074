// Package progress reports how far a bundled-directory scan has got.
package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"
)

// Reporter receives scan progress.
type Reporter interface {
	Start(total int)
	Update(current int, message string)
	Finish()
}

// NewReporter returns a Terminal reporter when w is an interactive terminal
// and the CI environment variable is unset, and a Lines reporter otherwise.
func NewReporter(w io.Writer) Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" || !IsTerminal(w) {
		return &Lines{w: w}
	}
	return &Terminal{w: w}
}

// IsTerminal reports whether w is a character device.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	stat, err := f.Stat()
	if err != nil {
		return false
	}
	return stat.Mode()&os.ModeCharDevice != 0
}

// Terminal draws a progress bar.
type Terminal struct {
	w   io.Writer
	bar *progressbar.ProgressBar
}

func (r *Terminal) Start(total int) {
	r.bar = progressbar.NewOptions(total,
		progressbar.OptionSetWriter(r.w),
		progressbar.OptionSetDescription("Scanning books"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *Terminal) Update(current int, message string) {
	if r.bar != nil {
		r.bar.Describe(message)
		_ = r.bar.Set(current)
	}
}

func (r *Terminal) Finish() {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// Lines prints one line per file, for logs and pipes.
type Lines struct {
	w     io.Writer
	total int
}

// NewLines returns a Lines reporter writing to w.
func NewLines(w io.Writer) *Lines { return &Lines{w: w} }

func (r *Lines) Start(total int) {
	r.total = total
	fmt.Fprintf(r.w, "Scanning %d files\n", total)
}

func (r *Lines) Update(current int, message string) {
	fmt.Fprintf(r.w, "[%d/%d] %s\n", current, r.total, message)
}

func (r *Lines) Finish() {
	fmt.Fprintln(r.w, "Scan complete")
}
