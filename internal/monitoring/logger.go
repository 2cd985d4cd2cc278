package monitoring

import (
	"fmt"
	"io"
	"log"
	"os"
)

// Logf is the package-level diagnostic logger used by the clustering pipeline.
// It defaults to log.Printf but may be replaced by SetLogger. Tests or
// production code can redirect or mute it.
var Logf func(format string, v ...interface{}) = log.Printf

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		Logf = func(string, ...interface{}) {}
		return
	}
	Logf = f
}

// Progress prints a carriage-return progress line every Every items and on
// the final item, e.g. "   150/400 files processed".
type Progress struct {
	Total int
	Every int
	Out   io.Writer
	Label string
}

// NewProgress returns a Progress writing to stderr.
func NewProgress(total, every int, label string) *Progress {
	if every <= 0 {
		every = 1
	}
	return &Progress{Total: total, Every: every, Out: os.Stderr, Label: label}
}

// Step reports that item i (zero-based) has been handled.
func (p *Progress) Step(i int) {
	if p == nil || p.Out == nil {
		return
	}
	done := i + 1
	if done%p.Every != 0 && done != p.Total {
		return
	}
	fmt.Fprintf(p.Out, "\r   %d/%d %s", done, p.Total, p.Label)
	if done == p.Total {
		fmt.Fprintln(p.Out)
	}
}
