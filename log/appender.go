package log

import (
	"io"
	"os"
	"sync"
)

// LogAppender receives fully formatted lines from a Channel.
// Each call to Write carries exactly one line including its trailing newline.
type LogAppender interface {
	Write(p []byte) (int, error)
	Refresh()
}

// ConsoleAppender writes lines to an io.Writer, stdout by default.
// Writes are serialized so concurrent emitters interleave only at line granularity.
type ConsoleAppender struct {
	mu sync.Mutex
	w  io.Writer
}

// NewConsoleAppender creates an appender on os.Stdout.
func NewConsoleAppender() *ConsoleAppender {
	return NewWriterAppender(os.Stdout)
}

// NewWriterAppender creates an appender on an arbitrary writer.
// A nil writer falls back to os.Stdout.
func NewWriterAppender(w io.Writer) *ConsoleAppender {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleAppender{w: w}
}

// Write hands the line to the underlying writer in a single call.
func (x *ConsoleAppender) Write(p []byte) (int, error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.w.Write(p)
}

// Refresh flushes the writer when it supports syncing (files, terminals).
func (x *ConsoleAppender) Refresh() {
	x.mu.Lock()
	defer x.mu.Unlock()
	if s, ok := x.w.(interface{ Sync() error }); ok {
		_ = s.Sync()
	}
}
