// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

// Package trace writes and parses the line oriented event trace of a link
// simulation run.
package trace

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/linksim"
)

// ErrClosed is returned by Emit after the writer was closed.
var ErrClosed = errors.New("trace: writer closed")

// Writer appends events to a trace, one line per event. Emit may be called
// from many goroutines; lines never interleave.
type Writer struct {
	mu     sync.Mutex
	out    io.Writer
	buf    *bufio.Writer
	count  uint64
	closed bool
}

// NewWriter creates a Writer appending to w. If w is an io.Closer it is
// closed by Close.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		out: w,
		buf: bufio.NewWriter(w),
	}
}

// Create creates the trace file at path, including missing parent
// directories, truncating any previous trace.
func Create(path string) (*Writer, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("trace: create directory %q: %w", dir, err)
		}
	}
	f, err := os.Create(path) //nolint:gosec // path is configured by the operator
	if err != nil {
		return nil, fmt.Errorf("trace: create %q: %w", path, err)
	}

	return NewWriter(f), nil
}

// Emit appends e to the trace.
func (w *Writer) Emit(e linksim.Event) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}
	if err := AppendLine(w.buf, e); err != nil {
		return fmt.Errorf("trace: write event: %w", err)
	}
	w.count++

	return nil
}

// Count returns the number of events emitted.
func (w *Writer) Count() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.count
}

// Flush writes buffered lines to the underlying writer.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrClosed
	}

	return w.buf.Flush()
}

// Close flushes the trace and closes the underlying writer. Calling Close
// more than once is a no-op.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	flushErr := w.buf.Flush()
	var closeErr error
	if c, ok := w.out.(io.Closer); ok {
		closeErr = c.Close()
	}

	return errors.Join(flushErr, closeErr)
}

// AppendLine writes the trace line of e, terminated by a newline.
func AppendLine(w io.Writer, e linksim.Event) error {
	_, err := fmt.Fprintf(w, "%s\n", e)

	return err
}
