// SPDX-FileCopyrightText: 2026 The Pion community <https://pion.ly>
// SPDX-License-Identifier: MIT

package trace

import (
	"bufio"
	"errors"
	"io"
)

// maxLineSize bounds a single trace line.
const maxLineSize = 64 * 1024

// ErrLineTooLong is returned by LineReader for a line exceeding the maximum
// line size. The line is consumed and reading can continue.
var ErrLineTooLong = errors.New("trace: line too long")

// LineReader reads a trace line by line.
type LineReader struct {
	r *bufio.Reader
}

// NewLineReader returns a LineReader over r.
func NewLineReader(r io.Reader) *LineReader {
	return &LineReader{r: bufio.NewReaderSize(r, maxLineSize)}
}

// ReadLine returns the next line without its line ending. It returns io.EOF
// once the input is exhausted, and ErrLineTooLong after skipping a line that
// does not fit the buffer.
func (l *LineReader) ReadLine() (string, error) {
	data, err := l.r.ReadSlice('\n')
	switch {
	case errors.Is(err, bufio.ErrBufferFull):
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = l.r.ReadSlice('\n')
		}
		if err != nil && !errors.Is(err, io.EOF) {
			return "", err
		}

		return "", ErrLineTooLong
	case errors.Is(err, io.EOF):
		if len(data) == 0 {
			return "", io.EOF
		}
	case err != nil:
		return "", err
	}

	return string(trimLineEnding(data)), nil
}

func trimLineEnding(b []byte) []byte {
	if n := len(b); n > 0 && b[n-1] == '\n' {
		b = b[:n-1]
	}
	if n := len(b); n > 0 && b[n-1] == '\r' {
		b = b[:n-1]
	}

	return b
}

// CountLines returns the number of lines in r. Overlong lines count as one
// line each.
func CountLines(r io.Reader) (int, error) {
	lines := NewLineReader(r)
	n := 0
	for {
		_, err := lines.ReadLine()
		switch {
		case errors.Is(err, io.EOF):
			return n, nil
		case err != nil && !errors.Is(err, ErrLineTooLong):
			return n, err
		}
		n++
	}
}
