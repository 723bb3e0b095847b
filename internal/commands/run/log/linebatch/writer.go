package linebatch

import (
	"io"
	"strings"
	"sync"
)

var _ io.WriteCloser = (*Writer)(nil)

// Writer splits a step's output into complete lines and hands them to a
// sink in batches, one batch per Write call. A trailing partial line is
// held back until the next write or Close.
type Writer struct {
	mu      sync.Mutex
	sink    func(lines []string)
	partial strings.Builder
}

func NewWriter(sink func(lines []string)) *Writer {
	return &Writer{
		mu:   sync.Mutex{},
		sink: sink,
	}
}

func (w *Writer) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.partial.Write(p)

	data := w.partial.String()

	index := strings.LastIndexByte(data, '\n')
	if index == -1 {
		return len(p), nil
	}

	complete := data[:index]
	rest := data[index+1:]

	w.partial.Reset()
	w.partial.WriteString(rest)

	lines := strings.Split(complete, "\n")

	// strip \r for CRLF output
	for i := range lines {
		lines[i] = strings.TrimSuffix(lines[i], "\r")
	}

	w.sink(lines)

	return len(p), nil
}

// Close flushes the held-back partial line, if any.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.partial.Len() == 0 {
		return nil
	}

	line := strings.TrimSuffix(w.partial.String(), "\r")
	w.partial.Reset()

	w.sink([]string{line})

	return nil
}
