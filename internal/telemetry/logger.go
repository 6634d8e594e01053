package telemetry

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
)

// WriteError marks a log file I/O failure; the caller decides whether that
// ends the phase.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing telemetry log %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Logger appends telemetry samples to one phase CSV file. Each phase run
// owns exactly one Logger for its whole lifetime.
type Logger struct {
	path   string
	file   *os.File
	buf    *bufio.Writer
	csv    *csv.Writer
	rows   int
	closed bool
}

// Open creates the phase log and writes the header row. It refuses to
// overwrite an existing file; callers generate fresh, non-colliding paths.
func Open(path string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, &WriteError{Path: path, Err: err}
	}
	buf := bufio.NewWriter(f)
	w := csv.NewWriter(buf)
	if err := w.Write(Columns); err != nil {
		f.Close()
		return nil, &WriteError{Path: path, Err: err}
	}
	return &Logger{path: path, file: f, buf: buf, csv: w}, nil
}

func (l *Logger) Path() string { return l.path }

// Rows reports the number of samples appended so far.
func (l *Logger) Rows() int { return l.rows }

func (l *Logger) Append(s Sample) error {
	if l.closed {
		return &WriteError{Path: l.path, Err: os.ErrClosed}
	}
	if err := l.csv.Write(s.record()); err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	l.csv.Flush()
	if err := l.csv.Error(); err != nil {
		return &WriteError{Path: l.path, Err: err}
	}
	l.rows++
	return nil
}

// Close flushes and releases the file. Closing twice is a no-op.
func (l *Logger) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	l.csv.Flush()
	flushErr := l.csv.Error()
	if err := l.buf.Flush(); flushErr == nil {
		flushErr = err
	}
	if err := l.file.Close(); flushErr == nil {
		flushErr = err
	}
	if flushErr != nil {
		return &WriteError{Path: l.path, Err: flushErr}
	}
	return nil
}
