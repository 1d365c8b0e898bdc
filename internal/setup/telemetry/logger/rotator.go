package logger

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Rotator is an io.Writer for a log file that keeps the file bounded to
// roughly maxLines lines. Once twice the limit has been written, the file is
// rewritten in place with only the newest maxLines lines.
type Rotator struct {
	mu       sync.Mutex
	file     *os.File
	path     string
	maxLines int
	tail     [][]byte
	written  int
}

// NewRotator opens (or creates) the log file at path.
func NewRotator(path string, maxLines int) (*Rotator, error) {
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	return &Rotator{
		file:     file,
		path:     path,
		maxLines: max(maxLines, 1),
	}, nil
}

// Write implements io.Writer.
func (r *Rotator) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	n, err := r.file.Write(p)
	if err != nil {
		return n, err
	}

	for line := range bytes.SplitSeq(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(line) == 0 {
			continue
		}

		r.tail = append(r.tail, bytes.Clone(line))
		if len(r.tail) > r.maxLines {
			r.tail = r.tail[len(r.tail)-r.maxLines:]
		}

		r.written++
	}

	if r.written >= r.maxLines*2 {
		if err := r.rotate(); err != nil {
			return n, fmt.Errorf("failed to rotate log file: %w", err)
		}

		r.written = len(r.tail)
	}

	return n, nil
}

// Sync flushes the underlying file.
func (r *Rotator) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Sync()
}

// Close closes the underlying file.
func (r *Rotator) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.file.Close()
}

// rotate replaces the file content with the buffered tail.
func (r *Rotator) rotate() error {
	temp, err := os.CreateTemp(filepath.Dir(r.path), "temp-log-")
	if err != nil {
		return err
	}

	content := append(bytes.Join(r.tail, []byte("\n")), '\n')
	if _, err := temp.Write(content); err != nil {
		temp.Close()
		os.Remove(temp.Name())

		return err
	}

	if err := temp.Close(); err != nil {
		os.Remove(temp.Name())
		return err
	}

	r.file.Close()

	if err := os.Rename(temp.Name(), r.path); err != nil {
		return err
	}

	file, err := os.OpenFile(r.path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}

	r.file = file

	return nil
}

var _ io.WriteCloser = (*Rotator)(nil)
