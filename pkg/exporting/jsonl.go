package exporting

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	DefaultBufferSize = 64 * 1024
	MaxLineSize       = 10 * 1024 * 1024
)

// JSONLWriter appends one JSON document per line. With sync enabled every
// Write reaches stable storage before it returns, so a reader tailing the
// file or a crash never loses a completed line.
type JSONLWriter struct {
	path   string
	file   *os.File
	writer *bufio.Writer
	sync   bool
	mu     sync.Mutex
}

// JSONLOption configures a JSONLWriter.
type JSONLOption func(*JSONLWriter)

// WithSync toggles the flush+fsync after every Write.
func WithSync(enabled bool) JSONLOption {
	return func(w *JSONLWriter) {
		w.sync = enabled
	}
}

// NewJSONLWriter truncates or creates path.
func NewJSONLWriter(path string, opts ...JSONLOption) (*JSONLWriter, error) {
	file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	w := &JSONLWriter{
		path:   path,
		file:   file,
		writer: bufio.NewWriterSize(file, DefaultBufferSize),
		sync:   true,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

func (w *JSONLWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	if _, err := w.writer.Write(data); err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if err := w.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	if w.sync {
		return w.flushLocked(true)
	}
	return nil
}

func (w *JSONLWriter) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.flushLocked(false)
}

func (w *JSONLWriter) flushLocked(fsync bool) error {
	if err := w.writer.Flush(); err != nil {
		return fmt.Errorf("failed to flush %s: %w", w.path, err)
	}
	if fsync {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("failed to sync %s: %w", w.path, err)
		}
	}
	return nil
}

func (w *JSONLWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.flushLocked(true)
	if cerr := w.file.Close(); err == nil {
		err = cerr
	}
	w.file = nil
	return err
}

func (w *JSONLWriter) Path() string {
	return w.path
}

// DecodeJSONL parses one T per non-empty line. A malformed line is an error
// carrying its line number; the log is never silently repaired.
func DecodeJSONL[T any](r io.Reader) ([]T, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, DefaultBufferSize), MaxLineSize)

	var rows []T
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var row T
		if err := json.Unmarshal(line, &row); err != nil {
			return rows, fmt.Errorf("line %d: %w", lineNum, err)
		}
		rows = append(rows, row)
	}
	if err := scanner.Err(); err != nil {
		return rows, fmt.Errorf("scanner error: %w", err)
	}
	return rows, nil
}

// ReadJSONL loads every row of a JSONL file.
func ReadJSONL[T any](path string) ([]T, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()
	rows, err := DecodeJSONL[T](file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rows, nil
}

func saveJSONL[T any](path string, rows []T) error {
	return WriteFileAtomic(path, func(out io.Writer) error {
		enc := json.NewEncoder(out)
		for i, r := range rows {
			if err := enc.Encode(r); err != nil {
				return fmt.Errorf("failed to write record %d: %w", i, err)
			}
		}
		return nil
	})
}
