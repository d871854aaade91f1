// Package exporting persists watcher records and derived analysis rows.
package exporting

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Format names.
const (
	FormatJSONL   = "jsonl"
	FormatParquet = "parquet"
	FormatCSV     = "csv"
	FormatTSV     = "tsv"
)

// Registry management
var (
	registry = map[string][]string{
		FormatJSONL:   {".jsonl", ".json", ".log"},
		FormatParquet: {".parquet"},
		FormatCSV:     {".csv"},
		FormatTSV:     {".tsv"},
	}
	extRegistry = func() map[string]string {
		m := make(map[string]string)
		for name, exts := range registry {
			for _, ext := range exts {
				m[ext] = name
			}
		}
		return m
	}()
)

// GetByExtension returns a format name by file extension.
func GetByExtension(ext string) (string, bool) {
	ext = strings.ToLower(ext)
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	f, ok := extRegistry[ext]
	return f, ok
}

// GetByPath returns a format name based on the file's extension.
func GetByPath(path string) (string, bool) {
	return GetByExtension(filepath.Ext(path))
}

// GetExtension returns the canonical file extension for a format name.
func GetExtension(format string) string {
	switch strings.ToLower(format) {
	case FormatParquet:
		return ".parquet"
	case FormatCSV:
		return ".csv"
	case FormatTSV:
		return ".tsv"
	default:
		return ".jsonl"
	}
}

// SaveRows writes rows to path in the format implied by its extension.
// The file only appears once every row is written.
func SaveRows[T any](path string, rows []T) error {
	format, ok := GetByPath(path)
	if !ok {
		return fmt.Errorf("unsupported format for file: %s", path)
	}
	switch format {
	case FormatParquet:
		return saveParquet(path, rows)
	case FormatCSV:
		return saveDelimited(path, rows, ',')
	case FormatTSV:
		return saveDelimited(path, rows, '\t')
	default:
		return saveJSONL(path, rows)
	}
}

// LoadRows reads every row of path in the format implied by its extension.
func LoadRows[T any](path string) ([]T, error) {
	format, ok := GetByPath(path)
	if !ok {
		return nil, fmt.Errorf("unsupported format for file: %s", path)
	}
	switch format {
	case FormatParquet:
		return loadParquet[T](path)
	case FormatCSV:
		return loadDelimited[T](path, ',')
	case FormatTSV:
		return loadDelimited[T](path, '\t')
	default:
		return ReadJSONL[T](path)
	}
}
