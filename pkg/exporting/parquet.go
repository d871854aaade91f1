package exporting

import (
	"fmt"
	"io"

	"github.com/parquet-go/parquet-go"
)

const ParquetBatchSize = 1000

func saveParquet[T any](path string, rows []T) error {
	return WriteFileAtomic(path, func(out io.Writer) error {
		writer := parquet.NewGenericWriter[T](out,
			parquet.Compression(&parquet.Snappy),
		)
		for start := 0; start < len(rows); start += ParquetBatchSize {
			end := min(start+ParquetBatchSize, len(rows))
			if _, err := writer.Write(rows[start:end]); err != nil {
				writer.Close()
				return fmt.Errorf("failed to write rows %d-%d: %w", start, end, err)
			}
		}
		if err := writer.Close(); err != nil {
			return fmt.Errorf("failed to close parquet writer: %w", err)
		}
		return nil
	})
}

func loadParquet[T any](path string) ([]T, error) {
	rows, err := parquet.ReadFile[T](path)
	if err != nil {
		return nil, fmt.Errorf("failed to read parquet file: %w", err)
	}
	return rows, nil
}
