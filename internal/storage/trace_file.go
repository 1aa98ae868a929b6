package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
)

// Note: a trace file has a single writer (the sync controller goroutine).
// Readers open their own handle and only ever read; nothing here coordinates
// a concurrent reader with the writer beyond what the OS gives for appends.

// OpenAppend opens the file at path for appending, creating it if needed.
func OpenAppend(path string) (*os.File, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return f, nil
}

// Write appends bytes to the given open file handle. Caller owns file lifecycle.
func Write(file *os.File, data []byte) error {
	if _, err := file.Write(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Truncate cuts the file down to size bytes. Appends continue from the new end.
func Truncate(file *os.File, size int64) error {
	if err := file.Truncate(size); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}
	return nil
}

// ReadAt reads up to length bytes starting at offset. A short slice is
// returned when the file ends first.
func ReadAt(file *os.File, offset int64, length int) ([]byte, error) {
	buf := make([]byte, length)
	n, err := file.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read: %w", err)
	}
	return buf[:n], nil
}

// Size returns the current size of the file in bytes.
func Size(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat: %w", err)
	}
	return info.Size(), nil
}
