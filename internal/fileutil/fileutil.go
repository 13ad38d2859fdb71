package fileutil

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/pierrec/lz4/v4"
)

type decompressingReader struct {
	io.Reader
	file *os.File
}

func (r *decompressingReader) Close() error {
	return r.file.Close()
}

// Open opens a trace or dump source for reading, transparently decompressing
// lz4- and gzip-compressed files by extension.
func Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("cannot open %q: %w", path, err)
	}
	switch filepath.Ext(path) {
	case ".lz4":
		return &decompressingReader{Reader: lz4.NewReader(f), file: f}, nil
	case ".gz":
		zr, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("cannot open %q: %w", path, err)
		}
		return &decompressingReader{Reader: zr, file: f}, nil
	default:
		return f, nil
	}
}

// Create opens the report destination for writing, truncating any previous
// content.
func Create(path string) (io.WriteCloser, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("cannot create %q: %w", path, err)
	}
	return f, nil
}
