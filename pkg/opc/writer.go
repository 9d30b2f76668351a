package opc

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/zip"
)

// entryTime is stamped on every entry so identical input produces identical
// archives.
var entryTime = time.Date(1980, time.January, 1, 0, 0, 0, 0, time.UTC)

// Writer streams parts into a ZIP container.
type Writer struct {
	zw    *zip.Writer
	names map[string]bool
}

// NewWriter returns a Writer compressing with the given deflate level
// (flate.NoCompression through flate.BestCompression, or
// flate.DefaultCompression).
func NewWriter(w io.Writer, level int) (*Writer, error) {
	if level < flate.HuffmanOnly || level > flate.BestCompression {
		return nil, fmt.Errorf("invalid compression level %d", level)
	}
	zw := zip.NewWriter(w)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, level)
	})
	return &Writer{zw: zw, names: make(map[string]bool)}, nil
}

// AddPart writes one part. The name may carry a leading slash; it is
// stored without one. Writing the same part twice is an error.
func (w *Writer) AddPart(name string, data []byte) error {
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return fmt.Errorf("empty part name")
	}
	key := normalizePath(name)
	if w.names[key] {
		return fmt.Errorf("duplicate part %s", name)
	}
	w.names[key] = true

	fw, err := w.zw.CreateHeader(&zip.FileHeader{
		Name:     name,
		Method:   zip.Deflate,
		Modified: entryTime,
	})
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if _, err := fw.Write(data); err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Close finishes the archive. It does not close the underlying writer.
func (w *Writer) Close() error {
	return w.zw.Close()
}
