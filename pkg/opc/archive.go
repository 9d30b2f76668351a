// Package opc reads and writes Open Packaging Conventions containers: the
// ZIP archive, its [Content_Types].xml and its relationship parts.
package opc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"
)

// Archive errors.
var (
	ErrPartNotFound = errors.New("part not found")
	ErrNotPackage   = errors.New("not an OPC package: [Content_Types].xml missing")
)

// Archive represents an opened package.
type Archive struct {
	reader   *zip.Reader
	closer   io.Closer
	fileList map[string]*zip.File
	order    []string
}

// OpenBytes opens a package held in memory.
func OpenBytes(data []byte) (*Archive, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("reading zip: %w", err)
	}
	return newArchive(r, nil)
}

// Open opens a package file for reading.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	archive, err := newArchive(&rc.Reader, rc)
	if err != nil {
		rc.Close()
		return nil, err
	}
	return archive, nil
}

func newArchive(r *zip.Reader, closer io.Closer) (*Archive, error) {
	archive := &Archive{
		reader:   r,
		closer:   closer,
		fileList: make(map[string]*zip.File, len(r.File)),
	}
	for _, f := range r.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name := normalizePath(f.Name)
		archive.fileList[name] = f
		archive.order = append(archive.order, name)
	}
	if !archive.Contains(ContentTypesPath) {
		return nil, ErrNotPackage
	}
	return archive, nil
}

// Close closes the archive.
func (a *Archive) Close() error {
	if a.closer != nil {
		return a.closer.Close()
	}
	return nil
}

// List returns all part names in archive order.
func (a *Archive) List() []string {
	result := make([]string, len(a.order))
	copy(result, a.order)
	return result
}

// Contains checks if a part exists. Part names are compared
// case-insensitively, with or without a leading slash.
func (a *Archive) Contains(path string) bool {
	_, ok := a.fileList[normalizePath(path)]
	return ok
}

// Size returns the uncompressed size of a part.
func (a *Archive) Size(path string) (uint64, error) {
	f, ok := a.fileList[normalizePath(path)]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrPartNotFound, path)
	}
	return f.UncompressedSize64, nil
}

// Read reads a part from the archive.
func (a *Archive) Read(path string) ([]byte, error) {
	f, ok := a.fileList[normalizePath(path)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPartNotFound, path)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func normalizePath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	path = strings.TrimPrefix(path, "/")
	return strings.ToLower(path)
}
