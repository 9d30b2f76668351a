package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Faultbox/threemf/pkg/encoding"
	"github.com/Faultbox/threemf/pkg/geometry"
)

// STL format errors.
var (
	ErrTruncatedSTLData = errors.New("truncated STL data")
	ErrInvalidSTLSyntax = errors.New("invalid ASCII STL")
	ErrEmptySTL         = errors.New("STL contains no facets")
)

const (
	stlHeaderSize = 80
	stlFacetSize  = 50
)

// STLFacet is one triangle. Vertices are in file order; the normal is kept
// as read and not used for winding.
type STLFacet struct {
	Normal    [3]float32
	Vertices  [3][3]float32
	Attribute uint16
}

// STL represents a parsed STL file.
type STL struct {
	// Name is the solid name of an ASCII file or the trimmed header of a
	// binary one.
	Name   string
	Binary bool
	Facets []STLFacet
}

// Mesh returns the facets as an unindexed triangle soup: three new
// vertices per facet. Deduplicate it to recover shared vertices.
func (s *STL) Mesh() geometry.Mesh {
	mesh := geometry.Mesh{
		Vertices:  make([]geometry.Vertex, 0, len(s.Facets)*3),
		Triangles: make([]geometry.Triangle, 0, len(s.Facets)),
	}
	for _, f := range s.Facets {
		base := len(mesh.Vertices)
		for _, v := range f.Vertices {
			mesh.Vertices = append(mesh.Vertices, geometry.Vertex{float64(v[0]), float64(v[1]), float64(v[2])})
		}
		mesh.Triangles = append(mesh.Triangles, geometry.Triangle{base, base + 1, base + 2})
	}
	return mesh
}

// ParseSTL parses a binary or ASCII STL file from raw bytes.
func ParseSTL(data []byte) (*STL, error) {
	var (
		stl *STL
		err error
	)
	if isASCIISTL(data) {
		stl, err = parseASCIISTL(data)
	} else {
		stl, err = parseBinarySTL(data)
	}
	if err != nil {
		return nil, err
	}
	if len(stl.Facets) == 0 {
		return nil, ErrEmptySTL
	}
	return stl, nil
}

// ParseSTLFile parses an STL file from disk.
func ParseSTLFile(path string) (*STL, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading STL file: %w", err)
	}
	return ParseSTL(data)
}

// isASCIISTL reports whether data looks like ASCII STL. Binary headers may
// also start with "solid", so a binary file whose size matches its facet
// count wins.
func isASCIISTL(data []byte) bool {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if !bytes.HasPrefix(trimmed, []byte("solid")) {
		return false
	}
	if len(data) >= stlHeaderSize+4 {
		count := binary.LittleEndian.Uint32(data[stlHeaderSize:])
		if int64(len(data)) == stlHeaderSize+4+int64(count)*stlFacetSize {
			return false
		}
	}
	return bytes.Contains(data, []byte("facet")) || bytes.Contains(data, []byte("endsolid"))
}

func parseBinarySTL(data []byte) (*STL, error) {
	if len(data) < stlHeaderSize+4 {
		return nil, ErrTruncatedSTLData
	}
	r := bytes.NewReader(data[stlHeaderSize:])
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("%w: reading facet count", ErrTruncatedSTLData)
	}
	if int64(r.Len()) < int64(count)*stlFacetSize {
		return nil, fmt.Errorf("%w: %d facets need %d bytes, have %d", ErrTruncatedSTLData, count, int64(count)*stlFacetSize, r.Len())
	}

	stl := &STL{
		Name:   strings.TrimSpace(encoding.FixedStringToUTF8(data[:stlHeaderSize])),
		Binary: true,
		Facets: make([]STLFacet, count),
	}
	for i := range stl.Facets {
		if err := binary.Read(r, binary.LittleEndian, &stl.Facets[i]); err != nil {
			return nil, fmt.Errorf("%w: facet %d", ErrTruncatedSTLData, i)
		}
	}
	return stl, nil
}

// stlTokens walks the whitespace-separated words of an ASCII STL file.
type stlTokens struct {
	words []string
	pos   int
}

func (t *stlTokens) next() (string, bool) {
	if t.pos >= len(t.words) {
		return "", false
	}
	w := t.words[t.pos]
	t.pos++
	return w, true
}

func (t *stlTokens) expect(keyword string) error {
	w, ok := t.next()
	if !ok {
		return fmt.Errorf("%w: expected %q, got end of file", ErrInvalidSTLSyntax, keyword)
	}
	if !strings.EqualFold(w, keyword) {
		return fmt.Errorf("%w: expected %q, got %q", ErrInvalidSTLSyntax, keyword, w)
	}
	return nil
}

func (t *stlTokens) vector() ([3]float32, error) {
	var v [3]float32
	for i := range v {
		w, ok := t.next()
		if !ok {
			return v, fmt.Errorf("%w: expected number, got end of file", ErrInvalidSTLSyntax)
		}
		f, err := strconv.ParseFloat(w, 32)
		if err != nil {
			return v, fmt.Errorf("%w: bad number %q", ErrInvalidSTLSyntax, w)
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseASCIISTL(data []byte) (*STL, error) {
	data = bytes.TrimLeft(data, " \t\r\n")
	lines := strings.Split(string(data), "\n")
	first := strings.TrimSpace(lines[0])
	name := encoding.ToUTF8([]byte(strings.TrimSpace(strings.TrimPrefix(first, "solid"))))

	t := &stlTokens{words: strings.Fields(strings.Join(lines[1:], "\n"))}
	stl := &STL{Name: name}
	for {
		w, ok := t.next()
		if !ok {
			return nil, fmt.Errorf("%w: missing endsolid", ErrInvalidSTLSyntax)
		}
		switch strings.ToLower(w) {
		case "endsolid":
			return stl, nil
		case "facet":
			facet, err := parseASCIIFacet(t)
			if err != nil {
				return nil, fmt.Errorf("facet %d: %w", len(stl.Facets), err)
			}
			stl.Facets = append(stl.Facets, facet)
		default:
			return nil, fmt.Errorf("%w: unexpected %q", ErrInvalidSTLSyntax, w)
		}
	}
}

func parseASCIIFacet(t *stlTokens) (STLFacet, error) {
	var f STLFacet
	var err error
	if err = t.expect("normal"); err != nil {
		return f, err
	}
	if f.Normal, err = t.vector(); err != nil {
		return f, err
	}
	if err = t.expect("outer"); err != nil {
		return f, err
	}
	if err = t.expect("loop"); err != nil {
		return f, err
	}
	for i := range f.Vertices {
		if err = t.expect("vertex"); err != nil {
			return f, err
		}
		if f.Vertices[i], err = t.vector(); err != nil {
			return f, err
		}
	}
	if err = t.expect("endloop"); err != nil {
		return f, err
	}
	if err = t.expect("endfacet"); err != nil {
		return f, err
	}
	return f, nil
}
