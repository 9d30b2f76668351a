package formats

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Faultbox/threemf/pkg/geometry"
)

// squareFacets is a unit square in the XY plane split along its diagonal.
var squareFacets = []STLFacet{
	{Normal: [3]float32{0, 0, 1}, Vertices: [3][3]float32{{0, 0, 0}, {1, 0, 0}, {1, 1, 0}}},
	{Normal: [3]float32{0, 0, 1}, Vertices: [3][3]float32{{0, 0, 0}, {1, 1, 0}, {0, 1, 0}}},
}

// createTestSTL creates a binary STL file for testing.
func createTestSTL(header string, facets []STLFacet) []byte {
	buf := new(bytes.Buffer)

	h := make([]byte, stlHeaderSize)
	copy(h, header)
	buf.Write(h)

	binary.Write(buf, binary.LittleEndian, uint32(len(facets)))
	for _, f := range facets {
		binary.Write(buf, binary.LittleEndian, f)
	}

	return buf.Bytes()
}

const asciiSquare = `solid square
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 1 1 0
    endloop
  endfacet
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 1 0
      vertex 0 1 0
    endloop
  endfacet
endsolid square
`

func TestParseSTL_Binary(t *testing.T) {
	data := createTestSTL("exported by test", squareFacets)
	if len(data) != 84+2*50 {
		t.Fatalf("fixture size = %d", len(data))
	}

	stl, err := ParseSTL(data)
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}

	if !stl.Binary {
		t.Error("expected binary STL")
	}
	if stl.Name != "exported by test" {
		t.Errorf("expected name %q, got %q", "exported by test", stl.Name)
	}
	if len(stl.Facets) != 2 {
		t.Fatalf("expected 2 facets, got %d", len(stl.Facets))
	}
	if stl.Facets[1].Vertices[2] != [3]float32{0, 1, 0} {
		t.Errorf("unexpected vertex %v", stl.Facets[1].Vertices[2])
	}
}

func TestParseSTL_BinaryHeaderStartingWithSolid(t *testing.T) {
	data := createTestSTL("solid but actually binary", squareFacets)

	stl, err := ParseSTL(data)
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}
	if !stl.Binary {
		t.Error("expected binary STL when the size matches the facet count")
	}
	if len(stl.Facets) != 2 {
		t.Errorf("expected 2 facets, got %d", len(stl.Facets))
	}
}

func TestParseSTL_ASCII(t *testing.T) {
	stl, err := ParseSTL([]byte(asciiSquare))
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}

	if stl.Binary {
		t.Error("expected ASCII STL")
	}
	if stl.Name != "square" {
		t.Errorf("expected name square, got %q", stl.Name)
	}
	if len(stl.Facets) != 2 {
		t.Fatalf("expected 2 facets, got %d", len(stl.Facets))
	}
	for i := range squareFacets {
		if stl.Facets[i].Vertices != squareFacets[i].Vertices {
			t.Errorf("facet %d: got %v, want %v", i, stl.Facets[i].Vertices, squareFacets[i].Vertices)
		}
	}
}

func TestParseSTL_ASCIILeadingWhitespace(t *testing.T) {
	for _, prefix := range []string{"\n", "\r\n\r\n", "  \t"} {
		stl, err := ParseSTL([]byte(prefix + asciiSquare))
		if err != nil {
			t.Fatalf("prefix %q: ParseSTL failed: %v", prefix, err)
		}
		if stl.Name != "square" {
			t.Errorf("prefix %q: expected name square, got %q", prefix, stl.Name)
		}
		if len(stl.Facets) != 2 {
			t.Errorf("prefix %q: expected 2 facets, got %d", prefix, len(stl.Facets))
		}
	}
}

func TestParseSTL_ASCIIScientificNotation(t *testing.T) {
	src := "solid\nfacet normal 0 0 1\nouter loop\nvertex 1.5e+01 0 0\nvertex 0 -2.5E-1 0\nvertex 0 0 1\nendloop\nendfacet\nendsolid\n"

	stl, err := ParseSTL([]byte(src))
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}
	if stl.Facets[0].Vertices[0][0] != 15 {
		t.Errorf("expected 15, got %v", stl.Facets[0].Vertices[0][0])
	}
	if stl.Facets[0].Vertices[1][1] != -0.25 {
		t.Errorf("expected -0.25, got %v", stl.Facets[0].Vertices[1][1])
	}
}

func TestParseSTL_Errors(t *testing.T) {
	truncated := createTestSTL("x", squareFacets)
	truncated = truncated[:len(truncated)-10]

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"too short", []byte("tiny"), ErrTruncatedSTLData},
		{"missing facet bytes", truncated, ErrTruncatedSTLData},
		{"no facets", createTestSTL("x", nil), ErrEmptySTL},
		{"ascii empty solid", []byte("solid empty\nendsolid empty\n"), ErrEmptySTL},
		{"ascii missing endsolid", []byte(strings.TrimSuffix(asciiSquare, "endsolid square\n")), ErrInvalidSTLSyntax},
		{"ascii bad number", []byte(strings.Replace(asciiSquare, "vertex 1 0 0", "vertex 1 zero 0", 1)), ErrInvalidSTLSyntax},
		{"ascii missing loop", []byte(strings.Replace(asciiSquare, "outer loop", "outer", 1)), ErrInvalidSTLSyntax},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseSTL(tt.data)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestSTL_Mesh(t *testing.T) {
	stl, err := ParseSTL(createTestSTL("", squareFacets))
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}

	mesh := stl.Mesh()
	if len(mesh.Vertices) != 6 || len(mesh.Triangles) != 2 {
		t.Fatalf("expected 6 vertices and 2 triangles, got %d and %d", len(mesh.Vertices), len(mesh.Triangles))
	}
	if mesh.Triangles[1] != (geometry.Triangle{3, 4, 5}) {
		t.Errorf("unexpected triangle %v", mesh.Triangles[1])
	}
	if err := mesh.Validate(); err != nil {
		t.Errorf("mesh should validate: %v", err)
	}

	deduped, stats, err := geometry.Deduplicate(mesh)
	if err != nil {
		t.Fatalf("Deduplicate failed: %v", err)
	}
	if len(deduped.Vertices) != 4 {
		t.Errorf("expected 4 shared vertices, got %d (%s)", len(deduped.Vertices), stats)
	}
}

func TestParseSTLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "square.stl")
	if err := os.WriteFile(path, []byte(asciiSquare), 0o644); err != nil {
		t.Fatal(err)
	}

	stl, err := ParseSTLFile(path)
	if err != nil {
		t.Fatalf("ParseSTLFile failed: %v", err)
	}
	if len(stl.Facets) != 2 {
		t.Errorf("expected 2 facets, got %d", len(stl.Facets))
	}

	if _, err := ParseSTLFile(filepath.Join(t.TempDir(), "missing.stl")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestParseSTL_LegacyHeaderEncoding(t *testing.T) {
	data := createTestSTL("pi\xe8ce", squareFacets)

	stl, err := ParseSTL(data)
	if err != nil {
		t.Fatalf("ParseSTL failed: %v", err)
	}
	if stl.Name != "pièce" {
		t.Errorf("expected Windows-1252 header decoded to %q, got %q", "pièce", stl.Name)
	}
}
