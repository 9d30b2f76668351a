package geometry

import (
	"errors"
	"math"
	"testing"
)

// quad built from two triangles that each carry their own copies of the
// shared corners
func duplicatedQuad() Mesh {
	return Mesh{
		Vertices: []Vertex{
			{0, 0, 0}, {1, 0, 0}, {1, 1, 0},
			{0, 0, 0}, {1, 1, 0}, {0, 1, 0},
		},
		Triangles: []Triangle{{0, 1, 2}, {3, 4, 5}},
	}
}

func TestDeduplicate(t *testing.T) {
	out, stats, err := Deduplicate(duplicatedQuad())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(out.Vertices) != 4 {
		t.Errorf("expected 4 vertices, got %d", len(out.Vertices))
	}
	if len(out.Triangles) != 2 {
		t.Errorf("expected 2 triangles, got %d", len(out.Triangles))
	}
	if stats.Original != 6 || stats.Deduplicated != 4 {
		t.Errorf("unexpected stats: %+v", stats)
	}
	if out.Triangles[0] != (Triangle{0, 1, 2}) || out.Triangles[1] != (Triangle{0, 2, 3}) {
		t.Errorf("unexpected remap: %v", out.Triangles)
	}
	if got := stats.String(); got != "6 -> 4 (33.3% reduction)" {
		t.Errorf("String() = %q", got)
	}
}

func TestDeduplicateTolerance(t *testing.T) {
	m := Mesh{
		Vertices: []Vertex{
			{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
			{1 + 1e-8, 0, 0},  // merges with vertex 1
			{1 + 1e-4, 0, 0}, // stays distinct
		},
		Triangles: []Triangle{{0, 1, 2}, {0, 3, 2}, {0, 4, 2}},
	}
	out, _, err := Deduplicate(m)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if len(out.Vertices) != 4 {
		t.Fatalf("expected 4 vertices, got %d", len(out.Vertices))
	}
	if out.Triangles[1] != (Triangle{0, 1, 2}) {
		t.Errorf("near-duplicate not merged: %v", out.Triangles[1])
	}
	if out.Triangles[2] != (Triangle{0, 3, 2}) {
		t.Errorf("distinct vertex merged: %v", out.Triangles[2])
	}
}

func TestDeduplicateIdempotent(t *testing.T) {
	once, _, err := Deduplicate(duplicatedQuad())
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	twice, stats, err := Deduplicate(once)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.Reduction() != 0 {
		t.Errorf("expected 0%% reduction, got %.1f%%", stats.Reduction())
	}
	if len(twice.Vertices) != len(once.Vertices) {
		t.Errorf("vertex count changed: %d -> %d", len(once.Vertices), len(twice.Vertices))
	}
}

func TestDeduplicatePreservesTopology(t *testing.T) {
	in := cubeSoup()
	out, stats, err := Deduplicate(in)
	if err != nil {
		t.Fatalf("Deduplicate: %v", err)
	}
	if stats.Deduplicated != 8 {
		t.Errorf("expected 8 unique cube corners, got %d", stats.Deduplicated)
	}
	if len(out.Triangles) != len(in.Triangles) {
		t.Fatalf("triangle count changed")
	}
	for i, tri := range out.Triangles {
		for j := 0; j < 3; j++ {
			if tri[j] < 0 || tri[j] >= len(out.Vertices) {
				t.Fatalf("triangle %d index %d out of range", i, tri[j])
			}
			got := out.Vertices[tri[j]]
			want := in.Vertices[in.Triangles[i][j]]
			for axis := 0; axis < 3; axis++ {
				if math.Abs(got[axis]-want[axis]) > 1e-6 {
					t.Errorf("triangle %d corner %d: got %v, want %v", i, j, got, want)
				}
			}
		}
	}
}

func TestDeduplicateErrors(t *testing.T) {
	_, _, err := Deduplicate(Mesh{Vertices: []Vertex{{math.NaN(), 0, 0}}})
	if !errors.Is(err, ErrNonFinite) {
		t.Errorf("expected ErrNonFinite, got %v", err)
	}
	_, _, err = Deduplicate(Mesh{Vertices: []Vertex{{0, 0, 0}}, Triangles: []Triangle{{0, 0, 1}}})
	if !errors.Is(err, ErrIndexRange) {
		t.Errorf("expected ErrIndexRange, got %v", err)
	}
}

// cubeSoup returns a unit cube with three private vertices per triangle.
func cubeSoup() Mesh {
	corners := []Vertex{
		{0, 0, 0}, {1, 0, 0}, {1, 1, 0}, {0, 1, 0},
		{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1},
	}
	faces := []Triangle{
		{0, 2, 1}, {0, 3, 2},
		{4, 5, 6}, {4, 6, 7},
		{0, 1, 5}, {0, 5, 4},
		{1, 2, 6}, {1, 6, 5},
		{2, 3, 7}, {2, 7, 6},
		{3, 0, 4}, {3, 4, 7},
	}
	var m Mesh
	for _, f := range faces {
		base := len(m.Vertices)
		m.Vertices = append(m.Vertices, corners[f[0]], corners[f[1]], corners[f[2]])
		m.Triangles = append(m.Triangles, Triangle{base, base + 1, base + 2})
	}
	return m
}
