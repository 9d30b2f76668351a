// Package geometry converts between mesh representations and provides the
// ingestion helpers used before meshes enter a 3MF model: vertex
// deduplication, geometry fingerprinting and memory accounting.
package geometry

import (
	"errors"
	"fmt"
	"math"

	m3 "github.com/Faultbox/threemf/pkg/math"
)

// Geometry errors.
var (
	ErrFlatLength    = errors.New("flat buffer length is not a multiple of 3")
	ErrIndexRange    = errors.New("triangle index out of range")
	ErrNonFinite     = errors.New("vertex coordinates must be finite numbers")
	ErrEmptyVertices = errors.New("vertices must not be empty")
	ErrEmptyTriangle = errors.New("triangles must not be empty")
)

// Vertex is a position as an x, y, z triple.
type Vertex [3]float64

// Vec3 returns the vertex as a math vector.
func (v Vertex) Vec3() m3.Vec3 {
	return m3.V3(v)
}

// Triangle holds three vertex indices.
type Triangle [3]int

// Reversed returns the triangle with opposite winding.
func (t Triangle) Reversed() Triangle {
	return Triangle{t[0], t[2], t[1]}
}

// Source is any mesh representation accepted by optimized ingestion.
type Source interface {
	AsMesh() (Mesh, error)
}

// Mesh is the tuple-list representation.
type Mesh struct {
	Vertices  []Vertex
	Triangles []Triangle
}

// AsMesh returns the mesh unchanged.
func (m Mesh) AsMesh() (Mesh, error) {
	return m, nil
}

// Clone returns a copy that shares no backing arrays with m.
func (m Mesh) Clone() Mesh {
	return Mesh{
		Vertices:  append([]Vertex(nil), m.Vertices...),
		Triangles: append([]Triangle(nil), m.Triangles...),
	}
}

// Flat converts the mesh to the flat-buffer representation. Positions are
// rounded to 32-bit floats.
func (m Mesh) Flat() (FlatMesh, error) {
	indices, err := FlattenTriangles(m.Triangles)
	if err != nil {
		return FlatMesh{}, err
	}
	return FlatMesh{Positions: FlattenVertices(m.Vertices), Indices: indices}, nil
}

// Validate checks that the mesh is non-empty, that every coordinate is
// finite and that every index addresses an existing vertex.
func (m Mesh) Validate() error {
	if len(m.Vertices) == 0 {
		return ErrEmptyVertices
	}
	if len(m.Triangles) == 0 {
		return ErrEmptyTriangle
	}
	for i, v := range m.Vertices {
		if !v.Vec3().IsFinite() {
			return fmt.Errorf("%w: vertex %d", ErrNonFinite, i)
		}
	}
	return checkIndices(m.Triangles, len(m.Vertices))
}

// FlatMesh is the typed-buffer representation: three float32 per vertex and
// three uint32 per triangle.
type FlatMesh struct {
	Positions []float32
	Indices   []uint32
}

// AsMesh converts the buffers to tuple lists.
func (f FlatMesh) AsMesh() (Mesh, error) {
	verts, err := VerticesFromFlat(f.Positions)
	if err != nil {
		return Mesh{}, err
	}
	tris, err := TrianglesFromFlat(f.Indices)
	if err != nil {
		return Mesh{}, err
	}
	return Mesh{Vertices: verts, Triangles: tris}, nil
}

// VertexCount returns the number of vertices in the buffer.
func (f FlatMesh) VertexCount() int { return len(f.Positions) / 3 }

// TriangleCount returns the number of triangles in the buffer.
func (f FlatMesh) TriangleCount() int { return len(f.Indices) / 3 }

// FlattenVertices packs vertices into a float32 buffer.
func FlattenVertices(vertices []Vertex) []float32 {
	flat := make([]float32, len(vertices)*3)
	for i, v := range vertices {
		flat[i*3] = float32(v[0])
		flat[i*3+1] = float32(v[1])
		flat[i*3+2] = float32(v[2])
	}
	return flat
}

// VerticesFromFlat unpacks a float32 buffer.
func VerticesFromFlat(flat []float32) ([]Vertex, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d positions", ErrFlatLength, len(flat))
	}
	vertices := make([]Vertex, len(flat)/3)
	for i := range vertices {
		vertices[i] = Vertex{float64(flat[i*3]), float64(flat[i*3+1]), float64(flat[i*3+2])}
	}
	return vertices, nil
}

// FlattenTriangles packs triangle indices into a uint32 buffer.
func FlattenTriangles(triangles []Triangle) ([]uint32, error) {
	flat := make([]uint32, len(triangles)*3)
	for i, t := range triangles {
		for j, idx := range t {
			if idx < 0 || int64(idx) > math.MaxUint32 {
				return nil, fmt.Errorf("%w: triangle %d has index %d", ErrIndexRange, i, idx)
			}
			flat[i*3+j] = uint32(idx)
		}
	}
	return flat, nil
}

// TrianglesFromFlat unpacks a uint32 index buffer.
func TrianglesFromFlat(flat []uint32) ([]Triangle, error) {
	if len(flat)%3 != 0 {
		return nil, fmt.Errorf("%w: %d indices", ErrFlatLength, len(flat))
	}
	triangles := make([]Triangle, len(flat)/3)
	for i := range triangles {
		triangles[i] = Triangle{int(flat[i*3]), int(flat[i*3+1]), int(flat[i*3+2])}
	}
	return triangles, nil
}

// Bounds returns the per-axis minimum and maximum of the vertices. An empty
// slice yields +Inf minimums and -Inf maximums.
func Bounds(vertices []Vertex) (min, max Vertex) {
	min = Vertex{math.Inf(1), math.Inf(1), math.Inf(1)}
	max = Vertex{math.Inf(-1), math.Inf(-1), math.Inf(-1)}
	for _, v := range vertices {
		for axis := 0; axis < 3; axis++ {
			if v[axis] < min[axis] {
				min[axis] = v[axis]
			}
			if v[axis] > max[axis] {
				max[axis] = v[axis]
			}
		}
	}
	return min, max
}

func checkIndices(triangles []Triangle, vertexCount int) error {
	for i, t := range triangles {
		for _, idx := range t {
			if idx < 0 || idx >= vertexCount {
				return fmt.Errorf("%w: %d (triangle %d)", ErrIndexRange, idx, i)
			}
		}
	}
	return nil
}
