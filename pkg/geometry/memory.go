package geometry

import "fmt"

// Representation names the in-memory layout of a mesh.
type Representation int

const (
	RepresentationTuples Representation = iota // []Vertex / []Triangle
	RepresentationFlat                         // []float32 / []uint32
)

// String returns a human-readable representation name.
func (r Representation) String() string {
	switch r {
	case RepresentationTuples:
		return "Tuples"
	case RepresentationFlat:
		return "Flat"
	default:
		return fmt.Sprintf("Unknown(%d)", int(r))
	}
}

// Byte costs used by EstimateMemory. Tuple lists are costed as boxed
// elements: an 8-byte number per component plus a fixed overhead per
// vertex or triangle.
const (
	FlatComponentBytes    = 4
	TupleComponentBytes   = 8
	TupleVertexOverhead   = 200
	TupleTriangleOverhead = 100
)

// MemoryEstimate reports the bytes held by one mesh representation and the
// bytes the flat representation would need.
type MemoryEstimate struct {
	Representation Representation
	VertexCount    int
	TriangleCount  int
	VertexBytes    int
	TriangleBytes  int
	Total          int
	Optimized      int
}

// Savings returns the share of Total that switching to the flat
// representation would save, as a percentage.
func (e MemoryEstimate) Savings() float64 {
	if e.Total == 0 {
		return 0
	}
	return float64(e.Total-e.Optimized) / float64(e.Total) * 100
}

// EstimateMemory accounts the memory of a mesh in its current representation.
func EstimateMemory(src Source) MemoryEstimate {
	var e MemoryEstimate
	switch s := src.(type) {
	case FlatMesh:
		e.Representation = RepresentationFlat
		e.VertexCount = s.VertexCount()
		e.TriangleCount = s.TriangleCount()
		e.VertexBytes = len(s.Positions) * FlatComponentBytes
		e.TriangleBytes = len(s.Indices) * FlatComponentBytes
	case *FlatMesh:
		return EstimateMemory(*s)
	case Mesh:
		e.Representation = RepresentationTuples
		e.VertexCount = len(s.Vertices)
		e.TriangleCount = len(s.Triangles)
		e.VertexBytes = e.VertexCount * (3*TupleComponentBytes + TupleVertexOverhead)
		e.TriangleBytes = e.TriangleCount * (3*TupleComponentBytes + TupleTriangleOverhead)
	case *Mesh:
		return EstimateMemory(*s)
	default:
		m, err := src.AsMesh()
		if err != nil {
			return e
		}
		return EstimateMemory(m)
	}
	e.Total = e.VertexBytes + e.TriangleBytes
	e.Optimized = (e.VertexCount + e.TriangleCount) * 3 * FlatComponentBytes
	return e
}
