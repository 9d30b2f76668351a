package geometry

import (
	"fmt"
	"math"
)

// DedupPrecision is the number of decimal places two coordinates must agree
// on to be merged.
const DedupPrecision = 6

var dedupScale = math.Pow10(DedupPrecision)

// DedupStats summarises a deduplication pass.
type DedupStats struct {
	Original     int
	Deduplicated int
}

// Reduction returns the removed share of vertices as a percentage.
func (s DedupStats) Reduction() float64 {
	if s.Original == 0 {
		return 0
	}
	return float64(s.Original-s.Deduplicated) / float64(s.Original) * 100
}

// String returns e.g. "6 -> 4 (33.3% reduction)".
func (s DedupStats) String() string {
	return fmt.Sprintf("%d -> %d (%.1f%% reduction)", s.Original, s.Deduplicated, s.Reduction())
}

type quantKey [3]int64

func quantize(v Vertex) quantKey {
	return quantKey{
		int64(math.Round(v[0] * dedupScale)),
		int64(math.Round(v[1] * dedupScale)),
		int64(math.Round(v[2] * dedupScale)),
	}
}

// Deduplicate merges vertices whose coordinates agree to DedupPrecision
// decimal places. The first vertex of each group is kept and every triangle
// index is remapped; triangle order is preserved.
func Deduplicate(m Mesh) (Mesh, DedupStats, error) {
	for i, v := range m.Vertices {
		if !v.Vec3().IsFinite() {
			return Mesh{}, DedupStats{}, fmt.Errorf("%w: vertex %d", ErrNonFinite, i)
		}
	}
	if err := checkIndices(m.Triangles, len(m.Vertices)); err != nil {
		return Mesh{}, DedupStats{}, err
	}

	seen := make(map[quantKey]int, len(m.Vertices))
	remap := make([]int, len(m.Vertices))
	vertices := make([]Vertex, 0, len(m.Vertices))

	for i, v := range m.Vertices {
		key := quantize(v)
		idx, ok := seen[key]
		if !ok {
			idx = len(vertices)
			seen[key] = idx
			vertices = append(vertices, v)
		}
		remap[i] = idx
	}

	triangles := make([]Triangle, len(m.Triangles))
	for i, t := range m.Triangles {
		triangles[i] = Triangle{remap[t[0]], remap[t[1]], remap[t[2]]}
	}

	stats := DedupStats{Original: len(m.Vertices), Deduplicated: len(vertices)}
	return Mesh{Vertices: vertices, Triangles: triangles}, stats, nil
}
