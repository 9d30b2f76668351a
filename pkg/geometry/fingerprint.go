package geometry

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/cespare/xxhash/v2"
)

// Fingerprint derives a pooling key from vertex and triangle counts, the
// bounding box and the sum of all coordinates, each rounded to three
// decimals.
//
// Identical input always yields the same key, but the key is only a
// probabilistic equality signal: two different meshes with the same counts,
// bounds and coordinate sum collide. Use ContentHash when pooling must never
// merge distinct geometry.
func Fingerprint(m Mesh) string {
	min, max := Bounds(m.Vertices)
	var sum float64
	for _, v := range m.Vertices {
		sum += v[0] + v[1] + v[2]
	}
	return fmt.Sprintf("v%dt%d_%.3f,%.3f,%.3f_%.3f,%.3f,%.3f_%.3f",
		len(m.Vertices), len(m.Triangles),
		min[0], min[1], min[2],
		max[0], max[1], max[2],
		sum)
}

// ContentHash hashes the exact coordinates and indices. Meshes that differ
// in any value, vertex order or triangle order get different keys (up to
// 64-bit hash collisions).
func ContentHash(m Mesh) string {
	d := xxhash.New()
	var buf [8]byte
	for _, v := range m.Vertices {
		for _, c := range v {
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(c))
			d.Write(buf[:])
		}
	}
	for _, t := range m.Triangles {
		for _, idx := range t {
			binary.LittleEndian.PutUint64(buf[:], uint64(idx))
			d.Write(buf[:])
		}
	}
	return fmt.Sprintf("v%dt%d_%016x", len(m.Vertices), len(m.Triangles), d.Sum64())
}
