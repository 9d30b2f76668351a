package threemf

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/threemf/pkg/geometry"
)

// PoolMode selects the key used for geometry pooling.
type PoolMode int

const (
	// PoolFingerprint keys geometry by geometry.Fingerprint: counts,
	// bounding box and coordinate sum. It is fast but probabilistic;
	// distinct meshes that agree on all of these are merged.
	PoolFingerprint PoolMode = iota
	// PoolStrict keys geometry by geometry.ContentHash over the exact
	// coordinates and indices.
	PoolStrict
)

// ParsePoolMode parses "fingerprint" or "strict".
func ParsePoolMode(s string) (PoolMode, error) {
	switch s {
	case "", "fingerprint":
		return PoolFingerprint, nil
	case "strict":
		return PoolStrict, nil
	}
	return 0, fmt.Errorf("%w: pool mode %q", ErrInvalidValue, s)
}

func (p PoolMode) String() string {
	if p == PoolStrict {
		return "strict"
	}
	return "fingerprint"
}

// PoolEntry is one pooled geometry.
type PoolEntry struct {
	ObjectID ResourceID
	RefCount int
}

// PoolStats summarizes geometry pool usage.
type PoolStats struct {
	Size      int
	TotalRefs int
	AvgRefs   float64
}

// OptimizeOptions configure AddMeshOptimized.
type OptimizeOptions struct {
	MeshOptions
	// Deduplicate merges coincident vertices before insertion.
	Deduplicate bool
	// ReuseGeometry returns the existing object for geometry already added
	// through the pool.
	ReuseGeometry bool
}

// AddMeshOptimized adds a mesh from either representation. Deduplication
// runs first, then pooling. A pool hit only increments the reference
// count and returns the pooled object id; no object or build item is
// added.
func (m *Model) AddMeshOptimized(src geometry.Source, opts OptimizeOptions) (ResourceID, error) {
	mesh, err := src.AsMesh()
	if err != nil {
		return 0, err
	}
	if err := mesh.Validate(); err != nil {
		return 0, err
	}

	if opts.Deduplicate {
		deduped, stats, err := geometry.Deduplicate(mesh)
		if err != nil {
			return 0, err
		}
		mesh = deduped
		if stats.Deduplicated < stats.Original {
			m.log.Debug("deduplicated vertices",
				zap.Int("original", stats.Original),
				zap.Int("deduplicated", stats.Deduplicated),
				zap.Float64("reduction", stats.Reduction()),
			)
		}
	}

	if !opts.ReuseGeometry {
		return m.AddMesh(mesh, opts.MeshOptions)
	}

	key := m.poolKey(mesh, opts.Material)
	if entry, ok := m.pool[key]; ok {
		entry.RefCount++
		m.log.Debug("reusing pooled geometry",
			zap.Int("object", int(entry.ObjectID)),
			zap.Int("refs", entry.RefCount),
		)
		return entry.ObjectID, nil
	}

	id, err := m.AddMesh(mesh, opts.MeshOptions)
	if err != nil {
		return 0, err
	}
	m.pool[key] = &PoolEntry{ObjectID: id, RefCount: 1}
	return id, nil
}

// poolKey combines the geometry key with the object material, so equal
// geometry in different materials stays separate.
func (m *Model) poolKey(mesh geometry.Mesh, material *PropertyRef) string {
	var key string
	if m.poolMode == PoolStrict {
		key = geometry.ContentHash(mesh)
	} else {
		key = geometry.Fingerprint(mesh)
	}
	if material != nil {
		key += fmt.Sprintf("_p%d.%d", material.PID, material.PIndex)
	}
	return key
}

// PoolStats reports the geometry pool size and reference counts.
func (m *Model) PoolStats() PoolStats {
	stats := PoolStats{Size: len(m.pool)}
	for _, entry := range m.pool {
		stats.TotalRefs += entry.RefCount
	}
	if stats.Size > 0 {
		stats.AvgRefs = float64(stats.TotalRefs) / float64(stats.Size)
	}
	return stats
}

// ClearPool forgets all pooled geometry. Objects already added stay in the
// model.
func (m *Model) ClearPool() {
	m.pool = make(map[string]*PoolEntry)
}
