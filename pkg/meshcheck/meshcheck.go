// Package meshcheck reports mesh-quality findings: triangle winding
// consistency and closed-manifold edge sharing. Checks are read-only and
// never modify or reject a mesh.
package meshcheck

import (
	"fmt"

	"github.com/Faultbox/threemf/pkg/geometry"
	m3 "github.com/Faultbox/threemf/pkg/math"
)

// DegenerateEpsilon is the normal length below which a triangle counts as
// zero-area.
const DegenerateEpsilon = 1e-9

// MaxReportedEdges caps how many offending edges CheckManifold lists
// individually.
const MaxReportedEdges = 5

// WindingReport is the result of CheckWinding.
type WindingReport struct {
	OK       bool
	Warnings []string

	Outward    int
	Inward     int
	Degenerate int
}

// ManifoldReport is the result of CheckManifold.
type ManifoldReport struct {
	OK     bool
	Errors []string

	NonManifoldEdges int
}

// TriangleNormal returns the unnormalized normal (v1-v0) x (v2-v0).
func TriangleNormal(v0, v1, v2 geometry.Vertex) m3.Vec3 {
	a := v0.Vec3()
	return v1.Vec3().Sub(a).Cross(v2.Vec3().Sub(a))
}

// CheckWinding classifies every triangle as facing away from or towards the
// mesh centroid. Triangles facing inwards and zero-area triangles each add a
// warning; when inward triangles outnumber outward ones an aggregate warning
// suggests the whole mesh is reversed. The centroid heuristic assumes a
// roughly convex, closed mesh.
func CheckWinding(vertices []geometry.Vertex, triangles []geometry.Triangle) WindingReport {
	var r WindingReport

	points := make([]m3.Vec3, len(vertices))
	for i, v := range vertices {
		points[i] = v.Vec3()
	}
	center := m3.Centroid(points)

	for i, tri := range triangles {
		if !inRange(tri, len(vertices)) {
			r.Warnings = append(r.Warnings, fmt.Sprintf("Triangle %d: invalid vertex indices", i))
			continue
		}
		v0, v1, v2 := points[tri[0]], points[tri[1]], points[tri[2]]
		normal := v1.Sub(v0).Cross(v2.Sub(v0))
		if normal.Length() < DegenerateEpsilon {
			r.Degenerate++
			r.Warnings = append(r.Warnings, fmt.Sprintf("Triangle %d: degenerate (zero area)", i))
			continue
		}

		triCenter := v0.Add(v1).Add(v2).Scale(1.0 / 3)
		dot := normal.Dot(triCenter.Sub(center))
		switch {
		case dot > 0:
			r.Outward++
		case dot < 0:
			r.Inward++
			r.Warnings = append(r.Warnings, fmt.Sprintf("Triangle %d: appears to have inverted winding", i))
		}
	}

	if r.Inward > r.Outward && len(triangles) > 0 {
		r.Warnings = append(r.Warnings, "Most triangles appear inverted; consider reversing the winding order")
	}
	r.OK = len(r.Warnings) == 0
	return r
}

type edge struct{ a, b int }

func edgeKey(a, b int) edge {
	if a < b {
		return edge{a, b}
	}
	return edge{b, a}
}

// CheckManifold counts how many triangles use each undirected edge. A closed
// manifold mesh uses every edge exactly twice; any other count is reported.
// Open surfaces are reported as well: this is a closed-mesh check.
func CheckManifold(vertices []geometry.Vertex, triangles []geometry.Triangle) ManifoldReport {
	var r ManifoldReport

	counts := make(map[edge]int, len(triangles)*3/2)
	var order []edge
	for _, tri := range triangles {
		for _, e := range [3]edge{
			edgeKey(tri[0], tri[1]),
			edgeKey(tri[1], tri[2]),
			edgeKey(tri[2], tri[0]),
		} {
			if counts[e] == 0 {
				order = append(order, e)
			}
			counts[e]++
		}
	}

	for _, e := range order {
		n := counts[e]
		if n == 2 {
			continue
		}
		r.NonManifoldEdges++
		if r.NonManifoldEdges <= MaxReportedEdges {
			r.Errors = append(r.Errors, fmt.Sprintf("Non-manifold edge %d-%d: used by %d triangles (expected 2)", e.a, e.b, n))
		}
	}
	if r.NonManifoldEdges > MaxReportedEdges {
		r.Errors = append(r.Errors, fmt.Sprintf("... and %d more non-manifold edges", r.NonManifoldEdges-MaxReportedEdges))
	}
	r.OK = len(r.Errors) == 0
	return r
}

// Report combines both checks for one mesh.
type Report struct {
	Winding  WindingReport
	Manifold ManifoldReport
}

// OK reports whether both checks passed.
func (r Report) OK() bool {
	return r.Winding.OK && r.Manifold.OK
}

// CheckAll runs CheckWinding and CheckManifold on the same mesh.
func CheckAll(m geometry.Mesh) Report {
	return Report{
		Winding:  CheckWinding(m.Vertices, m.Triangles),
		Manifold: CheckManifold(m.Vertices, m.Triangles),
	}
}

func inRange(t geometry.Triangle, n int) bool {
	for _, idx := range t {
		if idx < 0 || idx >= n {
			return false
		}
	}
	return true
}
