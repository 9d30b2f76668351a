package geometry

import "testing"

func TestEstimateMemoryTuples(t *testing.T) {
	m := triangleMesh(0)
	e := EstimateMemory(m)
	if e.Representation != RepresentationTuples {
		t.Errorf("representation = %v", e.Representation)
	}
	if e.VertexCount != 3 || e.TriangleCount != 1 {
		t.Errorf("counts = %d/%d", e.VertexCount, e.TriangleCount)
	}
	if e.Total <= e.Optimized {
		t.Errorf("tuples should cost more than flat: total %d, optimized %d", e.Total, e.Optimized)
	}
	if e.Optimized != 4*9+4*3 {
		t.Errorf("optimized = %d", e.Optimized)
	}
	if e.Savings() <= 50 {
		t.Errorf("expected savings above 50%%, got %.1f%%", e.Savings())
	}
}

func TestEstimateMemoryFlat(t *testing.T) {
	fm, err := triangleMesh(0).Flat()
	if err != nil {
		t.Fatalf("Flat: %v", err)
	}
	e := EstimateMemory(fm)
	if e.Representation != RepresentationFlat {
		t.Errorf("representation = %v", e.Representation)
	}
	if e.VertexBytes != 36 || e.TriangleBytes != 12 {
		t.Errorf("bytes = %d/%d", e.VertexBytes, e.TriangleBytes)
	}
	if e.Total != e.Optimized {
		t.Errorf("flat total %d should equal optimized %d", e.Total, e.Optimized)
	}
	if e.Savings() != 0 {
		t.Errorf("savings = %.1f", e.Savings())
	}
}

func TestRepresentationString(t *testing.T) {
	tests := []struct {
		r    Representation
		want string
	}{
		{RepresentationTuples, "Tuples"},
		{RepresentationFlat, "Flat"},
		{Representation(9), "Unknown(9)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.r.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}
