package math

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Transform is a 3MF affine transform: a 4x3 matrix applied to row vectors
// (p' = [x y z 1] * M). Values are stored in attribute order:
//
//	m00 m01 m02
//	m10 m11 m12
//	m20 m21 m22
//	m30 m31 m32
//
// The last row is the translation.
type Transform [12]float64

// Identity returns the identity transform.
func Identity() Transform {
	return Transform{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		0, 0, 0,
	}
}

// Translate returns a translation transform.
func Translate(x, y, z float64) Transform {
	return Transform{
		1, 0, 0,
		0, 1, 0,
		0, 0, 1,
		x, y, z,
	}
}

// Scale returns a scale transform.
func Scale(x, y, z float64) Transform {
	return Transform{
		x, 0, 0,
		0, y, 0,
		0, 0, z,
		0, 0, 0,
	}
}

// RotateX returns a rotation around the X axis.
// angle is in radians.
func RotateX(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{
		1, 0, 0,
		0, c, s,
		0, -s, c,
		0, 0, 0,
	}
}

// RotateY returns a rotation around the Y axis.
// angle is in radians.
func RotateY(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{
		c, 0, -s,
		0, 1, 0,
		s, 0, c,
		0, 0, 0,
	}
}

// RotateZ returns a rotation around the Z axis.
// angle is in radians.
func RotateZ(angle float64) Transform {
	c, s := math.Cos(angle), math.Sin(angle)
	return Transform{
		c, s, 0,
		-s, c, 0,
		0, 0, 1,
		0, 0, 0,
	}
}

// Mul composes two transforms: the result applies t first, then other.
func (t Transform) Mul(other Transform) Transform {
	var r Transform
	for row := 0; row < 4; row++ {
		for col := 0; col < 3; col++ {
			v := t[row*3+0]*other[0*3+col] +
				t[row*3+1]*other[1*3+col] +
				t[row*3+2]*other[2*3+col]
			if row == 3 {
				v += other[9+col]
			}
			r[row*3+col] = v
		}
	}
	return r
}

// TransformPoint applies the transform to a point.
func (t Transform) TransformPoint(p Vec3) Vec3 {
	return Vec3{
		p.X*t[0] + p.Y*t[3] + p.Z*t[6] + t[9],
		p.X*t[1] + p.Y*t[4] + p.Z*t[7] + t[10],
		p.X*t[2] + p.Y*t[5] + p.Z*t[8] + t[11],
	}
}

// IsIdentity reports whether t equals the identity transform exactly.
func (t Transform) IsIdentity() bool {
	return t == Identity()
}

// IsFinite reports whether every value is finite.
func (t Transform) IsFinite() bool {
	for _, v := range t {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

// String returns the space-separated attribute form.
func (t Transform) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		parts[i] = FormatNumber(v)
	}
	return strings.Join(parts, " ")
}

// ParseTransform parses the space-separated attribute form.
func ParseTransform(s string) (Transform, error) {
	fields := strings.Fields(s)
	if len(fields) != 12 {
		return Transform{}, fmt.Errorf("transform needs 12 values, got %d", len(fields))
	}
	var t Transform
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Transform{}, fmt.Errorf("transform value %d: %w", i, err)
		}
		t[i] = v
	}
	return t, nil
}

// FormatNumber renders a float in the shortest form that round-trips,
// switching to exponent notation only for very large or small magnitudes.
func FormatNumber(v float64) string {
	if v == 0 {
		return "0"
	}
	if a := math.Abs(v); a >= 1e-4 && a < 1e15 {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
