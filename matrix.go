package gfx

import (
	"encoding/binary"
	"math"
)

// Matrix4 is a 4x4 float matrix stored column-major, the layout shaders
// read from a constant block:
//
//	| M[0] M[4] M[8]  M[12] |
//	| M[1] M[5] M[9]  M[13] |
//	| M[2] M[6] M[10] M[14] |
//	| M[3] M[7] M[11] M[15] |
type Matrix4 [16]float32

// Identity4 returns the identity matrix.
func Identity4() Matrix4 {
	return Matrix4{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// Translate4 creates a translation matrix.
func Translate4(x, y, z float32) Matrix4 {
	m := Identity4()
	m[12], m[13], m[14] = x, y, z
	return m
}

// Scale4 creates a scaling matrix.
func Scale4(x, y, z float32) Matrix4 {
	m := Identity4()
	m[0], m[5], m[10] = x, y, z
	return m
}

// RotateZ4 creates a rotation about the Z axis (angle in radians).
func RotateZ4(angle float64) Matrix4 {
	c := float32(math.Cos(angle))
	s := float32(math.Sin(angle))
	m := Identity4()
	m[0], m[1] = c, s
	m[4], m[5] = -s, c
	return m
}

// Ortho returns an orthographic projection mapping the box to clip space
// with depth in [0, 1].
func Ortho(left, right, top, bottom, near, far float32) Matrix4 {
	rl := right - left
	tb := top - bottom
	fn := far - near
	return Matrix4{
		2 / rl, 0, 0, 0,
		0, 2 / tb, 0, 0,
		0, 0, 1 / fn, 0,
		-(right + left) / rl, -(top + bottom) / tb, -near / fn, 1,
	}
}

// Frustum returns a perspective projection for the given near-plane
// rectangle with depth in [0, 1].
func Frustum(left, right, top, bottom, near, far float32) Matrix4 {
	rl := right - left
	tb := top - bottom
	fn := far - near
	return Matrix4{
		2 * near / rl, 0, 0, 0,
		0, 2 * near / tb, 0, 0,
		(right + left) / rl, (top + bottom) / tb, far / fn, 1,
		0, 0, -near * far / fn, 0,
	}
}

// Multiply returns m * other, so other is applied first.
func (m Matrix4) Multiply(other Matrix4) Matrix4 {
	var out Matrix4
	for c := range 4 {
		for r := range 4 {
			out[c*4+r] = m[r]*other[c*4] + m[4+r]*other[c*4+1] +
				m[8+r]*other[c*4+2] + m[12+r]*other[c*4+3]
		}
	}
	return out
}

// Transform applies m to the point (x, y, z, w).
func (m Matrix4) Transform(v [4]float32) [4]float32 {
	var out [4]float32
	for r := range 4 {
		out[r] = m[r]*v[0] + m[4+r]*v[1] + m[8+r]*v[2] + m[12+r]*v[3]
	}
	return out
}

// Transpose returns the transposed matrix.
func (m Matrix4) Transpose() Matrix4 {
	var out Matrix4
	for c := range 4 {
		for r := range 4 {
			out[r*4+c] = m[c*4+r]
		}
	}
	return out
}

// IsIdentity reports whether m is the identity matrix.
func (m Matrix4) IsIdentity() bool {
	return m == Identity4()
}

// Bytes returns the little-endian encoding of m, 64 bytes.
func (m Matrix4) Bytes() []byte {
	b := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
