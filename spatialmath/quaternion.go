// Package spatialmath defines the quaternion and rotation helpers used to move camera poses
// between coordinate conventions.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// NewZeroOrientation returns the identity quaternion.
func NewZeroOrientation() quat.Number {
	return quat.Number{Real: 1}
}

// Norm returns the euclidean length of all four components of q.
func Norm(q quat.Number) float64 {
	return quat.Abs(q)
}

// Normalize returns q scaled to unit length. A zero quaternion is returned unchanged.
func Normalize(q quat.Number) quat.Number {
	n := Norm(q)
	if n == 0 {
		return q
	}
	return quat.Scale(1/n, q)
}

// Flip will multiply a quaternion by -1, returning a quaternion representing the same orientation but in the opposing octant.
func Flip(q quat.Number) quat.Number {
	return quat.Number{Real: -q.Real, Imag: -q.Imag, Jmag: -q.Jmag, Kmag: -q.Kmag}
}

// QuaternionAlmostEqual is an equality test for all the float components of a quaternion. Quaternions have double coverage, q == -q,
// so both signs are accepted.
func QuaternionAlmostEqual(a, b quat.Number, tol float64) bool {
	if componentsAlmostEqual(a, b, tol) {
		return true
	}
	return componentsAlmostEqual(a, Flip(b), tol)
}

func componentsAlmostEqual(a, b quat.Number, tol float64) bool {
	return math.Abs(a.Real-b.Real) < tol &&
		math.Abs(a.Imag-b.Imag) < tol &&
		math.Abs(a.Jmag-b.Jmag) < tol &&
		math.Abs(a.Kmag-b.Kmag) < tol
}

// RotateVector rotates v by q using the sandwich product q*v*conj(q). q is expected to be a unit quaternion.
func RotateVector(q quat.Number, v r3.Vector) r3.Vector {
	p := quat.Mul(quat.Mul(q, quat.Number{Imag: v.X, Jmag: v.Y, Kmag: v.Z}), quat.Conj(q))
	return r3.Vector{X: p.Imag, Y: p.Jmag, Z: p.Kmag}
}

// QuatFromAxisAngle returns the unit quaternion rotating by theta radians around axis.
func QuatFromAxisAngle(axis r3.Vector, theta float64) quat.Number {
	axis = axis.Normalize()
	s := math.Sin(theta / 2)
	return quat.Number{Real: math.Cos(theta / 2), Imag: axis.X * s, Jmag: axis.Y * s, Kmag: axis.Z * s}
}
