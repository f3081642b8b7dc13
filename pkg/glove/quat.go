package glove

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Quat is a wrist orientation quaternion with components in wire naming.
type Quat struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Identity is the zero rotation.
var Identity = Quat{W: 1}

func (q Quat) number() quat.Number {
	return quat.Number{Real: q.W, Imag: q.X, Jmag: q.Y, Kmag: q.Z}
}

func fromNumber(n quat.Number) Quat {
	return Quat{X: n.Imag, Y: n.Jmag, Z: n.Kmag, W: n.Real}
}

// Mul composes two rotations: q then r applied in the frame of q.
func (q Quat) Mul(r Quat) Quat {
	return fromNumber(quat.Mul(q.number(), r.number()))
}

// Inverse returns the inverse rotation. A zero quaternion stays zero.
func (q Quat) Inverse() Quat {
	if quat.Abs(q.number()) == 0 {
		return Quat{}
	}
	return fromNumber(quat.Inv(q.number()))
}

// Normalize scales q to unit length. A zero quaternion maps to Identity.
func (q Quat) Normalize() Quat {
	n := quat.Abs(q.number())
	if n == 0 {
		return Identity
	}
	return fromNumber(quat.Scale(1/n, q.number()))
}

// Relative returns the rotation that takes baseline into current,
// inverse(baseline) * current.
func Relative(baseline, current Quat) Quat {
	return baseline.Inverse().Mul(current)
}

// LegacyDifference subtracts the quaternions component-wise and normalizes
// the result. It is not a rotation difference in general and exists only for
// matching recordings made with the old glove firmware viewer.
func LegacyDifference(baseline, current Quat) Quat {
	return fromNumber(quat.Sub(current.number(), baseline.number())).Normalize()
}

// SignedZDegrees returns the rotation about the render Z axis in degrees,
// wrapped to (-180, 180], using ZXY Euler decomposition.
func (q Quat) SignedZDegrees() float64 {
	q = q.Normalize()
	z := math.Atan2(2*(q.W*q.Z+q.X*q.Y), 1-2*(q.X*q.X+q.Z*q.Z))
	deg := z * 180 / math.Pi
	if deg <= -180 {
		deg += 360
	}
	return deg
}
