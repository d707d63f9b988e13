package transform

import (
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/spatialmath"
)

// Pose is a world-to-camera transform in COLMAP convention: a point X in world coordinates
// maps to R(Rotation)*X + Translation in camera coordinates, with the camera looking down +Z.
type Pose struct {
	Rotation    quat.Number
	Translation r3.Vector
}

// RotationMatrix returns the 3x3 matrix of the pose rotation.
func (p Pose) RotationMatrix() *spatialmath.RotationMatrix {
	return spatialmath.NewRotationMatrixFromQuat(p.Rotation)
}

// Apply maps a world point into camera coordinates.
func (p Pose) Apply(world r3.Vector) r3.Vector {
	return p.RotationMatrix().MulVec(world).Add(p.Translation)
}

// CameraCenter returns the camera position in world coordinates, -R^T * t.
func (p Pose) CameraCenter() r3.Vector {
	return p.RotationMatrix().Transpose().MulVec(p.Translation).Mul(-1)
}

type poseOptions struct {
	renormalize bool
}

// PoseOption configures ConvertPose.
type PoseOption func(*poseOptions)

// WithRenormalization normalizes the remapped quaternion before it is used and returned.
// By default the input is trusted as-is and any drift from unit length propagates.
func WithRenormalization() PoseOption {
	return func(o *poseOptions) {
		o.renormalize = true
	}
}

// RemapQuaternion converts an authoring-tool camera rotation (camera looks down local -Z,
// up is +Y) into the COLMAP world-to-camera rotation (camera looks down +Z, up is -Y).
// The component permutation (w, x, y, z) -> (x, w, z, -y) is a fixed basis change and
// must not be replaced by an equivalent-looking derivation; a sign slip mirrors the
// reconstruction.
func RemapQuaternion(q quat.Number) quat.Number {
	return quat.Number{
		Real: q.Imag,
		Imag: q.Real,
		Jmag: q.Kmag,
		Kmag: -q.Jmag,
	}
}

// ConvertPose converts a camera rotation and world location into a COLMAP world-to-camera pose.
func ConvertPose(rotation quat.Number, location r3.Vector, opts ...PoseOption) Pose {
	var o poseOptions
	for _, opt := range opts {
		opt(&o)
	}
	q := RemapQuaternion(rotation)
	if o.renormalize {
		q = spatialmath.Normalize(q)
	}
	t := spatialmath.NewRotationMatrixFromQuat(q).MulVec(location).Mul(-1)
	return Pose{Rotation: q, Translation: t}
}
