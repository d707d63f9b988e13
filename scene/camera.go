// Package scene describes the cameras handed to the exporter and the source of their rendered frames.
package scene

import (
	"slices"
	"strings"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/transform"
)

// ImageExtension is appended to a camera name to form its image name.
const ImageExtension = ".jpg"

// Camera is an immutable snapshot of a scene camera: its optics, render settings and
// its placement in the authoring tool's world frame.
type Camera struct {
	Name       string
	Parameters transform.CameraParameters
	// Rotation is the camera-to-world orientation in (w, x, y, z) order.
	Rotation quat.Number
	Location r3.Vector
}

// ImageName is the file name the camera's frame is stored under.
func (c Camera) ImageName() string {
	return c.Name + ImageExtension
}

// SortCameras returns a copy of cameras ordered by image name. Cameras with equal
// names keep their input order.
func SortCameras(cameras []Camera) []Camera {
	sorted := slices.Clone(cameras)
	slices.SortStableFunc(sorted, func(a, b Camera) int {
		return strings.Compare(a.ImageName(), b.ImageName())
	})
	return sorted
}
