// Package colmap reads and writes COLMAP sparse models in the text and binary layouts.
package colmap

import (
	"fmt"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/spatialmath"
)

// CameraModel is an entry of the COLMAP camera model table.
type CameraModel struct {
	ID        int32
	Name      string
	NumParams int
}

// OpenCV is the pinhole model with radial-tangential distortion, fx, fy, cx, cy, k1, k2, p1, p2.
var OpenCV = CameraModel{ID: 4, Name: "OPENCV", NumParams: 8}

var cameraModels = []CameraModel{
	{ID: 0, Name: "SIMPLE_PINHOLE", NumParams: 3},
	{ID: 1, Name: "PINHOLE", NumParams: 4},
	{ID: 2, Name: "SIMPLE_RADIAL", NumParams: 4},
	{ID: 3, Name: "RADIAL", NumParams: 5},
	OpenCV,
	{ID: 5, Name: "OPENCV_FISHEYE", NumParams: 8},
	{ID: 6, Name: "FULL_OPENCV", NumParams: 12},
	{ID: 7, Name: "FOV", NumParams: 5},
	{ID: 8, Name: "SIMPLE_RADIAL_FISHEYE", NumParams: 4},
	{ID: 9, Name: "RADIAL_FISHEYE", NumParams: 5},
	{ID: 10, Name: "THIN_PRISM_FISHEYE", NumParams: 12},
}

var (
	cameraModelsByID   = lo.KeyBy(cameraModels, func(m CameraModel) int32 { return m.ID })
	cameraModelsByName = lo.KeyBy(cameraModels, func(m CameraModel) string { return m.Name })
)

// CameraModelByID looks up a registered camera model by its numeric id.
func CameraModelByID(id int32) (CameraModel, error) {
	m, ok := cameraModelsByID[id]
	if !ok {
		return CameraModel{}, NewUnknownCameraModelError(fmt.Sprintf("id %d", id))
	}
	return m, nil
}

// CameraModelByName looks up a registered camera model by its name, e.g. OPENCV.
func CameraModelByName(name string) (CameraModel, error) {
	m, ok := cameraModelsByName[name]
	if !ok {
		return CameraModel{}, NewUnknownCameraModelError(fmt.Sprintf("%q", name))
	}
	return m, nil
}

// Camera holds the intrinsics shared by one or more images.
type Camera struct {
	ID     uint32
	Model  string
	Width  uint64
	Height uint64
	Params []float64
}

// Validate checks the camera id, size and that the number of params matches the model.
func (c Camera) Validate() error {
	if c.ID == 0 {
		return errors.New("camera id must be positive")
	}
	if c.Width == 0 || c.Height == 0 {
		return errors.Errorf("camera %d has invalid size (%d, %d)", c.ID, c.Width, c.Height)
	}
	m, err := CameraModelByName(c.Model)
	if err != nil {
		return errors.Wrapf(err, "camera %d", c.ID)
	}
	if len(c.Params) != m.NumParams {
		return errors.Errorf("camera %d: model %s needs %d params, got %d", c.ID, m.Name, m.NumParams, len(c.Params))
	}
	return nil
}

// InvalidPoint3DID marks a 2D keypoint that is not part of any 3D point.
const InvalidPoint3DID int64 = -1

// Image is a registered view: its world-to-camera pose and its observed keypoints.
type Image struct {
	ID         uint32
	Qvec       quat.Number
	Tvec       r3.Vector
	CameraID   uint32
	Name       string
	Xys        []r2.Point
	Point3DIDs []int64
}

// Validate checks the image id, name and keypoint bookkeeping.
func (img Image) Validate() error {
	if img.ID == 0 {
		return errors.New("image id must be positive")
	}
	if img.Name == "" {
		return errors.Errorf("image %d has no name", img.ID)
	}
	if len(img.Xys) != len(img.Point3DIDs) {
		return errors.Errorf("image %d has %d keypoints but %d point3D ids", img.ID, len(img.Xys), len(img.Point3DIDs))
	}
	return nil
}

// ProjectionCenter returns the camera position in world coordinates, -R^T * t.
func (img Image) ProjectionCenter() r3.Vector {
	return spatialmath.NewRotationMatrixFromQuat(img.Qvec).Transpose().MulVec(img.Tvec).Mul(-1)
}

// Point3D is a triangulated point and the track of observations it was seen in.
type Point3D struct {
	ID          uint64
	XYZ         r3.Vector
	RGB         [3]uint8
	Error       float64
	ImageIDs    []uint32
	Point2DIdxs []uint32
}

// Validate checks the track bookkeeping.
func (p Point3D) Validate() error {
	if len(p.ImageIDs) != len(p.Point2DIdxs) {
		return errors.Errorf("point3D %d has %d image ids but %d point2D indexes", p.ID, len(p.ImageIDs), len(p.Point2DIdxs))
	}
	return nil
}

// Model is a whole sparse model keyed by id.
type Model struct {
	Cameras  map[uint32]Camera
	Images   map[uint32]Image
	Points3D map[uint64]Point3D
}

// NewModel returns an empty model.
func NewModel() *Model {
	return &Model{
		Cameras:  map[uint32]Camera{},
		Images:   map[uint32]Image{},
		Points3D: map[uint64]Point3D{},
	}
}

// Validate checks every record and that map keys, record ids and image camera references agree.
func (m *Model) Validate() error {
	for id, c := range m.Cameras {
		if id != c.ID {
			return errors.Errorf("camera stored under id %d has id %d", id, c.ID)
		}
		if err := c.Validate(); err != nil {
			return err
		}
	}
	for id, img := range m.Images {
		if id != img.ID {
			return errors.Errorf("image stored under id %d has id %d", id, img.ID)
		}
		if err := img.Validate(); err != nil {
			return err
		}
		if _, ok := m.Cameras[img.CameraID]; !ok {
			return errors.Errorf("image %d references missing camera %d", img.ID, img.CameraID)
		}
	}
	for id, p := range m.Points3D {
		if id != p.ID {
			return errors.Errorf("point3D stored under id %d has id %d", id, p.ID)
		}
		if err := p.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// meanObservations is the mean number of keypoints per image with a valid 3D point.
func meanObservations(images map[uint32]Image) float64 {
	if len(images) == 0 {
		return 0
	}
	var total int
	for _, img := range images {
		total += lo.CountBy(img.Point3DIDs, func(id int64) bool { return id != InvalidPoint3DID })
	}
	return float64(total) / float64(len(images))
}

// meanTrackLength is the mean number of observations per 3D point.
func meanTrackLength(points map[uint64]Point3D) float64 {
	if len(points) == 0 {
		return 0
	}
	var total int
	for _, p := range points {
		total += len(p.ImageIDs)
	}
	return float64(total) / float64(len(points))
}
