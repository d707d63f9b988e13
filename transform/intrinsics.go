// Package transform derives COLMAP camera intrinsics and world-to-camera poses from the
// lens, sensor and transform settings of an authoring-tool camera.
package transform

import (
	"fmt"
	"math"
	"strings"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

var (
	// ErrUnsupportedPixelAspect is returned when the render settings use non-square pixels.
	ErrUnsupportedPixelAspect = errors.New("only square pixels with an aspect of 1.0 are supported")
	// ErrInvalidCameraParameters is returned when lens, sensor or resolution values are out of range.
	ErrInvalidCameraParameters = errors.New("invalid camera parameters")
)

// NewInvalidCameraParametersError is used when a lens, sensor or resolution value is out of range.
func NewInvalidCameraParametersError(msg string) error {
	return errors.Wrap(ErrInvalidCameraParameters, msg)
}

// SensorFit chooses which sensor dimension is held fixed when the image aspect ratio
// differs from the sensor aspect ratio.
type SensorFit int

const (
	// SensorFitAuto fits the larger image dimension; focal length is derived from the sensor width.
	SensorFitAuto SensorFit = iota
	// SensorFitHorizontal fits the sensor width to the image width.
	SensorFitHorizontal
	// SensorFitVertical fits the sensor height to the image height.
	SensorFitVertical
)

// String returns the authoring-tool spelling of the fit mode.
func (sf SensorFit) String() string {
	switch sf {
	case SensorFitAuto:
		return "AUTO"
	case SensorFitHorizontal:
		return "HORIZONTAL"
	case SensorFitVertical:
		return "VERTICAL"
	default:
		return fmt.Sprintf("SensorFit(%d)", int(sf))
	}
}

// ParseSensorFit parses AUTO, HORIZONTAL or VERTICAL. The empty string is AUTO.
func ParseSensorFit(s string) (SensorFit, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "AUTO":
		return SensorFitAuto, nil
	case "HORIZONTAL":
		return SensorFitHorizontal, nil
	case "VERTICAL":
		return SensorFitVertical, nil
	default:
		return SensorFitAuto, errors.Errorf("unknown sensor fit %q, expected AUTO, HORIZONTAL or VERTICAL", s)
	}
}

// CameraParameters are the lens, sensor and render settings of one camera.
type CameraParameters struct {
	FocalLengthMM        float64
	SensorWidthMM        float64
	SensorHeightMM       float64
	SensorFit            SensorFit
	ResolutionX          int
	ResolutionY          int
	ResolutionPercentage float64
	PixelAspectX         float64
	PixelAspectY         float64
}

// ResolutionScale returns the render scale as a factor, e.g. 0.5 for 50%.
func (params CameraParameters) ResolutionScale() float64 {
	return params.ResolutionPercentage / 100
}

// EffectiveResolution returns the unrounded rendered resolution in pixels.
func (params CameraParameters) EffectiveResolution() (float64, float64) {
	scale := params.ResolutionScale()
	return float64(params.ResolutionX) * scale, float64(params.ResolutionY) * scale
}

// ImageSize returns the integer size of the rendered image.
func (params CameraParameters) ImageSize() (int, int) {
	w, h := params.EffectiveResolution()
	return int(math.Floor(w)), int(math.Floor(h))
}

// CheckValid checks if the fields of CameraParameters have valid inputs.
func (params CameraParameters) CheckValid() error {
	if params.FocalLengthMM <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid focal length %#v mm", params.FocalLengthMM))
	}
	if params.SensorWidthMM <= 0 || params.SensorHeightMM <= 0 {
		return NewInvalidCameraParametersError(
			fmt.Sprintf("invalid sensor size (%#v, %#v) mm", params.SensorWidthMM, params.SensorHeightMM))
	}
	if params.ResolutionX <= 0 || params.ResolutionY <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid resolution (%d, %d)", params.ResolutionX, params.ResolutionY))
	}
	if params.ResolutionPercentage <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid resolution percentage %#v", params.ResolutionPercentage))
	}
	if w, h := params.ImageSize(); w == 0 || h == 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("scaled resolution (%d, %d) is empty", w, h))
	}
	return nil
}

func (params CameraParameters) checkPixelAspect() error {
	if params.PixelAspectX != params.PixelAspectY || params.PixelAspectX != 1.0 {
		return errors.Wrapf(ErrUnsupportedPixelAspect, "pixel aspect is %v:%v", params.PixelAspectX, params.PixelAspectY)
	}
	return nil
}

// FocalLengthPixels returns the focal length in pixels along the fitted sensor dimension.
func (params CameraParameters) FocalLengthPixels() float64 {
	w, h := params.EffectiveResolution()
	if params.SensorFit == SensorFitVertical {
		return params.FocalLengthMM * h / params.SensorHeightMM
	}
	return params.FocalLengthMM * w / params.SensorWidthMM
}

// PinholeCameraIntrinsics holds the parameters necessary to do a perspective projection of a 3D scene to the 2D plane.
type PinholeCameraIntrinsics struct {
	Width  int     `json:"width_px"`
	Height int     `json:"height_px"`
	Fx     float64 `json:"fx"`
	Fy     float64 `json:"fy"`
	Ppx    float64 `json:"ppx"`
	Ppy    float64 `json:"ppy"`
}

// NewPinholeCameraIntrinsics derives square-pixel pinhole intrinsics with the principal point
// at the image center. Non-square pixels are rejected rather than mis-scaled.
func NewPinholeCameraIntrinsics(params CameraParameters) (*PinholeCameraIntrinsics, error) {
	if err := params.checkPixelAspect(); err != nil {
		return nil, err
	}
	if err := params.CheckValid(); err != nil {
		return nil, err
	}
	w, h := params.EffectiveResolution()
	width, height := params.ImageSize()
	f := params.FocalLengthPixels()
	return &PinholeCameraIntrinsics{
		Width:  width,
		Height: height,
		Fx:     f,
		Fy:     f,
		Ppx:    w / 2,
		Ppy:    h / 2,
	}, nil
}

// CheckValid checks if the fields for PinholeCameraIntrinsics have valid inputs.
func (pci *PinholeCameraIntrinsics) CheckValid() error {
	if pci == nil {
		return NewInvalidCameraParametersError("intrinsics do not exist")
	}
	if pci.Width <= 0 || pci.Height <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid size (%#v, %#v)", pci.Width, pci.Height))
	}
	if pci.Fx <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid focal length Fx = %#v", pci.Fx))
	}
	if pci.Fy <= 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid focal length Fy = %#v", pci.Fy))
	}
	if pci.Ppx < 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid principal X point Ppx = %#v", pci.Ppx))
	}
	if pci.Ppy < 0 {
		return NewInvalidCameraParametersError(fmt.Sprintf("invalid principal Y point Ppy = %#v", pci.Ppy))
	}
	return nil
}

// OpenCVParams returns the parameters of the COLMAP OPENCV model,
// fx, fy, cx, cy, k1, k2, p1, p2. Distortion is always zero.
func (pci *PinholeCameraIntrinsics) OpenCVParams() []float64 {
	return []float64{pci.Fx, pci.Fy, pci.Ppx, pci.Ppy, 0, 0, 0, 0}
}

// PointToPixel projects a 3D point in camera coordinates to a pixel in the image plane.
func (pci *PinholeCameraIntrinsics) PointToPixel(x, y, z float64) (float64, float64) {
	if z != 0. {
		return (x/z)*pci.Fx + pci.Ppx, (y/z)*pci.Fy + pci.Ppy
	}
	// behind or on the camera plane; negative coordinates are outside any image
	return -1.0, -1.0
}

// GetCameraMatrix creates a new camera matrix and returns it.
// Camera matrix:
// [[fx 0 ppx],
//
//	[0 fy ppy],
//	[0 0  1]]
func (pci *PinholeCameraIntrinsics) GetCameraMatrix() *mat.Dense {
	if pci == nil {
		return nil
	}
	cameraMatrix := mat.NewDense(3, 3, nil)
	cameraMatrix.Set(0, 0, pci.Fx)
	cameraMatrix.Set(1, 1, pci.Fy)
	cameraMatrix.Set(0, 2, pci.Ppx)
	cameraMatrix.Set(1, 2, pci.Ppy)
	cameraMatrix.Set(2, 2, 1)
	return cameraMatrix
}
