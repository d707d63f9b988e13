// Package config defines the scene description file read by the exporter.
package config

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/utils"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
	"go.viam.com/colmapexport/scene"
	"go.viam.com/colmapexport/transform"
)

// Defaults applied to fields left out of a scene file.
const (
	DefaultResolutionPercentage = 100
	DefaultPixelAspect          = 1
	DefaultSensorWidthMM        = 36
	DefaultSensorHeightMM       = 24
)

// Config describes a scene to export: the shared render settings, every camera and where
// the model goes.
type Config struct {
	OutputDir   string   `json:"output_dir"`
	Format      string   `json:"format,omitempty"`
	Renormalize bool     `json:"renormalize,omitempty"`
	ImagesDir   string   `json:"images_dir,omitempty"`
	JPEGQuality int      `json:"jpeg_quality,omitempty"`
	Render      Render   `json:"render"`
	Cameras     []Camera `json:"cameras"`

	ConfigFilePath string `json:"-"`
}

// Render holds the output resolution settings shared by all cameras.
type Render struct {
	ResolutionX          int     `json:"resolution_x"`
	ResolutionY          int     `json:"resolution_y"`
	ResolutionPercentage float64 `json:"resolution_percentage,omitempty"`
	PixelAspectX         float64 `json:"pixel_aspect_x,omitempty"`
	PixelAspectY         float64 `json:"pixel_aspect_y,omitempty"`
}

// Camera describes a single camera in the scene. RotationQuaternion is (w, x, y, z) and
// Location is (x, y, z), both in the authoring tool's world frame.
type Camera struct {
	Name               string    `json:"name"`
	Lens               float64   `json:"lens"`
	SensorWidth        float64   `json:"sensor_width,omitempty"`
	SensorHeight       float64   `json:"sensor_height,omitempty"`
	SensorFit          string    `json:"sensor_fit,omitempty"`
	RotationQuaternion []float64 `json:"rotation_quaternion"`
	Location           []float64 `json:"location"`
}

// Ensure fills in defaults for omitted fields.
func (c *Config) Ensure() {
	if c.Render.ResolutionPercentage == 0 {
		c.Render.ResolutionPercentage = DefaultResolutionPercentage
	}
	if c.Render.PixelAspectX == 0 {
		c.Render.PixelAspectX = DefaultPixelAspect
	}
	if c.Render.PixelAspectY == 0 {
		c.Render.PixelAspectY = DefaultPixelAspect
	}
	for i := range c.Cameras {
		if c.Cameras[i].SensorWidth == 0 {
			c.Cameras[i].SensorWidth = DefaultSensorWidthMM
		}
		if c.Cameras[i].SensorHeight == 0 {
			c.Cameras[i].SensorHeight = DefaultSensorHeightMM
		}
	}
}

// Validate ensures all parts of the config are valid.
func (c *Config) Validate(path string) error {
	if c.OutputDir == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "output_dir")
	}
	if c.JPEGQuality < 0 || c.JPEGQuality > 100 {
		return utils.NewConfigValidationError(path, errors.Errorf("jpeg_quality %d must be within [1, 100]", c.JPEGQuality))
	}
	if err := c.Render.Validate(joinPath(path, "render")); err != nil {
		return err
	}
	seen := make(map[string]struct{}, len(c.Cameras))
	for idx, cam := range c.Cameras {
		camPath := joinPath(path, fmt.Sprintf("cameras.%d", idx))
		if err := cam.Validate(camPath); err != nil {
			return err
		}
		if _, ok := seen[cam.Name]; ok {
			return utils.NewConfigValidationError(camPath, errors.Errorf("duplicate camera name %q", cam.Name))
		}
		seen[cam.Name] = struct{}{}
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (r *Render) Validate(path string) error {
	if r.ResolutionX == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "resolution_x")
	}
	if r.ResolutionY == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "resolution_y")
	}
	if r.ResolutionX < 0 || r.ResolutionY < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid resolution (%d, %d)", r.ResolutionX, r.ResolutionY))
	}
	if r.ResolutionPercentage < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid resolution_percentage %v", r.ResolutionPercentage))
	}
	if r.PixelAspectX < 0 || r.PixelAspectY < 0 {
		return utils.NewConfigValidationError(path, errors.Errorf("invalid pixel aspect (%v, %v)", r.PixelAspectX, r.PixelAspectY))
	}
	return nil
}

// Validate ensures all parts of the config are valid.
func (c *Camera) Validate(path string) error {
	if c.Name == "" {
		return utils.NewConfigValidationFieldRequiredError(path, "name")
	}
	if c.Lens == 0 {
		return utils.NewConfigValidationFieldRequiredError(path, "lens")
	}
	if c.Lens < 0 || c.SensorWidth < 0 || c.SensorHeight < 0 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("lens %v and sensor (%v, %v) must be positive", c.Lens, c.SensorWidth, c.SensorHeight))
	}
	if _, err := transform.ParseSensorFit(c.SensorFit); err != nil {
		return utils.NewConfigValidationError(path, err)
	}
	if c.RotationQuaternion == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "rotation_quaternion")
	}
	if len(c.RotationQuaternion) != 4 {
		return utils.NewConfigValidationError(path,
			errors.Errorf("rotation_quaternion needs 4 values (w, x, y, z), got %d", len(c.RotationQuaternion)))
	}
	if c.Location == nil {
		return utils.NewConfigValidationFieldRequiredError(path, "location")
	}
	if len(c.Location) != 3 {
		return utils.NewConfigValidationError(path, errors.Errorf("location needs 3 values (x, y, z), got %d", len(c.Location)))
	}
	return nil
}

// ModelFormat returns the configured model layout. An empty format means text; an
// unrecognized one is logged and also falls back to text.
func (c *Config) ModelFormat(logger logging.Logger) colmap.Format {
	if c.Format == "" {
		return colmap.FormatText
	}
	f, ok := colmap.ParseFormat(c.Format)
	if !ok {
		logger.Warnw("unrecognized model format, writing text", "format", c.Format)
	}
	return f
}

// SceneCameras converts the configured cameras into scene cameras.
func (c *Config) SceneCameras() ([]scene.Camera, error) {
	cameras := make([]scene.Camera, 0, len(c.Cameras))
	for _, cam := range c.Cameras {
		fit, err := transform.ParseSensorFit(cam.SensorFit)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %q", cam.Name)
		}
		if len(cam.RotationQuaternion) != 4 || len(cam.Location) != 3 {
			return nil, errors.Errorf("camera %q has a malformed rotation or location", cam.Name)
		}
		q := cam.RotationQuaternion
		cameras = append(cameras, scene.Camera{
			Name: cam.Name,
			Parameters: transform.CameraParameters{
				FocalLengthMM:        cam.Lens,
				SensorWidthMM:        cam.SensorWidth,
				SensorHeightMM:       cam.SensorHeight,
				SensorFit:            fit,
				ResolutionX:          c.Render.ResolutionX,
				ResolutionY:          c.Render.ResolutionY,
				ResolutionPercentage: c.Render.ResolutionPercentage,
				PixelAspectX:         c.Render.PixelAspectX,
				PixelAspectY:         c.Render.PixelAspectY,
			},
			Rotation: quat.Number{Real: q[0], Imag: q[1], Jmag: q[2], Kmag: q[3]},
			Location: r3.Vector{X: cam.Location[0], Y: cam.Location[1], Z: cam.Location[2]},
		})
	}
	return cameras, nil
}

func joinPath(path, field string) string {
	if path == "" {
		return field
	}
	return path + "." + field
}
