package colmap

import (
	"github.com/pkg/errors"
)

var (
	// ErrMalformedModelFile is returned when a model file is truncated, corrupt or has an unexpected shape.
	ErrMalformedModelFile = errors.New("malformed model file")
	// ErrUnknownCameraModel is returned for camera model ids or names missing from the registry.
	ErrUnknownCameraModel = errors.New("unknown camera model")
)

// NewMalformedModelFileError is used when a model file cannot be parsed.
func NewMalformedModelFileError(file string, err error) error {
	return errors.Wrapf(ErrMalformedModelFile, "%s: %v", file, err)
}

// NewMalformedModelFileErrorf is used when a model file cannot be parsed.
func NewMalformedModelFileErrorf(file, format string, args ...interface{}) error {
	return errors.Wrapf(ErrMalformedModelFile, "%s: "+format, append([]interface{}{file}, args...)...)
}

// NewUnknownCameraModelError is used when a camera model id or name is not registered.
func NewUnknownCameraModelError(model interface{}) error {
	return errors.Wrapf(ErrUnknownCameraModel, "%v", model)
}
