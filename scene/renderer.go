package scene

import (
	"context"
	"image"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	_ "github.com/lmittmann/ppm" // register ppm
	"github.com/pkg/errors"
	_ "github.com/xfmoulet/qoi" // register qoi
)

// ErrFrameNotFound is returned when no frame exists for a camera.
var ErrFrameNotFound = errors.New("frame not found")

// A Renderer produces the frame seen by a camera.
type Renderer interface {
	Render(ctx context.Context, cam Camera) (image.Image, error)
}

// frameExtensions are tried in order when looking up a pre-rendered frame.
var frameExtensions = []string{".png", ".jpg", ".jpeg", ".tif", ".tiff", ".bmp", ".ppm", ".qoi"}

// DirectoryRenderer serves frames that were rendered ahead of time into Dir, one file per
// camera named after the camera. Frames whose size does not match the camera's effective
// resolution are resized to it.
type DirectoryRenderer struct {
	Dir string
}

// NewDirectoryRenderer returns a renderer reading frames from dir.
func NewDirectoryRenderer(dir string) (*DirectoryRenderer, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot use frame directory")
	}
	if !info.IsDir() {
		return nil, errors.Errorf("frame directory %q is not a directory", dir)
	}
	return &DirectoryRenderer{Dir: dir}, nil
}

// FramePath returns the path of the frame for cam.
func (r *DirectoryRenderer) FramePath(cam Camera) (string, error) {
	for _, ext := range frameExtensions {
		path := filepath.Join(r.Dir, cam.Name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", errors.Wrapf(ErrFrameNotFound, "camera %q in %s", cam.Name, r.Dir)
}

// Render loads the frame for cam.
func (r *DirectoryRenderer) Render(ctx context.Context, cam Camera) (image.Image, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := r.FramePath(cam)
	if err != nil {
		return nil, err
	}
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, errors.Wrapf(err, "cannot load frame for camera %q", cam.Name)
	}
	width, height := cam.Parameters.ImageSize()
	if width <= 0 || height <= 0 {
		return img, nil
	}
	if b := img.Bounds(); b.Dx() != width || b.Dy() != height {
		img = imaging.Resize(img, width, height, imaging.Lanczos)
	}
	return img, nil
}
