// Package export turns a set of scene cameras into a COLMAP sparse model on disk.
package export

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
	"go.viam.com/colmapexport/scene"
	"go.viam.com/colmapexport/transform"
)

// ImagesDirName is the directory below the output directory that frames are saved in.
const ImagesDirName = "images"

// ErrInvalidOutputDirectory is returned when the output directory cannot be used.
var ErrInvalidOutputDirectory = errors.New("invalid output directory")

// NewInvalidOutputDirectoryError is used when the output path is not a usable directory.
func NewInvalidOutputDirectoryError(dir string, cause error) error {
	return errors.Wrapf(ErrInvalidOutputDirectory, "%q: %v", dir, cause)
}

// Export derives a camera and an image record for every camera and writes the model to
// outputDir. Cameras are numbered 1..N in image name order and every image uses the camera
// with its own id. Every record is derived before anything is written, so a camera with
// unsupported settings leaves no model behind.
func Export(
	ctx context.Context,
	cameras []scene.Camera,
	outputDir string,
	logger logging.Logger,
	opts ...Option,
) (*colmap.Model, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt.apply(&o)
	}
	if o.format != colmap.FormatText && o.format != colmap.FormatBinary {
		logger.Warnw("unrecognized model format, writing text", "format", o.format)
		o.format = colmap.FormatText
	}

	sorted := scene.SortCameras(cameras)
	model, err := BuildModel(sorted, o.poseOptions...)
	if err != nil {
		return nil, err
	}
	if err := prepareDirectory(outputDir); err != nil {
		return nil, err
	}
	logger.Debugw("derived model", "cameras", len(model.Cameras), "dir", outputDir, "format", o.format)

	if o.renderer != nil {
		if err := saveFrames(ctx, o, sorted, outputDir, logger); err != nil {
			return nil, err
		}
	} else {
		for i := range sorted {
			o.progress(float64(i+1) / float64(len(sorted)+1))
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := colmap.WriteModel(outputDir, model, o.format); err != nil {
		return nil, errors.Wrapf(err, "cannot write model to %q", outputDir)
	}
	o.progress(1)
	logger.Infow("exported model", "dir", outputDir, "format", o.format, "images", len(model.Images))
	return model, nil
}

// BuildModel derives the model for cameras, numbering them 1..N in the given order. It
// writes nothing.
func BuildModel(cameras []scene.Camera, poseOpts ...transform.PoseOption) (*colmap.Model, error) {
	model := colmap.NewModel()
	for i, cam := range cameras {
		id := uint32(i + 1)
		intrinsics, err := transform.NewPinholeCameraIntrinsics(cam.Parameters)
		if err != nil {
			return nil, errors.Wrapf(err, "camera %q", cam.Name)
		}
		pose := transform.ConvertPose(cam.Rotation, cam.Location, poseOpts...)
		model.Cameras[id] = colmap.Camera{
			ID:     id,
			Model:  colmap.OpenCV.Name,
			Width:  uint64(intrinsics.Width),
			Height: uint64(intrinsics.Height),
			Params: intrinsics.OpenCVParams(),
		}
		model.Images[id] = colmap.Image{
			ID:       id,
			Qvec:     pose.Rotation,
			Tvec:     pose.Translation,
			CameraID: id,
			Name:     cam.ImageName(),
		}
	}
	return model, nil
}

func prepareDirectory(dir string) error {
	if dir == "" {
		return NewInvalidOutputDirectoryError(dir, errors.New("empty path"))
	}
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return NewInvalidOutputDirectoryError(dir, errors.New("not a directory"))
	case err == nil:
		return nil
	case !os.IsNotExist(err):
		return NewInvalidOutputDirectoryError(dir, err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return NewInvalidOutputDirectoryError(dir, err)
	}
	return nil
}

// saveFrames renders every camera into the images directory, reporting progress as
// frames complete.
func saveFrames(ctx context.Context, o options, cameras []scene.Camera, outputDir string, logger logging.Logger) error {
	imagesDir := filepath.Join(outputDir, ImagesDirName)
	if err := os.MkdirAll(imagesDir, 0o755); err != nil {
		return errors.Wrap(err, "cannot create images directory")
	}
	total := float64(len(cameras) + 1)
	var mu sync.Mutex
	var done int
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.parallelism)
	for _, cam := range cameras {
		g.Go(func() error {
			if err := saveFrame(ctx, o, cam, imagesDir); err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			done++
			logger.Debugw("saved frame", "camera", cam.Name, "done", done)
			o.progress(float64(done) / total)
			return nil
		})
	}
	return g.Wait()
}

func saveFrame(ctx context.Context, o options, cam scene.Camera, imagesDir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	img, err := o.renderer.Render(ctx, cam)
	if err != nil {
		return errors.Wrapf(err, "cannot render camera %q", cam.Name)
	}
	path := filepath.Join(imagesDir, cam.ImageName())
	if err := imaging.Save(img, path, imaging.JPEGQuality(o.jpegQuality)); err != nil {
		return errors.Wrapf(err, "cannot save frame %q", path)
	}
	return nil
}
