package export

import (
	"context"
	"image"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
	"go.viam.com/colmapexport/scene"
	"go.viam.com/colmapexport/spatialmath"
	"go.viam.com/colmapexport/transform"
)

func testCamera(name string, location r3.Vector) scene.Camera {
	return scene.Camera{
		Name: name,
		Parameters: transform.CameraParameters{
			FocalLengthMM:        50,
			SensorWidthMM:        36,
			SensorHeightMM:       24,
			ResolutionX:          1920,
			ResolutionY:          1080,
			ResolutionPercentage: 100,
			PixelAspectX:         1,
			PixelAspectY:         1,
		},
		Rotation: spatialmath.QuatFromAxisAngle(r3.Vector{X: 1, Y: 0.5, Z: -0.25}, location.Norm()),
		Location: location,
	}
}

type fakeRenderer struct {
	mu       sync.Mutex
	rendered []string
	err      error
}

func (r *fakeRenderer) Render(ctx context.Context, cam scene.Camera) (image.Image, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.mu.Lock()
	r.rendered = append(r.rendered, cam.Name)
	r.mu.Unlock()
	w, h := cam.Parameters.ImageSize()
	return imaging.New(w, h, color.NRGBA{G: 255, A: 255}), nil
}

func TestExportNumbersByImageName(t *testing.T) {
	logger := logging.NewTestLogger(t)
	dir := t.TempDir()
	cameras := []scene.Camera{
		testCamera("B", r3.Vector{X: 1, Y: 2, Z: 3}),
		testCamera("A", r3.Vector{X: -4, Y: 0, Z: 0.5}),
	}
	model, err := Export(context.Background(), cameras, dir, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Images[1].Name, test.ShouldEqual, "A.jpg")
	test.That(t, model.Images[2].Name, test.ShouldEqual, "B.jpg")
	test.That(t, model.Images[1].CameraID, test.ShouldEqual, uint32(1))
	test.That(t, model.Images[2].CameraID, test.ShouldEqual, uint32(2))
	test.That(t, model.Points3D, test.ShouldBeEmpty)

	read, err := colmap.ReadModel(dir, colmap.FormatText)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cmp.Diff(model, read, cmpopts.EquateEmpty()), test.ShouldBeEmpty)
}

func TestExportIntrinsics(t *testing.T) {
	model, err := Export(context.Background(), []scene.Camera{testCamera("cam", r3.Vector{})}, t.TempDir(),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	c := model.Cameras[1]
	test.That(t, c.Model, test.ShouldEqual, "OPENCV")
	test.That(t, c.Width, test.ShouldEqual, uint64(1920))
	test.That(t, c.Height, test.ShouldEqual, uint64(1080))
	test.That(t, c.Params[0], test.ShouldAlmostEqual, 2666.6666, 1e-3)
	test.That(t, c.Params[1], test.ShouldEqual, c.Params[0])
	test.That(t, c.Params[2:], test.ShouldResemble, []float64{960, 540, 0, 0, 0, 0})
	test.That(t, model.Images[1].Tvec, test.ShouldResemble, r3.Vector{})
}

func TestExportRecoversLocations(t *testing.T) {
	dir := t.TempDir()
	locations := map[string]r3.Vector{
		"front": {X: 0, Y: -10, Z: 2},
		"left":  {X: -7.5, Y: 3, Z: 1},
		"top":   {X: 0.25, Y: 0.5, Z: 12},
	}
	var cameras []scene.Camera
	for name, loc := range locations {
		cameras = append(cameras, testCamera(name, loc))
	}
	_, err := Export(context.Background(), cameras, dir, logging.NewTestLogger(t), WithFormat(colmap.FormatBinary))
	test.That(t, err, test.ShouldBeNil)

	read, err := colmap.ReadModel(dir, colmap.FormatBinary)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(read.Images), test.ShouldEqual, 3)
	for _, img := range read.Images {
		want := locations[img.Name[:len(img.Name)-len(scene.ImageExtension)]]
		center := img.ProjectionCenter()
		test.That(t, center.Sub(want).Norm(), test.ShouldBeLessThan, 1e-9)
		test.That(t, spatialmath.Norm(img.Qvec), test.ShouldAlmostEqual, 1, 1e-12)
	}
}

func TestExportPixelAspectWritesNothing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	bad := testCamera("bad", r3.Vector{X: 1})
	bad.Parameters.PixelAspectX = 2
	renderer := &fakeRenderer{}
	_, err := Export(context.Background(), []scene.Camera{testCamera("good", r3.Vector{}), bad}, dir,
		logging.NewTestLogger(t), WithRenderer(renderer))
	test.That(t, errors.Is(err, transform.ErrUnsupportedPixelAspect), test.ShouldBeTrue)
	test.That(t, err.Error(), test.ShouldContainSubstring, `"bad"`)
	test.That(t, renderer.rendered, test.ShouldBeEmpty)
	_, err = os.Stat(dir)
	test.That(t, os.IsNotExist(err), test.ShouldBeTrue)
}

func TestExportInvalidOutputDirectory(t *testing.T) {
	file := filepath.Join(t.TempDir(), "file")
	test.That(t, os.WriteFile(file, []byte("x"), 0o600), test.ShouldBeNil)

	cameras := []scene.Camera{testCamera("a", r3.Vector{})}
	_, err := Export(context.Background(), cameras, file, logging.NewTestLogger(t))
	test.That(t, errors.Is(err, ErrInvalidOutputDirectory), test.ShouldBeTrue)

	_, err = Export(context.Background(), cameras, filepath.Join(file, "below"), logging.NewTestLogger(t))
	test.That(t, errors.Is(err, ErrInvalidOutputDirectory), test.ShouldBeTrue)

	_, err = Export(context.Background(), cameras, "", logging.NewTestLogger(t))
	test.That(t, errors.Is(err, ErrInvalidOutputDirectory), test.ShouldBeTrue)
}

func TestExportCreatesNestedDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b", "sparse")
	_, err := Export(context.Background(), []scene.Camera{testCamera("a", r3.Vector{})}, dir, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	f, err := colmap.DetectFormat(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, colmap.FormatText)
}

func TestExportProgress(t *testing.T) {
	var progress []float64
	cameras := []scene.Camera{
		testCamera("c", r3.Vector{}), testCamera("a", r3.Vector{}), testCamera("b", r3.Vector{}),
	}
	_, err := Export(context.Background(), cameras, t.TempDir(), logging.NewTestLogger(t),
		WithProgress(func(p float64) { progress = append(progress, p) }))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, progress, test.ShouldResemble, []float64{0.25, 0.5, 0.75, 1})

	progress = nil
	_, err = Export(context.Background(), nil, t.TempDir(), logging.NewTestLogger(t),
		WithProgress(func(p float64) { progress = append(progress, p) }))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, progress, test.ShouldResemble, []float64{1})
}

func TestExportEmptyScene(t *testing.T) {
	dir := t.TempDir()
	model, err := Export(context.Background(), nil, dir, logging.NewTestLogger(t), WithFormat(colmap.FormatBinary))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, model.Cameras, test.ShouldBeEmpty)

	cameras, _, _ := colmap.FormatBinary.Files(dir)
	info, err := os.Stat(cameras)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, info.Size(), test.ShouldEqual, int64(8))
}

func TestExportRendersFrames(t *testing.T) {
	dir := t.TempDir()
	small := testCamera("small", r3.Vector{Z: 1})
	small.Parameters.ResolutionPercentage = 10
	renderer := &fakeRenderer{}
	_, err := Export(context.Background(), []scene.Camera{small, testCamera("full", r3.Vector{})}, dir,
		logging.NewTestLogger(t), WithRenderer(renderer), WithJPEGQuality(80))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, renderer.rendered, test.ShouldResemble, []string{"full", "small"})

	img, err := imaging.Open(filepath.Join(dir, ImagesDirName, "small.jpg"))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, img.Bounds().Dx(), test.ShouldEqual, 192)
	test.That(t, img.Bounds().Dy(), test.ShouldEqual, 108)
	_, err = os.Stat(filepath.Join(dir, ImagesDirName, "full.jpg"))
	test.That(t, err, test.ShouldBeNil)
}

func TestExportRenderFailure(t *testing.T) {
	dir := t.TempDir()
	renderErr := errors.New("engine crashed")
	_, err := Export(context.Background(), []scene.Camera{testCamera("a", r3.Vector{})}, dir,
		logging.NewTestLogger(t), WithRenderer(&fakeRenderer{err: renderErr}))
	test.That(t, errors.Is(err, renderErr), test.ShouldBeTrue)
	_, err = colmap.DetectFormat(dir)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestExportCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dir := t.TempDir()
	_, err := Export(ctx, []scene.Camera{testCamera("a", r3.Vector{})}, dir, logging.NewTestLogger(t))
	test.That(t, errors.Is(err, context.Canceled), test.ShouldBeTrue)
	_, err = colmap.DetectFormat(dir)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestExportUnknownFormatWarns(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	dir := t.TempDir()
	_, err := Export(context.Background(), []scene.Camera{testCamera("a", r3.Vector{})}, dir, logger,
		WithFormat(colmap.Format(".ply")))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, logs.FilterMessage("unrecognized model format, writing text").Len(), test.ShouldEqual, 1)
	f, err := colmap.DetectFormat(dir)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, f, test.ShouldEqual, colmap.FormatText)
}

func TestBuildModelRenormalization(t *testing.T) {
	cam := testCamera("a", r3.Vector{X: 1, Y: 2, Z: 3})
	cam.Rotation = quat.Scale(2, cam.Rotation)

	model, err := BuildModel([]scene.Camera{cam})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.Norm(model.Images[1].Qvec), test.ShouldAlmostEqual, 2, 1e-12)

	model, err = BuildModel([]scene.Camera{cam}, transform.WithRenormalization())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.Norm(model.Images[1].Qvec), test.ShouldAlmostEqual, 1, 1e-12)
	center := model.Images[1].ProjectionCenter()
	test.That(t, center.Sub(cam.Location).Norm(), test.ShouldBeLessThan, 1e-9)
	test.That(t, math.IsNaN(center.X), test.ShouldBeFalse)
}

func TestExportParallelFrames(t *testing.T) {
	dir := t.TempDir()
	var cameras []scene.Camera
	var names []string
	for _, name := range []string{"e", "d", "c", "b", "a", "f"} {
		cam := testCamera(name, r3.Vector{X: 1})
		cam.Parameters.ResolutionPercentage = 5
		cameras = append(cameras, cam)
		names = append(names, name)
	}
	renderer := &fakeRenderer{}
	var mu sync.Mutex
	var progress []float64
	_, err := Export(context.Background(), cameras, dir, logging.NewTestLogger(t),
		WithRenderer(renderer), WithParallelism(4),
		WithProgress(func(p float64) {
			mu.Lock()
			defer mu.Unlock()
			progress = append(progress, p)
		}))
	test.That(t, err, test.ShouldBeNil)

	slices.Sort(renderer.rendered)
	slices.Sort(names)
	test.That(t, renderer.rendered, test.ShouldResemble, names)
	test.That(t, len(progress), test.ShouldEqual, 7)
	test.That(t, slices.IsSorted(progress), test.ShouldBeTrue)
	test.That(t, progress[6], test.ShouldEqual, 1.)
	for _, name := range names {
		_, err := os.Stat(filepath.Join(dir, ImagesDirName, name+".jpg"))
		test.That(t, err, test.ShouldBeNil)
	}
}
