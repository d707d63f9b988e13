package export

import (
	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/scene"
	"go.viam.com/colmapexport/transform"
)

// DefaultJPEGQuality is used for saved frames unless WithJPEGQuality says otherwise.
const DefaultJPEGQuality = 95

// options configures an export.
type options struct {
	format      colmap.Format
	renderer    scene.Renderer
	progress    func(float64)
	poseOptions []transform.PoseOption
	jpegQuality int
	parallelism int
}

func defaultOptions() options {
	return options{
		format:      colmap.FormatText,
		progress:    func(float64) {},
		jpegQuality: DefaultJPEGQuality,
		parallelism: 1,
	}
}

// Option configures how an export is run.
type Option interface {
	apply(*options)
}

// funcOption wraps a function that modifies options into an
// implementation of the Option interface.
type funcOption struct {
	f func(*options)
}

func (fdo *funcOption) apply(do *options) {
	fdo.f(do)
}

func newFuncOption(f func(*options)) *funcOption {
	return &funcOption{
		f: f,
	}
}

// WithFormat selects the layout the model is written in. The default is text.
func WithFormat(f colmap.Format) Option {
	return newFuncOption(func(o *options) {
		o.format = f
	})
}

// WithRenderer renders every camera and saves its frame into the images directory.
// Without a renderer only the model is written.
func WithRenderer(r scene.Renderer) Option {
	return newFuncOption(func(o *options) {
		o.renderer = r
	})
}

// WithProgress registers a callback receiving the completed fraction in [0, 1].
func WithProgress(progress func(float64)) Option {
	return newFuncOption(func(o *options) {
		if progress != nil {
			o.progress = progress
		}
	})
}

// WithRenormalization normalizes every converted rotation.
func WithRenormalization() Option {
	return newFuncOption(func(o *options) {
		o.poseOptions = append(o.poseOptions, transform.WithRenormalization())
	})
}

// WithJPEGQuality sets the quality of saved frames, 1 to 100.
func WithJPEGQuality(quality int) Option {
	return newFuncOption(func(o *options) {
		o.jpegQuality = quality
	})
}

// WithParallelism renders and saves up to n frames at once. Renderers must then be safe
// for concurrent use.
func WithParallelism(n int) Option {
	return newFuncOption(func(o *options) {
		if n > 0 {
			o.parallelism = n
		}
	})
}
