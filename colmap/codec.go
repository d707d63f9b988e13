package colmap

import (
	"bufio"
	"cmp"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"go.uber.org/multierr"
	"go.viam.com/utils"
)

// Format is the on-disk layout of a model, named after its file extension.
type Format string

const (
	// FormatText is the human-readable layout, cameras.txt, images.txt and points3D.txt.
	FormatText Format = ".txt"
	// FormatBinary is the little-endian layout, cameras.bin, images.bin and points3D.bin.
	FormatBinary Format = ".bin"
)

const (
	camerasBaseName  = "cameras"
	imagesBaseName   = "images"
	points3DBaseName = "points3D"
)

// ParseFormat maps ".txt", "txt", ".bin" or "bin" to a Format. Any other value falls back
// to FormatText and reports ok=false so callers can warn about it.
func ParseFormat(s string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ".txt", "txt":
		return FormatText, true
	case ".bin", "bin":
		return FormatBinary, true
	default:
		return FormatText, false
	}
}

// Files returns the paths of the cameras, images and points3D files of a model in dir.
func (f Format) Files(dir string) (cameras, images, points3D string) {
	return filepath.Join(dir, camerasBaseName+string(f)),
		filepath.Join(dir, imagesBaseName+string(f)),
		filepath.Join(dir, points3DBaseName+string(f))
}

// Codec serializes the three record types of a model in one layout.
type Codec interface {
	Format() Format
	WriteCameras(w io.Writer, cameras map[uint32]Camera) error
	WriteImages(w io.Writer, images map[uint32]Image) error
	WritePoints3D(w io.Writer, points map[uint64]Point3D) error
	ReadCameras(r io.Reader) (map[uint32]Camera, error)
	ReadImages(r io.Reader) (map[uint32]Image, error)
	ReadPoints3D(r io.Reader) (map[uint64]Point3D, error)
}

// NewCodec returns the codec for a format. Unknown formats get the text codec.
func NewCodec(f Format) Codec {
	if f == FormatBinary {
		return BinaryCodec{}
	}
	return TextCodec{}
}

// WriteModel validates model and writes its three files into dir. Each file is written
// to a temporary sibling first and renamed into place once complete.
func WriteModel(dir string, model *Model, f Format) error {
	if err := model.Validate(); err != nil {
		return errors.Wrap(err, "refusing to write invalid model")
	}
	codec := NewCodec(f)
	camerasPath, imagesPath, pointsPath := codec.Format().Files(dir)
	if err := writeFileAtomic(camerasPath, func(w io.Writer) error {
		return codec.WriteCameras(w, model.Cameras)
	}); err != nil {
		return err
	}
	if err := writeFileAtomic(imagesPath, func(w io.Writer) error {
		return codec.WriteImages(w, model.Images)
	}); err != nil {
		return err
	}
	return writeFileAtomic(pointsPath, func(w io.Writer) error {
		return codec.WritePoints3D(w, model.Points3D)
	})
}

// ReadModel reads the three files of a model in dir.
func ReadModel(dir string, f Format) (*Model, error) {
	codec := NewCodec(f)
	camerasPath, imagesPath, pointsPath := codec.Format().Files(dir)
	model := NewModel()
	if err := readFile(camerasPath, func(r io.Reader) error {
		cameras, err := codec.ReadCameras(r)
		model.Cameras = cameras
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(imagesPath, func(r io.Reader) error {
		images, err := codec.ReadImages(r)
		model.Images = images
		return err
	}); err != nil {
		return nil, err
	}
	if err := readFile(pointsPath, func(r io.Reader) error {
		points, err := codec.ReadPoints3D(r)
		model.Points3D = points
		return err
	}); err != nil {
		return nil, err
	}
	return model, nil
}

// DetectFormat reports which complete model is present in dir, preferring binary.
func DetectFormat(dir string) (Format, error) {
	for _, f := range []Format{FormatBinary, FormatText} {
		c, i, p := f.Files(dir)
		if lo.EveryBy([]string{c, i, p}, fileExists) {
			return f, nil
		}
	}
	return "", errors.Errorf("no complete %s or %s model found in %q", FormatBinary, FormatText, dir)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.Wrapf(err, "error creating %q", path)
	}
	defer func() {
		if err != nil {
			err = multierr.Combine(err, os.Remove(tmp.Name()))
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		err = multierr.Combine(errors.Wrapf(err, "error writing %q", path), tmp.Close())
		return err
	}
	if err = multierr.Combine(bw.Flush(), tmp.Sync(), tmp.Close()); err != nil {
		return errors.Wrapf(err, "error writing %q", path)
	}
	if err = os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.Wrapf(err, "error writing %q", path)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return errors.Wrapf(err, "error moving %q into place", path)
	}
	return nil
}

func readFile(path string, read func(r io.Reader) error) error {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "error opening %q", path)
	}
	defer utils.UncheckedErrorFunc(f.Close)
	if err := read(bufio.NewReader(f)); err != nil {
		return errors.Wrapf(err, "error reading %q", path)
	}
	return nil
}

// sortedKeys returns the keys of m in ascending order so output is deterministic.
func sortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := lo.Keys(m)
	slices.Sort(keys)
	return keys
}
