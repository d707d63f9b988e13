package colmap

import (
	"bufio"
	"encoding/binary"
	"io"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

// maxPrealloc bounds slice preallocation from counts read off disk so that a corrupt
// count fails on a short read instead of on allocation.
const maxPrealloc = 1 << 16

// BinaryCodec reads and writes the little-endian layout COLMAP uses for cameras.bin,
// images.bin and points3D.bin. Floats are stored as IEEE-754 float64 and round trip exactly.
type BinaryCodec struct{}

// Format returns FormatBinary.
func (BinaryCodec) Format() Format {
	return FormatBinary
}

type binaryCameraHeader struct {
	ID      uint32
	ModelID int32
	Width   uint64
	Height  uint64
}

type binaryImageHeader struct {
	ID       uint32
	Qvec     [4]float64
	Tvec     [3]float64
	CameraID uint32
}

type binaryKeypoint struct {
	X         float64
	Y         float64
	Point3DID int64
}

type binaryPointHeader struct {
	ID          uint64
	XYZ         [3]float64
	RGB         [3]uint8
	Error       float64
	TrackLength uint64
}

type binaryTrackElement struct {
	ImageID    uint32
	Point2DIdx uint32
}

// binaryWriter remembers the first write error.
type binaryWriter struct {
	w   io.Writer
	err error
}

func (bw *binaryWriter) write(data interface{}) {
	if bw.err != nil {
		return
	}
	bw.err = binary.Write(bw.w, binary.LittleEndian, data)
}

func (bw *binaryWriter) writeBytes(b []byte) {
	if bw.err != nil {
		return
	}
	_, bw.err = bw.w.Write(b)
}

// WriteCameras writes the camera count followed by one fixed-width record per camera.
func (BinaryCodec) WriteCameras(w io.Writer, cameras map[uint32]Camera) error {
	bw := &binaryWriter{w: w}
	bw.write(uint64(len(cameras)))
	for _, id := range sortedKeys(cameras) {
		c := cameras[id]
		model, err := CameraModelByName(c.Model)
		if err != nil {
			return errors.Wrapf(err, "camera %d", c.ID)
		}
		if len(c.Params) != model.NumParams {
			return errors.Errorf("camera %d: model %s needs %d params, got %d", c.ID, model.Name, model.NumParams, len(c.Params))
		}
		bw.write(binaryCameraHeader{ID: c.ID, ModelID: model.ID, Width: c.Width, Height: c.Height})
		bw.write(c.Params)
	}
	return bw.err
}

// WriteImages writes the image count followed by one record per image: header, null
// terminated name and keypoints.
func (BinaryCodec) WriteImages(w io.Writer, images map[uint32]Image) error {
	bw := &binaryWriter{w: w}
	bw.write(uint64(len(images)))
	for _, id := range sortedKeys(images) {
		img := images[id]
		if strings.IndexByte(img.Name, 0) >= 0 {
			return errors.Errorf("image %d name %q contains a null byte", img.ID, img.Name)
		}
		if len(img.Xys) != len(img.Point3DIDs) {
			return errors.Errorf("image %d has %d keypoints but %d point3D ids", img.ID, len(img.Xys), len(img.Point3DIDs))
		}
		bw.write(binaryImageHeader{
			ID:       img.ID,
			Qvec:     [4]float64{img.Qvec.Real, img.Qvec.Imag, img.Qvec.Jmag, img.Qvec.Kmag},
			Tvec:     [3]float64{img.Tvec.X, img.Tvec.Y, img.Tvec.Z},
			CameraID: img.CameraID,
		})
		bw.writeBytes(append([]byte(img.Name), 0))
		bw.write(uint64(len(img.Xys)))
		for i, xy := range img.Xys {
			bw.write(binaryKeypoint{X: xy.X, Y: xy.Y, Point3DID: img.Point3DIDs[i]})
		}
	}
	return bw.err
}

// WritePoints3D writes the point count followed by one record per point and its track.
func (BinaryCodec) WritePoints3D(w io.Writer, points map[uint64]Point3D) error {
	bw := &binaryWriter{w: w}
	bw.write(uint64(len(points)))
	for _, id := range sortedKeys(points) {
		p := points[id]
		if err := p.Validate(); err != nil {
			return err
		}
		bw.write(binaryPointHeader{
			ID:          p.ID,
			XYZ:         [3]float64{p.XYZ.X, p.XYZ.Y, p.XYZ.Z},
			RGB:         p.RGB,
			Error:       p.Error,
			TrackLength: uint64(len(p.ImageIDs)),
		})
		for i, imageID := range p.ImageIDs {
			bw.write(binaryTrackElement{ImageID: imageID, Point2DIdx: p.Point2DIdxs[i]})
		}
	}
	return bw.err
}

// binaryReader wraps short reads as malformed file errors.
type binaryReader struct {
	in   *bufio.Reader
	file string
}

func newBinaryReader(r io.Reader, file string) *binaryReader {
	return &binaryReader{in: bufio.NewReader(r), file: file}
}

func (br *binaryReader) read(what string, data interface{}) error {
	if err := binary.Read(br.in, binary.LittleEndian, data); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return NewMalformedModelFileErrorf(br.file, "truncated while reading %s", what)
		}
		return err
	}
	return nil
}

func (br *binaryReader) count(what string) (uint64, error) {
	var n uint64
	if err := br.read(what+" count", &n); err != nil {
		return 0, err
	}
	return n, nil
}

func (br *binaryReader) nullTerminated(what string) (string, error) {
	s, err := br.in.ReadString(0)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", NewMalformedModelFileErrorf(br.file, "unterminated %s", what)
		}
		return "", err
	}
	return s[:len(s)-1], nil
}

// expectEOF reports trailing bytes after the last record, which indicate a layout mismatch.
func (br *binaryReader) expectEOF() error {
	if _, err := br.in.ReadByte(); err == nil {
		return NewMalformedModelFileErrorf(br.file, "unexpected trailing data")
	} else if !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func preallocSize(n uint64) int {
	if n > maxPrealloc {
		return maxPrealloc
	}
	return int(n)
}

// ReadCameras parses a cameras.bin body.
func (BinaryCodec) ReadCameras(r io.Reader) (map[uint32]Camera, error) {
	br := newBinaryReader(r, camerasBaseName+string(FormatBinary))
	n, err := br.count("camera")
	if err != nil {
		return nil, err
	}
	cameras := make(map[uint32]Camera, preallocSize(n))
	for i := uint64(0); i < n; i++ {
		var header binaryCameraHeader
		if err := br.read("camera", &header); err != nil {
			return nil, err
		}
		model, err := CameraModelByID(header.ModelID)
		if err != nil {
			return nil, errors.Wrapf(err, "%s camera %d", br.file, header.ID)
		}
		params := make([]float64, model.NumParams)
		if err := br.read("camera params", params); err != nil {
			return nil, err
		}
		if _, ok := cameras[header.ID]; ok {
			return nil, NewMalformedModelFileErrorf(br.file, "duplicate camera id %d", header.ID)
		}
		cameras[header.ID] = Camera{ID: header.ID, Model: model.Name, Width: header.Width, Height: header.Height, Params: params}
	}
	return cameras, br.expectEOF()
}

// ReadImages parses an images.bin body.
func (BinaryCodec) ReadImages(r io.Reader) (map[uint32]Image, error) {
	br := newBinaryReader(r, imagesBaseName+string(FormatBinary))
	n, err := br.count("image")
	if err != nil {
		return nil, err
	}
	images := make(map[uint32]Image, preallocSize(n))
	for i := uint64(0); i < n; i++ {
		var header binaryImageHeader
		if err := br.read("image", &header); err != nil {
			return nil, err
		}
		name, err := br.nullTerminated("image name")
		if err != nil {
			return nil, err
		}
		numPoints, err := br.count("keypoint")
		if err != nil {
			return nil, err
		}
		img := Image{
			ID:         header.ID,
			Qvec:       quat.Number{Real: header.Qvec[0], Imag: header.Qvec[1], Jmag: header.Qvec[2], Kmag: header.Qvec[3]},
			Tvec:       r3.Vector{X: header.Tvec[0], Y: header.Tvec[1], Z: header.Tvec[2]},
			CameraID:   header.CameraID,
			Name:       name,
			Xys:        make([]r2.Point, 0, preallocSize(numPoints)),
			Point3DIDs: make([]int64, 0, preallocSize(numPoints)),
		}
		for j := uint64(0); j < numPoints; j++ {
			var kp binaryKeypoint
			if err := br.read("keypoint", &kp); err != nil {
				return nil, err
			}
			img.Xys = append(img.Xys, r2.Point{X: kp.X, Y: kp.Y})
			img.Point3DIDs = append(img.Point3DIDs, kp.Point3DID)
		}
		if _, ok := images[img.ID]; ok {
			return nil, NewMalformedModelFileErrorf(br.file, "duplicate image id %d", img.ID)
		}
		images[img.ID] = img
	}
	return images, br.expectEOF()
}

// ReadPoints3D parses a points3D.bin body.
func (BinaryCodec) ReadPoints3D(r io.Reader) (map[uint64]Point3D, error) {
	br := newBinaryReader(r, points3DBaseName+string(FormatBinary))
	n, err := br.count("point3D")
	if err != nil {
		return nil, err
	}
	points := make(map[uint64]Point3D, preallocSize(n))
	for i := uint64(0); i < n; i++ {
		var header binaryPointHeader
		if err := br.read("point3D", &header); err != nil {
			return nil, err
		}
		p := Point3D{
			ID:          header.ID,
			XYZ:         r3.Vector{X: header.XYZ[0], Y: header.XYZ[1], Z: header.XYZ[2]},
			RGB:         header.RGB,
			Error:       header.Error,
			ImageIDs:    make([]uint32, 0, preallocSize(header.TrackLength)),
			Point2DIdxs: make([]uint32, 0, preallocSize(header.TrackLength)),
		}
		for j := uint64(0); j < header.TrackLength; j++ {
			var el binaryTrackElement
			if err := br.read("track", &el); err != nil {
				return nil, err
			}
			p.ImageIDs = append(p.ImageIDs, el.ImageID)
			p.Point2DIdxs = append(p.Point2DIdxs, el.Point2DIdx)
		}
		if _, ok := points[p.ID]; ok {
			return nil, NewMalformedModelFileErrorf(br.file, "duplicate point3D id %d", p.ID)
		}
		points[p.ID] = p
	}
	return points, br.expectEOF()
}
