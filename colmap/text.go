package colmap

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/num/quat"
)

const textCommentChar = "#"

// TextCodec reads and writes the human-readable layout. Floats are written with the
// shortest representation that parses back to the identical float64.
type TextCodec struct{}

// Format returns FormatText.
func (TextCodec) Format() Format {
	return FormatText
}

// lineWriter remembers the first write error so a whole file can be emitted before checking.
type lineWriter struct {
	w   io.Writer
	err error
}

func (lw *lineWriter) line(fields ...string) {
	if lw.err != nil {
		return
	}
	_, lw.err = io.WriteString(lw.w, strings.Join(fields, " ")+"\n")
}

func (lw *lineWriter) comment(format string, args ...interface{}) {
	lw.line(textCommentChar + " " + fmt.Sprintf(format, args...))
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// WriteCameras writes one line per camera: CAMERA_ID MODEL WIDTH HEIGHT PARAMS[].
func (TextCodec) WriteCameras(w io.Writer, cameras map[uint32]Camera) error {
	lw := &lineWriter{w: w}
	lw.comment("Camera list with one line of data per camera:")
	lw.comment("  CAMERA_ID, MODEL, WIDTH, HEIGHT, PARAMS[]")
	lw.comment("Number of cameras: %d", len(cameras))
	for _, id := range sortedKeys(cameras) {
		c := cameras[id]
		fields := make([]string, 0, 4+len(c.Params))
		fields = append(fields,
			strconv.FormatUint(uint64(c.ID), 10),
			c.Model,
			strconv.FormatUint(c.Width, 10),
			strconv.FormatUint(c.Height, 10))
		for _, p := range c.Params {
			fields = append(fields, formatFloat(p))
		}
		lw.line(fields...)
	}
	return lw.err
}

// WriteImages writes two lines per image, the pose line
// IMAGE_ID QW QX QY QZ TX TY TZ CAMERA_ID NAME and the keypoint line of X Y POINT3D_ID triples.
func (TextCodec) WriteImages(w io.Writer, images map[uint32]Image) error {
	lw := &lineWriter{w: w}
	lw.comment("Image list with two lines of data per image:")
	lw.comment("  IMAGE_ID, QW, QX, QY, QZ, TX, TY, TZ, CAMERA_ID, NAME")
	lw.comment("  POINTS2D[] as (X, Y, POINT3D_ID)")
	lw.comment("Number of images: %d, mean observations per image: %s", len(images), formatFloat(meanObservations(images)))
	for _, id := range sortedKeys(images) {
		img := images[id]
		lw.line(
			strconv.FormatUint(uint64(img.ID), 10),
			formatFloat(img.Qvec.Real), formatFloat(img.Qvec.Imag), formatFloat(img.Qvec.Jmag), formatFloat(img.Qvec.Kmag),
			formatFloat(img.Tvec.X), formatFloat(img.Tvec.Y), formatFloat(img.Tvec.Z),
			strconv.FormatUint(uint64(img.CameraID), 10),
			img.Name,
		)
		points := make([]string, 0, 3*len(img.Xys))
		for i, xy := range img.Xys {
			points = append(points, formatFloat(xy.X), formatFloat(xy.Y), strconv.FormatInt(img.Point3DIDs[i], 10))
		}
		lw.line(points...)
	}
	return lw.err
}

// WritePoints3D writes one line per point: POINT3D_ID X Y Z R G B ERROR TRACK[].
func (TextCodec) WritePoints3D(w io.Writer, points map[uint64]Point3D) error {
	lw := &lineWriter{w: w}
	lw.comment("3D point list with one line of data per point:")
	lw.comment("  POINT3D_ID, X, Y, Z, R, G, B, ERROR, TRACK[] as (IMAGE_ID, POINT2D_IDX)")
	lw.comment("Number of points: %d, mean track length: %s", len(points), formatFloat(meanTrackLength(points)))
	for _, id := range sortedKeys(points) {
		p := points[id]
		fields := make([]string, 0, 8+2*len(p.ImageIDs))
		fields = append(fields,
			strconv.FormatUint(p.ID, 10),
			formatFloat(p.XYZ.X), formatFloat(p.XYZ.Y), formatFloat(p.XYZ.Z),
			strconv.Itoa(int(p.RGB[0])), strconv.Itoa(int(p.RGB[1])), strconv.Itoa(int(p.RGB[2])),
			formatFloat(p.Error))
		for i, imageID := range p.ImageIDs {
			fields = append(fields, strconv.FormatUint(uint64(imageID), 10), strconv.FormatUint(uint64(p.Point2DIdxs[i]), 10))
		}
		lw.line(fields...)
	}
	return lw.err
}

// lineReader yields lines with their line numbers for error reporting.
type lineReader struct {
	in     *bufio.Reader
	file   string
	lineNo int
}

func newLineReader(r io.Reader, file string) *lineReader {
	return &lineReader{in: bufio.NewReader(r), file: file}
}

// raw returns the next line without its line ending. io.EOF is returned only when no data is left.
func (lr *lineReader) raw() (string, error) {
	line, err := lr.in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	lr.lineNo++
	return strings.TrimRight(line, "\r\n"), nil
}

// data returns the next line that is neither blank nor a comment.
func (lr *lineReader) data() (string, error) {
	for {
		line, err := lr.raw()
		if err != nil {
			return "", err
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, textCommentChar) {
			continue
		}
		return trimmed, nil
	}
}

func (lr *lineReader) errorf(format string, args ...interface{}) error {
	return NewMalformedModelFileErrorf(lr.file, "line %d: "+format, append([]interface{}{lr.lineNo}, args...)...)
}

func (lr *lineReader) parseUint(token string, bits int, what string) (uint64, error) {
	v, err := strconv.ParseUint(token, 10, bits)
	if err != nil {
		return 0, lr.errorf("invalid %s %q", what, token)
	}
	return v, nil
}

func (lr *lineReader) parseFloats(tokens []string, what string) ([]float64, error) {
	out := make([]float64, len(tokens))
	for i, token := range tokens {
		v, err := strconv.ParseFloat(token, 64)
		if err != nil {
			return nil, lr.errorf("invalid %s %q", what, token)
		}
		out[i] = v
	}
	return out, nil
}

// ReadCameras parses a cameras.txt body.
func (TextCodec) ReadCameras(r io.Reader) (map[uint32]Camera, error) {
	lr := newLineReader(r, camerasBaseName+string(FormatText))
	cameras := map[uint32]Camera{}
	for {
		line, err := lr.data()
		if errors.Is(err, io.EOF) {
			return cameras, nil
		}
		if err != nil {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) < 4 {
			return nil, lr.errorf("expected at least 4 fields, got %d", len(tokens))
		}
		id, err := lr.parseUint(tokens[0], 32, "camera id")
		if err != nil {
			return nil, err
		}
		model, err := CameraModelByName(tokens[1])
		if err != nil {
			return nil, errors.Wrapf(err, "%s line %d", lr.file, lr.lineNo)
		}
		width, err := lr.parseUint(tokens[2], 64, "width")
		if err != nil {
			return nil, err
		}
		height, err := lr.parseUint(tokens[3], 64, "height")
		if err != nil {
			return nil, err
		}
		if len(tokens)-4 != model.NumParams {
			return nil, lr.errorf("model %s needs %d params, got %d", model.Name, model.NumParams, len(tokens)-4)
		}
		params, err := lr.parseFloats(tokens[4:], "camera param")
		if err != nil {
			return nil, err
		}
		if _, ok := cameras[uint32(id)]; ok {
			return nil, lr.errorf("duplicate camera id %d", id)
		}
		cameras[uint32(id)] = Camera{ID: uint32(id), Model: model.Name, Width: width, Height: height, Params: params}
	}
}

// cutFields splits off the first n whitespace separated fields and returns the remainder
// with surrounding whitespace removed, so image names may contain spaces.
func cutFields(line string, n int) ([]string, string) {
	fields := make([]string, 0, n)
	rest := strings.TrimSpace(line)
	for len(fields) < n && rest != "" {
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			fields = append(fields, rest)
			rest = ""
			break
		}
		fields = append(fields, rest[:end])
		rest = strings.TrimLeft(rest[end:], " \t")
	}
	return fields, strings.TrimSpace(rest)
}

// ReadImages parses an images.txt body.
func (TextCodec) ReadImages(r io.Reader) (map[uint32]Image, error) {
	lr := newLineReader(r, imagesBaseName+string(FormatText))
	images := map[uint32]Image{}
	for {
		line, err := lr.data()
		if errors.Is(err, io.EOF) {
			return images, nil
		}
		if err != nil {
			return nil, err
		}
		tokens, name := cutFields(line, 9)
		if len(tokens) != 9 || name == "" {
			return nil, lr.errorf("expected 10 fields in image line")
		}
		id, err := lr.parseUint(tokens[0], 32, "image id")
		if err != nil {
			return nil, err
		}
		pose, err := lr.parseFloats(tokens[1:8], "pose value")
		if err != nil {
			return nil, err
		}
		cameraID, err := lr.parseUint(tokens[8], 32, "camera id")
		if err != nil {
			return nil, err
		}
		img := Image{
			ID:       uint32(id),
			Qvec:     quat.Number{Real: pose[0], Imag: pose[1], Jmag: pose[2], Kmag: pose[3]},
			Tvec:     r3.Vector{X: pose[4], Y: pose[5], Z: pose[6]},
			CameraID: uint32(cameraID),
			Name:     name,
		}

		pointsLine, err := lr.raw()
		if err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
		if img.Xys, img.Point3DIDs, err = lr.parseKeypoints(pointsLine); err != nil {
			return nil, err
		}
		if _, ok := images[img.ID]; ok {
			return nil, lr.errorf("duplicate image id %d", img.ID)
		}
		images[img.ID] = img
	}
}

func (lr *lineReader) parseKeypoints(line string) ([]r2.Point, []int64, error) {
	tokens := strings.Fields(line)
	if len(tokens)%3 != 0 {
		return nil, nil, lr.errorf("keypoint line has %d values, not a multiple of 3", len(tokens))
	}
	xys := make([]r2.Point, 0, len(tokens)/3)
	ids := make([]int64, 0, len(tokens)/3)
	for i := 0; i < len(tokens); i += 3 {
		xy, err := lr.parseFloats(tokens[i:i+2], "keypoint coordinate")
		if err != nil {
			return nil, nil, err
		}
		id, err := strconv.ParseInt(tokens[i+2], 10, 64)
		if err != nil {
			return nil, nil, lr.errorf("invalid point3D id %q", tokens[i+2])
		}
		xys = append(xys, r2.Point{X: xy[0], Y: xy[1]})
		ids = append(ids, id)
	}
	return xys, ids, nil
}

// ReadPoints3D parses a points3D.txt body.
func (TextCodec) ReadPoints3D(r io.Reader) (map[uint64]Point3D, error) {
	lr := newLineReader(r, points3DBaseName+string(FormatText))
	points := map[uint64]Point3D{}
	for {
		line, err := lr.data()
		if errors.Is(err, io.EOF) {
			return points, nil
		}
		if err != nil {
			return nil, err
		}
		tokens := strings.Fields(line)
		if len(tokens) < 8 || (len(tokens)-8)%2 != 0 {
			return nil, lr.errorf("unexpected number of fields %d", len(tokens))
		}
		id, err := lr.parseUint(tokens[0], 64, "point3D id")
		if err != nil {
			return nil, err
		}
		xyz, err := lr.parseFloats(tokens[1:4], "coordinate")
		if err != nil {
			return nil, err
		}
		p := Point3D{ID: id, XYZ: r3.Vector{X: xyz[0], Y: xyz[1], Z: xyz[2]}}
		for i := 0; i < 3; i++ {
			c, err := lr.parseUint(tokens[4+i], 8, "color")
			if err != nil {
				return nil, err
			}
			p.RGB[i] = uint8(c)
		}
		reprojErr, err := lr.parseFloats(tokens[7:8], "error")
		if err != nil {
			return nil, err
		}
		p.Error = reprojErr[0]
		track := tokens[8:]
		p.ImageIDs = make([]uint32, 0, len(track)/2)
		p.Point2DIdxs = make([]uint32, 0, len(track)/2)
		for i := 0; i < len(track); i += 2 {
			imageID, err := lr.parseUint(track[i], 32, "track image id")
			if err != nil {
				return nil, err
			}
			idx, err := lr.parseUint(track[i+1], 32, "track point2D index")
			if err != nil {
				return nil, err
			}
			p.ImageIDs = append(p.ImageIDs, uint32(imageID))
			p.Point2DIdxs = append(p.Point2DIdxs, uint32(idx))
		}
		if _, ok := points[p.ID]; ok {
			return nil, lr.errorf("duplicate point3D id %d", p.ID)
		}
		points[p.ID] = p
	}
}
