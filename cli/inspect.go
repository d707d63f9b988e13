package cli

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
)

// InspectAction is the corresponding action for 'inspect'.
func InspectAction(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return errors.New("inspect needs exactly one model directory")
	}
	dir := c.Args().First()
	model, format, err := readModel(dir, inspectFlagFormat, c.String(inspectFlagFormat))
	if err != nil {
		return err
	}
	logging.Global().Debugw("read model", "dir", dir, "format", format)

	printf(c.App.Writer, "%s model in %s: %d cameras, %d images, %d points", format, dir,
		len(model.Cameras), len(model.Images), len(model.Points3D))
	printf(c.App.Writer, "%s", CamerasTable(model))
	printf(c.App.Writer, "%s", ImagesTable(model))
	if plotPath := c.Path(inspectFlagPlot); plotPath != "" {
		if err := plotCenters(model, plotPath); err != nil {
			return err
		}
		printf(c.App.Writer, "Saved camera plot to %s", plotPath)
	}
	return nil
}

// readModel reads the model in dir, detecting the format when the flag is empty.
func readModel(dir, flag, formatFlag string) (*colmap.Model, colmap.Format, error) {
	var format colmap.Format
	var err error
	if formatFlag == "" {
		format, err = colmap.DetectFormat(dir)
	} else {
		format, err = parseStrictFormatFlag(flag, formatFlag)
	}
	if err != nil {
		return nil, "", err
	}
	model, err := colmap.ReadModel(dir, format)
	if err != nil {
		return nil, "", err
	}
	return model, format, nil
}

// CamerasTable prints out a table of each camera, with columns of id, model, size and params.
func CamerasTable(model *colmap.Model) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Model", "Width", "Height", "Params"})
	for _, id := range sortedIDs(model.Cameras) {
		cam := model.Cameras[id]
		t.AppendRow(table.Row{cam.ID, cam.Model, cam.Width, cam.Height, formatFloats(cam.Params)})
	}
	return t.Render()
}

// ImagesTable prints out a table of each image, with its pose and the world position of its
// projection center.
func ImagesTable(model *colmap.Model) string {
	t := table.NewWriter()
	t.AppendHeader(table.Row{"ID", "Name", "Camera", "Rotation (w x y z)", "Translation", "Center", "Points2D"})
	for _, id := range sortedIDs(model.Images) {
		img := model.Images[id]
		center := img.ProjectionCenter()
		t.AppendRow(table.Row{
			img.ID,
			img.Name,
			img.CameraID,
			formatFloats([]float64{img.Qvec.Real, img.Qvec.Imag, img.Qvec.Jmag, img.Qvec.Kmag}),
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", img.Tvec.X, img.Tvec.Y, img.Tvec.Z),
			fmt.Sprintf("X:%.3f, Y:%.3f, Z:%.3f", center.X, center.Y, center.Z),
			len(img.Xys),
		})
	}
	return t.Render()
}
