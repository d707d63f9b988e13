package cli

import (
	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"

	"go.viam.com/colmapexport/colmap"
)

const plotSize = 6 * vg.Inch

// plotCenters saves a top-down view of every image's projection center, labeled with the
// image name. The file type follows the extension of path, e.g. png or svg.
func plotCenters(model *colmap.Model, path string) error {
	if len(model.Images) == 0 {
		return errors.New("model has no images to plot")
	}
	xys := make(plotter.XYs, 0, len(model.Images))
	labels := make([]string, 0, len(model.Images))
	for _, id := range sortedIDs(model.Images) {
		img := model.Images[id]
		center := img.ProjectionCenter()
		xys = append(xys, plotter.XY{X: center.X, Y: center.Y})
		labels = append(labels, img.Name)
	}

	p := plot.New()
	p.Title.Text = "Camera centers, top view"
	p.X.Label.Text = "X"
	p.Y.Label.Text = "Y"

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		return err
	}
	names, err := plotter.NewLabels(plotter.XYLabels{XYs: xys, Labels: labels})
	if err != nil {
		return err
	}
	p.Add(plotter.NewGrid(), scatter, names)
	if err := p.Save(plotSize, plotSize, path); err != nil {
		return errors.Wrapf(err, "cannot save plot %q", path)
	}
	return nil
}
