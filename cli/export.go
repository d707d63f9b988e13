package cli

import (
	"context"
	"os"
	"os/signal"

	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"

	"go.viam.com/colmapexport/config"
	"go.viam.com/colmapexport/export"
	"go.viam.com/colmapexport/logging"
	"go.viam.com/colmapexport/scene"
)

// ExportAction is the corresponding action for 'export'.
func ExportAction(c *cli.Context) error {
	logger := logging.Global().Sublogger("export")
	if err := runExport(c.Context, c, logger); err != nil {
		return err
	}
	if !c.Bool(exportFlagWatch) {
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
	defer stop()
	watcher, err := newFileWatcher(c.Path(exportFlagConfig), logger)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "Watching %s for changes, press Ctrl-C to stop", c.Path(exportFlagConfig))
	return watcher.Run(ctx, func() {
		if err := runExport(ctx, c, logger); err != nil {
			logger.Errorw("export failed", "error", err)
		}
	})
}

func runExport(ctx context.Context, c *cli.Context, logger logging.Logger) (err error) {
	cfg, err := config.Read(c.Path(exportFlagConfig), logger)
	if err != nil {
		return err
	}
	outputDir := cfg.OutputDir
	if c.IsSet(exportFlagOutput) {
		outputDir = c.Path(exportFlagOutput)
	}
	format, ok := parseFormatFlag(c.String(exportFlagFormat), logger)
	if !ok {
		format = cfg.ModelFormat(logger)
	}
	cameras, err := cfg.SceneCameras()
	if err != nil {
		return err
	}
	if len(cameras) == 0 {
		warningf(c.App.ErrWriter, "scene %q has no cameras, writing an empty model", c.Path(exportFlagConfig))
	}

	opts := []export.Option{export.WithFormat(format), export.WithParallelism(c.Int(exportFlagParallel))}
	if cfg.Renormalize {
		opts = append(opts, export.WithRenormalization())
	}
	if cfg.JPEGQuality > 0 {
		opts = append(opts, export.WithJPEGQuality(cfg.JPEGQuality))
	}
	imagesDir := cfg.ImagesDir
	if c.IsSet(exportFlagImages) {
		imagesDir = c.Path(exportFlagImages)
	}
	if imagesDir != "" {
		renderer, err := scene.NewDirectoryRenderer(imagesDir)
		if err != nil {
			return err
		}
		opts = append(opts, export.WithRenderer(renderer))
	}

	progress := NewProgressReporter("Exporting", WithProgressOutput(!c.Bool(exportFlagNoProgress)))
	defer func() {
		err = multierr.Combine(err, progress.Stop())
	}()
	opts = append(opts, export.WithProgress(progress.Update))

	model, err := export.Export(ctx, cameras, outputDir, logger, opts...)
	if err != nil {
		return err
	}
	printf(c.App.Writer, "Wrote %d cameras as %s model to %s", len(model.Images), format, outputDir)
	return nil
}
