// Package cli contains the colmap-export command line tool.
package cli

import (
	"io"

	"github.com/urfave/cli/v2"

	"go.viam.com/colmapexport/logging"
)

const (
	// Flags.
	generalFlagDebug   = "debug"
	generalFlagLogFile = "log-file"

	exportFlagConfig     = "config"
	exportFlagOutput     = "output"
	exportFlagFormat     = "format"
	exportFlagImages     = "images"
	exportFlagNoProgress = "no-progress"
	exportFlagParallel   = "parallel"
	exportFlagWatch      = "watch"

	inspectFlagFormat = "format"
	inspectFlagPlot   = "plot"

	convertFlagFrom = "from"
	convertFlagTo   = "to"
)

var app = &cli.App{
	Name:            "colmap-export",
	Usage:           "export scene cameras as COLMAP sparse models",
	HideHelpCommand: true,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:    generalFlagDebug,
			Aliases: []string{"vvv"},
			Usage:   "enable debug logging",
		},
		&cli.StringFlag{
			Name:  generalFlagLogFile,
			Usage: "also write logs to `FILE`, rotated by size",
		},
	},
	Before: setupLogging,
	After: func(c *cli.Context) error {
		//nolint:errcheck
		_ = logging.Global().Sync()
		return nil
	},
	Commands: []*cli.Command{
		{
			Name:      "export",
			Usage:     "write the model for every camera of a scene file",
			UsageText: "colmap-export export --config scene.json [--output DIR] [--format bin|txt] [--images DIR]",
			Flags: []cli.Flag{
				&cli.PathFlag{
					Name:     exportFlagConfig,
					Aliases:  []string{"c"},
					Required: true,
					Usage:    "scene description `FILE`",
				},
				&cli.PathFlag{
					Name:  exportFlagOutput,
					Usage: "output directory, overrides output_dir of the scene file",
				},
				&cli.StringFlag{
					Name:  exportFlagFormat,
					Usage: "model format, bin or txt, overrides format of the scene file",
				},
				&cli.PathFlag{
					Name:  exportFlagImages,
					Usage: "directory of pre-rendered frames to copy into the images directory",
				},
				&cli.BoolFlag{
					Name:  exportFlagNoProgress,
					Usage: "do not draw a progress bar",
				},
				&cli.IntFlag{
					Name:  exportFlagParallel,
					Value: 1,
					Usage: "number of frames saved at once",
				},
				&cli.BoolFlag{
					Name:  exportFlagWatch,
					Usage: "export again whenever the scene file changes",
				},
			},
			Action: ExportAction,
		},
		{
			Name:      "inspect",
			Usage:     "print the cameras and images of a model",
			ArgsUsage: "<model directory>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  inspectFlagFormat,
					Usage: "model format, bin or txt; detected when omitted",
				},
				&cli.PathFlag{
					Name:  inspectFlagPlot,
					Usage: "save a top view of the camera centers to `FILE` (png, svg or pdf)",
				},
			},
			Action: InspectAction,
		},
		{
			Name:      "convert",
			Usage:     "re-encode a model in another format",
			ArgsUsage: "<input directory> <output directory>",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  convertFlagFrom,
					Usage: "input format, bin or txt; detected when omitted",
				},
				&cli.StringFlag{
					Name:     convertFlagTo,
					Required: true,
					Usage:    "output format, bin or txt",
				},
			},
			Action: ConvertAction,
		},
		{
			Name:   "schema",
			Usage:  "print the JSON schema of scene files",
			Action: SchemaAction,
		},
	},
}

// NewApp returns a new app with the CLI API, Writer set to out, and ErrWriter
// set to errOut.
func NewApp(out, errOut io.Writer) *cli.App {
	app.Writer = out
	app.ErrWriter = errOut
	return app
}

func setupLogging(c *cli.Context) error {
	debug := c.Bool(generalFlagDebug)
	var logger logging.Logger
	switch {
	case c.String(generalFlagLogFile) != "":
		logger = logging.NewFileLogger("colmap-export", logging.FileConfig{
			Path:       c.String(generalFlagLogFile),
			MaxBackups: 3,
			Debug:      debug,
		})
	case debug:
		logger = logging.NewDebugLogger("colmap-export")
	default:
		logger = logging.NewLogger("colmap-export")
	}
	logging.ReplaceGlobal(logger)
	return nil
}
