package cli

import (
	"os"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
)

// ConvertAction is the corresponding action for 'convert'.
func ConvertAction(c *cli.Context) error {
	if c.Args().Len() != 2 {
		return errors.New("convert needs an input and an output directory")
	}
	in, out := c.Args().Get(0), c.Args().Get(1)
	to, err := parseStrictFormatFlag(convertFlagTo, c.String(convertFlagTo))
	if err != nil {
		return err
	}
	model, from, err := readModel(in, convertFlagFrom, c.String(convertFlagFrom))
	if err != nil {
		return err
	}
	if err := os.MkdirAll(out, 0o755); err != nil {
		return errors.Wrapf(err, "cannot create %q", out)
	}
	if err := colmap.WriteModel(out, model, to); err != nil {
		return err
	}
	logging.Global().Infow("converted model", "from", from, "to", to, "input", in, "output", out)
	printf(c.App.Writer, "Converted %s model in %s to %s model in %s", from, in, to, out)
	return nil
}
