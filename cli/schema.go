package cli

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"go.viam.com/colmapexport/config"
)

// SceneSchema is the JSON schema of scene files.
var SceneSchema = jsonschema.Reflect(&config.Config{})

// SchemaAction is the corresponding action for 'schema'.
func SchemaAction(c *cli.Context) error {
	data, err := json.MarshalIndent(SceneSchema, "", "  ")
	if err != nil {
		return errors.Wrap(err, "cannot encode scene schema")
	}
	printf(c.App.Writer, "%s", data)
	return nil
}
