package cli

import (
	"fmt"
	"io"
	"slices"
	"strings"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/samber/lo"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
)

// printf prints a message with no prefix.
func printf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// warningf prints a message prefixed with a bold yellow "Warning: ".
func warningf(w io.Writer, format string, a ...interface{}) {
	//nolint:errcheck
	color.New(color.Bold, color.FgYellow).Fprint(w, "Warning: ")
	//nolint:errcheck
	fmt.Fprintf(w, format+"\n", a...)
}

// parseFormatFlag turns a format flag into a model format. An empty flag yields ok=false
// and no warning so the caller can fall back to another source.
func parseFormatFlag(value string, logger logging.Logger) (colmap.Format, bool) {
	if value == "" {
		return colmap.FormatText, false
	}
	f, ok := colmap.ParseFormat(value)
	if !ok {
		logger.Warnw("unrecognized model format, writing text", "format", value)
	}
	return f, true
}

// parseStrictFormatFlag is like parseFormatFlag but rejects unknown values.
func parseStrictFormatFlag(flag, value string) (colmap.Format, error) {
	f, ok := colmap.ParseFormat(value)
	if !ok {
		return "", errors.Errorf("--%s must be bin or txt, got %q", flag, value)
	}
	return f, nil
}

func formatFloats(values []float64) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%.6g", v)
	}
	return strings.Join(parts, " ")
}

func sortedIDs[K uint32 | uint64, V any](m map[K]V) []K {
	ids := lo.Keys(m)
	slices.Sort(ids)
	return ids
}
