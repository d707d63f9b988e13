package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
	"go.viam.com/test"
)

func TestObservedTestLogger(t *testing.T) {
	logger, logs := NewObservedTestLogger(t)
	logger.Debugw("derived intrinsics", "camera", "Camera", "fx", 2666.67)
	logger.Sublogger("codec").Warnw("unrecognized format", "format", ".ply")

	test.That(t, logs.Len(), test.ShouldEqual, 2)
	entries := logs.All()
	test.That(t, entries[0].Level, test.ShouldEqual, zapcore.DebugLevel)
	test.That(t, entries[0].ContextMap()["camera"], test.ShouldEqual, "Camera")
	test.That(t, entries[1].Level, test.ShouldEqual, zapcore.WarnLevel)
	test.That(t, entries[1].LoggerName, test.ShouldEqual, "codec")
	test.That(t, logs.FilterMessage("unrecognized format").Len(), test.ShouldEqual, 1)
}

func TestGlobalLogger(t *testing.T) {
	prev := Global()
	defer ReplaceGlobal(prev)

	logger, logs := NewObservedTestLogger(t)
	ReplaceGlobal(logger)
	Global().Info("hello")
	test.That(t, logs.FilterMessage("hello").Len(), test.ShouldEqual, 1)
}

func TestFileLogger(t *testing.T) {
	path := filepath.Join(t.TempDir(), "export.log")
	logger := NewFileLogger("export", FileConfig{Path: path, Debug: true})
	logger.Debugw("writing model", "dir", "/tmp/out")
	logger.Sublogger("colmap").Infof("wrote %d cameras", 3)
	// stdout sync may fail when stdout is not a regular file
	//nolint:errcheck
	logger.Sync()

	data, err := os.ReadFile(path)
	test.That(t, err, test.ShouldBeNil)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	test.That(t, len(lines), test.ShouldEqual, 2)
	test.That(t, lines[0], test.ShouldContainSubstring, "DEBUG")
	test.That(t, lines[0], test.ShouldContainSubstring, "writing model")
	test.That(t, lines[1], test.ShouldContainSubstring, "export.colmap")
	test.That(t, lines[1], test.ShouldContainSubstring, "wrote 3 cameras")
}

func TestBlankLogger(t *testing.T) {
	logger := NewBlankLogger("quiet")
	logger.Errorw("dropped", "k", "v")
	test.That(t, logger.Sync(), test.ShouldBeNil)
}
