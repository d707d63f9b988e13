package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/colmapexport/colmap"
	"go.viam.com/colmapexport/logging"
	"go.viam.com/colmapexport/transform"
)

const sceneJSON = `{
	"output_dir": "${SCENE_OUT}/sparse",
	"format": "bin",
	"render": {"resolution_x": 1920, "resolution_y": 1080, "resolution_percentage": 50},
	"cameras": [
		{
			"name": "Camera.002",
			"lens": 35,
			"sensor_fit": "VERTICAL",
			"rotation_quaternion": [0.5, 0.5, 0.5, 0.5],
			"location": [1, 2, 3]
		},
		{
			"name": "Camera.001",
			"lens": 50,
			"sensor_width": 23.5,
			"sensor_height": 15.6,
			"rotation_quaternion": [1, 0, 0, 0],
			"location": [0, 0, 0]
		}
	]
}`

func writeScene(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scene.json")
	test.That(t, os.WriteFile(path, []byte(body), 0o600), test.ShouldBeNil)
	return path
}

func TestRead(t *testing.T) {
	t.Setenv("SCENE_OUT", "/data/out")
	cfg, err := Read(writeScene(t, sceneJSON), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.OutputDir, test.ShouldEqual, "/data/out/sparse")
	test.That(t, cfg.Render.ResolutionPercentage, test.ShouldEqual, 50.)
	test.That(t, cfg.Render.PixelAspectX, test.ShouldEqual, 1.)
	test.That(t, cfg.Render.PixelAspectY, test.ShouldEqual, 1.)
	test.That(t, cfg.Cameras[0].SensorWidth, test.ShouldEqual, 36.)
	test.That(t, cfg.Cameras[0].SensorHeight, test.ShouldEqual, 24.)
	test.That(t, cfg.Cameras[1].SensorWidth, test.ShouldEqual, 23.5)
	test.That(t, cfg.ModelFormat(logging.NewTestLogger(t)), test.ShouldEqual, colmap.FormatBinary)

	cameras, err := cfg.SceneCameras()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, len(cameras), test.ShouldEqual, 2)
	test.That(t, cameras[0].Name, test.ShouldEqual, "Camera.002")
	test.That(t, cameras[0].Rotation, test.ShouldResemble, quat.Number{Real: 0.5, Imag: 0.5, Jmag: 0.5, Kmag: 0.5})
	test.That(t, cameras[0].Location, test.ShouldResemble, r3.Vector{X: 1, Y: 2, Z: 3})
	test.That(t, cameras[0].Parameters, test.ShouldResemble, transform.CameraParameters{
		FocalLengthMM:        35,
		SensorWidthMM:        36,
		SensorHeightMM:       24,
		SensorFit:            transform.SensorFitVertical,
		ResolutionX:          1920,
		ResolutionY:          1080,
		ResolutionPercentage: 50,
		PixelAspectX:         1,
		PixelAspectY:         1,
	})
	test.That(t, cameras[1].Parameters.SensorFit, test.ShouldEqual, transform.SensorFitAuto)
}

func TestReadRelativePaths(t *testing.T) {
	path := writeScene(t, `{"output_dir": "out", "images_dir": "frames", "render": {"resolution_x": 4, "resolution_y": 4}, "cameras": []}`)
	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.OutputDir, test.ShouldEqual, filepath.Join(filepath.Dir(path), "out"))
	test.That(t, cfg.ImagesDir, test.ShouldEqual, filepath.Join(filepath.Dir(path), "frames"))
	test.That(t, cfg.ConfigFilePath, test.ShouldEqual, path)

	cfg, err = FromReader("", strings.NewReader(`{"output_dir": "out", "render": {"resolution_x": 4, "resolution_y": 4}}`),
		logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.OutputDir, test.ShouldEqual, "out")
	test.That(t, cfg.ImagesDir, test.ShouldEqual, "")
}

func TestReadErrors(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "missing.json"), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)

	_, err = FromReader("", strings.NewReader(`{"output_dir": `), logging.NewTestLogger(t))
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "failed to decode")
}

func validConfig() *Config {
	cfg := &Config{
		OutputDir: "out",
		Render:    Render{ResolutionX: 640, ResolutionY: 480},
		Cameras: []Camera{
			{Name: "a", Lens: 50, RotationQuaternion: []float64{1, 0, 0, 0}, Location: []float64{0, 0, 0}},
			{Name: "b", Lens: 50, RotationQuaternion: []float64{1, 0, 0, 0}, Location: []float64{1, 0, 0}},
		},
	}
	cfg.Ensure()
	return cfg
}

func TestValidate(t *testing.T) {
	test.That(t, validConfig().Validate("scene"), test.ShouldBeNil)

	for _, tc := range []struct {
		name   string
		mutate func(*Config)
		expect string
	}{
		{"output dir", func(c *Config) { c.OutputDir = "" }, "output_dir"},
		{"jpeg quality", func(c *Config) { c.JPEGQuality = 101 }, "jpeg_quality"},
		{"resolution x", func(c *Config) { c.Render.ResolutionX = 0 }, "resolution_x"},
		{"negative resolution", func(c *Config) { c.Render.ResolutionY = -1 }, "invalid resolution"},
		{"pixel aspect", func(c *Config) { c.Render.PixelAspectX = -1 }, "pixel aspect"},
		{"name", func(c *Config) { c.Cameras[1].Name = "" }, "name"},
		{"lens", func(c *Config) { c.Cameras[0].Lens = 0 }, "lens"},
		{"sensor", func(c *Config) { c.Cameras[0].SensorHeight = -24 }, "must be positive"},
		{"sensor fit", func(c *Config) { c.Cameras[0].SensorFit = "diagonal" }, "unknown sensor fit"},
		{"rotation missing", func(c *Config) { c.Cameras[0].RotationQuaternion = nil }, "rotation_quaternion"},
		{"rotation arity", func(c *Config) { c.Cameras[0].RotationQuaternion = []float64{0, 0, 0} }, "needs 4 values"},
		{"location missing", func(c *Config) { c.Cameras[1].Location = nil }, "location"},
		{"location arity", func(c *Config) { c.Cameras[1].Location = []float64{0, 0} }, "needs 3 values"},
		{"duplicate", func(c *Config) { c.Cameras[1].Name = "a" }, `duplicate camera name "a"`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := cfg.Validate("scene")
			test.That(t, err, test.ShouldNotBeNil)
			test.That(t, err.Error(), test.ShouldContainSubstring, tc.expect)
		})
	}
}

func TestValidatePathNamesCamera(t *testing.T) {
	cfg := validConfig()
	cfg.Cameras[1].Lens = 0
	err := cfg.Validate("scene")
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "scene.cameras.1")
}

func TestModelFormat(t *testing.T) {
	logger, logs := logging.NewObservedTestLogger(t)
	cfg := validConfig()
	test.That(t, cfg.ModelFormat(logger), test.ShouldEqual, colmap.FormatText)
	cfg.Format = ".bin"
	test.That(t, cfg.ModelFormat(logger), test.ShouldEqual, colmap.FormatBinary)
	test.That(t, logs.Len(), test.ShouldEqual, 0)

	cfg.Format = "ply"
	test.That(t, cfg.ModelFormat(logger), test.ShouldEqual, colmap.FormatText)
	test.That(t, logs.FilterMessage("unrecognized model format, writing text").Len(), test.ShouldEqual, 1)
}

func TestEnsureKeepsExplicitValues(t *testing.T) {
	cfg := &Config{
		Render:  Render{ResolutionPercentage: 25, PixelAspectX: 2, PixelAspectY: 1},
		Cameras: []Camera{{SensorWidth: 10, SensorHeight: 5}},
	}
	cfg.Ensure()
	test.That(t, cfg.Render, test.ShouldResemble, Render{ResolutionPercentage: 25, PixelAspectX: 2, PixelAspectY: 1})
	test.That(t, cfg.Cameras[0].SensorWidth, test.ShouldEqual, 10.)
	test.That(t, cfg.Cameras[0].SensorHeight, test.ShouldEqual, 5.)
}

func TestReadEnvFile(t *testing.T) {
	const name = "COLMAPEXPORT_TEST_OUTPUT"
	t.Cleanup(func() {
		//nolint:errcheck
		os.Unsetenv(name)
	})
	path := writeScene(t, `{"output_dir": "${`+name+`}", "render": {"resolution_x": 4, "resolution_y": 4}}`)
	envPath := filepath.Join(filepath.Dir(path), EnvFileName)
	test.That(t, os.WriteFile(envPath, []byte(name+"=/from/dotenv\n"), 0o600), test.ShouldBeNil)

	cfg, err := Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.OutputDir, test.ShouldEqual, "/from/dotenv")

	// variables that are already set win over the file
	t.Setenv(name, "/from/env")
	cfg, err = Read(path, logging.NewTestLogger(t))
	test.That(t, err, test.ShouldBeNil)
	test.That(t, cfg.OutputDir, test.ShouldEqual, "/from/env")
}
