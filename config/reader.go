package config

import (
	"bytes"
	"encoding/json"
	"io"
	"os"
	"path/filepath"

	"github.com/a8m/envsubst"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	"go.viam.com/colmapexport/logging"
)

// EnvFileName is the optional dotenv file next to a scene file. Its variables are loaded
// before the scene file is expanded and never override variables already set.
const EnvFileName = ".env"

// Read reads a scene file from the given path. Environment variable references such as
// ${HOME} are expanded before the file is decoded.
func Read(filePath string, logger logging.Logger) (*Config, error) {
	if err := loadEnvFile(filepath.Join(filepath.Dir(filePath), EnvFileName), logger); err != nil {
		return nil, err
	}
	buf, err := envsubst.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return FromReader(filePath, bytes.NewReader(buf), logger)
}

// FromReader reads a scene file from the given reader and specifies
// where, if applicable, the file the reader originated from. Relative output and frame
// directories are resolved against the directory of that file.
func FromReader(originalPath string, r io.Reader, logger logging.Logger) (*Config, error) {
	cfg := Config{ConfigFilePath: originalPath}
	if err := json.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode scene config from json")
	}
	cfg.Ensure()
	if err := cfg.Validate(""); err != nil {
		return nil, err
	}
	if originalPath != "" {
		base := filepath.Dir(originalPath)
		cfg.OutputDir = resolvePath(base, cfg.OutputDir)
		cfg.ImagesDir = resolvePath(base, cfg.ImagesDir)
	}
	logger.Debugw("read scene config", "path", originalPath, "cameras", len(cfg.Cameras), "output_dir", cfg.OutputDir)
	return &cfg, nil
}

func loadEnvFile(path string, logger logging.Logger) error {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if err := godotenv.Load(path); err != nil {
		return errors.Wrapf(err, "failed to load %q", path)
	}
	logger.Debugw("loaded environment file", "path", path)
	return nil
}

func resolvePath(base, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(base, path)
}
