package cli

import (
	"context"
	"path/filepath"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/colmapexport/logging"
)

const watchDebounce = 200 * time.Millisecond

// fileWatcher calls back when a single file is written or replaced.
type fileWatcher struct {
	path    string
	watcher *fsnotify.Watcher
	logger  logging.Logger
}

// newFileWatcher starts watching path. The parent directory is watched so editors that
// save by renaming a new file into place are noticed too.
func newFileWatcher(path string, logger logging.Logger) (*fileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "cannot create file watcher")
	}
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %q", path), watcher.Close())
	}
	return &fileWatcher{path: abs, watcher: watcher, logger: logger}, nil
}

// Run calls onChange after each burst of changes to the file until ctx is done.
func (fw *fileWatcher) Run(ctx context.Context, onChange func()) error {
	defer func() {
		//nolint:errcheck
		_ = fw.watcher.Close()
	}()
	debounced := debounce.New(watchDebounce)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-fw.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != fw.path || event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			fw.logger.Debugw("file changed", "path", event.Name, "op", event.Op.String())
			debounced(onChange)
		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return nil
			}
			fw.logger.Warnw("file watcher error", "error", err)
		}
	}
}
