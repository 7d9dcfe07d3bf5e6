package prompt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a system prompt file into a SwappableSource whenever it
// changes on disk. It watches the parent directory so editors that replace
// the file by rename are still picked up.
type Watcher struct {
	path string
	src  *SwappableSource
	fsw  *fsnotify.Watcher
	log  *zap.Logger
}

// NewWatcher loads path into src immediately and starts watching for
// changes. A missing file is not an error; the source updates once the file
// appears. Call Close to stop.
func NewWatcher(path string, src *SwappableSource, log *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating prompt watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, fmt.Errorf("watching prompt dir: %w", err)
	}

	w := &Watcher{path: path, src: src, fsw: fsw, log: log}
	if err := w.reload(); err != nil {
		w.log.Warn("initial prompt load failed", zap.String("path", path), zap.Error(err))
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	for {
		select {
		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := w.reload(); err != nil {
				w.log.Warn("prompt reload failed", zap.String("path", w.path), zap.Error(err))
				continue
			}
			w.log.Info("system prompt reloaded", zap.String("path", w.path))
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.log.Warn("prompt watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() error {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return err
	}
	w.src.Swap(strings.TrimSpace(string(data)))
	return nil
}

// Close stops watching. The source keeps its last value.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
