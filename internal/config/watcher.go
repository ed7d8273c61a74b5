package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher reloads a single file when it changes on disk. Used for hot
// reloading prompt templates without a restart. Events are debounced
// because editors fire several write events per save.
type Watcher struct {
	path     string
	onChange func(path string) error
	logger   *zap.Logger
	fsw      *fsnotify.Watcher
	debounce time.Duration
}

func NewWatcher(path string, onChange func(string) error, logger *zap.Logger) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// watch the directory: editors replace files on save, which drops
	// a watch held on the file itself
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}
	return &Watcher{
		path:     path,
		onChange: onChange,
		logger:   logger,
		fsw:      fsw,
		debounce: 200 * time.Millisecond,
	}, nil
}

// Start runs the watch loop until ctx is cancelled.
func (w *Watcher) Start(ctx context.Context) {
	go func() {
		defer w.fsw.Close()
		var timer *time.Timer
		fire := make(chan struct{}, 1)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.fsw.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != filepath.Clean(w.path) {
					continue
				}
				if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(w.debounce, func() {
					select {
					case fire <- struct{}{}:
					default:
					}
				})
			case <-fire:
				if err := w.onChange(w.path); err != nil {
					w.logger.Warn("Reload failed, keeping previous version",
						zap.String("path", w.path), zap.Error(err))
				} else {
					w.logger.Info("Reloaded", zap.String("path", w.path))
				}
			case err, ok := <-w.fsw.Errors:
				if !ok {
					return
				}
				w.logger.Warn("File watcher error", zap.Error(err))
			}
		}
	}()
}
