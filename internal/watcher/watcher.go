// Package watcher reloads the configuration file on change and publishes a
// new immutable snapshot, mirroring the teacher's file-system monitoring
// role without ever mutating an in-use Config.
package watcher

import (
	"context"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"

	"github.com/AprilNEA/BYOKEY/internal/config"
)

// Watcher watches a single config file path and republishes a Snapshot on
// every write/create/rename event. Events are not debounced: each one
// triggers its own reload.
type Watcher struct {
	path string
	snap *config.Snapshot
	fsw  *fsnotify.Watcher
}

// New creates a Watcher for path, publishing reloads into snap. The caller
// must call Run to start watching.
func New(path string, snap *config.Snapshot) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{path: path, snap: snap, fsw: fsw}, nil
}

// Run blocks, reloading the config and swapping the snapshot on every
// relevant event, until ctx is canceled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.reload()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher: fsnotify error: %v", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := config.Load(w.path)
	if err != nil {
		log.Warnf("watcher: reload %s failed, keeping previous snapshot: %v", w.path, err)
		return
	}
	w.snap.Store(cfg)
	log.Infof("watcher: reloaded config from %s", w.path)
}

// Close stops watching.
func (w *Watcher) Close() error {
	return w.fsw.Close()
}
