// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runtime

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/loomrun/loom/pkg/errs"
)

const reloadDebounce = 200 * time.Millisecond

// ReloadManager watches a workspace directory for changes to its artifact
// files and invokes onChange once per burst of activity, debounced so a
// multi-file save doesn't trigger a rebuild per file. This replaces the
// original's hash-polling reload loop with fsnotify's event-driven watch
// (SPEC_FULL.md SUPPLEMENTED FEATURES: "a faithful, more idiomatic Go
// rendition of the same contract").
type ReloadManager struct {
	watcher *fsnotify.Watcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func newReloadManager(dir string, log *slog.Logger, onChange func() error) (*ReloadManager, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errs.Wrap(errs.KindConfig, "runtime", "failed to start workspace artifact watcher", err)
	}

	if err := addDirsRecursive(w, dir); err != nil {
		_ = w.Close()
		return nil, errs.Wrap(errs.KindConfig, "runtime", "failed to watch workspace directory", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	rm := &ReloadManager{watcher: w, cancel: cancel, done: make(chan struct{})}
	go rm.run(ctx, log, onChange)
	return rm, nil
}

func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return w.Add(path)
		}
		return nil
	})
}

func (rm *ReloadManager) run(ctx context.Context, log *slog.Logger, onChange func() error) {
	defer close(rm.done)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	pending := false
	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C
		}

		select {
		case <-ctx.Done():
			return

		case ev, ok := <-rm.watcher.Events:
			if !ok {
				return
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if err := rm.watcher.Add(ev.Name); err != nil {
						log.Warn("failed to watch new workspace subdirectory", "path", ev.Name, "error", err)
					}
				}
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			pending = true
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}

		case <-timerC:
			timer = nil
			if !pending {
				continue
			}
			pending = false
			if err := onChange(); err != nil {
				log.Error("workspace artifact reload failed", "error", err)
			}

		case err, ok := <-rm.watcher.Errors:
			if !ok {
				return
			}
			log.Warn("workspace artifact watcher error", "error", err)
		}
	}
}

// Stop cancels the watch loop and releases the underlying fsnotify watcher.
func (rm *ReloadManager) Stop() error {
	rm.cancel()
	err := rm.watcher.Close()
	<-rm.done
	return err
}
