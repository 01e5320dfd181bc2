// Copyright 2025 Google LLC
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

package serverconfig

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/fiberplane/mcpcore/internal/log"
)

// Watch reloads path whenever it changes on disk and invokes onChange with
// the newly decoded and validated Config. Writes are debounced since many
// editors emit several fs events per save. Returns once ctx is cancelled or
// the watcher fails to start; errors during an individual reload are
// logged and otherwise ignored so a momentarily-invalid file (mid-save)
// doesn't tear down the watch loop.
func Watch(ctx context.Context, logger log.Logger, path string, onChange func(Config)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := w.Add(filepath.Dir(path)); err != nil {
		return err
	}

	cleaned := filepath.Clean(path)
	debounceDelay := 200 * time.Millisecond
	debounce := time.NewTimer(time.Minute)
	debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", err)
		case e, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !e.Has(fsnotify.Write | fsnotify.Create | fsnotify.Rename) {
				continue
			}
			if filepath.Clean(e.Name) != cleaned {
				continue
			}
			debounce.Reset(debounceDelay)
		case <-debounce.C:
			raw, err := os.ReadFile(path)
			if err != nil {
				logger.Warn("config reload: read failed", "error", err)
				continue
			}
			cfg, err := Load(ctx, raw)
			if err != nil {
				logger.Warn("config reload: invalid configuration, keeping previous", "error", err)
				continue
			}
			onChange(cfg)
		}
	}
}
