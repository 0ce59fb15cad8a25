package scripting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher watches a directory of local override ".lua" scripts and reports
// edits through OnReload/OnRemove, so handler scripts authored on disk can
// be hot-reloaded without restarting the client (spec §4.L supplement: the
// original's LuaScriptEvaluator only ever compiles from script text baked
// into an object at creation time; local override scripts are new here).
// Directly grounded on the teacher's internal/lua Engine.watchLoop, which
// watches its own site/lua directory the same way with an
// *fsnotify.Watcher and a closed channel for shutdown.
type Watcher struct {
	watcher *fsnotify.Watcher
	dir     string
	logger  *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}

	// OnReload is called with a script's ID (its file's base name without
	// the .lua extension) and current source whenever the file is created
	// or written. OnRemove is called with the ID when the file is removed
	// or renamed away. Set before calling Run; nil callbacks are skipped.
	OnReload func(scriptID, source string)
	OnRemove func(scriptID string)
}

// NewWatcher creates dir if missing and begins watching it for ".lua" file
// changes. Call ScanExisting to seed OnReload with files already present,
// then Run in its own goroutine.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("scripting: create script dir %s: %w", dir, err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("scripting: create fsnotify watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		fw.Close()
		return nil, fmt.Errorf("scripting: watch %s: %w", dir, err)
	}
	return &Watcher{watcher: fw, dir: dir, logger: logger, closed: make(chan struct{})}, nil
}

// ScanExisting reads every ".lua" file already in the watched directory and
// invokes OnReload for each, mirroring the teacher's NewEngine scanDir call
// that runs once before watchLoop starts.
func (w *Watcher) ScanExisting() {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".lua") {
			continue
		}
		w.reload(filepath.Join(w.dir, entry.Name()))
	}
}

func (w *Watcher) reload(path string) {
	scriptID := strings.TrimSuffix(filepath.Base(path), ".lua")
	data, err := os.ReadFile(path)
	if err != nil {
		if w.logger != nil {
			w.logger.Warn("scripting: failed to read local script", zap.String("script_id", scriptID), zap.Error(err))
		}
		return
	}
	if w.OnReload != nil {
		w.OnReload(scriptID, string(data))
	}
}

// Run processes fsnotify events until Stop is called. It never returns an
// error: per spec §7's worker propagation policy, a per-file read failure
// is logged and the loop continues.
func (w *Watcher) Run() {
	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !strings.HasSuffix(event.Name, ".lua") {
				continue
			}
			switch {
			case event.Op&(fsnotify.Create|fsnotify.Write) != 0:
				w.reload(event.Name)
			case event.Op&(fsnotify.Remove|fsnotify.Rename) != 0:
				scriptID := strings.TrimSuffix(filepath.Base(event.Name), ".lua")
				if w.OnRemove != nil {
					w.OnRemove(scriptID)
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			if w.logger != nil {
				w.logger.Warn("scripting: watcher error", zap.Error(err))
			}
		}
	}
}

// Stop ends Run and releases the underlying fsnotify watcher. Safe to call
// more than once.
func (w *Watcher) Stop() {
	w.closeOnce.Do(func() {
		close(w.closed)
		w.watcher.Close()
	})
}
