// Package hotreload watches the shader directory and the settings file and turns bursts of file
// events into single reload callbacks.
package hotreload

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/Carmen-Shannon/oxy-restir/engine/logger"
)

// ErrClosed is returned when a closed watcher is asked to watch a path.
var ErrClosed = errors.New("watcher closed")

// DefaultDebounce is how long a trigger waits for the file events of one save to settle.
const DefaultDebounce = 150 * time.Millisecond

// trigger fires once per burst of events that match it.
type trigger struct {
	name  string
	match func(path string) bool
	fire  func()
	timer *time.Timer
}

// watcher is the implementation of the Watcher interface.
type watcher struct {
	fsnotify *fsnotify.Watcher
	debounce time.Duration

	mu        sync.Mutex
	triggers  []*trigger
	recursive map[string]bool
	closed    bool
	done      chan struct{}
	stopped   chan struct{}
}

// Watcher reports changed shader sources and settings files.
type Watcher interface {
	// WatchShaders watches dir and its subdirectories for .wgsl changes. New subdirectories are
	// picked up as they appear.
	//
	// Parameters:
	//   - dir: the shader root
	//   - fire: called once per burst of changes
	//
	// Returns:
	//   - error: ErrClosed, or the error of adding a directory
	WatchShaders(dir string, fire func()) error

	// WatchFile watches a single file. The parent directory is watched so that editors that
	// replace the file on save are seen too.
	//
	// Parameters:
	//   - path: the watched file
	//   - fire: called once per burst of changes
	//
	// Returns:
	//   - error: ErrClosed, or the error of adding the parent directory
	WatchFile(path string, fire func()) error

	// Close stops the watcher. Pending debounced callbacks are dropped.
	//
	// Returns:
	//   - error: the error of closing the underlying watcher
	Close() error
}

var _ Watcher = &watcher{}

// NewWatcher creates a Watcher and starts its event loop.
//
// Parameters:
//   - options: variadic list of WatcherBuilderOption functions
//
// Returns:
//   - Watcher: the watcher
//   - error: the error of creating the underlying watcher
func NewWatcher(options ...WatcherBuilderOption) (Watcher, error) {
	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	w := &watcher{
		fsnotify:  fsWatch,
		debounce:  DefaultDebounce,
		recursive: make(map[string]bool),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range options {
		opt(w)
	}
	go w.start()
	return w, nil
}

func (w *watcher) WatchShaders(dir string, fire func()) error {
	dir = filepath.Clean(dir)
	if err := w.addRecursive(dir); err != nil {
		return err
	}
	w.addTrigger(&trigger{
		name: dir,
		match: func(path string) bool {
			return strings.HasSuffix(path, ".wgsl") && strings.HasPrefix(path, dir+string(filepath.Separator))
		},
		fire: fire,
	})
	logger.Info("watching shaders in %s", dir)
	return nil
}

func (w *watcher) WatchFile(path string, fire func()) error {
	path = filepath.Clean(path)
	if err := w.add(filepath.Dir(path), false); err != nil {
		return err
	}
	w.addTrigger(&trigger{
		name:  path,
		match: func(p string) bool { return p == path },
		fire:  fire,
	})
	logger.Info("watching %s", path)
	return nil
}

func (w *watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	for _, t := range w.triggers {
		if t.timer != nil {
			t.timer.Stop()
		}
	}
	w.mu.Unlock()

	close(w.done)
	<-w.stopped
	return w.fsnotify.Close()
}

func (w *watcher) addTrigger(t *trigger) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.triggers = append(w.triggers, t)
}

func (w *watcher) add(dir string, recursive bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.fsnotify.Add(dir); err != nil {
		return err
	}
	if recursive {
		w.recursive[dir] = true
	}
	return nil
}

func (w *watcher) addRecursive(root string) error {
	return filepath.Walk(root, func(path string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			return nil
		}
		return w.add(path, true)
	})
}

func (w *watcher) start() {
	defer close(w.stopped)
	for {
		select {
		case e, ok := <-w.fsnotify.Events:
			if !ok {
				return
			}
			w.handle(e)
		case err, ok := <-w.fsnotify.Errors:
			if !ok {
				return
			}
			logger.Error("file watcher: %v", err)
		case <-w.done:
			return
		}
	}
}

func (w *watcher) handle(e fsnotify.Event) {
	name := filepath.Clean(e.Name)
	if e.Op&fsnotify.Create != 0 && w.underRecursive(name) {
		if fi, err := os.Stat(name); err == nil && fi.IsDir() {
			if err := w.addRecursive(name); err != nil {
				logger.Warn("file watcher: %s not watched: %v", name, err)
			}
			return
		}
	}
	if e.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename|fsnotify.Remove) == 0 {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	for _, t := range w.triggers {
		if !t.match(name) {
			continue
		}
		if t.timer != nil {
			t.timer.Reset(w.debounce)
			continue
		}
		t.timer = time.AfterFunc(w.debounce, w.fireFunc(t))
	}
}

func (w *watcher) fireFunc(t *trigger) func() {
	return func() {
		w.mu.Lock()
		if w.closed {
			w.mu.Unlock()
			return
		}
		t.timer = nil
		w.mu.Unlock()
		logger.Debug("file watcher: %s changed", t.name)
		t.fire()
	}
}

func (w *watcher) underRecursive(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.recursive[filepath.Dir(path)]
}
