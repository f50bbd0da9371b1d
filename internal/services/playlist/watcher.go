package playlist

import (
	"context"
	"fmt"
	"log"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits after the last change before reloading.
const DefaultDebounce = 250 * time.Millisecond

// ReloadFunc receives every successfully reloaded playlist document.
type ReloadFunc func(doc *Document)

// Watcher reloads the playlist when the playlist file or any show it references changes.
type Watcher struct {
	path     string
	ledCount int
	debounce time.Duration
	onReload ReloadFunc

	fs *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]bool // absolute paths that trigger a reload
	dirs  map[string]bool
	timer *time.Timer
}

// NewWatcher starts watching the directories of the playlist file and of the
// shows in doc. Directories rather than files are watched so editors that
// save by rename are still seen.
func NewWatcher(doc *Document, ledCount int, debounce time.Duration, onReload ReloadFunc) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("could not initialize filesystem watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{
		path:     doc.Path,
		ledCount: ledCount,
		debounce: debounce,
		onReload: onReload,
		fs:       fsw,
		files:    make(map[string]bool),
		dirs:     make(map[string]bool),
	}
	if err := w.track(doc); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

// track registers the playlist file and its show files.
func (w *Watcher) track(doc *Document) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	paths := append([]string{doc.Path}, doc.Files...)
	w.files = make(map[string]bool, len(paths))
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolve %s: %w", p, err)
		}
		w.files[abs] = true

		dir := filepath.Dir(abs)
		if w.dirs[dir] {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		w.dirs[dir] = true
	}
	return nil
}

// Run processes filesystem events until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()
	defer w.stopTimer()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				w.schedule()
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.Printf("Warning: playlist watcher error: %v", err)
		}
	}
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
		return false
	}
	abs, err := filepath.Abs(event.Name)
	if err != nil {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[abs]
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
}

func (w *Watcher) reload() {
	doc, err := LoadDocument(w.path, w.ledCount)
	if err != nil {
		log.Printf("Warning: playlist reload failed, keeping current playlist: %v", err)
		return
	}
	if err := w.track(doc); err != nil {
		log.Printf("Warning: could not watch reloaded playlist files: %v", err)
	}
	log.Printf("🔄 Playlist reloaded: %s", doc)
	w.onReload(doc)
}
