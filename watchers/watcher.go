package watchers

import (
	"crypto/sha256"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const DefaultInterval = time.Second

type fingerprint [sha256.Size]byte

// FileWatcher reports whether the content of one file was changed by someone else.
// A change is flagged only when both the modification time and the content
// fingerprint differ from the last known state. The flag stays set until
// Acknowledge.
type FileWatcher struct {
	path     string
	interval time.Duration
	logger   *slog.Logger
	open     func(name string) (io.ReadCloser, error)

	// checking serializes Check; mu guards the state below and is never held while hashing
	checking    sync.Mutex
	mu          sync.Mutex
	generation  uint64
	present     bool
	mtime       time.Time
	fingerprint fingerprint
	changed     bool
	stop        chan struct{}
	done        chan struct{}
}

func New(path string, interval time.Duration, logger *slog.Logger) *FileWatcher {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	w := &FileWatcher{
		path:     path,
		interval: interval,
		logger:   logger,
		open: func(name string) (io.ReadCloser, error) {
			return os.Open(name)
		},
	}
	w.resync()
	return w
}

func (w *FileWatcher) Path() string {
	return w.path
}

func (w *FileWatcher) read() (time.Time, fingerprint, bool) {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug("watched file unavailable",
			"path", w.path,
			"error", err,
		)
		return time.Time{}, fingerprint{}, false
	}
	sum, err := w.sum()
	if err != nil {
		w.logger.Debug("watched file unreadable",
			"path", w.path,
			"error", err,
		)
		return time.Time{}, fingerprint{}, false
	}
	return info.ModTime(), sum, true
}

func (w *FileWatcher) sum() (ret fingerprint, err error) {
	f, err := w.open(w.path)
	if err != nil {
		return
	}
	defer f.Close()
	h := sha256.New()
	if _, err = io.Copy(h, f); err != nil {
		return
	}
	copy(ret[:], h.Sum(nil))
	return
}

// resync records the current state of the file as the baseline.
func (w *FileWatcher) resync() {
	mtime, sum, ok := w.read()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.present = ok
	w.mtime = mtime
	w.fingerprint = sum
}

// Check polls the file once.
func (w *FileWatcher) Check() {
	w.checking.Lock()
	defer w.checking.Unlock()

	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug("watched file unavailable",
			"path", w.path,
			"error", err,
		)
		w.mu.Lock()
		w.present = false
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	generation := w.generation
	if w.present && info.ModTime().Equal(w.mtime) {
		w.mu.Unlock()
		return
	}
	w.mu.Unlock()

	sum, err := w.sum()
	if err != nil {
		w.logger.Debug("watched file unreadable",
			"path", w.path,
			"error", err,
		)
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.generation != generation {
		// baseline was taken again while hashing
		return
	}

	if !w.present {
		// reappeared
		w.present = true
		w.mtime = info.ModTime()
		w.fingerprint = sum
		return
	}

	w.mtime = info.ModTime()
	if sum == w.fingerprint {
		return
	}
	w.fingerprint = sum
	if !w.changed {
		w.logger.Info("watched file changed", "path", w.path)
	}
	w.changed = true
}

func (w *FileWatcher) HasChanges() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.changed
}

// Acknowledge clears the flag and takes the file's current state as the baseline.
func (w *FileWatcher) Acknowledge() {
	mtime, sum, ok := w.read()
	w.mu.Lock()
	defer w.mu.Unlock()
	w.generation++
	w.changed = false
	w.present = ok
	w.mtime = mtime
	w.fingerprint = sum
}

// Start runs the poll loop in a new goroutine. Calling Start on a running watcher does nothing.
func (w *FileWatcher) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stop != nil {
		return
	}
	w.stop = make(chan struct{})
	w.done = make(chan struct{})
	go w.loop(w.stop, w.done)
	w.logger.Debug("watcher started",
		"path", w.path,
		"interval", w.interval,
	)
}

// Stop ends the poll loop and waits for it to exit. Calling Stop on a stopped watcher does nothing.
func (w *FileWatcher) Stop() {
	w.mu.Lock()
	stop, done := w.stop, w.done
	w.stop = nil
	w.done = nil
	w.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
	w.logger.Debug("watcher stopped", "path", w.path)
}

func (w *FileWatcher) loop(stop chan struct{}, done chan struct{}) {
	defer close(done)

	var events chan fsnotify.Event
	var errs chan error
	notifier, err := fsnotify.NewWatcher()
	if err == nil {
		err = notifier.Add(filepath.Dir(w.path))
		if err != nil {
			notifier.Close()
		}
	}
	if err != nil {
		w.logger.Warn("file notification unavailable, polling only",
			"path", w.path,
			"error", err,
		)
	} else {
		defer notifier.Close()
		events = notifier.Events
		errs = notifier.Errors
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {

		case <-stop:
			return

		case <-ticker.C:
			w.Check()

		case event, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) || event.Has(fsnotify.Remove) {
				w.Check()
			}

		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			w.logger.Debug("file notification error",
				"path", w.path,
				"error", err,
			)

		}
	}
}
