package config

import (
	"fmt"

	"github.com/fsnotify/fsnotify"
)

// WatchFile invokes onChange whenever path is written or recreated. Call the
// returned stop function to clean up. Used to hot-sync the declarative
// rules file into the rule store.
func WatchFile(path string, onChange func()) (stop func(), err error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file watcher: %w", err)
	}
	if err := w.Add(path); err != nil {
		w.Close()
		return nil, fmt.Errorf("file watcher add %s: %w", path, err)
	}

	done := make(chan struct{})
	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					onChange()
				}
			case <-w.Errors:
				// Ignore watcher errors; the next write still fires.
			case <-done:
				return
			}
		}
	}()
	return func() { close(done) }, nil
}
