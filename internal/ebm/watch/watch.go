// Package watch wraps fsnotify for the CLI's -watch mode: re-run the
// pipeline whenever the input file changes. The event-translation loop
// (fsnotify.Op to a small bitmask, buffered channels) keeps the OS
// watcher details out of the CLI loop.
package watch

import (
	"github.com/fsnotify/fsnotify"
)

// Op is a bitmask of filesystem operations.
type Op uint32

const (
	OpCreate Op = 1 << iota
	OpWrite
	OpRemove
	OpRename
	OpChmod
)

// Event is one translated filesystem notification.
type Event struct {
	Path string
	Op   Op
}

// Watcher delivers translated events for the paths added to it.
type Watcher struct {
	w   *fsnotify.Watcher
	evC chan Event
	erC chan error
}

// New constructs a Watcher and starts its translation loop.
func New() (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	fw := &Watcher{w: w, evC: make(chan Event, 128), erC: make(chan error, 1)}
	go fw.loop()

	return fw, nil
}

func (fw *Watcher) loop() {
	for {
		select {
		case ev, ok := <-fw.w.Events:
			if !ok {
				return
			}

			var op Op

			if ev.Op&fsnotify.Create != 0 {
				op |= OpCreate
			}

			if ev.Op&fsnotify.Write != 0 {
				op |= OpWrite
			}

			if ev.Op&fsnotify.Remove != 0 {
				op |= OpRemove
			}

			if ev.Op&fsnotify.Rename != 0 {
				op |= OpRename
			}

			if ev.Op&fsnotify.Chmod != 0 {
				op |= OpChmod
			}

			fw.evC <- Event{Path: ev.Name, Op: op}
		case err, ok := <-fw.w.Errors:
			if !ok {
				return
			}

			fw.erC <- err
		}
	}
}

// Events is the translated event stream.
func (fw *Watcher) Events() <-chan Event { return fw.evC }

// Errors is the watcher's error stream.
func (fw *Watcher) Errors() <-chan error { return fw.erC }

// Add registers a path for watching.
func (fw *Watcher) Add(name string) error { return fw.w.Add(name) }

// Remove unregisters a path.
func (fw *Watcher) Remove(name string) error { return fw.w.Remove(name) }

// Close stops the watcher.
func (fw *Watcher) Close() error { return fw.w.Close() }
