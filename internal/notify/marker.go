package notify

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/kartikbazzad/bunbase/tabsync/internal/logger"
)

// Marker is the shared-storage transport: a well-known file holding the most
// recent serialized notification. Every mutation overwrites it, so only the
// latest survives; a burst of writes can skip intermediate notifications for
// watchers of this transport alone, which is why it is one of three.
type Marker struct {
	path string
}

func NewMarker(path string) *Marker {
	return &Marker{path: path}
}

// Write atomically replaces the marker with the serialized notification.
// The temp file lives in the same directory so the rename stays atomic.
func (m *Marker) Write(n *Notification) error {
	data, err := n.Encode()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0o755); err != nil {
		return err
	}

	tmp := fmt.Sprintf("%s.%d.tmp", m.path, os.Getpid())
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, m.path); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

// Read returns the most recently written notification.
func (m *Marker) Read() (*Notification, error) {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return nil, err
	}
	return DecodeNotification(data)
}

// Watch observes the marker's directory and calls fn with the decoded
// notification on every marker replacement, including ones written by this
// process. Returns a stop function.
func (m *Marker) Watch(log *logger.Logger, fn func(*Notification)) (func(), error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		watcher.Close()
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}

	base := filepath.Base(m.path)
	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Rename) {
					continue
				}
				n, err := m.Read()
				if err != nil {
					log.Debug("marker read after event: %v", err)
					continue
				}
				fn(n)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warn("marker watcher: %v", err)
			}
		}
	}()

	return func() {
		watcher.Close()
	}, nil
}

// WriteReadyFlag persists the cross-process readiness marker. Informational
// only: each process still performs its own initialization.
func WriteReadyFlag(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte("1"), 0o644)
}

// ReadyFlagSet reports whether some process already completed initialization.
func ReadyFlagSet(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
