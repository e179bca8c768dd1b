// Package media provides reference-counted handles for generated media
// artifacts (TTS audio clips, rendered scene images) stored as files.
package media

import (
	"errors"
	"log/slog"
	"os"
	"sync"
)

// ErrReleased is returned when retaining a handle whose references already
// reached zero; the artifact file is gone by then.
var ErrReleased = errors.New("media: handle already released")

// Handle owns a media artifact file. A new handle starts with one
// reference. When the count reaches zero the file is removed from disk.
// Releasing below zero is logged and ignored, never fatal.
type Handle struct {
	mu   sync.Mutex
	path string
	refs int
}

// NewHandle creates a handle for the artifact at path with one reference.
func NewHandle(path string) *Handle {
	return &Handle{path: path, refs: 1}
}

// Path returns the artifact file path.
func (h *Handle) Path() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.path
}

// Retain adds a reference. Retaining an already-released handle returns
// ErrReleased and leaves the count at zero.
func (h *Handle) Retain() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs <= 0 {
		slog.Error("Media: Retain on released handle", "path", h.path)
		return ErrReleased
	}
	h.refs++
	return nil
}

// Release drops a reference. At zero the artifact file is deleted.
func (h *Handle) Release() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.refs <= 0 {
		slog.Error("Media: double release of handle", "path", h.path)
		return
	}
	h.refs--
	if h.refs > 0 {
		return
	}
	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		slog.Warn("Media: failed to remove artifact", "path", h.path, "error", err)
	}
}

// Refs returns the current reference count.
func (h *Handle) Refs() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.refs
}

// Released reports whether the handle has been fully released.
func (h *Handle) Released() bool {
	return h.Refs() <= 0
}
