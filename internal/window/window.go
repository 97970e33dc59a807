// Package window tracks top-level windows by title and reports open and
// focus changes to the scheduler.
package window

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/me/gametools/pkg/model"
)

// MaxID is the highest window id accepted by New.
const MaxID = 99

// ErrInvalidWindowID is returned for ids outside 0..MaxID.
var ErrInvalidWindowID = errors.New("invalid window id")

// Backend answers whether a top-level window with a matching title exists
// and whether it has the input focus.
type Backend interface {
	IsOpen(name string, exact bool) bool
	HasFocus(name string, exact bool) bool
}

// Window is a tracked window. Open and focus are cached by the Poll methods;
// IsOpen and HasFocus return the cached values.
type Window struct {
	id      int
	name    string
	exact   bool
	main    bool
	backend Backend

	mu    sync.Mutex
	open  bool
	focus bool
}

// New creates a window tracked through backend. Unless exact is set, name
// matches any title that contains it.
func New(id int, name string, exact bool, backend Backend) (*Window, error) {
	if id < 0 || id > MaxID {
		return nil, fmt.Errorf("%w: %d", ErrInvalidWindowID, id)
	}
	return &Window{id: id, name: name, exact: exact, backend: backend}, nil
}

// ID returns the window id.
func (w *Window) ID() int { return w.id }

// Name returns the configured title.
func (w *Window) Name() string { return w.name }

// Exact reports whether the title must match exactly.
func (w *Window) Exact() bool { return w.exact }

// Main reports whether this is the main window of its Set.
func (w *Window) Main() bool { return w.main }

// IsOpen returns the open flag cached by the last PollOpenChanged.
func (w *Window) IsOpen() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.open
}

// HasFocus returns the focus flag cached by the last PollFocusChanged.
func (w *Window) HasFocus() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.focus
}

// PollOpenChanged queries the backend and reports whether the open flag
// differs from the cached one. A window that closes also loses focus.
func (w *Window) PollOpenChanged() bool {
	open := w.backend.IsOpen(w.name, w.exact)

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := open != w.open
	w.open = open
	return changed
}

// PollFocusChanged queries the backend and reports whether the focus flag
// differs from the cached one. A window that is not open never has focus.
func (w *Window) PollFocusChanged() bool {
	w.mu.Lock()
	open := w.open
	w.mu.Unlock()

	focus := open && w.backend.HasFocus(w.name, w.exact)

	w.mu.Lock()
	defer w.mu.Unlock()
	changed := focus != w.focus
	w.focus = focus
	return changed
}

// Info returns the cached state for status reports.
func (w *Window) Info() model.WindowInfo {
	w.mu.Lock()
	defer w.mu.Unlock()
	return model.WindowInfo{
		ID:         w.id,
		Name:       w.name,
		Open:       w.open,
		Focus:      w.focus,
		Main:       w.main,
		ExactTitle: w.exact,
	}
}

// matches reports whether title is matched by name.
//
// Titles of two characters or fewer never match. Titles that start with a drive path ("C:\...") must match exactly. For
// titles of the form "document - Application" it is enough for name to equal
// the part after the last "- ", unless name itself contains "- ". Otherwise
// name matches exactly or as a substring depending on exact.
func matches(title, name string, exact bool) bool {
	if len(title) <= 2 {
		return false
	}
	if title[1] == ':' && title[2] == '\\' {
		return title == name
	}
	if !strings.Contains(name, "- ") {
		if i := strings.LastIndex(title, "- "); i >= 0 && title[i+2:] == name {
			return true
		}
	}
	if exact {
		return title == name
	}
	return strings.Contains(title, name)
}

// Set is an ordered collection of tracked windows.
type Set struct {
	windows []*Window
}

// Add appends w. If main is set, w becomes the main window and any previous
// main window loses the flag.
func (s *Set) Add(w *Window, main bool) {
	if main {
		for _, other := range s.windows {
			other.main = false
		}
		w.main = true
	}
	s.windows = append(s.windows, w)
}

// All returns the windows in insertion order.
func (s *Set) All() []*Window {
	return s.windows
}

// Main returns the main window, or nil.
func (s *Set) Main() *Window {
	for _, w := range s.windows {
		if w.main {
			return w
		}
	}
	return nil
}

// ByID returns the window with the given id, or nil.
func (s *Set) ByID(id int) *Window {
	for _, w := range s.windows {
		if w.id == id {
			return w
		}
	}
	return nil
}
