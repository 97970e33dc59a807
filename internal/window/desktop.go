package window

import (
	"fmt"
	"slices"
	"sync"
)

// Desktop is an in-memory Backend holding a list of top-level window titles
// and the focused one. It stands in for the native window system in tests
// and when windows are driven through the control API.
type Desktop struct {
	mu      sync.Mutex
	titles  []string
	focused string
}

// NewDesktop creates an empty desktop.
func NewDesktop() *Desktop {
	return &Desktop{}
}

// Open adds a window with the given title. Opening an open title is a no-op.
func (d *Desktop) Open(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.titles, title) {
		d.titles = append(d.titles, title)
	}
}

// Close removes the window with the given title, dropping focus if it had
// it.
func (d *Desktop) Close(title string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i := slices.Index(d.titles, title); i >= 0 {
		d.titles = slices.Delete(d.titles, i, i+1)
	}
	if d.focused == title {
		d.focused = ""
	}
}

// Focus gives the input focus to an open window.
func (d *Desktop) Focus(title string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !slices.Contains(d.titles, title) {
		return fmt.Errorf("window %q is not open", title)
	}
	d.focused = title
	return nil
}

// Titles returns the open titles in the order they were opened.
func (d *Desktop) Titles() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.titles)
}

// Focused returns the focused title, or "".
func (d *Desktop) Focused() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focused
}

// IsOpen implements Backend.
func (d *Desktop) IsOpen(name string, exact bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.ContainsFunc(d.titles, func(t string) bool { return matches(t, name, exact) })
}

// HasFocus implements Backend.
func (d *Desktop) HasFocus(name string, exact bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.focused != "" && matches(d.focused, name, exact)
}
