package input

import (
	"slices"
	"sync"
)

// Poller reports the current state of a key.
type Poller interface {
	IsKeyDown(k Key) bool
}

// Keyboard is an in-memory Poller driven by Press and Release. Each press of
// a key that was up flips its toggle state, like the lock keys of a real
// keyboard.
type Keyboard struct {
	mu      sync.Mutex
	down    map[Key]bool
	toggled map[Key]bool
}

// NewKeyboard returns a keyboard with every key up.
func NewKeyboard() *Keyboard {
	return &Keyboard{down: map[Key]bool{}, toggled: map[Key]bool{}}
}

// Press holds k down.
func (kb *Keyboard) Press(k Key) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	if !kb.down[k] {
		kb.toggled[k] = !kb.toggled[k]
	}
	kb.down[k] = true
}

// Release lets k go.
func (kb *Keyboard) Release(k Key) {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	delete(kb.down, k)
}

// IsKeyDown implements Poller.
func (kb *Keyboard) IsKeyDown(k Key) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.down[k]
}

// IsKeyToggled reports the toggle state of k.
func (kb *Keyboard) IsKeyToggled(k Key) bool {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	return kb.toggled[k]
}

// Down returns the keys currently held, in code order.
func (kb *Keyboard) Down() []Key {
	kb.mu.Lock()
	defer kb.mu.Unlock()
	keys := make([]Key, 0, len(kb.down))
	for k := range kb.down {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
