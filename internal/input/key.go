// Package input polls keyboard and mouse buttons and turns press edges into
// scheduler events.
package input

import (
	"fmt"
	"strconv"
	"strings"
)

// Key is a virtual key code. Mouse buttons share the code space.
type Key uint16

const (
	KeyLeftMouse   Key = 0x01
	KeyRightMouse  Key = 0x02
	KeyMiddleMouse Key = 0x04
	KeyXMouse1     Key = 0x05
	KeyXMouse2     Key = 0x06
	KeyBackspace   Key = 0x08
	KeyTab         Key = 0x09
	KeyEnter       Key = 0x0D
	KeyShift       Key = 0x10
	KeyControl     Key = 0x11
	KeyAlt         Key = 0x12
	KeyPause       Key = 0x13
	KeyCapsLock    Key = 0x14
	KeyEscape      Key = 0x1B
	KeySpace       Key = 0x20
	KeyPageUp      Key = 0x21
	KeyPageDown    Key = 0x22
	KeyEnd         Key = 0x23
	KeyHome        Key = 0x24
	KeyLeft        Key = 0x25
	KeyUp          Key = 0x26
	KeyRight       Key = 0x27
	KeyDown        Key = 0x28
	KeyInsert      Key = 0x2D
	KeyDelete      Key = 0x2E
	Key0           Key = 0x30
	KeyA           Key = 0x41
	KeyNumpad0     Key = 0x60
	KeyNumLock     Key = 0x90
	KeyScrollLock  Key = 0x91
)

// Function keys. F13 to F24 follow KeyF12 and are only named.
const (
	KeyF1 Key = 0x70 + iota
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyF11
	KeyF12
)

var (
	keyNames  = map[Key]string{}
	namedKeys = map[string]Key{}
)

func register(k Key, name string, aliases ...string) {
	keyNames[k] = name
	namedKeys[strings.ToUpper(name)] = k
	for _, a := range aliases {
		namedKeys[strings.ToUpper(a)] = k
	}
}

func init() {
	register(KeyLeftMouse, "MouseLeft", "LButton")
	register(KeyRightMouse, "MouseRight", "RButton")
	register(KeyMiddleMouse, "MouseMiddle", "MButton")
	register(KeyXMouse1, "MouseX1", "XButton1")
	register(KeyXMouse2, "MouseX2", "XButton2")
	register(KeyBackspace, "Backspace", "Back")
	register(KeyTab, "Tab")
	register(KeyEnter, "Enter", "Return")
	register(KeyShift, "Shift")
	register(KeyControl, "Control", "Ctrl")
	register(KeyAlt, "Alt", "Menu")
	register(KeyPause, "Pause")
	register(KeyCapsLock, "CapsLock")
	register(KeyEscape, "Escape", "Esc")
	register(KeySpace, "Space")
	register(KeyPageUp, "PageUp")
	register(KeyPageDown, "PageDown")
	register(KeyEnd, "End")
	register(KeyHome, "Home")
	register(KeyLeft, "Left")
	register(KeyUp, "Up")
	register(KeyRight, "Right")
	register(KeyDown, "Down")
	register(KeyInsert, "Insert")
	register(KeyDelete, "Delete", "Del")
	register(KeyNumLock, "NumLock")
	register(KeyScrollLock, "ScrollLock")
	for i := range Key(10) {
		register(Key0+i, strconv.Itoa(int(i)))
		register(KeyNumpad0+i, "Numpad"+strconv.Itoa(int(i)))
	}
	for i := range Key(26) {
		register(KeyA+i, string(rune('A'+i)))
	}
	for i := range Key(24) {
		register(KeyF1+i, "F"+strconv.Itoa(int(i)+1))
	}
}

// ParseKey resolves a case-insensitive key name or a hexadecimal code such
// as "0x41".
func ParseKey(s string) (Key, error) {
	s = strings.TrimSpace(s)
	if k, ok := namedKeys[strings.ToUpper(s)]; ok {
		return k, nil
	}
	if rest, ok := strings.CutPrefix(strings.ToLower(s), "0x"); ok {
		n, err := strconv.ParseUint(rest, 16, 16)
		if err == nil && n > 0 && n < 0xFF {
			return Key(n), nil
		}
	}
	return 0, fmt.Errorf("unknown key %q", s)
}

// String returns the key name, or its hexadecimal code for unnamed keys.
func (k Key) String() string {
	if name, ok := keyNames[k]; ok {
		return name
	}
	return fmt.Sprintf("0x%02X", uint16(k))
}

// IsMouse reports whether k is a mouse button.
func (k Key) IsMouse() bool {
	switch k {
	case KeyLeftMouse, KeyRightMouse, KeyMiddleMouse, KeyXMouse1, KeyXMouse2:
		return true
	}
	return false
}
