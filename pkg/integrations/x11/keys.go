package x11

import (
	"fmt"

	"github.com/jezek/xgb/xproto"
	"github.com/jezek/xgb/xtest"

	"github.com/reelguard/reelguard/pkg/a11y"
)

const (
	keysymXF86Back     xproto.Keysym = 0x1008ff26
	keysymXF86HomePage xproto.Keysym = 0x1008ff18
	keysymAltL         xproto.Keysym = 0xffe9
	keysymLeft         xproto.Keysym = 0xff51
	keysymHome         xproto.Keysym = 0xff50
)

// keymap is the server's keycode -> keysym table
type keymap struct {
	min        xproto.Keycode
	perKeycode int
	syms       []xproto.Keysym
}

func (c *client) loadKeymap() (keymap, error) {
	setup := xproto.Setup(c.conn)
	count := int(setup.MaxKeycode) - int(setup.MinKeycode) + 1
	reply, err := xproto.GetKeyboardMapping(c.conn, setup.MinKeycode, byte(count)).Reply()
	if err != nil {
		return keymap{}, fmt.Errorf("failed to read keyboard mapping: %w", err)
	}
	return keymap{min: setup.MinKeycode, perKeycode: int(reply.KeysymsPerKeycode), syms: reply.Keysyms}, nil
}

// lookup returns the first keycode producing sym
func (k keymap) lookup(sym xproto.Keysym) (xproto.Keycode, bool) {
	if k.perKeycode <= 0 {
		return 0, false
	}
	for i, s := range k.syms {
		if s == sym {
			return k.min + xproto.Keycode(i/k.perKeycode), true
		}
	}
	return 0, false
}

// chordFor picks the keys that perform action: the dedicated media key
// when the keyboard has one, otherwise the browser-style Alt chord
func chordFor(action a11y.GlobalAction, k keymap) ([]xproto.Keycode, bool) {
	var dedicated, fallback xproto.Keysym
	switch action {
	case a11y.GlobalActionBack:
		dedicated, fallback = keysymXF86Back, keysymLeft
	case a11y.GlobalActionHome:
		dedicated, fallback = keysymXF86HomePage, keysymHome
	default:
		return nil, false
	}

	if code, ok := k.lookup(dedicated); ok {
		return []xproto.Keycode{code}, true
	}
	alt, ok := k.lookup(keysymAltL)
	if !ok {
		return nil, false
	}
	key, ok := k.lookup(fallback)
	if !ok {
		return nil, false
	}
	return []xproto.Keycode{alt, key}, true
}

// tap presses keys in order and releases them in reverse
func (c *client) tap(keys []xproto.Keycode) error {
	return pressRelease(keys, func(typ byte, k xproto.Keycode) error {
		return xtest.FakeInputChecked(c.conn, typ, byte(k), xproto.TimeCurrentTime, c.root, 0, 0, 0).Check()
	})
}

// pressRelease drives send through a chord. Keys already down when a press
// fails are released before returning so no modifier stays stuck.
func pressRelease(keys []xproto.Keycode, send func(typ byte, k xproto.Keycode) error) error {
	release := func(down []xproto.Keycode) error {
		var first error
		for i := len(down) - 1; i >= 0; i-- {
			if err := send(xproto.KeyRelease, down[i]); err != nil && first == nil {
				first = fmt.Errorf("failed to release key %d: %w", down[i], err)
			}
		}
		return first
	}

	for i, k := range keys {
		if err := send(xproto.KeyPress, k); err != nil {
			release(keys[:i])
			return fmt.Errorf("failed to press key %d: %w", k, err)
		}
	}
	return release(keys)
}
