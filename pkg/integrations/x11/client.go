// Package x11 exposes X11 top-level windows as an a11y.Platform.
//
// The package name of a window is its WM_CLASS instance and the event class
// its WM_CLASS class. Nodes are X windows: the view ID is WM_WINDOW_ROLE and
// the text is the window title.
package x11

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jezek/xgb"
	"github.com/jezek/xgb/xproto"

	"github.com/reelguard/reelguard/pkg/a11y"
)

var atomNames = []string{
	"_NET_ACTIVE_WINDOW",
	"_NET_WM_NAME",
	"_NET_WM_PID",
	"WM_NAME",
	"WM_CLASS",
	"WM_WINDOW_ROLE",
	"UTF8_STRING",
}

type client struct {
	conn   *xgb.Conn
	root   xproto.Window
	screen *xproto.ScreenInfo
	atoms  map[string]xproto.Atom
}

func dial() (*client, error) {
	conn, err := xgb.NewConn()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to X server: %w", err)
	}

	screen := xproto.Setup(conn).DefaultScreen(conn)
	c := &client{
		conn:   conn,
		root:   screen.Root,
		screen: screen,
		atoms:  make(map[string]xproto.Atom, len(atomNames)),
	}

	for _, name := range atomNames {
		reply, err := xproto.InternAtom(conn, false, uint16(len(name)), name).Reply()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to intern atom %s: %w", name, err)
		}
		c.atoms[name] = reply.Atom
	}

	return c, nil
}

func (c *client) close() {
	c.conn.Close()
}

func (c *client) property(win xproto.Window, atom, typ xproto.Atom, length uint32) ([]byte, error) {
	reply, err := xproto.GetProperty(c.conn, false, win, atom, typ, 0, length).Reply()
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

// selectInput adds mask to the events delivered for win
func (c *client) selectInput(win xproto.Window, mask uint32) error {
	return xproto.ChangeWindowAttributesChecked(c.conn, win, xproto.CwEventMask, []uint32{mask}).Check()
}

// activeWindow reads _NET_ACTIVE_WINDOW, falling back to the top-level
// parent of the input focus
func (c *client) activeWindow() xproto.Window {
	data, err := c.property(c.root, c.atoms["_NET_ACTIVE_WINDOW"], xproto.AtomWindow, 1)
	if err == nil && len(data) >= 4 {
		if win := xproto.Window(binary.LittleEndian.Uint32(data)); win != 0 {
			return win
		}
	}

	reply, err := xproto.GetInputFocus(c.conn).Reply()
	if err != nil || reply.Focus == 0 || reply.Focus == c.root {
		return 0
	}
	return c.topLevelParent(reply.Focus)
}

func (c *client) topLevelParent(win xproto.Window) xproto.Window {
	for {
		reply, err := xproto.QueryTree(c.conn, win).Reply()
		if err != nil || reply.Parent == c.root || reply.Parent == 0 {
			return win
		}
		win = reply.Parent
	}
}

func (c *client) windowName(win xproto.Window) string {
	data, err := c.property(win, c.atoms["_NET_WM_NAME"], c.atoms["UTF8_STRING"], 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	data, err = c.property(win, c.atoms["WM_NAME"], xproto.AtomString, 256)
	if err == nil && len(data) > 0 {
		return strings.TrimRight(string(data), "\x00")
	}
	return ""
}

// windowClass returns the WM_CLASS instance and class names
func (c *client) windowClass(win xproto.Window) (string, string) {
	data, err := c.property(win, c.atoms["WM_CLASS"], xproto.AtomString, 256)
	if err != nil {
		return "", ""
	}
	return parseWMClass(data)
}

func (c *client) windowRole(win xproto.Window) string {
	data, err := c.property(win, c.atoms["WM_WINDOW_ROLE"], xproto.AtomString, 256)
	if err != nil {
		return ""
	}
	return strings.TrimRight(string(data), "\x00")
}

// bounds returns the window rectangle in root coordinates
func (c *client) bounds(win xproto.Window) (a11y.Rect, error) {
	geom, err := xproto.GetGeometry(c.conn, xproto.Drawable(win)).Reply()
	if err != nil {
		return a11y.Rect{}, err
	}
	pos, err := xproto.TranslateCoordinates(c.conn, win, c.root, 0, 0).Reply()
	if err != nil {
		return a11y.Rect{}, err
	}
	left, top := int(pos.DstX), int(pos.DstY)
	return a11y.Rect{
		Left:   left,
		Top:    top,
		Right:  left + int(geom.Width),
		Bottom: top + int(geom.Height),
	}, nil
}

func (c *client) children(win xproto.Window) []xproto.Window {
	reply, err := xproto.QueryTree(c.conn, win).Reply()
	if err != nil {
		return nil
	}
	return reply.Children
}

// parseWMClass splits the two NUL-terminated strings of WM_CLASS
func parseWMClass(data []byte) (string, string) {
	parts := strings.Split(strings.TrimRight(string(data), "\x00"), "\x00")
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], parts[0]
	default:
		return parts[0], parts[1]
	}
}
