package x11

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/jezek/xgb/xproto"
)

const procRoot = "/proc"

// windowPID reads _NET_WM_PID, returning 0 when the client did not set it
func (c *client) windowPID(win xproto.Window) int {
	data, err := c.property(win, c.atoms["_NET_WM_PID"], xproto.AtomCardinal, 1)
	if err != nil || len(data) < 4 {
		return 0
	}
	return int(binary.LittleEndian.Uint32(data))
}

// processName returns the command name from <root>/<pid>/stat
func processName(root string, pid int) string {
	if pid <= 0 {
		return ""
	}
	data, err := os.ReadFile(filepath.Join(root, strconv.Itoa(pid), "stat"))
	if err != nil {
		return ""
	}

	stat := string(data)
	start := strings.Index(stat, "(")
	end := strings.LastIndex(stat, ")")
	if start == -1 || end <= start {
		return ""
	}
	return stat[start+1 : end]
}

// packageName identifies the application owning win: the WM_CLASS instance,
// or the owning process for clients that leave WM_CLASS unset
func (c *client) packageName(win xproto.Window) (string, string) {
	instance, class := c.windowClass(win)
	if instance != "" {
		return instance, class
	}
	name := processName(procRoot, c.windowPID(win))
	return name, name
}
