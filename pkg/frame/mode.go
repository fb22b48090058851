package frame

import (
	"fmt"
	"strings"
)

// Mode is the roaster's coarse operating phase as reported in the Status frame.
// Codes the roaster sends that are not listed below are carried through as-is.
type Mode int16

const (
	ModeUnknown    Mode = -1
	ModeOff        Mode = 0x0
	ModePreheating Mode = 0x2
	ModeLoadBeans  Mode = 0x4
	ModeRoasting   Mode = 0x6
	ModeCooling    Mode = 0x8
	ModeShutDown   Mode = 0x9
)

// Modes lists the operating modes in the order a press cycles through them.
var Modes = []Mode{ModeOff, ModePreheating, ModeLoadBeans, ModeRoasting, ModeCooling, ModeShutDown}

var modeNames = map[Mode]string{
	ModeOff:        "off",
	ModePreheating: "preheating",
	ModeLoadBeans:  "load_beans",
	ModeRoasting:   "roasting",
	ModeCooling:    "cooling",
	ModeShutDown:   "shut_down",
}

// Known reports whether m is one of the defined operating modes.
func (m Mode) Known() bool {
	_, ok := modeNames[m]
	return ok
}

// String returns the mode name, or the raw code for unrecognized modes.
func (m Mode) String() string {
	if m == ModeUnknown {
		return "unknown"
	}
	if name, ok := modeNames[m]; ok {
		return name
	}
	return fmt.Sprintf("mode(0x%02x)", int(m))
}

// ParseMode resolves a mode name such as "roasting" or "load-beans".
func ParseMode(name string) (Mode, error) {
	n := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
	for m, s := range modeNames {
		if s == n {
			return m, nil
		}
	}
	return ModeUnknown, fmt.Errorf("unknown mode %q", name)
}
