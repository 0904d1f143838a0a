//go:build windows

package transport

import "strings"

// devicePath rewrites every bare COM port name into the "\\.\COMn" form
// (which Windows requires for names above COM9). Names that already carry
// the prefix, and names not starting with COM, pass through unchanged.
func devicePath(name string) string {
	if strings.HasPrefix(strings.ToUpper(name), `\\.\`) {
		return name
	}
	if strings.HasPrefix(strings.ToUpper(name), "COM") {
		return `\\.\` + name
	}
	return name
}
