package osfs

import (
	"os"
	"strings"
)

// isCrossDevice detects the platform-independent "invalid cross-device
// link" rename failure without depending on syscall.EXDEV, which is
// not defined on every GOOS. os.Rename surfaces it as an *os.LinkError
// whose wrapped error's message names the condition on every platform
// Go supports.
func isCrossDevice(le *os.LinkError) bool {
	if le == nil || le.Err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(le.Err.Error()), "cross-device")
}
