// +build !windows

package spreadlib

import (
	"os"
	"syscall"
)

// isCrossDeviceError reports whether err is the failure os.Rename returns
// when asked to rename across filesystem boundaries.
func isCrossDeviceError(err error) bool {
	linkErr, ok := err.(*os.LinkError)
	if !ok {
		return false
	}
	errno, ok := linkErr.Err.(syscall.Errno)
	return ok && errno == syscall.EXDEV
}
