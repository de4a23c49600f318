// Package must wraps cleanup calls whose error is worth logging but not
// worth propagating: closing a file that's about to be discarded, removing a
// temporary file after a failed write, unlocking a lock on the way out.
// Every helper takes the logger it should report to, so failures still show
// up somewhere instead of being silently swallowed.
package must

import (
	"io"
	"os"

	"github.com/spread-install/spread/pkg/logging"
)

// Close closes c, logging any error through logger instead of returning it.
func Close(c io.Closer, logger *logging.Logger) {
	if err := c.Close(); err != nil {
		logger.Warn(err)
	}
}

// OSRemove removes the file at name, logging any error through logger
// instead of returning it.
func OSRemove(name string, logger *logging.Logger) {
	if err := os.Remove(name); err != nil {
		logger.Warn(err)
	}
}

// Unlock unlocks locker, logging any error through logger instead of
// returning it.
func Unlock(locker interface{ Unlock() error }, logger *logging.Logger) {
	if err := locker.Unlock(); err != nil {
		logger.Warn(err)
	}
}
