// Package layout defines Spread's on-disk data directory: where the cache
// index and the content-addressed store of fetched files live, and how a
// single system-wide lock is acquired to serialize installs that touch that
// directory.
package layout

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/filesystem/locking"
	"github.com/spread-install/spread/pkg/hash"
)

const (
	// DataDirectoryName is the name of Spread's data directory, relative to
	// the user's home directory.
	DataDirectoryName = ".spread"

	// LockFileName is the name of the file used to serialize access to the
	// data directory across processes.
	LockFileName = "spread.lock"

	// CachesDirectoryName holds the cache index's backing store and the
	// sharded content-addressed store of verified fetched files (see
	// CachedFilePath).
	CachesDirectoryName = "caches"
)

// HomeDirectory is the current user's home directory, resolved once at
// package initialization.
var HomeDirectory string

// DataDirectoryPath is the absolute path to Spread's data directory.
var DataDirectoryPath string

// LockFilePath is the absolute path to the data directory's lock file.
var LockFilePath string

func init() {
	home, err := os.UserHomeDir()
	if err != nil {
		panic(errors.Wrap(err, "unable to determine home directory"))
	}
	HomeDirectory = home
	DataDirectoryPath = filepath.Join(home, DataDirectoryName)
	LockFilePath = filepath.Join(DataDirectoryPath, LockFileName)
}

// Path returns the absolute path to a named location inside the data
// directory, creating the directory (and its parents) if create is true.
func Path(create bool, pathComponents ...string) (string, error) {
	components := append([]string{DataDirectoryPath}, pathComponents...)
	result := filepath.Join(components...)

	if create {
		directory := result
		if len(pathComponents) > 0 {
			directory = filepath.Dir(result)
		}
		if err := os.MkdirAll(directory, 0o700); err != nil {
			return "", errors.Wrap(err, "unable to create data subdirectory")
		}
	}

	return result, nil
}

// CachedFilePath returns where a file named by h should permanently live
// within the caches directory, sharding by the hash's ShardPrefix so that a
// cache with many entries isn't stored flat in a single directory.
func CachedFilePath(create bool, h hash.Hash) (string, error) {
	if h.IsNull() {
		return "", errors.New("cannot compute a cache path for the null hash")
	}
	return Path(create, CachesDirectoryName, h.ShardPrefix(), h.FileName())
}

// AcquireLock acquires Spread's system-wide data directory lock, creating
// the data directory if necessary. The returned Locker is unlocked; callers
// must call its Lock method before relying on exclusivity.
func AcquireLock() (*locking.Locker, error) {
	if err := os.MkdirAll(DataDirectoryPath, 0o700); err != nil {
		return nil, errors.Wrap(err, "unable to create data directory")
	}
	return locking.NewLocker(LockFilePath, 0o600)
}

// SameFile reports whether the files named by a and b are the same
// filesystem entry (by device and inode, or volume and file index on
// Windows), tolerating either or both paths not existing. Spread uses this
// to recognize when a dependency's resolved location is already equivalent
// to one of its requested destinations, avoiding a redundant copy.
func SameFile(a, b string) bool {
	infoA, err := os.Stat(a)
	if err != nil {
		return false
	}
	infoB, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(infoA, infoB)
}
