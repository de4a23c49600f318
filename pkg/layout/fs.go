package layout

import (
	"io"
	"os"
)

// FS is the narrow filesystem capability Spread's data-directory and
// destination-tree code actually needs, factored out so a test can swap in
// an in-memory fake instead of touching the real filesystem. Spread
// deliberately does not attempt a general VFS abstraction (per spec's
// non-goals) — just these six operations, named after their os
// counterparts.
type FS interface {
	Stat(name string) (os.FileInfo, error)
	Open(name string) (io.ReadCloser, error)
	Create(name string) (io.WriteCloser, error)
	Rename(oldpath, newpath string) error
	Remove(name string) error
	MkdirAll(path string, perm os.FileMode) error
}

// osFS is the production FS, a thin pass-through to the os package.
type osFS struct{}

func (osFS) Stat(name string) (os.FileInfo, error) { return os.Stat(name) }

func (osFS) Open(name string) (io.ReadCloser, error) { return os.Open(name) }

func (osFS) Create(name string) (io.WriteCloser, error) { return os.Create(name) }

func (osFS) Rename(oldpath, newpath string) error { return os.Rename(oldpath, newpath) }

func (osFS) Remove(name string) error { return os.Remove(name) }

func (osFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }

// DefaultFS is the FS every production code path uses; those code paths
// read this variable directly rather than taking an FS parameter.
var DefaultFS FS = osFS{}
