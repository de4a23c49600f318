package dirinstaller

import (
	"context"

	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/hash"
)

// Owner is everything a DirInstaller needs from its surrounding façade: the
// concrete I/O and user-interaction primitives that the planner itself has
// no business performing directly. The conflict-prompt UI, directory-object
// loading, blind archive indexing and unpacking, and raw file moves and
// deletes are reached through this interface; the URL transport and the
// archive reader used by Target jobs are injected into the DirInstaller
// separately.
type Owner interface {
	// BrokenURL reports that url failed during a fetch, so future
	// resolutions can demote or skip it.
	BrokenURL(url string)

	// MoveFile renames from to to, creating to's parent directory if
	// necessary. Used both for the add/del-diff "move" optimization and
	// for relocating a fetched temp file into its final destination.
	MoveFile(from, to string) error

	// DeleteFile removes path. It must tolerate path already being
	// absent (compensating cleanup may race with a partially-completed
	// fetch), mirroring CacheIndex.RemoveFile's idempotent contract.
	DeleteFile(path string) error

	// AskWait poses a multi-choice conflict question and blocks for the
	// user's answer. When asking is disabled it must return
	// defaultChoice without blocking.
	AskWait(prompt string, options []string, defaultChoice int) (int, error)

	// LoadDir resolves a directory object's hash to its DirMap (e.g. by
	// fetching and parsing the serialized object from the channel/package
	// metadata store). It returns an error if the object cannot be
	// obtained. For a hash that names a known archive's directory object
	// the installer treats the error as "index the archive blind
	// instead"; for any other directory hash the error fails the install.
	LoadDir(ctx context.Context, dirHash hash.Hash) (dirmap.DirMap, error)

	// IndexArchive unpacks arcHash to a scratch location and scans the
	// result, returning the interior DirMap without touching the
	// install's real destination tree. Used to resolve a "blind" archive
	// (one whose directory object isn't available) during an upgrade.
	IndexArchive(ctx context.Context, arcHash hash.Hash) (dirmap.DirMap, error)

	// UnpackBlindTarget fetches arcHash (if necessary) and unpacks it
	// directly to destDir, trusting the archive's own internal structure
	// rather than verifying each entry against a known hash. Used for the
	// pure-install case in sortBlinds, where there is no prior
	// installation to reconcile against.
	UnpackBlindTarget(ctx context.Context, arcHash hash.Hash, destDir string) error
}
