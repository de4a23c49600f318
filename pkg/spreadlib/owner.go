package spreadlib

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/hashtask"
	"github.com/spread-install/spread/pkg/layout"
)

// facadeOwner implements dirinstaller.Owner, the set of genuinely-external
// operations DirInstaller cannot perform itself: see pkg/dirinstaller/owner.go
// for the interface and the rationale for the split from target.Owner
// (which DirInstaller implements directly).
type facadeOwner struct {
	spread *Spread
}

// BrokenURL implements dirinstaller.Owner. Rule demotion itself already
// happened in DirInstaller.ReportBrokenURL (or in Spread.fetchToPath, for
// fetches the façade makes on its own behalf); this is purely the
// user-facing half.
func (o *facadeOwner) BrokenURL(url string) {
	o.spread.logger.Warn(errors.Errorf("download failed, will prefer alternates: %s", url))
}

// MoveFile implements dirinstaller.Owner. It renames from to to, creating
// to's parent directory first, and falls back to a copy-then-remove when
// the rename crosses a filesystem boundary (a plain os.Rename across
// devices always fails with syscall.EXDEV).
func (o *facadeOwner) MoveFile(from, to string) error {
	if err := layout.DefaultFS.MkdirAll(filepath.Dir(to), 0o755); err != nil {
		return errors.Wrapf(err, "unable to create directory for %s", to)
	}
	err := layout.DefaultFS.Rename(from, to)
	if err == nil {
		return nil
	}
	if !isCrossDeviceError(err) {
		return errors.Wrapf(err, "unable to move %s to %s", from, to)
	}
	if err := copyFile(from, to); err != nil {
		return errors.Wrapf(err, "unable to copy %s to %s across devices", from, to)
	}
	if err := layout.DefaultFS.Remove(from); err != nil {
		return errors.Wrapf(err, "unable to remove %s after cross-device copy", from)
	}
	return nil
}

func copyFile(from, to string) error {
	in, err := layout.DefaultFS.Open(from)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := layout.DefaultFS.Create(to)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// DeleteFile implements dirinstaller.Owner, tolerating path already being
// absent.
func (o *facadeOwner) DeleteFile(path string) error {
	if err := layout.DefaultFS.Remove(path); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "unable to delete %s", path)
	}
	return nil
}

// LoadDir implements dirinstaller.Owner: it resolves dirHash to a local
// file exactly as any other named content (cache, or a URL rule naming the
// serialized directory object directly) and parses it back into a DirMap.
func (o *facadeOwner) LoadDir(ctx context.Context, dirHash hash.Hash) (dirmap.DirMap, error) {
	path, err := o.spread.fetchToPath(ctx, dirHash)
	if err != nil {
		return dirmap.DirMap{}, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return dirmap.DirMap{}, errors.Wrapf(err, "unable to read directory object %s", path)
	}
	return dirmap.Parse(raw)
}

// IndexArchive implements dirinstaller.Owner: it fetches arcHash and scans
// its interior structure with hashtask.MakeIndex, without writing any of
// its content to the install's real destination tree.
func (o *facadeOwner) IndexArchive(ctx context.Context, arcHash hash.Hash) (dirmap.DirMap, error) {
	path, err := o.spread.fetchToPath(ctx, arcHash)
	if err != nil {
		return dirmap.DirMap{}, err
	}
	index, err := hashtask.MakeIndex(ctx, path, o.spread.archiver)
	if err != nil {
		return dirmap.DirMap{}, errors.Wrapf(err, "unable to index archive %s", arcHash)
	}
	entries := make([]dirmap.Entry, 0, len(index))
	for name, h := range index {
		entries = append(entries, dirmap.Entry{Path: name, Hash: h})
	}
	return dirmap.New(entries...)
}

// UnpackBlindTarget implements dirinstaller.Owner: it fetches arcHash and
// unpacks it directly to destDir, trusting the archive's own interior
// names and writing every entry without verifying against a known hash —
// there is none to verify against, since a blind unpack by definition has
// no prior directory object for this archive.
func (o *facadeOwner) UnpackBlindTarget(ctx context.Context, arcHash hash.Hash, destDir string) error {
	path, err := o.spread.fetchToPath(ctx, arcHash)
	if err != nil {
		return err
	}
	return o.spread.archiver.Unpack(ctx, path, func(entry hashtask.ArchiveEntry) error {
		dest := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if err := layout.DefaultFS.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return errors.Wrapf(err, "unable to create directory for %s", dest)
		}
		out, err := layout.DefaultFS.Create(dest)
		if err != nil {
			return errors.Wrapf(err, "unable to create %s", dest)
		}
		if _, err := io.Copy(out, entry.Reader); err != nil {
			out.Close()
			return errors.Wrapf(err, "unable to write %s", dest)
		}
		return out.Close()
	})
}
