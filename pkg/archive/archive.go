// Package archive implements Spread's default archive readers: tar+gzip and
// zip, both satisfying hashtask.Archive. The core (pkg/hashtask) depends only
// on that interface; these are the concrete implementations the CLI wires
// in.
package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/hashtask"
)

// TarGz reads gzip-compressed tar archives.
type TarGz struct{}

// Unpack implements hashtask.Archive.
func (TarGz) Unpack(ctx context.Context, path string, emit func(entry hashtask.ArchiveEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open archive %s", path)
	}
	defer f.Close()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return errors.Wrap(err, "unable to read gzip stream")
	}
	defer gz.Close()

	reader := tar.NewReader(gz)
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		header, err := reader.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "unable to read tar entry")
		}

		if header.Typeflag != tar.TypeReg {
			continue
		}

		if err := emit(hashtask.ArchiveEntry{Name: header.Name, Reader: reader}); err != nil {
			return err
		}
	}
}

var _ hashtask.Archive = TarGz{}

// Zip reads zip archives.
type Zip struct{}

// Unpack implements hashtask.Archive.
func (Zip) Unpack(ctx context.Context, path string, emit func(entry hashtask.ArchiveEntry) error) error {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open archive %s", path)
	}
	defer reader.Close()

	for _, file := range reader.File {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if file.FileInfo().IsDir() {
			continue
		}

		entryReader, err := file.Open()
		if err != nil {
			return errors.Wrapf(err, "unable to open archive entry %s", file.Name)
		}

		err = emit(hashtask.ArchiveEntry{Name: file.Name, Reader: entryReader})
		entryReader.Close()
		if err != nil {
			return err
		}
	}

	return nil
}

var _ hashtask.Archive = Zip{}

// ForPath selects the archive reader appropriate for a file name's
// extension, by simple suffix match. It is a small convenience for callers
// (e.g. the CLI and the dir installer's blind-indexing path) that don't
// otherwise need to care which concrete archive format a rule names.
func ForPath(name string) (hashtask.Archive, bool) {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".zip"):
		return Zip{}, true
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return TarGz{}, true
	default:
		return nil, false
	}
}
