// Package hashtask implements Spread's three leaf fetch tasks — CopyHash,
// DownloadHash, and UnpackHash — which obtain content by copying, HTTP
// download, or archive extraction respectively. All three share one
// contract: they receive zero or more pre-fetched inputs (hash -> local
// path) and zero or more required outputs (output path -> hash), and they
// stream data through a verifying hash sink so that a mismatch between the
// bytes actually produced and the requested hash is caught before the
// install proceeds.
package hashtask

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/contextutil"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/job"
)

// ErrHashMismatch is returned when a task's output stream's final digest
// does not equal the hash it was asked to produce.
var ErrHashMismatch = errors.New("hash mismatch")

// ErrUnexpectedFile is returned by UnpackHash when an archive contains an
// entry whose name is not present in the task's index.
var ErrUnexpectedFile = errors.New("unexpected file in archive")

// verifyingSink is an io.WriteCloser that streams writes into a temporary
// file on the same volume as its final destinations while simultaneously
// feeding a running hash, then verifies the digest and relocates the file
// into place on Close, replicating to any additional destinations that
// want the same content.
type verifyingSink struct {
	expected hash.Hash

	tmp      *os.File
	digester interface {
		io.Writer
		Sum(b []byte) []byte
	}
	written uint64

	primary  string
	replicas []string
}

// newVerifyingSink creates a sink that will write to a fresh temporary file
// next to primary (so the final os.Rename is same-volume), verify against
// expected on Close, and then copy the result to each replica path.
func newVerifyingSink(expected hash.Hash, primary string, replicas []string) (*verifyingSink, error) {
	if err := os.MkdirAll(filepath.Dir(primary), 0o755); err != nil {
		return nil, errors.Wrapf(err, "unable to create directory for %s", primary)
	}
	tmp, err := os.CreateTemp(filepath.Dir(primary), ".spread-fetch-*.___tmp")
	if err != nil {
		return nil, errors.Wrap(err, "unable to create temporary file")
	}
	return &verifyingSink{
		expected: expected,
		tmp:      tmp,
		digester: hash.New(),
		primary:  primary,
		replicas: replicas,
	}, nil
}

// Write implements io.Writer.
func (s *verifyingSink) Write(data []byte) (int, error) {
	n, err := s.tmp.Write(data)
	s.digester.Write(data[:n])
	s.written += uint64(n)
	return n, err
}

// abort discards the sink's temporary file without relocating it, for use
// when the stream producing the sink's content failed before Close.
func (s *verifyingSink) abort() {
	s.tmp.Close()
	os.Remove(s.tmp.Name())
}

// Close finalizes the sink: it verifies the digest matches the expected
// hash, relocates the temporary file to the primary path, and copies the
// result to every replica path.
func (s *verifyingSink) Close() error {
	if err := s.tmp.Close(); err != nil {
		os.Remove(s.tmp.Name())
		return errors.Wrap(err, "unable to close temporary file")
	}

	digest := s.digester.Sum(nil)
	actual, err := hash.FromDigest(digest, s.written)
	if err != nil {
		os.Remove(s.tmp.Name())
		return err
	}
	if !s.expected.IsNull() && !actual.Equal(s.expected) {
		os.Remove(s.tmp.Name())
		return errors.Wrapf(ErrHashMismatch, "expected %s, got %s", s.expected, actual)
	}

	if err := os.Rename(s.tmp.Name(), s.primary); err != nil {
		os.Remove(s.tmp.Name())
		return errors.Wrapf(err, "unable to relocate %s into place", s.primary)
	}

	for _, replica := range s.replicas {
		if err := replicateFile(s.primary, replica); err != nil {
			return errors.Wrapf(err, "unable to replicate to %s", replica)
		}
	}

	return nil
}

// replicateFile copies src to dst, creating dst's parent directory if
// necessary.
func replicateFile(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// outputSet groups the output paths for a task by target hash, with one
// primary path (the first seen for that hash) and zero or more replicas.
type outputSet struct {
	primary  map[hash.Hash]string
	replicas map[hash.Hash][]string
	order    []hash.Hash
}

func newOutputSet(outputs map[string]hash.Hash) *outputSet {
	s := &outputSet{
		primary:  make(map[hash.Hash]string),
		replicas: make(map[hash.Hash][]string),
	}
	// Deterministic-ish iteration isn't required by the contract (any
	// output path may serve as primary), but a stable choice makes
	// behavior reproducible across runs for the same output map.
	paths := make([]string, 0, len(outputs))
	for p := range outputs {
		paths = append(paths, p)
	}
	sortStrings(paths)
	for _, p := range paths {
		h := outputs[p]
		if _, ok := s.primary[h]; !ok {
			s.primary[h] = p
			s.order = append(s.order, h)
		} else {
			s.replicas[h] = append(s.replicas[h], p)
		}
	}
	return s
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
}

// sinkFor creates a verifying sink for h using this output set's primary and
// replica paths. If h is not one of the task's requested outputs, it
// returns (nil, false): callers use this to detect unexpected content.
func (s *outputSet) sinkFor(h hash.Hash) (*verifyingSink, bool, error) {
	primary, ok := s.primary[h]
	if !ok {
		return nil, false, nil
	}
	sink, err := newVerifyingSink(h, primary, s.replicas[h])
	if err != nil {
		return nil, true, err
	}
	return sink, true, nil
}

// CopyHash copies the local file at inputPath (already known to hash to h)
// to every output path requesting h, rehashing as it streams so that a
// caller-supplied input that has changed on disk since it was discovered is
// still caught.
type CopyHash struct {
	Hash      hash.Hash
	InputPath string
	Outputs   map[string]hash.Hash
}

// Run executes the copy, checking info.CheckStatus between chunks so the
// copy can be cancelled mid-stream.
func (c *CopyHash) Run(ctx context.Context, info *job.Info) error {
	outputs := newOutputSet(c.Outputs)
	sink, ok, err := outputs.sinkFor(c.Hash)
	if err != nil {
		return err
	}
	if !ok {
		// Nothing requested this hash; nothing to do.
		return nil
	}

	in, err := os.Open(c.InputPath)
	if err != nil {
		sink.abort()
		return errors.Wrapf(err, "unable to open %s", c.InputPath)
	}
	defer in.Close()

	if err := streamWithCancellation(ctx, info, in, sink); err != nil {
		sink.abort()
		return err
	}
	return sink.Close()
}

// Downloader performs an HTTP(S)-style byte-stream download, writing to w
// and reporting progress via info. Out of scope for this package's own
// implementation (the actual transport is an external collaborator); tasks
// depend only on this interface.
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer, info *job.Info) error
}

// DownloadHash downloads url and verifies the result hashes to Hash.
type DownloadHash struct {
	Hash       hash.Hash
	URL        string
	Outputs    map[string]hash.Hash
	Downloader Downloader
}

// Run executes the download.
func (d *DownloadHash) Run(ctx context.Context, info *job.Info) error {
	outputs := newOutputSet(d.Outputs)
	sink, ok, err := outputs.sinkFor(d.Hash)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}

	if err := d.Downloader.Download(ctx, d.URL, sink, info); err != nil {
		sink.abort()
		return errors.Wrapf(err, "download failed: %s", d.URL)
	}
	return sink.Close()
}

// ArchiveEntry is one file streamed out of an archive by an Archive
// implementation during unpack.
type ArchiveEntry struct {
	Name   string
	Reader io.Reader
}

// Archive is the interface Spread depends on for reading archive files; the
// actual unpacker (tar/zip/etc.) is an external collaborator, referenced
// only through this interface.
type Archive interface {
	// Unpack calls emit once per entry in the archive at path, in archive
	// order, with a reader positioned at the entry's content.
	Unpack(ctx context.Context, path string, emit func(entry ArchiveEntry) error) error
}

// UnpackHash unpacks an archive (ArchivePath, already verified to hash to
// Hash) and routes each named interior entry to the output it satisfies,
// using Index to map entry names to their expected hashes. Entries whose
// name is not present in Index fail the task with ErrUnexpectedFile.
type UnpackHash struct {
	Hash        hash.Hash
	ArchivePath string
	// Index maps archive entry name -> expected hash, built by a prior
	// indexing pass (MakeIndex, or a rule's declared directory object).
	Index   map[string]hash.Hash
	Outputs map[string]hash.Hash
	Archive Archive
}

// Run executes the unpack.
func (u *UnpackHash) Run(ctx context.Context, info *job.Info) error {
	outputs := newOutputSet(u.Outputs)

	return u.Archive.Unpack(ctx, u.ArchivePath, func(entry ArchiveEntry) error {
		if info.CheckStatus() {
			return errors.New("unpack cancelled")
		}

		expected, ok := u.Index[entry.Name]
		if !ok {
			return errors.Wrapf(ErrUnexpectedFile, "%s", entry.Name)
		}

		sink, wanted, err := outputs.sinkFor(expected)
		if err != nil {
			return err
		}
		if !wanted {
			// This output hash isn't in the task's requested set; drain
			// and discard, matching the spec's "no-op for hashes not in
			// the output set" contract for getOutStream.
			_, err := io.Copy(io.Discard, entry.Reader)
			return err
		}

		if err := streamWithCancellation(ctx, info, entry.Reader, sink); err != nil {
			sink.abort()
			return err
		}
		return sink.Close()
	})
}

// MakeIndex is a static utility that unpacks archivePath through a
// swallowing hash-stream factory, building the name -> hash table for its
// interior entries without writing any files to their final destinations.
// It is used ahead of a real UnpackHash run when an archive's contents are
// not already known from a rule's declared directory object (i.e. a "blind"
// archive).
func MakeIndex(ctx context.Context, archivePath string, archive Archive) (map[string]hash.Hash, error) {
	index := make(map[string]hash.Hash)
	err := archive.Unpack(ctx, archivePath, func(entry ArchiveEntry) error {
		sink := hash.New()
		n, err := io.Copy(sink, entry.Reader)
		if err != nil {
			return err
		}
		h, err := hash.FromDigest(sink.Sum(nil), uint64(n))
		if err != nil {
			return err
		}
		index[entry.Name] = h
		return nil
	})
	if err != nil {
		return nil, err
	}
	return index, nil
}

// streamWithCancellation copies src to dst in fixed-size chunks, checking
// ctx and info.CheckStatus between chunks so long transfers remain
// cancellable.
func streamWithCancellation(ctx context.Context, info *job.Info, src io.Reader, dst io.Writer) error {
	buf := make([]byte, 256*1024)
	for {
		if contextutil.IsCancelled(ctx) {
			return ctx.Err()
		}
		if info != nil && info.CheckStatus() {
			return errors.New("transfer cancelled")
		}

		n, readErr := src.Read(buf)
		if n > 0 {
			if _, err := dst.Write(buf[:n]); err != nil {
				return err
			}
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return readErr
		}
	}
}
