// Package cacheindex implements Spread's persistent content-addressed file
// cache: a mapping from on-disk path to the hash of its last-known content,
// used to find existing copies of content before fetching it again.
package cacheindex

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/filesystem"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/logging"
)

// Status is the result of a getStatus query.
type Status int

const (
	// StatusNone indicates there is no file at the queried path.
	StatusNone Status = iota
	// StatusMatch indicates the file at the queried path already hashes to
	// the queried hash.
	StatusMatch
	// StatusDiff indicates the file at the queried path exists, hashes to
	// something else, and no other cached file matches the queried hash.
	StatusDiff
	// StatusElseWhere indicates some cached path holds a file whose
	// rehashed content equals the queried hash.
	StatusElseWhere
)

// String renders a Status for diagnostic output.
func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusMatch:
		return "match"
	case StatusDiff:
		return "diff"
	case StatusElseWhere:
		return "elsewhere"
	default:
		return "unknown"
	}
}

// ErrInvalidArgument is returned when an operation is given a structurally
// invalid argument, such as an empty path.
var ErrInvalidArgument = errors.New("invalid argument")

// ErrMissingFile is returned when an operation requires a file to exist and
// it does not.
var ErrMissingFile = errors.New("missing file")

// ErrHashSizeMismatch is returned when a caller-supplied hash's declared
// size disagrees with the actual file size on disk.
var ErrHashSizeMismatch = errors.New("hash size mismatch")

// entry is the in-memory record for one cached path.
type entry struct {
	hash      hash.Hash
	writeTime int64
	size      int64
}

// Index is a persistent, content-addressed record of files on disk: for
// each path it has seen, it remembers the file's last-known hash along with
// the modification time and size observed at that point, so that unchanged
// files can be trusted without rehashing. Index is safe for concurrent use;
// every public operation holds a single non-reentrant mutex, and operations
// that reuse each other's logic call the Locked-suffixed helpers (e.g.
// GetStatus calling findHashLocked).
type Index struct {
	logger *logging.Logger

	mu      sync.Mutex
	entries map[string]*entry

	storePath string
}

// New creates an empty, unloaded Index. Call Load to attach a backing
// store.
func New(logger *logging.Logger) *Index {
	return &Index{
		logger:  logger,
		entries: make(map[string]*entry),
	}
}

// lock and unlock bracket every public Index method. Internal operations
// that need to invoke another operation's logic while the lock is held call
// the corresponding Locked-suffixed helper directly rather than recursing
// through the public method, so a single non-reentrant mutex suffices to
// give callers the re-entrant semantics the contract promises (e.g.
// GetStatus calling findHashLocked).
func (idx *Index) lock() {
	idx.mu.Lock()
}

func (idx *Index) unlock() {
	idx.mu.Unlock()
}

// Load sets the backing store path, creating it on first write if absent,
// and ingests its current contents.
func (idx *Index) Load(path string) error {
	idx.lock()
	defer idx.unlock()

	idx.storePath = path

	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "unable to open cache index")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		p, e, err := parseLine(line)
		if err != nil {
			return errors.Wrap(err, "unable to parse cache index")
		}
		idx.entries[p] = e
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrap(err, "unable to read cache index")
	}

	idx.logger.Debugf("loaded %d cache entries from %s", len(idx.entries), path)
	return nil
}

// parseLine parses one line of the backing store format:
// "<path> = <hashText> <writeTimeInt>". writeTimeInt is nanoseconds since
// the epoch (see statFile); it only ever round-trips through this file and
// is never interpreted as wall-clock time.
func parseLine(line string) (string, *entry, error) {
	sep := strings.Index(line, " = ")
	if sep == -1 {
		return "", nil, errors.Errorf("malformed cache index line: %q", line)
	}
	path := line[:sep]
	rest := line[sep+3:]

	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return "", nil, errors.Errorf("malformed cache index line: %q", line)
	}

	h, err := hash.Parse(fields[0])
	if err != nil {
		return "", nil, errors.Wrap(err, "unable to parse hash")
	}
	writeTime, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", nil, errors.Wrap(err, "unable to parse write time")
	}

	return path, &entry{hash: h, writeTime: writeTime, size: int64(h.Size())}, nil
}

// formatLine renders one entry in the backing store format.
func formatLine(path string, e *entry) string {
	return fmt.Sprintf("%s = %s %d\n", path, e.hash.String(), e.writeTime)
}

// persist rewrites the entire backing store. Must be called with the lock
// held.
func (idx *Index) persist() error {
	if idx.storePath == "" {
		return nil
	}

	paths := make([]string, 0, len(idx.entries))
	for p := range idx.entries {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var b strings.Builder
	for _, p := range paths {
		b.WriteString(formatLine(p, idx.entries[p]))
	}

	if err := filesystem.WriteFileAtomic(idx.storePath, []byte(b.String()), 0o644, idx.logger); err != nil {
		return errors.Wrap(err, "unable to write cache index")
	}
	return nil
}

// statFile returns the write time and size of path, or (0, 0, false) if it
// does not exist. Write times are kept in nanoseconds rather than whole
// seconds so a file rewritten within the same second is not mistakenly
// trusted by the mtime/size fast path.
func statFile(path string) (int64, int64, bool, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return 0, 0, false, nil
	} else if err != nil {
		return 0, 0, false, err
	}
	return info.ModTime().UnixNano(), info.Size(), true, nil
}

// hashPath streams the file at path through the hash algorithm.
func hashPath(path string) (hash.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return hash.Hash{}, err
	}
	defer f.Close()

	sink := hash.New()
	n, err := io.Copy(sink, bufio.NewReader(f))
	if err != nil {
		return hash.Hash{}, err
	}
	return hash.FromDigest(sink.Sum(nil), uint64(n))
}

// AddFile is an idempotent insert/refresh for a single path. If path exists
// and the stored entry's (writeTime, size) match the filesystem, and (when a
// hash is supplied) the stored hash agrees, the entry is trusted without
// rehashing. Otherwise the file is rehashed (or the supplied hash accepted
// after a size check against the file) and the entry rewritten. If the file
// is missing, allowMissing controls whether that is reported as the null
// hash or as ErrMissingFile.
func (idx *Index) AddFile(path string, supplied hash.Hash, allowMissing bool) (hash.Hash, error) {
	if path == "" {
		return hash.Hash{}, errors.Wrap(ErrInvalidArgument, "empty path")
	}

	idx.lock()
	defer idx.unlock()

	return idx.addFileLocked(path, supplied, allowMissing)
}

func (idx *Index) addFileLocked(path string, supplied hash.Hash, allowMissing bool) (hash.Hash, error) {
	writeTime, size, exists, err := statFile(path)
	if err != nil {
		return hash.Hash{}, errors.Wrapf(err, "unable to stat %s", path)
	}
	if !exists {
		delete(idx.entries, path)
		if allowMissing {
			return hash.Null, nil
		}
		return hash.Hash{}, errors.Wrapf(ErrMissingFile, "%s", path)
	}

	if !supplied.IsNull() && !supplied.MatchesLength(uint64(size)) {
		return hash.Hash{}, errors.Wrapf(ErrHashSizeMismatch, "%s", path)
	}

	if existing, ok := idx.entries[path]; ok {
		if existing.writeTime == writeTime && existing.size == size {
			if supplied.IsNull() || supplied.Equal(existing.hash) {
				return existing.hash, nil
			}
		}
	}

	var computed hash.Hash
	if !supplied.IsNull() {
		computed = supplied
	} else {
		computed, err = hashPath(path)
		if err != nil {
			return hash.Hash{}, errors.Wrapf(err, "unable to hash %s", path)
		}
	}

	idx.entries[path] = &entry{hash: computed, writeTime: writeTime, size: size}
	if err := idx.persist(); err != nil {
		return hash.Hash{}, err
	}
	idx.logger.Debugf("cache index: added %s -> %s", path, computed)
	return computed, nil
}

// AddMany batch-inserts every entry in d, rewriting the backing store once
// at the end. If remove is true, any existing entry whose path is not in d
// is removed from the index.
func (idx *Index) AddMany(d dirmap.DirMap, remove bool) error {
	idx.lock()
	defer idx.unlock()

	present := make(map[string]bool, d.Len())
	for _, e := range d.Entries() {
		present[e.Path] = true
		if _, err := idx.addFileLockedNoPersist(e.Path, e.Hash); err != nil {
			return err
		}
	}

	if remove {
		for p := range idx.entries {
			if !present[p] {
				delete(idx.entries, p)
			}
		}
	}

	return idx.persist()
}

// addFileLockedNoPersist is AddFile's core logic without the per-call
// backing-store rewrite, for use from batch operations.
func (idx *Index) addFileLockedNoPersist(path string, supplied hash.Hash) (hash.Hash, error) {
	writeTime, size, exists, err := statFile(path)
	if err != nil {
		return hash.Hash{}, errors.Wrapf(err, "unable to stat %s", path)
	}
	if !exists {
		delete(idx.entries, path)
		return hash.Null, nil
	}
	if !supplied.IsNull() && !supplied.MatchesLength(uint64(size)) {
		return hash.Hash{}, errors.Wrapf(ErrHashSizeMismatch, "%s", path)
	}

	if existing, ok := idx.entries[path]; ok {
		if existing.writeTime == writeTime && existing.size == size {
			if supplied.IsNull() || supplied.Equal(existing.hash) {
				return existing.hash, nil
			}
		}
	}

	var computed hash.Hash
	if !supplied.IsNull() {
		computed = supplied
	} else {
		computed, err = hashPath(path)
		if err != nil {
			return hash.Hash{}, errors.Wrapf(err, "unable to hash %s", path)
		}
	}
	idx.entries[path] = &entry{hash: computed, writeTime: writeTime, size: size}
	return computed, nil
}

// CheckMany returns a new DirMap with each of d's paths replaced by the
// file's current on-disk hash (or the null hash if missing). CheckMany does
// not mutate the index, but reuses cached (writeTime, size) pairs to avoid
// rehashing unchanged files.
func (idx *Index) CheckMany(d dirmap.DirMap) (dirmap.DirMap, error) {
	idx.lock()
	defer idx.unlock()

	entries := make([]dirmap.Entry, 0, d.Len())
	for _, e := range d.Entries() {
		writeTime, size, exists, err := statFile(e.Path)
		if err != nil {
			return dirmap.DirMap{}, errors.Wrapf(err, "unable to stat %s", e.Path)
		}
		if !exists {
			entries = append(entries, dirmap.Entry{Path: e.Path, Hash: hash.Null})
			continue
		}
		if existing, ok := idx.entries[e.Path]; ok && existing.writeTime == writeTime && existing.size == size {
			entries = append(entries, dirmap.Entry{Path: e.Path, Hash: existing.hash})
			continue
		}
		h, err := hashPath(e.Path)
		if err != nil {
			return dirmap.DirMap{}, errors.Wrapf(err, "unable to hash %s", e.Path)
		}
		entries = append(entries, dirmap.Entry{Path: e.Path, Hash: h})
	}

	return dirmap.New(entries...)
}

// RemoveFile idempotently removes path from the index and its backing
// store.
func (idx *Index) RemoveFile(path string) error {
	idx.lock()
	defer idx.unlock()

	if _, ok := idx.entries[path]; !ok {
		return nil
	}
	delete(idx.entries, path)
	return idx.persist()
}

// FindHash returns some path whose current on-disk content hashes to h, or
// ("", false) if none is found. Each candidate is re-verified against disk
// as it is examined: an entry that no longer matches is dropped from the
// index and the search continues.
func (idx *Index) FindHash(h hash.Hash) (string, bool, error) {
	idx.lock()
	defer idx.unlock()

	return idx.findHashLocked(h)
}

func (idx *Index) findHashLocked(h hash.Hash) (string, bool, error) {
	if h.IsNull() {
		return "", false, nil
	}

	paths := make([]string, 0, len(idx.entries))
	for p, e := range idx.entries {
		if e.hash.Equal(h) {
			paths = append(paths, p)
		}
	}
	sort.Strings(paths)

	var dirty []string
	defer func() {
		for _, p := range dirty {
			delete(idx.entries, p)
		}
	}()

	for _, p := range paths {
		writeTime, size, exists, err := statFile(p)
		if err != nil {
			return "", false, errors.Wrapf(err, "unable to stat %s", p)
		}
		if !exists {
			dirty = append(dirty, p)
			continue
		}
		e := idx.entries[p]
		if e.writeTime == writeTime && e.size == size {
			return p, true, nil
		}
		actual, err := hashPath(p)
		if err != nil {
			return "", false, errors.Wrapf(err, "unable to hash %s", p)
		}
		if actual.Equal(h) {
			idx.entries[p] = &entry{hash: actual, writeTime: writeTime, size: size}
			return p, true, nil
		}
		dirty = append(dirty, p)
	}

	return "", false, nil
}

// GetStatus classifies the relationship between the file at where and h.
// When where is believed mismatched or absent, the cache's alternate-path
// lookup is performed first, so a doomed file at where is never rehashed
// needlessly.
func (idx *Index) GetStatus(where string, h hash.Hash) (Status, error) {
	idx.lock()
	defer idx.unlock()

	if where == "" {
		if _, ok, err := idx.findHashLocked(h); err != nil {
			return StatusNone, err
		} else if ok {
			return StatusElseWhere, nil
		}
		return StatusNone, nil
	}

	writeTime, size, exists, err := statFile(where)
	if err != nil {
		return StatusNone, errors.Wrapf(err, "unable to stat %s", where)
	}
	if !exists {
		if _, ok, err := idx.findHashLocked(h); err != nil {
			return StatusNone, err
		} else if ok {
			return StatusElseWhere, nil
		}
		return StatusNone, nil
	}

	if existing, ok := idx.entries[where]; ok && existing.writeTime == writeTime && existing.size == size {
		if existing.hash.Equal(h) {
			return StatusMatch, nil
		}
		if _, ok, err := idx.findHashLocked(h); err != nil {
			return StatusNone, err
		} else if ok {
			return StatusElseWhere, nil
		}
		return StatusDiff, nil
	}

	actual, err := hashPath(where)
	if err != nil {
		return StatusNone, errors.Wrapf(err, "unable to hash %s", where)
	}
	idx.entries[where] = &entry{hash: actual, writeTime: writeTime, size: size}

	if actual.Equal(h) {
		return StatusMatch, nil
	}
	if _, ok, err := idx.findHashLocked(h); err != nil {
		return StatusNone, err
	} else if ok {
		return StatusElseWhere, nil
	}
	return StatusDiff, nil
}

// Verify walks all entries, refreshing those whose on-disk (writeTime,
// size) diverge from the index and dropping entries whose files are gone.
func (idx *Index) Verify() error {
	idx.lock()
	defer idx.unlock()

	for p, e := range idx.entries {
		writeTime, size, exists, err := statFile(p)
		if err != nil {
			return errors.Wrapf(err, "unable to stat %s", p)
		}
		if !exists {
			delete(idx.entries, p)
			continue
		}
		if e.writeTime == writeTime && e.size == size {
			continue
		}
		actual, err := hashPath(p)
		if err != nil {
			return errors.Wrapf(err, "unable to hash %s", p)
		}
		idx.entries[p] = &entry{hash: actual, writeTime: writeTime, size: size}
	}

	return idx.persist()
}

// GetEntries returns a snapshot of all entries, ordered by path.
func (idx *Index) GetEntries() (dirmap.DirMap, error) {
	idx.lock()
	defer idx.unlock()

	entries := make([]dirmap.Entry, 0, len(idx.entries))
	for p, e := range idx.entries {
		entries = append(entries, dirmap.Entry{Path: p, Hash: e.hash})
	}
	return dirmap.New(entries...)
}
