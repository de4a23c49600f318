// Package spreadlib is the concrete façade that glues Spread's planner
// (pkg/dirinstaller), rule finder, cache, and transport layer into the API
// consumed by cmd/spread. Everything the planner reaches only through
// dirinstaller.Owner — the conflict-prompt UI, broken URL bookkeeping,
// directory-object lookup, and blind archive indexing — has its one
// concrete implementation here.
package spreadlib

import (
	"context"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/archive"
	"github.com/spread-install/spread/pkg/cacheindex"
	"github.com/spread-install/spread/pkg/dirinstaller"
	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/hashtask"
	"github.com/spread-install/spread/pkg/job"
	"github.com/spread-install/spread/pkg/logging"
	"github.com/spread-install/spread/pkg/rules"
	"github.com/spread-install/spread/pkg/transport"
)

// Config configures a Spread façade instance.
type Config struct {
	// Finder supplies rule lookups for every install this façade runs.
	// Typically a rules.StaticRuleFinder built by rules.LoadFile.
	Finder rules.Finder
	// Cache is the persistent content-addressed file cache, shared across
	// every install.
	Cache *cacheindex.Index
	// Logger receives diagnostic output. A root logger at logging.LevelInfo
	// is used if nil.
	Logger *logging.Logger
	// AskEnabled mirrors dirinstaller.New's parameter: when false, every
	// conflict is resolved with its default choice (backup on overwrite,
	// keep on delete) instead of prompting.
	AskEnabled bool
	// Interactive additionally allows AskWait to prompt interactively via
	// a terminal select, when the process is attached to one. It has no
	// effect when AskEnabled is false.
	Interactive bool
}

// Spread is the concrete façade used by cmd/spread: one instance wraps a
// shared cache and rule finder and produces a new dirinstaller.DirInstaller
// per destination install/upgrade, serialized per destination via locks.
type Spread struct {
	finder      rules.Finder
	cache       *cacheindex.Index
	logger      *logging.Logger
	askEnabled  bool
	interactive bool

	downloader hashtask.Downloader
	archiver   hashtask.Archive

	locks *destinationLocks
}

// New constructs a Spread façade from cfg, wiring the default HTTP
// downloader (pkg/transport.HTTPDownloader) and archive dispatcher
// (pkg/archive.ForPath, generalized here to a hashtask.Archive that picks
// its concrete unpacker by file extension) used by every installer it
// creates.
func New(cfg Config) *Spread {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewRoot(logging.LevelInfo)
	}
	return &Spread{
		finder:      cfg.Finder,
		cache:       cfg.Cache,
		logger:      logger,
		askEnabled:  cfg.AskEnabled,
		interactive: cfg.Interactive,
		downloader:  &transport.HTTPDownloader{},
		archiver:    dispatchArchive{},
		locks:       newDestinationLocks(),
	}
}

// DirEntry names a directory object to merge into an installer's pre or
// post state, under Subpath (see DirInstaller.AddDirMap/RemDirMap).
type DirEntry struct {
	DirMap  dirmap.DirMap
	Subpath string
}

// HashEntry names a directory or archive hash to resolve under Subpath
// during sortInput (see DirInstaller.AddDirHash/RemDirHash).
type HashEntry struct {
	Hash    hash.Hash
	Subpath string
}

// FileEntry names a single file's expected content (see
// DirInstaller.AddFile/RemFile).
type FileEntry struct {
	Path string
	Hash hash.Hash
}

// Plan is the caller-supplied description of one install/upgrade: the
// desired post-install state (AddFiles/AddDirMaps/AddDirHashes) and, for an
// upgrade, the previously-installed pre-install state
// (RemFiles/RemDirMaps/RemDirHashes) that the installer reconciles against.
// A pure install (no prior installation) simply leaves the Rem* fields
// empty.
type Plan struct {
	AddFiles     []FileEntry
	RemFiles     []FileEntry
	AddDirMaps   []DirEntry
	RemDirMaps   []DirEntry
	AddDirHashes []HashEntry
	RemDirHashes []HashEntry
	Hints        []hash.Hash
}

// Install resolves and applies plan against prefix, blocking until the
// install completes, fails, or ctx is cancelled. Concurrent calls to
// Install for the same prefix (after path cleaning) are serialized; installs
// of one destination never run concurrently.
func (s *Spread) Install(ctx context.Context, prefix string, plan Plan) error {
	unlock := s.locks.acquire(prefix)
	defer unlock()

	owner := &facadeOwner{spread: s}
	installer := dirinstaller.New(owner, s.finder, s.cache, prefix, s.askEnabled, s.downloader, s.archiver)

	for _, f := range plan.AddFiles {
		installer.AddFile(f.Path, f.Hash)
	}
	for _, f := range plan.RemFiles {
		installer.RemFile(f.Path, f.Hash)
	}
	for _, d := range plan.AddDirMaps {
		installer.AddDirMap(d.DirMap, d.Subpath)
	}
	for _, d := range plan.RemDirMaps {
		installer.RemDirMap(d.DirMap, d.Subpath)
	}
	for _, d := range plan.AddDirHashes {
		installer.AddDirHash(d.Hash, d.Subpath)
	}
	for _, d := range plan.RemDirHashes {
		installer.RemDirHash(d.Hash, d.Subpath)
	}
	for _, h := range plan.Hints {
		installer.AddHint(h)
	}

	job.Run(ctx, installer, false)
	if err := installer.Info().Err(); err != nil {
		return errors.Wrap(err, "install failed")
	}
	return nil
}

// dispatchArchive is the hashtask.Archive implementation installers are
// constructed with: it resolves the concrete unpacker from the archive
// file's name at unpack time, so a single Spread facade can serve rules
// naming either .tar.gz/.tgz or .zip archives without the caller choosing
// up front. This mirrors pkg/archive.ForPath's own documented purpose
// ("callers ... that don't otherwise need to care which concrete archive
// format a rule names"), adapted here into a value usable wherever exactly
// one hashtask.Archive is expected.
type dispatchArchive struct{}

func (dispatchArchive) Unpack(ctx context.Context, path string, emit func(entry hashtask.ArchiveEntry) error) error {
	unpacker, ok := archive.ForPath(path)
	if !ok {
		return errors.Errorf("unrecognized archive format: %s", path)
	}
	return unpacker.Unpack(ctx, path, emit)
}

var _ hashtask.Archive = dispatchArchive{}
