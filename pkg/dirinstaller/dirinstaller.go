// Package dirinstaller implements Spread's install/upgrade planner and
// executor: given a desired directory state (expressed as added/removed
// files, directory objects, and hint archives) and a prior installation's
// expected state, it resolves every hash against the cache and rule set,
// reconciles on-disk drift with the user, and applies a transactional
// fetch-then-move/delete pass. The archive unpacker, the URL transport,
// channel/package metadata, and the conflict-prompt UI are reached only
// through the Owner interface and the injected
// hashtask.Downloader/hashtask.Archive collaborators.
package dirinstaller

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/cacheindex"
	"github.com/spread-install/spread/pkg/contextutil"
	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/hashtask"
	"github.com/spread-install/spread/pkg/installfinder"
	"github.com/spread-install/spread/pkg/job"
	"github.com/spread-install/spread/pkg/layout"
	"github.com/spread-install/spread/pkg/rules"
	"github.com/spread-install/spread/pkg/target"
)

// Error kinds surfaced by the pipeline.
var (
	// ErrUnresolvedDeps is returned when the resolver could not find a way
	// to obtain some hash the plan depends on.
	ErrUnresolvedDeps = errors.New("unresolved dependencies")
	// ErrUnresolvedArchives is returned when blind archives remain after
	// the second sortInput pass.
	ErrUnresolvedArchives = errors.New("unresolved blind archives")
	// ErrFetchFailed is returned when any child fetch job fails during
	// the transactional fetch phase.
	ErrFetchFailed = errors.New("fetch failed")
	// errAborted is used internally to short-circuit a phase once
	// Info.CheckStatus reports the install has been aborted.
	errAborted = errors.New("aborted")
)

// Conflict choices offered for an add-side collision.
const (
	conflictBackup = iota
	conflictOverwrite
	conflictKeep
)

// Conflict choices offered for a del-side collision.
const (
	conflictDelete = iota
	conflictKeepFile
)

// DirInstaller plans and executes one directory install/upgrade. It is
// itself a job.Job: construct it, configure it via the add/rem methods
// below, then run it with job.Run. It also implements target.Owner, acting
// as the Owner for every per-action Target it spawns.
type DirInstaller struct {
	job.ParentJob

	info *job.Info

	owner      Owner
	finder     rules.Finder
	arcSet     *rules.ArcRuleSet
	cache      *cacheindex.Index
	prefix     string
	askEnabled bool
	downloader hashtask.Downloader
	archiver   hashtask.Archive

	started bool

	// Configuration state, drained phase by phase as the pipeline runs.
	pre, post               dirmap.DirMap
	preHash, postHash       []hashPath
	preBlinds, postBlinds   []hashPath
	hints                   []hash.Hash

	// Intermediate diff state, populated by sortAddDel and consumed by the
	// phases that follow it.
	add     []addEntry
	del     []delEntry
	upgrade map[string]hash.Hash
	moves   []move

	// archiveDirs caches, per archive hash, the interior DirMap discovered
	// either from a declared directory object or from a blind index, so
	// that a later UnpackHash run (built either directly by a phase or
	// indirectly via FetchFile) can look up its entry index.
	archiveDirs map[hash.Hash]dirmap.DirMap

	// Per-run resolver state used by FetchFile (target.Owner) to service
	// an action's own rule dependencies (e.g. an archive rule's ArcHash)
	// without re-running installfinder.Resolve or re-fetching content
	// already obtained for another destination.
	actionMap    installfinder.ActionMap
	ruleByURL    map[string]*rules.Rule
	fetchMu      sync.Mutex
	fetchedPaths map[hash.Hash]string
}

// New constructs a DirInstaller. prefix is the absolute target directory; a
// trailing path separator is appended if not already present, so relative
// entry paths can always be joined by plain concatenation. downloader and
// archiver are the concrete collaborators used to materialize URL and
// archive rules respectively.
func New(
	owner Owner,
	finder rules.Finder,
	cache *cacheindex.Index,
	prefix string,
	askEnabled bool,
	downloader hashtask.Downloader,
	archiver hashtask.Archive,
) *DirInstaller {
	if prefix != "" && !strings.HasSuffix(prefix, string(os.PathSeparator)) {
		prefix += string(os.PathSeparator)
	}
	return &DirInstaller{
		info:        job.NewInfo(),
		owner:       owner,
		finder:      finder,
		arcSet:      rules.NewArcRuleSet(finder),
		cache:       cache,
		prefix:      prefix,
		askEnabled:  askEnabled,
		downloader:  downloader,
		archiver:    archiver,
		archiveDirs: make(map[hash.Hash]dirmap.DirMap),
	}
}

// Info implements job.Job.
func (d *DirInstaller) Info() *job.Info {
	return d.info
}

// --- Configuration (must happen before Run/DoJob) ---

// AddFile registers that path must hash to h after install.
func (d *DirInstaller) AddFile(path string, h hash.Hash) {
	if d.started {
		return
	}
	d.post = d.post.With(path, h)
}

// RemFile registers that path was expected to hash to h before install.
func (d *DirInstaller) RemFile(path string, h hash.Hash) {
	if d.started {
		return
	}
	d.pre = d.pre.With(path, h)
}

// AddDirMap merges a known directory object's entries into the post state
// under subpath.
func (d *DirInstaller) AddDirMap(dm dirmap.DirMap, subpath string) {
	if d.started {
		return
	}
	d.post = mergeDirMap(d.post, dm, subpath)
}

// RemDirMap merges a known directory object's entries into the pre state
// under subpath.
func (d *DirInstaller) RemDirMap(dm dirmap.DirMap, subpath string) {
	if d.started {
		return
	}
	d.pre = mergeDirMap(d.pre, dm, subpath)
}

// AddDirHash registers a directory (or archive) hash to be resolved under
// subpath during sortInput, for when the caller knows the hash but not yet
// its contents.
func (d *DirInstaller) AddDirHash(h hash.Hash, subpath string) {
	if d.started {
		return
	}
	d.postHash = append(d.postHash, hashPath{Hash: h, Path: subpath})
}

// RemDirHash is AddDirHash's pre-state counterpart.
func (d *DirInstaller) RemDirHash(h hash.Hash, subpath string) {
	if d.started {
		return
	}
	d.preHash = append(d.preHash, hashPath{Hash: h, Path: subpath})
}

// AddHint pre-registers an archive that might help resolution, even though
// nothing has asked for its contents directly yet.
func (d *DirInstaller) AddHint(h hash.Hash) {
	if d.started {
		return
	}
	d.hints = append(d.hints, h)
}

// --- Pipeline execution ---

// DoJob implements job.Job, running the pipeline's phases strictly in
// sequence. Configuration methods above become no-ops once this begins.
func (d *DirInstaller) DoJob(ctx context.Context) error {
	d.started = true
	d.fetchedPaths = make(map[hash.Hash]string)

	phases := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"loadUserHints", d.loadUserHints},
		{"sortInput", d.sortInput},
		{"sortBlinds", d.sortBlinds},
		{"sortInput", d.sortInput},
		{"checkResolved", d.checkResolved},
		{"sortAddDel", d.sortAddDel},
		{"resolveConflicts", d.resolveConflicts},
		{"findMoves", d.findMoves},
		{"transactionalFetch", d.transactionalFetch},
		{"applyMovesAndDeletes", d.applyMovesAndDeletes},
	}

	for _, phase := range phases {
		if d.info.CheckStatus() || contextutil.IsCancelled(ctx) {
			return errAborted
		}
		if err := phase.fn(ctx); err != nil {
			return errors.Wrapf(err, "phase %s", phase.name)
		}
	}

	return nil
}

// loadUserHints implements phase 1.
func (d *DirInstaller) loadUserHints(ctx context.Context) error {
	for _, h := range d.hints {
		if d.info.CheckStatus() {
			return errAborted
		}
		arcData, ok := d.arcSet.FindArchive(h)
		if !ok {
			continue
		}
		dm, err := d.owner.LoadDir(ctx, arcData.Rule.Archive.DirHash)
		if err != nil {
			dm, err = d.owner.IndexArchive(ctx, arcData.Rule.Archive.ArcHash)
			if err != nil {
				// A hint is an optimization, not a requirement; a failed
				// hint simply contributes nothing.
				continue
			}
		}
		d.registerArchive(arcData.Rule, dm)
	}
	return nil
}

// sortInput implements phases 2 and 4 (it is run twice).
func (d *DirInstaller) sortInput(ctx context.Context) error {
	if err := d.drainHashList(ctx, &d.postHash, &d.postBlinds, &d.post); err != nil {
		return err
	}
	return d.drainHashList(ctx, &d.preHash, &d.preBlinds, &d.pre)
}

// drainHashList resolves every (hash, path) pair in *list against the rule
// finder, merging directory objects into *target under their declared path
// and demoting archives whose directory object can't be loaded onto
// *blinds.
func (d *DirInstaller) drainHashList(ctx context.Context, list, blinds *[]hashPath, target *dirmap.DirMap) error {
	pending := *list
	*list = nil

	for _, hp := range pending {
		if d.info.CheckStatus() {
			return errAborted
		}

		if arcData, ok := d.arcSet.FindArchive(hp.Hash); ok {
			// An archive already registered this run (e.g. just indexed
			// by sortBlinds) has its interior structure on hand; don't
			// go back to the owner for it.
			if dm, ok := d.archiveDirs[arcData.Rule.Archive.ArcHash]; ok {
				*target = mergeDirMap(*target, dm, hp.Path)
				continue
			}
			dm, err := d.owner.LoadDir(ctx, arcData.Rule.Archive.DirHash)
			if err != nil {
				*blinds = append(*blinds, hp)
				continue
			}
			d.registerArchive(arcData.Rule, dm)
			*target = mergeDirMap(*target, dm, hp.Path)
			continue
		}

		dm, err := d.owner.LoadDir(ctx, hp.Hash)
		if err != nil {
			return errors.Wrapf(err, "unable to load directory object %s", hp.Hash)
		}
		*target = mergeDirMap(*target, dm, hp.Path)
	}

	return nil
}

// sortBlinds implements phase 3.
func (d *DirInstaller) sortBlinds(ctx context.Context) error {
	pureInstall := d.pre.Len() == 0 && len(d.preBlinds) == 0

	if pureInstall {
		for _, b := range d.postBlinds {
			if d.info.CheckStatus() {
				return errAborted
			}
			destDir := d.prefix + b.Path
			if err := d.owner.UnpackBlindTarget(ctx, b.Hash, destDir); err != nil {
				return errors.Wrapf(err, "blind unpack of %s to %s", b.Hash, destDir)
			}
		}
		d.postBlinds = nil
		return nil
	}

	indexed := make(map[hash.Hash]bool)
	all := make([]hashPath, 0, len(d.preBlinds)+len(d.postBlinds))
	all = append(all, d.preBlinds...)
	all = append(all, d.postBlinds...)

	for _, b := range all {
		if indexed[b.Hash] {
			continue
		}
		if d.info.CheckStatus() {
			return errAborted
		}
		dm, err := d.owner.IndexArchive(ctx, b.Hash)
		if err != nil {
			return errors.Wrapf(err, "unable to index archive %s", b.Hash)
		}
		rule := &rules.Rule{
			RuleString: fmt.Sprintf("blind-indexed:%s", b.Hash),
			Type:       rules.TypeArchive,
			Deps:       []hash.Hash{b.Hash},
			Archive:    rules.ArchivePayload{ArcHash: b.Hash, DirHash: dm.Hash()},
		}
		d.registerArchive(rule, dm)
		indexed[b.Hash] = true
	}

	d.preHash = append(d.preHash, d.preBlinds...)
	d.postHash = append(d.postHash, d.postBlinds...)
	d.preBlinds = nil
	d.postBlinds = nil
	return nil
}

// checkResolved enforces the invariant between phases 4 and 5: no blind
// archives may remain.
func (d *DirInstaller) checkResolved(context.Context) error {
	if len(d.preBlinds) > 0 || len(d.postBlinds) > 0 {
		return ErrUnresolvedArchives
	}
	return nil
}

// sortAddDel implements phase 5, diffing pre and post.
func (d *DirInstaller) sortAddDel(context.Context) error {
	d.add = nil
	d.del = nil
	d.upgrade = make(map[string]hash.Hash)

	for _, e := range d.post.Entries() {
		full := d.prefix + e.Path
		if oldHash, ok := d.pre.Lookup(e.Path); ok {
			if oldHash.Equal(e.Hash) {
				continue
			}
			d.upgrade[full] = oldHash
		}
		d.add = append(d.add, addEntry{Hash: e.Hash, FullPath: full})
	}

	for _, e := range d.pre.Entries() {
		if _, ok := d.post.Lookup(e.Path); !ok {
			d.del = append(d.del, delEntry{Hash: e.Hash, FullPath: d.prefix + e.Path})
		}
	}

	d.pre = dirmap.DirMap{}
	d.post = dirmap.DirMap{}
	return nil
}

// resolveConflicts implements phase 6.
func (d *DirInstaller) resolveConflicts(context.Context) error {
	paths := make(map[string]bool, len(d.add)+len(d.del))
	entries := make([]dirmap.Entry, 0, len(d.add)+len(d.del))
	for _, a := range d.add {
		if !paths[a.FullPath] {
			paths[a.FullPath] = true
			entries = append(entries, dirmap.Entry{Path: a.FullPath})
		}
	}
	for _, e := range d.del {
		if !paths[e.FullPath] {
			paths[e.FullPath] = true
			entries = append(entries, dirmap.Entry{Path: e.FullPath})
		}
	}

	checkMap, err := dirmap.New(entries...)
	if err != nil {
		return err
	}
	checked, err := d.cache.CheckMany(checkMap)
	if err != nil {
		return err
	}

	resolvedAdd := make([]addEntry, 0, len(d.add))
	for _, a := range d.add {
		if d.info.CheckStatus() {
			return errAborted
		}
		actual, _ := checked.Lookup(a.FullPath)
		if actual.IsNull() {
			resolvedAdd = append(resolvedAdd, a)
			continue
		}
		if oldHash, isUpgrade := d.upgrade[a.FullPath]; isUpgrade && actual.Equal(oldHash) {
			resolvedAdd = append(resolvedAdd, a)
			continue
		}
		if actual.Equal(a.Hash) {
			continue
		}

		choice := conflictBackup
		if d.askEnabled {
			c, err := d.owner.AskWait(
				fmt.Sprintf("%s has been modified since it was installed", a.FullPath),
				[]string{"Overwrite with backup", "Overwrite without backup", "Keep file"},
				conflictBackup,
			)
			if err != nil {
				return err
			}
			choice = c
		}
		switch choice {
		case conflictBackup:
			if err := d.owner.MoveFile(a.FullPath, a.FullPath+".___backup___"); err != nil {
				return err
			}
			resolvedAdd = append(resolvedAdd, a)
		case conflictOverwrite:
			resolvedAdd = append(resolvedAdd, a)
		case conflictKeep:
			// Drop: the user keeps their modified file.
		}
	}
	d.add = resolvedAdd

	resolvedDel := make([]delEntry, 0, len(d.del))
	for _, e := range d.del {
		if d.info.CheckStatus() {
			return errAborted
		}
		actual, _ := checked.Lookup(e.FullPath)
		if actual.IsNull() {
			continue
		}
		if actual.Equal(e.Hash) {
			resolvedDel = append(resolvedDel, e)
			continue
		}

		choice := conflictKeepFile
		if d.askEnabled {
			c, err := d.owner.AskWait(
				fmt.Sprintf("%s has been modified since it was installed", e.FullPath),
				[]string{"Delete", "Keep"},
				conflictKeepFile,
			)
			if err != nil {
				return err
			}
			choice = c
		}
		if choice == conflictDelete {
			resolvedDel = append(resolvedDel, e)
		}
	}
	d.del = resolvedDel

	return nil
}

// findMoves implements phase 7.
func (d *DirInstaller) findMoves(context.Context) error {
	delIndexByHash := make(map[hash.Hash]int, len(d.del))
	for i, e := range d.del {
		if _, ok := delIndexByHash[e.Hash]; !ok {
			delIndexByHash[e.Hash] = i
		}
	}

	usedDel := make(map[int]bool, len(d.del))
	remainingAdd := make([]addEntry, 0, len(d.add))
	for _, a := range d.add {
		if idx, ok := delIndexByHash[a.Hash]; ok && !usedDel[idx] {
			usedDel[idx] = true
			d.moves = append(d.moves, move{From: d.del[idx].FullPath, To: a.FullPath, Hash: a.Hash})
			continue
		}
		remainingAdd = append(remainingAdd, a)
	}
	d.add = remainingAdd

	remainingDel := make([]delEntry, 0, len(d.del))
	for i, e := range d.del {
		if !usedDel[i] {
			remainingDel = append(remainingDel, e)
		}
	}
	d.del = remainingDel

	return nil
}

// transactionalFetch implements phase 8: it resolves every remaining add
// entry against the rule set (writing to a temporary name next to each
// final path) and runs one Target per distinct resolved Action, in
// parallel via AndJob. Multiple add entries that resolve to the same
// Action (e.g. several files from one archive rule) share a single fetch.
func (d *DirInstaller) transactionalFetch(ctx context.Context) error {
	if len(d.add) == 0 {
		return nil
	}

	deps := make([]installfinder.Dependency, len(d.add))
	tempPaths := make([]string, len(d.add))
	for i, a := range d.add {
		tempPaths[i] = a.FullPath + ".___tmp"
		deps[i] = installfinder.Dependency{Destination: tempPaths[i], Hash: a.Hash}
	}

	actionMap, complete, err := installfinder.Resolve(d.cache, d.arcSet, layout.SameFile, deps, nil)
	if err != nil {
		return err
	}
	if !complete {
		return ErrUnresolvedDeps
	}
	d.actionMap = actionMap
	d.buildRuleByURL(actionMap)

	type group struct {
		action  *installfinder.Action
		outputs map[string]hash.Hash
	}
	groups := make(map[*installfinder.Action]*group)
	var order []*group

	for i, a := range d.add {
		action := actionMap[a.Hash]
		if action == nil || action.Kind == installfinder.KindNone {
			return errors.Wrapf(ErrUnresolvedDeps, "hash %s", a.Hash)
		}

		g, ok := groups[action]
		if !ok {
			g = &group{action: action, outputs: make(map[string]hash.Hash)}
			groups[action] = g
			order = append(order, g)
		}
		g.outputs[tempPaths[i]] = a.Hash
		d.moves = append(d.moves, move{From: tempPaths[i], To: a.FullPath, Hash: a.Hash})
	}

	jobs := make([]job.Job, 0, len(order))
	for _, g := range order {
		jobs = append(jobs, target.New(g.action, g.outputs, d.indexFor(g.action), d, d.downloader, d.archiver))
	}

	and := job.NewAndJob(jobs)
	d.AddChild(and)
	job.Run(ctx, and, false)
	// Anything but a clean success (a child failure, a cancelled context,
	// or an abort, which leaves the AndJob in the aborted state with a nil
	// error) triggers the compensating delete: no temp file written by
	// this phase may survive an interrupted fetch.
	if err := and.Info().Err(); err != nil || and.Info().State() != job.StateFinishedSuccess {
		for _, g := range order {
			for tempPath := range g.outputs {
				d.owner.DeleteFile(tempPath)
			}
		}
		if err == nil {
			err = errAborted
		}
		return errors.Wrapf(ErrFetchFailed, "%s", err)
	}

	return nil
}

// applyMovesAndDeletes implements phase 9.
func (d *DirInstaller) applyMovesAndDeletes(context.Context) error {
	for _, m := range d.moves {
		if d.info.CheckStatus() {
			return errAborted
		}
		if err := d.owner.MoveFile(m.From, m.To); err != nil {
			return errors.Wrapf(err, "unable to move %s to %s", m.From, m.To)
		}
	}

	for _, e := range d.del {
		if d.info.CheckStatus() {
			return errAborted
		}
		if err := d.owner.DeleteFile(e.FullPath); err != nil {
			return errors.Wrapf(err, "unable to delete %s", e.FullPath)
		}
		if err := d.cache.RemoveFile(e.FullPath); err != nil {
			return errors.Wrapf(err, "unable to update cache for %s", e.FullPath)
		}
	}

	if len(d.moves) > 0 {
		entries := make([]dirmap.Entry, 0, len(d.moves))
		for _, m := range d.moves {
			entries = append(entries, dirmap.Entry{Path: m.To, Hash: m.Hash})
		}
		batch, err := dirmap.New(entries...)
		if err != nil {
			return err
		}
		if err := d.cache.AddMany(batch, false); err != nil {
			return err
		}
	}

	d.moves = nil
	d.del = nil
	return nil
}

// --- target.Owner, implemented so DirInstaller can run per-Action Targets
// directly, including resolving an action's own rule dependencies
// recursively (e.g. fetching the archive backing an UnpackHash). ---

var _ target.Owner = (*DirInstaller)(nil)

// FetchFile implements target.Owner. It memoizes by hash within one run, so
// two destinations depending on the same content (e.g. two files from the
// same archive) trigger only one underlying fetch.
func (d *DirInstaller) FetchFile(ctx context.Context, h hash.Hash) (string, error) {
	d.fetchMu.Lock()
	if path, ok := d.fetchedPaths[h]; ok {
		d.fetchMu.Unlock()
		return path, nil
	}
	d.fetchMu.Unlock()

	action, ok := d.actionMap[h]
	if !ok {
		return "", errors.Errorf("no resolved action for hash %s", h)
	}
	if action.Kind == installfinder.KindCopy {
		d.rememberFetch(h, action.From)
		return action.From, nil
	}

	cachedPath, err := layout.CachedFilePath(true, h)
	if err != nil {
		return "", err
	}

	t := target.New(action, map[string]hash.Hash{cachedPath: h}, d.indexFor(action), d, d.downloader, d.archiver)
	d.AddChild(t)
	job.Run(ctx, t, false)
	if err := t.Info().Err(); err != nil {
		return "", err
	}
	if t.Info().State() != job.StateFinishedSuccess {
		return "", errAborted
	}

	d.rememberFetch(h, cachedPath)
	return cachedPath, nil
}

func (d *DirInstaller) rememberFetch(h hash.Hash, path string) {
	d.fetchMu.Lock()
	d.fetchedPaths[h] = path
	d.fetchMu.Unlock()
}

// ReportBrokenURL implements target.Owner, demoting the offending rule (so
// future resolutions within this rule set prefer alternates) and notifying
// the façade owner for logging/UI purposes.
func (d *DirInstaller) ReportBrokenURL(url string) {
	if rule, ok := d.ruleByURL[url]; ok {
		rule.MarkBroken()
	}
	d.owner.BrokenURL(url)
}

// AddToCache implements target.Owner.
func (d *DirInstaller) AddToCache(outputs map[string]hash.Hash) error {
	for path, h := range outputs {
		if _, err := d.cache.AddFile(path, h, false); err != nil {
			return err
		}
	}
	return nil
}

// --- helpers ---

// registerArchive records an archive's interior structure with both the
// per-install ArcRuleSet overlay (so future resolutions can apply a
// synthetic unpack rule for its interior hashes) and this installer's local
// archiveDirs cache (so Target construction can find its entry index).
func (d *DirInstaller) registerArchive(rule *rules.Rule, dm dirmap.DirMap) {
	outputs := make([]hash.Hash, 0, dm.Len())
	for _, e := range dm.Entries() {
		outputs = append(outputs, e.Hash)
	}
	d.arcSet.AddArchive(rule.Archive.ArcHash, dm.Hash(), rule.Archive.DirPointer, outputs, rule.RuleString)
	d.archiveDirs[rule.Archive.ArcHash] = dm
}

// indexFor returns the archive interior name->hash index for action, or nil
// if action is not an archive rule.
func (d *DirInstaller) indexFor(action *installfinder.Action) map[string]hash.Hash {
	if action.Kind != installfinder.KindApplyRule || action.Rule.Type != rules.TypeArchive {
		return nil
	}
	dm, ok := d.archiveDirs[action.Rule.Archive.ArcHash]
	if !ok {
		return nil
	}
	index := make(map[string]hash.Hash, dm.Len())
	for _, e := range dm.Entries() {
		index[e.Path] = e.Hash
	}
	return index
}

// buildRuleByURL indexes every URL rule reachable from actionMap so
// ReportBrokenURL can mark the offending rule broken by URL alone.
func (d *DirInstaller) buildRuleByURL(actionMap installfinder.ActionMap) {
	d.ruleByURL = make(map[string]*rules.Rule, len(actionMap))
	for _, action := range actionMap {
		if action.Kind == installfinder.KindApplyRule && action.Rule.Type == rules.TypeURL {
			d.ruleByURL[action.Rule.URL.URL] = action.Rule
		}
	}
}

// mergeDirMap returns base with every entry of addition inserted under
// subpath (joined with "/"; an empty subpath leaves names unprefixed).
func mergeDirMap(base dirmap.DirMap, addition dirmap.DirMap, subpath string) dirmap.DirMap {
	result := base
	for _, e := range addition.Entries() {
		result = result.With(joinRelative(subpath, e.Path), e.Hash)
	}
	return result
}

func joinRelative(subpath, name string) string {
	if subpath == "" {
		return name
	}
	return subpath + "/" + name
}

var _ job.Job = (*DirInstaller)(nil)
