// Package rules implements Spread's rule finder: the static lookup that
// answers "how do I obtain the content named by this hash" — either by
// downloading a URL or by unpacking an archive — plus an overlay,
// ArcRuleSet, that accumulates archives indexed during the current install.
package rules

import (
	"fmt"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/spread-install/spread/pkg/hash"
)

// Type identifies the kind of a Rule.
type Type int

const (
	// TypeURL is a rule whose single output is obtained by downloading a
	// URL.
	TypeURL Type = iota
	// TypeArchive is a rule whose outputs are the interior files of an
	// archive, obtained by unpacking it.
	TypeArchive
)

// URLPayload carries the fields specific to a URL rule.
type URLPayload struct {
	// URL is the location to download from.
	URL string
	// Priority ranks this rule against others producing the same output;
	// higher priorities are preferred.
	Priority int
	// Weight is a secondary preference hint among equal-priority rules
	// (e.g. for load distribution across mirrors).
	Weight int
	// Size is the declared download size in bytes, if known, used only for
	// display (String).
	Size uint64
	// isBroken marks a URL rule as having failed recently, demoting its
	// effective priority so alternates are preferred on the next attempt.
	isBroken bool
}

// String renders a URL rule for CLI display and logging, including a
// human-readable size when known.
func (u URLPayload) String() string {
	if u.Size == 0 {
		return u.URL
	}
	return fmt.Sprintf("%s (%s)", u.URL, humanize.Bytes(u.Size))
}

// ArchivePayload carries the fields specific to an archive rule.
type ArchivePayload struct {
	// ArcHash is the hash of the archive file itself.
	ArcHash hash.Hash
	// DirHash is the hash of the directory object describing the
	// archive's interior contents, if known in advance.
	DirHash hash.Hash
	// DirPointer is an opaque pointer/path to a cached copy of the
	// directory object naming the archive's interior, if one has been
	// fetched or indexed.
	DirPointer string
}

// Rule is a tagged record describing one known way to obtain content: either
// a URL download or an archive unpack. Deps are hashes that must be
// available before the rule can be applied; Outputs are the hashes the rule
// is capable of producing.
type Rule struct {
	// RuleString is a human-readable identifier for diagnostics (e.g. the
	// channel/package name the rule came from).
	RuleString string
	Type       Type
	Deps       []hash.Hash
	Outputs    []hash.Hash

	URL     URLPayload
	Archive ArchivePayload
}

// EffectivePriority returns the rule's priority for URL rules, demoted when
// the rule is marked broken so that alternates sort ahead of it. Non-URL
// rules report priority 0.
func (r *Rule) EffectivePriority() int {
	if r.Type != TypeURL {
		return 0
	}
	if r.URL.isBroken {
		return r.URL.Priority - 1000
	}
	return r.URL.Priority
}

// MarkBroken flags a URL rule as broken, demoting its effective priority so
// that a future install prefers alternates over retrying it immediately.
func (r *Rule) MarkBroken() {
	r.URL.isBroken = true
}

// IsBroken reports whether a URL rule has been marked broken.
func (r *Rule) IsBroken() bool {
	return r.URL.isBroken
}

// ArcRuleData is the result of a successful findArchive lookup: the archive
// rule together with which of its two hashes (archive vs. directory) h
// matched.
type ArcRuleData struct {
	Rule *Rule
	// MatchedDirHash is true if h matched the archive's interior dirHash
	// rather than the archive's own content hash.
	MatchedDirHash bool
}

// Finder is the read-only interface for discovering rules capable of
// producing a given hash. It is safe for concurrent use.
type Finder interface {
	// FindRule returns a rule whose outputs include h, or nil if none is
	// known. When multiple rules produce h, the rule with the highest
	// EffectivePriority is returned.
	FindRule(h hash.Hash) *Rule

	// FindArchive matches h against either the archive hash or the
	// interior dirHash of an archive rule.
	FindArchive(h hash.Hash) (ArcRuleData, bool)

	// FindAllRules appends every rule whose outputs include h onto set
	// and returns the result.
	FindAllRules(h hash.Hash, set []*Rule) []*Rule

	// FindHints returns archive hashes the rule set believes may be
	// useful sources for the directory named by dirHash, even though they
	// were not directly requested.
	FindHints(dirHash hash.Hash) []hash.Hash
}

// StaticRuleFinder is a Finder backed by a fixed, in-memory table of rules
// built up front. The rule table is fixed at construction; AddHint, its only
// mutating method, adds hints afterwards without any locking. It is a first-class, exported helper: the rule data backing a
// real install (channel/package metadata) always has some concrete
// representation, and StaticRuleFinder is the simplest one, also convenient
// for tests.
type StaticRuleFinder struct {
	all      []*Rule
	byOutput map[hash.Hash][]*Rule
	hints    map[hash.Hash][]hash.Hash
}

// NewStaticRuleFinder builds a StaticRuleFinder from a flat list of rules.
func NewStaticRuleFinder(rulesList []*Rule) *StaticRuleFinder {
	f := &StaticRuleFinder{
		all:      rulesList,
		byOutput: make(map[hash.Hash][]*Rule),
		hints:    make(map[hash.Hash][]hash.Hash),
	}
	for _, r := range rulesList {
		for _, out := range r.Outputs {
			f.byOutput[out] = append(f.byOutput[out], r)
		}
	}
	return f
}

// AddHint records that archiveHash may hold useful content for dirHash.
func (f *StaticRuleFinder) AddHint(dirHash, archiveHash hash.Hash) {
	f.hints[dirHash] = append(f.hints[dirHash], archiveHash)
}

// FindRule implements Finder.
func (f *StaticRuleFinder) FindRule(h hash.Hash) *Rule {
	candidates := f.byOutput[h]
	return bestByPriority(candidates)
}

// FindArchive implements Finder. It scans the full rule list rather than the
// output index: an archive rule whose interior contents aren't known yet has
// no outputs to index, but must still be discoverable by its archive or
// directory hash.
func (f *StaticRuleFinder) FindArchive(h hash.Hash) (ArcRuleData, bool) {
	for _, r := range f.all {
		if r.Type != TypeArchive {
			continue
		}
		if r.Archive.ArcHash.Equal(h) {
			return ArcRuleData{Rule: r, MatchedDirHash: false}, true
		}
		if r.Archive.DirHash.IsSet() && r.Archive.DirHash.Equal(h) {
			return ArcRuleData{Rule: r, MatchedDirHash: true}, true
		}
	}
	return ArcRuleData{}, false
}

// FindAllRules implements Finder.
func (f *StaticRuleFinder) FindAllRules(h hash.Hash, set []*Rule) []*Rule {
	return append(set, f.byOutput[h]...)
}

// FindHints implements Finder.
func (f *StaticRuleFinder) FindHints(dirHash hash.Hash) []hash.Hash {
	return f.hints[dirHash]
}

// bestByPriority returns the rule with the highest EffectivePriority, or nil
// if candidates is empty. Ties are broken by Weight, then by first
// occurrence.
func bestByPriority(candidates []*Rule) *Rule {
	var best *Rule
	for _, r := range candidates {
		if best == nil {
			best = r
			continue
		}
		if r.EffectivePriority() > best.EffectivePriority() {
			best = r
		} else if r.EffectivePriority() == best.EffectivePriority() && r.URL.Weight > best.URL.Weight {
			best = r
		}
	}
	return best
}

// ArcRuleSet wraps a parent Finder and overlays archives that have been
// dynamically indexed during the current install: once an archive's
// interior (name, hash) pairs are known (via AddArchive), every one of
// those hashes becomes resolvable through a synthetic unpack rule whose
// single dependency is the archive's own hash.
//
// ArcRuleSet's overlay is scoped to one install and is never shared across
// installs; the parent Finder, by contrast, may be shared and is expected to
// guard its own mutable state (if any) with its own locking.
type ArcRuleSet struct {
	parent Finder

	mu       sync.Mutex
	byOutput map[hash.Hash]*Rule
	hints    map[hash.Hash][]hash.Hash
}

// NewArcRuleSet creates an ArcRuleSet overlaying parent.
func NewArcRuleSet(parent Finder) *ArcRuleSet {
	return &ArcRuleSet{
		parent:   parent,
		byOutput: make(map[hash.Hash]*Rule),
		hints:    make(map[hash.Hash][]hash.Hash),
	}
}

// AddArchive registers an archive's interior contents (as a directory
// object's entries, named only by hash here) so every interior hash becomes
// resolvable. dirPointer is an opaque reference to where the directory
// object naming the archive's contents can be found (e.g. a cached path),
// and may be empty if unknown.
func (a *ArcRuleSet) AddArchive(arcHash, dirHash hash.Hash, dirPointer string, outputs []hash.Hash, ruleString string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	rule := &Rule{
		RuleString: ruleString,
		Type:       TypeArchive,
		Deps:       []hash.Hash{arcHash},
		Outputs:    outputs,
		Archive: ArchivePayload{
			ArcHash:    arcHash,
			DirHash:    dirHash,
			DirPointer: dirPointer,
		},
	}
	for _, out := range outputs {
		a.byOutput[out] = rule
	}
	if dirHash.IsSet() {
		a.hints[dirHash] = append(a.hints[dirHash], arcHash)
	}
}

// FindRule implements Finder, preferring the overlay over the parent.
func (a *ArcRuleSet) FindRule(h hash.Hash) *Rule {
	a.mu.Lock()
	if r, ok := a.byOutput[h]; ok {
		a.mu.Unlock()
		return r
	}
	a.mu.Unlock()
	if a.parent == nil {
		return nil
	}
	return a.parent.FindRule(h)
}

// FindArchive implements Finder.
func (a *ArcRuleSet) FindArchive(h hash.Hash) (ArcRuleData, bool) {
	a.mu.Lock()
	for _, r := range a.byOutput {
		if r.Archive.ArcHash.Equal(h) {
			a.mu.Unlock()
			return ArcRuleData{Rule: r, MatchedDirHash: false}, true
		}
		if r.Archive.DirHash.IsSet() && r.Archive.DirHash.Equal(h) {
			a.mu.Unlock()
			return ArcRuleData{Rule: r, MatchedDirHash: true}, true
		}
	}
	a.mu.Unlock()
	if a.parent == nil {
		return ArcRuleData{}, false
	}
	return a.parent.FindArchive(h)
}

// FindAllRules implements Finder.
func (a *ArcRuleSet) FindAllRules(h hash.Hash, set []*Rule) []*Rule {
	a.mu.Lock()
	if r, ok := a.byOutput[h]; ok {
		set = append(set, r)
	}
	a.mu.Unlock()
	if a.parent != nil {
		set = a.parent.FindAllRules(h, set)
	}
	return set
}

// FindHints implements Finder.
func (a *ArcRuleSet) FindHints(dirHash hash.Hash) []hash.Hash {
	a.mu.Lock()
	hints := append([]hash.Hash(nil), a.hints[dirHash]...)
	a.mu.Unlock()
	if a.parent != nil {
		hints = append(hints, a.parent.FindHints(dirHash)...)
	}
	return hints
}

var _ Finder = (*StaticRuleFinder)(nil)
var _ Finder = (*ArcRuleSet)(nil)
