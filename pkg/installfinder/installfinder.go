// Package installfinder implements the dependency resolver that turns a
// desired set of (destination path, hash) pairs into an ActionMap: a plan
// naming, for every hash involved, how to obtain it (copy from an existing
// cached file, or apply a rule) and every destination it must end up at.
package installfinder

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/cacheindex"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/rules"
)

// ErrCyclicRules is returned when resolving a dependency requires
// re-expanding a hash that is already being expanded earlier in the same
// call stack. The resolver assumes an acyclic rule graph; a cycle is a
// configuration error in the rule data, not a recoverable runtime
// condition.
var ErrCyclicRules = errors.New("cyclic rule graph")

// Kind identifies what an Action instructs the executor to do.
type Kind int

const (
	// KindCopy instructs the executor to copy an already-cached file to
	// the action's destinations.
	KindCopy Kind = iota
	// KindApplyRule instructs the executor to apply a rule (download or
	// unpack) to produce the action's hash.
	KindApplyRule
	// KindNone means no known way to obtain this hash was found; the plan
	// is incomplete.
	KindNone
)

// Action describes one step of the plan: how to obtain a single hash, and
// every absolute path that hash must be written to. The same hash always
// resolves to exactly one Action within a plan; repeated dependencies
// accumulate destinations rather than producing duplicate actions.
type Action struct {
	Kind Kind
	// From is the existing cached path to copy from, set only for
	// KindCopy.
	From string
	// Rule is the rule to apply, set only for KindApplyRule.
	Rule *rules.Rule
	// Destinations is the set of absolute output paths this hash must be
	// written to. May be empty if the hash only needs to exist in the
	// cache (a dependency, not a named destination).
	Destinations []string
}

// addDestination appends dest to the action's destination set if dest is
// non-empty and not already present.
func (a *Action) addDestination(dest string) {
	if dest == "" {
		return
	}
	for _, d := range a.Destinations {
		if d == dest {
			return
		}
	}
	a.Destinations = append(a.Destinations, dest)
}

// ActionMap is the resolver's output: one Action per hash that needed
// resolving.
type ActionMap map[hash.Hash]*Action

// Dependency is one requested (destination, hash) pair. Destination may be
// empty, meaning "ensure this hash exists somewhere in the cache" with no
// specific output path required.
type Dependency struct {
	Destination string
	Hash        hash.Hash
}

// BlindUnpack is a requested archive unpack whose interior contents are not
// yet known by hash; it only names where the archive should be unpacked to
// and which archive hash to unpack.
type BlindUnpack struct {
	DirPath string
	ArcHash hash.Hash
}

// SameFile reports whether two paths name the same underlying file. It is
// injected so the resolver can avoid copy actions that would copy a file
// onto itself without requiring a real filesystem in unit tests.
type SameFile func(a, b string) bool

// Resolve expands deps and blinds into an ActionMap. It returns the map, a
// boolean that is true iff every dependency was fully resolved (no
// KindNone actions were emitted), and an error only for structural failures
// (cache I/O errors, or a cyclic rule graph) as opposed to "nothing knows
// how to produce this hash", which is reported via KindNone actions instead.
func Resolve(
	index *cacheindex.Index,
	finder rules.Finder,
	sameFile SameFile,
	deps []Dependency,
	blinds []BlindUnpack,
) (ActionMap, bool, error) {
	actions := make(ActionMap)
	complete := true

	queue := make([]Dependency, 0, len(deps)+len(blinds))
	queue = append(queue, deps...)

	// Translate every blind unpack into a synthetic archive-rule Action
	// bound to a fresh random dummy output hash (never reused as a
	// dependency elsewhere), plus a dependency pair
	// that forces the archive itself to be fetched.
	for _, b := range blinds {
		dummy := dummyHashForBlind()
		rule := &rules.Rule{
			RuleString: "blind-unpack",
			Type:       rules.TypeArchive,
			Deps:       []hash.Hash{b.ArcHash},
			Outputs:    []hash.Hash{dummy},
			Archive:    rules.ArchivePayload{ArcHash: b.ArcHash},
		}
		action := &Action{Kind: KindApplyRule, Rule: rule}
		action.addDestination(b.DirPath)
		actions[dummy] = action

		queue = append(queue, Dependency{Destination: "", Hash: b.ArcHash})
	}

	visiting := make(map[hash.Hash]bool)

	var expand func(dep Dependency) error
	expand = func(dep Dependency) error {
		if existing, ok := actions[dep.Hash]; ok {
			existing.addDestination(dep.Destination)
			return nil
		}

		if visiting[dep.Hash] {
			return errors.Wrapf(ErrCyclicRules, "hash %s", dep.Hash)
		}
		visiting[dep.Hash] = true
		defer delete(visiting, dep.Hash)

		status, err := index.GetStatus(dep.Destination, dep.Hash)
		if err != nil {
			return err
		}

		switch status {
		case cacheindex.StatusMatch:
			// File at the destination is already correct; no action
			// needed.
			return nil
		case cacheindex.StatusElseWhere:
			existing, ok, err := index.FindHash(dep.Hash)
			if err != nil {
				return err
			}
			if ok {
				if dep.Destination == "" {
					// The content already exists somewhere in the
					// cache and no specific destination was
					// requested; nothing to do.
					return nil
				}
				if sameFile != nil && sameFile(existing, dep.Destination) {
					return nil
				}
				actions[dep.Hash] = &Action{
					Kind:         KindCopy,
					From:         existing,
					Destinations: nonEmptyDestinations(dep.Destination),
				}
				return nil
			}
		}

		rule := finder.FindRule(dep.Hash)
		if rule == nil {
			action, ok := actions[dep.Hash]
			if !ok {
				action = &Action{Kind: KindNone}
				actions[dep.Hash] = action
			}
			action.addDestination(dep.Destination)
			complete = false
			return nil
		}

		// Recurse into the rule's dependencies before recording its
		// action. This ordering is what lets the visiting check above
		// catch a cyclic rule graph: if expanding a dependency leads
		// back to this same hash, it will still be absent from actions
		// (not recorded yet) and still marked visiting, so the cycle is
		// caught instead of recursing forever.
		for _, depHash := range rule.Deps {
			if err := expand(Dependency{Destination: "", Hash: depHash}); err != nil {
				return err
			}
		}

		action := &Action{Kind: KindApplyRule, Rule: rule}
		action.addDestination(dep.Destination)
		for _, out := range rule.Outputs {
			if _, ok := actions[out]; !ok {
				actions[out] = action
			}
		}

		return nil
	}

	for _, dep := range queue {
		if err := expand(dep); err != nil {
			return nil, false, err
		}
	}

	return actions, complete, nil
}

// nonEmptyDestinations returns a single-element slice containing dest, or
// nil if dest is empty.
func nonEmptyDestinations(dest string) []string {
	if dest == "" {
		return nil
	}
	return []string{dest}
}

// dummyHashForBlind derives a hash that is guaranteed never to collide with
// a real content hash and never to be reused elsewhere as a dependency. Its
// bytes carry no recoverable meaning (nothing ever looks a blind unpack's
// dummy hash back up by value), so a fresh random UUID per call is simpler
// than deriving one deterministically from arcHash.
func dummyHashForBlind() hash.Hash {
	id := uuid.New()
	return hash.Sum(append([]byte("spread-blind-unpack-dummy:"), id[:]...))
}
