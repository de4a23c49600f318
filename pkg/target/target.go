// Package target implements the per-file execution job: a Target wraps one
// resolved installfinder.Action and the set of output paths it must satisfy,
// fetches the action's own rule dependencies through its Owner, runs the
// matching hashtask, and commits the verified results to the cache.
package target

import (
	"context"
	"fmt"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/hashtask"
	"github.com/spread-install/spread/pkg/installfinder"
	"github.com/spread-install/spread/pkg/job"
	"github.com/spread-install/spread/pkg/rules"
)

// Owner is what a Target needs from whoever is running it: the ability to
// resolve a dependency hash to a local file (triggering a nested fetch if
// necessary), a sink for broken-URL reports, and the cache commit hook run
// after a successful fetch.
type Owner interface {
	// FetchFile returns a local path whose content hashes to h, fetching
	// it first if it is not already available. The fetch (if any) runs
	// synchronously; FetchFile does not return until the file is on disk.
	FetchFile(ctx context.Context, h hash.Hash) (string, error)

	// ReportBrokenURL reports that url failed during a download, so the
	// owning rule set can demote it before any retry.
	ReportBrokenURL(url string)

	// AddToCache registers freshly written (path -> hash) pairs with the
	// cache index.
	AddToCache(outputs map[string]hash.Hash) error
}

// Target executes one Action: it materializes the action's hash at every
// path in outputs, pulling the action's rule dependencies through owner
// first. It is a job.Job; run it with job.Run.
type Target struct {
	info *job.Info

	action  *installfinder.Action
	outputs map[string]hash.Hash
	// index is the archive interior name -> hash table, set only when
	// action applies an archive rule.
	index map[string]hash.Hash

	owner      Owner
	downloader hashtask.Downloader
	archiver   hashtask.Archive
}

// New constructs a Target for action. outputs maps every path the target
// must write to the hash expected there; index is the archive's interior
// name -> hash table when action applies an archive rule (nil otherwise).
func New(
	action *installfinder.Action,
	outputs map[string]hash.Hash,
	index map[string]hash.Hash,
	owner Owner,
	downloader hashtask.Downloader,
	archiver hashtask.Archive,
) *Target {
	return &Target{
		info:       job.NewInfo(),
		action:     action,
		outputs:    outputs,
		index:      index,
		owner:      owner,
		downloader: downloader,
		archiver:   archiver,
	}
}

// Info implements job.Job.
func (t *Target) Info() *job.Info {
	return t.info
}

// DoJob implements job.Job.
func (t *Target) DoJob(ctx context.Context) error {
	if len(t.outputs) == 0 {
		return nil
	}

	switch t.action.Kind {
	case installfinder.KindCopy:
		return t.runCopy(ctx)
	case installfinder.KindApplyRule:
		return t.runRule(ctx)
	default:
		return errors.Errorf("no known way to obtain %s", describeOutputs(t.outputs))
	}
}

// runCopy duplicates an already-cached file to every requested output path,
// rehashing as it streams.
func (t *Target) runCopy(ctx context.Context) error {
	h, err := singleOutputHash(t.outputs)
	if err != nil {
		return err
	}

	t.info.SetStatus(fmt.Sprintf("Copying %s", t.action.From))
	task := &hashtask.CopyHash{
		Hash:      h,
		InputPath: t.action.From,
		Outputs:   t.outputs,
	}
	if err := task.Run(ctx, t.info); err != nil {
		return errors.Wrapf(err, "unable to copy %s", t.action.From)
	}
	return t.owner.AddToCache(t.outputs)
}

// runRule fetches the rule's dependencies through the owner, then runs the
// hashtask matching the rule's type.
func (t *Target) runRule(ctx context.Context) error {
	rule := t.action.Rule

	inputs := make(map[hash.Hash]string, len(rule.Deps))
	for _, dep := range rule.Deps {
		if t.info.CheckStatus() {
			return errors.New("target aborted")
		}
		path, err := t.owner.FetchFile(ctx, dep)
		if err != nil {
			return errors.Wrapf(err, "unable to fetch dependency %s", dep)
		}
		inputs[dep] = path
	}

	switch rule.Type {
	case rules.TypeURL:
		h, err := singleOutputHash(t.outputs)
		if err != nil {
			return err
		}
		t.info.SetStatus(fmt.Sprintf("Downloading %s", rule.URL.URL))
		task := &hashtask.DownloadHash{
			Hash:       h,
			URL:        rule.URL.URL,
			Outputs:    t.outputs,
			Downloader: t.downloader,
		}
		if err := task.Run(ctx, t.info); err != nil {
			t.owner.ReportBrokenURL(rule.URL.URL)
			return errors.Wrapf(err, "unable to download %s", rule.URL.URL)
		}

	case rules.TypeArchive:
		archivePath, ok := inputs[rule.Archive.ArcHash]
		if !ok {
			return errors.Errorf("archive %s was not fetched as a dependency", rule.Archive.ArcHash)
		}
		if t.index == nil {
			return errors.Errorf("no interior index for archive %s", rule.Archive.ArcHash)
		}
		t.info.SetStatus(fmt.Sprintf("Unpacking %s", rule.RuleString))
		task := &hashtask.UnpackHash{
			Hash:        rule.Archive.ArcHash,
			ArchivePath: archivePath,
			Index:       t.index,
			Outputs:     t.outputs,
			Archive:     t.archiver,
		}
		if err := task.Run(ctx, t.info); err != nil {
			return errors.Wrapf(err, "unable to unpack %s", rule.RuleString)
		}

	default:
		return errors.Errorf("unknown rule type for %s", rule.RuleString)
	}

	return t.owner.AddToCache(t.outputs)
}

// singleOutputHash returns the one distinct hash present in outputs. Copy
// and download actions produce exactly one piece of content; requesting two
// different hashes from one of them indicates a grouping error upstream.
func singleOutputHash(outputs map[string]hash.Hash) (hash.Hash, error) {
	var result hash.Hash
	for _, h := range outputs {
		if result.IsNull() {
			result = h
		} else if !result.Equal(h) {
			return hash.Null, errors.Errorf("conflicting output hashes %s and %s for a single-content action", result, h)
		}
	}
	return result, nil
}

// describeOutputs renders an output set for error messages.
func describeOutputs(outputs map[string]hash.Hash) string {
	for path, h := range outputs {
		if len(outputs) == 1 {
			return fmt.Sprintf("%s (for %s)", h, path)
		}
		return fmt.Sprintf("%s (and %d more)", h, len(outputs)-1)
	}
	return "empty output set"
}

var _ job.Job = (*Target)(nil)
