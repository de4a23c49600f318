package spreadlib

import (
	"context"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/hashtask"
	"github.com/spread-install/spread/pkg/job"
	"github.com/spread-install/spread/pkg/layout"
	"github.com/spread-install/spread/pkg/rules"
)

// fetchToPath obtains the content named by h as a local file and returns
// its path, preferring an already-cached copy. This is a narrower sibling
// of DirInstaller.FetchFile: it serves the façade's own need to read a
// directory object's bytes or an archive's bytes directly (LoadDir,
// IndexArchive, UnpackBlindTarget), none of which name a real install
// destination, so they have no business going through the installer's
// per-action Target machinery. Only TypeURL rules are applied directly;
// TypeArchive rules name interior entries, not a way to obtain a fresh
// top-level file, so resolving one here would be meaningless.
func (s *Spread) fetchToPath(ctx context.Context, h hash.Hash) (string, error) {
	if path, ok, err := s.cache.FindHash(h); err != nil {
		return "", err
	} else if ok {
		return path, nil
	}

	rule := s.finder.FindRule(h)
	if rule == nil {
		return "", errors.Errorf("no rule known to obtain %s", h)
	}
	if rule.Type != rules.TypeURL {
		return "", errors.Errorf("no direct rule to obtain %s (only interior archive entries are known)", h)
	}

	dest, err := layout.CachedFilePath(true, h)
	if err != nil {
		return "", err
	}

	task := &hashtask.DownloadHash{
		Hash:       h,
		URL:        rule.URL.URL,
		Outputs:    map[string]hash.Hash{dest: h},
		Downloader: s.downloader,
	}
	if err := task.Run(ctx, job.NewInfo()); err != nil {
		rule.MarkBroken()
		s.owner().BrokenURL(rule.URL.URL)
		return "", errors.Wrapf(err, "unable to fetch %s", h)
	}

	if _, err := s.cache.AddFile(dest, h, false); err != nil {
		return "", err
	}
	return dest, nil
}

// owner returns a facadeOwner bound to s, used internally wherever fetch
// logic needs to report a broken URL through the same path AskWait and the
// rest of dirinstaller.Owner use.
func (s *Spread) owner() *facadeOwner {
	return &facadeOwner{spread: s}
}
