package spreadlib

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spread-install/spread/pkg/cacheindex"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/logging"
	"github.com/spread-install/spread/pkg/rules"
)

func newTestCache(t *testing.T) *cacheindex.Index {
	t.Helper()
	idx := cacheindex.New(logging.NewRoot(logging.LevelError))
	if err := idx.Load(filepath.Join(t.TempDir(), "index")); err != nil {
		t.Fatal(err)
	}
	return idx
}

func TestFetchToPathReturnsCachedFileWithoutConsultingRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "already-here")
	if err := os.WriteFile(path, []byte("cached"), 0o644); err != nil {
		t.Fatal(err)
	}
	h := hash.Sum([]byte("cached"))

	cache := newTestCache(t)
	if _, err := cache.AddFile(path, h, false); err != nil {
		t.Fatal(err)
	}

	s := &Spread{cache: cache, finder: rules.NewStaticRuleFinder(nil)}
	got, err := s.fetchToPath(context.Background(), h)
	if err != nil {
		t.Fatal(err)
	}
	if got != path {
		t.Fatalf("expected %s, got %s", path, got)
	}
}

func TestFetchToPathFailsWithNoKnownRule(t *testing.T) {
	s := &Spread{cache: newTestCache(t), finder: rules.NewStaticRuleFinder(nil)}
	_, err := s.fetchToPath(context.Background(), hash.Sum([]byte("nowhere")))
	if err == nil {
		t.Fatal("expected an error when no rule is known")
	}
}

func TestFetchToPathRejectsArchiveRuleDirectly(t *testing.T) {
	target := hash.Sum([]byte("target"))
	rule := &rules.Rule{
		RuleString: "test",
		Type:       rules.TypeArchive,
		Outputs:    []hash.Hash{target},
	}
	s := &Spread{cache: newTestCache(t), finder: rules.NewStaticRuleFinder([]*rules.Rule{rule})}
	_, err := s.fetchToPath(context.Background(), target)
	if err == nil {
		t.Fatal("expected an error: archive rules don't name a way to obtain a fresh top-level file")
	}
}
