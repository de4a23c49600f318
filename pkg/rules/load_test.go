package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spread-install/spread/pkg/hash"
)

func writeRuleFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadFileParsesURLAndArchiveRules(t *testing.T) {
	output := hash.Sum([]byte("downloadable"))
	arcHash := hash.Sum([]byte("archive bytes"))
	dirHash := hash.Sum([]byte("directory object"))
	interior := hash.Sum([]byte("interior file"))

	path := writeRuleFile(t, `
rules:
  - name: channel/pkg-1.0.tar.gz
    url:
      output: "`+output.String()+`"
      location: https://example.com/pkg-1.0.tar.gz
      priority: 5
      size: 1024
  - name: channel/pkg-1.0
    archive:
      hash: "`+arcHash.String()+`"
      dir: "`+dirHash.String()+`"
      outputs:
        - "`+interior.String()+`"
`)

	rulesList, finder, hints, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if len(rulesList) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rulesList))
	}
	if len(hints) != 0 {
		t.Fatalf("expected no pattern hints, got %d", len(hints))
	}

	urlRule := finder.FindRule(output)
	if urlRule == nil || urlRule.Type != TypeURL {
		t.Fatal("expected the URL rule to be findable by its output hash")
	}
	if urlRule.URL.URL != "https://example.com/pkg-1.0.tar.gz" || urlRule.URL.Priority != 5 {
		t.Fatalf("URL payload not parsed correctly: %+v", urlRule.URL)
	}

	arcRule := finder.FindRule(interior)
	if arcRule == nil || arcRule.Type != TypeArchive {
		t.Fatal("expected the archive rule to be findable by an interior hash")
	}
	if len(arcRule.Deps) != 1 || !arcRule.Deps[0].Equal(arcHash) {
		t.Fatalf("archive rule should depend on its own archive hash, got %v", arcRule.Deps)
	}

	if _, ok := finder.FindArchive(arcHash); !ok {
		t.Fatal("archive should be findable by its archive hash")
	}
	if data, ok := finder.FindArchive(dirHash); !ok || !data.MatchedDirHash {
		t.Fatal("archive should be findable by its directory hash")
	}
}

func TestLoadFileArchiveWithoutOutputsIsStillFindable(t *testing.T) {
	arcHash := hash.Sum([]byte("blind archive"))
	path := writeRuleFile(t, `
rules:
  - name: channel/blind-1.0
    archive:
      hash: "`+arcHash.String()+`"
`)
	_, finder, _, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}
	if _, ok := finder.FindArchive(arcHash); !ok {
		t.Fatal("an archive rule with no declared outputs must still match its archive hash")
	}
}

func TestLoadFileRejectsAmbiguousRule(t *testing.T) {
	h := hash.Sum([]byte("x"))
	path := writeRuleFile(t, `
rules:
  - name: broken
    url:
      output: "`+h.String()+`"
      location: https://example.com/x
    archive:
      hash: "`+h.String()+`"
`)
	if _, _, _, err := LoadFile(path); err == nil {
		t.Fatal("a rule declaring both url and archive must be rejected")
	}
}

func TestLoadFileHints(t *testing.T) {
	dirHash := hash.Sum([]byte("dir"))
	arcHash := hash.Sum([]byte("arc"))
	patternArc := hash.Sum([]byte("vendor arc"))

	path := writeRuleFile(t, `
hints:
  - dir: "`+dirHash.String()+`"
    archive: "`+arcHash.String()+`"
  - dir: "`+dirHash.String()+`"
    archive: "`+patternArc.String()+`"
    pattern: "vendor/**"
`)
	_, finder, patternHints, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile failed: %v", err)
	}

	// The unconditional hint is registered immediately.
	direct := finder.FindHints(dirHash)
	if len(direct) != 1 || !direct[0].Equal(arcHash) {
		t.Fatalf("expected the unconditional hint to be registered, got %v", direct)
	}

	// The pattern hint only applies once a matching path is requested.
	if len(patternHints) != 1 {
		t.Fatalf("expected one pattern hint, got %d", len(patternHints))
	}
	ApplyPatternHints(finder, patternHints, []string{"docs/readme"})
	if len(finder.FindHints(dirHash)) != 1 {
		t.Fatal("a non-matching path must not trigger the pattern hint")
	}
	ApplyPatternHints(finder, patternHints, []string{"vendor/lib/thing"})
	if len(finder.FindHints(dirHash)) != 2 {
		t.Fatal("a matching path must trigger the pattern hint")
	}
}

func TestLoadFileRejectsMalformedPattern(t *testing.T) {
	dirHash := hash.Sum([]byte("dir"))
	arcHash := hash.Sum([]byte("arc"))
	path := writeRuleFile(t, `
hints:
  - dir: "`+dirHash.String()+`"
    archive: "`+arcHash.String()+`"
    pattern: "vendor/[unclosed"
`)
	if _, _, _, err := LoadFile(path); err == nil {
		t.Fatal("a malformed glob pattern must be rejected at load time")
	}
}
