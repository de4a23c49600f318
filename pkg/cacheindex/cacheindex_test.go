package cacheindex

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spread-install/spread/pkg/dirmap"
	"github.com/spread-install/spread/pkg/hash"
	"github.com/spread-install/spread/pkg/logging"
)

func newTestIndex(t *testing.T) (*Index, string) {
	t.Helper()
	dir := t.TempDir()
	idx := New(logging.NewRoot(logging.LevelDisabled))
	if err := idx.Load(filepath.Join(dir, "index")); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	return idx, dir
}

func TestAddFileComputesHash(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}

	h, err := idx.AddFile(path, hash.Null, false)
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if !h.Equal(hash.Sum([]byte("hello"))) {
		t.Fatal("unexpected hash")
	}
}

func TestAddFileMissingWithoutAllow(t *testing.T) {
	idx, dir := newTestIndex(t)
	_, err := idx.AddFile(filepath.Join(dir, "missing"), hash.Null, false)
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestAddFileMissingWithAllow(t *testing.T) {
	idx, dir := newTestIndex(t)
	h, err := idx.AddFile(filepath.Join(dir, "missing"), hash.Null, true)
	if err != nil {
		t.Fatalf("AddFile failed: %v", err)
	}
	if !h.IsNull() {
		t.Fatal("expected null hash for missing file with allowMissing")
	}
}

func TestAddFileRejectsSizeMismatch(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	wrongSize := hash.Sum([]byte("hello world"))
	if _, err := idx.AddFile(path, wrongSize, false); err == nil {
		t.Fatal("expected error for size mismatch")
	}
}

func TestAddFilePersistsAcrossLoad(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(path, []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := idx.AddFile(path, hash.Null, false); err != nil {
		t.Fatal(err)
	}

	idx2 := New(logging.NewRoot(logging.LevelDisabled))
	if err := idx2.Load(filepath.Join(dir, "index")); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	entries, err := idx2.GetEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries.Len() != 1 {
		t.Fatalf("expected 1 entry after reload, got %d", entries.Len())
	}
}

func TestGetStatusMatch(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	h, _ := idx.AddFile(path, hash.Null, false)

	status, err := idx.GetStatus(path, h)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusMatch {
		t.Fatalf("expected StatusMatch, got %v", status)
	}
}

func TestGetStatusNoneForMissingFile(t *testing.T) {
	idx, dir := newTestIndex(t)
	status, err := idx.GetStatus(filepath.Join(dir, "missing"), hash.Sum([]byte("x")))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusNone {
		t.Fatalf("expected StatusNone, got %v", status)
	}
}

func TestGetStatusElseWhere(t *testing.T) {
	idx, dir := newTestIndex(t)
	existing := filepath.Join(dir, "existing.txt")
	os.WriteFile(existing, []byte("shared"), 0o644)
	h, _ := idx.AddFile(existing, hash.Null, false)

	status, err := idx.GetStatus(filepath.Join(dir, "does-not-exist.txt"), h)
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusElseWhere {
		t.Fatalf("expected StatusElseWhere, got %v", status)
	}
}

func TestGetStatusDiff(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	idx.AddFile(path, hash.Null, false)

	status, err := idx.GetStatus(path, hash.Sum([]byte("something else entirely")))
	if err != nil {
		t.Fatal(err)
	}
	if status != StatusDiff {
		t.Fatalf("expected StatusDiff, got %v", status)
	}
}

func TestFindHashReverifiesAndDrops(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	h, _ := idx.AddFile(path, hash.Null, false)

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}

	_, ok, err := idx.FindHash(h)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected FindHash to fail to find a deleted file")
	}

	entries, err := idx.GetEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries.Len() != 0 {
		t.Fatal("expected stale entry to be dropped by FindHash")
	}
}

func TestAddManyAndCheckMany(t *testing.T) {
	idx, dir := newTestIndex(t)
	pathA := filepath.Join(dir, "a.txt")
	pathB := filepath.Join(dir, "b.txt")
	os.WriteFile(pathA, []byte("aaa"), 0o644)
	os.WriteFile(pathB, []byte("bbb"), 0o644)

	d, err := dirmap.New(
		dirmap.Entry{Path: pathA, Hash: hash.Null},
		dirmap.Entry{Path: pathB, Hash: hash.Null},
	)
	if err != nil {
		t.Fatal(err)
	}

	if err := idx.AddMany(d, false); err != nil {
		t.Fatalf("AddMany failed: %v", err)
	}

	entries, err := idx.GetEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", entries.Len())
	}

	checkQuery, err := dirmap.New(
		dirmap.Entry{Path: pathA, Hash: hash.Null},
		dirmap.Entry{Path: pathB, Hash: hash.Null},
	)
	if err != nil {
		t.Fatal(err)
	}
	checked, err := idx.CheckMany(checkQuery)
	if err != nil {
		t.Fatalf("CheckMany failed: %v", err)
	}
	hA, _ := checked.Lookup(pathA)
	if !hA.Equal(hash.Sum([]byte("aaa"))) {
		t.Fatal("unexpected hash for pathA from CheckMany")
	}
}

func TestRemoveFile(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	idx.AddFile(path, hash.Null, false)

	if err := idx.RemoveFile(path); err != nil {
		t.Fatal(err)
	}
	entries, err := idx.GetEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries.Len() != 0 {
		t.Fatal("expected entry to be removed")
	}
}

func TestVerifyDropsGoneFiles(t *testing.T) {
	idx, dir := newTestIndex(t)
	path := filepath.Join(dir, "a.txt")
	os.WriteFile(path, []byte("hello"), 0o644)
	idx.AddFile(path, hash.Null, false)
	os.Remove(path)

	if err := idx.Verify(); err != nil {
		t.Fatal(err)
	}
	entries, err := idx.GetEntries()
	if err != nil {
		t.Fatal(err)
	}
	if entries.Len() != 0 {
		t.Fatal("expected Verify to drop entry for removed file")
	}
}
