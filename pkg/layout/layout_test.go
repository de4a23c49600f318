package layout

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spread-install/spread/pkg/hash"
)

func TestPathJoinsUnderDataDirectory(t *testing.T) {
	p, err := Path(false, CachesDirectoryName, "index")
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(DataDirectoryPath, CachesDirectoryName, "index")
	if p != want {
		t.Fatalf("expected %s, got %s", want, p)
	}
}

func TestPathCreateMakesParentDirectory(t *testing.T) {
	dir := t.TempDir()
	saved := DataDirectoryPath
	DataDirectoryPath = dir
	defer func() { DataDirectoryPath = saved }()

	p, err := Path(true, CachesDirectoryName, "file.tmp")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Dir(p)); err != nil {
		t.Fatalf("expected parent directory to exist: %v", err)
	}
}

func TestSameFileDetectsIdenticalPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "f")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if !SameFile(path, path) {
		t.Fatal("expected a file to be SameFile as itself")
	}
}

func TestSameFileRejectsDistinctFiles(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a")
	b := filepath.Join(dir, "b")
	os.WriteFile(a, []byte("x"), 0o644)
	os.WriteFile(b, []byte("x"), 0o644)
	if SameFile(a, b) {
		t.Fatal("expected distinct files to not be SameFile")
	}
}

func TestSameFileFalseWhenMissing(t *testing.T) {
	dir := t.TempDir()
	if SameFile(filepath.Join(dir, "missing1"), filepath.Join(dir, "missing2")) {
		t.Fatal("expected SameFile to be false when files don't exist")
	}
}

func TestCachedFilePathShardsByPrefix(t *testing.T) {
	h := hash.Sum([]byte("cached content"))
	p, err := CachedFilePath(false, h)
	if err != nil {
		t.Fatal(err)
	}
	want := filepath.Join(DataDirectoryPath, CachesDirectoryName, h.ShardPrefix(), h.FileName())
	if p != want {
		t.Fatalf("expected %s, got %s", want, p)
	}
}

func TestCachedFilePathRejectsNullHash(t *testing.T) {
	if _, err := CachedFilePath(false, hash.Null); err == nil {
		t.Fatal("expected error for null hash")
	}
}
