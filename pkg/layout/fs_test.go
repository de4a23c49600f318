package layout

import (
	"os"
	"path/filepath"
	"testing"
)

func TestOSFSRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "f")

	var fs FS = osFS{}

	if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}

	w, err := fs.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("content")); err != nil {
		t.Fatal(err)
	}
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}

	if _, err := fs.Stat(path); err != nil {
		t.Fatal(err)
	}

	renamed := filepath.Join(dir, "renamed")
	if err := fs.Rename(path, renamed); err != nil {
		t.Fatal(err)
	}

	r, err := fs.Open(renamed)
	if err != nil {
		t.Fatal(err)
	}
	r.Close()

	if err := fs.Remove(renamed); err != nil {
		t.Fatal(err)
	}
	if _, err := fs.Stat(renamed); !os.IsNotExist(err) {
		t.Fatal("expected the removed file to be gone")
	}
}
