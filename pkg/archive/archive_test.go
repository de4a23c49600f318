package archive

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/spread-install/spread/pkg/hashtask"
)

func writeTarGz(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.tar.gz")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)
	for name, content := range entries {
		if err := tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(content)),
			Typeflag: tar.TypeReg,
		}); err != nil {
			t.Fatal(err)
		}
		if _, err := tw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeZip(t *testing.T, entries map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.zip")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	zw := zip.NewWriter(f)
	for name, content := range entries {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func collectEntries(t *testing.T, a hashtask.Archive, path string) map[string]string {
	t.Helper()
	out := make(map[string]string)
	err := a.Unpack(context.Background(), path, func(entry hashtask.ArchiveEntry) error {
		data, err := io.ReadAll(entry.Reader)
		if err != nil {
			return err
		}
		out[entry.Name] = string(data)
		return nil
	})
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	return out
}

func TestTarGzUnpackEmitsRegularFiles(t *testing.T) {
	want := map[string]string{
		"bin/tool":   "tool binary",
		"doc/readme": "read me",
	}
	path := writeTarGz(t, want)

	got := collectEntries(t, TarGz{}, path)
	if len(got) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(got))
	}
	for name, content := range want {
		if got[name] != content {
			t.Fatalf("unexpected content for %s: %q", name, got[name])
		}
	}
}

func TestZipUnpackSkipsDirectories(t *testing.T) {
	path := writeZip(t, map[string]string{
		"sub/":     "",
		"sub/file": "nested",
		"top":      "toplevel",
	})

	got := collectEntries(t, Zip{}, path)
	if _, ok := got["sub/"]; ok {
		t.Fatal("directory entries should not be emitted")
	}
	if got["sub/file"] != "nested" || got["top"] != "toplevel" {
		t.Fatalf("unexpected entries: %v", got)
	}
}

func TestForPathDispatchesBySuffix(t *testing.T) {
	if _, ok := ForPath("pkg-1.0.tar.gz"); !ok {
		t.Fatal("expected tar.gz to be recognized")
	}
	if _, ok := ForPath("pkg-1.0.TGZ"); !ok {
		t.Fatal("suffix match should be case-insensitive")
	}
	if _, ok := ForPath("pkg-1.0.zip"); !ok {
		t.Fatal("expected zip to be recognized")
	}
	if _, ok := ForPath("pkg-1.0.rar"); ok {
		t.Fatal("unknown formats must not dispatch")
	}
}

func TestUnpackMissingArchiveFails(t *testing.T) {
	err := TarGz{}.Unpack(context.Background(), filepath.Join(t.TempDir(), "absent.tar.gz"), func(hashtask.ArchiveEntry) error {
		t.Fatal("no entries expected")
		return nil
	})
	if err == nil {
		t.Fatal("expected an error for a missing archive")
	}
}
