// Package dirmap implements directory objects: ordered mappings from
// relative path to content hash. Directory objects are themselves
// content-addressed — serializing a DirMap canonically and hashing the
// result yields its dirHash, allowing a directory tree to be named exactly
// like a single file.
package dirmap

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/spread-install/spread/pkg/hash"
)

// Entry is a single path/hash pair within a DirMap.
type Entry struct {
	// Path is a non-empty, forward-slash-normalized path relative to the
	// directory's root.
	Path string
	// Hash is the content hash of the file at Path.
	Hash hash.Hash
}

// DirMap is an ordered mapping from relative path to Hash. The zero value is
// an empty map. DirMap is immutable from the caller's perspective: all
// mutating operations return a new DirMap.
type DirMap struct {
	// byPath provides O(1) lookup.
	byPath map[string]hash.Hash
}

// New constructs a DirMap from a set of entries. Duplicate paths are an
// error.
func New(entries ...Entry) (DirMap, error) {
	byPath := make(map[string]hash.Hash, len(entries))
	for _, e := range entries {
		if e.Path == "" {
			return DirMap{}, errors.New("empty path in directory map")
		}
		if _, ok := byPath[e.Path]; ok {
			return DirMap{}, errors.Errorf("duplicate path in directory map: %s", e.Path)
		}
		byPath[e.Path] = e.Hash
	}
	return DirMap{byPath: byPath}, nil
}

// Len returns the number of entries in the map.
func (d DirMap) Len() int {
	return len(d.byPath)
}

// Lookup returns the hash stored for path and whether it was present.
func (d DirMap) Lookup(path string) (hash.Hash, bool) {
	h, ok := d.byPath[path]
	return h, ok
}

// Entries returns the map's entries in canonical (DFS, path-sorted) order.
func (d DirMap) Entries() []Entry {
	paths := make([]string, 0, len(d.byPath))
	for p := range d.byPath {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool { return Less(paths[i], paths[j]) })

	entries := make([]Entry, len(paths))
	for i, p := range paths {
		entries[i] = Entry{Path: p, Hash: d.byPath[p]}
	}
	return entries
}

// Paths returns the map's paths in canonical order.
func (d DirMap) Paths() []string {
	entries := d.Entries()
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Path
	}
	return out
}

// With returns a copy of d with path set to h (inserted or overwritten).
func (d DirMap) With(path string, h hash.Hash) DirMap {
	byPath := make(map[string]hash.Hash, len(d.byPath)+1)
	for p, existing := range d.byPath {
		byPath[p] = existing
	}
	byPath[path] = h
	return DirMap{byPath: byPath}
}

// Without returns a copy of d with path removed.
func (d DirMap) Without(path string) DirMap {
	byPath := make(map[string]hash.Hash, len(d.byPath))
	for p, existing := range d.byPath {
		if p != path {
			byPath[p] = existing
		}
	}
	return DirMap{byPath: byPath}
}

// Equal reports whether d and other name exactly the same paths with exactly
// the same hashes.
func (d DirMap) Equal(other DirMap) bool {
	if len(d.byPath) != len(other.byPath) {
		return false
	}
	for p, h := range d.byPath {
		oh, ok := other.byPath[p]
		if !ok || !h.Equal(oh) {
			return false
		}
	}
	return true
}

// Serialize produces the canonical byte representation of d: one line per
// entry in canonical path order, "<path>\t<hashText>\n". This is the input
// to Hash.
func (d DirMap) Serialize() []byte {
	var b strings.Builder
	for _, e := range d.Entries() {
		fmt.Fprintf(&b, "%s\t%s\n", e.Path, e.Hash.String())
	}
	return []byte(b.String())
}

// Hash computes the dirHash: the content hash of d's canonical
// serialization. Two DirMaps with the same paths and hashes always produce
// the same dirHash, regardless of construction order.
func (d DirMap) Hash() hash.Hash {
	return hash.Sum(d.Serialize())
}

// Parse is the inverse of Serialize: it reconstructs a DirMap from a
// directory object's canonical byte representation, as fetched from the
// channel/package metadata store by a dirinstaller.Owner's LoadDir.
func Parse(data []byte) (DirMap, error) {
	var entries []Entry
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab == -1 {
			return DirMap{}, errors.Errorf("malformed directory object line: %q", line)
		}
		h, err := hash.Parse(line[tab+1:])
		if err != nil {
			return DirMap{}, errors.Wrapf(err, "directory object entry %q", line[:tab])
		}
		entries = append(entries, Entry{Path: line[:tab], Hash: h})
	}
	if err := scanner.Err(); err != nil {
		return DirMap{}, errors.Wrap(err, "unable to read directory object")
	}
	return New(entries...)
}

// Less reports whether first sorts before second under depth-first,
// component-wise directory traversal order: "a/b" before "a/b/c" before
// "a/c" before "b". This is the order directory objects serialize in and the
// order the installer walks paths in.
func Less(first, second string) bool {
	if first == second {
		return false
	} else if first == "" {
		return true
	} else if second == "" {
		return false
	}

	for {
		firstSlash := strings.IndexByte(first, '/')
		firstComponent := first
		if firstSlash != -1 {
			firstComponent = first[:firstSlash]
		}

		secondSlash := strings.IndexByte(second, '/')
		secondComponent := second
		if secondSlash != -1 {
			secondComponent = second[:secondSlash]
		}

		if firstComponent < secondComponent {
			return true
		} else if secondComponent < firstComponent {
			return false
		}

		if firstSlash == -1 {
			return true
		} else if secondSlash == -1 {
			return false
		}

		first = first[firstSlash+1:]
		second = second[secondSlash+1:]
	}
}

// Dir returns the parent path of path, or "" if path has no parent (i.e. is
// directly under the root).
func Dir(path string) string {
	if path == "" {
		panic("dirmap: empty path")
	}
	if idx := strings.LastIndexByte(path, '/'); idx != -1 {
		return path[:idx]
	}
	return ""
}

// Base returns the final path component of path.
func Base(path string) string {
	if idx := strings.LastIndexByte(path, '/'); idx != -1 {
		return path[idx+1:]
	}
	return path
}

// Scan walks the directory tree at root and computes a DirMap by hashing
// every regular file it contains. Paths in the resulting map use forward
// slashes regardless of platform. Symbolic links are not followed: a
// symbolic link, like any other non-regular file (socket, device, etc.),
// causes an error.
func Scan(root string) (DirMap, error) {
	entries := make(map[string]hash.Hash)

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return errors.Wrapf(err, "unable to access %s", path)
		}
		if path == root {
			return nil
		}

		relative, err := filepath.Rel(root, path)
		if err != nil {
			return errors.Wrapf(err, "unable to compute relative path for %s", path)
		}
		relative = filepath.ToSlash(relative)

		if info.IsDir() {
			return nil
		}
		if !info.Mode().IsRegular() {
			return errors.Errorf("irregular file in scanned directory: %s", relative)
		}

		h, err := hashFile(path)
		if err != nil {
			return errors.Wrapf(err, "unable to hash %s", relative)
		}
		entries[relative] = h
		return nil
	})
	if err != nil {
		return DirMap{}, err
	}

	return DirMap{byPath: entries}, nil
}

// hashFile computes the content hash of the file at path by streaming it
// through a hash.New sink.
func hashFile(path string) (hash.Hash, error) {
	f, err := os.Open(path)
	if err != nil {
		return hash.Hash{}, err
	}
	defer f.Close()

	sink := hash.New()
	n, err := io.Copy(sink, bufio.NewReader(f))
	if err != nil {
		return hash.Hash{}, err
	}

	return hash.FromDigest(sink.Sum(nil), uint64(n))
}
