package objstore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// IndexEntry is one staged file: its mode, the blob identifier of its
// staged content, and its repository-relative path.
type IndexEntry struct {
	Mode  string
	Ident Ident
	Path  string
}

func (s *Store) indexPath() string {
	return filepath.Join(s.dotDir, "index")
}

// ReadIndex loads the index file, one "<mode> <hexident> <path>" entry
// per line.
func (s *Store) ReadIndex() ([]IndexEntry, error) {
	data, err := os.ReadFile(s.indexPath())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read index: %w", err)
	}

	var entries []IndexEntry
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, " ", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("read index: malformed line %q", line)
		}
		id, err := ParseIdent(fields[1])
		if err != nil {
			return nil, fmt.Errorf("read index: %w", err)
		}
		entries = append(entries, IndexEntry{Mode: fields[0], Ident: id, Path: fields[2]})
	}
	return entries, nil
}

// WriteIndex persists the index file, one entry per line, in the order
// given.
func (s *Store) WriteIndex(entries []IndexEntry) error {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s %s\n", e.Mode, e.Ident.Hex(), e.Path)
	}
	if err := os.WriteFile(s.indexPath(), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write index: %w", err)
	}
	return nil
}

// UpsertIndexEntry adds e to entries, replacing any existing entry for
// the same path, and returns the updated slice.
func UpsertIndexEntry(entries []IndexEntry, e IndexEntry) []IndexEntry {
	for i, existing := range entries {
		if existing.Path == e.Path {
			entries[i] = e
			return entries
		}
	}
	return append(entries, e)
}

// RemoveIndexEntry drops the entry for path, if any, and returns the
// updated slice.
func RemoveIndexEntry(entries []IndexEntry, path string) []IndexEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.Path != path {
			out = append(out, e)
		}
	}
	return out
}
