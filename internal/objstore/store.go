package objstore

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/golang/snappy"
)

// ErrNotFound is returned when an object, ref or branch doesn't exist.
var ErrNotFound = fmt.Errorf("not found")

// ErrAmbiguous is returned by FuzzyMatch when a prefix matches more than
// one stored object.
var ErrAmbiguous = fmt.Errorf("ambiguous identifier prefix")

// Store is the content-addressed object store rooted at <repo>/.darkwiki.
// Objects are framed on disk as "<KIND>:" followed by the canonical body,
// snappy-compressed as a whole; the identifier is always the SHA-256 of
// the uncompressed, unframed body alone.
type Store struct {
	dotDir string
}

// NewStore opens the object store rooted at dotDir (a repository's
// .darkwiki directory). It does not require the directory to already
// exist; Init creates it.
func NewStore(dotDir string) *Store {
	return &Store{dotDir: dotDir}
}

// DotDir returns the repository's .darkwiki directory.
func (s *Store) DotDir() string {
	return s.dotDir
}

func (s *Store) objectsDir() string {
	return filepath.Join(s.dotDir, "objects")
}

func (s *Store) objectPath(id Ident) string {
	return filepath.Join(s.objectsDir(), id.Hex())
}

// Init creates the on-disk skeleton: objects/, refs/heads/, HEAD pointing
// at refs/heads/<defaultBranch>, and an empty index.
func (s *Store) Init(defaultBranch string) error {
	if err := os.MkdirAll(s.objectsDir(), 0o755); err != nil {
		return fmt.Errorf("init objects dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(s.dotDir, "refs", "heads"), 0o755); err != nil {
		return fmt.Errorf("init refs dir: %w", err)
	}
	headPath := filepath.Join(s.dotDir, "HEAD")
	if _, err := os.Stat(headPath); os.IsNotExist(err) {
		head := fmt.Sprintf("ref: refs/heads/%s\n", defaultBranch)
		if err := os.WriteFile(headPath, []byte(head), 0o644); err != nil {
			return fmt.Errorf("write HEAD: %w", err)
		}
	}
	indexPath := filepath.Join(s.dotDir, "index")
	if _, err := os.Stat(indexPath); os.IsNotExist(err) {
		if err := os.WriteFile(indexPath, nil, 0o644); err != nil {
			return fmt.Errorf("write empty index: %w", err)
		}
	}
	return nil
}

// Put stores body under its computed identifier and kind, compressing the
// framed "<KIND>:"+body payload with snappy. It's a no-op if the object
// already exists, since identical bodies always hash to the same ident.
func (s *Store) Put(kind Kind, body []byte) (Ident, error) {
	id := ComputeIdent(body)
	if s.Exists(id) {
		return id, nil
	}

	var framed bytes.Buffer
	framed.WriteString(kind.String())
	framed.WriteByte(':')
	framed.Write(body)

	compressed := snappy.Encode(nil, framed.Bytes())

	if err := os.MkdirAll(s.objectsDir(), 0o755); err != nil {
		return id, fmt.Errorf("put %s: %w", id, err)
	}
	if err := os.WriteFile(s.objectPath(id), compressed, 0o444); err != nil {
		return id, fmt.Errorf("put %s: %w", id, err)
	}
	return id, nil
}

// Get retrieves an object's kind and canonical body by identifier.
func (s *Store) Get(id Ident) (Kind, []byte, error) {
	compressed, err := os.ReadFile(s.objectPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil, fmt.Errorf("get %s: %w", id, ErrNotFound)
		}
		return 0, nil, fmt.Errorf("get %s: %w", id, err)
	}

	framed, err := snappy.Decode(nil, compressed)
	if err != nil {
		return 0, nil, fmt.Errorf("decompress %s: %w", id, err)
	}

	sep := bytes.IndexByte(framed, ':')
	if sep < 0 {
		return 0, nil, fmt.Errorf("get %s: malformed object framing", id)
	}
	kind, err := ParseKind(string(framed[:sep]))
	if err != nil {
		return 0, nil, fmt.Errorf("get %s: %w", id, err)
	}
	body := framed[sep+1:]

	if ComputeIdent(body) != id {
		return 0, nil, fmt.Errorf("get %s: stored body does not hash to its identifier", id)
	}

	return kind, body, nil
}

// Exists reports whether an object is already stored.
func (s *Store) Exists(id Ident) bool {
	_, err := os.Stat(s.objectPath(id))
	return err == nil
}

// List returns every stored object's identifier, in no particular order.
func (s *Store) List() ([]Ident, error) {
	entries, err := os.ReadDir(s.objectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list objects: %w", err)
	}
	idents := make([]Ident, 0, len(entries))
	for _, e := range entries {
		id, err := ParseIdent(e.Name())
		if err != nil {
			continue
		}
		idents = append(idents, id)
	}
	return idents, nil
}

// FuzzyMatch resolves a hex prefix to the single stored identifier it
// names, scanning the objects directory linearly. It returns ErrNotFound
// for zero matches and ErrAmbiguous for more than one.
func (s *Store) FuzzyMatch(prefix string) (Ident, error) {
	prefix = strings.ToLower(prefix)
	entries, err := os.ReadDir(s.objectsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return Ident{}, ErrNotFound
		}
		return Ident{}, fmt.Errorf("fuzzy match %q: %w", prefix, err)
	}

	var found string
	matches := 0
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, prefix) {
			found = name
			matches++
		}
	}

	switch matches {
	case 0:
		return Ident{}, ErrNotFound
	case 1:
		return ParseIdent(found)
	default:
		return Ident{}, ErrAmbiguous
	}
}
