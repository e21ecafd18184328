package objstore

import (
	"encoding/json"
	"fmt"
	"time"
)

// Commit is the JSON-encoded commit record: a tree snapshot, the time it
// was made, and a link to the commit it followed. There is no author,
// committer or message field; darkwiki's commits are anonymous snapshots,
// identified only by their content.
type Commit struct {
	Tree           Ident  `json:"tree"`
	Timestamp      int64  `json:"timestamp"`
	UTCOffset      int    `json:"utc_offset"`
	PreviousCommit string `json:"previous_commit"`
}

// HasPrevious reports whether this commit follows another one.
func (c Commit) HasPrevious() bool {
	return c.PreviousCommit != ""
}

// PreviousIdent parses PreviousCommit, returning the zero Ident and no
// error for a root commit.
func (c Commit) PreviousIdent() (Ident, error) {
	if !c.HasPrevious() {
		return Ident{}, nil
	}
	return ParseIdent(c.PreviousCommit)
}

// MarshalCommit encodes a commit record to its canonical JSON body.
func MarshalCommit(c Commit) ([]byte, error) {
	body, err := json.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal commit: %w", err)
	}
	return body, nil
}

// UnmarshalCommit decodes a stored COMMIT object's body.
func UnmarshalCommit(body []byte) (Commit, error) {
	var c Commit
	if err := json.Unmarshal(body, &c); err != nil {
		return Commit{}, fmt.Errorf("unmarshal commit: %w", err)
	}
	return c, nil
}

// StoreCommit builds a commit record for the given tree, following
// previous (the zero Ident for a root commit), and stores it.
func (s *Store) StoreCommit(tree Ident, previous Ident) (Ident, error) {
	now := time.Now()
	_, offsetSeconds := now.Zone()
	c := Commit{
		Tree:      tree,
		Timestamp: now.Unix(),
		UTCOffset: offsetSeconds,
	}
	if !previous.IsZero() {
		c.PreviousCommit = previous.Hex()
	}
	body, err := MarshalCommit(c)
	if err != nil {
		return Ident{}, err
	}
	return s.Put(KindCommit, body)
}

// FetchCommit retrieves and decodes a commit by identifier.
func (s *Store) FetchCommit(id Ident) (Commit, error) {
	kind, body, err := s.Get(id)
	if err != nil {
		return Commit{}, fmt.Errorf("fetch commit %s: %w", id, err)
	}
	if kind != KindCommit {
		return Commit{}, fmt.Errorf("fetch commit %s: expected COMMIT, got %s", id, kind)
	}
	return UnmarshalCommit(body)
}

// CommitChain walks a commit's previous_commit chain, newest first,
// including the starting commit itself.
func (s *Store) CommitChain(tip Ident) ([]Ident, error) {
	var chain []Ident
	current := tip
	for {
		chain = append(chain, current)
		c, err := s.FetchCommit(current)
		if err != nil {
			return nil, err
		}
		if !c.HasPrevious() {
			return chain, nil
		}
		previous, err := c.PreviousIdent()
		if err != nil {
			return nil, err
		}
		current = previous
	}
}
