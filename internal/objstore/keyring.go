package objstore

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/systemshift/darkwiki/internal/dwcrypto"
)

func (s *Store) keyringPath() string {
	return filepath.Join(s.dotDir, "keyring")
}

// AuthorizedKeys reads the keyring file, one hex-encoded public key per
// line, returning an empty set if it doesn't exist yet.
func (s *Store) AuthorizedKeys() (map[dwcrypto.PublicKey]bool, error) {
	data, err := os.ReadFile(s.keyringPath())
	if err != nil {
		if os.IsNotExist(err) {
			return map[dwcrypto.PublicKey]bool{}, nil
		}
		return nil, fmt.Errorf("read keyring: %w", err)
	}

	keys := map[dwcrypto.PublicKey]bool{}
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		var pub dwcrypto.PublicKey
		raw, err := parseHexKey(line)
		if err != nil {
			return nil, fmt.Errorf("read keyring: %w", err)
		}
		copy(pub[:], raw)
		keys[pub] = true
	}
	return keys, nil
}

// AddAuthorizedKey appends public to the keyring file if not already
// present.
func (s *Store) AddAuthorizedKey(public dwcrypto.PublicKey) error {
	keys, err := s.AuthorizedKeys()
	if err != nil {
		return err
	}
	keys[public] = true

	var b strings.Builder
	for k := range keys {
		fmt.Fprintf(&b, "%x\n", k[:])
	}
	if err := os.WriteFile(s.keyringPath(), []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write keyring: %w", err)
	}
	return nil
}

func parseHexKey(line string) ([]byte, error) {
	if len(line) != dwcrypto.KeySize*2 {
		return nil, fmt.Errorf("malformed key %q", line)
	}
	out, err := hex.DecodeString(line)
	if err != nil {
		return nil, fmt.Errorf("malformed key %q: %w", line, err)
	}
	return out, nil
}
