package objstore

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v2"
)

// Seeds is the opaque persisted map of peer address -> hex public key
// darkwiki keeps at <repo>/.darkwiki/seeds after bootstrapping against the
// seed service.
type Seeds map[string]string

func (s *Store) seedsPath() string {
	return filepath.Join(s.dotDir, "seeds")
}

// ReadSeeds loads the seeds file, returning an empty map if it doesn't
// exist yet.
func (s *Store) ReadSeeds() (Seeds, error) {
	data, err := os.ReadFile(s.seedsPath())
	if err != nil {
		if os.IsNotExist(err) {
			return Seeds{}, nil
		}
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	var seeds Seeds
	if err := yaml.Unmarshal(data, &seeds); err != nil {
		return nil, fmt.Errorf("read seeds: %w", err)
	}
	if seeds == nil {
		seeds = Seeds{}
	}
	return seeds, nil
}

// WriteSeeds persists the seeds map.
func (s *Store) WriteSeeds(seeds Seeds) error {
	data, err := yaml.Marshal(seeds)
	if err != nil {
		return fmt.Errorf("write seeds: %w", err)
	}
	if err := os.WriteFile(s.seedsPath(), data, 0o644); err != nil {
		return fmt.Errorf("write seeds: %w", err)
	}
	return nil
}

// MergeSeeds merges additional entries into base, with additional's
// entries taking precedence on conflicting addresses, matching the
// bootstrap flow's "merge result into persistent seeds file" step.
func MergeSeeds(base, additional Seeds) Seeds {
	merged := make(Seeds, len(base)+len(additional))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range additional {
		merged[k] = v
	}
	return merged
}
