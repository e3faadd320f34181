package versions

import (
	"fmt"
)

// DefaultKeepCount is the default number of versions to retain.
const DefaultKeepCount = 2

// PruneResult contains information about what was pruned.
type PruneResult struct {
	Deleted []VersionInfo
	Kept    int
}

// Prune removes old working directories, keeping the newest keep versions. The
// deployed version is always kept and counts toward keep.
func (m *Manager) Prune(keep int) (*PruneResult, error) {
	if keep < 0 {
		return nil, fmt.Errorf("keep count must be non-negative")
	}

	versions, err := m.List()
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	if len(versions) <= keep {
		result.Kept = len(versions)
		return result, nil
	}

	budget := keep
	for _, v := range versions {
		if v.Current {
			budget--
		}
	}
	for _, v := range versions {
		if v.Current {
			result.Kept++
			continue
		}
		if budget > 0 {
			budget--
			result.Kept++
			continue
		}
		if err := m.Delete(v.Version); err != nil {
			return nil, fmt.Errorf("failed to delete version %s: %w", v.Version, err)
		}
		result.Deleted = append(result.Deleted, v)
	}
	return result, nil
}
