package publish

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// prune deletes entity outputs beyond the retention window, newest
// first by the timestamp embedded in the name. keep is the base name
// of the file just published and is never deleted, even if the system
// clock stepped backwards and made it sort old.
func (p *Publisher) prune(entity, keep string) error {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return err
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if matchesEntity(e.Name(), entity) {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	if len(names) <= p.backups {
		return nil
	}

	var errs []error
	for _, name := range names[p.backups:] {
		if name == keep {
			continue
		}
		if err := os.Remove(filepath.Join(p.dir, name)); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// matchesEntity reports whether name is an output produced for
// entity: the exact shape is <entity>_<14 digit UTC stamp>.csv.
// Anything else in the directory, including outputs for entities that
// happen to share a prefix, is left alone.
func matchesEntity(name, entity string) bool {
	prefix := entity + "_"
	if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".csv") {
		return false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".csv")
	if len(stamp) != 14 {
		return false
	}
	for _, r := range stamp {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
