package detect

import (
	"sort"
	"time"
)

// ChangeSet classifies the keys of one source against its committed
// state. Each slice is sorted so logs and downstream files come out
// in a stable order.
type ChangeSet struct {
	Added    []string
	Modified []string
	Removed  []string

	// Unchanged counts the keys whose checksum matched the committed
	// entry. A count, not a key set: nothing downstream acts on the
	// individual keys.
	Unchanged int
}

// Empty reports whether the snapshot matched the committed state
// exactly.
func (cs ChangeSet) Empty() bool {
	return len(cs.Added) == 0 && len(cs.Modified) == 0 && len(cs.Removed) == 0
}

// Dirty returns the keys whose current content must be published,
// added and modified together, sorted.
func (cs ChangeSet) Dirty() []string {
	out := make([]string, 0, len(cs.Added)+len(cs.Modified))
	out = append(out, cs.Added...)
	out = append(out, cs.Modified...)
	sort.Strings(out)
	return out
}

// Detector implements the two-phase change protocol: Detect compares
// without side effects, Commit persists only what was actually
// published. A crash between the two replays the same changes on the
// next cycle.
type Detector struct {
	store *Store
	state *State
}

// NewDetector wraps a loaded state. The same state instance must be
// used for every source in a cycle so Commit persists a complete
// file.
func NewDetector(store *Store, state *State) *Detector {
	return &Detector{store: store, state: state}
}

// Detect compares fresh checksums for source against the committed
// entries and reports additions, modifications, removals, and the
// count of matching records. It never mutates state.
func (d *Detector) Detect(source string, fresh map[string]string) ChangeSet {
	prior := d.state.Entries(source)

	var cs ChangeSet
	for key, sum := range fresh {
		prev, ok := prior[key]
		switch {
		case !ok:
			cs.Added = append(cs.Added, key)
		case prev.Checksum != sum:
			cs.Modified = append(cs.Modified, key)
		default:
			cs.Unchanged++
		}
	}
	for key := range prior {
		if _, ok := fresh[key]; !ok {
			cs.Removed = append(cs.Removed, key)
		}
	}

	sort.Strings(cs.Added)
	sort.Strings(cs.Modified)
	sort.Strings(cs.Removed)
	return cs
}

// Commit folds the published checksums into the state for source,
// drops the removed keys, and rewrites the state file atomically.
// published must contain only keys that made it into a visible
// output: records dropped by validation stay uncommitted so the next
// cycle retries them. Commit writes nothing when there is nothing to
// record.
func (d *Detector) Commit(source string, cs ChangeSet, published map[string]string, now time.Time) error {
	if len(published) == 0 && len(cs.Removed) == 0 {
		return nil
	}

	b := d.state.bucket(source)
	for _, key := range cs.Removed {
		delete(b.Entries, key)
	}
	syncedAt := now.UTC()
	for key, sum := range published {
		b.Entries[key] = Entry{Checksum: sum, LastSyncedUTC: syncedAt}
	}

	return d.store.Save(d.state)
}
