// Package mapping compiles declarative CUE mapping profiles into the
// static alias tables the transformer resolves against.
//
// A profile describes one snapshot family: which filenames it claims,
// which legacy column names resolve to each canonical field, and which
// volatile columns are excluded from change detection entirely.
package mapping

import (
	"path"
	"path/filepath"
	"strings"
)

// Profile is a compiled alias table for one snapshot family.
// Alias lists are ordered: the first alias present in a raw record wins.
type Profile struct {
	// Name identifies the profile (the CUE struct label).
	Name string

	// Match holds lowercase filename globs that claim snapshots,
	// matched against the lowercased base name.
	Match []string

	// Key, Price and Quantity are required alias lists.
	Key      []string
	Price    []string
	Quantity []string

	// Ref is the optional transaction-reference alias list.
	Ref []string

	// Exclude lists legacy columns ignored entirely (volatile fields
	// such as export timestamps that would defeat change detection).
	Exclude []string
}

// Claims reports whether the profile's match patterns claim the given
// snapshot filename. Matching is case-insensitive against the base name.
func (p *Profile) Claims(filename string) bool {
	base := strings.ToLower(filepath.Base(filename))
	for _, pattern := range p.Match {
		if ok, err := path.Match(pattern, base); err == nil && ok {
			return true
		}
	}
	return false
}

// Excluded reports whether a legacy column is excluded from mapping
// and change detection.
func (p *Profile) Excluded(column string) bool {
	for _, e := range p.Exclude {
		if strings.EqualFold(e, column) {
			return true
		}
	}
	return false
}

// Catalog is an ordered set of compiled profiles.
type Catalog struct {
	Profiles []Profile
}

// Resolve returns the first profile (in name order) claiming the given
// snapshot filename.
func (c *Catalog) Resolve(filename string) (*Profile, bool) {
	for i := range c.Profiles {
		if c.Profiles[i].Claims(filename) {
			return &c.Profiles[i], true
		}
	}
	return nil, false
}

// Lookup returns the profile with the given name.
func (c *Catalog) Lookup(name string) (*Profile, bool) {
	for i := range c.Profiles {
		if c.Profiles[i].Name == name {
			return &c.Profiles[i], true
		}
	}
	return nil, false
}
