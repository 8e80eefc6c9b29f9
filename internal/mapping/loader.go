package mapping

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
)

//go:embed builtin.cue
var builtinCUE string

// LoadBuiltin compiles the embedded default profiles.
func LoadBuiltin() (*Catalog, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(builtinCUE, cue.Filename("builtin.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compiling built-in profiles: %w", err)
	}
	return fromValue(v)
}

// LoadDir compiles all CUE files in a directory into a catalog,
// replacing the built-in profiles entirely. Files should share a
// package clause so they build as one instance.
func LoadDir(dir string) (*Catalog, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("mappings directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("mappings path is not a directory: %s", dir)
	}

	ctx := cuecontext.New()
	instances := load.Instances([]string{"."}, &load.Config{Dir: dir})
	if len(instances) == 0 {
		return nil, fmt.Errorf("no CUE instances found in %s", dir)
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, fmt.Errorf("loading mapping files: %w", inst.Err)
	}

	v := ctx.BuildInstance(inst)
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("building mapping files: %w", err)
	}

	return fromValue(v)
}

// fromValue extracts and compiles every profile under the top-level
// "profile" struct. Profiles are ordered by name so snapshot claiming
// is deterministic.
func fromValue(v cue.Value) (*Catalog, error) {
	profilesVal := v.LookupPath(cue.ParsePath("profile"))
	if !profilesVal.Exists() {
		return nil, fmt.Errorf("no profiles found: missing top-level \"profile\" struct")
	}

	iter, err := profilesVal.Fields()
	if err != nil {
		return nil, fmt.Errorf("iterating profiles: %w", err)
	}

	catalog := &Catalog{}
	for iter.Next() {
		p, err := CompileProfile(iter.Label(), iter.Value())
		if err != nil {
			return nil, err
		}
		catalog.Profiles = append(catalog.Profiles, *p)
	}

	if len(catalog.Profiles) == 0 {
		return nil, fmt.Errorf("no profiles found under \"profile\"")
	}

	sort.Slice(catalog.Profiles, func(i, j int) bool {
		return catalog.Profiles[i].Name < catalog.Profiles[j].Name
	})

	return catalog, nil
}
