package mapping

import (
	"fmt"
	"path"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
)

// CompileError reports a profile compilation failure with the CUE
// source position when one is available.
type CompileError struct {
	Profile string
	Field   string
	Message string
	Pos     token.Pos
}

func (e *CompileError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: profile %s: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Profile, e.Field, e.Message)
	}
	return fmt.Sprintf("profile %s: %s: %s", e.Profile, e.Field, e.Message)
}

// CompileProfile parses one CUE profile struct into a Profile.
//
// The CUE value is the profile body itself, e.g. the value at
// profile.stock in:
//
//	profile: stock: {
//		match:    ["stock*"]
//		key:      ["PART_NO", "PART_NUMBER"]
//		price:    ["PRICE"]
//		quantity: ["STOCK"]
//	}
func CompileProfile(name string, v cue.Value) (*Profile, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(name, err)
	}

	p := &Profile{Name: name}

	var err error
	if p.Match, err = parseStringList(name, v, "match", false); err != nil {
		return nil, err
	}
	if len(p.Match) == 0 {
		// A profile with no explicit patterns claims files named
		// after it.
		p.Match = []string{strings.ToLower(name) + "*"}
	}
	for i, pattern := range p.Match {
		lowered := strings.ToLower(pattern)
		if _, matchErr := path.Match(lowered, "probe"); matchErr != nil {
			return nil, &CompileError{
				Profile: name,
				Field:   "match",
				Message: fmt.Sprintf("invalid pattern %q", pattern),
				Pos:     v.Pos(),
			}
		}
		p.Match[i] = lowered
	}

	if p.Key, err = parseStringList(name, v, "key", true); err != nil {
		return nil, err
	}
	if p.Price, err = parseStringList(name, v, "price", true); err != nil {
		return nil, err
	}
	if p.Quantity, err = parseStringList(name, v, "quantity", true); err != nil {
		return nil, err
	}
	if p.Ref, err = parseStringList(name, v, "ref", false); err != nil {
		return nil, err
	}
	if p.Exclude, err = parseStringList(name, v, "exclude", false); err != nil {
		return nil, err
	}

	return p, nil
}

// parseStringList extracts a list-of-strings field from a profile value.
// Required fields must exist and be non-empty.
func parseStringList(profile string, v cue.Value, field string, required bool) ([]string, error) {
	fv := v.LookupPath(cue.ParsePath(field))
	if !fv.Exists() {
		if required {
			return nil, &CompileError{
				Profile: profile,
				Field:   field,
				Message: "required alias list is missing",
				Pos:     v.Pos(),
			}
		}
		return nil, nil
	}

	iter, err := fv.List()
	if err != nil {
		return nil, &CompileError{
			Profile: profile,
			Field:   field,
			Message: "must be a list of strings",
			Pos:     fv.Pos(),
		}
	}

	var out []string
	for iter.Next() {
		s, err := iter.Value().String()
		if err != nil {
			return nil, &CompileError{
				Profile: profile,
				Field:   field,
				Message: "must be a list of strings",
				Pos:     iter.Value().Pos(),
			}
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil, &CompileError{
				Profile: profile,
				Field:   field,
				Message: "aliases must be non-empty",
				Pos:     iter.Value().Pos(),
			}
		}
		out = append(out, s)
	}

	if required && len(out) == 0 {
		return nil, &CompileError{
			Profile: profile,
			Field:   field,
			Message: "required alias list is empty",
			Pos:     fv.Pos(),
		}
	}

	return out, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(profile string, err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	firstErr := errs[0]
	positions := errors.Positions(firstErr)
	if len(positions) > 0 {
		return &CompileError{
			Profile: profile,
			Field:   "cue",
			Message: firstErr.Error(),
			Pos:     positions[0],
		}
	}

	return err
}
