// Package modver gates module versions: the semantic-version constraint
// an IMPORT_MODULE statement carries against the imported module's
// declared version, and the binary format's `version: u8` header byte
// against the range this build understands.
package modver

import (
	"fmt"

	semver "github.com/Masterminds/semver/v3"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

// Satisfies reports whether declared satisfies the constraint string
// (e.g. ">=1.2.0, <2.0.0"). An empty constraint accepts everything.
func Satisfies(declared, constraint string) (bool, error) {
	if constraint == "" {
		return true, nil
	}

	v, err := semver.NewVersion(declared)
	if err != nil {
		return false, errors.NewStandardError(errors.CategoryMalformedInput, "EBM7001",
			fmt.Sprintf("invalid module version %q: %v", declared, err), nil)
	}

	c, err := semver.NewConstraint(constraint)
	if err != nil {
		return false, errors.NewStandardError(errors.CategoryMalformedInput, "EBM7002",
			fmt.Sprintf("invalid version constraint %q: %v", constraint, err), nil)
	}

	return c.Check(v), nil
}

// CheckImports validates every IMPORT_MODULE statement in mod whose
// metadata supplies both a version and a constraint: resolve names
// against the strings arena, then run the constraint check. versions
// maps an imported module path to its declared semantic version, as
// reported by whoever loaded the import (the CLI's responsibility).
func CheckImports(mod *arena.Module, versions map[string]string) error {
	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind != ebm.IMPORT_MODULE {
			continue
		}

		path, ok := mod.GetString(e.Body.Str)
		if !ok {
			continue
		}

		constraint, ok := mod.GetString(e.Body.Str2)
		if !ok || len(constraint.Bytes) == 0 {
			continue
		}

		declared, known := versions[string(path.Bytes)]
		if !known {
			continue
		}

		ok, err := Satisfies(declared, string(constraint.Bytes))
		if err != nil {
			return err
		}

		if !ok {
			return errors.NewStandardError(errors.CategoryInvariant, "EBM7003",
				fmt.Sprintf("import %q: version %s does not satisfy %s",
					string(path.Bytes), declared, string(constraint.Bytes)), nil)
		}
	}

	return nil
}

// FormatVersionRange is the inclusive range [Min, Max] of binary-format
// version bytes a reader accepts.
type FormatVersionRange struct {
	Min uint8
	Max uint8
}

// Accepts reports whether v is within the range.
func (r FormatVersionRange) Accepts(v uint8) bool {
	return v >= r.Min && v <= r.Max
}

// CheckFormatVersion validates a binary module's header byte against the
// supported range, reporting a malformed-input error otherwise.
func CheckFormatVersion(v uint8, r FormatVersionRange) error {
	if r.Accepts(v) {
		return nil
	}

	return errors.NewStandardError(errors.CategoryMalformedInput, "EBM7004",
		fmt.Sprintf("binary format version %d outside supported range %d..%d", v, r.Min, r.Max), nil)
}
