package modver

import (
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

func TestSatisfies(t *testing.T) {
	cases := []struct {
		declared   string
		constraint string
		want       bool
		wantErr    bool
	}{
		{"1.2.3", ">=1.0.0, <2.0.0", true, false},
		{"2.0.0", ">=1.0.0, <2.0.0", false, false},
		{"1.2.3", "", true, false},
		{"not-a-version", ">=1.0.0", false, true},
		{"1.2.3", "not-a-constraint", false, true},
	}

	for _, tc := range cases {
		got, err := Satisfies(tc.declared, tc.constraint)
		if (err != nil) != tc.wantErr {
			t.Fatalf("Satisfies(%q, %q) error = %v, wantErr %t", tc.declared, tc.constraint, err, tc.wantErr)
		}

		if err == nil && got != tc.want {
			t.Fatalf("Satisfies(%q, %q) = %t, want %t", tc.declared, tc.constraint, got, tc.want)
		}
	}
}

func addImport(mod *arena.Module, path, constraint string) {
	alias := mod.AddIdentifier("m")
	p := mod.AddString([]byte(path))
	c := mod.AddString([]byte(constraint))

	mod.AddStatement(ebm.Statement{Kind: ebm.IMPORT_MODULE, Name: alias, Str: p, Str2: c})
}

func TestCheckImports(t *testing.T) {
	mod := arena.NewModule()
	addImport(mod, "wire/base", ">=1.1.0")

	if err := CheckImports(mod, map[string]string{"wire/base": "1.2.0"}); err != nil {
		t.Fatalf("satisfied import rejected: %v", err)
	}

	if err := CheckImports(mod, map[string]string{"wire/base": "1.0.0"}); err == nil {
		t.Fatal("unsatisfied import accepted")
	}

	// Unknown versions are not an error: the import is simply unchecked.
	if err := CheckImports(mod, nil); err != nil {
		t.Fatalf("unknown version treated as failure: %v", err)
	}
}

func TestCheckFormatVersion(t *testing.T) {
	r := FormatVersionRange{Min: 1, Max: 3}

	if err := CheckFormatVersion(2, r); err != nil {
		t.Fatalf("in-range version rejected: %v", err)
	}

	if err := CheckFormatVersion(4, r); err == nil {
		t.Fatal("out-of-range version accepted")
	}
}
