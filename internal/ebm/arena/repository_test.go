package arena

import (
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
)

func TestNewIDNeverReturnsReserved(t *testing.T) {
	repo := NewRepository[Identifier](ebm.AliasIdentifier)

	for i := 0; i < 100; i++ {
		id := repo.NewID()
		if id == ebm.NilRef || id == ebm.EntryRef {
			t.Fatalf("NewID returned reserved ref %s", id)
		}
	}
}

func TestAddAndGet(t *testing.T) {
	repo := NewRepository[Identifier](ebm.AliasIdentifier)

	a := repo.Add(Identifier{Name: "alpha"})
	b := repo.Add(Identifier{Name: "beta"})

	if a == b {
		t.Fatalf("Add returned duplicate ids: %s", a)
	}

	got, ok := repo.Get(a)
	if !ok || got.Name != "alpha" {
		t.Fatalf("Get(%s) = %+v, %t; want alpha", a, got, ok)
	}

	if _, ok := repo.Get(ebm.Ref(9999)); ok {
		t.Fatal("Get of absent ref reported presence")
	}

	if repo.Len() != 2 {
		t.Fatalf("Len = %d, want 2", repo.Len())
	}
}

func TestAddWithIDRejectsDuplicates(t *testing.T) {
	repo := NewRepository[Identifier](ebm.AliasIdentifier)

	id := repo.NewID()
	if err := repo.AddWithID(id, Identifier{Name: "one"}); err != nil {
		t.Fatalf("first AddWithID: %v", err)
	}

	if err := repo.AddWithID(id, Identifier{Name: "two"}); err == nil {
		t.Fatal("duplicate AddWithID did not fail")
	}

	// A reserved-then-filled id must not be re-issued by the id source.
	next := repo.NewID()
	if next == id {
		t.Fatalf("NewID re-issued %s", id)
	}
}

func TestAliasFollowing(t *testing.T) {
	repo := NewRepository[Identifier](ebm.AliasIdentifier)

	target := repo.Add(Identifier{Name: "real"})
	from := repo.NewID()
	repo.Alias(from, target)

	got, ok := repo.Get(from)
	if !ok || got.Name != "real" {
		t.Fatalf("aliased Get = %+v, %t; want real", got, ok)
	}

	// Transitive aliases resolve too.
	further := repo.NewID()
	repo.Alias(further, from)

	got, ok = repo.Get(further)
	if !ok || got.Name != "real" {
		t.Fatalf("transitive aliased Get = %+v, %t; want real", got, ok)
	}
}

func TestAliasCycleDoesNotHang(t *testing.T) {
	repo := NewRepository[Identifier](ebm.AliasIdentifier)

	a := repo.NewID()
	b := repo.NewID()
	repo.Alias(a, b)
	repo.Alias(b, a)

	if _, ok := repo.Get(a); ok {
		t.Fatal("alias cycle resolved to an entry")
	}
}

func TestUniqueIDsEqualCardinality(t *testing.T) {
	mod := NewModule()

	for i := 0; i < 10; i++ {
		mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	}

	seen := make(map[ebm.Ref]bool)

	for _, e := range mod.Types.Entries() {
		if seen[e.ID] {
			t.Fatalf("duplicate id %s", e.ID)
		}

		seen[e.ID] = true
	}

	if len(seen) != mod.Types.Len() {
		t.Fatalf("id count %d != arena length %d", len(seen), mod.Types.Len())
	}
}

func TestBuildInverseRefs(t *testing.T) {
	mod := NewModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	arr := mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: 4})

	inv := mod.BuildInverseRefs()

	found := false

	for _, r := range inv {
		if r.Holder == ebm.Ref(arr) && r.Target == ebm.Ref(u8) {
			found = true

			if r.FieldName != "element" {
				t.Fatalf("field name = %q, want element", r.FieldName)
			}
		}
	}

	if !found {
		t.Fatal("array -> element use edge not enumerated")
	}
}

func TestFinalizeRecomputesMaxID(t *testing.T) {
	mod := NewModule()

	mod.AddIdentifier("x")
	last := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK})

	mod.Finalize()

	if mod.MaxID != ebm.Ref(last) {
		t.Fatalf("MaxID = %s, want %s", mod.MaxID, ebm.Ref(last))
	}
}
