// Package arena implements the interned, id-indexed stores the EBM data
// model (internal/ebm) is built from: one Repository per arena kind
// (identifiers, strings, types, statements, expressions), an alias
// table, and inverse-ref enumeration. The generic Repository pairs a
// monotonic id counter with an ordered, index-cached entry list.
package arena

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
)

// Entry is one arena slot: an id paired with its body.
type Entry[T any] struct {
	ID   ebm.Ref
	Body T
}

// Repository is a single arena: an ordered, id-indexed store of bodies of
// type T plus the alias table entries for this arena's ref kind.
//
// Operations: new_id/add/add_with_id/get/alias/finalize.
type Repository[T any] struct {
	kind    ebm.AliasKind
	nextID  ebm.Ref
	entries []Entry[T]
	byID    map[ebm.Ref]int // id -> index into entries, rebuilt on reorder
	aliases map[ebm.Ref]ebm.Ref
}

// NewRepository constructs an empty repository for the given alias kind.
// The id source starts at 2: ids 0 and 1 are globally reserved (nil and
// entry point) and new_id must never return either.
func NewRepository[T any](kind ebm.AliasKind) *Repository[T] {
	return &Repository[T]{
		kind:    kind,
		nextID:  2,
		byID:    make(map[ebm.Ref]int),
		aliases: make(map[ebm.Ref]ebm.Ref),
	}
}

// NewID returns a fresh unique ref without storing a body for it.
func (r *Repository[T]) NewID() ebm.Ref {
	id := r.nextID
	r.nextID++

	return id
}

// Add allocates a fresh id, appends {id, body}, and returns the ref.
func (r *Repository[T]) Add(body T) ebm.Ref {
	id := r.NewID()
	r.insert(id, body)

	return id
}

// AddWithID appends a body under an externally supplied id — used when a
// statement must reference itself before its own body exists (the
// reserve-id-then-add_with_id pattern). It fails if id is
// already present.
func (r *Repository[T]) AddWithID(id ebm.Ref, body T) error {
	if _, exists := r.byID[id]; exists {
		return fmt.Errorf("arena: add_with_id: id %s already present", id)
	}

	r.insert(id, body)

	if id >= r.nextID {
		r.nextID = id + 1
	}

	return nil
}

func (r *Repository[T]) insert(id ebm.Ref, body T) {
	r.byID[id] = len(r.entries)
	r.entries = append(r.entries, Entry[T]{ID: id, Body: body})
}

// Get follows aliases and returns the entry body for ref, or the zero
// value and false if ref resolves to nothing.
func (r *Repository[T]) Get(ref ebm.Ref) (T, bool) {
	resolved := r.resolve(ref)

	idx, ok := r.byID[resolved]
	if !ok {
		var zero T

		return zero, false
	}

	return r.entries[idx].Body, true
}

// GetMut returns a pointer to the stored body so transform passes can
// mutate entries in place.
func (r *Repository[T]) GetMut(ref ebm.Ref) (*T, bool) {
	resolved := r.resolve(ref)

	idx, ok := r.byID[resolved]
	if !ok {
		return nil, false
	}

	return &r.entries[idx].Body, true
}

func (r *Repository[T]) resolve(ref ebm.Ref) ebm.Ref {
	seen := map[ebm.Ref]bool{}

	for {
		if seen[ref] {
			return ref // alias cycle; treat as unresolved rather than loop forever
		}

		seen[ref] = true

		to, ok := r.aliases[ref]
		if !ok {
			return ref
		}

		ref = to
	}
}

// Alias records that from aliases to. Lookups of from transparently
// follow to (and further aliases of to).
func (r *Repository[T]) Alias(from, to ebm.Ref) {
	r.aliases[from] = to
}

// AliasTarget reports the direct (non-transitive) alias target of ref, if
// any.
func (r *Repository[T]) AliasTarget(ref ebm.Ref) (ebm.Ref, bool) {
	to, ok := r.aliases[ref]

	return to, ok
}

// Aliases returns every recorded from->to alias pair, in insertion order
// is not preserved (map iteration) — callers needing deterministic order
// should sort by from.
func (r *Repository[T]) Aliases() map[ebm.Ref]ebm.Ref {
	return r.aliases
}

// Len is the number of live entries; ids are unique and equal in
// cardinality to it.
func (r *Repository[T]) Len() int { return len(r.entries) }

// Entries exposes the live entries in current arena order.
func (r *Repository[T]) Entries() []Entry[T] { return r.entries }

// Finalize rebuilds the id->index cache. Call after any pass that
// reorders or removes entries out from under the repository directly
// (e.g. via ReplaceEntries).
func (r *Repository[T]) Finalize() {
	r.byID = make(map[ebm.Ref]int, len(r.entries))
	for i, e := range r.entries {
		r.byID[e.ID] = i
	}
}

// ReplaceEntries swaps the repository's entire entry list (used by the
// dead-code pass and by renumbering) and re-finalizes the cache.
func (r *Repository[T]) ReplaceEntries(entries []Entry[T]) {
	r.entries = entries
	r.Finalize()
}

// ReplaceAliases swaps the alias table (used by the dead-code pass to
// drop aliases whose target was removed).
func (r *Repository[T]) ReplaceAliases(aliases map[ebm.Ref]ebm.Ref) {
	r.aliases = aliases
}

// Kind is this repository's alias-kind hint.
func (r *Repository[T]) Kind() ebm.AliasKind { return r.kind }
