// Package ebm implements the Extended Binary Module: the normalized,
// reference-indexed intermediate representation this module's converter
// and transform passes produce and consume. Every IR object lives in one
// of five arenas (internal/ebm/arena) and is addressed only by its ref;
// bodies never hold pointers to one another directly.
package ebm

import "fmt"

// Ref is an unsigned id into one of the five arenas, unique within that
// arena. Each arena numbers its entries from its own counter, so refs
// into different arenas can share a numeric value. Ref 0 is reserved for "nil/absent"; ref 1 is reserved for the
// module's entry-point statement.
type Ref uint64

// NilRef is the reserved "absent" ref shared by every arena kind.
const NilRef Ref = 0

// EntryRef is the reserved ref of the module's root statement.
const EntryRef Ref = 1

// IsNil reports whether r is the reserved absent ref.
func (r Ref) IsNil() bool { return r == NilRef }

func (r Ref) String() string {
	if r.IsNil() {
		return "<nil>"
	}

	return fmt.Sprintf("#%d", uint64(r))
}

// IdentifierRef, StringRef, TypeRef, StatementRef, and ExpressionRef are
// Ref aliased per arena kind so the Go type system catches cross-arena
// mixups (a StatementRef passed where a TypeRef is expected) at compile
// time.
type (
	IdentifierRef Ref
	StringRef     Ref
	TypeRef       Ref
	StatementRef  Ref
	ExpressionRef Ref
)

func (r IdentifierRef) IsNil() bool { return Ref(r).IsNil() }
func (r StringRef) IsNil() bool     { return Ref(r).IsNil() }
func (r TypeRef) IsNil() bool       { return Ref(r).IsNil() }
func (r StatementRef) IsNil() bool  { return Ref(r).IsNil() }
func (r ExpressionRef) IsNil() bool { return Ref(r).IsNil() }

func (r IdentifierRef) String() string { return Ref(r).String() }
func (r StringRef) String() string     { return Ref(r).String() }
func (r TypeRef) String() string       { return Ref(r).String() }
func (r StatementRef) String() string  { return Ref(r).String() }
func (r ExpressionRef) String() string { return Ref(r).String() }

// AliasKind identifies which arena an alias-table entry belongs to.
type AliasKind int

const (
	AliasIdentifier AliasKind = iota
	AliasString
	AliasType
	AliasStatement
	AliasExpression
)

func (k AliasKind) String() string {
	switch k {
	case AliasIdentifier:
		return "IDENTIFIER"
	case AliasString:
		return "STRING"
	case AliasType:
		return "TYPE"
	case AliasStatement:
		return "STATEMENT"
	case AliasExpression:
		return "EXPRESSION"
	default:
		return "UNKNOWN"
	}
}
