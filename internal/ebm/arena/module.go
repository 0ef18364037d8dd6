package arena

import (
	"fmt"
	"sort"

	"github.com/orizon-lang/ebmc/internal/ebm"
)

// DebugLoc is one entry of the module's debug-location table: the ref it
// documents plus a source position in "file:line:col" form (kept as a
// plain string; the compiler front-end owns the richer position type).
type DebugLoc struct {
	Ref  ebm.Ref
	File string
	Line int
	Col  int
}

// Module bundles the five arenas plus the alias table and debug
// tables into the single object every converter/transform/visitor stage
// operates on.
type Module struct {
	Identifiers *Repository[Identifier]
	Strings     *Repository[String]
	Types       *Repository[ebm.Type]
	Statements  *Repository[ebm.Statement]
	Expressions *Repository[ebm.Expression]

	DebugFiles []string
	DebugLocs  []DebugLoc

	// MaxID is the largest id among the entries of all five
	// repositories; recomputed by Finalize.
	MaxID ebm.Ref
}

// Identifier is the identifiers arena's entry body: a source-level name.
type Identifier struct {
	Name string
}

// Visit is a no-op: an Identifier holds no refs of its own.
func (Identifier) Visit(ebm.FieldVisitor) {}

// String is the strings arena's entry body: an interned byte string
// (string-literal constants, messages, metadata values).
type String struct {
	Bytes []byte
}

func (String) Visit(ebm.FieldVisitor) {}

// NewModule constructs an empty module with all five arenas initialized.
func NewModule() *Module {
	return &Module{
		Identifiers: NewRepository[Identifier](ebm.AliasIdentifier),
		Strings:     NewRepository[String](ebm.AliasString),
		Types:       NewRepository[ebm.Type](ebm.AliasType),
		Statements:  NewRepository[ebm.Statement](ebm.AliasStatement),
		Expressions: NewRepository[ebm.Expression](ebm.AliasExpression),
	}
}

// GetEntryPoint returns the module's root statement — the entry always
// lives at EntryRef (id 1).
func (m *Module) GetEntryPoint() (*ebm.Statement, bool) {
	return m.Statements.GetMut(ebm.EntryRef)
}

// Typed convenience wrappers over the five repositories' untyped Ref
// methods, so converter/transform code reads and writes the Ref subtype
// matching each arena instead of a bare ebm.Ref everywhere.

func (m *Module) AddIdentifier(name string) ebm.IdentifierRef {
	return ebm.IdentifierRef(m.Identifiers.Add(Identifier{Name: name}))
}

func (m *Module) AddString(b []byte) ebm.StringRef {
	return ebm.StringRef(m.Strings.Add(String{Bytes: b}))
}

func (m *Module) AddType(t ebm.Type) ebm.TypeRef {
	return ebm.TypeRef(m.Types.Add(t))
}

func (m *Module) AddStatement(s ebm.Statement) ebm.StatementRef {
	return ebm.StatementRef(m.Statements.Add(s))
}

func (m *Module) ReserveStatement() ebm.StatementRef {
	return ebm.StatementRef(m.Statements.NewID())
}

func (m *Module) AddStatementWithID(id ebm.StatementRef, s ebm.Statement) error {
	return m.Statements.AddWithID(ebm.Ref(id), s)
}

func (m *Module) AddExpression(e ebm.Expression) ebm.ExpressionRef {
	return ebm.ExpressionRef(m.Expressions.Add(e))
}

func (m *Module) GetType(ref ebm.TypeRef) (ebm.Type, bool) {
	return m.Types.Get(ebm.Ref(ref))
}

func (m *Module) GetStatement(ref ebm.StatementRef) (ebm.Statement, bool) {
	return m.Statements.Get(ebm.Ref(ref))
}

func (m *Module) GetExpression(ref ebm.ExpressionRef) (ebm.Expression, bool) {
	return m.Expressions.Get(ebm.Ref(ref))
}

func (m *Module) GetIdentifier(ref ebm.IdentifierRef) (Identifier, bool) {
	return m.Identifiers.Get(ebm.Ref(ref))
}

func (m *Module) GetString(ref ebm.StringRef) (String, bool) {
	return m.Strings.Get(ebm.Ref(ref))
}

// InverseRef records one use edge: holder -> target.
type InverseRef struct {
	HolderKind ebm.AliasKind
	Holder     ebm.Ref
	FieldName  string
	Target     ebm.Ref
	TargetKind ebm.AliasKind
}

// BuildInverseRefs enumerates every use edge in the module by one pass
// over the three ref-holding arenas (types, statements, expressions),
// using each body's Visit method — no hardcoded field names.
func (m *Module) BuildInverseRefs() []InverseRef {
	var out []InverseRef

	for _, e := range m.Types.Entries() {
		out = append(out, collectInverse(ebm.AliasType, e.ID, &e.Body)...)
	}

	for _, e := range m.Statements.Entries() {
		out = append(out, collectInverse(ebm.AliasStatement, e.ID, &e.Body)...)
	}

	for _, e := range m.Expressions.Entries() {
		out = append(out, collectInverse(ebm.AliasExpression, e.ID, &e.Body)...)
	}

	return out
}

func collectInverse(holderKind ebm.AliasKind, holder ebm.Ref, body ebm.Visitable) []InverseRef {
	var out []InverseRef

	body.Visit(inverseCollector{holderKind: holderKind, holder: holder, out: &out})

	return out
}

// inverseCollector adapts FieldVisitor to append InverseRef entries; it
// does not classify a target ref's arena kind because a bare Ref carries
// no kind tag of its own — callers that need it resolve by field name or
// by probing each arena's Get.
type inverseCollector struct {
	holderKind ebm.AliasKind
	holder     ebm.Ref
	out        *[]InverseRef
}

func (c inverseCollector) Value(name string, ref ebm.Ref) {
	if ref.IsNil() {
		return
	}

	*c.out = append(*c.out, InverseRef{HolderKind: c.holderKind, Holder: c.holder, FieldName: name, Target: ref})
}

func (c inverseCollector) Container(name string, refs []ebm.Ref) {
	for i, ref := range refs {
		if ref.IsNil() {
			continue
		}

		*c.out = append(*c.out, InverseRef{HolderKind: c.holderKind, Holder: c.holder, FieldName: fmt.Sprintf("%s[%d]", name, i), Target: ref})
	}
}

func (c inverseCollector) Nested(name string, body ebm.Visitable) {
	if body == nil {
		return
	}

	body.Visit(c)
}

// Finalize calls Finalize on every repository and recomputes MaxID.
func (m *Module) Finalize() {
	m.Identifiers.Finalize()
	m.Strings.Finalize()
	m.Types.Finalize()
	m.Statements.Finalize()
	m.Expressions.Finalize()

	var maxID ebm.Ref

	for _, e := range m.Types.Entries() {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	for _, e := range m.Statements.Entries() {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	for _, e := range m.Expressions.Entries() {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	for _, e := range m.Identifiers.Entries() {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	for _, e := range m.Strings.Entries() {
		if e.ID > maxID {
			maxID = e.ID
		}
	}

	m.MaxID = maxID
}

// SortedAliasPairs returns a repository's alias table as a deterministic,
// from-ascending slice — serialization and testing both need stable
// iteration order.
func SortedAliasPairs(aliases map[ebm.Ref]ebm.Ref) [][2]ebm.Ref {
	pairs := make([][2]ebm.Ref, 0, len(aliases))
	for from, to := range aliases {
		pairs = append(pairs, [2]ebm.Ref{from, to})
	}

	sort.Slice(pairs, func(i, j int) bool { return pairs[i][0] < pairs[j][0] })

	return pairs
}
