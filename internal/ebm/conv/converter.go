// Package conv implements the deterministic AST-to-EBM converter:
// type conversion, expression conversion, statement conversion
// (including loop lowering and the eager encoder/decoder pair),
// per-field encode/decode lowering, and union-to-property derivation.
package conv

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// GenerateMode is the converter's "current generate type" scoped state:
// which of a struct's three bodies (plain field decls,
// encoder, decoder) is currently being produced.
type GenerateMode int

const (
	ModeNormal GenerateMode = iota
	ModeEncode
	ModeDecode
)

// scope is one lexical level of name bindings (fields, state vars,
// parameters, loop item variables) visible to IDENTIFIER resolution.
type scope struct {
	names  map[string]ebm.StatementRef
	parent *scope
}

func newScope(parent *scope) *scope {
	return &scope{names: make(map[string]ebm.StatementRef), parent: parent}
}

func (s *scope) lookup(name string) (ebm.StatementRef, bool) {
	for cur := s; cur != nil; cur = cur.parent {
		if ref, ok := cur.names[name]; ok {
			return ref, true
		}
	}

	return 0, false
}

func (s *scope) bind(name string, ref ebm.StatementRef) {
	s.names[name] = ref
}

// Converter holds all scoped mutable state threaded through conversion:
// the module being built, the visited-node cache, the name-binding
// scope stack, the current generate mode, and the current coder's stream
// identifier (io_ref) when inside an encoder/decoder body.
type Converter struct {
	Mod *arena.Module

	visited map[srcast.Node]ebm.StatementRef
	typeCache map[srcast.Type]ebm.TypeRef

	// fieldAST maps each emitted FIELD_DECL back to its source node, so
	// the encode/decode lowering can read the declaration details
	// (endianness, array length kind, terminators) the EBM field body
	// does not carry.
	fieldAST map[ebm.StatementRef]*srcast.FieldDecl

	scope *scope
	mode  GenerateMode

	// currentStream is the IDENTIFIER expression ref for the active
	// encoder/decoder's stream parameter; set by convertCoderBody and
	// restored (RAII-guard style) on return.
	currentStream ebm.ExpressionRef

	// currentLoop is the StatementRef of the innermost LOOP_STATEMENT,
	// used by BREAK/CONTINUE's related_loop field.
	currentLoop ebm.StatementRef

	primitiveCache map[primitiveKey]ebm.TypeRef
}

type primitiveKey struct {
	kind   ebm.TypeKind
	size   uint64
	signed bool
}

// New constructs a Converter writing into a fresh module.
func New() *Converter {
	return &Converter{
		Mod:            arena.NewModule(),
		visited:        make(map[srcast.Node]ebm.StatementRef),
		typeCache:      make(map[srcast.Type]ebm.TypeRef),
		fieldAST:       make(map[ebm.StatementRef]*srcast.FieldDecl),
		scope:          newScope(nil),
		primitiveCache: make(map[primitiveKey]ebm.TypeRef),
	}
}

// pushScope/popScope implement the guarded-swap scoping pattern:
// saved on entry, restored on every exit path including errors,
// because the caller always does `defer c.popScope()` immediately after.
func (c *Converter) pushScope() {
	c.scope = newScope(c.scope)
}

func (c *Converter) popScope() {
	if c.scope.parent != nil {
		c.scope = c.scope.parent
	}
}

// withMode runs fn with mode active, restoring the prior mode afterward
// regardless of how fn returns.
func (c *Converter) withMode(mode GenerateMode, fn func() error) error {
	prev := c.mode
	c.mode = mode

	defer func() { c.mode = prev }()

	return fn()
}

// ConvertProgram is the converter's entry point: it produces the
// module's PROGRAM_DECL at the reserved EntryRef (id 1) and
// converts every top-level format.
func ConvertProgram(prog *srcast.Program) (*arena.Module, error) {
	c := New()

	// The arena hands out fresh ids starting at 2 (0 and 1 are reserved); the entry point is written directly under id 1 via
	// add_with_id rather than through the normal id-allocating path.
	var formatRefs []ebm.StatementRef

	for _, imp := range prog.Imports {
		ref, err := c.convertImport(imp)
		if err != nil {
			return nil, err
		}

		formatRefs = append(formatRefs, ref)
	}

	for _, f := range prog.Formats {
		ref, err := c.convertFormat(f)
		if err != nil {
			return nil, err
		}

		formatRefs = append(formatRefs, ref)
	}

	if err := c.Mod.AddStatementWithID(ebm.StatementRef(ebm.EntryRef), ebm.Statement{
		Kind:  ebm.PROGRAM_DECL,
		Items: formatRefs,
	}); err != nil {
		return nil, errors.NewStandardError(errors.CategoryInternal, "EBM0001", fmt.Sprintf("entry point: %v", err), nil)
	}

	c.Mod.Finalize()

	return c.Mod, nil
}

func (c *Converter) convertImport(imp *srcast.Import) (ebm.StatementRef, error) {
	alias := c.Mod.AddIdentifier(imp.Alias)
	path := c.Mod.AddString([]byte(imp.ModulePath))
	constraint := c.Mod.AddString([]byte(imp.Constraint))

	return c.Mod.AddStatement(ebm.Statement{
		Kind: ebm.IMPORT_MODULE,
		Name: alias,
		Str:  path,
		Str2: constraint,
	}), nil
}

// internedInt returns (caching across calls) the TypeRef for an N-bit
// integer type of the given signedness/kind, used whenever the converter
// needs a primitive type that wasn't present verbatim in the source AST
// (buffer element types, cast targets, counter-loop variables).
func (c *Converter) internedInt(kind ebm.TypeKind, bits uint64, signed bool) ebm.TypeRef {
	key := primitiveKey{kind: kind, size: bits, signed: signed}
	if ref, ok := c.primitiveCache[key]; ok {
		return ref
	}

	ref := c.Mod.AddType(ebm.Type{Kind: kind, Size: bits})
	c.primitiveCache[key] = ref

	return ref
}
