// Package srcast defines the upstream source AST that the EBM converter
// consumes. The parser that produces this tree lives outside this module;
// srcast only describes the shape of its output (and how to load it from
// the JSON form the parser emits).
package srcast

import (
	"fmt"
	"strings"

	"github.com/orizon-lang/ebmc/internal/position"
)

// Node is the base interface for all source AST nodes.
type Node interface {
	GetSpan() position.Span
	String() string
	Accept(visitor Visitor) interface{}
}

// Statement marks statement-shaped nodes (if/loop/match/return/field decls/...).
type Statement interface {
	Node
	statementNode()
}

// Expression marks expression-shaped nodes.
type Expression interface {
	Node
	expressionNode()
}

// Type marks type-shaped nodes.
type Type interface {
	Node
	typeNode()
}

// Program is the root of a parsed format-specification file.
type Program struct {
	Span    position.Span
	Formats []*Format
	Imports []*Import
}

func (p *Program) GetSpan() position.Span        { return p.Span }
func (p *Program) Accept(v Visitor) interface{}   { return v.VisitProgram(p) }
func (p *Program) String() string {
	var parts []string
	for _, imp := range p.Imports {
		parts = append(parts, imp.String())
	}
	for _, f := range p.Formats {
		parts = append(parts, f.String())
	}
	return strings.Join(parts, "\n")
}

// Import names an external format module and an optional version constraint.
type Import struct {
	Span       position.Span
	ModulePath string
	Alias      string
	Constraint string // e.g. ">=1.2.0, <2.0.0"; empty means unconstrained
}

func (i *Import) GetSpan() position.Span      { return i.Span }
func (i *Import) Accept(v Visitor) interface{} { return v.VisitImport(i) }
func (i *Import) String() string {
	return fmt.Sprintf("import %q as %s", i.ModulePath, i.Alias)
}

// Format is a named wire-format declaration: the source-level analogue of
// a STRUCT_DECL plus its fields, nested enums/unions, and functions.
type Format struct {
	Span      position.Span
	Name      string
	Fields    []Statement // FieldDecl, CompositeFieldDecl-able groups, nested decls
	Functions []*Function
	State     []*StateVar
	IsUnion   bool     // true when Format is one branch of a struct-union
	Recursive bool     // self-referential struct
	Metadata  []*Metadata
}

func (f *Format) GetSpan() position.Span      { return f.Span }
func (f *Format) Accept(v Visitor) interface{} { return v.VisitFormat(f) }
func (f *Format) String() string               { return fmt.Sprintf("format %s { %d fields }", f.Name, len(f.Fields)) }

// StateVar is a persistent field on a Format used by encoder/decoder bodies
// across fields (the source-level analogue of a state variable parameter).
type StateVar struct {
	Span position.Span
	Name string
	Type Type
}

func (s *StateVar) GetSpan() position.Span      { return s.Span }
func (s *StateVar) Accept(v Visitor) interface{} { return v.VisitStateVar(s) }
func (s *StateVar) String() string               { return fmt.Sprintf("state %s", s.Name) }

// Function is a named, user-defined function attached to a Format.
type Function struct {
	Span       position.Span
	Name       string
	Parameters []*Parameter
	ReturnType Type
	Body       *IndentBlock
}

func (fn *Function) GetSpan() position.Span      { return fn.Span }
func (fn *Function) Accept(v Visitor) interface{} { return v.VisitFunction(fn) }
func (fn *Function) String() string               { return fmt.Sprintf("fn %s(%d params)", fn.Name, len(fn.Parameters)) }

// Parameter is a single function/encoder/decoder parameter.
type Parameter struct {
	Span position.Span
	Name string
	Type Type
}

func (p *Parameter) GetSpan() position.Span      { return p.Span }
func (p *Parameter) Accept(v Visitor) interface{} { return v.VisitParameter(p) }
func (p *Parameter) String() string               { return p.Name }

// Metadata attaches an arbitrary key/value annotation (import version
// constraints, alignment hints, endian hints, ...) to its owner node.
type Metadata struct {
	Span  position.Span
	Key   string
	Value string
}

func (m *Metadata) GetSpan() position.Span      { return m.Span }
func (m *Metadata) Accept(v Visitor) interface{} { return v.VisitMetadata(m) }
func (m *Metadata) String() string               { return fmt.Sprintf("%s=%s", m.Key, m.Value) }
