package srcast

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/position"
)

// Ident is a reference to a previously declared name (field, state var,
// function, enum member, ...).
type Ident struct {
	Span position.Span
	Name string
}

func (e *Ident) GetSpan() position.Span      { return e.Span }
func (e *Ident) Accept(v Visitor) interface{} { return v.VisitIdent(e) }
func (e *Ident) String() string               { return e.Name }
func (*Ident) expressionNode()                {}

// IntLiteral is an integer constant.
type IntLiteral struct {
	Span  position.Span
	Value uint64
	Neg   bool
}

func (e *IntLiteral) GetSpan() position.Span      { return e.Span }
func (e *IntLiteral) Accept(v Visitor) interface{} { return v.VisitIntLiteral(e) }
func (e *IntLiteral) String() string               { return fmt.Sprintf("%d", e.Value) }
func (*IntLiteral) expressionNode()                {}

// StrLiteral is a (base64-decoded) byte-string constant.
type StrLiteral struct {
	Span  position.Span
	Bytes []byte
}

func (e *StrLiteral) GetSpan() position.Span      { return e.Span }
func (e *StrLiteral) Accept(v Visitor) interface{} { return v.VisitStrLiteral(e) }
func (e *StrLiteral) String() string               { return fmt.Sprintf("%q", string(e.Bytes)) }
func (*StrLiteral) expressionNode()                {}

// BoolLiteral is a true/false constant.
type BoolLiteral struct {
	Span  position.Span
	Value bool
}

func (e *BoolLiteral) GetSpan() position.Span      { return e.Span }
func (e *BoolLiteral) Accept(v Visitor) interface{} { return v.VisitBoolLiteral(e) }
func (e *BoolLiteral) String() string               { return fmt.Sprintf("%t", e.Value) }
func (*BoolLiteral) expressionNode()                {}

// TypeLiteral wraps a Type used in expression position (sizeof-like ops).
type TypeLiteral struct {
	Span position.Span
	Type Type
}

func (e *TypeLiteral) GetSpan() position.Span      { return e.Span }
func (e *TypeLiteral) Accept(v Visitor) interface{} { return v.VisitTypeLiteral(e) }
func (e *TypeLiteral) String() string               { return e.Type.String() }
func (*TypeLiteral) expressionNode()                {}

// BinaryOp enumerates source-level binary operators.
type BinaryOp int

const (
	OpAdd BinaryOp = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNe
	OpLt
	OpLe
	OpGt
	OpGe
	OpLogAnd
	OpLogOr
	OpBitAnd
	OpBitOr
	OpBitXor
	OpShl
	OpShr
	OpRangeExclusive // a..b
	OpRangeInclusive // a..=b
)

// Binary is a two-operand expression.
type Binary struct {
	Span  position.Span
	Op    BinaryOp
	Left  Expression
	Right Expression
}

func (e *Binary) GetSpan() position.Span      { return e.Span }
func (e *Binary) Accept(v Visitor) interface{} { return v.VisitBinary(e) }
func (e *Binary) String() string               { return fmt.Sprintf("(%s op %s)", e.Left, e.Right) }
func (*Binary) expressionNode()                {}

// UnaryOp enumerates the two source-level unary operators in scope
// (logical-not and arithmetic minus-sign).
type UnaryOp int

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Unary is a single-operand expression.
type Unary struct {
	Span    position.Span
	Op      UnaryOp
	Operand Expression
}

func (e *Unary) GetSpan() position.Span      { return e.Span }
func (e *Unary) Accept(v Visitor) interface{} { return v.VisitUnary(e) }
func (e *Unary) String() string               { return fmt.Sprintf("(op %s)", e.Operand) }
func (*Unary) expressionNode()                {}

// Cast converts Expression's value to TargetType.
type Cast struct {
	Span       position.Span
	Expression Expression
	TargetType Type
}

func (e *Cast) GetSpan() position.Span      { return e.Span }
func (e *Cast) Accept(v Visitor) interface{} { return v.VisitCast(e) }
func (e *Cast) String() string               { return fmt.Sprintf("(%s as %s)", e.Expression, e.TargetType) }
func (*Cast) expressionNode()                {}

// Index is an array/vector element access.
type Index struct {
	Span  position.Span
	Base  Expression
	Index Expression
}

func (e *Index) GetSpan() position.Span      { return e.Span }
func (e *Index) Accept(v Visitor) interface{} { return v.VisitIndex(e) }
func (e *Index) String() string               { return fmt.Sprintf("%s[%s]", e.Base, e.Index) }
func (*Index) expressionNode()                {}

// MemberAccess is a `.field` access, including union-property accesses.
type MemberAccess struct {
	Span   position.Span
	Base   Expression
	Member string
}

func (e *MemberAccess) GetSpan() position.Span      { return e.Span }
func (e *MemberAccess) Accept(v Visitor) interface{} { return v.VisitMemberAccess(e) }
func (e *MemberAccess) String() string               { return fmt.Sprintf("%s.%s", e.Base, e.Member) }
func (*MemberAccess) expressionNode()                {}

// Range is a range expression (used both as a value and as an array length).
type Range struct {
	Span      position.Span
	Low       Expression // nil means open-below
	High      Expression // nil means open-above
	Inclusive bool
}

func (e *Range) GetSpan() position.Span      { return e.Span }
func (e *Range) Accept(v Visitor) interface{} { return v.VisitRange(e) }
func (e *Range) String() string               { return "range" }
func (*Range) expressionNode()                {}

// IOMethod enumerates the stream-introspection methods the converter
// recognizes; input_peek/input_subrange/input_get/output_put are
// reserved for transform-stage lowering and are not converted directly.
type IOMethod int

const (
	IOInputOffset IOMethod = iota
	IOInputBitOffset
	IOInputRemain
	IOInputPeek
	IOInputSubrange
	IOInputGet
	IOOutputPut
)

// IOOperation is a call to one of the stream's built-in introspection
// methods (as opposed to a field's generated encode/decode, which the
// converter synthesizes itself).
type IOOperation struct {
	Span   position.Span
	Method IOMethod
	Stream Expression
	Args   []Expression
}

func (e *IOOperation) GetSpan() position.Span      { return e.Span }
func (e *IOOperation) Accept(v Visitor) interface{} { return v.VisitIOOperation(e) }
func (e *IOOperation) String() string               { return fmt.Sprintf("io.%d(...)", e.Method) }
func (*IOOperation) expressionNode()                {}

// Call is a user function invocation.
type Call struct {
	Span     position.Span
	Callee   Expression
	Args     []Expression
}

func (e *Call) GetSpan() position.Span      { return e.Span }
func (e *Call) Accept(v Visitor) interface{} { return v.VisitCall(e) }
func (e *Call) String() string               { return fmt.Sprintf("%s(...)", e.Callee) }
func (*Call) expressionNode()                {}
