package srcast

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/position"
)

// Endian names the byte order a field's encode/decode uses.
type Endian int

const (
	EndianNative Endian = iota
	EndianLittle
	EndianBig
	EndianDynamic // resolved at runtime via a live expression
)

// IntType is a fixed-width integer type (signed or unsigned).
type IntType struct {
	Span     position.Span
	Bits     int
	Signed   bool
	Endian   Endian
	EndianOf Expression // only set when Endian == EndianDynamic
}

func (t *IntType) GetSpan() position.Span      { return t.Span }
func (t *IntType) Accept(v Visitor) interface{} { return v.VisitIntType(t) }
func (t *IntType) String() string {
	if t.Signed {
		return fmt.Sprintf("s%d", t.Bits)
	}
	return fmt.Sprintf("u%d", t.Bits)
}
func (*IntType) typeNode() {}

// FloatType is an IEEE-754 floating point type.
type FloatType struct {
	Span   position.Span
	Bits   int
	Endian Endian
}

func (t *FloatType) GetSpan() position.Span      { return t.Span }
func (t *FloatType) Accept(v Visitor) interface{} { return v.VisitFloatType(t) }
func (t *FloatType) String() string               { return fmt.Sprintf("f%d", t.Bits) }
func (*FloatType) typeNode()                      {}

// BoolType is a single-bit boolean.
type BoolType struct{ Span position.Span }

func (t *BoolType) GetSpan() position.Span      { return t.Span }
func (t *BoolType) Accept(v Visitor) interface{} { return v.VisitBoolType(t) }
func (t *BoolType) String() string               { return "bool" }
func (*BoolType) typeNode()                      {}

// IdentType is a reference to another named type (an alias or a format name).
type IdentType struct {
	Span position.Span
	Name string
	Base Type // resolved base type, nil until bound
}

func (t *IdentType) GetSpan() position.Span      { return t.Span }
func (t *IdentType) Accept(v Visitor) interface{} { return v.VisitIdentType(t) }
func (t *IdentType) String() string               { return t.Name }
func (*IdentType) typeNode()                      {}

// ArrayLenKind distinguishes the four ways an array/vector's length may be
// specified in source.
type ArrayLenKind int

const (
	ArrayLenLiteral  ArrayLenKind = iota // fixed, compile-time-known count
	ArrayLenField                       // length given by another integer field
	ArrayLenAlign                       // length computed as alignment padding
	ArrayLenOpen                        // ".." — open, lowered by the encode/decode rules
)

// ArrayType is a fixed- or variable-length sequence of Element.
type ArrayType struct {
	Span          position.Span
	Element       Type
	LenKind       ArrayLenKind
	Literal       uint64     // valid when LenKind == ArrayLenLiteral
	LengthField   Expression // valid when LenKind == ArrayLenField
	AlignBytes    uint64     // valid when LenKind == ArrayLenAlign
	FollowToEnd   bool       // open array reads until end-of-stream
	Terminator    Expression // open array reads until this literal value is peeked
	TailSizeBytes uint64     // open array with fixed-size trailing data after it
}

func (t *ArrayType) GetSpan() position.Span      { return t.Span }
func (t *ArrayType) Accept(v Visitor) interface{} { return v.VisitArrayType(t) }
func (t *ArrayType) String() string               { return fmt.Sprintf("[%s]", t.Element.String()) }
func (*ArrayType) typeNode()                      {}

// StructType refers to a single Format as a field's type.
type StructType struct {
	Span   position.Span
	Format *Format
}

func (t *StructType) GetSpan() position.Span      { return t.Span }
func (t *StructType) Accept(v Visitor) interface{} { return v.VisitStructType(t) }
func (t *StructType) String() string               { return t.Format.Name }
func (*StructType) typeNode()                      {}

// UnionCandidate is one arm of a UnionType: an optional runtime condition
// guarding a field whose type is Type.
type UnionCandidate struct {
	Span      position.Span
	Cond      Expression // nil means "no condition" (always matches, if reached)
	FieldName string
	Type      Type
}

// UnionType is a discriminated union over several candidate field types,
// each reachable from a mutually exclusive runtime condition.
type UnionType struct {
	Span       position.Span
	Candidates []UnionCandidate
}

func (t *UnionType) GetSpan() position.Span      { return t.Span }
func (t *UnionType) Accept(v Visitor) interface{} { return v.VisitUnionType(t) }
func (t *UnionType) String() string               { return fmt.Sprintf("union{%d}", len(t.Candidates)) }
func (*UnionType) typeNode()                      {}

// EnumMember is a single named constant of an EnumType.
type EnumMember struct {
	Span  position.Span
	Name  string
	Value Expression // literal initializer, may be nil (auto-numbered)
}

// EnumType is a named set of integer constants sharing a base integer type.
type EnumType struct {
	Span    position.Span
	Name    string
	Base    Type // integer base type
	Members []EnumMember
}

func (t *EnumType) GetSpan() position.Span      { return t.Span }
func (t *EnumType) Accept(v Visitor) interface{} { return v.VisitEnumType(t) }
func (t *EnumType) String() string               { return t.Name }
func (*EnumType) typeNode()                      {}

// StrLiteralType is a fixed byte sequence given as a (base64-decoded in the
// wire AST) string literal, used for magic numbers / fixed tags.
type StrLiteralType struct {
	Span  position.Span
	Bytes []byte
}

func (t *StrLiteralType) GetSpan() position.Span      { return t.Span }
func (t *StrLiteralType) Accept(v Visitor) interface{} { return v.VisitStrLiteralType(t) }
func (t *StrLiteralType) String() string               { return fmt.Sprintf("%q", string(t.Bytes)) }
func (*StrLiteralType) typeNode()                      {}

// RangeType is the type of a Range expression used as a loop collection or
// field constraint (e.g. 0..10).
type RangeType struct {
	Span position.Span
	Base Type // nil means an open/untyped range
}

func (t *RangeType) GetSpan() position.Span      { return t.Span }
func (t *RangeType) Accept(v Visitor) interface{} { return v.VisitRangeType(t) }
func (t *RangeType) String() string               { return "range" }
func (*RangeType) typeNode()                      {}

// FunctionType is the type of a Function value (used for casts to function
// pointers and for encoder/decoder signatures).
type FunctionType struct {
	Span       position.Span
	Params     []Type
	ReturnType Type
}

func (t *FunctionType) GetSpan() position.Span      { return t.Span }
func (t *FunctionType) Accept(v Visitor) interface{} { return v.VisitFunctionType(t) }
func (t *FunctionType) String() string               { return "fn(...)" }
func (*FunctionType) typeNode()                      {}
