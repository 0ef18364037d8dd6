package ebm

// ExpressionKind discriminates an Expression body's meaningful fields
//.
type ExpressionKind uint16

const (
	LITERAL_INT ExpressionKind = iota
	LITERAL_BOOL
	LITERAL_STRING
	LITERAL_TYPE
	IDENTIFIER
	BINARY_OP
	UNARY_OP
	INDEX_ACCESS
	MEMBER_ACCESS
	TYPE_CAST
	RANGE_EXPR
	CALL
	ARRAY_SIZE
	MAX_VALUE
	DEFAULT_VALUE
	IS_LITTLE_ENDIAN
	IS_ERROR
	GET_STREAM_OFFSET
	GET_REMAINING_BYTES
	CAN_READ_STREAM
	NEW_OBJECT
	READ_DATA_EXPR
	WRITE_DATA_EXPR
	CONDITIONAL_STATEMENT
	ADDRESSOF
	OPTIONALOF
	SETTER_STATUS_EXPR
	OR_COND
)

func (k ExpressionKind) String() string {
	names := [...]string{
		"LITERAL_INT", "LITERAL_BOOL", "LITERAL_STRING", "LITERAL_TYPE", "IDENTIFIER",
		"BINARY_OP", "UNARY_OP", "INDEX_ACCESS", "MEMBER_ACCESS", "TYPE_CAST",
		"RANGE", "CALL", "ARRAY_SIZE", "MAX_VALUE", "DEFAULT_VALUE",
		"IS_LITTLE_ENDIAN", "IS_ERROR", "GET_STREAM_OFFSET", "GET_REMAINING_BYTES", "CAN_READ_STREAM",
		"NEW_OBJECT", "READ_DATA", "WRITE_DATA", "CONDITIONAL_STATEMENT", "ADDRESSOF",
		"OPTIONALOF", "SETTER_STATUS", "OR_COND",
	}
	if int(k) < len(names) {
		return names[k]
	}

	return "UNKNOWN_EXPRESSION_KIND"
}

// BinaryOp enumerates EBM binary operators (a strict superset is not
// needed: define_assign/const_assign are statements, never expressions).
type BinaryOp uint16

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
)

// UnaryOp enumerates EBM unary operators: logical-not and minus-sign only.
type UnaryOp uint16

const (
	OpNot UnaryOp = iota
	OpNeg
)

// Expression is the tagged-union body stored in the expressions arena.
// Every expression records its own Type (the converter must set it for
// every expression it emits).
type Expression struct {
	Kind ExpressionKind
	Type TypeRef

	IntValue  uint64 // LITERAL_INT
	BoolValue bool   // LITERAL_BOOL
	StrValue  StringRef
	TypeValue TypeRef // LITERAL_TYPE/ARRAY_SIZE target/MAX_VALUE target/DEFAULT_VALUE target/NEW_OBJECT

	Ident StatementRef // IDENTIFIER: refers to a statement decl

	BinOp BinaryOp
	Left  ExpressionRef
	Right ExpressionRef

	UnOp    UnaryOp
	Operand ExpressionRef

	Base  ExpressionRef // INDEX_ACCESS/MEMBER_ACCESS/ARRAY_SIZE/ADDRESSOF/OPTIONALOF
	Index ExpressionRef // INDEX_ACCESS

	Member StringRef // MEMBER_ACCESS

	CastKind CastKind // TYPE_CAST
	Source   ExpressionRef

	Low       ExpressionRef // RANGE
	High      ExpressionRef // RANGE
	Inclusive bool          // RANGE

	Callee ExpressionRef   // CALL
	Args   []ExpressionRef // CALL

	Unit IOSize // GET_STREAM_OFFSET(unit)

	Stream ExpressionRef // GET_STREAM_OFFSET/GET_REMAINING_BYTES/CAN_READ_STREAM/READ_DATA_EXPR/WRITE_DATA_EXPR
	Amount ExpressionRef // CAN_READ_STREAM: number of bytes

	IO IOData // READ_DATA_EXPR/WRITE_DATA_EXPR: the bundled I/O descriptor
	Setup StatementRef // READ_DATA_EXPR/WRITE_DATA_EXPR: a setup statement run before the I/O

	Cond      ExpressionRef   // CONDITIONAL_STATEMENT/ADDRESSOF target selector
	Statement StatementRef    // CONDITIONAL_STATEMENT: the statement producing this expression's value
	Terms     []ExpressionRef // OR_COND: N-way OR of conditions

	Status SetterStatus // SETTER_STATUS_EXPR
}

func (e *Expression) Visit(v FieldVisitor) {
	v.Value("type", Ref(e.Type))

	switch e.Kind {
	case LITERAL_STRING:
		v.Value("str_value", Ref(e.StrValue))
	case LITERAL_TYPE:
		v.Value("type_value", Ref(e.TypeValue))
	case IDENTIFIER:
		v.Value("ident", Ref(e.Ident))
	case BINARY_OP:
		v.Value("left", Ref(e.Left))
		v.Value("right", Ref(e.Right))
	case UNARY_OP, IS_ERROR:
		v.Value("operand", Ref(e.Operand))
	case INDEX_ACCESS:
		v.Value("base", Ref(e.Base))
		v.Value("index", Ref(e.Index))
	case MEMBER_ACCESS:
		v.Value("base", Ref(e.Base))
		v.Value("member", Ref(e.Member))
	case TYPE_CAST:
		v.Value("source", Ref(e.Source))
	case RANGE_EXPR:
		v.Value("low", Ref(e.Low))
		v.Value("high", Ref(e.High))
	case CALL:
		v.Value("callee", Ref(e.Callee))
		refs := make([]Ref, len(e.Args))
		for i, a := range e.Args {
			refs[i] = Ref(a)
		}

		v.Container("args", refs)
	case ARRAY_SIZE, ADDRESSOF, OPTIONALOF:
		v.Value("base", Ref(e.Base))
	case MAX_VALUE, DEFAULT_VALUE, NEW_OBJECT:
		v.Value("type_value", Ref(e.TypeValue))
	case GET_STREAM_OFFSET, GET_REMAINING_BYTES:
		v.Value("stream", Ref(e.Stream))
	case CAN_READ_STREAM:
		v.Value("stream", Ref(e.Stream))
		v.Value("amount", Ref(e.Amount))
	case IS_LITTLE_ENDIAN:
		v.Value("stream", Ref(e.Stream))
	case READ_DATA_EXPR, WRITE_DATA_EXPR:
		v.Value("setup", Ref(e.Setup))
		v.Nested("io", &e.IO)
	case CONDITIONAL_STATEMENT:
		v.Value("cond", Ref(e.Cond))
		v.Value("statement", Ref(e.Statement))
	case OR_COND:
		refs := make([]Ref, len(e.Terms))
		for i, t := range e.Terms {
			refs[i] = Ref(t)
		}

		v.Container("terms", refs)
	}
}
