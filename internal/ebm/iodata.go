package ebm

// SizeUnit names the unit an IOSize's value is measured in.
type SizeUnit uint16

const (
	BIT_FIXED SizeUnit = iota
	BYTE_FIXED
	BIT_DYNAMIC
	BYTE_DYNAMIC
	ELEMENT_FIXED
	ELEMENT_DYNAMIC
	DYNAMIC
	UNKNOWN_SIZE
)

func (u SizeUnit) String() string {
	switch u {
	case BIT_FIXED:
		return "BIT_FIXED"
	case BYTE_FIXED:
		return "BYTE_FIXED"
	case BIT_DYNAMIC:
		return "BIT_DYNAMIC"
	case BYTE_DYNAMIC:
		return "BYTE_DYNAMIC"
	case ELEMENT_FIXED:
		return "ELEMENT_FIXED"
	case ELEMENT_DYNAMIC:
		return "ELEMENT_DYNAMIC"
	case DYNAMIC:
		return "DYNAMIC"
	default:
		return "UNKNOWN"
	}
}

// IOSize is the size field of an IOData: either a compile-time literal
// (fixed units) or a live expression (dynamic units).
type IOSize struct {
	Unit    SizeUnit
	Literal uint64
	Expr    ExpressionRef // valid when Unit is one of the *_DYNAMIC/DYNAMIC forms
}

// IsFixed reports whether Literal (rather than Expr) holds the size.
func (s IOSize) IsFixed() bool {
	switch s.Unit {
	case BIT_FIXED, BYTE_FIXED, ELEMENT_FIXED:
		return true
	default:
		return false
	}
}

// Endian names the byte order an IOData's read/write uses.
type Endian int

const (
	EndianNative Endian = iota
	EndianLittle
	EndianBig
	EndianDynamic
)

func (e Endian) String() string {
	switch e {
	case EndianLittle:
		return "little"
	case EndianBig:
		return "big"
	case EndianDynamic:
		return "dynamic"
	default:
		return "native"
	}
}

// IOAttribute carries the endian/sign/peek/lowered-state flags of an
// IOData.
type IOAttribute struct {
	Endian              Endian
	Signed              bool
	Peek                bool
	HasLoweredStatement bool
	DynamicEndianExpr   ExpressionRef // valid when Endian == EndianDynamic
}

// IOData is attached to READ_DATA/WRITE_DATA statements and expressions:
// it fully describes one I/O operation against a stream.
type IOData struct {
	IORef           ExpressionRef // the stream identifier this I/O acts on
	Field           StatementRef  // originating FIELD_DECL, or NilRef
	Target          ExpressionRef // expression operated upon
	DataType        TypeRef
	Attribute       IOAttribute
	Size            IOSize
	LoweredStatement StatementRef // optional more-primitive form
}

func (io *IOData) Visit(v FieldVisitor) {
	v.Value("io_ref", Ref(io.IORef))
	v.Value("field", Ref(io.Field))
	v.Value("target", Ref(io.Target))
	v.Value("data_type", Ref(io.DataType))

	if io.Attribute.Endian == EndianDynamic {
		v.Value("attribute.dynamic_endian_expr", Ref(io.Attribute.DynamicEndianExpr))
	}

	if !io.Size.IsFixed() {
		v.Value("size.expr", Ref(io.Size.Expr))
	}

	if io.Attribute.HasLoweredStatement {
		v.Value("lowered_statement", Ref(io.LoweredStatement))
	}
}
