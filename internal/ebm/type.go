package ebm

// TypeKind discriminates a Type body's meaningful fields.
type TypeKind uint16

const (
	INT TypeKind = iota
	UINT
	USIZE
	FLOAT
	BOOL
	VOID
	META
	ENUM
	STRUCT
	RECURSIVE_STRUCT
	ARRAY
	VECTOR
	VARIANT
	RANGE
	FUNCTION
	ENCODER_INPUT
	DECODER_INPUT
	ENCODER_RETURN
	DECODER_RETURN
	PROPERTY_SETTER_RETURN
	OPTIONAL
	PTR
)

func (k TypeKind) String() string {
	switch k {
	case INT:
		return "INT"
	case UINT:
		return "UINT"
	case USIZE:
		return "USIZE"
	case FLOAT:
		return "FLOAT"
	case BOOL:
		return "BOOL"
	case VOID:
		return "VOID"
	case META:
		return "META"
	case ENUM:
		return "ENUM"
	case STRUCT:
		return "STRUCT"
	case RECURSIVE_STRUCT:
		return "RECURSIVE_STRUCT"
	case ARRAY:
		return "ARRAY"
	case VECTOR:
		return "VECTOR"
	case VARIANT:
		return "VARIANT"
	case RANGE:
		return "RANGE"
	case FUNCTION:
		return "FUNCTION"
	case ENCODER_INPUT:
		return "ENCODER_INPUT"
	case DECODER_INPUT:
		return "DECODER_INPUT"
	case ENCODER_RETURN:
		return "ENCODER_RETURN"
	case DECODER_RETURN:
		return "DECODER_RETURN"
	case PROPERTY_SETTER_RETURN:
		return "PROPERTY_SETTER_RETURN"
	case OPTIONAL:
		return "OPTIONAL"
	case PTR:
		return "PTR"
	default:
		return "UNKNOWN_TYPE_KIND"
	}
}

// Type is the tagged-union body stored in the types arena. Only the
// fields meaningful for Kind are populated; the zero value of every other
// field is ignored by Visit, Encode, and Decode.
type Type struct {
	Kind TypeKind

	Size uint64 // INT/UINT/FLOAT: bit width

	ID TypeRef // ENUM/STRUCT/RECURSIVE_STRUCT: the decl this type names

	BaseType TypeRef // ENUM: underlying integer type; RANGE: range's base; OPTIONAL/PTR: inner/pointee

	Element TypeRef // ARRAY/VECTOR: element type
	Length  uint64  // ARRAY: literal element count

	CommonType   TypeRef   // VARIANT: common super-type, nil if UNCOMMON
	MemberTypes  []TypeRef // VARIANT: the member types
	RelatedField StatementRef // VARIANT: the discriminating field decl, if any

	Params     []TypeRef // FUNCTION: parameter types
	ReturnType TypeRef   // FUNCTION: return type
}

// Inner is the OPTIONAL/PTR payload type; it is just BaseType under a
// name matching the data model's own vocabulary for those two kinds.
func (t *Type) Inner() TypeRef { return t.BaseType }

func (t *Type) Visit(v FieldVisitor) {
	switch t.Kind {
	case ENUM:
		v.Value("id", Ref(t.ID))
		v.Value("base_type", Ref(t.BaseType))
	case STRUCT, RECURSIVE_STRUCT:
		v.Value("id", Ref(t.ID))
	case ARRAY, VECTOR:
		v.Value("element", Ref(t.Element))
	case VARIANT:
		v.Value("common_type", Ref(t.CommonType))
		refs := make([]Ref, len(t.MemberTypes))
		for i, m := range t.MemberTypes {
			refs[i] = Ref(m)
		}
		v.Container("member_types", refs)
		v.Value("related_field", Ref(t.RelatedField))
	case RANGE:
		v.Value("base_type", Ref(t.BaseType))
	case FUNCTION:
		refs := make([]Ref, len(t.Params))
		for i, p := range t.Params {
			refs[i] = Ref(p)
		}
		v.Container("params", refs)
		v.Value("return_type", Ref(t.ReturnType))
	case OPTIONAL, PTR:
		v.Value("inner", Ref(t.BaseType))
	}
}
