package ebm

// CastKind fully enumerates the cast kinds TYPE_CAST expressions may
// carry. The converter always picks the narrowest-correct kind;
// ties favor the no-op INT_TO_INT_SAME_SIZE when source and destination
// descriptors are otherwise identical.
type CastKind uint16

const (
	INT_TO_INT_SAME_SIZE CastKind = iota
	SMALL_INT_TO_LARGE_INT
	LARGE_INT_TO_SMALL_INT
	SIGNED_TO_UNSIGNED
	UNSIGNED_TO_SIGNED
	INT_TO_FLOAT_BIT
	FLOAT_TO_INT_BIT
	INT_TO_BOOL
	BOOL_TO_INT
	INT_TO_ENUM
	ENUM_TO_INT
	FUNCTION_CAST
	OTHER
)

func (k CastKind) String() string {
	switch k {
	case INT_TO_INT_SAME_SIZE:
		return "INT_TO_INT_SAME_SIZE"
	case SMALL_INT_TO_LARGE_INT:
		return "SMALL_INT_TO_LARGE_INT"
	case LARGE_INT_TO_SMALL_INT:
		return "LARGE_INT_TO_SMALL_INT"
	case SIGNED_TO_UNSIGNED:
		return "SIGNED_TO_UNSIGNED"
	case UNSIGNED_TO_SIGNED:
		return "UNSIGNED_TO_SIGNED"
	case INT_TO_FLOAT_BIT:
		return "INT_TO_FLOAT_BIT"
	case FLOAT_TO_INT_BIT:
		return "FLOAT_TO_INT_BIT"
	case INT_TO_BOOL:
		return "INT_TO_BOOL"
	case BOOL_TO_INT:
		return "BOOL_TO_INT"
	case INT_TO_ENUM:
		return "INT_TO_ENUM"
	case ENUM_TO_INT:
		return "ENUM_TO_INT"
	case FUNCTION_CAST:
		return "FUNCTION_CAST"
	default:
		return "OTHER"
	}
}

// TypeDescriptor is the narrow view of a Type the cast-kind inference
// rule and the common-type compatibility rule both need;
// callers build one from a resolved ebm.Type plus its arena lookups so
// neither rule has to thread a full *arena.Repository through itself.
type TypeDescriptor struct {
	Kind   TypeKind
	Bits   uint64 // INT/UINT/FLOAT
	Signed bool   // INT vs UINT
}

// InferCastKind picks the narrowest-correct cast between two descriptors.
func InferCastKind(from, to TypeDescriptor) CastKind {
	switch {
	case to.Kind == BOOL && isIntKind(from.Kind):
		return INT_TO_BOOL
	case from.Kind == BOOL && isIntKind(to.Kind):
		return BOOL_TO_INT
	case to.Kind == ENUM && isIntKind(from.Kind):
		return INT_TO_ENUM
	case from.Kind == ENUM && isIntKind(to.Kind):
		return ENUM_TO_INT
	case from.Kind == FLOAT && isIntKind(to.Kind):
		return FLOAT_TO_INT_BIT
	case to.Kind == FLOAT && isIntKind(from.Kind):
		return INT_TO_FLOAT_BIT
	case from.Kind == FUNCTION || to.Kind == FUNCTION:
		return FUNCTION_CAST
	case isIntKind(from.Kind) && isIntKind(to.Kind):
		switch {
		case from.Signed != to.Signed && from.Bits == to.Bits:
			if from.Signed {
				return SIGNED_TO_UNSIGNED
			}

			return UNSIGNED_TO_SIGNED
		case from.Bits < to.Bits:
			return SMALL_INT_TO_LARGE_INT
		case from.Bits > to.Bits:
			return LARGE_INT_TO_SMALL_INT
		default:
			return INT_TO_INT_SAME_SIZE
		}
	default:
		return OTHER
	}
}

func isIntKind(k TypeKind) bool { return k == INT || k == UINT || k == USIZE }
