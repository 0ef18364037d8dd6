package ebm

import "testing"

func TestInferCastKind(t *testing.T) {
	u8 := TypeDescriptor{Kind: UINT, Bits: 8}
	u16 := TypeDescriptor{Kind: UINT, Bits: 16}
	s16 := TypeDescriptor{Kind: INT, Bits: 16, Signed: true}
	f32 := TypeDescriptor{Kind: FLOAT, Bits: 32}
	boolT := TypeDescriptor{Kind: BOOL}
	enumT := TypeDescriptor{Kind: ENUM}
	fnT := TypeDescriptor{Kind: FUNCTION}
	structT := TypeDescriptor{Kind: STRUCT}

	cases := []struct {
		name string
		from TypeDescriptor
		to   TypeDescriptor
		want CastKind
	}{
		{"same size same sign", u8, TypeDescriptor{Kind: UINT, Bits: 8}, INT_TO_INT_SAME_SIZE},
		{"widening", u8, u16, SMALL_INT_TO_LARGE_INT},
		{"narrowing", u16, u8, LARGE_INT_TO_SMALL_INT},
		{"signed to unsigned", s16, u16, SIGNED_TO_UNSIGNED},
		{"unsigned to signed", u16, s16, UNSIGNED_TO_SIGNED},
		{"int to float bits", u16, f32, INT_TO_FLOAT_BIT},
		{"float to int bits", f32, u16, FLOAT_TO_INT_BIT},
		{"int to bool", u8, boolT, INT_TO_BOOL},
		{"bool to int", boolT, u8, BOOL_TO_INT},
		{"int to enum", u8, enumT, INT_TO_ENUM},
		{"enum to int", enumT, u8, ENUM_TO_INT},
		{"function cast", fnT, u8, FUNCTION_CAST},
		{"no rule", structT, u8, OTHER},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := InferCastKind(tc.from, tc.to); got != tc.want {
				t.Fatalf("InferCastKind = %s, want %s", got, tc.want)
			}
		})
	}
}

// Mixed sign and size: the size difference decides, not the sign (the
// narrowest-correct rule prefers the width change).
func TestInferCastKindMixedSignAndSize(t *testing.T) {
	s8 := TypeDescriptor{Kind: INT, Bits: 8, Signed: true}
	u16 := TypeDescriptor{Kind: UINT, Bits: 16}

	if got := InferCastKind(s8, u16); got != SMALL_INT_TO_LARGE_INT {
		t.Fatalf("InferCastKind(s8, u16) = %s, want SMALL_INT_TO_LARGE_INT", got)
	}
}
