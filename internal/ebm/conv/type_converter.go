package conv

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// ConvertType dispatches convert_type by AST node kind. field is
// the owning FIELD_DECL, used only to decide ARRAY vs VECTOR for an
// ArrayType whose length is field-derived; it may be nil.
func (c *Converter) ConvertType(t srcast.Type, field *srcast.FieldDecl) (ebm.TypeRef, error) {
	if t == nil {
		return 0, errors.NewStandardError(errors.CategoryMalformedInput, "EBM1001", "convert_type: nil AST type", nil)
	}

	if cached, ok := c.typeCache[t]; ok {
		return cached, nil
	}

	ref, err := c.convertTypeUncached(t, field)
	if err != nil {
		return 0, err
	}

	c.typeCache[t] = ref

	return ref, nil
}

func (c *Converter) convertTypeUncached(t srcast.Type, field *srcast.FieldDecl) (ebm.TypeRef, error) {
	switch n := t.(type) {
	case *srcast.IntType:
		kind := ebm.UINT
		if n.Signed {
			kind = ebm.INT
		}

		return c.Mod.AddType(ebm.Type{Kind: kind, Size: uint64(n.Bits)}), nil

	case *srcast.FloatType:
		return c.Mod.AddType(ebm.Type{Kind: ebm.FLOAT, Size: uint64(n.Bits)}), nil

	case *srcast.BoolType:
		return c.Mod.AddType(ebm.Type{Kind: ebm.BOOL}), nil

	case *srcast.IdentType:
		if n.Base == nil {
			// Unresolved alias: input is assumed well formed, so an
			// IdentType reaching here with no bound base is malformed.
			return 0, errors.NewStandardErrorAt(errors.CategoryMalformedInput, "EBM1002",
				fmt.Sprintf("unresolved type alias %q", n.Name), n.Span, nil)
		}

		return c.ConvertType(n.Base, field)

	case *srcast.ArrayType:
		return c.convertArrayType(n, field)

	case *srcast.StructType:
		declRef, err := c.convertFormat(n.Format)
		if err != nil {
			return 0, err
		}

		kind := ebm.STRUCT
		if n.Format.Recursive {
			kind = ebm.RECURSIVE_STRUCT
		}

		return c.Mod.AddType(ebm.Type{Kind: kind, ID: ebm.TypeRef(declRef)}), nil

	case *srcast.UnionType:
		members := make([]ebm.TypeRef, 0, len(n.Candidates))

		for _, cand := range n.Candidates {
			mt, err := c.ConvertType(cand.Type, field)
			if err != nil {
				return 0, err
			}

			members = append(members, mt)
		}

		return c.Mod.AddType(ebm.Type{Kind: ebm.VARIANT, MemberTypes: members}), nil

	case *srcast.EnumType:
		return c.convertEnumType(n)

	case *srcast.StrLiteralType:
		u8 := c.internedInt(ebm.UINT, 8, false)

		return c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: uint64(len(n.Bytes))}), nil

	case *srcast.RangeType:
		var base ebm.TypeRef

		if n.Base != nil {
			b, err := c.ConvertType(n.Base, field)
			if err != nil {
				return 0, err
			}

			base = b
		}

		return c.Mod.AddType(ebm.Type{Kind: ebm.RANGE, BaseType: base}), nil

	case *srcast.FunctionType:
		params := make([]ebm.TypeRef, 0, len(n.Params))

		for _, p := range n.Params {
			pt, err := c.ConvertType(p, nil)
			if err != nil {
				return 0, err
			}

			params = append(params, pt)
		}

		var ret ebm.TypeRef

		if n.ReturnType != nil {
			r, err := c.ConvertType(n.ReturnType, nil)
			if err != nil {
				return 0, err
			}

			ret = r
		}

		return c.Mod.AddType(ebm.Type{Kind: ebm.FUNCTION, Params: params, ReturnType: ret}), nil

	default:
		return 0, errors.NewStandardErrorAt(errors.CategoryUnsupported, "EBM1003",
			fmt.Sprintf("convert_type: unsupported AST type %T", t), t.GetSpan(), nil)
	}
}

func (c *Converter) convertArrayType(n *srcast.ArrayType, field *srcast.FieldDecl) (ebm.TypeRef, error) {
	elem, err := c.ConvertType(n.Element, nil)
	if err != nil {
		return 0, err
	}

	switch n.LenKind {
	case srcast.ArrayLenLiteral:
		return c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: elem, Length: n.Literal}), nil

	case srcast.ArrayLenAlign:
		// length = alignment_bytes-1 + range: the alignment boundary is a
		// compile-time literal, so the element count is knowable now.
		return c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: elem, Length: n.AlignBytes}), nil

	default: // ArrayLenField, ArrayLenOpen: length only known at encode/decode time.
		return c.Mod.AddType(ebm.Type{Kind: ebm.VECTOR, Element: elem}), nil
	}
}

func (c *Converter) convertEnumType(n *srcast.EnumType) (ebm.TypeRef, error) {
	base, err := c.ConvertType(n.Base, nil)
	if err != nil {
		return 0, err
	}

	name := c.Mod.AddIdentifier(n.Name)

	members := make([]ebm.StatementRef, 0, len(n.Members))

	for _, m := range n.Members {
		var val ebm.ExpressionRef

		if m.Value != nil {
			v, err := c.ConvertExpr(m.Value)
			if err != nil {
				return 0, err
			}

			val = v
		}

		memberName := c.Mod.AddIdentifier(m.Name)
		memberRef := c.Mod.AddStatement(ebm.Statement{Kind: ebm.ENUM_MEMBER_DECL, Name: memberName, Value: val})
		members = append(members, memberRef)
	}

	declRef := c.Mod.AddStatement(ebm.Statement{Kind: ebm.ENUM_DECL, Name: name, Type: base, Items: members})

	return c.Mod.AddType(ebm.Type{Kind: ebm.ENUM, ID: ebm.TypeRef(declRef), BaseType: base}), nil
}

// typeDescriptorOf resolves a TypeRef into the narrow view InferCastKind
// needs, following ENUM/IdentType-derived types down to their
// underlying integer representation.
func (c *Converter) typeDescriptorOf(ref ebm.TypeRef) ebm.TypeDescriptor {
	t, ok := c.Mod.GetType(ref)
	if !ok {
		return ebm.TypeDescriptor{Kind: ebm.VOID}
	}

	switch t.Kind {
	case ebm.INT, ebm.UINT, ebm.FLOAT:
		return ebm.TypeDescriptor{Kind: t.Kind, Bits: t.Size, Signed: t.Kind == ebm.INT}
	case ebm.USIZE:
		return ebm.TypeDescriptor{Kind: ebm.USIZE, Bits: 64, Signed: false}
	case ebm.ENUM:
		return c.typeDescriptorOf(t.BaseType)
	default:
		return ebm.TypeDescriptor{Kind: t.Kind}
	}
}
