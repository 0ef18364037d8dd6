package conv

import (
	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// synthesizeUnionProperties implements the union-to-property derivation:
// every union-typed field gets a PROPERTY_DECL exposing a single
// merged-type getter/setter pair, so downstream code never has to match
// on the union's candidates just to read or write its value.
//
// The merge picks, in order: STRICT_TYPE when every candidate converts to
// the exact same TypeRef; COMMON_TYPE when every candidate is an
// integer/float kind (the merged type has the widest candidate's width; it
// is a float when a float candidate has that width, otherwise signed when
// any candidate of that width is signed); otherwise UNCOMMON_TYPE, for which no
// single representation fits every candidate and the property falls back
// to exposing the field's own variant type unchanged (recorded in DESIGN.md:
// surfacing the raw variant is preferred over an
// error, since the field itself remains fully readable through ordinary
// match statements).
func (c *Converter) synthesizeUnionProperties(f *srcast.Format, fieldRefs []ebm.StatementRef) ([]ebm.StatementRef, error) {
	var props []ebm.StatementRef

	for _, stmt := range f.Fields {
		fd, ok := stmt.(*srcast.FieldDecl)
		if !ok {
			continue
		}

		ut, ok := fd.Type.(*srcast.UnionType)
		if !ok {
			continue
		}

		fieldRef, found := c.scope.lookup(fd.Name)
		if !found {
			continue
		}

		propRef, err := c.synthesizeOneUnionProperty(fieldRef, ut)
		if err != nil {
			return nil, err
		}

		props = append(props, propRef)
	}

	return props, nil
}

// synthesizeOneUnionProperty builds the PROPERTY_DECL itself: its merge
// mode, merged property type, and member list with each candidate's
// translated condition. It does NOT synthesize the getter/setter
// function bodies — that is transform.SynthesizeProperty's job,
// run later in the pipeline once every property in the module exists and
// the struct's WRITE_DATA length-field linkage needed for vector setters
// is resolvable.
func (c *Converter) synthesizeOneUnionProperty(fieldRef ebm.StatementRef, ut *srcast.UnionType) (ebm.StatementRef, error) {
	field, _ := c.Mod.GetStatement(fieldRef)

	memberTypes := make([]ebm.TypeRef, 0, len(ut.Candidates))

	for _, cand := range ut.Candidates {
		mt, err := c.ConvertType(cand.Type, nil)
		if err != nil {
			return 0, err
		}

		memberTypes = append(memberTypes, mt)
	}

	mergeMode, propType := c.mergeUnionMemberTypes(memberTypes, field.Type)

	members := make([]ebm.StatementRef, 0, len(ut.Candidates))

	var conds []ebm.ExpressionRef

	for _, cand := range ut.Candidates {
		var cond ebm.ExpressionRef

		if cand.Cond != nil {
			cv, err := c.ConvertExpr(cand.Cond)
			if err != nil {
				return 0, err
			}

			cond = cv
			conds = append(conds, cond)
		}

		members = append(members, c.Mod.AddStatement(ebm.Statement{
			Kind: ebm.PROPERTY_MEMBER_DECL, Cond: cond, Field: fieldRef,
		}))
	}

	// The getter and setter conditions are the AST's top-level condition
	// translated twice; this converter has no separate
	// PropertyGetter/PropertySetter generate-mode (state variables are
	// read the same way in both directions here), so both share the same
	// OR of every candidate's condition.
	var topCond ebm.ExpressionRef

	if len(conds) == 1 {
		topCond = conds[0]
	} else if len(conds) > 1 {
		boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
		topCond = c.Mod.AddExpression(ebm.Expression{Kind: ebm.OR_COND, Type: boolType, Terms: conds})
	}

	return c.Mod.AddStatement(ebm.Statement{
		Kind:         ebm.PROPERTY_DECL,
		MergeMode:    mergeMode,
		PropertyType: propType,
		GetterCond:   topCond,
		SetterCond:   topCond,
		Items:        members,
	}), nil
}

func (c *Converter) mergeUnionMemberTypes(members []ebm.TypeRef, fallback ebm.TypeRef) (ebm.PropertyMergeMode, ebm.TypeRef) {
	if len(members) == 0 {
		return ebm.UNCOMMON_TYPE, fallback
	}

	first := members[0]

	allSame := true

	for _, m := range members[1:] {
		if m != first {
			allSame = false

			break
		}
	}

	if allSame {
		return ebm.STRICT_TYPE, first
	}

	allNumeric := true

	var widest ebm.TypeDescriptor

	for _, m := range members {
		d := c.typeDescriptorOf(m)
		if d.Kind != ebm.INT && d.Kind != ebm.UINT && d.Kind != ebm.FLOAT {
			allNumeric = false

			break
		}

		if d.Bits > widest.Bits {
			widest = d
		} else if d.Bits == widest.Bits {
			widest.Signed = widest.Signed || d.Signed
			if d.Kind == ebm.FLOAT {
				widest.Kind = ebm.FLOAT
			}
		}
	}

	if allNumeric {
		kind := ebm.UINT
		if widest.Kind == ebm.FLOAT {
			kind = ebm.FLOAT
		} else if widest.Signed {
			kind = ebm.INT
		}

		return ebm.COMMON_TYPE, c.internedInt(kind, widest.Bits, widest.Signed)
	}

	return ebm.UNCOMMON_TYPE, fallback
}

