package transform

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

// SynthesizeProperty fills in every PROPERTY_DECL's Getter/Setter (and,
// for vector-typed fields, VectorSetter) function bodies. It runs
// once every property in the module has been derived by
// conv.synthesizeOneUnionProperty, so the length-field linkage a vector
// setter's bounds check needs is resolvable by scanning the module's
// WRITE_DATA statements.
//
// The getter returns a PTR to the field when the merge mode is
// STRICT_TYPE (the field's own storage already holds the exact property
// type, so no copy is needed) and an OPTIONAL-wrapped value otherwise
// (COMMON_TYPE/UNCOMMON_TYPE both require a cast or fallback that isn't
// safely addressable).
func SynthesizeProperty(mod *arena.Module) error {
	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind != ebm.PROPERTY_DECL {
			continue
		}

		propRef := ebm.StatementRef(e.ID)

		prop, ok := mod.GetStatement(propRef)
		if !ok {
			continue
		}

		fieldRef := propertyField(mod, prop)
		if fieldRef.IsNil() {
			continue
		}

		getterRef, err := synthesizeGetter(mod, fieldRef, prop)
		if err != nil {
			return err
		}

		setterRef, err := synthesizeSetter(mod, fieldRef, prop)
		if err != nil {
			return err
		}

		var vecSetterRef ebm.StatementRef

		if isVectorField(mod, fieldRef) {
			vecSetterRef, err = synthesizeVectorSetter(mod, fieldRef)
			if err != nil {
				return err
			}
		}

		slot, ok := mod.Statements.GetMut(ebm.Ref(propRef))
		if !ok {
			continue
		}

		slot.Getter = getterRef
		slot.Setter = setterRef
		slot.VectorSetter = vecSetterRef
	}

	return nil
}

// PatchMemberAccessTypes backfills the Type field every MEMBER_ACCESS
// expression left nil at conversion time (conv.convertMemberAccess):
// once every STRUCT_DECL's fields and synthesized properties both exist,
// a member name can be resolved against either one. Runs after
// SynthesizeProperty so a property member resolves to its merged
// PropertyType rather than needing a second pass once getters exist.
func PatchMemberAccessTypes(mod *arena.Module) {
	for _, e := range mod.Expressions.Entries() {
		if e.Body.Kind != ebm.MEMBER_ACCESS {
			continue
		}

		exprRef := ebm.ExpressionRef(e.ID)

		expr, ok := mod.GetExpression(exprRef)
		if !ok || !expr.Type.IsNil() {
			continue
		}

		t, ok := resolveMemberType(mod, expr.Base, expr.Member)
		if !ok {
			continue
		}

		if slot, ok := mod.Expressions.GetMut(ebm.Ref(exprRef)); ok {
			slot.Type = t
		}
	}
}

// resolveMemberType finds the STRUCT_DECL baseExpr's type names, then
// looks up memberName among its FIELD_DECL/PROPERTY_DECL members.
func resolveMemberType(mod *arena.Module, baseExpr ebm.ExpressionRef, memberName ebm.StringRef) (ebm.TypeRef, bool) {
	base, ok := mod.GetExpression(baseExpr)
	if !ok {
		return 0, false
	}

	baseType, ok := mod.GetType(base.Type)
	if !ok || (baseType.Kind != ebm.STRUCT && baseType.Kind != ebm.RECURSIVE_STRUCT) {
		return 0, false
	}

	structDecl, ok := mod.GetStatement(ebm.StatementRef(baseType.ID))
	if !ok {
		return 0, false
	}

	wantName, ok := mod.GetString(memberName)
	if !ok {
		return 0, false
	}

	for _, itemRef := range structDecl.Items {
		item, ok := mod.GetStatement(itemRef)
		if !ok {
			continue
		}

		switch item.Kind {
		case ebm.FIELD_DECL:
			if identMatches(mod, item.Name, wantName.Bytes) {
				return item.Type, true
			}
		case ebm.PROPERTY_DECL:
			fieldRef := propertyField(mod, item)
			if fieldRef.IsNil() {
				continue
			}

			field, ok := mod.GetStatement(fieldRef)
			if ok && identMatches(mod, field.Name, wantName.Bytes) {
				return item.PropertyType, true
			}
		}
	}

	return 0, false
}

func identMatches(mod *arena.Module, ref ebm.IdentifierRef, want []byte) bool {
	ident, ok := mod.GetIdentifier(ref)

	return ok && ident.Name == string(want)
}

// propertyField recovers the field a PROPERTY_DECL was derived from: the
// first PROPERTY_MEMBER_DECL carrying a non-nil Field; every member
// of one property shares the same originating field.
func propertyField(mod *arena.Module, prop ebm.Statement) ebm.StatementRef {
	for _, memberRef := range prop.Items {
		member, ok := mod.GetStatement(memberRef)
		if !ok {
			continue
		}

		if !member.Field.IsNil() {
			return member.Field
		}
	}

	return ebm.StatementRef(ebm.NilRef)
}

func isVectorField(mod *arena.Module, fieldRef ebm.StatementRef) bool {
	field, ok := mod.GetStatement(fieldRef)
	if !ok {
		return false
	}

	t, ok := mod.GetType(field.Type)

	return ok && t.Kind == ebm.VECTOR
}

// synthesizeGetter builds a PROPERTY_GETTER returning the field's current
// value: a direct PTR-typed return for STRICT_TYPE, else an
// OPTIONAL-wrapped cast result (the cast itself may not be representable
// for every candidate under COMMON_TYPE/UNCOMMON_TYPE, so the caller sees
// that possibility reflected in the return type).
func synthesizeGetter(mod *arena.Module, fieldRef ebm.StatementRef, prop ebm.Statement) (ebm.StatementRef, error) {
	fnRef := mod.ReserveStatement()

	field, ok := mod.GetStatement(fieldRef)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4101", "synthesize_getter: dangling field ref", nil)
	}

	ident := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: field.Type, Ident: fieldRef})

	value := ident
	if field.Type != prop.PropertyType {
		kind := inferCast(mod, field.Type, prop.PropertyType)
		value = mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: prop.PropertyType, CastKind: kind, Source: ident})
	}

	var retType ebm.TypeRef

	if prop.MergeMode == ebm.STRICT_TYPE {
		retType = mod.AddType(ebm.Type{Kind: ebm.PTR, BaseType: prop.PropertyType})
		value = mod.AddExpression(ebm.Expression{Kind: ebm.ADDRESSOF, Type: retType, Base: value})
	} else {
		retType = mod.AddType(ebm.Type{Kind: ebm.OPTIONAL, BaseType: prop.PropertyType})
		value = mod.AddExpression(ebm.Expression{Kind: ebm.OPTIONALOF, Type: retType, Base: value})
	}

	var body ebm.StatementRef

	ret := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: value})

	if !prop.GetterCond.IsNil() {
		thenBlock := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ret}})
		none := mod.AddExpression(ebm.Expression{Kind: ebm.DEFAULT_VALUE, Type: retType, TypeValue: retType})
		elseBlock := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: none})
		ifStmt := mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: prop.GetterCond, Then: thenBlock, Else: elseBlock})
		body = mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ifStmt}})
	} else {
		body = mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ret}})
	}

	err := mod.AddStatementWithID(fnRef, ebm.Statement{
		Kind: ebm.FUNCTION_DECL, ReturnType: retType, Body: body, FuncKind: ebm.PROPERTY_GETTER,
	})
	if err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4102", fmt.Sprintf("synthesize_getter: %v", err), nil)
	}

	return fnRef, nil
}

// synthesizeSetter builds a PROPERTY_SETTER assigning a new value into
// the field, reporting SETTER_FAILED when a SetterCond exists and does
// not hold, SETTER_SUCCESS otherwise.
func synthesizeSetter(mod *arena.Module, fieldRef ebm.StatementRef, prop ebm.Statement) (ebm.StatementRef, error) {
	fnRef := mod.ReserveStatement()

	field, ok := mod.GetStatement(fieldRef)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4103", "synthesize_setter: dangling field ref", nil)
	}

	paramName := mod.AddIdentifier("value")
	param := mod.AddStatement(ebm.Statement{Kind: ebm.PARAMETER_DECL, Name: paramName, Type: prop.PropertyType})

	paramExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: prop.PropertyType, Ident: param})

	assignedValue := paramExpr
	if field.Type != prop.PropertyType {
		kind := inferCast(mod, prop.PropertyType, field.Type)
		assignedValue = mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: field.Type, CastKind: kind, Source: paramExpr})
	}

	target := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: field.Type, Ident: fieldRef})
	assign := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: assignedValue})

	statusType := mod.AddType(ebm.Type{Kind: ebm.PROPERTY_SETTER_RETURN})
	success := mod.AddExpression(ebm.Expression{Kind: ebm.SETTER_STATUS_EXPR, Type: statusType, Status: ebm.SETTER_SUCCESS})

	var body ebm.StatementRef

	if !prop.SetterCond.IsNil() {
		thenBlock := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{
			assign,
			mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: success}),
		}})
		failure := mod.AddExpression(ebm.Expression{Kind: ebm.SETTER_STATUS_EXPR, Type: statusType, Status: ebm.SETTER_FAILED})
		elseBlock := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: failure})
		ifStmt := mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: prop.SetterCond, Then: thenBlock, Else: elseBlock})
		body = mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ifStmt}})
	} else {
		ret := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: success})
		body = mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{assign, ret}})
	}

	err := mod.AddStatementWithID(fnRef, ebm.Statement{
		Kind: ebm.FUNCTION_DECL, Items: []ebm.StatementRef{param}, ReturnType: statusType, Body: body, FuncKind: ebm.PROPERTY_SETTER,
	})
	if err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4104", fmt.Sprintf("synthesize_setter: %v", err), nil)
	}

	return fnRef, nil
}

// synthesizeVectorSetter builds the whole-vector setter a VECTOR-typed
// property additionally gets when a WRITE_DATA ties the vector to an
// integer length field: bounds-check the supplied vector's size against
// the length field's MAX_VALUE, assign the vector, write the cast length
// back into the length field, and return SUCCESS; an oversized vector
// returns FAILED. A length binding whose type is not an integer is
// flagged as INVARIANT_VIOLATION rather than silently truncated (see
// DESIGN.md). A vector with no length binding at all (open, terminated,
// aligned) gets no vector setter.
func synthesizeVectorSetter(mod *arena.Module, fieldRef ebm.StatementRef) (ebm.StatementRef, error) {
	lengthFieldRef, err := findVectorLengthField(mod, fieldRef)
	if err != nil {
		return 0, err
	}

	if lengthFieldRef.IsNil() {
		return ebm.StatementRef(ebm.NilRef), nil
	}

	field, ok := mod.GetStatement(fieldRef)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4105", "synthesize_vector_setter: dangling field ref", nil)
	}

	lengthField, _ := mod.GetStatement(lengthFieldRef)

	fnRef := mod.ReserveStatement()
	usize := internedUsize(mod)

	valName := mod.AddIdentifier("value")
	valParam := mod.AddStatement(ebm.Statement{Kind: ebm.PARAMETER_DECL, Name: valName, Type: field.Type})
	valExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: field.Type, Ident: valParam})

	target := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: field.Type, Ident: fieldRef})
	lengthTarget := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: lengthField.Type, Ident: lengthFieldRef})

	newSize := mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: valExpr})
	maxLen := mod.AddExpression(ebm.Expression{Kind: ebm.MAX_VALUE, Type: lengthField.Type, TypeValue: lengthField.Type})
	maxAsUsize := mod.AddExpression(ebm.Expression{
		Kind: ebm.TYPE_CAST, Type: usize, CastKind: inferCast(mod, lengthField.Type, usize), Source: maxLen,
	})

	boolType := mod.AddType(ebm.Type{Kind: ebm.BOOL})
	fits := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: ebm.OpLe, Left: newSize, Right: maxAsUsize})

	assignVec := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: valExpr})

	castLen := mod.AddExpression(ebm.Expression{
		Kind: ebm.TYPE_CAST, Type: lengthField.Type, CastKind: inferCast(mod, usize, lengthField.Type), Source: newSize,
	})
	assignLen := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: lengthTarget, Value: castLen})

	statusType := mod.AddType(ebm.Type{Kind: ebm.PROPERTY_SETTER_RETURN})
	success := mod.AddExpression(ebm.Expression{Kind: ebm.SETTER_STATUS_EXPR, Type: statusType, Status: ebm.SETTER_SUCCESS})
	failure := mod.AddExpression(ebm.Expression{Kind: ebm.SETTER_STATUS_EXPR, Type: statusType, Status: ebm.SETTER_FAILED})

	thenBlock := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{
		assignVec,
		assignLen,
		mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: success}),
	}})
	elseBlock := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: failure})

	ifStmt := mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: fits, Then: thenBlock, Else: elseBlock})
	body := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ifStmt}})

	err = mod.AddStatementWithID(fnRef, ebm.Statement{
		Kind:       ebm.FUNCTION_DECL,
		Items:      []ebm.StatementRef{valParam},
		ReturnType: statusType,
		Body:       body,
		FuncKind:   ebm.VECTOR_SETTER,
	})
	if err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4107", fmt.Sprintf("synthesize_vector_setter: %v", err), nil)
	}

	return fnRef, nil
}

// findVectorLengthField locates the integer field whose value carries
// fieldRef's encoded length: the first WRITE_DATA on the vector whose
// dynamic size expression is an IDENTIFIER of a FIELD_DECL. A length
// binding that is not an integer field is an invariant violation; no
// binding at all reports nil without error.
func findVectorLengthField(mod *arena.Module, fieldRef ebm.StatementRef) (ebm.StatementRef, error) {
	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind != ebm.WRITE_DATA {
			continue
		}

		if e.Body.IO.Field != fieldRef {
			continue
		}

		if e.Body.IO.Size.Unit != ebm.ELEMENT_DYNAMIC && e.Body.IO.Size.Unit != ebm.BYTE_DYNAMIC {
			continue
		}

		lengthExpr, ok := mod.GetExpression(e.Body.IO.Size.Expr)
		if !ok || lengthExpr.Kind != ebm.IDENTIFIER {
			continue
		}

		lengthField, ok := mod.GetStatement(lengthExpr.Ident)
		if !ok || lengthField.Kind != ebm.FIELD_DECL {
			continue
		}

		lt, ok := mod.GetType(lengthField.Type)
		if !ok || (lt.Kind != ebm.INT && lt.Kind != ebm.UINT && lt.Kind != ebm.USIZE) {
			return 0, errors.NewStandardError(errors.CategoryInvariant, "EBM4106",
				"vector setter: length field does not carry an integer type representing the vector's size",
				map[string]interface{}{"field": fieldRef, "length_field": lengthExpr.Ident})
		}

		return lengthExpr.Ident, nil
	}

	return ebm.StatementRef(ebm.NilRef), nil
}

func inferCast(mod *arena.Module, from, to ebm.TypeRef) ebm.CastKind {
	return ebm.InferCastKind(typeDescriptorOf(mod, from), typeDescriptorOf(mod, to))
}

// typeDescriptorOf is transform's copy of conv's unexported helper of the
// same name: both packages resolve a TypeRef into InferCastKind's
// narrow view, but transform operates on a finished *arena.Module with no
// Converter instance to call through.
func typeDescriptorOf(mod *arena.Module, ref ebm.TypeRef) ebm.TypeDescriptor {
	t, ok := mod.GetType(ref)
	if !ok {
		return ebm.TypeDescriptor{Kind: ebm.VOID}
	}

	switch t.Kind {
	case ebm.INT, ebm.UINT, ebm.FLOAT:
		return ebm.TypeDescriptor{Kind: t.Kind, Bits: t.Size, Signed: t.Kind == ebm.INT}
	case ebm.USIZE:
		return ebm.TypeDescriptor{Kind: ebm.USIZE, Bits: 64, Signed: false}
	case ebm.ENUM:
		return typeDescriptorOf(mod, t.BaseType)
	default:
		return ebm.TypeDescriptor{Kind: t.Kind}
	}
}

func internedUsize(mod *arena.Module) ebm.TypeRef {
	for _, e := range mod.Types.Entries() {
		if e.Body.Kind == ebm.USIZE {
			return ebm.TypeRef(e.ID)
		}
	}

	return mod.AddType(ebm.Type{Kind: ebm.USIZE})
}
