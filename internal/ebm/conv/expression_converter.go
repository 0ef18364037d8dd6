package conv

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// ConvertExpr dispatches convert_expr by AST node kind. Every
// emitted ebm.Expression carries its Type field, set here rather than
// left for a later pass.
func (c *Converter) ConvertExpr(e srcast.Expression) (ebm.ExpressionRef, error) {
	switch n := e.(type) {
	case *srcast.Ident:
		return c.convertIdent(n)

	case *srcast.IntLiteral:
		v := n.Value
		if n.Neg {
			v = -v // two's complement; the destination type decides signedness
		}

		u64 := c.internedInt(ebm.UINT, 64, false)

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u64, IntValue: v}), nil

	case *srcast.StrLiteral:
		str := c.Mod.AddString(n.Bytes)
		u8 := c.internedInt(ebm.UINT, 8, false)
		arr := c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: uint64(len(n.Bytes))})

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_STRING, Type: arr, StrValue: str}), nil

	case *srcast.BoolLiteral:
		boolT := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_BOOL, Type: boolT, BoolValue: n.Value}), nil

	case *srcast.TypeLiteral:
		tref, err := c.ConvertType(n.Type, nil)
		if err != nil {
			return 0, err
		}

		metaT := c.Mod.AddType(ebm.Type{Kind: ebm.META})

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_TYPE, Type: metaT, TypeValue: tref}), nil

	case *srcast.Binary:
		return c.convertBinary(n)

	case *srcast.Unary:
		return c.convertUnary(n)

	case *srcast.Cast:
		return c.convertCast(n)

	case *srcast.Index:
		return c.convertIndex(n)

	case *srcast.MemberAccess:
		return c.convertMemberAccess(n)

	case *srcast.Range:
		return c.convertRange(n)

	case *srcast.IOOperation:
		return c.convertIOOperation(n)

	case *srcast.Call:
		return c.convertCall(n)

	default:
		return 0, errors.NewStandardErrorAt(errors.CategoryUnsupported, "EBM2001",
			fmt.Sprintf("convert_expr: unsupported AST expression %T", e), e.GetSpan(), nil)
	}
}

func (c *Converter) convertIdent(n *srcast.Ident) (ebm.ExpressionRef, error) {
	decl, ok := c.scope.lookup(n.Name)
	if !ok {
		return 0, errors.NewStandardErrorAt(errors.CategoryMalformedInput, "EBM2002",
			fmt.Sprintf("identifier %q not bound in current scope", n.Name), n.Span, nil)
	}

	declStmt, ok := c.Mod.GetStatement(decl)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM2003", "bound identifier has no backing statement", nil)
	}

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: declStmt.Type, Ident: decl}), nil
}

func (c *Converter) convertBinary(n *srcast.Binary) (ebm.ExpressionRef, error) {
	left, err := c.ConvertExpr(n.Left)
	if err != nil {
		return 0, err
	}

	right, err := c.ConvertExpr(n.Right)
	if err != nil {
		return 0, err
	}

	op, resultIsBool := convertBinaryOp(n.Op)

	leftExpr, _ := c.Mod.GetExpression(left)

	resultType := leftExpr.Type
	if resultIsBool {
		resultType = c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
	}

	return c.Mod.AddExpression(ebm.Expression{
		Kind: ebm.BINARY_OP, Type: resultType, BinOp: op, Left: left, Right: right,
	}), nil
}

func convertBinaryOp(op srcast.BinaryOp) (ebm.BinaryOp, bool) {
	switch op {
	case srcast.OpAdd:
		return ebm.OpAdd, false
	case srcast.OpSub:
		return ebm.OpSub, false
	case srcast.OpMul:
		return ebm.OpMul, false
	case srcast.OpDiv:
		return ebm.OpDiv, false
	case srcast.OpMod:
		return ebm.OpMod, false
	case srcast.OpEq:
		return ebm.OpEq, true
	case srcast.OpNe:
		return ebm.OpNe, true
	case srcast.OpLt:
		return ebm.OpLt, true
	case srcast.OpLe:
		return ebm.OpLe, true
	case srcast.OpGt:
		return ebm.OpGt, true
	case srcast.OpGe:
		return ebm.OpGe, true
	case srcast.OpLogAnd:
		return ebm.OpLogAnd, true
	case srcast.OpLogOr:
		return ebm.OpLogOr, true
	case srcast.OpBitAnd:
		return ebm.OpBitAnd, false
	case srcast.OpBitOr:
		return ebm.OpBitOr, false
	case srcast.OpBitXor:
		return ebm.OpBitXor, false
	case srcast.OpShl:
		return ebm.OpShl, false
	case srcast.OpShr:
		return ebm.OpShr, false
	default:
		// OpRangeExclusive/OpRangeInclusive never reach here: the parser
		// only produces those as the top-level shape of a Range node.
		return ebm.OpAdd, false
	}
}

func (c *Converter) convertUnary(n *srcast.Unary) (ebm.ExpressionRef, error) {
	operand, err := c.ConvertExpr(n.Operand)
	if err != nil {
		return 0, err
	}

	operandExpr, _ := c.Mod.GetExpression(operand)

	var op ebm.UnaryOp

	resultType := operandExpr.Type

	switch n.Op {
	case srcast.OpNot:
		op = ebm.OpNot
		resultType = c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
	case srcast.OpNeg:
		op = ebm.OpNeg
	}

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.UNARY_OP, Type: resultType, UnOp: op, Operand: operand}), nil
}

func (c *Converter) convertCast(n *srcast.Cast) (ebm.ExpressionRef, error) {
	src, err := c.ConvertExpr(n.Expression)
	if err != nil {
		return 0, err
	}

	target, err := c.ConvertType(n.TargetType, nil)
	if err != nil {
		return 0, err
	}

	srcExpr, _ := c.Mod.GetExpression(src)

	kind := ebm.InferCastKind(c.typeDescriptorOf(srcExpr.Type), c.typeDescriptorOf(target))

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: target, CastKind: kind, Source: src}), nil
}

func (c *Converter) convertIndex(n *srcast.Index) (ebm.ExpressionRef, error) {
	base, err := c.ConvertExpr(n.Base)
	if err != nil {
		return 0, err
	}

	idx, err := c.ConvertExpr(n.Index)
	if err != nil {
		return 0, err
	}

	baseExpr, _ := c.Mod.GetExpression(base)

	elemType := ebm.TypeRef(0)

	if bt, ok := c.Mod.GetType(baseExpr.Type); ok && (bt.Kind == ebm.ARRAY || bt.Kind == ebm.VECTOR) {
		elemType = bt.Element
	}

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: elemType, Base: base, Index: idx}), nil
}

func (c *Converter) convertMemberAccess(n *srcast.MemberAccess) (ebm.ExpressionRef, error) {
	base, err := c.ConvertExpr(n.Base)
	if err != nil {
		return 0, err
	}

	member := c.Mod.AddString([]byte(n.Member))

	// The member's static type is resolved by a later pass once the
	// owning STRUCT_DECL's fields/properties are all in the arena
	// (property synthesis may still be adding PROPERTY_DECLs at this
	// point); MEMBER_ACCESS is left with a nil Type here and is patched
	// in place once property synthesis finishes.
	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.MEMBER_ACCESS, Base: base, Member: member}), nil
}

func (c *Converter) convertRange(n *srcast.Range) (ebm.ExpressionRef, error) {
	var low, high ebm.ExpressionRef

	if n.Low != nil {
		l, err := c.ConvertExpr(n.Low)
		if err != nil {
			return 0, err
		}

		low = l
	}

	if n.High != nil {
		h, err := c.ConvertExpr(n.High)
		if err != nil {
			return 0, err
		}

		high = h
	}

	rangeT := c.Mod.AddType(ebm.Type{Kind: ebm.RANGE})

	return c.Mod.AddExpression(ebm.Expression{
		Kind: ebm.RANGE_EXPR, Type: rangeT, Low: low, High: high, Inclusive: n.Inclusive,
	}), nil
}

func (c *Converter) convertIOOperation(n *srcast.IOOperation) (ebm.ExpressionRef, error) {
	stream, err := c.ConvertExpr(n.Stream)
	if err != nil {
		return 0, err
	}

	switch n.Method {
	case srcast.IOInputOffset:
		usize := c.internedInt(ebm.USIZE, 64, false)

		return c.Mod.AddExpression(ebm.Expression{
			Kind: ebm.GET_STREAM_OFFSET, Type: usize, Stream: stream, Unit: ebm.IOSize{Unit: ebm.BYTE_DYNAMIC},
		}), nil

	case srcast.IOInputBitOffset:
		usize := c.internedInt(ebm.USIZE, 64, false)

		return c.Mod.AddExpression(ebm.Expression{
			Kind: ebm.GET_STREAM_OFFSET, Type: usize, Stream: stream, Unit: ebm.IOSize{Unit: ebm.BIT_DYNAMIC},
		}), nil

	case srcast.IOInputRemain:
		usize := c.internedInt(ebm.USIZE, 64, false)

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.GET_REMAINING_BYTES, Type: usize, Stream: stream}), nil

	case srcast.IOOutputPut:
		boolT := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})

		var amount ebm.ExpressionRef

		if len(n.Args) > 0 {
			a, err := c.ConvertExpr(n.Args[0])
			if err != nil {
				return 0, err
			}

			amount = a
		}

		return c.Mod.AddExpression(ebm.Expression{
			Kind: ebm.CAN_READ_STREAM, Type: boolT, Stream: stream, Amount: amount,
		}), nil

	default:
		// input_peek/input_subrange/input_get are reserved for the
		// transform stage (vectorize/bitio) and never appear directly in
		// converted source; reaching here means the source used one of
		// them explicitly, which the language does not allow.
		return 0, errors.NewStandardErrorAt(errors.CategoryUnsupported, "EBM2004",
			fmt.Sprintf("convert_expr: io method %d not directly expressible in source", n.Method), n.Span, nil)
	}
}

func (c *Converter) convertCall(n *srcast.Call) (ebm.ExpressionRef, error) {
	callee, err := c.ConvertExpr(n.Callee)
	if err != nil {
		return 0, err
	}

	args := make([]ebm.ExpressionRef, 0, len(n.Args))

	for _, a := range n.Args {
		ref, err := c.ConvertExpr(a)
		if err != nil {
			return 0, err
		}

		args = append(args, ref)
	}

	calleeExpr, _ := c.Mod.GetExpression(callee)

	resultType := ebm.TypeRef(0)

	if ft, ok := c.Mod.GetType(calleeExpr.Type); ok && ft.Kind == ebm.FUNCTION {
		resultType = ft.ReturnType
	}

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.CALL, Type: resultType, Callee: callee, Args: args}), nil
}
