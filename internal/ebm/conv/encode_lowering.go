package conv

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// This file holds the per-type encode/decode lowering: for each
// field shape, the primary I/O statement plus its optional
// LOWERED_STATEMENTS alternative giving a portable primitive sequence for
// targets without a native operation.

// lowerTypedIO dispatches on the field's resolved type. target is the
// expression the I/O operates on (the field identifier at the top level,
// an INDEX_ACCESS when called recursively for array/vector elements).
// astType may be nil when no source declaration backs the type (element
// recursion through a purely synthesized type); the EBM type alone then
// decides the shape.
func (c *Converter) lowerTypedIO(fieldRef ebm.StatementRef, typeRef ebm.TypeRef, astType srcast.Type, target ebm.ExpressionRef, bitOverride uint64, mode GenerateMode) (ebm.StatementRef, error) {
	typ, ok := c.Mod.GetType(typeRef)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4010", "lower_typed_io: dangling type ref", nil)
	}

	attr := c.ioAttributeOf(astType)

	switch typ.Kind {
	case ebm.INT, ebm.UINT, ebm.USIZE, ebm.BOOL:
		bits := typ.Size
		if typ.Kind == ebm.BOOL {
			bits = 1
		}

		if bitOverride != 0 {
			bits = bitOverride
		}

		attr.Signed = typ.Kind == ebm.INT

		return c.lowerScalarIO(fieldRef, target, typeRef, bits, attr, mode), nil

	case ebm.FLOAT:
		return c.lowerFloatIO(fieldRef, target, typeRef, typ.Size, attr, mode), nil

	case ebm.ENUM:
		return c.lowerEnumIO(fieldRef, target, typeRef, typ, attr, mode)

	case ebm.ARRAY:
		if lit, ok := astType.(*srcast.StrLiteralType); ok {
			return c.lowerStrLiteralIO(fieldRef, target, typeRef, lit.Bytes, mode), nil
		}

		if arr, ok := astType.(*srcast.ArrayType); ok && arr.LenKind == srcast.ArrayLenAlign {
			return c.lowerAlignedVectorIO(fieldRef, target, typ, arr, mode)
		}

		return c.lowerFixedArrayIO(fieldRef, target, typeRef, typ, astType, mode)

	case ebm.VECTOR:
		arr, _ := astType.(*srcast.ArrayType)

		return c.lowerVectorIO(fieldRef, target, typ, arr, mode)

	case ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		return c.lowerStructIO(fieldRef, target, typeRef, typ, mode)

	case ebm.VARIANT:
		return c.lowerVariantIO(fieldRef, target, typeRef, typ, astType, mode)

	default:
		size, err := c.deriveIOSize(typeRef, bitOverride)
		if err != nil {
			return 0, err
		}

		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
			Attribute: attr, Size: size,
		}, nil), nil
	}
}

// ioAttributeOf reads the declared endianness/sign off the source type.
func (c *Converter) ioAttributeOf(astType srcast.Type) ebm.IOAttribute {
	var attr ebm.IOAttribute

	switch t := astType.(type) {
	case *srcast.IntType:
		attr.Endian = mapEndian(t.Endian)
		attr.Signed = t.Signed

		if t.Endian == srcast.EndianDynamic && t.EndianOf != nil {
			if expr, err := c.ConvertExpr(t.EndianOf); err == nil {
				attr.DynamicEndianExpr = expr
			}
		}
	case *srcast.FloatType:
		attr.Endian = mapEndian(t.Endian)
	}

	return attr
}

func mapEndian(e srcast.Endian) ebm.Endian {
	switch e {
	case srcast.EndianLittle:
		return ebm.EndianLittle
	case srcast.EndianBig:
		return ebm.EndianBig
	case srcast.EndianDynamic:
		return ebm.EndianDynamic
	default:
		return ebm.EndianNative
	}
}

// emitIO builds the READ_DATA/WRITE_DATA statement for io, attaching
// lowered (when non-empty) as the statement's LOWERED_STATEMENTS
// alternative wrapped in one BLOCK.
func (c *Converter) emitIO(mode GenerateMode, io ebm.IOData, lowered []ebm.StatementRef) ebm.StatementRef {
	kind := ebm.READ_DATA
	if mode == ModeEncode {
		kind = ebm.WRITE_DATA
	}

	stmt := ebm.Statement{Kind: kind}

	if len(lowered) > 0 {
		block := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: lowered})
		ls := c.Mod.AddStatement(ebm.Statement{Kind: ebm.LOWERED_STATEMENTS, Items: []ebm.StatementRef{block}})
		io.Attribute.HasLoweredStatement = true
		io.LoweredStatement = ls
		stmt.Lowered = ls
	}

	stmt.IO = io

	return c.Mod.AddStatement(stmt)
}

// lowerScalarIO handles fixed-width integers and booleans: the
// primary I/O carries BYTE_FIXED(N/8) when byte-aligned (BIT_FIXED(N)
// otherwise, left for the transform-stage bit packer), and the
// byte-aligned case carries the fixed-array lowering: an N/8-byte buffer
// with a shift/mask per byte, endian-branched when the byte order is not
// statically known.
func (c *Converter) lowerScalarIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, bits uint64, attr ebm.IOAttribute, mode GenerateMode) ebm.StatementRef {
	var size ebm.IOSize

	if bits%8 == 0 && bits > 0 {
		size = ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: bits / 8}
	} else {
		size = ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: bits}
	}

	var lowered []ebm.StatementRef

	if bits%8 == 0 && bits > 0 {
		lowered = c.emitScalarBytes(mode, target, typeRef, bits, attr)
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Attribute: attr, Size: size,
	}, lowered)
}

// emitScalarBytes is the fixed-array lowering: declare an N/8-byte
// buffer and, per byte index i, shift_index = i (little) or N/8-1-i (big);
// encode fills the buffer byte-by-byte then writes it, decode reads the
// buffer then ORs the shifted bytes into the value.
func (c *Converter) emitScalarBytes(mode GenerateMode, value ebm.ExpressionRef, valueType ebm.TypeRef, bits uint64, attr ebm.IOAttribute) []ebm.StatementRef {
	if bits == 8 {
		// A single byte has no byte order.
		return c.emitScalarBytesOneEndian(mode, value, valueType, bits, false)
	}

	return c.addEndianSpecific(attr,
		func() []ebm.StatementRef { return c.emitScalarBytesOneEndian(mode, value, valueType, bits, false) },
		func() []ebm.StatementRef { return c.emitScalarBytesOneEndian(mode, value, valueType, bits, true) },
	)
}

func (c *Converter) emitScalarBytesOneEndian(mode GenerateMode, value ebm.ExpressionRef, valueType ebm.TypeRef, bits uint64, bigEndian bool) []ebm.StatementRef {
	n := bits / 8
	u8 := c.internedInt(ebm.UINT, 8, false)
	usize := c.internedInt(ebm.USIZE, 64, false)
	bufType := c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: n})

	bufName := c.Mod.AddIdentifier("b")
	bufDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: bufName, Type: bufType})
	bufExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: bufType, Ident: bufDecl})

	stmts := []ebm.StatementRef{bufDecl}

	bufIO := ebm.IOData{
		IORef: c.currentStream, Target: bufExpr, DataType: bufType,
		Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: n},
	}

	if mode == ModeDecode {
		stmts = append(stmts, c.Mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: bufIO}))
	}

	for i := uint64(0); i < n; i++ {
		shiftIndex := i
		if bigEndian {
			shiftIndex = n - 1 - i
		}

		idx := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: i})
		slot := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: bufExpr, Index: idx})
		shiftLit := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: valueType, IntValue: 8 * shiftIndex})

		if mode == ModeEncode {
			shifted := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: valueType, BinOp: ebm.OpShr, Left: value, Right: shiftLit})
			mask := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: valueType, IntValue: 0xFF})
			masked := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: valueType, BinOp: ebm.OpBitAnd, Left: shifted, Right: mask})
			castKind := ebm.InferCastKind(c.typeDescriptorOf(valueType), c.typeDescriptorOf(u8))
			byteVal := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: u8, CastKind: castKind, Source: masked})
			stmts = append(stmts, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: slot, Value: byteVal}))
		} else {
			castKind := ebm.InferCastKind(c.typeDescriptorOf(u8), c.typeDescriptorOf(valueType))
			wide := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: valueType, CastKind: castKind, Source: slot})
			shifted := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: valueType, BinOp: ebm.OpShl, Left: wide, Right: shiftLit})
			orred := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: valueType, BinOp: ebm.OpBitOr, Left: value, Right: shifted})
			stmts = append(stmts, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: value, Value: orred}))
		}
	}

	if mode == ModeEncode {
		stmts = append(stmts, c.Mod.AddStatement(ebm.Statement{Kind: ebm.WRITE_DATA, IO: bufIO}))
	}

	return stmts
}

// addEndianSpecific emits one branch when the endianness is statically
// known, and an `if IS_LITTLE_ENDIAN(dyn) then onLittle else onBig` over
// two pre-expanded blocks otherwise. For EndianDynamic the test
// carries the live endian-selector expression; for EndianNative it
// carries none and the test resolves against the host.
func (c *Converter) addEndianSpecific(attr ebm.IOAttribute, onLittle, onBig func() []ebm.StatementRef) []ebm.StatementRef {
	switch attr.Endian {
	case ebm.EndianLittle:
		return onLittle()
	case ebm.EndianBig:
		return onBig()
	default:
		boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
		cond := c.Mod.AddExpression(ebm.Expression{
			Kind: ebm.IS_LITTLE_ENDIAN, Type: boolType, Stream: attr.DynamicEndianExpr,
		})

		thenBlock := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: onLittle()})
		elseBlock := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: onBig()})

		return []ebm.StatementRef{c.Mod.AddStatement(ebm.Statement{
			Kind: ebm.IF_STATEMENT, Cond: cond, Then: thenBlock, Else: elseBlock,
		})}
	}
}

// lowerFloatIO treats a float as Integer(N) with a bit-pattern cast at
// the boundary: FLOAT_TO_INT_BIT before encoding, INT_TO_FLOAT_BIT
// after decoding.
func (c *Converter) lowerFloatIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, bits uint64, attr ebm.IOAttribute, mode GenerateMode) ebm.StatementRef {
	uintType := c.internedInt(ebm.UINT, bits, false)

	tmpName := c.Mod.AddIdentifier("fbits")
	tmpDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: tmpName, Type: uintType})
	tmpExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: uintType, Ident: tmpDecl})

	var lowered []ebm.StatementRef

	lowered = append(lowered, tmpDecl)

	if mode == ModeEncode {
		asBits := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: uintType, CastKind: ebm.FLOAT_TO_INT_BIT, Source: target})
		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: tmpExpr, Value: asBits}))
		lowered = append(lowered, c.emitScalarBytes(mode, tmpExpr, uintType, bits, attr)...)
	} else {
		lowered = append(lowered, c.emitScalarBytes(mode, tmpExpr, uintType, bits, attr)...)
		asFloat := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: typeRef, CastKind: ebm.INT_TO_FLOAT_BIT, Source: tmpExpr})
		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: asFloat}))
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Attribute: attr, Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: bits / 8},
	}, lowered)
}

// lowerEnumIO casts to the base type, encodes/decodes the base type, and
// casts back on decode.
func (c *Converter) lowerEnumIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, typ ebm.Type, attr ebm.IOAttribute, mode GenerateMode) (ebm.StatementRef, error) {
	base, ok := c.Mod.GetType(typ.BaseType)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4011", "lower_enum_io: enum without base type", nil)
	}

	tmpName := c.Mod.AddIdentifier("raw")
	tmpDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: tmpName, Type: typ.BaseType})
	tmpExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: typ.BaseType, Ident: tmpDecl})

	var lowered []ebm.StatementRef

	lowered = append(lowered, tmpDecl)

	if mode == ModeEncode {
		asInt := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: typ.BaseType, CastKind: ebm.ENUM_TO_INT, Source: target})
		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: tmpExpr, Value: asInt}))

		if base.Size%8 == 0 && base.Size > 0 {
			lowered = append(lowered, c.emitScalarBytes(mode, tmpExpr, typ.BaseType, base.Size, attr)...)
		}
	} else {
		if base.Size%8 == 0 && base.Size > 0 {
			lowered = append(lowered, c.emitScalarBytes(mode, tmpExpr, typ.BaseType, base.Size, attr)...)
		}

		asEnum := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: typeRef, CastKind: ebm.INT_TO_ENUM, Source: tmpExpr})
		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: asEnum}))
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Attribute: attr, Size: ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: base.Size},
	}, lowered), nil
}

// lowerStrLiteralIO handles a string-literal field used as a magic
// constant: fixed-size I/O of the literal's bytes; decode asserts
// each byte equals the expected literal.
func (c *Converter) lowerStrLiteralIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, bytes []byte, mode GenerateMode) ebm.StatementRef {
	n := uint64(len(bytes))
	u8 := c.internedInt(ebm.UINT, 8, false)
	usize := c.internedInt(ebm.USIZE, 64, false)

	var lowered []ebm.StatementRef

	if mode == ModeEncode {
		for i, b := range bytes {
			idx := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: uint64(i)})
			slot := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: target, Index: idx})
			val := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: uint64(b)})
			lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: slot, Value: val}))
		}

		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.WRITE_DATA, IO: ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
			Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: n},
		}}))
	} else {
		lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
			Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: n},
		}}))

		boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
		msg := c.Mod.AddString([]byte("magic mismatch"))

		for i, b := range bytes {
			idx := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: uint64(i)})
			slot := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: target, Index: idx})
			want := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: uint64(b)})
			eq := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: ebm.OpEq, Left: slot, Right: want})
			lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSERT, Cond: eq, Message: msg}))
		}
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: n},
	}, lowered)
}

// lowerFixedArrayIO emits the counter loop `i in [0, N)` over the
// element encode/decode with `indexed = base[i]`.
func (c *Converter) lowerFixedArrayIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, typ ebm.Type, astType srcast.Type, mode GenerateMode) (ebm.StatementRef, error) {
	usize := c.internedInt(ebm.USIZE, 64, false)
	limit := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: typ.Length})

	elemAST := elementASTType(astType)

	var elemErr error

	loop := c.buildCounterLoop(usize, limit, ebm.OpLt, func(counter ebm.ExpressionRef) []ebm.StatementRef {
		indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: counter})

		elemIO, err := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
		if err != nil {
			elemErr = err

			return nil
		}

		return []ebm.StatementRef{elemIO}
	})

	if elemErr != nil {
		return 0, elemErr
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Size: ebm.IOSize{Unit: ebm.ELEMENT_FIXED, Literal: typ.Length},
	}, []ebm.StatementRef{loop}), nil
}

func elementASTType(astType srcast.Type) srcast.Type {
	if arr, ok := astType.(*srcast.ArrayType); ok {
		return resolveASTType(arr.Element)
	}

	return nil
}

// lowerVectorIO covers the variable-length cases: computed length
// (assert + counter loop), follow-to-end (while the stream can supply one
// more byte), eventual-end with a fixed tail (while remaining > tail),
// and a constant terminator (peek, break on match, else decode-append).
// arr may be nil when no source ArrayType backs the vector; the fallback
// is a plain ELEMENT_DYNAMIC descriptor with no lowering.
func (c *Converter) lowerVectorIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typ ebm.Type, arr *srcast.ArrayType, mode GenerateMode) (ebm.StatementRef, error) {
	fieldTypeRef := mustExprType(c.Mod, target)

	if arr == nil {
		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
			Size: ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC},
		}, nil), nil
	}

	elemAST := elementASTType(arr)
	usize := c.internedInt(ebm.USIZE, 64, false)
	boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})

	elem := func(counter ebm.ExpressionRef) (ebm.StatementRef, error) {
		indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: counter})

		return c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
	}

	switch {
	case arr.LenKind == srcast.ArrayLenField:
		lenExpr, err := c.ConvertExpr(arr.LengthField)
		if err != nil {
			return 0, err
		}

		var lowered []ebm.StatementRef

		if mode == ModeEncode {
			// assert ARRAY_SIZE(base) == length before writing elements.
			sizeExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: target})
			eq := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: ebm.OpEq, Left: sizeExpr, Right: lenExpr})
			msg := c.Mod.AddString([]byte("vector length does not match its length field"))
			lowered = append(lowered, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSERT, Cond: eq, Message: msg}))
		}

		var elemErr error

		loop := c.buildCounterLoop(usize, lenExpr, ebm.OpLt, func(counter ebm.ExpressionRef) []ebm.StatementRef {
			io, err := elem(counter)
			if err != nil {
				elemErr = err

				return nil
			}

			return []ebm.StatementRef{io}
		})

		if elemErr != nil {
			return 0, elemErr
		}

		lowered = append(lowered, loop)

		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
			Size: ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC, Expr: lenExpr},
		}, lowered), nil

	case arr.Terminator != nil:
		return c.lowerTerminatedVectorIO(fieldRef, target, fieldTypeRef, typ, arr, elemAST, mode)

	case arr.FollowToEnd || arr.TailSizeBytes > 0:
		lowered, err := c.lowerOpenVectorBody(fieldRef, target, typ, arr, elemAST, mode)
		if err != nil {
			return 0, err
		}

		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
			Size: ebm.IOSize{Unit: ebm.DYNAMIC},
		}, lowered), nil

	default:
		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
			Size: ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC},
		}, nil), nil
	}
}

// lowerOpenVectorBody emits the decode-append loop for an open vector:
// follow-to-end loops `while CAN_READ_STREAM(1)`, an eventual-end vector
// with a fixed tail loops `while GET_REMAINING_BYTES > tail`. The
// encode side is a counter loop over the vector's current size in both
// cases.
func (c *Converter) lowerOpenVectorBody(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typ ebm.Type, arr *srcast.ArrayType, elemAST srcast.Type, mode GenerateMode) ([]ebm.StatementRef, error) {
	usize := c.internedInt(ebm.USIZE, 64, false)
	boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})

	if mode == ModeEncode {
		sizeExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: target})

		var elemErr error

		loop := c.buildCounterLoop(usize, sizeExpr, ebm.OpLt, func(counter ebm.ExpressionRef) []ebm.StatementRef {
			indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: counter})

			io, err := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
			if err != nil {
				elemErr = err

				return nil
			}

			return []ebm.StatementRef{io}
		})

		return []ebm.StatementRef{loop}, elemErr
	}

	var cond ebm.ExpressionRef

	if arr.TailSizeBytes > 0 {
		remaining := c.Mod.AddExpression(ebm.Expression{Kind: ebm.GET_REMAINING_BYTES, Type: usize, Stream: c.currentStream})
		tail := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: arr.TailSizeBytes})
		cond = c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: ebm.OpGt, Left: remaining, Right: tail})
	} else {
		one := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: 1})
		cond = c.Mod.AddExpression(ebm.Expression{Kind: ebm.CAN_READ_STREAM, Type: boolType, Stream: c.currentStream, Amount: one})
	}

	// Decode one element per iteration, appended at the vector's current
	// size.
	sizeExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: target})
	indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: sizeExpr})

	elemIO, err := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
	if err != nil {
		return nil, err
	}

	body := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{elemIO}})
	loop := c.Mod.AddStatement(ebm.Statement{Kind: ebm.LOOP_STATEMENT, LoopType: ebm.WHILE, Cond: cond, Body: body})

	return []ebm.StatementRef{loop}, nil
}

// lowerTerminatedVectorIO handles a vector ended by a constant terminator:
// peek a fixed buffer equal to the terminator; if the peek
// matches, consume it and stop, else decode one element and append.
func (c *Converter) lowerTerminatedVectorIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, fieldTypeRef ebm.TypeRef, typ ebm.Type, arr *srcast.ArrayType, elemAST srcast.Type, mode GenerateMode) (ebm.StatementRef, error) {
	termExpr, err := c.ConvertExpr(arr.Terminator)
	if err != nil {
		return 0, err
	}

	usize := c.internedInt(ebm.USIZE, 64, false)
	boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})

	if mode == ModeEncode {
		// Write every element, then the terminator.
		sizeExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: target})

		var elemErr error

		loop := c.buildCounterLoop(usize, sizeExpr, ebm.OpLt, func(counter ebm.ExpressionRef) []ebm.StatementRef {
			indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: counter})

			io, ioErr := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
			if ioErr != nil {
				elemErr = ioErr

				return nil
			}

			return []ebm.StatementRef{io}
		})

		if elemErr != nil {
			return 0, elemErr
		}

		termType := mustExprType(c.Mod, termExpr)
		termWrite := c.Mod.AddStatement(ebm.Statement{Kind: ebm.WRITE_DATA, IO: ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: termExpr, DataType: termType,
			Size: ebm.IOSize{Unit: ebm.DYNAMIC},
		}})

		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
			Size: ebm.IOSize{Unit: ebm.DYNAMIC},
		}, []ebm.StatementRef{loop, termWrite}), nil
	}

	termType := mustExprType(c.Mod, termExpr)

	peekName := c.Mod.AddIdentifier("peeked")
	peekDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: peekName, Type: termType})
	peekExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: termType, Ident: peekDecl})

	peekIO := c.Mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: peekExpr, DataType: termType,
		Attribute: ebm.IOAttribute{Peek: true},
		Size:      ebm.IOSize{Unit: ebm.DYNAMIC},
	}})

	matches := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: ebm.OpEq, Left: peekExpr, Right: termExpr})

	loopRef := c.Mod.ReserveStatement()

	consume := c.Mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: peekExpr, DataType: termType,
		Size: ebm.IOSize{Unit: ebm.DYNAMIC},
	}})
	brk := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BREAK, RelatedLoop: loopRef})
	breakBlock := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{consume, brk}})

	sizeExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: usize, Base: target})
	indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: sizeExpr})

	elemIO, err := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
	if err != nil {
		return 0, err
	}

	elseBlock := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{elemIO}})
	check := c.Mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: matches, Then: breakBlock, Else: elseBlock})

	body := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{peekDecl, peekIO, check}})

	if err := c.Mod.AddStatementWithID(loopRef, ebm.Statement{Kind: ebm.LOOP_STATEMENT, LoopType: ebm.INFINITE, Body: body}); err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4012", fmt.Sprintf("lower_terminated_vector: %v", err), nil)
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: fieldTypeRef,
		Size: ebm.IOSize{Unit: ebm.DYNAMIC},
	}, []ebm.StatementRef{loopRef}), nil
}

// lowerAlignedVectorIO handles the alignment-padding array:
// the element count is the distance from the current stream offset to the
// next multiple of the alignment.
func (c *Converter) lowerAlignedVectorIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typ ebm.Type, arr *srcast.ArrayType, mode GenerateMode) (ebm.StatementRef, error) {
	padLen, err := c.alignmentPadding(arr.AlignBytes)
	if err != nil {
		return 0, err
	}

	usize := c.internedInt(ebm.USIZE, 64, false)
	elemAST := elementASTType(arr)

	var elemErr error

	loop := c.buildCounterLoop(usize, padLen, ebm.OpLt, func(counter ebm.ExpressionRef) []ebm.StatementRef {
		indexed := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: typ.Element, Base: target, Index: counter})

		io, ioErr := c.lowerTypedIO(fieldRef, typ.Element, elemAST, indexed, 0, mode)
		if ioErr != nil {
			elemErr = ioErr

			return nil
		}

		return []ebm.StatementRef{io}
	})

	if elemErr != nil {
		return 0, elemErr
	}

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: mustExprType(c.Mod, target),
		Size: ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC, Expr: padLen},
	}, []ebm.StatementRef{loop}), nil
}

// alignmentPadding computes the padding distance: for alignment a over the current
// stream offset, ((a - (offset & (a-1))) & (a-1)) when a is a power of
// two, ((a - (offset mod a)) mod a) otherwise. Zero is an error; one
// yields the literal 1.
func (c *Converter) alignmentPadding(a uint64) (ebm.ExpressionRef, error) {
	usize := c.internedInt(ebm.USIZE, 64, false)

	switch {
	case a == 0:
		return 0, errors.NewStandardError(errors.CategoryMalformedInput, "EBM4013", "alignment of zero bytes", nil)
	case a == 1:
		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: 1}), nil
	}

	offset := c.Mod.AddExpression(ebm.Expression{
		Kind: ebm.GET_STREAM_OFFSET, Type: usize, Stream: c.currentStream, Unit: ebm.IOSize{Unit: ebm.BYTE_DYNAMIC},
	})
	alignLit := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: a})

	if a&(a-1) == 0 {
		maskLit := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: usize, IntValue: a - 1})
		offAnd := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpBitAnd, Left: offset, Right: maskLit})
		diff := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpSub, Left: alignLit, Right: offAnd})

		return c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpBitAnd, Left: diff, Right: maskLit}), nil
	}

	offMod := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpMod, Left: offset, Right: alignLit})
	diff := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpSub, Left: alignLit, Right: offMod})

	return c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: usize, BinOp: ebm.OpMod, Left: diff, Right: alignLit}), nil
}

// lowerStructIO calls the nested struct's own encode/decode function with
// the stream as its argument; on error the call result propagates through
// an IS_ERROR check.
func (c *Converter) lowerStructIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, typ ebm.Type, mode GenerateMode) (ebm.StatementRef, error) {
	decl, ok := c.Mod.GetStatement(ebm.StatementRef(typ.ID))
	if !ok || decl.Kind != ebm.STRUCT_DECL {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4014", "lower_struct_io: type does not name a struct decl", nil)
	}

	fnRef := decl.DecodeFn
	if mode == ModeEncode {
		fnRef = decl.EncodeFn
	}

	fn, ok := c.Mod.GetStatement(fnRef)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4015", "lower_struct_io: struct decl without coder function", nil)
	}

	callee := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: fn.ReturnType, Ident: fnRef})
	call := c.Mod.AddExpression(ebm.Expression{
		Kind: ebm.CALL, Type: fn.ReturnType, Callee: callee, Args: []ebm.ExpressionRef{c.currentStream},
	})

	boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
	isErr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IS_ERROR, Type: boolType, Operand: call})

	msg := c.Mod.AddString([]byte("nested coder failed"))
	propagate := c.Mod.AddStatement(ebm.Statement{Kind: ebm.ERROR_RETURN, Message: msg})
	errBlock := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{propagate}})

	callStmt := c.Mod.AddStatement(ebm.Statement{Kind: ebm.EXPRESSION_STATEMENT, Expr: call})
	check := c.Mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: isErr, Then: errBlock})

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Size: ebm.IOSize{Unit: ebm.DYNAMIC},
	}, []ebm.StatementRef{callStmt, check}), nil
}

// lowerVariantIO encodes/decodes a union-typed field by matching on each
// candidate's condition and running the candidate type's own lowering on
// a cast view of the field.
func (c *Converter) lowerVariantIO(fieldRef ebm.StatementRef, target ebm.ExpressionRef, typeRef ebm.TypeRef, typ ebm.Type, astType srcast.Type, mode GenerateMode) (ebm.StatementRef, error) {
	ut, ok := astType.(*srcast.UnionType)
	if !ok || len(typ.MemberTypes) != len(ut.Candidates) {
		return c.emitIO(mode, ebm.IOData{
			IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
			Size: ebm.IOSize{Unit: ebm.DYNAMIC},
		}, nil), nil
	}

	branches := make([]ebm.StatementRef, 0, len(ut.Candidates))

	for i, cand := range ut.Candidates {
		var cond ebm.ExpressionRef

		if cand.Cond != nil {
			cv, err := c.ConvertExpr(cand.Cond)
			if err != nil {
				return 0, err
			}

			cond = cv
		}

		memberType := typ.MemberTypes[i]
		castKind := ebm.InferCastKind(c.typeDescriptorOf(typeRef), c.typeDescriptorOf(memberType))
		view := c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: memberType, CastKind: castKind, Source: target})

		memberIO, err := c.lowerTypedIO(fieldRef, memberType, resolveASTType(cand.Type), view, 0, mode)
		if err != nil {
			return 0, err
		}

		body := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{memberIO}})
		branches = append(branches, c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_BRANCH, Cond: cond, Body: body}))
	}

	match := c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_STATEMENT, Items: branches})

	return c.emitIO(mode, ebm.IOData{
		IORef: c.currentStream, Field: fieldRef, Target: target, DataType: typeRef,
		Size: ebm.IOSize{Unit: ebm.DYNAMIC},
	}, []ebm.StatementRef{match}), nil
}
