package conv

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// convertCoderFunction synthesizes one FUNCTION_DECL of the eager
// encoder/decoder pair: a stream parameter plus a body that
// mirrors the struct's field tree with each FIELD_DECL replaced by its
// READ_DATA or WRITE_DATA lowering. Encoder and decoder share the same
// source-level control-flow shape (ifs, loops, matches) and differ only
// in the per-field I/O direction, so both calls walk the identical
// fieldRefs tree through lowerFieldTree with a different mode.
func (c *Converter) convertCoderFunction(fieldRefs []ebm.StatementRef, mode GenerateMode) (ebm.StatementRef, error) {
	fnRef := c.Mod.ReserveStatement()

	c.pushScope()
	defer c.popScope()

	var (
		paramType ebm.TypeRef
		retType   ebm.TypeRef
		funcKind  ebm.FuncDeclKind
		paramName string
	)

	if mode == ModeEncode {
		paramType = c.Mod.AddType(ebm.Type{Kind: ebm.ENCODER_INPUT})
		retType = c.Mod.AddType(ebm.Type{Kind: ebm.ENCODER_RETURN})
		funcKind = ebm.ENCODER
		paramName = "w"
	} else {
		paramType = c.Mod.AddType(ebm.Type{Kind: ebm.DECODER_INPUT})
		retType = c.Mod.AddType(ebm.Type{Kind: ebm.DECODER_RETURN})
		funcKind = ebm.DECODER
		paramName = "r"
	}

	streamName := c.Mod.AddIdentifier(paramName)
	streamParam := c.Mod.AddStatement(ebm.Statement{Kind: ebm.PARAMETER_DECL, Name: streamName, Type: paramType})
	c.scope.bind(paramName, streamParam)

	streamExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: paramType, Ident: streamParam})

	prevStream := c.currentStream
	c.currentStream = streamExpr

	defer func() { c.currentStream = prevStream }()

	prevMode := c.mode
	c.mode = mode

	defer func() { c.mode = prevMode }()

	items := make([]ebm.StatementRef, 0, len(fieldRefs))

	for _, f := range fieldRefs {
		lowered, err := c.lowerFieldTree(f, mode)
		if err != nil {
			return 0, err
		}

		if !lowered.IsNil() {
			items = append(items, lowered)
		}
	}

	body := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: items})

	err := c.Mod.AddStatementWithID(fnRef, ebm.Statement{
		Kind:       ebm.FUNCTION_DECL,
		Items:      []ebm.StatementRef{streamParam},
		ReturnType: retType,
		Body:       body,
		FuncKind:   funcKind,
	})
	if err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4001", fmt.Sprintf("convert_coder_function: %v", err), nil)
	}

	return fnRef, nil
}

// lowerFieldTree walks a statement already produced by convertFieldList
// and rebuilds its encoder/decoder-specific counterpart: FIELD_DECL
// leaves become READ_DATA/WRITE_DATA, control-flow shapes (BLOCK,
// IF_STATEMENT, LOOP_STATEMENT, MATCH_STATEMENT) are rebuilt with their
// bodies lowered recursively, and every other kind (already directly
// executable in either direction — asserts, user assignments, state
// variable decls) is reused unchanged.
func (c *Converter) lowerFieldTree(ref ebm.StatementRef, mode GenerateMode) (ebm.StatementRef, error) {
	if ref.IsNil() {
		return 0, nil
	}

	s, ok := c.Mod.GetStatement(ref)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM4002", "lower_field_tree: dangling field ref", nil)
	}

	switch s.Kind {
	case ebm.FIELD_DECL:
		return c.lowerFieldIO(ref, s, mode)

	case ebm.BLOCK:
		items := make([]ebm.StatementRef, 0, len(s.Items))

		for _, item := range s.Items {
			lowered, err := c.lowerFieldTree(item, mode)
			if err != nil {
				return 0, err
			}

			if !lowered.IsNil() {
				items = append(items, lowered)
			}
		}

		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: items}), nil

	case ebm.IF_STATEMENT:
		then, err := c.lowerFieldTree(s.Then, mode)
		if err != nil {
			return 0, err
		}

		var elseRef ebm.StatementRef

		if !s.Else.IsNil() {
			e, err := c.lowerFieldTree(s.Else, mode)
			if err != nil {
				return 0, err
			}

			elseRef = e
		}

		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: s.Cond, Then: then, Else: elseRef}), nil

	case ebm.LOOP_STATEMENT:
		body, err := c.lowerFieldTree(s.Body, mode)
		if err != nil {
			return 0, err
		}

		lowered := s
		lowered.Body = body

		return c.Mod.AddStatement(lowered), nil

	case ebm.MATCH_STATEMENT:
		branches := make([]ebm.StatementRef, 0, len(s.Items))

		for _, b := range s.Items {
			branch, ok := c.Mod.GetStatement(b)
			if !ok {
				continue
			}

			body, err := c.lowerFieldTree(branch.Body, mode)
			if err != nil {
				return 0, err
			}

			branches = append(branches, c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_BRANCH, Cond: branch.Cond, Body: body}))
		}

		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_STATEMENT, Cond: s.Cond, Items: branches}), nil

	default:
		return ref, nil
	}
}

// lowerFieldIO builds the READ_DATA/WRITE_DATA statement for one
// FIELD_DECL: the IOData's target is an IDENTIFIER expression
// naming the field; the per-type lowering lives in encode_lowering.go.
func (c *Converter) lowerFieldIO(fieldRef ebm.StatementRef, field ebm.Statement, mode GenerateMode) (ebm.StatementRef, error) {
	target := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: field.Type, Ident: fieldRef})

	var astType srcast.Type

	if fd, ok := c.fieldAST[fieldRef]; ok {
		astType = resolveASTType(fd.Type)
	}

	return c.lowerTypedIO(fieldRef, field.Type, astType, target, field.BitSize, mode)
}

// resolveASTType follows IdentType aliases down to the concrete declared
// type, the same way ConvertType does before dispatching.
func resolveASTType(t srcast.Type) srcast.Type {
	for {
		alias, ok := t.(*srcast.IdentType)
		if !ok || alias.Base == nil {
			return t
		}

		t = alias.Base
	}
}

// deriveIOSize computes a type's IOSize: fixed-width
// scalars report BIT_FIXED using bits (an explicit bits= override takes
// priority over the type's natural width); fixed arrays report
// ELEMENT_FIXED; everything else (vectors, variants, structs with their
// own encode/decode) is DYNAMIC and sized by its own nested coder.
func (c *Converter) deriveIOSize(t ebm.TypeRef, bitOverride uint64) (ebm.IOSize, error) {
	typ, ok := c.Mod.GetType(t)
	if !ok {
		return ebm.IOSize{}, errors.NewStandardError(errors.CategoryInternal, "EBM4003", "derive_io_size: dangling type ref", nil)
	}

	switch typ.Kind {
	case ebm.INT, ebm.UINT, ebm.FLOAT, ebm.BOOL:
		bits := typ.Size
		if typ.Kind == ebm.BOOL {
			bits = 1
		}

		if bitOverride != 0 {
			bits = bitOverride
		}

		return ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: bits}, nil

	case ebm.ENUM:
		return c.deriveIOSize(typ.BaseType, bitOverride)

	case ebm.ARRAY:
		return ebm.IOSize{Unit: ebm.ELEMENT_FIXED, Literal: typ.Length}, nil

	case ebm.VECTOR:
		return ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC}, nil

	default:
		return ebm.IOSize{Unit: ebm.DYNAMIC}, nil
	}
}
