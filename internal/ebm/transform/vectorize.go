package transform

import (
	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

// VectorizeBlock finds every maximal run (length >= 2) of adjacent
// READ_DATA (or adjacent WRITE_DATA) statements in blockRef with
// statically-known fixed sizes and coalesces each run into one I/O
// statement over a combined temporary buffer. It returns the new
// block's StatementRef and an old->new statement-ref map for statements
// that were replaced, so callers can rewrite out-of-block references
//.
func VectorizeBlock(mod *arena.Module, blockRef ebm.StatementRef) (ebm.StatementRef, map[ebm.StatementRef]ebm.StatementRef, error) {
	block, ok := mod.GetStatement(blockRef)
	if !ok || block.Kind != ebm.BLOCK {
		return blockRef, nil, nil
	}

	replacements := make(map[ebm.StatementRef]ebm.StatementRef)
	newItems := make([]ebm.StatementRef, 0, len(block.Items))

	i := 0
	for i < len(block.Items) {
		runEnd := i + 1

		first, ok := mod.GetStatement(block.Items[i])
		if !ok || !isFixedIO(first) {
			newItems = append(newItems, block.Items[i])
			i++

			continue
		}

		for runEnd < len(block.Items) {
			next, ok := mod.GetStatement(block.Items[runEnd])
			if !ok || next.Kind != first.Kind || !isFixedIO(next) {
				break
			}

			runEnd++
		}

		runLen := runEnd - i
		if runLen < 2 {
			newItems = append(newItems, block.Items[i])
			i++

			continue
		}

		run := block.Items[i:runEnd]

		combined, err := combineRun(mod, run, first.Kind)
		if err != nil {
			return 0, nil, err
		}

		for _, old := range run {
			replacements[old] = combined
		}

		newItems = append(newItems, combined)
		i = runEnd
	}

	newBlock := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: newItems})

	return newBlock, replacements, nil
}

func isFixedIO(s ebm.Statement) bool {
	if s.Kind != ebm.READ_DATA && s.Kind != ebm.WRITE_DATA {
		return false
	}

	return s.IO.Size.IsFixed() && s.IO.Size.Unit != ebm.ELEMENT_FIXED
}

// combineRun builds the single coalesced I/O statement for one run:
// total size is the sum of the run's bit sizes; if that sum is
// a multiple of 8 the combined buffer is u8[n/8], else a single
// uint<n>-bit value. The original per-field I/O statements are preserved
// unchanged inside the combined statement's LoweredStatement as a BLOCK,
// in source order.
func combineRun(mod *arena.Module, run []ebm.StatementRef, kind ebm.StatementKind) (ebm.StatementRef, error) {
	var totalBits uint64

	var ioRef ebm.ExpressionRef

	for idx, ref := range run {
		s, _ := mod.GetStatement(ref)

		bits := s.IO.Size.Literal
		if s.IO.Size.Unit == ebm.BYTE_FIXED {
			bits *= 8
		}

		totalBits += bits

		if idx == 0 {
			ioRef = s.IO.IORef
		}
	}

	u8 := internedU8(mod)

	var bufType ebm.TypeRef

	var size ebm.IOSize

	if totalBits%8 == 0 {
		bufType = mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: totalBits / 8})
		size = ebm.IOSize{Unit: ebm.ELEMENT_FIXED, Literal: totalBits / 8}
	} else {
		bufType = mod.AddType(ebm.Type{Kind: ebm.UINT, Size: totalBits})
		size = ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: totalBits}
	}

	bufName := mod.AddIdentifier("vec_buf")
	bufDecl := mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: bufName, Type: bufType})
	bufExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: bufType, Ident: bufDecl})

	lowered := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: run})

	combined := mod.AddStatement(ebm.Statement{
		Kind: kind,
		IO: ebm.IOData{
			IORef:            ioRef,
			Target:           bufExpr,
			DataType:         bufType,
			Size:             size,
			Attribute:        ebm.IOAttribute{HasLoweredStatement: true},
			LoweredStatement: lowered,
		},
	})

	wrapper := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{bufDecl, combined}})

	return wrapper, nil
}

// RewriteStatementRefs applies an old->new statement-ref substitution to
// every statement/expression/IOData field in the module that can hold a
// StatementRef, enumerating those fields directly, so vectorization
// updates every out-of-block reference too. The BLOCK each combined
// statement keeps its run's originals in is left untouched.
func RewriteStatementRefs(mod *arena.Module, replacements map[ebm.StatementRef]ebm.StatementRef) {
	if len(replacements) == 0 {
		return
	}

	rewrite := func(r ebm.Ref) ebm.Ref {
		if nr, ok := replacements[ebm.StatementRef(r)]; ok {
			return ebm.Ref(nr)
		}

		return r
	}

	keep := make(map[ebm.Ref]bool)

	for _, wrapperRef := range replacements {
		wrapper, _ := mod.GetStatement(wrapperRef)
		for _, item := range wrapper.Items {
			if s, ok := mod.GetStatement(item); ok && s.IO.Attribute.HasLoweredStatement {
				keep[ebm.Ref(s.IO.LoweredStatement)] = true
			}
		}
	}

	stmts := mod.Statements.Entries()
	for i := range stmts {
		if keep[stmts[i].ID] {
			continue
		}

		rewriteStatementBody(&stmts[i].Body, rewrite)
	}

	exprs := mod.Expressions.Entries()
	for i := range exprs {
		e := &exprs[i].Body

		if nr, ok := replacements[e.Ident]; ok {
			e.Ident = nr
		}

		if nr, ok := replacements[e.Statement]; ok {
			e.Statement = nr
		}

		if nr, ok := replacements[e.IO.Field]; ok {
			e.IO.Field = nr
		}

		if nr, ok := replacements[e.Setup]; ok {
			e.Setup = nr
		}

		if nr, ok := replacements[e.IO.LoweredStatement]; ok {
			e.IO.LoweredStatement = nr
		}
	}
}

func rewriteStatementBody(s *ebm.Statement, rewrite func(ebm.Ref) ebm.Ref) {
	s.Then = ebm.StatementRef(rewrite(ebm.Ref(s.Then)))
	s.Else = ebm.StatementRef(rewrite(ebm.Ref(s.Else)))
	s.Init = ebm.StatementRef(rewrite(ebm.Ref(s.Init)))
	s.Increment = ebm.StatementRef(rewrite(ebm.Ref(s.Increment)))
	s.Item = ebm.StatementRef(rewrite(ebm.Ref(s.Item)))
	s.Body = ebm.StatementRef(rewrite(ebm.Ref(s.Body)))
	s.RelatedLoop = ebm.StatementRef(rewrite(ebm.Ref(s.RelatedLoop)))
	s.EncodeFn = ebm.StatementRef(rewrite(ebm.Ref(s.EncodeFn)))
	s.DecodeFn = ebm.StatementRef(rewrite(ebm.Ref(s.DecodeFn)))
	s.Field = ebm.StatementRef(rewrite(ebm.Ref(s.Field)))
	s.Getter = ebm.StatementRef(rewrite(ebm.Ref(s.Getter)))
	s.Setter = ebm.StatementRef(rewrite(ebm.Ref(s.Setter)))
	s.VectorSetter = ebm.StatementRef(rewrite(ebm.Ref(s.VectorSetter)))
	s.Lowered = ebm.StatementRef(rewrite(ebm.Ref(s.Lowered)))
	s.IO.Field = ebm.StatementRef(rewrite(ebm.Ref(s.IO.Field)))
	s.IO.LoweredStatement = ebm.StatementRef(rewrite(ebm.Ref(s.IO.LoweredStatement)))

	for i, item := range s.Items {
		s.Items[i] = ebm.StatementRef(rewrite(ebm.Ref(item)))
	}
}
