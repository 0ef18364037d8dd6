package transform

import (
	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

// bitGroup is one byte-aligned run of fixed-size bit I/O statements
// found along a CFG path: Stmts are in path order, TotalBits is
// their accumulated size, a multiple of 8.
type bitGroup struct {
	Stmts     []ebm.StatementRef
	TotalBits uint64
}

// LowerDynamicBitIO finds every byte-aligned run of BIT_FIXED READ_DATA/
// WRITE_DATA statements reachable along a function's CFG and attaches a
// primitive byte-buffer lowering to each run as an additional
// LOWERED_STATEMENTS alternative.
//
// fn must be a FUNCTION_DECL (encoder or decoder); isDecode selects which
// of the two incremental-buffer forms to emit.
func LowerDynamicBitIO(mod *arena.Module, fnRef ebm.StatementRef, isDecode bool) error {
	fn, ok := mod.GetStatement(fnRef)
	if !ok || fn.Kind != ebm.FUNCTION_DECL {
		return nil
	}

	cfg := BuildCFG(mod, fn.Body)
	cfg.Optimize()

	groups := findBitGroups(mod, cfg)

	for _, g := range groups {
		if err := attachBitGroupLowering(mod, g, isDecode); err != nil {
			return err
		}
	}

	return nil
}

// findBitGroups walks every simple forward path from the entry,
// depth-first over successor edges, accumulating BIT_FIXED statements until a
// multiple of 8 bits is reached or a non-bit-fixed I/O / non-I/O
// statement breaks the run. Each maximal run becomes one group;
// a run of length < 2 is not worth a lowering and is skipped.
func findBitGroups(mod *arena.Module, cfg *CFG) []bitGroup {
	var groups []bitGroup

	visited := make(map[int]bool)

	var walk func(nodeID int, acc []ebm.StatementRef, bits uint64)
	walk = func(nodeID int, acc []ebm.StatementRef, bits uint64) {
		if nodeID == cfg.EndID || nodeID < 0 || nodeID >= len(cfg.Nodes) {
			return
		}

		node := cfg.Nodes[nodeID]
		if node == nil {
			return
		}

		stmtRef := node.Stmt

		newAcc := acc
		newBits := bits

		if !stmtRef.IsNil() {
			s, ok := mod.GetStatement(stmtRef)
			if ok && (s.Kind == ebm.READ_DATA || s.Kind == ebm.WRITE_DATA) && s.IO.Size.Unit == ebm.BIT_FIXED {
				newAcc = append(append([]ebm.StatementRef{}, acc...), stmtRef)
				newBits = bits + s.IO.Size.Literal

				if newBits%8 == 0 {
					if len(newAcc) >= 2 {
						groups = append(groups, bitGroup{Stmts: newAcc, TotalBits: newBits})
					}

					newAcc = nil
					newBits = 0
				}
			} else {
				// Non-bit-fixed I/O (or any other statement) breaks the
				// run; whatever was accumulated so far does not reach a
				// byte boundary and is dropped: a run must
				// reach a byte boundary before any non-fixed-size I/O.
				newAcc = nil
				newBits = 0
			}
		}

		key := nodeID
		if visited[key] && len(newAcc) == 0 {
			return
		}

		visited[key] = true

		for _, e := range node.Succs {
			walk(e.To, newAcc, newBits)
		}
	}

	walk(cfg.EntryID, nil, 0)

	return groups
}

// attachBitGroupLowering builds the incremental byte-buffer block for
// one group and records it on every member statement's
// LOWERED_STATEMENTS alternatives.
func attachBitGroupLowering(mod *arena.Module, g bitGroup, isDecode bool) error {
	bufBytes := g.TotalBits / 8
	u8 := internedU8(mod)
	bufType := mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: bufBytes})

	bufName := mod.AddIdentifier("bitio_buf")
	bufDecl := mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: bufName, Type: bufType})
	bufExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: bufType, Ident: bufDecl})

	var blockItems []ebm.StatementRef

	blockItems = append(blockItems, bufDecl)

	if isDecode {
		firstIO, _ := mod.GetStatement(g.Stmts[0])
		read := mod.AddStatement(ebm.Statement{
			Kind: ebm.READ_DATA,
			IO: ebm.IOData{
				IORef:    firstIO.IO.IORef,
				Target:   bufExpr,
				DataType: bufType,
				Size:     ebm.IOSize{Unit: ebm.ELEMENT_FIXED, Literal: bufBytes},
			},
		})
		blockItems = append(blockItems, read)
	}

	bitsProcessed := uint64(0)

	for _, stmtRef := range g.Stmts {
		s, _ := mod.GetStatement(stmtRef)

		bitSize := s.IO.Size.Literal

		extractStmts := emitBitExtraction(mod, bufExpr, s.IO.Target, s.IO.DataType, bitsProcessed, bitSize, g.TotalBits, s.IO.Attribute.Endian == ebm.EndianBig, isDecode)
		blockItems = append(blockItems, extractStmts...)

		bitsProcessed += bitSize
	}

	if !isDecode {
		lastIO, _ := mod.GetStatement(g.Stmts[len(g.Stmts)-1])
		write := mod.AddStatement(ebm.Statement{
			Kind: ebm.WRITE_DATA,
			IO: ebm.IOData{
				IORef:    lastIO.IO.IORef,
				Target:   bufExpr,
				DataType: bufType,
				Size:     ebm.IOSize{Unit: ebm.ELEMENT_FIXED, Literal: bufBytes},
			},
		})
		blockItems = append(blockItems, write)
	}

	block := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: blockItems})

	for _, stmtRef := range g.Stmts {
		s, _ := mod.GetStatement(stmtRef)

		var alts []ebm.StatementRef
		if !s.Lowered.IsNil() {
			lowered, ok := mod.GetStatement(s.Lowered)
			if ok {
				alts = append(alts, lowered.Items...)
			}
		}

		alts = append(alts, block)

		loweredRef := mod.AddStatement(ebm.Statement{Kind: ebm.LOWERED_STATEMENTS, Items: alts})

		s.Lowered = loweredRef
		s.IO.Attribute.HasLoweredStatement = true
		s.IO.LoweredStatement = loweredRef

		if mut, ok := mod.Statements.GetMut(ebm.Ref(stmtRef)); ok {
			*mut = s
		}
	}

	return nil
}

// emitBitExtraction builds the read or write form of the canonical
// bit-extraction/insertion formula for one field's bits within
// a shared buffer, as a constant-folded (compile-time offsets) sequence
// of statements.
func emitBitExtraction(mod *arena.Module, bufExpr ebm.ExpressionRef, target ebm.ExpressionRef, dataType ebm.TypeRef, bitsProcessed, bitSize, _ uint64, bigEndian bool, isDecode bool) []ebm.StatementRef {
	var stmts []ebm.StatementRef

	u8 := internedU8(mod)
	curBit := bitsProcessed
	remaining := bitSize

	resultType := dataType
	if isDecode {
		resultDeclName := mod.AddIdentifier("bitio_field")
		resultDecl := mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: resultDeclName, Type: resultType})
		stmts = append(stmts, resultDecl)

		resultExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: resultType, Ident: resultDecl})

		bitsDone := uint64(0)

		for remaining > 0 {
			offset := curBit / 8
			bitOffset := curBit % 8
			bitToRead := minU64(8-bitOffset, remaining)

			byteShift := littleBigShift(bigEndian, 8-bitToRead-bitOffset, bitOffset)
			exprShift := littleBigShift(bigEndian, bitSize-bitsDone-bitToRead, bitsDone)
			mask := (uint64(1) << bitToRead) - 1

			idxExpr := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: offset})
			byteExpr := mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: bufExpr, Index: idxExpr})

			shiftLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: byteShift})
			shifted := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: u8, BinOp: ebm.OpShr, Left: byteExpr, Right: shiftLit})

			maskLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: mask})
			piece := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: u8, BinOp: ebm.OpBitAnd, Left: shifted, Right: maskLit})

			pieceCast := mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: resultType, CastKind: ebm.SMALL_INT_TO_LARGE_INT, Source: piece})
			exprShiftLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: resultType, IntValue: exprShift})
			contribution := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: resultType, BinOp: ebm.OpShl, Left: pieceCast, Right: exprShiftLit})

			orWithResult := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: resultType, BinOp: ebm.OpBitOr, Left: resultExpr, Right: contribution})
			stmts = append(stmts, mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: resultExpr, Value: orWithResult}))

			curBit += bitToRead
			bitsDone += bitToRead
			remaining -= bitToRead
		}

		stmts = append(stmts, mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: resultExpr}))

		return stmts
	}

	bitsDone := uint64(0)

	for remaining > 0 {
		offset := curBit / 8
		bitOffset := curBit % 8
		bitToWrite := minU64(8-bitOffset, remaining)

		byteShift := littleBigShift(bigEndian, 8-bitToWrite-bitOffset, bitOffset)
		exprShift := littleBigShift(bigEndian, bitSize-bitsDone-bitToWrite, bitsDone)
		mask := (uint64(1) << bitToWrite) - 1

		exprShiftLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: dataType, IntValue: exprShift})
		shifted := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: dataType, BinOp: ebm.OpShr, Left: target, Right: exprShiftLit})

		maskLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: dataType, IntValue: mask})
		piece := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: dataType, BinOp: ebm.OpBitAnd, Left: shifted, Right: maskLit})
		pieceCast := mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: u8, CastKind: ebm.LARGE_INT_TO_SMALL_INT, Source: piece})

		byteShiftLit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: byteShift})
		placed := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: u8, BinOp: ebm.OpShl, Left: pieceCast, Right: byteShiftLit})

		idxExpr := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: offset})
		byteExpr := mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: bufExpr, Index: idxExpr})
		orWithByte := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: u8, BinOp: ebm.OpBitOr, Left: byteExpr, Right: placed})

		stmts = append(stmts, mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: byteExpr, Value: orWithByte}))

		curBit += bitToWrite
		bitsDone += bitToWrite
		remaining -= bitToWrite
	}

	return stmts
}

func littleBigShift(bigEndian bool, big, little uint64) uint64 {
	if bigEndian {
		return big
	}

	return little
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}

	return b
}

// internedU8 returns the arena's existing 8-bit unsigned type if one was
// already interned (by the converter or an earlier transform pass) and
// adds one otherwise; avoids growing the types arena with a fresh
// identical UINT(8) per bit-io group.
func internedU8(mod *arena.Module) ebm.TypeRef {
	for _, e := range mod.Types.Entries() {
		if e.Body.Kind == ebm.UINT && e.Body.Size == 8 {
			return ebm.TypeRef(e.ID)
		}
	}

	return mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
}
