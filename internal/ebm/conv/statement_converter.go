package conv

import (
	"fmt"
	"strconv"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

// convertFormat lowers one Format into a STRUCT_DECL plus its synthesized
// encoder/decoder pair: the struct's id is reserved up front so a
// recursive format's own RECURSIVE_STRUCT type can reference it while its
// fields are still being converted.
func (c *Converter) convertFormat(f *srcast.Format) (ebm.StatementRef, error) {
	if ref, ok := c.visited[f]; ok {
		return ref, nil
	}

	declRef := c.Mod.ReserveStatement()

	// Inserted before the body is built, so a recursive format reaching
	// itself through one of its own field types resolves to the reserved
	// id instead of converting again.
	c.visited[f] = declRef

	c.pushScope()
	defer c.popScope()

	var items []ebm.StatementRef

	for _, sv := range f.State {
		ref, err := c.convertStateVar(sv)
		if err != nil {
			return 0, err
		}

		items = append(items, ref)
	}

	fieldRefs, err := c.convertFieldList(f.Fields)
	if err != nil {
		return 0, err
	}

	// The struct's member list groups adjacent bit fields under one
	// COMPOSITE_FIELD_DECL; the coder functions keep working off the
	// ungrouped fieldRefs, which stay valid through the composite's own
	// field list.
	items = append(items, c.groupCompositeFields(fieldRefs)...)

	props, err := c.synthesizeUnionProperties(f, fieldRefs)
	if err != nil {
		return 0, err
	}

	items = append(items, props...)

	for _, fn := range f.Functions {
		ref, err := c.convertUserFunction(fn)
		if err != nil {
			return 0, err
		}

		items = append(items, ref)
	}

	encRef, err := c.convertCoderFunction(fieldRefs, ModeEncode)
	if err != nil {
		return 0, err
	}

	decRef, err := c.convertCoderFunction(fieldRefs, ModeDecode)
	if err != nil {
		return 0, err
	}

	err = c.Mod.AddStatementWithID(declRef, ebm.Statement{
		Kind:      ebm.STRUCT_DECL,
		Items:     items,
		EncodeFn:  encRef,
		DecodeFn:  decRef,
		Recursive: f.Recursive,
	})
	if err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM3001", fmt.Sprintf("convert_format: %v", err), nil)
	}

	return declRef, nil
}

// groupCompositeFields collapses each run (length >= 2) of adjacent
// sub-byte bit fields into a COMPOSITE_FIELD_DECL whose type is an
// unsigned integer of the run's total bit width. Everything else passes
// through in source order.
func (c *Converter) groupCompositeFields(fieldRefs []ebm.StatementRef) []ebm.StatementRef {
	bitWidth := func(ref ebm.StatementRef) uint64 {
		s, ok := c.Mod.GetStatement(ref)
		if !ok || s.Kind != ebm.FIELD_DECL {
			return 0
		}

		if s.BitSize != 0 {
			return s.BitSize
		}

		t, ok := c.Mod.GetType(s.Type)
		if !ok {
			return 0
		}

		switch {
		case t.Kind == ebm.BOOL:
			return 1
		case (t.Kind == ebm.INT || t.Kind == ebm.UINT) && t.Size%8 != 0:
			return t.Size
		default:
			return 0
		}
	}

	out := make([]ebm.StatementRef, 0, len(fieldRefs))

	for i := 0; i < len(fieldRefs); {
		if bitWidth(fieldRefs[i]) == 0 {
			out = append(out, fieldRefs[i])
			i++

			continue
		}

		runEnd := i
		total := uint64(0)

		for runEnd < len(fieldRefs) {
			w := bitWidth(fieldRefs[runEnd])
			if w == 0 {
				break
			}

			total += w
			runEnd++
		}

		if runEnd-i < 2 {
			out = append(out, fieldRefs[i])
			i++

			continue
		}

		group := make([]ebm.StatementRef, runEnd-i)
		copy(group, fieldRefs[i:runEnd])

		combined := c.internedInt(ebm.UINT, total, false)
		out = append(out, c.Mod.AddStatement(ebm.Statement{
			Kind: ebm.COMPOSITE_FIELD_DECL, Type: combined, Items: group,
		}))

		i = runEnd
	}

	return out
}

func (c *Converter) convertStateVar(sv *srcast.StateVar) (ebm.StatementRef, error) {
	t, err := c.ConvertType(sv.Type, nil)
	if err != nil {
		return 0, err
	}

	name := c.Mod.AddIdentifier(sv.Name)
	ref := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: name, Type: t})
	c.scope.bind(sv.Name, ref)

	return ref, nil
}

// convertFieldList walks one Format's field list in source order,
// converting each field/nested-control-statement and binding every
// FIELD_DECL it produces into scope so later fields (length expressions,
// conditions) can reference earlier ones.
func (c *Converter) convertFieldList(fields []srcast.Statement) ([]ebm.StatementRef, error) {
	refs := make([]ebm.StatementRef, 0, len(fields))

	for _, stmt := range fields {
		ref, err := c.convertBodyStatement(stmt)
		if err != nil {
			return nil, err
		}

		refs = append(refs, ref)
	}

	return refs, nil
}

// convertBodyStatement dispatches convert_statement over every surface
// statement shape a Format body or function body may contain. The
// visited map guarantees each AST node yields at most one EBM statement,
// however many paths reach it.
func (c *Converter) convertBodyStatement(s srcast.Statement) (ebm.StatementRef, error) {
	if ref, ok := c.visited[s]; ok {
		return ref, nil
	}

	ref, err := c.convertBodyStatementUncached(s)
	if err != nil {
		return 0, err
	}

	c.visited[s] = ref

	return ref, nil
}

func (c *Converter) convertBodyStatementUncached(s srcast.Statement) (ebm.StatementRef, error) {
	switch n := s.(type) {
	case *srcast.FieldDecl:
		return c.convertFieldDecl(n)

	case *srcast.IndentBlock:
		return c.convertBlock(n)

	case *srcast.ScopedStatement:
		return c.convertBodyStatement(n.Body)

	case *srcast.If:
		return c.convertIf(n)

	case *srcast.Loop:
		return c.convertLoopBody(n)

	case *srcast.Match:
		return c.convertMatch(n)

	case *srcast.Return:
		return c.convertReturn(n)

	case *srcast.Break:
		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.BREAK, RelatedLoop: c.currentLoop}), nil

	case *srcast.Continue:
		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.CONTINUE, RelatedLoop: c.currentLoop}), nil

	case *srcast.Assert:
		return c.convertAssert(n)

	case *srcast.ExplicitError:
		msg := c.Mod.AddString([]byte(n.Message))

		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.ERROR_RETURN, Message: msg}), nil

	case *srcast.Assign:
		return c.convertAssign(n)

	case *srcast.ImplicitYield:
		val, err := c.ConvertExpr(n.Value)
		if err != nil {
			return 0, err
		}

		return c.Mod.AddStatement(ebm.Statement{Kind: ebm.EXPRESSION_STATEMENT, Expr: val}), nil

	default:
		return 0, errors.NewStandardErrorAt(errors.CategoryUnsupported, "EBM3002",
			fmt.Sprintf("convert_statement: unsupported AST statement %T", s), s.GetSpan(), nil)
	}
}

func (c *Converter) convertBlock(n *srcast.IndentBlock) (ebm.StatementRef, error) {
	items := make([]ebm.StatementRef, 0, len(n.Statements))

	for _, s := range n.Statements {
		ref, err := c.convertBodyStatement(s)
		if err != nil {
			return 0, err
		}

		items = append(items, ref)
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: items}), nil
}

func (c *Converter) convertFieldDecl(n *srcast.FieldDecl) (ebm.StatementRef, error) {
	t, err := c.ConvertType(n.Type, n)
	if err != nil {
		return 0, err
	}

	name := c.Mod.AddIdentifier(n.Name)
	ref := c.Mod.AddStatement(ebm.Statement{
		Kind:    ebm.FIELD_DECL,
		Name:    name,
		Type:    t,
		BitSize: bitSizeOf(n.Metadata),
	})
	c.scope.bind(n.Name, ref)
	c.fieldAST[ref] = n

	return ref, nil
}

// bitSizeOf reads a field's `bits=N` metadata annotation; 0 means
// the field's natural type width applies unmodified.
func bitSizeOf(meta []*srcast.Metadata) uint64 {
	for _, m := range meta {
		if m.Key == "bits" {
			if v, err := strconv.ParseUint(m.Value, 10, 64); err == nil {
				return v
			}
		}
	}

	return 0
}

func (c *Converter) convertIf(n *srcast.If) (ebm.StatementRef, error) {
	cond, err := c.ConvertExpr(n.Condition)
	if err != nil {
		return 0, err
	}

	then, err := c.convertBodyStatement(n.Then)
	if err != nil {
		return 0, err
	}

	var elseRef ebm.StatementRef

	if n.Else != nil {
		e, err := c.convertBodyStatement(n.Else)
		if err != nil {
			return 0, err
		}

		elseRef = e
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: cond, Then: then, Else: elseRef}), nil
}

// convertLoopBody lowers any of the four surface loop shapes to a single
// EBM LOOP_STATEMENT: LoopFor keeps its own init/cond/step; LoopWhile
// supplies only cond; LoopForEach binds the named item variable over the
// collection and carries a counter-loop lowered form (lowerForEach);
// LoopInfinite leaves init/cond/step nil (a bare `loop { ... }`,
// terminated only by break).
func (c *Converter) convertLoopBody(n *srcast.Loop) (ebm.StatementRef, error) {
	loopRef := c.Mod.ReserveStatement()

	prevLoop := c.currentLoop
	c.currentLoop = loopRef

	defer func() { c.currentLoop = prevLoop }()

	c.pushScope()
	defer c.popScope()

	stmt := ebm.Statement{Kind: ebm.LOOP_STATEMENT}

	switch n.Kind {
	case srcast.LoopFor:
		stmt.LoopType = ebm.FOR

		if n.Init != nil {
			ref, err := c.convertBodyStatement(n.Init)
			if err != nil {
				return 0, err
			}

			stmt.Init = ref
		}

		if n.Condition != nil {
			ref, err := c.ConvertExpr(n.Condition)
			if err != nil {
				return 0, err
			}

			stmt.Cond = ref
		}

		if n.Step != nil {
			ref, err := c.convertBodyStatement(n.Step)
			if err != nil {
				return 0, err
			}

			stmt.Increment = ref
		}

		// A `for` without init and step is a while loop in disguise; with
		// nothing at all it is an infinite loop.
		if stmt.Init.IsNil() && stmt.Increment.IsNil() {
			if stmt.Cond.IsNil() {
				stmt.LoopType = ebm.INFINITE
			} else {
				stmt.LoopType = ebm.WHILE
			}
		}

	case srcast.LoopWhile:
		stmt.LoopType = ebm.WHILE

		cond, err := c.ConvertExpr(n.Condition)
		if err != nil {
			return 0, err
		}

		stmt.Cond = cond

	case srcast.LoopForEach:
		stmt.LoopType = ebm.FOR_EACH

		collection, err := c.ConvertExpr(n.Collection)
		if err != nil {
			return 0, err
		}

		stmt.Collection = collection

		itemType := ebm.TypeRef(0)

		if ct, ok := c.Mod.GetType(mustExprType(c.Mod, collection)); ok {
			switch ct.Kind {
			case ebm.ARRAY, ebm.VECTOR:
				itemType = ct.Element
			case ebm.RANGE:
				itemType = ct.BaseType
			case ebm.INT, ebm.UINT, ebm.USIZE:
				// Counting over an integer: the item is the counter itself.
				itemType = mustExprType(c.Mod, collection)
			}
		}

		if itemType.IsNil() {
			itemType = c.internedInt(ebm.UINT, 64, false)
		}

		itemName := c.Mod.AddIdentifier(n.ItemName)
		itemRef := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: itemName, Type: itemType})
		c.scope.bind(n.ItemName, itemRef)
		stmt.Item = itemRef

	case srcast.LoopInfinite:
		stmt.LoopType = ebm.INFINITE
	}

	body, err := c.convertBodyStatement(n.Body)
	if err != nil {
		return 0, err
	}

	stmt.Body = body

	if stmt.LoopType == ebm.FOR_EACH {
		lowered, err := c.lowerForEach(&stmt, n)
		if err != nil {
			return 0, err
		}

		stmt.Lowered = lowered
	}

	if err := c.Mod.AddStatementWithID(loopRef, stmt); err != nil {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM3003", fmt.Sprintf("convert_loop_body: %v", err), nil)
	}

	return loopRef, nil
}

// lowerForEach attaches the counter-loop lowering every FOR_EACH loop
// carries for targets without native iteration: the loop is
// re-expressed as `i = 0; while i < limit { item = <bind>; body; i = i+1 }`
// with the binding chosen by the collection's shape — the counter itself
// for an integer, a cast of the counter for a range, an element load for
// an array/vector, and an element load from a materialized byte buffer
// for a string literal.
func (c *Converter) lowerForEach(stmt *ebm.Statement, n *srcast.Loop) (ebm.StatementRef, error) {
	item, ok := c.Mod.GetStatement(stmt.Item)
	if !ok {
		return 0, errors.NewStandardError(errors.CategoryInternal, "EBM3004", "lower_for_each: loop has no item decl", nil)
	}

	itemExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: item.Type, Ident: stmt.Item})

	counterType := c.internedInt(ebm.USIZE, 64, false)

	var (
		pre     []ebm.StatementRef
		limit   ebm.ExpressionRef
		cmp     = ebm.OpLt
		binding func(counter ebm.ExpressionRef) ebm.ExpressionRef
	)

	switch col := n.Collection.(type) {
	case *srcast.IntLiteral:
		limit = stmt.Collection
		binding = func(counter ebm.ExpressionRef) ebm.ExpressionRef { return counter }

	case *srcast.Range:
		colExpr, ok := c.Mod.GetExpression(stmt.Collection)
		if !ok {
			return 0, errors.NewStandardError(errors.CategoryInternal, "EBM3005", "lower_for_each: dangling range collection", nil)
		}

		limit = colExpr.High

		if col.Inclusive {
			cmp = ebm.OpLe
		}

		castKind := ebm.InferCastKind(c.typeDescriptorOf(counterType), c.typeDescriptorOf(item.Type))
		binding = func(counter ebm.ExpressionRef) ebm.ExpressionRef {
			return c.Mod.AddExpression(ebm.Expression{Kind: ebm.TYPE_CAST, Type: item.Type, CastKind: castKind, Source: counter})
		}

	case *srcast.StrLiteral:
		// Materialize the literal's bytes into a buffer, one assignment
		// per byte, then count over the buffer.
		u8 := c.internedInt(ebm.UINT, 8, false)
		bufType := c.Mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: uint64(len(col.Bytes))})
		bufName := c.Mod.AddIdentifier("strbuf")
		bufDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: bufName, Type: bufType})
		bufExpr := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: bufType, Ident: bufDecl})

		pre = append(pre, bufDecl)

		for i, b := range col.Bytes {
			idx := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: counterType, IntValue: uint64(i)})
			slot := c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: u8, Base: bufExpr, Index: idx})
			val := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: uint64(b)})
			pre = append(pre, c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: slot, Value: val}))
		}

		limit = c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: counterType, IntValue: uint64(len(col.Bytes))})
		binding = func(counter ebm.ExpressionRef) ebm.ExpressionRef {
			return c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: item.Type, Base: bufExpr, Index: counter})
		}

	default:
		limit = c.Mod.AddExpression(ebm.Expression{Kind: ebm.ARRAY_SIZE, Type: counterType, Base: stmt.Collection})
		binding = func(counter ebm.ExpressionRef) ebm.ExpressionRef {
			return c.Mod.AddExpression(ebm.Expression{Kind: ebm.INDEX_ACCESS, Type: item.Type, Base: stmt.Collection, Index: counter})
		}
	}

	loop := c.buildCounterLoop(counterType, limit, cmp, func(counter ebm.ExpressionRef) []ebm.StatementRef {
		bind := c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: itemExpr, Value: binding(counter)})

		return []ebm.StatementRef{stmt.Item, bind, stmt.Body}
	})

	// The counter loop's own BLOCK (`i = 0; while ...`) is the lowered
	// block; any materialization statements go in front of it.
	if len(pre) > 0 {
		block, _ := c.Mod.Statements.GetMut(ebm.Ref(loop))
		block.Items = append(pre, block.Items...)
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.LOWERED_STATEMENTS, Items: []ebm.StatementRef{loop}}), nil
}

// buildCounterLoop emits `i = 0; while i cmp limit { <bodyOf(i)>; i = i+1 }`
// wrapped in one BLOCK, the shared skeleton of every FOR_EACH lowering and
// of the fixed-array encode/decode loops.
func (c *Converter) buildCounterLoop(counterType ebm.TypeRef, limit ebm.ExpressionRef, cmp ebm.BinaryOp, bodyOf func(counter ebm.ExpressionRef) []ebm.StatementRef) ebm.StatementRef {
	zero := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: counterType, IntValue: 0})
	counterName := c.Mod.AddIdentifier("i")
	counterDecl := c.Mod.AddStatement(ebm.Statement{Kind: ebm.VARIABLE_DECL, Name: counterName, Type: counterType, Value: zero})
	counter := c.Mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: counterType, Ident: counterDecl})

	boolType := c.Mod.AddType(ebm.Type{Kind: ebm.BOOL})
	cond := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: boolType, BinOp: cmp, Left: counter, Right: limit})

	one := c.Mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: counterType, IntValue: 1})
	incVal := c.Mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: counterType, BinOp: ebm.OpAdd, Left: counter, Right: one})
	inc := c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: counter, Value: incVal})

	bodyItems := append(bodyOf(counter), inc)
	body := c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: bodyItems})

	loop := c.Mod.AddStatement(ebm.Statement{Kind: ebm.LOOP_STATEMENT, LoopType: ebm.WHILE, Cond: cond, Body: body})

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{counterDecl, loop}})
}

func mustExprType(m *arena.Module, ref ebm.ExpressionRef) ebm.TypeRef {
	e, ok := m.GetExpression(ref)
	if !ok {
		return 0
	}

	return e.Type
}

func (c *Converter) convertMatch(n *srcast.Match) (ebm.StatementRef, error) {
	var subject ebm.ExpressionRef

	if n.Subject != nil {
		s, err := c.ConvertExpr(n.Subject)
		if err != nil {
			return 0, err
		}

		subject = s
	}

	branches := make([]ebm.StatementRef, 0, len(n.Branches))

	for _, b := range n.Branches {
		ref, err := c.convertMatchBranch(b)
		if err != nil {
			return 0, err
		}

		branches = append(branches, ref)
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_STATEMENT, Cond: subject, Items: branches}), nil
}

func (c *Converter) convertMatchBranch(n *srcast.MatchBranch) (ebm.StatementRef, error) {
	var cond ebm.ExpressionRef

	if n.Condition != nil {
		cv, err := c.ConvertExpr(n.Condition)
		if err != nil {
			return 0, err
		}

		cond = cv
	}

	body, err := c.convertBodyStatement(n.Body)
	if err != nil {
		return 0, err
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.MATCH_BRANCH, Cond: cond, Body: body}), nil
}

func (c *Converter) convertReturn(n *srcast.Return) (ebm.StatementRef, error) {
	var val ebm.ExpressionRef

	if n.Value != nil {
		v, err := c.ConvertExpr(n.Value)
		if err != nil {
			return 0, err
		}

		val = v
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.RETURN, Value: val}), nil
}

func (c *Converter) convertAssert(n *srcast.Assert) (ebm.StatementRef, error) {
	cond, err := c.ConvertExpr(n.Condition)
	if err != nil {
		return 0, err
	}

	msg := c.Mod.AddString([]byte(n.Message))

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSERT, Cond: cond, Message: msg}), nil
}

func (c *Converter) convertAssign(n *srcast.Assign) (ebm.StatementRef, error) {
	target, err := c.ConvertExpr(n.Target)
	if err != nil {
		return 0, err
	}

	value, err := c.ConvertExpr(n.Value)
	if err != nil {
		return 0, err
	}

	return c.Mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT, Target: target, Value: value}), nil
}

// convertUserFunction lowers a Format's user-defined helper function:
// a plain FUNCTION_DECL with FuncKind NORMAL, its own parameter
// scope layered over the struct's field scope.
func (c *Converter) convertUserFunction(fn *srcast.Function) (ebm.StatementRef, error) {
	c.pushScope()
	defer c.popScope()

	params := make([]ebm.StatementRef, 0, len(fn.Parameters))

	for _, p := range fn.Parameters {
		t, err := c.ConvertType(p.Type, nil)
		if err != nil {
			return 0, err
		}

		name := c.Mod.AddIdentifier(p.Name)
		ref := c.Mod.AddStatement(ebm.Statement{Kind: ebm.PARAMETER_DECL, Name: name, Type: t})
		c.scope.bind(p.Name, ref)
		params = append(params, ref)
	}

	var retType ebm.TypeRef

	if fn.ReturnType != nil {
		t, err := c.ConvertType(fn.ReturnType, nil)
		if err != nil {
			return 0, err
		}

		retType = t
	}

	body, err := c.convertBlock(fn.Body)
	if err != nil {
		return 0, err
	}

	name := c.Mod.AddIdentifier(fn.Name)

	return c.Mod.AddStatement(ebm.Statement{
		Kind: ebm.FUNCTION_DECL, Name: name, Items: params, ReturnType: retType, Body: body, FuncKind: ebm.NORMAL,
	}), nil
}
