package transform

import (
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

func newTestModule() *arena.Module {
	return arena.NewModule()
}

func addByteWrite(mod *arena.Module, stream ebm.ExpressionRef, u8 ebm.TypeRef) ebm.StatementRef {
	target := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: u8})

	return mod.AddStatement(ebm.Statement{Kind: ebm.WRITE_DATA, IO: ebm.IOData{
		IORef: stream, Target: target, DataType: u8,
		Size: ebm.IOSize{Unit: ebm.BYTE_FIXED, Literal: 1},
	}})
}

// Two adjacent one-byte writes coalesce into a single write over a
// u8[2] buffer whose lowered statement is a BLOCK of the originals.
func TestVectorizeAdjacentByteWrites(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	stream := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER})

	w1 := addByteWrite(mod, stream, u8)
	w2 := addByteWrite(mod, stream, u8)

	block := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{w1, w2}})

	newBlock, replacements, err := VectorizeBlock(mod, block)
	if err != nil {
		t.Fatalf("VectorizeBlock: %v", err)
	}

	nb, _ := mod.GetStatement(newBlock)
	if len(nb.Items) != 1 {
		t.Fatalf("vectorized block has %d items, want 1", len(nb.Items))
	}

	wrapper, _ := mod.GetStatement(nb.Items[0])

	var combined ebm.Statement

	found := false

	for _, ref := range wrapper.Items {
		s, _ := mod.GetStatement(ref)
		if s.Kind == ebm.WRITE_DATA {
			combined = s
			found = true
		}
	}

	if !found {
		t.Fatal("no combined WRITE_DATA in wrapper block")
	}

	bufType, _ := mod.GetType(combined.IO.DataType)
	if bufType.Kind != ebm.ARRAY || bufType.Length != 2 {
		t.Fatalf("combined buffer type = %s(len %d), want u8[2]", bufType.Kind, bufType.Length)
	}

	elem, _ := mod.GetType(bufType.Element)
	if elem.Kind != ebm.UINT || elem.Size != 8 {
		t.Fatalf("combined element = %s(%d), want u8", elem.Kind, elem.Size)
	}

	lowered, _ := mod.GetStatement(combined.IO.LoweredStatement)
	if lowered.Kind != ebm.BLOCK || len(lowered.Items) != 2 {
		t.Fatalf("lowered = %s with %d items, want BLOCK of the 2 originals", lowered.Kind, len(lowered.Items))
	}

	if lowered.Items[0] != w1 || lowered.Items[1] != w2 {
		t.Fatal("lowered block does not preserve the originals in order")
	}

	if len(replacements) != 2 {
		t.Fatalf("replacements = %d, want 2", len(replacements))
	}
}

// Out-of-block references to a replaced statement are rewritten via the
// old->new map.
func TestVectorizeRewritesOutOfBlockRefs(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	stream := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER})

	w1 := addByteWrite(mod, stream, u8)
	w2 := addByteWrite(mod, stream, u8)

	block := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{w1, w2}})

	// An unrelated holder pointing at w1 from outside the block.
	holder := mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Then: w1})

	_, replacements, err := VectorizeBlock(mod, block)
	if err != nil {
		t.Fatalf("VectorizeBlock: %v", err)
	}

	RewriteStatementRefs(mod, replacements)

	got, _ := mod.GetStatement(holder)
	if got.Then == w1 {
		t.Fatal("out-of-block ref still points at the replaced statement")
	}

	if got.Then != replacements[w1] {
		t.Fatalf("out-of-block ref = %s, want %s", got.Then, replacements[w1])
	}
}

func addBitRead(mod *arena.Module, stream ebm.ExpressionRef, dataType ebm.TypeRef, bits uint64) ebm.StatementRef {
	target := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: dataType})

	return mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: ebm.IOData{
		IORef: stream, Target: target, DataType: dataType,
		Attribute: ebm.IOAttribute{Endian: ebm.EndianBig},
		Size:      ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: bits},
	}})
}

// Bit fields 3/5/4 — the 3+5 run reaches a byte boundary and gets a
// one-byte buffered lowering; the trailing 4-bit field stays unlowered.
func TestBitIOGroupsAtByteBoundary(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	stream := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER})

	a := addBitRead(mod, stream, u8, 3)
	b := addBitRead(mod, stream, u8, 5)
	c := addBitRead(mod, stream, u8, 4)

	body := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{a, b, c}})
	fn := mod.AddStatement(ebm.Statement{Kind: ebm.FUNCTION_DECL, FuncKind: ebm.DECODER, Body: body})

	if err := LowerDynamicBitIO(mod, fn, true); err != nil {
		t.Fatalf("LowerDynamicBitIO: %v", err)
	}

	for _, ref := range []ebm.StatementRef{a, b} {
		s, _ := mod.GetStatement(ref)
		if !s.IO.Attribute.HasLoweredStatement || s.Lowered.IsNil() {
			t.Fatalf("grouped bit read %s has no lowering", ref)
		}
	}

	cs, _ := mod.GetStatement(c)
	if cs.IO.Attribute.HasLoweredStatement {
		t.Fatal("trailing 4-bit read was grouped despite not reaching a byte boundary")
	}

	// The emitted lowered block reads exactly one byte.
	as, _ := mod.GetStatement(a)
	loweredList, _ := mod.GetStatement(as.Lowered)
	groupBlock, _ := mod.GetStatement(loweredList.Items[len(loweredList.Items)-1])

	foundByteRead := false

	for _, inner := range groupBlock.Items {
		s, ok := mod.GetStatement(inner)
		if ok && s.Kind == ebm.READ_DATA && s.IO.Size.Literal == 1 {
			foundByteRead = true
		}
	}

	if !foundByteRead {
		t.Fatal("group lowering contains no one-byte buffer read")
	}
}

// In if/else with a merge point, the merge's immediate dominator is
// the branch node, and the dominator tree has |nodes|-1 edges.
func TestDominatorsIfElseMerge(t *testing.T) {
	mod := newTestModule()

	cond := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER})
	thenStmt := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT})
	elseStmt := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT})
	ifStmt := mod.AddStatement(ebm.Statement{Kind: ebm.IF_STATEMENT, Cond: cond, Then: thenStmt, Else: elseStmt})
	after := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT})

	body := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{ifStmt, after}})

	cfg := BuildCFG(mod, body)
	cfg.Optimize()

	dom := cfg.Dominators()
	idom := cfg.ImmediateDominators(dom)

	var ifNode, afterNode int = -1, -1

	for _, n := range cfg.LiveNodes() {
		switch n.Stmt {
		case ifStmt:
			ifNode = n.ID
		case after:
			afterNode = n.ID
		}
	}

	if ifNode == -1 || afterNode == -1 {
		t.Fatal("expected CFG nodes missing")
	}

	if idom[afterNode] != ifNode {
		t.Fatalf("idom(after) = %d, want the branch node %d", idom[afterNode], ifNode)
	}

	if len(idom) != len(cfg.LiveNodes())-1 {
		t.Fatalf("dominator tree has %d edges, want |nodes|-1 = %d", len(idom), len(cfg.LiveNodes())-1)
	}
}

// Optimize splices empty passthrough nodes: no surviving node other than
// entry/end is statement-free with a single successor.
func TestCFGOptimizeRemovesPassthroughs(t *testing.T) {
	mod := newTestModule()

	s1 := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT})
	s2 := mod.AddStatement(ebm.Statement{Kind: ebm.ASSIGNMENT})
	inner := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{s2}})
	body := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{s1, inner}})

	cfg := BuildCFG(mod, body)
	cfg.Optimize()

	for _, n := range cfg.LiveNodes() {
		if n.ID == cfg.EntryID || n.ID == cfg.EndID {
			continue
		}

		if n.Stmt.IsNil() && len(n.Succs) == 1 {
			t.Fatalf("passthrough node %d survived Optimize", n.ID)
		}
	}
}

// Unused objects disappear and surviving ids are contiguous.
func TestDeadCodeEliminationAndRenumber(t *testing.T) {
	mod := newTestModule()

	usedIdent := mod.AddIdentifier("kept")
	usedType := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	fieldRef := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: usedIdent, Type: usedType})

	mod.AddIdentifier("unused")
	mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 32})

	if err := mod.AddStatementWithID(ebm.StatementRef(ebm.EntryRef), ebm.Statement{
		Kind: ebm.PROGRAM_DECL, Items: []ebm.StatementRef{fieldRef},
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	mod.Finalize()
	before := mod.MaxID

	EliminateDeadCode(mod)

	if mod.Identifiers.Len() != 1 {
		t.Fatalf("identifiers = %d, want 1", mod.Identifiers.Len())
	}

	if mod.Types.Len() != 1 {
		t.Fatalf("types = %d, want 1", mod.Types.Len())
	}

	if mod.MaxID >= before {
		t.Fatalf("max id did not decrease: %s -> %s", before, mod.MaxID)
	}

	// Statement ids: the entry keeps 1, everything else is 2..N+1 with no
	// gaps.
	seen := map[ebm.Ref]bool{}
	for _, e := range mod.Statements.Entries() {
		seen[e.ID] = true
	}

	if !seen[ebm.EntryRef] {
		t.Fatal("entry id 1 missing after renumber")
	}

	for id := ebm.Ref(2); id < ebm.Ref(1+mod.Statements.Len()); id++ {
		if !seen[id] {
			t.Fatalf("statement id space has a gap at %s", id)
		}
	}

	// Every surviving ref resolves.
	entry, ok := mod.GetEntryPoint()
	if !ok {
		t.Fatal("entry unreachable after renumber")
	}

	field, ok := mod.GetStatement(entry.Items[0])
	if !ok {
		t.Fatal("renumbered field ref does not resolve")
	}

	if _, ok := mod.GetIdentifier(field.Name); !ok {
		t.Fatal("renumbered identifier ref does not resolve")
	}

	if _, ok := mod.GetType(field.Type); !ok {
		t.Fatal("renumbered type ref does not resolve")
	}
}

// Property synthesis gives a non-strict property an
// OPTIONAL-returning getter and a status-returning setter.
func TestPropertySynthGetterSetter(t *testing.T) {
	mod := newTestModule()

	u16 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 16})
	fieldName := mod.AddIdentifier("v")
	fieldRef := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: fieldName, Type: u16})

	member := mod.AddStatement(ebm.Statement{Kind: ebm.PROPERTY_MEMBER_DECL, Field: fieldRef})
	prop := mod.AddStatement(ebm.Statement{
		Kind: ebm.PROPERTY_DECL, MergeMode: ebm.COMMON_TYPE, PropertyType: u16,
		Items: []ebm.StatementRef{member},
	})

	if err := SynthesizeProperty(mod); err != nil {
		t.Fatalf("SynthesizeProperty: %v", err)
	}

	p, _ := mod.GetStatement(prop)
	if p.Getter.IsNil() || p.Setter.IsNil() {
		t.Fatal("property lacks synthesized getter/setter")
	}

	getter, _ := mod.GetStatement(p.Getter)
	if getter.FuncKind != ebm.PROPERTY_GETTER {
		t.Fatalf("getter kind = %s", getter.FuncKind)
	}

	rt, _ := mod.GetType(getter.ReturnType)
	if rt.Kind != ebm.OPTIONAL {
		t.Fatalf("non-strict getter returns %s, want OPTIONAL", rt.Kind)
	}

	setter, _ := mod.GetStatement(p.Setter)
	if setter.FuncKind != ebm.PROPERTY_SETTER {
		t.Fatalf("setter kind = %s", setter.FuncKind)
	}

	st, _ := mod.GetType(setter.ReturnType)
	if st.Kind != ebm.PROPERTY_SETTER_RETURN {
		t.Fatalf("setter returns %s, want PROPERTY_SETTER_RETURN", st.Kind)
	}

	// The setter takes the value as its first parameter.
	if len(setter.Items) == 0 {
		t.Fatal("setter has no parameters")
	}

	param, _ := mod.GetStatement(setter.Items[0])
	if param.Kind != ebm.PARAMETER_DECL || param.Type != u16 {
		t.Fatal("setter params[0] is not the property-typed value")
	}
}

func TestStrictPropertyGetterReturnsPtr(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	fieldName := mod.AddIdentifier("v")
	fieldRef := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: fieldName, Type: u8})

	member := mod.AddStatement(ebm.Statement{Kind: ebm.PROPERTY_MEMBER_DECL, Field: fieldRef})
	prop := mod.AddStatement(ebm.Statement{
		Kind: ebm.PROPERTY_DECL, MergeMode: ebm.STRICT_TYPE, PropertyType: u8,
		Items: []ebm.StatementRef{member},
	})

	if err := SynthesizeProperty(mod); err != nil {
		t.Fatalf("SynthesizeProperty: %v", err)
	}

	p, _ := mod.GetStatement(prop)
	getter, _ := mod.GetStatement(p.Getter)

	rt, _ := mod.GetType(getter.ReturnType)
	if rt.Kind != ebm.PTR {
		t.Fatalf("strict getter returns %s, want PTR", rt.Kind)
	}
}

// A vector property whose WRITE_DATA is sized by an integer length field
// gets a whole-vector setter: bounds check against the length type's
// MAX_VALUE, vector assignment, and a cast length write-back.
func TestVectorSetterSynthesizedFromLengthField(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	vec := mod.AddType(ebm.Type{Kind: ebm.VECTOR, Element: u8})

	lenName := mod.AddIdentifier("n")
	lenField := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: lenName, Type: u8})

	vecName := mod.AddIdentifier("data")
	vecField := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: vecName, Type: vec})

	lenExpr := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: u8, Ident: lenField})
	target := mod.AddExpression(ebm.Expression{Kind: ebm.IDENTIFIER, Type: vec, Ident: vecField})

	mod.AddStatement(ebm.Statement{Kind: ebm.WRITE_DATA, IO: ebm.IOData{
		Field: vecField, Target: target, DataType: vec,
		Size: ebm.IOSize{Unit: ebm.ELEMENT_DYNAMIC, Expr: lenExpr},
	}})

	member := mod.AddStatement(ebm.Statement{Kind: ebm.PROPERTY_MEMBER_DECL, Field: vecField})
	prop := mod.AddStatement(ebm.Statement{
		Kind: ebm.PROPERTY_DECL, MergeMode: ebm.STRICT_TYPE, PropertyType: vec,
		Items: []ebm.StatementRef{member},
	})

	if err := SynthesizeProperty(mod); err != nil {
		t.Fatalf("SynthesizeProperty: %v", err)
	}

	p, _ := mod.GetStatement(prop)
	if p.VectorSetter.IsNil() {
		t.Fatal("no vector setter synthesized despite length-field linkage")
	}

	vs, _ := mod.GetStatement(p.VectorSetter)
	if vs.FuncKind != ebm.VECTOR_SETTER {
		t.Fatalf("vector setter kind = %s", vs.FuncKind)
	}

	if len(vs.Items) != 1 {
		t.Fatalf("vector setter params = %d, want 1 (the vector value)", len(vs.Items))
	}

	param, _ := mod.GetStatement(vs.Items[0])
	if param.Type != vec {
		t.Fatal("vector setter parameter is not the vector type")
	}

	// The body's bounds check compares against MAX_VALUE of the length
	// field's type.
	foundMax := false

	for _, e := range mod.Expressions.Entries() {
		if e.Body.Kind == ebm.MAX_VALUE && e.Body.TypeValue == u8 {
			foundMax = true
		}
	}

	if !foundMax {
		t.Fatal("bounds check does not use the length type's MAX_VALUE")
	}
}

// A vector with no length-field linkage gets no vector setter.
func TestVectorSetterSkippedWithoutLengthField(t *testing.T) {
	mod := newTestModule()

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	vec := mod.AddType(ebm.Type{Kind: ebm.VECTOR, Element: u8})

	vecName := mod.AddIdentifier("data")
	vecField := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: vecName, Type: vec})

	member := mod.AddStatement(ebm.Statement{Kind: ebm.PROPERTY_MEMBER_DECL, Field: vecField})
	prop := mod.AddStatement(ebm.Statement{
		Kind: ebm.PROPERTY_DECL, MergeMode: ebm.STRICT_TYPE, PropertyType: vec,
		Items: []ebm.StatementRef{member},
	})

	if err := SynthesizeProperty(mod); err != nil {
		t.Fatalf("SynthesizeProperty: %v", err)
	}

	p, _ := mod.GetStatement(prop)
	if !p.VectorSetter.IsNil() {
		t.Fatal("vector setter synthesized without a length-field linkage")
	}
}
