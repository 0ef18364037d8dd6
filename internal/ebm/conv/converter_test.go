package conv

import (
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/srcast"
)

func u8Type() *srcast.IntType  { return &srcast.IntType{Bits: 8} }
func u16Type() *srcast.IntType { return &srcast.IntType{Bits: 16} }

func field(name string, t srcast.Type) *srcast.FieldDecl {
	return &srcast.FieldDecl{Name: name, Type: t}
}

func convert(t *testing.T, prog *srcast.Program) *arena.Module {
	t.Helper()

	mod, err := ConvertProgram(prog)
	if err != nil {
		t.Fatalf("ConvertProgram: %v", err)
	}

	return mod
}

func TestEntryPointLivesAtRefOne(t *testing.T) {
	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("x", u8Type())}},
	}})

	entry, ok := mod.GetEntryPoint()
	if !ok {
		t.Fatal("no entry point at ref 1")
	}

	if entry.Kind != ebm.PROGRAM_DECL {
		t.Fatalf("entry kind = %s, want PROGRAM_DECL", entry.Kind)
	}

	if len(entry.Items) != 1 {
		t.Fatalf("entry formats = %d, want 1", len(entry.Items))
	}
}

func TestFormatProducesEncoderDecoderPair(t *testing.T) {
	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("x", u8Type())}},
	}})

	entry, _ := mod.GetEntryPoint()

	decl, ok := mod.GetStatement(entry.Items[0])
	if !ok || decl.Kind != ebm.STRUCT_DECL {
		t.Fatalf("format decl kind = %v", decl.Kind)
	}

	for _, fnRef := range []ebm.StatementRef{decl.EncodeFn, decl.DecodeFn} {
		fn, ok := mod.GetStatement(fnRef)
		if !ok || fn.Kind != ebm.FUNCTION_DECL {
			t.Fatalf("coder fn missing for %s", fnRef)
		}

		if fn.FuncKind != ebm.ENCODER && fn.FuncKind != ebm.DECODER {
			t.Fatalf("coder fn kind = %s", fn.FuncKind)
		}

		// params[0] is the coder's stream input decl.
		if len(fn.Items) == 0 {
			t.Fatal("coder fn has no params")
		}

		param, ok := mod.GetStatement(fn.Items[0])
		if !ok || param.Kind != ebm.PARAMETER_DECL {
			t.Fatalf("params[0] kind = %v, want PARAMETER_DECL", param.Kind)
		}

		pt, _ := mod.GetType(param.Type)

		wantKind := ebm.DECODER_INPUT
		if fn.FuncKind == ebm.ENCODER {
			wantKind = ebm.ENCODER_INPUT
		}

		if pt.Kind != wantKind {
			t.Fatalf("params[0] type = %s, want %s", pt.Kind, wantKind)
		}
	}
}

// Two adjacent u8 fields in encode mode produce two
// WRITE_DATA statements of one byte each.
func TestTwoByteFieldsEncodeToTwoWrites(t *testing.T) {
	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("a", u8Type()), field("b", u8Type())}},
	}})

	entry, _ := mod.GetEntryPoint()
	decl, _ := mod.GetStatement(entry.Items[0])
	enc, _ := mod.GetStatement(decl.EncodeFn)
	body, _ := mod.GetStatement(enc.Body)

	writes := 0

	for _, ref := range body.Items {
		s, _ := mod.GetStatement(ref)
		if s.Kind == ebm.WRITE_DATA {
			writes++

			if s.IO.Size.Unit != ebm.BYTE_FIXED || s.IO.Size.Literal != 1 {
				t.Fatalf("write size = %s(%d), want BYTE_FIXED(1)", s.IO.Size.Unit, s.IO.Size.Literal)
			}
		}
	}

	if writes != 2 {
		t.Fatalf("writes = %d, want 2", writes)
	}
}

// `for i in 0..10` becomes a FOR_EACH whose lowered form is a
// counter loop `while i < 10`.
func TestRangeLoopLowering(t *testing.T) {
	loop := &srcast.Loop{
		Kind:     srcast.LoopForEach,
		ItemName: "i",
		Collection: &srcast.Range{
			Low:  &srcast.IntLiteral{Value: 0},
			High: &srcast.IntLiteral{Value: 10},
		},
		Body: &srcast.IndentBlock{},
	}

	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{loop}},
	}})

	var forEach *ebm.Statement

	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind == ebm.LOOP_STATEMENT && e.Body.LoopType == ebm.FOR_EACH {
			body := e.Body
			forEach = &body

			break
		}
	}

	if forEach == nil {
		t.Fatal("no FOR_EACH loop converted")
	}

	if forEach.Item.IsNil() {
		t.Fatal("FOR_EACH has no item var")
	}

	if forEach.Lowered.IsNil() {
		t.Fatal("FOR_EACH has no lowered form")
	}

	lowered, _ := mod.GetStatement(forEach.Lowered)
	if lowered.Kind != ebm.LOWERED_STATEMENTS || len(lowered.Items) == 0 {
		t.Fatalf("lowered kind = %s with %d items", lowered.Kind, len(lowered.Items))
	}

	block, _ := mod.GetStatement(lowered.Items[0])

	foundWhile := false

	for _, ref := range block.Items {
		s, _ := mod.GetStatement(ref)
		if s.Kind == ebm.LOOP_STATEMENT && s.LoopType == ebm.WHILE {
			foundWhile = true

			cond, _ := mod.GetExpression(s.Cond)
			if cond.Kind != ebm.BINARY_OP || cond.BinOp != ebm.OpLt {
				t.Fatalf("lowered cond = %s/%d, want < comparison", cond.Kind, cond.BinOp)
			}
		}
	}

	if !foundWhile {
		t.Fatal("lowered form has no counter WHILE loop")
	}
}

// A u8|u16 union field derives a COMMON_TYPE
// property whose merged type is the wider u16 and whose member count
// equals the union's candidate count.
func TestUnionPropertyCommonTypeMerge(t *testing.T) {
	union := &srcast.UnionType{Candidates: []srcast.UnionCandidate{
		{Cond: &srcast.BoolLiteral{Value: true}, Type: u8Type()},
		{Cond: &srcast.BoolLiteral{Value: false}, Type: u16Type()},
	}}

	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("v", union)}},
	}})

	var prop *ebm.Statement

	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind == ebm.PROPERTY_DECL {
			body := e.Body
			prop = &body

			break
		}
	}

	if prop == nil {
		t.Fatal("no PROPERTY_DECL derived")
	}

	if prop.MergeMode != ebm.COMMON_TYPE {
		t.Fatalf("merge mode = %s, want COMMON_TYPE", prop.MergeMode)
	}

	pt, _ := mod.GetType(prop.PropertyType)
	if pt.Kind != ebm.UINT || pt.Size != 16 {
		t.Fatalf("property type = %s(%d), want UINT(16)", pt.Kind, pt.Size)
	}

	if len(prop.Items) != 2 {
		t.Fatalf("members = %d, want 2 (one per union candidate)", len(prop.Items))
	}
}

func TestStrictMergeIdenticalTypes(t *testing.T) {
	shared := u8Type()
	union := &srcast.UnionType{Candidates: []srcast.UnionCandidate{
		{Cond: &srcast.BoolLiteral{Value: true}, Type: shared},
		{Cond: &srcast.BoolLiteral{Value: false}, Type: shared},
	}}

	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("v", union)}},
	}})

	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind == ebm.PROPERTY_DECL {
			if e.Body.MergeMode != ebm.STRICT_TYPE {
				t.Fatalf("merge mode = %s, want STRICT_TYPE", e.Body.MergeMode)
			}

			return
		}
	}

	t.Fatal("no PROPERTY_DECL derived")
}

// A string-literal field decodes through a magic check: the lowered
// decode block asserts each byte.
func TestStrLiteralDecodeAssertsMagic(t *testing.T) {
	magic := &srcast.StrLiteralType{Bytes: []byte("EB")}

	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("magic", magic)}},
	}})

	entry, _ := mod.GetEntryPoint()
	decl, _ := mod.GetStatement(entry.Items[0])
	dec, _ := mod.GetStatement(decl.DecodeFn)
	body, _ := mod.GetStatement(dec.Body)

	for _, ref := range body.Items {
		s, _ := mod.GetStatement(ref)
		if s.Kind != ebm.READ_DATA {
			continue
		}

		if s.Lowered.IsNil() {
			t.Fatal("magic read has no lowered form")
		}

		lowered, _ := mod.GetStatement(s.Lowered)
		block, _ := mod.GetStatement(lowered.Items[0])

		asserts := 0

		for _, inner := range block.Items {
			is, _ := mod.GetStatement(inner)
			if is.Kind == ebm.ASSERT {
				asserts++
			}
		}

		if asserts != 2 {
			t.Fatalf("asserts = %d, want one per magic byte", asserts)
		}

		return
	}

	t.Fatal("no READ_DATA for the magic field")
}

// Big-endian u16: the lowered fixed-array form fills the buffer high
// byte first.
func TestScalarLoweringCarriesEndianBranch(t *testing.T) {
	be := &srcast.IntType{Bits: 16, Endian: srcast.EndianBig}

	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{field("x", be)}},
	}})

	entry, _ := mod.GetEntryPoint()
	decl, _ := mod.GetStatement(entry.Items[0])
	enc, _ := mod.GetStatement(decl.EncodeFn)
	body, _ := mod.GetStatement(enc.Body)

	for _, ref := range body.Items {
		s, _ := mod.GetStatement(ref)
		if s.Kind != ebm.WRITE_DATA {
			continue
		}

		if s.IO.Attribute.Endian != ebm.EndianBig {
			t.Fatalf("endian attribute = %s, want big", s.IO.Attribute.Endian)
		}

		if !s.IO.Attribute.HasLoweredStatement || s.IO.LoweredStatement.IsNil() {
			t.Fatal("byte-aligned scalar write lacks its fixed-array lowering")
		}

		return
	}

	t.Fatal("no WRITE_DATA emitted")
}

// Adjacent sub-byte bit fields group into one COMPOSITE_FIELD_DECL in
// the struct's member list; a following byte-aligned field stays
// ungrouped.
func TestAdjacentBitFieldsGroupIntoComposite(t *testing.T) {
	mod := convert(t, &srcast.Program{Formats: []*srcast.Format{
		{Name: "A", Fields: []srcast.Statement{
			field("a", &srcast.IntType{Bits: 3}),
			field("b", &srcast.IntType{Bits: 5}),
			field("c", u8Type()),
		}},
	}})

	entry, _ := mod.GetEntryPoint()
	decl, _ := mod.GetStatement(entry.Items[0])

	var composite *ebm.Statement

	plainFields := 0

	for _, ref := range decl.Items {
		s, _ := mod.GetStatement(ref)

		switch s.Kind {
		case ebm.COMPOSITE_FIELD_DECL:
			body := s
			composite = &body
		case ebm.FIELD_DECL:
			plainFields++
		}
	}

	if composite == nil {
		t.Fatal("no COMPOSITE_FIELD_DECL produced for adjacent bit fields")
	}

	if len(composite.Items) != 2 {
		t.Fatalf("composite groups %d fields, want 2", len(composite.Items))
	}

	ct, _ := mod.GetType(composite.Type)
	if ct.Kind != ebm.UINT || ct.Size != 8 {
		t.Fatalf("composite type = %s(%d), want UINT(8)", ct.Kind, ct.Size)
	}

	if plainFields != 1 {
		t.Fatalf("ungrouped fields = %d, want 1 (the byte-aligned c)", plainFields)
	}
}
