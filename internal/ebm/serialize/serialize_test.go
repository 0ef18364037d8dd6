package serialize

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 63, 64, 16383, 16384, 1<<30 - 1, 1 << 30, 1<<62 - 1}

	for _, v := range values {
		buf, err := appendVarint(nil, v)
		if err != nil {
			t.Fatalf("appendVarint(%d): %v", v, err)
		}

		got, off, err := readVarint(buf, 0)
		if err != nil {
			t.Fatalf("readVarint(%d): %v", v, err)
		}

		if got != v || off != len(buf) {
			t.Fatalf("round trip of %d gave %d (consumed %d of %d)", v, got, off, len(buf))
		}
	}
}

func TestVarintBoundaryLengths(t *testing.T) {
	cases := []struct {
		v    uint64
		size int
	}{
		{0, 1}, {63, 1}, {64, 2}, {16383, 2}, {16384, 4}, {1<<30 - 1, 4}, {1 << 30, 8}, {1<<62 - 1, 8},
	}

	for _, tc := range cases {
		buf, err := appendVarint(nil, tc.v)
		if err != nil {
			t.Fatalf("appendVarint(%d): %v", tc.v, err)
		}

		if len(buf) != tc.size {
			t.Fatalf("varint(%d) occupies %d bytes, want %d", tc.v, len(buf), tc.size)
		}
	}
}

func TestVarintRejectsOverflow(t *testing.T) {
	if _, err := appendVarint(nil, 1<<62); err == nil {
		t.Fatal("value of 2^62 encoded without error")
	}
}

func buildSampleModule(t *testing.T) *arena.Module {
	t.Helper()

	mod := arena.NewModule()

	name := mod.AddIdentifier("field")
	msg := mod.AddString([]byte("oops"))

	u8 := mod.AddType(ebm.Type{Kind: ebm.UINT, Size: 8})
	arr := mod.AddType(ebm.Type{Kind: ebm.ARRAY, Element: u8, Length: 4})
	variant := mod.AddType(ebm.Type{Kind: ebm.VARIANT, CommonType: u8, MemberTypes: []ebm.TypeRef{u8, arr}})

	lit := mod.AddExpression(ebm.Expression{Kind: ebm.LITERAL_INT, Type: u8, IntValue: 42})
	sum := mod.AddExpression(ebm.Expression{Kind: ebm.BINARY_OP, Type: u8, BinOp: ebm.OpAdd, Left: lit, Right: lit})

	fieldRef := mod.AddStatement(ebm.Statement{Kind: ebm.FIELD_DECL, Name: name, Type: variant})
	read := mod.AddStatement(ebm.Statement{Kind: ebm.READ_DATA, IO: ebm.IOData{
		Field: fieldRef, Target: sum, DataType: u8,
		Attribute: ebm.IOAttribute{Endian: ebm.EndianBig, Signed: true},
		Size:      ebm.IOSize{Unit: ebm.BIT_FIXED, Literal: 8},
	}})
	errStmt := mod.AddStatement(ebm.Statement{Kind: ebm.ERROR_RETURN, Message: msg})
	block := mod.AddStatement(ebm.Statement{Kind: ebm.BLOCK, Items: []ebm.StatementRef{fieldRef, read, errStmt}})

	if err := mod.AddStatementWithID(ebm.StatementRef(ebm.EntryRef), ebm.Statement{
		Kind: ebm.PROGRAM_DECL, Items: []ebm.StatementRef{block},
	}); err != nil {
		t.Fatalf("entry: %v", err)
	}

	// One alias and one debug entry so both tables round-trip.
	dup := mod.Types.NewID()
	mod.Types.Alias(dup, ebm.Ref(u8))

	mod.DebugFiles = append(mod.DebugFiles, "sample.bgn")
	mod.DebugLocs = append(mod.DebugLocs, arena.DebugLoc{Ref: ebm.Ref(fieldRef), File: "sample.bgn", Line: 3, Col: 5})

	mod.Finalize()

	return mod
}

// Serialization round-trips — re-encoding a decoded
// module yields identical bytes.
func TestBinaryRoundTrip(t *testing.T) {
	mod := buildSampleModule(t)

	first, err := Encode(mod)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(first)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	second, err := Encode(decoded)
	if err != nil {
		t.Fatalf("re-Encode: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Fatal("round-tripped module is not byte-identical")
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	mod := buildSampleModule(t)

	data, err := Encode(mod)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	data[0] = FormatVersion + 1

	if _, err := Decode(data); err == nil {
		t.Fatal("wrong version byte accepted")
	}
}

func TestDecodeRejectsTruncation(t *testing.T) {
	mod := buildSampleModule(t)

	data, err := Encode(mod)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if _, err := Decode(data[:len(data)/2]); err == nil {
		t.Fatal("truncated input accepted")
	}
}

// Arrays carry a len sibling matching their element count.
func TestJSONLenSiblings(t *testing.T) {
	mod := buildSampleModule(t)

	out, err := ToJSON(mod)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	var root map[string]interface{}

	if err := json.Unmarshal(out, &root); err != nil {
		t.Fatalf("output is not valid JSON: %v", err)
	}

	for _, name := range []string{"identifiers", "strings", "types", "statements", "expressions", "aliases"} {
		arr, ok := root[name].([]interface{})
		if !ok {
			t.Fatalf("%s is not an array", name)
		}

		lenVal, ok := root[name+"_len"].(float64)
		if !ok {
			t.Fatalf("%s_len sibling missing", name)
		}

		if int(lenVal) != len(arr) {
			t.Fatalf("%s_len = %d, want %d", name, int(lenVal), len(arr))
		}
	}
}

// Enum discriminants are symbolic names in the JSON form.
func TestJSONSymbolicKinds(t *testing.T) {
	mod := buildSampleModule(t)

	out, err := ToJSON(mod)
	if err != nil {
		t.Fatalf("ToJSON: %v", err)
	}

	if !bytes.Contains(out, []byte(`"kind": "FIELD_DECL"`)) {
		t.Fatal("statement kind not emitted symbolically")
	}

	if !bytes.Contains(out, []byte(`"kind": "VARIANT"`)) {
		t.Fatal("type kind not emitted symbolically")
	}
}
