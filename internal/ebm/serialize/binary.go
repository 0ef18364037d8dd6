package serialize

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

// FormatVersion is the `version: u8` header byte this serializer emits
// and the only one Decode accepts.
const FormatVersion uint8 = 1

// aliasEntry is one row of the flattened alias table: the arena-kind
// hint plus the from->to pair.
type aliasEntry struct {
	Kind ebm.AliasKind
	From ebm.Ref
	To   ebm.Ref
}

// writer accumulates the output with a sticky error, so the per-kind
// emitters stay free of error plumbing until the end.
type writer struct {
	buf []byte
	err error
}

func (w *writer) varint(v uint64) {
	if w.err != nil {
		return
	}

	w.buf, w.err = appendVarint(w.buf, v)
}

func (w *writer) u8(v uint8) {
	if w.err == nil {
		w.buf = append(w.buf, v)
	}
}

func (w *writer) u16(v uint16) {
	if w.err == nil {
		w.buf = append(w.buf, byte(v>>8), byte(v))
	}
}

func (w *writer) boolByte(v bool) {
	if v {
		w.u8(1)
	} else {
		w.u8(0)
	}
}

func (w *writer) ref(r ebm.Ref)            { w.varint(uint64(r)) }
func (w *writer) iref(r ebm.IdentifierRef) { w.ref(ebm.Ref(r)) }
func (w *writer) sref(r ebm.StringRef)     { w.ref(ebm.Ref(r)) }
func (w *writer) tref(r ebm.TypeRef)       { w.ref(ebm.Ref(r)) }
func (w *writer) stref(r ebm.StatementRef) { w.ref(ebm.Ref(r)) }
func (w *writer) eref(r ebm.ExpressionRef) { w.ref(ebm.Ref(r)) }

func (w *writer) bytes(b []byte) {
	if w.err != nil {
		return
	}

	w.varint(uint64(len(b)))
	w.buf = append(w.buf, b...)
}

// Encode serializes mod into the binary module layout: version byte,
// max_id, the five arenas in fixed order (each entry as id + body length
// + body bytes), the flattened alias table, then the two debug tables.
func Encode(mod *arena.Module) ([]byte, error) {
	w := &writer{}

	w.u8(FormatVersion)
	w.varint(uint64(mod.MaxID))

	w.varint(uint64(mod.Identifiers.Len()))

	for _, e := range mod.Identifiers.Entries() {
		w.entry(uint64(e.ID), func(b *writer) { b.rawBytes([]byte(e.Body.Name)) })
	}

	w.varint(uint64(mod.Strings.Len()))

	for _, e := range mod.Strings.Entries() {
		body := e.Body
		w.entry(uint64(e.ID), func(b *writer) { b.rawBytes(body.Bytes) })
	}

	w.varint(uint64(mod.Types.Len()))

	for _, e := range mod.Types.Entries() {
		body := e.Body
		w.entry(uint64(e.ID), func(b *writer) { b.typeBody(&body) })
	}

	w.varint(uint64(mod.Statements.Len()))

	for _, e := range mod.Statements.Entries() {
		body := e.Body
		w.entry(uint64(e.ID), func(b *writer) { b.statementBody(&body) })
	}

	w.varint(uint64(mod.Expressions.Len()))

	for _, e := range mod.Expressions.Entries() {
		body := e.Body
		w.entry(uint64(e.ID), func(b *writer) { b.expressionBody(&body) })
	}

	aliases := collectAliases(mod)
	w.varint(uint64(len(aliases)))

	for _, a := range aliases {
		w.u16(uint16(a.Kind))
		w.ref(a.From)
		w.ref(a.To)
	}

	w.varint(uint64(len(mod.DebugFiles)))

	for _, f := range mod.DebugFiles {
		w.bytes([]byte(f))
	}

	w.varint(uint64(len(mod.DebugLocs)))

	for _, l := range mod.DebugLocs {
		w.ref(l.Ref)
		w.bytes([]byte(l.File))
		w.varint(uint64(l.Line))
		w.varint(uint64(l.Col))
	}

	return w.buf, w.err
}

// rawBytes appends b with no length prefix; the entry's own body-length
// prefix already delimits it.
func (w *writer) rawBytes(b []byte) {
	if w.err == nil {
		w.buf = append(w.buf, b...)
	}
}

// entry writes one arena entry: id varint, body length varint, body.
func (w *writer) entry(id uint64, body func(*writer)) {
	if w.err != nil {
		return
	}

	w.varint(id)

	inner := &writer{}
	body(inner)

	if inner.err != nil {
		w.err = inner.err

		return
	}

	w.bytes(inner.buf)
}

func collectAliases(mod *arena.Module) []aliasEntry {
	var out []aliasEntry

	add := func(kind ebm.AliasKind, aliases map[ebm.Ref]ebm.Ref) {
		for _, pair := range arena.SortedAliasPairs(aliases) {
			out = append(out, aliasEntry{Kind: kind, From: pair[0], To: pair[1]})
		}
	}

	add(ebm.AliasIdentifier, mod.Identifiers.Aliases())
	add(ebm.AliasString, mod.Strings.Aliases())
	add(ebm.AliasType, mod.Types.Aliases())
	add(ebm.AliasStatement, mod.Statements.Aliases())
	add(ebm.AliasExpression, mod.Expressions.Aliases())

	return out
}

// typeBody writes a Type as kind u16 followed by only that kind's
// meaningful fields, in declaration order.
func (w *writer) typeBody(t *ebm.Type) {
	w.u16(uint16(t.Kind))

	switch t.Kind {
	case ebm.INT, ebm.UINT, ebm.USIZE, ebm.FLOAT:
		w.varint(t.Size)
	case ebm.ENUM:
		w.tref(t.ID)
		w.tref(t.BaseType)
	case ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		w.tref(t.ID)
	case ebm.ARRAY:
		w.tref(t.Element)
		w.varint(t.Length)
	case ebm.VECTOR:
		w.tref(t.Element)
	case ebm.VARIANT:
		w.tref(t.CommonType)
		w.varint(uint64(len(t.MemberTypes)))

		for _, m := range t.MemberTypes {
			w.tref(m)
		}

		w.stref(t.RelatedField)
	case ebm.RANGE:
		w.tref(t.BaseType)
	case ebm.FUNCTION:
		w.varint(uint64(len(t.Params)))

		for _, p := range t.Params {
			w.tref(p)
		}

		w.tref(t.ReturnType)
	case ebm.OPTIONAL, ebm.PTR:
		w.tref(t.BaseType)
	}
}

// statementBody writes a Statement: kind u16, the kind's fields in
// declaration order, then the shared trailing lowered-statements ref.
func (w *writer) statementBody(s *ebm.Statement) {
	w.u16(uint16(s.Kind))

	switch s.Kind {
	case ebm.BLOCK, ebm.LOWERED_STATEMENTS, ebm.PROGRAM_DECL:
		w.stmtList(s.Items)
	case ebm.IF_STATEMENT:
		w.eref(s.Cond)
		w.stref(s.Then)
		w.stref(s.Else)
	case ebm.LOOP_STATEMENT:
		w.u16(uint16(s.LoopType))
		w.stref(s.Init)
		w.eref(s.Cond)
		w.stref(s.Increment)
		w.stref(s.Item)
		w.eref(s.Collection)
		w.stref(s.Body)
	case ebm.MATCH_STATEMENT:
		w.eref(s.Cond)
		w.stmtList(s.Items)
	case ebm.MATCH_BRANCH:
		w.eref(s.Cond)
		w.stref(s.Body)
	case ebm.BREAK, ebm.CONTINUE:
		w.stref(s.RelatedLoop)
	case ebm.RETURN:
		w.eref(s.Value)
	case ebm.ASSIGNMENT:
		w.eref(s.Target)
		w.eref(s.Value)
	case ebm.VARIABLE_DECL, ebm.PARAMETER_DECL:
		w.iref(s.Name)
		w.tref(s.Type)
		w.eref(s.Value)
	case ebm.FIELD_DECL:
		w.iref(s.Name)
		w.tref(s.Type)
		w.varint(s.BitSize)
	case ebm.COMPOSITE_FIELD_DECL:
		w.tref(s.Type)
		w.stmtList(s.Items)
	case ebm.STRUCT_DECL:
		w.stmtList(s.Items)
		w.stref(s.EncodeFn)
		w.stref(s.DecodeFn)
		w.boolByte(s.Recursive)
	case ebm.ENUM_DECL:
		w.iref(s.Name)
		w.tref(s.Type)
		w.stmtList(s.Items)
	case ebm.ENUM_MEMBER_DECL:
		w.iref(s.Name)
		w.eref(s.Value)
	case ebm.FUNCTION_DECL:
		w.u16(uint16(s.FuncKind))
		w.iref(s.Name)
		w.stmtList(s.Items)
		w.tref(s.ReturnType)
		w.stref(s.Body)
	case ebm.PROPERTY_DECL:
		w.u16(uint16(s.MergeMode))
		w.tref(s.PropertyType)
		w.eref(s.GetterCond)
		w.eref(s.SetterCond)
		w.stmtList(s.Items)
		w.stref(s.Getter)
		w.stref(s.Setter)
		w.stref(s.VectorSetter)
	case ebm.PROPERTY_MEMBER_DECL:
		w.eref(s.Cond)
		w.stref(s.Field)
	case ebm.READ_DATA, ebm.WRITE_DATA:
		w.ioData(&s.IO)
	case ebm.ASSERT:
		w.eref(s.Cond)
		w.sref(s.Message)
	case ebm.LENGTH_CHECK:
		w.eref(s.Target)
		w.eref(s.Length)
	case ebm.ERROR_REPORT, ebm.ERROR_RETURN:
		w.sref(s.Message)
	case ebm.EXPRESSION_STATEMENT:
		w.eref(s.Expr)
	case ebm.METADATA_STATEMENT:
		w.sref(s.Key)
		w.sref(s.Str)
	case ebm.IMPORT_MODULE:
		w.iref(s.Name)
		w.sref(s.Str)
		w.sref(s.Str2)
	case ebm.PHI_NODE:
		w.varint(uint64(len(s.PhiSources)))

		for _, p := range s.PhiSources {
			w.eref(p)
		}
	}

	w.stref(s.Lowered)
}

func (w *writer) stmtList(items []ebm.StatementRef) {
	w.varint(uint64(len(items)))

	for _, r := range items {
		w.stref(r)
	}
}

// expressionBody writes an Expression: kind u16, its result type, then
// the kind's fields in declaration order.
func (w *writer) expressionBody(e *ebm.Expression) {
	w.u16(uint16(e.Kind))
	w.tref(e.Type)

	switch e.Kind {
	case ebm.LITERAL_INT:
		w.varint(e.IntValue)
	case ebm.LITERAL_BOOL:
		w.boolByte(e.BoolValue)
	case ebm.LITERAL_STRING:
		w.sref(e.StrValue)
	case ebm.LITERAL_TYPE, ebm.MAX_VALUE, ebm.DEFAULT_VALUE, ebm.NEW_OBJECT:
		w.tref(e.TypeValue)
	case ebm.IDENTIFIER:
		w.stref(e.Ident)
	case ebm.BINARY_OP:
		w.u16(uint16(e.BinOp))
		w.eref(e.Left)
		w.eref(e.Right)
	case ebm.UNARY_OP:
		w.u16(uint16(e.UnOp))
		w.eref(e.Operand)
	case ebm.INDEX_ACCESS:
		w.eref(e.Base)
		w.eref(e.Index)
	case ebm.MEMBER_ACCESS:
		w.eref(e.Base)
		w.sref(e.Member)
	case ebm.TYPE_CAST:
		w.u16(uint16(e.CastKind))
		w.eref(e.Source)
	case ebm.RANGE_EXPR:
		w.eref(e.Low)
		w.eref(e.High)
		w.boolByte(e.Inclusive)
	case ebm.CALL:
		w.eref(e.Callee)
		w.varint(uint64(len(e.Args)))

		for _, a := range e.Args {
			w.eref(a)
		}
	case ebm.ARRAY_SIZE, ebm.ADDRESSOF, ebm.OPTIONALOF:
		w.eref(e.Base)
	case ebm.IS_LITTLE_ENDIAN:
		w.eref(e.Stream)
	case ebm.IS_ERROR:
		w.eref(e.Operand)
	case ebm.GET_STREAM_OFFSET:
		w.eref(e.Stream)
		w.u16(uint16(e.Unit.Unit))
	case ebm.GET_REMAINING_BYTES:
		w.eref(e.Stream)
	case ebm.CAN_READ_STREAM:
		w.eref(e.Stream)
		w.eref(e.Amount)
	case ebm.READ_DATA_EXPR, ebm.WRITE_DATA_EXPR:
		w.stref(e.Setup)
		w.ioData(&e.IO)
	case ebm.CONDITIONAL_STATEMENT:
		w.eref(e.Cond)
		w.stref(e.Statement)
	case ebm.SETTER_STATUS_EXPR:
		w.u8(uint8(e.Status))
	case ebm.OR_COND:
		w.varint(uint64(len(e.Terms)))

		for _, t := range e.Terms {
			w.eref(t)
		}
	}
}

func (w *writer) ioData(io *ebm.IOData) {
	w.eref(io.IORef)
	w.stref(io.Field)
	w.eref(io.Target)
	w.tref(io.DataType)
	w.u8(uint8(io.Attribute.Endian))
	w.boolByte(io.Attribute.Signed)
	w.boolByte(io.Attribute.Peek)
	w.boolByte(io.Attribute.HasLoweredStatement)
	w.eref(io.Attribute.DynamicEndianExpr)
	w.u16(uint16(io.Size.Unit))
	w.varint(io.Size.Literal)
	w.eref(io.Size.Expr)
	w.stref(io.LoweredStatement)
}

// reader walks an input buffer with a sticky error, the mirror of writer.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) fail(code, msg string) {
	if r.err == nil {
		r.err = errors.NewStandardError(errors.CategoryMalformedInput, code, msg, nil)
	}
}

func (r *reader) varint() uint64 {
	if r.err != nil {
		return 0
	}

	v, off, err := readVarint(r.buf, r.off)
	if err != nil {
		r.err = err

		return 0
	}

	r.off = off

	return v
}

func (r *reader) u8() uint8 {
	if r.err != nil {
		return 0
	}

	if r.off >= len(r.buf) {
		r.fail("EBM6004", "truncated input")

		return 0
	}

	v := r.buf[r.off]
	r.off++

	return v
}

func (r *reader) u16() uint16 {
	if r.err != nil {
		return 0
	}

	if r.off+2 > len(r.buf) {
		r.fail("EBM6005", "truncated input")

		return 0
	}

	v := uint16(r.buf[r.off])<<8 | uint16(r.buf[r.off+1])
	r.off += 2

	return v
}

func (r *reader) boolByte() bool { return r.u8() != 0 }

func (r *reader) ref() ebm.Ref                   { return ebm.Ref(r.varint()) }
func (r *reader) iref() ebm.IdentifierRef        { return ebm.IdentifierRef(r.ref()) }
func (r *reader) sref() ebm.StringRef            { return ebm.StringRef(r.ref()) }
func (r *reader) tref() ebm.TypeRef              { return ebm.TypeRef(r.ref()) }
func (r *reader) stref() ebm.StatementRef        { return ebm.StatementRef(r.ref()) }
func (r *reader) eref() ebm.ExpressionRef        { return ebm.ExpressionRef(r.ref()) }

func (r *reader) bytes() []byte {
	n := r.varint()

	if r.err != nil {
		return nil
	}

	if uint64(len(r.buf)-r.off) < n {
		r.fail("EBM6006", "truncated byte payload")

		return nil
	}

	out := make([]byte, n)
	copy(out, r.buf[r.off:r.off+int(n)])
	r.off += int(n)

	return out
}

// Decode parses a binary module back into an arena.Module, checking
// the version byte first. Re-parsing a serialized module yields a
// structurally identical one.
func Decode(data []byte) (*arena.Module, error) {
	r := &reader{buf: data}

	version := r.u8()
	if r.err == nil && version != FormatVersion {
		return nil, errors.NewStandardError(errors.CategoryMalformedInput, "EBM6007",
			fmt.Sprintf("unsupported format version %d (want %d)", version, FormatVersion), nil)
	}

	mod := arena.NewModule()
	maxID := r.varint()

	identCount := r.varint()
	for i := uint64(0); i < identCount && r.err == nil; i++ {
		id, body := r.entry()
		if r.err != nil {
			break
		}

		r.check(mod.Identifiers.AddWithID(ebm.Ref(id), arena.Identifier{Name: string(body)}))
	}

	strCount := r.varint()
	for i := uint64(0); i < strCount && r.err == nil; i++ {
		id, body := r.entry()
		if r.err != nil {
			break
		}

		r.check(mod.Strings.AddWithID(ebm.Ref(id), arena.String{Bytes: body}))
	}

	typeCount := r.varint()
	for i := uint64(0); i < typeCount && r.err == nil; i++ {
		id, body := r.entry()
		if r.err != nil {
			break
		}

		br := &reader{buf: body}
		t := br.typeBody()

		if br.err != nil {
			return nil, br.err
		}

		r.check(mod.Types.AddWithID(ebm.Ref(id), t))
	}

	stmtCount := r.varint()
	for i := uint64(0); i < stmtCount && r.err == nil; i++ {
		id, body := r.entry()
		if r.err != nil {
			break
		}

		br := &reader{buf: body}
		s := br.statementBody()

		if br.err != nil {
			return nil, br.err
		}

		r.check(mod.Statements.AddWithID(ebm.Ref(id), s))
	}

	exprCount := r.varint()
	for i := uint64(0); i < exprCount && r.err == nil; i++ {
		id, body := r.entry()
		if r.err != nil {
			break
		}

		br := &reader{buf: body}
		e := br.expressionBody()

		if br.err != nil {
			return nil, br.err
		}

		r.check(mod.Expressions.AddWithID(ebm.Ref(id), e))
	}

	aliasCount := r.varint()
	for i := uint64(0); i < aliasCount && r.err == nil; i++ {
		kind := ebm.AliasKind(r.u16())
		from := r.ref()
		to := r.ref()

		switch kind {
		case ebm.AliasIdentifier:
			mod.Identifiers.Alias(from, to)
		case ebm.AliasString:
			mod.Strings.Alias(from, to)
		case ebm.AliasType:
			mod.Types.Alias(from, to)
		case ebm.AliasStatement:
			mod.Statements.Alias(from, to)
		case ebm.AliasExpression:
			mod.Expressions.Alias(from, to)
		}
	}

	fileCount := r.varint()
	for i := uint64(0); i < fileCount && r.err == nil; i++ {
		mod.DebugFiles = append(mod.DebugFiles, string(r.bytes()))
	}

	locCount := r.varint()
	for i := uint64(0); i < locCount && r.err == nil; i++ {
		loc := arena.DebugLoc{Ref: r.ref()}
		loc.File = string(r.bytes())
		loc.Line = int(r.varint())
		loc.Col = int(r.varint())
		mod.DebugLocs = append(mod.DebugLocs, loc)
	}

	if r.err != nil {
		return nil, r.err
	}

	mod.Finalize()
	mod.MaxID = ebm.Ref(maxID)

	return mod, nil
}

func (r *reader) check(err error) {
	if err != nil && r.err == nil {
		r.err = err
	}
}

// entry reads one arena entry: id varint, body length varint, body bytes.
func (r *reader) entry() (uint64, []byte) {
	id := r.varint()
	body := r.bytes()

	return id, body
}

func (r *reader) typeBody() ebm.Type {
	t := ebm.Type{Kind: ebm.TypeKind(r.u16())}

	switch t.Kind {
	case ebm.INT, ebm.UINT, ebm.USIZE, ebm.FLOAT:
		t.Size = r.varint()
	case ebm.ENUM:
		t.ID = r.tref()
		t.BaseType = r.tref()
	case ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		t.ID = r.tref()
	case ebm.ARRAY:
		t.Element = r.tref()
		t.Length = r.varint()
	case ebm.VECTOR:
		t.Element = r.tref()
	case ebm.VARIANT:
		t.CommonType = r.tref()

		n := r.varint()
		for i := uint64(0); i < n && r.err == nil; i++ {
			t.MemberTypes = append(t.MemberTypes, r.tref())
		}

		t.RelatedField = r.stref()
	case ebm.RANGE:
		t.BaseType = r.tref()
	case ebm.FUNCTION:
		n := r.varint()
		for i := uint64(0); i < n && r.err == nil; i++ {
			t.Params = append(t.Params, r.tref())
		}

		t.ReturnType = r.tref()
	case ebm.OPTIONAL, ebm.PTR:
		t.BaseType = r.tref()
	}

	return t
}

func (r *reader) stmtList() []ebm.StatementRef {
	n := r.varint()

	var out []ebm.StatementRef

	for i := uint64(0); i < n && r.err == nil; i++ {
		out = append(out, r.stref())
	}

	return out
}

func (r *reader) statementBody() ebm.Statement {
	s := ebm.Statement{Kind: ebm.StatementKind(r.u16())}

	switch s.Kind {
	case ebm.BLOCK, ebm.LOWERED_STATEMENTS, ebm.PROGRAM_DECL:
		s.Items = r.stmtList()
	case ebm.IF_STATEMENT:
		s.Cond = r.eref()
		s.Then = r.stref()
		s.Else = r.stref()
	case ebm.LOOP_STATEMENT:
		s.LoopType = ebm.LoopKind(r.u16())
		s.Init = r.stref()
		s.Cond = r.eref()
		s.Increment = r.stref()
		s.Item = r.stref()
		s.Collection = r.eref()
		s.Body = r.stref()
	case ebm.MATCH_STATEMENT:
		s.Cond = r.eref()
		s.Items = r.stmtList()
	case ebm.MATCH_BRANCH:
		s.Cond = r.eref()
		s.Body = r.stref()
	case ebm.BREAK, ebm.CONTINUE:
		s.RelatedLoop = r.stref()
	case ebm.RETURN:
		s.Value = r.eref()
	case ebm.ASSIGNMENT:
		s.Target = r.eref()
		s.Value = r.eref()
	case ebm.VARIABLE_DECL, ebm.PARAMETER_DECL:
		s.Name = r.iref()
		s.Type = r.tref()
		s.Value = r.eref()
	case ebm.FIELD_DECL:
		s.Name = r.iref()
		s.Type = r.tref()
		s.BitSize = r.varint()
	case ebm.COMPOSITE_FIELD_DECL:
		s.Type = r.tref()
		s.Items = r.stmtList()
	case ebm.STRUCT_DECL:
		s.Items = r.stmtList()
		s.EncodeFn = r.stref()
		s.DecodeFn = r.stref()
		s.Recursive = r.boolByte()
	case ebm.ENUM_DECL:
		s.Name = r.iref()
		s.Type = r.tref()
		s.Items = r.stmtList()
	case ebm.ENUM_MEMBER_DECL:
		s.Name = r.iref()
		s.Value = r.eref()
	case ebm.FUNCTION_DECL:
		s.FuncKind = ebm.FuncDeclKind(r.u16())
		s.Name = r.iref()
		s.Items = r.stmtList()
		s.ReturnType = r.tref()
		s.Body = r.stref()
	case ebm.PROPERTY_DECL:
		s.MergeMode = ebm.PropertyMergeMode(r.u16())
		s.PropertyType = r.tref()
		s.GetterCond = r.eref()
		s.SetterCond = r.eref()
		s.Items = r.stmtList()
		s.Getter = r.stref()
		s.Setter = r.stref()
		s.VectorSetter = r.stref()
	case ebm.PROPERTY_MEMBER_DECL:
		s.Cond = r.eref()
		s.Field = r.stref()
	case ebm.READ_DATA, ebm.WRITE_DATA:
		s.IO = r.ioData()
	case ebm.ASSERT:
		s.Cond = r.eref()
		s.Message = r.sref()
	case ebm.LENGTH_CHECK:
		s.Target = r.eref()
		s.Length = r.eref()
	case ebm.ERROR_REPORT, ebm.ERROR_RETURN:
		s.Message = r.sref()
	case ebm.EXPRESSION_STATEMENT:
		s.Expr = r.eref()
	case ebm.METADATA_STATEMENT:
		s.Key = r.sref()
		s.Str = r.sref()
	case ebm.IMPORT_MODULE:
		s.Name = r.iref()
		s.Str = r.sref()
		s.Str2 = r.sref()
	case ebm.PHI_NODE:
		n := r.varint()
		for i := uint64(0); i < n && r.err == nil; i++ {
			s.PhiSources = append(s.PhiSources, r.eref())
		}
	}

	s.Lowered = r.stref()

	return s
}

func (r *reader) expressionBody() ebm.Expression {
	e := ebm.Expression{Kind: ebm.ExpressionKind(r.u16())}
	e.Type = r.tref()

	switch e.Kind {
	case ebm.LITERAL_INT:
		e.IntValue = r.varint()
	case ebm.LITERAL_BOOL:
		e.BoolValue = r.boolByte()
	case ebm.LITERAL_STRING:
		e.StrValue = r.sref()
	case ebm.LITERAL_TYPE, ebm.MAX_VALUE, ebm.DEFAULT_VALUE, ebm.NEW_OBJECT:
		e.TypeValue = r.tref()
	case ebm.IDENTIFIER:
		e.Ident = r.stref()
	case ebm.BINARY_OP:
		e.BinOp = ebm.BinaryOp(r.u16())
		e.Left = r.eref()
		e.Right = r.eref()
	case ebm.UNARY_OP:
		e.UnOp = ebm.UnaryOp(r.u16())
		e.Operand = r.eref()
	case ebm.INDEX_ACCESS:
		e.Base = r.eref()
		e.Index = r.eref()
	case ebm.MEMBER_ACCESS:
		e.Base = r.eref()
		e.Member = r.sref()
	case ebm.TYPE_CAST:
		e.CastKind = ebm.CastKind(r.u16())
		e.Source = r.eref()
	case ebm.RANGE_EXPR:
		e.Low = r.eref()
		e.High = r.eref()
		e.Inclusive = r.boolByte()
	case ebm.CALL:
		e.Callee = r.eref()

		n := r.varint()
		for i := uint64(0); i < n && r.err == nil; i++ {
			e.Args = append(e.Args, r.eref())
		}
	case ebm.ARRAY_SIZE, ebm.ADDRESSOF, ebm.OPTIONALOF:
		e.Base = r.eref()
	case ebm.IS_LITTLE_ENDIAN:
		e.Stream = r.eref()
	case ebm.IS_ERROR:
		e.Operand = r.eref()
	case ebm.GET_STREAM_OFFSET:
		e.Stream = r.eref()
		e.Unit = ebm.IOSize{Unit: ebm.SizeUnit(r.u16())}
	case ebm.GET_REMAINING_BYTES:
		e.Stream = r.eref()
	case ebm.CAN_READ_STREAM:
		e.Stream = r.eref()
		e.Amount = r.eref()
	case ebm.READ_DATA_EXPR, ebm.WRITE_DATA_EXPR:
		e.Setup = r.stref()
		e.IO = r.ioData()
	case ebm.CONDITIONAL_STATEMENT:
		e.Cond = r.eref()
		e.Statement = r.stref()
	case ebm.SETTER_STATUS_EXPR:
		e.Status = ebm.SetterStatus(r.u8())
	case ebm.OR_COND:
		n := r.varint()
		for i := uint64(0); i < n && r.err == nil; i++ {
			e.Terms = append(e.Terms, r.eref())
		}
	}

	return e
}

func (r *reader) ioData() ebm.IOData {
	var io ebm.IOData

	io.IORef = r.eref()
	io.Field = r.stref()
	io.Target = r.eref()
	io.DataType = r.tref()
	io.Attribute.Endian = ebm.Endian(r.u8())
	io.Attribute.Signed = r.boolByte()
	io.Attribute.Peek = r.boolByte()
	io.Attribute.HasLoweredStatement = r.boolByte()
	io.Attribute.DynamicEndianExpr = r.eref()
	io.Size.Unit = ebm.SizeUnit(r.u16())
	io.Size.Literal = r.varint()
	io.Size.Expr = r.eref()
	io.LoweredStatement = r.stref()

	return io
}
