package srcast

import (
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/orizon-lang/ebmc/internal/position"
)

// LoadProgram decodes the JSON form the upstream parser emits into a
// Program tree. Each node carries a "kind" discriminant; array lengths
// come from the JSON arrays themselves, and any "len" sibling is ignored.
func LoadProgram(data []byte) (*Program, error) {
	var raw wireNode
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("srcast: malformed input: %w", err)
	}

	if raw.Kind != "Program" {
		return nil, fmt.Errorf("srcast: expected root kind Program, got %q", raw.Kind)
	}

	formats := make([]*Format, 0, len(raw.Formats))

	for _, fr := range raw.Formats {
		f, err := decodeFormat(fr)
		if err != nil {
			return nil, err
		}

		formats = append(formats, f)
	}

	imports := make([]*Import, 0, len(raw.Imports))

	for _, ir := range raw.Imports {
		imports = append(imports, &Import{
			Span:       ir.span(),
			ModulePath: ir.ModulePath,
			Alias:      ir.Alias,
			Constraint: ir.Constraint,
		})
	}

	return &Program{Span: raw.span(), Formats: formats, Imports: imports}, nil
}

// wireNode is the generic on-the-wire shape: every field that might appear
// on any node kind, left zero-valued when irrelevant. The upstream
// parser emits one flat JSON object per node and dispatches on "kind".
type wireNode struct {
	Kind     string          `json:"kind"`
	Name     string          `json:"name,omitempty"`
	Pos      *wirePos        `json:"pos,omitempty"`
	Formats  []wireNode      `json:"formats,omitempty"`
	Imports  []wireNode      `json:"imports,omitempty"`
	Fields   []wireNode      `json:"fields,omitempty"`
	Funcs    []wireNode      `json:"functions,omitempty"`
	State    []wireNode      `json:"state,omitempty"`
	IsUnion  bool            `json:"is_union,omitempty"`
	Recursive bool           `json:"recursive,omitempty"`
	Metadata []wireNode      `json:"metadata,omitempty"`
	Key      string          `json:"key,omitempty"`
	Value    json.RawMessage `json:"value,omitempty"`
	ModulePath string        `json:"module_path,omitempty"`
	Alias      string        `json:"alias,omitempty"`
	Constraint string        `json:"constraint,omitempty"`
	Type     json.RawMessage `json:"type,omitempty"`
	Params   []wireNode      `json:"params,omitempty"`
	Return   json.RawMessage `json:"return_type,omitempty"`
	Body     json.RawMessage `json:"body,omitempty"`
	Bits     int             `json:"bits,omitempty"`
	Signed   bool            `json:"signed,omitempty"`
	Endian   string          `json:"endian,omitempty"`
	EndianOf json.RawMessage `json:"endian_of,omitempty"`
	Element  json.RawMessage `json:"element,omitempty"`
	LenKind  string          `json:"len_kind,omitempty"`
	Literal  uint64          `json:"literal,omitempty"`
	LengthField json.RawMessage `json:"length_field,omitempty"`
	AlignBytes  uint64       `json:"align_bytes,omitempty"`
	FollowToEnd bool         `json:"follow_to_end,omitempty"`
	Terminator  json.RawMessage `json:"terminator,omitempty"`
	TailSizeBytes uint64     `json:"tail_size_bytes,omitempty"`
	Candidates []wireNode    `json:"candidates,omitempty"`
	Cond       json.RawMessage `json:"cond,omitempty"`
	FieldName  string        `json:"field_name,omitempty"`
	Members    []wireNode    `json:"members,omitempty"`
	Base64     string        `json:"base64,omitempty"`
	Low        json.RawMessage `json:"low,omitempty"`
	High       json.RawMessage `json:"high,omitempty"`
	Inclusive  bool          `json:"inclusive,omitempty"`
	Method     string        `json:"method,omitempty"`
	Stream     json.RawMessage `json:"stream,omitempty"`
	Args       []json.RawMessage `json:"args,omitempty"`
	Callee     json.RawMessage `json:"callee,omitempty"`
	Op         string        `json:"op,omitempty"`
	Left       json.RawMessage `json:"left,omitempty"`
	Right      json.RawMessage `json:"right,omitempty"`
	Operand    json.RawMessage `json:"operand,omitempty"`
	Target     json.RawMessage `json:"target,omitempty"`
	Index      json.RawMessage `json:"index,omitempty"`
	Base       json.RawMessage `json:"base,omitempty"`
	Member     string        `json:"member,omitempty"`
	IntValue   uint64        `json:"int_value,omitempty"`
	Neg        bool          `json:"neg,omitempty"`
	BoolValue  bool          `json:"bool_value,omitempty"`
	Statements []wireNode    `json:"statements,omitempty"`
	Condition  json.RawMessage `json:"condition,omitempty"`
	Then       json.RawMessage `json:"then,omitempty"`
	Else       json.RawMessage `json:"else,omitempty"`
	LoopKind   string        `json:"loop_kind,omitempty"`
	Init       json.RawMessage `json:"init,omitempty"`
	Step       json.RawMessage `json:"step,omitempty"`
	ItemName   string        `json:"item_name,omitempty"`
	Collection json.RawMessage `json:"collection,omitempty"`
	Subject    json.RawMessage `json:"subject,omitempty"`
	Branches   []wireNode    `json:"branches,omitempty"`
	Message    string        `json:"message,omitempty"`
	AssignOp   string        `json:"assign_op,omitempty"`
}

type wirePos struct {
	File        string `json:"file"`
	Line        int    `json:"line"`
	Col         int    `json:"col"`
	EndLine     int    `json:"end_line"`
	EndCol      int    `json:"end_col"`
	Offset      int    `json:"offset"`
	EndOffset   int    `json:"end_offset"`
}

func (w wireNode) span() position.Span {
	if w.Pos == nil {
		return position.Span{}
	}

	return position.Span{
		Start: position.Position{Filename: w.Pos.File, Line: w.Pos.Line, Column: w.Pos.Col, Offset: w.Pos.Offset},
		End:   position.Position{Filename: w.Pos.File, Line: w.Pos.EndLine, Column: w.Pos.EndCol, Offset: w.Pos.EndOffset},
	}
}

func decodeFormat(w wireNode) (*Format, error) {
	fields := make([]Statement, 0, len(w.Fields))

	for _, fr := range w.Fields {
		st, err := decodeStatement(fr)
		if err != nil {
			return nil, err
		}

		fields = append(fields, st)
	}

	funcs := make([]*Function, 0, len(w.Funcs))

	for _, fr := range w.Funcs {
		fn, err := decodeFunction(fr)
		if err != nil {
			return nil, err
		}

		funcs = append(funcs, fn)
	}

	state := make([]*StateVar, 0, len(w.State))

	for _, sr := range w.State {
		t, err := decodeTypeRaw(sr.Type)
		if err != nil {
			return nil, err
		}

		state = append(state, &StateVar{Span: sr.span(), Name: sr.Name, Type: t})
	}

	meta := decodeMetadataList(w.Metadata)

	return &Format{
		Span: w.span(), Name: w.Name, Fields: fields, Functions: funcs,
		State: state, IsUnion: w.IsUnion, Recursive: w.Recursive, Metadata: meta,
	}, nil
}

func decodeMetadataList(ws []wireNode) []*Metadata {
	out := make([]*Metadata, 0, len(ws))

	for _, w := range ws {
		var value string

		if len(w.Value) > 0 {
			// Metadata values may be emitted either as bare JSON strings or
			// (for non-string constants) as raw literals; fall back to the
			// literal text when it isn't valid JSON string content.
			if err := json.Unmarshal(w.Value, &value); err != nil {
				value = string(w.Value)
			}
		}

		out = append(out, &Metadata{Span: w.span(), Key: w.Key, Value: value})
	}

	return out
}

func decodeFunction(w wireNode) (*Function, error) {
	params := make([]*Parameter, 0, len(w.Params))

	for _, pr := range w.Params {
		t, err := decodeTypeRaw(pr.Type)
		if err != nil {
			return nil, err
		}

		params = append(params, &Parameter{Span: pr.span(), Name: pr.Name, Type: t})
	}

	var ret Type

	if len(w.Return) > 0 {
		t, err := decodeTypeRaw(w.Return)
		if err != nil {
			return nil, err
		}

		ret = t
	}

	body, err := decodeBlockRaw(w.Body)
	if err != nil {
		return nil, err
	}

	return &Function{Span: w.span(), Name: w.Name, Parameters: params, ReturnType: ret, Body: body}, nil
}

func decodeBlockRaw(raw json.RawMessage) (*IndentBlock, error) {
	if len(raw) == 0 {
		return &IndentBlock{}, nil
	}

	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	st, err := decodeStatement(w)
	if err != nil {
		return nil, err
	}

	if blk, ok := st.(*IndentBlock); ok {
		return blk, nil
	}

	return &IndentBlock{Span: st.GetSpan(), Statements: []Statement{st}}, nil
}

func decodeTypeRaw(raw json.RawMessage) (Type, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	return decodeType(w)
}

func decodeType(w wireNode) (Type, error) {
	switch w.Kind {
	case "IntType":
		var endianOf Expression

		if len(w.EndianOf) > 0 {
			e, err := decodeExprRaw(w.EndianOf)
			if err != nil {
				return nil, err
			}

			endianOf = e
		}

		return &IntType{Span: w.span(), Bits: w.Bits, Signed: w.Signed, Endian: parseEndian(w.Endian), EndianOf: endianOf}, nil
	case "FloatType":
		return &FloatType{Span: w.span(), Bits: w.Bits, Endian: parseEndian(w.Endian)}, nil
	case "BoolType":
		return &BoolType{Span: w.span()}, nil
	case "IdentType":
		return &IdentType{Span: w.span(), Name: w.Name}, nil
	case "ArrayType":
		elem, err := decodeTypeRaw(w.Element)
		if err != nil {
			return nil, err
		}

		at := &ArrayType{
			Span: w.span(), Element: elem, LenKind: parseArrayLenKind(w.LenKind),
			Literal: w.Literal, AlignBytes: w.AlignBytes, FollowToEnd: w.FollowToEnd,
			TailSizeBytes: w.TailSizeBytes,
		}

		if len(w.LengthField) > 0 {
			e, err := decodeExprRaw(w.LengthField)
			if err != nil {
				return nil, err
			}

			at.LengthField = e
		}

		if len(w.Terminator) > 0 {
			e, err := decodeExprRaw(w.Terminator)
			if err != nil {
				return nil, err
			}

			at.Terminator = e
		}

		return at, nil
	case "UnionType":
		cands := make([]UnionCandidate, 0, len(w.Candidates))

		for _, cw := range w.Candidates {
			var cond Expression

			if len(cw.Cond) > 0 {
				e, err := decodeExprRaw(cw.Cond)
				if err != nil {
					return nil, err
				}

				cond = e
			}

			ct, err := decodeTypeRaw(cw.Type)
			if err != nil {
				return nil, err
			}

			cands = append(cands, UnionCandidate{Span: cw.span(), Cond: cond, FieldName: cw.FieldName, Type: ct})
		}

		return &UnionType{Span: w.span(), Candidates: cands}, nil
	case "EnumType":
		base, err := decodeTypeRaw(w.Type)
		if err != nil {
			return nil, err
		}

		members := make([]EnumMember, 0, len(w.Members))

		for _, mw := range w.Members {
			var val Expression

			if len(mw.Value) > 0 {
				e, err := decodeExprRaw(mw.Value)
				if err != nil {
					return nil, err
				}

				val = e
			}

			members = append(members, EnumMember{Span: mw.span(), Name: mw.Name, Value: val})
		}

		return &EnumType{Span: w.span(), Name: w.Name, Base: base, Members: members}, nil
	case "StrLiteralType":
		b, err := base64.StdEncoding.DecodeString(w.Base64)
		if err != nil {
			return nil, fmt.Errorf("srcast: bad base64 in StrLiteralType: %w", err)
		}

		return &StrLiteralType{Span: w.span(), Bytes: b}, nil
	case "RangeType":
		base, err := decodeTypeRaw(w.Type)
		if err != nil {
			return nil, err
		}

		return &RangeType{Span: w.span(), Base: base}, nil
	case "FunctionType":
		params := make([]Type, 0, len(w.Params))

		for _, pw := range w.Params {
			t, err := decodeType(pw)
			if err != nil {
				return nil, err
			}

			params = append(params, t)
		}

		ret, err := decodeTypeRaw(w.Return)
		if err != nil {
			return nil, err
		}

		return &FunctionType{Span: w.span(), Params: params, ReturnType: ret}, nil
	default:
		return nil, fmt.Errorf("srcast: unsupported type kind %q", w.Kind)
	}
}

func parseEndian(s string) Endian {
	switch s {
	case "little":
		return EndianLittle
	case "big":
		return EndianBig
	case "dynamic":
		return EndianDynamic
	default:
		return EndianNative
	}
}

func parseArrayLenKind(s string) ArrayLenKind {
	switch s {
	case "field":
		return ArrayLenField
	case "align":
		return ArrayLenAlign
	case "open":
		return ArrayLenOpen
	default:
		return ArrayLenLiteral
	}
}

func decodeExprRaw(raw json.RawMessage) (Expression, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	return decodeExpr(w)
}

func decodeExpr(w wireNode) (Expression, error) {
	switch w.Kind {
	case "Ident":
		return &Ident{Span: w.span(), Name: w.Name}, nil
	case "IntLiteral":
		return &IntLiteral{Span: w.span(), Value: w.IntValue, Neg: w.Neg}, nil
	case "StrLiteral":
		b, err := base64.StdEncoding.DecodeString(w.Base64)
		if err != nil {
			return nil, fmt.Errorf("srcast: bad base64 in StrLiteral: %w", err)
		}

		return &StrLiteral{Span: w.span(), Bytes: b}, nil
	case "BoolLiteral":
		return &BoolLiteral{Span: w.span(), Value: w.BoolValue}, nil
	case "TypeLiteral":
		t, err := decodeTypeRaw(w.Type)
		if err != nil {
			return nil, err
		}

		return &TypeLiteral{Span: w.span(), Type: t}, nil
	case "Binary":
		l, err := decodeExprRaw(w.Left)
		if err != nil {
			return nil, err
		}

		r, err := decodeExprRaw(w.Right)
		if err != nil {
			return nil, err
		}

		return &Binary{Span: w.span(), Op: parseBinaryOp(w.Op), Left: l, Right: r}, nil
	case "Unary":
		o, err := decodeExprRaw(w.Operand)
		if err != nil {
			return nil, err
		}

		op := OpNot

		if w.Op == "neg" {
			op = OpNeg
		}

		return &Unary{Span: w.span(), Op: op, Operand: o}, nil
	case "Cast":
		e, err := decodeExprRaw(w.Value)
		if err != nil {
			return nil, err
		}

		t, err := decodeTypeRaw(w.Type)
		if err != nil {
			return nil, err
		}

		return &Cast{Span: w.span(), Expression: e, TargetType: t}, nil
	case "Index":
		b, err := decodeExprRaw(w.Base)
		if err != nil {
			return nil, err
		}

		i, err := decodeExprRaw(w.Index)
		if err != nil {
			return nil, err
		}

		return &Index{Span: w.span(), Base: b, Index: i}, nil
	case "MemberAccess":
		b, err := decodeExprRaw(w.Base)
		if err != nil {
			return nil, err
		}

		return &MemberAccess{Span: w.span(), Base: b, Member: w.Member}, nil
	case "Range":
		var lo, hi Expression

		var err error

		if len(w.Low) > 0 {
			if lo, err = decodeExprRaw(w.Low); err != nil {
				return nil, err
			}
		}

		if len(w.High) > 0 {
			if hi, err = decodeExprRaw(w.High); err != nil {
				return nil, err
			}
		}

		return &Range{Span: w.span(), Low: lo, High: hi, Inclusive: w.Inclusive}, nil
	case "IOOperation":
		stream, err := decodeExprRaw(w.Stream)
		if err != nil {
			return nil, err
		}

		args := make([]Expression, 0, len(w.Args))

		for _, ar := range w.Args {
			a, err := decodeExprRaw(ar)
			if err != nil {
				return nil, err
			}

			args = append(args, a)
		}

		return &IOOperation{Span: w.span(), Method: parseIOMethod(w.Method), Stream: stream, Args: args}, nil
	case "Call":
		callee, err := decodeExprRaw(w.Callee)
		if err != nil {
			return nil, err
		}

		args := make([]Expression, 0, len(w.Args))

		for _, ar := range w.Args {
			a, err := decodeExprRaw(ar)
			if err != nil {
				return nil, err
			}

			args = append(args, a)
		}

		return &Call{Span: w.span(), Callee: callee, Args: args}, nil
	default:
		return nil, fmt.Errorf("srcast: unsupported expression kind %q", w.Kind)
	}
}

func parseBinaryOp(s string) BinaryOp {
	m := map[string]BinaryOp{
		"+": OpAdd, "-": OpSub, "*": OpMul, "/": OpDiv, "%": OpMod,
		"==": OpEq, "!=": OpNe, "<": OpLt, "<=": OpLe, ">": OpGt, ">=": OpGe,
		"&&": OpLogAnd, "||": OpLogOr, "&": OpBitAnd, "|": OpBitOr, "^": OpBitXor,
		"<<": OpShl, ">>": OpShr, "..": OpRangeExclusive, "..=": OpRangeInclusive,
	}
	if op, ok := m[s]; ok {
		return op
	}

	return OpAdd
}

func parseIOMethod(s string) IOMethod {
	m := map[string]IOMethod{
		"input_offset": IOInputOffset, "input_bit_offset": IOInputBitOffset,
		"input_remain": IOInputRemain, "input_peek": IOInputPeek,
		"input_subrange": IOInputSubrange, "input_get": IOInputGet,
		"output_put": IOOutputPut,
	}
	if mth, ok := m[s]; ok {
		return mth
	}

	return IOInputOffset
}

func decodeStatement(w wireNode) (Statement, error) {
	switch w.Kind {
	case "IndentBlock":
		stmts := make([]Statement, 0, len(w.Statements))

		for _, sr := range w.Statements {
			st, err := decodeStatement(sr)
			if err != nil {
				return nil, err
			}

			stmts = append(stmts, st)
		}

		return &IndentBlock{Span: w.span(), Statements: stmts}, nil
	case "ScopedStatement":
		body, err := decodeBlockRaw(w.Body)
		if err != nil {
			return nil, err
		}

		return &ScopedStatement{Span: w.span(), Body: body}, nil
	case "FieldDecl":
		t, err := decodeTypeRaw(w.Type)
		if err != nil {
			return nil, err
		}

		return &FieldDecl{Span: w.span(), Name: w.Name, Type: t, Metadata: decodeMetadataList(w.Metadata)}, nil
	case "If":
		cond, err := decodeExprRaw(w.Condition)
		if err != nil {
			return nil, err
		}

		then, err := decodeStmtRaw(w.Then)
		if err != nil {
			return nil, err
		}

		var els Statement

		if len(w.Else) > 0 {
			els, err = decodeStmtRaw(w.Else)
			if err != nil {
				return nil, err
			}
		}

		return &If{Span: w.span(), Condition: cond, Then: then, Else: els}, nil
	case "Loop":
		l := &Loop{Span: w.span(), Kind: parseLoopKind(w.LoopKind), ItemName: w.ItemName}

		var err error

		if len(w.Init) > 0 {
			if l.Init, err = decodeStmtRaw(w.Init); err != nil {
				return nil, err
			}
		}

		if len(w.Condition) > 0 {
			if l.Condition, err = decodeExprRaw(w.Condition); err != nil {
				return nil, err
			}
		}

		if len(w.Step) > 0 {
			if l.Step, err = decodeStmtRaw(w.Step); err != nil {
				return nil, err
			}
		}

		if len(w.Collection) > 0 {
			if l.Collection, err = decodeExprRaw(w.Collection); err != nil {
				return nil, err
			}
		}

		if l.Body, err = decodeStmtRaw(w.Body); err != nil {
			return nil, err
		}

		return l, nil
	case "MatchBranch":
		var cond Expression

		var err error

		if len(w.Condition) > 0 {
			if cond, err = decodeExprRaw(w.Condition); err != nil {
				return nil, err
			}
		}

		body, err := decodeStmtRaw(w.Body)
		if err != nil {
			return nil, err
		}

		return &MatchBranch{Span: w.span(), Condition: cond, Body: body}, nil
	case "Match":
		var subject Expression

		var err error

		if len(w.Subject) > 0 {
			if subject, err = decodeExprRaw(w.Subject); err != nil {
				return nil, err
			}
		}

		branches := make([]*MatchBranch, 0, len(w.Branches))

		for _, br := range w.Branches {
			b, err := decodeStatement(br)
			if err != nil {
				return nil, err
			}

			mb, ok := b.(*MatchBranch)
			if !ok {
				return nil, fmt.Errorf("srcast: Match branch decoded to %T, want *MatchBranch", b)
			}

			branches = append(branches, mb)
		}

		return &Match{Span: w.span(), Subject: subject, Branches: branches}, nil
	case "Return":
		var val Expression

		var err error

		if len(w.Value) > 0 {
			if val, err = decodeExprRaw(w.Value); err != nil {
				return nil, err
			}
		}

		return &Return{Span: w.span(), Value: val}, nil
	case "Break":
		return &Break{Span: w.span()}, nil
	case "Continue":
		return &Continue{Span: w.span()}, nil
	case "Assert":
		cond, err := decodeExprRaw(w.Condition)
		if err != nil {
			return nil, err
		}

		return &Assert{Span: w.span(), Condition: cond, Message: w.Message}, nil
	case "ExplicitError":
		return &ExplicitError{Span: w.span(), Message: w.Message}, nil
	case "Assign":
		target, err := decodeExprRaw(w.Target)
		if err != nil {
			return nil, err
		}

		value, err := decodeExprRaw(w.Value)
		if err != nil {
			return nil, err
		}

		return &Assign{Span: w.span(), Op: parseAssignOp(w.AssignOp), Target: target, Value: value}, nil
	case "ImplicitYield":
		val, err := decodeExprRaw(w.Value)
		if err != nil {
			return nil, err
		}

		return &ImplicitYield{Span: w.span(), Value: val}, nil
	default:
		return nil, fmt.Errorf("srcast: unsupported statement kind %q", w.Kind)
	}
}

func decodeStmtRaw(raw json.RawMessage) (Statement, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var w wireNode
	if err := json.Unmarshal(raw, &w); err != nil {
		return nil, err
	}

	return decodeStatement(w)
}

func parseLoopKind(s string) LoopKind {
	switch s {
	case "while":
		return LoopWhile
	case "for_each":
		return LoopForEach
	case "infinite":
		return LoopInfinite
	default:
		return LoopFor
	}
}

func parseAssignOp(s string) AssignOp {
	switch s {
	case "define":
		return AssignDefine
	case "const":
		return AssignConst
	default:
		return AssignPlain
	}
}
