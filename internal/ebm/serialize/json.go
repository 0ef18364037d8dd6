package serialize

import (
	"encoding/base64"
	"encoding/json"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

// ToJSON renders the parallel JSON encoding: every array carries a
// `len` sibling matching its element count, kind and mode discriminants
// are their symbolic names (binary and unary operator codes are emitted
// as plain numbers), and refs are plain integer ids. The output exists for
// diagnostics and round-trip checks, not as an interchange format; the
// binary form is authoritative.
func ToJSON(mod *arena.Module) ([]byte, error) {
	root := map[string]interface{}{
		"version": FormatVersion,
		"max_id":  uint64(mod.MaxID),
	}

	idents := make([]interface{}, 0, mod.Identifiers.Len())
	for _, e := range mod.Identifiers.Entries() {
		idents = append(idents, map[string]interface{}{"id": uint64(e.ID), "name": e.Body.Name})
	}

	root["identifiers_len"] = len(idents)
	root["identifiers"] = idents

	strs := make([]interface{}, 0, mod.Strings.Len())
	for _, e := range mod.Strings.Entries() {
		strs = append(strs, map[string]interface{}{
			"id": uint64(e.ID), "bytes": base64.StdEncoding.EncodeToString(e.Body.Bytes),
		})
	}

	root["strings_len"] = len(strs)
	root["strings"] = strs

	types := make([]interface{}, 0, mod.Types.Len())
	for _, e := range mod.Types.Entries() {
		body := e.Body
		types = append(types, map[string]interface{}{"id": uint64(e.ID), "body": typeJSON(&body)})
	}

	root["types_len"] = len(types)
	root["types"] = types

	stmts := make([]interface{}, 0, mod.Statements.Len())
	for _, e := range mod.Statements.Entries() {
		body := e.Body
		stmts = append(stmts, map[string]interface{}{"id": uint64(e.ID), "body": statementJSON(&body)})
	}

	root["statements_len"] = len(stmts)
	root["statements"] = stmts

	exprs := make([]interface{}, 0, mod.Expressions.Len())
	for _, e := range mod.Expressions.Entries() {
		body := e.Body
		exprs = append(exprs, map[string]interface{}{"id": uint64(e.ID), "body": expressionJSON(&body)})
	}

	root["expressions_len"] = len(exprs)
	root["expressions"] = exprs

	aliases := collectAliases(mod)
	aliasObjs := make([]interface{}, 0, len(aliases))

	for _, a := range aliases {
		aliasObjs = append(aliasObjs, map[string]interface{}{
			"hint": a.Kind.String(), "from": uint64(a.From), "to": uint64(a.To),
		})
	}

	root["aliases_len"] = len(aliasObjs)
	root["aliases"] = aliasObjs

	root["debug_files_len"] = len(mod.DebugFiles)
	root["debug_files"] = mod.DebugFiles

	locs := make([]interface{}, 0, len(mod.DebugLocs))
	for _, l := range mod.DebugLocs {
		locs = append(locs, map[string]interface{}{
			"ref": uint64(l.Ref), "file": l.File, "line": l.Line, "col": l.Col,
		})
	}

	root["debug_locs_len"] = len(locs)
	root["debug_locs"] = locs

	return json.MarshalIndent(root, "", "  ")
}

func refList[R ~uint64](refs []R) ([]interface{}, int) {
	out := make([]interface{}, 0, len(refs))
	for _, r := range refs {
		out = append(out, uint64(r))
	}

	return out, len(out)
}

func typeJSON(t *ebm.Type) map[string]interface{} {
	m := map[string]interface{}{"kind": t.Kind.String()}

	switch t.Kind {
	case ebm.INT, ebm.UINT, ebm.USIZE, ebm.FLOAT:
		m["size"] = t.Size
	case ebm.ENUM:
		m["id"] = uint64(t.ID)
		m["base_type"] = uint64(t.BaseType)
	case ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		m["id"] = uint64(t.ID)
	case ebm.ARRAY:
		m["element"] = uint64(t.Element)
		m["length"] = t.Length
	case ebm.VECTOR:
		m["element"] = uint64(t.Element)
	case ebm.VARIANT:
		members, n := refList(t.MemberTypes)
		m["common_type"] = uint64(t.CommonType)
		m["member_types_len"] = n
		m["member_types"] = members
		m["related_field"] = uint64(t.RelatedField)
	case ebm.RANGE:
		m["base_type"] = uint64(t.BaseType)
	case ebm.FUNCTION:
		params, n := refList(t.Params)
		m["params_len"] = n
		m["params"] = params
		m["return_type"] = uint64(t.ReturnType)
	case ebm.OPTIONAL, ebm.PTR:
		m["inner"] = uint64(t.BaseType)
	}

	return m
}

func statementJSON(s *ebm.Statement) map[string]interface{} {
	m := map[string]interface{}{"kind": s.Kind.String()}

	items := func(name string) {
		list, n := refList(s.Items)
		m[name+"_len"] = n
		m[name] = list
	}

	switch s.Kind {
	case ebm.BLOCK:
		items("body")
	case ebm.LOWERED_STATEMENTS:
		items("alternatives")
	case ebm.PROGRAM_DECL:
		items("formats")
	case ebm.IF_STATEMENT:
		m["cond"] = uint64(s.Cond)
		m["then"] = uint64(s.Then)
		m["else"] = uint64(s.Else)
	case ebm.LOOP_STATEMENT:
		m["loop_type"] = s.LoopType.String()
		m["init"] = uint64(s.Init)
		m["cond"] = uint64(s.Cond)
		m["increment"] = uint64(s.Increment)
		m["item"] = uint64(s.Item)
		m["collection"] = uint64(s.Collection)
		m["loop_body"] = uint64(s.Body)
	case ebm.MATCH_STATEMENT:
		m["subject"] = uint64(s.Cond)
		items("branches")
	case ebm.MATCH_BRANCH:
		m["cond"] = uint64(s.Cond)
		m["branch_body"] = uint64(s.Body)
	case ebm.BREAK, ebm.CONTINUE:
		m["related_loop"] = uint64(s.RelatedLoop)
	case ebm.RETURN:
		m["value"] = uint64(s.Value)
	case ebm.ASSIGNMENT:
		m["target"] = uint64(s.Target)
		m["value"] = uint64(s.Value)
	case ebm.VARIABLE_DECL, ebm.PARAMETER_DECL:
		m["name"] = uint64(s.Name)
		m["type"] = uint64(s.Type)
		m["value"] = uint64(s.Value)
	case ebm.FIELD_DECL:
		m["name"] = uint64(s.Name)
		m["type"] = uint64(s.Type)
		m["bit_size"] = s.BitSize
	case ebm.COMPOSITE_FIELD_DECL:
		m["type"] = uint64(s.Type)
		items("fields")
	case ebm.STRUCT_DECL:
		items("fields")
		m["encode_fn"] = uint64(s.EncodeFn)
		m["decode_fn"] = uint64(s.DecodeFn)
		m["recursive"] = s.Recursive
	case ebm.ENUM_DECL:
		m["name"] = uint64(s.Name)
		m["base_type"] = uint64(s.Type)
		items("members")
	case ebm.ENUM_MEMBER_DECL:
		m["name"] = uint64(s.Name)
		m["value"] = uint64(s.Value)
	case ebm.FUNCTION_DECL:
		m["func_kind"] = s.FuncKind.String()
		m["name"] = uint64(s.Name)
		items("params")
		m["return_type"] = uint64(s.ReturnType)
		m["fn_body"] = uint64(s.Body)
	case ebm.PROPERTY_DECL:
		m["merge_mode"] = s.MergeMode.String()
		m["property_type"] = uint64(s.PropertyType)
		m["getter_condition"] = uint64(s.GetterCond)
		m["setter_condition"] = uint64(s.SetterCond)
		items("members")
		m["getter"] = uint64(s.Getter)
		m["setter"] = uint64(s.Setter)
		m["vector_setter"] = uint64(s.VectorSetter)
	case ebm.PROPERTY_MEMBER_DECL:
		m["cond"] = uint64(s.Cond)
		m["field"] = uint64(s.Field)
	case ebm.READ_DATA, ebm.WRITE_DATA:
		m["io"] = ioJSON(&s.IO)
	case ebm.ASSERT:
		m["cond"] = uint64(s.Cond)
		m["message"] = uint64(s.Message)
	case ebm.LENGTH_CHECK:
		m["target"] = uint64(s.Target)
		m["length"] = uint64(s.Length)
	case ebm.ERROR_REPORT, ebm.ERROR_RETURN:
		m["message"] = uint64(s.Message)
	case ebm.EXPRESSION_STATEMENT:
		m["expr"] = uint64(s.Expr)
	case ebm.METADATA_STATEMENT:
		m["key"] = uint64(s.Key)
		m["value"] = uint64(s.Str)
	case ebm.IMPORT_MODULE:
		m["alias"] = uint64(s.Name)
		m["path"] = uint64(s.Str)
		m["version_constraint"] = uint64(s.Str2)
	case ebm.PHI_NODE:
		sources, n := refList(s.PhiSources)
		m["sources_len"] = n
		m["sources"] = sources
	}

	if !s.Lowered.IsNil() {
		m["lowered_statements"] = uint64(s.Lowered)
	}

	return m
}

func expressionJSON(e *ebm.Expression) map[string]interface{} {
	m := map[string]interface{}{"kind": e.Kind.String(), "type": uint64(e.Type)}

	switch e.Kind {
	case ebm.LITERAL_INT:
		m["int_value"] = e.IntValue
	case ebm.LITERAL_BOOL:
		m["bool_value"] = e.BoolValue
	case ebm.LITERAL_STRING:
		m["str_value"] = uint64(e.StrValue)
	case ebm.LITERAL_TYPE, ebm.MAX_VALUE, ebm.DEFAULT_VALUE, ebm.NEW_OBJECT:
		m["type_value"] = uint64(e.TypeValue)
	case ebm.IDENTIFIER:
		m["ident"] = uint64(e.Ident)
	case ebm.BINARY_OP:
		m["op"] = uint16(e.BinOp)
		m["left"] = uint64(e.Left)
		m["right"] = uint64(e.Right)
	case ebm.UNARY_OP:
		m["op"] = uint16(e.UnOp)
		m["operand"] = uint64(e.Operand)
	case ebm.INDEX_ACCESS:
		m["base"] = uint64(e.Base)
		m["index"] = uint64(e.Index)
	case ebm.MEMBER_ACCESS:
		m["base"] = uint64(e.Base)
		m["member"] = uint64(e.Member)
	case ebm.TYPE_CAST:
		m["cast_kind"] = e.CastKind.String()
		m["source"] = uint64(e.Source)
	case ebm.RANGE_EXPR:
		m["low"] = uint64(e.Low)
		m["high"] = uint64(e.High)
		m["inclusive"] = e.Inclusive
	case ebm.CALL:
		args, n := refList(e.Args)
		m["callee"] = uint64(e.Callee)
		m["args_len"] = n
		m["args"] = args
	case ebm.ARRAY_SIZE, ebm.ADDRESSOF, ebm.OPTIONALOF:
		m["base"] = uint64(e.Base)
	case ebm.IS_LITTLE_ENDIAN:
		m["stream"] = uint64(e.Stream)
	case ebm.IS_ERROR:
		m["operand"] = uint64(e.Operand)
	case ebm.GET_STREAM_OFFSET:
		m["stream"] = uint64(e.Stream)
		m["unit"] = e.Unit.Unit.String()
	case ebm.GET_REMAINING_BYTES:
		m["stream"] = uint64(e.Stream)
	case ebm.CAN_READ_STREAM:
		m["stream"] = uint64(e.Stream)
		m["amount"] = uint64(e.Amount)
	case ebm.READ_DATA_EXPR, ebm.WRITE_DATA_EXPR:
		m["setup"] = uint64(e.Setup)
		m["io"] = ioJSON(&e.IO)
	case ebm.CONDITIONAL_STATEMENT:
		m["cond"] = uint64(e.Cond)
		m["statement"] = uint64(e.Statement)
	case ebm.SETTER_STATUS_EXPR:
		if e.Status == ebm.SETTER_SUCCESS {
			m["status"] = "SUCCESS"
		} else {
			m["status"] = "FAILED"
		}
	case ebm.OR_COND:
		terms, n := refList(e.Terms)
		m["terms_len"] = n
		m["terms"] = terms
	}

	return m
}

func ioJSON(io *ebm.IOData) map[string]interface{} {
	return map[string]interface{}{
		"io_ref":    uint64(io.IORef),
		"field":     uint64(io.Field),
		"target":    uint64(io.Target),
		"data_type": uint64(io.DataType),
		"attribute": map[string]interface{}{
			"endian":                io.Attribute.Endian.String(),
			"signed":                io.Attribute.Signed,
			"peek":                  io.Attribute.Peek,
			"has_lowered_statement": io.Attribute.HasLoweredStatement,
			"dynamic_endian_expr":   uint64(io.Attribute.DynamicEndianExpr),
		},
		"size": map[string]interface{}{
			"unit":    io.Size.Unit.String(),
			"literal": io.Size.Literal,
			"expr":    uint64(io.Size.Expr),
		},
		"lowered_statement": uint64(io.LoweredStatement),
	}
}
