package ebm

// StatementKind discriminates a Statement body's meaningful fields.
type StatementKind uint16

const (
	BLOCK StatementKind = iota
	IF_STATEMENT
	LOOP_STATEMENT
	MATCH_STATEMENT
	MATCH_BRANCH
	BREAK
	CONTINUE
	RETURN
	ASSIGNMENT
	VARIABLE_DECL
	PARAMETER_DECL
	FIELD_DECL
	COMPOSITE_FIELD_DECL
	STRUCT_DECL
	ENUM_DECL
	ENUM_MEMBER_DECL
	FUNCTION_DECL
	PROPERTY_DECL
	PROPERTY_MEMBER_DECL
	READ_DATA
	WRITE_DATA
	ASSERT
	LENGTH_CHECK
	ERROR_REPORT
	ERROR_RETURN
	LOWERED_STATEMENTS
	EXPRESSION_STATEMENT
	PROGRAM_DECL
	METADATA_STATEMENT
	IMPORT_MODULE
	PHI_NODE
)

func (k StatementKind) String() string {
	names := [...]string{
		"BLOCK", "IF_STATEMENT", "LOOP_STATEMENT", "MATCH_STATEMENT", "MATCH_BRANCH",
		"BREAK", "CONTINUE", "RETURN", "ASSIGNMENT", "VARIABLE_DECL", "PARAMETER_DECL",
		"FIELD_DECL", "COMPOSITE_FIELD_DECL", "STRUCT_DECL", "ENUM_DECL", "ENUM_MEMBER_DECL",
		"FUNCTION_DECL", "PROPERTY_DECL", "PROPERTY_MEMBER_DECL", "READ_DATA", "WRITE_DATA",
		"ASSERT", "LENGTH_CHECK", "ERROR_REPORT", "ERROR_RETURN", "LOWERED_STATEMENTS",
		"EXPRESSION", "PROGRAM_DECL", "METADATA", "IMPORT_MODULE", "PHI_NODE",
	}
	if int(k) < len(names) {
		return names[k]
	}

	return "UNKNOWN_STATEMENT_KIND"
}

// LoopKind is LOOP_STATEMENT's sub-discriminant.
type LoopKind uint16

const (
	FOR LoopKind = iota
	WHILE
	FOR_EACH
	INFINITE
)

func (k LoopKind) String() string {
	switch k {
	case WHILE:
		return "WHILE"
	case FOR_EACH:
		return "FOR_EACH"
	case INFINITE:
		return "INFINITE"
	default:
		return "FOR"
	}
}

// FuncDeclKind is FUNCTION_DECL's sub-discriminant.
type FuncDeclKind uint16

const (
	NORMAL FuncDeclKind = iota
	ENCODER
	DECODER
	PROPERTY_GETTER
	PROPERTY_SETTER
	VECTOR_SETTER
	CAST_FN
)

func (k FuncDeclKind) String() string {
	switch k {
	case ENCODER:
		return "ENCODER"
	case DECODER:
		return "DECODER"
	case PROPERTY_GETTER:
		return "PROPERTY_GETTER"
	case PROPERTY_SETTER:
		return "PROPERTY_SETTER"
	case VECTOR_SETTER:
		return "VECTOR_SETTER"
	case CAST_FN:
		return "CAST"
	default:
		return "NORMAL"
	}
}

// PropertyMergeMode is PROPERTY_DECL's sub-discriminant.
type PropertyMergeMode uint16

const (
	STRICT_TYPE PropertyMergeMode = iota
	COMMON_TYPE
	UNCOMMON_TYPE
)

func (m PropertyMergeMode) String() string {
	switch m {
	case COMMON_TYPE:
		return "COMMON_TYPE"
	case UNCOMMON_TYPE:
		return "UNCOMMON_TYPE"
	default:
		return "STRICT_TYPE"
	}
}

// SetterStatus is the value a PROPERTY_SETTER_RETURN-typed function
// returns.
type SetterStatus uint8

const (
	SETTER_SUCCESS SetterStatus = iota
	SETTER_FAILED
)

// Statement is the tagged-union body stored in the statements arena.
// Only the fields meaningful for Kind are populated.
type Statement struct {
	Kind StatementKind

	// BLOCK / LOWERED_STATEMENTS alternatives / STRUCT_DECL.fields /
	// STRUCT_DECL.properties / ENUM_DECL.members / FUNCTION_DECL.params /
	// MATCH_STATEMENT.branches / PROPERTY_DECL.members /
	// PROPERTY_DECL.derived_from / PROGRAM_DECL.{imports,formats}: reused
	// generically as Body/Items depending on kind, named per kind below.
	Items []StatementRef

	Name IdentifierRef // VARIABLE_DECL/PARAMETER_DECL/FIELD_DECL/ENUM_DECL/ENUM_MEMBER_DECL/FUNCTION_DECL/IMPORT_MODULE(alias)
	Type TypeRef       // VARIABLE_DECL/PARAMETER_DECL/FIELD_DECL/ENUM_DECL(base)

	Cond ExpressionRef // IF_STATEMENT/LOOP_STATEMENT(cond)/MATCH_STATEMENT(subject)/MATCH_BRANCH/ASSERT/PROPERTY_MEMBER_DECL
	Then StatementRef  // IF_STATEMENT
	Else StatementRef  // IF_STATEMENT (nil, another IF_STATEMENT, or a block)

	LoopType   LoopKind
	Init       StatementRef  // LOOP_STATEMENT(FOR)
	Increment  StatementRef  // LOOP_STATEMENT(FOR)
	Item       StatementRef  // LOOP_STATEMENT(FOR_EACH): the bound variable decl
	Collection ExpressionRef // LOOP_STATEMENT(FOR_EACH)
	Body       StatementRef  // LOOP_STATEMENT/MATCH_BRANCH/FUNCTION_DECL

	RelatedLoop StatementRef // BREAK/CONTINUE

	Value ExpressionRef // RETURN(optional)/ASSIGNMENT/ENUM_MEMBER_DECL(optional init)/VARIABLE_DECL(optional init)
	Target ExpressionRef // ASSIGNMENT/LENGTH_CHECK

	BitSize uint64 // FIELD_DECL: 0 when not a bit field

	EncodeFn StatementRef // STRUCT_DECL
	DecodeFn StatementRef // STRUCT_DECL
	Recursive bool        // STRUCT_DECL

	FuncKind   FuncDeclKind // FUNCTION_DECL
	ReturnType TypeRef      // FUNCTION_DECL

	MergeMode     PropertyMergeMode // PROPERTY_DECL
	PropertyType  TypeRef           // PROPERTY_DECL
	GetterCond    ExpressionRef     // PROPERTY_DECL
	SetterCond    ExpressionRef     // PROPERTY_DECL
	Field         StatementRef      // PROPERTY_MEMBER_DECL: nil means "no field, condition only"
	Getter        StatementRef      // PROPERTY_DECL: synthesized FUNCTION_DECL
	Setter        StatementRef      // PROPERTY_DECL: synthesized FUNCTION_DECL
	VectorSetter  StatementRef      // PROPERTY_DECL: synthesized bounds-checked vector setter, if any

	IO IOData // READ_DATA/WRITE_DATA

	Length ExpressionRef // LENGTH_CHECK

	Message StringRef // ASSERT/ERROR_REPORT/ERROR_RETURN

	Expr ExpressionRef // EXPRESSION_STATEMENT

	Key StringRef // METADATA
	Str StringRef // METADATA(value)/IMPORT_MODULE(path, constraint reuse via Str2)
	Str2 StringRef // IMPORT_MODULE: version constraint

	PhiSources []ExpressionRef // PHI_NODE

	Lowered StatementRef // any kind: ref to this statement's LOWERED_STATEMENTS node, nil if none
}

func (s *Statement) Visit(v FieldVisitor) {
	switch s.Kind {
	case BLOCK:
		v.Container("body", refsOfStatements(s.Items))
	case IF_STATEMENT:
		v.Value("cond", Ref(s.Cond))
		v.Value("then", Ref(s.Then))
		v.Value("else", Ref(s.Else))
	case LOOP_STATEMENT:
		v.Value("init", Ref(s.Init))
		v.Value("cond", Ref(s.Cond))
		v.Value("increment", Ref(s.Increment))
		v.Value("item", Ref(s.Item))
		v.Value("collection", Ref(s.Collection))
		v.Value("body", Ref(s.Body))
	case MATCH_STATEMENT:
		v.Value("subject", Ref(s.Cond))
		v.Container("branches", refsOfStatements(s.Items))
	case MATCH_BRANCH:
		v.Value("cond", Ref(s.Cond))
		v.Value("body", Ref(s.Body))
	case BREAK, CONTINUE:
		v.Value("related_loop", Ref(s.RelatedLoop))
	case RETURN:
		v.Value("value", Ref(s.Value))
	case ASSIGNMENT:
		v.Value("target", Ref(s.Target))
		v.Value("value", Ref(s.Value))
	case VARIABLE_DECL, PARAMETER_DECL:
		v.Value("name", Ref(s.Name))
		v.Value("type", Ref(s.Type))
		v.Value("value", Ref(s.Value))
	case FIELD_DECL:
		v.Value("name", Ref(s.Name))
		v.Value("type", Ref(s.Type))
	case COMPOSITE_FIELD_DECL:
		v.Value("type", Ref(s.Type))
		v.Container("fields", refsOfStatements(s.Items))
	case STRUCT_DECL:
		v.Container("fields", refsOfStatements(s.Items))
		v.Value("encode_fn", Ref(s.EncodeFn))
		v.Value("decode_fn", Ref(s.DecodeFn))
	case ENUM_DECL:
		v.Value("name", Ref(s.Name))
		v.Value("base_type", Ref(s.Type))
		v.Container("members", refsOfStatements(s.Items))
	case ENUM_MEMBER_DECL:
		v.Value("name", Ref(s.Name))
		v.Value("value", Ref(s.Value))
	case FUNCTION_DECL:
		v.Value("name", Ref(s.Name))
		v.Container("params", refsOfStatements(s.Items))
		v.Value("return_type", Ref(s.ReturnType))
		v.Value("body", Ref(s.Body))
	case PROPERTY_DECL:
		v.Value("property_type", Ref(s.PropertyType))
		v.Value("getter_condition", Ref(s.GetterCond))
		v.Value("setter_condition", Ref(s.SetterCond))
		v.Container("members", refsOfStatements(s.Items))
		v.Value("getter", Ref(s.Getter))
		v.Value("setter", Ref(s.Setter))
		v.Value("vector_setter", Ref(s.VectorSetter))
	case PROPERTY_MEMBER_DECL:
		v.Value("cond", Ref(s.Cond))
		v.Value("field", Ref(s.Field))
	case READ_DATA, WRITE_DATA:
		v.Nested("io", &s.IO)
	case ASSERT:
		v.Value("cond", Ref(s.Cond))
		v.Value("message", Ref(s.Message))
	case LENGTH_CHECK:
		v.Value("target", Ref(s.Target))
		v.Value("length", Ref(s.Length))
	case ERROR_REPORT, ERROR_RETURN:
		v.Value("message", Ref(s.Message))
	case LOWERED_STATEMENTS:
		v.Container("alternatives", refsOfStatements(s.Items))
	case EXPRESSION_STATEMENT:
		v.Value("expr", Ref(s.Expr))
	case PROGRAM_DECL:
		v.Container("formats", refsOfStatements(s.Items))
	case METADATA_STATEMENT:
		v.Value("key", Ref(s.Key))
		v.Value("value", Ref(s.Str))
	case IMPORT_MODULE:
		v.Value("alias", Ref(s.Name))
		v.Value("path", Ref(s.Str))
		v.Value("version_constraint", Ref(s.Str2))
	case PHI_NODE:
		refs := make([]Ref, len(s.PhiSources))
		for i, e := range s.PhiSources {
			refs[i] = Ref(e)
		}

		v.Container("sources", refs)
	}

	if !s.Lowered.IsNil() {
		v.Value("lowered_statements", Ref(s.Lowered))
	}
}

func refsOfStatements(items []StatementRef) []Ref {
	refs := make([]Ref, len(items))
	for i, r := range items {
		refs[i] = Ref(r)
	}

	return refs
}
