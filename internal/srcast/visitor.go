package srcast

// Visitor implements the double-dispatch traversal pattern over the source
// AST.
type Visitor interface {
	VisitProgram(*Program) interface{}
	VisitImport(*Import) interface{}
	VisitFormat(*Format) interface{}
	VisitStateVar(*StateVar) interface{}
	VisitFunction(*Function) interface{}
	VisitParameter(*Parameter) interface{}
	VisitMetadata(*Metadata) interface{}

	VisitIntType(*IntType) interface{}
	VisitFloatType(*FloatType) interface{}
	VisitBoolType(*BoolType) interface{}
	VisitIdentType(*IdentType) interface{}
	VisitArrayType(*ArrayType) interface{}
	VisitStructType(*StructType) interface{}
	VisitUnionType(*UnionType) interface{}
	VisitEnumType(*EnumType) interface{}
	VisitStrLiteralType(*StrLiteralType) interface{}
	VisitRangeType(*RangeType) interface{}
	VisitFunctionType(*FunctionType) interface{}

	VisitIdent(*Ident) interface{}
	VisitIntLiteral(*IntLiteral) interface{}
	VisitStrLiteral(*StrLiteral) interface{}
	VisitBoolLiteral(*BoolLiteral) interface{}
	VisitTypeLiteral(*TypeLiteral) interface{}
	VisitBinary(*Binary) interface{}
	VisitUnary(*Unary) interface{}
	VisitCast(*Cast) interface{}
	VisitIndex(*Index) interface{}
	VisitMemberAccess(*MemberAccess) interface{}
	VisitRange(*Range) interface{}
	VisitIOOperation(*IOOperation) interface{}
	VisitCall(*Call) interface{}

	VisitIndentBlock(*IndentBlock) interface{}
	VisitScopedStatement(*ScopedStatement) interface{}
	VisitFieldDecl(*FieldDecl) interface{}
	VisitIf(*If) interface{}
	VisitLoop(*Loop) interface{}
	VisitMatchBranch(*MatchBranch) interface{}
	VisitMatch(*Match) interface{}
	VisitReturn(*Return) interface{}
	VisitBreak(*Break) interface{}
	VisitContinue(*Continue) interface{}
	VisitAssert(*Assert) interface{}
	VisitExplicitError(*ExplicitError) interface{}
	VisitAssign(*Assign) interface{}
	VisitImplicitYield(*ImplicitYield) interface{}
}
