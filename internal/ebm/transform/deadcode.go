package transform

import (
	"sort"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

// liveSet is a reachable-ref set plus a reference-count map, kept
// separately per arena kind since Ref values are only unique within
// their own arena (each repository's id source starts at 2
// independently, so a StatementRef and a TypeRef can share a numeric
// value without naming the same entry).
type liveSet struct {
	reached map[ebm.Ref]bool
	usage   map[ebm.Ref]int
}

func newLiveSet() liveSet {
	return liveSet{reached: make(map[ebm.Ref]bool), usage: make(map[ebm.Ref]int)}
}

func (l liveSet) touch(r ebm.Ref) bool {
	if r.IsNil() {
		return false
	}

	l.usage[r]++

	if l.reached[r] {
		return false
	}

	l.reached[r] = true

	return true
}

// livenessState carries the five worklists and live sets the fixed-point
// traversal walks until every queue drains.
type livenessState struct {
	mod *arena.Module

	idents  liveSet
	strings liveSet
	types   liveSet
	stmts   liveSet
	exprs   liveSet

	identQ []ebm.IdentifierRef
	strQ   []ebm.StringRef
	typeQ  []ebm.TypeRef
	stmtQ  []ebm.StatementRef
	exprQ  []ebm.ExpressionRef
}

func (s *livenessState) markIdent(r ebm.IdentifierRef) {
	if s.idents.touch(ebm.Ref(r)) {
		s.identQ = append(s.identQ, r)
	}
}

func (s *livenessState) markString(r ebm.StringRef) {
	if s.strings.touch(ebm.Ref(r)) {
		s.strQ = append(s.strQ, r)
	}
}

func (s *livenessState) markType(r ebm.TypeRef) {
	if s.types.touch(ebm.Ref(r)) {
		s.typeQ = append(s.typeQ, r)
	}
}

func (s *livenessState) markStmt(r ebm.StatementRef) {
	if s.stmts.touch(ebm.Ref(r)) {
		s.stmtQ = append(s.stmtQ, r)
	}
}

func (s *livenessState) markExpr(r ebm.ExpressionRef) {
	if s.exprs.touch(ebm.Ref(r)) {
		s.exprQ = append(s.exprQ, r)
	}
}

// computeLiveness runs the reachability flood from the module's entry
// point, visiting every typed ref field
// of every kind of body. It does not use the generic FieldVisitor walk
// (internal/ebm/visit.go), because that walk reports bare Refs with no
// arena tag, and liveness here must not conflate a StatementRef and a
// TypeRef that happen to share a numeric value.
func computeLiveness(mod *arena.Module) *livenessState {
	s := &livenessState{
		mod:     mod,
		idents:  newLiveSet(),
		strings: newLiveSet(),
		types:   newLiveSet(),
		stmts:   newLiveSet(),
		exprs:   newLiveSet(),
	}

	s.markStmt(ebm.StatementRef(ebm.EntryRef))

	for len(s.stmtQ) > 0 || len(s.typeQ) > 0 || len(s.exprQ) > 0 || len(s.identQ) > 0 || len(s.strQ) > 0 {
		for len(s.stmtQ) > 0 {
			ref := s.stmtQ[0]
			s.stmtQ = s.stmtQ[1:]
			s.visitStatement(ref)
		}

		for len(s.typeQ) > 0 {
			ref := s.typeQ[0]
			s.typeQ = s.typeQ[1:]
			s.visitType(ref)
		}

		for len(s.exprQ) > 0 {
			ref := s.exprQ[0]
			s.exprQ = s.exprQ[1:]
			s.visitExpression(ref)
		}

		s.identQ = nil
		s.strQ = nil
	}

	return s
}

func (s *livenessState) visitStatement(ref ebm.StatementRef) {
	st, ok := s.mod.GetStatement(ref)
	if !ok {
		return
	}

	s.markIdent(st.Name)
	s.markType(st.Type)
	s.markExpr(st.Cond)
	s.markStmt(st.Then)
	s.markStmt(st.Else)
	s.markStmt(st.Init)
	s.markStmt(st.Increment)
	s.markStmt(st.Item)
	s.markExpr(st.Collection)
	s.markStmt(st.Body)
	s.markStmt(st.RelatedLoop)
	s.markExpr(st.Value)
	s.markExpr(st.Target)
	s.markStmt(st.EncodeFn)
	s.markStmt(st.DecodeFn)
	s.markType(st.ReturnType)
	s.markType(st.PropertyType)
	s.markExpr(st.GetterCond)
	s.markExpr(st.SetterCond)
	s.markStmt(st.Field)
	s.markStmt(st.Getter)
	s.markStmt(st.Setter)
	s.markStmt(st.VectorSetter)
	s.markExpr(st.Length)
	s.markString(st.Message)
	s.markExpr(st.Expr)
	s.markString(st.Key)
	s.markString(st.Str)
	s.markString(st.Str2)
	s.markStmt(st.Lowered)
	s.visitIOData(&st.IO)

	for _, item := range st.Items {
		s.markStmt(item)
	}

	for _, p := range st.PhiSources {
		s.markExpr(p)
	}
}

func (s *livenessState) visitType(ref ebm.TypeRef) {
	t, ok := s.mod.GetType(ref)
	if !ok {
		return
	}

	switch t.Kind {
	case ebm.ENUM, ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		// ID stores a StatementRef cast to TypeRef (the decl this type
		// names, see convertFormat/convertEnumType) — not a TypeRef.
		s.markStmt(ebm.StatementRef(t.ID))
	}

	s.markType(t.BaseType)
	s.markType(t.Element)
	s.markType(t.CommonType)
	s.markStmt(t.RelatedField)
	s.markType(t.ReturnType)

	for _, m := range t.MemberTypes {
		s.markType(m)
	}

	for _, p := range t.Params {
		s.markType(p)
	}
}

func (s *livenessState) visitExpression(ref ebm.ExpressionRef) {
	e, ok := s.mod.GetExpression(ref)
	if !ok {
		return
	}

	s.markType(e.Type)
	s.markString(e.StrValue)
	s.markType(e.TypeValue)
	s.markStmt(e.Ident)
	s.markExpr(e.Left)
	s.markExpr(e.Right)
	s.markExpr(e.Operand)
	s.markExpr(e.Base)
	s.markExpr(e.Index)
	s.markString(e.Member)
	s.markExpr(e.Source)
	s.markExpr(e.Low)
	s.markExpr(e.High)
	s.markExpr(e.Callee)
	s.markExpr(e.Stream)
	s.markExpr(e.Amount)
	s.markStmt(e.Setup)
	s.markExpr(e.Cond)
	s.markStmt(e.Statement)
	s.visitIOData(&e.IO)

	for _, a := range e.Args {
		s.markExpr(a)
	}

	for _, t := range e.Terms {
		s.markExpr(t)
	}
}

func (s *livenessState) visitIOData(io *ebm.IOData) {
	s.markExpr(io.IORef)
	s.markStmt(io.Field)
	s.markExpr(io.Target)
	s.markType(io.DataType)
	s.markExpr(io.Attribute.DynamicEndianExpr)
	s.markExpr(io.Size.Expr)
	s.markStmt(io.LoweredStatement)
}

// refRemap bundles the five old-id->new-id tables renumbering
// produces, one per arena kind.
type refRemap struct {
	ident map[ebm.IdentifierRef]ebm.IdentifierRef
	str   map[ebm.StringRef]ebm.StringRef
	typ   map[ebm.TypeRef]ebm.TypeRef
	stmt  map[ebm.StatementRef]ebm.StatementRef
	expr  map[ebm.ExpressionRef]ebm.ExpressionRef
}

func (r refRemap) ident_(v ebm.IdentifierRef) ebm.IdentifierRef {
	if v.IsNil() {
		return v
	}

	if nv, ok := r.ident[v]; ok {
		return nv
	}

	return v
}

func (r refRemap) str_(v ebm.StringRef) ebm.StringRef {
	if v.IsNil() {
		return v
	}

	if nv, ok := r.str[v]; ok {
		return nv
	}

	return v
}

func (r refRemap) typ_(v ebm.TypeRef) ebm.TypeRef {
	if v.IsNil() {
		return v
	}

	if nv, ok := r.typ[v]; ok {
		return nv
	}

	return v
}

func (r refRemap) stmt_(v ebm.StatementRef) ebm.StatementRef {
	if v.IsNil() {
		return v
	}

	if nv, ok := r.stmt[v]; ok {
		return nv
	}

	return v
}

func (r refRemap) expr_(v ebm.ExpressionRef) ebm.ExpressionRef {
	if v.IsNil() {
		return v
	}

	if nv, ok := r.expr[v]; ok {
		return nv
	}

	return v
}

// sortedSurvivors orders a live set for renumbering: usage count
// descending, then the original ref ascending (insertion order, since
// refs are handed out monotonically) for stability.
func sortedSurvivors[R ~uint64](reached map[ebm.Ref]bool, usage map[ebm.Ref]int) []R {
	out := make([]R, 0, len(reached))

	for r := range reached {
		out = append(out, R(r))
	}

	sort.Slice(out, func(i, j int) bool {
		ri, rj := ebm.Ref(out[i]), ebm.Ref(out[j])
		if usage[ri] != usage[rj] {
			return usage[ri] > usage[rj]
		}

		return ri < rj
	})

	return out
}

// EliminateDeadCode is the two-stage elimination pass: mark every arena
// entry reachable from the module's entry point by fixed-point traversal,
// drop everything unreached, then renumber the survivors (most-referenced
// first, ties by insertion order) into a fresh 2..N+1 id space per arena.
// The module's single entry statement is exempt from renumbering — it
// always keeps id 1 — and is relocated to the last slot of the
// statements arena's entry list so the renumbered ids form an unbroken
// block.
func EliminateDeadCode(mod *arena.Module) {
	live := computeLiveness(mod)

	remap := refRemap{
		ident: make(map[ebm.IdentifierRef]ebm.IdentifierRef),
		str:   make(map[ebm.StringRef]ebm.StringRef),
		typ:   make(map[ebm.TypeRef]ebm.TypeRef),
		stmt:  make(map[ebm.StatementRef]ebm.StatementRef),
		expr:  make(map[ebm.ExpressionRef]ebm.ExpressionRef),
	}

	identEntries := renumberIdentifiers(mod, live.idents, remap.ident)
	strEntries := renumberStrings(mod, live.strings, remap.str)
	typeEntries := renumberTypes(mod, live.types, remap.typ)
	stmtEntries := renumberStatements(mod, live.stmts, remap.stmt)
	exprEntries := renumberExpressions(mod, live.exprs, remap.expr)

	for i := range typeEntries {
		rewriteType(&typeEntries[i].Body, remap)
	}

	for i := range stmtEntries {
		rewriteStatement(&stmtEntries[i].Body, remap)
	}

	for i := range exprEntries {
		rewriteExpression(&exprEntries[i].Body, remap)
	}

	mod.Identifiers.ReplaceEntries(identEntries)
	mod.Identifiers.ReplaceAliases(map[ebm.Ref]ebm.Ref{})
	mod.Strings.ReplaceEntries(strEntries)
	mod.Strings.ReplaceAliases(map[ebm.Ref]ebm.Ref{})
	mod.Types.ReplaceEntries(typeEntries)
	mod.Types.ReplaceAliases(map[ebm.Ref]ebm.Ref{})
	mod.Statements.ReplaceEntries(stmtEntries)
	mod.Statements.ReplaceAliases(map[ebm.Ref]ebm.Ref{})
	mod.Expressions.ReplaceEntries(exprEntries)
	mod.Expressions.ReplaceAliases(map[ebm.Ref]ebm.Ref{})

	mod.Finalize()
}

func renumberIdentifiers(mod *arena.Module, live liveSet, out map[ebm.IdentifierRef]ebm.IdentifierRef) []arena.Entry[arena.Identifier] {
	survivors := sortedSurvivors[ebm.IdentifierRef](live.reached, live.usage)
	entries := make([]arena.Entry[arena.Identifier], 0, len(survivors))

	next := ebm.Ref(2)

	for _, old := range survivors {
		body, ok := mod.GetIdentifier(old)
		if !ok {
			continue
		}

		out[old] = ebm.IdentifierRef(next)
		entries = append(entries, arena.Entry[arena.Identifier]{ID: next, Body: body})
		next++
	}

	return entries
}

func renumberStrings(mod *arena.Module, live liveSet, out map[ebm.StringRef]ebm.StringRef) []arena.Entry[arena.String] {
	survivors := sortedSurvivors[ebm.StringRef](live.reached, live.usage)
	entries := make([]arena.Entry[arena.String], 0, len(survivors))

	next := ebm.Ref(2)

	for _, old := range survivors {
		body, ok := mod.GetString(old)
		if !ok {
			continue
		}

		out[old] = ebm.StringRef(next)
		entries = append(entries, arena.Entry[arena.String]{ID: next, Body: body})
		next++
	}

	return entries
}

func renumberTypes(mod *arena.Module, live liveSet, out map[ebm.TypeRef]ebm.TypeRef) []arena.Entry[ebm.Type] {
	survivors := sortedSurvivors[ebm.TypeRef](live.reached, live.usage)
	entries := make([]arena.Entry[ebm.Type], 0, len(survivors))

	next := ebm.Ref(2)

	for _, old := range survivors {
		body, ok := mod.GetType(old)
		if !ok {
			continue
		}

		out[old] = ebm.TypeRef(next)
		entries = append(entries, arena.Entry[ebm.Type]{ID: next, Body: body})
		next++
	}

	return entries
}

// renumberStatements is the one renumbering pass with an id-1 exemption:
// the module's entry statement is excluded from the sort/assign
// loop (it is always reachable from itself, but never given a new id) and
// appended as the arena's last entry afterward, still bearing id 1.
func renumberStatements(mod *arena.Module, live liveSet, out map[ebm.StatementRef]ebm.StatementRef) []arena.Entry[ebm.Statement] {
	delete(live.reached, ebm.EntryRef)

	survivors := sortedSurvivors[ebm.StatementRef](live.reached, live.usage)
	entries := make([]arena.Entry[ebm.Statement], 0, len(survivors)+1)

	next := ebm.Ref(2)

	for _, old := range survivors {
		body, ok := mod.GetStatement(old)
		if !ok {
			continue
		}

		out[old] = ebm.StatementRef(next)
		entries = append(entries, arena.Entry[ebm.Statement]{ID: next, Body: body})
		next++
	}

	entryBody, ok := mod.GetStatement(ebm.StatementRef(ebm.EntryRef))
	if ok {
		out[ebm.StatementRef(ebm.EntryRef)] = ebm.StatementRef(ebm.EntryRef)
		entries = append(entries, arena.Entry[ebm.Statement]{ID: ebm.EntryRef, Body: entryBody})
	}

	return entries
}

func renumberExpressions(mod *arena.Module, live liveSet, out map[ebm.ExpressionRef]ebm.ExpressionRef) []arena.Entry[ebm.Expression] {
	survivors := sortedSurvivors[ebm.ExpressionRef](live.reached, live.usage)
	entries := make([]arena.Entry[ebm.Expression], 0, len(survivors))

	next := ebm.Ref(2)

	for _, old := range survivors {
		body, ok := mod.GetExpression(old)
		if !ok {
			continue
		}

		out[old] = ebm.ExpressionRef(next)
		entries = append(entries, arena.Entry[ebm.Expression]{ID: next, Body: body})
		next++
	}

	return entries
}

func rewriteStatement(s *ebm.Statement, r refRemap) {
	s.Name = r.ident_(s.Name)
	s.Type = r.typ_(s.Type)
	s.Cond = r.expr_(s.Cond)
	s.Then = r.stmt_(s.Then)
	s.Else = r.stmt_(s.Else)
	s.Init = r.stmt_(s.Init)
	s.Increment = r.stmt_(s.Increment)
	s.Item = r.stmt_(s.Item)
	s.Collection = r.expr_(s.Collection)
	s.Body = r.stmt_(s.Body)
	s.RelatedLoop = r.stmt_(s.RelatedLoop)
	s.Value = r.expr_(s.Value)
	s.Target = r.expr_(s.Target)
	s.EncodeFn = r.stmt_(s.EncodeFn)
	s.DecodeFn = r.stmt_(s.DecodeFn)
	s.ReturnType = r.typ_(s.ReturnType)
	s.PropertyType = r.typ_(s.PropertyType)
	s.GetterCond = r.expr_(s.GetterCond)
	s.SetterCond = r.expr_(s.SetterCond)
	s.Field = r.stmt_(s.Field)
	s.Getter = r.stmt_(s.Getter)
	s.Setter = r.stmt_(s.Setter)
	s.VectorSetter = r.stmt_(s.VectorSetter)
	s.Length = r.expr_(s.Length)
	s.Message = r.str_(s.Message)
	s.Expr = r.expr_(s.Expr)
	s.Key = r.str_(s.Key)
	s.Str = r.str_(s.Str)
	s.Str2 = r.str_(s.Str2)
	s.Lowered = r.stmt_(s.Lowered)
	rewriteIOData(&s.IO, r)

	for i, item := range s.Items {
		s.Items[i] = r.stmt_(item)
	}

	for i, p := range s.PhiSources {
		s.PhiSources[i] = r.expr_(p)
	}
}

func rewriteType(t *ebm.Type, r refRemap) {
	switch t.Kind {
	case ebm.ENUM, ebm.STRUCT, ebm.RECURSIVE_STRUCT:
		t.ID = ebm.TypeRef(r.stmt_(ebm.StatementRef(t.ID)))
	}

	t.BaseType = r.typ_(t.BaseType)
	t.Element = r.typ_(t.Element)
	t.CommonType = r.typ_(t.CommonType)
	t.RelatedField = r.stmt_(t.RelatedField)
	t.ReturnType = r.typ_(t.ReturnType)

	for i, m := range t.MemberTypes {
		t.MemberTypes[i] = r.typ_(m)
	}

	for i, p := range t.Params {
		t.Params[i] = r.typ_(p)
	}
}

func rewriteExpression(e *ebm.Expression, r refRemap) {
	e.Type = r.typ_(e.Type)
	e.StrValue = r.str_(e.StrValue)
	e.TypeValue = r.typ_(e.TypeValue)
	e.Ident = r.stmt_(e.Ident)
	e.Left = r.expr_(e.Left)
	e.Right = r.expr_(e.Right)
	e.Operand = r.expr_(e.Operand)
	e.Base = r.expr_(e.Base)
	e.Index = r.expr_(e.Index)
	e.Member = r.str_(e.Member)
	e.Source = r.expr_(e.Source)
	e.Low = r.expr_(e.Low)
	e.High = r.expr_(e.High)
	e.Callee = r.expr_(e.Callee)
	e.Stream = r.expr_(e.Stream)
	e.Amount = r.expr_(e.Amount)
	e.Setup = r.stmt_(e.Setup)
	e.Cond = r.expr_(e.Cond)
	e.Statement = r.stmt_(e.Statement)
	rewriteIOData(&e.IO, r)

	for i, a := range e.Args {
		e.Args[i] = r.expr_(a)
	}

	for i, term := range e.Terms {
		e.Terms[i] = r.expr_(term)
	}
}

func rewriteIOData(io *ebm.IOData, r refRemap) {
	io.IORef = r.expr_(io.IORef)
	io.Field = r.stmt_(io.Field)
	io.Target = r.expr_(io.Target)
	io.DataType = r.typ_(io.DataType)
	io.Attribute.DynamicEndianExpr = r.expr_(io.Attribute.DynamicEndianExpr)
	io.Size.Expr = r.expr_(io.Size.Expr)
	io.LoweredStatement = r.stmt_(io.LoweredStatement)
}
