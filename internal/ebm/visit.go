package ebm

// Visitable is implemented by every tagged-union body (Type, Statement,
// Expression, IOData). Visit walks every ref-valued field the body's
// current Kind makes meaningful, in declaration order. It is the
// read-only ref walk inverse-ref building (arena.BuildInverseRefs) uses;
// dead-code marking, id renumbering and vectorization's ref rewriting in
// package transform enumerate the typed ref fields themselves.
type Visitable interface {
	Visit(v FieldVisitor)
}

// FieldVisitor receives the three shapes of field Visit may report: a
// single ref-valued field, a container of refs (its length is the
// container's own varint-encoded length), and a nested sub-body
// that itself must be walked (e.g. a statement's IOData).
type FieldVisitor interface {
	Value(name string, ref Ref)
	Container(name string, refs []Ref)
	Nested(name string, body Visitable)
}

// funcFieldVisitor adapts three plain functions into a FieldVisitor, the
// shape nearly every caller (inverse-ref building, ref rewriting) wants.
type funcFieldVisitor struct {
	value     func(name string, ref Ref)
	container func(name string, refs []Ref)
	nested    func(name string, body Visitable)
}

func (f funcFieldVisitor) Value(name string, ref Ref) {
	if f.value != nil {
		f.value(name, ref)
	}
}

func (f funcFieldVisitor) Container(name string, refs []Ref) {
	if f.container != nil {
		f.container(name, refs)
	}

	for _, r := range refs {
		f.Value(name, r)
	}
}

func (f funcFieldVisitor) Nested(name string, body Visitable) {
	if f.nested != nil {
		f.nested(name, body)
	}

	if body != nil {
		body.Visit(f)
	}
}

// WalkRefs calls fn once for every ref-valued field reachable from body,
// including refs inside containers and nested sub-bodies, in visit order.
func WalkRefs(body Visitable, fn func(ref Ref)) {
	if body == nil {
		return
	}

	body.Visit(funcFieldVisitor{value: func(_ string, r Ref) { fn(r) }})
}
