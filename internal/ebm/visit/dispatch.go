// Package visit implements the double-dispatch visitor framework the
// code generator drives EBM with: per-variant contexts with
// before/main/after hook phases, a merged visitor that searches several
// hook sources in priority order, a list dispatcher for the container
// shapes, and a generic entry point accepting any ref or ref list.
// The PassError sentinel comes from internal/errors.
package visit

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

// Phase is the hook phase a context belongs to.
type Phase int

const (
	PhaseBefore Phase = iota
	PhaseMain
	PhaseAfter
)

func (p Phase) String() string {
	switch p {
	case PhaseBefore:
		return "before"
	case PhaseAfter:
		return "after"
	default:
		return "main"
	}
}

// Tag identifies one hook slot: the object's base kind (which arena it
// lives in), its variant discriminant, and the phase. It is the lookup
// key of every hook table.
type Tag struct {
	Base    ebm.AliasKind
	Variant uint16
	Phase   Phase
}

func (t Tag) String() string {
	return fmt.Sprintf("%s/%d/%s", t.Base, t.Variant, t.Phase)
}

// Context is the dispatcher context for one visited object: the
// destructured body (exactly one of Type/Statement/Expression is
// non-nil, matching Base), plus the main-logic closure a before/after
// hook may invoke or hijack around, and — in the after phase — the main
// result.
type Context struct {
	Mod *arena.Module

	Base    ebm.AliasKind
	Variant uint16
	Ref     ebm.Ref
	Phase   Phase

	Type       *ebm.Type
	Statement  *ebm.Statement
	Expression *ebm.Expression

	// MainLogic constructs the main context and fires the main hook.
	// Available to before/after hooks; nil in the main phase itself.
	MainLogic func() (string, error)

	// MainResult is main-logic's output, populated for after hooks only.
	MainResult string
}

// Tag returns the context's own hook-slot key.
func (c *Context) Tag() Tag {
	return Tag{Base: c.Base, Variant: c.Variant, Phase: c.Phase}
}

// Hook is one visitor hook. Returning errors.PassError means "this hook
// chose not to act; keep searching"; any other error
// propagates; a nil error commits the returned string.
type Hook func(ctx *Context) (string, error)

// Source is one layer of the merged visitor: user hooks, DSL-generated
// hooks, and default code-gen hooks are all Sources, searched in the
// order they were registered.
type Source interface {
	Lookup(tag Tag) (Hook, bool)
}

// Table is a map-backed Source.
type Table map[Tag]Hook

func (t Table) Lookup(tag Tag) (Hook, bool) {
	h, ok := t[tag]

	return h, ok
}

// Dispatcher walks EBM objects and fires hooks. Sources are searched
// first-registered-first; an object whose main phase resolves no hook in
// any source is a hard error (the analogue of the generated code being
// rejected at compile time), while unresolved before/after phases are
// simply skipped.
type Dispatcher struct {
	Mod     *arena.Module
	sources []Source
}

// NewDispatcher builds a dispatcher over mod with the given hook sources
// in priority order.
func NewDispatcher(mod *arena.Module, sources ...Source) *Dispatcher {
	return &Dispatcher{Mod: mod, sources: sources}
}

// AddSource appends a lower-priority hook source.
func (d *Dispatcher) AddSource(s Source) {
	d.sources = append(d.sources, s)
}

// fire runs the merged-visitor search for ctx: each source's hook for the
// tag is tried in order; PassError moves to the next source. The second
// return reports whether any hook committed a result.
func (d *Dispatcher) fire(ctx *Context) (string, bool, error) {
	tag := ctx.Tag()

	for _, src := range d.sources {
		hook, ok := src.Lookup(tag)
		if !ok {
			continue
		}

		out, err := hook(ctx)
		if err == nil {
			return out, true, nil
		}

		if !errors.IsPassError(err) {
			return "", false, err
		}
	}

	return "", false, nil
}

// dispatch is the hook sequence shared by all three object kinds:
// before (may hijack), main (must resolve), after (may hijack).
func (d *Dispatcher) dispatch(ctx Context) (string, error) {
	main := func() (string, error) {
		mainCtx := ctx
		mainCtx.Phase = PhaseMain
		mainCtx.MainLogic = nil

		out, fired, err := d.fire(&mainCtx)
		if err != nil {
			return "", err
		}

		if !fired {
			return "", errors.NewStandardError(errors.CategoryUnsupported, "EBM5001",
				fmt.Sprintf("no hook resolves %s", mainCtx.Tag()), nil)
		}

		return out, nil
	}

	beforeCtx := ctx
	beforeCtx.Phase = PhaseBefore
	beforeCtx.MainLogic = main

	if out, fired, err := d.fire(&beforeCtx); err != nil {
		return "", err
	} else if fired {
		return out, nil
	}

	mainResult, err := main()
	if err != nil {
		return "", err
	}

	afterCtx := ctx
	afterCtx.Phase = PhaseAfter
	afterCtx.MainLogic = main
	afterCtx.MainResult = mainResult

	if out, fired, err := d.fire(&afterCtx); err != nil {
		return "", err
	} else if fired {
		return out, nil
	}

	return mainResult, nil
}

// VisitStatement dispatches one statement by ref.
func (d *Dispatcher) VisitStatement(ref ebm.StatementRef) (string, error) {
	s, ok := d.Mod.Statements.GetMut(ebm.Ref(ref))
	if !ok {
		return "", errors.NewStandardError(errors.CategoryInvariant, "EBM5002",
			fmt.Sprintf("visit: statement %s not present", ref), nil)
	}

	return d.dispatch(Context{
		Mod: d.Mod, Base: ebm.AliasStatement, Variant: uint16(s.Kind), Ref: ebm.Ref(ref), Statement: s,
	})
}

// VisitExpression dispatches one expression by ref.
func (d *Dispatcher) VisitExpression(ref ebm.ExpressionRef) (string, error) {
	e, ok := d.Mod.Expressions.GetMut(ebm.Ref(ref))
	if !ok {
		return "", errors.NewStandardError(errors.CategoryInvariant, "EBM5003",
			fmt.Sprintf("visit: expression %s not present", ref), nil)
	}

	return d.dispatch(Context{
		Mod: d.Mod, Base: ebm.AliasExpression, Variant: uint16(e.Kind), Ref: ebm.Ref(ref), Expression: e,
	})
}

// VisitType dispatches one type by ref.
func (d *Dispatcher) VisitType(ref ebm.TypeRef) (string, error) {
	t, ok := d.Mod.Types.GetMut(ebm.Ref(ref))
	if !ok {
		return "", errors.NewStandardError(errors.CategoryInvariant, "EBM5004",
			fmt.Sprintf("visit: type %s not present", ref), nil)
	}

	return d.dispatch(Context{
		Mod: d.Mod, Base: ebm.AliasType, Variant: uint16(t.Kind), Ref: ebm.Ref(ref), Type: t,
	})
}

// VisitStatements is the list-container dispatcher over statement refs
// (a BLOCK's body, a STRUCT_DECL's fields): each element is dispatched in
// order and the results concatenated.
func (d *Dispatcher) VisitStatements(refs []ebm.StatementRef) (string, error) {
	var out string

	for _, r := range refs {
		if r.IsNil() {
			continue
		}

		s, err := d.VisitStatement(r)
		if err != nil {
			return "", err
		}

		out += s
	}

	return out, nil
}

// VisitExpressions accumulates the list dispatcher over expression refs.
func (d *Dispatcher) VisitExpressions(refs []ebm.ExpressionRef) (string, error) {
	var out string

	for _, r := range refs {
		if r.IsNil() {
			continue
		}

		s, err := d.VisitExpression(r)
		if err != nil {
			return "", err
		}

		out += s
	}

	return out, nil
}

// VisitTypes accumulates the list dispatcher over type refs.
func (d *Dispatcher) VisitTypes(refs []ebm.TypeRef) (string, error) {
	var out string

	for _, r := range refs {
		if r.IsNil() {
			continue
		}

		s, err := d.VisitType(r)
		if err != nil {
			return "", err
		}

		out += s
	}

	return out, nil
}

// VisitObject is the generic entry point: it accepts any single ref or
// ref list and forwards to the matching kind dispatcher.
func (d *Dispatcher) VisitObject(obj interface{}) (string, error) {
	switch v := obj.(type) {
	case ebm.StatementRef:
		return d.VisitStatement(v)
	case ebm.ExpressionRef:
		return d.VisitExpression(v)
	case ebm.TypeRef:
		return d.VisitType(v)
	case []ebm.StatementRef:
		return d.VisitStatements(v)
	case []ebm.ExpressionRef:
		return d.VisitExpressions(v)
	case []ebm.TypeRef:
		return d.VisitTypes(v)
	default:
		return "", errors.NewStandardError(errors.CategoryUnsupported, "EBM5005",
			fmt.Sprintf("visit: unsupported object %T", obj), nil)
	}
}
