package visit

import (
	"testing"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

func returnTag(phase Phase) Tag {
	return Tag{Base: ebm.AliasStatement, Variant: uint16(ebm.RETURN), Phase: phase}
}

func setupModule(t *testing.T) (*arena.Module, ebm.StatementRef) {
	t.Helper()

	mod := arena.NewModule()
	ref := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN})

	return mod, ref
}

func TestMainHookFires(t *testing.T) {
	mod, ref := setupModule(t)

	d := NewDispatcher(mod, Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "main", nil },
	})

	out, err := d.VisitStatement(ref)
	if err != nil {
		t.Fatalf("VisitStatement: %v", err)
	}

	if out != "main" {
		t.Fatalf("out = %q, want main", out)
	}
}

// Before/after hooks that return PassError yield exactly
// the main-logic result.
func TestPassErrorBeforeAfterIsTransparent(t *testing.T) {
	mod, ref := setupModule(t)

	pass := func(ctx *Context) (string, error) { return "", errors.PassError }

	d := NewDispatcher(mod, Table{
		returnTag(PhaseBefore): pass,
		returnTag(PhaseMain):   func(ctx *Context) (string, error) { return "main", nil },
		returnTag(PhaseAfter):  pass,
	})

	out, err := d.VisitStatement(ref)
	if err != nil {
		t.Fatalf("VisitStatement: %v", err)
	}

	if out != "main" {
		t.Fatalf("out = %q, want main-logic result", out)
	}
}

func TestBeforeHookHijacks(t *testing.T) {
	mod, ref := setupModule(t)

	mainRan := false

	d := NewDispatcher(mod, Table{
		returnTag(PhaseBefore): func(ctx *Context) (string, error) { return "hijacked", nil },
		returnTag(PhaseMain): func(ctx *Context) (string, error) {
			mainRan = true

			return "main", nil
		},
	})

	out, err := d.VisitStatement(ref)
	if err != nil {
		t.Fatalf("VisitStatement: %v", err)
	}

	if out != "hijacked" {
		t.Fatalf("out = %q, want hijacked", out)
	}

	if mainRan {
		t.Fatal("main logic ran despite before-hook hijack")
	}
}

func TestAfterHookSeesMainResult(t *testing.T) {
	mod, ref := setupModule(t)

	d := NewDispatcher(mod, Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "main", nil },
		returnTag(PhaseAfter): func(ctx *Context) (string, error) {
			return ctx.MainResult + "+after", nil
		},
	})

	out, err := d.VisitStatement(ref)
	if err != nil {
		t.Fatalf("VisitStatement: %v", err)
	}

	if out != "main+after" {
		t.Fatalf("out = %q, want main+after", out)
	}
}

// The merged visitor searches sources in priority order: a user hook
// declining with PassError falls through to the next source.
func TestSourcePriorityAndFallthrough(t *testing.T) {
	mod, ref := setupModule(t)

	user := Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "", errors.PassError },
	}
	fallback := Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "fallback", nil },
	}

	d := NewDispatcher(mod, user, fallback)

	out, err := d.VisitStatement(ref)
	if err != nil {
		t.Fatalf("VisitStatement: %v", err)
	}

	if out != "fallback" {
		t.Fatalf("out = %q, want fallback", out)
	}
}

func TestUnresolvedMainHookFails(t *testing.T) {
	mod, ref := setupModule(t)

	d := NewDispatcher(mod, Table{})

	if _, err := d.VisitStatement(ref); err == nil {
		t.Fatal("unresolved main hook did not fail")
	}
}

func TestListDispatcherAccumulates(t *testing.T) {
	mod := arena.NewModule()

	a := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN})
	b := mod.AddStatement(ebm.Statement{Kind: ebm.BREAK})

	d := NewDispatcher(mod, Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "r;", nil },
		{Base: ebm.AliasStatement, Variant: uint16(ebm.BREAK), Phase: PhaseMain}: func(ctx *Context) (string, error) {
			return "b;", nil
		},
	})

	out, err := d.VisitStatements([]ebm.StatementRef{a, b})
	if err != nil {
		t.Fatalf("VisitStatements: %v", err)
	}

	if out != "r;b;" {
		t.Fatalf("out = %q, want accumulated r;b;", out)
	}
}

func TestVisitObjectGenericEntry(t *testing.T) {
	mod := arena.NewModule()

	ref := mod.AddStatement(ebm.Statement{Kind: ebm.RETURN})
	typeRef := mod.AddType(ebm.Type{Kind: ebm.BOOL})

	d := NewDispatcher(mod, Table{
		returnTag(PhaseMain): func(ctx *Context) (string, error) { return "stmt", nil },
		{Base: ebm.AliasType, Variant: uint16(ebm.BOOL), Phase: PhaseMain}: func(ctx *Context) (string, error) {
			return "type", nil
		},
	})

	if out, err := d.VisitObject(ref); err != nil || out != "stmt" {
		t.Fatalf("VisitObject(stmt) = %q, %v", out, err)
	}

	if out, err := d.VisitObject(typeRef); err != nil || out != "type" {
		t.Fatalf("VisitObject(type) = %q, %v", out, err)
	}

	if _, err := d.VisitObject(42); err == nil {
		t.Fatal("unsupported object type accepted")
	}
}
