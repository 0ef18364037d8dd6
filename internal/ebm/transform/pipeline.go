package transform

import (
	"fmt"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
	"github.com/orizon-lang/ebmc/internal/errors"
)

// Run drives the transform pipeline end to end: per-function
// CFG construction feeding the bit-I/O lowering pass, then I/O
// vectorization, both run once per ENCODER/DECODER FUNCTION_DECL; then
// property synthesis and dead-object elimination, both run once over the
// whole module. Pass ordering is fixed and matches the component table's
// leaves-first listing exactly; later passes depend on earlier ones
// having already rewritten the bodies they read.
func Run(mod *arena.Module) error {
	for _, e := range mod.Statements.Entries() {
		if e.Body.Kind != ebm.FUNCTION_DECL {
			continue
		}

		if e.Body.FuncKind != ebm.ENCODER && e.Body.FuncKind != ebm.DECODER {
			continue
		}

		fnRef := ebm.StatementRef(e.ID)

		if err := runFunctionPasses(mod, fnRef, e.Body.FuncKind == ebm.DECODER); err != nil {
			return fmt.Errorf("transform: function %s: %w", fnRef, err)
		}
	}

	if err := SynthesizeProperty(mod); err != nil {
		return errors.NewStandardError(errors.CategoryInternal, "EBM4901", fmt.Sprintf("synthesize_property: %v", err), nil)
	}

	PatchMemberAccessTypes(mod)

	EliminateDeadCode(mod)

	return nil
}

// runFunctionPasses applies the three per-function passes to
// one encoder/decoder body: CFG construction locates the byte-aligned
// groups bitio.go lowers, then the (possibly rewritten) body's top-level
// block is vectorized, with out-of-block refs patched via the returned
// replacement map.
func runFunctionPasses(mod *arena.Module, fnRef ebm.StatementRef, isDecode bool) error {
	if err := LowerDynamicBitIO(mod, fnRef, isDecode); err != nil {
		return err
	}

	fn, ok := mod.GetStatement(fnRef)
	if !ok {
		return nil
	}

	newBody, replacements, err := VectorizeBlock(mod, fn.Body)
	if err != nil {
		return err
	}

	if len(replacements) == 0 {
		return nil
	}

	if slot, ok := mod.Statements.GetMut(ebm.Ref(fnRef)); ok {
		slot.Body = newBody
	}

	RewriteStatementRefs(mod, replacements)

	return nil
}
