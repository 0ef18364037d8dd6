// Package transform implements the EBM transform pipeline:
// per-function CFG + dominator construction, dynamic bit-field I/O
// lowering, I/O vectorization, property getter/setter synthesis, and
// dead-object elimination with id renumbering. Every pass operates on an
// already-converted *arena.Module in place, following the mutation rules
// for in-place mutation and the fixed pass ordering.
package transform

import (
	"sort"

	"github.com/orizon-lang/ebmc/internal/ebm"
	"github.com/orizon-lang/ebmc/internal/ebm/arena"
)

// Edge is one CFG out-edge: an unconditional successor when Cond is nil,
// or the branch taken when the originating node's statement evaluates
// Cond (an IF_STATEMENT's own Cond, a MATCH_BRANCH's Cond, and so on).
type Edge struct {
	To   int
	Cond ebm.ExpressionRef
}

// Node is one CFG node. Stmt is the originating statement this node
// represents; a nil Stmt marks a synthetic node (a branch join, a loop
// exit, the function's entry/end) introduced purely for graph shape.
type Node struct {
	ID    int
	Stmt  ebm.StatementRef
	Succs []Edge
	Preds []int
}

// CFG is one function body's control-flow graph: Entry is where
// execution begins; End is the implicit node every RETURN/ERROR_RETURN/
// ERROR_REPORT routes to, regardless of how deeply nested.
type CFG struct {
	Nodes   []*Node
	EntryID int
	EndID   int
}

type loopCtx struct {
	header int
	exit   int
}

type cfgBuilder struct {
	mod       *arena.Module
	nodes     []*Node
	loopStack []loopCtx
	endID     int
}

func (b *cfgBuilder) newNode(stmt ebm.StatementRef) int {
	id := len(b.nodes)
	b.nodes = append(b.nodes, &Node{ID: id, Stmt: stmt})

	return id
}

func (b *cfgBuilder) link(from, to int, cond ebm.ExpressionRef) {
	if from < 0 || to < 0 {
		return
	}

	b.nodes[from].Succs = append(b.nodes[from].Succs, Edge{To: to, Cond: cond})
	b.nodes[to].Preds = append(b.nodes[to].Preds, from)
}

// BuildCFG constructs the CFG for one function's body by recursive
// descent over its statement tree. bodyRef is typically a
// FUNCTION_DECL's Body (a BLOCK). Node ids are allocated in a fixed
// order: entry is always 0, the implicit end-of-function node always 1.
func BuildCFG(mod *arena.Module, bodyRef ebm.StatementRef) *CFG {
	b := &cfgBuilder{mod: mod}

	entryID := b.newNode(ebm.StatementRef(ebm.NilRef))
	endID := b.newNode(ebm.StatementRef(ebm.NilRef))
	b.endID = endID

	tail := b.chain(bodyRef, entryID, ebm.ExpressionRef(ebm.NilRef))
	if tail != -1 {
		b.link(tail, endID, ebm.ExpressionRef(ebm.NilRef))
	}

	return &CFG{Nodes: b.nodes, EntryID: entryID, EndID: endID}
}

// chain links cur to the first node produced for ref (with edge label
// cond, when cur is reachable) and returns the tail node execution falls
// through to afterward, or -1 when ref unconditionally diverts control
// flow away (a RETURN, an unconditional BREAK/CONTINUE, or an ERROR_*).
func (b *cfgBuilder) chain(ref ebm.StatementRef, cur int, cond ebm.ExpressionRef) int {
	if ref.IsNil() {
		return cur
	}

	s, ok := b.mod.GetStatement(ref)
	if !ok {
		return cur
	}

	switch s.Kind {
	case ebm.BLOCK:
		tail := cur
		edgeCond := cond

		for _, item := range s.Items {
			tail = b.chain(item, tail, edgeCond)
			edgeCond = ebm.ExpressionRef(ebm.NilRef)
		}

		return tail

	case ebm.IF_STATEMENT:
		n := b.newNode(ref)
		if cur != -1 {
			b.link(cur, n, cond)
		}

		thenTail := b.chain(s.Then, n, s.Cond)

		var elseTail int

		if !s.Else.IsNil() {
			elseTail = b.chain(s.Else, n, ebm.ExpressionRef(ebm.NilRef))
		} else {
			elseTail = n
		}

		join := b.newNode(ebm.StatementRef(ebm.NilRef))
		linked := false

		if thenTail != -1 {
			b.link(thenTail, join, ebm.ExpressionRef(ebm.NilRef))
			linked = true
		}

		if elseTail != -1 {
			b.link(elseTail, join, ebm.ExpressionRef(ebm.NilRef))
			linked = true
		}

		if !linked {
			return -1
		}

		return join

	case ebm.LOOP_STATEMENT:
		header := b.newNode(ref)
		if cur != -1 {
			b.link(cur, header, cond)
		}

		exit := b.newNode(ebm.StatementRef(ebm.NilRef))

		b.loopStack = append(b.loopStack, loopCtx{header: header, exit: exit})
		bodyTail := b.chain(s.Body, header, ebm.ExpressionRef(ebm.NilRef))
		b.loopStack = b.loopStack[:len(b.loopStack)-1]

		if bodyTail != -1 {
			b.link(bodyTail, header, ebm.ExpressionRef(ebm.NilRef))
		}

		b.link(header, exit, ebm.ExpressionRef(ebm.NilRef))

		return exit

	case ebm.MATCH_STATEMENT:
		n := b.newNode(ref)
		if cur != -1 {
			b.link(cur, n, cond)
		}

		join := b.newNode(ebm.StatementRef(ebm.NilRef))
		any := false

		for _, branchRef := range s.Items {
			branch, ok := b.mod.GetStatement(branchRef)
			if !ok {
				continue
			}

			bt := b.chain(branch.Body, n, branch.Cond)
			if bt != -1 {
				b.link(bt, join, ebm.ExpressionRef(ebm.NilRef))
				any = true
			}
		}

		if !any {
			return n
		}

		return join

	case ebm.BREAK, ebm.CONTINUE:
		n := b.newNode(ref)
		if cur != -1 {
			b.link(cur, n, cond)
		}

		if len(b.loopStack) > 0 {
			top := b.loopStack[len(b.loopStack)-1]
			if s.Kind == ebm.BREAK {
				b.link(n, top.exit, ebm.ExpressionRef(ebm.NilRef))
			} else {
				b.link(n, top.header, ebm.ExpressionRef(ebm.NilRef))
			}
		}

		return -1

	case ebm.RETURN, ebm.ERROR_RETURN, ebm.ERROR_REPORT:
		n := b.newNode(ref)
		if cur != -1 {
			b.link(cur, n, cond)
		}

		b.link(n, b.endID, ebm.ExpressionRef(ebm.NilRef))

		return -1

	default:
		n := b.newNode(ref)
		if cur != -1 {
			b.link(cur, n, cond)
		}

		return n
	}
}

// Optimize removes empty passthrough nodes: any node with no originating
// statement and exactly one successor is spliced out, its predecessors
// redirected straight to that successor.
func (c *CFG) Optimize() {
	for {
		removed := false

		for _, n := range c.Nodes {
			if n == nil || !n.Stmt.IsNil() || len(n.Succs) != 1 {
				continue
			}

			if n.ID == c.EntryID || n.ID == c.EndID {
				continue
			}

			succ := n.Succs[0]
			c.splice(n.ID, succ)
			removed = true

			break
		}

		if !removed {
			return
		}
	}
}

func (c *CFG) splice(id int, succ Edge) {
	node := c.Nodes[id]

	target := c.Nodes[succ.To]
	target.Preds = removeInt(target.Preds, id)

	for _, predID := range node.Preds {
		pred := c.Nodes[predID]

		for i, e := range pred.Succs {
			if e.To == id {
				cond := e.Cond
				if cond.IsNil() {
					cond = succ.Cond
				}

				pred.Succs[i] = Edge{To: succ.To, Cond: cond}
				target.Preds = append(target.Preds, predID)
			}
		}
	}

	c.Nodes[id] = nil
}

func removeInt(xs []int, v int) []int {
	out := xs[:0]

	for _, x := range xs {
		if x != v {
			out = append(out, x)
		}
	}

	return out
}

// LiveNodes returns the non-nil nodes remaining after Optimize, in
// ascending id order.
func (c *CFG) LiveNodes() []*Node {
	out := make([]*Node, 0, len(c.Nodes))

	for _, n := range c.Nodes {
		if n != nil {
			out = append(out, n)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out
}

// Dominators computes Dom(n) for every live node by iterated
// intersection: Dom(entry) = {entry}; Dom(n) = {n} ∪ (⋂ Dom(p)
// for p in preds(n)), iterated to a fixed point.
func (c *CFG) Dominators() map[int]map[int]bool {
	live := c.LiveNodes()

	dom := make(map[int]map[int]bool, len(live))

	all := make(map[int]bool, len(live))
	for _, n := range live {
		all[n.ID] = true
	}

	for _, n := range live {
		if n.ID == c.EntryID {
			dom[n.ID] = map[int]bool{n.ID: true}
		} else {
			dom[n.ID] = cloneSet(all)
		}
	}

	changed := true
	for changed {
		changed = false

		for _, n := range live {
			if n.ID == c.EntryID {
				continue
			}

			var inter map[int]bool

			for _, p := range n.Preds {
				if _, ok := dom[p]; !ok {
					continue
				}

				if inter == nil {
					inter = cloneSet(dom[p])
				} else {
					inter = intersect(inter, dom[p])
				}
			}

			next := map[int]bool{n.ID: true}
			for k := range inter {
				next[k] = true
			}

			if !setsEqual(next, dom[n.ID]) {
				dom[n.ID] = next
				changed = true
			}
		}
	}

	return dom
}

// ImmediateDominators derives idom(n) from Dominators: the element of
// Dom(n)\{n} with the largest |Dom(.)|.
func (c *CFG) ImmediateDominators(dom map[int]map[int]bool) map[int]int {
	idom := make(map[int]int, len(dom))

	for n, set := range dom {
		if n == c.EntryID {
			continue
		}

		best := -1
		bestSize := -1

		ids := make([]int, 0, len(set))
		for id := range set {
			if id != n {
				ids = append(ids, id)
			}
		}

		sort.Ints(ids)

		for _, id := range ids {
			size := len(dom[id])
			if size > bestSize {
				bestSize = size
				best = id
			}
		}

		if best != -1 {
			idom[n] = best
		}
	}

	return idom
}

func cloneSet(s map[int]bool) map[int]bool {
	out := make(map[int]bool, len(s))
	for k, v := range s {
		out[k] = v
	}

	return out
}

func intersect(a, b map[int]bool) map[int]bool {
	out := make(map[int]bool)

	for k := range a {
		if b[k] {
			out[k] = true
		}
	}

	return out
}

func setsEqual(a, b map[int]bool) bool {
	if len(a) != len(b) {
		return false
	}

	for k := range a {
		if !b[k] {
			return false
		}
	}

	return true
}
