package evmdecomp

import (
	"sort"

	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/util"
)

// TACGraph is the reconstructed control-flow graph: a set of TACBlocks plus
// the pred/succ edges between them. Pred/succ symmetry (b is a pred of c
// iff c is a succ of b) is the central invariant every mutation here must
// preserve.
//
// splitNodeSuccs records, for the entry pc of a confluence block that
// procedure cloning split, the successors that block had before the split
// (clones do not carry them over), so AddMissingSplitEdges and a later
// merge can restore those edges.
type TACGraph struct {
	Blocks []*TACBlock

	byPc    map[uint64][]*TACBlock
	byIdent map[string]*TACBlock

	Root *TACBlock

	// Program backs jump-destination validity checks (hook_up_jumps needs
	// to know whether a candidate pc actually holds a JUMPDEST opcode).
	Program *asm.Program

	splitNodeSuccs map[uint64][]*TACBlock
}

func NewTACGraph() *TACGraph {
	return &TACGraph{
		byPc:           map[uint64][]*TACBlock{},
		byIdent:        map[string]*TACBlock{},
		splitNodeSuccs: map[uint64][]*TACBlock{},
	}
}

func (g *TACGraph) AddBlock(b *TACBlock) {
	b.Graph = g
	g.Blocks = append(g.Blocks, b)
	g.byPc[b.Entry] = append(g.byPc[b.Entry], b)
	g.byIdent[b.Ident()] = b
	if g.Root == nil {
		g.Root = b
	}
}

// RemoveBlock disconnects b from every neighbour and drops it from the
// graph's indexes. If b was Root, Root becomes nil (the caller must pick a
// new root if one is still needed).
func (g *TACGraph) RemoveBlock(b *TACBlock) {
	for _, p := range util.CloneSlice(b.Preds) {
		g.RemoveEdge(p, b)
	}
	for _, s := range util.CloneSlice(b.Succs) {
		g.RemoveEdge(b, s)
	}

	for i, x := range g.Blocks {
		if x == b {
			g.Blocks = append(g.Blocks[:i], g.Blocks[i+1:]...)
			break
		}
	}
	delete(g.byIdent, b.Ident())
	pcList := g.byPc[b.Entry]
	for i, x := range pcList {
		if x == b {
			g.byPc[b.Entry] = append(pcList[:i], pcList[i+1:]...)
			break
		}
	}
	if g.Root == b {
		g.Root = nil
	}
}

// AddEdge is idempotent and keeps Preds/Succs symmetric.
func (g *TACGraph) AddEdge(from, to *TACBlock) {
	from.addSucc(to)
	to.addPred(from)
}

func (g *TACGraph) RemoveEdge(from, to *TACBlock) {
	from.removeSucc(to)
	to.removePred(from)
}

func (g *TACGraph) HasEdge(from, to *TACBlock) bool {
	for _, s := range from.Succs {
		if s == to {
			return true
		}
	}
	return false
}

func (g *TACGraph) GetBlocksByPc(pc uint64) []*TACBlock {
	return g.byPc[pc]
}

func (g *TACGraph) GetBlockByIdent(ident string) (*TACBlock, bool) {
	b, ok := g.byIdent[ident]
	return b, ok
}

// RecalcPreds rebuilds every block's Preds list purely from the existing
// Succs lists, discarding whatever Preds held before, for repairing
// pred/succ symmetry after Succs were edited directly. The analysis passes
// in this package keep both lists in step through AddEdge/RemoveEdge and
// do not call it.
func (g *TACGraph) RecalcPreds() {
	for _, b := range g.Blocks {
		b.Preds = nil
	}
	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			s.addPred(b)
		}
	}
}

// TransitiveClosure returns every block reachable from originPcs (matched
// by Entry pc, any clone) via Succs edges, origins included.
func (g *TACGraph) TransitiveClosure(originPcs []uint64) map[*TACBlock]bool {
	seen := map[*TACBlock]bool{}
	var stack []*TACBlock
	for _, pc := range originPcs {
		for _, b := range g.byPc[pc] {
			if !seen[b] {
				seen[b] = true
				stack = append(stack, b)
			}
		}
	}
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range b.Succs {
			if !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// RemoveUnreachableBlocks deletes every block not in the transitive closure
// of originPcs, returning the removed blocks.
func (g *TACGraph) RemoveUnreachableBlocks(originPcs []uint64) []*TACBlock {
	reachable := g.TransitiveClosure(originPcs)
	var removed []*TACBlock
	for _, b := range util.CloneSlice(g.Blocks) {
		if !reachable[b] {
			g.RemoveBlock(b)
			removed = append(removed, b)
		}
	}
	return removed
}

// Edge is a pred/succ pair, used by EdgeList for export and testing.
type Edge struct {
	From, To *TACBlock
}

func (g *TACGraph) EdgeList() []Edge {
	var out []Edge
	for _, b := range g.Blocks {
		for _, s := range b.Succs {
			out = append(out, Edge{From: b, To: s})
		}
	}
	return out
}

// SortedTraversal returns the graph's blocks ordered by (Entry pc,
// IdentSuffix), giving deterministic output for text/JSON/DOT export and
// for tests that need a stable iteration order.
func (g *TACGraph) SortedTraversal() []*TACBlock {
	out := util.CloneSlice(g.Blocks)
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Entry != b.Entry {
			return a.Entry < b.Entry
		}
		return a.IdentSuffix < b.IdentSuffix
	})
	return out
}

// HasUnresolvedJump reports whether any block in the graph still has an
// unresolved indirect jump. The driver's outer loop does not consult it; it
// stops on the modified flag of each pass.
func (g *TACGraph) HasUnresolvedJump() bool {
	for _, b := range g.Blocks {
		if b.HasUnresolvedJump {
			return true
		}
	}
	return false
}

// recordSplitSuccs remembers that originPc's block was split and that succ
// was one of its successors before the split. AddMissingSplitEdges and
// merge_duplicate_blocks consult this to restore edges the clones lack.
func (g *TACGraph) recordSplitSuccs(originPc uint64, succ *TACBlock) {
	list := g.splitNodeSuccs[originPc]
	for _, s := range list {
		if s == succ {
			return
		}
	}
	g.splitNodeSuccs[originPc] = append(list, succ)
}
