package evmdecomp

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/aj3423/evmdecomp/util"
	"github.com/ethereum/go-ethereum/core/vm"
)

// isAmbiguousJump reports whether a JUMP/JUMPI's destination is the kind
// procedure cloning exists to resolve: not a literal constant, not backed
// by a single known producing instruction (hook_up_def_site_jumps would
// have handled that), and not the fully-unconstrained (Top value, Top
// def-sites) case that carries no information to specialise on at all.
func isAmbiguousJump(last *TACOp) bool {
	dest := last.ArgsVal[0].Value()
	if dest.IsConst() {
		return false
	}
	if !dest.DefSites.IsTop() && dest.DefSites.Size() == 1 {
		return false
	}
	if dest.Values.IsTop() && dest.DefSites.IsTop() {
		return false
	}
	return true
}

// findClonePath walks backwards from b through single-predecessor
// ancestors, returning the collected path (path[0]==b) and the confluence
// block at which the chain stops (the first ancestor, inclusive, whose
// predecessor count isn't exactly 1). ok is false on a cycle or when the
// confluence has no predecessors to specialise against.
func findClonePath(b *TACBlock) (path []*TACBlock, confluence *TACBlock, ok bool) {
	path = []*TACBlock{b}
	inPath := map[*TACBlock]bool{b: true}
	cur := b
	for {
		preds := cur.Preds
		if len(preds) != 1 {
			if len(preds) == 0 {
				return nil, nil, false
			}
			for _, p := range preds {
				if inPath[p] {
					return nil, nil, false
				}
			}
			return path, cur, true
		}
		pred := preds[0]
		if inPath[pred] {
			return nil, nil, false
		}
		path = append(path, pred)
		inPath[pred] = true
		cur = pred
	}
}

// CloneAmbiguousJumpBlocks repeats procedure cloning until no block
// outside skip has a still-ambiguous final jump that can be split. Newly
// created clones are added to skip so a single pass never re-splits its
// own output.
func CloneAmbiguousJumpBlocks(g *TACGraph, skip map[*TACBlock]bool) bool {
	changed := false
	for {
		var target *TACBlock
		for _, b := range g.Blocks {
			if skip[b] {
				continue
			}
			last := b.LastOp()
			if last == nil {
				continue
			}
			if (last.Op == opcodes.Op(vm.JUMP) || last.Op == opcodes.Op(vm.JUMPI)) && isAmbiguousJump(last) {
				target = b
				break
			}
		}
		if target == nil {
			break
		}
		if !splitAndClone(g, target, skip) {
			skip[target] = true
			continue
		}
		changed = true
	}
	return changed
}

func splitAndClone(g *TACGraph, b *TACBlock, skip map[*TACBlock]bool) bool {
	path, confluence, ok := findClonePath(b)
	if !ok {
		return false
	}
	confluencePreds := util.CloneSlice(confluence.Preds)
	if len(confluencePreds) < 2 {
		return false
	}

	for _, s := range util.CloneSlice(confluence.Succs) {
		g.recordSplitSuccs(confluence.Entry, s)
	}

	for _, node := range path {
		for _, s := range util.CloneSlice(node.Succs) {
			g.RemoveEdge(node, s)
		}
		for _, p := range util.CloneSlice(node.Preds) {
			g.RemoveEdge(p, node)
		}
	}
	for _, node := range path {
		g.RemoveBlock(node)
	}

	for _, p := range confluencePreds {
		clones := make([]*TACBlock, len(path))
		for i, node := range path {
			c := node.Clone()
			c.IdentSuffix = joinSuffix(c.IdentSuffix, p.Ident())
			clones[i] = c
			g.AddBlock(c)
			skip[c] = true
		}
		for i := 0; i < len(clones)-1; i++ {
			g.AddEdge(clones[i+1], clones[i])
		}
		g.AddEdge(p, clones[len(clones)-1])
	}
	return true
}

func joinSuffix(existing, add string) string {
	if existing == "" {
		return add
	}
	return existing + "_" + add
}

// MergeDuplicateBlocks groups blocks that share an entry pc and (unless
// ignored) the same predecessor/successor sets, folding each group of
// size >= 2 into a single block whose entry/exit stacks are the join of
// the group's, metafied. If a merge leaves a pc with a single occupant,
// its ident_suffix is cleared and any pending split_node_succs edge for
// that pc is reinstated.
func MergeDuplicateBlocks(g *TACGraph, ignorePreds, ignoreSuccs bool, settings *Settings) bool {
	groups := map[string][]*TACBlock{}
	for _, b := range g.Blocks {
		key := dupKey(b, ignorePreds, ignoreSuccs)
		groups[key] = append(groups[key], b)
	}

	changed := false
	idx := 0
	keys := make([]string, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		group := groups[k]
		if len(group) < 2 {
			continue
		}
		mergeGroup(g, group, idx, settings)
		idx++
		changed = true
	}
	return changed
}

func dupKey(b *TACBlock, ignorePreds, ignoreSuccs bool) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d|", b.Entry)
	if !ignorePreds {
		sb.WriteString(blockSetKey(b.Preds))
		sb.WriteByte('|')
	}
	if !ignoreSuccs {
		sb.WriteString(blockSetKey(b.Succs))
	}
	return sb.String()
}

func blockSetKey(blocks []*TACBlock) string {
	idents := make([]string, len(blocks))
	for i, b := range blocks {
		idents[i] = b.Ident()
	}
	sort.Strings(idents)
	return strings.Join(idents, ",")
}

func mergeGroup(g *TACGraph, group []*TACBlock, groupIdx int, settings *Settings) {
	inGroup := map[*TACBlock]bool{}
	for _, b := range group {
		inGroup[b] = true
	}

	var entries, exits []*VariableStack
	overflow, unresolved := false, false
	predSet, succSet := map[*TACBlock]bool{}, map[*TACBlock]bool{}
	for _, b := range group {
		if b.EntryStack != nil {
			entries = append(entries, b.EntryStack)
		}
		if b.ExitStack != nil {
			exits = append(exits, b.ExitStack)
		}
		overflow = overflow || b.SymbolicOverflow
		unresolved = unresolved || b.HasUnresolvedJump
		for _, p := range b.Preds {
			if !inGroup[p] {
				predSet[p] = true
			}
		}
		for _, s := range b.Succs {
			if !inGroup[s] {
				succSet[s] = true
			}
		}
	}

	merged := group[0].Clone()
	merged.IdentSuffix = fmt.Sprintf("%d", groupIdx)
	merged.Preds, merged.Succs = nil, nil
	merged.SymbolicOverflow = overflow
	merged.HasUnresolvedJump = unresolved
	if len(entries) > 0 {
		merged.EntryStack = VariableStackJoinAll(entries, DefaultMaxStackSize)
		merged.EntryStack.Metafy()
	}
	if len(exits) > 0 {
		merged.ExitStack = VariableStackJoinAll(exits, DefaultMaxStackSize)
		merged.ExitStack.Metafy()
	}

	for _, b := range group {
		g.RemoveBlock(b)
	}
	g.AddBlock(merged)
	for p := range predSet {
		g.AddEdge(p, merged)
	}
	for s := range succSet {
		g.AddEdge(merged, s)
	}

	if len(g.GetBlocksByPc(merged.Entry)) == 1 && merged.IdentSuffix != "" {
		delete(g.byIdent, merged.Ident())
		merged.IdentSuffix = ""
		g.byIdent[merged.Ident()] = merged
		for _, pending := range g.splitNodeSuccs[merged.Entry] {
			if stillInGraph(g, pending) && !g.HasEdge(merged, pending) {
				g.AddEdge(merged, pending)
			}
		}
	}

	if merged.EntryStack != nil {
		HookUpStackVars(merged)
	}
	ApplyOperations(merged, settings)
	HookUpJumps(g, merged, settings)
}

func stillInGraph(g *TACGraph, b *TACBlock) bool {
	for _, x := range g.Blocks {
		if x == b {
			return true
		}
	}
	return false
}

// mergeDeltaStacks composes two blocks' symbolic stack effects as if pred's
// ops ran immediately before succ's: succ's pops first consume pred's net
// pushes, and only dip into pred's own empty_pops once those run out.
//
// Known simplification: a stack-depth reference left over in succ.Pushes
// (a DUP/SWAP that reached below succ's own local bottom) is carried
// through unshifted. This is exact whenever succ's own empty_pops stayed
// within what pred supplied — the overwhelmingly common case for the
// straight-line, no-incoming-edge blocks this is used on — and merely
// conservative (the merged block's entry stack contract still holds,
// just coarser) otherwise.
func mergeDeltaStacks(a, b *DeltaStack) *DeltaStack {
	items := append([]*TACArg{}, a.Pushes...)
	emptyPops := a.EmptyPops
	for i := 0; i < b.EmptyPops; i++ {
		if len(items) > 0 {
			items = items[:len(items)-1]
		} else {
			emptyPops++
		}
	}
	items = append(items, b.Pushes...)
	return &DeltaStack{EmptyPops: emptyPops, Pushes: items}
}

// MergeContiguous replaces pred and succ with one new block spanning both
// and returns it, under the precondition
// that succ immediately follows pred in pc order and neither has any edge
// to the other blocks being merged around it (the shape unreachable-run
// merging produces).
func MergeContiguous(g *TACGraph, pred, succ *TACBlock) *TACBlock {
	merged := &TACBlock{
		Entry:  pred.Entry,
		Exit:   succ.Exit,
		EvmOps: append(append([]*asm.EVMOp{}, pred.EvmOps...), succ.EvmOps...),
		Graph:  g,
	}
	merged.TacOps = append(append([]*TACOp{}, pred.TacOps...), succ.TacOps...)
	merged.resetOpRefs()
	merged.Delta = mergeDeltaStacks(pred.Delta, succ.Delta)
	merged.Preds = append([]*TACBlock{}, pred.Preds...)
	merged.Succs = append([]*TACBlock{}, succ.Succs...)

	g.RemoveBlock(pred)
	g.RemoveBlock(succ)
	g.AddBlock(merged)
	for _, p := range merged.Preds {
		g.AddEdge(p, merged)
	}
	for _, s := range merged.Succs {
		g.AddEdge(merged, s)
	}
	return merged
}

// MergeUnreachableBlocks groups isolated (no preds, no succs) unreachable
// blocks into maximal contiguous-pc runs and folds each run into one block
// via MergeContiguous, returning the runs that were merged (length >= 2).
func MergeUnreachableBlocks(g *TACGraph, originPcs []uint64) [][]*TACBlock {
	reachable := g.TransitiveClosure(originPcs)
	var isolated []*TACBlock
	for _, b := range g.Blocks {
		if !reachable[b] && len(b.Preds) == 0 && len(b.Succs) == 0 {
			isolated = append(isolated, b)
		}
	}
	sort.Slice(isolated, func(i, j int) bool { return isolated[i].Entry < isolated[j].Entry })

	var runs [][]*TACBlock
	for i := 0; i < len(isolated); {
		run := []*TACBlock{isolated[i]}
		j := i + 1
		for j < len(isolated) && isolated[j].Entry == run[len(run)-1].Exit+1 {
			run = append(run, isolated[j])
			j++
		}
		runs = append(runs, run)
		i = j
	}

	var merged [][]*TACBlock
	for _, run := range runs {
		if len(run) < 2 {
			continue
		}
		cur := run[0]
		for k := 1; k < len(run); k++ {
			cur = MergeContiguous(g, cur, run[k])
		}
		merged = append(merged, run)
	}
	return merged
}

// AddMissingSplitEdges reinstates, for every entry pc that procedure
// cloning once split, any recorded successor that no copy of that pc
// currently reaches. Returns whether anything was added.
func AddMissingSplitEdges(g *TACGraph) bool {
	changed := false
	for pc, succs := range g.splitNodeSuccs {
		copies := g.GetBlocksByPc(pc)
		for _, succ := range succs {
			if !stillInGraph(g, succ) {
				continue
			}
			reached := false
			for _, c := range copies {
				if g.HasEdge(c, succ) {
					reached = true
					break
				}
			}
			if !reached {
				for _, c := range copies {
					g.AddEdge(c, succ)
					changed = true
				}
			}
		}
	}
	return changed
}

// PropVarsBetweenBlocks renames every entry-stack slot whose def-sites is
// a singleton to the concrete Variable produced at that site, rewriting
// every occurrence in the block's ops and exit stack. Pure renaming: no
// value changes.
func PropVarsBetweenBlocks(g *TACGraph) {
	for _, b := range g.Blocks {
		if b.EntryStack == nil {
			continue
		}
		for _, slot := range b.EntryStack.Items() {
			if slot.DefSites.IsTop() || slot.DefSites.Size() != 1 {
				continue
			}
			loc := slot.DefSites.Values()[0]
			defOp := findOpAtLoc(loc)
			if defOp == nil || defOp.Lhs == nil || defOp.Lhs == slot {
				continue
			}
			replaceVarInBlock(b, slot, defOp.Lhs)
		}
	}
}

func replaceVarInBlock(b *TACBlock, old, replacement *Variable) {
	for _, op := range b.TacOps {
		for _, a := range op.ArgsVal {
			if a.Var == old {
				a.Var = replacement
			}
		}
	}
	if b.ExitStack != nil {
		items := b.ExitStack.Items()
		for i, v := range items {
			if v == old {
				items[i] = replacement
			}
		}
	}
	entryItems := b.EntryStack.Items()
	for i, v := range entryItems {
		if v == old {
			entryItems[i] = replacement
		}
	}
}

// MakeStackNamesUnique disambiguates distinct Variables that happen to
// share a display name within the same block's entry stack, appending an
// index to each so output never conflates two different values.
func MakeStackNamesUnique(g *TACGraph) {
	for _, b := range g.Blocks {
		if b.EntryStack == nil {
			continue
		}
		byName := map[string][]*Variable{}
		for _, v := range b.EntryStack.Items() {
			byName[v.Name] = append(byName[v.Name], v)
		}
		for name, vars := range byName {
			seen := map[*Variable]bool{}
			var distinct []*Variable
			for _, v := range vars {
				if !seen[v] {
					seen[v] = true
					distinct = append(distinct, v)
				}
			}
			if len(distinct) < 2 {
				continue
			}
			for i, v := range distinct {
				v.Name = fmt.Sprintf("%s_%d", name, i)
			}
		}
	}
}
