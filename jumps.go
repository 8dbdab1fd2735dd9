package evmdecomp

import (
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/aj3423/evmdecomp/util"
	"github.com/ethereum/go-ethereum/core/vm"
)

// resolveDests classifies a destination value set against the program's
// valid JUMPDEST pcs. An unconstrained (Top) set stays open (unresolved);
// a Bottom set (no information yet, e.g. this block hasn't been reached)
// resolves to nothing and is neither valid nor invalid; a finite,
// enumerated set that yields no valid destination is invalid.
func resolveDests(g *TACGraph, values Subset[Element]) (dests []*TACBlock, invalidJump, unresolved bool) {
	if values.IsTop() {
		return nil, false, true
	}
	if values.IsBottom() {
		return nil, false, false
	}
	found := false
	for _, v := range values.Values() {
		if !v.IsUint64() {
			continue
		}
		pc := v.Uint64()
		if g.Program != nil && g.Program.IsValidJumpDest(pc) {
			found = true
			dests = append(dests, g.GetBlocksByPc(pc)...)
		}
	}
	invalidJump = !found
	return dests, invalidJump, false
}

// HookUpJumps examines a block's last op and reconciles its successor set
// against the destinations its jump (if any) resolves to. Returns whether
// the successor set changed.
func HookUpJumps(g *TACGraph, b *TACBlock, settings *Settings) bool {
	last := b.LastOp()
	if last == nil {
		return false
	}

	switch last.Op {
	case opcodes.Op(vm.JUMPI):
		return hookUpJumpi(g, b, last, settings)
	case opcodes.Op(vm.JUMP):
		return hookUpJump(g, b, last, settings)
	default:
		return hookUpFallthrough(g, b, last)
	}
}

func hookUpJumpi(g *TACGraph, b *TACBlock, last *TACOp, settings *Settings) bool {
	dest := last.ArgsVal[0].Value()
	cond := last.ArgsVal[1].Value()

	if settings.MutateJumps && cond.IsFalse() {
		b.TacOps = b.TacOps[:len(b.TacOps)-1]
		b.HasUnresolvedJump = false
		return reconcileSuccs(g, b, nil, b.Exit+1, true)
	}
	if settings.MutateJumps && cond.IsTrue() {
		last.Op = opcodes.Op(vm.JUMP)
		last.ArgsVal = last.ArgsVal[:1]
		return hookUpJump(g, b, last, settings)
	}

	destBlocks, invalid, unresolved := resolveDests(g, dest.Values)
	b.HasUnresolvedJump = unresolved
	if invalid && settings.GenerateThrows {
		last.Op = opcodes.THROWI
		b.HasUnresolvedJump = false
		return reconcileSuccs(g, b, nil, b.Exit+1, true)
	}
	return reconcileSuccs(g, b, destBlocks, b.Exit+1, true)
}

func hookUpJump(g *TACGraph, b *TACBlock, last *TACOp, settings *Settings) bool {
	dest := last.ArgsVal[0].Value()
	destBlocks, invalid, unresolved := resolveDests(g, dest.Values)
	b.HasUnresolvedJump = unresolved
	if invalid && settings.GenerateThrows {
		last.Op = opcodes.THROW
		b.HasUnresolvedJump = false
		return reconcileSuccs(g, b, nil, 0, false)
	}
	return reconcileSuccs(g, b, destBlocks, 0, false)
}

func hookUpFallthrough(g *TACGraph, b *TACBlock, last *TACOp) bool {
	if last.Op.Halts() {
		return reconcileSuccs(g, b, nil, 0, false)
	}
	return reconcileSuccs(g, b, nil, b.Exit+1, true)
}

// reconcileSuccs computes the implied successor set (destBlocks plus the
// fallthrough block group, if any) and reconciles it against b's current
// successors a destination-group at a time: if the current successors
// already intersect a group, keep only that intersection (this preserves
// which clone a split path pointed at); otherwise every block in the group
// is added. Returns whether anything changed.
func reconcileSuccs(g *TACGraph, b *TACBlock, destBlocks []*TACBlock, fallthroughPc uint64, hasFallthrough bool) bool {
	groups := map[uint64][]*TACBlock{}
	for _, d := range destBlocks {
		groups[d.Entry] = append(groups[d.Entry], d)
	}
	if hasFallthrough {
		groups[fallthroughPc] = append(groups[fallthroughPc], g.GetBlocksByPc(fallthroughPc)...)
	}

	implied := map[*TACBlock]bool{}
	for _, group := range groups {
		var intersect []*TACBlock
		for _, cand := range group {
			for _, s := range b.Succs {
				if s == cand {
					intersect = append(intersect, cand)
				}
			}
		}
		keep := intersect
		if len(keep) == 0 {
			keep = group
		}
		for _, k := range keep {
			implied[k] = true
		}
	}

	changed := false
	for _, s := range util.CloneSlice(b.Succs) {
		if !implied[s] {
			g.RemoveEdge(b, s)
			changed = true
		}
	}
	for s := range implied {
		if !g.HasEdge(b, s) {
			g.AddEdge(b, s)
			changed = true
		}
	}
	return changed
}

// HookUpDefSiteJumps backfills edges for JUMP/JUMPI blocks whose
// destination variable has constant (non-Top, non-Bottom) def-sites: it
// looks up each defining op's lhs value set, joins them, and adds an edge
// for every value that names a valid jump destination. has_unresolved_jump
// is cleared only when no contributing def-site's value was itself Top.
func HookUpDefSiteJumps(g *TACGraph) {
	for _, b := range g.Blocks {
		last := b.LastOp()
		if last == nil {
			continue
		}
		if last.Op != opcodes.Op(vm.JUMP) && last.Op != opcodes.Op(vm.JUMPI) {
			continue
		}

		destVar := last.ArgsVal[0].Value()
		if destVar.DefSites.IsTop() || destVar.DefSites.IsBottom() {
			continue
		}

		joined := SubsetBottom[Element]()
		anyTop := false
		for _, loc := range destVar.DefSites.Values() {
			defOp := findOpAtLoc(loc)
			if defOp == nil || defOp.Lhs == nil {
				continue
			}
			if defOp.Lhs.Values.IsTop() {
				anyTop = true
				continue
			}
			joined = SubsetJoin(joined, defOp.Lhs.Values)
		}

		for _, v := range joined.Values() {
			if !v.IsUint64() {
				continue
			}
			pc := v.Uint64()
			if g.Program != nil && g.Program.IsValidJumpDest(pc) {
				for _, d := range g.GetBlocksByPc(pc) {
					g.AddEdge(b, d)
				}
			}
		}

		if !anyTop {
			b.HasUnresolvedJump = false
		}
	}
}

func findOpAtLoc(loc TACLocRef) *TACOp {
	if loc.Block == nil {
		return nil
	}
	for _, op := range loc.Block.TacOps {
		if op.Pc() == loc.Pc {
			return op
		}
	}
	return nil
}
