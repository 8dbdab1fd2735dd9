package evmdecomp

import (
	"testing"

	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func jumpOpWithDest(dest *Variable) *TACOp {
	return &TACOp{Op: opcodes.Op(vm.JUMP), ArgsVal: []*TACArg{NewVarArg(dest)}}
}

func TestIsAmbiguousJumpConstIsNotAmbiguous(t *testing.T) {
	dest := NewConstVariable("d", uint256.NewInt(3))
	assert.False(t, isAmbiguousJump(jumpOpWithDest(dest)))
}

func TestIsAmbiguousJumpSingleDefSiteIsNotAmbiguous(t *testing.T) {
	dest := NewTopVariable("d")
	dest.DefSites = SubsetOf(TACLocRef{Pc: 1})
	assert.False(t, isAmbiguousJump(jumpOpWithDest(dest)))
}

func TestIsAmbiguousJumpFullyUnconstrainedIsNotAmbiguous(t *testing.T) {
	dest := NewTopVariable("d")
	dest.DefSites = SubsetTop[TACLocRef]() // Top value AND Top def-sites: nothing to specialise on
	assert.False(t, isAmbiguousJump(jumpOpWithDest(dest)))
}

func TestIsAmbiguousJumpTopValueBottomDefSitesIsAmbiguous(t *testing.T) {
	dest := NewTopVariable("d") // DefSites defaults to Bottom, not Top
	assert.True(t, isAmbiguousJump(jumpOpWithDest(dest)))
}

func TestIsAmbiguousJumpMultipleDefSitesIsAmbiguous(t *testing.T) {
	dest := NewTopVariable("d")
	dest.DefSites = SubsetOf(TACLocRef{Pc: 1}, TACLocRef{Pc: 2})
	assert.True(t, isAmbiguousJump(jumpOpWithDest(dest)))
}

func TestFindClonePathStopsAtConfluence(t *testing.T) {
	g := NewTACGraph()
	confluence := newBareBlock(0)
	mid := newBareBlock(1)
	leaf := newBareBlock(2)
	other1 := newBareBlock(3)
	other2 := newBareBlock(4)
	g.AddBlock(confluence)
	g.AddBlock(mid)
	g.AddBlock(leaf)
	g.AddBlock(other1)
	g.AddBlock(other2)
	g.AddEdge(confluence, mid)
	g.AddEdge(other1, confluence)
	g.AddEdge(other2, confluence)
	g.AddEdge(mid, leaf)

	// confluence has two preds, so the walk back from leaf stops there —
	// but "stops at" means confluence is still the last element collected,
	// since it's the first ancestor (inclusive) whose pred count isn't 1.
	path, conf, ok := findClonePath(leaf)
	assert.True(t, ok)
	assert.Same(t, confluence, conf)
	assert.Equal(t, []*TACBlock{leaf, mid, confluence}, path)
}

func TestFindClonePathRejectsNoPredConfluence(t *testing.T) {
	g := NewTACGraph()
	root := newBareBlock(0)
	g.AddBlock(root)
	_, _, ok := findClonePath(root)
	assert.False(t, ok)
}

func TestFindClonePathRejectsCycle(t *testing.T) {
	g := NewTACGraph()
	a := newBareBlock(0)
	b := newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddEdge(a, b)
	g.AddEdge(b, a)

	_, _, ok := findClonePath(a)
	assert.False(t, ok)
}

func TestSplitAndCloneDuplicatesPathPerCaller(t *testing.T) {
	g := NewTACGraph()
	caller1 := newBareBlock(0)
	caller2 := newBareBlock(1)
	fn := newBareBlock(2)
	g.AddBlock(caller1)
	g.AddBlock(caller2)
	g.AddBlock(fn)
	g.AddEdge(caller1, fn)
	g.AddEdge(caller2, fn)

	skip := map[*TACBlock]bool{}
	ok := splitAndClone(g, fn, skip)
	assert.True(t, ok)

	assert.Equal(t, 4, len(g.Blocks)) // caller1, caller2, clone-of-fn x2
	assert.Len(t, caller1.Succs, 1)
	assert.Len(t, caller2.Succs, 1)
	assert.NotSame(t, caller1.Succs[0], caller2.Succs[0])
	assert.Equal(t, fn.Entry, caller1.Succs[0].Entry)
}

func TestSplitAndCloneRecordsConfluenceSuccessorsForRestoration(t *testing.T) {
	g := NewTACGraph()
	caller1 := newBareBlock(0)
	caller2 := newBareBlock(1)
	fn := newBareBlock(2)
	extra := newBareBlock(3)
	g.AddBlock(caller1)
	g.AddBlock(caller2)
	g.AddBlock(fn)
	g.AddBlock(extra)
	g.AddEdge(caller1, fn)
	g.AddEdge(caller2, fn)
	g.AddEdge(fn, extra) // fn's other successor, not part of the clone path

	ok := splitAndClone(g, fn, map[*TACBlock]bool{})
	assert.True(t, ok)

	// cloning doesn't carry Succs along, so the clones don't reach extra yet
	clones := g.GetBlocksByPc(fn.Entry)
	assert.Len(t, clones, 2)
	for _, c := range clones {
		assert.NotContains(t, c.Succs, extra)
	}

	changed := AddMissingSplitEdges(g)
	assert.True(t, changed)
	for _, c := range clones {
		assert.Contains(t, c.Succs, extra)
	}
}

func TestSplitAndCloneRejectsSinglePredConfluence(t *testing.T) {
	g := NewTACGraph()
	a := newBareBlock(0)
	b := newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddEdge(a, b)

	ok := splitAndClone(g, b, map[*TACBlock]bool{})
	assert.False(t, ok)
	assert.Len(t, g.Blocks, 2) // untouched
}

func TestMergeDuplicateBlocksFoldsSameEntrySameNeighbours(t *testing.T) {
	prog, err := asm.DisasmHex("0x00005b", false) // STOP, STOP, JUMPDEST at pc 2
	assert.NoError(t, err)

	jumpToSucc := func() *TACOp {
		return &TACOp{PcVal: 1, Op: opcodes.Op(vm.JUMP), ArgsVal: []*TACArg{NewVarArg(NewConstVariable("d", uint256.NewInt(2)))}}
	}

	g := NewTACGraph()
	g.Program = prog
	pred := newBareBlock(0)
	dupA := &TACBlock{Entry: 1, Exit: 1, TacOps: []*TACOp{jumpToSucc()}}
	dupB := &TACBlock{Entry: 1, Exit: 1, TacOps: []*TACOp{jumpToSucc()}}
	succ := newBareBlock(2)
	g.AddBlock(pred)
	g.AddBlock(dupA)
	g.AddBlock(dupB)
	g.AddBlock(succ)
	g.AddEdge(pred, dupA)
	g.AddEdge(pred, dupB)
	g.AddEdge(dupA, succ)
	g.AddEdge(dupB, succ)

	settings := DefaultSettings()
	changed := MergeDuplicateBlocks(g, false, false, settings)
	assert.True(t, changed)
	assert.Len(t, g.GetBlocksByPc(1), 1)
	assert.Contains(t, pred.Succs, g.GetBlocksByPc(1)[0])
	assert.Contains(t, succ.Preds, g.GetBlocksByPc(1)[0])
}

func TestMergeDuplicateBlocksLeavesSingletonsAlone(t *testing.T) {
	g := NewTACGraph()
	a := newBareBlock(0)
	b := newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	g.Program = destProgram(t)
	changed := MergeDuplicateBlocks(g, false, false, DefaultSettings())
	assert.False(t, changed)
	assert.Len(t, g.Blocks, 2)
}

func TestMergeContiguousConcatenatesOpsAndRewiresEdges(t *testing.T) {
	g := NewTACGraph()
	pred := &TACBlock{Entry: 0, Exit: 0, TacOps: []*TACOp{{PcVal: 0}}, Delta: &DeltaStack{}}
	succ := &TACBlock{Entry: 1, Exit: 1, TacOps: []*TACOp{{PcVal: 1}}, Delta: &DeltaStack{}}
	before := newBareBlock(10)
	after := newBareBlock(11)
	g.AddBlock(pred)
	g.AddBlock(succ)
	g.AddBlock(before)
	g.AddBlock(after)
	g.AddEdge(before, pred)
	g.AddEdge(succ, after)

	merged := MergeContiguous(g, pred, succ)
	assert.Equal(t, uint64(0), merged.Entry)
	assert.Equal(t, uint64(1), merged.Exit)
	assert.Len(t, merged.TacOps, 2)
	assert.Contains(t, before.Succs, merged)
	assert.Contains(t, after.Preds, merged)
}

func TestMergeUnreachableBlocksFoldsContiguousIsolatedRun(t *testing.T) {
	g := NewTACGraph()
	root := newBareBlock(0)
	g.AddBlock(root)

	iso1 := &TACBlock{Entry: 5, Exit: 5, TacOps: []*TACOp{{PcVal: 5}}, Delta: &DeltaStack{}}
	iso2 := &TACBlock{Entry: 6, Exit: 6, TacOps: []*TACOp{{PcVal: 6}}, Delta: &DeltaStack{}}
	g.AddBlock(iso1)
	g.AddBlock(iso2)

	merged := MergeUnreachableBlocks(g, []uint64{0})
	assert.Len(t, merged, 1)
	assert.Len(t, merged[0], 2)
	assert.Len(t, g.GetBlocksByPc(5), 1)
}

func TestMergeUnreachableBlocksIgnoresNonContiguous(t *testing.T) {
	g := NewTACGraph()
	root := newBareBlock(0)
	g.AddBlock(root)
	iso1 := &TACBlock{Entry: 5, Exit: 5, TacOps: []*TACOp{{PcVal: 5}}, Delta: &DeltaStack{}}
	iso2 := &TACBlock{Entry: 20, Exit: 20, TacOps: []*TACOp{{PcVal: 20}}, Delta: &DeltaStack{}}
	g.AddBlock(iso1)
	g.AddBlock(iso2)

	merged := MergeUnreachableBlocks(g, []uint64{0})
	assert.Empty(t, merged)
	assert.Len(t, g.Blocks, 3)
}

func TestPropVarsBetweenBlocksRenamesSingletonDefSite(t *testing.T) {
	defBlock := newBareBlock(0)
	produced := NewConstVariable("V1", uint256.NewInt(7))
	defOp := &TACOp{PcVal: 0, Lhs: produced, block: defBlock}
	defBlock.TacOps = []*TACOp{defOp}

	slot := NewConstVariable("V1", uint256.NewInt(7))
	slot.DefSites = SubsetOf(TACLocRef{Block: defBlock, Pc: 0})

	user := newBareBlock(1)
	user.EntryStack = NewVariableStack(DefaultMaxStackSize)
	user.EntryStack.Push(slot)
	usage := &TACArg{Var: slot}
	user.TacOps = []*TACOp{{PcVal: 1, ArgsVal: []*TACArg{usage}}}

	g := NewTACGraph()
	g.AddBlock(defBlock)
	g.AddBlock(user)

	PropVarsBetweenBlocks(g)
	assert.Same(t, produced, user.TacOps[0].ArgsVal[0].Var)
}

func TestMakeStackNamesUniqueDisambiguatesDistinctVarsSameName(t *testing.T) {
	g := NewTACGraph()
	b := newBareBlock(0)
	v1 := NewConstVariable("x", uint256.NewInt(1))
	v2 := NewConstVariable("x", uint256.NewInt(2))
	b.EntryStack = NewVariableStack(DefaultMaxStackSize)
	b.EntryStack.Push(v1)
	b.EntryStack.Push(v2)
	g.AddBlock(b)

	MakeStackNamesUnique(g)
	assert.NotEqual(t, v1.Name, v2.Name)
}
