package evmdecomp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func newBareBlock(entry uint64) *TACBlock {
	return &TACBlock{Entry: entry, Exit: entry, TacOps: []*TACOp{{PcVal: entry, Op: 0}}}
}

func TestAddEdgeKeepsPredSuccSymmetric(t *testing.T) {
	g := NewTACGraph()
	a, b := newBareBlock(0), newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)

	g.AddEdge(a, b)
	assert.True(t, g.HasEdge(a, b))
	assert.Contains(t, a.Succs, b)
	assert.Contains(t, b.Preds, a)
}

func TestAddEdgeIsIdempotent(t *testing.T) {
	g := NewTACGraph()
	a, b := newBareBlock(0), newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddEdge(a, b)
	g.AddEdge(a, b)
	assert.Len(t, a.Succs, 1)
	assert.Len(t, b.Preds, 1)
}

func TestRemoveEdgeKeepsSymmetric(t *testing.T) {
	g := NewTACGraph()
	a, b := newBareBlock(0), newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddEdge(a, b)
	g.RemoveEdge(a, b)
	assert.False(t, g.HasEdge(a, b))
	assert.Empty(t, a.Succs)
	assert.Empty(t, b.Preds)
}

func TestRemoveBlockDisconnectsAllNeighbours(t *testing.T) {
	g := NewTACGraph()
	a, b, c := newBareBlock(0), newBareBlock(1), newBareBlock(2)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddBlock(c)
	g.AddEdge(a, b)
	g.AddEdge(b, c)

	g.RemoveBlock(b)
	assert.Empty(t, a.Succs)
	assert.Empty(t, c.Preds)
	assert.NotContains(t, g.Blocks, b)
	_, ok := g.GetBlockByIdent(b.Ident())
	assert.False(t, ok)
}

func TestRemoveBlockClearsRoot(t *testing.T) {
	g := NewTACGraph()
	a := newBareBlock(0)
	g.AddBlock(a)
	assert.Same(t, a, g.Root)
	g.RemoveBlock(a)
	assert.Nil(t, g.Root)
}

func TestTransitiveClosureAndRemoveUnreachable(t *testing.T) {
	g := NewTACGraph()
	a, b, c := newBareBlock(0), newBareBlock(1), newBareBlock(2)
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddBlock(c)
	g.AddEdge(a, b)

	closure := g.TransitiveClosure([]uint64{0})
	assert.True(t, closure[a])
	assert.True(t, closure[b])
	assert.False(t, closure[c])

	removed := g.RemoveUnreachableBlocks([]uint64{0})
	assert.Equal(t, []*TACBlock{c}, removed)
	assert.Len(t, g.Blocks, 2)
}

func TestRecalcPredsRebuildsFromSuccs(t *testing.T) {
	g := NewTACGraph()
	a, b := newBareBlock(0), newBareBlock(1)
	g.AddBlock(a)
	g.AddBlock(b)
	a.Succs = append(a.Succs, b)
	b.Preds = nil // intentionally stale
	g.RecalcPreds()
	assert.Contains(t, b.Preds, a)
}

func TestSortedTraversalOrdersByEntryThenSuffix(t *testing.T) {
	g := NewTACGraph()
	b1 := newBareBlock(10)
	b0 := newBareBlock(5)
	g.AddBlock(b1)
	g.AddBlock(b0)
	out := g.SortedTraversal()
	assert.Equal(t, []*TACBlock{b0, b1}, out)
}

func TestHasUnresolvedJumpAggregatesOverBlocks(t *testing.T) {
	g := NewTACGraph()
	a := newBareBlock(0)
	g.AddBlock(a)
	assert.False(t, g.HasUnresolvedJump())
	a.HasUnresolvedJump = true
	assert.True(t, g.HasUnresolvedJump())
}
