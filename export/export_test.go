package export

import (
	"testing"

	evmdecomp "github.com/aj3423/evmdecomp"
	"github.com/stretchr/testify/assert"
)

func twoBlockGraph() *evmdecomp.TACGraph {
	g := evmdecomp.NewTACGraph()
	a := &evmdecomp.TACBlock{Entry: 0, Exit: 1}
	b := &evmdecomp.TACBlock{Entry: 2, Exit: 2}
	g.AddBlock(a)
	g.AddBlock(b)
	g.AddEdge(a, b)
	return g
}

func TestTextListsBlocksInEntryOrderWithEdges(t *testing.T) {
	g := twoBlockGraph()
	out := Text(g)

	assert.Contains(t, out, "Block 0x0\n")
	assert.Contains(t, out, "[0x0:0x1]\n")
	assert.Contains(t, out, "Successors: [0x2]\n")
	assert.Contains(t, out, "Block 0x2\n")
	assert.Contains(t, out, "Predecessors: [0x0]\n")

	// entry order: 0x0's record precedes 0x2's
	assert.Less(t, indexOf(out, "Block 0x0"), indexOf(out, "Block 0x2"))
}

func TestTextFlagsUnresolvedJump(t *testing.T) {
	g := evmdecomp.NewTACGraph()
	b := &evmdecomp.TACBlock{Entry: 0, Exit: 0, HasUnresolvedJump: true}
	g.AddBlock(b)

	out := Text(g)
	assert.Contains(t, out, "Has unresolved jump.\n")
}

func TestTextRendersEmptyStacksAsBrackets(t *testing.T) {
	g := evmdecomp.NewTACGraph()
	b := &evmdecomp.TACBlock{Entry: 0, Exit: 0}
	g.AddBlock(b)

	out := Text(g)
	assert.Contains(t, out, "Entry stack: []\n")
	assert.Contains(t, out, "Exit stack: []\n")
}

func TestToGraphCollectsNodesAndEdges(t *testing.T) {
	g := twoBlockGraph()
	out := ToGraph(g)

	assert.Equal(t, []string{"0x0", "0x2"}, out.Nodes)
	assert.Equal(t, [][2]string{{"0x0", "0x2"}}, out.Edges)
}

func TestJSONMarshalsGraphShape(t *testing.T) {
	g := twoBlockGraph()
	raw, err := JSON(g)
	assert.NoError(t, err)
	assert.Contains(t, string(raw), `"nodes"`)
	assert.Contains(t, string(raw), `"0x0"`)
	assert.Contains(t, string(raw), `"edges"`)
}

func TestDOTRendersNodesAndEdge(t *testing.T) {
	g := twoBlockGraph()
	out := DOT(g)

	assert.Contains(t, out, "digraph")
	assert.Contains(t, out, `"0x0"`)
	assert.Contains(t, out, `"0x2"`)
	assert.Contains(t, out, "->")
}

func TestDOTFillsUnresolvedJumpBlocks(t *testing.T) {
	g := evmdecomp.NewTACGraph()
	b := &evmdecomp.TACBlock{Entry: 0, Exit: 0, HasUnresolvedJump: true}
	g.AddBlock(b)

	out := DOT(g)
	assert.Contains(t, out, "filled")
	assert.Contains(t, out, "lightyellow")
}

func indexOf(s, substr string) int {
	for i := 0; i+len(substr) <= len(s); i++ {
		if s[i:i+len(substr)] == substr {
			return i
		}
	}
	return -1
}
