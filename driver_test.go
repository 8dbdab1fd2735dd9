package evmdecomp

import (
	"testing"

	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func analyseHex(t *testing.T, hexStr string) *TACGraph {
	prog, err := asm.DisasmHex(hexStr, true)
	assert.NoError(t, err)
	g := BuildGraph(prog)
	out, _, err := Analyse(g, DefaultSettings(), nil)
	assert.NoError(t, err)
	return out
}

func TestAnalyseResolvesUnconditionalJump(t *testing.T) {
	// PUSH1 3; JUMP; JUMPDEST; STOP
	g := analyseHex(t, "0x6003565b00")
	block1 := g.GetBlocksByPc(0)[0]
	assert.Len(t, block1.Succs, 1)
	assert.Equal(t, uint64(3), block1.Succs[0].Entry)
}

func TestAnalyseMutatesProvablyTrueJumpiToJump(t *testing.T) {
	// PUSH1 1 (cond); PUSH1 6 (dest); JUMPI; STOP (dead fallthrough); JUMPDEST; STOP
	g := analyseHex(t, "0x6001600657005b00")
	block1 := g.GetBlocksByPc(0)[0]
	assert.Equal(t, opcodes.Op(vm.JUMP), block1.LastOp().Op)
	assert.Len(t, block1.Succs, 1)
	assert.Equal(t, uint64(6), block1.Succs[0].Entry)
	// the unreachable fallthrough block at pc 5 was pruned
	assert.Empty(t, g.GetBlocksByPc(5))
}

func TestAnalyseMutatesProvablyFalseJumpiToFallthrough(t *testing.T) {
	// PUSH1 0 (cond); PUSH1 6 (dest); JUMPI; STOP (live fallthrough); JUMPDEST; STOP
	g := analyseHex(t, "0x6000600657005b00")
	block1 := g.GetBlocksByPc(0)[0]
	assert.Len(t, block1.Succs, 1)
	assert.Equal(t, uint64(5), block1.Succs[0].Entry)
	// the now-unreachable JUMPDEST target at pc 6 was pruned
	assert.Empty(t, g.GetBlocksByPc(6))
}

func TestAnalyseThrowsOnInvalidJumpDest(t *testing.T) {
	// PUSH1 99; JUMP -- 99 is never a valid JUMPDEST in this 3-byte program
	g := analyseHex(t, "0x606356")
	block1 := g.GetBlocksByPc(0)[0]
	assert.Equal(t, opcodes.THROW, block1.LastOp().Op)
	assert.Empty(t, block1.Succs)
}

func TestWidenStackSlotsCollapsesWidePastThreshold(t *testing.T) {
	acc := NewVariableStack(DefaultMaxStackSize)
	wide := &Variable{Name: "v", Values: SubsetOf(*uint256.NewInt(1), *uint256.NewInt(2), *uint256.NewInt(3))}
	acc.Push(wide)
	widenStackSlots(acc, 2)
	assert.True(t, acc.Peek(0).IsTop())
}

func TestWidenStackSlotsLeavesNarrowSlotsAlone(t *testing.T) {
	acc := NewVariableStack(DefaultMaxStackSize)
	acc.Push(NewConstVariable("v", uint256.NewInt(1)))
	widenStackSlots(acc, 5)
	assert.True(t, acc.Peek(0).IsConst())
}

func TestClampAllStacksSetsMaxSizeToObservedDepth(t *testing.T) {
	g := NewTACGraph()
	b := newBareBlock(0)
	const depth = MinMaxStackSize + 10
	b.EntryStack = NewVariableStack(100)
	for i := 0; i < depth; i++ {
		b.EntryStack.Push(NewConstVariable("x", uint256.NewInt(uint64(i))))
	}
	g.AddBlock(b)

	clampAllStacks(g, MinMaxStackSize)
	assert.Equal(t, depth, b.EntryStack.MaxSize)
}
