package evmdecomp

import (
	"testing"

	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/stretchr/testify/assert"
)

func TestSplitEVMBlocksOnJumpdestAndJump(t *testing.T) {
	prog, err := asm.DisasmHex("0x6003565b00", false) // PUSH1 3, JUMP, JUMPDEST, STOP
	assert.NoError(t, err)

	blocks := SplitEVMBlocks(prog)
	assert.Len(t, blocks, 2)
	assert.Equal(t, uint64(0), blocks[0].Entry)
	assert.Equal(t, uint64(2), blocks[0].Exit)
	assert.Equal(t, uint64(3), blocks[1].Entry)
	assert.Equal(t, uint64(4), blocks[1].Exit)
}

func TestDestackifyPushProducesConstAssign(t *testing.T) {
	prog, err := asm.DisasmHex("0x600300", false) // PUSH1 3, STOP
	assert.NoError(t, err)
	blocks := SplitEVMBlocks(prog)
	assert.Len(t, blocks, 1)

	tb := Destackify(blocks[0])
	assert.Len(t, tb.TacOps, 2)
	pushOp := tb.TacOps[0]
	assert.True(t, pushOp.IsAssign())
	v, ok := pushOp.Lhs.ConstValue()
	assert.True(t, ok)
	assert.EqualValues(t, 3, v.Uint64())

	assert.Equal(t, 0, tb.Delta.EmptyPops)
	// STOP pops nothing, so the pushed constant is still a net push for
	// the block (it simply isn't consumed by anything downstream).
	assert.Len(t, tb.Delta.Pushes, 1)
	assert.False(t, tb.Delta.Pushes[0].IsStackRef())
}

func TestDestackifyPopBelowLocalBottomRecordsEmptyPop(t *testing.T) {
	prog, err := asm.DisasmHex("0x50", false) // POP, with nothing pushed first
	assert.NoError(t, err)
	blocks := SplitEVMBlocks(prog)
	tb := Destackify(blocks[0])
	assert.Equal(t, 1, tb.Delta.EmptyPops)
	assert.Len(t, tb.Delta.Pushes, 0)
}

func TestDestackifyDupPastBottomLeavesStackRefInPushes(t *testing.T) {
	prog, err := asm.DisasmHex("0x80", false) // DUP1 with an empty local stack
	assert.NoError(t, err)
	blocks := SplitEVMBlocks(prog)
	tb := Destackify(blocks[0])

	// DUP1 on a never-before-seen slot: zero pops, one net push that
	// references entry-stack depth 0 (the slot it duplicated).
	assert.Equal(t, 0, tb.Delta.EmptyPops)
	assert.Len(t, tb.Delta.Pushes, 1)
	assert.True(t, tb.Delta.Pushes[0].IsStackRef())
	assert.Equal(t, 0, tb.Delta.Pushes[0].Depth())
}

func TestDestackifyEmptyBlockGetsSyntheticNop(t *testing.T) {
	prog, err := asm.DisasmHex("0x50", false) // POP alone: emits no TAC op of its own
	assert.NoError(t, err)
	blocks := SplitEVMBlocks(prog)
	tb := Destackify(blocks[0])
	assert.Len(t, tb.TacOps, 1)
	assert.False(t, tb.TacOps[0].IsAssign())
	assert.Equal(t, opcodes.NOP, tb.TacOps[0].Op)
}

func TestDestackifyMstoreTakesTwoArgsNoAssign(t *testing.T) {
	prog, err := asm.DisasmHex("0x6001600252", false) // PUSH1 1, PUSH1 2, MSTORE
	assert.NoError(t, err)
	blocks := SplitEVMBlocks(prog)
	tb := Destackify(blocks[0])

	mstore := tb.TacOps[len(tb.TacOps)-1]
	assert.False(t, mstore.IsAssign())
	assert.Len(t, mstore.Args(), 2)
}
