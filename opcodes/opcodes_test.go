package opcodes

import (
	"testing"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/stretchr/testify/assert"
)

func TestLookupStackShape(t *testing.T) {
	meta, ok := Lookup(Op(vm.ADD))
	assert.True(t, ok)
	assert.EqualValues(t, 2, meta.NStackIn)
	assert.EqualValues(t, 1, meta.NStackOut)

	meta, ok = Lookup(Op(vm.JUMPI))
	assert.True(t, ok)
	assert.EqualValues(t, 2, meta.NStackIn)
	assert.EqualValues(t, 0, meta.NStackOut)
}

func TestLookupUnknownOpcode(t *testing.T) {
	_, ok := Lookup(Op(0x0c)) // unassigned byte in the 256-byte space
	assert.False(t, ok)
}

func TestPushDupSwapClassification(t *testing.T) {
	assert.True(t, Op(vm.PUSH1).IsPush())
	assert.True(t, Op(vm.PUSH32).IsPush())
	assert.False(t, Op(vm.PUSH1-1).IsPush())

	assert.Equal(t, 1, Op(vm.DUP1).DupDepth())
	assert.Equal(t, 16, Op(vm.DUP16).DupDepth())
	assert.Equal(t, 0, Op(vm.ADD).DupDepth())

	assert.Equal(t, 1, Op(vm.SWAP1).SwapDepth())
	assert.Equal(t, 16, Op(vm.SWAP16).SwapDepth())
}

func TestPushWidth(t *testing.T) {
	assert.Equal(t, 1, Op(vm.PUSH1).PushWidth())
	assert.Equal(t, 32, Op(vm.PUSH32).PushWidth())
	assert.Equal(t, 0, Op(vm.ADD).PushWidth())
}

func TestLogTopicCount(t *testing.T) {
	assert.Equal(t, 0, Op(vm.LOG0).LogTopicCount())
	assert.Equal(t, 4, Op(vm.LOG4).LogTopicCount())
	assert.Equal(t, -1, Op(vm.ADD).LogTopicCount())
}

func TestHalts(t *testing.T) {
	assert.True(t, Op(vm.STOP).Halts())
	assert.True(t, Op(vm.REVERT).Halts())
	assert.True(t, THROW.Halts())
	// THROWI keeps JUMPI's always-live false-condition fallthrough
	assert.False(t, THROWI.Halts())
	assert.False(t, Op(vm.JUMP).Halts())
	assert.False(t, Op(vm.ADD).Halts())
}

func TestSyntheticOpString(t *testing.T) {
	assert.Equal(t, "CONST", CONST.String())
	assert.Equal(t, "THROW", THROW.String())
	assert.True(t, CONST.IsSynthetic())
	assert.False(t, Op(vm.ADD).IsSynthetic())
}

func TestIsJumpDest(t *testing.T) {
	assert.True(t, Op(vm.JUMPDEST).IsJumpDest())
	assert.False(t, Op(vm.JUMP).IsJumpDest())
}
