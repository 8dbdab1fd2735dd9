package evmdecomp

import (
	"github.com/aj3423/evmdecomp/asm"
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/ethereum/go-ethereum/core/vm"
)

// SplitEVMBlocks partitions a disassembled Program into EVM basic blocks:
// a JUMPDEST always starts a new block, and a JUMP/JUMPI/halting op always
// ends the current one.
func SplitEVMBlocks(prog *asm.Program) []*EVMBlock {
	var blocks []*EVMBlock
	var cur *EVMBlock

	for _, ev := range prog.Ops {
		if ev.Op.IsJumpDest() && cur != nil {
			blocks = append(blocks, cur)
			cur = nil
		}
		if cur == nil {
			cur = &EVMBlock{Entry: ev.Pc}
		}
		cur.Ops = append(cur.Ops, ev)
		cur.Exit = ev.Pc
		if ev.Op.IsJump() || ev.Op.Halts() {
			blocks = append(blocks, cur)
			cur = nil
		}
	}
	if cur != nil {
		blocks = append(blocks, cur)
	}
	return blocks
}

// DeltaStack is a block's symbolic stack effect, computed once by
// Destackify and replayed by build_exit_stack on every dataflow iteration:
// pop EmptyPops items off whatever entry_stack turns out to be, then push
// Pushes bottom to top, substituting any stack-depth reference for the
// entry stack's actual slot at that depth.
type DeltaStack struct {
	EmptyPops int
	Pushes    []*TACArg
}

// Destackify runs a symbolic execution of an EVM block's ops against a
// fresh, initially-empty local stack, producing its ordered TAC ops and
// net DeltaStack. It never consults real predecessor state: deltas are
// pc-range-local and reusable across dataflow iterations, per spec.md §4.4.
func Destackify(b *EVMBlock) *TACBlock {
	tb := &TACBlock{Entry: b.Entry, Exit: b.Exit, EvmOps: b.Ops}
	local := NewVariableStack(DefaultMaxStackSize)

	emit := func(op *TACOp) {
		op.block = tb
		tb.TacOps = append(tb.TacOps, op)
	}

	for _, ev := range b.Ops {
		op := ev.Op

		switch {
		case op.IsPush():
			v := NewConstVariable(freshName(), ev.Immediate)
			v.DefSites = SubsetOf(TACLocRef{Block: tb, Pc: ev.Pc})
			emit(&TACOp{PcVal: ev.Pc, Op: opcodes.CONST, ArgsVal: []*TACArg{NewVarArg(v)}, Lhs: v})
			local.Push(v)
			continue
		case op.IsDup():
			local.Dup(op.DupDepth())
			continue
		case op.IsSwap():
			local.Swap(op.SwapDepth())
			continue
		case op == opcodes.Op(vm.POP):
			local.Pop()
			continue
		}

		meta, known := opcodes.Lookup(op)
		nIn := 0
		if known {
			nIn = int(meta.NStackIn)
		}
		if n := op.LogTopicCount(); n >= 0 {
			nIn = 2 + n
		}

		args := make([]*TACArg, nIn)
		for i := 0; i < nIn; i++ {
			args[i] = local.PopArg()
		}

		switch {
		case op.IsLog():
			emit(&TACOp{PcVal: ev.Pc, Op: opcodes.LOG, ArgsVal: args, LogTopics: op.LogTopicCount()})
			continue

		case op == opcodes.Op(vm.MLOAD) || op == opcodes.Op(vm.SLOAD):
			v := NewTopVariable(freshName())
			v.DefSites = SubsetOf(TACLocRef{Block: tb, Pc: ev.Pc})
			emit(&TACOp{PcVal: ev.Pc, Op: op, ArgsVal: args, Lhs: v})
			local.Push(v)
			continue

		case op == opcodes.Op(vm.MSTORE) || op == opcodes.Op(vm.MSTORE8) || op == opcodes.Op(vm.SSTORE):
			emit(&TACOp{PcVal: ev.Pc, Op: op, ArgsVal: args})
			continue
		}

		nOut := 0
		if known {
			nOut = int(meta.NStackOut)
		}
		if nOut >= 1 {
			v := NewTopVariable(freshName())
			v.DefSites = SubsetOf(TACLocRef{Block: tb, Pc: ev.Pc})
			emit(&TACOp{PcVal: ev.Pc, Op: op, ArgsVal: args, Lhs: v})
			local.Push(v)
		} else {
			emit(&TACOp{PcVal: ev.Pc, Op: op, ArgsVal: args})
		}
	}

	if len(tb.TacOps) == 0 {
		emit(&TACOp{PcVal: b.Entry, Op: opcodes.NOP})
	}

	tb.Delta = &DeltaStack{
		EmptyPops: local.EmptyPops,
		Pushes:    pushListFrom(local.Items()),
	}
	return tb
}

// pushListFrom converts the residual local stack (bottom at index 0, top at
// the end) into the TACArg list build_exit_stack will replay, recovering
// any leftover stack-depth references a DUP/SWAP synthesized without going
// through VariableStack.PopArg (e.g. "DUP3" on a stack that never had 3
// concrete items).
func pushListFrom(items []*Variable) []*TACArg {
	out := make([]*TACArg, len(items))
	for i, v := range items {
		if depth, ok := metaPayload(v); ok {
			out[i] = NewStackArg(depth)
		} else {
			out[i] = NewVarArg(v)
		}
	}
	return out
}
