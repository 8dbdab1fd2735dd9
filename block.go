package evmdecomp

import (
	"fmt"
	"strings"

	"github.com/aj3423/evmdecomp/asm"
)

// EVMBlock is a basic block at the raw-bytecode level: a contiguous run of
// EVMOps ending at a jump, a halt, or the instruction before a JUMPDEST.
// It is the destackifier's input; TACBlock is its output.
type EVMBlock struct {
	Entry uint64
	Exit  uint64
	Ops   []*asm.EVMOp
}

func (b *EVMBlock) String() string {
	var sb strings.Builder
	for _, o := range b.Ops {
		sb.WriteString(o.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// TACBlock is a basic block of three-address-code ops, the unit the
// dataflow driver iterates over. Entry/Exit are the underlying EVMBlock's pc
// range; IdentSuffix distinguishes cloned copies of the same source range
// (procedure cloning, duplicate merging) that still share an Entry pc.
//
// EntryStack/ExitStack are recomputed every dataflow iteration until they
// stabilise; SymbolicOverflow/HasUnresolvedJump are sticky flags the driver
// and jump-inference code read to decide whether another iteration, a
// clamp, or a THROW synthesis is warranted.
type TACBlock struct {
	Entry      uint64
	Exit       uint64
	IdentSuffix string

	EvmOps []*asm.EVMOp
	TacOps []*TACOp

	Delta *DeltaStack // symbolic stack effect: pops below entry plus net pushes

	EntryStack *VariableStack
	ExitStack  *VariableStack

	SymbolicOverflow bool
	HasUnresolvedJump bool

	Preds []*TACBlock
	Succs []*TACBlock

	Graph *TACGraph
}

// Ident is the block's display/lookup identifier: its entry pc in hex,
// plus a clone suffix when this block is a copy produced by procedure
// cloning or duplicate merging (e.g. "0x12a_0x5" for the copy of the block
// entered at pc 0x12a that procedure cloning made for the caller 0x5, or
// "0x12a_0" for the block duplicate merging built from group 0).
func (b *TACBlock) Ident() string {
	if b.IdentSuffix == "" {
		return fmt.Sprintf("0x%x", b.Entry)
	}
	return fmt.Sprintf("0x%x_%s", b.Entry, b.IdentSuffix)
}

// resetOpRefs repoints every owned TACOp's private block back-pointer at b.
// Needed after Clone, after merge_duplicate_blocks reassigns ops between
// blocks, or after any operation that copies a []*TACOp slice into a new
// TACBlock value.
func (b *TACBlock) resetOpRefs() {
	for _, op := range b.TacOps {
		op.block = b
	}
}

// Clone makes an independent copy of b: same pc range and op bodies (op
// values are copied, not aliased, since TACOp.block must point at the
// clone), empty Preds/Succs (the caller wires those), and stacks cloned
// if present. IdentSuffix is copied unchanged; callers extend or replace it
// to tell the copy apart from the original.
func (b *TACBlock) Clone() *TACBlock {
	out := &TACBlock{
		Entry:             b.Entry,
		Exit:              b.Exit,
		IdentSuffix:       b.IdentSuffix,
		EvmOps:            b.EvmOps,
		Delta:             b.Delta,
		SymbolicOverflow:  b.SymbolicOverflow,
		HasUnresolvedJump: b.HasUnresolvedJump,
		Graph:             b.Graph,
	}
	out.TacOps = make([]*TACOp, len(b.TacOps))
	for i, op := range b.TacOps {
		cp := *op
		out.TacOps[i] = &cp
	}
	out.resetOpRefs()
	if b.EntryStack != nil {
		out.EntryStack = b.EntryStack.Clone()
	}
	if b.ExitStack != nil {
		out.ExitStack = b.ExitStack.Clone()
	}
	return out
}

// LastOp returns the block's final TAC op, or nil if the block is empty
// (which should not happen post-destackify: an empty EVM block still gets
// a synthesized NOP, see destackify.go).
func (b *TACBlock) LastOp() *TACOp {
	if len(b.TacOps) == 0 {
		return nil
	}
	return b.TacOps[len(b.TacOps)-1]
}

func (b *TACBlock) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "---- block %s ----\n", b.Ident())
	for _, op := range b.TacOps {
		sb.WriteString(op.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// addPred/addSucc are idempotent: a given edge never appears twice in
// either slice, mirroring TACGraph.AddEdge's symmetry invariant.
func (b *TACBlock) addPred(p *TACBlock) {
	for _, x := range b.Preds {
		if x == p {
			return
		}
	}
	b.Preds = append(b.Preds, p)
}

func (b *TACBlock) addSucc(s *TACBlock) {
	for _, x := range b.Succs {
		if x == s {
			return
		}
	}
	b.Succs = append(b.Succs, s)
}

func (b *TACBlock) removePred(p *TACBlock) {
	for i, x := range b.Preds {
		if x == p {
			b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
			return
		}
	}
}

func (b *TACBlock) removeSucc(s *TACBlock) {
	for i, x := range b.Succs {
		if x == s {
			b.Succs = append(b.Succs[:i], b.Succs[i+1:]...)
			return
		}
	}
}
