package evmdecomp

import (
	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/pkg/errors"
)

// ErrEmptyStackPop is raised by BuildExitStack only when settings.DieOnEmptyPop
// is set; otherwise an empty pop silently synthesizes a fresh MetaVariable.
var ErrEmptyStackPop = errors.New("pop from empty symbolic stack")

// BuildEntryStack joins every predecessor's exit stack, preserves the
// block's prior max_size, and metafies the result so unconstrained slots
// become named placeholders TAC ops can reference. Returns whether the
// entry stack changed from its previous value (the fixed-point signal the
// worklist loop checks).
func BuildEntryStack(b *TACBlock) bool {
	maxSize := DefaultMaxStackSize
	if b.EntryStack != nil {
		maxSize = b.EntryStack.MaxSize
	}

	predExits := make([]*VariableStack, 0, len(b.Preds))
	for _, p := range b.Preds {
		if p.ExitStack != nil {
			predExits = append(predExits, p.ExitStack)
		}
	}

	next := VariableStackJoinAll(predExits, maxSize)
	next.MaxSize = maxSize
	next.Metafy()

	changed := b.EntryStack == nil || !next.Equal(b.EntryStack)
	b.EntryStack = next
	return changed
}

// BuildExitStack replays the block's DeltaStack against a copy of its
// (just-built) entry stack: pop EmptyPops items, then push every net item,
// substituting a stack-depth reference for the entry stack's actual slot
// at that depth. Overflow and empty-pop behaviour are gated by settings.
func BuildExitStack(b *TACBlock, settings *Settings) error {
	entry := b.EntryStack
	if entry == nil {
		entry = NewVariableStack(DefaultMaxStackSize)
	}

	netDelta := len(b.Delta.Pushes) - b.Delta.EmptyPops
	if entry.Len()+netDelta > entry.MaxSize {
		b.SymbolicOverflow = true
		if settings.SkipStackOnOverflow {
			return nil
		}
	} else {
		b.SymbolicOverflow = false
	}

	exit := entry.Clone()
	for i := 0; i < b.Delta.EmptyPops; i++ {
		if settings.DieOnEmptyPop && exit.Len() == 0 {
			return errors.Wrapf(ErrEmptyStackPop, "block %s", b.Ident())
		}
		exit.Pop()
	}
	for _, arg := range b.Delta.Pushes {
		if arg.IsStackRef() {
			exit.Push(entry.Peek(arg.Depth()))
		} else {
			exit.Push(arg.Value())
		}
	}

	b.ExitStack = exit
	return nil
}

// HookUpStackVars re-resolves every TAC argument that still names a stack
// depth (StackDepth != nil) against the block's current entry stack,
// substituting the concrete (or meta) Variable now known to occupy that
// slot. A depth beyond the current entry stack's known range is left
// untouched rather than overwritten with a less-informative placeholder.
func HookUpStackVars(b *TACBlock) {
	if b.EntryStack == nil {
		return
	}
	for _, op := range b.TacOps {
		for _, a := range op.ArgsVal {
			if a.IsStackRef() && a.Depth() < b.EntryStack.Len() {
				a.Var = b.EntryStack.Peek(a.Depth())
			}
		}
	}
}

// ApplyOperations folds constants and propagates values through arithmetic
// ops. CONST ops copy their literal into lhs; an arithmetic op whose
// arguments are all constrained (exactly const, or merely non-Top when
// SetValuedOps is on) gets its lhs replaced by the cartesian-lifted result;
// otherwise an already-constrained lhs is widened to Top rather than left
// stale from a previous, now-invalid, iteration.
func ApplyOperations(b *TACBlock, settings *Settings) {
	for _, op := range b.TacOps {
		if op.Op == opcodes.CONST {
			if len(op.ArgsVal) > 0 && op.Lhs != nil {
				op.Lhs.Values = op.ArgsVal[0].Value().Values
			}
			continue
		}

		if op.Lhs == nil || op.Op.IsSynthetic() {
			continue
		}
		vmOp := vm.OpCode(op.Op)
		if !IsArithmetic(vmOp) {
			continue
		}

		args := make([]*Variable, len(op.ArgsVal))
		allConstrained := true
		for i, a := range op.ArgsVal {
			v := a.Value()
			args[i] = v
			constrained := v.IsConst()
			if settings.SetValuedOps {
				constrained = !v.IsTop()
			}
			allConstrained = allConstrained && constrained
		}

		if allConstrained {
			result := ApplyArithmetic(vmOp, args)
			op.Lhs.Values = result.Values
			op.Lhs.DefSites = SubsetJoin(op.Lhs.DefSites, result.DefSites)
		} else if !op.Lhs.IsTop() {
			op.Lhs.Values = SubsetTop[Element]()
		}
	}
}
