package evmdecomp

import (
	"fmt"
	"strings"

	"github.com/aj3423/evmdecomp/opcodes"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/vm"
)

// TACArg is either a concrete Variable or a pending stack-depth reference
// (what the spec calls a MetaVariable stack reference). Both present a
// single Value() view so downstream code never needs to branch on which.
//
// A stack reference keeps its depth forever (StackDepth != nil), even
// after it has been resolved once: the entry stack can still get more
// precise across dataflow iterations, so hook_up_stack_vars re-resolves it
// every time rather than freezing the first answer.
type TACArg struct {
	Var        *Variable
	StackDepth *int
}

func NewVarArg(v *Variable) *TACArg { return &TACArg{Var: v} }

func NewStackArg(depth int) *TACArg {
	mv := NewMetaVariable(depth)
	d := depth
	return &TACArg{Var: &mv.Variable, StackDepth: &d}
}

func (a *TACArg) Value() *Variable  { return a.Var }
func (a *TACArg) IsStackRef() bool  { return a.StackDepth != nil }
func (a *TACArg) Depth() int        { return *a.StackDepth }
func (a *TACArg) String() string    { return a.Var.String() }

// locString renders a memory/storage location argument (MLoc32/SLoc32) as a
// common.Hash when it's a known constant, the same conversion go-ethereum's
// own interpreter uses for a slot key (see core/vm's TLOAD/TSTORE handling).
// An unresolved location falls back to the variable's placeholder name.
func locString(a *TACArg) string {
	if c, ok := a.Value().ConstValue(); ok {
		return common.Hash(c.Bytes32()).Hex()
	}
	return a.String()
}

// TACOp is an opcode with its ordered argument list and its original pc,
// optionally naming a destination Variable (the "assign" form,
// TACAssignOp). The back-pointer to the owning block is an invariant that
// must be refreshed after any block copy or merge (see resetOpRefs).
type TACOp struct {
	PcVal     uint64
	Op        opcodes.Op
	ArgsVal   []*TACArg
	Lhs       *Variable // nil for a plain (non-assign) op
	LogTopics int       // topic count, meaningful only when Op == opcodes.LOG
	block     *TACBlock
}

func (o *TACOp) Pc() uint64       { return o.PcVal }
func (o *TACOp) Args() []*TACArg  { return o.ArgsVal }
func (o *TACOp) Block() *TACBlock { return o.block }
func (o *TACOp) IsAssign() bool   { return o.Lhs != nil }

func (o *TACOp) String() string {
	args := make([]string, len(o.ArgsVal))
	for i, a := range o.ArgsVal {
		args[i] = a.String()
	}

	switch o.Op {
	case opcodes.Op(vm.MLOAD):
		return fmt.Sprintf("%x: %s = M[%s]", o.PcVal, o.Lhs.Name, locString(o.ArgsVal[0]))
	case opcodes.Op(vm.SLOAD):
		return fmt.Sprintf("%x: %s = S[%s]", o.PcVal, o.Lhs.Name, locString(o.ArgsVal[0]))
	case opcodes.Op(vm.MSTORE):
		return fmt.Sprintf("%x: M[%s] = %s", o.PcVal, locString(o.ArgsVal[0]), args[1])
	case opcodes.Op(vm.MSTORE8):
		return fmt.Sprintf("%x: M8[%s] = %s", o.PcVal, locString(o.ArgsVal[0]), args[1])
	case opcodes.Op(vm.SSTORE):
		return fmt.Sprintf("%x: S[%s] = %s", o.PcVal, locString(o.ArgsVal[0]), args[1])
	}

	argStr := strings.Join(args, " ")
	if o.IsAssign() {
		return fmt.Sprintf("%x: %s = %s %s", o.PcVal, o.Lhs.Name, o.Op.String(), argStr)
	}
	return fmt.Sprintf("%x: %s %s", o.PcVal, o.Op.String(), argStr)
}
