// Package opcodes supplies the metadata table the core analysis needs about
// each EVM instruction: its name, how many stack slots it pops/pushes, and
// the handful of category predicates (push/dup/swap/jump/halt/log) the
// destackifier and jump-inference code dispatch on.
//
// It intentionally does not model gas cost or execution semantics: those are
// a declared non-goal of the decompiler core. Where the teacher's
// `opcode.go` paired an `Operation` with a `GasCost` and an `Exec` function,
// this table pairs it with nothing but the stack shape.
package opcodes

import (
	"fmt"

	"github.com/ethereum/go-ethereum/core/vm"
)

// Op identifies an instruction. The low byte range [0x00, 0xff] is the
// standard EVM opcode space (aliased directly from go-ethereum's vm.OpCode).
// Values at and above Synthetic are TAC-only pseudo-instructions introduced
// by the decompiler itself and never appear in raw bytecode.
type Op uint16

const Synthetic Op = 0x100

const (
	// CONST materialises a PUSHed immediate as a standalone assignment.
	CONST Op = Synthetic + iota
	// NOP keeps an otherwise-empty TAC block non-empty and locatable by pc.
	NOP
	// LOG is the generic replacement for LOG0..LOG4, arity carried on the op.
	LOG
	// THROW replaces a JUMP proven to target an invalid destination.
	THROW
	// THROWI replaces a JUMPI proven to target an invalid destination,
	// keeping the condition argument.
	THROWI
)

func FromVM(op vm.OpCode) Op { return Op(op) }

func (o Op) IsSynthetic() bool { return o >= Synthetic }

func (o Op) String() string {
	switch o {
	case CONST:
		return "CONST"
	case NOP:
		return "NOP"
	case LOG:
		return "LOG"
	case THROW:
		return "THROW"
	case THROWI:
		return "THROWI"
	}
	if o.IsSynthetic() {
		return fmt.Sprintf("synthetic(0x%x)", uint16(o))
	}
	return vm.OpCode(o).String()
}

// Meta is the per-opcode metadata record: name plus stack in/out arity.
// PushBytes is nonzero only for PUSH1..PUSH32, giving the width of the
// trailing immediate in the byte stream.
type Meta struct {
	Op        Op
	NStackIn  uint8
	NStackOut uint8
	PushBytes uint8
}

var table = map[Op]*Meta{}

func reg(op vm.OpCode, in, out uint8) {
	table[Op(op)] = &Meta{Op: Op(op), NStackIn: in, NStackOut: out}
}

func init() {
	reg(vm.STOP, 0, 0)
	reg(vm.ADD, 2, 1)
	reg(vm.MUL, 2, 1)
	reg(vm.SUB, 2, 1)
	reg(vm.DIV, 2, 1)
	reg(vm.SDIV, 2, 1)
	reg(vm.MOD, 2, 1)
	reg(vm.SMOD, 2, 1)
	reg(vm.ADDMOD, 3, 1)
	reg(vm.MULMOD, 3, 1)
	reg(vm.EXP, 2, 1)
	reg(vm.SIGNEXTEND, 2, 1)
	reg(vm.LT, 2, 1)
	reg(vm.GT, 2, 1)
	reg(vm.SLT, 2, 1)
	reg(vm.SGT, 2, 1)
	reg(vm.EQ, 2, 1)
	reg(vm.ISZERO, 1, 1)
	reg(vm.AND, 2, 1)
	reg(vm.OR, 2, 1)
	reg(vm.XOR, 2, 1)
	reg(vm.NOT, 1, 1)
	reg(vm.BYTE, 2, 1)
	reg(vm.SHL, 2, 1)
	reg(vm.SHR, 2, 1)
	reg(vm.SAR, 2, 1)
	reg(vm.SHA3, 2, 1)
	reg(vm.ADDRESS, 0, 1)
	reg(vm.BALANCE, 1, 1)
	reg(vm.ORIGIN, 0, 1)
	reg(vm.CALLER, 0, 1)
	reg(vm.CALLVALUE, 0, 1)
	reg(vm.CALLDATALOAD, 1, 1)
	reg(vm.CALLDATASIZE, 0, 1)
	reg(vm.CALLDATACOPY, 3, 0)
	reg(vm.CODESIZE, 0, 1)
	reg(vm.CODECOPY, 3, 0)
	reg(vm.GASPRICE, 0, 1)
	reg(vm.EXTCODESIZE, 1, 1)
	reg(vm.EXTCODECOPY, 4, 0)
	reg(vm.RETURNDATASIZE, 0, 1)
	reg(vm.RETURNDATACOPY, 3, 0)
	reg(vm.EXTCODEHASH, 1, 1)
	reg(vm.BLOCKHASH, 1, 1)
	reg(vm.COINBASE, 0, 1)
	reg(vm.TIMESTAMP, 0, 1)
	reg(vm.NUMBER, 0, 1)
	reg(vm.DIFFICULTY, 0, 1)
	reg(vm.GASLIMIT, 0, 1)
	reg(vm.CHAINID, 0, 1)
	reg(vm.SELFBALANCE, 0, 1)
	reg(vm.BASEFEE, 0, 1)
	reg(vm.POP, 1, 0)
	reg(vm.MLOAD, 1, 1)
	reg(vm.MSTORE, 2, 0)
	reg(vm.MSTORE8, 2, 0)
	reg(vm.SLOAD, 1, 1)
	reg(vm.SSTORE, 2, 0)
	reg(vm.JUMP, 1, 0)
	reg(vm.JUMPI, 2, 0)
	reg(vm.PC, 0, 1)
	reg(vm.MSIZE, 0, 1)
	reg(vm.GAS, 0, 1)
	reg(vm.JUMPDEST, 0, 0)

	for i := 0; i < 32; i++ {
		op := vm.PUSH1 + vm.OpCode(i)
		table[Op(op)] = &Meta{Op: Op(op), NStackIn: 0, NStackOut: 1, PushBytes: uint8(i + 1)}
	}
	for i := 0; i < 16; i++ {
		reg(vm.DUP1+vm.OpCode(i), uint8(i+1), uint8(i+2))
	}
	for i := 0; i < 16; i++ {
		reg(vm.SWAP1+vm.OpCode(i), uint8(i+2), uint8(i+2))
	}
	for n := 0; n < 5; n++ {
		reg(vm.LOG0+vm.OpCode(n), uint8(2+n), 0)
	}

	reg(vm.CREATE, 3, 1)
	reg(vm.CALL, 7, 1)
	reg(vm.CALLCODE, 7, 1)
	reg(vm.RETURN, 2, 0)
	reg(vm.DELEGATECALL, 6, 1)
	reg(vm.CREATE2, 4, 1)
	reg(vm.STATICCALL, 6, 1)
	reg(vm.REVERT, 2, 0)
	reg(vm.INVALID, 0, 0)
	reg(vm.SELFDESTRUCT, 1, 0)

	table[THROW] = &Meta{Op: THROW, NStackIn: 1, NStackOut: 0}
	table[THROWI] = &Meta{Op: THROWI, NStackIn: 2, NStackOut: 0}
	table[NOP] = &Meta{Op: NOP, NStackIn: 0, NStackOut: 0}
	table[CONST] = &Meta{Op: CONST, NStackIn: 0, NStackOut: 1}
	table[LOG] = &Meta{Op: LOG, NStackIn: 2, NStackOut: 0} // arity refined per-instance by caller
}

// Lookup returns the metadata for op, and false for an opcode byte that has
// no entry (an unassigned/unknown opcode in the 256-byte space).
func Lookup(op Op) (*Meta, bool) {
	m, ok := table[op]
	return m, ok
}

func (o Op) IsPush() bool { return o >= Op(vm.PUSH1) && o <= Op(vm.PUSH32) }
func (o Op) IsDup() bool  { return o >= Op(vm.DUP1) && o <= Op(vm.DUP16) }
func (o Op) IsSwap() bool { return o >= Op(vm.SWAP1) && o <= Op(vm.SWAP16) }
func (o Op) IsLog() bool {
	return (o >= Op(vm.LOG0) && o <= Op(vm.LOG4)) || o == LOG
}
func (o Op) IsJump() bool  { return o == Op(vm.JUMP) || o == Op(vm.JUMPI) }
func (o Op) IsJumpDest() bool { return o == Op(vm.JUMPDEST) }

// Halts reports whether control flow stops dead after this op: no
// fallthrough, and (besides JUMP/JUMPI, handled separately) no successor.
// THROWI is deliberately excluded: it replaces a JUMPI whose destination was
// proven invalid, but the condition's false branch still always falls
// through to pc+1, same as the JUMPI it came from.
func (o Op) Halts() bool {
	switch o {
	case Op(vm.STOP), Op(vm.RETURN), Op(vm.REVERT), Op(vm.SELFDESTRUCT),
		Op(vm.INVALID), THROW:
		return true
	}
	return false
}

// DupDepth returns n for DUPn (the 1-based slot it duplicates to the top).
func (o Op) DupDepth() int {
	if !o.IsDup() {
		return 0
	}
	return int(o-Op(vm.DUP1)) + 1
}

// SwapDepth returns n for SWAPn (the slot swapped with the top).
func (o Op) SwapDepth() int {
	if !o.IsSwap() {
		return 0
	}
	return int(o-Op(vm.SWAP1)) + 1
}

// PushWidth returns the number of immediate bytes for PUSHn, 0 otherwise.
func (o Op) PushWidth() int {
	if !o.IsPush() {
		return 0
	}
	return int(o-Op(vm.PUSH1)) + 1
}

// LogTopicCount returns n for LOG0..LOG4 (a generic LOG must carry its own
// arity alongside the op, since it no longer encodes n in the opcode byte).
func (o Op) LogTopicCount() int {
	if o >= Op(vm.LOG0) && o <= Op(vm.LOG4) {
		return int(o - Op(vm.LOG0))
	}
	return -1
}

func (o Op) IsMemOp() bool {
	return o == Op(vm.MLOAD) || o == Op(vm.MSTORE) || o == Op(vm.MSTORE8)
}
func (o Op) IsStorageOp() bool {
	return o == Op(vm.SLOAD) || o == Op(vm.SSTORE)
}
