package evmdecomp

import (
	"fmt"
	"strconv"

	"github.com/ethereum/go-ethereum/core/vm"
	"github.com/holiman/uint256"
)

// Element is the concrete carrier of a Variable's value lattice: a 256-bit
// EVM word. uint256.Int is a fixed [4]uint64 array, so it is comparable and
// usable as a Subset map key directly.
type Element = uint256.Int

// TACLocRef identifies the instruction that may have produced a value:
// the block it lives in plus its original pc. A block copy (Clone,
// duplicate merging) does not re-point TACLocRefs: they keep naming the
// original block. (*TACBlock).resetOpRefs re-points only each op's block
// back-pointer.
type TACLocRef struct {
	Block *TACBlock
	Pc    uint64
}

// Variable is a subset-lattice element over 256-bit words plus a name and
// a def-site set. It is the unit of value the destackifier and transfer
// functions push, pop, and fold.
type Variable struct {
	Name     string
	Values   Subset[Element]
	DefSites Subset[TACLocRef]
}

var varCounter int

// freshName returns the next "V{n}" identifier, used for every Variable the
// destackifier creates (PUSH constants, MLOAD/SLOAD results, other push==1
// opcodes) and for ApplyArithmetic's results.
func freshName() string {
	varCounter++
	return fmt.Sprintf("V%d", varCounter)
}

func NewTopVariable(name string) *Variable {
	return &Variable{Name: name, Values: SubsetTop[Element](), DefSites: SubsetBottom[TACLocRef]()}
}

func NewConstVariable(name string, v *uint256.Int) *Variable {
	return &Variable{Name: name, Values: SubsetOf(*v), DefSites: SubsetBottom[TACLocRef]()}
}

func BottomVariable() *Variable {
	return &Variable{Values: SubsetBottom[Element]()}
}

func (v *Variable) IsTop() bool    { return v.Values.IsTop() }
func (v *Variable) IsBottom() bool { return v.Values.IsBottom() }
func (v *Variable) IsConst() bool  { return !v.Values.top && v.Values.Size() == 1 }

// ConstValue returns the single value and true iff IsConst.
func (v *Variable) ConstValue() (uint256.Int, bool) {
	if !v.IsConst() {
		return uint256.Int{}, false
	}
	return v.Values.Values()[0], true
}

// IsTrue/IsFalse follow EVM truthiness: zero is false, anything else true.
// A value-set is "true" iff it is finite, nonempty, and contains no zero.
func (v *Variable) IsTrue() bool {
	if v.Values.top || v.Values.IsBottom() {
		return false
	}
	for _, x := range v.Values.Values() {
		if x.IsZero() {
			return false
		}
	}
	return true
}

func (v *Variable) IsFalse() bool {
	if v.Values.top || v.Values.IsBottom() {
		return false
	}
	for _, x := range v.Values.Values() {
		if !x.IsZero() {
			return false
		}
	}
	return true
}

func (v *Variable) String() string {
	if v.Values.top {
		return v.Name
	}
	if c, ok := v.ConstValue(); ok {
		return c.Hex()
	}
	return v.Name
}

// MetaVariable denotes "the thing that was Payload slots from the top at
// block entry" — a placeholder for a stack slot below the currently known
// bottom. Always Top-valued: nothing concrete is known about it until the
// entry stack is resolved and hook_up_stack_vars substitutes the real
// Variable in.
type MetaVariable struct {
	Variable
	Payload int
}

func NewMetaVariable(payload int) *MetaVariable {
	mv := &MetaVariable{Payload: payload}
	mv.Name = fmt.Sprintf("S%d", payload)
	mv.Values = SubsetTop[Element]()
	mv.DefSites = SubsetBottom[TACLocRef]()
	return mv
}

// metaPayload recovers the stack depth a MetaVariable denotes by parsing
// its "S{n}" name back apart. Used when a block's net-push list must be
// re-examined for leftover stack references (e.g. a DUP/SWAP that reached
// past the block's known local bottom without ever going through
// VariableStack.PopArg).
func metaPayload(v *Variable) (int, bool) {
	if !v.Values.IsTop() || !v.DefSites.IsBottom() {
		return 0, false
	}
	if len(v.Name) < 2 || v.Name[0] != 'S' {
		return 0, false
	}
	n, err := strconv.Atoi(v.Name[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

func joinDefSites(a, b *Variable) Subset[TACLocRef] {
	return SubsetJoin(a.DefSites, b.DefSites)
}

// Join is the Variable-lattice join used by VariableStack.Join: value sets
// union, def-sites union. The result's display name is kept only when both
// operands already agree on it; disagreement is resolved later, either by
// VariableStack.Metafy (if the value ended up Top) or by
// MakeStackNamesUnique.
func VariableJoin(a, b *Variable) *Variable {
	name := a.Name
	if a.Name != b.Name {
		name = ""
	}
	return &Variable{
		Name:     name,
		Values:   SubsetJoin(a.Values, b.Values),
		DefSites: joinDefSites(a, b),
	}
}

func VariableMeet(a, b *Variable) *Variable {
	name := a.Name
	if a.Name != b.Name {
		name = ""
	}
	return &Variable{
		Name:     name,
		Values:   SubsetMeet(a.Values, b.Values),
		DefSites: SubsetMeet(a.DefSites, b.DefSites),
	}
}

// ---- Arithmetic ----
//
// Every EVM arithmetic/comparison/bitwise opcode, lifted from a scalar
// uint256 operation to the cartesian product of its arguments' value sets.
// Division and modulo by zero yield zero, matching EVM semantics (not a
// trapped error). Signed variants interpret operands as two's-complement.

func scalarOp(op vm.OpCode) func(args []Element) Element {
	switch op {
	case vm.ADD:
		return func(a []Element) Element { var r Element; r.Add(&a[0], &a[1]); return r }
	case vm.MUL:
		return func(a []Element) Element { var r Element; r.Mul(&a[0], &a[1]); return r }
	case vm.SUB:
		return func(a []Element) Element { var r Element; r.Sub(&a[0], &a[1]); return r }
	case vm.DIV:
		return func(a []Element) Element {
			var r Element
			if a[1].IsZero() {
				return r
			}
			return *r.Div(&a[0], &a[1])
		}
	case vm.SDIV:
		return func(a []Element) Element {
			var r Element
			if a[1].IsZero() {
				return r
			}
			return *r.SDiv(&a[0], &a[1])
		}
	case vm.MOD:
		return func(a []Element) Element {
			var r Element
			if a[1].IsZero() {
				return r
			}
			return *r.Mod(&a[0], &a[1])
		}
	case vm.SMOD:
		return func(a []Element) Element {
			var r Element
			if a[1].IsZero() {
				return r
			}
			return *r.SMod(&a[0], &a[1])
		}
	case vm.ADDMOD:
		return func(a []Element) Element {
			var r Element
			if a[2].IsZero() {
				return r
			}
			return *r.AddMod(&a[0], &a[1], &a[2])
		}
	case vm.MULMOD:
		return func(a []Element) Element {
			var r Element
			if a[2].IsZero() {
				return r
			}
			return *r.MulMod(&a[0], &a[1], &a[2])
		}
	case vm.EXP:
		return func(a []Element) Element { var r Element; return *r.Exp(&a[0], &a[1]) }
	case vm.SIGNEXTEND:
		return func(a []Element) Element { var r Element; return *r.ExtendSign(&a[1], &a[0]) }
	case vm.LT:
		return func(a []Element) Element { return boolElem(a[0].Lt(&a[1])) }
	case vm.GT:
		return func(a []Element) Element { return boolElem(a[0].Gt(&a[1])) }
	case vm.SLT:
		return func(a []Element) Element { return boolElem(a[0].Slt(&a[1])) }
	case vm.SGT:
		return func(a []Element) Element { return boolElem(a[0].Sgt(&a[1])) }
	case vm.EQ:
		return func(a []Element) Element { return boolElem(a[0].Eq(&a[1])) }
	case vm.ISZERO:
		return func(a []Element) Element { return boolElem(a[0].IsZero()) }
	case vm.AND:
		return func(a []Element) Element { var r Element; return *r.And(&a[0], &a[1]) }
	case vm.OR:
		return func(a []Element) Element { var r Element; return *r.Or(&a[0], &a[1]) }
	case vm.XOR:
		return func(a []Element) Element { var r Element; return *r.Xor(&a[0], &a[1]) }
	case vm.NOT:
		return func(a []Element) Element { var r Element; return *r.Not(&a[0]) }
	case vm.BYTE:
		return func(a []Element) Element { r := a[1]; return *r.Byte(&a[0]) }
	case vm.SHL:
		return func(a []Element) Element {
			var r Element
			if a[0].GtUint64(255) {
				return r
			}
			return *r.Lsh(&a[1], uint(a[0].Uint64()))
		}
	case vm.SHR:
		return func(a []Element) Element {
			var r Element
			if a[0].GtUint64(255) {
				return r
			}
			return *r.Rsh(&a[1], uint(a[0].Uint64()))
		}
	case vm.SAR:
		return func(a []Element) Element {
			var r Element
			if a[0].GtUint64(255) {
				if a[1].Sign() < 0 {
					return *r.SetAllOne()
				}
				return r
			}
			return *r.SRsh(&a[1], uint(a[0].Uint64()))
		}
	}
	return nil
}

func boolElem(b bool) Element {
	if b {
		return *uint256.NewInt(1)
	}
	return Element{}
}

// IsArithmetic reports whether op is one this module can fold.
func IsArithmetic(op vm.OpCode) bool {
	return scalarOp(op) != nil
}

// ArgCount returns the number of scalar arguments each arithmetic opcode
// takes, for driving CartesianMap.
func ArgCount(op vm.OpCode) int {
	switch op {
	case vm.ISZERO, vm.NOT:
		return 1
	case vm.ADDMOD, vm.MULMOD:
		return 3
	default:
		return 2
	}
}

// ApplyArithmetic lifts op to the cartesian product of args' value sets,
// joining their def-sites. If any arg is Top the result is Top.
func ApplyArithmetic(op vm.OpCode, args []*Variable) *Variable {
	f := scalarOp(op)
	if f == nil {
		return NewTopVariable(freshName())
	}

	sets := make([]Subset[Element], len(args))
	defs := SubsetBottom[TACLocRef]()
	for i, a := range args {
		sets[i] = a.Values
		defs = SubsetJoin(defs, a.DefSites)
	}

	result := CartesianMap(func(vals []Element) Element {
		return f(vals)
	}, sets)

	return &Variable{Name: freshName(), Values: result, DefSites: defs}
}
