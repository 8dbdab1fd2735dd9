// Package evmdecomp is the core of the static EVM decompiler: the symbolic
// value lattice and the iterative dataflow / CFG-reconstruction loop that
// resolves indirect jump targets to a fixed point.
//
// The opcode table, disassembler, and output emitters are external
// collaborators (see the opcodes, asm, and export packages); this package
// owns only the two hard parts: the lattice (this file and variable.go/
// varstack.go) and the analysis driver (destackify.go, transfer.go,
// jumps.go, transform.go, driver.go).
package evmdecomp

import "github.com/aj3423/evmdecomp/util"

// Subset is a finite-or-universal set lattice element, used for both
// Variable's value set (over uint256.Int) and def-site tracking (over
// TACLocRef). Top is the universal set (absorbing on join, identity on
// meet); Bottom is the empty set (identity on join, absorbing on meet).
//
// The zero value is Bottom.
type Subset[T comparable] struct {
	top  bool
	vals map[T]struct{}
}

func SubsetTop[T comparable]() Subset[T] {
	return Subset[T]{top: true}
}

func SubsetBottom[T comparable]() Subset[T] {
	return Subset[T]{}
}

func SubsetOf[T comparable](vs ...T) Subset[T] {
	s := Subset[T]{vals: make(map[T]struct{}, len(vs))}
	for _, v := range vs {
		s.vals[v] = struct{}{}
	}
	return s
}

func (s Subset[T]) IsTop() bool    { return s.top }
func (s Subset[T]) IsBottom() bool { return !s.top && len(s.vals) == 0 }
func (s Subset[T]) Size() int      { return len(s.vals) }

// Values returns the finite enumeration. Callers must not call this on a
// Top element; check IsTop first.
func (s Subset[T]) Values() []T {
	out := make([]T, 0, len(s.vals))
	for v := range s.vals {
		out = append(out, v)
	}
	return out
}

func (s Subset[T]) Has(v T) bool {
	if s.top {
		return true
	}
	_, ok := s.vals[v]
	return ok
}

func (a Subset[T]) Equal(b Subset[T]) bool {
	if a.top != b.top {
		return false
	}
	if a.top {
		return true
	}
	if len(a.vals) != len(b.vals) {
		return false
	}
	for v := range a.vals {
		if _, ok := b.vals[v]; !ok {
			return false
		}
	}
	return true
}

// Meet is set intersection; Top is the identity, so meeting with Top
// returns the other operand unchanged.
func SubsetMeet[T comparable](a, b Subset[T]) Subset[T] {
	if a.top {
		return b
	}
	if b.top {
		return a
	}
	out := Subset[T]{vals: map[T]struct{}{}}
	small, big := a, b
	if len(b.vals) < len(a.vals) {
		small, big = b, a
	}
	for v := range small.vals {
		if _, ok := big.vals[v]; ok {
			out.vals[v] = struct{}{}
		}
	}
	return out
}

// Join is set union; Top absorbs.
func SubsetJoin[T comparable](a, b Subset[T]) Subset[T] {
	if a.top || b.top {
		return SubsetTop[T]()
	}
	out := Subset[T]{vals: make(map[T]struct{}, len(a.vals)+len(b.vals))}
	for v := range a.vals {
		out.vals[v] = struct{}{}
	}
	for v := range b.vals {
		out.vals[v] = struct{}{}
	}
	return out
}

// MeetAll of an empty sequence is Top, the meet-identity.
func SubsetMeetAll[T comparable](xs []Subset[T]) Subset[T] {
	acc := SubsetTop[T]()
	for _, x := range xs {
		acc = SubsetMeet(acc, x)
	}
	return acc
}

// JoinAll of an empty sequence is Bottom, the join-identity.
func SubsetJoinAll[T comparable](xs []Subset[T]) Subset[T] {
	acc := SubsetBottom[T]()
	for _, x := range xs {
		acc = SubsetJoin(acc, x)
	}
	return acc
}

// CartesianWidth caps the size of a cartesian product a set-valued
// arithmetic op is willing to enumerate before collapsing the result to
// Top. Without this, a chain of a handful of multi-valued operands makes
// the product grow combinatorially (design note, spec.md §9).
const CartesianWidth = 64

// CartesianMap applies f to every tuple in the cartesian product of args'
// value sets, returning the set of results. If any arg is Top, or the
// product would exceed CartesianWidth, the result is Top.
func CartesianMap[T comparable](f func(args []T) T, args []Subset[T]) Subset[T] {
	product := 1
	for _, a := range args {
		if a.IsTop() {
			return SubsetTop[T]()
		}
		product *= util.Max(a.Size(), 1)
		if product > CartesianWidth {
			return SubsetTop[T]()
		}
	}

	valSets := make([][]T, len(args))
	for i, a := range args {
		valSets[i] = a.Values()
	}

	out := Subset[T]{vals: map[T]struct{}{}}
	tuple := make([]T, len(args))
	var rec func(i int)
	rec = func(i int) {
		if i == len(valSets) {
			out.vals[f(tuple)] = struct{}{}
			return
		}
		for _, v := range valSets[i] {
			tuple[i] = v
			rec(i + 1)
		}
	}
	if len(valSets) == 0 {
		out.vals[f(nil)] = struct{}{}
	} else {
		rec(0)
	}
	return out
}
