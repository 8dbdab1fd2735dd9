package evmdecomp

import "github.com/aj3423/evmdecomp/util"

// VariableStack is a lattice element: a bounded stack of Variables with an
// empty_pops counter and a max_size. It is the stack-shape analogue of the
// teacher's generic `Stack[T]` (stack.go in aj3423/edb), specialised to
// symbolic Variables and given the lattice operations (join/meet/metafy)
// that a concrete interpreter stack never needs.
//
// items[len-1] is the top of stack, matching the teacher's append-to-push
// convention.
type VariableStack struct {
	items     []*Variable
	EmptyPops int
	MaxSize   int
}

const (
	DefaultMaxStackSize = 1024
	MinMaxStackSize     = 20
)

func NewVariableStack(maxSize int) *VariableStack {
	if maxSize < MinMaxStackSize {
		maxSize = MinMaxStackSize
	}
	return &VariableStack{MaxSize: maxSize}
}

func (s *VariableStack) Len() int { return len(s.items) }

func (s *VariableStack) SetMaxSize(n int) {
	if n < MinMaxStackSize {
		n = MinMaxStackSize
	}
	s.MaxSize = n
}

// Peek returns the n-th Variable from the top (0 = top). Beyond the known
// depth it synthesizes a fresh MetaVariable naming the implied slot; this
// is a pure read, it does not touch EmptyPops.
func (s *VariableStack) Peek(n int) *Variable {
	if n < len(s.items) {
		return s.items[len(s.items)-1-n]
	}
	mv := NewMetaVariable(n - len(s.items) + s.EmptyPops)
	return &mv.Variable
}

// Pop removes and returns the top Variable. Popping past the bottom
// synthesizes a fresh MetaVariable and advances EmptyPops, recording that
// one more slot below the originally-known bottom has now been observed.
func (s *VariableStack) Pop() *Variable {
	if len(s.items) == 0 {
		mv := NewMetaVariable(s.EmptyPops)
		s.EmptyPops++
		return &mv.Variable
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v
}

// PopArg mirrors Pop but returns the TACArg view the destackifier needs: a
// stack-depth reference (StackDepth set) when the pop reaches past the
// known bottom, a concrete-variable reference otherwise.
func (s *VariableStack) PopArg() *TACArg {
	if len(s.items) == 0 {
		depth := s.EmptyPops
		s.EmptyPops++
		return NewStackArg(depth)
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return NewVarArg(v)
}

func (s *VariableStack) PopMany(n int) []*Variable {
	out := make([]*Variable, n)
	for i := 0; i < n; i++ {
		out[i] = s.Pop()
	}
	return out
}

// Push discards the value silently once MaxSize is reached, per spec.
func (s *VariableStack) Push(v *Variable) {
	if len(s.items) >= s.MaxSize {
		return
	}
	s.items = append(s.items, v)
}

func (s *VariableStack) PushMany(vs []*Variable) {
	for _, v := range vs {
		s.Push(v)
	}
}

// Dup copies slot n-1 (1-indexed, DUP1 copies the current top) to the top.
func (s *VariableStack) Dup(n int) {
	s.Push(s.Peek(n - 1))
}

// Swap exchanges the top with slot n (SWAPn's n, 1-indexed from the slot
// below top).
func (s *VariableStack) Swap(n int) {
	l := len(s.items)
	top := s.Peek(0)
	other := s.Peek(n)
	topIdx, otherIdx := l-1, l-1-n
	if topIdx >= 0 {
		s.items[topIdx] = other
	}
	if otherIdx >= 0 {
		s.items[otherIdx] = top
	}
}

// Metafy rewrites every unconstrained (Top-valued) Variable into a
// MetaVariable named by its current depth, preserving def-sites. This is
// the crux that lets a block's entry stack be rewritten into stable TAC
// argument slots: after metafication, two ops referencing "whatever is 3
// deep at entry" refer to the literal same named placeholder.
func (s *VariableStack) Metafy() {
	l := len(s.items)
	for i := 0; i < l; i++ {
		v := s.items[i]
		if v.Values.IsTop() {
			depth := l - 1 - i
			mv := NewMetaVariable(depth)
			mv.DefSites = v.DefSites
			s.items[i] = &mv.Variable
		}
	}
}

func (s *VariableStack) Clone() *VariableStack {
	out := &VariableStack{
		items:     make([]*Variable, len(s.items)),
		EmptyPops: s.EmptyPops,
		MaxSize:   s.MaxSize,
	}
	copy(out.items, s.items)
	return out
}

func (s *VariableStack) Items() []*Variable { return s.items }

// Equal compares stacks slot-by-slot (by value-set and def-sites, not by
// pointer identity or name) plus MaxSize/EmptyPops, used to detect
// fixed-point convergence in the driver.
func (s *VariableStack) Equal(o *VariableStack) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.items) != len(o.items) || s.EmptyPops != o.EmptyPops || s.MaxSize != o.MaxSize {
		return false
	}
	for i := range s.items {
		a, b := s.items[i], o.items[i]
		if !a.Values.Equal(b.Values) || !a.DefSites.Equal(b.DefSites) {
			return false
		}
	}
	return true
}

// joinPad returns a and b's item slices padded at the bottom with Bottom
// Variables so both have the same length, aligned top-down.
func joinPad(a, b []*Variable) ([]*Variable, []*Variable) {
	la, lb := len(a), len(b)
	if la == lb {
		return a, b
	}
	if la < lb {
		pad := make([]*Variable, lb-la)
		for i := range pad {
			pad[i] = BottomVariable()
		}
		return append(pad, a...), b
	}
	pad := make([]*Variable, la-lb)
	for i := range pad {
		pad[i] = BottomVariable()
	}
	return a, append(pad, b...)
}

// dropTrailingBottom removes Bottom Variables from the bottom of the
// aligned slice (i.e. the front of the slice, since index 0 is the
// deepest slot).
func dropTrailingBottom(items []*Variable) []*Variable {
	i := 0
	for i < len(items) && items[i].IsBottom() {
		i++
	}
	return items[i:]
}

// VariableStackJoin pairs slots by top alignment, padding the shorter
// stack with Bottom Variables, then drops trailing Bottom entries.
// max_size becomes the larger of the two (join widens what might be
// reachable).
func VariableStackJoin(a, b *VariableStack) *VariableStack {
	pa, pb := joinPad(a.items, b.items)
	out := make([]*Variable, len(pa))
	for i := range pa {
		out[i] = VariableJoin(pa[i], pb[i])
	}
	out = dropTrailingBottom(out)
	return &VariableStack{
		items:     out,
		EmptyPops: util.Max(a.EmptyPops, b.EmptyPops),
		MaxSize:   util.Max(a.MaxSize, b.MaxSize),
	}
}

// VariableStackMeet mirrors Join with Meet and the smaller max_size.
func VariableStackMeet(a, b *VariableStack) *VariableStack {
	pa, pb := joinPad(a.items, b.items)
	out := make([]*Variable, len(pa))
	for i := range pa {
		out[i] = VariableMeet(pa[i], pb[i])
	}
	out = dropTrailingBottom(out)
	return &VariableStack{
		items:     out,
		EmptyPops: util.Min(a.EmptyPops, b.EmptyPops),
		MaxSize:   util.Min(a.MaxSize, b.MaxSize),
	}
}

// VariableStackJoinAll joins a sequence of stacks; an empty sequence
// yields a fresh empty stack bounded by maxSize (the bottom lattice
// element of the stack lattice restricted to that max_size).
func VariableStackJoinAll(stacks []*VariableStack, maxSize int) *VariableStack {
	if len(stacks) == 0 {
		return NewVariableStack(maxSize)
	}
	out := stacks[0].Clone()
	for _, s := range stacks[1:] {
		out = VariableStackJoin(out, s)
	}
	return out
}
