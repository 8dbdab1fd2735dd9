package evmdecomp

import "github.com/aj3423/evmdecomp/asm"

// BuildGraph destackifies every EVM block of prog and assembles the initial
// (edge-free) TACGraph that Analyse then iterates to a fixed point. No
// jump inference has run yet: every block starts with empty entry/exit
// stacks and no successors.
func BuildGraph(prog *asm.Program) *TACGraph {
	g := NewTACGraph()
	g.Program = prog

	for _, evmBlock := range SplitEVMBlocks(prog) {
		g.AddBlock(Destackify(evmBlock))
	}
	return g
}
