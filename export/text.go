// Package export turns a stable TACGraph into the output formats external
// tooling consumes: a human-readable block listing, a JSON node/edge graph,
// and a DOT graph for visualisation. None of these formats feed back into
// analysis; they are read-only views over a finished evmdecomp.TACGraph.
package export

import (
	"fmt"
	"strings"

	evmdecomp "github.com/aj3423/evmdecomp"
)

// Text renders the graph as one record per block, in entry-pc order, in
// the shape spec.md §6 Outputs describes.
func Text(g *evmdecomp.TACGraph) string {
	var sb strings.Builder
	for _, b := range g.SortedTraversal() {
		writeBlock(&sb, b)
	}
	return sb.String()
}

func writeBlock(sb *strings.Builder, b *evmdecomp.TACBlock) {
	fmt.Fprintf(sb, "Block %s\n", b.Ident())
	fmt.Fprintf(sb, "[0x%x:0x%x]\n", b.Entry, b.Exit)
	sb.WriteString("---\n")
	fmt.Fprintf(sb, "Predecessors: %s\n", identList(b.Preds))
	fmt.Fprintf(sb, "Successors: %s\n", identList(b.Succs))
	if b.HasUnresolvedJump {
		sb.WriteString("Has unresolved jump.\n")
	}
	sb.WriteString("---\n")
	for _, op := range b.TacOps {
		sb.WriteString(op.String())
		sb.WriteByte('\n')
	}
	sb.WriteString("---\n")
	fmt.Fprintf(sb, "Entry stack: %s\n", stackString(b.EntryStack))
	pops, adds := deltaStrings(b)
	fmt.Fprintf(sb, "Stack pops: %d\n", pops)
	fmt.Fprintf(sb, "Stack additions: [%s]\n", adds)
	fmt.Fprintf(sb, "Exit stack: %s\n", stackString(b.ExitStack))
}

func identList(blocks []*evmdecomp.TACBlock) string {
	ids := make([]string, len(blocks))
	for i, b := range blocks {
		ids[i] = b.Ident()
	}
	return "[" + strings.Join(ids, ", ") + "]"
}

func stackString(s *evmdecomp.VariableStack) string {
	if s == nil {
		return "[]"
	}
	items := s.Items()
	parts := make([]string, len(items))
	for i, v := range items {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func deltaStrings(b *evmdecomp.TACBlock) (int, string) {
	if b.Delta == nil {
		return 0, ""
	}
	parts := make([]string, len(b.Delta.Pushes))
	for i, a := range b.Delta.Pushes {
		parts[i] = a.String()
	}
	return b.Delta.EmptyPops, strings.Join(parts, ", ")
}
