package export

import (
	"github.com/emicklei/dot"

	evmdecomp "github.com/aj3423/evmdecomp"
)

// DOT renders the graph with emicklei/dot, one node per block (labelled
// with its identifier only; the pc range is not shown) and one edge per
// successor link. A
// block with an unresolved jump is drawn filled, the way a dangling edge
// is the thing worth a reader's eye.
func DOT(g *evmdecomp.TACGraph) string {
	out := dot.NewGraph(dot.Directed)
	out.Attr("rankdir", "TB")

	nodes := map[string]dot.Node{}
	for _, b := range g.SortedTraversal() {
		n := out.Node(b.Ident())
		n.Attr("shape", "box")
		n.Attr("label", blockLabel(b))
		if b.HasUnresolvedJump {
			n.Attr("style", "filled")
			n.Attr("fillcolor", "lightyellow")
		}
		nodes[b.Ident()] = n
	}
	for _, e := range g.EdgeList() {
		out.Edge(nodes[e.From.Ident()], nodes[e.To.Ident()])
	}
	return out.String()
}

func blockLabel(b *evmdecomp.TACBlock) string {
	return b.Ident()
}
