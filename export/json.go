package export

import (
	"encoding/json"

	evmdecomp "github.com/aj3423/evmdecomp"
)

// Graph is the JSON-serialisable view: nodes are block identifiers, edges
// are (pred, succ) identifier pairs.
type Graph struct {
	Nodes []string    `json:"nodes"`
	Edges [][2]string `json:"edges"`
}

func ToGraph(g *evmdecomp.TACGraph) Graph {
	out := Graph{}
	for _, b := range g.SortedTraversal() {
		out.Nodes = append(out.Nodes, b.Ident())
	}
	for _, e := range g.EdgeList() {
		out.Edges = append(out.Edges, [2]string{e.From.Ident(), e.To.Ident()})
	}
	return out
}

func JSON(g *evmdecomp.TACGraph) ([]byte, error) {
	return json.MarshalIndent(ToGraph(g), "", "  ")
}
