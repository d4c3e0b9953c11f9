package serialize

import (
	"fmt"
	"io"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

// layerColor assigns each edge kind a distinct DOT color so the five
// layers remain visually separable when overlaid on one graph (spec
// §4.7 "DOT emits a colored multi-layer graph").
func layerColor(k graph.EdgeKind) string {
	switch k {
	case graph.EdgeAST:
		return "black"
	case graph.EdgeCFG:
		return "blue"
	case graph.EdgePDG:
		return "red"
	case graph.EdgeCG:
		return "darkgreen"
	case graph.EdgePG:
		return "orange"
	default:
		return "gray"
	}
}

func nodeLabel(n graph.Node) string {
	switch n.Kind {
	case graph.KindFunction, graph.KindVar:
		if n.Name != "" {
			return fmt.Sprintf("%s\\n%s", n.Kind, n.Name)
		}
		return n.Kind.String()
	case graph.KindInstruction:
		if n.Opcode != "" {
			return fmt.Sprintf("%s\\n%s", n.InstType, n.Opcode)
		}
		if n.Name != "" {
			return fmt.Sprintf("%s\\n%s", n.InstType, n.Name)
		}
		return n.InstType.String()
	default:
		return n.Kind.String()
	}
}

// WriteDOT emits g as a Graphviz digraph with one colored edge set per
// layer, selecting only the requested layers. scope, if non-nil,
// restricts output to the given node ids (spec §6 "-f"/"-l" restrict
// emission to a function or named loop); a nil scope emits every node.
func WriteDOT(w io.Writer, g *graph.Store, layers map[graph.EdgeKind]bool, scope map[graph.NodeID]struct{}) error {
	if _, err := fmt.Fprintln(w, "digraph cpg {"); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if !inScope(scope, n.ID) {
			continue
		}
		if _, err := fmt.Fprintf(w, "  n%d [label=\"%s\"];\n", n.ID, nodeLabel(n)); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if layers != nil && !layers[e.Kind] {
			continue
		}
		if !inScope(scope, e.Src) || !inScope(scope, e.Dest) {
			continue
		}
		label := e.Label
		if e.Kind == graph.EdgePDG && e.PDGType != graph.PDGNone {
			if label != "" {
				label = e.PDGType.String() + ":" + label
			} else {
				label = e.PDGType.String()
			}
		}
		if label != "" {
			if _, err := fmt.Fprintf(w, "  n%d -> n%d [color=%s, label=\"%s\"];\n", e.Src, e.Dest, layerColor(e.Kind), label); err != nil {
				return err
			}
		} else {
			if _, err := fmt.Fprintf(w, "  n%d -> n%d [color=%s];\n", e.Src, e.Dest, layerColor(e.Kind)); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

// inScope reports whether id is included: a nil scope means every id
// is in scope, matching query.Nodes.ToSet's {id: struct{}{}} shape.
func inScope(scope map[graph.NodeID]struct{}, id graph.NodeID) bool {
	if scope == nil {
		return true
	}
	_, ok := scope[id]
	return ok
}
