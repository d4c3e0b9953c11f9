package serialize

import (
	"encoding/json"
	"io"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

type jsonNode struct {
	ID       graph.NodeID `json:"id"`
	NodeType string       `json:"nodeType"`
	Name     string       `json:"name,omitempty"`
	Index    int          `json:"index,omitempty"`
	NArgs    int          `json:"nargs,omitempty"`
	NLocals  int          `json:"nlocals,omitempty"`
	NResults int          `json:"nresults,omitempty"`
	IsImport bool         `json:"isImport,omitempty"`
	IsExport bool         `json:"isExport,omitempty"`
	VarType  string       `json:"varType,omitempty"`
	InstType string       `json:"instType,omitempty"`
	Opcode   string       `json:"opcode,omitempty"`
	Label    string       `json:"label,omitempty"`
	Offset   uint32       `json:"offset,omitempty"`
	HasElse  bool         `json:"hasElse,omitempty"`
}

type jsonEdge struct {
	Src      graph.NodeID `json:"src"`
	Dest     graph.NodeID `json:"dest"`
	EdgeType string       `json:"edgeType"`
	Label    string       `json:"label,omitempty"`
	PDGType  string       `json:"pdgType,omitempty"`
}

type jsonGraph struct {
	Nodes []jsonNode `json:"nodes"`
	Edges []jsonEdge `json:"edges"`
}

// WriteJSON emits g as a single `{ nodes: [...], edges: [...] }` object
// (spec §4.7), nodes and edges in id order.
func WriteJSON(w io.Writer, g *graph.Store) error {
	out := jsonGraph{}
	for _, n := range g.Nodes() {
		jn := jsonNode{
			ID: n.ID, NodeType: n.Kind.String(), Name: n.Name, Index: n.Index,
			NArgs: n.NArgs, NLocals: n.NLocals, NResults: n.NResults,
			IsImport: n.IsImport, IsExport: n.IsExport, VarType: n.VarType.String(),
			Opcode: n.Opcode, Label: n.Label, Offset: n.Offset, HasElse: n.HasElse,
		}
		if n.Kind == graph.KindInstruction {
			jn.InstType = n.InstType.String()
		}
		out.Nodes = append(out.Nodes, jn)
	}
	for _, e := range g.Edges() {
		je := jsonEdge{Src: e.Src, Dest: e.Dest, EdgeType: e.Kind.String(), Label: e.Label}
		if e.Kind == graph.EdgePDG {
			je.PDGType = e.PDGType.String()
		}
		out.Edges = append(out.Edges, je)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
