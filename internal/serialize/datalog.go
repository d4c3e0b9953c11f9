package serialize

import (
	"fmt"
	"io"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

// WriteDatalog emits a preamble of declarations and view definitions
// followed by one fact per node/edge, plus an instr fact for every
// Instruction node (spec §4.7 "Datalog emits facts
// plus a preamble of declarations and view definitions"). scope, if
// non-nil, restricts facts to the given node ids (spec §6 "-f"/"-l").
func WriteDatalog(w io.Writer, g *graph.Store, scope map[graph.NodeID]struct{}) error {
	preamble := `.decl node(id: number, kind: symbol, name: symbol, opcode: symbol)
.decl ast(src: number, dest: number)
.decl cfg(src: number, dest: number, label: symbol)
.decl pdg(src: number, dest: number, category: symbol, label: symbol)
.decl cg(src: number, dest: number)
.decl pg(src: number, dest: number)

.decl instr(id: number)
.decl unreachable(id: number)
unreachable(id) :- instr(id), !cfg(_, id, _).

.input node
.input ast
.input cfg
.input pdg
.input cg
.input pg
.input instr
`
	if _, err := io.WriteString(w, preamble); err != nil {
		return err
	}
	for _, n := range g.Nodes() {
		if !inScope(scope, n.ID) {
			continue
		}
		kind := n.Kind.String()
		if n.Kind == graph.KindInstruction {
			kind = n.InstType.String()
			if _, err := fmt.Fprintf(w, "instr(%d).\n", n.ID); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "node(%d, %q, %q, %q).\n", n.ID, kind, n.Name, n.Opcode); err != nil {
			return err
		}
	}
	for _, e := range g.Edges() {
		if !inScope(scope, e.Src) || !inScope(scope, e.Dest) {
			continue
		}
		var err error
		switch e.Kind {
		case graph.EdgeAST:
			_, err = fmt.Fprintf(w, "ast(%d, %d).\n", e.Src, e.Dest)
		case graph.EdgeCFG:
			_, err = fmt.Fprintf(w, "cfg(%d, %d, %q).\n", e.Src, e.Dest, e.Label)
		case graph.EdgePDG:
			_, err = fmt.Fprintf(w, "pdg(%d, %d, %q, %q).\n", e.Src, e.Dest, e.PDGType.String(), e.Label)
		case graph.EdgeCG:
			_, err = fmt.Fprintf(w, "cg(%d, %d).\n", e.Src, e.Dest)
		case graph.EdgePG:
			_, err = fmt.Fprintf(w, "pg(%d, %d).\n", e.Src, e.Dest)
		}
		if err != nil {
			return err
		}
	}
	return nil
}
