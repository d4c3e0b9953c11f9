// Package callgraph overlays the CG and PG edge layers (spec §3 "CG"/
// "PG") onto an already AST-built graph. Neither the teacher nor
// original_source/src/ast-builder.cc emits these as part of the AST
// walk (wasmati's C++ tree resolves call targets in a second pass once
// every function is known, since a call may reference a function
// declared later in the module); this package is that second pass,
// grounded on the same two-phase shape.
package callgraph

import (
	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

// Build walks every Call/CallIndirect instruction produced during the
// AST phase and, for Call, adds a CG edge to its resolved target
// Function plus one PG edge per argument position into the callee's
// Parameters; CallIndirect only gets PG edges (its target is not
// statically known, so no CG edge is emitted).
func Build(g *graph.Store, m *wasmir.Module, ast astbuild.Result) {
	funcByName := make(map[string]graph.NodeID, len(m.Functions))
	for _, f := range m.Functions {
		funcByName[f.Name] = ast.FuncNodes[f]
	}

	for _, f := range m.Functions {
		if f.IsImport {
			continue
		}
		walkExprs(g, f.Body, ast, funcByName)
	}
}

func walkExprs(g *graph.Store, es []wasmir.Expr, ast astbuild.Result, funcByName map[string]graph.NodeID) {
	for i := range es {
		e := &es[i]
		switch e.Kind {
		case wasmir.Call:
			wireCall(g, e, ast, funcByName)
		case wasmir.CallIndirect:
			wireCallIndirect(g, e, ast, funcByName)
		case wasmir.Block, wasmir.Loop:
			walkExprs(g, e.Body, ast, funcByName)
		case wasmir.If:
			walkExprs(g, e.Body, ast, funcByName)
			if e.HasElse {
				walkExprs(g, e.ElseBody, ast, funcByName)
			}
		}
	}
}

func wireCall(g *graph.Store, e *wasmir.Expr, ast astbuild.Result, funcByName map[string]graph.NodeID) {
	callID, ok := ast.ExprNodes[e]
	if !ok {
		return
	}
	targetID, ok := funcByName[e.FuncName]
	if !ok {
		return
	}
	g.InsertEdge(graph.Edge{Src: callID, Dest: targetID, Kind: graph.EdgeCG})
	wireParams(g, callID, targetID)
}

func wireCallIndirect(g *graph.Store, e *wasmir.Expr, ast astbuild.Result, funcByName map[string]graph.NodeID) {
	callID, ok := ast.ExprNodes[e]
	if !ok {
		return
	}
	targetID, ok := funcByName[e.FuncName]
	if !ok {
		return
	}
	wireParams(g, callID, targetID)
}

// wireParams adds one PG edge per positional argument of callID to the
// corresponding Parameter VarNode of target. Arguments were attached as
// AST children in reverse pop order (spec §4.2 step 3), so argument 0 is
// the last child.
func wireParams(g *graph.Store, callID, target graph.NodeID) {
	params := paramsOf(g, target)
	if len(params) == 0 {
		return
	}
	children := g.OutEdges(callID, graph.EdgeAST, false)
	n := len(children)
	for pos, paramID := range params {
		idx := n - 1 - pos
		if idx < 0 {
			break
		}
		g.InsertEdge(graph.Edge{Src: children[idx].Dest, Dest: paramID, Kind: graph.EdgePG})
	}
}

func paramsOf(g *graph.Store, funcID graph.NodeID) []graph.NodeID {
	var out []graph.NodeID
	for _, sig := range g.OutEdges(funcID, graph.EdgeAST, false) {
		if g.Node(sig.Dest).Kind != graph.KindFunctionSignature {
			continue
		}
		for _, params := range g.OutEdges(sig.Dest, graph.EdgeAST, false) {
			if g.Node(params.Dest).Kind != graph.KindParameters {
				continue
			}
			for _, v := range g.OutEdges(params.Dest, graph.EdgeAST, false) {
				out = append(out, v.Dest)
			}
		}
	}
	return out
}
