package callgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

func buildCallGraph(t *testing.T, caller, callee *wasmir.Function) (*graph.Store, astbuild.Result, *wasmir.Module) {
	t.Helper()
	g := graph.NewStore()
	m := &wasmir.Module{Functions: []*wasmir.Function{caller, callee}}
	ast := astbuild.NewBuilder(g).Build(m)
	Build(g, m, ast)
	return g, ast, m
}

// TestBuild_CallAddsCGEdgeAndPositionalParamEdges verifies a Call
// instruction gets a CG edge to its resolved callee plus one PG edge
// per argument into the callee's matching Parameter VarNode.
func TestBuild_CallAddsCGEdgeAndPositionalParamEdges(t *testing.T) {
	callee := &wasmir.Function{
		Name:   "$callee",
		Params: []wasmir.ValType{wasmir.I32, wasmir.I32},
		Body:   []wasmir.Expr{},
	}
	callExpr := wasmir.Expr{Kind: wasmir.Call, FuncName: "$callee", NArgs: 2, NResults: 0}
	caller := &wasmir.Function{
		Name: "$caller",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 10},
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 20},
			callExpr,
		},
	}

	g, ast, _ := buildCallGraph(t, caller, callee)

	callID := ast.ExprNodes[&caller.Body[2]]
	cgEdges := g.OutEdges(callID, graph.EdgeCG, false)
	require.Len(t, cgEdges, 1)
	assert.Equal(t, ast.FuncNodes[callee], cgEdges[0].Dest)

	pgEdges := g.OutEdges(callID, graph.EdgePG, false)
	require.Len(t, pgEdges, 0, "PG edges originate from the argument nodes, not the call node itself")

	// first argument const(10) feeds parameter 0, second const(20) feeds parameter 1
	astChildren := g.OutEdges(callID, graph.EdgeAST, false)
	require.Len(t, astChildren, 2)
	arg0, arg1 := astChildren[1].Dest, astChildren[0].Dest // reverse pop order

	params := paramsOf(g, ast.FuncNodes[callee])
	require.Len(t, params, 2)

	arg0PG := g.OutEdges(arg0, graph.EdgePG, false)
	require.Len(t, arg0PG, 1)
	assert.Equal(t, params[0], arg0PG[0].Dest)

	arg1PG := g.OutEdges(arg1, graph.EdgePG, false)
	require.Len(t, arg1PG, 1)
	assert.Equal(t, params[1], arg1PG[0].Dest)
}

// TestBuild_CallIndirectAddsParamEdgesButNoCGEdge verifies an indirect
// call never gets a CG edge, since its target is not statically known,
// while still wiring PG edges for its arguments.
func TestBuild_CallIndirectAddsParamEdgesButNoCGEdge(t *testing.T) {
	callee := &wasmir.Function{
		Name:   "$callee",
		Params: []wasmir.ValType{wasmir.I32},
		Body:   []wasmir.Expr{},
	}
	indirectExpr := wasmir.Expr{Kind: wasmir.CallIndirect, FuncName: "$callee", NArgs: 1, NResults: 0}
	caller := &wasmir.Function{
		Name: "$caller",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 0},
			indirectExpr,
		},
	}

	g, ast, _ := buildCallGraph(t, caller, callee)

	callID := ast.ExprNodes[&caller.Body[2]]
	assert.Empty(t, g.OutEdges(callID, graph.EdgeCG, false))

	// CallIndirect pops one extra operand (the table index) on top of its
	// declared arguments, so a single-argument call has two AST children;
	// the table index is popped first and the real argument second.
	astChildren := g.OutEdges(callID, graph.EdgeAST, false)
	require.Len(t, astChildren, 2)
	pg := g.OutEdges(astChildren[1].Dest, graph.EdgePG, false)
	require.Len(t, pg, 1)
	assert.Equal(t, paramsOf(g, ast.FuncNodes[callee])[0], pg[0].Dest)
}

// TestBuild_UnresolvedCallTargetAddsNoEdges verifies a call to a name
// absent from the module never panics and produces no CG/PG edges.
func TestBuild_UnresolvedCallTargetAddsNoEdges(t *testing.T) {
	caller := &wasmir.Function{
		Name: "$caller",
		Body: []wasmir.Expr{{Kind: wasmir.Call, FuncName: "$missing", NArgs: 0, NResults: 0}},
	}
	g := graph.NewStore()
	m := &wasmir.Module{Functions: []*wasmir.Function{caller}}
	ast := astbuild.NewBuilder(g).Build(m)
	Build(g, m, ast)

	callID := ast.ExprNodes[&caller.Body[0]]
	assert.Empty(t, g.OutEdges(callID, graph.EdgeCG, false))
	assert.Empty(t, g.OutEdges(callID, graph.EdgePG, false))
}

// TestBuild_SkipsImportedCallerBodies verifies Build never walks the
// (nonexistent) body of an imported function.
func TestBuild_SkipsImportedCallerBodies(t *testing.T) {
	imported := &wasmir.Function{Name: "$imported", IsImport: true}
	g := graph.NewStore()
	m := &wasmir.Module{Functions: []*wasmir.Function{imported}}
	ast := astbuild.NewBuilder(g).Build(m)
	assert.NotPanics(t, func() { Build(g, m, ast) })
}
