package astbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

func buildModule(t *testing.T, fns ...*wasmir.Function) (*graph.Store, Result) {
	t.Helper()
	g := graph.NewStore()
	res := NewBuilder(g).Build(&wasmir.Module{Functions: fns})
	return g, res
}

// TestBuild_SingleResultFunctionRoutesValueThroughReturnSink verifies a
// function declaring one result feeds its final stack value into the
// canonical Return sink rather than attaching it directly to
// Instructions.
func TestBuild_SingleResultFunctionRoutesValueThroughReturnSink(t *testing.T) {
	f := &wasmir.Function{
		Name:    "$f",
		Results: []wasmir.ValType{wasmir.I32},
		Body:    []wasmir.Expr{{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 5}},
	}
	g, res := buildModule(t, f)

	instID := res.Instrs[f]
	children := g.OutEdges(instID, graph.EdgeAST, false)
	require.Len(t, children, 1)
	sink := children[0].Dest
	assert.Equal(t, res.ReturnSink[f], sink)
	assert.Equal(t, graph.InstReturn, g.Node(sink).InstType)

	sinkChildren := g.OutEdges(sink, graph.EdgeAST, false)
	require.Len(t, sinkChildren, 1)
	assert.Equal(t, graph.InstConst, g.Node(sinkChildren[0].Dest).InstType)
}

// TestBuild_UnreachableTailDrainsResidualStackToHolder verifies the
// unified drain rule: when a body ends in Unreachable without enough
// stack entries to satisfy its declared result count, every residual
// value is attached to the holder instead of silently dropped, and the
// function body still gets its Return sink attached.
func TestBuild_UnreachableTailDrainsResidualStackToHolder(t *testing.T) {
	f := &wasmir.Function{
		Name:    "$f",
		Results: []wasmir.ValType{wasmir.I32, wasmir.I32},
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.Unreachable},
		},
	}
	g, res := buildModule(t, f)

	instID := res.Instrs[f]
	children := g.OutEdges(instID, graph.EdgeAST, false)
	require.Len(t, children, 3)

	kinds := make([]graph.InstKind, len(children))
	for i, c := range children {
		kinds[i] = g.Node(c.Dest).InstType
	}
	assert.Equal(t, graph.InstUnreachable, kinds[0])
	assert.Equal(t, graph.InstConst, kinds[1])
	assert.Equal(t, graph.InstReturn, kinds[2])
	assert.Equal(t, res.ReturnSink[f], children[2].Dest)
}

// TestBuild_CallArgumentsAttachInReversePopOrder verifies a Call's AST
// children are ordered so argAt's "index 0 is the last child" contract
// holds: the first-pushed operand ends up furthest from index 0.
func TestBuild_CallArgumentsAttachInReversePopOrder(t *testing.T) {
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 2},
			{Kind: wasmir.Call, FuncName: "$g", NArgs: 2, NResults: 0},
		},
	}
	g, res := buildModule(t, f)

	callID := res.ExprNodes[&f.Body[2]]
	children := g.OutEdges(callID, graph.EdgeAST, false)
	require.Len(t, children, 2)
	assert.Equal(t, uint64(2), g.Node(children[0].Dest).ConstValue)
	assert.Equal(t, uint64(1), g.Node(children[1].Dest).ConstValue)
}

// TestBuild_IfWithElseOrdersConditionTrueBlockElse verifies an If's AST
// children appear condition-first, then the true block, then the Else
// holder, and that IfBlocks records the true branch's BeginBlock.
func TestBuild_IfWithElseOrdersConditionTrueBlockElse(t *testing.T) {
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{
				Kind:     wasmir.If,
				HasElse:  true,
				Body:     []wasmir.Expr{{Kind: wasmir.Nop}},
				ElseBody: []wasmir.Expr{{Kind: wasmir.Nop}},
			},
		},
	}
	g, res := buildModule(t, f)

	ifExpr := &f.Body[1]
	ifID := res.ExprNodes[ifExpr]
	require.True(t, g.Node(ifID).HasElse)

	children := g.OutEdges(ifID, graph.EdgeAST, false)
	require.Len(t, children, 3)
	assert.Equal(t, graph.InstConst, g.Node(children[0].Dest).InstType)
	assert.Equal(t, graph.InstBlock, g.Node(children[1].Dest).InstType)
	assert.Equal(t, graph.KindElse, g.Node(children[2].Dest).Kind)

	_, ok := res.IfBlocks[&ifExpr.Body]
	assert.True(t, ok)
}

// TestBuild_ImportStopsBeforeInstructionsHolder verifies an imported
// function gets its signature but no Instructions subtree.
func TestBuild_ImportStopsBeforeInstructionsHolder(t *testing.T) {
	f := &wasmir.Function{Name: "$imported", IsImport: true, Params: []wasmir.ValType{wasmir.I32}}
	g, res := buildModule(t, f)

	funcID := res.FuncNodes[f]
	for _, e := range g.OutEdges(funcID, graph.EdgeAST, false) {
		assert.NotEqual(t, graph.KindInstructions, g.Node(e.Dest).Kind)
	}
	_, hasInstrs := res.Instrs[f]
	assert.False(t, hasInstrs)
}

// TestBuild_ParametersCarryDeclaredTypeAndIndex verifies each parameter
// VarNode records its positional index and declared value type.
func TestBuild_ParametersCarryDeclaredTypeAndIndex(t *testing.T) {
	f := &wasmir.Function{
		Name:   "$f",
		Params: []wasmir.ValType{wasmir.I32, wasmir.F64},
		Body:   []wasmir.Expr{},
	}
	g, res := buildModule(t, f)

	funcID := res.FuncNodes[f]
	sig := findChildOfKind(t, g, funcID, graph.KindFunctionSignature)
	params := findChildOfKind(t, g, sig, graph.KindParameters)
	vars := g.OutEdges(params, graph.EdgeAST, false)
	require.Len(t, vars, 2)
	assert.Equal(t, 0, g.Node(vars[0].Dest).Index)
	assert.Equal(t, graph.I32, g.Node(vars[0].Dest).VarType)
	assert.Equal(t, 1, g.Node(vars[1].Dest).Index)
	assert.Equal(t, graph.F64, g.Node(vars[1].Dest).VarType)
}

func findChildOfKind(t *testing.T, g *graph.Store, parent graph.NodeID, kind graph.NodeKind) graph.NodeID {
	t.Helper()
	for _, e := range g.OutEdges(parent, graph.EdgeAST, false) {
		if g.Node(e.Dest).Kind == kind {
			return e.Dest
		}
	}
	t.Fatalf("no %s child found under node %d", kind, parent)
	return 0
}
