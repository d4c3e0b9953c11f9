package cfgbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

func buildCFG(t *testing.T, f *wasmir.Function) (*graph.Store, astbuild.Result) {
	t.Helper()
	g := graph.NewStore()
	m := &wasmir.Module{Functions: []*wasmir.Function{f}}
	ast := astbuild.NewBuilder(g).Build(m)
	NewBuilder(g, ast).Build(m)
	return g, ast
}

func hasCFGEdge(g *graph.Store, src, dest graph.NodeID, label string) bool {
	for _, e := range g.OutEdges(src, graph.EdgeCFG, false) {
		if e.Dest == dest && e.Label == label {
			return true
		}
	}
	return false
}

// TestBuild_StraightLineChainsEveryInstructionThenTheReturnSink verifies
// a branch-free body links each instruction to the next in program
// order and finally to the function's Return sink.
func TestBuild_StraightLineChainsEveryInstructionThenTheReturnSink(t *testing.T) {
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.Drop},
		},
	}
	g, ast := buildCFG(t, f)

	instsID := ast.Instrs[f]
	constID := ast.ExprNodes[&f.Body[0]]
	dropID := ast.ExprNodes[&f.Body[1]]

	assert.True(t, hasCFGEdge(g, instsID, constID, ""))
	assert.True(t, hasCFGEdge(g, constID, dropID, ""))
	assert.True(t, hasCFGEdge(g, dropID, ast.ReturnSink[f], ""))
}

// TestBuild_IfBranchesMergeAtBeginBlockBeforeTheReturnSink verifies both
// the true and false arms of an If are labeled "true"/"false" off the
// If instruction and both converge on the same merge node before
// continuing to the Return sink.
func TestBuild_IfBranchesMergeAtBeginBlockBeforeTheReturnSink(t *testing.T) {
	ifExpr := wasmir.Expr{
		Kind:     wasmir.If,
		HasElse:  true,
		Label:    "$if0",
		Body:     []wasmir.Expr{{Kind: wasmir.Nop}},
		ElseBody: []wasmir.Expr{{Kind: wasmir.Nop}},
	}
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			ifExpr,
		},
	}
	g, ast := buildCFG(t, f)

	constID := ast.ExprNodes[&f.Body[0]]
	ifID := ast.ExprNodes[&f.Body[1]]
	beginTrue := ast.IfBlocks[&f.Body[1].Body]
	nopTrue := ast.ExprNodes[&f.Body[1].Body[0]]
	nopFalse := ast.ExprNodes[&f.Body[1].ElseBody[0]]

	require.True(t, hasCFGEdge(g, constID, ifID, ""))
	assert.True(t, hasCFGEdge(g, ifID, nopTrue, "true"))
	assert.True(t, hasCFGEdge(g, ifID, nopFalse, "false"))
	assert.True(t, hasCFGEdge(g, nopTrue, beginTrue, ""))
	assert.True(t, hasCFGEdge(g, nopFalse, beginTrue, ""))
	assert.True(t, hasCFGEdge(g, beginTrue, ast.ReturnSink[f], ""))
}

// TestBuild_BrJumpsToEnclosingBlockTarget verifies an unconditional
// branch inside a Block resolves its label to the Block's own merge
// node and stops straight-line flow at the branch.
func TestBuild_BrJumpsToEnclosingBlockTarget(t *testing.T) {
	blockExpr := wasmir.Expr{
		Kind:  wasmir.Block,
		Label: "$b0",
		Body:  []wasmir.Expr{{Kind: wasmir.Br, Label: "$b0"}},
	}
	f := &wasmir.Function{Name: "$f", Body: []wasmir.Expr{blockExpr}}
	g, ast := buildCFG(t, f)

	instsID := ast.Instrs[f]
	blockID := ast.ExprNodes[&f.Body[0]]
	brID := ast.ExprNodes[&f.Body[0].Body[0]]

	assert.True(t, hasCFGEdge(g, instsID, brID, ""))
	assert.True(t, hasCFGEdge(g, brID, blockID, ""))
	assert.True(t, hasCFGEdge(g, blockID, ast.ReturnSink[f], ""))
}

// TestBuild_UnreachableRoutesToTrapNodeAndStopsFlow verifies an
// Unreachable instruction connects to the graph's shared Trap node and
// that nothing downstream (including the Return sink) gets an edge
// from it, since control never falls through.
func TestBuild_UnreachableRoutesToTrapNodeAndStopsFlow(t *testing.T) {
	f := &wasmir.Function{Name: "$f", Body: []wasmir.Expr{{Kind: wasmir.Unreachable}}}
	g, ast := buildCFG(t, f)

	instsID := ast.Instrs[f]
	unreachableID := ast.ExprNodes[&f.Body[0]]
	trap := g.TrapNode()

	assert.True(t, hasCFGEdge(g, instsID, unreachableID, ""))
	assert.True(t, hasCFGEdge(g, unreachableID, trap.ID, ""))
	assert.Empty(t, g.OutEdges(unreachableID, graph.EdgeCFG, false)[1:])
	for _, e := range g.OutEdges(unreachableID, graph.EdgeCFG, false) {
		assert.NotEqual(t, ast.ReturnSink[f], e.Dest)
	}
}

// TestBuild_BrIfFallthroughIsLabeledFalse verifies a conditional branch
// that does not take its target labels the fallthrough edge "false"
// rather than leaving it unconditional.
func TestBuild_BrIfFallthroughIsLabeledFalse(t *testing.T) {
	blockExpr := wasmir.Expr{
		Kind:  wasmir.Block,
		Label: "$b0",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.BrIf, Label: "$b0"},
			{Kind: wasmir.Nop},
		},
	}
	f := &wasmir.Function{Name: "$f", Body: []wasmir.Expr{blockExpr}}
	g, ast := buildCFG(t, f)

	brIfID := ast.ExprNodes[&f.Body[0].Body[1]]
	nopID := ast.ExprNodes[&f.Body[0].Body[2]]

	assert.True(t, hasCFGEdge(g, brIfID, nopID, "false"))
}
