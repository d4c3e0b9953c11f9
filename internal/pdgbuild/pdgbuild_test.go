package pdgbuild

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/cfgbuild"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

func buildPDG(t *testing.T, f *wasmir.Function) (*graph.Store, astbuild.Result) {
	t.Helper()
	g := graph.NewStore()
	m := &wasmir.Module{Functions: []*wasmir.Function{f}}
	ast := astbuild.NewBuilder(g).Build(m)
	cfgbuild.NewBuilder(g, ast).Build(m)
	NewBuilder(g, ast).Build(m)
	return g, ast
}

func pdgEdges(g *graph.Store, src graph.NodeID) []graph.Edge {
	return g.OutEdges(src, graph.EdgePDG, false)
}

// TestBuild_ConstProvenanceSurvivesLocalSetGetToReturnSink verifies a
// constant's origin node is preserved through a local.set/local.get
// round trip and reaches the function's Return sink directly, since
// locals are a pass-through in this implementation's abstract domain.
func TestBuild_ConstProvenanceSurvivesLocalSetGetToReturnSink(t *testing.T) {
	f := &wasmir.Function{
		Name:    "$f",
		Locals:  []wasmir.ValType{wasmir.I32},
		Results: []wasmir.ValType{wasmir.I32},
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 5},
			{Kind: wasmir.LocalSet, VarIndex: 0, VarName: "$x"},
			{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$x"},
		},
	}
	g, ast := buildPDG(t, f)

	constID := ast.ExprNodes[&f.Body[0]]
	sink := ast.ReturnSink[f]

	edges := pdgEdges(g, constID)
	require.Len(t, edges, 1)
	assert.Equal(t, sink, edges[0].Dest)
	assert.Equal(t, graph.PDGConst, edges[0].PDGType)
}

// TestBuild_BinaryOperandsEachGetALocalPDGEdgeToTheOperator verifies a
// Binary instruction's two fresh local reads each produce a distinct
// Local-category PDG edge into the operator node, labeled by the
// source-level local name.
func TestBuild_BinaryOperandsEachGetALocalPDGEdgeToTheOperator(t *testing.T) {
	f := &wasmir.Function{
		Name:   "$f",
		Params: []wasmir.ValType{wasmir.I32, wasmir.I32},
		Body: []wasmir.Expr{
			{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$a"},
			{Kind: wasmir.LocalGet, VarIndex: 1, VarName: "$b"},
			{Kind: wasmir.Binary, Opcode: "i32.add"},
			{Kind: wasmir.Drop},
		},
	}
	g, ast := buildPDG(t, f)

	getA := ast.ExprNodes[&f.Body[0]]
	getB := ast.ExprNodes[&f.Body[1]]
	binID := ast.ExprNodes[&f.Body[2]]

	edgesA := pdgEdges(g, getA)
	require.Len(t, edgesA, 1)
	assert.Equal(t, binID, edgesA[0].Dest)
	assert.Equal(t, graph.PDGLocal, edgesA[0].PDGType)
	assert.Equal(t, "$a", edgesA[0].Label)

	edgesB := pdgEdges(g, getB)
	require.Len(t, edgesB, 1)
	assert.Equal(t, binID, edgesB[0].Dest)
	assert.Equal(t, "$b", edgesB[0].Label)
}

// TestBuild_CallArgumentsEmitFunctionCategoryEdgesLabeledByCallee
// verifies a Call's popped arguments produce PDG edges of category
// Function labeled with the callee's name, distinct from the Local
// category used for local-variable flow.
func TestBuild_CallArgumentsEmitFunctionCategoryEdgesLabeledByCallee(t *testing.T) {
	f := &wasmir.Function{
		Name:   "$f",
		Params: []wasmir.ValType{wasmir.I32},
		Body: []wasmir.Expr{
			{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$a"},
			{Kind: wasmir.Call, FuncName: "$callee", NArgs: 1, NResults: 0},
		},
	}
	g, ast := buildPDG(t, f)

	getA := ast.ExprNodes[&f.Body[0]]
	callID := ast.ExprNodes[&f.Body[1]]

	edges := pdgEdges(g, getA)
	require.Len(t, edges, 1)
	assert.Equal(t, callID, edges[0].Dest)
	assert.Equal(t, graph.PDGFunction, edges[0].PDGType)
	assert.Equal(t, "$callee", edges[0].Label)
}

// TestBuild_SelectConditionEmitsControlCategoryEdge verifies a Select
// instruction's condition operand (the third pop) is linked to the
// Select node with category Control, not Local, since it governs which
// value is chosen rather than supplying the value itself.
func TestBuild_SelectConditionEmitsControlCategoryEdge(t *testing.T) {
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 1},
			{Kind: wasmir.Const, ConstType: wasmir.I32, ConstValue: 2},
			{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$cond"},
			{Kind: wasmir.Select},
			{Kind: wasmir.Drop},
		},
	}
	f.Params = []wasmir.ValType{wasmir.I32}
	g, ast := buildPDG(t, f)

	getCond := ast.ExprNodes[&f.Body[2]]
	selectID := ast.ExprNodes[&f.Body[3]]

	edges := pdgEdges(g, getCond)
	require.Len(t, edges, 1)
	assert.Equal(t, selectID, edges[0].Dest)
	assert.Equal(t, graph.PDGControl, edges[0].PDGType)
}

// TestBuild_IfTrueFalseCFGEdgesMirrorIntoControlPDGEdges verifies every
// true/false labeled CFG edge produced by an If gets a matching Control
// PDG edge, independent of data-flow state.
func TestBuild_IfTrueFalseCFGEdgesMirrorIntoControlPDGEdges(t *testing.T) {
	f := &wasmir.Function{
		Name: "$f",
		Body: []wasmir.Expr{
			{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$cond"},
			{
				Kind:     wasmir.If,
				HasElse:  true,
				Body:     []wasmir.Expr{{Kind: wasmir.Nop}},
				ElseBody: []wasmir.Expr{{Kind: wasmir.Nop}},
			},
		},
	}
	f.Params = []wasmir.ValType{wasmir.I32}
	g, ast := buildPDG(t, f)

	ifID := ast.ExprNodes[&f.Body[1]]
	nopTrue := ast.ExprNodes[&f.Body[1].Body[0]]
	nopFalse := ast.ExprNodes[&f.Body[1].ElseBody[0]]

	foundTrue, foundFalse := false, false
	for _, e := range pdgEdges(g, ifID) {
		if e.PDGType != graph.PDGControl {
			continue
		}
		if e.Dest == nopTrue && e.Label == "true" {
			foundTrue = true
		}
		if e.Dest == nopFalse && e.Label == "false" {
			foundFalse = true
		}
	}
	assert.True(t, foundTrue)
	assert.True(t, foundFalse)
}

// TestBuild_LoopBackEdgeConvergesWithoutInfiniteLoop verifies a Loop
// whose body branches back to its own head still terminates the
// worklist fixpoint (the test's own deadline catches a regression to an
// unbounded loop) and still emits PDG edges off the loop body.
func TestBuild_LoopBackEdgeConvergesWithoutInfiniteLoop(t *testing.T) {
	f := &wasmir.Function{
		Name:   "$f",
		Params: []wasmir.ValType{wasmir.I32},
		Body: []wasmir.Expr{
			{
				Kind:  wasmir.Loop,
				Label: "$loop0",
				Body: []wasmir.Expr{
					{Kind: wasmir.LocalGet, VarIndex: 0, VarName: "$i"},
					{Kind: wasmir.BrIf, Label: "$loop0"},
				},
			},
		},
	}
	g, ast := buildPDG(t, f)

	loopHead := ast.ExprNodes[&f.Body[0]]
	assert.True(t, g.HasInEdgesOf(loopHead, graph.EdgeCFG), "loop head should have a back-edge from BrIf")
}
