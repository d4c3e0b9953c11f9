package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

func buildHostFixture(t *testing.T) (*Host, graph.NodeID, graph.NodeID) {
	t.Helper()
	g := graph.NewStore()
	fn := g.InsertNode(graph.Node{Kind: graph.KindFunction, Name: "$f"})
	inst := g.InsertNode(graph.Node{Kind: graph.KindInstruction, InstType: graph.InstLocalGet, Name: "$x"})
	g.InsertEdge(graph.Edge{Src: fn, Dest: inst, Kind: graph.EdgeAST})
	return NewHost(g), fn, inst
}

// TestNodeAttribute_ResolvesKnownScalarFields verifies each named
// attribute reads off the matching Node field.
func TestNodeAttribute_ResolvesKnownScalarFields(t *testing.T) {
	h, _, inst := buildHostFixture(t)
	n := h.g.Node(inst)

	v, err := h.NodeAttribute(n, "name")
	require.NoError(t, err)
	assert.Equal(t, "$x", v.Str)

	v, err = h.NodeAttribute(n, "instType")
	require.NoError(t, err)
	assert.Equal(t, "LocalGet", v.Str)
}

// TestNodeAttribute_InstTypeOnNonInstructionErrors verifies instType is
// refused on a node that isn't an Instruction.
func TestNodeAttribute_InstTypeOnNonInstructionErrors(t *testing.T) {
	h, fn, _ := buildHostFixture(t)
	_, err := h.NodeAttribute(h.g.Node(fn), "instType")
	assert.Error(t, err)
}

// TestNodeAttribute_UnknownNameErrors verifies an unrecognized
// attribute name is rejected rather than silently returning Nil.
func TestNodeAttribute_UnknownNameErrors(t *testing.T) {
	h, fn, _ := buildHostFixture(t)
	_, err := h.NodeAttribute(h.g.Node(fn), "bogus")
	assert.Error(t, err)
}

// TestChildren_ResolvesOutgoingNodesOfRequestedEdgeType verifies
// Children returns the AST child when asked for "ast" edges.
func TestChildren_ResolvesOutgoingNodesOfRequestedEdgeType(t *testing.T) {
	h, fn, inst := buildHostFixture(t)
	v, err := h.Children(h.g.Node(fn), "ast")
	require.NoError(t, err)
	require.Equal(t, KindNodeList, v.Kind)
	require.Len(t, v.NodeList, 1)
	assert.Equal(t, inst, v.NodeList[0].ID)
}

// TestParents_IsChildrensInverseThroughHost verifies Parents recovers
// the node producing a given child.
func TestParents_IsChildrensInverseThroughHost(t *testing.T) {
	h, fn, inst := buildHostFixture(t)
	v, err := h.Parents(h.g.Node(inst), "ast")
	require.NoError(t, err)
	require.Len(t, v.NodeList, 1)
	assert.Equal(t, fn, v.NodeList[0].ID)
}

// TestChild_ErrorsWhenIndexOutOfRange verifies Child surfaces an error
// rather than a zero-value Node when no child exists at index.
func TestChild_ErrorsWhenIndexOutOfRange(t *testing.T) {
	h, fn, _ := buildHostFixture(t)
	_, err := h.Child(h.g.Node(fn), 5, "ast")
	assert.Error(t, err)
}

// TestFunctions_ListsEveryFunctionNode verifies Functions enumerates
// only Function-kind nodes.
func TestFunctions_ListsEveryFunctionNode(t *testing.T) {
	h, fn, _ := buildHostFixture(t)
	v := h.Functions()
	require.Len(t, v.NodeList, 1)
	assert.Equal(t, fn, v.NodeList[0].ID)
}

// TestPDGEdge_FindsMatchingCategoryEdge verifies PDGEdge locates the
// edge between two nodes carrying the requested category and returns
// Nil when no such edge exists.
func TestPDGEdge_FindsMatchingCategoryEdge(t *testing.T) {
	h, fn, inst := buildHostFixture(t)
	h.g.InsertEdge(graph.Edge{Src: fn, Dest: inst, Kind: graph.EdgePDG, PDGType: graph.PDGLocal, Label: "$x"})

	v, err := h.PDGEdge(h.g.Node(fn), h.g.Node(inst), "Local")
	require.NoError(t, err)
	assert.Equal(t, KindEdge, v.Kind)

	v, err = h.PDGEdge(h.g.Node(fn), h.g.Node(inst), "Global")
	require.NoError(t, err)
	assert.Equal(t, KindNil, v.Kind)
}

// TestReachesPDG_TrueOnlyAlongMatchingCategoryAndLabel verifies
// ReachesPDG respects both the PDG category and label filters.
func TestReachesPDG_TrueOnlyAlongMatchingCategoryAndLabel(t *testing.T) {
	h, fn, inst := buildHostFixture(t)
	h.g.InsertEdge(graph.Edge{Src: fn, Dest: inst, Kind: graph.EdgePDG, PDGType: graph.PDGLocal, Label: "$x"})

	v, err := h.ReachesPDG(h.g.Node(fn), h.g.Node(inst), "Local", "$x")
	require.NoError(t, err)
	assert.True(t, v.Bool)

	v, err = h.ReachesPDG(h.g.Node(fn), h.g.Node(inst), "Local", "$y")
	require.NoError(t, err)
	assert.False(t, v.Bool)
}

// TestVulnerability_BuildsFromPositionalArgs verifies Vulnerability
// requires at least a type argument and otherwise fills Function/
// Caller/Description positionally.
func TestVulnerability_BuildsFromPositionalArgs(t *testing.T) {
	h, _, _ := buildHostFixture(t)

	_, err := h.Vulnerability(nil)
	assert.Error(t, err)

	v, err := h.Vulnerability([]Value{StringValue("Tainted Variable")})
	require.NoError(t, err)
	assert.Equal(t, "Tainted Variable", v.Str)
}

// TestVulnerability_AccumulatesFindingsForRetrieval verifies each
// reported vulnerability is retained on the Host, in report order, so a
// script's findings survive past the call that reported them.
func TestVulnerability_AccumulatesFindingsForRetrieval(t *testing.T) {
	h, _, _ := buildHostFixture(t)

	_, err := h.Vulnerability([]Value{StringValue("Tainted Variable"), StringValue("$f"), StringValue("$g"), StringValue("arg flows to sink")})
	require.NoError(t, err)
	_, err = h.Vulnerability([]Value{StringValue("Use After Free")})
	require.NoError(t, err)

	findings := h.Findings()
	require.Len(t, findings, 2)
	assert.Equal(t, Vulnerability{
		Type:        "Tainted Variable",
		Function:    "$f",
		Caller:      "$g",
		Description: "arg flows to sink",
	}, findings[0])
	assert.Equal(t, "Use After Free", findings[1].Type)
}
