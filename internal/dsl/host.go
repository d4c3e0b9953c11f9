// Package dsl is the typed binding surface an external DSL interpreter
// exchanges values with the query engine through. Per spec §1 the
// lexer/parser/AST evaluator themselves are out of scope (a
// collaborator); this package only fixes the contract: the Value sum
// type the interpreter marshals its literals into, and the Host that
// resolves an interpreter-chosen function name plus Values into a
// result, grounded one-for-one on the original's interpreter/
// functions.h symbol table (Functions/NodeFunctions/EdgeFunctions
// static dispatch maps) and interpreter/evaluator.cc's attributesMap/
// memberFunctionsMap/functionsMap string-keyed registries.
package dsl

import (
	"fmt"

	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/query"
)

// Kind discriminates a Value's payload, mirroring the original's
// LiteralType enum (Int, Float, String, Bool, Node, Edge, List, Nil).
type Kind int

const (
	KindNil Kind = iota
	KindInt
	KindFloat
	KindString
	KindBool
	KindNode
	KindEdge
	KindNodeList
	KindEdgeList
)

// Value is the tagged union crossing the Host boundary: every argument
// an interpreter passes in, and every result a Host call returns, is
// one of these. Only one of the typed fields is meaningful per Kind.
type Value struct {
	Kind     Kind
	Int      int64
	Float    float64
	Str      string
	Bool     bool
	Node     graph.Node
	Edge     graph.Edge
	NodeList []graph.Node
	EdgeList []graph.Edge
}

func IntValue(v int64) Value              { return Value{Kind: KindInt, Int: v} }
func StringValue(v string) Value          { return Value{Kind: KindString, Str: v} }
func BoolValue(v bool) Value              { return Value{Kind: KindBool, Bool: v} }
func NodeValue(n graph.Node) Value        { return Value{Kind: KindNode, Node: n} }
func EdgeValue(e graph.Edge) Value        { return Value{Kind: KindEdge, Edge: e} }
func NodeListValue(ns []graph.Node) Value { return Value{Kind: KindNodeList, NodeList: ns} }
func EdgeListValue(es []graph.Edge) Value { return Value{Kind: KindEdgeList, EdgeList: es} }
func Nil() Value                          { return Value{Kind: KindNil} }

// Host resolves DSL attribute/member/free-function names against a
// loaded graph.Store, the same binding an interpreter's evaluator
// would perform through functionsMap/attributesMap/memberFunctionsMap.
type Host struct {
	g        *graph.Store
	findings []Vulnerability
}

// NewHost wraps g for DSL evaluation.
func NewHost(g *graph.Store) *Host { return &Host{g: g} }

// Findings returns every Vulnerability reported by this Host's DSL
// script so far, in report order.
func (h *Host) Findings() []Vulnerability { return h.findings }

// NodeAttribute resolves a node's scalar attribute, grounded on
// evaluator.cc's attributesMap[LiteralType::Node] table.
func (h *Host) NodeAttribute(n graph.Node, name string) (Value, error) {
	switch name {
	case "type":
		return StringValue(n.Kind.String()), nil
	case "name":
		return StringValue(n.Name), nil
	case "index":
		return IntValue(int64(n.Index)), nil
	case "nargs":
		return IntValue(int64(n.NArgs)), nil
	case "nlocals":
		return IntValue(int64(n.NLocals)), nil
	case "nresults":
		return IntValue(int64(n.NResults)), nil
	case "isImport":
		return BoolValue(n.IsImport), nil
	case "isExport":
		return BoolValue(n.IsExport), nil
	case "varType":
		return StringValue(n.VarType.String()), nil
	case "instType":
		if n.Kind != graph.KindInstruction {
			return Nil(), fmt.Errorf("dsl: instType on non-instruction node %d", n.ID)
		}
		return StringValue(n.InstType.String()), nil
	case "opcode":
		return StringValue(n.Opcode), nil
	case "label":
		return StringValue(n.Label), nil
	case "hasElse":
		return BoolValue(n.HasElse), nil
	case "offset":
		return IntValue(int64(n.Offset)), nil
	case "inEdges":
		return EdgeListValue(h.g.InEdgesAll(n.ID)), nil
	case "outEdges":
		return EdgeListValue(h.g.OutEdgesAll(n.ID)), nil
	default:
		return Nil(), fmt.Errorf("dsl: unknown node attribute %q", name)
	}
}

// EdgeAttribute resolves an edge's scalar attribute, grounded on
// evaluator.cc's attributesMap[LiteralType::Edge] table.
func (h *Host) EdgeAttribute(e graph.Edge, name string) (Value, error) {
	switch name {
	case "type":
		return StringValue(e.Kind.String()), nil
	case "label":
		return StringValue(e.Label), nil
	case "src":
		return NodeValue(h.g.Node(e.Src)), nil
	case "dest":
		return NodeValue(h.g.Node(e.Dest)), nil
	case "pdgType":
		if e.Kind != graph.EdgePDG {
			return Nil(), fmt.Errorf("dsl: pdgType on non-PDG edge %d", e.ID)
		}
		return StringValue(e.PDGType.String()), nil
	default:
		return Nil(), fmt.Errorf("dsl: unknown edge attribute %q", name)
	}
}

// edgeKindByName parses the DSL's edge type strings ("ast", "cfg",
// "pdg", "cg", "pg", or "" for any), mirroring Query::ALL_NODES-style
// edge-type-string parameters threaded through the original's child/
// children/descendantsCFG calls.
func edgeKindByName(name string) (query.EdgeFilter, error) {
	switch name {
	case "", "all":
		return query.AnyEdge, nil
	case "ast":
		return query.OfKind(graph.EdgeAST), nil
	case "cfg":
		return query.OfKind(graph.EdgeCFG), nil
	case "pdg":
		return query.OfKind(graph.EdgePDG), nil
	case "cg":
		return query.OfKind(graph.EdgeCG), nil
	case "pg":
		return query.OfKind(graph.EdgePG), nil
	default:
		return nil, fmt.Errorf("dsl: unknown edge type %q", name)
	}
}

// Child resolves NodeFunctions::child(node, index, edgeType): the
// index-th outgoing child of kind edgeType, or an error if absent.
func (h *Host) Child(n graph.Node, index int, edgeType string) (Value, error) {
	kind, err := edgeKindOf(edgeType)
	if err != nil {
		return Nil(), err
	}
	ns := query.NewNodes(h.g, []graph.NodeID{n.ID})
	dest, ok := ns.Child(n.ID, index, kind)
	if !ok {
		return Nil(), fmt.Errorf("dsl: node %d has no %s child at index %d", n.ID, edgeType, index)
	}
	return NodeValue(h.g.Node(dest)), nil
}

func edgeKindOf(name string) (graph.EdgeKind, error) {
	switch name {
	case "", "ast":
		return graph.EdgeAST, nil
	case "cfg":
		return graph.EdgeCFG, nil
	case "pdg":
		return graph.EdgePDG, nil
	case "cg":
		return graph.EdgeCG, nil
	case "pg":
		return graph.EdgePG, nil
	default:
		return 0, fmt.Errorf("dsl: unknown edge type %q", name)
	}
}

// Children resolves NodeFunctions::children(node, edgeType): every
// outgoing child of kind edgeType, in insertion order.
func (h *Host) Children(n graph.Node, edgeType string) (Value, error) {
	ef, err := edgeKindByName(edgeType)
	if err != nil {
		return Nil(), err
	}
	ns := query.NewNodes(h.g, []graph.NodeID{n.ID}).Children(ef)
	return NodeListValue(toNodes(h.g, ns)), nil
}

// Parents is Children's inverse (Functions::descendantsCFG's sibling
// for walking upward, not directly named in the original but required
// to make the binding surface symmetric with the query engine's own
// Children/Parents pair).
func (h *Host) Parents(n graph.Node, edgeType string) (Value, error) {
	ef, err := edgeKindByName(edgeType)
	if err != nil {
		return Nil(), err
	}
	ns := query.NewNodes(h.g, []graph.NodeID{n.ID}).Parents(ef)
	return NodeListValue(toNodes(h.g, ns)), nil
}

// DescendantsCFG resolves Functions::descendantsCFG(node): a BFS over
// CFG edges from node, visiting every node reached.
func (h *Host) DescendantsCFG(n graph.Node) Value {
	ns := query.NewNodes(h.g, []graph.NodeID{n.ID}).
		BFS(func(*graph.Store, graph.Node) bool { return true }, query.OfKind(graph.EdgeCFG), false)
	return NodeListValue(toNodes(h.g, ns))
}

// Instructions resolves Functions::instructions(node): every
// Instruction node reachable from node via AST edges.
func (h *Host) Instructions(n graph.Node) Value {
	ns := query.NewNodes(h.g, []graph.NodeID{n.ID}).
		BFS(query.KindIs(graph.KindInstruction), query.OfKind(graph.EdgeAST), false)
	return NodeListValue(toNodes(h.g, ns))
}

// Functions resolves Functions::functions(): every Function node in
// the store, in id order.
func (h *Host) Functions() Value {
	ns := query.AllNodes(h.g).Filter(query.KindIs(graph.KindFunction))
	return NodeListValue(toNodes(h.g, ns))
}

// PDGEdge resolves Functions::PDGEdge(src, dest, pdgType): the first
// PDG edge from src to dest whose category matches pdgType, or Nil.
func (h *Host) PDGEdge(src, dest graph.Node, pdgType string) (Value, error) {
	cat, err := parsePDGCategory(pdgType)
	if err != nil {
		return Nil(), err
	}
	for _, e := range h.g.OutEdges(src.ID, graph.EdgePDG, false) {
		if e.Dest == dest.ID && e.PDGType == cat {
			return EdgeValue(e), nil
		}
	}
	return Nil(), nil
}

// ReachesPDG resolves Functions::reachesPDG(src, dest, pdgType,
// label): whether a PDG path of edges matching both pdgType and label
// connects src to dest.
func (h *Host) ReachesPDG(src, dest graph.Node, pdgType, label string) (Value, error) {
	cat, err := parsePDGCategory(pdgType)
	if err != nil {
		return Nil(), err
	}
	ef := func(e graph.Edge) bool {
		return e.Kind == graph.EdgePDG && e.PDGType == cat && e.Label == label
	}
	reached := query.NewNodes(h.g, []graph.NodeID{src.ID}).Reaches(dest.ID, ef)
	return BoolValue(reached), nil
}

func parsePDGCategory(s string) (graph.PDGCategory, error) {
	for _, c := range []graph.PDGCategory{graph.PDGLocal, graph.PDGGlobal, graph.PDGFunction, graph.PDGControl, graph.PDGConst} {
		if c.String() == s {
			return c, nil
		}
	}
	return graph.PDGNone, fmt.Errorf("dsl: unknown pdgType %q", s)
}

func toNodes(g *graph.Store, ns query.Nodes) []graph.Node {
	out := make([]graph.Node, ns.Len())
	for i := 0; i < ns.Len(); i++ {
		out[i] = ns.Node(i)
	}
	return out
}

// Vulnerability resolves Functions::vulnerability(type, function,
// caller, description): the interpreter's sink for reporting a finding
// in the same shape native checkers produce, so DSL scripts and the
// native catalog share one report format (spec §6 "Vulnerability
// report").
type Vulnerability struct {
	Type        string `json:"type"`
	Function    string `json:"function,omitempty"`
	Caller      string `json:"caller,omitempty"`
	Description string `json:"description,omitempty"`
}

func (h *Host) Vulnerability(args []Value) (Value, error) {
	if len(args) == 0 {
		return Nil(), fmt.Errorf("dsl: vulnerability() requires at least a type argument")
	}
	v := Vulnerability{Type: args[0].Str}
	if len(args) > 1 {
		v.Function = args[1].Str
	}
	if len(args) > 2 {
		v.Caller = args[2].Str
	}
	if len(args) > 3 {
		v.Description = args[3].Str
	}
	h.findings = append(h.findings, v)
	return Value{Kind: KindString, Str: v.Type}, nil
}
