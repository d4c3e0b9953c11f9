// Package cfgbuild overlays control-flow edges onto the AST's Instruction
// nodes (component C, spec §4.3), grounded on the teacher's
// cfg-builder.cc: a label stack of in-scope block/loop targets plus a
// running "previous instruction" and if-condition flag, walked
// recursively over the same expression lists the AST builder already
// consumed.
package cfgbuild

import (
	"strconv"

	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

type labelTarget struct {
	label  string
	target graph.NodeID
}

// Builder overlays CFG edges using the AST phase's side tables.
type Builder struct {
	g      *graph.Store
	ast    astbuild.Result
	blocks []labelTarget // stack; last element is innermost scope
}

// NewBuilder returns a Builder overlaying CFG edges onto g using the
// given AST-phase result.
func NewBuilder(g *graph.Store, ast astbuild.Result) *Builder {
	return &Builder{g: g, ast: ast}
}

// Build walks every non-import function of m and emits its CFG edges.
func (b *Builder) Build(m *wasmir.Module) {
	for _, f := range m.Functions {
		if f.IsImport {
			continue
		}
		instsID := b.ast.Instrs[f]
		lastInst, ok := b.constructList(f.Body, instsID, false)
		if ok {
			b.g.InsertEdge(graph.Edge{Src: lastInst, Dest: b.ast.ReturnSink[f], Kind: graph.EdgeCFG})
		}
	}
}

// pushBlock/popBlock maintain the label stack innermost-last.
func (b *Builder) pushBlock(label string, target graph.NodeID) {
	b.blocks = append(b.blocks, labelTarget{label: label, target: target})
}

func (b *Builder) popBlock() {
	b.blocks = b.blocks[:len(b.blocks)-1]
}

func (b *Builder) findBlock(label string) (graph.NodeID, bool) {
	for i := len(b.blocks) - 1; i >= 0; i-- {
		if b.blocks[i].label == label {
			return b.blocks[i].target, true
		}
	}
	return 0, false
}

func (b *Builder) isInstOfType(id graph.NodeID, kind graph.InstKind) bool {
	n := b.g.Node(id)
	return n.Kind == graph.KindInstruction && n.InstType == kind
}

// construct overlays CFG edges for a single expression. It returns
// (nodeID, true) when control may fall through past e, or (0, false)
// when e's continuation is unreachable by straight-line flow (the
// WebAssembly "no successor" case — nullptr in the original).
func (b *Builder) construct(e *wasmir.Expr, lastInst graph.NodeID, ifCondition bool) (graph.NodeID, bool) {
	currentInst := b.ast.ExprNodes[e]

	lastIsBrIf := false
	lastIsIf := false
	if e.Kind != wasmir.Block && e.Kind != wasmir.Loop && e.Kind != wasmir.If {
		if b.isInstOfType(lastInst, graph.InstBrIf) {
			b.g.InsertEdge(graph.Edge{Src: lastInst, Dest: currentInst, Kind: graph.EdgeCFG, Label: "false"})
			lastIsBrIf = true
		}
		if b.isInstOfType(lastInst, graph.InstIf) {
			lastIsIf = true
			label := "false"
			if ifCondition {
				label = "true"
			}
			b.g.InsertEdge(graph.Edge{Src: lastInst, Dest: currentInst, Kind: graph.EdgeCFG, Label: label})
		}
	}
	straightLine := func() {
		if !lastIsBrIf && !lastIsIf {
			b.g.InsertEdge(graph.Edge{Src: lastInst, Dest: currentInst, Kind: graph.EdgeCFG})
		}
	}

	switch e.Kind {
	case wasmir.Br:
		straightLine()
		target, ok := b.findBlock(e.Label)
		graph.Invariant(ok, "CFG: br target label not found: "+e.Label)
		b.g.InsertEdge(graph.Edge{Src: currentInst, Dest: target, Kind: graph.EdgeCFG})
		return 0, false

	case wasmir.BrIf:
		straightLine()
		if target, ok := b.findBlock(e.Label); ok {
			b.g.InsertEdge(graph.Edge{Src: currentInst, Dest: target, Kind: graph.EdgeCFG, Label: "true"})
		}
		return currentInst, true

	case wasmir.BrTable:
		straightLine()
		for _, t := range e.BrTargets {
			if target, ok := b.findBlock(t.Label); ok {
				b.g.InsertEdge(graph.Edge{Src: currentInst, Dest: target, Kind: graph.EdgeCFG, Label: strconv.Itoa(t.Index)})
			}
		}
		if target, ok := b.findBlock(e.DefaultLabel); ok {
			b.g.InsertEdge(graph.Edge{Src: currentInst, Dest: target, Kind: graph.EdgeCFG, Label: "default"})
		}
		return 0, false

	case wasmir.If:
		straightLine()
		beginTrue := b.ast.IfBlocks[&e.Body]

		lastTrue, trueOK := b.constructList(e.Body, currentInst, true)
		if trueOK && !b.isInstOfType(lastInst, graph.InstBrIf) {
			b.g.InsertEdge(graph.Edge{Src: lastTrue, Dest: beginTrue, Kind: graph.EdgeCFG})
		}

		falseOK := false
		var lastFalse graph.NodeID
		if e.HasElse {
			b.pushBlock(e.Label, beginTrue)
			lastFalse, falseOK = b.constructList(e.ElseBody, currentInst, false)
			if falseOK && !b.isInstOfType(lastInst, graph.InstBrIf) {
				b.g.InsertEdge(graph.Edge{Src: lastFalse, Dest: beginTrue, Kind: graph.EdgeCFG})
			}
			b.popBlock()
		}

		if !trueOK && !falseOK {
			return 0, false
		}
		return beginTrue, true

	case wasmir.Block:
		currentInst = b.ast.ExprNodes[e] // the BeginBlock merge node
		b.pushBlock(e.Label, currentInst)
		bodyLast, bodyOK := b.constructList(e.Body, lastInst, ifCondition)
		if !bodyOK {
			if b.g.HasInEdgesOf(currentInst, graph.EdgeCFG) {
				b.popBlock()
				return currentInst, true
			}
			b.popBlock()
			return 0, false
		}
		b.popBlock()
		if !lastIsBrIf && !lastIsIf {
			b.g.InsertEdge(graph.Edge{Src: bodyLast, Dest: currentInst, Kind: graph.EdgeCFG})
		}
		return currentInst, true

	case wasmir.Loop:
		straightLine()
		b.pushBlock(e.Label, currentInst)
		bodyLast, bodyOK := b.constructList(e.Body, currentInst, ifCondition)
		if bodyOK && b.isInstOfType(bodyLast, graph.InstBr) {
			bodyOK = false
		}
		b.popBlock()
		if !bodyOK {
			return 0, false
		}
		return bodyLast, true

	case wasmir.Unreachable:
		b.g.InsertEdge(graph.Edge{Src: lastInst, Dest: currentInst, Kind: graph.EdgeCFG})
		b.g.InsertEdge(graph.Edge{Src: currentInst, Dest: b.g.TrapNode().ID, Kind: graph.EdgeCFG})
		return 0, false

	case wasmir.Return:
		straightLine()
		return 0, false

	default:
		straightLine()
		return currentInst, true
	}
}

// constructList threads construct over es, stopping early once an
// expression reports unreachable continuation.
func (b *Builder) constructList(es []wasmir.Expr, lastInst graph.NodeID, ifCondition bool) (graph.NodeID, bool) {
	ok := true
	for i := range es {
		if !ok {
			break
		}
		lastInst, ok = b.construct(&es[i], lastInst, ifCondition)
	}
	return lastInst, ok
}

