// Package astbuild walks a validated module IR and emits the Module-rooted
// AST (component B, spec §4.2), grounded on the teacher's ast-builder.cc
// construction style: a symbolic operand stack plus an orphan list driving
// node placement, generalized from wasmati's C++ node hierarchy to the
// graph package's tagged-sum Node/Edge representation.
package astbuild

import (
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

// ExprNodes maps a *wasmir.Expr to the graph.NodeID it produced. Return
// expressions all map to the same id: the function's canonical Return
// sink (see the Return case of constructExpr below). This realizes
// the "prefer the ExprList-level rule... and unify" resolution for the
// two inconsistent unreachable-tail policies spec §9 flags as an open
// question: every return path — reachable or drained-from-unreachable-
// tail — funnels through one per-function sink node, so CFG/PDG never
// need to special-case which construct() variant produced a Return.
type ExprNodes map[*wasmir.Expr]graph.NodeID

// IfBlocks maps the true-branch body of an If expression to its
// BeginBlock node, the br-target CFG/PDG builders resolve If-body branch
// labels through.
type IfBlocks map[*[]wasmir.Expr]graph.NodeID

// Result is everything the CFG/PDG builders need from the AST phase.
type Result struct {
	ModuleID    graph.NodeID
	ExprNodes   ExprNodes
	IfBlocks    IfBlocks
	ReturnSink  map[*wasmir.Function]graph.NodeID
	Instrs      map[*wasmir.Function]graph.NodeID // the function's Instructions holder
	FuncNodes   map[*wasmir.Function]graph.NodeID
}

// Builder constructs the AST into a graph.Store.
type Builder struct {
	g   *graph.Store
	res Result

	currentFunc *wasmir.Function
}

// NewBuilder returns a Builder writing into g.
func NewBuilder(g *graph.Store) *Builder {
	return &Builder{
		g: g,
		res: Result{
			ExprNodes:  make(ExprNodes),
			IfBlocks:   make(IfBlocks),
			ReturnSink: make(map[*wasmir.Function]graph.NodeID),
			Instrs:     make(map[*wasmir.Function]graph.NodeID),
			FuncNodes:  make(map[*wasmir.Function]graph.NodeID),
		},
	}
}

// Build walks m and returns the AST-phase side tables.
func (b *Builder) Build(m *wasmir.Module) Result {
	moduleID := b.g.InsertNode(graph.Node{Kind: graph.KindModule, Name: m.Name})
	b.res.ModuleID = moduleID

	for _, f := range m.Functions {
		b.buildFunction(moduleID, f)
	}
	return b.res
}

func (b *Builder) buildFunction(moduleID graph.NodeID, f *wasmir.Function) {
	funcID := b.g.InsertNode(graph.Node{
		Kind:     graph.KindFunction,
		Name:     f.Name,
		Index:    int(f.Index),
		NArgs:    len(f.Params),
		NLocals:  len(f.Locals),
		NResults: len(f.Results),
		IsImport: f.IsImport,
		IsExport: f.IsExport,
	})
	b.g.InsertEdge(graph.Edge{Src: moduleID, Dest: funcID, Kind: graph.EdgeAST})
	b.res.FuncNodes[f] = funcID

	sigID := b.g.InsertNode(graph.Node{Kind: graph.KindFunctionSignature})
	b.g.InsertEdge(graph.Edge{Src: funcID, Dest: sigID, Kind: graph.EdgeAST})

	if n := len(f.Params); n > 0 {
		paramsID := b.g.InsertNode(graph.Node{Kind: graph.KindParameters})
		b.g.InsertEdge(graph.Edge{Src: sigID, Dest: paramsID, Kind: graph.EdgeAST})
		for i := 0; i < n; i++ {
			varID := b.g.InsertNode(graph.Node{
				Kind:    graph.KindVar,
				VarType: toGraphType(f.Params[i]),
				Index:   i,
				Name:    f.LocalName(uint32(i)),
			})
			b.g.InsertEdge(graph.Edge{Src: paramsID, Dest: varID, Kind: graph.EdgeAST})
		}
	}
	if n := len(f.Locals); n > 0 {
		localsID := b.g.InsertNode(graph.Node{Kind: graph.KindLocals})
		b.g.InsertEdge(graph.Edge{Src: sigID, Dest: localsID, Kind: graph.EdgeAST})
		for i := 0; i < n; i++ {
			idx := len(f.Params) + i
			varID := b.g.InsertNode(graph.Node{
				Kind:    graph.KindVar,
				VarType: toGraphType(f.Locals[i]),
				Index:   idx,
				Name:    f.LocalName(uint32(idx)),
			})
			b.g.InsertEdge(graph.Edge{Src: localsID, Dest: varID, Kind: graph.EdgeAST})
		}
	}
	if n := len(f.Results); n > 0 {
		resultsID := b.g.InsertNode(graph.Node{Kind: graph.KindResults})
		b.g.InsertEdge(graph.Edge{Src: sigID, Dest: resultsID, Kind: graph.EdgeAST})
		for i := 0; i < n; i++ {
			varID := b.g.InsertNode(graph.Node{
				Kind:    graph.KindVar,
				VarType: toGraphType(f.Results[i]),
				Index:   i,
			})
			b.g.InsertEdge(graph.Edge{Src: resultsID, Dest: varID, Kind: graph.EdgeAST})
		}
	}

	if f.IsImport {
		return
	}

	instID := b.g.InsertNode(graph.Node{Kind: graph.KindInstructions})
	b.g.InsertEdge(graph.Edge{Src: funcID, Dest: instID, Kind: graph.EdgeAST})
	b.res.Instrs[f] = instID

	b.currentFunc = f
	sink := b.g.InsertNode(graph.Node{Kind: graph.KindInstruction, InstType: graph.InstReturn})
	b.res.ReturnSink[f] = sink

	b.constructList(f.Body, len(f.Results), instID)
	b.currentFunc = nil
}

func toGraphType(t wasmir.ValType) graph.ValType {
	switch t {
	case wasmir.I32:
		return graph.I32
	case wasmir.I64:
		return graph.I64
	case wasmir.F32:
		return graph.F32
	case wasmir.F64:
		return graph.F64
	default:
		return graph.TypeNone
	}
}

// constructList walks es (a function body or nested block/if body),
// maintaining an operand stack and an orphan list, then attaches whatever
// remains to holder per the unified ExprList-level drain rule: if the
// list is non-empty, ends in Unreachable, and leaves fewer stack entries
// than nresults, every residual stack entry is drained to holder — the
// single rule spec §9 asks to generalize from the original's two
// inconsistent policies. Otherwise, if holder is the function's
// Instructions node, the top nresults entries feed the canonical Return
// sink and the rest are drained as orphans.
func (b *Builder) constructList(es []wasmir.Expr, nresults int, holder graph.NodeID) {
	var stack []graph.NodeID
	var orphans []graph.NodeID

	for i := range es {
		b.constructExpr(&es[i], &stack, &orphans)
	}

	for _, n := range orphans {
		b.g.InsertEdge(graph.Edge{Src: holder, Dest: n, Kind: graph.EdgeAST})
	}

	endsUnreachable := len(es) > 0 && es[len(es)-1].Kind == wasmir.Unreachable
	isFuncBody := b.currentFunc != nil && b.res.Instrs[b.currentFunc] == holder

	if endsUnreachable && len(stack) < nresults {
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b.g.InsertEdge(graph.Edge{Src: holder, Dest: top, Kind: graph.EdgeAST})
		}
		if isFuncBody {
			sink := b.res.ReturnSink[b.currentFunc]
			b.g.InsertEdge(graph.Edge{Src: holder, Dest: sink, Kind: graph.EdgeAST})
		}
		return
	}

	if isFuncBody {
		sink := b.res.ReturnSink[b.currentFunc]
		for i := 0; i < nresults && len(stack) > 0; i++ {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b.g.InsertEdge(graph.Edge{Src: sink, Dest: top, Kind: graph.EdgeAST})
		}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			b.g.InsertEdge(graph.Edge{Src: holder, Dest: top, Kind: graph.EdgeAST})
		}
		b.g.InsertEdge(graph.Edge{Src: holder, Dest: sink, Kind: graph.EdgeAST})
		return
	}

	for _, n := range stack {
		b.g.InsertEdge(graph.Edge{Src: holder, Dest: n, Kind: graph.EdgeAST})
	}
}

// constructExpr allocates e's Instruction node, pops its operands off
// *stack, attaches them as AST children, and either pushes the result
// back onto *stack or appends the node to *orphans, following the arity
// computed by wasmir.ExprArity.
func (b *Builder) constructExpr(e *wasmir.Expr, stack, orphans *[]graph.NodeID) {
	arity := wasmir.ExprArity(e)
	graph.Invariant(len(*stack) >= arity.NArgs, "AST: operand stack underflow")

	switch e.Kind {
	case wasmir.Block:
		b.constructBlock(e, stack, orphans)
		return
	case wasmir.Loop:
		b.constructLoop(e, stack, orphans)
		return
	case wasmir.If:
		b.constructIf(e, stack, orphans)
		return
	}

	node := graph.Node{Kind: graph.KindInstruction, InstType: toInstKind(e.Kind)}
	switch e.Kind {
	case wasmir.Const:
		node.ConstType = toGraphType(e.ConstType)
		node.ConstValue = e.ConstValue
	case wasmir.Binary, wasmir.Compare, wasmir.Convert, wasmir.Unary, wasmir.Load, wasmir.Store:
		node.Opcode = e.Opcode
		node.Offset = e.Offset
	case wasmir.Br, wasmir.BrIf:
		node.Label = e.Label
	case wasmir.BrTable:
		node.BrTargets = toGraphTargets(e.BrTargets)
		node.DefaultLabel = e.DefaultLabel
	case wasmir.LocalGet, wasmir.LocalSet, wasmir.LocalTee:
		node.Index = int(e.VarIndex)
		node.Label = e.VarName
	case wasmir.GlobalGet, wasmir.GlobalSet:
		node.Index = int(e.VarIndex)
		node.Label = e.VarName
	case wasmir.Call, wasmir.CallIndirect:
		node.Name = e.FuncName
		node.Index = int(e.FuncIndex)
		node.NArgs = arity.NArgs
		node.NResults = arity.NResults
	}

	var id graph.NodeID
	if e.Kind == wasmir.Return {
		id = b.res.ReturnSink[b.currentFunc]
		b.res.ExprNodes[e] = id
	} else {
		id = b.g.InsertNode(node)
		b.res.ExprNodes[e] = id
	}

	for i := 0; i < arity.NArgs; i++ {
		n := len(*stack)
		arg := (*stack)[n-1]
		*stack = (*stack)[:n-1]
		b.g.InsertEdge(graph.Edge{Src: id, Dest: arg, Kind: graph.EdgeAST})
	}

	if arity.NResults == 0 || arity.Unreachable {
		*orphans = append(*orphans, id)
	} else {
		*stack = append(*stack, id)
	}
}

func (b *Builder) constructBlock(e *wasmir.Expr, stack, orphans *[]graph.NodeID) {
	blockID := b.g.InsertNode(graph.Node{
		Kind: graph.KindInstruction, InstType: graph.InstBlock,
		Label: e.Label, NResults: e.NResults,
	})
	b.constructList(e.Body, e.NResults, blockID)

	beginID := b.g.InsertNode(graph.Node{
		Kind: graph.KindInstruction, InstType: graph.InstBeginBlock, Label: e.Label,
	})
	b.g.InsertEdge(graph.Edge{Src: beginID, Dest: blockID, Kind: graph.EdgeAST})
	b.res.ExprNodes[e] = beginID

	if e.NResults == 0 {
		*orphans = append(*orphans, beginID)
	} else {
		*stack = append(*stack, beginID)
	}
}

func (b *Builder) constructLoop(e *wasmir.Expr, stack, orphans *[]graph.NodeID) {
	loopID := b.g.InsertNode(graph.Node{
		Kind: graph.KindInstruction, InstType: graph.InstLoop,
		Label: e.Label, NResults: e.NResults,
	})
	b.res.ExprNodes[e] = loopID
	b.constructList(e.Body, e.NResults, loopID)

	if e.NResults == 0 {
		*orphans = append(*orphans, loopID)
	} else {
		*stack = append(*stack, loopID)
	}
}

func (b *Builder) constructIf(e *wasmir.Expr, stack, orphans *[]graph.NodeID) {
	ifID := b.g.InsertNode(graph.Node{
		Kind: graph.KindInstruction, InstType: graph.InstIf,
		NResults: e.NResults, HasElse: e.HasElse,
	})
	b.res.ExprNodes[e] = ifID

	n := len(*stack)
	cond := (*stack)[n-1]
	*stack = (*stack)[:n-1]
	b.g.InsertEdge(graph.Edge{Src: ifID, Dest: cond, Kind: graph.EdgeAST})

	trueID := b.g.InsertNode(graph.Node{Kind: graph.KindInstruction, InstType: graph.InstBlock, NResults: e.NResults})
	b.g.InsertEdge(graph.Edge{Src: ifID, Dest: trueID, Kind: graph.EdgeAST})
	beginTrue := b.g.InsertNode(graph.Node{Kind: graph.KindInstruction, InstType: graph.InstBeginBlock})
	b.g.InsertEdge(graph.Edge{Src: beginTrue, Dest: trueID, Kind: graph.EdgeAST})
	b.res.IfBlocks[&e.Body] = beginTrue

	b.constructList(e.Body, e.NResults, trueID)

	if e.HasElse {
		elseID := b.g.InsertNode(graph.Node{Kind: graph.KindElse})
		b.g.InsertEdge(graph.Edge{Src: ifID, Dest: elseID, Kind: graph.EdgeAST})
		b.constructList(e.ElseBody, e.NResults, elseID)
	}

	if e.NResults == 0 {
		*orphans = append(*orphans, ifID)
	} else {
		*stack = append(*stack, ifID)
	}
}

func toInstKind(k wasmir.ExprKind) graph.InstKind {
	// wasmir.ExprKind and graph.InstKind share the same ordering for every
	// kind except the synthetic graph-only marker BeginBlock, which
	// sits after Loop in InstKind and are never produced from an ExprKind
	// directly (the builder allocates them itself in constructBlock/If).
	switch k {
	case wasmir.Nop:
		return graph.InstNop
	case wasmir.Unreachable:
		return graph.InstUnreachable
	case wasmir.Return:
		return graph.InstReturn
	case wasmir.Drop:
		return graph.InstDrop
	case wasmir.Select:
		return graph.InstSelect
	case wasmir.Const:
		return graph.InstConst
	case wasmir.Binary:
		return graph.InstBinary
	case wasmir.Compare:
		return graph.InstCompare
	case wasmir.Convert:
		return graph.InstConvert
	case wasmir.Unary:
		return graph.InstUnary
	case wasmir.Load:
		return graph.InstLoad
	case wasmir.Store:
		return graph.InstStore
	case wasmir.Br:
		return graph.InstBr
	case wasmir.BrIf:
		return graph.InstBrIf
	case wasmir.BrTable:
		return graph.InstBrTable
	case wasmir.LocalGet:
		return graph.InstLocalGet
	case wasmir.LocalSet:
		return graph.InstLocalSet
	case wasmir.LocalTee:
		return graph.InstLocalTee
	case wasmir.GlobalGet:
		return graph.InstGlobalGet
	case wasmir.GlobalSet:
		return graph.InstGlobalSet
	case wasmir.Call:
		return graph.InstCall
	case wasmir.CallIndirect:
		return graph.InstCallIndirect
	case wasmir.Block:
		return graph.InstBlock
	case wasmir.Loop:
		return graph.InstLoop
	case wasmir.If:
		return graph.InstIf
	case wasmir.MemorySize:
		return graph.InstMemorySize
	case wasmir.MemoryGrow:
		return graph.InstMemoryGrow
	default:
		return graph.InstNop
	}
}

func toGraphTargets(ts []wasmir.BrTableTarget) []graph.BrTarget {
	if ts == nil {
		return nil
	}
	out := make([]graph.BrTarget, len(ts))
	for i, t := range ts {
		out[i] = graph.BrTarget{Index: t.Index, Label: t.Label}
	}
	return out
}
