// Package graph is the CPG store: a typed heterogeneous node/edge arena
// with stable integer identity, multi-layer edge sets, and ownership
// guarantees (spec §3, §4.1).
//
// Ownership Model
//
// The Store owns every Node and Edge it creates. Builders insert; queries
// and checkers only read. Nothing is ever deleted once a phase completes;
// the whole graph is freed with the Store itself.
//
// Thread Safety
//
// None provided or required — the system is single-threaded cooperative
// (spec §5). A Store must not be shared across goroutines without external
// synchronization.
//
// Lifecycle
//
// Nodes/edges are created by the AST/CFG/PDG builders or by a
// deserializer, never by queries or checkers. Module/Trap/Start nodes are
// singletons; Trap and Start are created lazily on first demand.
package graph

import "fmt"

// NodeID is a stable, monotonic node identifier assigned at insertion.
type NodeID uint32

// EdgeID is a stable, monotonic edge identifier assigned at insertion.
type EdgeID uint32

// NodeKind is the closed set of node kinds (spec §3 "Nodes").
type NodeKind uint8

const (
	KindModule NodeKind = iota
	KindFunction
	KindFunctionSignature
	KindParameters
	KindLocals
	KindResults
	KindInstructions
	KindElse
	KindTrap
	KindStart
	KindVar
	KindInstruction
)

func (k NodeKind) String() string {
	switch k {
	case KindModule:
		return "Module"
	case KindFunction:
		return "Function"
	case KindFunctionSignature:
		return "FunctionSignature"
	case KindParameters:
		return "Parameters"
	case KindLocals:
		return "Locals"
	case KindResults:
		return "Results"
	case KindInstructions:
		return "Instructions"
	case KindElse:
		return "Else"
	case KindTrap:
		return "Trap"
	case KindStart:
		return "Start"
	case KindVar:
		return "VarNode"
	case KindInstruction:
		return "Instruction"
	default:
		return fmt.Sprintf("NodeKind(%d)", uint8(k))
	}
}

// InstKind is the WebAssembly opcode taxonomy carried by Instruction nodes
// (spec §3 "Nodes" / Instruction). It is the graph-facing counterpart of
// wasmir.ExprKind plus the synthetic marker BeginBlock that the AST
// builder introduces itself.
type InstKind uint8

const (
	InstNop InstKind = iota
	InstUnreachable
	InstReturn
	InstDrop
	InstSelect
	InstConst
	InstBinary
	InstCompare
	InstConvert
	InstUnary
	InstLoad
	InstStore
	InstBr
	InstBrIf
	InstBrTable
	InstLocalGet
	InstLocalSet
	InstLocalTee
	InstGlobalGet
	InstGlobalSet
	InstCall
	InstCallIndirect
	InstBlock
	InstLoop
	InstBeginBlock
	InstIf
	InstMemorySize
	InstMemoryGrow
)

func (k InstKind) String() string {
	names := [...]string{
		"Nop", "Unreachable", "Return", "Drop", "Select", "Const", "Binary",
		"Compare", "Convert", "Unary", "Load", "Store", "Br", "BrIf",
		"BrTable", "LocalGet", "LocalSet", "LocalTee", "GlobalGet",
		"GlobalSet", "Call", "CallIndirect", "Block", "Loop", "BeginBlock",
		"If", "MemorySize", "MemoryGrow",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return fmt.Sprintf("InstKind(%d)", uint8(k))
}

// ValType mirrors wasmir.ValType for attribute storage on VarNode/Const.
type ValType uint8

const (
	TypeNone ValType = iota
	I32
	I64
	F32
	F64
)

func (t ValType) String() string {
	switch t {
	case I32:
		return "i32"
	case I64:
		return "i64"
	case F32:
		return "f32"
	case F64:
		return "f64"
	default:
		return ""
	}
}

// BrTarget is one (index, label) pair of a BrTable's numbered targets,
// retained on the Node for serialization/debugging purposes; the
// authoritative br_table CFG edges are emitted by the CFG builder.
type BrTarget struct {
	Index int
	Label string
}

// Node is a tagged-sum value: Kind selects which fields are meaningful.
// Representing every kind as one flat struct (rather than an interface
// hierarchy) avoids dynamic downcasting in hot paths — callers filter by
// Kind, then read the kind-specific fields directly (spec §4.1).
type Node struct {
	ID   NodeID
	Kind NodeKind

	// Module
	Name string // Module/Function/VarNode(optional)/Call target display

	// Function
	Index    int
	NArgs    int
	NLocals  int
	NResults int
	IsImport bool
	IsExport bool

	// VarNode
	VarType ValType

	// Instruction
	InstType InstKind
	Opcode   string
	// Const
	ConstType  ValType
	ConstValue uint64
	// Br/BrIf/Call/LocalGet.../Block/Loop/BeginBlock label
	Label string
	// Load/Store
	Offset uint32
	// If
	HasElse bool

	// BrTable targets, retained for serialization only.
	BrTargets    []BrTarget
	DefaultLabel string
}

// EdgeKind is the closed set of edge kinds (spec §3 "Edges").
type EdgeKind uint8

const (
	EdgeAST EdgeKind = iota
	EdgeCFG
	EdgePDG
	EdgeCG
	EdgePG
)

func (k EdgeKind) String() string {
	switch k {
	case EdgeAST:
		return "AST"
	case EdgeCFG:
		return "CFG"
	case EdgePDG:
		return "PDG"
	case EdgeCG:
		return "CG"
	case EdgePG:
		return "PG"
	default:
		return fmt.Sprintf("EdgeKind(%d)", uint8(k))
	}
}

// PDGCategory is the dependency category carried by PDG edges.
type PDGCategory uint8

const (
	PDGNone PDGCategory = iota
	PDGLocal
	PDGGlobal
	PDGFunction
	PDGControl
	PDGConst
)

func (c PDGCategory) String() string {
	switch c {
	case PDGLocal:
		return "Local"
	case PDGGlobal:
		return "Global"
	case PDGFunction:
		return "Function"
	case PDGControl:
		return "Control"
	case PDGConst:
		return "Const"
	default:
		return ""
	}
}

// Edge is a source→destination arc tagged with Kind and kind-specific
// attributes (CFG label, PDG category/label/const).
type Edge struct {
	ID   EdgeID
	Src  NodeID
	Dest NodeID
	Kind EdgeKind

	// CFG: "true"/"false"/numeric index/"default". PDG: variable/function/
	// control label. Empty otherwise.
	Label string

	// PDG only.
	PDGType    PDGCategory
	ConstType  ValType
	ConstValue uint64
}
