// Package checkers implements the native vulnerability catalog
// (component F, spec §4.6), expressed via the query engine over a built
// graph. Grounded on the teacher's cli/tools/dispatcher.go catalog
// structure (a slice of named checks run in a fixed order) and on
// original_source/src/vulns.cc for the per-checker query shape,
// generalized from its Query/NodeStream/EdgeStream API to this module's
// internal/query package.
package checkers

import (
	"fmt"
	"sort"

	"github.com/darkmacheken/wasmati-go/internal/config"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/query"
)

// Kind is a human-readable vulnerability kind name, used verbatim in the
// report JSON (spec §6 "Vulnerability report JSON").
type Kind string

const (
	KindUnreachable    Kind = "Unreachable Code"
	KindDangerous      Kind = "Dangerous Function"
	KindFormatString   Kind = "Format Strings"
	KindBufferOverflow Kind = "Buffer Overflow"
	KindTainted        Kind = "Tainted Variable"
	KindUseAfterFree   Kind = "Use After Free"
	KindDoubleFree     Kind = "Double Free"
)

// Vulnerability is one finding, matching spec §6's report object shape.
type Vulnerability struct {
	Type        Kind   `json:"type"`
	Function    string `json:"function"`
	Caller      string `json:"caller,omitempty"`
	Description string `json:"description,omitempty"`
}

// check is one entry of the catalog: a descriptive name (RunAll does not
// read it) plus the function that runs it. Each check is isolated at the function
// granularity conceptually (the checker functions below never let one
// function's malformed state abort the scan of another) per spec §7
// "Checker errors on one function must not prevent other checkers or
// other functions from running".
type check struct {
	name string
	run  func(*graph.Store, config.Config) []Vulnerability
}

// catalog lists every native checker, run in this fixed order (spec §5:
// "checker output order is the order checkers run... as listed by the
// catalog").
var catalog = []check{
	{"unreachable-code", checkUnreachableCode},
	{"dangerous-functions", checkDangerousFunctions},
	{"format-string", checkFormatString},
	{"buffer-overflow-static", checkBufferOverflowStatic},
	{"buffer-overflow-malloc", checkBufferOverflowMalloc},
	{"buffer-overflow-scanf-loop", checkBufferOverflowScanfLoop},
	{"buffer-overflow-memcpy-tainted", checkBufferOverflowMemcpyTainted},
	{"tainted-call-indirect", checkTaintedCallIndirect},
	{"tainted-func-to-func", checkTaintedFuncToFunc},
	{"tainted-local-to-func", checkTaintedLocalToFunc},
	{"use-after-free-double-free", checkUseAfterFreeDoubleFree},
}

// RunAll runs every catalog entry against g and returns every finding in
// catalog order.
func RunAll(g *graph.Store, cfg config.Config) []Vulnerability {
	var out []Vulnerability
	for _, c := range catalog {
		out = append(out, c.run(g, cfg)...)
	}
	return out
}

func functions(g *graph.Store) []graph.Node {
	var out []graph.Node
	for _, n := range g.Nodes() {
		if n.Kind == graph.KindFunction {
			out = append(out, n)
		}
	}
	return out
}

func instructionsOf(g *graph.Store, funcID graph.NodeID) query.Nodes {
	seed := query.NewNodes(g, []graph.NodeID{funcID})
	return seed.BFS(func(_ *graph.Store, n graph.Node) bool {
		return n.Kind == graph.KindInstruction
	}, query.OfKind(graph.EdgeAST), false)
}

func importNames(g *graph.Store) []string {
	var out []string
	for _, f := range functions(g) {
		if f.IsImport {
			out = append(out, f.Name)
		}
	}
	return out
}

// checkUnreachableCode flags, per function, any non-return/block/loop/
// unreachable Instruction with zero incoming CFG edges (spec §4.6).
func checkUnreachableCode(g *graph.Store, cfg config.Config) []Vulnerability {
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		found := instructionsOf(g, f.ID).Filter(func(gs *graph.Store, n graph.Node) bool {
			switch n.InstType {
			case graph.InstReturn, graph.InstBlock, graph.InstLoop, graph.InstUnreachable:
				return false
			}
			return !gs.HasInEdgesOf(n.ID, graph.EdgeCFG)
		})
		if found.Len() > 0 {
			out = append(out, Vulnerability{Type: KindUnreachable, Function: f.Name})
		}
	}
	return out
}

// checkDangerousFunctions flags any Call whose target is in config's
// dangerousFunctions list.
func checkDangerousFunctions(g *graph.Store, cfg config.Config) []Vulnerability {
	if len(cfg.DangerousFunctions) == 0 {
		return nil
	}
	blacklist := toSet(cfg.DangerousFunctions)
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstCall))
		for _, id := range calls.IDs() {
			n := g.Node(id)
			if blacklist[n.Name] {
				out = append(out, Vulnerability{Type: KindDangerous, Function: f.Name, Caller: n.Name})
			}
		}
	}
	return out
}

// checkFormatString flags a Call at a configured argument position whose
// argument lacks any incoming PDG edge of category Const.
func checkFormatString(g *graph.Store, cfg config.Config) []Vulnerability {
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstCall))
		for _, id := range calls.IDs() {
			n := g.Node(id)
			pos, ok := cfg.FormatString[n.Name]
			if !ok {
				continue
			}
			arg, ok := argAt(g, id, pos)
			if !ok {
				continue
			}
			if !hasIncomingPDGConst(g, arg) {
				out = append(out, Vulnerability{Type: KindFormatString, Function: f.Name, Caller: n.Name})
			}
		}
	}
	return out
}

// argAt returns the AST child of a Call/CallIndirect at positional
// index. Call arguments were attached in reverse pop order during the
// AST build (spec §4.2 step 3), so argument 0 is the LAST AST child.
func argAt(g *graph.Store, callID graph.NodeID, index int) (graph.NodeID, bool) {
	children := g.OutEdges(callID, graph.EdgeAST, false)
	pos := len(children) - 1 - index
	if pos < 0 || pos >= len(children) {
		return 0, false
	}
	return children[pos].Dest, true
}

func hasIncomingPDGConst(g *graph.Store, id graph.NodeID) bool {
	for _, e := range g.InEdges(id, graph.EdgePDG, false) {
		if e.PDGType == graph.PDGConst {
			return true
		}
	}
	return false
}

func toSet(xs []string) map[string]bool {
	out := make(map[string]bool, len(xs))
	for _, x := range xs {
		out[x] = true
	}
	return out
}

// checkBufferOverflowStatic implements the shadow-stack static buffer
// overflow checker (spec §4.6, scenario 4 of spec §8): locate the
// `global.get $g0; i32.const N; i32.sub` allocation, the buffer offsets
// reachable from `i32.add K`, then a sink Call whose buffer argument
// resolves through the allocation and whose size argument is a constant
// exceeding the available region.
func checkBufferOverflowStatic(g *graph.Store, cfg config.Config) []Vulnerability {
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		totalSize, buffers, offsetNodes, ok := shadowStackBuffers(g, f.ID)

		calls := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstCall))
		for _, callID := range calls.IDs() {
			call := g.Node(callID)
			boCfg, has := cfg.BufferOverflow[call.Name]
			if !has {
				continue
			}
			bufferArg, argOK := argAt(g, callID, boCfg.Buffer)
			if !argOK {
				continue
			}
			if !ok {
				continue
			}
			sizeArg, sizeOK := argAt(g, callID, boCfg.Size)
			if !sizeOK {
				continue
			}
			sizeConst, hasSize := constValue(g, sizeArg, true)
			if !hasSize {
				continue
			}

			offset, found := resolveBufferOffset(g, callID, bufferArg, offsetNodes)
			if !found {
				continue
			}
			var avail int
			if v, ok := buffers[offset]; ok {
				avail = v
			} else {
				avail = totalSize - offset
			}
			if sizeConst > avail {
				desc := fmt.Sprintf("buffer @+%d is %d and is expecting %d", offset, avail, sizeConst)
				out = append(out, Vulnerability{Type: KindBufferOverflow, Function: f.Name, Caller: call.Name, Description: desc})
			}
		}
	}
	return out
}

// shadowStackBuffers finds the function's shadow-stack allocation
// (global.get $g0; const N; i32.sub, where N's PDG-Const origin feeds
// the sub alongside a Global($g0) origin) and every `i32.add K` offset
// reachable from it, mirroring checkBufferSizes in the teacher's
// vulns.cc.
func shadowStackBuffers(g *graph.Store, funcID graph.NodeID) (total int, buffers map[int]int, offsetNodes map[int]graph.NodeID, ok bool) {
	buffers = map[int]int{}
	offsetNodes = map[int]graph.NodeID{}
	insts := instructionsOf(g, funcID)

	var allocID graph.NodeID
	found := false
	for _, id := range insts.IDs() {
		n := g.Node(id)
		if n.InstType != graph.InstBinary || n.Opcode != "i32.sub" {
			continue
		}
		hasG0, hasConst := false, false
		var constVal int
		for _, e := range g.InEdges(id, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGGlobal && e.Label == "$g0" {
				hasG0 = true
			}
			if e.PDGType == graph.PDGConst {
				hasConst = true
				constVal = int(e.ConstValue)
			}
		}
		if hasG0 && hasConst {
			if found {
				return 0, nil, nil, false // ambiguous, skip (spec requires exactly one)
			}
			found = true
			allocID = id
			total = constVal
		}
	}
	if !found {
		return 0, nil, nil, false
	}
	offsetNodes[0] = allocID

	offsets := map[int]bool{0: true}
	for _, id := range insts.IDs() {
		n := g.Node(id)
		if n.InstType != graph.InstBinary || n.Opcode != "i32.add" {
			continue
		}
		hasG0FromAlloc, hasConst := false, false
		var constVal int
		for _, e := range g.InEdges(id, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGGlobal && e.Label == "$g0" && e.Src == allocID {
				hasG0FromAlloc = true
			}
			if e.PDGType == graph.PDGConst && int(e.ConstValue) > 0 && int(e.ConstValue) < total {
				hasConst = true
				constVal = int(e.ConstValue)
			}
		}
		if hasG0FromAlloc && hasConst {
			offsets[constVal] = true
			offsetNodes[constVal] = id
		}
	}

	sorted := make([]int, 0, len(offsets))
	for o := range offsets {
		sorted = append(sorted, o)
	}
	sort.Ints(sorted)
	for i, o := range sorted {
		if i+1 < len(sorted) {
			buffers[o] = sorted[i+1] - o
		} else {
			buffers[o] = total - o
		}
	}
	return total, buffers, offsetNodes, true
}

// resolveBufferOffset identifies which shadow-stack offset a call's
// buffer argument resolves to. The argument node itself is checked
// first (the common case where the pointer expression is the add/sub
// instruction directly); otherwise the sink call's own incoming PDG
// edges are scanned for an origin matching one of the known offset
// nodes — the PDG builder's Call transfer relabels every consumed
// origin's edge to the call with the call's own name (spec §4.4), so
// the category/label on that edge cannot be trusted, only its origin
// node identity.
func resolveBufferOffset(g *graph.Store, callID, bufferArg graph.NodeID, offsetNodes map[int]graph.NodeID) (int, bool) {
	for offset, nodeID := range offsetNodes {
		if nodeID == bufferArg {
			return offset, true
		}
	}
	for _, e := range g.InEdges(callID, graph.EdgePDG, false) {
		for offset, nodeID := range offsetNodes {
			if e.Src == nodeID {
				return offset, true
			}
		}
	}
	return 0, false
}

func constValue(g *graph.Store, id graph.NodeID, outgoing bool) (int, bool) {
	edges := g.OutEdges(id, graph.EdgePDG, false)
	if !outgoing {
		edges = g.InEdges(id, graph.EdgePDG, false)
	}
	for _, e := range edges {
		if e.PDGType == graph.PDGConst {
			return int(e.ConstValue), true
		}
	}
	return 0, false
}

// checkBufferOverflowMalloc resolves the buffer argument to a
// malloc-like Call via PDG Function edges, reads its constant size
// argument, and compares to the sink's constant size.
func checkBufferOverflowMalloc(g *graph.Store, cfg config.Config) []Vulnerability {
	if len(cfg.Malloc) == 0 {
		return nil
	}
	mallocNames := toSet(cfg.Malloc)
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstCall))
		for _, callID := range calls.IDs() {
			call := g.Node(callID)
			boCfg, has := cfg.BufferOverflow[call.Name]
			if !has {
				continue
			}
			bufferArg, ok := argAt(g, callID, boCfg.Buffer)
			if !ok {
				continue
			}
			sizeArg, ok := argAt(g, callID, boCfg.Size)
			if !ok {
				continue
			}
			sinkSize, ok := constValue(g, sizeArg, true)
			if !ok {
				continue
			}

			mallocCall, foundMalloc := resolveMallocCall(g, callID, bufferArg, mallocNames)
			if !foundMalloc {
				continue
			}
			mallocSize, ok := firstConstArg(g, mallocCall)
			if !ok {
				continue
			}
			if sinkSize > mallocSize {
				desc := fmt.Sprintf("malloc'd buffer is %d and is expecting %d", mallocSize, sinkSize)
				out = append(out, Vulnerability{Type: KindBufferOverflow, Function: f.Name, Caller: call.Name, Description: desc})
			}
		}
	}
	return out
}

// resolveMallocCall finds the malloc-family Call that produced
// bufferArg's value, mirroring resolveBufferOffset's two-tier pattern:
// bufferArg is checked directly first (the common case where the
// pointer expression is the malloc call itself), otherwise the sink
// call's incoming PDG Function edges are scanned for a malloc-named
// origin that is CFG-reachable to bufferArg — the same label-can't-be-
// trusted edge these candidates arrive on would otherwise also match a
// malloc-named origin feeding a different argument of the same call.
func resolveMallocCall(g *graph.Store, callID, bufferArg graph.NodeID, mallocNames map[string]bool) (graph.NodeID, bool) {
	if n := g.Node(bufferArg); n.InstType == graph.InstCall && mallocNames[n.Name] {
		return bufferArg, true
	}
	for _, e := range g.InEdges(callID, graph.EdgePDG, false) {
		if e.PDGType != graph.PDGFunction {
			continue
		}
		origin := g.Node(e.Src)
		if origin.InstType != graph.InstCall || !mallocNames[origin.Name] {
			continue
		}
		if e.Src == bufferArg || query.NewNodes(g, []graph.NodeID{e.Src}).Reaches(bufferArg, query.OfKind(graph.EdgeCFG)) {
			return e.Src, true
		}
	}
	return 0, false
}

func firstConstArg(g *graph.Store, callID graph.NodeID) (int, bool) {
	for _, e := range g.OutEdges(callID, graph.EdgeAST, false) {
		if v, ok := constValue(g, e.Dest, true); ok {
			return v, true
		}
	}
	return 0, false
}

// checkBufferOverflowScanfLoop detects a Loop whose body contains a
// `$scanf` call (matched by that exact name) whose second argument is local-dependent and whose
// terminating BrIf compares a load of the same local, reporting the
// sentinel constant the loop terminates on.
func checkBufferOverflowScanfLoop(g *graph.Store, cfg config.Config) []Vulnerability {
	const scanfName = "$scanf"
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		loops := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstLoop))
		for _, loopID := range loops.IDs() {
			loop := g.Node(loopID)
			body := query.NewNodes(g, []graph.NodeID{loopID}).
				BFS(func(_ *graph.Store, n graph.Node) bool { return true }, query.OfKind(graph.EdgeAST), false)

			scanfCalls := body.Filter(func(gs *graph.Store, n graph.Node) bool {
				if n.InstType != graph.InstCall || n.Name != scanfName {
					return false
				}
				arg1, ok := argAt(gs, n.ID, 1)
				return ok && gs.Node(arg1).InstType == graph.InstLocalGet
			})
			if scanfCalls.Len() == 0 {
				continue
			}

			varDepend := map[string]bool{}
			for _, id := range scanfCalls.IDs() {
				arg1, _ := argAt(g, id, 1)
				for _, e := range g.OutEdges(arg1, graph.EdgePDG, false) {
					if e.PDGType == graph.PDGLocal || e.PDGType == graph.PDGGlobal {
						varDepend[e.Label] = true
					}
				}
			}

			brifs := body.Filter(func(gs *graph.Store, n graph.Node) bool {
				if n.InstType != graph.InstBrIf || n.Label != loop.Label {
					return false
				}
				es := gs.OutEdges(n.ID, graph.EdgeAST, false)
				if len(es) == 0 {
					return false
				}
				cond := gs.Node(es[len(es)-1].Dest)
				return cond.InstType == graph.InstCompare && cond.Opcode != "i32.eq" && cond.Opcode != "i32.eqz"
			})

			for _, brifID := range brifs.IDs() {
				brifSub := query.NewNodes(g, []graph.NodeID{brifID}).BFS(func(_ *graph.Store, n graph.Node) bool { return true }, query.OfKind(graph.EdgeAST), true)
				loads := brifSub.Filter(func(gs *graph.Store, n graph.Node) bool {
					if n.InstType != graph.InstLoad {
						return false
					}
					for _, e := range gs.InEdges(n.ID, graph.EdgePDG, false) {
						if varDepend[e.Label] {
							return true
						}
					}
					return false
				})
				if loads.Len() == 0 {
					continue
				}
				load := loads.Node(0)
				loadChildren := g.OutEdges(load.ID, graph.EdgeAST, false)
				if len(loadChildren) == 0 {
					continue
				}
				childLoad := g.Node(loadChildren[0].Dest)
				if childLoad.InstType != graph.InstLocalGet {
					continue
				}
				condArg, _ := argAt(g, brifID, 0)
				sentinel, ok := constValue(g, condArg, false)
				if !ok {
					continue
				}
				desc := fmt.Sprintf("In loop %s: buffer pointed by %s reaches $scanf until *%s = %d",
					loop.Label, childLoad.Label, childLoad.Label, sentinel)
				out = append(out, Vulnerability{Type: KindBufferOverflow, Function: f.Name, Description: desc})
			}
		}
	}
	return out
}

// checkBufferOverflowMemcpyTainted flags memcpy-family Calls whose
// source argument's local dependencies trace back to a tainted
// parameter of the current or a calling function.
func checkBufferOverflowMemcpyTainted(g *graph.Store, cfg config.Config) []Vulnerability {
	if len(cfg.BoMemcpy) == 0 {
		return nil
	}
	memcpyNames := toSet(cfg.BoMemcpy)
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(func(_ *graph.Store, n graph.Node) bool {
			return n.InstType == graph.InstCall && memcpyNames[n.Name]
		})
		for _, callID := range calls.IDs() {
			call := g.Node(callID)
			srcArg, ok := argAt(g, callID, 1)
			if !ok {
				continue
			}
			tainted := false
			for _, e := range g.OutEdges(srcArg, graph.EdgePDG, false) {
				if e.PDGType != graph.PDGLocal {
					continue
				}
				if localTainted(g, cfg, f.ID, e.Label) {
					tainted = true
					break
				}
			}
			if tainted {
				out = append(out, Vulnerability{Type: KindBufferOverflow, Function: f.Name, Caller: call.Name, Description: "tainted source reaches memcpy"})
			}
		}
	}
	return out
}

func localTainted(g *graph.Store, cfg config.Config, funcID graph.NodeID, localName string) bool {
	params := query.NewNodes(g, []graph.NodeID{funcID}).
		Children(query.OfKind(graph.EdgeAST)).
		Filter(query.KindIs(graph.KindFunctionSignature)).
		Children(query.OfKind(graph.EdgeAST)).
		Filter(query.KindIs(graph.KindParameters)).
		Children(query.OfKind(graph.EdgeAST))
	for _, id := range params.IDs() {
		p := g.Node(id)
		if p.Name == localName {
			visited := map[string]bool{}
			src, _ := isTainted(g, cfg, id, visited)
			return src != ""
		}
	}
	return false
}

// checkTaintedCallIndirect flags a call_indirect whose last argument has
// a PDG origin in a configured source or a tainted parameter.
func checkTaintedCallIndirect(g *graph.Store, cfg config.Config) []Vulnerability {
	sources := cfg.SourceSet(importNames(g))
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(query.InstTypeIs(graph.InstCallIndirect))
		for _, callID := range calls.IDs() {
			children := g.OutEdges(callID, graph.EdgeAST, false)
			if len(children) == 0 {
				continue
			}
			lastArg := children[0].Dest // reverse pop order: index 0 is the last-pushed arg
			flagged := false
			for _, e := range g.InEdges(lastArg, graph.EdgePDG, false) {
				if e.PDGType == graph.PDGFunction {
					origin := g.Node(e.Src)
					if origin.InstType == graph.InstCall && sources[origin.Name] {
						flagged = true
					}
				}
				if e.PDGType == graph.PDGLocal && localTainted(g, cfg, f.ID, e.Label) {
					flagged = true
				}
			}
			if flagged {
				out = append(out, Vulnerability{Type: KindTainted, Function: f.Name, Description: "tainted call_indirect argument"})
			}
		}
	}
	return out
}

// checkTaintedFuncToFunc flags a sink Call one of whose incoming PDG
// Function-category edges originates from a call to a configured source
// (spec §8 scenario 2). The PDG builder relabels every such edge with
// the sink's own name (spec §4.4 "Call f: ...emit PDG edges from each
// origin to this (labeled f)"), so the source identity must be read off
// the edge's origin node rather than its label.
func checkTaintedFuncToFunc(g *graph.Store, cfg config.Config) []Vulnerability {
	sources := cfg.SourceSet(importNames(g))
	sinks := cfg.SinkSet(importNames(g))
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) || sinks[f.Name] {
			continue
		}
		calls := instructionsOf(g, f.ID).Filter(func(_ *graph.Store, n graph.Node) bool {
			return n.InstType == graph.InstCall && sinks[n.Name]
		})
		for _, callID := range calls.IDs() {
			call := g.Node(callID)
			for _, e := range g.InEdges(callID, graph.EdgePDG, false) {
				if e.PDGType != graph.PDGFunction {
					continue
				}
				origin := g.Node(e.Src)
				if origin.InstType == graph.InstCall && sources[origin.Name] {
					desc := fmt.Sprintf("Source %s reaches sink %s", origin.Name, call.Name)
					out = append(out, Vulnerability{Type: KindTainted, Function: f.Name, Caller: call.Name, Description: desc})
					break
				}
			}
		}
	}
	return out
}

// checkTaintedLocalToFunc flags a sink Call one of whose argument's local
// dependencies traces to a tainted parameter, using the shared
// taintedness subroutine (spec §4.6 "Taintedness of a parameter").
func checkTaintedLocalToFunc(g *graph.Store, cfg config.Config) []Vulnerability {
	sinks := cfg.SinkSet(importNames(g))
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) || sinks[f.Name] {
			continue
		}
		paramTaint := map[string]struct{ from, fn string }{}
		params := query.NewNodes(g, []graph.NodeID{f.ID}).
			Children(query.OfKind(graph.EdgeAST)).
			Filter(query.KindIs(graph.KindFunctionSignature)).
			Children(query.OfKind(graph.EdgeAST)).
			Filter(query.KindIs(graph.KindParameters)).
			Children(query.OfKind(graph.EdgeAST))
		for _, id := range params.IDs() {
			p := g.Node(id)
			visited := map[string]bool{}
			from, fn := isTainted(g, cfg, id, visited)
			paramTaint[p.Name] = struct{ from, fn string }{from, fn}
		}

		calls := instructionsOf(g, f.ID).Filter(func(_ *graph.Store, n graph.Node) bool {
			return n.InstType == graph.InstCall && sinks[n.Name]
		})
		for _, callID := range calls.IDs() {
			call := g.Node(callID)
			localDepends := map[string]bool{}
			for _, e := range g.InEdges(callID, graph.EdgePDG, false) {
				if e.PDGType == graph.PDGLocal {
					localDepends[e.Label] = true
				}
			}
			for _, arg := range g.OutEdges(callID, graph.EdgeAST, false) {
				for _, e := range g.InEdges(arg.Dest, graph.EdgePDG, false) {
					if e.PDGType == graph.PDGLocal {
						localDepends[e.Label] = true
					}
				}
			}
			for local := range localDepends {
				t, ok := paramTaint[local]
				if !ok || t.from == "" {
					continue
				}
				desc := fmt.Sprintf("%s tainted from param %s in %s", local, t.from, t.fn)
				out = append(out, Vulnerability{Type: KindTainted, Function: f.Name, Caller: call.Name, Description: desc})
			}
		}
	}
	return out
}

// isTainted is the shared taintedness subroutine (spec §4.6): a
// parameter is tainted if explicitly configured, or if its function is
// an unwhitelisted export under exportedAsSinks, or recursively through
// a caller's PDG Local dependency into one of its own tainted
// parameters. Each function is visited at most once per root query.
func isTainted(g *graph.Store, cfg config.Config, paramID graph.NodeID, visited map[string]bool) (from, fn string) {
	funcID, ok := enclosingFunction(g, paramID)
	if !ok {
		return "", ""
	}
	f := g.Node(funcID)
	if visited[f.Name] {
		return "", ""
	}
	visited[f.Name] = true

	param := g.Node(paramID)
	if tf, ok := cfg.Tainted[f.Name]; ok {
		for _, idx := range tf.Params {
			if idx == param.Index {
				return param.Name, f.Name
			}
		}
	} else if cfg.ExportedAsSinks && f.IsExport && !contains(cfg.WhiteList, f.Name) {
		return param.Name, f.Name
	}

	for _, pgEdge := range g.InEdges(paramID, graph.EdgePG, false) {
		arg := pgEdge.Src
		localVars := map[string]bool{}
		for _, e := range g.OutEdges(arg, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGLocal {
				localVars[e.Label] = true
			}
		}
		for _, e := range g.InEdges(arg, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGLocal {
				localVars[e.Label] = true
			}
		}
		callerFuncID, ok := enclosingFunction(g, arg)
		if !ok {
			continue
		}
		callerParams := query.NewNodes(g, []graph.NodeID{callerFuncID}).
			Children(query.OfKind(graph.EdgeAST)).
			Filter(query.KindIs(graph.KindFunctionSignature)).
			Children(query.OfKind(graph.EdgeAST)).
			Filter(query.KindIs(graph.KindParameters)).
			Children(query.OfKind(graph.EdgeAST))
		for _, pid := range callerParams.IDs() {
			if !localVars[g.Node(pid).Name] {
				continue
			}
			if from, fn := isTainted(g, cfg, pid, visited); from != "" {
				return from, fn
			}
		}
	}
	return "", ""
}

func enclosingFunction(g *graph.Store, id graph.NodeID) (graph.NodeID, bool) {
	for _, e := range g.InEdges(id, graph.EdgeAST, false) {
		n := g.Node(e.Src)
		if n.Kind == graph.KindFunction {
			return n.ID, true
		}
		if pid, ok := enclosingFunction(g, e.Src); ok {
			return pid, true
		}
	}
	return 0, false
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// checkUseAfterFreeDoubleFree implements both resource-pair checkers
// (spec §8 scenarios 5-6): for each configured (alloc, free) pair, finds
// a free CFG-reachable from an alloc carrying the alloc's PDG Function
// label, then scans forward in the CFG from that free for either
// another use (UaF) or another matching free (double-free).
func checkUseAfterFreeDoubleFree(g *graph.Store, cfg config.Config) []Vulnerability {
	var out []Vulnerability
	for _, f := range functions(g) {
		if f.IsImport || cfg.IsIgnored(f.Name) {
			continue
		}
		for _, pair := range cfg.ControlFlow {
			allocCalls := instructionsOf(g, f.ID).Filter(func(_ *graph.Store, n graph.Node) bool {
				return n.InstType == graph.InstCall && n.Name == pair.Source
			})
			for _, allocID := range allocCalls.IDs() {
				out = append(out, walkForUafDf(g, f.Name, allocID, pair)...)
			}
		}
	}
	return out
}

func walkForUafDf(g *graph.Store, funcName string, allocID graph.NodeID, pair config.ControlFlowPair) []Vulnerability {
	var out []Vulnerability
	visited := map[graph.NodeID]bool{}
	type frame struct {
		id       graph.NodeID
		seenFree bool
	}
	var stack []frame
	for _, e := range g.OutEdges(allocID, graph.EdgeCFG, false) {
		stack = append(stack, frame{id: e.Dest, seenFree: false})
	}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[cur.id] {
			continue
		}
		visited[cur.id] = true
		n := g.Node(cur.id)

		carriesAllocLabel := false
		for _, e := range g.InEdges(cur.id, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGFunction && e.Label == pair.Source {
				carriesAllocLabel = true
			}
		}
		for _, e := range g.OutEdges(cur.id, graph.EdgePDG, false) {
			if e.PDGType == graph.PDGFunction && e.Label == pair.Source {
				carriesAllocLabel = true
			}
		}

		seenFree := cur.seenFree
		if n.InstType == graph.InstCall && n.Name == pair.Dest {
			if seenFree && carriesAllocLabel {
				out = append(out, Vulnerability{Type: KindDoubleFree, Function: funcName, Caller: n.Name, Description: n.Name + " called again."})
			}
			seenFree = carriesAllocLabel
		} else if seenFree && carriesAllocLabel {
			desc := fmt.Sprintf("value from call %s used after call to %s", pair.Source, pair.Dest)
			out = append(out, Vulnerability{Type: KindUseAfterFree, Function: funcName, Description: desc})
			seenFree = false
		}

		for _, e := range g.OutEdges(cur.id, graph.EdgeCFG, false) {
			if !visited[e.Dest] {
				stack = append(stack, frame{id: e.Dest, seenFree: seenFree})
			}
		}
	}
	return out
}
