// Package query implements the fluent node/edge stream algebra over the
// CPG (component E, spec §4.5): children/parents, filter/map, BFS/DFS,
// and a composable predicate builder. Grounded on the teacher's
// graph/query.go functional-options style (QueryOptions/QueryOption),
// generalized from its symbol-graph traversal to the CPG's Node/Edge
// store; traversals iterate in insertion (id) order throughout, per
// spec §4.5 "Determinism".
package query

import "github.com/darkmacheken/wasmati-go/internal/graph"

// Options bounds traversal cost, mirroring the teacher's QueryOptions.
type Options struct {
	Limit    int
	MaxDepth int
}

const (
	DefaultLimit    = 1000
	MaxLimit        = 10000
	DefaultMaxDepth = 64
	MaxMaxDepth     = 10000
)

func DefaultOptions() Options {
	return Options{Limit: DefaultLimit, MaxDepth: DefaultMaxDepth}
}

// Option is a functional option for configuring a traversal.
type Option func(*Options)

// WithLimit sets the maximum number of results. n<=0 resets to the
// default; n above MaxLimit is clamped.
func WithLimit(n int) Option {
	return func(o *Options) {
		switch {
		case n <= 0:
			o.Limit = DefaultLimit
		case n > MaxLimit:
			o.Limit = MaxLimit
		default:
			o.Limit = n
		}
	}
}

// WithMaxDepth sets the maximum BFS/DFS depth.
func WithMaxDepth(d int) Option {
	return func(o *Options) {
		switch {
		case d <= 0:
			o.MaxDepth = DefaultMaxDepth
		case d > MaxMaxDepth:
			o.MaxDepth = MaxMaxDepth
		default:
			o.MaxDepth = d
		}
	}
}

func apply(opts []Option) Options {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// EdgeFilter selects which edge kinds a traversal follows. A nil filter
// follows every kind.
type EdgeFilter func(graph.Edge) bool

// AnyEdge follows every edge kind.
func AnyEdge(graph.Edge) bool { return true }

// OfKind returns an EdgeFilter matching exactly one edge kind.
func OfKind(k graph.EdgeKind) EdgeFilter {
	return func(e graph.Edge) bool { return e.Kind == k }
}

// Nodes is an immutable, ordered node stream — the fluent algebra's
// carrier type. Order is always the Store's insertion order.
type Nodes struct {
	g     *graph.Store
	items []graph.NodeID
}

// NewNodes wraps ids (already in the desired order) as a Nodes stream.
func NewNodes(g *graph.Store, ids []graph.NodeID) Nodes {
	return Nodes{g: g, items: ids}
}

// AllNodes returns every node in the store, in id order.
func AllNodes(g *graph.Store) Nodes {
	ids := make([]graph.NodeID, g.NodeCount())
	for i := range ids {
		ids[i] = graph.NodeID(i)
	}
	return Nodes{g: g, items: ids}
}

// Len reports the number of nodes in the stream.
func (n Nodes) Len() int { return len(n.items) }

// IDs returns the underlying node ids in order.
func (n Nodes) IDs() []graph.NodeID { return n.items }

// Node resolves the i-th id to its Node value.
func (n Nodes) Node(i int) graph.Node { return n.g.Node(n.items[i]) }

// Children returns, for every node in n, its AST/CFG/etc. children
// (edge destinations) matching filter, deduplicated and kept in
// insertion order of first appearance.
func (n Nodes) Children(filter EdgeFilter) Nodes {
	if filter == nil {
		filter = AnyEdge
	}
	seen := make(map[graph.NodeID]bool)
	var out []graph.NodeID
	for _, id := range n.items {
		for _, e := range n.g.OutEdgesAll(id) {
			if filter(e) && !seen[e.Dest] {
				seen[e.Dest] = true
				out = append(out, e.Dest)
			}
		}
	}
	return Nodes{g: n.g, items: out}
}

// Parents is Children's inverse.
func (n Nodes) Parents(filter EdgeFilter) Nodes {
	if filter == nil {
		filter = AnyEdge
	}
	seen := make(map[graph.NodeID]bool)
	var out []graph.NodeID
	for _, id := range n.items {
		for _, e := range n.g.InEdgesAll(id) {
			if filter(e) && !seen[e.Src] {
				seen[e.Src] = true
				out = append(out, e.Src)
			}
		}
	}
	return Nodes{g: n.g, items: out}
}

// Child returns the edge-kind-th child at the given positional index
// among edges of that kind, or (0, false) if out of range.
func (n Nodes) Child(id graph.NodeID, index int, kind graph.EdgeKind) (graph.NodeID, bool) {
	es := n.g.OutEdges(id, kind, false)
	if index < 0 || index >= len(es) {
		return 0, false
	}
	return es[index].Dest, true
}

// Predicate is a composable node test (spec §4.5 "Predicate builder").
type Predicate func(*graph.Store, graph.Node) bool

// And conjuncts predicates (chained calls are implicitly AND per spec).
func And(ps ...Predicate) Predicate {
	return func(g *graph.Store, n graph.Node) bool {
		for _, p := range ps {
			if !p(g, n) {
				return false
			}
		}
		return true
	}
}

// Or disjuncts predicates.
func Or(ps ...Predicate) Predicate {
	return func(g *graph.Store, n graph.Node) bool {
		for _, p := range ps {
			if p(g, n) {
				return true
			}
		}
		return false
	}
}

// Not negates a predicate.
func Not(p Predicate) Predicate {
	return func(g *graph.Store, n graph.Node) bool { return !p(g, n) }
}

// KindIs tests node kind equality.
func KindIs(k graph.NodeKind) Predicate {
	return func(_ *graph.Store, n graph.Node) bool { return n.Kind == k }
}

// InstTypeIs tests Instruction kind equality.
func InstTypeIs(k graph.InstKind) Predicate {
	return func(_ *graph.Store, n graph.Node) bool {
		return n.Kind == graph.KindInstruction && n.InstType == k
	}
}

// NameIs tests name equality.
func NameIs(name string) Predicate {
	return func(_ *graph.Store, n graph.Node) bool { return n.Name == name }
}

// LabelIs tests label equality.
func LabelIs(label string) Predicate {
	return func(_ *graph.Store, n graph.Node) bool { return n.Label == label }
}

// OpcodeIs tests opcode mnemonic equality.
func OpcodeIs(opcode string) Predicate {
	return func(_ *graph.Store, n graph.Node) bool { return n.Opcode == opcode }
}

// IndexIs tests index equality.
func IndexIs(index int) Predicate {
	return func(_ *graph.Store, n graph.Node) bool { return n.Index == index }
}

// HasOutEdge tests presence of at least one outgoing edge matching ef.
func HasOutEdge(ef EdgeFilter) Predicate {
	return func(g *graph.Store, n graph.Node) bool {
		for _, e := range g.OutEdgesAll(n.ID) {
			if ef(e) {
				return true
			}
		}
		return false
	}
}

// HasInEdge tests presence of at least one incoming edge matching ef.
func HasInEdge(ef EdgeFilter) Predicate {
	return func(g *graph.Store, n graph.Node) bool {
		for _, e := range g.InEdgesAll(n.ID) {
			if ef(e) {
				return true
			}
		}
		return false
	}
}

// Func wraps an arbitrary closure as the predicate builder's escape
// hatch.
func Func(f func(*graph.Store, graph.Node) bool) Predicate { return Predicate(f) }

// Filter keeps only nodes satisfying p.
func (n Nodes) Filter(p Predicate) Nodes {
	var out []graph.NodeID
	for _, id := range n.items {
		if p(n.g, n.g.Node(id)) {
			out = append(out, id)
		}
	}
	return Nodes{g: n.g, items: out}
}

// Map transforms the stream's ids via f, returning raw values in order.
func Map[T any](n Nodes, f func(graph.Node) T) []T {
	out := make([]T, len(n.items))
	for i, id := range n.items {
		out[i] = f(n.g.Node(id))
	}
	return out
}

// ToSet returns the stream's ids as a set.
func (n Nodes) ToSet() map[graph.NodeID]struct{} {
	out := make(map[graph.NodeID]struct{}, len(n.items))
	for _, id := range n.items {
		out[id] = struct{}{}
	}
	return out
}

// FindFirst returns the first node satisfying p.
func (n Nodes) FindFirst(p Predicate) (graph.Node, bool) {
	for _, id := range n.items {
		if node := n.g.Node(id); p(n.g, node) {
			return node, true
		}
	}
	return graph.Node{}, false
}

// FindLast returns the last node satisfying p.
func (n Nodes) FindLast(p Predicate) (graph.Node, bool) {
	for i := len(n.items) - 1; i >= 0; i-- {
		if node := n.g.Node(n.items[i]); p(n.g, node) {
			return node, true
		}
	}
	return graph.Node{}, false
}

// Contains reports whether any node satisfies p.
func (n Nodes) Contains(p Predicate) bool {
	_, ok := n.FindFirst(p)
	return ok
}

// BFS explores outward from n's members along edges matching ef, visiting
// nodes satisfying pred, bounded by opts. If includeStart, seed nodes
// are eligible to match pred themselves.
func (n Nodes) BFS(pred Predicate, ef EdgeFilter, includeStart bool, opts ...Option) Nodes {
	o := apply(opts)
	if ef == nil {
		ef = AnyEdge
	}
	type item struct {
		id    graph.NodeID
		depth int
	}
	visited := make(map[graph.NodeID]bool)
	var queue []item
	for _, id := range n.items {
		if !visited[id] {
			visited[id] = true
			queue = append(queue, item{id: id, depth: 0})
		}
	}

	var out []graph.NodeID
	for len(queue) > 0 && len(out) < o.Limit {
		cur := queue[0]
		queue = queue[1:]

		isSeed := false
		for _, id := range n.items {
			if id == cur.id {
				isSeed = true
				break
			}
		}
		if (!isSeed || includeStart) && pred(n.g, n.g.Node(cur.id)) {
			out = append(out, cur.id)
		}
		if cur.depth >= o.MaxDepth {
			continue
		}
		for _, e := range n.g.OutEdgesAll(cur.id) {
			if ef(e) && !visited[e.Dest] {
				visited[e.Dest] = true
				queue = append(queue, item{id: e.Dest, depth: cur.depth + 1})
			}
		}
	}
	return Nodes{g: n.g, items: out}
}

// Reaches tests BFS reachability from every node in n to target, via ef.
func (n Nodes) Reaches(target graph.NodeID, ef EdgeFilter) bool {
	return n.BFS(func(_ *graph.Store, node graph.Node) bool { return node.ID == target }, ef, true).Len() > 0
}

// DFSFolder accumulates user state while visiting a node during DFS.
type DFSFolder[S any] func(state S, node graph.Node) S

// DFS performs a depth-first walk from seed along edges matching ef,
// folding state with f in visit order.
func DFS[S any](g *graph.Store, seed graph.NodeID, ef EdgeFilter, state S, f DFSFolder[S]) S {
	if ef == nil {
		ef = AnyEdge
	}
	visited := make(map[graph.NodeID]bool)
	var walk func(id graph.NodeID)
	walk = func(id graph.NodeID) {
		if visited[id] {
			return
		}
		visited[id] = true
		state = f(state, g.Node(id))
		for _, e := range g.OutEdgesAll(id) {
			if ef(e) {
				walk(e.Dest)
			}
		}
	}
	walk(seed)
	return state
}

// Edges is an ordered edge stream, the edge-side counterpart of Nodes.
type Edges struct {
	g     *graph.Store
	items []graph.Edge
}

// NewEdges wraps es as an Edges stream.
func NewEdges(g *graph.Store, es []graph.Edge) Edges { return Edges{g: g, items: es} }

// AllEdges returns every edge in the store, in id order.
func AllEdges(g *graph.Store) Edges { return Edges{g: g, items: g.Edges()} }

// Len reports the number of edges.
func (e Edges) Len() int { return len(e.items) }

// Items returns the underlying edges in order.
func (e Edges) Items() []graph.Edge { return e.items }

// Filter keeps only edges satisfying ef.
func (e Edges) Filter(ef EdgeFilter) Edges {
	var out []graph.Edge
	for _, edge := range e.items {
		if ef(edge) {
			out = append(out, edge)
		}
	}
	return Edges{g: e.g, items: out}
}

// FilterPDG keeps only PDG edges of the given category, and additionally
// matching label if it is non-empty.
func (e Edges) FilterPDG(category graph.PDGCategory, label string) Edges {
	return e.Filter(func(edge graph.Edge) bool {
		if edge.Kind != graph.EdgePDG || edge.PDGType != category {
			return false
		}
		return label == "" || edge.Label == label
	})
}

// SetUnion returns the union of e and other, deduplicated by edge id.
func (e Edges) SetUnion(other Edges) Edges {
	seen := make(map[graph.EdgeID]bool, len(e.items)+len(other.items))
	var out []graph.Edge
	for _, edge := range e.items {
		if !seen[edge.ID] {
			seen[edge.ID] = true
			out = append(out, edge)
		}
	}
	for _, edge := range other.items {
		if !seen[edge.ID] {
			seen[edge.ID] = true
			out = append(out, edge)
		}
	}
	return Edges{g: e.g, items: out}
}

// DistinctLabel returns one edge per distinct Label value (the first
// encountered in order).
func (e Edges) DistinctLabel() Edges {
	seen := make(map[string]bool)
	var out []graph.Edge
	for _, edge := range e.items {
		if !seen[edge.Label] {
			seen[edge.Label] = true
			out = append(out, edge)
		}
	}
	return Edges{g: e.g, items: out}
}

// MapEdges transforms an edge stream's items via f.
func MapEdges[T any](e Edges, f func(graph.Edge) T) []T {
	out := make([]T, len(e.items))
	for i, edge := range e.items {
		out[i] = f(edge)
	}
	return out
}
