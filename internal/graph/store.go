package graph

// Store is the graph's single owner of every node and edge (component A,
// spec §4.1). Builders insert during their phase; every later phase
// (query, checkers, writers) treats it as read-only by convention.
type Store struct {
	nodes []Node
	edges []Edge

	outEdges [][]EdgeID // per node id, outgoing edge ids in insertion order
	inEdges  [][]EdgeID // per node id, incoming edge ids in insertion order

	moduleID NodeID
	hasModule bool
	trapID    NodeID
	hasTrap   bool
	startID   NodeID
	hasStart  bool

	// pdgSeen dedups (src, dest, category, label) PDG edge emission, per
	// spec §4.4 "Emission must be idempotent".
	pdgSeen map[pdgKey]struct{}
}

type pdgKey struct {
	src, dest NodeID
	category  PDGCategory
	label     string
}

// NewStore returns an empty, ready-to-build Store.
func NewStore() *Store {
	return &Store{
		pdgSeen: make(map[pdgKey]struct{}),
	}
}

// InsertNode allocates the next NodeID and records n (n.ID is overwritten).
func (s *Store) InsertNode(n Node) NodeID {
	id := NodeID(len(s.nodes))
	n.ID = id
	s.nodes = append(s.nodes, n)
	s.outEdges = append(s.outEdges, nil)
	s.inEdges = append(s.inEdges, nil)

	switch n.Kind {
	case KindModule:
		Invariant(!s.hasModule, "more than one Module node inserted")
		s.moduleID = id
		s.hasModule = true
	case KindTrap:
		Invariant(!s.hasTrap, "more than one Trap node inserted")
		s.trapID = id
		s.hasTrap = true
	case KindStart:
		Invariant(!s.hasStart, "more than one Start node inserted")
		s.startID = id
		s.hasStart = true
	}
	return id
}

// InsertEdge allocates the next EdgeID and records e (e.ID is overwritten,
// e.Src/e.Dest must already be valid ids).
func (s *Store) InsertEdge(e Edge) EdgeID {
	Invariant(int(e.Src) < len(s.nodes), "edge source id out of range")
	Invariant(int(e.Dest) < len(s.nodes), "edge destination id out of range")

	id := EdgeID(len(s.edges))
	e.ID = id
	s.edges = append(s.edges, e)
	s.outEdges[e.Src] = append(s.outEdges[e.Src], id)
	s.inEdges[e.Dest] = append(s.inEdges[e.Dest], id)
	return id
}

// InsertPDGEdge is the idempotent PDG-edge constructor required by spec
// §4.4/§4.5: repeated calls with the same (src, dest, category, label)
// are no-ops after the first, which is what lets the PDG builder re-run
// transfer functions during fixpoint iteration without creating duplicate
// edges.
func (s *Store) InsertPDGEdge(src, dest NodeID, category PDGCategory, label string, constType ValType, constValue uint64) (EdgeID, bool) {
	key := pdgKey{src: src, dest: dest, category: category, label: label}
	if _, ok := s.pdgSeen[key]; ok {
		return 0, false
	}
	s.pdgSeen[key] = struct{}{}
	id := s.InsertEdge(Edge{
		Src:        src,
		Dest:       dest,
		Kind:       EdgePDG,
		Label:      label,
		PDGType:    category,
		ConstType:  constType,
		ConstValue: constValue,
	})
	return id, true
}

// Nodes returns all nodes in insertion (id) order.
func (s *Store) Nodes() []Node { return s.nodes }

// Edges returns all edges in insertion (id) order.
func (s *Store) Edges() []Edge { return s.edges }

// Node returns the node with the given id.
func (s *Store) Node(id NodeID) Node {
	Invariant(int(id) < len(s.nodes), "Node: unknown node id")
	return s.nodes[id]
}

// NodeCount returns the number of nodes currently stored.
func (s *Store) NodeCount() int { return len(s.nodes) }

// EdgeCount returns the number of edges currently stored.
func (s *Store) EdgeCount() int { return len(s.edges) }

// OutEdges returns id's outgoing edges, optionally filtered by kind (pass
// a nil-valued predicate via OutEdgesAll for no filtering).
func (s *Store) OutEdges(id NodeID, kind EdgeKind, anyKind bool) []Edge {
	return s.filterEdges(s.outEdges[id], kind, anyKind)
}

// InEdges returns id's incoming edges, optionally filtered by kind.
func (s *Store) InEdges(id NodeID, kind EdgeKind, anyKind bool) []Edge {
	return s.filterEdges(s.inEdges[id], kind, anyKind)
}

func (s *Store) filterEdges(ids []EdgeID, kind EdgeKind, anyKind bool) []Edge {
	out := make([]Edge, 0, len(ids))
	for _, id := range ids {
		e := s.edges[id]
		if anyKind || e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// OutEdgesAll returns all of id's outgoing edges regardless of kind.
func (s *Store) OutEdgesAll(id NodeID) []Edge { return s.OutEdges(id, 0, true) }

// InEdgesAll returns all of id's incoming edges regardless of kind.
func (s *Store) InEdgesAll(id NodeID) []Edge { return s.InEdges(id, 0, true) }

// HasInEdgesOf reports whether id has at least one incoming edge of kind.
func (s *Store) HasInEdgesOf(id NodeID, kind EdgeKind) bool {
	for _, eid := range s.inEdges[id] {
		if s.edges[eid].Kind == kind {
			return true
		}
	}
	return false
}

// ModuleNode returns the singleton Module node, or ErrNoModule if none
// has been inserted yet.
func (s *Store) ModuleNode() (Node, error) {
	if !s.hasModule {
		return Node{}, ErrNoModule
	}
	return s.nodes[s.moduleID], nil
}

// TrapNode returns the singleton Trap node, creating it on first demand.
func (s *Store) TrapNode() Node {
	if !s.hasTrap {
		s.InsertNode(Node{Kind: KindTrap})
	}
	return s.nodes[s.trapID]
}

// StartNode returns the singleton Start node, creating it on first demand.
func (s *Store) StartNode() Node {
	if !s.hasStart {
		s.InsertNode(Node{Kind: KindStart})
	}
	return s.nodes[s.startID]
}

// Stats reports counts for diagnostics (spec §4.1 "Memory and node/edge
// counts reportable for diagnostics").
type Stats struct {
	Nodes int
	Edges int
}

// Stats returns current node/edge counts.
func (s *Store) Stats() Stats {
	return Stats{Nodes: len(s.nodes), Edges: len(s.edges)}
}
