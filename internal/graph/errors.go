package graph

import "errors"

// Sentinel errors for expected, recoverable conditions. Builder invariant
// violations are not among these — those panic via Invariant, matching
// spec §7's "assertion failures representing internal bugs... the process
// terminates."
var (
	// ErrModuleAlreadySet reports that a Module node was already
	// registered for this store. No Store method returns it: InsertNode
	// panics through Invariant on a second Module node.
	ErrModuleAlreadySet = errors.New("graph: module node already set")

	// ErrNoModule is returned by ModuleNode before any Module node exists.
	ErrNoModule = errors.New("graph: no module node inserted yet")

	// ErrUnknownNode reports a node id outside [0, N). No Store method
	// returns it: Node panics through Invariant on such an id.
	ErrUnknownNode = errors.New("graph: unknown node id")
)

// Invariant panics with msg if cond is false. Used at the few points
// spec §7 names as internal-bug assertions (stack underflow at a reachable
// instruction, missing expression→node mapping, and similar builder
// invariants) rather than returned as recoverable errors: the input is
// assumed to have already passed an external validator, so these
// represent bugs in this program, not bad input.
func Invariant(cond bool, msg string) {
	if !cond {
		panic("graph: invariant violated: " + msg)
	}
}
