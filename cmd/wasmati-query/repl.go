package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/darkmacheken/wasmati-go/internal/checkers"
	"github.com/darkmacheken/wasmati-go/internal/config"
	"github.com/darkmacheken/wasmati-go/internal/dsl"
	"github.com/darkmacheken/wasmati-go/internal/graph"
)

// shell holds the state a REPL command operates on, shared by both the
// bubbletea TUI (tty) and the line-mode fallback (piped stdin).
type shell struct {
	g    *graph.Store
	host *dsl.Host
	cfg  config.Config
}

func newShell(g *graph.Store, cfg config.Config) *shell {
	return &shell{g: g, host: dsl.NewHost(g), cfg: cfg}
}

// reload swaps in a freshly loaded graph, used after fsnotify reports the
// watched -g archive changed on disk.
func (s *shell) reload(g *graph.Store) {
	s.g = g
	s.host = dsl.NewHost(g)
}

// dispatch runs one REPL command line and returns its text output. The
// verb set is the shell's own (children/parents/attr/functions/native/
// stats/help/quit): with the DSL evaluator out of scope (spec §1), the
// shell exercises dsl.Host directly rather than parsing a script
// language, and :run hands a full script off to dsl.RunScript once an
// evaluator collaborator is wired in.
func (s *shell) dispatch(line string) (string, bool) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return "", false
	}
	switch fields[0] {
	case ":quit", ":q", "quit", "exit":
		return "bye", true
	case ":help", ":h", "help":
		return helpText, false
	case ":stats":
		st := s.g.Stats()
		return fmt.Sprintf("nodes=%d edges=%d", st.Nodes, st.Edges), false
	case ":functions":
		ns := s.host.Functions()
		return listNodes(ns), false
	case ":children":
		return s.nodeEdgeCmd(fields, s.host.Children), false
	case ":parents":
		return s.nodeEdgeCmd(fields, s.host.Parents), false
	case ":attr":
		return s.attrCmd(fields), false
	case ":native":
		vulns := checkers.RunAll(s.g, s.cfg)
		return listVulns(vulns), false
	case ":run":
		if len(fields) < 2 {
			return "usage: :run FILE", false
		}
		val, err := dsl.RunScript(fields[1], s.host)
		if err != nil {
			return err.Error(), false
		}
		return valueText(val), false
	default:
		return fmt.Sprintf("unknown command %q; try :help", fields[0]), false
	}
}

const helpText = `commands:
  :stats                        node/edge counts
  :functions                    list every function
  :children ID [edgeType]       outgoing children of node ID
  :parents ID [edgeType]        incoming parents of node ID
  :attr ID NAME                 read a node attribute
  :native                       run the built-in checker catalog
  :run FILE                     evaluate a DSL script file
  :quit                         exit`

func (s *shell) nodeEdgeCmd(fields []string, fn func(graph.Node, string) (dsl.Value, error)) string {
	if len(fields) < 2 {
		return "usage: " + fields[0] + " ID [edgeType]"
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Sprintf("invalid node id %q", fields[1])
	}
	if id < 0 || id >= s.g.NodeCount() {
		return fmt.Sprintf("no such node %d", id)
	}
	edgeType := ""
	if len(fields) > 2 {
		edgeType = fields[2]
	}
	val, err := fn(s.g.Node(graph.NodeID(id)), edgeType)
	if err != nil {
		return err.Error()
	}
	return valueText(val)
}

func (s *shell) attrCmd(fields []string) string {
	if len(fields) < 3 {
		return "usage: :attr ID NAME"
	}
	id, err := strconv.Atoi(fields[1])
	if err != nil {
		return fmt.Sprintf("invalid node id %q", fields[1])
	}
	if id < 0 || id >= s.g.NodeCount() {
		return fmt.Sprintf("no such node %d", id)
	}
	val, err := s.host.NodeAttribute(s.g.Node(graph.NodeID(id)), fields[2])
	if err != nil {
		return err.Error()
	}
	return valueText(val)
}

func listNodes(v dsl.Value) string {
	if v.Kind != dsl.KindNodeList {
		return valueText(v)
	}
	var b strings.Builder
	for _, n := range v.NodeList {
		fmt.Fprintf(&b, "%d\t%s\t%s\n", n.ID, n.Kind, n.Name)
	}
	if b.Len() == 0 {
		return "(none)"
	}
	return strings.TrimRight(b.String(), "\n")
}

func listVulns(vulns []checkers.Vulnerability) string {
	if len(vulns) == 0 {
		return "(no vulnerabilities found)"
	}
	var b strings.Builder
	for _, v := range vulns {
		fmt.Fprintf(&b, "%s\tfunction=%s\tcaller=%s\t%s\n", v.Type, v.Function, v.Caller, v.Description)
	}
	return strings.TrimRight(b.String(), "\n")
}

// valueText renders a dsl.Value for display, the REPL's and -q's shared
// formatter.
func valueText(v dsl.Value) string {
	switch v.Kind {
	case dsl.KindNil:
		return "nil"
	case dsl.KindInt:
		return strconv.FormatInt(v.Int, 10)
	case dsl.KindFloat:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case dsl.KindString:
		return v.Str
	case dsl.KindBool:
		return strconv.FormatBool(v.Bool)
	case dsl.KindNode:
		return fmt.Sprintf("%d\t%s\t%s", v.Node.ID, v.Node.Kind, v.Node.Name)
	case dsl.KindEdge:
		return fmt.Sprintf("%d -> %d\t%s", v.Edge.Src, v.Edge.Dest, v.Edge.Kind)
	case dsl.KindNodeList:
		return listNodes(v)
	case dsl.KindEdgeList:
		var b strings.Builder
		for _, e := range v.EdgeList {
			fmt.Fprintf(&b, "%d -> %d\t%s\n", e.Src, e.Dest, e.Kind)
		}
		if b.Len() == 0 {
			return "(none)"
		}
		return strings.TrimRight(b.String(), "\n")
	default:
		return ""
	}
}
