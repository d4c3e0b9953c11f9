package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/darkmacheken/wasmati-go/internal/astbuild"
	"github.com/darkmacheken/wasmati-go/internal/callgraph"
	"github.com/darkmacheken/wasmati-go/internal/cfgbuild"
	"github.com/darkmacheken/wasmati-go/internal/checkers"
	"github.com/darkmacheken/wasmati-go/internal/config"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/loader"
	"github.com/darkmacheken/wasmati-go/internal/obs"
	"github.com/darkmacheken/wasmati-go/internal/pdgbuild"
	"github.com/darkmacheken/wasmati-go/internal/query"
	"github.com/darkmacheken/wasmati-go/internal/serialize"
	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

// flags mirrors spec §6's Analyzer surface. Grouped in one struct
// rather than package-level vars, since this binary has a single
// command (unlike the teacher's subcommand-tree cmd/aleutian).
type flags struct {
	outFile     string
	dotFile     string
	datalogFile string
	archiveFile string
	configFile  string
	funcFilter  string
	loopFilter  string
	verbose     bool
	instrument  bool
	ast, cfg, pdg, cg, pg, all bool
	wat, wasm   bool
	noCheck     bool
}

func main() {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "wasmati FILE",
		Short: "Build a WebAssembly code property graph and run vulnerability checkers",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.outFile, "out", "o", "", "vulnerability report output file")
	fs.StringVarP(&f.dotFile, "dot", "d", "", "DOT graph output file")
	fs.StringVarP(&f.datalogFile, "datalog", "g", "", "Datalog facts output file")
	fs.StringVarP(&f.archiveFile, "archive", "a", "", "CSV+zip CPG archive output file (loadable by wasmati-query -g)")
	fs.StringVarP(&f.configFile, "config", "c", "", "checker config JSON file")
	fs.StringVarP(&f.funcFilter, "function", "f", "", "restrict analysis to one function (name prefixed with $)")
	fs.StringVarP(&f.loopFilter, "loop", "l", "", "restrict emission to instructions within a named loop")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "trace each build phase")
	fs.BoolVarP(&f.instrument, "instrument", "i", false, "emit timing/memory diagnostics")
	fs.BoolVar(&f.ast, "ast", false, "include the AST layer in DOT/Datalog output")
	fs.BoolVar(&f.cfg, "cfg", false, "include the CFG layer")
	fs.BoolVar(&f.pdg, "pdg", false, "include the PDG layer")
	fs.BoolVar(&f.cg, "cg", false, "include the call-graph layer")
	fs.BoolVar(&f.pg, "pg", false, "include the parameter-graph layer")
	fs.BoolVar(&f.all, "all", false, "include every layer")
	fs.BoolVar(&f.wat, "wat", false, "force WebAssembly text format input")
	fs.BoolVar(&f.wasm, "wasm", false, "force WebAssembly binary format input")
	fs.BoolVar(&f.noCheck, "no-check", false, "skip module validation during parsing")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, path string, f *flags) error {
	runID := uuid.NewString()
	log := obs.New(obs.Config{Level: levelOf(f.verbose), Service: "wasmati"}).With("run", runID)
	defer log.Close()

	tel, err := obs.NewTelemetry(obs.TelemetryConfig{ServiceName: "wasmati", Verbose: f.verbose, Instrument: f.instrument})
	if err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}
	defer tel.Shutdown(ctx)

	cfg := config.Default()
	if f.configFile != "" {
		cfg, err = config.Load(f.configFile)
		if err != nil {
			return fmt.Errorf("wasmati: %w", err)
		}
	}

	format := loader.FormatAuto
	switch {
	case f.wat:
		format = loader.FormatWat
	case f.wasm:
		format = loader.FormatWasm
	}

	var m *wasmir.Module
	err = tel.Phase(ctx, "parse", func(ctx context.Context) error {
		mod, err := loader.Load(path, format, f.noCheck)
		if err != nil {
			return err
		}
		m = mod
		return nil
	})
	if err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}
	log.Info("parsed module", "functions", len(m.Functions))

	g := graph.NewStore()

	var ast astbuild.Result
	if err := tel.Phase(ctx, "ast", func(context.Context) error {
		ast = astbuild.NewBuilder(g).Build(m)
		return nil
	}); err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}

	if err := tel.Phase(ctx, "callgraph", func(context.Context) error {
		callgraph.Build(g, m, ast)
		return nil
	}); err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}

	if err := tel.Phase(ctx, "cfg", func(context.Context) error {
		cfgbuild.NewBuilder(g, ast).Build(m)
		return nil
	}); err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}

	if err := tel.Phase(ctx, "pdg", func(context.Context) error {
		pdgbuild.NewBuilder(g, ast).Build(m)
		return nil
	}); err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}

	stats := g.Stats()
	log.Info("built CPG", "nodes", stats.Nodes, "edges", stats.Edges)
	tel.RecordGraphSize(ctx, stats.Nodes, stats.Edges)

	var vulns []checkers.Vulnerability
	_ = tel.Phase(ctx, "checkers", func(context.Context) error {
		vulns = checkers.RunAll(g, cfg)
		return nil
	})
	if f.funcFilter != "" {
		vulns = filterByFunction(vulns, f.funcFilter)
	}
	tel.RecordVulnerabilities(ctx, len(vulns))
	log.Info("ran checkers", "vulnerabilities", len(vulns))

	if err := writeReport(f.outFile, vulns); err != nil {
		return fmt.Errorf("wasmati: %w", err)
	}

	scope := emissionScope(g, f.funcFilter, f.loopFilter)
	if f.dotFile != "" {
		if err := writeTo(f.dotFile, func(w *os.File) error {
			return serialize.WriteDOT(w, g, layerSet(f), scope)
		}); err != nil {
			return fmt.Errorf("wasmati: %w", err)
		}
	}
	if f.datalogFile != "" {
		if err := writeTo(f.datalogFile, func(w *os.File) error {
			return serialize.WriteDatalog(w, g, scope)
		}); err != nil {
			return fmt.Errorf("wasmati: %w", err)
		}
	}
	if f.archiveFile != "" {
		if err := writeTo(f.archiveFile, func(w *os.File) error {
			return serialize.WriteCSVZip(w, g)
		}); err != nil {
			return fmt.Errorf("wasmati: %w", err)
		}
	}
	return nil
}

func filterByFunction(vulns []checkers.Vulnerability, name string) []checkers.Vulnerability {
	var out []checkers.Vulnerability
	for _, v := range vulns {
		if v.Function == name {
			out = append(out, v)
		}
	}
	return out
}

func levelOf(verbose bool) obs.Level {
	if verbose {
		return obs.LevelDebug
	}
	return obs.LevelInfo
}

// layerSet resolves the --ast/--cfg/--pdg/--cg/--pg/--all toggles into
// the DOT writer's layer filter. A nil map (nothing requested) means
// "every layer", matching the writer's own nil-means-unfiltered
// contract when --all or no toggle is given.
func layerSet(f *flags) map[graph.EdgeKind]bool {
	if f.all || (!f.ast && !f.cfg && !f.pdg && !f.cg && !f.pg) {
		return nil
	}
	return map[graph.EdgeKind]bool{
		graph.EdgeAST: f.ast,
		graph.EdgeCFG: f.cfg,
		graph.EdgePDG: f.pdg,
		graph.EdgeCG:  f.cg,
		graph.EdgePG:  f.pg,
	}
}

func writeReport(path string, vulns []checkers.Vulnerability) error {
	if vulns == nil {
		vulns = []checkers.Vulnerability{}
	}
	enc := func(w *os.File) error {
		e := json.NewEncoder(w)
		e.SetIndent("", "  ")
		return e.Encode(vulns)
	}
	if path == "" {
		return enc(os.Stdout)
	}
	return writeTo(path, enc)
}

func writeTo(path string, fn func(*os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()
	return fn(f)
}

// emissionScope resolves -f/-l into the node id set DOT/Datalog output
// is restricted to (spec §6 "-f NAME restrict analysis to a single
// function", "-l NAME restrict emission to instructions within a named
// loop"). A nil result (neither flag set) means unrestricted.
func emissionScope(g *graph.Store, funcName, loopName string) map[graph.NodeID]struct{} {
	if funcName == "" && loopName == "" {
		return nil
	}
	all := query.AllNodes(g)
	if funcName == "" {
		loop, ok := all.FindFirst(query.And(query.InstTypeIs(graph.InstLoop), query.LabelIs(loopName)))
		if !ok {
			return map[graph.NodeID]struct{}{}
		}
		return query.NewNodes(g, []graph.NodeID{loop.ID}).
			BFS(func(*graph.Store, graph.Node) bool { return true }, query.OfKind(graph.EdgeAST), true).ToSet()
	}
	fn, ok := all.FindFirst(query.And(query.KindIs(graph.KindFunction), query.NameIs(funcName)))
	if !ok {
		return map[graph.NodeID]struct{}{}
	}
	scope := query.NewNodes(g, []graph.NodeID{fn.ID}).
		BFS(func(*graph.Store, graph.Node) bool { return true }, query.OfKind(graph.EdgeAST), true)
	if loopName == "" {
		return scope.ToSet()
	}
	loop, ok := scope.FindFirst(query.And(query.InstTypeIs(graph.InstLoop), query.LabelIs(loopName)))
	if !ok {
		return map[graph.NodeID]struct{}{}
	}
	return query.NewNodes(g, []graph.NodeID{loop.ID}).
		BFS(func(*graph.Store, graph.Node) bool { return true }, query.OfKind(graph.EdgeAST), true).ToSet()
}
