package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/darkmacheken/wasmati-go/internal/checkers"
	"github.com/darkmacheken/wasmati-go/internal/config"
	"github.com/darkmacheken/wasmati-go/internal/dsl"
	"github.com/darkmacheken/wasmati-go/internal/graph"
	"github.com/darkmacheken/wasmati-go/internal/obs"
	"github.com/darkmacheken/wasmati-go/internal/serialize"
)

// flags mirrors spec §6's Query tool surface: -g loads a serialized
// CPG, -q runs a DSL script against it, -i opens an interactive shell,
// --native runs the built-in checker catalog directly.
type flags struct {
	graphFile   string
	queryFile   string
	configFile  string
	outFile     string
	interactive bool
	native      bool
}

func main() {
	f := &flags{}
	cmd := &cobra.Command{
		Use:   "wasmati-query",
		Short: "Load a serialized code property graph and query or check it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), f)
		},
	}
	fs := cmd.Flags()
	fs.StringVarP(&f.graphFile, "graph", "g", "", "serialized CPG archive (zip of csv) to load")
	fs.StringVarP(&f.queryFile, "query", "q", "", "DSL script file to evaluate")
	fs.StringVarP(&f.configFile, "config", "c", "", "checker config JSON file")
	fs.StringVarP(&f.outFile, "out", "o", "", "output file (defaults to stdout)")
	fs.BoolVarP(&f.interactive, "interactive", "i", false, "open an interactive query shell")
	fs.BoolVar(&f.native, "native", false, "run the built-in checker catalog")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, f *flags) error {
	runID := uuid.NewString()
	log := obs.New(obs.Config{Level: obs.LevelInfo, Service: "wasmati-query"}).With("run", runID)
	defer log.Close()

	cfg := config.Default()
	if f.configFile != "" {
		var err error
		cfg, err = config.Load(f.configFile)
		if err != nil {
			return fmt.Errorf("wasmati-query: %w", err)
		}
	}

	if f.graphFile == "" {
		path, err := promptGraphFile()
		if err != nil {
			return fmt.Errorf("wasmati-query: %w", err)
		}
		f.graphFile = path
	}

	g, err := loadGraph(f.graphFile)
	if err != nil {
		return fmt.Errorf("wasmati-query: %w", err)
	}
	stats := g.Stats()
	log.Info("loaded graph", "nodes", stats.Nodes, "edges", stats.Edges)

	switch {
	case f.interactive:
		return runREPL(ctx, f, g, cfg, log)
	case f.queryFile != "":
		host := dsl.NewHost(g)
		val, err := dsl.RunScript(f.queryFile, host)
		if err != nil {
			return fmt.Errorf("wasmati-query: %w", err)
		}
		if findings := host.Findings(); len(findings) > 0 {
			log.Info("script reported vulnerabilities", "count", len(findings))
			buf, err := json.MarshalIndent(findings, "", "  ")
			if err != nil {
				return err
			}
			return writeOut(f.outFile, valueText(val)+"\n"+string(buf)+"\n")
		}
		return writeOut(f.outFile, valueText(val)+"\n")
	case f.native:
		vulns := checkers.RunAll(g, cfg)
		return writeReport(f.outFile, vulns)
	default:
		return writeOut(f.outFile, fmt.Sprintf("loaded %d nodes, %d edges; pass -q, -i, or --native\n", stats.Nodes, stats.Edges))
	}
}

// loadGraph reads the zip-of-csv archive serialize.WriteCSVZip produces
// (spec §6 "-g FILE loads a serialized CPG").
func loadGraph(path string) (*graph.Store, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	return serialize.ReadCSVZip(f, info.Size())
}

func writeReport(path string, vulns []checkers.Vulnerability) error {
	if vulns == nil {
		vulns = []checkers.Vulnerability{}
	}
	buf, err := json.MarshalIndent(vulns, "", "  ")
	if err != nil {
		return err
	}
	return writeOut(path, string(buf)+"\n")
}

func writeOut(path, text string) error {
	if path == "" {
		_, err := fmt.Print(text)
		return err
	}
	return os.WriteFile(path, []byte(text), 0o644)
}
