package serialize

import (
	"archive/zip"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/highwayhash"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

// ReadCSVZip parses a csv+zip archive produced by WriteCSVZip back into
// a fresh Store, verifying the info.json checksum and node/edge counts
// (spec §8 "serialize→deserialize round-trip").
func ReadCSVZip(r io.ReaderAt, size int64) (*graph.Store, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("serialize: open zip: %w", err)
	}
	files := map[string]*zip.File{}
	for _, f := range zr.File {
		files[f.Name] = f
	}

	meta, err := readInfo(files["info.json"])
	if err != nil {
		return nil, err
	}
	nodeData, err := readFile(files["nodes.csv"])
	if err != nil {
		return nil, err
	}
	edgeData, err := readFile(files["edges.csv"])
	if err != nil {
		return nil, err
	}

	hash := highwayhash.Sum(append(append([]byte{}, nodeData...), edgeData...), highwayKey)
	if fmt.Sprintf("%x", hash) != meta.Checksum {
		return nil, fmt.Errorf("serialize: checksum mismatch, archive is corrupt")
	}

	g := graph.NewStore()
	if err := readNodes(g, nodeData); err != nil {
		return nil, err
	}
	if err := readEdges(g, edgeData); err != nil {
		return nil, err
	}
	if g.NodeCount() != meta.NodeCount || g.EdgeCount() != meta.EdgeCount {
		return nil, fmt.Errorf("serialize: node/edge count mismatch: got %d/%d want %d/%d",
			g.NodeCount(), g.EdgeCount(), meta.NodeCount, meta.EdgeCount)
	}
	return g, nil
}

func readFile(f *zip.File) ([]byte, error) {
	if f == nil {
		return nil, fmt.Errorf("serialize: archive missing expected member")
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("serialize: open %s: %w", f.Name, err)
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func readInfo(f *zip.File) (info, error) {
	data, err := readFile(f)
	if err != nil {
		return info{}, err
	}
	var m info
	if err := json.Unmarshal(data, &m); err != nil {
		return info{}, fmt.Errorf("serialize: parse info.json: %w", err)
	}
	return m, nil
}

func readNodes(g *graph.Store, data []byte) error {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return fmt.Errorf("serialize: parse nodes.csv: %w", err)
	}
	for i, row := range records {
		if i == 0 {
			continue // header
		}
		n, err := parseNodeRow(row)
		if err != nil {
			return fmt.Errorf("serialize: nodes.csv row %d: %w", i, err)
		}
		g.InsertNode(n)
	}
	return nil
}

func readEdges(g *graph.Store, data []byte) error {
	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return fmt.Errorf("serialize: parse edges.csv: %w", err)
	}
	for i, row := range records {
		if i == 0 {
			continue
		}
		e, err := parseEdgeRow(row)
		if err != nil {
			return fmt.Errorf("serialize: edges.csv row %d: %w", i, err)
		}
		g.InsertEdge(e)
	}
	return nil
}

func parseNodeRow(row []string) (graph.Node, error) {
	if len(row) != len(nodeColumns) {
		return graph.Node{}, fmt.Errorf("expected %d columns, got %d", len(nodeColumns), len(row))
	}
	kind, err := parseNodeKind(row[1])
	if err != nil {
		return graph.Node{}, err
	}
	n := graph.Node{
		Kind:       kind,
		Name:       row[2],
		Index:      atoiOr0(row[3]),
		NArgs:      atoiOr0(row[4]),
		NLocals:    atoiOr0(row[5]),
		NResults:   atoiOr0(row[6]),
		IsImport:   row[7] == "true",
		IsExport:   row[8] == "true",
		VarType:    parseValType(row[9]),
		Opcode:     row[11],
		ConstType:  parseValType(row[12]),
		ConstValue: atou64Or0(row[13]),
		Label:      row[14],
		Offset:     uint32(atou64Or0(row[15])),
		HasElse:    row[16] == "true",
	}
	if kind == graph.KindInstruction {
		instType, err := parseInstKind(row[10])
		if err != nil {
			return graph.Node{}, err
		}
		n.InstType = instType
	}
	return n, nil
}

func parseEdgeRow(row []string) (graph.Edge, error) {
	if len(row) != len(edgeColumns) {
		return graph.Edge{}, fmt.Errorf("expected %d columns, got %d", len(edgeColumns), len(row))
	}
	kind, err := parseEdgeKind(row[2])
	if err != nil {
		return graph.Edge{}, err
	}
	e := graph.Edge{
		Src:        graph.NodeID(atou64Or0(row[0])),
		Dest:       graph.NodeID(atou64Or0(row[1])),
		Kind:       kind,
		Label:      row[3],
		ConstType:  parseValType(row[5]),
		ConstValue: atou64Or0(row[6]),
	}
	if kind == graph.EdgePDG {
		e.PDGType = parsePDGCategory(row[4])
	}
	return e, nil
}

func atoiOr0(s string) int {
	if s == "" {
		return 0
	}
	v, _ := strconv.Atoi(s)
	return v
}

func atou64Or0(s string) uint64 {
	if s == "" {
		return 0
	}
	v, _ := strconv.ParseUint(s, 10, 64)
	return v
}

func parseValType(s string) graph.ValType {
	switch s {
	case "i32":
		return graph.I32
	case "i64":
		return graph.I64
	case "f32":
		return graph.F32
	case "f64":
		return graph.F64
	default:
		return graph.TypeNone
	}
}

func parseNodeKind(s string) (graph.NodeKind, error) {
	kinds := []graph.NodeKind{
		graph.KindModule, graph.KindFunction, graph.KindFunctionSignature,
		graph.KindParameters, graph.KindLocals, graph.KindResults,
		graph.KindInstructions, graph.KindElse, graph.KindTrap, graph.KindStart,
		graph.KindVar, graph.KindInstruction,
	}
	for _, k := range kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown nodeType %q", s)
}

func parseInstKind(s string) (graph.InstKind, error) {
	for k := graph.InstNop; k <= graph.InstMemoryGrow; k++ {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown instType %q", s)
}

func parseEdgeKind(s string) (graph.EdgeKind, error) {
	kinds := []graph.EdgeKind{graph.EdgeAST, graph.EdgeCFG, graph.EdgePDG, graph.EdgeCG, graph.EdgePG}
	for _, k := range kinds {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown edgeType %q", s)
}

func parsePDGCategory(s string) graph.PDGCategory {
	cats := []graph.PDGCategory{graph.PDGLocal, graph.PDGGlobal, graph.PDGFunction, graph.PDGControl, graph.PDGConst}
	for _, c := range cats {
		if c.String() == s {
			return c
		}
	}
	return graph.PDGNone
}
