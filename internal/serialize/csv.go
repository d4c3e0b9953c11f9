// Package serialize implements the writer/reader layer (component G,
// spec §4.7): dot, csv+zip, json, and datalog writers plus a csv+zip
// reader. Grounded on the teacher's graph serializers but built entirely
// on the standard library's encoding/csv, archive/zip and
// encoding/json — spec §2's implementation budget explicitly excludes
// "third-party JSON/CSV/zip" from its line count, which this module
// reads as directing the implementation itself to the standard library
// rather than a third-party codec; see DESIGN.md.
package serialize

import (
	"archive/zip"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/minio/highwayhash"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

var nodeColumns = []string{
	"id", "nodeType", "name", "index", "nargs", "nlocals", "nresults",
	"isImport", "isExport", "varType", "instType", "opcode", "constType",
	"constValue", "label", "offset", "hasElse",
}

var edgeColumns = []string{"src", "dest", "edgeType", "label", "pdgType", "constType", "constValue"}

// highwayKey is a fixed 32-byte key; the checksum is for round-trip
// integrity detection, not cryptographic authentication, so a
// hard-coded key is appropriate (spec §4.7's round-trip check just
// needs any stable digest).
var highwayKey = make([]byte, 32)

// info is the contents of info.json inside the csv+zip archive.
type info struct {
	NodeCount int    `json:"nodeCount"`
	EdgeCount int    `json:"edgeCount"`
	Checksum  string `json:"checksum"`
}

func boolStr(b bool) string {
	if b {
		return "true"
	}
	return ""
}

func intStr(i int) string {
	if i == 0 {
		return ""
	}
	return strconv.Itoa(i)
}

func nodeRow(n graph.Node) []string {
	row := make([]string, len(nodeColumns))
	row[0] = strconv.FormatUint(uint64(n.ID), 10)
	row[1] = n.Kind.String()
	row[2] = n.Name
	row[3] = intStr(n.Index)
	row[4] = intStr(n.NArgs)
	row[5] = intStr(n.NLocals)
	row[6] = intStr(n.NResults)
	row[7] = boolStr(n.IsImport)
	row[8] = boolStr(n.IsExport)
	row[9] = n.VarType.String()
	if n.Kind == graph.KindInstruction {
		row[10] = n.InstType.String()
	}
	row[11] = n.Opcode
	row[12] = n.ConstType.String()
	if n.ConstType != graph.TypeNone {
		row[13] = strconv.FormatUint(n.ConstValue, 10)
	}
	row[14] = n.Label
	if n.Offset != 0 {
		row[15] = strconv.FormatUint(uint64(n.Offset), 10)
	}
	row[16] = boolStr(n.HasElse)
	return row
}

func edgeRow(e graph.Edge) []string {
	row := make([]string, len(edgeColumns))
	row[0] = strconv.FormatUint(uint64(e.Src), 10)
	row[1] = strconv.FormatUint(uint64(e.Dest), 10)
	row[2] = e.Kind.String()
	row[3] = e.Label
	if e.Kind == graph.EdgePDG {
		row[4] = e.PDGType.String()
	}
	row[5] = e.ConstType.String()
	if e.ConstType != graph.TypeNone {
		row[6] = strconv.FormatUint(e.ConstValue, 10)
	}
	return row
}

// WriteCSVZip writes g as a zip archive containing, in order,
// info.json, nodes.csv, edges.csv (spec §4.7/§6: "Nodes file precedes
// edges file in the zip").
func WriteCSVZip(w io.Writer, g *graph.Store) error {
	zw := zip.NewWriter(w)

	var nodeBuf, edgeBuf writeBuffer
	if err := writeCSV(&nodeBuf, nodeColumns, g.Nodes(), nodeRow); err != nil {
		return fmt.Errorf("serialize: encode nodes.csv: %w", err)
	}
	if err := writeCSVEdges(&edgeBuf, g.Edges()); err != nil {
		return fmt.Errorf("serialize: encode edges.csv: %w", err)
	}

	hash := highwayhash.Sum(append(nodeBuf.Bytes(), edgeBuf.Bytes()...), highwayKey)
	meta := info{
		NodeCount: g.NodeCount(),
		EdgeCount: g.EdgeCount(),
		Checksum:  fmt.Sprintf("%x", hash),
	}

	if err := writeZipEntry(zw, "info.json", func(w io.Writer) error {
		return json.NewEncoder(w).Encode(meta)
	}); err != nil {
		return err
	}
	if err := writeZipEntryBytes(zw, "nodes.csv", nodeBuf.Bytes()); err != nil {
		return err
	}
	if err := writeZipEntryBytes(zw, "edges.csv", edgeBuf.Bytes()); err != nil {
		return err
	}
	return zw.Close()
}

type writeBuffer struct{ b []byte }

func (w *writeBuffer) Write(p []byte) (int, error) { w.b = append(w.b, p...); return len(p), nil }
func (w *writeBuffer) Bytes() []byte               { return w.b }

func writeZipEntry(zw *zip.Writer, name string, f func(io.Writer) error) error {
	fw, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("serialize: create %s: %w", name, err)
	}
	return f(fw)
}

func writeZipEntryBytes(zw *zip.Writer, name string, data []byte) error {
	return writeZipEntry(zw, name, func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
}

func writeCSV(w io.Writer, header []string, rows []graph.Node, toRow func(graph.Node) []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, n := range rows {
		if err := cw.Write(toRow(n)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func writeCSVEdges(w io.Writer, rows []graph.Edge) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(edgeColumns); err != nil {
		return err
	}
	for _, e := range rows {
		if err := cw.Write(edgeRow(e)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
