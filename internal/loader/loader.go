// Package loader fixes the seam between the CLI and the out-of-scope
// WebAssembly binary/text parser (spec §1 "Out of scope (external
// collaborators): WebAssembly binary/text parsing — an external module
// yields an in-memory module IR"). wasmati's binaries call Load; the
// parser/validator itself is a collaborator this repo does not
// implement, mirroring the repo's treatment of the DSL interpreter and
// the output serializers as fixed-contract collaborators.
package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/darkmacheken/wasmati-go/internal/wasmir"
)

// ErrNoParser is returned by the default Parse until a binary/text
// parser collaborator is wired in via SetParser.
var ErrNoParser = errors.New("loader: no wasm/wat parser wired; Load requires an external parser/validator collaborator")

// Format is the input's syntax, resolved from --wat/--wasm or the file
// extension.
type Format int

const (
	FormatAuto Format = iota
	FormatWat
	FormatWasm
)

// ParseFunc parses raw module bytes into the validated IR. The
// no-check flag disables the parser's own WebAssembly validation pass,
// per spec §6 "--no-check skip validation".
type ParseFunc func(data []byte, format Format, noCheck bool) (*wasmir.Module, error)

var parse ParseFunc

// SetParser installs the external parser/validator collaborator. A
// real deployment wires this in main() before any Load call; the zero
// value left in place makes every Load fail loudly with ErrNoParser
// rather than silently no-op.
func SetParser(p ParseFunc) { parse = p }

// Load reads path and parses it per format/noCheck using the installed
// parser collaborator.
func Load(path string, format Format, noCheck bool) (*wasmir.Module, error) {
	if parse == nil {
		return nil, ErrNoParser
	}
	data, err := readFile(path)
	if err != nil {
		return nil, err
	}
	if format == FormatAuto {
		format = formatOf(path)
	}
	return parse(data, format, noCheck)
}

func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	return data, nil
}

func formatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".wat") {
		return FormatWat
	}
	return FormatWasm
}
