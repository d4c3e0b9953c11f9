// Package config loads and validates the checker catalog's JSON
// configuration (spec §6 "Config JSON schema"). Grounded on the
// teacher's cmd/aleutian/config/loader.go load-then-validate shape, but
// reading JSON (the spec's schema table is explicitly a JSON schema)
// and validating with the same struct-tag validator the teacher already
// requires.
package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
)

// TaintedFunc lists the parameter indices of one function treated as
// explicitly tainted.
type TaintedFunc struct {
	Params []int `json:"params" validate:"dive,gte=0"`
}

// BufferOverflowFunc names the buffer/size argument positions a
// buffer-overflow checker reads for one sink function.
type BufferOverflowFunc struct {
	Buffer int `json:"buffer" validate:"gte=0"`
	Size   int `json:"size" validate:"gte=0"`
}

// ControlFlowPair is an alloc/free-style resource pair used by the
// use-after-free / double-free checkers.
type ControlFlowPair struct {
	Source string `json:"source" validate:"required"`
	Dest   string `json:"dest" validate:"required"`
}

// Config is the full recognized key set from spec §6.
type Config struct {
	ImportAsSources bool     `json:"importAsSources"`
	ImportAsSinks   bool     `json:"importAsSinks"`
	ExportedAsSinks bool     `json:"exportedAsSinks"`
	Ignore          []string `json:"ignore"`
	WhiteList       []string `json:"whiteList"`
	Sources         []string `json:"sources"`
	Sinks           []string `json:"sinks"`

	Tainted        map[string]TaintedFunc        `json:"tainted" validate:"dive"`
	BufferOverflow map[string]BufferOverflowFunc `json:"bufferOverflow" validate:"dive"`
	BoMemcpy       []string                      `json:"boMemcpy"`

	DangerousFunctions []string       `json:"dangerousFunctions"`
	FormatString       map[string]int `json:"formatString" validate:"dive,gte=0"`
	Malloc             []string       `json:"malloc"`

	ControlFlow []ControlFlowPair `json:"controlFlow" validate:"dive"`
}

// Default returns an empty, already-valid Config (every checker that
// needs a config key simply finds nothing configured).
func Default() Config {
	return Config{}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads and validates the config at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := validate.Struct(c); err != nil {
		return Config{}, fmt.Errorf("config: invalid %s: %w", path, err)
	}
	return c, nil
}

// IsIgnored reports whether fn is in the Ignore list.
func (c Config) IsIgnored(fn string) bool {
	return contains(c.Ignore, fn)
}

// SinkSet returns the effective taint-sink set: configured Sinks plus
// (if ImportAsSinks is set) every import name, minus WhiteList.
func (c Config) SinkSet(importNames []string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range c.Sinks {
		out[s] = true
	}
	if c.ImportAsSinks {
		for _, s := range importNames {
			out[s] = true
		}
	}
	for _, w := range c.WhiteList {
		delete(out, w)
	}
	return out
}

// SourceSet returns the effective taint-source set: configured Sources
// plus (if ImportAsSources is set) every import name.
func (c Config) SourceSet(importNames []string) map[string]bool {
	out := make(map[string]bool)
	for _, s := range c.Sources {
		out[s] = true
	}
	if c.ImportAsSources {
		for _, s := range importNames {
			out[s] = true
		}
	}
	return out
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
