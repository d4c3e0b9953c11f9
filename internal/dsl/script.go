// Script evaluation is the second out-of-scope boundary Package dsl
// fixes (spec §1 "Out of scope: the DSL lexer/parser/AST evaluator").
// RunScript is the entry point wasmati-query's -q FILE calls; the
// lexer/parser/evaluator that actually walks a script's syntax tree and
// drives Host is a collaborator this repo never implements.
package dsl

import (
	"errors"
	"fmt"
	"os"
)

// ErrNoEvaluator is returned by RunScript until an evaluator
// collaborator is wired in via SetEvaluator.
var ErrNoEvaluator = errors.New("dsl: no script evaluator wired; RunScript requires an external lexer/parser/evaluator collaborator")

// EvalFunc evaluates script text against host, calling back into its
// Node/EdgeAttribute, Children/Parents, and Vulnerability methods as the
// script's function calls resolve.
type EvalFunc func(script string, host *Host) (Value, error)

var eval EvalFunc

// SetEvaluator installs the external DSL evaluator collaborator.
func SetEvaluator(e EvalFunc) { eval = e }

// RunScript reads path and evaluates it against host using the installed
// evaluator.
func RunScript(path string, host *Host) (Value, error) {
	if eval == nil {
		return Nil(), ErrNoEvaluator
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Nil(), fmt.Errorf("dsl: read %s: %w", path, err)
	}
	return eval(string(data), host)
}
