package dsl

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/darkmacheken/wasmati-go/internal/graph"
)

// resetEvaluator ensures SetEvaluator calls in one test never leak into
// another, since eval is a shared package-level variable.
func resetEvaluator(t *testing.T) {
	t.Helper()
	t.Cleanup(func() { eval = nil })
}

// TestRunScript_ErrorsWithoutEvaluator verifies RunScript refuses to
// proceed when no evaluator collaborator has been installed, rather
// than silently doing nothing.
func TestRunScript_ErrorsWithoutEvaluator(t *testing.T) {
	resetEvaluator(t)
	eval = nil

	_, err := RunScript("whatever.dsl", NewHost(graph.NewStore()))
	assert.ErrorIs(t, err, ErrNoEvaluator)
}

// TestRunScript_PassesFileContentsAndHostToEvaluator verifies RunScript
// reads the script file and forwards its exact contents plus the host
// to the installed evaluator.
func TestRunScript_PassesFileContentsAndHostToEvaluator(t *testing.T) {
	resetEvaluator(t)
	host := NewHost(graph.NewStore())

	var gotScript string
	var gotHost *Host
	SetEvaluator(func(script string, h *Host) (Value, error) {
		gotScript = script
		gotHost = h
		return IntValue(7), nil
	})

	path := filepath.Join(t.TempDir(), "script.dsl")
	require.NoError(t, os.WriteFile(path, []byte("functions()"), 0o644))

	v, err := RunScript(path, host)
	require.NoError(t, err)
	assert.Equal(t, "functions()", gotScript)
	assert.Same(t, host, gotHost)
	assert.Equal(t, int64(7), v.Int)
}

// TestRunScript_MissingFilePropagatesReadError verifies a nonexistent
// script path surfaces a wrapped read error without ever invoking the
// evaluator.
func TestRunScript_MissingFilePropagatesReadError(t *testing.T) {
	resetEvaluator(t)
	called := false
	SetEvaluator(func(string, *Host) (Value, error) {
		called = true
		return Nil(), nil
	})

	_, err := RunScript(filepath.Join(t.TempDir(), "missing.dsl"), NewHost(graph.NewStore()))
	assert.Error(t, err)
	assert.False(t, called)
}

// TestRunScript_PropagatesEvaluatorError verifies an evaluator error is
// returned to the caller unwrapped of any sentinel.
func TestRunScript_PropagatesEvaluatorError(t *testing.T) {
	resetEvaluator(t)
	wantErr := errors.New("parse error at line 1")
	SetEvaluator(func(string, *Host) (Value, error) { return Nil(), wantErr })

	path := filepath.Join(t.TempDir(), "script.dsl")
	require.NoError(t, os.WriteFile(path, []byte("bad"), 0o644))

	_, err := RunScript(path, NewHost(graph.NewStore()))
	assert.ErrorIs(t, err, wantErr)
}
