package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeConfig marshals v to a temp JSON file and returns its path.
func writeConfig(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

// TestLoad_ParsesRecognizedKeys verifies every top-level key round-trips
// through JSON into the matching Config field.
func TestLoad_ParsesRecognizedKeys(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"importAsSources": true,
		"sinks":           []string{"strcpy"},
		"tainted":         map[string]any{"$f": map[string]any{"params": []int{0, 1}}},
		"bufferOverflow":  map[string]any{"$memcpy": map[string]any{"buffer": 0, "size": 2}},
		"controlFlow":     []map[string]string{{"source": "$malloc", "dest": "$free"}},
	})

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.ImportAsSources)
	assert.Equal(t, []string{"strcpy"}, cfg.Sinks)
	assert.Equal(t, []int{0, 1}, cfg.Tainted["$f"].Params)
	assert.Equal(t, 2, cfg.BufferOverflow["$memcpy"].Size)
	require.Len(t, cfg.ControlFlow, 1)
	assert.Equal(t, "$malloc", cfg.ControlFlow[0].Source)
}

// TestLoad_RejectsNegativeTaintedParam verifies the validator enforces
// gte=0 on tainted parameter indices.
func TestLoad_RejectsNegativeTaintedParam(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"tainted": map[string]any{"$f": map[string]any{"params": []int{-1}}},
	})

	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoad_RejectsControlFlowPairMissingDest verifies the required tag
// on ControlFlowPair.Dest rejects an incomplete pair.
func TestLoad_RejectsControlFlowPairMissingDest(t *testing.T) {
	path := writeConfig(t, map[string]any{
		"controlFlow": []map[string]string{{"source": "$malloc"}},
	})

	_, err := Load(path)
	assert.Error(t, err)
}

// TestLoad_MissingFileReturnsError verifies a nonexistent path surfaces
// a wrapped read error rather than an empty Config.
func TestLoad_MissingFileReturnsError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

// TestDefault_IsEmptyAndValid verifies Default needs no file and yields
// a Config with every checker lookup coming back empty.
func TestDefault_IsEmptyAndValid(t *testing.T) {
	cfg := Default()
	assert.False(t, cfg.IsIgnored("anything"))
	assert.Empty(t, cfg.SinkSet(nil))
}

// TestIsIgnored_MatchesIgnoreList verifies IsIgnored checks membership
// in the configured Ignore slice only.
func TestIsIgnored_MatchesIgnoreList(t *testing.T) {
	cfg := Config{Ignore: []string{"$noisy"}}
	assert.True(t, cfg.IsIgnored("$noisy"))
	assert.False(t, cfg.IsIgnored("$other"))
}

// TestSinkSet_CombinesConfiguredAndImportsMinusWhiteList verifies the
// three-way merge: explicit sinks, import-derived sinks when enabled,
// and whitelist subtraction taking precedence over both.
func TestSinkSet_CombinesConfiguredAndImportsMinusWhiteList(t *testing.T) {
	cfg := Config{
		Sinks:         []string{"$strcpy", "$system"},
		ImportAsSinks: true,
		WhiteList:     []string{"$system"},
	}
	set := cfg.SinkSet([]string{"$read", "$system"})

	assert.True(t, set["$strcpy"])
	assert.True(t, set["$read"])
	assert.False(t, set["$system"])
}

// TestSourceSet_OnlyAddsImportsWhenEnabled verifies ImportAsSources
// gates whether import names are folded into the source set.
func TestSourceSet_OnlyAddsImportsWhenEnabled(t *testing.T) {
	cfg := Config{Sources: []string{"$gets"}}
	withoutImports := cfg.SourceSet([]string{"$read"})
	assert.False(t, withoutImports["$read"])

	cfg.ImportAsSources = true
	withImports := cfg.SourceSet([]string{"$read"})
	assert.True(t, withImports["$read"])
	assert.True(t, withImports["$gets"])
}
