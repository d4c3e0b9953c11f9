package wasmir

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// TestLocalType_ResolvesParamsBeforeDeclaredLocals verifies indices
// below len(Params) read the parameter type and indices at/above it
// read the declared-locals slice, offset accordingly.
func TestLocalType_ResolvesParamsBeforeDeclaredLocals(t *testing.T) {
	f := &Function{Params: []ValType{I32, I64}, Locals: []ValType{F32}}

	assert.Equal(t, I32, f.LocalType(0))
	assert.Equal(t, I64, f.LocalType(1))
	assert.Equal(t, F32, f.LocalType(2))
	assert.Equal(t, ValTypeNone, f.LocalType(3))
}

// TestNumParamsAndLocals_SumsBothSlices verifies the count combines
// params and declared locals, not either alone.
func TestNumParamsAndLocals_SumsBothSlices(t *testing.T) {
	f := &Function{Params: []ValType{I32}, Locals: []ValType{I64, F64}}
	assert.Equal(t, 3, f.NumParamsAndLocals())
}

// TestLocalName_NilMapReturnsEmptyString verifies a Function with no
// LocalNames map never panics on lookup.
func TestLocalName_NilMapReturnsEmptyString(t *testing.T) {
	f := &Function{}
	assert.Equal(t, "", f.LocalName(0))
}

// TestLocalName_ReturnsMappedSourceName verifies a populated LocalNames
// entry is returned verbatim.
func TestLocalName_ReturnsMappedSourceName(t *testing.T) {
	f := &Function{LocalNames: map[uint32]string{1: "$count"}}
	assert.Equal(t, "$count", f.LocalName(1))
	assert.Equal(t, "", f.LocalName(0))
}

// TestExprArity_MatchesWebAssemblyStackEffectPerKind spot-checks arity
// for a representative kind from each shape: fixed, opcode-dependent,
// and Expr-carried (Call/Block).
func TestExprArity_MatchesWebAssemblyStackEffectPerKind(t *testing.T) {
	cases := []struct {
		name string
		expr Expr
		want Arity
	}{
		{"nop", Expr{Kind: Nop}, Arity{}},
		{"drop", Expr{Kind: Drop}, Arity{NArgs: 1}},
		{"select", Expr{Kind: Select}, Arity{NArgs: 3, NResults: 1}},
		{"const", Expr{Kind: Const}, Arity{NResults: 1}},
		{"binary", Expr{Kind: Binary}, Arity{NArgs: 2, NResults: 1}},
		{"br", Expr{Kind: Br}, Arity{Unreachable: true}},
		{"br_table", Expr{Kind: BrTable}, Arity{NArgs: 1, Unreachable: true}},
		{"call", Expr{Kind: Call, NArgs: 2, NResults: 1}, Arity{NArgs: 2, NResults: 1}},
		{"call_indirect", Expr{Kind: CallIndirect, NArgs: 2, NResults: 1}, Arity{NArgs: 3, NResults: 1}},
		{"block", Expr{Kind: Block, NResults: 1}, Arity{NResults: 1}},
		{"if", Expr{Kind: If, NResults: 2}, Arity{NArgs: 1, NResults: 2}},
		{"memory.grow", Expr{Kind: MemoryGrow}, Arity{NArgs: 1, NResults: 1}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			assert.Equal(t, c.want, ExprArity(&c.expr))
		})
	}
}

// TestValType_StringFormatsWebAssemblyMnemonics verifies the numeric
// types print their standard WebAssembly type names and the zero value
// prints empty.
func TestValType_StringFormatsWebAssemblyMnemonics(t *testing.T) {
	assert.Equal(t, "i32", I32.String())
	assert.Equal(t, "f64", F64.String())
	assert.Equal(t, "", ValTypeNone.String())
}
