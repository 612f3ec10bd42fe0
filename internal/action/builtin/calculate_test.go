package builtin

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCalculate(t *testing.T) action.Action {
	t.Helper()
	registry := action.NewRegistry()
	_, err := action.InstantiateBuiltins(registry, action.BuiltinOptions{TodoDBPath: t.TempDir() + "/todo.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = registry.Close() })

	a, ok := registry.Get("calculate")
	require.True(t, ok)
	return a
}

func calc(t *testing.T, a action.Action, input string) map[string]interface{} {
	t.Helper()
	raw, err := a.Execute(context.Background(), json.RawMessage(input))
	require.NoError(t, err)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

func TestCalculateExpression(t *testing.T) {
	a := newCalculate(t)

	cases := map[string]float64{
		"2+2":                    4,
		"(3 + 4) * 2":            14,
		"10/4":                   2.5,
		"1.5 * 2":                3,
		"-3 + 1":                 -2,
		"6 ÷ 3 × 2":              4,
		"1e3 / 10":               100,
		"math.greatest(1, 7, 3)": 7,
	}
	for expr, want := range cases {
		t.Run(expr, func(t *testing.T) {
			input, _ := json.Marshal(map[string]string{"expression": expr})
			resp := calc(t, a, string(input))
			assert.InDelta(t, want, resp["result"], 1e-9)
			assert.Equal(t, expr, resp["expression"])
		})
	}
}

func TestCalculateBinaryForm(t *testing.T) {
	a := newCalculate(t)

	resp := calc(t, a, `{"a": 7, "b": 2, "op": "divide"}`)
	assert.InDelta(t, 3.5, resp["result"], 1e-9)

	resp = calc(t, a, `{"a": -2, "b": 3, "op": "*"}`)
	assert.InDelta(t, -6, resp["result"], 1e-9)
}

func TestCalculateErrors(t *testing.T) {
	a := newCalculate(t)

	_, err := a.Execute(context.Background(), json.RawMessage(`{}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"expression":"2 +* 2"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"expression":"1/0"}`))
	assert.Error(t, err)

	_, err = a.Execute(context.Background(), json.RawMessage(`{"expression":"'abc'"}`))
	assert.ErrorIs(t, err, kerrors.ErrInvalidInput)
}

func TestFloatLiterals(t *testing.T) {
	assert.Equal(t, "2.0+2.0", floatLiterals("2+2"))
	assert.Equal(t, "1.5*x1", floatLiterals("1.5*x1"))
	assert.Equal(t, "1e3", floatLiterals("1e3"))
	assert.Equal(t, "(10.0)", floatLiterals("(10)"))
}
