package builtin

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/harunnryd/kiki/internal/action"
	kerrors "github.com/harunnryd/kiki/internal/errors"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"
)

const calcCostLimit = 10000

func init() {
	action.RegisterBuiltin("calculate", func(options action.BuiltinOptions) (action.Action, error) {
		env, err := cel.NewEnv(ext.Math())
		if err != nil {
			return nil, fmt.Errorf("create expression env: %w", err)
		}
		return &CalculateAction{env: env}, nil
	})
}

// CalculateAction evaluates arithmetic. Numbers are treated as floating point so that
// 10/4 yields 2.5.
type CalculateAction struct {
	env *cel.Env
}

func (a *CalculateAction) Name() string { return "calculate" }

func (a *CalculateAction) Aliases() []string { return []string{"calc", "calculator", "math"} }

func (a *CalculateAction) Description() string {
	return "Evaluate an arithmetic expression such as (3 + 4) * 2, or apply op to a and b."
}

func (a *CalculateAction) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"expression": map[string]interface{}{
				"type":        "string",
				"description": "Arithmetic expression using + - * / and parentheses",
			},
			"a": map[string]interface{}{"type": "number"},
			"b": map[string]interface{}{"type": "number"},
			"op": map[string]interface{}{
				"type": "string",
				"enum": []string{"add", "subtract", "multiply", "divide", "+", "-", "*", "/"},
			},
		},
	}
}

type calcArgs struct {
	Expression string   `json:"expression"`
	A          *float64 `json:"a"`
	B          *float64 `json:"b"`
	Op         string   `json:"op"`
}

func (a *CalculateAction) Execute(ctx context.Context, input json.RawMessage) (json.RawMessage, error) {
	var args calcArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return nil, kerrors.InvalidInput(err.Error())
	}

	expr := strings.TrimSpace(args.Expression)
	if expr == "" {
		built, err := binaryExpression(args)
		if err != nil {
			return nil, err
		}
		expr = built
	}

	result, err := a.evaluate(ctx, expr)
	if err != nil {
		return nil, err
	}

	return json.Marshal(map[string]interface{}{
		"expression": expr,
		"result":     result,
	})
}

func binaryExpression(args calcArgs) (string, error) {
	if args.A == nil || args.B == nil || args.Op == "" {
		return "", kerrors.InvalidInput("provide expression, or a, b and op")
	}

	ops := map[string]string{"add": "+", "subtract": "-", "multiply": "*", "divide": "/"}
	op := strings.ToLower(strings.TrimSpace(args.Op))
	if symbol, ok := ops[op]; ok {
		op = symbol
	}

	a := strconv.FormatFloat(*args.A, 'f', -1, 64)
	b := strconv.FormatFloat(*args.B, 'f', -1, 64)
	return fmt.Sprintf("(%s) %s (%s)", a, op, b), nil
}

func (a *CalculateAction) evaluate(ctx context.Context, expr string) (interface{}, error) {
	source := floatLiterals(normalizeOperators(expr))

	ast, iss := a.env.Compile(source)
	if iss != nil && iss.Err() != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("cannot parse %q: %v", expr, iss.Err()))
	}

	prg, err := a.env.Program(ast, cel.CostLimit(calcCostLimit))
	if err != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("cannot evaluate %q: %v", expr, err))
	}

	out, _, err := prg.ContextEval(ctx, map[string]interface{}{})
	if err != nil {
		return nil, fmt.Errorf("evaluate %q: %w", expr, err)
	}

	switch v := out.Value().(type) {
	case float64:
		if math.IsInf(v, 0) || math.IsNaN(v) {
			return nil, fmt.Errorf("evaluate %q: result is not a finite number", expr)
		}
		return v, nil
	case int64, uint64, bool:
		return v, nil
	default:
		return nil, kerrors.InvalidInput(fmt.Sprintf("%q does not evaluate to a number", expr))
	}
}

func normalizeOperators(expr string) string {
	return strings.NewReplacer("×", "*", "÷", "/", "−", "-").Replace(expr)
}

// floatLiterals rewrites integer literals as doubles ("2" becomes "2.0") so arithmetic does
// not mix int and double operands. Digits that are part of identifiers or already have a
// fraction are left alone.
func floatLiterals(expr string) string {
	var b strings.Builder
	runes := []rune(expr)
	for i := 0; i < len(runes); {
		r := runes[i]
		if !unicode.IsDigit(r) {
			b.WriteRune(r)
			i++
			continue
		}

		start := i
		for i < len(runes) && unicode.IsDigit(runes[i]) {
			i++
		}
		b.WriteString(string(runes[start:i]))

		prevIdent := start > 0 && (isIdentRune(runes[start-1]) || runes[start-1] == '.')
		nextFrac := i < len(runes) && (runes[i] == '.' || runes[i] == 'e' || runes[i] == 'E' || isIdentRune(runes[i]))
		if !prevIdent && !nextFrac {
			b.WriteString(".0")
		}
	}
	return b.String()
}

func isIdentRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}
