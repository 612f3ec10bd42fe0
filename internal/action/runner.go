package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	kerrors "github.com/harunnryd/kiki/internal/errors"
	"github.com/harunnryd/kiki/internal/logger"
)

type Runner struct {
	registry *Registry
}

func NewRunner(registry *Registry) *Runner {
	return &Runner{registry: registry}
}

func (r *Runner) Descriptors() []Descriptor {
	if r == nil || r.registry == nil {
		return nil
	}
	return r.registry.Descriptors()
}

// Run executes the named action with the given params and returns its decoded result:
// a string for JSON string results, otherwise the generic JSON value.
func (r *Runner) Run(ctx context.Context, name string, params map[string]any) (any, error) {
	if params == nil {
		params = map[string]any{}
	}
	input, err := json.Marshal(params)
	if err != nil {
		return nil, kerrors.InvalidInput(fmt.Sprintf("encode params: %v", err))
	}

	raw, err := r.Execute(ctx, name, input)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, kerrors.WrapWithCategory(err, "decode action result", kerrors.ErrExecution)
	}
	return result, nil
}

// Execute handles the full lifecycle: resolve, validate, run. Panics inside an action
// are recovered into execution errors.
func (r *Runner) Execute(ctx context.Context, name string, input json.RawMessage) (result json.RawMessage, err error) {
	a, ok := r.registry.Get(name)
	if !ok {
		return nil, kerrors.NotFound(fmt.Sprintf("action %q", name))
	}
	resolved := a.Name()

	if len(input) == 0 {
		input = json.RawMessage("{}")
	}
	if err := ValidateInput(a.Parameters(), input); err != nil {
		slog.Warn("Action input validation failed", "action", resolved, "requested_name", name, "error", err)
		return nil, fmt.Errorf("%s: %w: %w", resolved, kerrors.ErrInvalidInput, err)
	}

	start := time.Now()
	traceID := logger.GetTraceID(ctx)
	slog.Info("Executing action", "action", resolved, "requested_name", name, "trace_id", traceID)

	defer func() {
		if p := recover(); p != nil {
			slog.Error("Action panicked", "action", resolved, "panic", p, "stack", string(debug.Stack()), "trace_id", traceID)
			result = nil
			err = kerrors.Execution(fmt.Sprintf("%s panicked: %v", resolved, p))
		}
	}()

	result, err = a.Execute(ctx, input)

	duration := time.Since(start)
	if err != nil {
		slog.Error("Action execution failed", "action", resolved, "error", err, "duration", duration, "trace_id", traceID)
		return nil, kerrors.WrapWithCategory(err, resolved, kerrors.ErrExecution)
	}

	slog.Info("Action execution success", "action", resolved, "duration", duration, "trace_id", traceID)
	return result, nil
}
