package flow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/diegoholiveira/jsonlogic"
	"github.com/relloyd/forklift/errs"
)

// ConditionFunc adapts a run-aware check, such as runguard.Guard.Condition, into a gate condition task.
func ConditionFunc(fn func(ctx context.Context, runID string) (bool, error)) TaskFunc {
	return func(ctx context.Context, in Input) (interface{}, error) {
		return fn(ctx, in.RunID)
	}
}

// JSONLogicCondition returns a gate condition that applies the JSON logic rule to the run parameters.
// The rule is checked when the task runs.
func JSONLogicCondition(rule string) TaskFunc {
	return func(ctx context.Context, in Input) (interface{}, error) {
		return EvalJSONLogic(rule, in.Params)
	}
}

// EvalJSONLogic applies rule to params and returns the truthiness of the result.
func EvalJSONLogic(rule string, params map[string]string) (bool, error) {
	if !jsonlogic.IsValid(strings.NewReader(rule)) {
		return false, errs.InvalidArgument("invalid JSON logic rule: %v", rule)
	}
	data, err := json.Marshal(params)
	if err != nil {
		return false, fmt.Errorf("error marshalling parameters before applying JSON logic: %w", err)
	}
	var result bytes.Buffer
	if err = jsonlogic.Apply(strings.NewReader(rule), bytes.NewReader(data), &result); err != nil {
		return false, fmt.Errorf("error applying JSON logic: %w", err)
	}
	var v interface{}
	if err = json.Unmarshal(bytes.TrimSpace(result.Bytes()), &v); err != nil {
		return false, fmt.Errorf("error reading JSON logic result %q: %w", result.String(), err)
	}
	return truthy(v), nil
}

func truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case float64:
		return x != 0
	case []interface{}:
		return len(x) > 0
	default:
		return true
	}
}
