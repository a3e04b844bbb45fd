package streamingsvc

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/rzbill/flare/internal/event"
)

// celFilter wraps a compiled CEL program backing the "expression" custom
// filter. It is compiled once when preferences are set and evaluated per
// event. When disabled, Eval always returns true.
type celFilter struct {
	prog    cel.Program
	enabled bool
}

func newCELFilter(expr string) (celFilter, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return celFilter{enabled: false}, nil
	}
	env, err := cel.NewEnv(
		cel.Variable("type", cel.StringType),
		cel.Variable("priority", cel.IntType),
		cel.Variable("channel", cel.StringType),
		cel.Variable("source", cel.StringType),
		cel.Variable("ts_ms", cel.IntType),
		// Expose the kind-specific payload (map/values) for field filtering
		cel.Variable("data", cel.DynType),
		// Current time in ms for windowed filters
		cel.Variable("now_ms", cel.IntType),
	)
	if err != nil {
		return celFilter{}, err
	}
	ast, iss := env.Parse(expr)
	if iss != nil && iss.Err() != nil {
		return celFilter{}, iss.Err()
	}
	checked, iss2 := env.Check(ast)
	if iss2 != nil && iss2.Err() != nil {
		return celFilter{}, iss2.Err()
	}
	prog, err := env.Program(checked)
	if err != nil {
		return celFilter{}, err
	}
	return celFilter{prog: prog, enabled: true}, nil
}

// Eval evaluates the compiled expression against an event. When disabled,
// returns true. Evaluation errors fail closed; callers log them.
func (f celFilter) Eval(ev event.Event) (bool, error) {
	if !f.enabled {
		return true, nil
	}
	var dataObj any
	if ev.Data != nil {
		if b, err := json.Marshal(ev.Data); err == nil {
			_ = json.Unmarshal(b, &dataObj)
		}
	}
	out, _, err := f.prog.Eval(map[string]any{
		"type":     string(ev.Type),
		"priority": int64(ev.Priority),
		"channel":  string(ev.Channel),
		"source":   ev.Source,
		"ts_ms":    ev.Timestamp.UnixMilli(),
		"data":     dataObj,
		"now_ms":   time.Now().UnixMilli(),
	})
	if err != nil {
		return false, err
	}
	b, ok := out.Value().(bool)
	return ok && b, nil
}
