package action

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/quillon/ruleflow/internal/record"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.]+)\s*\}\}`)

// SubstituteParams resolves {{path}} placeholders in a params map against
// the trigger context. A string that is exactly one placeholder keeps the
// resolved value's type; placeholders embedded in longer strings are
// interpolated as text. Maps and lists are walked recursively. Unresolvable
// placeholders substitute as empty/nil rather than failing the step.
//
// Supported roots: trigger.entity_type, trigger.entity_id, trigger.event,
// trigger.tenant, record.<field path>, now.
func SubstituteParams(ctx context.Context, ec *ExecContext, params map[string]interface{}) map[string]interface{} {
	if params == nil {
		return nil
	}
	out := make(map[string]interface{}, len(params))
	for k, v := range params {
		out[k] = substituteValue(ctx, ec, v)
	}
	return out
}

func substituteValue(ctx context.Context, ec *ExecContext, v interface{}) interface{} {
	switch val := v.(type) {
	case string:
		return substituteString(ctx, ec, val)
	case map[string]interface{}:
		return SubstituteParams(ctx, ec, val)
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = substituteValue(ctx, ec, item)
		}
		return out
	default:
		return v
	}
}

func substituteString(ctx context.Context, ec *ExecContext, s string) interface{} {
	m := placeholderRe.FindStringSubmatch(s)
	if m != nil && m[0] == s {
		v, _ := resolvePlaceholder(ctx, ec, m[1])
		return v
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(ph string) string {
		path := placeholderRe.FindStringSubmatch(ph)[1]
		v, ok := resolvePlaceholder(ctx, ec, path)
		if !ok || v == nil {
			return ""
		}
		return fmt.Sprintf("%v", v)
	})
}

func resolvePlaceholder(ctx context.Context, ec *ExecContext, path string) (interface{}, bool) {
	segs := strings.Split(path, ".")
	switch segs[0] {
	case "now":
		return time.Now().UTC().Format(time.RFC3339), true
	case "trigger":
		if len(segs) != 2 {
			return nil, false
		}
		switch segs[1] {
		case "entity_type":
			return ec.EntityType, true
		case "entity_id":
			return ec.EntityID, true
		case "event":
			return ec.EventKind, true
		case "tenant":
			return ec.TenantID, true
		}
		return nil, false
	case "record":
		if ec.Record == nil || len(segs) < 2 {
			return nil, false
		}
		if len(segs) == 2 && segs[1] == "id" {
			return ec.Record.ID, true
		}
		v, ok, err := record.ResolvePath(ctx, ec.Store, ec.Schema, ec.Record, segs[1:])
		if err != nil {
			return nil, false
		}
		return v, ok
	}
	return nil, false
}
