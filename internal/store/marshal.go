package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/skillwave/internal/ir"
)

// marshalOutput converts an output object to canonical JSON TEXT.
func marshalOutput(out ir.IRObject) (string, error) {
	if out == nil {
		out = ir.IRObject{}
	}
	data, err := ir.MarshalCanonical(out)
	if err != nil {
		return "", fmt.Errorf("marshal output: %w", err)
	}
	return string(data), nil
}

// unmarshalOutput parses canonical JSON TEXT to IRObject.
// Uses ir.IRObject.UnmarshalJSON, which decodes integers via json.Number
// to avoid float64 precision loss for values > 2^53.
func unmarshalOutput(data string) (ir.IRObject, error) {
	if data == "" || data == "{}" {
		return ir.IRObject{}, nil
	}
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal output: %w", err)
	}
	return obj, nil
}

func toUnixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
