package service

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// FormatValue renders a message value as the text substituted for the
// placeholder. Integral floats lose their fraction so that 5.0 becomes "5".
func FormatValue(v any) (string, error) {
	switch v := v.(type) {
	case nil:
		return "", fmt.Errorf("value is required")
	case string:
		return v, nil
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return v.String(), nil
		}
		f, err := v.Float64()
		if err != nil {
			return "", fmt.Errorf("value %q is not a number", v)
		}
		return formatFloat(f), nil
	case float64:
		return formatFloat(v), nil
	case float32:
		return formatFloat(float64(v)), nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case int32:
		return strconv.FormatInt(int64(v), 10), nil
	case bool:
		return strconv.FormatBool(v), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", v)
	}
}

func formatFloat(f float64) string {
	if f == math.Trunc(f) && f >= math.MinInt64 && f < math.MaxInt64 {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}
