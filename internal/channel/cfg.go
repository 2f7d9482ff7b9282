package channel

import (
	"strconv"
	"strings"
	"time"
)

func toString(input interface{}) string {
	switch v := input.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return ""
	}
}

func toDurationSeconds(raw interface{}, fallback time.Duration) time.Duration {
	switch v := raw.(type) {
	case float64:
		if v > 0 {
			return time.Duration(v * float64(time.Second))
		}
	case int:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case int64:
		if v > 0 {
			return time.Duration(v) * time.Second
		}
	case string:
		if parsed, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && parsed > 0 {
			return time.Duration(parsed) * time.Second
		}
	}
	return fallback
}

func toStringMap(raw interface{}) map[string]string {
	out := map[string]string{}
	switch v := raw.(type) {
	case map[string]interface{}:
		for key, value := range v {
			text := strings.TrimSpace(toString(value))
			if text != "" {
				out[key] = text
			}
		}
	case map[string]string:
		for key, value := range v {
			value = strings.TrimSpace(value)
			if value != "" {
				out[key] = value
			}
		}
	}
	return out
}
