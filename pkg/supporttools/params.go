package supporttools

import (
	"fmt"
	"strconv"
	"strings"
)

// stringParam reads a parameter that may arrive as a JSON string or number.
func stringParam(params map[string]interface{}, key string) string {
	switch v := params[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func boolParam(params map[string]interface{}, key string) (value, ok bool) {
	switch v := params[key].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		return b, err == nil
	default:
		return false, false
	}
}
