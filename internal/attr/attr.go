// Package attr resolves values out of the case- and naming-inconsistent
// attribute records feature services return. Each layer declares an
// alias table ("name", "NAME", "SiteName", ...) and a single generic
// lookup walks it, falling back to a case-insensitive scan.
package attr

import (
	"fmt"
	"strconv"
	"strings"
)

// Lookup returns the first attribute whose key matches one of the
// aliases, first exactly, then case-insensitively.
func Lookup(attrs map[string]any, aliases ...string) (any, bool) {
	if len(attrs) == 0 {
		return nil, false
	}
	for _, a := range aliases {
		if v, ok := attrs[a]; ok && v != nil {
			return v, true
		}
	}
	for _, a := range aliases {
		for k, v := range attrs {
			if v != nil && strings.EqualFold(k, a) {
				return v, true
			}
		}
	}
	return nil, false
}

// String resolves an alias list to a string value. Numeric values are
// formatted; nil/missing yields "".
func String(attrs map[string]any, aliases ...string) string {
	v, ok := Lookup(attrs, aliases...)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	default:
		return fmt.Sprintf("%v", t)
	}
}

// Float resolves an alias list to a float64, accepting numeric strings.
func Float(attrs map[string]any, aliases ...string) (float64, bool) {
	v, ok := Lookup(attrs, aliases...)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int64:
		return float64(t), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
