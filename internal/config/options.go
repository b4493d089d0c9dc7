package config

import (
	"encoding/json"
	"strconv"
)

// Options is a small helper to fetch typed values from free-form option maps
// such as the "csv" section. It performs minimal coercion and returns the
// provided default when a key is absent or of an unexpected type.
//
// Values may come from JSON (numbers decode as float64), from YAML/TOML via
// viper (int, int64) or from environment overrides (strings), so the numeric
// and boolean getters accept each of those.
type Options map[string]any

// String returns the string value for key or def.
func (o Options) String(key, def string) string {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return def
}

// Bool returns the bool value for key or def. Strings accepted by
// strconv.ParseBool are coerced.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			if p, err := strconv.ParseBool(b); err == nil {
				return p
			}
		}
	}
	return def
}

// Int returns the int value for key or def.
func (o Options) Int(key string, def int) int {
	if v, ok := o[key]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case string:
			if p, err := strconv.Atoi(n); err == nil {
				return p
			}
		}
	}
	return def
}

// Rune returns the first rune of a string value for key, or def if key is
// missing or empty. Used for single-character settings such as a delimiter.
func (o Options) Rune(key string, def rune) rune {
	if v, ok := o[key]; ok {
		if s, ok := v.(string); ok && len(s) > 0 {
			return []rune(s)[0]
		}
	}
	return def
}

// StringMap returns a map[string]string for key when the value is an object
// whose values are strings. Non-string values are ignored. Returns an empty map
// when the key is missing or the value is not an object.
func (o Options) StringMap(key string) map[string]string {
	res := map[string]string{}
	if v, ok := o[key]; ok {
		if m, ok := v.(map[string]any); ok {
			for k, vv := range m {
				if s, ok := vv.(string); ok {
					res[k] = s
				}
			}
		}
	}
	return res
}

// Maps returns key as a list of objects, skipping entries that are not
// objects. Returns nil when the key is missing.
func (o Options) Maps(key string) []Options {
	v, ok := o[key]
	if !ok {
		return nil
	}
	var out []Options
	switch vv := v.(type) {
	case []any:
		for _, x := range vv {
			if m, ok := x.(map[string]any); ok {
				out = append(out, Options(m))
			}
		}
	case []map[string]any:
		for _, m := range vv {
			out = append(out, Options(m))
		}
	}
	return out
}

// Any returns the raw value for key.
func (o Options) Any(key string) any {
	if v, ok := o[key]; ok {
		return v
	}
	return nil
}

// UnmarshalJSON decodes a null "options" object to a non-nil, empty map.
func (o *Options) UnmarshalJSON(b []byte) error {
	var tmp map[string]any
	if len(b) == 0 || string(b) == "null" {
		*o = Options{}
		return nil
	}
	if err := json.Unmarshal(b, &tmp); err != nil {
		return err
	}
	*o = Options(tmp)
	return nil
}
