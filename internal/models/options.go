// internal/models/options.go
package models

import (
	"encoding/json"
	"math"
)

// Options holds game options keyed by the option id declared by the game
// module. Values travel as JSON, so numbers read back from the wire are
// float64; use the typed getters instead of asserting directly.
type Options map[string]interface{}

// Clone returns a shallow copy.
func (o Options) Clone() Options {
	out := make(Options, len(o))
	for k, v := range o {
		out[k] = v
	}
	return out
}

// Int reads an integral option, falling back to def when missing or not a number.
func (o Options) Int(key string, def int) int {
	switch v := o[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		if v == math.Trunc(v) {
			return int(v)
		}
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	}
	return def
}

// Bool reads a boolean option.
func (o Options) Bool(key string, def bool) bool {
	if v, ok := o[key].(bool); ok {
		return v
	}
	return def
}

// String reads a string option.
func (o Options) String(key string, def string) string {
	if v, ok := o[key].(string); ok {
		return v
	}
	return def
}
