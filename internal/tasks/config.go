package tasks

import (
	"fmt"
	"strconv"
)

// Config is a task's structured configuration. Values come from YAML
// (ints) or JSON (float64), so accessors normalise numeric types.
type Config map[string]any

// MergeConfig returns a new map with override applied over base (shallow).
func MergeConfig(base, override Config) Config {
	out := make(Config, len(base)+len(override))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Float returns key as float64 or def when absent or not numeric.
func (c Config) Float(key string, def float64) float64 {
	switch v := c[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	case int64:
		return float64(v)
	case string:
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

// Int returns key as int or def.
func (c Config) Int(key string, def int) int {
	if _, ok := c[key]; !ok {
		return def
	}
	return int(c.Float(key, float64(def)))
}

// String returns key as string or def.
func (c Config) String(key, def string) string {
	if s, ok := c[key].(string); ok && s != "" {
		return s
	}
	return def
}

func requireRange(c Config, key string, min, max float64) error {
	v, ok := c[key]
	if !ok {
		return nil
	}
	f := c.Float(key, min-1)
	if f < min || f > max {
		return fmt.Errorf("%w: %s must be between %g and %g, got %v", ErrInvalidConfig, key, min, max, v)
	}
	return nil
}
