package tools

import (
	"bytes"
	"encoding/json"
)

// parseJSON decodes tool input strictly: unknown fields are rejected so the
// model learns the schema instead of having typos silently ignored.
func parseJSON(data []byte, v any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		data = []byte("{}")
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}
