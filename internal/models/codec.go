package models

import (
	"encoding/json"
	"fmt"
)

// fields is a decoded JSON object. Known keys are taken out as they are
// read; whatever is left over is kept and written back untouched so that
// documents written by newer versions survive a read-modify-write.
type fields map[string]json.RawMessage

func decodeFields(data []byte) (fields, error) {
	var f fields
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f == nil {
		f = fields{}
	}
	return f, nil
}

// take decodes key into dst and removes it from f. Missing keys and JSON
// null leave dst untouched and report false.
func (f fields) take(key string, dst interface{}) (bool, error) {
	raw, ok := f[key]
	if !ok {
		return false, nil
	}
	delete(f, key)
	if string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("invalid %q: %w", key, err)
	}
	return true, nil
}

// extra returns the remaining keys, or nil when there are none.
func (f fields) extra() fields {
	if len(f) == 0 {
		return nil
	}
	return f
}

func (f fields) clone() fields {
	if f == nil {
		return nil
	}
	out := make(fields, len(f))
	for k, v := range f {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

type field struct {
	key   string
	value interface{}
}

// encodeFields writes the known fields over the preserved extras.
func encodeFields(extra fields, known ...field) ([]byte, error) {
	out := make(map[string]json.RawMessage, len(extra)+len(known))
	for k, v := range extra {
		out[k] = v
	}
	for _, kv := range known {
		raw, err := json.Marshal(kv.value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %q: %w", kv.key, err)
		}
		out[kv.key] = raw
	}
	return json.Marshal(out)
}
