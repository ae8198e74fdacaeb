package status

import (
	"bytes"
	"fmt"

	"github.com/goccy/go-json"
)

// document is a decoded JSON object whose fields are read one at a time.
type document struct {
	name   string
	fields map[string]json.RawMessage
}

func parseDocument(name string, data []byte) (*document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: %s document is empty", ErrMalformed, name)
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: %s document: %w", ErrMalformed, name, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: %s document is null", ErrMalformed, name)
	}
	return &document{name: name, fields: fields}, nil
}

// raw returns the field value, treating JSON null as absent.
func (d *document) raw(key string) (json.RawMessage, bool) {
	v, ok := d.fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(v), []byte("null")) {
		return nil, false
	}
	return v, true
}

func (d *document) fieldError(key, reason string) error {
	return &FieldError{Document: d.name, Field: key, Reason: reason}
}

func (d *document) requiredString(key string) (string, error) {
	v, ok := d.raw(key)
	if !ok {
		return "", d.fieldError(key, "required")
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", d.fieldError(key, "expected a string")
	}
	if s == "" {
		return "", d.fieldError(key, "must not be empty")
	}
	return s, nil
}

func (d *document) optionalString(key string) (string, error) {
	v, ok := d.raw(key)
	if !ok {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", d.fieldError(key, "expected a string")
	}
	return s, nil
}

func (d *document) requiredBool(key string) (bool, error) {
	if _, ok := d.raw(key); !ok {
		return false, d.fieldError(key, "required")
	}
	return d.optionalBool(key)
}

func (d *document) optionalBool(key string) (bool, error) {
	v, ok := d.raw(key)
	if !ok {
		return false, nil
	}
	var b bool
	if err := json.Unmarshal(v, &b); err != nil {
		return false, d.fieldError(key, "expected a boolean")
	}
	return b, nil
}

func (d *document) optionalInt(key string) (int, error) {
	v, ok := d.raw(key)
	if !ok {
		return 0, nil
	}
	var n int
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, d.fieldError(key, "expected an integer")
	}
	return n, nil
}

func (d *document) optionalInt64(key string) (int64, error) {
	v, ok := d.raw(key)
	if !ok {
		return 0, nil
	}
	var n int64
	if err := json.Unmarshal(v, &n); err != nil {
		return 0, d.fieldError(key, "expected an integer")
	}
	return n, nil
}

// requiredArray returns the elements of an array field.
func (d *document) requiredArray(key string) ([]json.RawMessage, error) {
	v, ok := d.raw(key)
	if !ok {
		return nil, d.fieldError(key, "required")
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, d.fieldError(key, "expected an array")
	}
	return items, nil
}
