// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package graph

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Value is one JSON document stored at a path.
type Value = json.RawMessage

// ErrInvalidValue is returned for values that are not valid JSON.
var ErrInvalidValue = errors.New("graph: value is not valid JSON")

// Marshal encodes v as a Value.
func Marshal(v any) (Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding value: %w", err)
	}
	return data, nil
}

// IsObject reports whether value is a JSON object.
func IsObject(value Value) bool {
	trimmed := bytes.TrimLeft(value, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func validateValue(value Value) error {
	if !json.Valid(value) {
		return ErrInvalidValue
	}
	return nil
}

// Merge combines an incoming write with the stored value. Two objects
// merge field by field with incoming fields winning; otherwise incoming
// replaces existing. The result is compact JSON.
func Merge(existing, incoming Value) (Value, error) {
	if existing == nil || !IsObject(existing) || !IsObject(incoming) {
		return compact(incoming)
	}

	var base map[string]json.RawMessage
	if err := json.Unmarshal(existing, &base); err != nil {
		return nil, fmt.Errorf("graph: decoding stored value: %w", err)
	}
	var update map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &update); err != nil {
		return nil, fmt.Errorf("graph: decoding written value: %w", err)
	}
	if base == nil {
		base = make(map[string]json.RawMessage, len(update))
	}
	for key, field := range update {
		base[key] = field
	}
	merged, err := json.Marshal(base)
	if err != nil {
		return nil, fmt.Errorf("graph: encoding merged value: %w", err)
	}
	return merged, nil
}

func compact(value Value) (Value, error) {
	var buffer bytes.Buffer
	if err := json.Compact(&buffer, value); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidValue, err)
	}
	return buffer.Bytes(), nil
}

func cloneValue(value Value) Value {
	if value == nil {
		return nil
	}
	return append(Value(nil), value...)
}
