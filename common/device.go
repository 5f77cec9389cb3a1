package common

import (
	"encoding/json"
	"strconv"
)

// Document - An opaque JSON object, used for device descriptors and connected session records.
// Values are kept as raw JSON so they pass through unmodified.
type Document map[string]json.RawMessage

// Clone - Shallow copy, enough since raw values are never modified in place.
func (doc Document) Clone() Document {
	clone := make(Document, len(doc))
	for key, value := range doc {
		clone[key] = value
	}
	return clone
}

// Set - Encode a value and store it under the key.
func (doc Document) Set(key string, value interface{}) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	doc[key] = raw
	return nil
}

// String - Get a string field. Returns false if missing or not a string.
func (doc Document) String(key string) (string, bool) {
	raw, ok := doc[key]
	if !ok {
		return "", false
	}
	var value string
	if err := json.Unmarshal(raw, &value); err != nil {
		return "", false
	}
	return value, true
}

// Uint - Get an unsigned integer field, given either as a number or a numeric string.
func (doc Document) Uint(key string) (uint, bool) {
	raw, ok := doc[key]
	if !ok {
		return 0, false
	}
	var number uint
	if err := json.Unmarshal(raw, &number); err == nil {
		return number, true
	}
	text, ok := doc.String(key)
	if !ok {
		return 0, false
	}
	parsed, err := strconv.ParseUint(text, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(parsed), true
}

// FirstString - Get the first non-empty string among the keys.
func (doc Document) FirstString(keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := doc.String(key); ok && value != "" {
			return value, true
		}
	}
	return "", false
}
