package persistence

import (
	"bytes"
	"encoding/gob"
	"time"
)

func init() {
	// Common composite types carried inside interface-valued fields
	// (job inputs, step outputs). Applications embedding custom output
	// types must gob.Register them as well.
	gob.Register(map[string]any{})
	gob.Register(map[string]string{})
	gob.Register(map[string]bool{})
	gob.Register([]any{})
	gob.Register([]string{})
	gob.Register(time.Time{})
}

// EncodeValue serializes arbitrary Go values using encoding/gob.
// Callers must ensure that values are gob-encodable.
func EncodeValue(v any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	var buf bytes.Buffer
	enc := gob.NewEncoder(&buf)

	// Encode as interface{} so we can safely decode into interface{}.
	iv := v
	if err := enc.Encode(&iv); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeValue deserializes a payload written by EncodeValue into T.
func DecodeValue[T any](data []byte) (T, error) {
	var zero T
	if len(data) == 0 {
		return zero, nil
	}

	var iv any
	dec := gob.NewDecoder(bytes.NewBuffer(data))
	if err := dec.Decode(&iv); err != nil {
		return zero, err
	}
	if iv == nil {
		return zero, nil
	}
	v, ok := iv.(T)
	if !ok {
		return zero, &DecodeTypeError{Got: iv}
	}
	return v, nil
}

// DecodeTypeError reports a payload whose dynamic type does not match the
// requested target type.
type DecodeTypeError struct {
	Got any
}

func (e *DecodeTypeError) Error() string {
	return "gob: decoded payload not assignable to target type"
}
