// Package encoding converts engine values to and from their SQL column forms.
package encoding

import (
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrInvalidVector is returned when a vector blob or slice is malformed
var ErrInvalidVector = errors.New("invalid vector")

// EncodeVector encodes a float32 vector as a little-endian blob prefixed with
// its int32 length.
func EncodeVector(vector []float32) ([]byte, error) {
	if vector == nil {
		return nil, ErrInvalidVector
	}
	if len(vector) > math.MaxInt32 {
		return nil, fmt.Errorf("vector too large: %d elements", len(vector))
	}

	buf := make([]byte, 4+4*len(vector))
	binary.LittleEndian.PutUint32(buf, uint32(len(vector)))
	for i, v := range vector {
		binary.LittleEndian.PutUint32(buf[4+4*i:], math.Float32bits(v))
	}
	return buf, nil
}

// DecodeVector decodes a blob produced by EncodeVector
func DecodeVector(data []byte) ([]float32, error) {
	if len(data) < 4 {
		return nil, ErrInvalidVector
	}

	n := int(int32(binary.LittleEndian.Uint32(data)))
	if n < 0 || len(data)-4 < n*4 {
		return nil, ErrInvalidVector
	}

	vector := make([]float32, n)
	for i := range vector {
		vector[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4+4*i:]))
	}
	return vector, nil
}

// EncodeJSON marshals v into a nullable TEXT column value. A nil v is stored
// as SQL NULL.
func EncodeJSON(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode json: %w", err)
	}
	if string(data) == "null" {
		return sql.NullString{}, nil
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}

// DecodeJSON unmarshals a nullable TEXT column into a generic JSON value
func DecodeJSON(s sql.NullString) (any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, fmt.Errorf("failed to decode json: %w", err)
	}
	return v, nil
}

// DecodeObject unmarshals a nullable TEXT column holding a JSON object.
// NULL decodes to a nil map.
func DecodeObject(s sql.NullString) (map[string]any, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s.String), &m); err != nil {
		return nil, fmt.Errorf("failed to decode json object: %w", err)
	}
	return m, nil
}
