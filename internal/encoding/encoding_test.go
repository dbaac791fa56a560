package encoding

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorEncoding(t *testing.T) {
	tests := []struct {
		name   string
		vector []float32
	}{
		{name: "simple vector", vector: []float32{1.0, 2.0, 3.0}},
		{name: "empty vector", vector: []float32{}},
		{name: "single element", vector: []float32{42.0}},
		{name: "negative values", vector: []float32{-0.5, 0.25, -1e-3}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			encoded, err := EncodeVector(tt.vector)
			require.NoError(t, err)
			assert.Len(t, encoded, 4+4*len(tt.vector))

			decoded, err := DecodeVector(encoded)
			require.NoError(t, err)
			assert.Equal(t, tt.vector, decoded)
		})
	}
}

func TestVectorEncodingErrors(t *testing.T) {
	_, err := EncodeVector(nil)
	assert.ErrorIs(t, err, ErrInvalidVector)

	_, err = DecodeVector([]byte{1, 2})
	assert.ErrorIs(t, err, ErrInvalidVector)

	// Length header claims more values than the payload carries
	_, err = DecodeVector([]byte{3, 0, 0, 0, 0, 0, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidVector)
}

func TestJSONColumns(t *testing.T) {
	ns, err := EncodeJSON(nil)
	require.NoError(t, err)
	assert.False(t, ns.Valid)

	ns, err = EncodeJSON(map[string]any{"weight": 2.5})
	require.NoError(t, err)
	assert.True(t, ns.Valid)

	obj, err := DecodeObject(ns)
	require.NoError(t, err)
	assert.Equal(t, 2.5, obj["weight"])

	v, err := DecodeJSON(sql.NullString{String: `["a","b"]`, Valid: true})
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, v)

	obj, err = DecodeObject(sql.NullString{})
	require.NoError(t, err)
	assert.Nil(t, obj)
}
