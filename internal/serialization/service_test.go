package serialization

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMsgpackRoundTrip(t *testing.T) {
	svc := NewMsgpackService()

	tests := []struct {
		name  string
		value interface{}
	}{
		{"string", "old"},
		{"int", int64(123)},
		{"bytes as string", "binary-ish"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := svc.ToData(tt.value)
			require.NoError(t, err)
			require.NotNil(t, data)

			back, err := svc.ToObject(data)
			require.NoError(t, err)
			assert.EqualValues(t, tt.value, back)
		})
	}
}

func TestMsgpackNilPassthrough(t *testing.T) {
	svc := NewMsgpackService()

	data, err := svc.ToData(nil)
	require.NoError(t, err)
	assert.Nil(t, data)

	obj, err := svc.ToObject(nil)
	require.NoError(t, err)
	assert.Nil(t, obj)
}

func TestMsgpackEncodingIsStableForScalars(t *testing.T) {
	svc := NewMsgpackService()

	a, err := svc.ToData("old")
	require.NoError(t, err)
	b, err := svc.ToData("old")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestInMemoryFormatValidation(t *testing.T) {
	assert.True(t, FormatBinary.Valid())
	assert.True(t, FormatObject.Valid())
	assert.False(t, InMemoryFormat("compressed").Valid())
	assert.False(t, InMemoryFormat("").Valid())
}
