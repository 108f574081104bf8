package neows

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlexFloat(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want *float64
	}{
		{"number", `12.5`, ptr(12.5)},
		{"string", `"37399468.7"`, ptr(37399468.7)},
		{"padded string", `" 0.25 "`, ptr(0.25)},
		{"null", `null`, nil},
		{"empty", `""`, nil},
		{"garbage", `"n/a"`, nil},
		{"nan", `"NaN"`, nil},
		{"inf", `"+Inf"`, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var f flexFloat
			require.NoError(t, json.Unmarshal([]byte(tt.in), &f))
			if tt.want == nil {
				assert.Nil(t, f.v)
				return
			}
			require.NotNil(t, f.v)
			assert.InDelta(t, *tt.want, *f.v, 1e-9)
		})
	}
}

func TestFlexFloat_Int64(t *testing.T) {
	var f flexFloat
	require.NoError(t, json.Unmarshal([]byte(`1704168600000`), &f))
	n := f.int64Ptr()
	require.NotNil(t, n)
	assert.Equal(t, int64(1704168600000), *n)

	assert.Nil(t, flexFloat{}.int64Ptr())
}

func ptr[T any](v T) *T { return &v }
