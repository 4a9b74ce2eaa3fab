package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAmountFloat(t *testing.T) {
	tests := []struct {
		amount string
		want   float64
		ok     bool
	}{
		{"1.5", 1.5, true},
		{"0.00000001", 1e-8, true},
		{"", 0, false},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		v, ok := (&Record{Amount: tt.amount}).AmountFloat()
		assert.Equal(t, tt.ok, ok, "amount %q", tt.amount)
		if ok {
			assert.Equal(t, tt.want, v, "amount %q", tt.amount)
		}
	}
}

func TestFormatTimestamp(t *testing.T) {
	// 2023-11-14 22:13:20 UTC
	assert.Equal(t, "22:13:20", FormatTimestamp(1700000000000))
}
