package money

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFormatUSD(t *testing.T) {
	tests := []struct {
		minor int64
		want  string
	}{
		{0, "$0.00"},
		{5, "$0.05"},
		{3350, "$33.50"},
		{168137, "$1,681.37"},
		{1234567, "$12,345.67"},
		{100000000, "$1,000,000.00"},
		{-500, "-$5.00"},
		{-1234567, "-$12,345.67"},
		{math.MinInt64, "-$92,233,720,368,547,758.08"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatUSD(tt.minor))
		})
	}
}

func TestDollars(t *testing.T) {
	assert.Equal(t, int64(1681), Dollars(168137))
	assert.Equal(t, int64(-5), Dollars(-599))
}
