package pricing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSizeRange(t *testing.T) {
	tests := []struct {
		in   string
		want SizeRange
	}{
		{"1500-2000", BoundedRange{From: 1500, To: 2000}},
		{"0-1500", BoundedRange{From: 0, To: 1500}},
		{"0.26-0.50", BoundedRange{From: 0.26, To: 0.5}},
		{" 3000+ ", UnboundedRange{From: 3000}},
		{"2.01+", UnboundedRange{From: 2.01}},
	}
	for _, tt := range tests {
		got, err := ParseSizeRange(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestParseSizeRange_Errors(t *testing.T) {
	_, err := ParseSizeRange("")
	assert.True(t, errors.Is(err, ErrEmptySizeRange))

	for _, in := range []string{"abc", "1500", "-5", "2000-1500", "1500-", "+", "x+", "NaN+", "1-2-3"} {
		_, err := ParseSizeRange(in)
		require.Error(t, err, in)
		assert.True(t, errors.Is(err, ErrInvalidSizeRange), in)
	}
}

func TestSizeRangeStartAndContains(t *testing.T) {
	b := BoundedRange{From: 1501, To: 2000}
	assert.InDelta(t, 1501, b.Start(), 0)
	assert.True(t, b.Contains(1501))
	assert.True(t, b.Contains(2000))
	assert.False(t, b.Contains(2000.5))

	u := UnboundedRange{From: 3000}
	assert.InDelta(t, 3000, u.Start(), 0)
	assert.True(t, u.Contains(1e9))
	assert.False(t, u.Contains(2999))
}

func TestSizeRangeString(t *testing.T) {
	assert.Equal(t, "1500-2000", BoundedRange{From: 1500, To: 2000}.String())
	assert.Equal(t, "0.26-0.5", BoundedRange{From: 0.26, To: 0.5}.String())
	assert.Equal(t, "3000+", UnboundedRange{From: 3000}.String())
	assert.Equal(t, "0.26-0.50", FormatSizeRange(BoundedRange{From: 0.26, To: 0.5}, 2))
}

func TestRangeStart(t *testing.T) {
	v, ok := RangeStart("3000+")
	require.True(t, ok)
	assert.InDelta(t, 3000, v, 0)

	v, ok = RangeStart("1500-2000")
	require.True(t, ok)
	assert.InDelta(t, 1500, v, 0)

	_, ok = RangeStart("")
	assert.False(t, ok)
	_, ok = RangeStart("big")
	assert.False(t, ok)
}
