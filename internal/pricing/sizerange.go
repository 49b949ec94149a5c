package pricing

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
)

var (
	// ErrEmptySizeRange is returned when parsing an empty size selection.
	ErrEmptySizeRange = eris.New("pricing: empty size range")
	// ErrInvalidSizeRange is returned when a size selection is malformed.
	ErrInvalidSizeRange = eris.New("pricing: invalid size range")
)

// SizeRange is a persisted size selection: either BoundedRange or
// UnboundedRange.
type SizeRange interface {
	// Start is the lowest value in the range.
	Start() float64
	Contains(v float64) bool
	String() string
	sizeRange()
}

// BoundedRange covers From..To inclusive.
type BoundedRange struct {
	From float64
	To   float64
}

// Start implements SizeRange.
func (r BoundedRange) Start() float64 { return r.From }

// Contains implements SizeRange.
func (r BoundedRange) Contains(v float64) bool { return v >= r.From && v <= r.To }

func (r BoundedRange) String() string {
	return formatNumber(r.From, -1) + "-" + formatNumber(r.To, -1)
}

func (BoundedRange) sizeRange() {}

// UnboundedRange covers every value from From upward.
type UnboundedRange struct {
	From float64
}

// Start implements SizeRange.
func (r UnboundedRange) Start() float64 { return r.From }

// Contains implements SizeRange.
func (r UnboundedRange) Contains(v float64) bool { return v >= r.From }

func (r UnboundedRange) String() string { return formatNumber(r.From, -1) + "+" }

func (UnboundedRange) sizeRange() {}

// ParseSizeRange parses "1500-2000", "0.26-0.50" or "3000+".
func ParseSizeRange(s string) (SizeRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptySizeRange
	}

	if strings.HasSuffix(s, "+") {
		from, err := parseBound(strings.TrimSuffix(s, "+"))
		if err != nil {
			return nil, eris.Wrapf(ErrInvalidSizeRange, "pricing: parse size range %q", s)
		}
		return UnboundedRange{From: from}, nil
	}

	lo, hi, ok := strings.Cut(s, "-")
	if !ok {
		return nil, eris.Wrapf(ErrInvalidSizeRange, "pricing: parse size range %q", s)
	}
	from, err := parseBound(lo)
	if err != nil {
		return nil, eris.Wrapf(ErrInvalidSizeRange, "pricing: parse size range %q", s)
	}
	to, err := parseBound(hi)
	if err != nil || to < from {
		return nil, eris.Wrapf(ErrInvalidSizeRange, "pricing: parse size range %q", s)
	}
	return BoundedRange{From: from, To: to}, nil
}

// FormatSizeRange renders r as a persisted token with the given number of
// decimals per bound.
func FormatSizeRange(r SizeRange, decimals int) string {
	switch v := r.(type) {
	case BoundedRange:
		return formatNumber(v.From, decimals) + "-" + formatNumber(v.To, decimals)
	case UnboundedRange:
		return formatNumber(v.From, decimals) + "+"
	}
	return ""
}

// RangeStart parses s and returns its start value. Empty or malformed input
// reports false.
func RangeStart(s string) (float64, bool) {
	r, err := ParseSizeRange(s)
	if err != nil {
		return 0, false
	}
	return r.Start(), true
}

func parseBound(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidSizeRange
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrInvalidSizeRange
	}
	return v, nil
}

func formatNumber(v float64, decimals int) string {
	return strconv.FormatFloat(v, 'f', decimals, 64)
}
