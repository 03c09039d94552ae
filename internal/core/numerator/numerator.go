// Package numerator provides contracts for human-readable entry numbering.
// Implementations live in the storage layers.
package numerator

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Strategy defines the numbering generation strategy.
type Strategy int

const (
	// StrategyStrict allocates every number inside the caller's transaction.
	// A rolled back submission releases its number, so the sequence has no gaps.
	StrategyStrict Strategy = iota

	// StrategyCached allocates ranges of numbers in memory.
	// Faster, but a restart leaves gaps.
	StrategyCached
)

// Options configuration for number generation.
type Options struct {
	Strategy Strategy
	// RangeSize is the number of values reserved at once by StrategyCached.
	// Default is 50.
	RangeSize int64
}

// DefaultOptions returns standard options (Strict).
func DefaultOptions() *Options {
	return &Options{Strategy: StrategyStrict}
}

// Reset periods.
const (
	ResetYear  = "year"
	ResetMonth = "month"
	ResetNever = "never"
)

// Config holds numbering configuration for one sequence.
type Config struct {
	// Prefix added to all numbers (e.g. "CI", "CO", "TR")
	Prefix string

	// IncludeYear adds year to the number
	IncludeYear bool

	// PadWidth is the minimum number width (default 5)
	PadWidth int

	// ResetPeriod: ResetYear, ResetMonth or ResetNever
	ResetPeriod string
}

// DefaultConfig returns the yearly-reset layout PREFIX-YYYY-NNNNN.
func DefaultConfig(prefix string) Config {
	return Config{
		Prefix:      prefix,
		IncludeYear: true,
		PadWidth:    5,
		ResetPeriod: ResetYear,
	}
}

// Generator produces sequential entry numbers.
type Generator interface {
	// GetNextNumber returns the next number for cfg in period.
	GetNextNumber(ctx context.Context, cfg Config, opts *Options, period time.Time) (string, error)

	// SetNextNumber moves the sequence so that the next issued value is value+1.
	SetNextNumber(ctx context.Context, cfg Config, period time.Time, value int64) error
}

// Key returns the sequence key for cfg in period.
func Key(cfg Config, period time.Time) string {
	switch cfg.ResetPeriod {
	case ResetMonth:
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006_01"))
	case ResetYear:
		return fmt.Sprintf("%s_%s", cfg.Prefix, period.Format("2006"))
	default:
		return cfg.Prefix
	}
}

// Format renders the n-th value of cfg in period.
func Format(cfg Config, period time.Time, n int64) string {
	padWidth := cfg.PadWidth
	if padWidth == 0 {
		padWidth = 5
	}

	if cfg.IncludeYear {
		return fmt.Sprintf("%s-%s-%0*d", cfg.Prefix, period.Format("2006"), padWidth, n)
	}
	return fmt.Sprintf("%s-%0*d", cfg.Prefix, padWidth, n)
}

// Parse extracts the numeric part from a formatted number.
// Returns -1 if parsing fails.
func Parse(formatted string) int64 {
	i := strings.LastIndexByte(formatted, '-')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(formatted[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return n
}
