package numerator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKey(t *testing.T) {
	period := time.Date(2026, time.March, 4, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		reset string
		want  string
	}{
		{ResetYear, "CI_2026"},
		{ResetMonth, "CI_2026_03"},
		{ResetNever, "CI"},
	}
	for _, tt := range tests {
		t.Run(tt.reset, func(t *testing.T) {
			cfg := DefaultConfig("CI")
			cfg.ResetPeriod = tt.reset
			assert.Equal(t, tt.want, Key(cfg, period))
		})
	}
}

func TestFormat(t *testing.T) {
	period := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, "CO-2026-00042", Format(DefaultConfig("CO"), period, 42))
	assert.Equal(t, "TR-007", Format(Config{Prefix: "TR", PadWidth: 3}, period, 7))
}

func TestParse(t *testing.T) {
	assert.Equal(t, int64(42), Parse("CO-2026-00042"))
	assert.Equal(t, int64(7), Parse("TR-007"))
	assert.Equal(t, int64(-1), Parse("garbage"))
}
