package normalize

import (
	"math"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		raw   float64
		want  float32
		valid bool
	}{
		{1.005, 1.01, true},
		{2.345, 2.35, true},
		{-0.001, 0, true},
		{0.994, 0.99, true},
		{0.995, 1.00, true},
		{9.995, 10.00, true},
		{-1.235, -1.24, true},
		{-1, -1, true},
		{42, 42, true},
		{1e-12, 0, true},
		{math.NaN(), -1, false},
		{math.Inf(1), -1, false},
		{math.Inf(-1), -1, false},
		{1e300, -1, false},
	}
	for _, tt := range tests {
		t.Run(strconv.FormatFloat(tt.raw, 'g', -1, 64), func(t *testing.T) {
			got := Normalize(tt.raw)
			assert.Equal(t, tt.want, got.Float)
			assert.Equal(t, tt.valid, got.Valid)
		})
	}
}

func TestNormalize_NegativeZeroKeepsSign(t *testing.T) {
	v := Normalize(-0.001)
	assert.True(t, math.Signbit(float64(v.Float)))
	assert.Equal(t, "-0.00", Format(v.Float))
}

func TestNormalize_SentinelVersusGenuine(t *testing.T) {
	nan := Normalize(math.NaN())
	real := Normalize(-1.0)
	assert.Equal(t, nan.Float, real.Float, "the sentinel shares the wire value of a genuine -1")
	assert.False(t, nan.Valid)
	assert.True(t, real.Valid)
}

func TestChannels(t *testing.T) {
	vals, valid := Channels([]float64{1.005, 2.345, math.NaN(), -0.001})
	assert.Equal(t, [4]float32{1.01, 2.35, -1, 0}, vals)
	assert.Equal(t, [4]bool{true, true, false, true}, valid)

	short, shortValid := Channels([]float64{3.14159})
	assert.Equal(t, [4]float32{3.14, -1, -1, -1}, short)
	assert.Equal(t, [4]bool{true, false, false, false}, shortValid)
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "1.01", Format(Float(1.005)))
	assert.Equal(t, "0.10", Format(0.1))
	assert.Equal(t, "-1.00", Format(Invalid))
	assert.Equal(t, "120.00", Format(120))
	assert.Equal(t, "  1.01", FormatDisplay(1.01))
	assert.Equal(t, "-12.50", FormatDisplay(-12.5))
	assert.Equal(t, "NaN", Format(float32(math.NaN())))
}

// Formatting a normalized value and normalizing the text again is stable.
func TestNormalize_Idempotent(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 5000; i++ {
		raw := (rng.Float64() - 0.5) * 2000
		v := Normalize(raw)
		require.True(t, v.Valid)

		s := Format(v.Float)
		reparsed, err := strconv.ParseFloat(s, 64)
		require.NoError(t, err)
		again := Normalize(reparsed)
		require.Equal(t, v.Float, again.Float, "raw=%v formatted=%s", raw, s)

		// exactly two digits after the point
		dot := len(s) - 3
		require.Equal(t, byte('.'), s[dot], "formatted %q", s)
	}
}

func TestHorseshoeString(t *testing.T) {
	assert.Equal(t, "GOOD", HorseshoeString(1.0))
	assert.Equal(t, "OKAY", HorseshoeString(2.0))
	assert.Equal(t, "BAD", HorseshoeString(3.0))
	assert.Equal(t, "NONE", HorseshoeString(4.0))
	assert.Equal(t, "ERROR, value =   0.00", HorseshoeString(0.0))
	assert.Equal(t, "ERROR, value =   5.50", HorseshoeString(5.5))
	assert.Equal(t, "ERROR, value =    NaN", HorseshoeString(math.NaN()))
}

func TestBattery(t *testing.T) {
	assert.Equal(t, "    54%", BatteryPercent(54))
	assert.Equal(t, "    54%", BatteryPercent(53.67))
	assert.Equal(t, "   100%", BatteryPercent(100))
	assert.Equal(t, "     1%", BatteryPercent(1))
	assert.Equal(t, "     0%", BatteryPercent(0))

	assert.Equal(t, int32(54), BatteryLevel(53.67))
	assert.Equal(t, int32(100), BatteryLevel(100))
	assert.Equal(t, int32(1), BatteryLevel(1))
	assert.Equal(t, int32(100), BatteryLevel(120))
	assert.Equal(t, int32(0), BatteryLevel(-50))
	assert.Equal(t, int32(-1), BatteryLevel(math.NaN()))
}
