package device

import (
	"math"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/museosc/internal/packet"
)

var now = time.Date(2026, 5, 6, 7, 8, 9, 0, time.UTC)

func TestParseLine_Packets(t *testing.T) {
	tests := []struct {
		line string
		want packet.Packet
	}{
		{"alpha_absolute,0.1,0.2,0.3,0.4", packet.NewWaveband(packet.AlphaAbsolute, now, 0.1, 0.2, 0.3, 0.4)},
		{" Theta_Absolute , 1, 2, 3, 4 ", packet.NewWaveband(packet.ThetaAbsolute, now, 1, 2, 3, 4)},
		{"horseshoe,1,2,3,4", packet.NewHorseshoe(now, [4]float64{1, 2, 3, 4})},
		{"artifacts,1", packet.NewContact(now, true)},
		{"touching_forehead,0", packet.NewContact(now, false)},
		{"artifacts,1.0", packet.NewContact(now, true)},
		{"battery,53.67,3900,3800,25", packet.NewBattery(now, 53.67, 3900, 3800, 25)},
		{"battery,42", packet.NewBattery(now, 42)},
		{"accelerometer,0.01,0.98,0.02", packet.Packet{Category: packet.Unknown, Values: []float64{0.01, 0.98, 0.02}, Timestamp: now}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			evt, err := ParseLine(tt.line, now)
			require.NoError(t, err)
			require.NotNil(t, evt.Packet)
			assert.Nil(t, evt.Connection)
			if diff := cmp.Diff(tt.want, *evt.Packet); diff != "" {
				t.Errorf("packet mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseLine_NaNReading(t *testing.T) {
	evt, err := ParseLine("gamma_absolute,NaN,0.1,0.2,0.3", now)
	require.NoError(t, err)
	assert.True(t, math.IsNaN(evt.Packet.Values[0]))
}

func TestParseLine_Connection(t *testing.T) {
	evt, err := ParseLine("connection,CONNECTING,CONNECTED,00:06:66:aa:bb:cc,Consumer - 7.3.4 - 2", now)
	require.NoError(t, err)
	require.NotNil(t, evt.Connection)
	assert.Nil(t, evt.Packet)
	assert.Equal(t, packet.ConnectionEvent{
		Previous: packet.StateConnecting,
		Current:  packet.StateConnected,
		DeviceID: "00:06:66:aa:bb:cc",
		Version:  "Consumer - 7.3.4 - 2",
	}, *evt.Connection)

	evt, err = ParseLine("connection,connected,disconnected", now)
	require.NoError(t, err)
	assert.Equal(t, "CONNECTED -> DISCONNECTED", evt.Connection.Transition())
}

func TestParseLine_Errors(t *testing.T) {
	for _, line := range []string{
		"alpha_absolute,0.1,0.2,0.3",
		"alpha_absolute,0.1,0.2,0.3,0.4,0.5",
		"horseshoe,1,2,x,4",
		"artifacts",
		"artifacts,maybe",
		"battery",
		"battery,full",
		"connection,CONNECTED",
	} {
		_, err := ParseLine(line, now)
		assert.ErrorIs(t, err, ErrMalformedLine, line)
	}

	for _, line := range []string{"", "   ", "# comment"} {
		_, err := ParseLine(line, now)
		assert.ErrorIs(t, err, ErrSkipLine, line)
	}
}
