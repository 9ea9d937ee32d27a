package display

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/museosc/internal/monitoring"
	"github.com/banshee-data/museosc/internal/packet"
)

func TestFieldNames(t *testing.T) {
	assert.Equal(t, "alpha_tp9", WaveField(packet.AlphaAbsolute, packet.TP9))
	assert.Equal(t, "theta_tp10", WaveField(packet.ThetaAbsolute, packet.TP10))
	assert.Equal(t, "horseshoe_fp2", HorseshoeField(packet.FP2))
}

func TestBoardAndMulti(t *testing.T) {
	b1, b2 := NewBoard(), NewBoard()
	sink := Multi(b1, nil, b2)

	sink.Display("alpha_tp9", "  0.12")
	sink.Display("alpha_tp9", "  0.50")
	sink.Display(FieldBattery, "    54%")

	want := map[string]string{"alpha_tp9": "  0.50", FieldBattery: "    54%"}
	if diff := cmp.Diff(want, b1.Snapshot()); diff != "" {
		t.Errorf("board mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, b1.Snapshot(), b2.Snapshot())
	assert.Equal(t, []string{"alpha_tp9", FieldBattery}, b1.Fields())

	v, ok := b1.Get(FieldBattery)
	assert.True(t, ok)
	assert.Equal(t, "    54%", v)
	_, ok = b1.Get("missing")
	assert.False(t, ok)
}

func TestLogSink(t *testing.T) {
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.Logf = original })
	var lines []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, v...))
	})

	NewLogSink().Display(FieldTouchingForehead, "YES")
	assert.Equal(t, []string{"[display] touching_forehead=YES"}, lines)
}

func TestAsync_DeliversInOrder(t *testing.T) {
	board := NewBoard()
	var mu sync.Mutex
	var got []string
	sink := Multi(board, SinkFunc(func(f, v string) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, f+"="+v)
	}))

	a := NewAsync(sink, 16)
	for i := 0; i < 5; i++ {
		a.Display("alpha_fp1", fmt.Sprint(i))
	}
	a.Close()

	assert.Equal(t, []string{"alpha_fp1=0", "alpha_fp1=1", "alpha_fp1=2", "alpha_fp1=3", "alpha_fp1=4"}, got)
	v, _ := board.Get("alpha_fp1")
	assert.Equal(t, "4", v)
	assert.Zero(t, a.Dropped())
}

func TestAsync_NeverBlocksProducer(t *testing.T) {
	release := make(chan struct{})
	slow := SinkFunc(func(string, string) { <-release })

	a := NewAsync(slow, 2)
	start := time.Now()
	for i := 0; i < 50; i++ {
		a.Display("beta_tp9", "1.00")
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	// one update may be held by the consumer, two queued, the rest dropped
	assert.GreaterOrEqual(t, a.Dropped(), uint64(47))

	close(release)
	a.Close()
}

func TestAsync_IgnoresUpdatesAfterClose(t *testing.T) {
	board := NewBoard()
	a := NewAsync(board, 0)
	a.Close()
	a.Close()
	a.Display("gamma_fp2", "1.00")
	_, ok := board.Get("gamma_fp2")
	require.False(t, ok)
}
