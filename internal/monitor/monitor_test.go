package monitor

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/gate"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
	"github.com/banshee-data/museosc/internal/session"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func alpha(i int, tp9, fp1, fp2, tp10 float64) packet.Packet {
	return packet.NewWaveband(packet.AlphaAbsolute, t0.Add(time.Duration(i)*time.Second), tp9, fp1, fp2, tp10)
}

func TestHistoryRingOrder(t *testing.T) {
	h := NewHistory(3)
	for i := 0; i < 4; i++ {
		h.Observe(alpha(i, float64(i), 0, 0, 0))
	}
	h.Observe(packet.NewContact(t0, true))

	got := h.Samples(packet.AlphaAbsolute)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{got[0].Values[0], got[1].Values[0], got[2].Values[0]})
	assert.Empty(t, h.Samples(packet.BetaAbsolute))
	assert.Nil(t, h.Samples(packet.Horseshoe))

	h.Reset()
	assert.Empty(t, h.Samples(packet.AlphaAbsolute))
}

func TestHistorySummary(t *testing.T) {
	h := NewHistory(10)
	h.Observe(alpha(0, 1, 5, math.NaN(), 0.5))
	h.Observe(alpha(1, 2, math.Inf(1), math.NaN(), 0.5))
	h.Observe(alpha(2, 3, math.NaN(), math.NaN(), 0.5))

	sum := h.Summary(packet.AlphaAbsolute)
	require.Len(t, sum, 4)

	assert.Equal(t, "tp9", sum[0].Channel)
	assert.Equal(t, 3, sum[0].Count)
	assert.InDelta(t, 2.0, sum[0].Mean, 1e-6)
	assert.InDelta(t, 1.0, sum[0].StdDev, 1e-6)
	assert.InDelta(t, 1.0, sum[0].Min, 1e-6)
	assert.InDelta(t, 3.0, sum[0].Max, 1e-6)

	assert.Equal(t, 1, sum[1].Count)
	assert.InDelta(t, 5.0, sum[1].Mean, 1e-6)
	assert.Zero(t, sum[1].StdDev)

	assert.Equal(t, 0, sum[2].Count)
	assert.True(t, math.IsNaN(sum[2].Mean))

	assert.InDelta(t, 0.0, sum[3].StdDev, 1e-6)
}

type recordingSink struct {
	packets []packet.Packet
	events  []packet.ConnectionEvent
}

func (r *recordingSink) Dispatch(p packet.Packet) pipeline.Outcome {
	r.packets = append(r.packets, p)
	return pipeline.Sent
}

func (r *recordingSink) HandleConnection(_ context.Context, evt packet.ConnectionEvent) {
	r.events = append(r.events, evt)
}

func TestTapForwards(t *testing.T) {
	h := NewHistory(5)
	next := &recordingSink{}
	sink := h.Tap(next)

	assert.Equal(t, pipeline.Sent, sink.Dispatch(alpha(0, 1, 1, 1, 1)))
	sink.HandleConnection(context.Background(), packet.ConnectionEvent{Current: packet.StateConnected})

	assert.Len(t, next.packets, 1)
	assert.Len(t, next.events, 1)
	assert.Len(t, h.Samples(packet.AlphaAbsolute), 1)
}

type fakeState struct {
	info     *session.Info
	counters network.Counters
	paused   bool
}

func (f *fakeState) Current() (session.Info, bool) {
	if f.info == nil {
		return session.Info{}, false
	}
	return *f.info, true
}

func (f *fakeState) Counters() (network.Counters, bool) { return f.counters, f.info != nil }

func (f *fakeState) GateStats() map[packet.Category]gate.WindowStats {
	return map[packet.Category]gate.WindowStats{
		packet.Horseshoe: {Interval: time.Second, Accepted: 3, Dropped: 7},
	}
}

func (f *fakeState) Paused() bool { return f.paused }

func newMux(t *testing.T, state *fakeState, h *History, board *display.Board) *http.ServeMux {
	t.Helper()
	mux := http.NewServeMux()
	AttachAdminRoutes(mux, Options{
		State:     state,
		Board:     board,
		History:   h,
		SetPaused: func(p bool) { state.paused = p },
	})
	return mux
}

func do(mux *http.ServeMux, method, target string, form url.Values) *httptest.ResponseRecorder {
	var req *http.Request
	if form != nil {
		req = httptest.NewRequest(method, target, strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	req.RemoteAddr = "127.0.0.1:12345"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func TestStateRoute(t *testing.T) {
	state := &fakeState{
		info:     &session.Info{ID: "abc", Endpoint: network.Endpoint{Host: "10.0.0.2", Port: 5000}, Namespace: "muse"},
		counters: network.Counters{Sent: 4, Dropped: 1},
	}
	board := display.NewBoard()
	board.Display(display.FieldBattery, "    54%")
	mux := newMux(t, state, NewHistory(4), board)

	rec := do(mux, http.MethodGet, "/debug/state", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got stateJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.True(t, got.Connected)
	assert.Equal(t, "abc", got.Session.ID)
	assert.Equal(t, uint64(4), got.Counters.Sent)
	assert.Equal(t, int64(7), got.Windows["horseshoe"].Dropped)
	assert.Equal(t, "1s", got.Windows["horseshoe"].Interval)
	assert.Equal(t, "    54%", got.Display[display.FieldBattery])
}

func TestBandRoutes(t *testing.T) {
	h := NewHistory(4)
	h.Observe(alpha(0, 0.25, math.NaN(), 1, 1))
	h.Observe(alpha(1, 0.75, math.NaN(), 1, 1))
	mux := newMux(t, &fakeState{}, h, nil)

	rec := do(mux, http.MethodGet, "/debug/bands.json?band=alpha", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sum summaryJSON
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
	assert.Equal(t, "alpha_absolute", sum.Band)
	assert.Equal(t, 2, sum.Samples)
	require.NotNil(t, sum.Channels[0].Mean)
	assert.InDelta(t, 0.5, *sum.Channels[0].Mean, 1e-6)
	assert.Nil(t, sum.Channels[1].Mean)

	rec = do(mux, http.MethodGet, "/debug/bands", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "alpha_absolute")
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")

	rec = do(mux, http.MethodGet, "/debug/bands.json?band=horseshoe", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPauseRoute(t *testing.T) {
	state := &fakeState{}
	mux := newMux(t, state, nil, nil)

	rec := do(mux, http.MethodPost, "/debug/pause", url.Values{"paused": {"true"}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, state.paused)

	rec = do(mux, http.MethodPost, "/debug/pause", url.Values{"paused": {"maybe"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/debug/pause", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
