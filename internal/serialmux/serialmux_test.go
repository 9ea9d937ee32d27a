package serialmux

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestSerialMux_FanOut(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("alpha_absolute,0.1,0.2,0.3,0.4\nartifacts,1\n"))
	mux := NewSerialMux(port)

	id1, ch1 := mux.Subscribe()
	_, ch2 := mux.Subscribe()

	// EOF after the buffered lines ends Monitor cleanly
	require.NoError(t, mux.Monitor(context.Background()))

	for _, ch := range []chan string{ch1, ch2} {
		assert.Equal(t, "alpha_absolute,0.1,0.2,0.3,0.4", <-ch)
		assert.Equal(t, "artifacts,1", <-ch)
	}

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "unsubscribed channel should be closed")
	mux.Unsubscribe("missing")

	require.NoError(t, mux.Close())
	_, ok = <-ch2
	assert.False(t, ok)
	assert.True(t, port.Closed)
}

func TestSerialMux_MonitorStopsOnContext(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mux.Monitor(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Monitor did not return")
	}
	require.NoError(t, mux.Close())
}

func TestSerialMux_MonitorReadError(t *testing.T) {
	port := NewTestableSerialPort()
	port.Closed = true
	mux := NewSerialMux(port)
	err := mux.Monitor(context.Background())
	assert.ErrorIs(t, err, errPortClosed)
}

func TestSerialMux_SendCommand(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.SendCommand("transmit,off"))
	require.NoError(t, mux.SendCommand("transmit,on\n"))
	assert.Equal(t, "transmit,off\ntransmit,on\n", string(port.GetWrittenData()))

	port.WriteError = errors.New("unplugged")
	assert.Error(t, mux.SendCommand("x"))
}

func TestSerialMux_Initialize(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)

	require.NoError(t, mux.Initialize("stream,on", "transmit,on"))
	assert.Equal(t, "stream,on\ntransmit,on\n", string(port.GetWrittenData()))

	port.WriteError = errors.New("unplugged")
	err := mux.Initialize("stream,on")
	assert.ErrorContains(t, err, `"stream,on"`)
}

func TestReplayPort(t *testing.T) {
	port := ReplayPort([]string{"artifacts,1", "artifacts,0"}, time.Millisecond, false)
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "artifacts,1", <-ch)
	assert.Equal(t, "artifacts,0", <-ch)
	require.NoError(t, mux.Close())
}

func TestReplayPort_Loops(t *testing.T) {
	port := ReplayPort([]string{"artifacts,1"}, time.Millisecond, true)
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	ctx, cancel := context.WithCancel(context.Background())
	go mux.Monitor(ctx)
	for i := 0; i < 3; i++ {
		select {
		case line := <-ch:
			assert.Equal(t, "artifacts,1", line)
		case <-time.After(time.Second):
			t.Fatal("replay did not loop")
		}
	}
	cancel()
	require.NoError(t, mux.Close())
}

func TestPortOptions(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: 115200, DataBits: 8, StopBits: 1, Parity: "N"}, opts)

	mode, err := PortOptions{BaudRate: 9600, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 9600, mode.BaudRate)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	for _, bad := range []PortOptions{{DataBits: 9}, {StopBits: 3}, {Parity: "mark"}} {
		_, err := bad.Normalize()
		assert.Error(t, err, "%+v", bad)
	}
}

func TestDisabledSerialMux(t *testing.T) {
	d := NewDisabledSerialMux()
	id, ch := d.Subscribe()
	assert.NoError(t, d.SendCommand("x"))
	assert.NoError(t, d.Initialize("a"))

	d.Unsubscribe(id)
	_, ok := <-ch
	assert.False(t, ok)

	_, ch2 := d.Subscribe()
	require.NoError(t, d.Close())
	_, ok = <-ch2
	assert.False(t, ok)

	// subscribing after close yields a closed channel
	_, ch3 := d.Subscribe()
	_, ok = <-ch3
	assert.False(t, ok)
	assert.NoError(t, d.Close())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Monitor(ctx), context.Canceled)
}

func TestAdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewSerialMux(port)
	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, mux)

	// tsweb only serves debug routes to loopback/tailnet callers
	req := httptest.NewRequest(http.MethodGet, "/debug/serial", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "EventSource")

	form := url.Values{"command": {"transmit,off"}}
	req = httptest.NewRequest(http.MethodPost, "/debug/send-command-api", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "transmit,off\n", string(port.GetWrittenData()))

	req = httptest.NewRequest(http.MethodGet, "/debug/send-command-api", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec = httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSerialMux_StatsAndCarriageReturn(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("artifacts,1\r\nartifacts,0\r\n"))
	mux := NewSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	assert.Equal(t, "artifacts,1", <-ch)
	assert.Equal(t, "artifacts,0", <-ch)
	assert.Equal(t, Stats{Lines: 2, Subscribers: 1, Delivered: 2}, mux.Stats())
	require.NoError(t, mux.Close())
}

func TestSerialMux_SlowSubscriberDrops(t *testing.T) {
	port := NewTestableSerialPort()
	for i := 0; i < SubscriberBuffer+3; i++ {
		port.AddReadData([]byte("artifacts,1\n"))
	}
	mux := NewSerialMux(port)
	mux.Subscribe()

	require.NoError(t, mux.Monitor(context.Background()))
	st := mux.Stats()
	assert.Equal(t, uint64(SubscriberBuffer+3), st.Lines)
	assert.Equal(t, uint64(SubscriberBuffer), st.Delivered)
	assert.Equal(t, uint64(3), st.Dropped)
	require.NoError(t, mux.Close())
}

func TestSerialMux_SubscribeAfterClose(t *testing.T) {
	mux := NewSerialMux(NewTestableSerialPort())
	require.NoError(t, mux.Close())
	_, ch := mux.Subscribe()
	_, ok := <-ch
	assert.False(t, ok)
}

func TestAdminRoutes_Stats(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("artifacts,1\n"))
	mux := NewSerialMux(port)
	require.NoError(t, mux.Monitor(context.Background()))

	httpMux := http.NewServeMux()
	AttachAdminRoutes(httpMux, mux)

	req := httptest.NewRequest(http.MethodGet, "/debug/serial.json", nil)
	req.RemoteAddr = "127.0.0.1:1234"
	rec := httptest.NewRecorder()
	httpMux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"lines":1,"subscribers":0,"delivered":0,"dropped":0}`, rec.Body.String())
}
