package monitor

import (
	"bytes"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"tailscale.com/tsweb"

	"github.com/banshee-data/museosc/internal/display"
	"github.com/banshee-data/museosc/internal/gate"
	"github.com/banshee-data/museosc/internal/httputil"
	"github.com/banshee-data/museosc/internal/network"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/session"
)

// State is the live bridge state shown on the debug pages. *session.Manager
// implements it.
type State interface {
	Current() (session.Info, bool)
	Counters() (network.Counters, bool)
	GateStats() map[packet.Category]gate.WindowStats
	Paused() bool
}

// Options wires the debug routes.
type Options struct {
	State   State
	Board   *display.Board
	History *History
	// SetPaused is called by the pause route. Nil disables the route.
	SetPaused func(paused bool)
}

type windowJSON struct {
	Interval string    `json:"interval"`
	LastFire time.Time `json:"last_fire"`
	Accepted int64     `json:"accepted"`
	Dropped  int64     `json:"dropped"`
}

type stateJSON struct {
	Connected bool                  `json:"connected"`
	Session   *session.Info         `json:"session,omitempty"`
	Counters  *network.Counters     `json:"counters,omitempty"`
	Paused    bool                  `json:"paused"`
	Windows   map[string]windowJSON `json:"windows"`
	Display   map[string]string     `json:"display,omitempty"`
}

// AttachAdminRoutes registers bridge state, band charts and the pause toggle
// under /debug/.
func AttachAdminRoutes(mux *http.ServeMux, o Options) {
	debug := tsweb.Debugger(mux)

	debug.KVFunc("Session", func() any {
		info, ok := o.State.Current()
		if !ok {
			return "not connected"
		}
		return fmt.Sprintf("%s -> %s", info.ID, info.Endpoint)
	})
	debug.KVFunc("Transmission", func() any {
		if o.State.Paused() {
			return "paused"
		}
		return "running"
	})

	debug.HandleFunc("state", "bridge session, queue counters and throttle windows (JSON)", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSONOK(w, buildState(o))
	})

	if o.History != nil {
		debug.HandleFunc("bands", "band power history chart", o.History.serveChart)
		debug.HandleSilentFunc("bands.json", o.History.serveSummary)
	}

	if o.SetPaused != nil {
		debug.HandleSilentFunc("pause", func(w http.ResponseWriter, r *http.Request) {
			if !httputil.RequireMethod(w, r, http.MethodPost) {
				return
			}
			paused, err := strconv.ParseBool(r.FormValue("paused"))
			if err != nil {
				httputil.BadRequest(w, "paused must be true or false")
				return
			}
			o.SetPaused(paused)
			httputil.WriteJSONOK(w, map[string]bool{"paused": paused})
		})
	}
}

func buildState(o Options) stateJSON {
	st := stateJSON{Paused: o.State.Paused(), Windows: map[string]windowJSON{}}
	if info, ok := o.State.Current(); ok {
		st.Connected = true
		st.Session = &info
	}
	if c, ok := o.State.Counters(); ok {
		st.Counters = &c
	}
	for c, ws := range o.State.GateStats() {
		st.Windows[c.String()] = windowJSON{
			Interval: ws.Interval.String(),
			LastFire: ws.LastFire,
			Accepted: ws.Accepted,
			Dropped:  ws.Dropped,
		}
	}
	if o.Board != nil {
		st.Display = o.Board.Snapshot()
	}
	return st
}

// bandParam maps ?band=alpha (or alpha_absolute) to a waveband category.
func bandParam(r *http.Request) (packet.Category, error) {
	name := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("band")))
	if name == "" {
		return packet.AlphaAbsolute, nil
	}
	if !strings.HasSuffix(name, "_absolute") {
		name += "_absolute"
	}
	c := packet.ParseCategory(name)
	if !c.IsWaveband() {
		return packet.Unknown, fmt.Errorf("unknown band %q", r.URL.Query().Get("band"))
	}
	return c, nil
}

type summaryJSON struct {
	Band     string        `json:"band"`
	Samples  int           `json:"samples"`
	Channels []channelJSON `json:"channels"`
}

// channelJSON uses pointers so channels without data encode as null.
type channelJSON struct {
	Channel string   `json:"channel"`
	Count   int      `json:"count"`
	Mean    *float64 `json:"mean"`
	StdDev  *float64 `json:"std_dev"`
	Min     *float64 `json:"min"`
	Max     *float64 `json:"max"`
}

func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (h *History) serveSummary(w http.ResponseWriter, r *http.Request) {
	band, err := bandParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	out := summaryJSON{Band: band.String(), Samples: len(h.Samples(band))}
	for _, s := range h.Summary(band) {
		out.Channels = append(out.Channels, channelJSON{
			Channel: s.Channel,
			Count:   s.Count,
			Mean:    finite(s.Mean),
			StdDev:  finite(s.StdDev),
			Min:     finite(s.Min),
			Max:     finite(s.Max),
		})
	}
	httputil.WriteJSONOK(w, out)
}

func (h *History) serveChart(w http.ResponseWriter, r *http.Request) {
	band, err := bandParam(r)
	if err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	samples := h.Samples(band)

	labels := make([]string, len(samples))
	series := make([][]opts.LineData, packet.NumChannels)
	for i, s := range samples {
		labels[i] = s.At.Format("15:04:05.000")
		for ch := range series {
			var v interface{} = s.Values[ch]
			if math.IsNaN(s.Values[ch]) {
				// echarts treats "-" as a gap
				v = "-"
			}
			series[ch] = append(series[ch], opts.LineData{Value: v})
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Band power", Width: "100%", Height: "600px"}),
		charts.WithTitleOpts(opts.Title{Title: band.String(), Subtitle: fmt.Sprintf("samples=%d", len(samples))}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithYAxisOpts(opts.YAxis{Name: "log power"}),
		charts.WithDataZoomOpts(opts.DataZoom{Type: "slider"}),
	)
	line.SetXAxis(labels)
	for _, ch := range packet.Channels {
		line.AddSeries(ch.String(), series[ch], charts.WithLineChartOpts(opts.LineChart{ShowSymbol: opts.Bool(false)}))
	}

	var buf bytes.Buffer
	if err := line.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to render chart: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
