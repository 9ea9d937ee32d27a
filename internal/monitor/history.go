// Package monitor keeps a short in-memory history of band power and serves
// it, with live bridge state, under /debug/.
package monitor

import (
	"context"
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/museosc/internal/device"
	"github.com/banshee-data/museosc/internal/normalize"
	"github.com/banshee-data/museosc/internal/packet"
	"github.com/banshee-data/museosc/internal/pipeline"
)

// DefaultCapacity is the number of samples kept per band.
const DefaultCapacity = 600

// Sample is one normalized waveband reading. Invalid channels hold NaN.
type Sample struct {
	At     time.Time
	Values [packet.NumChannels]float64
}

// ChannelSummary describes one channel over the retained window.
type ChannelSummary struct {
	Channel string  `json:"channel"`
	Count   int     `json:"count"`
	Mean    float64 `json:"mean"`
	StdDev  float64 `json:"std_dev"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
}

// History is a fixed-size ring of waveband samples per band.
type History struct {
	mu       sync.RWMutex
	capacity int
	rings    map[packet.Category]*ring
}

type ring struct {
	samples []Sample
	next    int
	full    bool
}

// NewHistory returns a History keeping capacity samples per band.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	h := &History{capacity: capacity, rings: make(map[packet.Category]*ring, len(packet.Wavebands))}
	for _, band := range packet.Wavebands {
		h.rings[band] = &ring{samples: make([]Sample, capacity)}
	}
	return h
}

// Observe records p when it is a waveband packet. Other categories are
// ignored.
func (h *History) Observe(p packet.Packet) {
	if !p.Category.IsWaveband() {
		return
	}
	quad, valid := normalize.Channels(p.Values)
	s := Sample{At: p.Timestamp}
	for i := range quad {
		if valid[i] {
			s.Values[i] = float64(quad[i])
		} else {
			s.Values[i] = math.NaN()
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	r := h.rings[p.Category]
	r.samples[r.next] = s
	r.next = (r.next + 1) % h.capacity
	if r.next == 0 {
		r.full = true
	}
}

// Samples returns band's samples oldest first.
func (h *History) Samples(band packet.Category) []Sample {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rings[band]
	if !ok {
		return nil
	}
	if !r.full {
		return append([]Sample(nil), r.samples[:r.next]...)
	}
	out := make([]Sample, 0, h.capacity)
	out = append(out, r.samples[r.next:]...)
	return append(out, r.samples[:r.next]...)
}

// Summary computes per-channel statistics for band, skipping invalid
// readings. Channels with no valid readings report Count 0 and NaN values.
func (h *History) Summary(band packet.Category) []ChannelSummary {
	samples := h.Samples(band)
	out := make([]ChannelSummary, 0, packet.NumChannels)
	for _, ch := range packet.Channels {
		xs := make([]float64, 0, len(samples))
		for _, s := range samples {
			if v := s.Values[ch]; !math.IsNaN(v) {
				xs = append(xs, v)
			}
		}
		sum := ChannelSummary{Channel: ch.String(), Count: len(xs)}
		switch len(xs) {
		case 0:
			sum.Mean, sum.StdDev, sum.Min, sum.Max = math.NaN(), math.NaN(), math.NaN(), math.NaN()
		case 1:
			sum.Mean, sum.Min, sum.Max = xs[0], xs[0], xs[0]
		default:
			sum.Mean, sum.StdDev = stat.MeanStdDev(xs, nil)
			sum.Min, sum.Max = floats.Min(xs), floats.Max(xs)
		}
		out = append(out, sum)
	}
	return out
}

// Reset clears all bands.
func (h *History) Reset() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for band := range h.rings {
		h.rings[band] = &ring{samples: make([]Sample, h.capacity)}
	}
}

// Tap returns a device.Sink that records every packet before handing it to
// next.
func (h *History) Tap(next device.Sink) device.Sink {
	return &tap{history: h, next: next}
}

type tap struct {
	history *History
	next    device.Sink
}

func (t *tap) Dispatch(p packet.Packet) pipeline.Outcome {
	t.history.Observe(p)
	return t.next.Dispatch(p)
}

func (t *tap) HandleConnection(ctx context.Context, evt packet.ConnectionEvent) {
	t.next.HandleConnection(ctx, evt)
}
