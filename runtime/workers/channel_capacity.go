package workers

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

const defaultSaturation = 0.8

type NamedChannel struct {
	Name    string
	Channel any
}

type ChannelSample struct {
	Capacity  int
	Length    int
	SampledAt time.Time
}

// ChannelCapacityWorker periodically samples the length and capacity of buffered channels
// such as the engine inbox or the event fanout buffer.
// Reading len(channel) and cap(channel) is non-blocking, so this won't interfere
// with other goroutines. A channel filling up past the saturation ratio is logged.
type ChannelCapacityWorker struct {
	log            *slog.Logger
	channels       []NamedChannel
	metricInterval time.Duration
	saturation     float64
	mu             sync.RWMutex
	latest         map[string]ChannelSample
}

func NewChannelCapacityWorker(log *slog.Logger, channels []NamedChannel, metricInterval time.Duration) *ChannelCapacityWorker {
	return &ChannelCapacityWorker{
		log:            log,
		channels:       channels,
		metricInterval: metricInterval,
		saturation:     defaultSaturation,
		latest:         make(map[string]ChannelSample),
	}
}

func (w *ChannelCapacityWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.metricInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping channel sampling")
			return nil
		case <-ticker.C:
			w.Sample()
		}
	}
}

// Sample reads every channel once.
func (w *ChannelCapacityWorker) Sample() {
	now := time.Now().UTC()
	for _, nc := range w.channels {
		v := reflect.ValueOf(nc.Channel)
		// Verify if this is a channel
		if v.Kind() != reflect.Chan {
			w.log.Error("Provided object is not a channel", "name", nc.Name)
			continue
		}
		sample := ChannelSample{Capacity: v.Cap(), Length: v.Len(), SampledAt: now}
		if sample.Capacity > 0 && float64(sample.Length) >= w.saturation*float64(sample.Capacity) {
			w.log.Warn("Channel close to saturation", "name", nc.Name, "length", sample.Length, "capacity", sample.Capacity)
		}
		w.mu.Lock()
		w.latest[nc.Name] = sample
		w.mu.Unlock()
	}
}

// Stats returns the last samples as "length/capacity" per channel name.
func (w *ChannelCapacityWorker) Stats() map[string]any {
	w.mu.RLock()
	defer w.mu.RUnlock()
	stats := make(map[string]any, len(w.latest))
	for name, s := range w.latest {
		stats[name] = fmt.Sprintf("%d/%d", s.Length, s.Capacity)
	}
	return stats
}
