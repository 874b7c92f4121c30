// Package bandwidth aggregates instantaneous throughput samples from every
// upload source into a smoothed total rate and an all-time peak.
package bandwidth

import (
	"context"
	"sync"
	"time"

	"github.com/imxup/imxup/internal/clock"
	"github.com/imxup/imxup/internal/fanout"
	"github.com/imxup/imxup/logging"
)

var log = logging.Module("bandwidth")

const (
	// windowSamples is the rolling window feeding the smoother, about 4s of
	// history at the 200ms sampling cadence.
	windowSamples = 20

	// Asymmetric smoothing: fast attack so ramp-ups show quickly, slow
	// release to damp the rate spikes at the end of each image upload.
	alphaAttack  = 0.30
	alphaRelease = 0.05

	// publishInterval caps how often subscribers are notified.
	publishInterval = 200 * time.Millisecond

	// sanityCeilingKBps discards absurd aggregate readings (10 GiB/s).
	sanityCeilingKBps = 10 * 1024 * 1024
)

// Snapshot is what subscribers receive on every publication.
type Snapshot struct {
	TotalKBps float64
	PerSource map[string]float64
	PeakKBps  float64
}

// PeakStore persists the all-time peak; implemented by the store package.
type PeakStore interface {
	SetPeakThroughput(ctx context.Context, kbps float64, when time.Time) error
}

type source struct {
	window   [windowSamples]float64
	idx      int
	count    int
	smoothed float64
}

func (s *source) record(instantKBps float64) {
	s.window[s.idx] = instantKBps
	s.idx = (s.idx + 1) % windowSamples

	if s.count < windowSamples {
		s.count++
	}

	var sum float64
	for i := 0; i < s.count; i++ {
		sum += s.window[i]
	}

	avg := sum / float64(s.count)

	alpha := alphaRelease
	if avg > s.smoothed {
		alpha = alphaAttack
	}

	s.smoothed = alpha*avg + (1-alpha)*s.smoothed
}

// Aggregator collects per-source samples and publishes the smoothed sum.
// Callers on any goroutine may RecordSample; subscriber callbacks run on the
// aggregator's own dispatch goroutine.
type Aggregator struct {
	mu       sync.Mutex
	sources  map[string]*source
	peak     float64
	peakTime time.Time
	dirty    bool
	newPeak  bool

	bus       *fanout.Bus[Snapshot]
	peakStore PeakStore

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewAggregator returns a running aggregator. peakStore may be nil; the
// initial peak should be seeded via SeedPeak from persisted state.
func NewAggregator(ctx context.Context, peakStore PeakStore) *Aggregator {
	a := &Aggregator{
		sources:   map[string]*source{},
		bus:       fanout.NewBus[Snapshot](),
		peakStore: peakStore,
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}

	go a.dispatch(ctx)

	return a
}

// SeedPeak installs a previously persisted peak value.
func (a *Aggregator) SeedPeak(kbps float64, when time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.peak = kbps
	a.peakTime = when
}

// RecordSample feeds one instantaneous rate observation for a source.
func (a *Aggregator) RecordSample(sourceID string, instantKBps float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	src := a.sources[sourceID]
	if src == nil {
		src = &source{}
		a.sources[sourceID] = src
	}

	src.record(instantKBps)
	a.dirty = true

	total := a.totalLocked()
	if total > a.peak && total < sanityCeilingKBps {
		a.peak = total
		a.peakTime = clock.Now()
		a.newPeak = true
	}
}

// RemoveSource drops a source once its upload finished so stale smoothed
// values stop contributing to the total.
func (a *Aggregator) RemoveSource(sourceID string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.sources[sourceID]; ok {
		delete(a.sources, sourceID)
		a.dirty = true
	}
}

// Subscribe registers a callback receiving published snapshots in order.
func (a *Aggregator) Subscribe(fn func(Snapshot)) {
	a.bus.Subscribe(fn)
}

// GetCurrent returns the current smoothed aggregate rate.
func (a *Aggregator) GetCurrent() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.totalLocked()
}

// GetPeak returns the all-time peak and when it was set.
func (a *Aggregator) GetPeak() (float64, time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.peak, a.peakTime
}

// ResetPeak clears the all-time peak.
func (a *Aggregator) ResetPeak() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.peak = 0
	a.peakTime = time.Time{}
}

// Close stops the dispatcher and releases subscribers.
func (a *Aggregator) Close() {
	a.stopOnce.Do(func() {
		close(a.stop)
		<-a.done
		a.bus.Close()
	})
}

func (a *Aggregator) totalLocked() float64 {
	var total float64
	for _, s := range a.sources {
		total += s.smoothed
	}

	return total
}

func (a *Aggregator) snapshotLocked() Snapshot {
	per := make(map[string]float64, len(a.sources))
	for id, s := range a.sources {
		per[id] = s.smoothed
	}

	return Snapshot{
		TotalKBps: a.totalLocked(),
		PerSource: per,
		PeakKBps:  a.peak,
	}
}

func (a *Aggregator) dispatch(ctx context.Context) {
	defer close(a.done)

	ticker := time.NewTicker(publishInterval)
	defer ticker.Stop()

	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
		}

		a.mu.Lock()

		if !a.dirty {
			a.mu.Unlock()
			continue
		}

		snap := a.snapshotLocked()
		persistPeak := a.newPeak
		peak, peakTime := a.peak, a.peakTime
		a.dirty = false
		a.newPeak = false
		a.mu.Unlock()

		if persistPeak && a.peakStore != nil {
			if err := a.peakStore.SetPeakThroughput(ctx, peak, peakTime); err != nil {
				log(ctx).Warnf("unable to persist peak throughput: %v", err)
			}
		}

		a.bus.Publish(snap)
	}
}
