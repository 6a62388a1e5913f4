// Package observability aggregates client-core counters for logs and
// the demo UI. Best effort only; losing a telemetry sample never blocks
// the chat pipeline.
package observability

import (
	"carelink/domain/event"
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Snapshot aggregates the counters for display.
type Snapshot struct {
	EventsReceived uint64  `json:"events_received"`
	EventsDropped  uint64  `json:"events_dropped"`
	Refreshes      uint64  `json:"refreshes"`
	SendsFailed    uint64  `json:"sends_failed"`
	Subscriptions  uint64  `json:"subscriptions"`
	ChannelFaults  uint64  `json:"channel_faults"`
	AllocMemMb     uint64  `json:"alloc_mem_mb"`
	NumGC          uint32  `json:"num_gc"`
	ProcessCPU     float64 `json:"process_cpu_percent"`
	ProcessRSSMb   uint64  `json:"process_rss_mb"`
}

// Telemetry counts what flows through the core. It doubles as an event
// sink behind the dispatcher and as a supervised worker that refreshes
// the process stats on a fixed interval.
type Telemetry struct {
	log      *slog.Logger
	interval time.Duration

	eventsReceived uint64
	eventsDropped  uint64
	refreshes      uint64
	sendsFailed    uint64
	subscriptions  uint64
	channelFaults  uint64

	mu     sync.RWMutex
	latest Snapshot
	proc   *process.Process
}

func NewTelemetry(log *slog.Logger, interval time.Duration) *Telemetry {
	t := &Telemetry{log: log, interval: interval}
	// Process handle is optional: on platforms where it fails we still
	// report the Go runtime numbers.
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		t.proc = proc
	}
	return t
}

func (t *Telemetry) IncrDroppedStale() { atomic.AddUint64(&t.eventsDropped, 1) }
func (t *Telemetry) IncrRefresh()      { atomic.AddUint64(&t.refreshes, 1) }
func (t *Telemetry) IncrSendFailed()   { atomic.AddUint64(&t.sendsFailed, 1) }

// Consume implements contract.EventSink: every dispatched event bumps a
// counter by type.
func (t *Telemetry) Consume(e event.ChannelEvent) {
	switch e.(type) {
	case event.MessageReceived:
		atomic.AddUint64(&t.eventsReceived, 1)
	case event.SubscriptionOpened:
		atomic.AddUint64(&t.subscriptions, 1)
	case event.ChannelFault:
		atomic.AddUint64(&t.channelFaults, 1)
	}
}

// Run implements contract.Worker: periodic snapshot refresh until the
// context is cancelled.
func (t *Telemetry) Run(ctx context.Context) error {
	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			t.log.Debug("Context done, stopping telemetry")
			return nil
		case <-ticker.C:
			t.updateStats()
		}
	}
}

func (t *Telemetry) updateStats() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	snap := Snapshot{
		EventsReceived: atomic.LoadUint64(&t.eventsReceived),
		EventsDropped:  atomic.LoadUint64(&t.eventsDropped),
		Refreshes:      atomic.LoadUint64(&t.refreshes),
		SendsFailed:    atomic.LoadUint64(&t.sendsFailed),
		Subscriptions:  atomic.LoadUint64(&t.subscriptions),
		ChannelFaults:  atomic.LoadUint64(&t.channelFaults),
		AllocMemMb:     m.Alloc / 1024 / 1024,
		NumGC:          m.NumGC,
	}

	if t.proc != nil {
		if cpu, err := t.proc.CPUPercent(); err == nil {
			snap.ProcessCPU = cpu
		}
		if mem, err := t.proc.MemoryInfo(); err == nil && mem != nil {
			snap.ProcessRSSMb = mem.RSS / 1024 / 1024
		}
	}

	t.mu.Lock()
	t.latest = snap
	t.mu.Unlock()

	t.log.Debug("Telemetry updated",
		"events_received", snap.EventsReceived,
		"events_dropped", snap.EventsDropped,
		"mem_mb", snap.AllocMemMb,
	)
}

func (t *Telemetry) GetLatest() Snapshot {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.latest
}
