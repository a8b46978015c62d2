package tuner

import (
	"fmt"
	"log/slog"
	"sync"

	"tuner-control/internal/platform/metrics"
)

// ScanStatus is the scan engine's state machine position.
type ScanStatus int

const (
	ScanIdle ScanStatus = iota
	ScanStepping
	ScanComplete
	ScanCancelled
)

func (s ScanStatus) String() string {
	switch s {
	case ScanIdle:
		return "idle"
	case ScanStepping:
		return "stepping"
	case ScanComplete:
		return "complete"
	case ScanCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ScannedChannel is one virtual program discovered during a scan. A frequency
// carrying several programs produces several records, in detection order.
type ScannedChannel struct {
	VirtualID string `json:"virtual_id"`
	Name      string `json:"name,omitempty"`
	FreqHz    uint64 `json:"frequency_hz"`
}

// ScanSummary is delivered to the completion callback when a scan reaches a
// terminal state, whether it finished, failed mid-step, or was cancelled.
type ScanSummary struct {
	Status          ScanStatus
	ChannelsScanned int
	Found           []ScannedChannel
}

// ScanProgress is a snapshot for the host's progress display. Ratio is
// advisory: EstimatedTotal is a fixed per-map estimate, not a bound, and the
// scan terminates only on the hardware's exhaustion signal.
type ScanProgress struct {
	Status          ScanStatus `json:"-"`
	FreqHz          uint64     `json:"frequency_hz"`
	ChannelsScanned int        `json:"channels_scanned"`
	EstimatedTotal  int        `json:"estimated_total"`
	ChannelsFound   int        `json:"channels_found"`
	Ratio           float64    `json:"progress"`
}

// ScanEngine steps a hardware tuner across a channel map without ever
// blocking the scheduler: each step advances one frequency, detects its
// programs, and reschedules itself. Hardware failures are never retried; they
// end the scan through the same completion path as a normal finish, keeping
// whatever was collected so far.
type ScanEngine struct {
	drv   Driver
	sched Scheduler
	maps  *ChannelMapTable
	log   *slog.Logger
	met   *metrics.Metrics

	mu        sync.Mutex
	status    ScanStatus
	freqHz    uint64
	scanned   int
	estimated int
	found     []ScannedChannel
	pending   *Task

	onComplete func(ScanSummary)
	onProgress func(ScanProgress)
}

// NewScanEngine wires the engine to its hardware handle, scheduler, and
// channel-map table. met may be nil.
func NewScanEngine(drv Driver, sched Scheduler, maps *ChannelMapTable, log *slog.Logger, met *metrics.Metrics) *ScanEngine {
	return &ScanEngine{
		drv:   drv,
		sched: sched,
		maps:  maps,
		log:   log,
		met:   met,
	}
}

// OnComplete registers the host's completion callback (catalog rebuild,
// re-enabling the scan control). Called for Complete and Cancelled alike.
func (e *ScanEngine) OnComplete(fn func(ScanSummary)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onComplete = fn
}

// OnProgress registers an advisory per-step progress callback.
func (e *ScanEngine) OnProgress(fn func(ScanProgress)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onProgress = fn
}

// Begin starts a scan over the named channel map. It fails with
// ErrAlreadyScanning while a scan is stepping; a failed hardware init leaves
// the engine Idle. Prior results are cleared, never appended to. The first
// step runs on the scheduler, not synchronously.
func (e *ScanEngine) Begin(channelMap string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.status == ScanStepping {
		return ErrAlreadyScanning
	}

	e.found = nil
	e.scanned = 0
	e.freqHz = 0

	if err := e.drv.ScanInit(channelMap); err != nil {
		e.status = ScanIdle
		return fmt.Errorf("scan init for map %q: %w", channelMap, err)
	}

	e.estimated = e.maps.EstimatedSteps(channelMap)
	e.status = ScanStepping
	e.pending = e.sched.Schedule(e.step)

	if e.met != nil {
		e.met.IncScansStarted()
		e.met.SetScanProgress(0)
	}
	e.log.Info("scan started",
		slog.String("channel_map", channelMap),
		slog.Int("estimated_steps", e.estimated))
	return nil
}

// Cancel aborts a stepping scan. The pending step is unregistered and, per
// the stale-callback guard in step, an already-dispatched one becomes a
// no-op. No-op outside Stepping.
func (e *ScanEngine) Cancel() {
	e.mu.Lock()
	if e.status != ScanStepping {
		e.mu.Unlock()
		return
	}

	e.pending.Cancel()
	e.pending = nil
	e.status = ScanCancelled
	summary := e.summaryLocked()
	cb := e.onComplete
	e.log.Info("scan cancelled", slog.Int("channels_scanned", e.scanned))
	e.mu.Unlock()

	if cb != nil {
		cb(summary)
	}
}

// Status returns the current state machine position.
func (e *ScanEngine) Status() ScanStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Progress returns a snapshot for the host's progress display.
func (e *ScanEngine) Progress() ScanProgress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progressLocked()
}

// Channels returns a copy of the channels found so far, in discovery order.
func (e *ScanEngine) Channels() []ScannedChannel {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]ScannedChannel, len(e.found))
	copy(out, e.found)
	return out
}

// step runs one advance-plus-detect unit of scanning work on the scheduler.
func (e *ScanEngine) step() {
	e.mu.Lock()

	// A cancelled or torn-down scan can still see one stale dispatch.
	if e.status != ScanStepping {
		e.mu.Unlock()
		return
	}

	freq, ok, err := e.drv.ScanAdvance()
	if err != nil || !ok {
		if err != nil {
			e.log.Warn("scan advance failed, ending scan", slog.String("error", err.Error()))
		}
		e.finishLocked()
		return
	}

	e.freqHz = freq
	e.scanned++

	programs, err := e.drv.ScanDetect()
	if err != nil {
		e.log.Warn("scan detect failed, ending scan",
			slog.Uint64("frequency_hz", freq),
			slog.String("error", err.Error()))
		e.finishLocked()
		return
	}

	foundHere := 0
	for _, p := range programs {
		if p.VirtualID == "" {
			continue
		}
		e.found = append(e.found, ScannedChannel{
			VirtualID: p.VirtualID,
			Name:      p.Name,
			FreqHz:    freq,
		})
		foundHere++
	}
	if foundHere > 0 {
		e.log.Info("programs detected",
			slog.Uint64("frequency_hz", freq),
			slog.Int("count", foundHere))
		if e.met != nil {
			e.met.AddChannelsFound(foundHere)
		}
	}

	progress := e.progressLocked()
	if e.met != nil {
		e.met.SetScanProgress(progress.Ratio)
	}

	e.pending = e.sched.Schedule(e.step)
	cb := e.onProgress
	e.mu.Unlock()

	if cb != nil {
		cb(progress)
	}
}

// finishLocked moves the engine to Complete and fires the completion
// callback. Called with e.mu held; releases it.
func (e *ScanEngine) finishLocked() {
	e.pending = nil
	e.status = ScanComplete
	if e.met != nil {
		e.met.SetScanProgress(1)
	}
	summary := e.summaryLocked()
	cb := e.onComplete
	e.log.Info("scan complete",
		slog.Int("channels_scanned", summary.ChannelsScanned),
		slog.Int("channels_found", len(summary.Found)))
	e.mu.Unlock()

	if cb != nil {
		cb(summary)
	}
}

func (e *ScanEngine) summaryLocked() ScanSummary {
	found := make([]ScannedChannel, len(e.found))
	copy(found, e.found)
	return ScanSummary{
		Status:          e.status,
		ChannelsScanned: e.scanned,
		Found:           found,
	}
}

func (e *ScanEngine) progressLocked() ScanProgress {
	ratio := 0.0
	if e.estimated > 0 {
		ratio = float64(e.scanned) / float64(e.estimated)
		if ratio > 1 {
			ratio = 1
		}
	}
	if e.status == ScanComplete {
		ratio = 1
	}
	return ScanProgress{
		Status:          e.status,
		FreqHz:          e.freqHz,
		ChannelsScanned: e.scanned,
		EstimatedTotal:  e.estimated,
		ChannelsFound:   len(e.found),
		Ratio:           ratio,
	}
}
