package tuner

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"tuner-control/internal/platform/metrics"

	"github.com/Comcast/gots/packet"
)

// tsSyncByte starts every MPEG-TS packet on the wire.
const tsSyncByte = 0x47

// SessionConfig tunes the stream session. Zero values fall back to defaults.
type SessionConfig struct {
	// RingCapacity is the stream buffer size in bytes (default 2 MiB).
	RingCapacity int
	// PollInterval is how often the hardware is polled for new data.
	PollInterval time.Duration
	// ChunkSize bounds a single poll's read from the hardware.
	ChunkSize int
}

const (
	defaultPollInterval = 50 * time.Millisecond
	defaultChunkSize    = 64 * 1024
)

func (c SessionConfig) withDefaults() SessionConfig {
	if c.RingCapacity <= 0 {
		c.RingCapacity = DefaultRingCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	return c
}

// SessionStats is a point-in-time snapshot of the stream session.
type SessionStats struct {
	Playing       bool   `json:"playing"`
	BufferedBytes int    `json:"buffered_bytes"`
	Capacity      int    `json:"capacity_bytes"`
	DroppedBytes  uint64 `json:"dropped_bytes"`
	Packets       uint64 `json:"packets"`
	PATPackets    uint64 `json:"pat_packets"`
	SyncErrors    uint64 `json:"sync_errors"`
}

// Session owns one live data flow from a tuner handle: it drives the periodic
// hardware poll feeding the ring buffer and hands the external decoder its
// pull contract via Source. One Session exists per active tuner selection;
// the ring buffer is created lazily on first play and retained across
// stop/play cycles until the session itself is closed.
type Session struct {
	drv   Driver
	sched Scheduler
	cfg   SessionConfig
	log   *slog.Logger
	met   *metrics.Metrics

	mu      sync.Mutex
	ring    *RingBuffer
	poll    *Task
	playing bool
	closed  bool

	// onDecoderStop lets the host detach its decoder before the hardware
	// stream is flushed and stopped.
	onDecoderStop func()

	dropped    atomic.Uint64
	packets    atomic.Uint64
	patPackets atomic.Uint64
	syncErrors atomic.Uint64
}

// NewSession wires a session to its hardware handle and scheduler.
// met may be nil to disable metric recording (e.g. in tests).
func NewSession(drv Driver, sched Scheduler, cfg SessionConfig, log *slog.Logger, met *metrics.Metrics) *Session {
	return &Session{
		drv:   drv,
		sched: sched,
		cfg:   cfg.withDefaults(),
		log:   log,
		met:   met,
	}
}

// OnDecoderStop registers a hook invoked during Stop, before the hardware
// stream is flushed. Must be set before Start.
func (s *Session) OnDecoderStop(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDecoderStop = fn
}

// Start opens the hardware stream and registers the poll task. On stream-open
// failure it returns an error wrapping ErrHardwareUnavailable and changes
// nothing. Calling Start while already playing is a no-op.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("%w: session closed", ErrHardwareUnavailable)
	}
	if s.playing {
		return nil
	}

	if err := s.drv.StartStream(); err != nil {
		return fmt.Errorf("%w: start stream: %v", ErrHardwareUnavailable, err)
	}

	if s.ring == nil {
		s.ring = NewRingBuffer(s.cfg.RingCapacity)
	}

	s.poll = s.sched.ScheduleEvery(s.cfg.PollInterval, s.pollOnce)
	s.playing = true
	s.log.Info("stream started",
		slog.Int("ring_capacity", s.ring.Capacity()),
		slog.Duration("poll_interval", s.cfg.PollInterval))
	return nil
}

// Stop is idempotent: it cancels the poll task, detaches the decoder, then
// flushes and stops the hardware stream. Safe to call when not playing.
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if !s.playing {
		return
	}

	s.poll.Cancel()
	s.poll = nil

	if s.onDecoderStop != nil {
		s.onDecoderStop()
	}

	if err := s.drv.FlushStream(); err != nil {
		s.log.Debug("flush stream", slog.String("error", err.Error()))
	}
	if err := s.drv.StopStream(); err != nil {
		s.log.Warn("stop stream", slog.String("error", err.Error()))
	}

	s.playing = false
	s.log.Info("stream stopped", slog.Uint64("dropped_bytes", s.dropped.Load()))
}

// Close stops any active stream and releases the hardware handle. The poll
// task is unregistered before the handle is closed, so no poll ever touches a
// released handle. The session cannot be restarted afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.stopLocked()
	s.closed = true
	s.ring = nil
	return s.drv.Close()
}

// Playing reports whether the poll task is active.
func (s *Session) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// Stats returns a snapshot for the host's status display.
func (s *Session) Stats() SessionStats {
	s.mu.Lock()
	ring := s.ring
	playing := s.playing
	s.mu.Unlock()

	st := SessionStats{
		Playing:      playing,
		DroppedBytes: s.dropped.Load(),
		Packets:      s.packets.Load(),
		PATPackets:   s.patPackets.Load(),
		SyncErrors:   s.syncErrors.Load(),
	}
	if ring != nil {
		st.BufferedBytes = ring.Available()
		st.Capacity = ring.Capacity()
	}
	return st
}

// Source returns the pull contract handed to the external decoder. The
// decoder reads on its own thread; the ring buffer's lock is the only
// synchronization between that thread and the poll loop.
func (s *Session) Source() *Source {
	return &Source{sess: s}
}

// pollOnce runs on the scheduler every PollInterval while playing: it asks
// the hardware for newly arrived data and pushes it into the ring buffer,
// counting whatever the buffer had to drop.
func (s *Session) pollOnce() {
	s.mu.Lock()
	defer s.mu.Unlock()

	// A cancelled poll can still fire once if it was already dispatched.
	if !s.playing {
		return
	}

	chunk, err := s.drv.ReceiveChunk(s.cfg.ChunkSize)
	if err != nil {
		s.log.Debug("receive chunk", slog.String("error", err.Error()))
		return
	}
	if len(chunk) == 0 {
		return
	}

	s.accountPackets(chunk)

	n := s.ring.Write(chunk)
	if n < len(chunk) {
		d := len(chunk) - n
		s.dropped.Add(uint64(d))
		if s.met != nil {
			s.met.AddDroppedBytes(d)
		}
		s.log.Debug("ring buffer full, dropping tail",
			slog.Int("offered", len(chunk)),
			slog.Int("stored", n))
	}
}

// accountPackets walks the chunk at TS packet granularity for diagnostics:
// packets seen, sync losses. Chunks from the hardware are packet-aligned.
func (s *Session) accountPackets(chunk []byte) {
	for len(chunk) >= packet.PacketSize {
		if chunk[0] != tsSyncByte {
			s.syncErrors.Add(1)
			chunk = chunk[1:]
			continue
		}
		var pkt packet.Packet
		copy(pkt[:], chunk[:packet.PacketSize])
		if pkt.PID() == 0 {
			s.patPackets.Add(1)
		}
		s.packets.Add(1)
		chunk = chunk[packet.PacketSize:]
	}
}
