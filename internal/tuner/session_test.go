package tuner

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
)

// scriptDriver replays canned stream chunks and records every hardware call.
type scriptDriver struct {
	mu         sync.Mutex
	chunks     [][]byte
	calls      []string
	startErr   error
	receiveErr error
	closed     bool
}

func (d *scriptDriver) record(call string) {
	d.mu.Lock()
	d.calls = append(d.calls, call)
	d.mu.Unlock()
}

func (d *scriptDriver) callLog() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.calls))
	copy(out, d.calls)
	return out
}

func (d *scriptDriver) StartStream() error {
	d.record("start")
	return d.startErr
}

func (d *scriptDriver) ReceiveChunk(max int) ([]byte, error) {
	d.record("receive")
	if d.receiveErr != nil {
		return nil, d.receiveErr
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.chunks) == 0 {
		return nil, nil
	}
	chunk := d.chunks[0]
	d.chunks = d.chunks[1:]
	if len(chunk) > max {
		chunk = chunk[:max]
	}
	return chunk, nil
}

func (d *scriptDriver) FlushStream() error { d.record("flush"); return nil }
func (d *scriptDriver) StopStream() error  { d.record("stop"); return nil }

func (d *scriptDriver) ScanInit(channelMap string) error { d.record("scaninit"); return nil }
func (d *scriptDriver) ScanAdvance() (uint64, bool, error) {
	d.record("advance")
	return 0, false, nil
}
func (d *scriptDriver) ScanDetect() ([]Program, error) { d.record("detect"); return nil, nil }
func (d *scriptDriver) SetChannel(token string) error  { d.record("set:" + token); return nil }

func (d *scriptDriver) Close() error {
	d.record("close")
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(127)}))
}

func newTestSession(drv Driver, sched Scheduler, ringCap int) *Session {
	return NewSession(drv, sched, SessionConfig{RingCapacity: ringCap}, testLogger(), nil)
}

func TestSession_start_polls_into_ring(t *testing.T) {
	drv := &scriptDriver{chunks: [][]byte{[]byte("first"), []byte("second")}}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !s.Playing() {
		t.Fatal("Playing() = false after Start")
	}
	if sched.pending() != 1 {
		t.Fatalf("expected 1 registered poll task, got %d", sched.pending())
	}

	sched.runNext()
	sched.runNext()

	src := s.Source()
	buf := make([]byte, 32)
	n, err := src.Read(buf)
	if err != nil {
		t.Fatalf("Source.Read: %v", err)
	}
	if !bytes.Equal(buf[:n], []byte("firstsecond")) {
		t.Errorf("read %q, want %q", buf[:n], "firstsecond")
	}
}

func TestSession_start_failure_changes_nothing(t *testing.T) {
	drv := &scriptDriver{startErr: errors.New("no signal")}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	err := s.Start()
	if !errors.Is(err, ErrHardwareUnavailable) {
		t.Fatalf("Start error = %v, want ErrHardwareUnavailable", err)
	}
	if s.Playing() {
		t.Error("Playing() = true after failed Start")
	}
	if sched.pending() != 0 {
		t.Errorf("poll task registered despite failed Start: %d pending", sched.pending())
	}
}

func TestSession_start_while_playing_is_noop(t *testing.T) {
	drv := &scriptDriver{}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if sched.pending() != 1 {
		t.Errorf("second Start registered another poll: %d pending", sched.pending())
	}
}

func TestSession_counts_dropped_bytes(t *testing.T) {
	drv := &scriptDriver{chunks: [][]byte{make([]byte, 10)}}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 6)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.runNext()

	st := s.Stats()
	if st.BufferedBytes != 6 {
		t.Errorf("BufferedBytes = %d, want 6", st.BufferedBytes)
	}
	if st.DroppedBytes != 4 {
		t.Errorf("DroppedBytes = %d, want 4", st.DroppedBytes)
	}
}

func TestSession_stop_order_and_idempotence(t *testing.T) {
	drv := &scriptDriver{}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	decoderStopped := false
	s.OnDecoderStop(func() {
		decoderStopped = true
		// The decoder must be detached before the hardware stream is touched.
		for _, c := range drv.callLog() {
			if c == "flush" || c == "stop" {
				t.Error("hardware stream flushed/stopped before decoder detach")
			}
		}
	})

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	s.Stop()
	if !decoderStopped {
		t.Error("decoder stop hook never ran")
	}
	if s.Playing() {
		t.Error("Playing() = true after Stop")
	}

	want := []string{"start", "flush", "stop"}
	if got := drv.callLog(); len(got) != 3 || got[0] != want[0] || got[1] != want[1] || got[2] != want[2] {
		t.Errorf("call order = %v, want %v", got, want)
	}

	// Stop again: nothing further happens.
	s.Stop()
	if got := drv.callLog(); len(got) != 3 {
		t.Errorf("second Stop made hardware calls: %v", got)
	}
}

func TestSession_stale_poll_after_close_is_noop(t *testing.T) {
	drv := &scriptDriver{chunks: [][]byte{[]byte("x")}}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	before := len(drv.callLog())
	// The poll unit is still queued; it must notice the teardown and bail.
	sched.runAll(4)
	after := drv.callLog()
	if len(after) != before {
		t.Errorf("poll touched driver after Close: %v", after[before:])
	}
	if !drv.closed {
		t.Error("driver not closed")
	}
}

func TestSession_ring_retained_across_stop_play(t *testing.T) {
	drv := &scriptDriver{chunks: [][]byte{[]byte("kept")}}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.runNext()
	s.Stop()

	if err := s.Start(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	buf := make([]byte, 16)
	n, _ := s.Source().Read(buf)
	if !bytes.Equal(buf[:n], []byte("kept")) {
		t.Errorf("buffered bytes lost across stop/play: %q", buf[:n])
	}
}

func TestSource_contract(t *testing.T) {
	drv := &scriptDriver{}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 64)
	src := s.Source()

	if err := src.Open(); err != nil {
		t.Errorf("Open: %v", err)
	}

	// No ring yet (never played): empty read, not an error.
	buf := make([]byte, 8)
	if n, err := src.Read(buf); n != 0 || err != nil {
		t.Errorf("Read before play = (%d, %v), want (0, nil)", n, err)
	}

	if _, err := src.Seek(0, 0); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("Seek error = %v, want ErrNotSeekable", err)
	}
	if err := src.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}

func TestSession_accounts_ts_packets(t *testing.T) {
	chunk := make([]byte, 188*3)
	for off := 0; off < len(chunk); off += 188 {
		chunk[off] = tsSyncByte
		chunk[off+1] = 0x00 // PID 0: PAT
		chunk[off+2] = 0x00
		chunk[off+3] = 0x10
	}
	drv := &scriptDriver{chunks: [][]byte{chunk}}
	sched := &manualScheduler{}
	s := newTestSession(drv, sched, 1024)

	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	sched.runNext()

	st := s.Stats()
	if st.Packets != 3 {
		t.Errorf("Packets = %d, want 3", st.Packets)
	}
	if st.PATPackets != 3 {
		t.Errorf("PATPackets = %d, want 3", st.PATPackets)
	}
	if st.SyncErrors != 0 {
		t.Errorf("SyncErrors = %d, want 0", st.SyncErrors)
	}
}
