package tuner

import (
	"bytes"
	"testing"
)

func TestRingBuffer_write_then_read_roundtrip(t *testing.T) {
	r := NewRingBuffer(64)

	want := []byte("abcdefghijklmnopqrstuvwxyz0123456789")
	// Write in uneven pieces, read back in different uneven pieces.
	for _, piece := range [][]byte{want[:5], want[5:6], want[6:20], want[20:]} {
		if n := r.Write(piece); n != len(piece) {
			t.Fatalf("Write(%d) = %d, want full write", len(piece), n)
		}
	}
	if got := r.Available(); got != len(want) {
		t.Fatalf("Available() = %d, want %d", got, len(want))
	}

	var out []byte
	for _, k := range []int{1, 7, 3, 100} {
		buf := make([]byte, k)
		n := r.Read(buf)
		out = append(out, buf[:n]...)
	}
	if !bytes.Equal(out, want) {
		t.Errorf("read back %q, want %q", out, want)
	}
	if r.Available() != 0 {
		t.Errorf("Available() after drain = %d, want 0", r.Available())
	}
}

func TestRingBuffer_wraparound_preserves_order(t *testing.T) {
	r := NewRingBuffer(8)

	// Push the positions past the physical end several times.
	for cycle := 0; cycle < 5; cycle++ {
		chunk := []byte{byte(cycle), byte(cycle + 1), byte(cycle + 2)}
		if n := r.Write(chunk); n != 3 {
			t.Fatalf("cycle %d: Write = %d, want 3", cycle, n)
		}
		buf := make([]byte, 3)
		if n := r.Read(buf); n != 3 {
			t.Fatalf("cycle %d: Read = %d, want 3", cycle, n)
		}
		if !bytes.Equal(buf, chunk) {
			t.Fatalf("cycle %d: got %v, want %v", cycle, buf, chunk)
		}
	}
}

func TestRingBuffer_overflow_keeps_prefix(t *testing.T) {
	r := NewRingBuffer(10)

	if n := r.Write([]byte("1234567")); n != 7 {
		t.Fatalf("first Write = %d, want 7", n)
	}
	// Only 3 bytes free: exactly the prefix must be stored, the tail dropped.
	n := r.Write([]byte("abcdef"))
	if n != 3 {
		t.Fatalf("overflowing Write = %d, want 3", n)
	}
	if got := r.Available(); got != 10 {
		t.Fatalf("Available() = %d, want 10", got)
	}

	buf := make([]byte, 16)
	got := buf[:r.Read(buf)]
	if want := []byte("1234567abc"); !bytes.Equal(got, want) {
		t.Errorf("buffered content %q, want %q", got, want)
	}
}

func TestRingBuffer_full_write_returns_zero(t *testing.T) {
	r := NewRingBuffer(4)
	r.Write([]byte("full"))

	if n := r.Write([]byte("x")); n != 0 {
		t.Errorf("Write on full buffer = %d, want 0", n)
	}
	if r.Available() != 4 {
		t.Errorf("Available() = %d, want 4", r.Available())
	}
}

func TestRingBuffer_read_empty_returns_zero(t *testing.T) {
	r := NewRingBuffer(4)
	buf := make([]byte, 4)
	if n := r.Read(buf); n != 0 {
		t.Errorf("Read on empty buffer = %d, want 0", n)
	}
}

func TestRingBuffer_reads_never_overlap(t *testing.T) {
	r := NewRingBuffer(32)
	r.Write([]byte("0123456789"))

	a := make([]byte, 4)
	b := make([]byte, 4)
	na := r.Read(a)
	nb := r.Read(b)
	if na != 4 || nb != 4 {
		t.Fatalf("reads = %d, %d, want 4, 4", na, nb)
	}
	if !bytes.Equal(a, []byte("0123")) || !bytes.Equal(b, []byte("4567")) {
		t.Errorf("consecutive reads %q, %q overlap or reorder", a, b)
	}
	if r.Available() != 2 {
		t.Errorf("Available() = %d, want 2", r.Available())
	}
}

func TestRingBuffer_available_accounting(t *testing.T) {
	r := NewRingBuffer(16)

	total := 0
	for _, n := range []int{5, 5, 5, 5} { // last write truncates to 1
		stored := r.Write(make([]byte, n))
		total += stored
		if r.Available() != total {
			t.Fatalf("Available() = %d, want %d", r.Available(), total)
		}
		if r.Available() > r.Capacity() {
			t.Fatalf("Available() %d exceeds capacity %d", r.Available(), r.Capacity())
		}
	}
	if total != 16 {
		t.Errorf("stored total = %d, want 16", total)
	}
	if r.Free() != 0 {
		t.Errorf("Free() = %d, want 0", r.Free())
	}
}

func TestRingBuffer_reset(t *testing.T) {
	r := NewRingBuffer(8)
	r.Write([]byte("data"))
	r.Reset()
	if r.Available() != 0 || r.Free() != 8 {
		t.Errorf("after Reset: available=%d free=%d", r.Available(), r.Free())
	}
}

func TestRingBuffer_default_capacity(t *testing.T) {
	r := NewRingBuffer(0)
	if r.Capacity() != DefaultRingCapacity {
		t.Errorf("Capacity() = %d, want %d", r.Capacity(), DefaultRingCapacity)
	}
}

func TestRingBuffer_concurrent_producer_consumer(t *testing.T) {
	r := NewRingBuffer(1024)
	const total = 64 * 1024

	done := make(chan []byte)
	go func() {
		var out []byte
		buf := make([]byte, 96)
		for len(out) < total {
			n := r.Read(buf)
			out = append(out, buf[:n]...)
		}
		done <- out
	}()

	// Writer retries dropped tails so the full sequence arrives in order.
	var seq [total]byte
	for i := range seq {
		seq[i] = byte(i)
	}
	for off := 0; off < total; {
		off += r.Write(seq[off:min(off+100, total)])
	}

	out := <-done
	if !bytes.Equal(out, seq[:]) {
		t.Error("concurrent transfer corrupted byte sequence")
	}
}
