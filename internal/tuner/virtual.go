package tuner

import (
	"errors"
	"sync"

	"github.com/Comcast/gots/packet"
)

// VirtualFrequency is one stop in a VirtualDriver's scan plan.
type VirtualFrequency struct {
	FreqHz   uint64
	Programs []Program
}

// VirtualDriver is a software tuner for development and tests: it synthesizes
// a valid MPEG-TS byte stream and walks a scripted scan plan instead of
// talking to hardware.
type VirtualDriver struct {
	mu sync.Mutex

	plan      []VirtualFrequency
	scanPos   int
	scanning  bool
	streaming bool
	tuned     string
	closed    bool

	// bytesPerPoll bounds how much data one ReceiveChunk fabricates.
	bytesPerPoll int
	continuity   byte
}

var errDriverClosed = errors.New("virtual tuner closed")

// NewVirtualDriver returns a driver with the given scan plan, or a small
// default plan when plan is nil.
func NewVirtualDriver(plan []VirtualFrequency) *VirtualDriver {
	if plan == nil {
		plan = []VirtualFrequency{
			{FreqHz: 189_000_000, Programs: []Program{
				{VirtualID: "7.1", Name: "Seven HD"},
				{VirtualID: "7.2", Name: "Seven News"},
			}},
			{FreqHz: 195_000_000, Programs: nil},
			{FreqHz: 477_000_000, Programs: []Program{
				{VirtualID: "10.1", Name: "Ten"},
			}},
		}
	}
	return &VirtualDriver{
		plan:         plan,
		bytesPerPoll: 32 * packet.PacketSize,
	}
}

// StartStream implements Driver.
func (d *VirtualDriver) StartStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDriverClosed
	}
	d.streaming = true
	return nil
}

// ReceiveChunk implements Driver: it fabricates packet-aligned TS data while
// streaming, empty otherwise.
func (d *VirtualDriver) ReceiveChunk(max int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errDriverClosed
	}
	if !d.streaming {
		return nil, nil
	}

	n := d.bytesPerPoll
	if max < n {
		n = max - max%packet.PacketSize
	}
	if n < packet.PacketSize {
		return nil, nil
	}

	chunk := make([]byte, n)
	for off := 0; off < n; off += packet.PacketSize {
		d.fillPacket(chunk[off : off+packet.PacketSize])
	}
	return chunk, nil
}

// fillPacket writes one null-PID TS packet with a running continuity counter.
func (d *VirtualDriver) fillPacket(p []byte) {
	p[0] = tsSyncByte
	p[1] = 0x1F // null PID 0x1FFF
	p[2] = 0xFF
	p[3] = 0x10 | (d.continuity & 0x0F) // payload only
	for i := 4; i < len(p); i++ {
		p[i] = d.continuity
	}
	d.continuity++
}

// FlushStream implements Driver.
func (d *VirtualDriver) FlushStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDriverClosed
	}
	return nil
}

// StopStream implements Driver.
func (d *VirtualDriver) StopStream() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDriverClosed
	}
	d.streaming = false
	return nil
}

// ScanInit implements Driver. Any map name is accepted; the plan is fixed.
func (d *VirtualDriver) ScanInit(channelMap string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDriverClosed
	}
	d.scanPos = 0
	d.scanning = true
	return nil
}

// ScanAdvance implements Driver.
func (d *VirtualDriver) ScanAdvance() (uint64, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return 0, false, errDriverClosed
	}
	if !d.scanning || d.scanPos >= len(d.plan) {
		d.scanning = false
		return 0, false, nil
	}
	freq := d.plan[d.scanPos].FreqHz
	d.scanPos++
	return freq, true, nil
}

// ScanDetect implements Driver: programs of the last advanced frequency.
func (d *VirtualDriver) ScanDetect() ([]Program, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, errDriverClosed
	}
	if d.scanPos == 0 || d.scanPos > len(d.plan) {
		return nil, nil
	}
	programs := d.plan[d.scanPos-1].Programs
	out := make([]Program, len(programs))
	copy(out, programs)
	return out, nil
}

// SetChannel implements Driver.
func (d *VirtualDriver) SetChannel(token string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return errDriverClosed
	}
	d.tuned = token
	return nil
}

// Tuned returns the last token passed to SetChannel.
func (d *VirtualDriver) Tuned() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.tuned
}

// Close implements Driver. Every later call fails.
func (d *VirtualDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	d.streaming = false
	d.scanning = false
	return nil
}
