package tuner

import "errors"

// Program is one virtual channel detected on a physical frequency. A single
// frequency can carry several multiplexed programs; each gets its own record.
type Program struct {
	// VirtualID is the hardware-reported virtual channel number, e.g. "5.1".
	// Empty means the program slot exists but carries no tunable channel.
	VirtualID string
	Name      string
}

// Driver is the hardware tuner collaborator. All calls are synchronous and
// expected to return quickly; ReceiveChunk in particular must not wait for
// data to arrive.
type Driver interface {
	// StartStream asks the hardware to begin delivering the live transport
	// stream for the currently tuned channel.
	StartStream() error
	// ReceiveChunk returns up to max bytes of newly arrived stream data,
	// or an empty slice when nothing has arrived since the last poll.
	ReceiveChunk(max int) ([]byte, error)
	// FlushStream discards any data still queued on the hardware side.
	FlushStream() error
	// StopStream ends stream delivery.
	StopStream() error

	// ScanInit prepares a scan session over the named channel map.
	ScanInit(channelMap string) error
	// ScanAdvance steps the tuner to the next candidate frequency. ok=false
	// signals exhaustion: there are no more frequencies in the map.
	ScanAdvance() (freqHz uint64, ok bool, err error)
	// ScanDetect reports the programs found on the frequency the tuner is
	// currently locked to, in detection order.
	ScanDetect() ([]Program, error)

	// SetChannel tunes to a virtual channel or frequency token.
	SetChannel(token string) error

	// Close releases the hardware handle. No other call may follow.
	Close() error
}

var (
	// ErrHardwareUnavailable wraps handle-create and stream-open failures.
	ErrHardwareUnavailable = errors.New("tuner hardware unavailable")

	// ErrAlreadyScanning is returned by Begin while a scan is stepping.
	ErrAlreadyScanning = errors.New("channel scan already in progress")

	// ErrNotSeekable is returned by Source.Seek: the live stream has no
	// addressable positions.
	ErrNotSeekable = errors.New("live stream is not seekable")

	// ErrInvalidChannelToken is returned when a manually entered channel
	// token contains characters other than digits, '.', '-', and spaces.
	ErrInvalidChannelToken = errors.New("invalid channel token")
)
