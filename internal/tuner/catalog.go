package tuner

import (
	"errors"
	"fmt"
	"sync"
)

// ErrNoSelection is returned when tuning an index with no channel behind it.
// A stale or out-of-range index is a caller error, not a crash condition.
var ErrNoSelection = errors.New("no channel at selection")

// SavedChannel is a selectable entry in the channel catalog, derived 1:1 from
// a ScannedChannel when the catalog is rebuilt.
type SavedChannel struct {
	VirtualID string `json:"virtual_id"`
	Name      string `json:"name,omitempty"`
	FreqHz    uint64 `json:"frequency_hz"`
}

// Catalog converts scan results into a selectable, presentable channel list
// and resolves selections back to tunable identifiers. It is rebuilt
// wholesale after each scan; results from different scans never merge.
type Catalog struct {
	mu       sync.RWMutex
	channels []SavedChannel
	labels   []string
}

// NewCatalog returns an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{}
}

// Rebuild replaces the catalog's channels and labels with the given scan
// results, in scan order. Passing an empty list empties the catalog.
func (c *Catalog) Rebuild(scanned []ScannedChannel) {
	channels := make([]SavedChannel, 0, len(scanned))
	labels := make([]string, 0, len(scanned))

	for _, sc := range scanned {
		channels = append(channels, SavedChannel{
			VirtualID: sc.VirtualID,
			Name:      sc.Name,
			FreqHz:    sc.FreqHz,
		})
		if sc.Name != "" {
			labels = append(labels, fmt.Sprintf("%s - %s", sc.VirtualID, sc.Name))
		} else {
			labels = append(labels, fmt.Sprintf("Channel %s", sc.VirtualID))
		}
	}

	c.mu.Lock()
	c.channels = channels
	c.labels = labels
	c.mu.Unlock()
}

// Select returns the channel at index. ok is false for any out-of-range
// index, including every index on an empty catalog.
func (c *Catalog) Select(index int) (SavedChannel, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if index < 0 || index >= len(c.channels) {
		return SavedChannel{}, false
	}
	return c.channels[index], true
}

// Labels returns a copy of the presentation labels, in catalog order.
func (c *Catalog) Labels() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.labels))
	copy(out, c.labels)
	return out
}

// Channels returns a copy of the saved channels, in catalog order.
func (c *Catalog) Channels() []SavedChannel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SavedChannel, len(c.channels))
	copy(out, c.channels)
	return out
}

// Len returns the number of saved channels.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.channels)
}

// TuneSelection resolves index and forwards the channel's identifier to the
// hardware. Catalog-derived tokens are trusted: they originated from
// hardware-reported scan data.
func (c *Catalog) TuneSelection(drv Driver, index int) error {
	ch, ok := c.Select(index)
	if !ok {
		return ErrNoSelection
	}
	return setChannel(drv, ch.VirtualID)
}

// TuneManual validates a user-entered channel token and forwards it to the
// hardware. Invalid tokens are rejected before any hardware call.
func TuneManual(drv Driver, token string) error {
	if !ValidChannelToken(token) {
		return fmt.Errorf("%w: %q", ErrInvalidChannelToken, token)
	}
	return setChannel(drv, token)
}

// setChannel is the single tuning dispatch both paths funnel into.
func setChannel(drv Driver, token string) error {
	return drv.SetChannel(token)
}

// ValidChannelToken reports whether token is non-empty and contains only
// digits, '.', '-', and spaces.
func ValidChannelToken(token string) bool {
	if token == "" {
		return false
	}
	for _, r := range token {
		switch {
		case r >= '0' && r <= '9':
		case r == '.' || r == '-' || r == ' ':
		default:
			return false
		}
	}
	return true
}
