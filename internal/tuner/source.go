package tuner

// Source is the byte-pull contract exposed to the external decoder. The
// decoder calls Read from its own thread, entirely outside the cooperative
// scheduler; RingBuffer's lock mediates that crossing. The source is live and
// unbounded, so Read reporting 0 bytes means "no data yet", never
// end-of-stream, and Seek always fails.
type Source struct {
	sess *Session
}

// Open is a no-op; the session manages the underlying stream lifecycle.
func (s *Source) Open() error { return nil }

// Read drains up to len(p) buffered bytes. It never blocks and never returns
// an error for an empty buffer.
func (s *Source) Read(p []byte) (int, error) {
	s.sess.mu.Lock()
	ring := s.sess.ring
	s.sess.mu.Unlock()

	if ring == nil {
		return 0, nil
	}
	return ring.Read(p), nil
}

// Seek always fails with ErrNotSeekable.
func (s *Source) Seek(offset int64, whence int) (int64, error) {
	return 0, ErrNotSeekable
}

// Close is a no-op; closing the decoder does not tear down the session.
func (s *Source) Close() error { return nil }
