package audio

// Source is a capture backend for one audio input (microphone, system
// loopback, ...). Sources capture independently and hand back everything
// they collected when stopped. Sample rates may differ between sources;
// the mixer resamples before combining.
type Source interface {
	// Start begins capturing. Calling Start on an active source is an error.
	Start() error

	// Stop halts capture and returns the accumulated samples, leaving the
	// source reusable for another session. Calling Stop on an inactive
	// source is an error.
	Stop() ([]float32, error)

	// IsActive reports whether the source is currently capturing.
	IsActive() bool

	// SampleRate is the rate samples are delivered at. Implementations must
	// report the rate actually negotiated with the backend, not the one
	// that was requested.
	SampleRate() int

	// Close stops the source if it is still active, logging rather than
	// returning any stop error. Safe to call multiple times.
	Close()
}
