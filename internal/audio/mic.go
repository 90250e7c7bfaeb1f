package audio

import (
	"fmt"
	"log"
	"sync"

	"github.com/gordonklaus/portaudio"
)

// micFramesPerBuffer controls the PortAudio callback block size. 512 frames
// at 16kHz is a 32ms block, small enough that Stop loses little tail audio.
const micFramesPerBuffer = 512

// MicSource captures from the default input device via PortAudio. Incoming
// sample blocks are appended to a shared buffer from the audio callback; the
// buffer is drained and released on Stop so memory stays bounded between
// meetings.
type MicSource struct {
	mu      sync.Mutex // guards samples
	samples []float32

	stream        *portaudio.Stream
	active        bool
	requestedRate int
	actualRate    int
}

// NewMicSource creates a mic source targeting the given sample rate. The
// device is not opened until Start, so construction never fails.
func NewMicSource(sampleRate int) *MicSource {
	return &MicSource{
		requestedRate: sampleRate,
		actualRate:    sampleRate,
	}
}

func (m *MicSource) Start() error {
	if m.active {
		return fmt.Errorf("mic source already recording")
	}

	m.mu.Lock()
	m.samples = nil
	m.mu.Unlock()

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio host: %w", err)
	}

	stream, err := portaudio.OpenDefaultStream(
		1, 0, float64(m.requestedRate), micFramesPerBuffer,
		func(in []float32) {
			m.mu.Lock()
			m.samples = append(m.samples, in...)
			m.mu.Unlock()
		},
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("no input device available for mic capture: %w", err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("failed to start mic stream: %w", err)
	}

	// The driver may not honor the requested rate, report what it gave us.
	if info := stream.Info(); info != nil && info.SampleRate > 0 {
		m.actualRate = int(info.SampleRate)
	}

	m.stream = stream
	m.active = true
	log.Printf("Mic recording started (%dHz)", m.actualRate)
	return nil
}

func (m *MicSource) Stop() ([]float32, error) {
	if !m.active {
		return nil, fmt.Errorf("mic source not recording")
	}

	if m.stream != nil {
		if err := m.stream.Stop(); err != nil {
			log.Printf("Error stopping mic stream: %v", err)
		}
		if err := m.stream.Close(); err != nil {
			log.Printf("Error closing mic stream: %v", err)
		}
		m.stream = nil
	}
	portaudio.Terminate()
	m.active = false

	m.mu.Lock()
	samples := m.samples
	m.samples = nil
	m.mu.Unlock()

	log.Printf("Mic stopped, %d samples captured", len(samples))
	return samples, nil
}

func (m *MicSource) IsActive() bool {
	return m.active
}

func (m *MicSource) SampleRate() int {
	return m.actualRate
}

// Close is the resource safety net: it stops an active capture and discards
// the buffer, logging any stop error instead of propagating it.
func (m *MicSource) Close() {
	if m.active {
		if _, err := m.Stop(); err != nil {
			log.Printf("Error stopping mic source on close: %v", err)
		}
	}
}
