package audio

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"math"
	"os/exec"
	"strings"
	"sync"
)

// auMagic is the ".snd" marker pw-cat prepends when writing an AU container
// to stdout.
var auMagic = []byte{0x2e, 0x73, 0x6e, 0x64}

// SystemSource captures what the speakers are playing (other participants in
// a call) by recording the default sink's PipeWire monitor through a
// `pw-cat --record` subprocess. A reader goroutine drains raw f32 PCM from
// the child's stdout into the shared buffer.
//
// If no loopback mechanism is discoverable the source degrades instead of
// failing: Start logs a warning and the source runs active-but-silent, so a
// meeting still records mic-only audio.
type SystemSource struct {
	mu      sync.Mutex // guards samples
	samples []float32

	cmd        *exec.Cmd
	readerDone chan struct{}
	active     bool
	rate       int
}

func NewSystemSource(sampleRate int) *SystemSource {
	return &SystemSource{rate: sampleRate}
}

// defaultMonitorSource resolves the monitor of the default audio sink via
// pactl, e.g. "alsa_output.pci-0000_00_1f.3.analog-stereo.monitor".
func defaultMonitorSource() (string, error) {
	out, err := exec.Command("pactl", "get-default-sink").Output()
	if err != nil {
		return "", fmt.Errorf("pactl get-default-sink failed: %w", err)
	}
	sink := strings.TrimSpace(string(out))
	if sink == "" {
		return "", fmt.Errorf("no default sink configured")
	}
	return sink + ".monitor", nil
}

func (s *SystemSource) Start() error {
	if s.active {
		return fmt.Errorf("system audio source already recording")
	}

	s.mu.Lock()
	s.samples = nil
	s.mu.Unlock()

	if _, err := exec.LookPath("pw-cat"); err != nil {
		log.Printf("WARNING: pw-cat not found, recording mic only. Install PipeWire to capture system audio.")
		s.active = true
		return nil
	}

	monitor, err := defaultMonitorSource()
	if err != nil {
		log.Printf("WARNING: could not determine monitor source (%v), recording mic only", err)
		s.active = true
		return nil
	}

	cmd := exec.Command("pw-cat",
		"--record",
		"--target", monitor,
		"--rate", fmt.Sprintf("%d", s.rate),
		"--channels", "1",
		"--format", "f32",
		"-", // raw stream to stdout
	)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		log.Printf("WARNING: failed to open pw-cat stdout (%v), recording mic only", err)
		s.active = true
		return nil
	}
	if err := cmd.Start(); err != nil {
		log.Printf("WARNING: failed to start pw-cat (%v), recording mic only", err)
		s.active = true
		return nil
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.readSamples(stdout)
	}()

	s.cmd = cmd
	s.readerDone = done
	s.active = true
	log.Printf("System audio capture started via pw-cat (target: %s)", monitor)
	return nil
}

func (s *SystemSource) Stop() ([]float32, error) {
	if !s.active {
		return nil, fmt.Errorf("system audio source not recording")
	}

	if s.cmd != nil {
		if err := s.cmd.Process.Kill(); err != nil {
			log.Printf("Error killing pw-cat: %v", err)
		}
		s.cmd.Wait()
		s.cmd = nil
	}
	// Reader exits on EOF once the child is gone; join it before declaring
	// the source stopped.
	if s.readerDone != nil {
		<-s.readerDone
		s.readerDone = nil
	}
	s.active = false

	s.mu.Lock()
	samples := s.samples
	s.samples = nil
	s.mu.Unlock()

	log.Printf("System audio stopped, %d samples captured", len(samples))
	return samples, nil
}

func (s *SystemSource) IsActive() bool {
	return s.active
}

func (s *SystemSource) SampleRate() int {
	return s.rate
}

// Close stops an active capture, logging any error instead of returning it.
func (s *SystemSource) Close() {
	if s.active {
		if _, err := s.Stop(); err != nil {
			log.Printf("Error stopping system source on close: %v", err)
		}
	}
}

// readSamples drains the child's stdout into the shared buffer until EOF.
// pw-cat may emit an AU header before the PCM data; it is detected and
// skipped. Trailing bytes that do not form a complete float32 are discarded.
func (s *SystemSource) readSamples(r io.Reader) {
	br := bufio.NewReader(r)

	if hdr, err := br.Peek(len(auMagic)); err == nil && bytes.Equal(hdr, auMagic) {
		if err := skipAUHeader(br); err != nil {
			log.Printf("pw-cat stream ended inside AU header: %v", err)
			return
		}
	}

	buf := make([]byte, 4096)
	var pending []byte
	for {
		n, err := br.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			complete := len(pending) - len(pending)%4
			if complete > 0 {
				decoded := decodeF32LE(pending[:complete])
				s.mu.Lock()
				s.samples = append(s.samples, decoded...)
				s.mu.Unlock()
				pending = append(pending[:0:0], pending[complete:]...)
			}
		}
		if err != nil {
			// EOF after kill is the normal shutdown path
			if err != io.EOF {
				log.Printf("pw-cat stdout read error: %v", err)
			}
			return
		}
	}
}

// skipAUHeader consumes an AU header whose magic has already been peeked.
// The data offset lives in bytes 4..8, big-endian.
func skipAUHeader(br *bufio.Reader) error {
	head := make([]byte, 8)
	if _, err := io.ReadFull(br, head); err != nil {
		return err
	}
	offset := int(binary.BigEndian.Uint32(head[4:8]))
	if offset > len(head) {
		if _, err := br.Discard(offset - len(head)); err != nil {
			return err
		}
	}
	return nil
}

func decodeF32LE(b []byte) []float32 {
	out := make([]float32, 0, len(b)/4)
	for i := 0; i+4 <= len(b); i += 4 {
		out = append(out, math.Float32frombits(binary.LittleEndian.Uint32(b[i:i+4])))
	}
	return out
}
