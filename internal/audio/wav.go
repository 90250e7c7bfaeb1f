package audio

import (
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// wavFormatIEEEFloat is the WAV format tag for 32-bit float PCM.
const wavFormatIEEEFloat = 3

// WriteWAV writes mono float32 samples to path as a 32-bit IEEE float WAV
// container at the given sample rate.
func WriteWAV(path string, samples []float32, sampleRate int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, sampleRate, 32, 1, wavFormatIEEEFloat)
	for _, s := range samples {
		if err := enc.WriteFrame(s); err != nil {
			return fmt.Errorf("failed to write wav frame: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav file: %w", err)
	}
	return nil
}
