package audio

import "math"

// Mix combines sample buffers (all at the same rate) into a single mono
// output. Empty inputs are dropped; a single remaining input is returned
// as-is. Otherwise inputs are zero-padded to the longest length, averaged
// sample-wise, and peak-normalized if the result exceeds [-1.0, 1.0].
func Mix(sources [][]float32) []float32 {
	nonEmpty := make([][]float32, 0, len(sources))
	for _, s := range sources {
		if len(s) > 0 {
			nonEmpty = append(nonEmpty, s)
		}
	}

	if len(nonEmpty) == 0 {
		return nil
	}
	if len(nonEmpty) == 1 {
		return nonEmpty[0]
	}

	maxLen := 0
	for _, s := range nonEmpty {
		if len(s) > maxLen {
			maxLen = len(s)
		}
	}

	mixed := make([]float32, maxLen)
	for _, s := range nonEmpty {
		for i, sample := range s {
			mixed[i] += sample
		}
	}

	n := float32(len(nonEmpty))
	for i := range mixed {
		mixed[i] /= n
	}

	var peak float32
	for _, s := range mixed {
		if abs := float32(math.Abs(float64(s))); abs > peak {
			peak = abs
		}
	}
	if peak > 1.0 {
		for i := range mixed {
			mixed[i] /= peak
		}
	}

	return mixed
}

// Resample converts samples between rates using linear interpolation.
// Good enough for speech; not meant for music.
func Resample(samples []float32, fromRate, toRate int) []float32 {
	if fromRate == toRate || len(samples) == 0 {
		return samples
	}

	ratio := float64(fromRate) / float64(toRate)
	newLen := int(math.Ceil(float64(len(samples)) / ratio))
	out := make([]float32, 0, newLen)

	for i := 0; i < newLen; i++ {
		srcPos := float64(i) * ratio
		srcIdx := int(srcPos)
		frac := srcPos - float64(srcIdx)

		var sample float64
		switch {
		case srcIdx+1 < len(samples):
			sample = float64(samples[srcIdx])*(1.0-frac) + float64(samples[srcIdx+1])*frac
		case srcIdx < len(samples):
			sample = float64(samples[srcIdx])
		}
		out = append(out, float32(sample))
	}

	return out
}
