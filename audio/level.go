package audio

import "math"

// Level is one metering observation over a block of PCM samples. Values
// are normalized to [0, 1] against full scale.
type Level struct {
	RMS  float64
	Peak float64
}

// MeasureLevel computes RMS and peak amplitude for a block of samples.
// An empty block meters as silence.
func MeasureLevel(pcm []int16) Level {
	if len(pcm) == 0 {
		return Level{}
	}

	var sumSquares float64
	var peak float64
	for _, sample := range pcm {
		v := float64(sample) / math.MaxInt16
		sumSquares += v * v
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}

	return Level{
		RMS:  math.Sqrt(sumSquares / float64(len(pcm))),
		Peak: peak,
	}
}
