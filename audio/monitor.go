package audio

import (
	"errors"
	"fmt"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// decodeBufferSize fits the largest Opus frame: 1920 samples (40ms at
// 48kHz), two bytes each.
const decodeBufferSize = 1920 * 2

// Monitor decodes Opus frames and meters the recovered PCM. One Monitor
// serves one recording; it is not safe for concurrent use.
type Monitor struct {
	decoder *opus.Decoder
	output  []byte
	logger  *logrus.Entry

	onLevel func(Level)
}

// NewMonitor creates a Monitor with a fresh Opus decoder.
func NewMonitor() *Monitor {
	decoder := opus.NewDecoder()
	return &Monitor{
		decoder: &decoder,
		output:  make([]byte, decodeBufferSize),
		logger:  logrus.WithField("component", "AudioMonitor"),
	}
}

// OnLevel sets the callback fired with each frame's measurement.
func (m *Monitor) OnLevel(fn func(Level)) {
	m.onLevel = fn
}

// Process decodes one Opus frame, meters it, and returns the decoded
// samples with their sample rate.
func (m *Monitor) Process(frame []byte) ([]int16, uint32, error) {
	if len(frame) == 0 {
		return nil, 0, errors.New("empty audio frame")
	}

	bandwidth, isStereo, err := m.decoder.Decode(frame, m.output)
	if err != nil {
		m.logger.WithFields(logrus.Fields{
			"frame_size": len(frame),
			"error":      err.Error(),
		}).Error("Opus decode failed")
		return nil, 0, fmt.Errorf("opus decode: %w", err)
	}

	pcm := BytesToPCM(m.output)
	if isStereo {
		pcm = pcm[:len(pcm)/2]
	}
	sampleRate := uint32(bandwidth.SampleRate())

	level := MeasureLevel(pcm)
	m.logger.WithFields(logrus.Fields{
		"frame_size":  len(frame),
		"pcm_samples": len(pcm),
		"sample_rate": sampleRate,
		"rms":         level.RMS,
		"peak":        level.Peak,
	}).Debug("Frame decoded and metered")

	if m.onLevel != nil {
		m.onLevel(level)
	}

	return pcm, sampleRate, nil
}
