package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPCMRoundTrip(t *testing.T) {
	pcm := []int16{0, 1, -1, 12345, -12345, math.MaxInt16, math.MinInt16}
	assert.Equal(t, pcm, BytesToPCM(PCMToBytes(pcm)))
}

func TestBytesToPCMOddTrailingByte(t *testing.T) {
	pcm := BytesToPCM([]byte{0x34, 0x12, 0xFF})
	require.Len(t, pcm, 1)
	assert.Equal(t, int16(0x1234), pcm[0])
}

func TestMeasureLevel(t *testing.T) {
	tests := []struct {
		name     string
		pcm      []int16
		wantRMS  float64
		wantPeak float64
	}{
		{
			name: "empty block meters as silence",
		},
		{
			name:     "silence",
			pcm:      make([]int16, 480),
			wantRMS:  0,
			wantPeak: 0,
		},
		{
			name:     "full scale square wave",
			pcm:      []int16{math.MaxInt16, -math.MaxInt16, math.MaxInt16, -math.MaxInt16},
			wantRMS:  1,
			wantPeak: 1,
		},
		{
			name:     "half scale",
			pcm:      []int16{math.MaxInt16 / 2, -math.MaxInt16 / 2},
			wantRMS:  0.5,
			wantPeak: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			level := MeasureLevel(tt.pcm)
			assert.InDelta(t, tt.wantRMS, level.RMS, 0.001)
			assert.InDelta(t, tt.wantPeak, level.Peak, 0.001)
		})
	}
}

func TestMonitorRejectsEmptyFrame(t *testing.T) {
	monitor := NewMonitor()

	pcm, sampleRate, err := monitor.Process(nil)
	assert.Error(t, err)
	assert.Nil(t, pcm)
	assert.Equal(t, uint32(0), sampleRate)
	assert.Contains(t, err.Error(), "empty audio frame")
}

func TestMonitorRejectsInvalidFrame(t *testing.T) {
	monitor := NewMonitor()

	var metered bool
	monitor.OnLevel(func(Level) { metered = true })

	_, _, err := monitor.Process([]byte{0x01, 0x02, 0x03, 0x04})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "opus decode")
	assert.False(t, metered, "level callback must not fire on decode failure")
}
