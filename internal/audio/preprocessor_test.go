package audio

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampSampleRate(t *testing.T) {
	tests := []struct {
		name string
		in   int
		want int
	}{
		{"zero falls back to default", 0, 16000},
		{"exact match kept", 44100, 44100},
		{"snaps down", 17000, 16000},
		{"snaps up", 40000, 44100},
		{"above range", 96000, 48000},
		{"below range", 4000, 8000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClampSampleRate(tt.in))
		})
	}
}

func TestClampBitRate(t *testing.T) {
	assert.Equal(t, 128000, ClampBitRate(0))
	assert.Equal(t, 128000, ClampBitRate(128000))
	assert.Equal(t, 128000, ClampBitRate(100000))
	assert.Equal(t, 256000, ClampBitRate(999999))
	assert.Equal(t, 16000, ClampBitRate(1))
}

func TestClampChannels(t *testing.T) {
	assert.Equal(t, 1, ClampChannels(0))
	assert.Equal(t, 1, ClampChannels(-3))
	assert.Equal(t, 1, ClampChannels(1))
	assert.Equal(t, 2, ClampChannels(2))
	assert.Equal(t, 2, ClampChannels(6))
}

func TestParseBitRate(t *testing.T) {
	assert.Equal(t, 128000, ParseBitRate("128k"))
	assert.Equal(t, 128000, ParseBitRate("128K"))
	assert.Equal(t, 128000, ParseBitRate(" 128000 "))
	assert.Equal(t, 0, ParseBitRate(""))
	assert.Equal(t, 0, ParseBitRate("lots"))
}

func TestNormalizeArgs(t *testing.T) {
	p := NewPreprocessor()

	args := p.normalizeArgs("/in/meeting.m4a", "/in/meeting_normalized.wav", NormalizeOptions{
		SampleRate: 16000,
		Channels:   1,
		BitRate:    128000,
	})
	assert.Equal(t, []string{
		"-y",
		"-i", "/in/meeting.m4a",
		"-ar", "16000",
		"-ac", "1",
		"-b:a", "128000",
		"/in/meeting_normalized.wav",
	}, args)
}

func TestNormalizeArgs_Denoise(t *testing.T) {
	p := NewPreprocessor()

	args := p.normalizeArgs("/in/a.wav", "/in/a_normalized.wav", NormalizeOptions{Denoise: true})
	assert.Contains(t, args, "-af")
	assert.Contains(t, args, "afftdn")
	assert.Equal(t, "/in/a_normalized.wav", args[len(args)-1])
}
