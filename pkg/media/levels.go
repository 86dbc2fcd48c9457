package media

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"time"
)

// AudioLevels summarises the loudness of an extracted audio track. All values
// are normalised to [0,1] relative to full-scale 16-bit PCM.
type AudioLevels struct {
	// RMS is the root-mean-square level over the whole track.
	RMS float64

	// Peak is the largest absolute sample value.
	Peak float64

	// DynamicRange is the spread between the loudest and quietest 100 ms
	// window, measured on window RMS.
	DynamicRange float64
}

// levelWindow is the analysis window for the dynamic-range measurement.
const levelWindow = 100 * time.Millisecond

// MeasureAudio computes AudioLevels for the 16-bit PCM WAV file at path, the
// format ExtractAudio produces. A track with no samples yields zero levels.
func MeasureAudio(path string) (*AudioLevels, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("media: read %q: %w", path, err)
	}
	sampleRate, channels, data, err := parseWAV(raw)
	if err != nil {
		return nil, fmt.Errorf("media: %q: %w", path, err)
	}

	samples := len(data) / 2
	if samples == 0 {
		return &AudioLevels{}, nil
	}

	levels := &AudioLevels{}
	windowSamples := int(levelWindow.Seconds() * float64(sampleRate*channels))
	if windowSamples < 1 {
		windowSamples = samples
	}

	var (
		sumSquares float64
		winSquares float64
		winCount   int
		minWin     = math.Inf(1)
		maxWin     float64
	)
	flushWindow := func() {
		if winCount == 0 {
			return
		}
		rms := math.Sqrt(winSquares / float64(winCount))
		minWin = math.Min(minWin, rms)
		maxWin = math.Max(maxWin, rms)
		winSquares, winCount = 0, 0
	}

	for i := 0; i < samples; i++ {
		s := float64(int16(binary.LittleEndian.Uint16(data[i*2:i*2+2]))) / 32768.0
		sumSquares += s * s
		winSquares += s * s
		winCount++
		if abs := math.Abs(s); abs > levels.Peak {
			levels.Peak = abs
		}
		if winCount == windowSamples {
			flushWindow()
		}
	}
	flushWindow()

	levels.RMS = math.Sqrt(sumSquares / float64(samples))
	if maxWin > 0 {
		levels.DynamicRange = maxWin - minWin
	}
	return levels, nil
}

// parseWAV extracts the format and raw PCM payload from a canonical RIFF/WAVE
// byte stream. Only 16-bit PCM is supported.
func parseWAV(raw []byte) (sampleRate, channels int, data []byte, err error) {
	if len(raw) < 44 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return 0, 0, nil, fmt.Errorf("not a RIFF/WAVE file")
	}

	pos := 12
	for pos+8 <= len(raw) {
		chunkID := string(raw[pos : pos+4])
		chunkSize := int(binary.LittleEndian.Uint32(raw[pos+4 : pos+8]))
		body := pos + 8
		if body+chunkSize > len(raw) {
			chunkSize = len(raw) - body
		}

		switch chunkID {
		case "fmt ":
			if chunkSize < 16 {
				return 0, 0, nil, fmt.Errorf("malformed fmt chunk")
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			bits := binary.LittleEndian.Uint16(raw[body+14 : body+16])
			if format != 1 || bits != 16 {
				return 0, 0, nil, fmt.Errorf("unsupported format (want 16-bit PCM, got format=%d bits=%d)", format, bits)
			}
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
		case "data":
			data = raw[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		pos = body + chunkSize + chunkSize%2
	}

	if sampleRate == 0 || channels == 0 {
		return 0, 0, nil, fmt.Errorf("missing fmt chunk")
	}
	return sampleRate, channels, data, nil
}
