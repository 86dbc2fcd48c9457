package whisper

import (
	"encoding/binary"
	"fmt"
	"os"
	"time"
)

// pcmAudio holds a decoded 16-bit PCM track plus the format needed to slice
// and re-encode it.
type pcmAudio struct {
	data       []byte // raw 16-bit little-endian PCM
	sampleRate int
	channels   int
	offset     time.Duration // position of data within the full recording
}

// readWAV loads a 16-bit PCM WAV file. Only the canonical RIFF layout with
// "fmt " and "data" chunks is supported, which covers everything ffmpeg
// produces with pcm_s16le.
func readWAV(path string) (*pcmAudio, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("whisper: read %q: %w", path, err)
	}
	if len(raw) < 44 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, fmt.Errorf("whisper: %q is not a RIFF/WAVE file", path)
	}

	audio := &pcmAudio{}
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
				return nil, fmt.Errorf("whisper: %q: malformed fmt chunk", path)
			}
			format := binary.LittleEndian.Uint16(raw[body : body+2])
			bits := binary.LittleEndian.Uint16(raw[body+14 : body+16])
			if format != 1 || bits != bitsPerSample {
				return nil, fmt.Errorf("whisper: %q: unsupported format (want 16-bit PCM, got format=%d bits=%d)", path, format, bits)
			}
			audio.channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			audio.sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
		case "data":
			audio.data = raw[body : body+chunkSize]
		}

		// Chunks are word-aligned.
		pos = body + chunkSize + chunkSize%2
	}

	if audio.sampleRate == 0 || audio.channels == 0 {
		return nil, fmt.Errorf("whisper: %q: missing fmt chunk", path)
	}
	if len(audio.data) == 0 {
		return nil, fmt.Errorf("whisper: %q: missing data chunk", path)
	}
	return audio, nil
}

// duration returns the playing time of the PCM data.
func (a *pcmAudio) duration() time.Duration {
	bytesPerSecond := a.sampleRate * a.channels * bitsPerSample / 8
	if bytesPerSecond <= 0 {
		return 0
	}
	return time.Duration(float64(len(a.data)) / float64(bytesPerSecond) * float64(time.Second))
}

// split cuts the audio into consecutive chunks of at most chunkDur each,
// recording each chunk's offset within the full track. Short audio yields a
// single chunk.
func (a *pcmAudio) split(chunkDur time.Duration) []*pcmAudio {
	total := a.duration()
	if chunkDur <= 0 || total <= chunkDur {
		return []*pcmAudio{a}
	}

	bytesPerSecond := a.sampleRate * a.channels * bitsPerSample / 8
	blockAlign := a.channels * bitsPerSample / 8
	chunkBytes := int(chunkDur.Seconds() * float64(bytesPerSecond))
	chunkBytes -= chunkBytes % blockAlign

	var chunks []*pcmAudio
	for start := 0; start < len(a.data); start += chunkBytes {
		end := min(start+chunkBytes, len(a.data))
		chunks = append(chunks, &pcmAudio{
			data:       a.data[start:end],
			sampleRate: a.sampleRate,
			channels:   a.channels,
			offset: a.offset + time.Duration(
				float64(start)/float64(bytesPerSecond)*float64(time.Second)),
		})
	}
	return chunks
}

// wav wraps the PCM data in a standard RIFF/WAV container suitable for
// multipart upload.
func (a *pcmAudio) wav() []byte {
	byteRate := a.sampleRate * a.channels * bitsPerSample / 8
	blockAlign := a.channels * bitsPerSample / 8
	dataSize := len(a.data)

	buf := make([]byte, 44+dataSize)

	copy(buf[0:4], "RIFF")
	binary.LittleEndian.PutUint32(buf[4:8], uint32(36+dataSize))
	copy(buf[8:12], "WAVE")

	copy(buf[12:16], "fmt ")
	binary.LittleEndian.PutUint32(buf[16:20], 16)
	binary.LittleEndian.PutUint16(buf[20:22], 1) // PCM
	binary.LittleEndian.PutUint16(buf[22:24], uint16(a.channels))
	binary.LittleEndian.PutUint32(buf[24:28], uint32(a.sampleRate))
	binary.LittleEndian.PutUint32(buf[28:32], uint32(byteRate))
	binary.LittleEndian.PutUint16(buf[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(buf[34:36], bitsPerSample)

	copy(buf[36:40], "data")
	binary.LittleEndian.PutUint32(buf[40:44], uint32(dataSize))
	copy(buf[44:], a.data)

	return buf
}

// pcmToFloat32Mono down-mixes 16-bit PCM to mono float32 samples normalised
// to [-1.0, 1.0], averaging all channels per frame.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	samplesPerChannel := len(pcm) / (2 * channels)
	mono := make([]float32, samplesPerChannel)
	for i := range samplesPerChannel {
		var sum float32
		for ch := range channels {
			idx := (i*channels + ch) * 2
			sample := int16(binary.LittleEndian.Uint16(pcm[idx : idx+2]))
			sum += float32(sample) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
