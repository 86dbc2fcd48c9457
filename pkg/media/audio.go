package media

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
)

// AudioFormat describes the extracted audio track handed to the transcription
// collaborator. Fixed at mono 16 kHz 16-bit PCM WAV, the format every
// supported transcriber accepts.
type AudioFormat struct {
	SampleRate int
	Channels   int
}

// DefaultAudioFormat is the extraction target for transcription.
var DefaultAudioFormat = AudioFormat{SampleRate: 16000, Channels: 1}

// ExtractAudio pulls the audio track out of the video at videoPath into a
// temporary WAV file and returns its path. The caller owns the file and
// should remove it when done.
//
// Extraction shells out to ffmpeg, which must be on PATH. ffmpeg's stderr is
// included in the returned error on failure.
func ExtractAudio(ctx context.Context, videoPath string, format AudioFormat) (string, error) {
	if format.SampleRate <= 0 {
		format = DefaultAudioFormat
	}

	f, err := os.CreateTemp("", "classlens-audio-*.wav")
	if err != nil {
		return "", fmt.Errorf("media: create audio temp file: %w", err)
	}
	out := f.Name()
	f.Close()

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "ffmpeg",
		"-y",
		"-i", videoPath,
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", fmt.Sprint(format.SampleRate),
		"-ac", fmt.Sprint(format.Channels),
		out,
	)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(out)
		return "", fmt.Errorf("media: extract audio from %q: %w: %s", videoPath, err, lastLine(stderr.Bytes()))
	}
	return out, nil
}

// lastLine returns the final non-empty line of b, which for ffmpeg is the
// actual error message rather than the banner.
func lastLine(b []byte) string {
	lines := bytes.Split(bytes.TrimSpace(b), []byte("\n"))
	if len(lines) == 0 {
		return ""
	}
	return string(bytes.TrimSpace(lines[len(lines)-1]))
}
