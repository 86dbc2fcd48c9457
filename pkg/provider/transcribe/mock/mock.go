// Package mock provides a test double for the transcribe.Transcriber
// interface.
//
// Use Result to script the returned transcript and Err to script a failure;
// Calls records every invocation for inspection.
package mock

import (
	"context"
	"sync"

	"github.com/classlens/classlens/pkg/provider/transcribe"
)

// TranscribeCall records a single invocation of Transcriber.Transcribe.
type TranscribeCall struct {
	// AudioPath is the path passed to Transcribe.
	AudioPath string

	// Opts is the Options value passed to Transcribe.
	Opts transcribe.Options
}

// Transcriber is a mock implementation of transcribe.Transcriber.
type Transcriber struct {
	mu sync.Mutex

	// Result is returned by Transcribe when Err is nil.
	Result transcribe.Transcript

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every Transcribe invocation in order.
	Calls []TranscribeCall
}

// Ensure Transcriber implements transcribe.Transcriber at compile time.
var _ transcribe.Transcriber = (*Transcriber)(nil)

// Transcribe records the call and returns Result, Err.
func (t *Transcriber) Transcribe(_ context.Context, audioPath string, opts transcribe.Options) (transcribe.Transcript, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.Calls = append(t.Calls, TranscribeCall{AudioPath: audioPath, Opts: opts})
	if t.Err != nil {
		return transcribe.Transcript{}, t.Err
	}
	return t.Result, nil
}
