// Package mock provides test doubles for the landmark detector interfaces.
//
// Each mock detector returns results from a scripted sequence, one per call,
// and records how it was invoked. When the script runs out the detector keeps
// returning the zero detection ("nothing found"), which mirrors a real
// detector pointed at an empty frame.
//
// Example:
//
//	pose := &mock.PoseDetector{
//	    Script: []landmark.PoseDetection{fullPose, {}, fullPose},
//	}
//	sampler := sampler.New(pose, gesture, face)
package mock

import (
	"context"
	"image"
	"sync"

	"github.com/classlens/classlens/pkg/landmark"
)

// PoseDetector is a mock implementation of landmark.PoseDetector.
type PoseDetector struct {
	mu sync.Mutex

	// Script holds the detections to return, one per DetectPose call, in
	// order. After the script is exhausted the zero PoseDetection is
	// returned.
	Script []landmark.PoseDetection

	// Err, if non-nil, is returned by every DetectPose call instead of a
	// scripted result.
	Err error

	// InitErr, if non-nil, is returned by Init.
	InitErr error

	// Calls counts DetectPose invocations.
	Calls int

	// InitCalls counts Init invocations.
	InitCalls int
}

// Ensure PoseDetector implements landmark.PoseDetector at compile time.
var _ landmark.PoseDetector = (*PoseDetector)(nil)

// Init records the call and returns InitErr.
func (d *PoseDetector) Init(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitCalls++
	return d.InitErr
}

// DetectPose returns the next scripted detection.
func (d *PoseDetector) DetectPose(_ context.Context, _ image.Image) (landmark.PoseDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		d.Calls++
		return landmark.PoseDetection{}, d.Err
	}
	var det landmark.PoseDetection
	if d.Calls < len(d.Script) {
		det = d.Script[d.Calls]
	}
	d.Calls++
	return det, nil
}

// GestureDetector is a mock implementation of landmark.GestureDetector.
type GestureDetector struct {
	mu sync.Mutex

	// Script holds the detections to return, one per DetectGestures call.
	Script []landmark.GestureDetection

	// Err, if non-nil, is returned by every DetectGestures call.
	Err error

	// InitErr, if non-nil, is returned by Init.
	InitErr error

	// Calls counts DetectGestures invocations.
	Calls int

	// InitCalls counts Init invocations.
	InitCalls int
}

var _ landmark.GestureDetector = (*GestureDetector)(nil)

// Init records the call and returns InitErr.
func (d *GestureDetector) Init(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitCalls++
	return d.InitErr
}

// DetectGestures returns the next scripted detection.
func (d *GestureDetector) DetectGestures(_ context.Context, _ image.Image) (landmark.GestureDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		d.Calls++
		return landmark.GestureDetection{}, d.Err
	}
	var det landmark.GestureDetection
	if d.Calls < len(d.Script) {
		det = d.Script[d.Calls]
	}
	d.Calls++
	return det, nil
}

// FaceDetector is a mock implementation of landmark.FaceDetector.
type FaceDetector struct {
	mu sync.Mutex

	// Script holds the detections to return, one per DetectFace call.
	Script []landmark.FaceDetection

	// Err, if non-nil, is returned by every DetectFace call.
	Err error

	// InitErr, if non-nil, is returned by Init.
	InitErr error

	// Calls counts DetectFace invocations.
	Calls int

	// InitCalls counts Init invocations.
	InitCalls int
}

var _ landmark.FaceDetector = (*FaceDetector)(nil)

// Init records the call and returns InitErr.
func (d *FaceDetector) Init(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.InitCalls++
	return d.InitErr
}

// DetectFace returns the next scripted detection.
func (d *FaceDetector) DetectFace(_ context.Context, _ image.Image) (landmark.FaceDetection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.Err != nil {
		d.Calls++
		return landmark.FaceDetection{}, d.Err
	}
	var det landmark.FaceDetection
	if d.Calls < len(d.Script) {
		det = d.Script[d.Calls]
	}
	d.Calls++
	return det, nil
}
