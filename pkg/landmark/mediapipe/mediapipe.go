// Package mediapipe implements the landmark detector interfaces against a
// MediaPipe Tasks sidecar service.
//
// The sidecar (a small Python process wrapping the MediaPipe pose, hand, and
// face landmarker models) exposes one REST endpoint per modality:
//
//	POST /v1/pose     image/jpeg → PoseDetection JSON
//	POST /v1/gesture  image/jpeg → GestureDetection JSON
//	POST /v1/face     image/jpeg → FaceDetection JSON
//	GET  /v1/ready    200 once all three models are loaded
//
// Frames are JPEG-encoded before upload. A frame in which the model finds
// nothing comes back as {"detected": false} with HTTP 200; only transport and
// server failures surface as errors.
//
// A single Client serves all three detector interfaces and is safe for
// sequential reuse across frames and runs. Init blocks until /v1/ready
// responds and is idempotent.
package mediapipe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/classlens/classlens/pkg/landmark"
)

const (
	defaultRequestTimeout = 15 * time.Second
	defaultReadyTimeout   = 60 * time.Second
	defaultJPEGQuality    = 85
)

// Compile-time assertions that Client implements all three detector interfaces.
var (
	_ landmark.PoseDetector    = (*Client)(nil)
	_ landmark.GestureDetector = (*Client)(nil)
	_ landmark.FaceDetector    = (*Client)(nil)
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client. Useful for tests and for
// injecting custom transport settings.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithReadyTimeout sets how long Init waits for the sidecar's models to load
// before giving up. Defaults to 60 s.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.readyTimeout = d
	}
}

// WithJPEGQuality sets the JPEG encoding quality (1–100) used when uploading
// frames. Defaults to 85.
func WithJPEGQuality(q int) Option {
	return func(c *Client) {
		c.jpegQuality = q
	}
}

// Client talks to a MediaPipe sidecar service. One Client implements
// landmark.PoseDetector, landmark.GestureDetector, and landmark.FaceDetector
// simultaneously.
type Client struct {
	baseURL      string
	httpClient   *http.Client
	readyTimeout time.Duration
	jpegQuality  int

	initOnce sync.Once
	initErr  error
}

// New creates a Client for the sidecar at baseURL (e.g.,
// "http://localhost:9090"). baseURL must be non-empty.
func New(baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errors.New("mediapipe: baseURL must not be empty")
	}
	c := &Client{
		baseURL:      baseURL,
		httpClient:   &http.Client{Timeout: defaultRequestTimeout},
		readyTimeout: defaultReadyTimeout,
		jpegQuality:  defaultJPEGQuality,
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Init waits for the sidecar to report readiness. It runs at most once; later
// calls return the recorded result immediately.
func (c *Client) Init(ctx context.Context) error {
	c.initOnce.Do(func() {
		deadline := time.Now().Add(c.readyTimeout)
		for {
			err := c.ping(ctx)
			if err == nil {
				return
			}
			if ctx.Err() != nil {
				c.initErr = fmt.Errorf("mediapipe: init cancelled: %w", ctx.Err())
				return
			}
			if time.Now().After(deadline) {
				c.initErr = fmt.Errorf("mediapipe: sidecar not ready after %s: %w", c.readyTimeout, err)
				return
			}
			select {
			case <-ctx.Done():
				c.initErr = fmt.Errorf("mediapipe: init cancelled: %w", ctx.Err())
				return
			case <-time.After(time.Second):
			}
		}
	})
	return c.initErr
}

// DetectPose implements landmark.PoseDetector.
func (c *Client) DetectPose(ctx context.Context, frame image.Image) (landmark.PoseDetection, error) {
	var det landmark.PoseDetection
	if err := c.detect(ctx, "/v1/pose", frame, &det); err != nil {
		return landmark.PoseDetection{}, err
	}
	return det, nil
}

// DetectGestures implements landmark.GestureDetector.
func (c *Client) DetectGestures(ctx context.Context, frame image.Image) (landmark.GestureDetection, error) {
	var det landmark.GestureDetection
	if err := c.detect(ctx, "/v1/gesture", frame, &det); err != nil {
		return landmark.GestureDetection{}, err
	}
	return det, nil
}

// DetectFace implements landmark.FaceDetector.
func (c *Client) DetectFace(ctx context.Context, frame image.Image) (landmark.FaceDetection, error) {
	var det landmark.FaceDetection
	if err := c.detect(ctx, "/v1/face", frame, &det); err != nil {
		return landmark.FaceDetection{}, err
	}
	return det, nil
}

// detect JPEG-encodes frame, POSTs it to path, and decodes the JSON response
// into out.
func (c *Client) detect(ctx context.Context, path string, frame image.Image, out any) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, frame, &jpeg.Options{Quality: c.jpegQuality}); err != nil {
		return fmt.Errorf("mediapipe: encode frame: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return fmt.Errorf("mediapipe: build request: %w", err)
	}
	req.Header.Set("Content-Type", "image/jpeg")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mediapipe: %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("mediapipe: %s: unexpected status %d: %s", path, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("mediapipe: %s: decode response: %w", path, err)
	}
	return nil
}

// ping issues a readiness probe against /v1/ready.
func (c *Client) ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/ready", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}
