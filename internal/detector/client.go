package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/version"
)

// Box is one detection returned by the service.
type Box struct {
	// TrackID is the identifier assigned by the tracker, nil for untracked boxes.
	TrackID *int `json:"track_id"`
	// ClassID is the detector class.
	ClassID int `json:"class_id"`
	// Confidence is the detection score.
	Confidence float64 `json:"confidence"`
	// BBox is the box corners as x1, y1, x2, y2.
	BBox [4]float64 `json:"bbox"`
}

// Center returns the center of the bounding box.
func (b Box) Center() parking.Position {
	return parking.Position{
		X: (b.BBox[0] + b.BBox[2]) / 2,
		Y: (b.BBox[1] + b.BBox[3]) / 2,
	}
}

// Tracked returns the boxes that carry a track identifier, in service order.
func Tracked(boxes []Box) []parking.Detection {
	detections := make([]parking.Detection, 0, len(boxes))

	for _, b := range boxes {
		if b.TrackID == nil {
			continue
		}

		detections = append(detections, parking.Detection{
			ID:     parking.TrackID(*b.TrackID),
			Center: b.Center(),
		})
	}

	return detections
}

// response is the body returned by the detect and track endpoints.
type response struct {
	Detections []Box `json:"detections"`
}

// Client calls the detector service.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// endpoint is the service base URL without a trailing slash.
	endpoint string
	// callTimeout bounds each request.
	callTimeout time.Duration
	// confidence, iou and classes are sent with every request.
	confidence float64
	iou        float64
	classes    []int
	// quality is the JPEG quality of uploaded frames.
	quality int
}

// Option configures the client.
type Option func(*Client)

// WithCallTimeout sets the per-request timeout.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithThresholds sets the confidence and overlap thresholds.
func WithThresholds(confidence, iou float64) Option {
	return func(c *Client) {
		c.confidence = confidence
		c.iou = iou
	}
}

// WithClasses restricts detection to the given class identifiers.
func WithClasses(classes ...int) Option {
	return func(c *Client) {
		c.classes = classes
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// Request paths relative to the endpoint.
const (
	detectPath = "/detect"
	trackPath  = "/track"
)

const (
	defaultCallTimeout = 15 * time.Second
	defaultQuality     = 90
	maxErrorBody       = 512
)

var (
	// ErrDetection wraps every failure of a detection call.
	ErrDetection = errors.New("detection failed")
	// errEndpointRequired is returned when no endpoint is configured.
	errEndpointRequired = errors.New("detector endpoint must be provided")
)

// New creates a client for the service at endpoint.
func New(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errEndpointRequired
	}

	c := &Client{
		httpClient:  &http.Client{},
		endpoint:    strings.TrimRight(endpoint, "/"),
		callTimeout: defaultCallTimeout,
		quality:     defaultQuality,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Track runs detection with identity tracking on one frame of a sequence.
func (c *Client) Track(ctx context.Context, frame image.Image) ([]Box, error) {
	return c.call(ctx, trackPath, frame)
}

// Detect runs detection on a standalone image.
func (c *Client) Detect(ctx context.Context, frame image.Image) ([]Box, error) {
	return c.call(ctx, detectPath, frame)
}

// call posts the frame to path and decodes the boxes.
func (c *Client) call(ctx context.Context, path string, frame image.Image) ([]Box, error) {
	body, contentType, err := c.encode(frame)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint+path, body)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrDetection, err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", version.UserAgent())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDetection, err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, fmt.Errorf("%w: status %d: %s", ErrDetection, resp.StatusCode, strings.TrimSpace(string(text)))
	}

	var result response
	if err = json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("%w: decode response: %w", ErrDetection, err)
	}

	return result.Detections, nil
}

// encode builds the multipart body with the JPEG frame and thresholds.
func (c *Client) encode(frame image.Image) (io.Reader, string, error) {
	var buf bytes.Buffer

	w := multipart.NewWriter(&buf)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, "", fmt.Errorf("create form file: %w", err)
	}

	if err = jpeg.Encode(fw, frame, &jpeg.Options{Quality: c.quality}); err != nil {
		return nil, "", fmt.Errorf("encode frame: %w", err)
	}

	fields := map[string]string{
		"conf": strconv.FormatFloat(c.confidence, 'f', 3, 64),
		"iou":  strconv.FormatFloat(c.iou, 'f', 3, 64),
	}

	if len(c.classes) > 0 {
		classes := make([]string, 0, len(c.classes))
		for _, class := range c.classes {
			classes = append(classes, strconv.Itoa(class))
		}

		fields["classes"] = strings.Join(classes, ",")
	}

	for name, value := range fields {
		if err = w.WriteField(name, value); err != nil {
			return nil, "", fmt.Errorf("write field %s: %w", name, err)
		}
	}

	if err = w.Close(); err != nil {
		return nil, "", fmt.Errorf("close form: %w", err)
	}

	return &buf, w.FormDataContentType(), nil
}

// callContext returns a context bounded by the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
