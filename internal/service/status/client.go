package status

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/oshokin/parking-monitor/internal/config"
	"github.com/oshokin/parking-monitor/internal/domain/parking"
	"github.com/oshokin/parking-monitor/internal/version"
)

// Ack is the optional body returned by the endpoint on success.
type Ack struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"-"`
	// OccupancyRate is the occupancy computed by the server, a number or a string.
	OccupancyRate any `json:"occupancy_rate"`
	// OccupancyPercentage is the alternative key some deployments use.
	OccupancyPercentage any `json:"occupancy_percentage"`
	// Status is the lot status computed by the server.
	Status string `json:"status"`
}

// Rate returns the acknowledged occupancy for logging, or "N/A".
func (a *Ack) Rate() string {
	switch {
	case a == nil:
		return notAvailable
	case a.OccupancyRate != nil:
		return fmt.Sprint(a.OccupancyRate)
	case a.OccupancyPercentage != nil:
		return fmt.Sprint(a.OccupancyPercentage)
	default:
		return notAvailable
	}
}

// StatusText returns the acknowledged status for logging, or "N/A".
func (a *Ack) StatusText() string {
	if a == nil || a.Status == "" {
		return notAvailable
	}

	return a.Status
}

// StatusError is returned when the endpoint answers with a non-2xx code.
type StatusError struct {
	// Code is the HTTP status code.
	Code int
	// Body is the beginning of the response body.
	Body string
}

// Error implements error.
func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %d: %s", ErrUnexpectedStatus, e.Code, e.Body)
}

// Unwrap makes errors.Is(err, ErrUnexpectedStatus) match.
func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatus
}

var (
	// ErrUnreachable means the request could not reach the endpoint.
	ErrUnreachable = errors.New("status endpoint unreachable")
	// ErrTimeout means the request did not complete within the timeout.
	ErrTimeout = errors.New("status report timed out")
	// ErrCanceled means the caller abandoned the request.
	ErrCanceled = errors.New("status report canceled")
	// ErrUnexpectedStatus means the endpoint answered with a non-2xx code.
	ErrUnexpectedStatus = errors.New("unexpected status code")
	// ErrEncode means the payload could not be built.
	ErrEncode = errors.New("encode status report")
	// errEndpointRequired is returned when no endpoint is configured.
	errEndpointRequired = errors.New("status endpoint must be provided")
)

const (
	notAvailable = "N/A"
	maxErrorBody = 512
	// RunIDHeader carries the monitor run identifier.
	RunIDHeader = "X-Run-ID"
)

// Client posts occupancy reports.
type Client struct {
	// httpClient performs the requests.
	httpClient *http.Client
	// endpoint is the URL reports are posted to.
	endpoint string
	// capacityField is the payload key used for capacity.
	capacityField string
	// runID is sent in RunIDHeader when not empty.
	runID string
	// callTimeout bounds each request.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets the timeout of a single report.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithCapacityField selects the payload key for capacity.
func WithCapacityField(field string) Option {
	return func(c *Client) {
		if field != "" {
			c.capacityField = field
		}
	}
}

// WithRunID tags every request with the run identifier.
func WithRunID(runID string) Option {
	return func(c *Client) {
		c.runID = runID
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

// NewClient creates a client posting to endpoint.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	if endpoint == "" {
		return nil, errEndpointRequired
	}

	c := &Client{
		httpClient:    &http.Client{},
		endpoint:      endpoint,
		capacityField: config.CapacityFieldTotalSpaces,
		callTimeout:   config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

// Send posts one snapshot. The returned error wraps ErrUnreachable, ErrTimeout,
// ErrCanceled, ErrUnexpectedStatus or ErrEncode.
func (c *Client) Send(ctx context.Context, snap parking.Snapshot) (*Ack, error) {
	payload, err := json.Marshal(map[string]int{
		"occupied":      snap.Occupied,
		c.capacityField: snap.Capacity,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEncode, err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if c.runID != "" {
		req.Header.Set(RunIDHeader, c.runID)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classify(err)
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

		return nil, &StatusError{
			Code: resp.StatusCode,
			Body: string(bytes.TrimSpace(body)),
		}
	}

	ack := &Ack{StatusCode: resp.StatusCode}

	// The acknowledgement body is optional; an empty or foreign body still counts as delivered.
	_ = json.NewDecoder(resp.Body).Decode(ack)

	return ack, nil
}

// classify maps a transport error onto ErrCanceled, ErrTimeout or ErrUnreachable.
func classify(err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}

	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}

	return fmt.Errorf("%w: %w", ErrUnreachable, err)
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
