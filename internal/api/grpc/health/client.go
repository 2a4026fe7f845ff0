package health

import (
	"context"
	"errors"
	"fmt"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/oshokin/parking-monitor/internal/config"
)

// Client queries a monitor's health service.
type Client struct {
	// conn is the underlying gRPC connection to the monitor.
	conn *grpc.ClientConn
	// api is the generated health client.
	api healthpb.HealthClient

	// callTimeout is the default timeout for individual RPC calls.
	callTimeout time.Duration
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for health calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// errAddressRequired is returned when a required address value is missing.
var errAddressRequired = errors.New("address must be provided")

// Dial prepares a connection to the health service at address.
// The transport is insecure; the health port is meant for a trusted network.
func Dial(_ context.Context, address string, opts ...Option) (*Client, error) {
	if address == "" {
		return nil, errAddressRequired
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("dial health service: %w", err)
	}

	client := &Client{
		conn:        conn,
		api:         healthpb.NewHealthClient(conn),
		callTimeout: config.DefaultTimeout,
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases the underlying gRPC connection.
func (c *Client) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}

	return c.conn.Close()
}

// Check returns the serving status of service.
func (c *Client) Check(ctx context.Context, service string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	resp, err := c.api.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("check %q: %w", service, err)
	}

	return resp.GetStatus(), nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
