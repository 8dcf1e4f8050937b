package feed

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/connectivity"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/clock-correlator/model"
)

// Client reads telemetry from a remote feed. It satisfies
// core.TelemetrySource.
type Client struct {
	conn    *grpc.ClientConn
	owned   bool
	timeout time.Duration
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithQueryTimeout bounds each range query. Zero leaves the caller's
// deadline in charge.
func WithQueryTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.timeout = d }
}

// Dial creates a client for target. The connection is established lazily;
// Connect forces it.
func Dial(target string, opts ...ClientOption) (*Client, error) {
	conn, err := grpc.NewClient(target,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithChainUnaryInterceptor(RunIDUnaryClientInterceptor()),
	)
	if err != nil {
		return nil, fmt.Errorf("dial telemetry feed %q: %w", target, err)
	}
	c := NewClient(conn, opts...)
	c.owned = true
	return c, nil
}

// NewClient wraps an existing connection. The caller keeps ownership of
// conn.
func NewClient(conn *grpc.ClientConn, opts ...ClientOption) *Client {
	c := &Client{conn: conn}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases the connection if the client created it.
func (c *Client) Close() error {
	if !c.owned {
		return nil
	}
	return c.conn.Close()
}

// Connect starts connecting and waits until the channel is ready, fails,
// or ctx ends.
func (c *Client) Connect(ctx context.Context) error {
	c.conn.Connect()
	for {
		state := c.conn.GetState()
		switch state {
		case connectivity.Ready:
			return nil
		case connectivity.TransientFailure, connectivity.Shutdown:
			return fmt.Errorf("%w: connection state %s", ErrUnavailable, state)
		}
		if !c.conn.WaitForStateChange(ctx, state) {
			return fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
		}
	}
}

// Disconnect is a no-op; the channel is reused across query bursts.
func (c *Client) Disconnect(context.Context) error { return nil }

// SamplesInRange queries the feed for samples with start <= ERT < stop.
func (c *Client) SamplesInRange(ctx context.Context, start, stop time.Time) ([]model.Sample, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	resp := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, samplesInRangeMethod, encodeRange(start, stop), resp); err != nil {
		return nil, fromStatusError("samples in range", err)
	}
	samples, err := decodeSamples(resp)
	if err != nil {
		return nil, fmt.Errorf("telemetry feed response: %w", err)
	}
	return samples, nil
}
