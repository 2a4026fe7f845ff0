package checker

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/parking-monitor/internal/api/grpc/health"
)

// TestResolveDialAddress covers overrides and wildcard listen addresses.
func TestResolveDialAddress(t *testing.T) {
	t.Parallel()

	cases := []struct {
		config, override, want string
	}{
		{config: ":9090", want: "127.0.0.1:9090"},
		{config: "0.0.0.0:9090", want: "127.0.0.1:9090"},
		{config: "monitor.local:9090", want: "monitor.local:9090"},
		{config: ":9090", override: "10.0.0.5:7000", want: "10.0.0.5:7000"},
	}

	for _, tc := range cases {
		got, err := resolveDialAddress(tc.config, tc.override)
		require.NoError(t, err)
		require.Equal(t, tc.want, got)
	}

	_, err := resolveDialAddress("", "")
	require.ErrorIs(t, err, ErrNoHealthAddress)

	_, err = resolveDialAddress("no-port", "")
	require.Error(t, err)
}

// TestRun_CheckOnce succeeds while the lot is serving and fails afterwards.
func TestRun_CheckOnce(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := health.NewServer("yard")
	srv.SetServing(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		_ = srv.ServeListener(ctx, lis)
	}()

	opts := &Options{
		ConfigPath: filepath.Join(t.TempDir(), "absent.yaml"),
		Address:    lis.Addr().String(),
		Lot:        "yard",
		Timeout:    5 * time.Second,
	}

	require.NoError(t, Run(context.Background(), opts))

	srv.SetServing(false)
	require.ErrorIs(t, Run(context.Background(), opts), ErrNotServing)
}

// TestRun_Watch polls until the context is canceled.
func TestRun_Watch(t *testing.T) {
	t.Parallel()

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := health.NewServer("default")
	srv.SetServing(true)

	serveCtx, stop := context.WithCancel(context.Background())
	defer stop()

	go func() {
		_ = srv.ServeListener(serveCtx, lis)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	err = Run(ctx, &Options{
		ConfigPath:   filepath.Join(t.TempDir(), "absent.yaml"),
		Address:      lis.Addr().String(),
		Watch:        true,
		PollInterval: 20 * time.Millisecond,
	})
	require.NoError(t, err)
}
