package engine

import (
	"context"
	"testing"
	"time"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"torrentstore/internal/config"
	"torrentstore/internal/fakexen"
	"torrentstore/internal/image"
	"torrentstore/internal/transport"
)

// startAgent serves a fake host over gRPC on a loopback port.
func startAgent(t *testing.T) (*fakexen.Session, string) {
	t.Helper()
	backend := fakexen.New("OpaqueRef:host").WithDefaultSR("OpaqueRef:sr", "/var/run/sr-mount/local")
	backend.HandlePlugin("bittorrent", "download_vhd", func(params map[string]any) (any, error) {
		return []any{params["uuid_stack"].([]any)[0]}, nil
	})
	srv, err := transport.StartServer("127.0.0.1:0", backend)
	require.NoError(t, err)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)
	return backend, srv.Addr().String()
}

func testConfig(t *testing.T, agentAddr string) config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Session.Transport = "grpc"
	cfg.Session.HostAgentAddr = agentAddr
	cfg.XenServer.TorrentBaseURL = "http://images.example.com/torrents/"
	return cfg
}

func TestBootstrap_DownloadOverGRPC(t *testing.T) {
	backend, addr := startAgent(t)
	ctx := context.Background()

	e, err := Bootstrap(ctx, testConfig(t, addr))
	require.NoError(t, err)
	defer func() { assert.NoError(t, e.Close(ctx)) }()

	vdis, err := e.Download(ctx, image.Instance{UUID: "inst-1"}, "abc-123")
	require.NoError(t, err)
	require.Len(t, vdis, 1)
	assert.Regexp(t, `^[0-9a-f]{32}$`, vdis[0])

	calls := backend.PluginCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "http://images.example.com/torrents/abc-123.torrent", calls[0].Params["torrent_url"])
	assert.Equal(t, "/var/run/sr-mount/local", calls[0].Params["sr_path"])

	err = e.Upload(ctx, image.Instance{UUID: "inst-1"}, "abc-123", vdis)
	assert.True(t, errdefs.IsNotImplemented(err))
}

func TestBootstrap_UnknownNotificationDriver(t *testing.T) {
	_, addr := startAgent(t)
	cfg := testConfig(t, addr)
	cfg.Notifications.Driver = "carrier-pigeon"

	_, err := Bootstrap(context.Background(), cfg)
	assert.Error(t, err)
}

func TestRelay_ForwardsToUpstream(t *testing.T) {
	_, addr := startAgent(t)
	cfg := testConfig(t, addr)
	cfg.Relay.Listen = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r, err := NewRelay(ctx, cfg)
	require.NoError(t, err)
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	c, err := transport.Dial(ctx, r.Addr().String())
	require.NoError(t, err)
	assert.Equal(t, "OpaqueRef:host", c.HostRef())

	var pools []string
	require.NoError(t, c.CallXenAPI(ctx, "pool.get_all", &pools))
	assert.Equal(t, []string{"OpaqueRef:pool"}, pools)
	require.NoError(t, c.Close())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("relay did not stop")
	}
}

func TestRelay_ReleasesUpstreamWhenServeFails(t *testing.T) {
	srv, err := transport.StartServer("127.0.0.1:0", fakexen.New("OpaqueRef:host"))
	require.NoError(t, err)
	srv.Stop() // Serve now fails immediately

	closed := 0
	r := &Relay{transport: srv, closers: []func(context.Context) error{
		func(context.Context) error { closed++; return nil },
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run blocked after Serve failed")
	}
	assert.Equal(t, 1, closed)

	cancel()
	r.shutdown()
	assert.Equal(t, 1, closed, "upstream must be released once")
}
