package transport

import (
	"context"
	"net"
	"testing"

	"github.com/containerd/errdefs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/test/bufconn"

	"torrentstore/internal/fakexen"
)

func startBuf(t *testing.T, backend *fakexen.Session) *Client {
	t.Helper()
	lis := bufconn.Listen(1 << 20)
	srv := newServer(lis, backend)
	go func() { _ = srv.Serve() }()
	t.Cleanup(srv.Stop)

	c, err := Dial(context.Background(), "passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDial_CachesHostRef(t *testing.T) {
	c := startBuf(t, fakexen.New("OpaqueRef:host"))
	assert.Equal(t, "OpaqueRef:host", c.HostRef())
}

func TestCallPluginSerialized_RoundTrip(t *testing.T) {
	backend := fakexen.New("OpaqueRef:host")
	backend.HandlePlugin("bittorrent", "download_vhd", func(params map[string]any) (any, error) {
		stack := params["uuid_stack"].([]any)
		return []any{stack[0]}, nil
	})
	c := startBuf(t, backend)

	var vdis []string
	err := c.CallPluginSerialized(context.Background(), "bittorrent", "download_vhd", map[string]any{
		"image_id":              "abc-123",
		"uuid_stack":            []string{"u1", "u2"},
		"torrent_seed_duration": 3600,
	}, &vdis)
	require.NoError(t, err)
	assert.Equal(t, []string{"u1"}, vdis)

	calls := backend.PluginCalls()
	require.Len(t, calls, 1)
	assert.Equal(t, "abc-123", calls[0].Params["image_id"])
	// numbers cross the wire as JSON numbers
	assert.Equal(t, 3600.0, calls[0].Params["torrent_seed_duration"])
}

func TestCallXenAPI_RoundTrip(t *testing.T) {
	backend := fakexen.New("OpaqueRef:host").WithDefaultSR("OpaqueRef:sr", "/sr")
	c := startBuf(t, backend)

	var pools []string
	require.NoError(t, c.CallXenAPI(context.Background(), "pool.get_all", &pools))
	assert.Equal(t, []string{"OpaqueRef:pool"}, pools)

	var sr string
	require.NoError(t, c.CallXenAPI(context.Background(), "pool.get_default_SR", &sr, "OpaqueRef:pool"))
	assert.Equal(t, "OpaqueRef:sr", sr)

	var last fakexen.Call
	for _, call := range backend.Calls() {
		last = call
	}
	assert.Equal(t, []any{"OpaqueRef:pool"}, last.Args)
}

func TestErrorsKeepTheirKind(t *testing.T) {
	c := startBuf(t, fakexen.New("OpaqueRef:host"))

	err := c.CallPluginSerialized(context.Background(), "bittorrent", "download_vhd", nil, nil)
	assert.True(t, errdefs.IsNotFound(err), "got %v", err)

	err = c.CallXenAPI(context.Background(), "SR.get_all_records", nil)
	assert.True(t, errdefs.IsNotImplemented(err), "got %v", err)
}

func TestServer_RefusesUnrelayedCalls(t *testing.T) {
	backend := fakexen.New("OpaqueRef:host")
	backend.HandleXenAPI("VM.destroy", func([]any) (any, error) { return nil, nil })
	backend.HandlePlugin("anything", "rm_rf", func(map[string]any) (any, error) { return "ran", nil })
	c := startBuf(t, backend)
	ctx := context.Background()

	err := c.CallXenAPI(ctx, "VM.destroy", nil, "OpaqueRef:vm")
	assert.True(t, errdefs.IsPermissionDenied(err), "got %v", err)

	var out string
	err = c.CallPluginSerialized(ctx, "anything", "rm_rf", nil, &out)
	assert.True(t, errdefs.IsPermissionDenied(err), "got %v", err)
	assert.Empty(t, out)

	err = c.CallPluginSerialized(ctx, "bittorrent", "seed_everything", nil, nil)
	assert.True(t, errdefs.IsPermissionDenied(err), "got %v", err)

	assert.Empty(t, backend.Calls(), "refused calls must not reach the host")
}

func TestServer_AcceptsPluginFileName(t *testing.T) {
	backend := fakexen.New("OpaqueRef:host")
	backend.HandlePlugin("bittorrent.py", "download_vhd", func(map[string]any) (any, error) {
		return []string{"vdi-1"}, nil
	})
	c := startBuf(t, backend)

	var vdis []string
	require.NoError(t, c.CallPluginSerialized(context.Background(), "bittorrent.py", "download_vhd", nil, &vdis))
	assert.Equal(t, []string{"vdi-1"}, vdis)
}

func TestCallPlugin_RequiresName(t *testing.T) {
	c := startBuf(t, fakexen.New("OpaqueRef:host"))
	err := c.CallPluginSerialized(context.Background(), "", "download_vhd", nil, nil)
	assert.True(t, errdefs.IsInvalidArgument(err), "got %v", err)
}
