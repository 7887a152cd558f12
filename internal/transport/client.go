// Package transport carries vmutils.Session calls over gRPC so hosts
// without XenAPI credentials can go through a relay running next to dom0.
package transport

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"

	pb "torrentstore/api/proto/v1"
)

// Client is a vmutils.Session backed by a remote HostAgent.
type Client struct {
	cc      *grpc.ClientConn
	agent   pb.HostAgentClient
	hostRef string
}

// Dial connects to the host agent at target and caches its host ref.
// Without explicit options the connection is plaintext.
func Dial(ctx context.Context, target string, opts ...grpc.DialOption) (*Client, error) {
	if len(opts) == 0 {
		opts = []grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}
	}
	cc, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, err
	}
	c := &Client{cc: cc, agent: pb.NewHostAgentClient(cc)}
	ref, err := c.agent.HostRef(ctx, &emptypb.Empty{})
	if err != nil {
		_ = cc.Close()
		return nil, fmt.Errorf("host agent %s: %w", target, errgrpc.ToNative(err))
	}
	c.hostRef = ref.GetValue()
	return c, nil
}

func (c *Client) HostRef() string { return c.hostRef }

func (c *Client) CallXenAPI(ctx context.Context, method string, out any, args ...any) error {
	if args == nil {
		args = []any{}
	}
	req, err := toStruct(map[string]any{"method": method, "args": args})
	if err != nil {
		return err
	}
	rv, err := c.agent.CallXenAPI(ctx, req)
	if err != nil {
		return errgrpc.ToNative(err)
	}
	return decode(rv, out)
}

func (c *Client) CallPluginSerialized(ctx context.Context, plugin, fn string, params map[string]any, out any) error {
	if params == nil {
		params = map[string]any{}
	}
	req, err := toStruct(map[string]any{"plugin": plugin, "fn": fn, "params": params})
	if err != nil {
		return err
	}
	rv, err := c.agent.CallPlugin(ctx, req)
	if err != nil {
		return errgrpc.ToNative(err)
	}
	return decode(rv, out)
}

func (c *Client) Close() error { return c.cc.Close() }

// toStruct passes m through JSON first; structpb only accepts the generic
// shapes encoding/json produces ([]any, map[string]any, float64).
func toStruct(m map[string]any) (*structpb.Struct, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	var generic map[string]any
	if err := json.Unmarshal(b, &generic); err != nil {
		return nil, err
	}
	return structpb.NewStruct(generic)
}

func decode(v *structpb.Value, out any) error {
	if out == nil || v == nil {
		return nil
	}
	b, err := protojson.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, out)
}
