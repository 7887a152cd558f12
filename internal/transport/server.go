package transport

import (
	"context"
	"net"
	"strings"

	"github.com/containerd/errdefs/pkg/errgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	pb "torrentstore/api/proto/v1"
	"torrentstore/internal/logging"
	"torrentstore/internal/vmutils"
)

type Server struct {
	grpc *grpc.Server
	lis  net.Listener
}

// StartServer listens on addr and registers a HostAgent forwarding every
// call to backend. Serve must be called to start accepting.
func StartServer(addr string, backend vmutils.Session, opts ...grpc.ServerOption) (*Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	return newServer(lis, backend, opts...), nil
}

func newServer(lis net.Listener, backend vmutils.Session, opts ...grpc.ServerOption) *Server {
	s := &Server{
		grpc: grpc.NewServer(opts...),
		lis:  lis,
	}
	pb.RegisterHostAgentServer(s.grpc, &hostAgent{backend: backend})
	return s
}

func (s *Server) Serve() error {
	return s.grpc.Serve(s.lis)
}

func (s *Server) Stop() {
	s.grpc.GracefulStop()
}

func (s *Server) Addr() net.Addr { return s.lis.Addr() }

// ----- service --------------------------------------------------------------

// The relay holds a privileged session, so it only forwards what image
// downloads need: the SR lookups and the bittorrent plugin.
var (
	relayedMethods = map[string]bool{
		"pool.get_all":              true,
		"pool.get_default_SR":       true,
		"SR.get_all_records":        true,
		"SR.get_record":             true,
		"PBD.get_record":            true,
		"PBD.get_all_records_where": true,
	}
	relayedPlugins = map[string]bool{
		"bittorrent.download_vhd": true,
	}
)

type hostAgent struct {
	pb.UnimplementedHostAgentServer
	backend vmutils.Session
}

func (h *hostAgent) CallPlugin(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	plugin := in.GetFields()["plugin"].GetStringValue()
	fn := in.GetFields()["fn"].GetStringValue()
	if plugin == "" || fn == "" {
		return nil, status.Error(codes.InvalidArgument, "plugin and fn are required")
	}
	if !relayedPlugins[strings.TrimSuffix(plugin, ".py")+"."+fn] {
		logging.L().Warn("refused plugin call", "plugin", plugin, "fn", fn)
		return nil, status.Errorf(codes.PermissionDenied, "plugin %s.%s is not relayed", plugin, fn)
	}
	params := in.GetFields()["params"].GetStructValue().AsMap()

	var out any
	if err := h.backend.CallPluginSerialized(ctx, plugin, fn, params, &out); err != nil {
		logging.L().Warn("relayed plugin call failed", "plugin", plugin, "fn", fn, "err", err)
		return nil, errgrpc.ToGRPC(err)
	}
	return structpb.NewValue(out)
}

func (h *hostAgent) CallXenAPI(ctx context.Context, in *structpb.Struct) (*structpb.Value, error) {
	method := in.GetFields()["method"].GetStringValue()
	if method == "" {
		return nil, status.Error(codes.InvalidArgument, "method is required")
	}
	if !relayedMethods[method] {
		logging.L().Warn("refused xenapi call", "method", method)
		return nil, status.Errorf(codes.PermissionDenied, "xenapi method %s is not relayed", method)
	}
	args := in.GetFields()["args"].GetListValue().AsSlice()

	var out any
	if err := h.backend.CallXenAPI(ctx, method, &out, args...); err != nil {
		logging.L().Debug("relayed xenapi call failed", "method", method, "err", err)
		return nil, errgrpc.ToGRPC(err)
	}
	return structpb.NewValue(out)
}

func (h *hostAgent) HostRef(context.Context, *emptypb.Empty) (*wrapperspb.StringValue, error) {
	return wrapperspb.String(h.backend.HostRef()), nil
}
