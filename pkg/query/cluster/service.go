package cluster

import (
	"context"

	"google.golang.org/grpc"

	"github.com/cuemby/nexusdb/pkg/log"
	"github.com/cuemby/nexusdb/pkg/metrics"
)

// serviceName and method paths mirror what protoc would have generated for
// a "Blocks" service; kept as string constants since there is no .proto
// source to generate them from.
const serviceName = "nexusdb.cluster.Blocks"

// RemoteServer adapts a Blocks implementation onto a grpc.ServiceDesc
// handler set, registered by hand in place of generated server code.
type RemoteServer struct {
	blocks Blocks
}

// NewRemoteServer wraps blocks for registration via RegisterBlocksServer.
func NewRemoteServer(blocks Blocks) *RemoteServer {
	return &RemoteServer{blocks: blocks}
}

func (s *RemoteServer) getSome(ctx context.Context, req *GetSomeRequest) (*GetSomeResponse, error) {
	metrics.RemoteBlockCallsTotal.WithLabelValues("getSome").Inc()
	state, rows, err := s.blocks.GetSome(ctx, req.DistributeID, req.AtMost)
	if err != nil {
		return nil, err
	}
	return &GetSomeResponse{State: state, Rows: rows}, nil
}

func (s *RemoteServer) skipSome(ctx context.Context, req *SkipSomeRequest) (*SkipSomeResponse, error) {
	metrics.RemoteBlockCallsTotal.WithLabelValues("skipSome").Inc()
	state, skipped, err := s.blocks.SkipSome(ctx, req.DistributeID, req.AtMost)
	if err != nil {
		return nil, err
	}
	return &SkipSomeResponse{State: state, Skipped: skipped}, nil
}

func (s *RemoteServer) shutdown(ctx context.Context, req *ShutdownRequest) (*ShutdownResponse, error) {
	metrics.RemoteBlockCallsTotal.WithLabelValues("shutdown").Inc()
	if err := s.blocks.Shutdown(ctx, req.DistributeID); err != nil {
		return nil, err
	}
	return &ShutdownResponse{}, nil
}

func getSomeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(GetSomeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*RemoteServer).getSome(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/GetSome"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*RemoteServer).getSome(ctx, req.(*GetSomeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func skipSomeHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(SkipSomeRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*RemoteServer).skipSome(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/SkipSome"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*RemoteServer).skipSome(ctx, req.(*SkipSomeRequest))
	}
	return interceptor(ctx, req, info, handler)
}

func shutdownHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	req := new(ShutdownRequest)
	if err := dec(req); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(*RemoteServer).shutdown(ctx, req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: serviceName + "/Shutdown"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(*RemoteServer).shutdown(ctx, req.(*ShutdownRequest))
	}
	return interceptor(ctx, req, info, handler)
}

// serviceDesc is the hand-written equivalent of a protoc-generated
// grpc.ServiceDesc for the Blocks service.
var serviceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*any)(nil), // RemoteServer's handlers are unexported, so it satisfies no narrower interface
	Methods: []grpc.MethodDesc{
		{MethodName: "GetSome", Handler: getSomeHandler},
		{MethodName: "SkipSome", Handler: skipSomeHandler},
		{MethodName: "Shutdown", Handler: shutdownHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "nexusdb/cluster/blocks.proto",
}

// RegisterBlocksServer registers server's RemoteServer against grpcServer.
func RegisterBlocksServer(grpcServer *grpc.Server, server *RemoteServer) {
	grpcServer.RegisterService(&serviceDesc, server)
	log.WithComponent("cluster").Info().Msg("registered remote execution-block service")
}
