package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// statsServer answers a minimal introspection RPC over the hub's
// Redis connection. It is registered with a hand-built
// grpc.ServiceDesc instead of generated protoc-gen-go-grpc stubs:
// structpb.Struct is already a proto.Message, so a dynamic key/value
// response doesn't need its own .proto-defined type.
type statsServer struct {
	client    *redis.Client
	namespace string
}

func (s *statsServer) getStats(ctx context.Context, _ *structpb.Struct) (*structpb.Struct, error) {
	info, err := s.client.Info(ctx, "clients", "stats").Result()
	if err != nil {
		info = err.Error()
	}
	return structpb.NewStruct(map[string]any{
		"namespace":  s.namespace,
		"redis_info": info,
		"checked_at": time.Now().UTC().Format(time.RFC3339),
	})
}

func statsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	server := srv.(*statsServer)
	if interceptor == nil {
		return server.getStats(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: server, FullMethod: "/eventbus.debug.Stats/Get"}
	handler := func(ctx context.Context, req any) (any, error) {
		return server.getStats(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

var statsServiceDesc = grpc.ServiceDesc{
	ServiceName: "eventbus.debug.Stats",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Get", Handler: statsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "eventbus/debug_stats",
}
