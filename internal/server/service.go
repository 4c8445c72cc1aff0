// ABOUTME: gRPC service descriptor for the index service
// ABOUTME: Every method exchanges google.protobuf.Struct so no generated stubs are needed

package server

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protodesc"
	"google.golang.org/protobuf/reflect/protoregistry"
	"google.golang.org/protobuf/types/descriptorpb"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// ServiceName is the fully qualified gRPC service name
	ServiceName = "codexindex.v1.IndexService"

	protoFile  = "codexindex/v1/index.proto"
	structType = ".google.protobuf.Struct"
)

// IndexServiceServer is implemented by Server
type IndexServiceServer interface {
	IndexNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	IndexNodeBatch(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RemoveNode(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Query(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByTheme(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByResonancePattern(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByFractalDepthRange(context.Context, *structpb.Struct) (*structpb.Struct, error)
	FindByEpistemicAlignment(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RebuildIndexes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Reindex(context.Context, *structpb.Struct) (*structpb.Struct, error)
	OptimizeIndexes(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetStatistics(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Checkpoint(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type rpcFunc func(IndexServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

var rpcs = []struct {
	name string
	call rpcFunc
}{
	{"IndexNode", IndexServiceServer.IndexNode},
	{"IndexNodeBatch", IndexServiceServer.IndexNodeBatch},
	{"RemoveNode", IndexServiceServer.RemoveNode},
	{"Query", IndexServiceServer.Query},
	{"FindByTheme", IndexServiceServer.FindByTheme},
	{"FindByResonancePattern", IndexServiceServer.FindByResonancePattern},
	{"FindByFractalDepthRange", IndexServiceServer.FindByFractalDepthRange},
	{"FindByEpistemicAlignment", IndexServiceServer.FindByEpistemicAlignment},
	{"RebuildIndexes", IndexServiceServer.RebuildIndexes},
	{"Reindex", IndexServiceServer.Reindex},
	{"OptimizeIndexes", IndexServiceServer.OptimizeIndexes},
	{"GetStatistics", IndexServiceServer.GetStatistics},
	{"Export", IndexServiceServer.Export},
	{"Checkpoint", IndexServiceServer.Checkpoint},
}

// ServiceDesc describes IndexService for grpc.Server.RegisterService
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*IndexServiceServer)(nil),
	Methods:     methodDescs(),
	Streams:     []grpc.StreamDesc{},
	Metadata:    protoFile,
}

// RegisterIndexServiceServer registers srv with s
func RegisterIndexServiceServer(s grpc.ServiceRegistrar, srv IndexServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// FullMethod returns the wire name of a method
func FullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

func methodDescs() []grpc.MethodDesc {
	descs := make([]grpc.MethodDesc, len(rpcs))
	for i, r := range rpcs {
		descs[i] = grpc.MethodDesc{MethodName: r.name, Handler: unaryHandler(r.name, r.call)}
	}
	return descs
}

func unaryHandler(name string, call rpcFunc) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(IndexServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: FullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(IndexServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// init registers a file descriptor for the service so server reflection
// can describe it to grpcurl and similar tools
func init() {
	methods := make([]*descriptorpb.MethodDescriptorProto, len(rpcs))
	for i, r := range rpcs {
		methods[i] = &descriptorpb.MethodDescriptorProto{
			Name:       proto.String(r.name),
			InputType:  proto.String(structType),
			OutputType: proto.String(structType),
		}
	}

	fdp := &descriptorpb.FileDescriptorProto{
		Name:       proto.String(protoFile),
		Package:    proto.String("codexindex.v1"),
		Dependency: []string{structpb.File_google_protobuf_struct_proto.Path()},
		Syntax:     proto.String("proto3"),
		Service: []*descriptorpb.ServiceDescriptorProto{{
			Name:   proto.String("IndexService"),
			Method: methods,
		}},
	}

	fd, err := protodesc.NewFile(fdp, protoregistry.GlobalFiles)
	if err != nil {
		panic(fmt.Sprintf("build %s descriptor: %v", protoFile, err))
	}
	if err := protoregistry.GlobalFiles.RegisterFile(fd); err != nil {
		panic(fmt.Sprintf("register %s descriptor: %v", protoFile, err))
	}
}
