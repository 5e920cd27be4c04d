package rafter

import (
	"context"

	"google.golang.org/grpc"

	"raftcore/raft"
)

// Ack is the empty acknowledgment every Rafter RPC returns; the real
// payload that matters (vote grants, append results) travels back over
// a later, independent call, per spec.md §4.3's fire-and-forget model.
type Ack struct{}

// Server is implemented by whatever dispatches inbound Rafter calls
// onto a partition's raft state machine.
type Server interface {
	RequestVotes(ctx context.Context, req *raft.RequestVotesWire) (*Ack, error)
	Vote(ctx context.Context, req *raft.VoteWire) (*Ack, error)
	AppendLogs(ctx context.Context, req *raft.AppendLogsWire) (*Ack, error)
	CompleteAppendLogs(ctx context.Context, req *raft.CompleteAppendLogsWire) (*Ack, error)
}

const serviceName = "rafter.Rafter"

// ServiceDesc is hand-written in the shape protoc-gen-go-grpc would
// otherwise generate from a .proto file.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*Server)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "RequestVotes", Handler: requestVotesHandler},
		{MethodName: "Vote", Handler: voteHandler},
		{MethodName: "AppendLogs", Handler: appendLogsHandler},
		{MethodName: "CompleteAppendLogs", Handler: completeAppendLogsHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "rafter.proto",
}

// RegisterServer attaches srv to s, serving at the paths grpc.Server
// routes by ServiceDesc.ServiceName + "/" + MethodName.
func RegisterServer(s *grpc.Server, srv Server) {
	s.RegisterService(&ServiceDesc, srv)
}

func requestVotesHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.RequestVotesWire)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).RequestVotes(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/RequestVotes"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).RequestVotes(ctx, req.(*raft.RequestVotesWire))
	}
	return interceptor(ctx, in, info, handler)
}

func voteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.VoteWire)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).Vote(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/Vote"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).Vote(ctx, req.(*raft.VoteWire))
	}
	return interceptor(ctx, in, info, handler)
}

func appendLogsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.AppendLogsWire)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).AppendLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/AppendLogs"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).AppendLogs(ctx, req.(*raft.AppendLogsWire))
	}
	return interceptor(ctx, in, info, handler)
}

func completeAppendLogsHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(raft.CompleteAppendLogsWire)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(Server).CompleteAppendLogs(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + serviceName + "/CompleteAppendLogs"}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(Server).CompleteAppendLogs(ctx, req.(*raft.CompleteAppendLogsWire))
	}
	return interceptor(ctx, in, info, handler)
}
