package rafter

import (
	"context"
	"log"
	"net"

	"google.golang.org/grpc"

	"raftcore/raft"
	"raftcore/transport"
)

// RouterServer adapts a transport.Router into a rafter.Server, ack'ing
// every call immediately: the real response rides back later as an
// independent inbound call, per spec.md §4.3.
type RouterServer struct {
	router transport.Router
}

// NewRouterServer wraps router as a Rafter gRPC service.
func NewRouterServer(router transport.Router) *RouterServer {
	return &RouterServer{router: router}
}

func (s *RouterServer) RequestVotes(ctx context.Context, req *raft.RequestVotesWire) (*Ack, error) {
	s.router.HandleRequestVote(req.Partition, *req)
	return &Ack{}, nil
}

func (s *RouterServer) Vote(ctx context.Context, req *raft.VoteWire) (*Ack, error) {
	s.router.HandleReceiveVote(req.Partition, *req)
	return &Ack{}, nil
}

func (s *RouterServer) AppendLogs(ctx context.Context, req *raft.AppendLogsWire) (*Ack, error) {
	s.router.HandleAppendLogs(req.Partition, *req)
	return &Ack{}, nil
}

func (s *RouterServer) CompleteAppendLogs(ctx context.Context, req *raft.CompleteAppendLogsWire) (*Ack, error) {
	s.router.HandleCompleteAppendLogs(req.Partition, *req)
	return &Ack{}, nil
}

// Listener wraps a grpc.Server exposing the Rafter service, grounded
// on raft/rpc_server.go's GRPCRaftServer.
type Listener struct {
	grpcServer *grpc.Server
	listener   net.Listener
}

// NewListener constructs a Listener dispatching to router.
func NewListener(router transport.Router) *Listener {
	s := grpc.NewServer()
	RegisterServer(s, NewRouterServer(router))
	return &Listener{grpcServer: s}
}

// Start listens on address and serves in the background.
func (l *Listener) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	l.listener = lis

	go func() {
		if err := l.grpcServer.Serve(lis); err != nil {
			log.Printf("❌ rafter server error: %v", err)
		}
	}()
	return nil
}

// Stop gracefully drains in-flight RPCs before shutting down.
func (l *Listener) Stop() {
	l.grpcServer.GracefulStop()
}
