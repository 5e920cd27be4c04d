// Package transport defines the wire-call contract between a
// partition's Responder and its peers, plus the server-side dispatch
// contract a listening node exposes. Concrete implementations live in
// httptransport (JSON over HTTP) and rafter (gob over gRPC); local
// provides an in-process transport for tests.
package transport

import "raftcore/raft"

// Transport is the outbound half: the four RPCs a node calls on its
// peers, per spec.md §6. Every call is fire-and-forget from the
// caller's perspective — the wire-level response (if the underlying
// protocol has one) is discarded; the real reply arrives later as a
// separate inbound call (a Vote reply to a RequestVotes, a
// CompleteAppendLogs reply to an AppendLogs), routed back through the
// Router. This matches spec.md §4.3: "the Responder hands the request
// to the transport and discards the response."
type Transport interface {
	RequestVotes(endpoint string, req raft.RequestVotesWire) error
	Vote(endpoint string, req raft.VoteWire) error
	AppendLogs(endpoint string, req raft.AppendLogsWire) error
	CompleteAppendLogs(endpoint string, req raft.CompleteAppendLogsWire) error
}

// Router resolves an inbound wire call to the target partition's SM
// mailbox, the demultiplexing spec.md §2 describes ("(message-kind,
// partition-id)"). cluster.Node implements this by indexing its
// partitions by id.
type Router interface {
	HandleRequestVote(partition int, req raft.RequestVotesWire)
	HandleReceiveVote(partition int, vote raft.VoteWire)
	HandleAppendLogs(partition int, req raft.AppendLogsWire)
	HandleCompleteAppendLogs(partition int, req raft.CompleteAppendLogsWire)
}

// Server is a listening endpoint that dispatches inbound wire calls to
// a Router. Start and Stop manage whatever listener backs it
// (net.Listener for httptransport, grpc.Server for rafter).
type Server interface {
	Start(address string) error
	Stop()
}

// Sender adapts a Transport into the no-return, log-and-drop contract
// raft.Responder requires (raft.Sender). It is the one place transport
// failures are logged; raft never sees them.
type Sender struct {
	transport Transport
}

// NewSender wraps t for use as a partition's raft.Sender.
func NewSender(t Transport) *Sender {
	return &Sender{transport: t}
}

func (s *Sender) SendRequestVotes(endpoint string, req raft.RequestVotesWire) {
	if err := s.transport.RequestVotes(endpoint, req); err != nil {
		logDropped("RequestVotes", endpoint, err)
	}
}

func (s *Sender) SendVote(endpoint string, req raft.VoteWire) {
	if err := s.transport.Vote(endpoint, req); err != nil {
		logDropped("Vote", endpoint, err)
	}
}

func (s *Sender) SendAppendLogs(endpoint string, req raft.AppendLogsWire) {
	if err := s.transport.AppendLogs(endpoint, req); err != nil {
		logDropped("AppendLogs", endpoint, err)
	}
}

func (s *Sender) SendCompleteAppendLogs(endpoint string, req raft.CompleteAppendLogsWire) {
	if err := s.transport.CompleteAppendLogs(endpoint, req); err != nil {
		logDropped("CompleteAppendLogs", endpoint, err)
	}
}
