package raft

import (
	"raftcore/hlc"
	"raftcore/logstore"
)

// Wire message shapes, per spec.md §6. Field sets are normative. The
// structs carry no struct tags, so gob and the HTTP/JSON transport
// encode each field under its Go field name.

// WireLog is the on-the-wire form of a log entry.
type WireLog struct {
	ID        uint64
	Type      logstore.RaftLogType
	Term      uint64
	TsPhysical int64
	TsCounter  uint32
	LogType    string
	Data       []byte
}

// RequestVotesWire is sent by a Follower-turned-Candidate to every peer.
type RequestVotesWire struct {
	Partition  int
	Term       uint64
	MaxLogID   uint64
	TsPhysical int64
	TsCounter  uint32
	Endpoint   string
}

// VoteWire is the reply to a RequestVotesWire.
type VoteWire struct {
	Partition  int
	Term       uint64
	MaxLogID   uint64
	TsPhysical int64
	TsCounter  uint32
	Endpoint   string
}

// AppendLogsWire carries a heartbeat or a replication batch from a
// partition's leader to a follower. A heartbeat has empty Logs unless
// the follower's match index is behind the leader's log, in which case
// it carries the entries from the rewound match index onward.
type AppendLogsWire struct {
	Partition  int
	Term       uint64
	TsPhysical int64
	TsCounter  uint32
	Endpoint   string
	Logs       []WireLog
}

// AppendLogsResponseWire is the synchronous reply to an AppendLogsWire;
// asynchronous transports carry the same fields back as a
// CompleteAppendLogsWire call instead.
type AppendLogsResponseWire struct {
	Status          RaftOperationStatus
	CommittedIndex  int64
}

// CompleteAppendLogsWire is the follower's asynchronous acknowledgment
// of an AppendLogsWire.
type CompleteAppendLogsWire struct {
	Partition      int
	TsPhysical     int64
	TsCounter      uint32
	Endpoint       string
	Status         RaftOperationStatus
	CommittedIndex int64
}

// Internal mailbox messages. Requests with a reply carry a one-shot
// reply channel; fire-and-forget requests do not, per spec.md §9.

type checkLeaderMsg struct{}

type getNodeStateMsg struct {
	reply chan nodeStateReply
}

type nodeStateReply struct {
	role Role
	term uint64
}

type getTicketStateMsg struct {
	ts    hlc.Timestamp
	reply chan ticketStateReply
}

type ticketStateReply struct {
	state   TicketState
	lastID  uint64
}

type appendLogsMsg struct {
	wire AppendLogsWire
}

type completeAppendLogsMsg struct {
	wire CompleteAppendLogsWire
}

type requestVoteMsg struct {
	wire RequestVotesWire
}

type receiveVoteMsg struct {
	wire VoteWire
}

type replicateLogsMsg struct {
	logType string
	batch   [][]byte
	reply   chan replicateReply
}

type replicateCheckpointMsg struct {
	reply chan replicateReply
}

type replicateReply struct {
	success  bool
	status   RaftOperationStatus
	ticketID hlc.Timestamp
}

type updatePeersMsg struct {
	peers []string
}

type shutdownMsg struct {
	done chan struct{}
}
