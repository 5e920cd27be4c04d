// Package raft implements the per-partition Raft replication engine: an
// election state machine, a quorum-tracked log-replication protocol,
// and a write-ahead log worker, wired together as three single-consumer
// actors exchanging messages over mailboxes.
package raft

import (
	"fmt"

	"raftcore/hlc"
)

// Role is a partition replica's position in the Raft state machine.
type Role int

const (
	Follower Role = iota
	Candidate
	Leader
)

func (r Role) String() string {
	switch r {
	case Follower:
		return "Follower"
	case Candidate:
		return "Candidate"
	case Leader:
		return "Leader"
	default:
		return "Unknown"
	}
}

// RaftOperationStatus is the outcome of a replication or append-logs
// attempt, surfaced to callers and carried on the wire.
type RaftOperationStatus int

const (
	Success RaftOperationStatus = iota
	Errored
	NodeIsNotLeader
	LeaderInOldTerm
	LeaderInOutdatedTerm
)

func (s RaftOperationStatus) String() string {
	switch s {
	case Success:
		return "Success"
	case Errored:
		return "Errored"
	case NodeIsNotLeader:
		return "NodeIsNotLeader"
	case LeaderInOldTerm:
		return "LeaderInOldTerm"
	case LeaderInOutdatedTerm:
		return "LeaderInOutdatedTerm"
	default:
		return "Unknown"
	}
}

// TicketState is the commit lifecycle state a caller observes when
// polling GetTicketState.
type TicketState int

const (
	TicketNotFound TicketState = iota
	TicketProposed
	TicketCommitted
)

func (s TicketState) String() string {
	switch s {
	case TicketNotFound:
		return "NotFound"
	case TicketProposed:
		return "Proposed"
	case TicketCommitted:
		return "Committed"
	default:
		return "Unknown"
	}
}

// Config holds the tunables a partition's SM reads at construction
// time, matching the option set named in spec.md §6.
type Config struct {
	Host string
	Port int

	MaxPartitions int

	StartElectionTimeoutMs          int
	EndElectionTimeoutMs            int
	StartElectionTimeoutIncrementMs int
	EndElectionTimeoutIncrementMs   int

	HeartbeatIntervalMs  int
	VotingTimeoutMs      int
	CheckLeaderIntervalMs int

	// SlowRaftStateMachineLogMs is the warn threshold, in milliseconds,
	// for how long a single SM message handler is allowed to run before
	// a slow-processing warning is logged.
	SlowRaftStateMachineLogMs int
}

// DefaultConfig returns the defaults the teacher's cmd/server/main.go
// bootstraps with, generalized to the full option set.
func DefaultConfig() Config {
	return Config{
		Host:                             "localhost",
		Port:                             8000,
		MaxPartitions:                    1,
		StartElectionTimeoutMs:           1500,
		EndElectionTimeoutMs:             4000,
		StartElectionTimeoutIncrementMs:  50,
		EndElectionTimeoutIncrementMs:    250,
		HeartbeatIntervalMs:              150,
		VotingTimeoutMs:                  1000,
		CheckLeaderIntervalMs:            500,
		SlowRaftStateMachineLogMs:        200,
	}
}

// Endpoint returns the local node's host:port, as addressed on the
// wire and in the Cluster view.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ProposalTicket is a leader-side handle for a batch of log entries
// proposed together, keyed by the HLC timestamp assigned at proposal
// time. It tracks which followers have acknowledged the batch and is
// satisfied once that set reaches quorum.
type ProposalTicket struct {
	Ts       hlc.Timestamp
	Entries  []WireLog
	Expected map[string]bool // endpoint -> expected to ack
	Acked    map[string]bool // endpoint -> has acked
	MaxID    uint64
	State    TicketState
}

// NewProposalTicket creates a ticket for entries expecting acks from
// every endpoint in peers.
func NewProposalTicket(ts hlc.Timestamp, entries []WireLog, peers []string) *ProposalTicket {
	t := &ProposalTicket{
		Ts:       ts,
		Entries:  entries,
		Expected: make(map[string]bool, len(peers)),
		Acked:    make(map[string]bool, len(peers)),
		State:    TicketProposed,
	}
	for _, p := range peers {
		t.Expected[p] = true
	}
	for _, e := range entries {
		if e.ID > t.MaxID {
			t.MaxID = e.ID
		}
	}
	return t
}

// Ack records sender's acknowledgment and reports whether the ticket
// now holds quorum (counting the leader's own implicit ack, which the
// caller accounts for in the quorum size it passes in).
func (t *ProposalTicket) Ack(sender string, quorum int) bool {
	if _, expected := t.Expected[sender]; !expected {
		return false
	}
	t.Acked[sender] = true
	return len(t.Acked)+1 >= quorum
}
