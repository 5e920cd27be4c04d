package raft

import (
	"sync/atomic"
	"time"

	"raftcore/hlc"
	"raftcore/logstore"
)

// Partition bundles one partition's SM, WAL-W and Responder actors and
// their goroutines, and is the unit external callers address.
type Partition struct {
	id  int
	cfg Config

	sm        *sm
	wal       *WALWorker
	responder *Responder

	quickRole atomic.Int32
	quickTerm atomic.Uint64

	ticker *time.Ticker
	done   chan struct{}
}

// NewPartition constructs and wires a partition's three actors. Start
// must be called before any operation is issued against it.
func NewPartition(id int, cfg Config, clock *hlc.Clock, store logstore.Store, applier Applier, sender Sender, localEndpoint string) *Partition {
	wal := NewWALWorker(id, store, applier)
	responder := NewResponder(id, sender)
	machine := newSM(id, cfg, clock, wal, responder, localEndpoint)

	p := &Partition{id: id, cfg: cfg, sm: machine, wal: wal, responder: responder, done: make(chan struct{})}
	machine.onRoleChange = func(role Role, term uint64) {
		p.quickRole.Store(int32(role))
		p.quickTerm.Store(term)
	}
	p.quickRole.Store(int32(Follower))
	return p
}

// Start launches the actor goroutines and the CheckLeader ticker.
func (p *Partition) Start() {
	go p.wal.Run()
	go p.responder.Run()
	go p.sm.run()

	p.ticker = time.NewTicker(time.Duration(p.cfg.CheckLeaderIntervalMs) * time.Millisecond)
	go func() {
		for {
			select {
			case <-p.ticker.C:
				p.sm.mailbox <- checkLeaderMsg{}
			case <-p.done:
				return
			}
		}
	}()
}

// Stop halts the ticker and all three actors.
func (p *Partition) Stop() {
	close(p.done)
	if p.ticker != nil {
		p.ticker.Stop()
	}
	p.wal.Stop()
	p.responder.Stop()

	doneCh := make(chan struct{})
	p.sm.mailbox <- shutdownMsg{done: doneCh}
	<-doneCh
}

// UpdatePeers replaces the peer list the SM broadcasts elections and
// replication to.
func (p *Partition) UpdatePeers(peers []string) {
	p.sm.mailbox <- updatePeersMsg{peers: peers}
}

// GetNodeState returns the current role and term, blocking on the SM
// mailbox (use AmILeaderQuick for a non-blocking read).
func (p *Partition) GetNodeState() (Role, uint64) {
	reply := make(chan nodeStateReply, 1)
	p.sm.mailbox <- getNodeStateMsg{reply: reply}
	r := <-reply
	return r.role, r.term
}

// AmILeaderQuick reads the last-observed role from an atomic cache
// updated on every SM role transition; it never blocks and may be
// stale by up to one CheckLeader tick.
func (p *Partition) AmILeaderQuick() bool {
	return Role(p.quickRole.Load()) == Leader
}

// GetTicketState polls a proposal ticket's commit lifecycle state.
func (p *Partition) GetTicketState(ts hlc.Timestamp) (TicketState, uint64) {
	reply := make(chan ticketStateReply, 1)
	p.sm.mailbox <- getTicketStateMsg{ts: ts, reply: reply}
	r := <-reply
	return r.state, r.lastID
}

// ReplicateLogs proposes a batch of opaque entries for durable,
// quorum-replicated commit. Returns immediately; commit is
// asynchronous and observed via GetTicketState.
func (p *Partition) ReplicateLogs(logType string, batch [][]byte) (bool, RaftOperationStatus, hlc.Timestamp) {
	reply := make(chan replicateReply, 1)
	p.sm.mailbox <- replicateLogsMsg{logType: logType, batch: batch, reply: reply}
	r := <-reply
	return r.success, r.status, r.ticketID
}

// ReplicateCheckpoint proposes a single synthetic checkpoint entry.
func (p *Partition) ReplicateCheckpoint() (bool, RaftOperationStatus, hlc.Timestamp) {
	reply := make(chan replicateReply, 1)
	p.sm.mailbox <- replicateCheckpointMsg{reply: reply}
	r := <-reply
	return r.success, r.status, r.ticketID
}

// HandleRequestVote is the inbound leg of an incoming RequestVotes
// wire call, posted by the transport onto this partition's SM.
func (p *Partition) HandleRequestVote(req RequestVotesWire) {
	p.sm.mailbox <- requestVoteMsg{wire: req}
}

// HandleReceiveVote delivers a Vote reply to this partition's SM.
func (p *Partition) HandleReceiveVote(vote VoteWire) {
	p.sm.mailbox <- receiveVoteMsg{wire: vote}
}

// HandleAppendLogs delivers an AppendLogs call (heartbeat or
// replication batch) to this partition's SM.
func (p *Partition) HandleAppendLogs(req AppendLogsWire) {
	p.sm.mailbox <- appendLogsMsg{wire: req}
}

// HandleCompleteAppendLogs delivers a follower's asynchronous ack of
// an AppendLogs call.
func (p *Partition) HandleCompleteAppendLogs(req CompleteAppendLogsWire) {
	p.sm.mailbox <- completeAppendLogsMsg{wire: req}
}
