package raft

import (
	"time"

	"raftcore/hlc"
	"raftcore/logstore"
)

// sm is the per-partition election and replication state machine. It
// is the only mutator of its partition's election state; every message
// is processed one at a time off sm.mailbox, per spec.md §5's
// single-consumer actor model.
type sm struct {
	partition int
	cfg       Config
	clock     *hlc.Clock
	wal       *WALWorker
	responder *Responder
	logger    *Logger

	localEndpoint string
	peers         []string

	mailbox chan any

	role            Role
	currentTerm     uint64
	leaderEndpoint  string
	lastHeartbeatTs hlc.Timestamp
	lastVoteTs      hlc.Timestamp
	votingStartedAt time.Time
	electionTimeout time.Duration

	votesByTerm          map[uint64]map[string]bool
	expectedLeaderByTerm map[uint64]string
	matchIndexByFollower map[string]uint64
	activeProposals      *ticketTable

	recovered bool

	onRoleChange func(Role, uint64) // wired up by Partition for the atomic quick-read cache
}

func newSM(partition int, cfg Config, clock *hlc.Clock, wal *WALWorker, responder *Responder, localEndpoint string) *sm {
	return &sm{
		partition:            partition,
		cfg:                  cfg,
		clock:                clock,
		wal:                  wal,
		responder:            responder,
		logger:               NewLogger(partition, "sm", INFO),
		localEndpoint:        localEndpoint,
		mailbox:              make(chan any, 256),
		role:                 Follower,
		votesByTerm:          make(map[uint64]map[string]bool),
		expectedLeaderByTerm: make(map[uint64]string),
		matchIndexByFollower: make(map[string]uint64),
		activeProposals:      newTicketTable(5 * time.Minute),
		electionTimeout:      randomDuration(cfg.StartElectionTimeoutMs, cfg.EndElectionTimeoutMs),
	}
}

// run is the SM's single-consumer message loop.
func (s *sm) run() {
	for msg := range s.mailbox {
		s.ensureRecovered()
		start := time.Now()
		kind := s.dispatch(msg)
		if elapsed := time.Since(start); s.cfg.SlowRaftStateMachineLogMs > 0 &&
			elapsed > time.Duration(s.cfg.SlowRaftStateMachineLogMs)*time.Millisecond {
			s.logger.LogSlowHandler(kind, elapsed, s.cfg.SlowRaftStateMachineLogMs)
		}
		if kind == "shutdown" {
			return
		}
	}
}

// dispatch handles one message and returns a short tag for slow-handler
// logging. Exceptions are not a concern here (Go panics are not raft's
// failure taxonomy); a future callback panic inside the applier is the
// one place user code runs, and is intentionally not recovered here so
// bugs surface loudly during development.
func (s *sm) dispatch(msg any) string {
	switch m := msg.(type) {
	case checkLeaderMsg:
		s.handleCheckLeader()
		return "CheckLeader"
	case getNodeStateMsg:
		m.reply <- nodeStateReply{role: s.role, term: s.currentTerm}
		return "GetNodeState"
	case getTicketStateMsg:
		s.handleGetTicketState(m)
		return "GetTicketState"
	case appendLogsMsg:
		s.handleAppendLogs(m.wire)
		return "AppendLogs"
	case completeAppendLogsMsg:
		s.handleCompleteAppendLogs(m.wire)
		return "CompleteAppendLogs"
	case requestVoteMsg:
		s.handleRequestVote(m.wire)
		return "RequestVote"
	case receiveVoteMsg:
		s.handleReceiveVote(m.wire)
		return "ReceiveVote"
	case replicateLogsMsg:
		s.handleReplicateLogs(m)
		return "ReplicateLogs"
	case replicateCheckpointMsg:
		s.handleReplicateCheckpoint(m)
		return "ReplicateCheckpoint"
	case updatePeersMsg:
		s.peers = m.peers
		return "UpdatePeers"
	case shutdownMsg:
		m.done <- struct{}{}
		return "shutdown"
	default:
		return "unknown"
	}
}

func (s *sm) ensureRecovered() {
	if s.recovered {
		return
	}
	s.recovered = true

	maxTerm, err := s.wal.GetCurrentTerm()
	if err != nil {
		s.logger.Error("recovery failed to read current term: %v", err)
	}
	if _, err := s.wal.Recover(); err != nil {
		s.logger.Error("recovery failed: %v", err)
	}
	s.currentTerm = maxU64(s.currentTerm, maxTerm)
	s.lastHeartbeatTs = s.clock.LocalEvent()
}

func (s *sm) setRole(newRole Role) {
	if newRole == s.role {
		return
	}
	old := s.role
	s.role = newRole
	s.logger.LogStateChange(old, newRole, s.currentTerm)
	if s.onRoleChange != nil {
		s.onRoleChange(newRole, s.currentTerm)
	}
}

// becomeFollower applies the Follower entry actions from spec.md's
// state transition table: clear leaderEndpoint (unless leaderHint is
// set, in which case it is set to the hint), and clear per-term/
// per-follower bookkeeping.
func (s *sm) becomeFollower(leaderHint string) {
	s.setRole(Follower)
	s.leaderEndpoint = leaderHint
	s.expectedLeaderByTerm = make(map[uint64]string)
	s.matchIndexByFollower = make(map[string]uint64)
	s.activeProposals.Clear()
}

func (s *sm) quorum() int {
	return QuorumSize(len(s.peers))
}

// --- CheckLeader ---

func (s *sm) handleCheckLeader() {
	now := time.Now()
	switch s.role {
	case Leader:
		if now.Sub(s.hlcToTime(s.lastHeartbeatTs)) >= time.Duration(s.cfg.HeartbeatIntervalMs)*time.Millisecond {
			s.sendHeartbeats()
		}
		if reaped := s.activeProposals.Reap(now); reaped > 0 {
			s.logger.Debug("reaped %d expired proposal ticket(s)", reaped)
		}
	case Candidate:
		if now.Sub(s.votingStartedAt) < time.Duration(s.cfg.VotingTimeoutMs)*time.Millisecond {
			return
		}
		votes := len(s.votesByTerm[s.currentTerm])
		s.logger.LogElectionLost(s.currentTerm, votes, s.quorum())
		s.becomeFollower("")
		s.electionTimeout += randomDuration(s.cfg.StartElectionTimeoutIncrementMs, s.cfg.EndElectionTimeoutIncrementMs)
		s.lastHeartbeatTs = s.clock.LocalEvent()
	case Follower:
		sinceHeartbeat := now.Sub(s.hlcToTime(s.lastHeartbeatTs))
		sinceVote := now.Sub(s.hlcToTime(s.lastVoteTs))
		if sinceHeartbeat < s.electionTimeout || sinceVote < 2*s.electionTimeout {
			return
		}
		s.startElection()
	}
}

func (s *sm) hlcToTime(ts hlc.Timestamp) time.Time {
	if ts.IsZero() {
		return time.Time{}
	}
	return time.UnixMilli(ts.Physical)
}

func (s *sm) startElection() {
	s.setRole(Candidate)
	s.currentTerm++
	s.votingStartedAt = time.Now()
	s.votesByTerm[s.currentTerm] = map[string]bool{s.localEndpoint: true}
	s.logger.LogElectionStart(s.currentTerm)

	maxID, err := s.wal.GetMaxLog()
	if err != nil {
		s.logger.Error("failed to read max log for election: %v", err)
	}
	ts := s.clock.LocalEvent()
	req := RequestVotesWire{
		Partition: s.partition, Term: s.currentTerm, MaxLogID: maxID,
		TsPhysical: ts.Physical, TsCounter: ts.Counter, Endpoint: s.localEndpoint,
	}
	for _, peer := range s.peers {
		s.responder.SendRequestVotes(peer, req)
	}
}

// sendHeartbeats sends an AppendLogs to every peer. A peer whose match
// index does not yet cover the leader's highest log id gets the entries
// from its rewound match index onward, so a follower that missed entries
// catches up; every other peer gets an empty heartbeat.
func (s *sm) sendHeartbeats() {
	ts := s.clock.LocalEvent()
	s.lastHeartbeatTs = ts
	maxID, err := s.wal.GetMaxLog()
	for _, peer := range s.peers {
		var logs []WireLog
		if err == nil && maxID > 0 && s.matchIndexByFollower[peer] <= maxID {
			logs, _ = s.wal.GetRange(rewindFrom(s.matchIndexByFollower[peer]))
		}
		s.sendAppendLogsTo(peer, ts, logs)
	}
	s.logger.LogHeartbeatSent(s.currentTerm, len(s.peers))
}

func (s *sm) sendAppendLogsTo(peer string, ts hlc.Timestamp, logs []WireLog) {
	s.responder.SendAppendLogs(peer, AppendLogsWire{
		Partition: s.partition, Term: s.currentTerm,
		TsPhysical: ts.Physical, TsCounter: ts.Counter,
		Endpoint: s.localEndpoint, Logs: logs,
	})
}

// --- GetTicketState ---

func (s *sm) handleGetTicketState(m getTicketStateMsg) {
	ticket, ok := s.activeProposals.Get(m.ts)
	if !ok {
		m.reply <- ticketStateReply{state: TicketNotFound}
		return
	}
	m.reply <- ticketStateReply{state: ticket.State, lastID: ticket.MaxID}
}

// --- Vote handling (incoming RequestVote) ---

// handleRequestVote implements the vote-handling rules verbatim: a
// vote or an accepted leader already recorded for vote_term rejects
// outright, as does being a non-Follower already in vote_term or
// having a strictly newer term. A requester behind our log also
// rejects, and additionally bumps our term to seek leadership
// ourselves since we're more up to date.
func (s *sm) handleRequestVote(req RequestVotesWire) {
	voteTerm := req.Term

	if _, recorded := s.expectedLeaderByTerm[voteTerm]; recorded {
		s.logger.LogVoteDenied(req.Endpoint, voteTerm, "vote or leader already recorded for term")
		return
	}
	if s.role != Follower && voteTerm == s.currentTerm {
		s.logger.LogVoteDenied(req.Endpoint, voteTerm, "already contesting this term")
		return
	}
	if s.currentTerm > voteTerm {
		s.logger.LogVoteDenied(req.Endpoint, voteTerm, "local term is newer")
		return
	}

	localMaxID, err := s.wal.GetMaxLog()
	if err != nil {
		s.logger.Error("failed to read max log for vote: %v", err)
		return
	}
	if localMaxID > req.MaxLogID {
		s.currentTerm++
		s.logger.LogVoteDenied(req.Endpoint, voteTerm, "local log is more up to date")
		return
	}

	s.expectedLeaderByTerm[voteTerm] = req.Endpoint
	ts := s.clock.ReceiveEvent(hlc.Timestamp{Physical: req.TsPhysical, Counter: req.TsCounter})
	s.lastHeartbeatTs = ts
	s.lastVoteTs = ts

	replyTs := s.clock.LocalEvent()
	s.responder.SendVote(req.Endpoint, VoteWire{
		Partition: s.partition, Term: voteTerm, MaxLogID: localMaxID,
		TsPhysical: replyTs.Physical, TsCounter: replyTs.Counter, Endpoint: s.localEndpoint,
	})
	s.logger.LogVoteGranted(req.Endpoint, voteTerm)
}

// --- Vote tally (incoming ReceiveVote) ---

func (s *sm) handleReceiveVote(vote VoteWire) {
	if s.role == Follower {
		return
	}
	if vote.Term < s.currentTerm {
		return
	}
	if s.role == Leader {
		s.matchIndexByFollower[vote.Endpoint] = vote.MaxLogID
		return
	}

	localMaxID, err := s.wal.GetMaxLog()
	if err != nil {
		s.logger.Error("failed to read max log for vote tally: %v", err)
		return
	}
	if localMaxID < vote.MaxLogID {
		return
	}

	if s.votesByTerm[vote.Term] == nil {
		s.votesByTerm[vote.Term] = make(map[string]bool)
	}
	s.votesByTerm[vote.Term][vote.Endpoint] = true
	s.matchIndexByFollower[vote.Endpoint] = vote.MaxLogID

	votes := len(s.votesByTerm[vote.Term])
	if votes >= s.quorum() {
		s.logger.LogElectionWon(vote.Term, votes, s.quorum())
		s.setRole(Leader)
		s.leaderEndpoint = s.localEndpoint
		s.lastHeartbeatTs = s.clock.LocalEvent()
		s.sendHeartbeats()
	}
}

// --- Leader replication ---

func (s *sm) handleReplicateLogs(m replicateLogsMsg) {
	if s.role != Leader {
		m.reply <- replicateReply{success: false, status: NodeIsNotLeader}
		return
	}
	if len(s.peers) == 0 {
		m.reply <- replicateReply{success: false, status: Errored}
		return
	}

	ts := s.clock.LocalEvent()
	logs := make([]WireLog, len(m.batch))
	for i, data := range m.batch {
		logs[i] = WireLog{Type: logstore.Proposed, LogType: m.logType, Data: data}
	}

	_, stamped, err := s.wal.Propose(s.currentTerm, ts, logs)
	if err != nil {
		s.logger.Error("propose failed: %v", err)
		m.reply <- replicateReply{success: false, status: Errored}
		return
	}

	ticket := NewProposalTicket(ts, stamped, s.peers)
	s.activeProposals.Insert(ticket)

	for _, peer := range s.peers {
		from := rewindFrom(s.matchIndexByFollower[peer])
		rangeLogs, err := s.wal.GetRange(from)
		if err != nil {
			s.logger.Error("failed to read replication range for %s: %v", peer, err)
			continue
		}
		s.sendAppendLogsTo(peer, ts, rangeLogs)
	}

	m.reply <- replicateReply{success: true, status: Success, ticketID: ts}
}

func (s *sm) handleReplicateCheckpoint(m replicateCheckpointMsg) {
	if s.role != Leader {
		m.reply <- replicateReply{success: false, status: NodeIsNotLeader}
		return
	}
	if len(s.peers) == 0 {
		m.reply <- replicateReply{success: false, status: Errored}
		return
	}

	ts := s.clock.LocalEvent()
	logs := []WireLog{{Type: logstore.ProposedCheckpoint}}

	_, stamped, err := s.wal.Propose(s.currentTerm, ts, logs)
	if err != nil {
		s.logger.Error("checkpoint propose failed: %v", err)
		m.reply <- replicateReply{success: false, status: Errored}
		return
	}

	ticket := NewProposalTicket(ts, stamped, s.peers)
	s.activeProposals.Insert(ticket)

	for _, peer := range s.peers {
		from := rewindFrom(s.matchIndexByFollower[peer])
		rangeLogs, err := s.wal.GetRange(from)
		if err != nil {
			continue
		}
		s.sendAppendLogsTo(peer, ts, rangeLogs)
	}

	m.reply <- replicateReply{success: true, status: Success, ticketID: ts}
}

// --- Commit path ---

func (s *sm) handleCompleteAppendLogs(m CompleteAppendLogsWire) {
	if m.CommittedIndex > 0 {
		s.matchIndexByFollower[m.Endpoint] = uint64(m.CommittedIndex)
	}
	if m.Status != Success {
		s.logger.Debug("CompleteAppendLogs from %s: %s", m.Endpoint, m.Status)
		return
	}

	ts := hlc.Timestamp{Physical: m.TsPhysical, Counter: m.TsCounter}
	ticket, ok := s.activeProposals.Get(ts)
	if !ok {
		return
	}

	quorumReached := ticket.Ack(m.Endpoint, s.quorum())
	if !quorumReached || ticket.State == TicketCommitted {
		return
	}

	if _, err := s.wal.Commit(s.currentTerm, ticket.Entries); err != nil {
		s.logger.Error("commit failed for ticket %v: %v", ts, err)
		return
	}
	ticket.State = TicketCommitted
	s.logger.LogCommit(ticket.MaxID, s.currentTerm)

	committedLogs := make([]WireLog, len(ticket.Entries))
	for i, e := range ticket.Entries {
		e.Type = e.Type.CommittedForm()
		committedLogs[i] = e
	}
	for peer := range ticket.Expected {
		s.sendAppendLogsTo(peer, ts, committedLogs)
	}
}

// --- Follower AppendLogs handling ---

func (s *sm) handleAppendLogs(req AppendLogsWire) {
	if s.currentTerm > req.Term {
		s.replyComplete(req, LeaderInOldTerm, -1)
		return
	}

	expected, hasExpected := s.expectedLeaderByTerm[req.Term]
	if hasExpected && expected != req.Endpoint {
		s.replyComplete(req, LeaderInOldTerm, -1)
		return
	}
	if !hasExpected {
		s.expectedLeaderByTerm[req.Term] = req.Endpoint
	}

	if s.leaderEndpoint != req.Endpoint {
		s.becomeFollower(req.Endpoint)
		s.currentTerm = req.Term
		s.expectedLeaderByTerm[req.Term] = req.Endpoint
	}

	ts := hlc.Timestamp{Physical: req.TsPhysical, Counter: req.TsCounter}

	if len(req.Logs) == 0 {
		s.lastHeartbeatTs = s.clock.ReceiveEvent(ts)
		s.replyComplete(req, Success, -1)
		return
	}

	s.lastHeartbeatTs = s.clock.ReceiveEvent(ts)
	commitIndex, err := s.wal.ProposeOrCommit(req.Term, ts, req.Logs)
	if err != nil {
		s.replyComplete(req, Errored, -1)
		return
	}
	s.replyComplete(req, Success, commitIndex)
}

func (s *sm) replyComplete(req AppendLogsWire, status RaftOperationStatus, committedIndex int64) {
	s.responder.SendCompleteAppendLogs(req.Endpoint, CompleteAppendLogsWire{
		Partition:      s.partition,
		TsPhysical:     req.TsPhysical,
		TsCounter:      req.TsCounter,
		Endpoint:       s.localEndpoint,
		Status:         status,
		CommittedIndex: committedIndex,
	})
}
