package raft

import (
	"fmt"
	"sort"

	"raftcore/hlc"
	"raftcore/logstore"
)

// Applier is the outer application's replication callback bundle,
// invoked by the WAL worker as entries are applied (ReplicationReceived
// on the follower apply path) or replayed (ReplicationRestored during
// recovery).
type Applier interface {
	OnReplicationReceived(logType string, data []byte) bool
	OnReplicationRestored(logType string, data []byte) bool
	OnReplicationError(entry logstore.LogEntry)
}

type walRecoverMsg struct {
	reply chan walRecoverReply
}

type walRecoverReply struct {
	commitIndex uint64
	err         error
}

type walGetMaxLogMsg struct {
	reply chan walU64Reply
}

type walGetCurrentTermMsg struct {
	reply chan walU64Reply
}

type walU64Reply struct {
	value uint64
	err   error
}

type walProposeMsg struct {
	term  uint64
	ts    hlc.Timestamp
	logs  []WireLog
	reply chan walProposeReply
}

type walProposeReply struct {
	proposeIndex uint64
	stamped      []WireLog
	err          error
}

type walCommitMsg struct {
	term  uint64
	logs  []WireLog // entries as returned by walProposeReply.stamped
	reply chan walU64Reply
}

type walProposeOrCommitMsg struct {
	term  uint64
	ts    hlc.Timestamp
	logs  []WireLog
	reply chan walProposeOrCommitReply
}

type walProposeOrCommitReply struct {
	commitIndex int64 // -1 means rejected, no-op
	err         error
}

type walGetRangeMsg struct {
	fromID uint64
	reply  chan walGetRangeReply
}

type walGetRangeReply struct {
	logs []WireLog
	err  error
}

// WALWorker owns a partition's durable log: proposeIndex (next id to
// assign), commitIndex (next id to commit), and the connection to the
// shared logstore.Store. It is the only mutator of durable indices for
// its partition; every operation is serialized through its mailbox.
type WALWorker struct {
	partition int
	store     logstore.Store
	applier   Applier
	logger    *Logger

	mailbox chan any
	done    chan struct{}

	proposeIndex uint64
	commitIndex  uint64
	recovered    bool
}

// NewWALWorker constructs a worker for partition, bound to store and
// applier. Run must be started in its own goroutine before any of the
// exported Ask-style methods are called.
func NewWALWorker(partition int, store logstore.Store, applier Applier) *WALWorker {
	return &WALWorker{
		partition: partition,
		store:     store,
		applier:   applier,
		logger:    NewLogger(partition, "wal", INFO),
		mailbox:   make(chan any, 256),
		done:      make(chan struct{}),
	}
}

// Run is the worker's single-consumer message loop. Call it in its own
// goroutine; it returns when Stop is called.
func (w *WALWorker) Run() {
	for msg := range w.mailbox {
		switch m := msg.(type) {
		case walRecoverMsg:
			idx, err := w.recover()
			m.reply <- walRecoverReply{commitIndex: idx, err: err}
		case walGetMaxLogMsg:
			v, err := w.store.GetMaxLog(w.partition)
			m.reply <- walU64Reply{value: v, err: err}
		case walGetCurrentTermMsg:
			v, err := w.store.GetCurrentTerm(w.partition)
			m.reply <- walU64Reply{value: v, err: err}
		case walProposeMsg:
			idx, stamped, err := w.propose(m.term, m.ts, m.logs)
			m.reply <- walProposeReply{proposeIndex: idx, stamped: stamped, err: err}
		case walCommitMsg:
			idx, err := w.commit(m.term, m.logs)
			m.reply <- walU64Reply{value: idx, err: err}
		case walProposeOrCommitMsg:
			idx, err := w.proposeOrCommit(m.term, m.ts, m.logs)
			m.reply <- walProposeOrCommitReply{commitIndex: idx, err: err}
		case walGetRangeMsg:
			logs, err := w.getRange(m.fromID)
			m.reply <- walGetRangeReply{logs: logs, err: err}
		case shutdownMsg:
			close(w.done)
			m.done <- struct{}{}
			return
		}
	}
}

// Stop terminates the worker's message loop.
func (w *WALWorker) Stop() {
	done := make(chan struct{})
	w.mailbox <- shutdownMsg{done: done}
	<-done
}

// Recover replays the durable log, at most once per lifetime.
func (w *WALWorker) Recover() (uint64, error) {
	reply := make(chan walRecoverReply, 1)
	w.mailbox <- walRecoverMsg{reply: reply}
	r := <-reply
	return r.commitIndex, r.err
}

func (w *WALWorker) GetMaxLog() (uint64, error) {
	reply := make(chan walU64Reply, 1)
	w.mailbox <- walGetMaxLogMsg{reply: reply}
	r := <-reply
	return r.value, r.err
}

func (w *WALWorker) GetCurrentTerm() (uint64, error) {
	reply := make(chan walU64Reply, 1)
	w.mailbox <- walGetCurrentTermMsg{reply: reply}
	r := <-reply
	return r.value, r.err
}

// Propose assigns ids to logs starting at proposeIndex and appends them
// durably as Proposed. Returns the post-batch proposeIndex and the
// id-stamped entries (the leader needs the assigned ids to build the
// ProposalTicket and the AppendLogs it fans out).
func (w *WALWorker) Propose(term uint64, ts hlc.Timestamp, logs []WireLog) (uint64, []WireLog, error) {
	reply := make(chan walProposeReply, 1)
	w.mailbox <- walProposeMsg{term: term, ts: ts, logs: logs, reply: reply}
	r := <-reply
	return r.proposeIndex, r.stamped, r.err
}

// Commit flips the given (already-proposed) entries to Committed.
func (w *WALWorker) Commit(term uint64, logs []WireLog) (uint64, error) {
	reply := make(chan walU64Reply, 1)
	w.mailbox <- walCommitMsg{term: term, logs: logs, reply: reply}
	r := <-reply
	return r.value, r.err
}

// ProposeOrCommit is the follower apply path for an AppendLogs batch.
func (w *WALWorker) ProposeOrCommit(term uint64, ts hlc.Timestamp, logs []WireLog) (int64, error) {
	reply := make(chan walProposeOrCommitReply, 1)
	w.mailbox <- walProposeOrCommitMsg{term: term, ts: ts, logs: logs, reply: reply}
	r := <-reply
	return r.commitIndex, r.err
}

// GetRange returns durable entries with id >= fromID.
func (w *WALWorker) GetRange(fromID uint64) ([]WireLog, error) {
	reply := make(chan walGetRangeReply, 1)
	w.mailbox <- walGetRangeMsg{fromID: fromID, reply: reply}
	r := <-reply
	return r.logs, r.err
}

func toWire(e logstore.LogEntry) WireLog {
	return WireLog{
		ID: e.ID, Type: e.Type, Term: e.Term,
		TsPhysical: e.TimePhy, TsCounter: e.TimeCtr,
		LogType: e.LogType, Data: e.Data,
	}
}

func fromWire(w WireLog) logstore.LogEntry {
	return logstore.LogEntry{
		ID: w.ID, Type: w.Type, Term: w.Term,
		TimePhy: w.TsPhysical, TimeCtr: w.TsCounter,
		LogType: w.LogType, Data: w.Data,
	}
}

func (w *WALWorker) recover() (uint64, error) {
	if w.recovered {
		return w.commitIndex, nil
	}
	w.recovered = true

	entries, err := w.store.ReadLogs(w.partition)
	if err != nil {
		return 0, fmt.Errorf("raft: wal recover failed: %w", err)
	}

	for _, e := range entries {
		if e.Type.IsCommitted() {
			w.commitIndex = e.ID + 1
			w.proposeIndex = e.ID + 1
			if ok := w.applier.OnReplicationRestored(e.LogType, e.Data); !ok {
				w.applier.OnReplicationError(e)
			}
		}
	}

	if len(entries) == 0 {
		maxID, err := w.store.GetMaxLog(w.partition)
		if err != nil {
			return 0, fmt.Errorf("raft: wal recover failed to read max log: %w", err)
		}
		w.commitIndex = maxID + 1
		w.proposeIndex = maxID + 1
	}

	return w.commitIndex, nil
}

func (w *WALWorker) propose(term uint64, ts hlc.Timestamp, logs []WireLog) (uint64, []WireLog, error) {
	stamped := make([]WireLog, len(logs))
	for i, l := range logs {
		l.ID = w.proposeIndex
		w.proposeIndex++
		l.Term = term
		l.TsPhysical = ts.Physical
		l.TsCounter = ts.Counter
		entry := fromWire(l)
		if err := w.store.Propose(w.partition, entry); err != nil {
			return w.proposeIndex, nil, fmt.Errorf("raft: propose failed at id=%d: %w", l.ID, err)
		}
		stamped[i] = l
	}
	return w.proposeIndex, stamped, nil
}

func (w *WALWorker) commit(term uint64, logs []WireLog) (uint64, error) {
	for _, l := range logs {
		entry := fromWire(l)
		entry.Type = entry.Type.CommittedForm()
		entry.Term = term
		if err := w.store.Commit(w.partition, entry); err != nil {
			return w.commitIndex, fmt.Errorf("raft: commit failed at id=%d: %w", l.ID, err)
		}
		if entry.ID+1 > w.commitIndex {
			w.commitIndex = entry.ID + 1
		}
	}
	return w.commitIndex, nil
}

func (w *WALWorker) proposeOrCommit(term uint64, ts hlc.Timestamp, logs []WireLog) (int64, error) {
	sorted := append([]WireLog(nil), logs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	nextPropose := w.proposeIndex
	nextCommit := w.commitIndex

	acceptable := make([]WireLog, 0, len(sorted))
	for _, l := range sorted {
		if !l.Type.IsCommitted() {
			if l.ID != nextPropose {
				continue
			}
			nextPropose++
			acceptable = append(acceptable, l)
			continue
		}
		if l.ID != nextCommit {
			continue
		}
		nextCommit++
		acceptable = append(acceptable, l)
	}

	if len(acceptable) == 0 {
		return -1, nil
	}

	for _, l := range acceptable {
		entry := fromWire(l)
		entry.Term = term
		if entry.TimePhy == 0 && entry.TimeCtr == 0 {
			entry.TimePhy = ts.Physical
			entry.TimeCtr = ts.Counter
		}

		var err error
		if entry.Type.IsCommitted() {
			err = w.store.Commit(w.partition, entry)
		} else {
			err = w.store.Propose(w.partition, entry)
		}
		if err != nil {
			return -1, fmt.Errorf("raft: proposeOrCommit failed at id=%d: %w", l.ID, err)
		}

		if entry.Type.IsCommitted() {
			w.commitIndex = entry.ID + 1
			if ok := w.applier.OnReplicationReceived(entry.LogType, entry.Data); !ok {
				w.applier.OnReplicationError(entry)
			}
		} else {
			w.proposeIndex = entry.ID + 1
		}
	}

	return int64(w.commitIndex), nil
}

func (w *WALWorker) getRange(fromID uint64) ([]WireLog, error) {
	entries, err := w.store.ReadLogsRange(w.partition, fromID)
	if err != nil {
		return nil, fmt.Errorf("raft: get range failed: %w", err)
	}
	wire := make([]WireLog, len(entries))
	for i, e := range entries {
		wire[i] = toWire(e)
	}
	return wire, nil
}
