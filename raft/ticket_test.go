package raft

import (
	"testing"
	"time"

	"raftcore/hlc"
)

func TestTicketTableInsertAndGet(t *testing.T) {
	tbl := newTicketTable(time.Minute)
	ts := hlc.Timestamp{Physical: 100, Counter: 1}
	ticket := NewProposalTicket(ts, []WireLog{{ID: 1}}, []string{"peerA", "peerB"})

	tbl.Insert(ticket)

	got, ok := tbl.Get(ts)
	if !ok {
		t.Fatal("expected ticket to be found")
	}
	if got.MaxID != 1 {
		t.Errorf("expected MaxID 1, got %d", got.MaxID)
	}
	if tbl.Len() != 1 {
		t.Errorf("expected table len 1, got %d", tbl.Len())
	}
}

func TestTicketTableGetMissing(t *testing.T) {
	tbl := newTicketTable(time.Minute)
	_, ok := tbl.Get(hlc.Timestamp{Physical: 999})
	if ok {
		t.Error("expected miss for unknown timestamp")
	}
}

func TestTicketTableClear(t *testing.T) {
	tbl := newTicketTable(time.Minute)
	tbl.Insert(NewProposalTicket(hlc.Timestamp{Physical: 1}, nil, []string{"a"}))
	tbl.Insert(NewProposalTicket(hlc.Timestamp{Physical: 2}, nil, []string{"a"}))

	tbl.Clear()

	if tbl.Len() != 0 {
		t.Errorf("expected empty table after Clear, got %d", tbl.Len())
	}
}

func TestTicketTableReapRemovesOldEntriesOldestFirst(t *testing.T) {
	tbl := newTicketTable(30 * time.Millisecond)

	tbl.Insert(NewProposalTicket(hlc.Timestamp{Physical: 1}, nil, []string{"a"}))
	time.Sleep(50 * time.Millisecond)
	tbl.Insert(NewProposalTicket(hlc.Timestamp{Physical: 2}, nil, []string{"a"}))

	removed := tbl.Reap(time.Now())
	if removed != 1 {
		t.Fatalf("expected 1 ticket reaped, got %d", removed)
	}
	if tbl.Len() != 1 {
		t.Errorf("expected 1 ticket remaining, got %d", tbl.Len())
	}
	if _, ok := tbl.Get(hlc.Timestamp{Physical: 2}); !ok {
		t.Error("expected newer ticket to survive reap")
	}
}

func TestProposalTicketAckReachesQuorum(t *testing.T) {
	ticket := NewProposalTicket(hlc.Timestamp{Physical: 1}, nil, []string{"peerA", "peerB"})

	// quorum=2 counts the leader's implicit ack, so one real ack suffices.
	if ticket.Ack("peerA", 2) != true {
		t.Error("expected quorum reached after first ack with quorum=2")
	}
}

func TestProposalTicketAckFromUnexpectedSenderIgnored(t *testing.T) {
	ticket := NewProposalTicket(hlc.Timestamp{Physical: 1}, nil, []string{"peerA"})

	if ticket.Ack("stranger", 2) {
		t.Error("ack from a sender outside Expected should never satisfy quorum")
	}
	if len(ticket.Acked) != 0 {
		t.Error("unexpected sender should not be recorded as acked")
	}
}

func TestQuorumSizeFormula(t *testing.T) {
	cases := []struct {
		peers int
		want  int
	}{
		{0, 2},
		{1, 2},
		{2, 2},
		{3, 2},
		{4, 2},
		{5, 3},
		{6, 3},
		{7, 4},
	}
	for _, c := range cases {
		if got := QuorumSize(c.peers); got != c.want {
			t.Errorf("QuorumSize(%d) = %d, want %d", c.peers, got, c.want)
		}
	}
}
