package raft

import (
	"time"

	"raftcore/hlc"
)

// ticketTable is an ordered-by-HLC map of active proposals, letting
// expiration walk the oldest-first prefix. Grounded on the teacher's
// HintedHandoff age-based cleanup (CleanupOldHints walking a slice and
// dropping anything past maxAge), generalized from "replay to an
// unavailable node" to "forget a ticket nobody can still be polling".
type ticketTable struct {
	byTs    map[hlc.Timestamp]*ProposalTicket
	order   []hlc.Timestamp
	maxAge  time.Duration
	created map[hlc.Timestamp]time.Time
}

func newTicketTable(maxAge time.Duration) *ticketTable {
	return &ticketTable{
		byTs:    make(map[hlc.Timestamp]*ProposalTicket),
		created: make(map[hlc.Timestamp]time.Time),
		maxAge:  maxAge,
	}
}

func (t *ticketTable) Insert(ticket *ProposalTicket) {
	t.byTs[ticket.Ts] = ticket
	t.order = append(t.order, ticket.Ts)
	t.created[ticket.Ts] = time.Now()
}

func (t *ticketTable) Get(ts hlc.Timestamp) (*ProposalTicket, bool) {
	ticket, ok := t.byTs[ts]
	return ticket, ok
}

// Clear drops every active proposal, used on leader step-down per
// spec.md's Follower-transition entry actions.
func (t *ticketTable) Clear() {
	t.byTs = make(map[hlc.Timestamp]*ProposalTicket)
	t.created = make(map[hlc.Timestamp]time.Time)
	t.order = nil
}

// Reap removes tickets older than maxAge, walking the insertion-ordered
// prefix (oldest first) so it can stop as soon as it finds one still
// within the window.
func (t *ticketTable) Reap(now time.Time) int {
	removed := 0
	i := 0
	for ; i < len(t.order); i++ {
		ts := t.order[i]
		createdAt, ok := t.created[ts]
		if !ok {
			continue // already removed by Clear or a direct delete
		}
		if now.Sub(createdAt) < t.maxAge {
			break
		}
		delete(t.byTs, ts)
		delete(t.created, ts)
		removed++
	}
	t.order = t.order[i:]
	return removed
}

func (t *ticketTable) Len() int {
	return len(t.byTs)
}
