package raft

// Sender is the outbound half of the transport contract the Responder
// depends on. A concrete transport.Transport satisfies this
// structurally; raft never imports the transport package, keeping the
// dependency direction transport -> raft, not the reverse.
type Sender interface {
	SendRequestVotes(endpoint string, req RequestVotesWire)
	SendVote(endpoint string, req VoteWire)
	SendAppendLogs(endpoint string, req AppendLogsWire)
	SendCompleteAppendLogs(endpoint string, req CompleteAppendLogsWire)
}

type responderSendVoteMsg struct {
	endpoint string
	req      VoteWire
}

type responderSendRequestVotesMsg struct {
	endpoint string
	req      RequestVotesWire
}

type responderSendAppendLogsMsg struct {
	endpoint string
	req      AppendLogsWire
}

type responderSendCompleteAppendLogsMsg struct {
	endpoint string
	req      CompleteAppendLogsWire
}

// Responder owns no Raft state. It consumes outbound send requests and
// hands them to the transport, decoupling SM progress from network
// latency: the SM never blocks on a Responder send, and the wire-level
// response (if any) comes back later as an ordinary inbound mailbox
// message (ReceiveVote, CompleteAppendLogs), not as a reply to this
// call.
type Responder struct {
	sender  Sender
	logger  *Logger
	mailbox chan any
}

// NewResponder constructs a Responder for partition, posting outbound
// sends through sender.
func NewResponder(partition int, sender Sender) *Responder {
	return &Responder{
		sender:  sender,
		logger:  NewLogger(partition, "responder", INFO),
		mailbox: make(chan any, 256),
	}
}

// Run is the Responder's single-consumer loop.
func (r *Responder) Run() {
	for msg := range r.mailbox {
		switch m := msg.(type) {
		case responderSendVoteMsg:
			r.sender.SendVote(m.endpoint, m.req)
		case responderSendRequestVotesMsg:
			r.sender.SendRequestVotes(m.endpoint, m.req)
		case responderSendAppendLogsMsg:
			r.sender.SendAppendLogs(m.endpoint, m.req)
		case responderSendCompleteAppendLogsMsg:
			r.sender.SendCompleteAppendLogs(m.endpoint, m.req)
		case shutdownMsg:
			m.done <- struct{}{}
			return
		}
	}
}

func (r *Responder) Stop() {
	done := make(chan struct{})
	r.mailbox <- shutdownMsg{done: done}
	<-done
}

func (r *Responder) SendVote(endpoint string, req VoteWire) {
	r.mailbox <- responderSendVoteMsg{endpoint: endpoint, req: req}
}

func (r *Responder) SendRequestVotes(endpoint string, req RequestVotesWire) {
	r.mailbox <- responderSendRequestVotesMsg{endpoint: endpoint, req: req}
}

func (r *Responder) SendAppendLogs(endpoint string, req AppendLogsWire) {
	r.mailbox <- responderSendAppendLogsMsg{endpoint: endpoint, req: req}
}

func (r *Responder) SendCompleteAppendLogs(endpoint string, req CompleteAppendLogsWire) {
	r.mailbox <- responderSendCompleteAppendLogsMsg{endpoint: endpoint, req: req}
}
