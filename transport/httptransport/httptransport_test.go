package httptransport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"raftcore/raft"
)

// fakeRouter records every inbound call it receives, for assertions.
type fakeRouter struct {
	requestVotes       []raft.RequestVotesWire
	receiveVotes       []raft.VoteWire
	appendLogs         []raft.AppendLogsWire
	completeAppendLogs []raft.CompleteAppendLogsWire
}

func (f *fakeRouter) HandleRequestVote(partition int, req raft.RequestVotesWire) {
	f.requestVotes = append(f.requestVotes, req)
}

func (f *fakeRouter) HandleReceiveVote(partition int, vote raft.VoteWire) {
	f.receiveVotes = append(f.receiveVotes, vote)
}

func (f *fakeRouter) HandleAppendLogs(partition int, req raft.AppendLogsWire) {
	f.appendLogs = append(f.appendLogs, req)
}

func (f *fakeRouter) HandleCompleteAppendLogs(partition int, req raft.CompleteAppendLogsWire) {
	f.completeAppendLogs = append(f.completeAppendLogs, req)
}

func newTestServerAndClient(t *testing.T, router *fakeRouter) (*Client, string) {
	t.Helper()
	srv := NewServer(router)
	httpSrv := httptest.NewServer(srv.mux)
	t.Cleanup(httpSrv.Close)

	client := NewClient()
	client.baseURL = func(endpoint string) string { return httpSrv.URL }
	return client, strings.TrimPrefix(httpSrv.URL, "http://")
}

func TestClientRequestVotesReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	client, endpoint := newTestServerAndClient(t, router)

	req := raft.RequestVotesWire{Partition: 3, Term: 7, Endpoint: "node-a"}
	if err := client.RequestVotes(endpoint, req); err != nil {
		t.Fatalf("RequestVotes failed: %v", err)
	}

	if len(router.requestVotes) != 1 || router.requestVotes[0].Term != 7 {
		t.Fatalf("router did not receive expected request: %+v", router.requestVotes)
	}
}

func TestClientVoteReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	client, endpoint := newTestServerAndClient(t, router)

	vote := raft.VoteWire{Partition: 1, Term: 2, Endpoint: "node-b"}
	if err := client.Vote(endpoint, vote); err != nil {
		t.Fatalf("Vote failed: %v", err)
	}

	if len(router.receiveVotes) != 1 || router.receiveVotes[0].Endpoint != "node-b" {
		t.Fatalf("router did not receive expected vote: %+v", router.receiveVotes)
	}
}

func TestClientAppendLogsReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	client, endpoint := newTestServerAndClient(t, router)

	req := raft.AppendLogsWire{
		Partition: 0, Term: 4, Endpoint: "leader",
		Logs: []raft.WireLog{{ID: 1, LogType: "put", Data: []byte("v")}},
	}
	if err := client.AppendLogs(endpoint, req); err != nil {
		t.Fatalf("AppendLogs failed: %v", err)
	}

	if len(router.appendLogs) != 1 || len(router.appendLogs[0].Logs) != 1 {
		t.Fatalf("router did not receive expected append: %+v", router.appendLogs)
	}
}

func TestClientCompleteAppendLogsReachesRouter(t *testing.T) {
	router := &fakeRouter{}
	client, endpoint := newTestServerAndClient(t, router)

	req := raft.CompleteAppendLogsWire{Partition: 2, Endpoint: "follower", Status: raft.Success, CommittedIndex: 5}
	if err := client.CompleteAppendLogs(endpoint, req); err != nil {
		t.Fatalf("CompleteAppendLogs failed: %v", err)
	}

	if len(router.completeAppendLogs) != 1 || router.completeAppendLogs[0].CommittedIndex != 5 {
		t.Fatalf("router did not receive expected ack: %+v", router.completeAppendLogs)
	}
}

func TestClientReturnsErrorOnUnreachableEndpoint(t *testing.T) {
	client := NewClient()
	client.http.Timeout = 200 * time.Millisecond

	err := client.RequestVotes("127.0.0.1:1", raft.RequestVotesWire{})
	if err == nil {
		t.Fatal("expected an error calling an unreachable endpoint")
	}
}
