package rafter

import (
	"testing"
	"time"

	"raftcore/raft"
)

type recordingRouter struct {
	votes    []raft.RequestVotesWire
	appends  []raft.AppendLogsWire
}

func (r *recordingRouter) HandleRequestVote(partition int, req raft.RequestVotesWire) {
	r.votes = append(r.votes, req)
}
func (r *recordingRouter) HandleReceiveVote(partition int, vote raft.VoteWire) {}
func (r *recordingRouter) HandleAppendLogs(partition int, req raft.AppendLogsWire) {
	r.appends = append(r.appends, req)
}
func (r *recordingRouter) HandleCompleteAppendLogs(partition int, req raft.CompleteAppendLogsWire) {}

func TestGobCodecRoundTrips(t *testing.T) {
	codec := gobCodec{}
	original := raft.RequestVotesWire{Partition: 2, Term: 9, Endpoint: "node-x", MaxLogID: 42}

	data, err := codec.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded raft.RequestVotesWire
	if err := codec.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if decoded != original {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, original)
	}
}

func TestListenerAndClientRoundTrip(t *testing.T) {
	router := &recordingRouter{}
	listener := NewListener(router)
	if err := listener.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer listener.Stop()

	address := listener.listener.Addr().String()
	client := NewClient(2 * time.Second)
	defer client.Close()

	req := raft.RequestVotesWire{Partition: 1, Term: 5, Endpoint: "node-a", MaxLogID: 10}
	if err := client.RequestVotes(address, req); err != nil {
		t.Fatalf("RequestVotes failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(router.votes) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if len(router.votes) != 1 || router.votes[0].Term != 5 {
		t.Fatalf("router did not receive expected vote request: %+v", router.votes)
	}
}

func TestListenerAndClientAppendLogsRoundTrip(t *testing.T) {
	router := &recordingRouter{}
	listener := NewListener(router)
	if err := listener.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	defer listener.Stop()

	address := listener.listener.Addr().String()
	client := NewClient(2 * time.Second)
	defer client.Close()

	req := raft.AppendLogsWire{
		Partition: 3, Term: 1, Endpoint: "leader",
		Logs: []raft.WireLog{{ID: 1, LogType: "put", Data: []byte("v")}},
	}
	if err := client.AppendLogs(address, req); err != nil {
		t.Fatalf("AppendLogs failed: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for len(router.appends) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if len(router.appends) != 1 || len(router.appends[0].Logs) != 1 {
		t.Fatalf("router did not receive expected append: %+v", router.appends)
	}
}
