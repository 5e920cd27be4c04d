package cluster

import (
	"sync"
	"testing"
	"time"

	"raftcore/discovery"
	"raftcore/logstore"
	"raftcore/raft"
	"raftcore/transport"
	"raftcore/transport/local"
)

// recordingCallbacks counts invocations of each replication hook, safe
// for concurrent use since the WAL worker that drives them runs on its
// own goroutine per partition.
type recordingCallbacks struct {
	mu       sync.Mutex
	received []string
	restored []string
}

func (c *recordingCallbacks) asCallbacks() ReplicationCallbacks {
	return ReplicationCallbacks{
		OnReplicationReceived: func(logType string, data []byte) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.received = append(c.received, logType+":"+string(data))
			return true
		},
		OnReplicationRestored: func(logType string, data []byte) bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.restored = append(c.restored, logType+":"+string(data))
			return true
		},
	}
}

func (c *recordingCallbacks) receivedCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.received)
}

func (c *recordingCallbacks) restoredCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.restored)
}

func testClusterConfig(port int) raft.Config {
	return raft.Config{
		Host:                            "localhost",
		Port:                            port,
		MaxPartitions:                   1,
		StartElectionTimeoutMs:          50,
		EndElectionTimeoutMs:            100,
		StartElectionTimeoutIncrementMs: 10,
		EndElectionTimeoutIncrementMs:   30,
		HeartbeatIntervalMs:             20,
		VotingTimeoutMs:                 80,
		CheckLeaderIntervalMs:           20,
		SlowRaftStateMachineLogMs:       1000,
	}
}

func localServerFactory(network *local.Network) func(transport.Router) transport.Server {
	return func(router transport.Router) transport.Server {
		return local.NewServer(network, router)
	}
}

// buildNode wires a Node over an in-process network, sharing store
// across restarts of the "same" node in S6-style tests (restart is
// simulated by calling Leave then JoinCluster again on a fresh Node
// backed by the same logstore.Store).
func buildNode(nodeID string, port int, store logstore.Store, network *local.Network, peers map[string]string, callbacks ReplicationCallbacks) *Node {
	cfg := testClusterConfig(port)
	disc := discovery.NewStatic(peers)
	outbound := local.NewTransport(network)
	return NewNode(cfg, nodeID, store, disc, outbound, localServerFactory(network), callbacks)
}

func waitForLeader(t *testing.T, nodes []*Node, timeout time.Duration) *Node {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		for _, n := range nodes {
			leader, err := n.AmILeader(0)
			if err == nil && leader {
				return n
			}
		}
		time.Sleep(20 * time.Millisecond)
	}
	return nil
}

// TestTwoNodeClusterJoinAndElect is scenario S1: two nodes join, update
// their peer views, and within a bounded time one reports itself leader
// of partition 0.
func TestTwoNodeClusterJoinAndElect(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8001", "b": "localhost:8002"}

	nodeA := buildNode("a", 8001, logstore.NewMemStore(), network, peers, ReplicationCallbacks{})
	nodeB := buildNode("b", 8002, logstore.NewMemStore(), network, peers, ReplicationCallbacks{})

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}
	defer nodeA.Leave()
	defer nodeB.Leave()

	if leader := waitForLeader(t, []*Node{nodeA, nodeB}, 3*time.Second); leader == nil {
		t.Fatal("no node reported itself leader of partition 0 within the deadline")
	}
}

// seedCommitted writes a Committed entry directly into store, bypassing
// the replication path, so a test can pre-populate a node's WAL before
// it ever joins a cluster.
func seedCommitted(t *testing.T, store logstore.Store, partition int, id, term uint64) {
	t.Helper()
	entry := logstore.LogEntry{ID: id, Term: term, Type: logstore.Committed, LogType: "seed", Data: []byte("seed")}
	if err := store.Commit(partition, entry); err != nil {
		t.Fatalf("seedCommitted(%d,%d): %v", id, term, err)
	}
}

// waitForMaxLogAgreement polls both nodes' partition-0 logs until each
// reports maxLog via get_max_log, or fails the test at the deadline.
func waitForMaxLogAgreement(t *testing.T, stores map[string]logstore.Store, wantMaxLog uint64, timeout time.Duration) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		agree := true
		for _, s := range stores {
			max, err := s.GetMaxLog(0)
			if err != nil || max != wantMaxLog {
				agree = false
				break
			}
		}
		if agree {
			return
		}
		if time.Now().After(deadline) {
			for id, s := range stores {
				max, _ := s.GetMaxLog(0)
				t.Errorf("node %s: get_max_log(0) = %d, want %d", id, max, wantMaxLog)
			}
			t.Fatal("nodes never agreed on get_max_log(0)")
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// TestHighestLogWinsElection is scenario S2: A's store is pre-seeded
// with two committed entries, B's is empty. A must win the election
// since its log is more up to date, and both nodes converge on
// get_max_log(0) == 2.
func TestHighestLogWinsElection(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8041", "b": "localhost:8042"}

	storeA := logstore.NewMemStore()
	storeB := logstore.NewMemStore()
	seedCommitted(t, storeA, 0, 1, 1)
	seedCommitted(t, storeA, 0, 2, 1)

	nodeA := buildNode("a", 8041, storeA, network, peers, ReplicationCallbacks{})
	nodeB := buildNode("b", 8042, storeB, network, peers, ReplicationCallbacks{})

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}
	defer nodeA.Leave()
	defer nodeB.Leave()

	leader := waitForLeader(t, []*Node{nodeA, nodeB}, 5*time.Second)
	if leader == nil {
		t.Fatal("no leader elected")
	}
	if leader != nodeA {
		t.Fatalf("expected node a (the more up-to-date log) to win the election, got %p vs a=%p", leader, nodeA)
	}

	waitForMaxLogAgreement(t, map[string]logstore.Store{"a": storeA, "b": storeB}, 2, 5*time.Second)
}

// TestHighestLogWinsElectionAcrossTerms is scenario S3: A's store has
// two committed entries at term 1 (ids 1,2); B's store has one
// committed entry at a higher term (id 1, term 2). A's log is still
// more up to date by id, so A wins the election and both nodes
// converge on get_max_log(0) == 2.
func TestHighestLogWinsElectionAcrossTerms(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8051", "b": "localhost:8052"}

	storeA := logstore.NewMemStore()
	storeB := logstore.NewMemStore()
	seedCommitted(t, storeA, 0, 1, 1)
	seedCommitted(t, storeA, 0, 2, 1)
	seedCommitted(t, storeB, 0, 1, 2)

	nodeA := buildNode("a", 8051, storeA, network, peers, ReplicationCallbacks{})
	nodeB := buildNode("b", 8052, storeB, network, peers, ReplicationCallbacks{})

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}
	defer nodeA.Leave()
	defer nodeB.Leave()

	leader := waitForLeader(t, []*Node{nodeA, nodeB}, 5*time.Second)
	if leader == nil {
		t.Fatal("no leader elected")
	}
	if leader != nodeA {
		t.Fatalf("expected node a (higher max log id) to win the election, got %p vs a=%p", leader, nodeA)
	}

	waitForMaxLogAgreement(t, map[string]logstore.Store{"a": storeA, "b": storeB}, 2, 5*time.Second)
}

// TestReplicateAndObserve is scenario S4: after a leader is elected,
// ReplicateLogs succeeds, the ticket reaches Committed, and the
// follower's OnReplicationReceived fires exactly once.
func TestReplicateAndObserve(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8011", "b": "localhost:8012"}

	callbacksA := &recordingCallbacks{}
	callbacksB := &recordingCallbacks{}
	nodeA := buildNode("a", 8011, logstore.NewMemStore(), network, peers, callbacksA.asCallbacks())
	nodeB := buildNode("b", 8012, logstore.NewMemStore(), network, peers, callbacksB.asCallbacks())

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}
	defer nodeA.Leave()
	defer nodeB.Leave()

	leader := waitForLeader(t, []*Node{nodeA, nodeB}, 3*time.Second)
	if leader == nil {
		t.Fatal("no leader elected")
	}
	followerCB := callbacksB
	if leader == nodeB {
		followerCB = callbacksA
	}

	ok, status, ticketID, err := leader.ReplicateLogs(0, "Greeting", [][]byte{[]byte("hi")})
	if err != nil || !ok || status != raft.Success {
		t.Fatalf("ReplicateLogs failed: ok=%v status=%s err=%v", ok, status, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, _, err := leader.GetTicketState(0, ticketID)
		if err == nil && state == raft.TicketCommitted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	state, _, _ := leader.GetTicketState(0, ticketID)
	if state != raft.TicketCommitted {
		t.Fatalf("ticket never reached Committed, last state=%s", state)
	}

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && followerCB.receivedCount() == 0 {
		time.Sleep(20 * time.Millisecond)
	}
	if got := followerCB.receivedCount(); got != 1 {
		t.Fatalf("expected OnReplicationReceived exactly once on the follower, got %d", got)
	}
}

// TestNonLeaderRejectsReplicate is scenario S5: a ReplicateLogs call
// against the follower is rejected with NodeIsNotLeader.
func TestNonLeaderRejectsReplicate(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8021", "b": "localhost:8022"}

	nodeA := buildNode("a", 8021, logstore.NewMemStore(), network, peers, ReplicationCallbacks{})
	nodeB := buildNode("b", 8022, logstore.NewMemStore(), network, peers, ReplicationCallbacks{})

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}
	defer nodeA.Leave()
	defer nodeB.Leave()

	nodes := []*Node{nodeA, nodeB}
	leader := waitForLeader(t, nodes, 3*time.Second)
	if leader == nil {
		t.Fatal("no leader elected")
	}
	var follower *Node
	for _, n := range nodes {
		if n != leader {
			follower = n
		}
	}

	ok, status, _, err := follower.ReplicateLogs(0, "x", [][]byte{[]byte("y")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok || status != raft.NodeIsNotLeader {
		t.Fatalf("expected (false, NodeIsNotLeader), got (%v, %s)", ok, status)
	}
}

// TestRestartReplaysCommitted is scenario S6: after a commit, a fresh
// Node built over the same store replays the committed entry through
// OnReplicationRestored exactly once during recovery.
func TestRestartReplaysCommitted(t *testing.T) {
	network := local.NewNetwork()
	peers := map[string]string{"a": "localhost:8031", "b": "localhost:8032"}

	storeA := logstore.NewMemStore()
	storeB := logstore.NewMemStore()

	followerCB := &recordingCallbacks{}
	nodeA := buildNode("a", 8031, storeA, network, peers, ReplicationCallbacks{})
	nodeB := buildNode("b", 8032, storeB, network, peers, followerCB.asCallbacks())

	if err := nodeA.JoinCluster(); err != nil {
		t.Fatalf("node a JoinCluster: %v", err)
	}
	if err := nodeB.JoinCluster(); err != nil {
		t.Fatalf("node b JoinCluster: %v", err)
	}

	leader := waitForLeader(t, []*Node{nodeA, nodeB}, 3*time.Second)
	if leader == nil {
		nodeA.Leave()
		nodeB.Leave()
		t.Fatal("no leader elected")
	}

	ok, status, ticketID, err := leader.ReplicateLogs(0, "Greeting", [][]byte{[]byte("hi")})
	if err != nil || !ok || status != raft.Success {
		nodeA.Leave()
		nodeB.Leave()
		t.Fatalf("ReplicateLogs failed: ok=%v status=%s err=%v", ok, status, err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		state, _, _ := leader.GetTicketState(0, ticketID)
		if state == raft.TicketCommitted {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}

	nodeA.Leave()
	nodeB.Leave()

	restoredA := &recordingCallbacks{}
	restoredB := &recordingCallbacks{}
	network2 := local.NewNetwork()
	nodeA2 := buildNode("a", 8031, storeA, network2, peers, restoredA.asCallbacks())
	nodeB2 := buildNode("b", 8032, storeB, network2, peers, restoredB.asCallbacks())

	if err := nodeA2.JoinCluster(); err != nil {
		t.Fatalf("node a restart JoinCluster: %v", err)
	}
	if err := nodeB2.JoinCluster(); err != nil {
		t.Fatalf("node b restart JoinCluster: %v", err)
	}
	defer nodeA2.Leave()
	defer nodeB2.Leave()

	deadline = time.Now().Add(time.Second)
	for time.Now().Before(deadline) && (restoredA.restoredCount() == 0 || restoredB.restoredCount() == 0) {
		time.Sleep(20 * time.Millisecond)
	}
	if got := restoredA.restoredCount(); got != 1 {
		t.Fatalf("expected OnReplicationRestored exactly once on node a, got %d", got)
	}
	if got := restoredB.restoredCount(); got != 1 {
		t.Fatalf("expected OnReplicationRestored exactly once on node b, got %d", got)
	}
}
