// Package cluster wires a process's partitions, shared clock, log
// store, discovery backend and transport into the external surface
// spec.md §6 names, grounded on the teacher's cmd/server/main.go
// bootstrap sequence and cluster/cluster_client.go's connection and
// registration bookkeeping.
package cluster

import (
	"fmt"
	"log"

	"raftcore/discovery"
	"raftcore/hlc"
	"raftcore/logstore"
	"raftcore/raft"
	"raftcore/transport"
)

// ReplicationCallbacks is the outer application's hook into the
// replication engine's apply path: OnReplicationReceived is invoked as
// committed entries are applied in steady state, OnReplicationRestored
// during WAL recovery replay, and OnReplicationError when a store
// operation fails partway through either path. A nil field is treated
// as a no-op that reports success.
type ReplicationCallbacks struct {
	OnReplicationReceived func(logType string, data []byte) bool
	OnReplicationRestored func(logType string, data []byte) bool
	OnReplicationError    func(entry logstore.LogEntry)
}

// callbackApplier adapts a ReplicationCallbacks value into raft.Applier.
type callbackApplier struct {
	cb ReplicationCallbacks
}

func (a callbackApplier) OnReplicationReceived(logType string, data []byte) bool {
	if a.cb.OnReplicationReceived == nil {
		return true
	}
	return a.cb.OnReplicationReceived(logType, data)
}

func (a callbackApplier) OnReplicationRestored(logType string, data []byte) bool {
	if a.cb.OnReplicationRestored == nil {
		return true
	}
	return a.cb.OnReplicationRestored(logType, data)
}

func (a callbackApplier) OnReplicationError(entry logstore.LogEntry) {
	if a.cb.OnReplicationError != nil {
		a.cb.OnReplicationError(entry)
	}
}

// Node is a single process's view of the cluster: MaxPartitions
// independent raft.Partitions sharing one HLC clock and one log store,
// a Discovery backend tracking cluster membership, and a Transport
// pair for talking to peers and serving inbound calls.
type Node struct {
	cfg    raft.Config
	nodeID string

	clock     *hlc.Clock
	store     logstore.Store
	discovery discovery.Discovery
	outbound  transport.Transport
	newServer func(transport.Router) transport.Server
	server    transport.Server
	callbacks ReplicationCallbacks

	partitions []*raft.Partition
}

// NewNode constructs a Node. newServer builds the concrete transport
// server (httptransport.NewServer or rafter.NewListener) bound to this
// Node as its transport.Router, deferred until JoinCluster since the
// Router it dispatches onto is the Node itself.
func NewNode(cfg raft.Config, nodeID string, store logstore.Store, disc discovery.Discovery, outbound transport.Transport, newServer func(transport.Router) transport.Server, callbacks ReplicationCallbacks) *Node {
	return &Node{
		cfg:       cfg,
		nodeID:    nodeID,
		clock:     hlc.NewClock(),
		store:     store,
		discovery: disc,
		outbound:  outbound,
		newServer: newServer,
		callbacks: callbacks,
	}
}

// Endpoint returns the local node's address, as registered with
// discovery and addressed by peers on the wire.
func (n *Node) Endpoint() string {
	return n.cfg.Endpoint()
}

// JoinCluster spawns every partition's three actors, starts the
// transport server, registers the local node with discovery, and
// pushes the current peer set to every partition.
func (n *Node) JoinCluster() error {
	applier := callbackApplier{cb: n.callbacks}
	sender := transport.NewSender(n.outbound)

	n.partitions = make([]*raft.Partition, n.cfg.MaxPartitions)
	for i := 0; i < n.cfg.MaxPartitions; i++ {
		p := raft.NewPartition(i, n.cfg, n.clock, n.store, applier, sender, n.Endpoint())
		p.Start()
		n.partitions[i] = p
	}

	n.server = n.newServer(n)
	if err := n.server.Start(n.Endpoint()); err != nil {
		return fmt.Errorf("cluster: starting transport server failed: %w", err)
	}

	if err := n.discovery.Register(discovery.NodeInfo{NodeID: n.nodeID, Endpoint: n.Endpoint()}); err != nil {
		return fmt.Errorf("cluster: registering with discovery failed: %w", err)
	}

	log.Printf("🚀 node %s joined cluster at %s with %d partitions", n.nodeID, n.Endpoint(), n.cfg.MaxPartitions)
	return n.UpdateNodes()
}

// Leave stops every partition's actors and the transport server. It
// does not unregister from discovery; callers that want the node
// removed from the membership view should call that explicitly.
func (n *Node) Leave() {
	for _, p := range n.partitions {
		p.Stop()
	}
	if n.server != nil {
		n.server.Stop()
	}
}

// UpdateNodes re-reads the discovery backend and pushes the resulting
// peer set (every registered endpoint other than the local one) to
// every partition's state machine.
func (n *Node) UpdateNodes() error {
	endpoints, err := n.discovery.GetNodes()
	if err != nil {
		return fmt.Errorf("cluster: reading discovery nodes failed: %w", err)
	}

	local := n.Endpoint()
	peers := make([]string, 0, len(endpoints))
	for _, e := range endpoints {
		if e != local {
			peers = append(peers, e)
		}
	}

	for _, p := range n.partitions {
		p.UpdatePeers(peers)
	}
	return nil
}

func (n *Node) partitionAt(partition int) (*raft.Partition, error) {
	if partition < 0 || partition >= len(n.partitions) {
		return nil, fmt.Errorf("cluster: partition %d out of range [0,%d)", partition, len(n.partitions))
	}
	return n.partitions[partition], nil
}

// AmILeader blocks until partition's state machine reports its role.
func (n *Node) AmILeader(partition int) (bool, error) {
	p, err := n.partitionAt(partition)
	if err != nil {
		return false, err
	}
	role, _ := p.GetNodeState()
	return role == raft.Leader, nil
}

// AmILeaderQuick reads partition's last-observed role from an atomic
// cache; it never blocks and may lag by up to one CheckLeader tick.
func (n *Node) AmILeaderQuick(partition int) (bool, error) {
	p, err := n.partitionAt(partition)
	if err != nil {
		return false, err
	}
	return p.AmILeaderQuick(), nil
}

// ReplicateLogs proposes batch to partition's leader for quorum
// replication. Returns immediately; commit is observed asynchronously
// via GetTicketState.
func (n *Node) ReplicateLogs(partition int, logType string, batch [][]byte) (bool, raft.RaftOperationStatus, hlc.Timestamp, error) {
	p, err := n.partitionAt(partition)
	if err != nil {
		return false, raft.Errored, hlc.Timestamp{}, err
	}
	success, status, ts := p.ReplicateLogs(logType, batch)
	return success, status, ts, nil
}

// ReplicateCheckpoint proposes a single synthetic checkpoint entry on
// partition's leader.
func (n *Node) ReplicateCheckpoint(partition int) (bool, raft.RaftOperationStatus, hlc.Timestamp, error) {
	p, err := n.partitionAt(partition)
	if err != nil {
		return false, raft.Errored, hlc.Timestamp{}, err
	}
	success, status, ts := p.ReplicateCheckpoint()
	return success, status, ts, nil
}

// GetTicketState polls a proposal ticket's commit lifecycle state.
func (n *Node) GetTicketState(partition int, ts hlc.Timestamp) (raft.TicketState, uint64, error) {
	p, err := n.partitionAt(partition)
	if err != nil {
		return raft.TicketNotFound, 0, err
	}
	state, lastID := p.GetTicketState(ts)
	return state, lastID, nil
}

// The four methods below implement transport.Router, demultiplexing an
// inbound wire call onto the addressed partition's mailbox. An
// out-of-range partition is logged and dropped rather than returned as
// an error: Router has no error return, matching the fire-and-forget
// contract spec.md §4.3 describes for the transport boundary.

func (n *Node) HandleRequestVote(partition int, req raft.RequestVotesWire) {
	p, err := n.partitionAt(partition)
	if err != nil {
		log.Printf("⚠️  dropped RequestVotes for unknown partition %d: %v", partition, err)
		return
	}
	p.HandleRequestVote(req)
}

func (n *Node) HandleReceiveVote(partition int, vote raft.VoteWire) {
	p, err := n.partitionAt(partition)
	if err != nil {
		log.Printf("⚠️  dropped Vote for unknown partition %d: %v", partition, err)
		return
	}
	p.HandleReceiveVote(vote)
}

func (n *Node) HandleAppendLogs(partition int, req raft.AppendLogsWire) {
	p, err := n.partitionAt(partition)
	if err != nil {
		log.Printf("⚠️  dropped AppendLogs for unknown partition %d: %v", partition, err)
		return
	}
	p.HandleAppendLogs(req)
}

func (n *Node) HandleCompleteAppendLogs(partition int, req raft.CompleteAppendLogsWire) {
	p, err := n.partitionAt(partition)
	if err != nil {
		log.Printf("⚠️  dropped CompleteAppendLogs for unknown partition %d: %v", partition, err)
		return
	}
	p.HandleCompleteAppendLogs(req)
}
