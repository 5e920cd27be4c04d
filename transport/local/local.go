// Package local provides an in-process transport for tests: nodes are
// registered by endpoint and calls are dispatched directly to their
// transport.Router, skipping sockets entirely. Grounded on
// raft/election_test.go's createTestCluster, which wires test nodes to
// each other through plain Go maps rather than a network.
package local

import (
	"fmt"
	"sync"

	"raftcore/raft"
	"raftcore/transport"
)

// Network is a shared registry of endpoint -> Router, standing in for
// a real network in tests and in-process demos.
type Network struct {
	mu      sync.RWMutex
	routers map[string]transport.Router
}

// NewNetwork constructs an empty in-process network.
func NewNetwork() *Network {
	return &Network{routers: make(map[string]transport.Router)}
}

// Register makes endpoint reachable, dispatching to router.
func (n *Network) Register(endpoint string, router transport.Router) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.routers[endpoint] = router
}

// Unregister makes endpoint unreachable, simulating a crashed or
// partitioned node: calls to it return an error instead of delivering.
func (n *Network) Unregister(endpoint string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.routers, endpoint)
}

func (n *Network) lookup(endpoint string) (transport.Router, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	r, ok := n.routers[endpoint]
	if !ok {
		return nil, fmt.Errorf("local: endpoint %s not reachable", endpoint)
	}
	return r, nil
}

// Transport is a transport.Transport backed by a Network.
type Transport struct {
	network *Network
}

// NewTransport builds a Transport over network.
func NewTransport(network *Network) *Transport {
	return &Transport{network: network}
}

func (t *Transport) RequestVotes(endpoint string, req raft.RequestVotesWire) error {
	r, err := t.network.lookup(endpoint)
	if err != nil {
		return err
	}
	r.HandleRequestVote(req.Partition, req)
	return nil
}

func (t *Transport) Vote(endpoint string, req raft.VoteWire) error {
	r, err := t.network.lookup(endpoint)
	if err != nil {
		return err
	}
	r.HandleReceiveVote(req.Partition, req)
	return nil
}

func (t *Transport) AppendLogs(endpoint string, req raft.AppendLogsWire) error {
	r, err := t.network.lookup(endpoint)
	if err != nil {
		return err
	}
	r.HandleAppendLogs(req.Partition, req)
	return nil
}

func (t *Transport) CompleteAppendLogs(endpoint string, req raft.CompleteAppendLogsWire) error {
	r, err := t.network.lookup(endpoint)
	if err != nil {
		return err
	}
	r.HandleCompleteAppendLogs(req.Partition, req)
	return nil
}

// Server registers a Router under an address on a Network, implementing
// transport.Server without any real listener.
type Server struct {
	network *Network
	router  transport.Router
	address string
}

// NewServer builds a Server that will register router under whatever
// address Start is called with.
func NewServer(network *Network, router transport.Router) *Server {
	return &Server{network: network, router: router}
}

func (s *Server) Start(address string) error {
	s.address = address
	s.network.Register(address, s.router)
	return nil
}

func (s *Server) Stop() {
	s.network.Unregister(s.address)
}
