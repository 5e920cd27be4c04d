package discovery

import (
	"fmt"
	"sync"
)

// Static is an in-memory Discovery seeded from a fixed peer list at
// startup and mutable afterward via Update. It is grounded on the
// teacher's NodeRegistry bookkeeping (register/unregister/list of
// id-to-endpoint entries), with the consistent-hash sharding ring
// dropped: this domain has no key-range sharding to route, only a flat
// set of replication peers.
type Static struct {
	mu    sync.RWMutex
	nodes map[string]string // nodeID -> endpoint
}

// NewStatic creates a Static discovery backend seeded with peers, a map
// of nodeID to endpoint.
func NewStatic(peers map[string]string) *Static {
	nodes := make(map[string]string, len(peers))
	for id, endpoint := range peers {
		nodes[id] = endpoint
	}
	return &Static{nodes: nodes}
}

// Register adds (or updates) a single node's endpoint.
func (s *Static) Register(node NodeInfo) error {
	if node.NodeID == "" {
		return fmt.Errorf("discovery: node id must not be empty")
	}
	if node.Endpoint == "" {
		return fmt.Errorf("discovery: endpoint must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes[node.NodeID] = node.Endpoint
	return nil
}

// Unregister removes a node. Returns an error if the node was never
// registered.
func (s *Static) Unregister(nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[nodeID]; !ok {
		return fmt.Errorf("discovery: node %s not registered", nodeID)
	}
	delete(s.nodes, nodeID)
	return nil
}

// GetNodes returns every registered endpoint. Order is not significant.
func (s *Static) GetNodes() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	endpoints := make([]string, 0, len(s.nodes))
	for _, endpoint := range s.nodes {
		endpoints = append(endpoints, endpoint)
	}
	return endpoints, nil
}

// Update replaces the full peer set in one step, used when the outer
// application wants to push a fresh membership list rather than adding
// nodes one at a time.
func (s *Static) Update(peers map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nodes = make(map[string]string, len(peers))
	for id, endpoint := range peers {
		s.nodes[id] = endpoint
	}
}
