// Package discovery tracks which endpoints make up a cluster. It is the
// external-facing Discovery collaborator: register a node, and list the
// current set of peers.
package discovery

// NodeInfo describes a single registered cluster member.
type NodeInfo struct {
	NodeID   string
	Endpoint string
}

// Discovery registers the local node and reports the current peer set.
// Implementations need to be safe for concurrent use: UpdateNodes on a
// cluster.Node calls GetNodes from a goroutine separate from the one
// driving Register.
type Discovery interface {
	// Register announces a node to the discovery backend.
	Register(node NodeInfo) error

	// GetNodes returns every endpoint currently registered, including
	// the local one.
	GetNodes() ([]string, error)
}
