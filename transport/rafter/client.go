package rafter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"raftcore/raft"
)

// Client is a transport.Transport backed by Rafter gRPC connections,
// one pooled *grpc.ClientConn per peer, grounded on raft/rpc_client.go's
// GRPCRaftClient connection pool.
type Client struct {
	mu      sync.Mutex
	conns   map[string]*grpc.ClientConn
	timeout time.Duration
}

// NewClient builds a Client with a per-call RPC timeout.
func NewClient(timeout time.Duration) *Client {
	return &Client{conns: make(map[string]*grpc.ClientConn), timeout: timeout}
}

func (c *Client) getConn(address string) (*grpc.ClientConn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if conn, ok := c.conns[address]; ok {
		return conn, nil
	}

	conn, err := grpc.NewClient(address, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("rafter: dial %s failed: %w", address, err)
	}
	c.conns[address] = conn
	return conn, nil
}

func (c *Client) invoke(address, method string, req, reply any) error {
	conn, err := c.getConn(address)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	fullMethod := "/" + serviceName + "/" + method
	if err := conn.Invoke(ctx, fullMethod, req, reply, grpc.CallContentSubtype(Name)); err != nil {
		return fmt.Errorf("rafter: %s to %s failed: %w", method, address, err)
	}
	return nil
}

func (c *Client) RequestVotes(endpoint string, req raft.RequestVotesWire) error {
	return c.invoke(endpoint, "RequestVotes", &req, new(Ack))
}

func (c *Client) Vote(endpoint string, req raft.VoteWire) error {
	return c.invoke(endpoint, "Vote", &req, new(Ack))
}

func (c *Client) AppendLogs(endpoint string, req raft.AppendLogsWire) error {
	return c.invoke(endpoint, "AppendLogs", &req, new(Ack))
}

func (c *Client) CompleteAppendLogs(endpoint string, req raft.CompleteAppendLogsWire) error {
	return c.invoke(endpoint, "CompleteAppendLogs", &req, new(Ack))
}

// Close tears down every pooled connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, conn := range c.conns {
		conn.Close()
	}
}
