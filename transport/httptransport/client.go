package httptransport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"raftcore/raft"
)

// Client implements transport.Transport over HTTP/JSON POSTs, pooling
// one *http.Client (which itself pools TCP connections per host).
type Client struct {
	http    *http.Client
	baseURL func(endpoint string) string
}

// NewClient builds a Client with a 10s transport-layer timeout. The
// same timeout applies to every call; votes are not given a shorter
// one than AppendLogs.
func NewClient() *Client {
	return &Client{
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: func(endpoint string) string { return "http://" + endpoint },
	}
}

func (c *Client) post(endpoint, path string, body any) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("httptransport: encode failed: %w", err)
	}

	resp, err := c.http.Post(c.baseURL(endpoint)+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return fmt.Errorf("httptransport: post %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("httptransport: %s returned status %d", path, resp.StatusCode)
	}
	return nil
}

func (c *Client) RequestVotes(endpoint string, req raft.RequestVotesWire) error {
	return c.post(endpoint, PathRequestVote, req)
}

func (c *Client) Vote(endpoint string, req raft.VoteWire) error {
	return c.post(endpoint, PathVote, req)
}

func (c *Client) AppendLogs(endpoint string, req raft.AppendLogsWire) error {
	return c.post(endpoint, PathAppendLogs, req)
}

func (c *Client) CompleteAppendLogs(endpoint string, req raft.CompleteAppendLogsWire) error {
	return c.post(endpoint, PathCompleteAppendLogs, req)
}
