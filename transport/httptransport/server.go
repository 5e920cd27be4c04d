// Package httptransport implements the replication transport over
// HTTP/JSON, serving the four RPCs at the paths spec.md §6 names.
package httptransport

import (
	"encoding/json"
	"log"
	"net"
	"net/http"

	"raftcore/raft"
	"raftcore/transport"
)

const (
	PathRequestVote        = "/v1/raft/request-vote"
	PathVote               = "/v1/raft/vote"
	PathAppendLogs         = "/v1/raft/append-logs"
	PathCompleteAppendLogs = "/v1/raft/complete-append-logs"
)

// Server dispatches inbound wire calls to a transport.Router.
type Server struct {
	router   transport.Router
	mux      *http.ServeMux
	listener net.Listener
	http     *http.Server
}

// NewServer constructs a Server that demultiplexes onto router.
func NewServer(router transport.Router) *Server {
	s := &Server{router: router, mux: http.NewServeMux()}
	s.mux.HandleFunc(PathRequestVote, s.handleRequestVote)
	s.mux.HandleFunc(PathVote, s.handleVote)
	s.mux.HandleFunc(PathAppendLogs, s.handleAppendLogs)
	s.mux.HandleFunc(PathCompleteAppendLogs, s.handleCompleteAppendLogs)
	return s
}

// Start listens on address and serves in the background.
func (s *Server) Start(address string) error {
	lis, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	s.listener = lis
	s.http = &http.Server{Handler: s.mux}

	go func() {
		if err := s.http.Serve(lis); err != nil && err != http.ErrServerClosed {
			log.Printf("❌ httptransport server error: %v", err)
		}
	}()
	return nil
}

// Stop closes the listener.
func (s *Server) Stop() {
	if s.http != nil {
		s.http.Close()
	}
}

func (s *Server) handleRequestVote(w http.ResponseWriter, r *http.Request) {
	var req raft.RequestVotesWire
	if !decodeOrReject(w, r, &req) {
		return
	}
	s.router.HandleRequestVote(req.Partition, req)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleVote(w http.ResponseWriter, r *http.Request) {
	var req raft.VoteWire
	if !decodeOrReject(w, r, &req) {
		return
	}
	s.router.HandleReceiveVote(req.Partition, req)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleAppendLogs(w http.ResponseWriter, r *http.Request) {
	var req raft.AppendLogsWire
	if !decodeOrReject(w, r, &req) {
		return
	}
	s.router.HandleAppendLogs(req.Partition, req)
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleCompleteAppendLogs(w http.ResponseWriter, r *http.Request) {
	var req raft.CompleteAppendLogsWire
	if !decodeOrReject(w, r, &req) {
		return
	}
	s.router.HandleCompleteAppendLogs(req.Partition, req)
	w.WriteHeader(http.StatusAccepted)
}

func decodeOrReject(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}
