package cluster

import (
	"encoding/json"
	"fmt"
	"net/http"

	"raftcore/hlc"
)

// DebugServer exposes a Node's external surface over HTTP/JSON for
// cmd/raftctl to drive interactively, grounded on the teacher's
// net/http + encoding/json handler style (see transport/httptransport).
// It is diagnostic only: no production client should depend on these
// routes staying stable.
type DebugServer struct {
	node *Node
	http *http.Server
}

// NewDebugServer builds a DebugServer over node.
func NewDebugServer(node *Node) *DebugServer {
	mux := http.NewServeMux()
	d := &DebugServer{node: node}
	mux.HandleFunc("/debug/leader", d.handleLeader)
	mux.HandleFunc("/debug/replicate", d.handleReplicate)
	mux.HandleFunc("/debug/ticket", d.handleTicket)
	d.http = &http.Server{Handler: mux}
	return d
}

// Start listens on address in the background.
func (d *DebugServer) Start(address string) error {
	d.http.Addr = address
	go d.http.ListenAndServe()
	return nil
}

// Stop closes the listener.
func (d *DebugServer) Stop() {
	d.http.Close()
}

type leaderResponse struct {
	Leader bool `json:"leader"`
}

func (d *DebugServer) handleLeader(w http.ResponseWriter, r *http.Request) {
	partition, err := partitionParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	leader, err := d.node.AmILeader(partition)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, leaderResponse{Leader: leader})
}

type replicateRequest struct {
	Partition int    `json:"partition"`
	LogType   string `json:"log_type"`
	Data      string `json:"data"`
}

type replicateResponse struct {
	Success    bool   `json:"success"`
	Status     string `json:"status"`
	TsPhysical int64  `json:"ts_physical"`
	TsCounter  uint32 `json:"ts_counter"`
}

func (d *DebugServer) handleReplicate(w http.ResponseWriter, r *http.Request) {
	var req replicateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	success, status, ts, err := d.node.ReplicateLogs(req.Partition, req.LogType, [][]byte{[]byte(req.Data)})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, replicateResponse{
		Success:    success,
		Status:     status.String(),
		TsPhysical: ts.Physical,
		TsCounter:  ts.Counter,
	})
}

type ticketResponse struct {
	State  string `json:"state"`
	LastID uint64 `json:"last_id"`
}

func (d *DebugServer) handleTicket(w http.ResponseWriter, r *http.Request) {
	partition, err := partitionParam(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var physical int64
	var counter uint32
	if _, err := fmt.Sscanf(r.URL.Query().Get("physical"), "%d", &physical); err != nil {
		http.Error(w, "invalid physical param", http.StatusBadRequest)
		return
	}
	if _, err := fmt.Sscanf(r.URL.Query().Get("counter"), "%d", &counter); err != nil {
		http.Error(w, "invalid counter param", http.StatusBadRequest)
		return
	}

	state, lastID, err := d.node.GetTicketState(partition, hlc.Timestamp{Physical: physical, Counter: counter})
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, ticketResponse{State: state.String(), LastID: lastID})
}

func partitionParam(r *http.Request) (int, error) {
	var partition int
	if _, err := fmt.Sscanf(r.URL.Query().Get("partition"), "%d", &partition); err != nil {
		return 0, fmt.Errorf("invalid partition param: %w", err)
	}
	return partition, nil
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
