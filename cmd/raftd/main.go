package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"raftcore/cluster"
	"raftcore/discovery"
	"raftcore/logstore"
	"raftcore/logstore/lsm"
	"raftcore/raft"
	"raftcore/transport"
	"raftcore/transport/httptransport"
	"raftcore/transport/rafter"
)

const defaultRafterTimeout = 5 * time.Second

func main() {
	host := flag.String("host", "localhost", "Host this node advertises and binds to")
	port := flag.Int("port", 8000, "Port this node binds its replication transport to")
	debugPort := flag.Int("debug-port", 0, "Port for the debug HTTP surface (0 disables it)")
	nodeID := flag.String("id", "", "This node's id, must be a key in -peers")
	peersFlag := flag.String("peers", "", "Comma-separated id=host:port pairs for every cluster member, including this one")
	maxPartitions := flag.Int("partitions", 1, "Number of independent raft partitions to run")
	dataDir := flag.String("data", "./data", "Directory for the write-ahead log (ignored with -store=memory)")
	store := flag.String("store", "file", "Log store backend: file, memory, or lsm")
	transportKind := flag.String("transport", "http", "Replication transport: http or rafter")
	flag.Parse()

	if *nodeID == "" {
		log.Fatal("❌ -id is required")
	}

	peers, err := parsePeers(*peersFlag)
	if err != nil {
		log.Fatalf("❌ invalid -peers: %v", err)
	}
	if _, ok := peers[*nodeID]; !ok {
		log.Fatalf("❌ -id %s is not present in -peers", *nodeID)
	}

	logStore, err := openStore(*store, *dataDir)
	if err != nil {
		log.Fatalf("❌ failed to open log store: %v", err)
	}
	defer logStore.Close()

	cfg := raft.DefaultConfig()
	cfg.Host = *host
	cfg.Port = *port
	cfg.MaxPartitions = *maxPartitions

	outbound, newServer, err := buildTransport(*transportKind)
	if err != nil {
		log.Fatalf("❌ %v", err)
	}

	disc := discovery.NewStatic(peers)
	node := cluster.NewNode(cfg, *nodeID, logStore, disc, outbound, newServer, cluster.ReplicationCallbacks{
		OnReplicationReceived: func(logType string, data []byte) bool {
			log.Printf("📝 applied %s (%d bytes)", logType, len(data))
			return true
		},
		OnReplicationRestored: func(logType string, data []byte) bool {
			log.Printf("♻️  replayed %s (%d bytes)", logType, len(data))
			return true
		},
		OnReplicationError: func(entry logstore.LogEntry) {
			log.Printf("❌ replication error on entry id=%d", entry.ID)
		},
	})

	if err := node.JoinCluster(); err != nil {
		log.Fatalf("❌ failed to join cluster: %v", err)
	}
	defer node.Leave()

	var debugSrv *cluster.DebugServer
	if *debugPort != 0 {
		debugSrv = cluster.NewDebugServer(node)
		debugAddr := *host + ":" + strconv.Itoa(*debugPort)
		if err := debugSrv.Start(debugAddr); err != nil {
			log.Fatalf("❌ failed to start debug server: %v", err)
		}
		defer debugSrv.Stop()
		log.Printf("🩺 debug surface listening on %s", debugAddr)
	}

	log.Printf("🚀 raftd node %s up on %s (%d partitions, %s transport)", *nodeID, node.Endpoint(), *maxPartitions, *transportKind)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("🛑 shutting down")
}

func parsePeers(flagValue string) (map[string]string, error) {
	peers := make(map[string]string)
	if strings.TrimSpace(flagValue) == "" {
		return peers, nil
	}
	for _, pair := range strings.Split(flagValue, ",") {
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
			return nil, fmt.Errorf("expected id=host:port, got %q", pair)
		}
		peers[parts[0]] = parts[1]
	}
	return peers, nil
}

func openStore(kind, dataDir string) (logstore.Store, error) {
	switch kind {
	case "memory":
		return logstore.NewMemStore(), nil
	case "file":
		return logstore.NewFileStore(dataDir)
	case "lsm":
		return lsm.NewStore(dataDir)
	default:
		return nil, fmt.Errorf("unsupported -store %q, want file, memory, or lsm", kind)
	}
}

func buildTransport(kind string) (transport.Transport, func(transport.Router) transport.Server, error) {
	switch kind {
	case "http":
		client := httptransport.NewClient()
		return client, func(router transport.Router) transport.Server {
			return httptransport.NewServer(router)
		}, nil
	case "rafter":
		client := rafter.NewClient(defaultRafterTimeout)
		return client, func(router transport.Router) transport.Server {
			return rafter.NewListener(router)
		}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported -transport %q, want http or rafter", kind)
	}
}
