package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strconv"
	"strings"
)

func main() {
	server := flag.String("server", "localhost:9000", "Debug HTTP address of the raftd node to drive")
	flag.Parse()

	printBanner()
	log.Printf("📡 driving node at: %s", *server)
	printHelp()

	scanner := bufio.NewScanner(os.Stdin)
	client := &http.Client{}

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := strings.ToUpper(parts[0])

		switch cmd {
		case "LEADER":
			if len(parts) != 2 {
				fmt.Println("Usage: LEADER <partition>")
				continue
			}
			getLeader(client, *server, parts[1])

		case "REPLICATE":
			if len(parts) < 4 {
				fmt.Println("Usage: REPLICATE <partition> <log-type> <data...>")
				continue
			}
			replicate(client, *server, parts[1], parts[2], strings.Join(parts[3:], " "))

		case "TICKET":
			if len(parts) != 4 {
				fmt.Println("Usage: TICKET <partition> <ts-physical> <ts-counter>")
				continue
			}
			getTicket(client, *server, parts[1], parts[2], parts[3])

		case "QUIT", "EXIT":
			fmt.Println("bye")
			return

		default:
			fmt.Println("Unknown command. Available: LEADER, REPLICATE, TICKET, QUIT")
		}
	}

	if err := scanner.Err(); err != nil {
		log.Fatalf("❌ error reading input: %v", err)
	}
}

func printBanner() {
	fmt.Println("=====================================")
	fmt.Println(" raftctl — replication debug console")
	fmt.Println("=====================================")
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  LEADER <partition>                        - check if the node is leader")
	fmt.Println("  REPLICATE <partition> <log-type> <data>   - propose a log entry")
	fmt.Println("  TICKET <partition> <ts-physical> <ts-counter> - poll a proposal's commit state")
	fmt.Println("  QUIT                                      - exit")
	fmt.Println()
}

func getLeader(client *http.Client, server, partition string) {
	resp, err := client.Get(fmt.Sprintf("http://%s/debug/leader?partition=%s", server, partition))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Leader bool `json:"leader"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("leader: %v\n", out.Leader)
}

func replicate(client *http.Client, server, partition, logType, data string) {
	p, err := strconv.Atoi(partition)
	if err != nil {
		fmt.Printf("Error: invalid partition %q\n", partition)
		return
	}

	body, _ := json.Marshal(map[string]any{
		"partition": p,
		"log_type":  logType,
		"data":      data,
	})

	resp, err := client.Post(fmt.Sprintf("http://%s/debug/replicate", server), "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		Success    bool   `json:"success"`
		Status     string `json:"status"`
		TsPhysical int64  `json:"ts_physical"`
		TsCounter  uint32 `json:"ts_counter"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("success=%v status=%s ticket=(%d,%d)\n", out.Success, out.Status, out.TsPhysical, out.TsCounter)
}

func getTicket(client *http.Client, server, partition, tsPhysical, tsCounter string) {
	url := fmt.Sprintf("http://%s/debug/ticket?partition=%s&physical=%s&counter=%s", server, partition, tsPhysical, tsCounter)
	resp, err := client.Get(url)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}
	defer resp.Body.Close()

	var out struct {
		State  string `json:"state"`
		LastID uint64 `json:"last_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		fmt.Printf("Error decoding response: %v\n", err)
		return
	}
	fmt.Printf("state=%s last_id=%d\n", out.State, out.LastID)
}
