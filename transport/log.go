package transport

import "log"

func logDropped(rpc, endpoint string, err error) {
	log.Printf("🔌 %s to %s failed, dropped: %v", rpc, endpoint, err)
}
