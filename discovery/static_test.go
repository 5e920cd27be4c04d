package discovery

import "testing"

func TestStaticRegisterAndList(t *testing.T) {
	d := NewStatic(nil)

	if err := d.Register(NodeInfo{NodeID: "node1", Endpoint: "localhost:50051"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := d.Register(NodeInfo{NodeID: "node2", Endpoint: "localhost:50052"}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	nodes, err := d.GetNodes()
	if err != nil {
		t.Fatalf("GetNodes: %v", err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(nodes))
	}
}

func TestStaticRegisterRejectsEmptyFields(t *testing.T) {
	d := NewStatic(nil)

	if err := d.Register(NodeInfo{NodeID: "", Endpoint: "localhost:1"}); err == nil {
		t.Error("expected error for empty node id")
	}
	if err := d.Register(NodeInfo{NodeID: "node1", Endpoint: ""}); err == nil {
		t.Error("expected error for empty endpoint")
	}
}

func TestStaticUnregister(t *testing.T) {
	d := NewStatic(map[string]string{"node1": "localhost:50051", "node2": "localhost:50052"})

	if err := d.Unregister("node1"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	nodes, err := d.GetNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 1 || nodes[0] != "localhost:50052" {
		t.Fatalf("unexpected nodes after unregister: %v", nodes)
	}

	if err := d.Unregister("node3"); err == nil {
		t.Error("expected error unregistering unknown node")
	}
}

func TestStaticUpdateReplacesMembership(t *testing.T) {
	d := NewStatic(map[string]string{"node1": "localhost:50051"})

	d.Update(map[string]string{"node2": "localhost:50052", "node3": "localhost:50053"})

	nodes, err := d.GetNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 2 {
		t.Fatalf("expected 2 nodes after update, got %d", len(nodes))
	}
}

func TestStaticSeededFromConstructor(t *testing.T) {
	d := NewStatic(map[string]string{
		"node1": "localhost:50051",
		"node2": "localhost:50052",
		"node3": "localhost:50053",
	})

	nodes, err := d.GetNodes()
	if err != nil {
		t.Fatal(err)
	}
	if len(nodes) != 3 {
		t.Fatalf("expected 3 seeded nodes, got %d", len(nodes))
	}
}
