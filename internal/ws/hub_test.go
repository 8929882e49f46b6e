package ws

import (
	"encoding/json"
	"testing"
	"time"
)

// mockClient creates a client for testing without a real WebSocket connection
func mockClient(hub *Hub, storeID string) *Client {
	return &Client{
		hub:     hub,
		storeID: storeID,
		send:    make(chan []byte, 256),
	}
}

func TestHubRegistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, "store-a")

	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	if hub.rooms["store-a"] == nil {
		t.Fatal("store room not created")
	}
	if !hub.rooms["store-a"][client] {
		t.Fatal("client not registered in store room")
	}
}

func TestHubUnregistration(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client := mockClient(hub, "store-a")

	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.unregister <- client
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	defer hub.mu.RUnlock()

	// Room should be cleaned up when empty
	if hub.rooms["store-a"] != nil {
		t.Fatal("store room not cleaned up after last client unregistered")
	}
}

func TestBroadcastToSingleStore(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, "store-a")
	client2 := mockClient(hub, "store-b")

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	testPayload := json.RawMessage(`{"orderId":"ord-1","status":"shipped"}`)
	event := Event{
		Type:    "order.updated",
		Payload: testPayload,
	}
	hub.BroadcastToStore("store-a", event)

	// Check client1 receives the message
	select {
	case msg := <-client1.send:
		var received Event
		if err := json.Unmarshal(msg, &received); err != nil {
			t.Fatalf("failed to unmarshal message: %v", err)
		}
		if received.Type != "order.updated" {
			t.Errorf("expected type 'order.updated', got '%s'", received.Type)
		}
		if string(received.Payload) != string(testPayload) {
			t.Errorf("expected payload '%s', got '%s'", testPayload, received.Payload)
		}
	case <-time.After(100 * time.Millisecond):
		t.Fatal("client1 did not receive message")
	}

	// Check client2 does NOT receive the message
	select {
	case <-client2.send:
		t.Fatal("client2 should not have received message for different store")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message received
	}
}

func TestBroadcastToStores_FansOut(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	clientA := mockClient(hub, "store-a")
	clientB := mockClient(hub, "store-b")
	clientC := mockClient(hub, "store-c")

	hub.register <- clientA
	hub.register <- clientB
	hub.register <- clientC
	time.Sleep(10 * time.Millisecond)

	// A multi-store order touches stores a and b, but not c
	event := Event{
		Type:    "order.updated",
		Payload: json.RawMessage(`{"orderId":"ord-1"}`),
	}
	hub.BroadcastToStores([]string{"store-a", "store-b"}, event)

	for i, client := range []*Client{clientA, clientB} {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "order.updated" {
				t.Errorf("client%d: expected type 'order.updated', got '%s'", i+1, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}

	select {
	case <-clientC.send:
		t.Fatal("store-c should not have received message for an order it has no part in")
	case <-time.After(50 * time.Millisecond):
		// Expected
	}
}

func TestBroadcastToMultipleClientsInSameStore(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, "store-a")
	client2 := mockClient(hub, "store-a")
	client3 := mockClient(hub, "store-a")

	hub.register <- client1
	hub.register <- client2
	hub.register <- client3
	time.Sleep(10 * time.Millisecond)

	event := Event{
		Type:    "order.updated",
		Payload: json.RawMessage(`{"status":"delivered"}`),
	}
	hub.BroadcastToStore("store-a", event)

	// All three open dashboard tabs receive the update
	clients := []*Client{client1, client2, client3}
	for i, client := range clients {
		select {
		case msg := <-client.send:
			var received Event
			if err := json.Unmarshal(msg, &received); err != nil {
				t.Fatalf("client%d: failed to unmarshal: %v", i+1, err)
			}
			if received.Type != "order.updated" {
				t.Errorf("client%d: expected type 'order.updated', got '%s'", i+1, received.Type)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("client%d did not receive message", i+1)
		}
	}
}

func TestHubCleanupEmptyRoom(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, "store-a")
	client2 := mockClient(hub, "store-a")

	hub.register <- client1
	hub.register <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms["store-a"]) != 2 {
		t.Fatalf("expected 2 clients, got %d", len(hub.rooms["store-a"]))
	}
	hub.mu.RUnlock()

	hub.unregister <- client1
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if len(hub.rooms["store-a"]) != 1 {
		t.Fatalf("expected 1 client after first unregister, got %d", len(hub.rooms["store-a"]))
	}
	hub.mu.RUnlock()

	hub.unregister <- client2
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	if hub.rooms["store-a"] != nil {
		t.Fatal("room should be deleted when last client unregisters")
	}
	hub.mu.RUnlock()
}

func TestBroadcastToNonExistentStore(t *testing.T) {
	hub := NewHub()
	go hub.Run()

	client1 := mockClient(hub, "store-a")
	hub.register <- client1
	time.Sleep(10 * time.Millisecond)

	event := Event{
		Type:    "order.updated",
		Payload: json.RawMessage(`{"test":"data"}`),
	}
	hub.BroadcastToStore("store-z", event)

	// client1 should NOT receive anything
	select {
	case <-client1.send:
		t.Fatal("client should not receive message for different store")
	case <-time.After(50 * time.Millisecond):
		// Expected - no message
	}
}
