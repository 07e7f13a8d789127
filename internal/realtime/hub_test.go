package realtime

import (
	"context"
	"log/slog"
	"testing"
	"time"
)

func testHub() *Hub {
	return NewHub(slog.Default())
}

// ---------------------------------------------------------------------------
// shouldSend tests
// ---------------------------------------------------------------------------

func TestShouldSend_AllEvents(t *testing.T) {
	h := testHub()
	client := &Client{sub: Subscription{AllEvents: true}}

	event := &Event{Type: EventDecision, Timestamp: time.Now()}
	if !h.shouldSend(client, event) {
		t.Error("AllEvents client should receive all events")
	}
}

func TestShouldSend_EventTypeFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		EventTypes: []EventType{EventDecision, EventOutcome},
	}}

	decision := &Event{Type: EventDecision}
	outcome := &Event{Type: EventOutcome}
	batch := &Event{Type: EventBatchCompleted}

	if !h.shouldSend(client, decision) {
		t.Error("Should receive decision events")
	}
	if !h.shouldSend(client, outcome) {
		t.Error("Should receive outcome events")
	}
	if h.shouldSend(client, batch) {
		t.Error("Should NOT receive batch events")
	}
}

func TestShouldSend_TenantFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		TenantIDs: []string{"t1"},
	}}

	matching := &Event{
		Type: EventDecision,
		Data: map[string]any{"tenantId": "t1", "action": "review"},
	}
	notMatching := &Event{
		Type: EventDecision,
		Data: map[string]any{"tenantId": "t2", "action": "review"},
	}

	if !h.shouldSend(client, matching) {
		t.Error("Should match on tenant id")
	}
	if h.shouldSend(client, notMatching) {
		t.Error("Should NOT match other tenants")
	}
}

func TestShouldSend_ActionFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		Actions: []string{"decline"},
	}}

	declined := &Event{
		Type: EventDecision,
		Data: map[string]any{"action": "decline"},
	}
	approved := &Event{
		Type: EventDecision,
		Data: map[string]any{"action": "approve"},
	}
	outcome := &Event{
		Type: EventOutcome,
		Data: map[string]any{"outcome": "confirmed_fraud"},
	}

	if !h.shouldSend(client, declined) {
		t.Error("Should receive declines")
	}
	if h.shouldSend(client, approved) {
		t.Error("Should NOT receive approvals")
	}
	if !h.shouldSend(client, outcome) {
		t.Error("Action filter should only apply to decisions")
	}
}

func TestShouldSend_MinScoreFilter(t *testing.T) {
	h := testHub()

	client := &Client{sub: Subscription{
		MinScore: 600,
	}}

	risky := &Event{
		Type: EventDecision,
		Data: map[string]any{"score": 850.0},
	}
	safe := &Event{
		Type: EventDecision,
		Data: map[string]any{"score": 120.0},
	}

	if !h.shouldSend(client, risky) {
		t.Error("Should receive high-score decisions")
	}
	if h.shouldSend(client, safe) {
		t.Error("Should NOT receive low-score decisions")
	}
}

// ---------------------------------------------------------------------------
// Hub lifecycle tests
// ---------------------------------------------------------------------------

func TestHubBroadcastDelivers(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.BroadcastDecision("t1", "dec_1", "review", 675, true)

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("empty broadcast payload")
		}
	case <-time.After(time.Second):
		t.Fatal("broadcast not delivered")
	}
}

func TestHubDropsSlowClients(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	// Unbuffered send channel with no reader: first broadcast marks the
	// client slow and evicts it.
	client := &Client{hub: h, send: make(chan []byte), sub: Subscription{AllEvents: true}}
	h.register <- client

	h.BroadcastDecision("t1", "dec_1", "approve", 100, false)

	deadline := time.After(time.Second)
	for {
		h.mu.RLock()
		n := len(h.clients)
		h.mu.RUnlock()
		if n == 0 {
			return
		}
		select {
		case <-deadline:
			t.Fatal("slow client not evicted")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestHubStats(t *testing.T) {
	h := testHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.Run(ctx)

	client := &Client{hub: h, send: make(chan []byte, 8)}
	h.register <- client

	deadline := time.After(time.Second)
	for {
		stats := h.Stats()
		if stats["connectedClients"].(int) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("client never registered")
		case <-time.After(10 * time.Millisecond):
		}
	}
}
