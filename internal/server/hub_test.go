package server_test

import (
	"encoding/json"
	"testing"

	"github.com/classlens/classlens/internal/server"
)

func recv(t *testing.T, ch <-chan []byte) server.Event {
	t.Helper()
	select {
	case msg := <-ch:
		var ev server.Event
		if err := json.Unmarshal(msg, &ev); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		return ev
	default:
		t.Fatal("expected a buffered event")
		return server.Event{}
	}
}

func TestHub_RoutesByAnalysisID(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()

	chA, cancelA := hub.Subscribe("a")
	defer cancelA()
	chB, cancelB := hub.Subscribe("b")
	defer cancelB()

	hub.Broadcast("analysis:progress", map[string]any{"analysis_id": "a", "percent": 50})

	ev := recv(t, chA)
	if ev.Event != "analysis:progress" {
		t.Errorf("event: want analysis:progress, got %q", ev.Event)
	}
	select {
	case <-chB:
		t.Error("subscriber b should not receive events for analysis a")
	default:
	}
}

func TestHub_ReplaysLastEventToLateSubscriber(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()

	hub.Broadcast("analysis:progress", map[string]any{"analysis_id": "a", "percent": 80})

	ch, cancel := hub.Subscribe("a")
	defer cancel()

	ev := recv(t, ch)
	if ev.Event != "analysis:progress" {
		t.Errorf("late subscriber should see the last event, got %q", ev.Event)
	}
}

func TestHub_DropsEventsWithoutAnalysisID(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()

	ch, cancel := hub.Subscribe("a")
	defer cancel()

	hub.Broadcast("analysis:progress", map[string]any{"percent": 10})
	hub.Broadcast("analysis:progress", "not a map")

	select {
	case <-ch:
		t.Error("events without an analysis_id must be dropped")
	default:
	}
}

func TestHub_SubscriberCountAndCancel(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()

	_, cancel1 := hub.Subscribe("a")
	_, cancel2 := hub.Subscribe("a")
	if got := hub.SubscriberCount(); got != 2 {
		t.Fatalf("SubscriberCount: want 2, got %d", got)
	}

	cancel1()
	cancel2()
	if got := hub.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount after cancel: want 0, got %d", got)
	}
}

func TestHub_TerminalStateExpiresWithLastSubscriber(t *testing.T) {
	t.Parallel()
	hub := server.NewHub()

	ch, cancel := hub.Subscribe("a")
	hub.Broadcast("analysis:complete", map[string]any{"analysis_id": "a", "grade": "A"})
	if ev := recv(t, ch); ev.Event != "analysis:complete" {
		t.Fatalf("want analysis:complete, got %q", ev.Event)
	}
	cancel()

	// A subscriber arriving after everyone left a finished analysis starts
	// with a clean slate.
	late, cancelLate := hub.Subscribe("a")
	defer cancelLate()
	select {
	case <-late:
		t.Error("expired terminal state should not be replayed")
	default:
	}
}
