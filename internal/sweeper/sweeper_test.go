package sweeper

import (
	"context"
	"testing"
	"time"

	"chabrush/pkg/calls"
	"chabrush/pkg/delivery"
	"chabrush/pkg/models"
	"chabrush/pkg/store"
)

func openTestStore(t *testing.T) {
	t.Helper()
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestSweepEndsStaleRinging(t *testing.T) {
	openTestStore(t)
	hub := delivery.NewHub(8)
	caller := hub.Subscribe("alice")
	defer hub.Unsubscribe(caller)

	c, err := calls.Start("alice", "bob")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	n, err := Sweep(time.Nanosecond, hub)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d calls, want 1", n)
	}

	select {
	case ev := <-caller.Events():
		if ev.Type != delivery.EvtCallEnded || ev.Call == nil || ev.Call.ID != c.ID {
			t.Fatalf("got %+v", ev)
		}
		if ev.Call.Reason != models.ReasonTimeout {
			t.Fatalf("reason = %s", ev.Call.Reason)
		}
	case <-time.After(time.Second):
		t.Fatalf("no callEnded event")
	}
}

func TestSweepLeavesActiveCalls(t *testing.T) {
	openTestStore(t)
	c, err := calls.Start("alice", "bob")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := calls.Answer(c.ID, "bob"); err != nil {
		t.Fatalf("Answer: %v", err)
	}
	n, err := Sweep(time.Nanosecond, nil)
	if err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if n != 0 {
		t.Fatalf("swept %d calls, want 0", n)
	}
}

func TestStartValidatesCron(t *testing.T) {
	if _, err := Start(context.Background(), "not a cron", time.Minute, nil); err == nil {
		t.Fatalf("accepted invalid cron expression")
	}
	cancel, err := Start(context.Background(), "* * * * *", 0, nil)
	if err != nil {
		t.Fatalf("disabled sweeper: %v", err)
	}
	cancel() // no-op cancel
}
