package batch

import (
	"testing"

	"chabrush/pkg/identity"
	"chabrush/pkg/security"
	"chabrush/pkg/store"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestStore(t *testing.T) identity.Directory {
	t.Helper()
	if err := security.SetKeyHex(testKeyHex); err != nil {
		t.Fatalf("SetKeyHex: %v", err)
	}
	if err := store.Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	dir := identity.NewStoreDirectory()
	for _, u := range []string{"alice", "bob", "carol"} {
		if err := dir.Register(u); err != nil {
			t.Fatalf("Register(%s): %v", u, err)
		}
	}
	return dir
}

func TestSendPerItemCommit(t *testing.T) {
	dir := openTestStore(t)
	items := []Item{
		{Recipient: "bob", Text: "one"},
		{Recipient: "dave", Text: "two"}, // unregistered
		{Recipient: "carol", Text: ""},   // empty text
		{Recipient: "carol", Text: "four"},
	}
	results := Send(nil, dir, "alice", items)
	if len(results) != len(items) {
		t.Fatalf("got %d results, want %d", len(results), len(items))
	}
	for i, r := range results {
		if r.Index != i {
			t.Fatalf("result[%d].Index = %d", i, r.Index)
		}
	}
	if results[0].Message == nil || results[0].Error != "" {
		t.Fatalf("item 0 should succeed: %+v", results[0])
	}
	if results[1].Message != nil || results[1].Kind != "validation" {
		t.Fatalf("item 1 should fail validation: %+v", results[1])
	}
	if results[2].Message != nil || results[2].Kind != "validation" {
		t.Fatalf("item 2 should fail validation: %+v", results[2])
	}
	if results[3].Message == nil {
		t.Fatalf("item 3 should succeed despite earlier failures: %+v", results[3])
	}

	// Successful items are committed and retrievable; failed ones are not.
	msgs, err := store.ListMessagesFor("alice")
	if err != nil {
		t.Fatalf("ListMessagesFor: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("committed %d messages, want 2", len(msgs))
	}
	if msgs[0].Text != "one" || msgs[1].Text != "four" {
		t.Fatalf("committed texts: %q, %q", msgs[0].Text, msgs[1].Text)
	}
}

func TestSendEmptyBatch(t *testing.T) {
	dir := openTestStore(t)
	results := Send(nil, dir, "alice", nil)
	if len(results) != 0 {
		t.Fatalf("empty batch produced %d results", len(results))
	}
}
