package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/security"
)

const testKeyHex = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func openTestStore(t *testing.T) {
	t.Helper()
	if err := security.SetKeyHex(testKeyHex); err != nil {
		t.Fatalf("SetKeyHex: %v", err)
	}
	if err := Open(t.TempDir()); err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		SetGroupMembership(nil)
		if err := Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
}

func TestSendAndListOrder(t *testing.T) {
	openTestStore(t)
	texts := []string{"first", "second", "third"}
	for _, txt := range texts {
		m, err := SendMessage("alice", "bob", txt, 0)
		if err != nil {
			t.Fatalf("SendMessage(%q): %v", txt, err)
		}
		if m.Text != txt {
			t.Fatalf("echo text = %q, want %q", m.Text, txt)
		}
		if m.Body != nil {
			t.Fatalf("echo carries ciphertext")
		}
	}
	for _, user := range []string{"alice", "bob"} {
		msgs, err := ListMessagesFor(user)
		if err != nil {
			t.Fatalf("ListMessagesFor(%s): %v", user, err)
		}
		if len(msgs) != len(texts) {
			t.Fatalf("%s sees %d messages, want %d", user, len(msgs), len(texts))
		}
		for i, m := range msgs {
			if m.Text != texts[i] {
				t.Fatalf("%s msg[%d] = %q, want %q", user, i, m.Text, texts[i])
			}
		}
	}
}

func TestSendValidation(t *testing.T) {
	openTestStore(t)
	cases := []struct {
		name, sender, recipient, text string
	}{
		{"empty text", "alice", "bob", ""},
		{"whitespace text", "alice", "bob", "   \t\n"},
		{"missing sender", "", "bob", "hi"},
		{"missing recipient", "alice", "", "hi"},
	}
	for _, tc := range cases {
		if _, err := SendMessage(tc.sender, tc.recipient, tc.text, 0); !errors.Is(err, cerrs.ErrValidation) {
			t.Errorf("%s: want validation error, got %v", tc.name, err)
		}
	}

	SetMaxMessageRunes(10)
	t.Cleanup(func() { SetMaxMessageRunes(10000) })
	if _, err := SendMessage("alice", "bob", strings.Repeat("x", 11), 0); !errors.Is(err, cerrs.ErrValidation) {
		t.Fatalf("oversized: want validation error, got %v", err)
	}
	// Length is counted in code points, not bytes.
	if _, err := SendMessage("alice", "bob", strings.Repeat("ü", 10), 0); err != nil {
		t.Fatalf("10 runes rejected: %v", err)
	}
}

func TestEditMessage(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "draft", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	if _, err := EditMessage(m.ID, "bob", "hijacked"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("non-sender edit: want authorization error, got %v", err)
	}
	if _, err := EditMessage("no-such-id", "alice", "x"); !errors.Is(err, cerrs.ErrNotFound) {
		t.Fatalf("missing id: want not found, got %v", err)
	}

	ed, err := EditMessage(m.ID, "alice", "final")
	if err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if !ed.Edited || ed.Text != "final" {
		t.Fatalf("edit not applied: %+v", ed)
	}
	if ed.CreatedTS != m.CreatedTS {
		t.Fatalf("edit moved the creation timestamp")
	}
	got, err := LoadDecrypted(m.ID)
	if err != nil {
		t.Fatalf("LoadDecrypted: %v", err)
	}
	if got.Text != "final" {
		t.Fatalf("stored text = %q, want %q", got.Text, "final")
	}
}

func TestEditKeepsListPosition(t *testing.T) {
	openTestStore(t)
	a, err := SendMessage("alice", "bob", "older", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := SendMessage("alice", "bob", "newer", 0); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := EditMessage(a.ID, "alice", "older, revised"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	msgs, err := ListMessagesFor("bob")
	if err != nil {
		t.Fatalf("ListMessagesFor: %v", err)
	}
	if len(msgs) != 2 || msgs[0].ID != a.ID {
		t.Fatalf("edited message moved in the list")
	}
	if msgs[0].Text != "older, revised" {
		t.Fatalf("list text = %q", msgs[0].Text)
	}
}

func TestDeleteIdempotent(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "regret", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := DeleteMessage(m.ID, "bob"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("non-sender delete: want authorization error, got %v", err)
	}
	d1, err := DeleteMessage(m.ID, "alice")
	if err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if !d1.Deleted || d1.Text != DeletedPlaceholder {
		t.Fatalf("tombstone = %+v", d1)
	}
	d2, err := DeleteMessage(m.ID, "alice")
	if err != nil {
		t.Fatalf("second delete must be a no-op, got %v", err)
	}
	if d2.Text != DeletedPlaceholder {
		t.Fatalf("second delete text = %q", d2.Text)
	}

	// Tombstone keeps its slot and shows the placeholder on reads.
	msgs, err := ListMessagesFor("bob")
	if err != nil {
		t.Fatalf("ListMessagesFor: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Text != DeletedPlaceholder || !msgs[0].Deleted {
		t.Fatalf("list shows %+v", msgs)
	}
	if _, err := EditMessage(m.ID, "alice", "resurrect"); !errors.Is(err, cerrs.ErrState) {
		t.Fatalf("edit after delete: want state error, got %v", err)
	}
}

func TestReactions(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "lunch?", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := ReactMessage(m.ID, "bob", "  "); !errors.Is(err, cerrs.ErrValidation) {
		t.Fatalf("empty symbol: want validation error, got %v", err)
	}
	if _, err := ReactMessage(m.ID, "mallory", "👀"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("outsider: want authorization error, got %v", err)
	}
	r1, err := ReactMessage(m.ID, "bob", "👍")
	if err != nil {
		t.Fatalf("ReactMessage: %v", err)
	}
	if r1.Reactions["bob"].Symbol != "👍" {
		t.Fatalf("reaction = %+v", r1.Reactions)
	}
	// Second reaction from the same user replaces the first.
	r2, err := ReactMessage(m.ID, "bob", "🎉")
	if err != nil {
		t.Fatalf("ReactMessage: %v", err)
	}
	if len(r2.Reactions) != 1 || r2.Reactions["bob"].Symbol != "🎉" {
		t.Fatalf("upsert failed: %+v", r2.Reactions)
	}

	if _, err := DeleteMessage(m.ID, "alice"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	if _, err := ReactMessage(m.ID, "bob", "👍"); !errors.Is(err, cerrs.ErrState) {
		t.Fatalf("react on tombstone: want state error, got %v", err)
	}
	// Existing reactions survive the tombstone.
	got, err := LoadDecrypted(m.ID)
	if err != nil {
		t.Fatalf("LoadDecrypted: %v", err)
	}
	if got.Reactions["bob"].Symbol != "🎉" {
		t.Fatalf("tombstone dropped reactions: %+v", got.Reactions)
	}
}

func TestMarkReadMonotonic(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "ping", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, _, err := MarkRead(m.ID, "mallory"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("outsider read: want authorization error, got %v", err)
	}
	r1, changed, err := MarkRead(m.ID, "bob")
	if err != nil || !changed {
		t.Fatalf("first mark: changed=%v err=%v", changed, err)
	}
	if !r1.Read || r1.ReadTS == 0 {
		t.Fatalf("read state = %+v", r1)
	}
	r2, changed, err := MarkRead(m.ID, "bob")
	if err != nil || changed {
		t.Fatalf("second mark: changed=%v err=%v", changed, err)
	}
	if r2.ReadTS != r1.ReadTS {
		t.Fatalf("re-mark moved ReadTS")
	}
}

func TestGroupMessageReadersAndReactions(t *testing.T) {
	openTestStore(t)
	members := map[string]bool{"alice": true, "bob": true, "carol": true}
	SetGroupMembership(func(group, user string) bool {
		return group == "team" && members[user]
	})

	m, err := SendGroupMessage("alice", "team", "standup at 10", 0)
	if err != nil {
		t.Fatalf("SendGroupMessage: %v", err)
	}
	if !m.IsGroup() {
		t.Fatalf("message not marked as group")
	}
	for _, user := range []string{"bob", "carol"} {
		if _, changed, err := MarkRead(m.ID, user); err != nil || !changed {
			t.Fatalf("MarkRead(%s): changed=%v err=%v", user, changed, err)
		}
	}
	got, _, err := MarkRead(m.ID, "bob")
	if err != nil {
		t.Fatalf("MarkRead: %v", err)
	}
	if len(got.Readers) != 2 {
		t.Fatalf("readers = %+v", got.Readers)
	}
	if _, _, err := MarkRead(m.ID, "dave"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("non-member read: want authorization error, got %v", err)
	}
	if _, err := ReactMessage(m.ID, "carol", "✅"); err != nil {
		t.Fatalf("member reaction: %v", err)
	}
	if _, err := ReactMessage(m.ID, "dave", "✅"); !errors.Is(err, cerrs.ErrAuthorization) {
		t.Fatalf("non-member reaction: want authorization error, got %v", err)
	}
}

func TestCiphertextAtRest(t *testing.T) {
	openTestStore(t)
	const secret = "the launch code is 0000"
	if _, err := SendMessage("alice", "bob", secret, 0); err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	// Raw scan of the whole keyspace must never surface the plaintext.
	err := ScanPrefix("", func(key string, val []byte) error {
		if strings.Contains(string(val), secret) {
			t.Fatalf("plaintext at rest under key %q", key)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("ScanPrefix: %v", err)
	}
}

func TestMessageVersions(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "v1", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if _, err := EditMessage(m.ID, "alice", "v2"); err != nil {
		t.Fatalf("EditMessage: %v", err)
	}
	if _, err := DeleteMessage(m.ID, "alice"); err != nil {
		t.Fatalf("DeleteMessage: %v", err)
	}
	versions, err := ListMessageVersions(m.ID)
	if err != nil {
		t.Fatalf("ListMessageVersions: %v", err)
	}
	want := []string{"v1", "v2", DeletedPlaceholder}
	if len(versions) != len(want) {
		t.Fatalf("got %d versions, want %d", len(versions), len(want))
	}
	for i, v := range versions {
		if v.Text != want[i] {
			t.Fatalf("version[%d] = %q, want %q", i, v.Text, want[i])
		}
	}
	if _, err := ListMessageVersions("no-such-id"); !errors.Is(err, cerrs.ErrNotFound) {
		t.Fatalf("missing id: want not found, got %v", err)
	}
}

func TestConcurrentEditsSerialize(t *testing.T) {
	openTestStore(t)
	m, err := SendMessage("alice", "bob", "base", 0)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}

	const n = 16
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = EditMessage(m.ID, "alice", fmt.Sprintf("rev-%02d", i))
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("edit %d: %v", i, err)
		}
	}

	// Edits serialize on the record lock: every edit lands as one version
	// and the latest version is the record itself.
	got, err := LoadDecrypted(m.ID)
	if err != nil {
		t.Fatalf("LoadDecrypted: %v", err)
	}
	if !got.Edited || !strings.HasPrefix(got.Text, "rev-") {
		t.Fatalf("final record = %+v", got)
	}
	versions, err := ListMessageVersions(m.ID)
	if err != nil {
		t.Fatalf("ListMessageVersions: %v", err)
	}
	if len(versions) != n+1 {
		t.Fatalf("got %d versions, want %d", len(versions), n+1)
	}
	if last := versions[len(versions)-1].Text; last != got.Text {
		t.Fatalf("latest version %q, record %q", last, got.Text)
	}
}

func TestClosedStoreFaultIsNotNotFound(t *testing.T) {
	if err := Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_, err := LoadDecrypted("some-id")
	if err == nil {
		t.Fatalf("read on closed store succeeded")
	}
	if errors.Is(err, cerrs.ErrNotFound) {
		t.Fatalf("store fault classified as not found: %v", err)
	}
}
