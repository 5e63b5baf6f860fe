package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/locks"
	"chabrush/pkg/logger"
	"chabrush/pkg/models"
	"chabrush/pkg/security"
	"chabrush/pkg/telemetry"
)

// DeletedPlaceholder replaces the content of tombstoned messages on reads.
const DeletedPlaceholder = "message deleted"

// undecryptablePlaceholder replaces a single message whose blob cannot be
// decrypted; retrieval of the rest of the list continues.
const undecryptablePlaceholder = "decryption failed"

var (
	msgLocks locks.Keyed
	// seq reduces key collisions when records share a nanosecond timestamp.
	seq uint64

	maxMessageRunes = 10000

	// groupMember is installed by the group registry at startup so reaction
	// and read-mark checks on group messages can consult membership without
	// an import cycle.
	groupMember func(group, user string) bool
)

// SetMaxMessageRunes configures the plaintext length ceiling (code points).
func SetMaxMessageRunes(n int) {
	if n > 0 {
		maxMessageRunes = n
	}
}

// SetGroupMembership installs the membership predicate for group messages.
func SetGroupMembership(fn func(group, user string) bool) { groupMember = fn }

func msgKey(id string) string { return "msg:" + id }

func userIdxKey(user string, ts int64, s uint64) string {
	return fmt.Sprintf("user:%s:msg:%020d-%06d", user, ts, s)
}

func versionKey(id string, ts int64, s uint64) string {
	return fmt.Sprintf("version:msg:%s:%020d-%06d", id, ts, s)
}

func validateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return cerrs.Validationf("empty message")
	}
	if n := utf8.RuneCountInString(text); n > maxMessageRunes {
		return cerrs.Validationf("message too long: %d > %d runes", n, maxMessageRunes)
	}
	return nil
}

// persistMessage writes the latest record and an immutable version snapshot.
func persistMessage(m models.Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if err := Set(msgKey(m.ID), data); err != nil {
		return err
	}
	s := atomic.AddUint64(&seq, 1)
	return Set(versionKey(m.ID, time.Now().UTC().UnixNano(), s), data)
}

func getMessage(id string) (models.Message, error) {
	var m models.Message
	data, err := Get(msgKey(id))
	if err != nil {
		// Only a missing key maps to the not-found kind; store faults
		// propagate unclassified.
		if errors.Is(err, cerrs.ErrNotFound) {
			return m, cerrs.NotFoundf("message %s", id)
		}
		return m, err
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("unmarshal message %s: %w", id, err)
	}
	return m, nil
}

// withText returns a copy carrying decrypted plaintext and no ciphertext.
func withText(m models.Message, text string) models.Message {
	m.Text = text
	m.Body = nil
	return m
}

// SendMessage validates, encrypts and commits a direct message. ts of 0
// means "now" (UTC nanoseconds). The returned copy carries the plaintext
// echo for the caller and the delivery engine; the stored record holds only
// ciphertext.
func SendMessage(sender, recipient, text string, ts int64) (models.Message, error) {
	if sender == "" || recipient == "" {
		return models.Message{}, cerrs.Validationf("sender and recipient required")
	}
	if err := validateText(text); err != nil {
		return models.Message{}, err
	}
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
	}
	ct, err := security.Encrypt([]byte(text))
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Recipient: recipient,
		Body:      ct,
		CreatedTS: ts,
	}
	if err := persistMessage(m); err != nil {
		return models.Message{}, err
	}
	// Index under both participants so ListFor sees sent and received mail.
	s := atomic.AddUint64(&seq, 1)
	if err := Set(userIdxKey(sender, ts, s), []byte(m.ID)); err != nil {
		return models.Message{}, err
	}
	if recipient != sender {
		if err := Set(userIdxKey(recipient, ts, s), []byte(m.ID)); err != nil {
			return models.Message{}, err
		}
	}
	telemetry.MessagesSent.Inc()
	logger.Info("message_saved", "id", m.ID, "sender", sender, "recipient", recipient)
	return withText(m, text), nil
}

// SendGroupMessage encrypts and commits a message addressed to a group.
// Ordering for group retrieval comes from the group's log, so no per-user
// index entries are written here. Membership is the group registry's job.
func SendGroupMessage(sender, group, text string, ts int64) (models.Message, error) {
	if sender == "" || group == "" {
		return models.Message{}, cerrs.Validationf("sender and group required")
	}
	if err := validateText(text); err != nil {
		return models.Message{}, err
	}
	if ts == 0 {
		ts = time.Now().UTC().UnixNano()
	}
	ct, err := security.Encrypt([]byte(text))
	if err != nil {
		return models.Message{}, err
	}
	m := models.Message{
		ID:        uuid.NewString(),
		Sender:    sender,
		Group:     group,
		Body:      ct,
		CreatedTS: ts,
	}
	if err := persistMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessagesSent.Inc()
	logger.Info("group_message_saved", "id", m.ID, "sender", sender, "group", group)
	return withText(m, text), nil
}

// EditMessage re-encrypts the body in place. The creation timestamp is
// untouched so the message keeps its position in timestamp-ordered reads.
func EditMessage(id, requester, text string) (models.Message, error) {
	if err := validateText(text); err != nil {
		return models.Message{}, err
	}
	msgLocks.Lock(id)
	defer msgLocks.Unlock(id)
	m, err := getMessage(id)
	if err != nil {
		return models.Message{}, err
	}
	if requester != m.Sender {
		return models.Message{}, cerrs.Authorizationf("only the sender may edit %s", id)
	}
	if m.Deleted {
		return models.Message{}, cerrs.Statef("message %s is deleted", id)
	}
	ct, err := security.Encrypt([]byte(text))
	if err != nil {
		return models.Message{}, err
	}
	m.Body = ct
	m.Edited = true
	m.EditedTS = time.Now().UTC().UnixNano()
	if err := persistMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessageMutations.WithLabelValues("edit").Inc()
	logger.Info("message_edited", "id", id)
	return withText(m, text), nil
}

// DeleteMessage tombstones a message: content cleared, metadata retained.
// Deleting twice is a no-op, not an error.
func DeleteMessage(id, requester string) (models.Message, error) {
	msgLocks.Lock(id)
	defer msgLocks.Unlock(id)
	m, err := getMessage(id)
	if err != nil {
		return models.Message{}, err
	}
	if requester != m.Sender {
		return models.Message{}, cerrs.Authorizationf("only the sender may delete %s", id)
	}
	if m.Deleted {
		return withText(m, DeletedPlaceholder), nil
	}
	m.Deleted = true
	m.Body = nil
	if err := persistMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessageMutations.WithLabelValues("delete").Inc()
	logger.Info("message_deleted", "id", id)
	return withText(m, DeletedPlaceholder), nil
}

// ReactMessage upserts user's reaction: a second reaction from the same
// user replaces the first.
func ReactMessage(id, user, symbol string) (models.Message, error) {
	if strings.TrimSpace(symbol) == "" {
		return models.Message{}, cerrs.Validationf("empty reaction")
	}
	msgLocks.Lock(id)
	defer msgLocks.Unlock(id)
	m, err := getMessage(id)
	if err != nil {
		return models.Message{}, err
	}
	if !participant(&m, user) {
		return models.Message{}, cerrs.Authorizationf("%s is not a participant of %s", user, id)
	}
	if m.Deleted {
		return models.Message{}, cerrs.Statef("message %s is deleted", id)
	}
	if m.Reactions == nil {
		m.Reactions = make(map[string]models.Reaction)
	}
	m.Reactions[user] = models.Reaction{User: user, Symbol: symbol, TS: time.Now().UTC().UnixNano()}
	if err := persistMessage(m); err != nil {
		return models.Message{}, err
	}
	telemetry.MessageMutations.WithLabelValues("react").Inc()
	return decorate(m), nil
}

// MarkRead records a read receipt. Monotonic: once read, re-marking is a
// no-op; the second return reports whether state changed.
func MarkRead(id, user string) (models.Message, bool, error) {
	msgLocks.Lock(id)
	defer msgLocks.Unlock(id)
	m, err := getMessage(id)
	if err != nil {
		return models.Message{}, false, err
	}
	if !participant(&m, user) {
		return models.Message{}, false, cerrs.Authorizationf("%s is not a participant of %s", user, id)
	}
	changed := false
	now := time.Now().UTC().UnixNano()
	if m.IsGroup() {
		if _, ok := m.Readers[user]; !ok {
			if m.Readers == nil {
				m.Readers = make(map[string]int64)
			}
			m.Readers[user] = now
			changed = true
		}
	} else if !m.Read {
		m.Read = true
		m.ReadTS = now
		changed = true
	}
	if changed {
		if err := persistMessage(m); err != nil {
			return models.Message{}, false, err
		}
		telemetry.MessageMutations.WithLabelValues("read").Inc()
	}
	return decorate(m), changed, nil
}

func participant(m *models.Message, user string) bool {
	if m.IsGroup() {
		if user == m.Sender {
			return true
		}
		return groupMember != nil && groupMember(m.Group, user)
	}
	return m.Participant(user)
}

// decorate fills Text from the stored blob: placeholder for tombstones,
// decrypted plaintext otherwise, and an error placeholder when a single
// blob cannot be decrypted so list retrieval never aborts.
func decorate(m models.Message) models.Message {
	if m.Deleted {
		return withText(m, DeletedPlaceholder)
	}
	pt, err := security.Decrypt(m.Body)
	if err != nil {
		logger.Warn("message_decrypt_failed", "id", m.ID, "error", err)
		return withText(m, undecryptablePlaceholder)
	}
	return withText(m, string(pt))
}

// LoadDecrypted fetches one message and resolves its readable text.
func LoadDecrypted(id string) (models.Message, error) {
	m, err := getMessage(id)
	if err != nil {
		return models.Message{}, err
	}
	return decorate(m), nil
}

// ListMessagesFor returns every direct message where username is sender or
// recipient, decrypted, in creation-timestamp order. Edits do not move a
// message because the index key is written once at send time.
func ListMessagesFor(username string) ([]models.Message, error) {
	prefix := "user:" + username + ":msg:"
	out := []models.Message{}
	err := ScanPrefix(prefix, func(_ string, val []byte) error {
		m, err := LoadDecrypted(string(val))
		if err != nil {
			// Index entry without a record is a corruption artifact; skip.
			logger.Warn("message_index_dangling", "id", string(val))
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListMessageVersions returns the mutation history of one message, oldest
// first, with readable text resolved per version.
func ListMessageVersions(id string) ([]models.Message, error) {
	if _, err := getMessage(id); err != nil {
		return nil, err
	}
	prefix := fmt.Sprintf("version:msg:%s:", id)
	out := []models.Message{}
	err := ScanPrefix(prefix, func(_ string, val []byte) error {
		var m models.Message
		if err := json.Unmarshal(val, &m); err != nil {
			return nil
		}
		out = append(out, decorate(m))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
