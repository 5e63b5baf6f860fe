// Package groups owns group membership and the per-group ordered message
// log. Message records themselves live in the message store; the log keeps
// non-owning back-references by id.
package groups

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/locks"
	"chabrush/pkg/logger"
	"chabrush/pkg/models"
	"chabrush/pkg/store"
)

var groupLocks locks.Keyed

func groupKey(name string) string { return "group:" + name }

func persist(g models.Group) error {
	data, err := json.Marshal(g)
	if err != nil {
		return fmt.Errorf("marshal group: %w", err)
	}
	return store.Set(groupKey(g.Name), data)
}

func get(name string) (models.Group, error) {
	var g models.Group
	data, err := store.Get(groupKey(name))
	if err != nil {
		if errors.Is(err, cerrs.ErrNotFound) {
			return g, cerrs.NotFoundf("group %s", name)
		}
		return g, err
	}
	if err := json.Unmarshal(data, &g); err != nil {
		return g, fmt.Errorf("unmarshal group %s: %w", name, err)
	}
	return g, nil
}

// Create registers a new group with creator as its first member. Names are
// unique; reusing one is a validation failure.
func Create(name, creator string) (models.Group, error) {
	if strings.TrimSpace(name) == "" || strings.TrimSpace(creator) == "" {
		return models.Group{}, cerrs.Validationf("group name and creator required")
	}
	groupLocks.Lock(name)
	defer groupLocks.Unlock(name)
	if _, err := get(name); err == nil {
		return models.Group{}, cerrs.Validationf("group %s already exists", name)
	}
	g := models.Group{
		Name:      name,
		Creator:   creator,
		Members:   []string{creator},
		CreatedTS: time.Now().UTC().UnixNano(),
	}
	if err := persist(g); err != nil {
		return models.Group{}, err
	}
	logger.Info("group_created", "name", name, "creator", creator)
	return g, nil
}

// Join adds user to the group. Joining twice is a no-op; the second return
// reports whether membership changed.
func Join(name, user string) (models.Group, bool, error) {
	if strings.TrimSpace(user) == "" {
		return models.Group{}, false, cerrs.Validationf("user required")
	}
	groupLocks.Lock(name)
	defer groupLocks.Unlock(name)
	g, err := get(name)
	if err != nil {
		return models.Group{}, false, err
	}
	if g.Member(user) {
		return g, false, nil
	}
	g.Members = append(g.Members, user)
	if err := persist(g); err != nil {
		return models.Group{}, false, err
	}
	logger.Info("group_joined", "name", name, "user", user)
	return g, true, nil
}

// Members returns a copy of the group's member list.
func Members(name string) ([]string, error) {
	g, err := get(name)
	if err != nil {
		return nil, err
	}
	return append([]string(nil), g.Members...), nil
}

// IsMember reports membership. Installed into the message store at startup
// so reactions and read marks on group messages can check membership.
func IsMember(name, user string) bool {
	g, err := get(name)
	if err != nil {
		return false
	}
	return g.Member(user)
}

// Post encrypts and stores a group message and appends it to the log. The
// group lock is held through the log append and the membership snapshot, so
// fanout never observes a membership view torn by a concurrent join.
func Post(name, sender, text string, ts int64) (models.Message, []string, error) {
	groupLocks.Lock(name)
	defer groupLocks.Unlock(name)
	g, err := get(name)
	if err != nil {
		return models.Message{}, nil, err
	}
	if !g.Member(sender) {
		return models.Message{}, nil, cerrs.Authorizationf("%s is not a member of %s", sender, name)
	}
	m, err := store.SendGroupMessage(sender, name, text, ts)
	if err != nil {
		return models.Message{}, nil, err
	}
	g.Log = append(g.Log, m.ID)
	if err := persist(g); err != nil {
		return models.Message{}, nil, err
	}
	members := append([]string(nil), g.Members...)
	return m, members, nil
}

// Messages returns the group's log decrypted, in post order. Member-only.
func Messages(name, requester string) ([]models.Message, error) {
	g, err := get(name)
	if err != nil {
		return nil, err
	}
	if !g.Member(requester) {
		return nil, cerrs.Authorizationf("%s is not a member of %s", requester, name)
	}
	out := make([]models.Message, 0, len(g.Log))
	for _, id := range g.Log {
		m, err := store.LoadDecrypted(id)
		if err != nil {
			logger.Warn("group_log_dangling", "group", name, "id", id)
			continue
		}
		out = append(out, m)
	}
	return out, nil
}
