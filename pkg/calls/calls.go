// Package calls owns the per-call signaling state machine.
//
// States move ringing -> active -> ended, or ringing -> ended; no state is
// revisited. Transitions are compare-and-transition under a per-call lock,
// so racing answer/end requests resolve to exactly one outcome.
package calls

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"chabrush/pkg/cerrs"
	"chabrush/pkg/locks"
	"chabrush/pkg/logger"
	"chabrush/pkg/models"
	"chabrush/pkg/store"
	"chabrush/pkg/telemetry"
)

var (
	callLocks locks.Keyed
	pairLocks locks.Keyed
)

func callKey(id string) string { return "call:" + id }

// liveKey marks a non-terminal call between a caller/callee pair so Start
// can reject a second concurrent call for the same pair.
func liveKey(caller, callee string) string { return "calllive:" + caller + ":" + callee }

func persist(c models.Call) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal call: %w", err)
	}
	return store.Set(callKey(c.ID), data)
}

func get(id string) (models.Call, error) {
	var c models.Call
	data, err := store.Get(callKey(id))
	if err != nil {
		if errors.Is(err, cerrs.ErrNotFound) {
			return c, cerrs.NotFoundf("call %s", id)
		}
		return c, err
	}
	if err := json.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("unmarshal call %s: %w", id, err)
	}
	return c, nil
}

// Get returns the call record for id.
func Get(id string) (models.Call, error) { return get(id) }

// Start creates a call in ringing state and stamps the start timestamp.
func Start(caller, callee string) (models.Call, error) {
	if caller == "" || callee == "" {
		return models.Call{}, cerrs.Validationf("caller and callee required")
	}
	if caller == callee {
		return models.Call{}, cerrs.Validationf("caller and callee must differ")
	}
	pair := caller + "|" + callee
	pairLocks.Lock(pair)
	defer pairLocks.Unlock(pair)
	if _, err := store.Get(liveKey(caller, callee)); err == nil {
		return models.Call{}, cerrs.Statef("call between %s and %s already in progress", caller, callee)
	}
	c := models.Call{
		ID:      uuid.NewString(),
		Caller:  caller,
		Callee:  callee,
		State:   models.CallRinging,
		StartTS: time.Now().UTC().UnixNano(),
	}
	if err := persist(c); err != nil {
		return models.Call{}, err
	}
	if err := store.Set(liveKey(caller, callee), []byte(c.ID)); err != nil {
		return models.Call{}, err
	}
	telemetry.CallsActive.Inc()
	logger.Info("call_started", "id", c.ID, "caller", caller, "callee", callee)
	return c, nil
}

// Answer transitions ringing -> active. Only the callee may answer.
func Answer(id, responder string) (models.Call, error) {
	callLocks.Lock(id)
	defer callLocks.Unlock(id)
	c, err := get(id)
	if err != nil {
		return models.Call{}, err
	}
	if responder != c.Callee {
		return models.Call{}, cerrs.Authorizationf("only the callee may answer %s", id)
	}
	if c.State != models.CallRinging {
		return models.Call{}, cerrs.Statef("call %s is %s, not ringing", id, c.State)
	}
	c.State = models.CallActive
	c.AnswerTS = time.Now().UTC().UnixNano()
	if err := persist(c); err != nil {
		return models.Call{}, err
	}
	logger.Info("call_answered", "id", id)
	return c, nil
}

// End transitions ringing|active -> ended. The requester must be caller or
// callee; the terminal reason derives from the prior state and who asked.
// Ending an ended call is a StateError, deliberately not idempotent.
func End(id, requester string) (models.Call, error) {
	callLocks.Lock(id)
	defer callLocks.Unlock(id)
	c, err := get(id)
	if err != nil {
		return models.Call{}, err
	}
	if requester != c.Caller && requester != c.Callee {
		return models.Call{}, cerrs.Authorizationf("%s is not a party of call %s", requester, id)
	}
	var reason models.CallReason
	switch c.State {
	case models.CallActive:
		reason = models.ReasonAnswered
	case models.CallRinging:
		if requester == c.Callee {
			reason = models.ReasonRejected
		} else {
			reason = models.ReasonCancelled
		}
	default:
		return models.Call{}, cerrs.Statef("call %s already ended", id)
	}
	return terminate(c, reason)
}

// Expire applies a system-initiated end with reason timeout through the
// same transition path. Only ringing calls expire.
func Expire(id string) (models.Call, error) {
	callLocks.Lock(id)
	defer callLocks.Unlock(id)
	c, err := get(id)
	if err != nil {
		return models.Call{}, err
	}
	if c.State != models.CallRinging {
		return models.Call{}, cerrs.Statef("call %s is %s, not ringing", id, c.State)
	}
	return terminate(c, models.ReasonTimeout)
}

// terminate commits the terminal transition. Caller holds the call lock.
func terminate(c models.Call, reason models.CallReason) (models.Call, error) {
	c.State = models.CallEnded
	c.Reason = reason
	c.EndTS = time.Now().UTC().UnixNano()
	if err := persist(c); err != nil {
		return models.Call{}, err
	}
	if err := store.Delete(liveKey(c.Caller, c.Callee)); err != nil {
		return models.Call{}, err
	}
	telemetry.CallsActive.Dec()
	logger.Info("call_ended", "id", c.ID, "reason", reason)
	return c, nil
}

// ExpireRinging ends every call that has been ringing longer than ttl and
// returns the ended records so the caller can fan out callEnded events.
// Driven by the sweeper; the state machine schedules nothing itself.
func ExpireRinging(ttl time.Duration) ([]models.Call, error) {
	cutoff := time.Now().UTC().Add(-ttl).UnixNano()
	var stale []string
	err := store.ScanPrefix("call:", func(_ string, val []byte) error {
		var c models.Call
		if err := json.Unmarshal(val, &c); err != nil {
			return nil
		}
		if c.State == models.CallRinging && c.StartTS < cutoff {
			stale = append(stale, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	var ended []models.Call
	for _, id := range stale {
		c, err := Expire(id)
		if err != nil {
			// Lost the race to a user-initiated transition; skip.
			continue
		}
		ended = append(ended, c)
	}
	return ended, nil
}
