package router

import (
	"errors"
	"log"

	"edujam/internal/hub"
	"edujam/internal/metrics"
	"edujam/pkg/types"
)

// Metric labels for frames that never became a known command
const (
	labelInvalid = "invalid"
	labelUnknown = "unknown"
	labelLimited = "rate_limited"
)

// base holds what every channel dispatcher shares: its broadcast engine and
// the per-session command budget
type base struct {
	hub     *hub.Hub
	limiter *RateLimiter
}

func newBase(h *hub.Hub, commandsPerMinute int) (base, error) {
	if h == nil {
		return base{}, ErrNilHub
	}
	return base{hub: h, limiter: NewRateLimiter(commandsPerMinute)}, nil
}

// Limiter exposes the rate limiter so the owner can schedule Cleanup
func (b *base) Limiter() *RateLimiter {
	return b.limiter
}

// admit parses one frame after charging it to the sender's budget.
// ok is false when the frame was rejected and the sender already told why.
func (b *base) admit(sessionID string, frame []byte, parse func([]byte) (Command, error)) (Command, bool) {
	if !b.limiter.Allow(sessionID) {
		b.finish(sessionID, labelLimited, errRateLimited)
		return nil, false
	}

	cmd, err := parse(frame)
	if err != nil {
		label := labelInvalid
		if cmd != nil {
			label = cmd.Type()
		}
		b.finish(sessionID, label, err)
		return nil, false
	}
	if u, isUnknown := cmd.(Unknown); isUnknown {
		b.finish(sessionID, labelUnknown, types.UnknownCommandf("Unknown message type: %s", u.Tag))
		return nil, false
	}
	return cmd, true
}

// finish records the outcome of one command and reports a failure to the
// sender only. Errors that are not command errors are logged and reported
// with a generic message.
func (b *base) finish(sessionID, commandType string, err error) {
	channel := b.hub.Channel()
	if err == nil {
		b.hub.Metrics().Command(channel, commandType, metrics.ResultOK)
		return
	}
	b.hub.Metrics().Command(channel, commandType, metrics.ResultError)

	var cmdErr *types.CommandError
	if !errors.As(err, &cmdErr) {
		log.Printf("[%s] Command failed: session=%s type=%s err=%v", channel, sessionID, commandType, err)
	}
	b.reply(sessionID, types.NewErrorEvent(types.ClientMessage(err)))
}

// reply unicasts to the sender. A failed write is only logged; the sender's
// read loop notices the broken transport and runs its cleanup.
func (b *base) reply(sessionID string, event interface{}) {
	if err := b.hub.SendTo(sessionID, event); err != nil {
		log.Printf("[%s] Failed to reply to session %s: %v", b.hub.Channel(), sessionID, err)
	}
}

// identity returns the authenticated user id of a session, or "" if anonymous
func (b *base) identity(sessionID string) string {
	s, ok := b.hub.Sessions().Get(sessionID)
	if !ok {
		return ""
	}
	return s.UserID()
}

// actor names a session in events: its user id, or the session id when anonymous
func (b *base) actor(sessionID string) string {
	if id := b.identity(sessionID); id != "" {
		return id
	}
	return sessionID
}

// broadcast hands event to the engine and logs marshal failures
func (b *base) broadcast(roomID string, event interface{}, excludeSessionID string) {
	if _, err := b.hub.Send(roomID, event, excludeSessionID); err != nil {
		log.Printf("[%s] Broadcast to room %s failed: %v", b.hub.Channel(), roomID, err)
	}
}
