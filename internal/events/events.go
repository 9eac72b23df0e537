package events

import (
	"context"
	"fmt"
	"time"
)

type Type string

const (
	TypeLogin           Type = "login"
	TypeRefresh         Type = "refresh"
	TypeLogout          Type = "logout"
	TypeReuseDetected   Type = "reuse_detected"
	TypeSessionsRevoked Type = "sessions_revoked"
	TypePasswordChanged Type = "password_changed"
	TypeAccountDisabled Type = "account_disabled"
)

// Event is a security-relevant session change. It never carries token material.
type Event struct {
	Type       Type
	UserID     string
	Reason     string
	OccurredAt time.Time
}

// Publisher delivers events to whoever audits them.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

func (e Event) Values() map[string]any {
	return map[string]any{
		"type":       string(e.Type),
		"userId":     e.UserID,
		"reason":     e.Reason,
		"occurredAt": e.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

// Decode rebuilds an Event from stream entry values.
func Decode(values map[string]any) (Event, error) {
	str := func(key string) string {
		v, _ := values[key].(string)
		return v
	}

	e := Event{
		Type:   Type(str("type")),
		UserID: str("userId"),
		Reason: str("reason"),
	}
	if e.Type == "" {
		return Event{}, fmt.Errorf("event without type")
	}
	if ts := str("occurredAt"); ts != "" {
		t, err := time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return Event{}, fmt.Errorf("parse occurredAt: %w", err)
		}
		e.OccurredAt = t
	}
	return e, nil
}
