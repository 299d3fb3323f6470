// Package queue defines the authentication audit events exchanged over the
// message broker and the consumer that stores them.
package queue

import (
	"time"

	"github.com/iliyamo/nurox-dashboard/internal/ids"
)

// AuthEventKind names what happened.
type AuthEventKind string

const (
	EventLoginSucceeded AuthEventKind = "login_succeeded"
	EventLoginFailed    AuthEventKind = "login_failed"
	EventLogout         AuthEventKind = "logout"
	EventTokenRefreshed AuthEventKind = "token_refreshed"
	EventRefreshFailed  AuthEventKind = "refresh_failed"
)

// AuthEvent is published for every login, logout and refresh.  It never
// carries a password or token.
type AuthEvent struct {
	ID         string        `json:"id"`
	Kind       AuthEventKind `json:"kind"`
	UserID     string        `json:"user_id,omitempty"`
	Email      string        `json:"email,omitempty"`
	Role       string        `json:"role,omitempty"`
	Reason     string        `json:"reason,omitempty"`
	RemoteIP   string        `json:"remote_ip,omitempty"`
	RequestID  string        `json:"request_id,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}

// NewAuthEvent stamps a new event with a ULID and the current time.
func NewAuthEvent(kind AuthEventKind) AuthEvent {
	now := time.Now().UTC()
	return AuthEvent{ID: ids.At(now), Kind: kind, OccurredAt: now}
}
