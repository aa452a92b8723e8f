package models

import "time"

// SessionToken is an issued bearer token. Value is what the caller holds;
// ID is the key the backend stores it under.
type SessionToken struct {
	ID        string
	UserID    int64
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

func (t *SessionToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}
