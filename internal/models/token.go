package models

import "time"

// RefreshSession maps an opaque refresh token to its owner until ExpiresAt.
// Sessions live only in the session store and are never persisted to Postgres.
type RefreshSession struct {
	Token     string
	Username  string
	ExpiresAt time.Time
}
