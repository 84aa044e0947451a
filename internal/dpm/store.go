package dpm

import "context"

// Session is the per-browser state the correlation store keeps between the
// fingerprint post and the gateway's relay callback. Orders is keyed by
// order id so one session can hold several in-flight checkout attempts.
type Session struct {
	Orders map[string]Record `json:"orders,omitempty"`

	// Requests counts the requests seen under this session. Diagnostic only;
	// nothing in the payment flow reads it.
	Requests int64 `json:"requests,omitempty"`
}

// Store is the session-keyed correlation store supplied by the host
// application. The core never assumes a record still exists: Get returns
// (nil, nil) for an absent session, and every Set is best-effort from the
// caller's point of view. Durability and eviction belong to the store.
type Store interface {
	Get(ctx context.Context, sessionID string) (*Session, error)
	Set(ctx context.Context, sessionID string, sess *Session) error
}
