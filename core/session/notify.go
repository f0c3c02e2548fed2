package session

import "context"

// Invalidation reasons
const (
	ReasonLogout       = "logout"
	ReasonExpired      = "expired"
	ReasonMalformed    = "malformed"
	ReasonRoleMismatch = "role mismatch"
)

// Invalidation tells the other tabs of a browser that its shared session record was cleared.
type Invalidation struct {
	Browser string `json:"browser"`
	Tab     string `json:"tab"` // originating tab
	Reason  string `json:"reason"`
	At      int64  `json:"at"` // ms since epoch
}

// Notifier carries Invalidations between the tabs of a browser. Delivery is best-effort.
type Notifier interface {
	Publish(ctx context.Context, ev Invalidation) error
	Subscribe(ctx context.Context, browser string) (Subscription, error)
}

type Subscription interface {
	C() <-chan Invalidation
	Close() error
}
