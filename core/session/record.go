package session

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/user"
)

// Storage keys, shared by both tiers.
const (
	DataKey   = "sessionData"
	LegacyKey = "currentUser" // bare user.User, read by older clients
)

const DefaultTTL = 24 * time.Hour

var (
	ErrMalformed = errors.New("malformed session")
	ErrExpired   = errors.New("expired session")
)

// Record is the payload stored under DataKey.
type Record struct {
	User       user.User `json:"user"`
	Timestamp  int64     `json:"timestamp"` // issued at, ms since epoch
	SchoolSlug string    `json:"schoolSlug"`
}

func (rec Record) IssuedAt() time.Time {
	return time.Unix(0, rec.Timestamp*int64(time.Millisecond))
}

// Expired reports whether rec is no longer valid at `now`: valid while now - issued_at < ttl.
func (rec Record) Expired(now time.Time, ttl time.Duration) bool {
	return toMillis(now)-rec.Timestamp >= int64(ttl/time.Millisecond)
}

func toMillis(t time.Time) int64 {
	return t.UnixNano() / int64(time.Millisecond)
}

func decodeRecord(raw string) (Record, error) {
	var rec Record
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return Record{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if rec.User.Email == "" {
		return Record{}, errors.Wrap(ErrMalformed, "missing user email")
	}
	return rec, nil
}

func decodeLegacy(raw string) (user.User, error) {
	var usr user.User
	if err := json.Unmarshal([]byte(raw), &usr); err != nil {
		return user.User{}, errors.Wrap(ErrMalformed, err.Error())
	}
	if usr.Email == "" {
		return user.User{}, errors.Wrap(ErrMalformed, "missing user email")
	}
	return usr, nil
}
