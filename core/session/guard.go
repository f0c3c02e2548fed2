package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

var (
	ErrNoSession    = errors.New("no session")
	ErrRoleMismatch = errors.New("role mismatch")
)

type (
	// Scope identifies a browser tab.
	Scope struct {
		Browser string
		Tab     string
	}

	Options struct {
		TTL time.Duration // DefaultTTL if unset

		// DualWriteLegacy also writes the bare user under LegacyKey, for older readers.
		DualWriteLegacy bool

		Logger   core.Logger
		Notifier Notifier // optional; receives an Invalidation whenever the session is cleared
		Origin   Scope    // the tab the Guard acts for
		NowFunc  func() time.Time
	}

	// Guard decides whether the session stored for a tab may be used on a navigation target.
	// It never caches: every call re-reads the stores.
	Guard struct {
		tiers []tier
		opts  Options
	}

	tier struct {
		name  string
		store Store
	}

	Result struct {
		Valid bool
		User  *user.User
		Err   error // ErrNoSession | ErrRoleMismatch
	}

	Decision struct {
		Render   bool
		Redirect string
		Result   Result
	}
)

// NewGuard returns a Guard reading `tab` first and `shared` second.
func NewGuard(tab, shared Store, opts Options) *Guard {
	if opts.TTL <= 0 {
		opts.TTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	if opts.NowFunc == nil {
		opts.NowFunc = time.Now
	}
	return &Guard{
		tiers: []tier{{name: "tab", store: tab}, {name: "shared", store: shared}},
		opts:  opts,
	}
}

func (g *Guard) now() time.Time { return g.opts.NowFunc() }

// SetSession stores a fresh record for usr in both tiers.
// usr must have been authenticated; write failures are only logged: the user will be asked to log in again.
func (g *Guard) SetSession(ctx context.Context, usr user.User, schoolSlug string) {
	if usr.Email == "" || !user.IsRole(usr.Role) {
		g.opts.Logger.Error("session: refusing to store incomplete user", map[string]interface{}{"user_id": usr.ID, "role": usr.Role})
		return
	}

	data, err := json.Marshal(Record{User: usr, Timestamp: toMillis(g.now()), SchoolSlug: schoolSlug})
	if err != nil {
		g.opts.Logger.Error("session: encoding record", errors.Wrap(err, "marshalling record"))
		return
	}
	var legacy []byte
	if g.opts.DualWriteLegacy {
		if legacy, err = json.Marshal(usr); err != nil {
			g.opts.Logger.Error("session: encoding legacy record", errors.Wrap(err, "marshalling user"))
			return
		}
	}

	for _, t := range g.tiers {
		if err := t.store.Set(ctx, DataKey, string(data)); err != nil {
			g.opts.Logger.Warn("session: write failed", errors.Wrapf(err, "%s tier", t.name))
			continue
		}
		if legacy != nil {
			if err := t.store.Set(ctx, LegacyKey, string(legacy)); err != nil {
				g.opts.Logger.Warn("session: legacy write failed", errors.Wrapf(err, "%s tier", t.name))
			}
		} else if err := t.store.Remove(ctx, LegacyKey); err != nil && !isNotFound(err) {
			g.opts.Logger.Warn("session: legacy cleanup failed", errors.Wrapf(err, "%s tier", t.name))
		}
	}
}

// CurrentUser returns the user of the authoritative record, nil if there is none.
// Malformed & expired records are cleared before returning nil.
func (g *Guard) CurrentUser(ctx context.Context) *user.User {
	rec, err := g.read(ctx)
	if err != nil {
		switch errors.Cause(err) {
		case ErrMalformed:
			g.opts.Logger.Warn("session: discarding malformed record", err)
			g.clear(ctx, ReasonMalformed)
		case ErrExpired:
			g.opts.Logger.Info("session: discarding expired record", err)
			g.clear(ctx, ReasonExpired)
		default:
			g.opts.Logger.Warn("session: storage unavailable", err)
		}
		return nil
	}
	if rec == nil {
		return nil
	}
	usr := rec.User
	return &usr
}

// read looks records up in order: tab DataKey, shared DataKey, tab LegacyKey, shared LegacyKey.
func (g *Guard) read(ctx context.Context) (*Record, error) {
	for _, t := range g.tiers {
		raw, err := t.store.Get(ctx, DataKey)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, errors.Wrapf(err, "reading %s tier", t.name)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "%s tier", t.name)
		}
		if rec.Expired(g.now(), g.opts.TTL) {
			return nil, errors.Wrapf(ErrExpired, "%s tier: issued at %s", t.name, rec.IssuedAt().UTC().Format(time.RFC3339))
		}
		return &rec, nil
	}

	for _, t := range g.tiers {
		raw, err := t.store.Get(ctx, LegacyKey)
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, errors.Wrapf(err, "reading %s tier", t.name)
		}
		usr, err := decodeLegacy(raw)
		if err != nil {
			return nil, errors.Wrapf(err, "%s tier legacy", t.name)
		}
		rec := g.migrateLegacy(ctx, t, usr)
		return &rec, nil
	}
	return nil, nil
}

// migrateLegacy upgrades a bare user found under LegacyKey to a Record in the same tier.
func (g *Guard) migrateLegacy(ctx context.Context, t tier, usr user.User) Record {
	rec := Record{User: usr, Timestamp: toMillis(g.now())}
	data, err := json.Marshal(rec)
	if err != nil {
		g.opts.Logger.Error("session: encoding migrated record", errors.Wrap(err, "marshalling record"))
		return rec
	}
	if err := t.store.Set(ctx, DataKey, string(data)); err != nil {
		g.opts.Logger.Warn("session: legacy migration failed", errors.Wrapf(err, "%s tier", t.name))
		return rec
	}
	if !g.opts.DualWriteLegacy {
		if err := t.store.Remove(ctx, LegacyKey); err != nil && !isNotFound(err) {
			g.opts.Logger.Warn("session: legacy cleanup failed", errors.Wrapf(err, "%s tier", t.name))
		}
	}
	g.opts.Logger.Info("session: migrated legacy record", map[string]interface{}{"tier": t.name, "user_id": usr.ID})
	return rec
}

// Validate checks that a session exists and that its role fits path.
// Paths without a role segment are not role checked. The stored session is left untouched.
func (g *Guard) Validate(ctx context.Context, path string) Result {
	usr := g.CurrentUser(ctx)
	if usr == nil {
		return Result{Err: ErrNoSession}
	}
	if role := RoleFromPath(path); role != "" && usr.Role != role {
		return Result{User: usr, Err: ErrRoleMismatch}
	}
	return Result{Valid: true, User: usr}
}

// Decide applies the redirect policy of protected pages to a navigation towards path.
// Paths without a role segment are public and always rendered.
func (g *Guard) Decide(ctx context.Context, path string) Decision {
	if RoleFromPath(path) == "" {
		return Decision{Render: true}
	}
	res := g.Validate(ctx, path)
	if res.Valid {
		return Decision{Render: true, Result: res}
	}
	if res.Err == ErrRoleMismatch {
		g.clear(ctx, ReasonRoleMismatch)
	}
	return Decision{Redirect: LoginPath(path), Result: res}
}

// Clear removes the session from both tiers. It is safe to call when there is no session.
func (g *Guard) Clear(ctx context.Context) {
	g.clear(ctx, ReasonLogout)
}

func (g *Guard) clear(ctx context.Context, reason string) {
	for _, t := range g.tiers {
		for _, key := range []string{DataKey, LegacyKey} {
			if err := t.store.Remove(ctx, key); err != nil && !isNotFound(err) {
				g.opts.Logger.Warn("session: remove failed", errors.Wrapf(err, "%s tier %s", t.name, key))
			}
		}
	}

	if g.opts.Notifier == nil || g.opts.Origin.Browser == "" {
		return
	}
	ev := Invalidation{
		Browser: g.opts.Origin.Browser,
		Tab:     g.opts.Origin.Tab,
		Reason:  reason,
		At:      toMillis(g.now()),
	}
	if err := g.opts.Notifier.Publish(ctx, ev); err != nil {
		g.opts.Logger.Warn("session: publishing invalidation failed", errors.Wrap(err, reason))
	}
}

// HandleInvalidation reacts to another tab clearing the shared record.
// The tab keeps going if it still holds its own record; otherwise it must go to the login page.
func (g *Guard) HandleInvalidation(ctx context.Context, ev Invalidation, currentPath string) (string, bool) {
	if ev.Browser != g.opts.Origin.Browser || ev.Tab == g.opts.Origin.Tab {
		return "", false
	}
	if g.hasTabRecord(ctx) {
		return "", false
	}
	redirect := LoginPath(currentPath)
	if redirect == currentPath {
		return "", false
	}
	return redirect, true
}

func (g *Guard) hasTabRecord(ctx context.Context) bool {
	tab := g.tiers[0]
	for _, key := range []string{DataKey, LegacyKey} {
		if _, err := tab.store.Get(ctx, key); err == nil {
			return true
		} else if !isNotFound(err) {
			g.opts.Logger.Warn("session: storage unavailable", errors.Wrapf(err, "reading %s tier", tab.name))
			return false
		}
	}
	return false
}
