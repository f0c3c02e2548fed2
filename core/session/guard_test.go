package session

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core/user"
)

func TestGuard_SetSession_CurrentUser(t *testing.T) {
	ctx := context.Background()

	for _, role := range user.AllRoles {
		for _, slug := range []string{"riverside", "", "école-42"} {
			t.Run(role+"/"+slug, func(t *testing.T) {
				tab, shared := newMemStore(), newMemStore()
				g := newTestGuard(tab, shared, newClock())
				usr := testUser(role)

				g.SetSession(ctx, usr, slug)

				got := g.CurrentUser(ctx)
				require.NotNil(t, got)
				assert.Equal(t, usr, *got)
				for _, s := range []*memStore{tab, shared} {
					assert.True(t, s.has(DataKey))
					assert.True(t, s.has(LegacyKey))
				}
			})
		}
	}
}

func TestGuard_SetSession_record(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tab := newMemStore()
	g := newTestGuard(tab, newMemStore(), clk)
	usr := testUser(user.RoleTeacher)

	g.SetSession(ctx, usr, "riverside")

	var rec Record
	require.NoError(t, json.Unmarshal([]byte(tab.data[DataKey]), &rec))
	assert.Equal(t, usr, rec.User)
	assert.Equal(t, "riverside", rec.SchoolSlug)
	assert.Equal(t, clk.Now().UnixNano()/int64(time.Millisecond), rec.Timestamp)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(tab.data[DataKey]), &raw))
	assert.Contains(t, raw, "user")
	assert.Contains(t, raw, "timestamp")
	assert.Contains(t, raw, "schoolSlug")
}

func TestGuard_SetSession_accessCode(t *testing.T) {
	ctx := context.Background()

	for _, role := range []string{user.RoleAdmin, user.RoleTeacher} {
		t.Run(role, func(t *testing.T) {
			tab, shared := newMemStore(), newMemStore()
			g := newTestGuard(tab, shared, newClock())
			usr := testUser(role)
			usr.AccessCode = "K7Q2XM9P"

			g.SetSession(ctx, usr, "riverside")

			for _, s := range []*memStore{tab, shared} {
				assert.NotContains(t, s.data[DataKey], usr.AccessCode)
				assert.NotContains(t, s.data[LegacyKey], usr.AccessCode)
			}
			got := g.CurrentUser(ctx)
			require.NotNil(t, got)
			assert.Empty(t, got.AccessCode)

			usr.AccessCode = ""
			assert.Equal(t, usr, *got)
		})
	}
}

func TestGuard_SetSession_incompleteUser(t *testing.T) {
	ctx := context.Background()
	tab, shared := newMemStore(), newMemStore()
	g := newTestGuard(tab, shared, newClock())

	noEmail := testUser(user.RoleStudent)
	noEmail.Email = ""
	g.SetSession(ctx, noEmail, "riverside")

	badRole := testUser(user.RoleStudent)
	badRole.Role = "janitor"
	g.SetSession(ctx, badRole, "riverside")

	assert.Zero(t, tab.len())
	assert.Zero(t, shared.len())
}

func TestGuard_SetSession_withoutLegacy(t *testing.T) {
	ctx := context.Background()
	tab, shared := newMemStore(), newMemStore()
	_ = tab.Set(ctx, LegacyKey, `{"email":"old@riverside.test","role":"student"}`)
	g := NewGuard(tab, shared, Options{NowFunc: newClock().Now})

	g.SetSession(ctx, testUser(user.RoleParent), "riverside")

	assert.True(t, tab.has(DataKey))
	assert.False(t, tab.has(LegacyKey))
	assert.False(t, shared.has(LegacyKey))
}

func TestGuard_CurrentUser_expiry(t *testing.T) {
	ctx := context.Background()

	write := func(s Store, clk *clock, age time.Duration) {
		data, err := json.Marshal(Record{
			User:       testUser(user.RoleAdmin),
			Timestamp:  clk.Now().Add(-age).UnixNano() / int64(time.Millisecond),
			SchoolSlug: "riverside",
		})
		require.NoError(t, err)
		require.NoError(t, s.Set(ctx, DataKey, string(data)))
	}

	tests := []struct {
		name      string
		age       time.Duration
		wantValid bool
	}{
		{name: "fresh", age: 0, wantValid: true},
		{name: "just before ttl", age: DefaultTTL - time.Millisecond, wantValid: true},
		{name: "at ttl", age: DefaultTTL},
		{name: "ttl + 1ms", age: DefaultTTL + time.Millisecond},
		{name: "25 hours", age: 25 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := newClock()
			tab, shared := newMemStore(), newMemStore()
			write(tab, clk, tt.age)
			_ = shared.Set(ctx, LegacyKey, `{"email":"admin@riverside.test","role":"admin"}`)
			g := newTestGuard(tab, shared, clk)

			got := g.CurrentUser(ctx)
			if tt.wantValid {
				require.NotNil(t, got)
				assert.True(t, tab.has(DataKey))
				return
			}
			assert.Nil(t, got)
			for _, s := range []*memStore{tab, shared} {
				_, err := s.Get(ctx, DataKey)
				assert.Equal(t, ErrKeyNotFound, err)
				assert.False(t, s.has(LegacyKey), "legacy key must not outlive an expired record")
			}
		})
	}
}

func TestGuard_CurrentUser_clockAdvance(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	g := newTestGuard(newMemStore(), newMemStore(), clk)
	g.SetSession(ctx, testUser(user.RoleAdmin), "riverside")

	clk.Advance(23 * time.Hour)
	assert.NotNil(t, g.CurrentUser(ctx))

	clk.Advance(2 * time.Hour)
	assert.Nil(t, g.CurrentUser(ctx))
}

func TestGuard_CurrentUser_customTTL(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	g := NewGuard(newMemStore(), newMemStore(), Options{TTL: time.Hour, NowFunc: clk.Now})
	g.SetSession(ctx, testUser(user.RoleStudent), "riverside")

	clk.Advance(time.Hour)
	assert.Nil(t, g.CurrentUser(ctx))
}

func TestGuard_CurrentUser_malformed(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		key     string
		payload string
	}{
		{name: "not json", key: DataKey, payload: "definitely {not json"},
		{name: "wrong shape", key: DataKey, payload: `["user"]`},
		{name: "missing user", key: DataKey, payload: `{"timestamp": 1, "schoolSlug": "riverside"}`},
		{name: "missing email", key: DataKey, payload: `{"user": {"id": "1", "role": "admin"}, "timestamp": 1}`},
		{name: "legacy not json", key: LegacyKey, payload: "nope"},
		{name: "legacy missing email", key: LegacyKey, payload: `{"id": "1", "role": "admin"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tab, shared := newMemStore(), newMemStore()
			require.NoError(t, tab.Set(ctx, tt.key, tt.payload))
			require.NoError(t, shared.Set(ctx, LegacyKey, `{"email":"x@riverside.test","role":"admin"}`))
			g := newTestGuard(tab, shared, newClock())

			assert.Nil(t, g.CurrentUser(ctx))
			assert.Zero(t, tab.len())
			assert.Zero(t, shared.len())
		})
	}
}

func TestGuard_CurrentUser_precedence(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	tab, shared := newMemStore(), newMemStore()

	// another tab logged in a parent, this tab a teacher
	newTestGuard(newMemStore(), shared, clk).SetSession(ctx, testUser(user.RoleParent), "riverside")
	newTestGuard(tab, newMemStore(), clk).SetSession(ctx, testUser(user.RoleTeacher), "riverside")

	got := newTestGuard(tab, shared, clk).CurrentUser(ctx)
	require.NotNil(t, got)
	assert.Equal(t, user.RoleTeacher, got.Role)

	// without a tab record the shared one is used
	got = newTestGuard(newMemStore(), shared, clk).CurrentUser(ctx)
	require.NotNil(t, got)
	assert.Equal(t, user.RoleParent, got.Role)
}

func TestGuard_CurrentUser_legacyMigration(t *testing.T) {
	ctx := context.Background()
	usr := testUser(user.RoleStudent)
	legacy, err := json.Marshal(usr)
	require.NoError(t, err)

	for _, dualWrite := range []bool{true, false} {
		tab, shared := newMemStore(), newMemStore()
		require.NoError(t, shared.Set(ctx, LegacyKey, string(legacy)))
		g := NewGuard(tab, shared, Options{DualWriteLegacy: dualWrite, NowFunc: newClock().Now})

		got := g.CurrentUser(ctx)
		require.NotNil(t, got)
		assert.Equal(t, usr, *got)

		assert.False(t, tab.has(DataKey), "migration stays in the tier the record was found in")
		rec, err := decodeRecord(shared.data[DataKey])
		require.NoError(t, err)
		assert.Equal(t, usr, rec.User)
		assert.Equal(t, dualWrite, shared.has(LegacyKey))
	}
}

func TestGuard_storageFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("write", func(t *testing.T) {
		tab, shared := newMemStore(), newMemStore()
		tab.failSet, shared.failSet = errStorageDown, errStorageDown
		g := newTestGuard(tab, shared, newClock())

		assert.NotPanics(t, func() { g.SetSession(ctx, testUser(user.RoleAdmin), "riverside") })
		assert.Nil(t, g.CurrentUser(ctx))
	})

	t.Run("partial write", func(t *testing.T) {
		tab, shared := newMemStore(), newMemStore()
		tab.failSet = errStorageDown
		g := newTestGuard(tab, shared, newClock())

		g.SetSession(ctx, testUser(user.RoleAdmin), "riverside")
		assert.NotNil(t, g.CurrentUser(ctx))
	})

	t.Run("read", func(t *testing.T) {
		tab, shared := newMemStore(), newMemStore()
		g := newTestGuard(tab, shared, newClock())
		g.SetSession(ctx, testUser(user.RoleAdmin), "riverside")
		tab.failGet = errStorageDown

		res := g.Validate(ctx, "/riverside/admin")
		assert.False(t, res.Valid)
		assert.Equal(t, ErrNoSession, res.Err)
		assert.True(t, shared.has(DataKey), "an unreadable store is not a reason to clear")
	})
}

func TestGuard_Validate(t *testing.T) {
	ctx := context.Background()

	for _, storedRole := range user.AllRoles {
		for _, pathRole := range user.AllRoles {
			t.Run(storedRole+" on "+pathRole, func(t *testing.T) {
				tab, shared := newMemStore(), newMemStore()
				g := newTestGuard(tab, shared, newClock())
				g.SetSession(ctx, testUser(storedRole), "riverside")

				res := g.Validate(ctx, "/riverside/"+pathRole+"/dashboard")
				assert.Equal(t, storedRole == pathRole, res.Valid)
				require.NotNil(t, res.User)
				assert.Equal(t, storedRole, res.User.Role)
				if storedRole != pathRole {
					assert.Equal(t, ErrRoleMismatch, res.Err)
				}
				assert.True(t, tab.has(DataKey), "validation never clears")

				res = g.Validate(ctx, "/"+pathRole)
				assert.Equal(t, storedRole == pathRole, res.Valid)
			})
		}

		t.Run(storedRole+" on public page", func(t *testing.T) {
			g := newTestGuard(newMemStore(), newMemStore(), newClock())
			g.SetSession(ctx, testUser(storedRole), "riverside")

			for _, path := range []string{"/school-select", "/", "", "/riverside", "/riverside/auth/login"} {
				res := g.Validate(ctx, path)
				assert.True(t, res.Valid, path)
				assert.NoError(t, res.Err, path)
			}
		})
	}

	t.Run("no session", func(t *testing.T) {
		g := newTestGuard(newMemStore(), newMemStore(), newClock())
		res := g.Validate(ctx, "/school-select")
		assert.False(t, res.Valid)
		assert.Nil(t, res.User)
		assert.Equal(t, ErrNoSession, res.Err)
		assert.Equal(t, "no session", res.Err.Error())
	})
}

func TestGuard_Clear(t *testing.T) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		tab, shared := newMemStore(), newMemStore()
		g := newTestGuard(tab, shared, newClock())

		assert.NotPanics(t, func() {
			g.Clear(ctx)
			g.Clear(ctx)
		})
		assert.Zero(t, tab.len())
		assert.Zero(t, shared.len())
		assert.Nil(t, g.CurrentUser(ctx))
	})

	t.Run("unrelated keys survive", func(t *testing.T) {
		tab, shared := newMemStore(), newMemStore()
		require.NoError(t, shared.Set(ctx, "theme", "dark"))
		g := newTestGuard(tab, shared, newClock())
		g.SetSession(ctx, testUser(user.RoleParent), "riverside")

		g.Clear(ctx)
		assert.Zero(t, tab.len())
		assert.Equal(t, 1, shared.len())
		assert.True(t, shared.has("theme"))
	})

	t.Run("publishes invalidation", func(t *testing.T) {
		clk := newClock()
		notifier := new(fakeNotifier)
		g := NewGuard(newMemStore(), newMemStore(), Options{
			Notifier: notifier,
			Origin:   Scope{Browser: "b1", Tab: "t1"},
			NowFunc:  clk.Now,
		})

		g.Clear(ctx)
		require.Len(t, notifier.published, 1)
		assert.Equal(t, Invalidation{
			Browser: "b1",
			Tab:     "t1",
			Reason:  ReasonLogout,
			At:      clk.Now().UnixNano() / int64(time.Millisecond),
		}, notifier.published[0])
	})
}

func TestGuard_multiTab(t *testing.T) {
	ctx := context.Background()
	clk := newClock()
	shared := newMemStore()
	tabA, tabB := newMemStore(), newMemStore()
	guardA := newTestGuard(tabA, shared, clk)
	guardB := newTestGuard(tabB, shared, clk)

	guardA.SetSession(ctx, testUser(user.RoleAdmin), "riverside")
	guardB.SetSession(ctx, testUser(user.RoleStudent), "riverside")

	// tab A's shared record is removed from elsewhere
	require.NoError(t, shared.Remove(ctx, DataKey))
	require.NoError(t, shared.Remove(ctx, LegacyKey))

	got := guardB.CurrentUser(ctx)
	require.NotNil(t, got)
	assert.Equal(t, testUser(user.RoleStudent), *got)

	got = guardA.CurrentUser(ctx)
	require.NotNil(t, got)
	assert.Equal(t, testUser(user.RoleAdmin), *got)
}
