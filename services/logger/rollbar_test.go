package logsvc

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/user"
)

func newTestLogger(level string) (*RollbarLogger, *bytes.Buffer) {
	buf := new(bytes.Buffer)
	conf := &core.Config{Env: "TEST", AppName: "Masomo", TestMode: true, Log: core.LogConfig{Level: level}}
	return NewRollbarLogger(buf, conf), buf
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var res []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		entry := make(map[string]interface{})
		require.NoError(t, json.Unmarshal([]byte(line), &entry))
		res = append(res, entry)
	}
	return res
}

func TestRollbarLogger(t *testing.T) {
	logger, buf := newTestLogger("debug")

	usr := user.User{ID: "u1", Email: "sue@riverside.test", Role: user.RoleStudent}
	logger.Warn("session: write failed", errors.New("redis down"), map[string]interface{}{"tier": "shared"}, usr)
	logger.Debug("hello")

	entries := lines(t, buf)
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0]["level"])
	assert.Equal(t, "session: write failed", entries[0]["message"])
	assert.Equal(t, "redis down", entries[0]["error"])
	assert.Equal(t, "shared", entries[0]["tier"])
	assert.Equal(t, "u1", entries[0]["user_id"])
	assert.Equal(t, "Masomo", entries[0]["app"])
	assert.Equal(t, "debug", entries[1]["level"])
}

func TestRollbarLogger_level(t *testing.T) {
	logger, buf := newTestLogger("warn")
	logger.Info("dropped")
	logger.Error("kept")

	entries := lines(t, buf)
	require.Len(t, entries, 1)
	assert.Equal(t, "kept", entries[0]["message"])
}

func TestRollbarLogger_prepare(t *testing.T) {
	logger, _ := newTestLogger("")
	err := errors.New("boom")
	usr := user.User{ID: "u1"}

	got := logger.prepare("msg", []interface{}{err, usr, user.User{ID: "u2"}})
	assert.Equal(t, []interface{}{"msg", err}, got)
}
