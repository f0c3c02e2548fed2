package tests

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type channelFrame struct {
	Op   string `json:"op"`
	Path string `json:"path,omitempty"`
	To   string `json:"to,omitempty"`
}

func (tb *tab) dialChannel(path string, header http.Header) (*websocket.Conn, *http.Response, error) {
	if header == nil {
		header = make(http.Header)
	}
	header.Set(tabHeader, tb.id)
	dialer := websocket.Dialer{Jar: tb.client.Jar, HandshakeTimeout: 5 * time.Second}
	wsURL := "ws" + strings.TrimPrefix(tb.base, "http") + "/api/session/channel?path=" + path
	return dialer.Dial(wsURL, header)
}

// openChannel returns once the channel is subscribed to the invalidations of the browser.
func (tb *tab) openChannel(path string) *websocket.Conn {
	tb.t.Helper()
	conn, _, err := tb.dialChannel(path, nil)
	require.NoError(tb.t, err)
	tb.t.Cleanup(func() { _ = conn.Close() })

	require.NoError(tb.t, conn.WriteJSON(channelFrame{Op: "heartbeat"}))
	require.Equal(tb.t, channelFrame{Op: "heartbeat_ack"}, readFrame(tb.t, conn))
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) channelFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var frame channelFrame
	require.NoError(t, conn.ReadJSON(&frame))
	return frame
}

func Test_tabChannel_logout(t *testing.T) {
	fx := setup(t)
	b := fx.newBrowser(t)
	tabA, tabB, tabC := b.tab("tab-a"), b.tab("tab-b"), b.tab("tab-c")

	tabA.mustLogin(fx.admin)
	tabC.mustLogin(fx.admin)

	connA := tabA.openChannel("/riverside/admin")
	connB := tabB.openChannel("/riverside/admin")
	connC := tabC.openChannel("/riverside/admin")

	// B moves elsewhere before A logs out
	require.NoError(t, connB.WriteJSON(channelFrame{Op: "navigate", Path: "/riverside/admin/reports"}))
	require.NoError(t, connB.WriteJSON(channelFrame{Op: "heartbeat"}))
	require.Equal(t, channelFrame{Op: "heartbeat_ack"}, readFrame(t, connB))

	resp := tabA.do(http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// B only had the browser session: it must log in again
	assert.Equal(t, channelFrame{Op: "redirect", To: "/riverside/auth/login"}, readFrame(t, connB))

	// C has its own session & A sent the invalidation
	for _, conn := range []*websocket.Conn{connA, connC} {
		require.NoError(t, conn.WriteJSON(channelFrame{Op: "heartbeat"}))
		assert.Equal(t, channelFrame{Op: "heartbeat_ack"}, readFrame(t, conn))
	}
}

func Test_tabChannel_roleMismatch(t *testing.T) {
	fx := setup(t)
	b := fx.newBrowser(t)
	tabA, tabB := b.tab("tab-a"), b.tab("tab-b")

	tabA.mustLogin(fx.teacher)
	connB := tabB.openChannel("/riverside/teacher")

	resp := tabA.get("/riverside/student")
	require.Equal(t, http.StatusFound, resp.StatusCode)

	assert.Equal(t, channelFrame{Op: "redirect", To: "/riverside/auth/login"}, readFrame(t, connB))
}

func Test_tabChannel_publicPage(t *testing.T) {
	fx := setup(t)
	b := fx.newBrowser(t)
	tabA, tabB := b.tab("tab-a"), b.tab("tab-b")

	tabA.mustLogin(fx.parent)
	connB := tabB.openChannel("/riverside/auth/login")

	resp := tabA.do(http.MethodPost, "/api/session/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// already on the login page
	require.NoError(t, connB.WriteJSON(channelFrame{Op: "heartbeat"}))
	assert.Equal(t, channelFrame{Op: "heartbeat_ack"}, readFrame(t, connB))
}

func Test_tabChannel_origin(t *testing.T) {
	fx := setup(t)
	tb := fx.newBrowser(t).tab("tab-a")

	header := make(http.Header)
	header.Set("Origin", "http://evil.test")
	_, resp, err := tb.dialChannel("/", header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := tb.dialChannel("/", header)
	require.NoError(t, err)
	_ = conn.Close()
}
