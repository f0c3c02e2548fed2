package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/masomo-portal/apps/api/echo"
	"github.com/trezcool/masomo-portal/core"
	"github.com/trezcool/masomo-portal/core/auth"
	"github.com/trezcool/masomo-portal/core/school"
	"github.com/trezcool/masomo-portal/core/session"
	"github.com/trezcool/masomo-portal/core/user"
	"github.com/trezcool/masomo-portal/services/broadcast"
	inmemdb "github.com/trezcool/masomo-portal/storage/database/inmem"
	"github.com/trezcool/masomo-portal/storage/kv"
	"github.com/trezcool/masomo-portal/tests"
)

const tabHeader = "X-Tab-ID"

type fixture struct {
	srv      *httptest.Server
	tabs     *kv.Memory
	browsers *kv.Memory
	notifier *broadcast.Local
	users    user.Repository
	offset   atomic.Int64 // added to the wall clock of the sessions

	school  school.School
	admin   user.User
	teacher user.User
	student user.User
	parent  user.User
}

func testConfig() *core.Config {
	return &core.Config{
		AppName:   "Masomo",
		SecretKey: "test-secret",
		Debug:     true, // plain-http cookies
		TestMode:  true,
		Server: core.ServerConfig{
			AllowedOrigins: []string{"http://localhost:3000"},
			ScopeCookieAge: time.Hour,
		},
	}
}

func setup(t *testing.T) *fixture {
	t.Helper()

	conf := testConfig()
	translator := core.NewTranslator()
	validate := validator.New()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	school.InitValidators(validate, translator)

	// set up DB & repos
	db := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(db)
	schRepo := inmemdb.NewSchoolRepository(db)

	// set up services
	usrSvc := user.NewService(usrRepo)
	schSvc := school.NewService(schRepo)

	fx := &fixture{
		tabs:     kv.NewMemory(session.DefaultTTL),
		browsers: kv.NewMemory(session.DefaultTTL),
		notifier: broadcast.NewLocal(),
		users:    usrRepo,
	}
	sessions := session.NewManager(fx.tabs, fx.browsers, session.Options{
		DualWriteLegacy: true,
		Notifier:        fx.notifier,
		NowFunc: func() time.Time {
			return time.Now().Add(time.Duration(fx.offset.Load()))
		},
	})

	fx.school = testutil.CreateSchool(t, schRepo, "riverside", "Riverside High", true)
	testutil.CreateSchool(t, schRepo, "hillcrest", "Hillcrest", true)
	testutil.CreateSchool(t, schRepo, "closed", "Closed Academy", false)

	mk := func(name, email, role string) user.User {
		usr, err := usrSvc.Create(context.Background(), user.NewUser{SchoolID: fx.school.ID, Name: name, Email: email, Role: role})
		require.NoError(t, err)
		return usr
	}
	fx.admin = mk("Ann Admin", "ann@riverside.test", user.RoleAdmin)
	fx.teacher = mk("Tom Teacher", "tom@riverside.test", user.RoleTeacher)
	fx.student = mk("Sue Student", "sue@riverside.test", user.RoleStudent)
	fx.parent = mk("Pat Parent", "pat@riverside.test", user.RoleParent)

	// set up server
	server := NewServer(ServerDeps{
		Conf:       conf,
		Logger:     core.NopLogger{},
		Sessions:   sessions,
		Auth:       auth.NewFlow(usrSvc, schSvc, nil),
		SchoolSvc:  schSvc,
		Validate:   validate,
		Translator: translator,
	})
	fx.srv = httptest.NewServer(server)

	t.Cleanup(func() {
		fx.srv.Close()
		_ = fx.tabs.Close()
		_ = fx.browsers.Close()
	})
	return fx
}

func (fx *fixture) advance(d time.Duration) {
	fx.offset.Add(int64(d))
}

func (fx *fixture) updateUser(t *testing.T, usr user.User) {
	t.Helper()
	_, err := fx.users.UpdateUser(context.Background(), usr)
	require.NoError(t, err)
}

// browser holds the cookies shared by its tabs & never follows redirects.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func (fx *fixture) newBrowser(t *testing.T) *browser {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{
		t:    t,
		base: fx.srv.URL,
		client: &http.Client{
			Jar:     jar,
			Timeout: 5 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

type tab struct {
	*browser
	id string
}

func (b *browser) tab(id string) *tab {
	return &tab{browser: b, id: id}
}

func (tb *tab) do(method, path string, data interface{}) *http.Response {
	tb.t.Helper()

	var body bytes.Buffer
	if data != nil {
		require.NoError(tb.t, json.NewEncoder(&body).Encode(data))
	}
	req, err := http.NewRequest(method, tb.base+path, &body)
	require.NoError(tb.t, err)
	req.Header.Set("Content-Type", "application/json")
	if tb.id != "" {
		req.Header.Set(tabHeader, tb.id)
	}
	resp, err := tb.client.Do(req)
	require.NoError(tb.t, err)
	tb.t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func (tb *tab) get(path string) *http.Response {
	return tb.do(http.MethodGet, path, nil)
}

func (tb *tab) login(slug string, creds map[string]string) *http.Response {
	return tb.do(http.MethodPost, "/api/"+slug+"/auth/login", creds)
}

// mustLogin logs usr in with the credentials of its role.
func (tb *tab) mustLogin(usr user.User) {
	tb.t.Helper()
	creds := map[string]string{"role": usr.Role, "email": usr.Email}
	if user.UsesAccessCode(usr.Role) {
		creds = map[string]string{"role": usr.Role, "code": usr.AccessCode}
	}
	resp := tb.login("riverside", creds)
	require.Equal(tb.t, http.StatusOK, resp.StatusCode)
}

func (tb *tab) validate(path string) ValidateResponse {
	tb.t.Helper()
	var vr ValidateResponse
	decode(tb.t, tb.get("/api/session/validate?path="+path), &vr)
	return vr
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	wantCode int
	wantData interface{}
}

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	require.NoError(t, err, "marshallObj() failed")
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, resp *http.Response) {
	t.Helper()
	if resp.StatusCode != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", resp.StatusCode, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	var body bytes.Buffer
	_, err := body.ReadFrom(resp.Body)
	require.NoError(t, err)
	ok, err := jsonBytesEqual(t, body.Bytes(), marshallObj(t, tt.wantData))
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", body.String(), string(marshallObj(t, tt.wantData)))
	}
}
