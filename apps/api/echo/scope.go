package echoapi

import (
	"net/http"
	"regexp"
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/session"
)

const (
	browserCookie = "masomo_browser"
	tabHeader     = "X-Tab-ID"
	tabParam      = "tab"

	contextScopeKey = "scope"
	contextGuardKey = "guard"
)

var (
	tabIDRegex = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

	errScopeNotFoundInCtx = errors.New("session scope not found in echo.Context")
)

// browserClaims identify a browser (its Subject) across tabs & requests.
type browserClaims struct {
	jwt.StandardClaims
}

// scopeMiddleware resolves the browser & tab of the request, minting ids when missing,
// and exposes the Guard of that tab to the handlers.
func (s *Server) scopeMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		browser, err := s.browserID(ctx)
		if err != nil {
			return errors.Wrap(err, "resolving browser")
		}

		tab := ctx.Request().Header.Get(tabHeader)
		if tab == "" {
			tab = ctx.QueryParam(tabParam)
		}
		if !tabIDRegex.MatchString(tab) {
			tab = uuid.New().String()
		}
		ctx.Response().Header().Set(tabHeader, tab)

		scope := session.Scope{Browser: browser, Tab: tab}
		ctx.Set(contextScopeKey, scope)
		ctx.Set(contextGuardKey, s.deps.Sessions.Guard(scope))
		return next(ctx)
	}
}

// browserID returns the browser id of the signed cookie, or sets a new one.
func (s *Server) browserID(ctx echo.Context) (string, error) {
	if cookie, err := ctx.Cookie(browserCookie); err == nil {
		if id, err := s.parseBrowserToken(cookie.Value); err == nil {
			return id, nil
		}
	}

	id := uuid.New().String()
	token, err := s.newBrowserToken(id)
	if err != nil {
		return "", err
	}
	maxAge := s.deps.Conf.Server.ScopeCookieAge
	ctx.SetCookie(&http.Cookie{
		Name:     browserCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge / time.Second),
		HttpOnly: true,
		Secure:   !s.deps.Conf.Debug,
		SameSite: http.SameSiteLaxMode,
	})
	// later handlers of this request read the new cookie too
	ctx.Request().AddCookie(&http.Cookie{Name: browserCookie, Value: token})
	return id, nil
}

func (s *Server) newBrowserToken(id string) (string, error) {
	now := time.Now()
	claims := browserClaims{StandardClaims: jwt.StandardClaims{
		Issuer:    s.deps.Conf.AppName,
		Subject:   id,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.deps.Conf.Server.ScopeCookieAge).Unix(),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.deps.Conf.SecretKey))
	return token, errors.Wrap(err, "signing browser token")
}

func (s *Server) parseBrowserToken(raw string) (string, error) {
	claims := new(browserClaims)
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, errors.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(s.deps.Conf.SecretKey), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid || claims.Subject == "" {
		return "", errors.New("invalid browser token")
	}
	return claims.Subject, nil
}

func getContextScope(ctx echo.Context) (session.Scope, error) {
	scope, ok := ctx.Get(contextScopeKey).(session.Scope)
	if !ok {
		return session.Scope{}, errScopeNotFoundInCtx
	}
	return scope, nil
}

func getContextGuard(ctx echo.Context) (*session.Guard, error) {
	guard, ok := ctx.Get(contextGuardKey).(*session.Guard)
	if !ok {
		return nil, errScopeNotFoundInCtx
	}
	return guard, nil
}
