package echoapi

import (
	"net/http"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/trezcool/masomo-portal/core/auth"
	"github.com/trezcool/masomo-portal/core/session"
)

type sessionApi struct {
	flow       *auth.Flow
	validate   *validator.Validate
	translator ut.Translator
}

func registerSessionAPI(g *echo.Group, deps ServerDeps) {
	api := sessionApi{
		flow:       deps.Auth,
		validate:   deps.Validate,
		translator: deps.Translator,
	}

	g.POST("/api/:school/auth/login", api.login)

	sg := g.Group("/api/session")
	sg.GET("", api.current)
	sg.GET("/validate", api.validateSession)
	sg.POST("/logout", api.logout)
}

// Handlers

func (api *sessionApi) login(ctx echo.Context) error {
	var data LoginRequest
	if err := ctx.Bind(&data); err != nil {
		return errors.Wrap(err, "binding to LoginRequest")
	}
	if err := data.Validate(api.validate); err != nil {
		return err
	}
	guard, err := getContextGuard(ctx)
	if err != nil {
		return err
	}

	slug := ctx.Param("school")
	usr, err := api.flow.Login(ctx.Request().Context(), guard, data.Credentials(slug))
	if err != nil {
		return err
	}
	return ctx.JSON(http.StatusOK, LoginResponse{User: usr, Redirect: session.DashboardPath(slug, usr.Role)})
}

func (api *sessionApi) current(ctx echo.Context) error {
	guard, err := getContextGuard(ctx)
	if err != nil {
		return err
	}
	usr := guard.CurrentUser(ctx.Request().Context())
	if usr == nil {
		return errUnauthorized
	}
	return ctx.JSON(http.StatusOK, usr)
}

// validateSession checks the session against a path without acting on the result.
func (api *sessionApi) validateSession(ctx echo.Context) error {
	guard, err := getContextGuard(ctx)
	if err != nil {
		return err
	}
	res := guard.Validate(ctx.Request().Context(), ctx.QueryParam("path"))
	resp := ValidateResponse{IsValid: res.Valid, User: res.User}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	return ctx.JSON(http.StatusOK, resp)
}

func (api *sessionApi) logout(ctx echo.Context) error {
	guard, err := getContextGuard(ctx)
	if err != nil {
		return err
	}
	c := ctx.Request().Context()
	redirect := "/"
	if usr := guard.CurrentUser(c); usr != nil {
		redirect = session.LoginPath(ctx.QueryParam("path"))
	}
	api.flow.Logout(c, guard)
	return ctx.JSON(http.StatusOK, RedirectResponse{Redirect: redirect})
}
