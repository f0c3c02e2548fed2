package echoapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

const contextUserKey = "user"

// guardMiddleware applies the redirect policy of protected pages: requests without a usable session
// are redirected to the login page of their school.
func guardMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		guard, err := getContextGuard(ctx)
		if err != nil {
			return err
		}
		decision := guard.Decide(ctx.Request().Context(), ctx.Request().URL.Path)
		if !decision.Render {
			return ctx.Redirect(http.StatusFound, decision.Redirect)
		}
		if usr := decision.Result.User; usr != nil {
			ctx.Set(contextUserKey, *usr)
		}
		return next(ctx)
	}
}
