package echoapi

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/masomo-portal/core/user"
)

// registerPortal mounts the pages of the portal. Rendering belongs to the front-end:
// these endpoints only describe the page & enforce access to it.
func registerPortal(g *echo.Group) {
	g.GET("/:school/auth/login", loginPage)
	g.GET("/:school/:role", dashboard, guardMiddleware)
	g.GET("/:school/:role/*", dashboard, guardMiddleware)
}

func loginPage(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, echo.Map{"school": ctx.Param("school"), "page": "login"})
}

func dashboard(ctx echo.Context) error {
	role := ctx.Param("role")
	usr, ok := ctx.Get(contextUserKey).(user.User)
	if !ok || !user.IsRole(role) {
		return errHttpNotFound
	}
	return ctx.JSON(http.StatusOK, DashboardResponse{
		School: ctx.Param("school"),
		Role:   role,
		Page:   strings.Trim(ctx.Param("*"), "/"),
		User:   usr,
	})
}
