package echoapi

import (
	"github.com/labstack/echo/v4"

	"github.com/trezcool/schoolsaas/core/user"
)

// roleMiddleware lets through users having a role starting with one of `prefixes`.
func roleMiddleware(prefixes ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return err
			}
			usr := user.User{Roles: claims.Roles}
			for _, prefix := range prefixes {
				if usr.RoleStartsWith(prefix) {
					return next(ctx)
				}
			}
			return errHttpForbidden
		}
	}
}

func adminMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin)
}

func staffMiddleware() echo.MiddlewareFunc {
	return roleMiddleware(user.RoleAdmin, user.RoleTeacher)
}

// schoolMiddleware rejects users not attached to a school.
func schoolMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(ctx echo.Context) error {
		claims, err := getContextClaims(ctx)
		if err != nil {
			return err
		}
		if claims.SchoolID == "" {
			return errHttpForbidden
		}
		return next(ctx)
	}
}
