package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
)

func adminMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin && contextHasAnyRole(ctx, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// claimsHaveRolePrefix reports whether the claims carry any role under the
// given hierarchical prefixes, "admin:" covers "admin:owner".
func claimsHaveRolePrefix(claims Claims, prefixes []string) bool {
	for _, role := range claims.Roles {
		for _, prefix := range prefixes {
			if strings.HasPrefix(role, prefix) {
				return true
			}
		}
	}
	return false
}

// rolesMiddleware grants access to admins and to users holding any of the
// given role prefixes.
func rolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if claims.IsAdmin || claimsHaveRolePrefix(claims, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}

// selfOrRolesMiddleware additionally lets users through on their own detail
// routes (`:id` matching the token subject).
func selfOrRolesMiddleware(roles ...string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			claims, err := getContextClaims(ctx)
			if err != nil {
				return errors.Wrap(err, "getting context claims")
			}
			if ctx.Param("id") == claims.Subject || claims.IsAdmin || claimsHaveRolePrefix(claims, roles) {
				return next(ctx)
			}
			return errHttpForbidden
		}
	}
}
