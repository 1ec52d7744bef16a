package middleware

import (
	"context"
	"strings"

	"storefront/internal/apperr"
	"storefront/internal/auth"
	"storefront/internal/model"

	"github.com/gin-gonic/gin"
)

const principalKey = "storefront.principal"

// Authenticator 由 auth.Service 实现：解析令牌并确认账户有效。
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (auth.Principal, error)
}

// Authenticate 要求 Authorization: Bearer <token>。
func Authenticate(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			Fail(c, apperr.New(apperr.KindUnauthorized, "missing bearer token"))
			return
		}
		p, err := a.Authenticate(c.Request.Context(), strings.TrimSpace(token))
		if err != nil {
			Fail(c, err)
			return
		}
		c.Set(principalKey, p)
		c.Next()
	}
}

// Authorize 角色白名单，必须挂在 Authenticate 之后。
func Authorize(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := PrincipalFrom(c)
		if !ok {
			Fail(c, apperr.New(apperr.KindUnauthorized, "authentication required"))
			return
		}
		for _, r := range roles {
			if p.Role == r {
				c.Next()
				return
			}
		}
		Fail(c, apperr.New(apperr.KindForbidden, "insufficient role"))
	}
}

func PrincipalFrom(c *gin.Context) (auth.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
