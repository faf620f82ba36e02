package http

import (
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/service"
)

const authClaimsKey = "auth_claims"

// JWTAuthMiddleware valida el access token del header y guarda los claims en
// el contexto. Si se pasan grants, el token debe tener uno de ellos.
func JWTAuthMiddleware(tokens *service.TokenService, logger *zap.Logger, grants ...domain.GrantType) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := bearerToken(c)
		if err != nil {
			renderError(c, logger, err)
			c.Abort()
			return
		}

		claims, err := tokens.ParseAccess(token)
		if err != nil {
			renderError(c, logger, err)
			c.Abort()
			return
		}
		if len(grants) > 0 && !slices.Contains(grants, claims.GrantType) {
			renderError(c, logger, service.ErrInvalidGrantType)
			c.Abort()
			return
		}

		c.Set(authClaimsKey, claims)
		c.Next()
	}
}

// bearerToken extrae el token de "Authorization: Bearer <token>".
func bearerToken(c *gin.Context) (string, error) {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return "", errCredentialsRequired
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "bearer") || token == "" || strings.Contains(token, " ") {
		return "", errCredentialsBadFormat
	}
	return token, nil
}

// GetAuthClaims obtiene claims de JWT desde el contexto.
func GetAuthClaims(c *gin.Context) (service.Claims, bool) {
	val, ok := c.Get(authClaimsKey)
	if !ok {
		return service.Claims{}, false
	}
	claims, ok := val.(service.Claims)
	return claims, ok
}
