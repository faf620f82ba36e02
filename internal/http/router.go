package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/service"
)

// RateLimiters agrupa los cupos por tipo de endpoint.
type RateLimiters struct {
	SignIn   service.RateLimiter
	Email    service.RateLimiter
	Security service.RateLimiter
}

// NewRouter configura el router de Gin con middlewares y rutas.
func NewRouter(
	logger *zap.Logger,
	tokens *service.TokenService,
	limiters RateLimiters,
	userH *UserHandler,
	signInH *SignInHandler,
	mfaH *MFAHandler,
	oauth2H *OAuth2Handler,
) (*gin.Engine, error) {
	if err := registerValidators(); err != nil {
		return nil, err
	}
	r := gin.New()

	// Middlewares basicos: logging, recovery y JSON content-type.
	r.Use(zapLoggerMiddleware(logger), gin.Recovery(), jsonContentTypeMiddleware())
	r.NoRoute(func(c *gin.Context) {
		respondErrors(c, http.StatusNotFound, newErrorItem(codeRouteNotFound, "Requested route doesn't exist.", nil))
	})

	signInLimit := RateLimitMiddleware(limiters.SignIn, logger)
	emailLimit := RateLimitMiddleware(limiters.Email, logger)
	securityLimit := RateLimitMiddleware(limiters.Security, logger)
	session := JWTAuthMiddleware(tokens, logger, domain.GrantPassword)

	r.POST("/sign-up", emailLimit, userH.SignUp)
	r.POST("/verify", securityLimit, userH.VerifyEmail)
	r.POST("/verify/resend", emailLimit, userH.ResendVerification)

	r.POST("/sign-in", signInLimit, signInH.SignIn)
	r.POST("/sign-in/confirm", securityLimit, signInH.Confirm)
	r.POST("/token", signInH.Refresh)
	r.POST("/sign-out", session, signInH.SignOut)
	r.POST("/sign-out/everywhere", securityLimit, session, signInH.SignOutEverywhere)

	mfa := r.Group("/mfa")
	mfa.POST("/send-code", emailLimit, mfaH.SendCode)
	mfa.Use(session)
	mfa.GET("", mfaH.Status)
	mfa.POST("/enable", securityLimit, mfaH.Enable)
	mfa.POST("/disable", securityLimit, mfaH.Disable)
	mfa.POST("/verify", securityLimit, mfaH.Verify)

	oauth2 := r.Group("/oauth2")
	oauth2.POST("/token", oauth2H.Token)
	oauth2.Use(session)
	oauth2.POST("/authorize", oauth2H.Authorize)
	oauth2.GET("/connections", oauth2H.Connections)
	oauth2.DELETE("/connections/:id", oauth2H.DeleteConnection)
	oauth2.DELETE("/revoke", oauth2H.Revoke)

	return r, nil
}

// zapLoggerMiddleware crea un middleware simple de logging con zap.
func zapLoggerMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", latency),
			zap.String("client_ip", c.ClientIP()),
		)
	}
}

// jsonContentTypeMiddleware fuerza Content-Type: application/json en responses.
func jsonContentTypeMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Content-Type", "application/json")
		c.Next()
	}
}
