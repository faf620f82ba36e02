package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/service"
)

// SignInHandler expone la maquina de inicio de sesion y las sesiones de password.
type SignInHandler struct {
	logger *zap.Logger
	signIn *service.SignInService
	tokens *service.TokenService
}

func NewSignInHandler(logger *zap.Logger, signIn *service.SignInService, tokens *service.TokenService) *SignInHandler {
	return &SignInHandler{logger: logger, signIn: signIn, tokens: tokens}
}

// SignIn maneja POST /sign-in. Responde tokens o un ticket de confirmacion.
func (h *SignInHandler) SignIn(c *gin.Context) {
	var req struct {
		Identifier string `json:"identifier" binding:"required"`
		Password   string `json:"password" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	result, err := h.signIn.SignIn(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	if result.Confirm != nil {
		c.JSON(http.StatusOK, result.Confirm)
		return
	}
	c.JSON(http.StatusOK, result.Tokens)
}

// Confirm maneja POST /sign-in/confirm.
func (h *SignInHandler) Confirm(c *gin.Context) {
	var req struct {
		Token string         `json:"token" binding:"required"`
		Type  domain.MFAType `json:"type" binding:"required,oneof=totp email"`
		Code  string         `json:"code" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	tokens, err := h.signIn.Confirm(c.Request.Context(), req.Token, req.Type, req.Code)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// Refresh maneja POST /token para sesiones de password.
func (h *SignInHandler) Refresh(c *gin.Context) {
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	tokens, err := h.tokens.RefreshPasswordSession(c.Request.Context(), req.RefreshToken)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// SignOut maneja POST /sign-out.
func (h *SignInHandler) SignOut(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		renderError(c, h.logger, errCredentialsRequired)
		return
	}
	if err := h.signIn.SignOut(c.Request.Context(), claims); err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// SignOutEverywhere maneja POST /sign-out/everywhere. El body solo es
// obligatorio si el usuario tiene MFA activo.
func (h *SignInHandler) SignOutEverywhere(c *gin.Context) {
	claims, ok := GetAuthClaims(c)
	if !ok {
		renderError(c, h.logger, errCredentialsRequired)
		return
	}
	var req struct {
		Type domain.MFAType `json:"type" binding:"omitempty,oneof=totp email"`
		Code string         `json:"code"`
	}
	if c.Request.ContentLength != 0 && !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.signIn.SignOutEverywhere(c.Request.Context(), claims.Subject, req.Type, req.Code); err != nil {
		renderError(c, h.logger, err)
		return
	}
	h.logger.Info("signed out everywhere", zap.String("user_id", claims.Subject))
	c.Status(http.StatusNoContent)
}
