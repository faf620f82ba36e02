package http

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/service"
)

type MFAHandler struct {
	logger *zap.Logger
	mfa    *service.MFAService
	tokens *service.TokenService
}

func NewMFAHandler(logger *zap.Logger, mfa *service.MFAService, tokens *service.TokenService) *MFAHandler {
	return &MFAHandler{logger: logger, mfa: mfa, tokens: tokens}
}

type mfaRequest struct {
	Type domain.MFAType `json:"type" binding:"required,oneof=totp email"`
	Code string         `json:"code"`
}

type mfaCodeRequest struct {
	Type domain.MFAType `json:"type" binding:"required,oneof=totp email"`
	Code string         `json:"code" binding:"required"`
}

// Status maneja GET /mfa.
func (h *MFAHandler) Status(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	status, err := h.mfa.Status(c.Request.Context(), claims.Subject)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "MFA status fetched.", status)
}

// Enable maneja POST /mfa/enable. TOTP devuelve el secreto pendiente de verificar.
func (h *MFAHandler) Enable(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req mfaRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	enrollment, err := h.mfa.Enable(c.Request.Context(), claims.Subject, req.Type, req.Code)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	if req.Type == domain.MFATypeTOTP {
		respondOK(c, http.StatusOK, "TOTP MFA enrollment started. Verify it with a code from your authenticator.", enrollment)
		return
	}
	h.logger.Info("email mfa enabled", zap.String("user_id", claims.Subject))
	respondOK(c, http.StatusOK, "Email MFA enabled.", nil)
}

// Verify maneja POST /mfa/verify.
func (h *MFAHandler) Verify(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req mfaCodeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.mfa.Verify(c.Request.Context(), claims.Subject, req.Type, req.Code); err != nil {
		renderError(c, h.logger, err)
		return
	}
	h.logger.Info("totp mfa enabled", zap.String("user_id", claims.Subject))
	respondOK(c, http.StatusOK, "TOTP MFA enabled.", nil)
}

// Disable maneja POST /mfa/disable.
func (h *MFAHandler) Disable(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req mfaCodeRequest
	if !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.mfa.Disable(c.Request.Context(), claims.Subject, req.Type, req.Code); err != nil {
		renderError(c, h.logger, err)
		return
	}
	h.logger.Info("mfa method disabled", zap.String("user_id", claims.Subject), zap.String("type", string(req.Type)))
	respondOK(c, http.StatusOK, "MFA method disabled.", nil)
}

// SendCode maneja POST /mfa/send-code. Acepta un access token en el header o
// un ticket de confirmacion de inicio de sesion en el body.
func (h *MFAHandler) SendCode(c *gin.Context) {
	userID, err := h.sendCodeSubject(c)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	if userID == "" {
		return
	}

	if err := h.mfa.SendCode(c.Request.Context(), userID); err != nil {
		renderError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Code sent. Check your emails.", nil)
}

// sendCodeSubject devuelve "" sin error cuando ya respondio por validacion.
func (h *MFAHandler) sendCodeSubject(c *gin.Context) (string, error) {
	if c.GetHeader("Authorization") != "" {
		token, err := bearerToken(c)
		if err != nil {
			return "", err
		}
		claims, err := h.tokens.ParseAccess(token)
		if err != nil {
			return "", err
		}
		if claims.GrantType != domain.GrantPassword {
			return "", service.ErrInvalidGrantType
		}
		return claims.Subject, nil
	}

	if c.Request.ContentLength == 0 {
		return "", errCredentialsRequired
	}
	var req struct {
		Token string `json:"token" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return "", nil
	}
	claims, err := h.tokens.ParseSignInConfirm(req.Token)
	if err != nil {
		return "", err
	}
	if !slices.Contains(claims.Types, domain.MFATypeEmail) {
		return "", service.ErrEmailMFADisabled
	}
	return claims.Subject, nil
}
