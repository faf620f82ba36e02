package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/domain"
	"stexs-auth/internal/service"
)

// OAuth2Handler expone los grants OAuth2 y la gestion de conexiones.
type OAuth2Handler struct {
	logger *zap.Logger
	oauth2 *service.OAuth2Service
}

func NewOAuth2Handler(logger *zap.Logger, oauth2 *service.OAuth2Service) *OAuth2Handler {
	return &OAuth2Handler{logger: logger, oauth2: oauth2}
}

// Authorize maneja POST /oauth2/authorize.
func (h *OAuth2Handler) Authorize(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req struct {
		ClientID    string   `json:"client_id" binding:"required,uuid"`
		RedirectURL string   `json:"redirect_url" binding:"required,url"`
		Scopes      []string `json:"scopes" binding:"required,min=1,dive,required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	code, err := h.oauth2.Authorize(c.Request.Context(), service.AuthorizeInput{
		UserID:      claims.Subject,
		ClientID:    req.ClientID,
		RedirectURL: req.RedirectURL,
		Scopes:      req.Scopes,
	})
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, code)
}

// Token maneja POST /oauth2/token y despacha por grant_type.
func (h *OAuth2Handler) Token(c *gin.Context) {
	var grant struct {
		GrantType domain.GrantType `json:"grant_type" binding:"required,oneof=authorization_code client_credentials refresh_token"`
	}
	if !bindJSON(c, h.logger, &grant) {
		return
	}

	var (
		tokens service.TokenResponse
		err    error
	)
	switch grant.GrantType {
	case domain.GrantAuthorizationCode:
		var req struct {
			Code         string `json:"code" binding:"required"`
			ClientID     string `json:"client_id" binding:"required"`
			ClientSecret string `json:"client_secret" binding:"required"`
		}
		if !bindJSON(c, h.logger, &req) {
			return
		}
		tokens, err = h.oauth2.ExchangeAuthorizationCode(c.Request.Context(), service.ExchangeInput{
			Code:         req.Code,
			ClientID:     req.ClientID,
			ClientSecret: req.ClientSecret,
		})
	case domain.GrantClientCredentials:
		var req struct {
			ClientID     string `json:"client_id" binding:"required"`
			ClientSecret string `json:"client_secret" binding:"required"`
		}
		if !bindJSON(c, h.logger, &req) {
			return
		}
		tokens, err = h.oauth2.ClientCredentials(c.Request.Context(), req.ClientID, req.ClientSecret)
	case domain.GrantRefreshToken:
		var req struct {
			RefreshToken string `json:"refresh_token" binding:"required"`
		}
		if !bindJSON(c, h.logger, &req) {
			return
		}
		tokens, err = h.oauth2.Refresh(c.Request.Context(), req.RefreshToken)
	default:
		err = service.ErrUnsupportedGrantType
	}
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	c.JSON(http.StatusOK, tokens)
}

// Connections maneja GET /oauth2/connections.
func (h *OAuth2Handler) Connections(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	conns, err := h.oauth2.Connections(c.Request.Context(), claims.Subject)
	if err != nil {
		renderError(c, h.logger, err)
		return
	}
	if conns == nil {
		conns = []domain.OAuth2Connection{}
	}
	respondOK(c, http.StatusOK, "Connections fetched.", gin.H{"connections": conns})
}

// DeleteConnection maneja DELETE /oauth2/connections/:id.
func (h *OAuth2Handler) DeleteConnection(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var params struct {
		ID string `uri:"id" binding:"required,uuid"`
	}
	if !bindURI(c, h.logger, &params) {
		return
	}

	if err := h.oauth2.DeleteConnection(c.Request.Context(), claims.Subject, params.ID); err != nil {
		renderError(c, h.logger, err)
		return
	}
	h.logger.Info("oauth2 connection deleted", zap.String("user_id", claims.Subject), zap.String("connection_id", params.ID))
	c.Status(http.StatusNoContent)
}

// Revoke maneja DELETE /oauth2/revoke.
func (h *OAuth2Handler) Revoke(c *gin.Context) {
	claims, _ := GetAuthClaims(c)
	var req struct {
		RefreshToken string `json:"refresh_token" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.oauth2.Revoke(c.Request.Context(), claims.Subject, req.RefreshToken); err != nil {
		renderError(c, h.logger, err)
		return
	}
	h.logger.Info("oauth2 connection revoked", zap.String("user_id", claims.Subject))
	c.Status(http.StatusNoContent)
}
