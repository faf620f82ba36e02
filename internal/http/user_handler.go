package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"stexs-auth/internal/service"
)

// UserHandler mantiene dependencias para alta y verificacion de cuentas.
type UserHandler struct {
	logger   *zap.Logger
	userServ *service.UserService
}

// NewUserHandler crea una instancia de UserHandler con dependencias necesarias.
func NewUserHandler(logger *zap.Logger, userServ *service.UserService) *UserHandler {
	return &UserHandler{
		logger:   logger,
		userServ: userServ,
	}
}

// SignUp maneja POST /sign-up.
func (h *UserHandler) SignUp(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required,email,max=254"`
		Username string `json:"username" binding:"required,max=20,username"`
		Password string `json:"password" binding:"required,min=10,password"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	user, err := h.userServ.SignUp(c.Request.Context(), service.SignUpInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		renderError(c, h.logger, err)
		return
	}

	h.logger.Info("user signed up", zap.String("user_id", user.ID))
	respondOK(c, http.StatusCreated, "Sign-up successful. Check your emails for a verification code.", gin.H{"user": user})
}

// VerifyEmail maneja POST /verify.
func (h *UserHandler) VerifyEmail(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
		Code  string `json:"code" binding:"required"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.userServ.VerifyEmail(c.Request.Context(), req.Email, req.Code); err != nil {
		renderError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "Email successfully verified.", nil)
}

// ResendVerification maneja POST /verify/resend.
func (h *UserHandler) ResendVerification(c *gin.Context) {
	var req struct {
		Email string `json:"email" binding:"required,email"`
	}
	if !bindJSON(c, h.logger, &req) {
		return
	}

	if err := h.userServ.ResendVerification(c.Request.Context(), req.Email); err != nil {
		renderError(c, h.logger, err)
		return
	}
	respondOK(c, http.StatusOK, "New verification code sent.", nil)
}
