package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// envelope es la forma comun de todas las respuestas que no son tokens.
type envelope struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Timestamp string      `json:"timestamp"`
	Data      any         `json:"data"`
	Errors    []errorItem `json:"errors,omitempty"`
}

type errorItem struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Timestamp string `json:"timestamp"`
	Data      any    `json:"data"`
}

func timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}

func newErrorItem(code, message string, data any) errorItem {
	if data == nil {
		data = gin.H{}
	}
	return errorItem{Code: code, Message: message, Timestamp: timestamp(), Data: data}
}

func respondOK(c *gin.Context, status int, message string, data any) {
	if data == nil {
		data = gin.H{}
	}
	c.JSON(status, envelope{Success: true, Message: message, Timestamp: timestamp(), Data: data})
}

func respondErrors(c *gin.Context, status int, items ...errorItem) {
	message := ""
	if len(items) > 0 {
		message = items[0].Message
	}
	c.JSON(status, envelope{Success: false, Message: message, Timestamp: timestamp(), Data: gin.H{}, Errors: items})
}

// renderError traduce un error de servicio. Lo que no esta en la tabla se
// registra y sale como INTERNAL_ERROR sin exponer el detalle.
func renderError(c *gin.Context, logger *zap.Logger, err error) {
	api, ok := lookupAPIError(err)
	if !ok {
		logger.Error("request failed",
			zap.Error(err),
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
		)
		respondErrors(c, http.StatusInternalServerError, newErrorItem(codeInternalError, "An internal error occurred.", nil))
		return
	}

	var data any
	if api.path != "" {
		data = gin.H{"location": "body", "path": api.path}
	}
	if api.status == http.StatusUnauthorized || api.status == http.StatusForbidden {
		logger.Warn("request rejected", zap.String("code", api.code), zap.String("path", c.FullPath()))
	} else {
		logger.Debug("request rejected", zap.String("code", api.code), zap.String("path", c.FullPath()))
	}
	respondErrors(c, api.status, newErrorItem(api.code, api.message, data))
}
