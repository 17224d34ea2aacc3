package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"trackhub/pkg/logger"
	"trackhub/pkg/outbox"
)

// writeError maps service errors onto status codes. Missing rows are 404,
// everything else is 500 and logged.
func writeError(c *gin.Context, log *zap.Logger, msg string, err error) {
	if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, outbox.ErrEventNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": msg + ": not found"})
		return
	}
	logger.WithTrace(c.Request.Context(), log).Error(msg,
		zap.String("path", c.FullPath()),
		zap.Error(err),
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
}

// userID reads the caller id set by the auth middleware.
func userID(c *gin.Context) string {
	v, _ := c.Get("user_id")
	id, _ := v.(string)
	return id
}
