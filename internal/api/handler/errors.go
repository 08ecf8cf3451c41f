package handler

import (
	"log/slog"
	"net/http"

	"github.com/cuongbtq/freelance-escrow/internal/api/domain"
	"github.com/cuongbtq/freelance-escrow/internal/api/dto"
	"github.com/gin-gonic/gin"
)

var kindStatus = map[string]int{
	domain.KindNotFound:       http.StatusNotFound,
	domain.KindInvalidState:   http.StatusBadRequest,
	domain.KindInvalidInput:   http.StatusBadRequest,
	domain.KindConflict:       http.StatusConflict,
	domain.KindGatewayFailure: http.StatusBadGateway,
	domain.KindStoreFailure:   http.StatusInternalServerError,
	domain.KindInternal:       http.StatusInternalServerError,
}

// StatusForError maps an error kind to its HTTP status
func StatusForError(err error) int {
	return kindStatus[domain.Kind(err)]
}

// respondError writes {"error": {"kind", "message", "retryable"}} for err
func respondError(c *gin.Context, logger *slog.Logger, err error) {
	kind := domain.Kind(err)
	status := kindStatus[kind]
	message := err.Error()

	if status >= http.StatusInternalServerError {
		logger.Error("Request failed",
			slog.String("path", c.FullPath()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
		// storage details stay in the logs
		if kind == domain.KindStoreFailure || kind == domain.KindInternal {
			message = "internal error, retry later"
		}
	} else {
		logger.Warn("Request rejected",
			slog.String("path", c.FullPath()),
			slog.String("kind", kind),
			slog.String("error", err.Error()),
		)
	}

	c.AbortWithStatusJSON(status, dto.ErrorResponse{
		Error: dto.ErrorBody{Kind: kind, Message: message, Retryable: domain.IsRetryable(err)},
	})
}

func respondInvalidInput(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
		Error: dto.ErrorBody{Kind: domain.KindInvalidInput, Message: message},
	})
}
