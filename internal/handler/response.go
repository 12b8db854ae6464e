// Package handler exposes the HTTP and websocket API.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"room-score-server/internal/service"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError maps a service error to an HTTP response. Internal errors
// are logged and masked; the other kinds carry their message to the
// client.
func respondError(c *gin.Context, log zerolog.Logger, err error) {
	switch service.Classify(err) {
	case service.KindValidation:
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error(), Code: "validation"})
	case service.KindState:
		c.JSON(http.StatusConflict, errorResponse{Error: err.Error(), Code: "conflict"})
	case service.KindNotFound:
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error(), Code: "not_found"})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal server error", Code: "internal"})
	}
}
