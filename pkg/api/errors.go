package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/agentmesh/contextrouter/pkg/models"
	"github.com/agentmesh/contextrouter/pkg/whitelist"
)

// mapDomainError maps domain-layer errors to HTTP error responses.
func mapDomainError(err error) *echo.HTTPError {
	var invalid *models.InvalidEnvelopeError
	if errors.As(err, &invalid) {
		return echo.NewHTTPError(http.StatusBadRequest, invalid.Error())
	}
	if errors.Is(err, whitelist.ErrAgentNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "agent not found")
	}

	// Unexpected error
	slog.Error("Unexpected domain error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
