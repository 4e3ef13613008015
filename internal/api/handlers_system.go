package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/nspawnium/internal/version"
	"evalgo.org/nspawnium/models"
)

// SystemResponse bundles host resources with build information.
type SystemResponse struct {
	Host    *models.HostInfo `json:"host"`
	Version version.Info     `json:"version"`
}

// getSystemInfo handles GET /api/v1/system.
func (s *Server) getSystemInfo(c echo.Context) error {
	host, err := s.deps.Inspector.Report(c.Request().Context())
	if err != nil {
		return InternalError("Failed to inspect host", err.Error())
	}
	return c.JSON(http.StatusOK, SystemResponse{
		Host:    host,
		Version: version.Get(),
	})
}
