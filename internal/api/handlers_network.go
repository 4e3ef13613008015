package api

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/nspawnium/models"
)

// getBridge handles GET /api/v1/network/bridge.
func (s *Server) getBridge(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Inspector.Bridge(c.Request().Context()))
}

// listForwards handles GET /api/v1/network/forwards.
func (s *Server) listForwards(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Forwards.List())
}

// createForward handles POST /api/v1/network/forwards.
func (s *Server) createForward(c echo.Context) error {
	var rule models.PortForwardRule
	if err := c.Bind(&rule); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	created, err := s.deps.Forwards.Add(c.Request().Context(), rule)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, created)
}

// deleteForward handles DELETE /api/v1/network/forwards/:id.
func (s *Server) deleteForward(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return BadRequestError("Invalid rule id", "id is required")
	}
	if err := s.deps.Forwards.Remove(c.Request().Context(), id); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "forward rule removed"})
}
