package api

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// listJobs handles GET /api/v1/jobs.
func (s *Server) listJobs(c echo.Context) error {
	return c.JSON(http.StatusOK, s.deps.Registry.List())
}

// getJob handles GET /api/v1/jobs/:name.
func (s *Server) getJob(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	job, err := s.deps.Registry.Get(name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, job)
}

// cancelJob handles POST /api/v1/jobs/:name/cancel. Cancellation is
// cooperative; the pipeline stops at the next stage boundary and cleans up.
func (s *Server) cancelJob(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	if err := s.deps.Registry.Cancel(name); err != nil {
		return err
	}
	return c.JSON(http.StatusAccepted, MessageResponse{Message: "cancellation requested"})
}

// ackJob handles DELETE /api/v1/jobs/:name. Only finished jobs can be
// acknowledged; a running job must be cancelled first.
func (s *Server) ackJob(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	if err := s.deps.Registry.Ack(name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "job acknowledged"})
}
