package api

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"evalgo.org/nspawnium/models"
)

// CreateContainerResponse points the caller at the job tracking the new
// container's provisioning run.
type CreateContainerResponse struct {
	Name string             `json:"name"`
	Job  models.CreationJob `json:"job"`
}

// containerName extracts and checks the :name path parameter.
func containerName(c echo.Context) (string, error) {
	name := c.Param("name")
	if !models.ValidName(name) {
		return "", BadRequestError("Invalid container name", name)
	}
	return name, nil
}

// createContainer handles POST /api/v1/containers. Provisioning runs in the
// background; the response carries the job to poll.
func (s *Server) createContainer(c echo.Context) error {
	var spec models.ContainerSpec
	if err := c.Bind(&spec); err != nil {
		return BadRequestError("Invalid request body", err.Error())
	}

	// The worker must outlive this request, so it does not inherit the
	// request context.
	if err := s.deps.Pipeline.Launch(context.Background(), &spec); err != nil {
		return err
	}

	job, err := s.deps.Registry.Get(spec.Name)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusAccepted, CreateContainerResponse{
		Name: spec.Name,
		Job:  job,
	})
}

// listContainers handles GET /api/v1/containers.
func (s *Server) listContainers(c echo.Context) error {
	records, err := s.deps.Lifecycle.List(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, records)
}

// getContainer handles GET /api/v1/containers/:name.
func (s *Server) getContainer(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	record, err := s.deps.Lifecycle.Inspect(c.Request().Context(), name)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, record)
}

// startContainer handles POST /api/v1/containers/:name/start.
func (s *Server) startContainer(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	if err := s.deps.Lifecycle.Start(c.Request().Context(), name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "container started"})
}

// stopContainer handles POST /api/v1/containers/:name/stop. A force query
// parameter switches from clean poweroff to immediate termination.
func (s *Server) stopContainer(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()
	if c.QueryParam("force") == "true" {
		err = s.deps.Lifecycle.ForceStop(ctx, name)
	} else {
		err = s.deps.Lifecycle.Stop(ctx, name)
	}
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "container stopped"})
}

// restartContainer handles POST /api/v1/containers/:name/restart.
func (s *Server) restartContainer(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	if err := s.deps.Lifecycle.Restart(c.Request().Context(), name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "container restarted"})
}

// deleteContainer handles DELETE /api/v1/containers/:name.
func (s *Server) deleteContainer(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}
	if err := s.deps.Lifecycle.Delete(c.Request().Context(), name); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MessageResponse{Message: "container deleted"})
}
