package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"evalgo.org/nspawnium/internal/invoker"
)

const (
	defaultLogLines = 100
	maxLogLines     = 5000

	logPollInterval = 2 * time.Second
	wsWriteTimeout  = 10 * time.Second
	wsPongTimeout   = 60 * time.Second
	wsPingInterval  = 54 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// LogsResponse carries one batch of journal lines for a container.
type LogsResponse struct {
	Container string   `json:"container"`
	Lines     []string `json:"lines"`
}

// getContainerLogs handles GET /api/v1/containers/:name/logs. Lines come
// from the journal the guest forwards to the host.
func (s *Server) getContainerLogs(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}

	lines := defaultLogLines
	if raw := c.QueryParam("lines"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxLogLines {
			return BadRequestError("Invalid lines parameter", raw)
		}
		lines = n
	}

	out, _, err := s.fetchJournal(c.Request().Context(), name, lines, "")
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, LogsResponse{
		Container: name,
		Lines:     out,
	})
}

// streamContainerLogs handles GET /api/v1/ws/containers/:name/logs. The
// handler sends the most recent lines immediately, then polls the journal
// and pushes everything after the last seen cursor.
func (s *Server) streamContainerLogs(c echo.Context) error {
	name, err := containerName(c)
	if err != nil {
		return err
	}

	ws, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, cancel := context.WithCancel(c.Request().Context())
	defer cancel()

	// Drain client frames so pongs and close frames are processed.
	go func() {
		defer cancel()
		ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
		ws.SetPongHandler(func(string) error {
			ws.SetReadDeadline(time.Now().Add(wsPongTimeout))
			return nil
		})
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	lines, cursor, err := s.fetchJournal(ctx, name, defaultLogLines, "")
	if err != nil {
		s.log.WithError(err).WithField("container", name).Warn("log stream init failed")
		return nil
	}
	if err := writeLogLines(ws, lines); err != nil {
		return nil
	}

	poll := time.NewTicker(logPollInterval)
	defer poll.Stop()
	ping := time.NewTicker(wsPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case <-poll.C:
			lines, next, err := s.fetchJournal(ctx, name, 0, cursor)
			if err != nil {
				s.log.WithError(err).WithField("container", name).Debug("log poll failed")
				continue
			}
			if next != "" {
				cursor = next
			}
			if err := writeLogLines(ws, lines); err != nil {
				return nil
			}
		}
	}
}

func writeLogLines(ws *websocket.Conn, lines []string) error {
	for _, line := range lines {
		ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return err
		}
	}
	return nil
}

// fetchJournal reads journal lines for the machine. With a cursor it
// returns everything after it; otherwise the last n lines. The second
// return value is the cursor after the final returned entry.
func (s *Server) fetchJournal(ctx context.Context, name string, n int, cursor string) ([]string, string, error) {
	argv := []string{
		"journalctl", "-m", "MACHINE=" + name,
		"-o", "short-iso", "--no-pager", "--show-cursor",
	}
	if cursor != "" {
		argv = append(argv, "--after-cursor="+cursor)
	} else if n > 0 {
		argv = append(argv, "-n", strconv.Itoa(n))
	}

	res, err := s.deps.Invoker.Run(ctx, invoker.Request{
		Stage:   "logs",
		Argv:    argv,
		Timeout: invoker.TimeoutMachine,
	})
	if err != nil {
		return nil, "", err
	}
	if res.ExitCode != 0 {
		return nil, "", InternalError("Failed to read journal", strings.TrimSpace(res.Stderr))
	}
	return parseJournal(res.Stdout)
}

// parseJournal splits journalctl output into log lines and the trailing
// "-- cursor: ..." marker emitted by --show-cursor.
func parseJournal(out string) ([]string, string, error) {
	var (
		lines  []string
		cursor string
	)
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "-- cursor: "); ok {
			cursor = strings.TrimSpace(rest)
			continue
		}
		if strings.HasPrefix(line, "-- No entries --") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, cursor, nil
}
