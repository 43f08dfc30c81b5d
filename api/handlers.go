package api

import (
	"bytes"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"github.com/kennyklee/jimmy-rocks/domain"
)

// Register wires up all API routes on the provided Echo instance.
func Register(e *echo.Echo, svc Service, opts Options, logger *log.Logger) {
	if logger == nil {
		panic("Logger is not initialized")
	}
	if opts.StreamInterval <= 0 {
		opts.StreamInterval = 5 * time.Second
	}
	e.HTTPErrorHandler = errorHandler(logger)
	e.Validator = newRequestValidator()
	e.Use(observe(logger))

	dedupe := idempotent(opts.Deduper, logger)

	g := e.Group("/api")
	g.GET("/board", getBoard(svc))
	g.POST("/board/snapshot", postSnapshot(svc))
	g.GET("/metrics", getMetrics(svc))

	g.POST("/items", createItem(svc), dedupe)
	g.PUT("/items/:id", updateItem(svc))
	g.DELETE("/items/:id", deleteItem(svc))
	g.POST("/items/:id/move", moveItem(svc))
	g.POST("/items/:id/comments", addComment(svc), dedupe)
	g.POST("/items/:id/subtasks", addSubtask(svc), dedupe)
	g.PUT("/items/:id/subtasks/:sid", updateSubtask(svc))
	g.DELETE("/items/:id/subtasks/:sid", deleteSubtask(svc))

	g.GET("/events", getEvents(svc))
	g.GET("/events/types", getEventTypes())

	g.GET("/notifications", getNotifications(svc))
	g.GET("/notifications/stream", streamNotifications(svc, opts.StreamInterval, logger))
	g.DELETE("/notifications/:id", deleteNotification(svc))
	g.DELETE("/notifications", clearNotifications(svc))

	g.GET("/settings", getSettings(svc))
	g.POST("/settings", postSettings(svc))

	e.GET("/healthz", healthz(svc, opts.Health))
}

func healthz(svc Service, pinger Pinger) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		if pinger != nil {
			if err := pinger.Ping(ctx); err != nil {
				c.Logger().Error(err)
				return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			}
		}
		if _, err := svc.Board(ctx); err != nil {
			c.Logger().Error(err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	}
}

func getBoard(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		b, err := svc.Board(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, b)
	}
}

func postSnapshot(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		backup, err := svc.Snapshot(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, backup)
	}
}

func getMetrics(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		m, err := svc.Metrics(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, m)
	}
}

func createItem(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req createItemRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		req.sanitize()
		tags, err := domain.DecodeTags(req.RawTags)
		if err != nil {
			return err
		}
		req.Tags = trimAll(tags)
		if err := c.Validate(&req); err != nil {
			return err
		}

		it, err := svc.CreateItem(c.Request().Context(), domain.CreateItem{
			Title:         req.Title,
			Description:   req.Description,
			Priority:      domain.Priority(req.Priority),
			Assignee:      req.Assignee,
			Tags:          req.Tags,
			ColumnID:      domain.ColumnID(req.ColumnID),
			CreatedBy:     req.CreatedBy,
			IdentityHints: identityHints(c),
		})
		if err != nil {
			return err
		}
		annotate(c, it.CreatedBy, it.ID)
		return c.JSON(http.StatusOK, it)
	}
}

func updateItem(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var raw map[string]sonic.NoCopyRawMessage
		if err := decodeJSON(c, &raw); err != nil {
			return err
		}
		req, err := parseUpdate(raw)
		if err != nil {
			return err
		}
		if err := c.Validate(req); err != nil {
			return err
		}
		fallback := req.UpdatedBy
		if fallback == "" {
			fallback = domain.SystemAuthor
		}
		actor := headerActor(c, fallback)
		id := c.Param("id")
		annotate(c, actor, id)

		it, err := svc.UpdateItem(c.Request().Context(), id, req.toDomain(), actor)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, it)
	}
}

func deleteItem(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := headerActor(c, domain.SystemAuthor)
		id := c.Param("id")
		annotate(c, actor, id)
		it, err := svc.DeleteItem(c.Request().Context(), id, actor)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, it)
	}
}

func moveItem(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req moveItemRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		req.ToColumnID = strings.TrimSpace(req.ToColumnID)
		req.MovedBy = strings.TrimSpace(req.MovedBy)
		if err := c.Validate(&req); err != nil {
			return err
		}
		id := c.Param("id")
		annotate(c, req.MovedBy, id)

		res, err := svc.MoveItem(c.Request().Context(), id, domain.MoveItem{
			ToColumn: domain.ColumnID(req.ToColumnID),
			Position: req.Position,
			MovedBy:  req.MovedBy,
		})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, res)
	}
}

func addComment(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addCommentRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		req.Text = strings.TrimSpace(req.Text)
		req.Author = strings.TrimSpace(req.Author)
		if err := c.Validate(&req); err != nil {
			return err
		}
		id := c.Param("id")
		annotate(c, req.Author, id)

		cm, err := svc.AddComment(c.Request().Context(), id, domain.AddComment{Text: req.Text, Author: req.Author})
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, cm)
	}
}

func addSubtask(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req addSubtaskRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		req.Text = strings.TrimSpace(req.Text)
		if err := c.Validate(&req); err != nil {
			return err
		}
		actor := headerActor(c, domain.SystemAuthor)
		id := c.Param("id")
		annotate(c, actor, id)

		st, err := svc.AddSubtask(c.Request().Context(), id, req.Text, actor)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func updateSubtask(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		var req updateSubtaskRequest
		if err := decodeJSON(c, &req); err != nil {
			return err
		}
		if err := c.Validate(&req); err != nil {
			return err
		}
		var u domain.SubtaskUpdate
		if req.Text != nil {
			u.Text = domain.Some(*req.Text)
		}
		if req.Completed != nil {
			u.Completed = domain.Some(*req.Completed)
		}
		actor := headerActor(c, domain.SystemAuthor)
		id := c.Param("id")
		annotate(c, actor, id)

		st, err := svc.UpdateSubtask(c.Request().Context(), id, c.Param("sid"), u, actor)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func deleteSubtask(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor := headerActor(c, domain.SystemAuthor)
		id := c.Param("id")
		annotate(c, actor, id)

		st, err := svc.DeleteSubtask(c.Request().Context(), id, c.Param("sid"), actor)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, st)
	}
}

func getEvents(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		f := domain.EventFilter{
			Type:   domain.EventType(c.QueryParam("type")),
			Actor:  c.QueryParam("actor"),
			ItemID: c.QueryParam("itemId"),
		}
		if v := strings.TrimSpace(c.QueryParam("since")); v != "" {
			since, err := time.Parse(time.RFC3339Nano, v)
			if err != nil {
				return validationFailed(domain.FieldError{Field: "since", Message: "since must be an ISO 8601 timestamp"})
			}
			f.Since = since
		}
		if v := strings.TrimSpace(c.QueryParam("limit")); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return validationFailed(domain.FieldError{Field: "limit", Message: "limit must be an integer"})
			}
			f.Limit = n
		}
		events, err := svc.Events(c.Request().Context(), f)
		if err != nil {
			return err
		}
		if events == nil {
			events = []domain.Event{}
		}
		return c.JSON(http.StatusOK, eventsResponse{Events: events, EventTypes: domain.EventTypes()})
	}
}

func getEventTypes() echo.HandlerFunc {
	types := make(map[string]domain.EventType)
	for _, t := range domain.EventTypes() {
		types[string(t)] = t
	}
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, types)
	}
}

func getNotifications(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		list, err := svc.Notifications(c.Request().Context())
		if err != nil {
			return err
		}
		if list == nil {
			list = []domain.Notification{}
		}
		return c.JSON(http.StatusOK, list)
	}
}

func deleteNotification(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		n, err := svc.AcknowledgeNotification(c.Request().Context(), c.Param("id"))
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, n)
	}
}

func clearNotifications(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		if err := svc.ClearNotifications(c.Request().Context()); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, clearedResponse{Cleared: true})
	}
}

func getSettings(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		s, err := svc.Settings(c.Request().Context())
		if err != nil {
			return err
		}
		return c.JSONBlob(http.StatusOK, s)
	}
}

func postSettings(svc Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
		if err != nil {
			return invalidJSON()
		}
		body = bytes.TrimSpace(body)
		if len(body) == 0 || body[0] != '{' || !sonic.Valid(body) {
			return validationFailed(domain.FieldError{Field: "body", Message: "settings must be a JSON object"})
		}
		if err := svc.SaveSettings(c.Request().Context(), domain.Settings(body)); err != nil {
			return err
		}
		return c.JSON(http.StatusOK, successResponse{Success: true})
	}
}

// decodeJSON reads at most maxBodySize bytes into v. An empty body leaves v untouched.
func decodeJSON(c echo.Context, v any) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxBodySize))
	if err != nil {
		return invalidJSON()
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := sonic.ConfigStd.Unmarshal(body, v); err != nil {
		return invalidJSON()
	}
	return nil
}

func invalidJSON() error {
	return &domain.Error{
		Kind:    domain.ErrInvalidInput,
		Message: "Invalid JSON",
		Details: []domain.FieldError{{Field: "body", Message: "Request body must be valid JSON"}},
	}
}

// parseUpdate builds an update request from the raw body fields. A null
// assignee or blockedBy clears it; other null fields count as absent.
func parseUpdate(raw map[string]sonic.NoCopyRawMessage) (*updateItemRequest, error) {
	req := &updateItemRequest{}
	var details []domain.FieldError
	str := func(name string, nullAsEmpty bool) *string {
		v, ok := raw[name]
		if !ok {
			return nil
		}
		if isNull(v) {
			if nullAsEmpty {
				empty := ""
				return &empty
			}
			return nil
		}
		var s string
		if err := sonic.Unmarshal(v, &s); err != nil {
			details = append(details, domain.FieldError{Field: name, Message: name + " must be a string"})
			return nil
		}
		return &s
	}

	req.Title = str("title", false)
	req.Description = str("description", false)
	req.Priority = str("priority", false)
	req.Assignee = normalizeIdentity(str("assignee", true))
	req.BlockedBy = normalizeIdentity(str("blockedBy", true))
	if by := str("updatedBy", false); by != nil {
		req.UpdatedBy = strings.TrimSpace(*by)
	}
	if len(details) > 0 {
		return nil, validationFailed(details...)
	}
	if req.Title != nil {
		t := strings.TrimSpace(*req.Title)
		req.Title = &t
	}
	if req.Description != nil {
		d := strings.TrimSpace(*req.Description)
		req.Description = &d
	}
	if v, ok := raw["tags"]; ok {
		tags, err := domain.DecodeTags(v)
		if err != nil {
			return nil, err
		}
		req.Tags = trimAll(tags)
		req.tagsSet = true
	}
	return req, nil
}

func isNull(v []byte) bool {
	return string(bytes.TrimSpace(v)) == "null"
}

func trimAll(ss []string) []string {
	for i := range ss {
		ss[i] = strings.TrimSpace(ss[i])
	}
	return ss
}
