package api

import (
	"bufio"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/kennyklee/jimmy-rocks/domain"
	"github.com/kennyklee/jimmy-rocks/storage"
)

func newTestAPI(t *testing.T, opts Options) (*echo.Echo, *domain.BoardService) {
	t.Helper()

	logger, _ := test.NewNullLogger()
	st, err := storage.NewFileStore(t.TempDir(), logger)
	if err != nil {
		t.Fatalf("new file store: %v", err)
	}
	svc := domain.NewBoardService(st, domain.WithLogger(logger))
	if opts.Health == nil {
		opts.Health = st
	}

	e := echo.New()
	e.Use(Middleware("*")...)
	Register(e, svc, opts, logger)
	return e, svc
}

func doRequest(t *testing.T, e *echo.Echo, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := sonic.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode body %q: %v", rec.Body.String(), err)
	}
	return v
}

func createTestItem(t *testing.T, e *echo.Echo, body string, headers ...string) domain.Item {
	t.Helper()

	rec := doRequest(t, e, http.MethodPost, "/api/items", body, headers...)
	if rec.Code != http.StatusOK {
		t.Fatalf("create item: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeBody[domain.Item](t, rec)
}

func TestCreateItemDefaults(t *testing.T) {
	e, _ := newTestAPI(t, Options{})

	it := createTestItem(t, e, `{"title":"  Fix login  "}`)
	if it.Title != "Fix login" {
		t.Fatalf("title not trimmed: %q", it.Title)
	}
	if it.Number != 1 {
		t.Fatalf("expected ticket number 1, got %d", it.Number)
	}
	if it.Priority != domain.PriorityMedium {
		t.Fatalf("unexpected priority: %s", it.Priority)
	}
	if it.Assignee == nil || *it.Assignee != domain.Worker {
		t.Fatalf("expected default assignee, got %v", it.Assignee)
	}
	if len(it.Tags) != 1 || it.Tags[0] != domain.DefaultTag {
		t.Fatalf("unexpected tags: %v", it.Tags)
	}
	if it.CreatedBy != domain.Worker {
		t.Fatalf("unexpected creator: %s", it.CreatedBy)
	}

	board := decodeBody[domain.Board](t, doRequest(t, e, http.MethodGet, "/api/board", ""))
	for _, col := range board.Columns {
		want := 0
		if col.ID == domain.DefaultColumn {
			want = 1
		}
		if len(col.Items) != want {
			t.Fatalf("column %s has %d items, want %d", col.ID, len(col.Items), want)
		}
	}
}

func TestCreateItemCreatorFromHeader(t *testing.T) {
	e, _ := newTestAPI(t, Options{})

	it := createTestItem(t, e, `{"title":"Review copy","assignee":"","createdBy":"unknown"}`, headerUserID, "Kenny")
	if it.CreatedBy != domain.Reviewer {
		t.Fatalf("expected creator from header, got %s", it.CreatedBy)
	}
	if it.Assignee != nil {
		t.Fatalf("expected unassigned item, got %q", *it.Assignee)
	}
	if len(it.Comments) != 1 || it.Comments[0].Text != "Created by Kenny" {
		t.Fatalf("unexpected creation comment: %+v", it.Comments)
	}
}

func TestCreateItemRejectsBadInput(t *testing.T) {
	e, _ := newTestAPI(t, Options{})

	tests := []struct {
		name      string
		body      string
		wantError string
		wantField string
	}{
		{name: "missingTitle", body: `{"description":"x"}`, wantError: "Validation failed", wantField: "title"},
		{name: "blankTitle", body: `{"title":"   "}`, wantError: "Validation failed", wantField: "title"},
		{name: "badPriority", body: `{"title":"a","priority":"urgent"}`, wantError: "Validation failed", wantField: "priority"},
		{name: "badAssignee", body: `{"title":"a","assignee":"bob"}`, wantError: "Validation failed", wantField: "assignee"},
		{name: "badColumn", body: `{"title":"a","columnId":"archive"}`, wantError: "Validation failed", wantField: "columnId"},
		{name: "tagsNotArray", body: `{"title":"a","tags":"bug"}`, wantError: "Tags must be an array of strings", wantField: "tags"},
		{name: "tooManyTags", body: `{"title":"a","tags":["1","2","3","4","5","6","7","8","9","10","11","12","13","14","15","16","17","18","19","20","21"]}`, wantError: "Validation failed", wantField: "tags"},
		{name: "invalidJSON", body: `{"title":`, wantError: "Invalid JSON", wantField: "body"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(t, e, http.MethodPost, "/api/items", tt.body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
			resp := decodeBody[errorResponse](t, rec)
			if resp.Error != tt.wantError {
				t.Fatalf("unexpected error: %q", resp.Error)
			}
			if len(resp.Details) == 0 || resp.Details[0].Field != tt.wantField {
				t.Fatalf("unexpected details: %+v", resp.Details)
			}
		})
	}

	board := decodeBody[domain.Board](t, doRequest(t, e, http.MethodGet, "/api/board", ""))
	if board.ItemCount() != 0 {
		t.Fatalf("rejected requests must not create items, got %d", board.ItemCount())
	}
}

func TestUpdateItemNullClearsAssignee(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Ship it"}`)

	rec := doRequest(t, e, http.MethodPut, "/api/items/"+it.ID, `{"assignee":null,"title":"Ship it now"}`, headerUser, "kenny")
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status %d body %s", rec.Code, rec.Body.String())
	}
	updated := decodeBody[domain.Item](t, rec)
	if updated.Assignee != nil {
		t.Fatalf("expected assignee cleared, got %q", *updated.Assignee)
	}
	if updated.Title != "Ship it now" {
		t.Fatalf("unexpected title: %s", updated.Title)
	}

	resp := decodeBody[eventsResponse](t, doRequest(t, e, http.MethodGet, "/api/events?type=ITEM_ASSIGNED", ""))
	if len(resp.Events) != 1 {
		t.Fatalf("expected one assignment event, got %d", len(resp.Events))
	}
	if resp.Events[0].Actor != domain.Reviewer {
		t.Fatalf("expected actor from X-User, got %s", resp.Events[0].Actor)
	}
}

func TestUpdateItemRejectsBadInput(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Ship it"}`)

	for name, body := range map[string]string{
		"titleNotString": `{"title":5}`,
		"emptyTitle":     `{"title":"  "}`,
		"badPriority":    `{"priority":"now"}`,
		"badBlocker":     `{"blockedBy":"bob"}`,
		"tagsNotArray":   `{"tags":{"a":1}}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, e, http.MethodPut, "/api/items/"+it.ID, body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := doRequest(t, e, http.MethodPut, "/api/items/missing", `{"title":"x"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if resp := decodeBody[errorResponse](t, rec); resp.Error != "Item not found" {
		t.Fatalf("unexpected error: %q", resp.Error)
	}
}

func TestMoveItemToReviewNotifies(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Polish"}`)

	rec := doRequest(t, e, http.MethodPost, "/api/items/"+it.ID+"/move", `{"toColumnId":"review","movedBy":"jimmy"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: status %d body %s", rec.Code, rec.Body.String())
	}
	res := decodeBody[domain.MoveResult](t, rec)
	if res.FromColumn != domain.ColumnTodo || res.ToColumn != domain.ColumnReview {
		t.Fatalf("unexpected move result: %s -> %s", res.FromColumn, res.ToColumn)
	}

	list := decodeBody[[]domain.Notification](t, doRequest(t, e, http.MethodGet, "/api/notifications", ""))
	if len(list) != 1 || list[0].Type != domain.NotifyMovedToReview {
		t.Fatalf("unexpected notifications: %+v", list)
	}
	if list[0].Payload.MovedBy != domain.Worker {
		t.Fatalf("unexpected mover: %s", list[0].Payload.MovedBy)
	}
}

func TestMoveItemRejectsBadInput(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Polish"}`)

	for name, body := range map[string]string{
		"missingColumn":    `{}`,
		"unknownColumn":    `{"toColumnId":"archive"}`,
		"negativePosition": `{"toColumnId":"doing","position":-1}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := doRequest(t, e, http.MethodPost, "/api/items/"+it.ID+"/move", body)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
			}
		})
	}

	rec := doRequest(t, e, http.MethodPost, "/api/items/missing/move", `{"toColumnId":"doing"}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestDeleteItem(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Old"}`)

	rec := doRequest(t, e, http.MethodDelete, "/api/items/"+it.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status %d", rec.Code)
	}
	if got := decodeBody[domain.Item](t, rec); got.ID != it.ID {
		t.Fatalf("expected deleted item echoed, got %s", got.ID)
	}
	if rec := doRequest(t, e, http.MethodDelete, "/api/items/"+it.ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second delete, got %d", rec.Code)
	}

	resp := decodeBody[eventsResponse](t, doRequest(t, e, http.MethodGet, "/api/events?type=ITEM_DELETED", ""))
	if len(resp.Events) != 1 || resp.Events[0].Actor != domain.SystemAuthor {
		t.Fatalf("unexpected delete events: %+v", resp.Events)
	}
}

func TestAddCommentMentionsAgents(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Design review"}`)

	rec := doRequest(t, e, http.MethodPost, "/api/items/"+it.ID+"/comments", `{"text":" ping @Claude and @jimmy ","author":"kenny"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("comment: status %d body %s", rec.Code, rec.Body.String())
	}
	cm := decodeBody[domain.Comment](t, rec)
	if cm.Text != "ping @Claude and @jimmy" || cm.Author != domain.Reviewer {
		t.Fatalf("unexpected comment: %+v", cm)
	}

	list := decodeBody[[]domain.Notification](t, doRequest(t, e, http.MethodGet, "/api/notifications", ""))
	if len(list) != 1 || list[0].Type != domain.NotifyMentionAgent {
		t.Fatalf("expected a single mention notification, got %+v", list)
	}

	if rec := doRequest(t, e, http.MethodPost, "/api/items/"+it.ID+"/comments", `{"text":"  "}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for blank comment, got %d", rec.Code)
	}
}

func TestSubtaskLifecycle(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	it := createTestItem(t, e, `{"title":"Checklist"}`)
	base := "/api/items/" + it.ID + "/subtasks"

	rec := doRequest(t, e, http.MethodPost, base, `{"text":"write tests"}`, headerUser, "jimmy")
	if rec.Code != http.StatusOK {
		t.Fatalf("add subtask: status %d body %s", rec.Code, rec.Body.String())
	}
	st := decodeBody[domain.Subtask](t, rec)
	if st.Text != "write tests" || st.Completed {
		t.Fatalf("unexpected subtask: %+v", st)
	}

	rec = doRequest(t, e, http.MethodPut, base+"/"+st.ID, `{"completed":true}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("update subtask: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeBody[domain.Subtask](t, rec); !got.Completed {
		t.Fatalf("expected subtask completed")
	}

	if rec := doRequest(t, e, http.MethodPut, base+"/missing", `{"completed":true}`); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for missing subtask, got %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodPost, base, `{}`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty subtask, got %d", rec.Code)
	}

	rec = doRequest(t, e, http.MethodDelete, base+"/"+st.ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("delete subtask: status %d", rec.Code)
	}

	resp := decodeBody[eventsResponse](t, doRequest(t, e, http.MethodGet, "/api/events?itemId="+it.ID+"&actor=jimmy", ""))
	if len(resp.Events) != 2 {
		t.Fatalf("expected create and subtask add events for jimmy, got %d", len(resp.Events))
	}
}

func TestGetEventsQuery(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	createTestItem(t, e, `{"title":"a"}`)
	createTestItem(t, e, `{"title":"b"}`)

	resp := decodeBody[eventsResponse](t, doRequest(t, e, http.MethodGet, "/api/events?limit=1", ""))
	if len(resp.Events) != 1 {
		t.Fatalf("expected limit to apply, got %d", len(resp.Events))
	}
	if resp.Events[0].Payload.Title != "b" {
		t.Fatalf("expected newest first, got %q", resp.Events[0].Payload.Title)
	}
	if len(resp.EventTypes) != len(domain.EventTypes()) {
		t.Fatalf("unexpected event types: %v", resp.EventTypes)
	}

	resp = decodeBody[eventsResponse](t, doRequest(t, e, http.MethodGet, "/api/events?since=2100-01-01T00:00:00Z", ""))
	if len(resp.Events) != 0 {
		t.Fatalf("expected no future events, got %d", len(resp.Events))
	}

	for _, q := range []string{"since=yesterday", "limit=ten"} {
		if rec := doRequest(t, e, http.MethodGet, "/api/events?"+q, ""); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", q, rec.Code)
		}
	}

	types := decodeBody[map[string]string](t, doRequest(t, e, http.MethodGet, "/api/events/types", ""))
	if types["ITEM_MOVED"] != "ITEM_MOVED" || len(types) != len(domain.EventTypes()) {
		t.Fatalf("unexpected event type map: %v", types)
	}
}

func TestNotificationsAcknowledgeAndClear(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	a := createTestItem(t, e, `{"title":"a"}`)
	b := createTestItem(t, e, `{"title":"b"}`)
	for _, id := range []string{a.ID, b.ID} {
		if rec := doRequest(t, e, http.MethodPut, "/api/items/"+id, `{"assignee":"kenny"}`); rec.Code != http.StatusOK {
			t.Fatalf("assign: status %d", rec.Code)
		}
	}

	list := decodeBody[[]domain.Notification](t, doRequest(t, e, http.MethodGet, "/api/notifications", ""))
	if len(list) != 2 {
		t.Fatalf("expected 2 notifications, got %d", len(list))
	}

	rec := doRequest(t, e, http.MethodDelete, "/api/notifications/"+list[0].ID, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("acknowledge: status %d", rec.Code)
	}
	if rec := doRequest(t, e, http.MethodDelete, "/api/notifications/"+list[0].ID, ""); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on second acknowledge, got %d", rec.Code)
	}

	rec = doRequest(t, e, http.MethodDelete, "/api/notifications", "")
	if rec.Code != http.StatusOK || !decodeBody[clearedResponse](t, rec).Cleared {
		t.Fatalf("clear: status %d body %s", rec.Code, rec.Body.String())
	}
	list = decodeBody[[]domain.Notification](t, doRequest(t, e, http.MethodGet, "/api/notifications", ""))
	if len(list) != 0 {
		t.Fatalf("expected no notifications after clear, got %d", len(list))
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	e, _ := newTestAPI(t, Options{})

	rec := doRequest(t, e, http.MethodGet, "/api/settings", "")
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != "{}" {
		t.Fatalf("unexpected default settings: %d %s", rec.Code, rec.Body.String())
	}

	if rec := doRequest(t, e, http.MethodPost, "/api/settings", `["dark"]`); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-object settings, got %d", rec.Code)
	}

	rec = doRequest(t, e, http.MethodPost, "/api/settings", `{"theme":"dark"}`)
	if rec.Code != http.StatusOK || !decodeBody[successResponse](t, rec).Success {
		t.Fatalf("save settings: %d %s", rec.Code, rec.Body.String())
	}
	got := decodeBody[map[string]string](t, doRequest(t, e, http.MethodGet, "/api/settings", ""))
	if got["theme"] != "dark" {
		t.Fatalf("settings not persisted: %v", got)
	}
}

func TestSnapshotMetricsAndHealth(t *testing.T) {
	e, _ := newTestAPI(t, Options{})
	createTestItem(t, e, `{"title":"a","columnId":"doing"}`)

	rec := doRequest(t, e, http.MethodPost, "/api/board/snapshot", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("snapshot: status %d", rec.Code)
	}
	if backup := decodeBody[domain.Backup](t, rec); !strings.HasPrefix(backup.Name, "backup-") {
		t.Fatalf("unexpected backup name: %s", backup.Name)
	}

	rec = doRequest(t, e, http.MethodGet, "/api/metrics", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics: status %d", rec.Code)
	}
	m := decodeBody[domain.Metrics](t, rec)
	if m.TasksByColumn[domain.ColumnDoing] != 1 {
		t.Fatalf("unexpected column counts: %v", m.TasksByColumn)
	}
	if m.AvgCycleTime != nil {
		t.Fatalf("expected no cycle time without completed items")
	}

	if rec := doRequest(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusOK {
		t.Fatalf("healthz: status %d", rec.Code)
	}
}

func TestHealthzReportsUnavailableStore(t *testing.T) {
	e, _ := newTestAPI(t, Options{Health: failingPinger{}})

	if rec := doRequest(t, e, http.MethodGet, "/healthz", ""); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestUnknownRoute(t *testing.T) {
	e, _ := newTestAPI(t, Options{})

	for _, tc := range []struct{ method, target string }{
		{http.MethodGet, "/api/nope"},
		{http.MethodPatch, "/api/board"},
	} {
		rec := doRequest(t, e, tc.method, tc.target, "")
		if rec.Code != http.StatusNotFound {
			t.Fatalf("%s %s: expected 404, got %d", tc.method, tc.target, rec.Code)
		}
		want := "Route not found: " + tc.method + " " + tc.target
		if resp := decodeBody[errorResponse](t, rec); resp.Error != want {
			t.Fatalf("unexpected error: %q", resp.Error)
		}
	}
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("store offline") }

func TestNotificationStream(t *testing.T) {
	e, _ := newTestAPI(t, Options{StreamInterval: 10 * time.Millisecond})
	it := createTestItem(t, e, `{"title":"stream me"}`)
	if rec := doRequest(t, e, http.MethodPut, "/api/items/"+it.ID, `{"assignee":"kenny"}`); rec.Code != http.StatusOK {
		t.Fatalf("assign: status %d", rec.Code)
	}

	srv := httptest.NewServer(e)
	defer srv.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/notifications/stream", nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("open stream: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get(echo.HeaderContentType); ct != "text/event-stream" {
		t.Fatalf("unexpected content type: %s", ct)
	}

	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	payload, ok := strings.CutPrefix(strings.TrimSpace(line), "data: ")
	if !ok {
		t.Fatalf("unexpected frame: %q", line)
	}
	var list []domain.Notification
	if err := sonic.UnmarshalString(payload, &list); err != nil {
		t.Fatalf("decode frame: %v", err)
	}
	if len(list) != 1 || list[0].Type != domain.NotifyAssignedToReviewer {
		t.Fatalf("unexpected streamed notifications: %+v", list)
	}
}
