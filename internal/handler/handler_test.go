package handler

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/tct123/open-source-habit-tracker-app/internal/backup"
	"github.com/tct123/open-source-habit-tracker-app/internal/calendar"
	"github.com/tct123/open-source-habit-tracker-app/internal/config"
	"github.com/tct123/open-source-habit-tracker-app/internal/database"
	"github.com/tct123/open-source-habit-tracker-app/internal/model"
	"github.com/tct123/open-source-habit-tracker-app/internal/tracker"
	"github.com/tct123/open-source-habit-tracker-app/internal/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupMux(t *testing.T) *http.ServeMux {
	t.Helper()
	db, err := database.Open(filepath.Join(t.TempDir(), "habits.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	clock := calendar.NewFixedClock(time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	svc := tracker.New(db, calendar.New(clock, time.UTC), testLogger())
	hub := websocket.NewHub(testLogger())
	habits := NewHabitHandler(svc, hub, testLogger())
	views := NewViewHandler(svc, testLogger())
	maint := NewMaintenanceHandler(svc, testLogger())
	backups := NewBackupHandler(backup.NewManager(config.BackupConfig{Dir: t.TempDir()}, db, nil, testLogger()), testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/habits", habits.List)
	mux.HandleFunc("POST /api/habits", habits.Create)
	mux.HandleFunc("PATCH /api/habits/{id}", habits.Update)
	mux.HandleFunc("DELETE /api/habits/{id}", habits.Delete)
	mux.HandleFunc("POST /api/habits/{id}/archive", habits.Archive)
	mux.HandleFunc("POST /api/habits/{id}/restore", habits.Restore)
	mux.HandleFunc("PUT /api/habits/order", habits.Reorder)
	mux.HandleFunc("POST /api/habits/{id}/toggle", habits.Toggle)
	mux.HandleFunc("GET /api/habits/{id}/status", habits.Status)
	mux.HandleFunc("GET /api/views/today", views.Today)
	mux.HandleFunc("GET /api/views/week", views.Week)
	mux.HandleFunc("GET /api/views/month", views.Month)
	mux.HandleFunc("GET /api/views/overall", views.Overall)
	mux.HandleFunc("POST /api/maintenance/rebuild", maint.Rebuild)
	mux.HandleFunc("GET /api/maintenance/verify", maint.Verify)
	mux.HandleFunc("POST /api/backups", backups.Create)
	mux.HandleFunc("GET /api/backups", backups.List)
	return mux
}

func do(t *testing.T, mux http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

func createHabit(t *testing.T, mux http.Handler, name string) model.Habit {
	t.Helper()
	rec := do(t, mux, "POST", "/api/habits", `{"name":"`+name+`"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create %s: status %d body %s", name, rec.Code, rec.Body)
	}
	return decode[model.Habit](t, rec)
}

func TestCreateAndList(t *testing.T) {
	mux := setupMux(t)
	a := createHabit(t, mux, "Read")
	if a.Frequency != model.FrequencyDaily || !a.Active || a.SortOrder != 1 {
		t.Errorf("created = %+v", a)
	}

	rec := do(t, mux, "POST", "/api/habits", `{"name":"   "}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("blank name status = %d, want 400", rec.Code)
	}
	if got := decode[map[string]string](t, rec); got["field"] != "name" {
		t.Errorf("error body = %v", got)
	}
	if rec := do(t, mux, "POST", "/api/habits", `{`); rec.Code != http.StatusBadRequest {
		t.Errorf("bad JSON status = %d", rec.Code)
	}

	rec = do(t, mux, "GET", "/api/habits", "")
	habits := decode[[]model.Habit](t, rec)
	if len(habits) != 1 || habits[0].Name != "Read" {
		t.Errorf("list = %+v", habits)
	}
}

func TestEmptyListIsArray(t *testing.T) {
	mux := setupMux(t)
	rec := do(t, mux, "GET", "/api/habits", "")
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rec.Body)
	}
}

func TestToggleEndpoint(t *testing.T) {
	mux := setupMux(t)
	h := createHabit(t, mux, "Walk")
	path := "/api/habits/" + itoa(h.ID)

	rec := do(t, mux, "POST", path+"/toggle", `{"date":"2024-03-04","believed_status":null}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("toggle status = %d body %s", rec.Code, rec.Body)
	}
	if !strings.Contains(rec.Body.String(), `"status":1`) {
		t.Errorf("toggle body = %s, want status 1", rec.Body)
	}

	rec = do(t, mux, "POST", path+"/toggle", `{"date":"2024-03-04","believed_status":1}`)
	if !strings.Contains(rec.Body.String(), `"status":0`) {
		t.Errorf("second toggle body = %s, want status 0", rec.Body)
	}

	rec = do(t, mux, "GET", path+"/status?date=2024-03-04", "")
	if !strings.Contains(rec.Body.String(), `"status":0`) {
		t.Errorf("status body = %s", rec.Body)
	}
	rec = do(t, mux, "GET", path+"/status?date=2024-03-05", "")
	if !strings.Contains(rec.Body.String(), `"status":null`) {
		t.Errorf("unknown status body = %s", rec.Body)
	}

	tests := []struct {
		name string
		path string
		body string
		want int
	}{
		{"bad date", path + "/toggle", `{"date":"2024-02-30"}`, http.StatusBadRequest},
		{"bad believed", path + "/toggle", `{"date":"2024-03-04","believed_status":2}`, http.StatusBadRequest},
		{"missing habit", "/api/habits/999/toggle", `{"date":"2024-03-04"}`, http.StatusNotFound},
		{"bad id", "/api/habits/abc/toggle", `{"date":"2024-03-04"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, mux, "POST", tt.path, tt.body); rec.Code != tt.want {
				t.Errorf("status = %d, want %d (%s)", rec.Code, tt.want, rec.Body)
			}
		})
	}
}

func TestLifecycleEndpoints(t *testing.T) {
	mux := setupMux(t)
	a := createHabit(t, mux, "A")
	b := createHabit(t, mux, "B")
	c := createHabit(t, mux, "C")

	rec := do(t, mux, "PATCH", "/api/habits/"+itoa(a.ID), `{"color":"#ff0000"}`)
	if got := decode[model.Habit](t, rec); got.Color != "#ff0000" || got.Name != "A" {
		t.Errorf("patched = %+v", got)
	}

	rec = do(t, mux, "PUT", "/api/habits/order", `{"ids":[`+itoa(c.ID)+`,`+itoa(a.ID)+`,`+itoa(b.ID)+`]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("reorder status = %d body %s", rec.Code, rec.Body)
	}
	if rec := do(t, mux, "PUT", "/api/habits/order", `{"ids":[`+itoa(a.ID)+`]}`); rec.Code != http.StatusBadRequest {
		t.Errorf("partial reorder status = %d, want 400", rec.Code)
	}

	rec = do(t, mux, "POST", "/api/habits/"+itoa(b.ID)+"/archive", "")
	if got := decode[model.Habit](t, rec); got.Active {
		t.Errorf("archived habit still active")
	}
	if rec := do(t, mux, "DELETE", "/api/habits/"+itoa(a.ID), ""); rec.Code != http.StatusNoContent {
		t.Errorf("delete status = %d", rec.Code)
	}
	if rec := do(t, mux, "DELETE", "/api/habits/"+itoa(a.ID), ""); rec.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", rec.Code)
	}

	habits := decode[[]model.Habit](t, do(t, mux, "GET", "/api/habits", ""))
	var names []string
	for _, h := range habits {
		names = append(names, h.Name)
	}
	if diff := cmp.Diff([]string{"C"}, names); diff != "" {
		t.Errorf("active (-want +got):\n%s", diff)
	}

	rec = do(t, mux, "POST", "/api/habits/"+itoa(b.ID)+"/restore", "")
	if got := decode[model.Habit](t, rec); !got.Active || got.SortOrder <= 1 {
		t.Errorf("restored = %+v", got)
	}
}

func TestViewEndpoints(t *testing.T) {
	mux := setupMux(t)
	h := createHabit(t, mux, "Read")
	do(t, mux, "POST", "/api/habits/"+itoa(h.ID)+"/toggle", `{"date":"2024-03-04"}`)

	today := decode[[]model.TodayEntry](t, do(t, mux, "GET", "/api/views/today", ""))
	if len(today) != 1 || today[0].Date != "2024-03-06" || today[0].Status != model.StatusNotDone {
		t.Errorf("today = %+v", today)
	}

	week := decode[[]model.HabitWeek](t, do(t, mux, "GET", "/api/views/week?start=2024-03-07", ""))
	if len(week) != 1 || week[0].WeekStart != "2024-03-04" {
		t.Fatalf("week = %+v", week)
	}
	got := [7]model.Status{}
	for i, d := range week[0].Days {
		got[i] = d.Status
	}
	want := [7]model.Status{model.StatusDone, model.StatusUnknown, model.StatusNotDone}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("week statuses (-want +got):\n%s", diff)
	}

	month := decode[model.GridView](t, do(t, mux, "GET", "/api/views/month?anchor=2024-03-15", ""))
	if month.Kind != model.GridMonth || len(month.Habits) != 1 {
		t.Errorf("month = %+v", month)
	}
	if rec := do(t, mux, "GET", "/api/views/month?anchor=March", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad anchor status = %d, want 400", rec.Code)
	}

	overall := decode[model.GridView](t, do(t, mux, "GET", "/api/views/overall", ""))
	if overall.Kind != model.GridOverall || len(overall.Habits) != 1 {
		t.Errorf("overall = %+v", overall)
	}
}

func TestMaintenanceEndpoints(t *testing.T) {
	mux := setupMux(t)
	h := createHabit(t, mux, "Read")
	do(t, mux, "POST", "/api/habits/"+itoa(h.ID)+"/toggle", `{"date":"2024-03-04"}`)

	rec := do(t, mux, "POST", "/api/maintenance/rebuild", "")
	if got := decode[map[string]int](t, rec); got["rebuilt"] != 1 {
		t.Errorf("rebuild all = %v", got)
	}
	rec = do(t, mux, "POST", "/api/maintenance/rebuild", `{"habit_id":999}`)
	if rec.Code != http.StatusNotFound {
		t.Errorf("rebuild missing status = %d, want 404", rec.Code)
	}

	rec = do(t, mux, "GET", "/api/maintenance/verify?habit_id="+itoa(h.ID), "")
	if !strings.Contains(rec.Body.String(), `"consistent":true`) {
		t.Errorf("verify body = %s", rec.Body)
	}
	if rec := do(t, mux, "GET", "/api/maintenance/verify?habit_id=x", ""); rec.Code != http.StatusBadRequest {
		t.Errorf("bad habit_id status = %d", rec.Code)
	}
}

func TestBackupEndpoints(t *testing.T) {
	mux := setupMux(t)
	createHabit(t, mux, "Read")

	if rec := do(t, mux, "POST", "/api/backups", `{"passphrase":"short"}`); rec.Code != http.StatusBadRequest {
		t.Errorf("weak passphrase status = %d, want 400", rec.Code)
	}
	rec := do(t, mux, "POST", "/api/backups", `{"passphrase":"a long enough passphrase"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("backup status = %d body %s", rec.Code, rec.Body)
	}
	b := decode[model.Backup](t, rec)
	if b.Status != model.BackupStatusCompleted || b.Location != "local" {
		t.Errorf("backup = %+v", b)
	}

	list := decode[[]model.Backup](t, do(t, mux, "GET", "/api/backups", ""))
	if len(list) != 1 || list[0].Key != b.Key {
		t.Errorf("list = %+v", list)
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

type recordingHub struct {
	mu   sync.Mutex
	msgs []string
}

func (r *recordingHub) Broadcast(msg websocket.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg.Type)
}

func TestRestoreBroadcastsOnlyOnChange(t *testing.T) {
	db, err := database.Open(filepath.Join(t.TempDir(), "habits.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()
	clock := calendar.NewFixedClock(time.Date(2024, 3, 6, 9, 0, 0, 0, time.UTC))
	svc := tracker.New(db, calendar.New(clock, time.UTC), testLogger())
	hub := &recordingHub{}
	habits := &HabitHandler{broadcaster: broadcaster{hub: hub}, svc: svc, logger: testLogger()}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/habits", habits.Create)
	mux.HandleFunc("POST /api/habits/{id}/archive", habits.Archive)
	mux.HandleFunc("POST /api/habits/{id}/restore", habits.Restore)

	h := createHabit(t, mux, "Read")
	path := "/api/habits/" + itoa(h.ID)

	if rec := do(t, mux, "POST", path+"/restore", ""); rec.Code != http.StatusOK {
		t.Fatalf("restore active status = %d", rec.Code)
	}
	do(t, mux, "POST", path+"/archive", "")
	rec := do(t, mux, "POST", path+"/restore", "")
	if got := decode[model.Habit](t, rec); !got.Active {
		t.Errorf("restored = %+v", got)
	}

	want := []string{"habit_created", "habit_archived", "habit_restored"}
	if diff := cmp.Diff(want, hub.msgs); diff != "" {
		t.Errorf("broadcasts (-want +got):\n%s", diff)
	}
}
