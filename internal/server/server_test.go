package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/jloh02/anchored-amazing-race/internal/auth"
	"github.com/jloh02/anchored-amazing-race/internal/journal"
	"github.com/jloh02/anchored-amazing-race/internal/race"
)

type fakeProgress struct {
	rows []race.GroupProgress
	err  error
}

func (f fakeProgress) Progress(context.Context) ([]race.GroupProgress, error) { return f.rows, f.err }

type fakeJournal struct {
	events    []journal.Event
	lastLimit int
}

func (f *fakeJournal) Record(_ context.Context, ev journal.Event) error {
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]journal.Event, error) {
	f.lastLimit = limit
	if limit > len(f.events) {
		limit = len(f.events)
	}
	return f.events[:limit], nil
}

func setupTestRouter(t *testing.T, progress fakeProgress) (*gin.Engine, *fakeJournal, string) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	start := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)
	j := &fakeJournal{events: []journal.Event{
		{At: start, Kind: journal.KindRaceStarted, Group: "1", Actor: "alice", Detail: "A1"},
		{At: start.Add(time.Minute), Kind: journal.KindChallengeCompleted, Group: "1", Actor: "alice"},
	}}
	iss := auth.NewIssuer("s3cret", time.Hour)
	tok, err := iss.Issue("captain")
	if err != nil {
		t.Fatalf("Issue failed: %v", err)
	}
	r := NewRouter(Deps{Progress: progress, Journal: j, Tokens: iss, Log: zerolog.Nop()})
	return r, j, tok
}

func sampleProgress() fakeProgress {
	start := time.Date(2024, 1, 13, 9, 0, 0, 0, time.UTC)
	return fakeProgress{rows: []race.GroupProgress{
		{ID: "1", Name: "Kraken", Direction: "A1", CurrentLocation: 1, LocationName: "Bishan", Completed: 1, Started: true, StartTime: &start, Leaders: []race.LeaderPosition{}},
		{ID: "2", Name: "Leviathan, Jr", Leaders: []race.LeaderPosition{}},
	}}
}

func TestHealth(t *testing.T) {
	r, _, _ := setupTestRouter(t, sampleProgress())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
}

func TestTokenRequired(t *testing.T) {
	r, _, tok := setupTestRouter(t, sampleProgress())

	tests := []struct {
		name   string
		target string
		header string
		want   int
	}{
		{"missing", "/api/progress", "", http.StatusUnauthorized},
		{"bad query token", "/api/progress?token=nope", "", http.StatusUnauthorized},
		{"query token", "/api/progress?token=" + tok, "", http.StatusOK},
		{"bearer token", "/api/progress", "Bearer " + tok, http.StatusOK},
		{"export without token", "/export/progress.csv", "", http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if w.Code != tt.want {
				t.Fatalf("expected %d, got %d (%s)", tt.want, w.Code, w.Body.String())
			}
		})
	}
}

func TestProgressJSON(t *testing.T) {
	r, _, tok := setupTestRouter(t, sampleProgress())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/progress?token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body struct {
		Groups []race.GroupProgress `json:"groups"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(body.Groups) != 2 || body.Groups[0].LocationName != "Bishan" {
		t.Fatalf("unexpected body: %+v", body)
	}
}

func TestProgressError(t *testing.T) {
	r, _, tok := setupTestRouter(t, fakeProgress{err: errors.New("store down")})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/progress?token="+tok, nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", w.Code)
	}
}

func TestJournalLimit(t *testing.T) {
	r, j, tok := setupTestRouter(t, sampleProgress())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/journal?limit=1&token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var body struct {
		Events []journal.Event `json:"events"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad json: %v", err)
	}
	if len(body.Events) != 1 || body.Events[0].Kind != journal.KindRaceStarted {
		t.Fatalf("unexpected events: %+v", body.Events)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/journal?limit=100000&token="+tok, nil))
	if w.Code != http.StatusOK || j.lastLimit != maxJournalLimit {
		t.Fatalf("expected limit capped at %d, got %d (status %d)", maxJournalLimit, j.lastLimit, w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/journal?limit=zero&token="+tok, nil))
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
}

func TestExportCSV(t *testing.T) {
	r, _, tok := setupTestRouter(t, sampleProgress())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/export/progress.csv?token="+tok, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/csv") {
		t.Fatalf("unexpected content type %q", ct)
	}

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header + 2 rows, got %d lines", len(lines))
	}
	if !strings.HasPrefix(lines[1], "1,Kraken,A1,1,Bishan,1,0,0,true,false,false,2024-01-13T09:00:00Z,") {
		t.Fatalf("unexpected row: %q", lines[1])
	}
	if !strings.HasPrefix(lines[2], `2,"Leviathan, Jr",`) {
		t.Fatalf("expected quoted name, got %q", lines[2])
	}
}
