package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"

	"voice-notes/domain"
)

func createNote(t *testing.T, s *Server, token string, body map[string]interface{}) domain.Note {
	t.Helper()
	rec := do(t, s, http.MethodPost, "/notes", token, body)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create note: status = %d: %s", rec.Code, rec.Body)
	}
	var note domain.Note
	decode(t, rec, &note)
	return note
}

func TestNotesCRUD(t *testing.T) {
	s := newTestServer(t)
	profile, token := createProfile(t, s, "crud@example.com")

	note := createNote(t, s, token, map[string]interface{}{"title": "  Groceries ", "content": "milk"})
	if note.ID == "" || note.Title != "Groceries" || note.Color != domain.DefaultColor || note.ProfileID != profile.ID {
		t.Fatalf("created note = %+v", note)
	}

	rec := do(t, s, http.MethodGet, "/notes/"+note.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: status = %d", rec.Code)
	}

	rec = do(t, s, http.MethodPut, "/notes/"+note.ID, token, map[string]interface{}{"starred": true, "color": "#FEE2E2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("update: status = %d: %s", rec.Code, rec.Body)
	}
	var updated domain.Note
	decode(t, rec, &updated)
	if !updated.Starred || updated.Color != "#fee2e2" || updated.Title != "Groceries" || updated.Content != "milk" {
		t.Errorf("updated note = %+v", updated)
	}

	rec = do(t, s, http.MethodDelete, "/notes/"+note.ID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: status = %d", rec.Code)
	}
	var out struct{ Message string }
	decode(t, rec, &out)
	if out.Message != "Note deleted" {
		t.Errorf("delete message = %q", out.Message)
	}

	if rec := do(t, s, http.MethodGet, "/notes/"+note.ID, token, nil); rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: status = %d, want 404", rec.Code)
	}
}

func TestNotesValidation(t *testing.T) {
	s := newTestServer(t)
	_, token := createProfile(t, s, "invalid@example.com")

	tests := []struct {
		name string
		body map[string]interface{}
	}{
		{"blank title", map[string]interface{}{"title": "  ", "content": "x"}},
		{"no content", map[string]interface{}{"title": "x"}},
		{"unknown color", map[string]interface{}{"title": "x", "content": "y", "color": "#123456"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rec := do(t, s, http.MethodPost, "/notes", token, tt.body); rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}

	note := createNote(t, s, token, map[string]interface{}{"title": "kept", "content": "kept"})
	if rec := do(t, s, http.MethodPut, "/notes/"+note.ID, token, map[string]interface{}{"content": ""}); rec.Code != http.StatusBadRequest {
		t.Errorf("clearing content: status = %d, want 400", rec.Code)
	}

	rec := do(t, s, http.MethodGet, "/notes/"+note.ID, token, nil)
	var stored domain.Note
	decode(t, rec, &stored)
	if stored.Content != "kept" {
		t.Errorf("rejected update was stored: %+v", stored)
	}
}

func TestNotesAreScopedToOwner(t *testing.T) {
	s := newTestServer(t)
	_, owner := createProfile(t, s, "owner@example.com")
	_, other := createProfile(t, s, "other@example.com")

	note := createNote(t, s, owner, map[string]interface{}{"title": "private", "content": "mine"})

	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		rec := do(t, s, method, "/notes/"+note.ID, other, map[string]interface{}{"title": "stolen"})
		if rec.Code != http.StatusNotFound {
			t.Errorf("%s by other profile: status = %d, want 404", method, rec.Code)
		}
	}

	rec := do(t, s, http.MethodGet, "/notes", other, nil)
	var notes []domain.Note
	decode(t, rec, &notes)
	if len(notes) != 0 {
		t.Errorf("other profile sees %d notes", len(notes))
	}
}

func TestListNotesFilters(t *testing.T) {
	s := newTestServer(t)
	_, token := createProfile(t, s, "list@example.com")

	createNote(t, s, token, map[string]interface{}{"title": "Team meeting", "content": "agenda", "starred": true})
	createNote(t, s, token, map[string]interface{}{"title": "Groceries", "content": "milk and eggs"})
	createNote(t, s, token, map[string]interface{}{"title": "Ideas", "content": "write more notes"})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"Ideas", "Groceries", "Team meeting"}},
		{"?filter=all", []string{"Ideas", "Groceries", "Team meeting"}},
		{"?filter=starred", []string{"Team meeting"}},
		{"?q=EGGS", []string{"Groceries"}},
		{"?q=meating", []string{"Team meeting"}},
		{"?filter=starred&q=milk", nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			rec := do(t, s, http.MethodGet, "/notes"+tt.query, token, nil)
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d", rec.Code)
			}
			var notes []domain.Note
			decode(t, rec, &notes)
			var titles []string
			for _, n := range notes {
				titles = append(titles, n.Title)
			}
			if strings.Join(titles, ",") != strings.Join(tt.want, ",") {
				t.Errorf("titles = %v, want %v", titles, tt.want)
			}
		})
	}

	if rec := do(t, s, http.MethodGet, "/notes?filter=archived", token, nil); rec.Code != http.StatusBadRequest {
		t.Errorf("unknown filter: status = %d, want 400", rec.Code)
	}
}

type recordingExporter struct {
	mu      sync.Mutex
	objects map[string][]byte
	err     error
}

func (e *recordingExporter) Export(ctx context.Context, object string, data []byte) (string, error) {
	if e.err != nil {
		return "", e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.objects == nil {
		e.objects = map[string][]byte{}
	}
	e.objects[object] = data
	return "mem://" + object, nil
}

func TestExportNotes(t *testing.T) {
	s := newTestServer(t)
	profile, token := createProfile(t, s, "export@example.com")
	createNote(t, s, token, map[string]interface{}{"title": "one", "content": "first"})
	createNote(t, s, token, map[string]interface{}{"title": "two", "content": "second"})

	if rec := do(t, s, http.MethodPost, "/notes/export", token, nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("export without backend: status = %d, want 503", rec.Code)
	}

	exporter := &recordingExporter{}
	s.Exporter = exporter

	rec := do(t, s, http.MethodPost, "/notes/export", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("export: status = %d: %s", rec.Code, rec.Body)
	}
	var out struct {
		URI   string `json:"uri"`
		Count int    `json:"count"`
	}
	decode(t, rec, &out)
	if out.Count != 2 || !strings.HasPrefix(out.URI, "mem://notes/") {
		t.Errorf("export output = %+v", out)
	}
	for object, data := range exporter.objects {
		if !strings.Contains(object, fmt.Sprintf("/%d/", profile.ID)) || !strings.Contains(string(data), `"second"`) {
			t.Errorf("exported %s = %s", object, data)
		}
	}

	s.Exporter = &recordingExporter{err: errors.New("bucket unreachable")}
	if rec := do(t, s, http.MethodPost, "/notes/export", token, nil); rec.Code != http.StatusBadGateway {
		t.Errorf("failing backend: status = %d, want 502", rec.Code)
	}
}
