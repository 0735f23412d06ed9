package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"voice-notes/domain"
	"voice-notes/infrastructure"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

func (s *Server) HandleListNotes() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		query := domain.NoteQuery{
			Filter: r.URL.Query().Get("filter"),
			Text:   r.URL.Query().Get("q"),
		}
		if query.Filter != "" && query.Filter != domain.FilterAll && query.Filter != domain.FilterStarred {
			s.Response(
				w, r,
				s.Error(http.StatusBadRequest, "filter must be all or starred", "HandleListNotes", query),
				http.StatusBadRequest,
			)
			return
		}

		notes := []domain.Note{}
		db := s.Db.WithContext(r.Context()).
			Where(&domain.Note{ProfileID: ProfileID(r.Context())}).
			Order("created_at desc").
			Find(&notes)
		if db.Error != nil {
			s.Response(
				w, r,
				s.Error(http.StatusInternalServerError, db.Error.Error(), "HandleListNotes", query),
				http.StatusInternalServerError,
			)
			return
		}

		s.Response(w, r, query.Apply(notes), http.StatusOK)
	}
}

func (s *Server) HandleCreateNote() httprouter.Handle {
	type Input struct {
		Title   string `json:"title"`
		Content string `json:"content"`
		Color   string `json:"color"`
		Starred bool   `json:"starred"`
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		input := &Input{}
		err := s.Decode(w, r, input)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusBadRequest, err.Error(), "HandleCreateNote", nil),
				http.StatusBadRequest,
			)
			return
		}

		note := &domain.Note{
			Title:     strings.TrimSpace(input.Title),
			Content:   strings.TrimSpace(input.Content),
			Color:     strings.ToLower(input.Color),
			Starred:   input.Starred,
			ProfileID: ProfileID(r.Context()),
		}
		if err := s.createNote(r, note); err != nil {
			s.noteError(w, r, err, "HandleCreateNote", input)
			return
		}

		s.Response(w, r, note, http.StatusCreated)
	}
}

func (s *Server) HandleGetNote() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		note, err := s.findNote(r, p.ByName("id"))
		if err != nil {
			s.noteError(w, r, err, "HandleGetNote", p.ByName("id"))
			return
		}
		s.Response(w, r, note, http.StatusOK)
	}
}

// HandleUpdateNote applies a partial update: only the fields present in the
// body change.
func (s *Server) HandleUpdateNote() httprouter.Handle {
	type Input struct {
		Title   *string `json:"title"`
		Content *string `json:"content"`
		Starred *bool   `json:"starred"`
		Color   *string `json:"color"`
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		input := &Input{}
		err := s.Decode(w, r, input)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusBadRequest, err.Error(), "HandleUpdateNote", nil),
				http.StatusBadRequest,
			)
			return
		}

		note, err := s.findNote(r, p.ByName("id"))
		if err != nil {
			s.noteError(w, r, err, "HandleUpdateNote", p.ByName("id"))
			return
		}

		if input.Title != nil {
			note.Title = strings.TrimSpace(*input.Title)
		}
		if input.Content != nil {
			note.Content = strings.TrimSpace(*input.Content)
		}
		if input.Starred != nil {
			note.Starred = *input.Starred
		}
		if input.Color != nil {
			note.Color = strings.ToLower(*input.Color)
		}

		if err := s.saveNote(r, note); err != nil {
			s.noteError(w, r, err, "HandleUpdateNote", input)
			return
		}

		s.Response(w, r, note, http.StatusOK)
	}
}

func (s *Server) HandleDeleteNote() httprouter.Handle {
	type Output struct {
		Message string `json:"message"`
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		note, err := s.findNote(r, p.ByName("id"))
		if err != nil {
			s.noteError(w, r, err, "HandleDeleteNote", p.ByName("id"))
			return
		}

		db := s.Db.WithContext(r.Context()).Delete(note)
		if db.Error != nil {
			s.noteError(w, r, db.Error, "HandleDeleteNote", note.ID)
			return
		}

		s.Notify(r, domain.Notification{
			ProfileID: note.ProfileID,
			CreatedAt: time.Now(),
			Process:   domain.ProcessNoteDeleted,
			Content:   note.ID,
		})
		s.Response(w, r, &Output{Message: "Note deleted"}, http.StatusOK)
	}
}

// HandleExportNotes writes every note of the caller to blob storage.
func (s *Server) HandleExportNotes() httprouter.Handle {
	type Output struct {
		URI   string `json:"uri"`
		Count int    `json:"count"`
	}

	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		if s.Exporter == nil {
			s.Response(
				w, r,
				s.Error(http.StatusServiceUnavailable, infrastructure.ErrExportDisabled.Error(), "HandleExportNotes", nil),
				http.StatusServiceUnavailable,
			)
			return
		}

		profileID := ProfileID(r.Context())
		notes := []domain.Note{}
		db := s.Db.WithContext(r.Context()).
			Where(&domain.Note{ProfileID: profileID}).
			Order("created_at asc").
			Find(&notes)
		if db.Error != nil {
			s.noteError(w, r, db.Error, "HandleExportNotes", profileID)
			return
		}

		data, err := json.MarshalIndent(notes, "", "  ")
		if err != nil {
			s.noteError(w, r, err, "HandleExportNotes", profileID)
			return
		}

		uri, err := s.Exporter.Export(r.Context(), infrastructure.ExportObjectName(profileID, time.Now()), data)
		if err != nil {
			s.Response(
				w, r,
				s.Error(http.StatusBadGateway, err.Error(), "HandleExportNotes", profileID),
				http.StatusBadGateway,
			)
			return
		}

		log.Info().Uint("profile", profileID).Int("notes", len(notes)).Str("uri", uri).Msg("notes exported")
		s.Response(w, r, &Output{URI: uri, Count: len(notes)}, http.StatusOK)
	}
}

func (s *Server) HandleColors() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		s.Response(w, r, domain.Palette, http.StatusOK)
	}
}

// findNote loads a note of the authenticated profile. Notes owned by anyone
// else are reported as missing.
func (s *Server) findNote(r *http.Request, id string) (*domain.Note, error) {
	note := &domain.Note{}
	db := s.Db.WithContext(r.Context()).
		Where("id = ? AND profile_id = ?", id, ProfileID(r.Context())).
		First(note)
	if db.Error != nil {
		return nil, db.Error
	}
	return note, nil
}

func (s *Server) createNote(r *http.Request, note *domain.Note) error {
	if err := note.Validate(); err != nil {
		return err
	}
	if err := s.Db.WithContext(r.Context()).Create(note).Error; err != nil {
		return err
	}
	s.Notify(r, domain.Notification{
		ProfileID: note.ProfileID,
		CreatedAt: time.Now(),
		Process:   domain.ProcessNoteCreated,
		Content:   note.ID,
	})
	return nil
}

func (s *Server) saveNote(r *http.Request, note *domain.Note) error {
	if err := note.Validate(); err != nil {
		return err
	}
	if err := s.Db.WithContext(r.Context()).Save(note).Error; err != nil {
		return err
	}
	s.Notify(r, domain.Notification{
		ProfileID: note.ProfileID,
		CreatedAt: time.Now(),
		Process:   domain.ProcessNoteUpdated,
		Content:   note.ID,
	})
	return nil
}

func (s *Server) noteError(w http.ResponseWriter, r *http.Request, err error, function string, input interface{}) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		code = http.StatusNotFound
		err = errors.New("Note not found")
	case errors.Is(err, domain.ErrEmptyTitle), errors.Is(err, domain.ErrEmptyContent), errors.Is(err, domain.ErrUnknownColor):
		code = http.StatusBadRequest
	}
	s.Response(w, r, s.Error(code, err.Error(), function, input), code)
}
