package api

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
)

func (s *Server) Routes() *httprouter.Router {
	router := httprouter.New()

	router.GET("/healthz", s.HandleHealthz())
	router.POST("/login", s.HandleLogin())
	router.GET("/me", s.Validate(s.HandleMe()))

	router.GET("/notes", s.Validate(s.HandleListNotes()))
	router.POST("/notes", s.Validate(s.HandleCreateNote()))
	router.POST("/notes/export", s.Validate(s.HandleExportNotes()))
	router.GET("/notes/:id", s.Validate(s.HandleGetNote()))
	router.PUT("/notes/:id", s.Validate(s.HandleUpdateNote()))
	router.DELETE("/notes/:id", s.Validate(s.HandleDeleteNote()))

	router.GET("/colors", s.HandleColors())
	router.GET("/dictation", s.Validate(s.HandleDictation()))

	return router
}

func (s *Server) HandleHealthz() httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		sqlDB, err := s.Db.DB()
		if err == nil {
			err = sqlDB.PingContext(r.Context())
		}
		if err != nil {
			s.Response(w, r, s.Error(http.StatusServiceUnavailable, err.Error(), "HandleHealthz", nil), http.StatusServiceUnavailable)
			return
		}
		s.Response(w, r, map[string]string{"status": "ok"}, http.StatusOK)
	}
}
