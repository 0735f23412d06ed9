package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"voice-notes/config"
	"voice-notes/dictation"
	"voice-notes/domain"
	"voice-notes/infrastructure"

	"github.com/getsentry/sentry-go"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

type Server struct {
	Db       *gorm.DB
	Router   httprouter.Router
	Config   config.Config
	Exporter infrastructure.Exporter
	Client   *http.Client
	Upgrader websocket.Upgrader

	// Shared by every dictation connection when DICTATION_ENGINE=google.
	speech *dictation.GoogleEngine
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	defer func() {
		if err := recover(); err != nil {
			hub := sentry.CurrentHub().Clone()
			hub.Scope().SetRequest(r)
			hub.RecoverWithContext(r.Context(), err)
			log.Error().Interface("panic", err).Str("path", r.URL.Path).Msg("recovered from panic")
			s.Response(w, r, Error{Code: 500, Message: "Internal server error.", Function: "ServeHTTP", Input: r.URL.Path}, 500)
		}
	}()

	h, p, _ := s.Router.Lookup(r.Method, r.URL.Path)
	if h != nil {
		h(w, r, p)
		return
	}
	s.Response(w, r, Error{Code: 404, Message: "Path not found.", Function: "ServeHTTP", Input: r.URL.Path}, 404)
}

// Handler wraps the server with CORS handling for the configured origins.
func (s *Server) Handler() http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins: s.Config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		ExposedHeaders: []string{"Authorization"},
	}).Handler(s)
}

type Error struct {
	Code     int
	Message  string
	Function string
	Input    string
}

// New builds a server around an open database.
func New(db *gorm.DB, cfg config.Config) *Server {
	server := &Server{
		Db:     db,
		Config: cfg,
		Client: &http.Client{Timeout: 10 * time.Second},
		Upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     originChecker(cfg.CORSOrigins),
		},
	}

	router := server.Routes()
	server.Router = *router

	return server
}

// Init connects the database, migrates it and wires the optional backends.
func Init(ctx context.Context, cfg config.Config) (*Server, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	db, err := infrastructure.Connect(connectCtx, cfg.DBDriver, cfg.DBConnectionString)
	if err != nil {
		return nil, err
	}
	if err := infrastructure.CreateTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	server := New(db, cfg)

	exporter, err := infrastructure.NewExporter(cfg.ExportBackend, cfg.ExportBucket, cfg.AzureStorageAccount, cfg.AzureStorageKey)
	switch {
	case errors.Is(err, infrastructure.ErrExportDisabled):
	case err != nil:
		log.Warn().Err(err).Msg("note export disabled")
	default:
		server.Exporter = exporter
	}

	if cfg.DictationEngine == config.EngineGoogle {
		server.speech = dictation.NewGoogleEngine(ctx, dictation.GoogleConfig{
			CredentialsFile: cfg.GoogleCredentials,
			LanguageCode:    cfg.DictationLanguage,
		})
	}

	return server, nil
}

func (s *Server) Close() error {
	if s.speech != nil {
		if err := s.speech.Close(); err != nil {
			log.Warn().Err(err).Msg("closing speech client")
		}
	}
	sqlDB, err := s.Db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Notify publishes n to the notification service, when one is configured.
// Delivery is best effort and does not hold up the request.
func (s *Server) Notify(r *http.Request, n domain.Notification) {
	if s.Config.NotificationService == "" {
		return
	}
	token := bearerToken(r)
	body, _ := json.Marshal(n)
	endpoint := fmt.Sprintf("%s/publish?access_token=%s", strings.TrimRight(s.Config.NotificationService, "/"), token)

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			log.Warn().Err(err).Msg("building notification request")
			return
		}
		req.Header.Set("Content-Type", "application/json")
		resp, err := s.Client.Do(req)
		if err != nil {
			log.Warn().Err(err).Str("process", n.Process).Msg("could not publish notification")
			return
		}
		resp.Body.Close()
		if resp.StatusCode >= 300 {
			log.Warn().Int("status", resp.StatusCode).Str("process", n.Process).Msg("notification service rejected notification")
		}
	}()
}

func (s *Server) Error(code int, message string, function string, input interface{}) Error {
	inputJSON, _ := json.MarshalIndent(input, "", "    ")
	return Error{
		Code:     code,
		Message:  message,
		Function: function,
		Input:    string(inputJSON),
	}
}

func (s *Server) Decode(w http.ResponseWriter, r *http.Request, v interface{}) error {
	return json.NewDecoder(r.Body).Decode(v)
}

func (s *Server) Response(w http.ResponseWriter, r *http.Request, i interface{}, code int) {
	if e, ok := i.(Error); ok && code >= http.StatusInternalServerError {
		log.Error().Str("function", e.Function).Str("path", r.URL.Path).Msg(e.Message)
		sentry.WithScope(func(scope *sentry.Scope) {
			scope.SetRequest(r)
			scope.SetExtra("function", e.Function)
			sentry.CaptureMessage(e.Message)
		})
	}

	if i != nil {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(code)
	if i != nil {
		err := json.NewEncoder(w).Encode(i)
		if err != nil {
			log.Error().Err(err).Msg("Couldn't encode response data")
		}
	}
}

func (s *Server) AwaitForShutdown(ctx context.Context, server *http.Server, serverDone chan error, shutdownApplication context.CancelFunc) {
	select {
	case <-ctx.Done():
		s.ShutdownServerGracefully(server)
	case serverError := <-serverDone:
		if serverError != nil {
			log.Error().Err(serverError).Msg("Server returned with error")
		}
		shutdownApplication()
	}
}

func (s *Server) ShutdownServerGracefully(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Could not shutdown server gracefully")
	}
}

func (s *Server) HandleShutdownSignals(cancel context.CancelFunc) {
	done := make(chan struct{})
	go func() {
		log.Info().Msg("Listening signals...")
		c := make(chan os.Signal, 1)
		signal.Notify(c, os.Interrupt, syscall.SIGTERM)
		<-c
		close(done)
	}()
	go func() {
		<-done
		log.Info().Msg("Shutting down")
		cancel()
	}()
}

func originChecker(origins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range origins {
			if o == "*" || strings.EqualFold(o, origin) {
				return true
			}
		}
		return false
	}
}
