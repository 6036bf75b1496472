// Package api implements the HTTP API of the preparation assistant.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/lukas-holzner/codefusion-hackathon/internal/buildinfo"
	"github.com/lukas-holzner/codefusion-hackathon/internal/connwatch"
	"github.com/lukas-holzner/codefusion-hackathon/internal/conversation"
	"github.com/lukas-holzner/codefusion-hackathon/internal/events"
	"github.com/lukas-holzner/codefusion-hackathon/internal/llm"
	"github.com/lukas-holzner/codefusion-hackathon/internal/prep"
	"github.com/lukas-holzner/codefusion-hackathon/internal/store"
)

// writeJSON encodes v as JSON to w, logging any errors at debug level.
// Errors here typically mean the client disconnected mid-response.
func writeJSON(w http.ResponseWriter, v any, logger *slog.Logger) {
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write JSON response", "error", err)
	}
}

// Records is the part of the record store served directly by the API.
type Records interface {
	CreateUser(ctx context.Context, username string) (store.User, error)
	GetUser(ctx context.Context, id int64) (store.User, error)
	ListUsers(ctx context.Context, skip, limit int) ([]store.User, error)
	UserMeetings(ctx context.Context, userID int64) ([]store.MeetingStatus, error)

	CreateMeeting(ctx context.Context, in store.MeetingInput) (store.Meeting, error)
	GetMeeting(ctx context.Context, id int64) (store.Meeting, error)
	ListMeetings(ctx context.Context, skip, limit int) ([]store.Meeting, error)
	UpdateMeeting(ctx context.Context, id int64, in store.MeetingInput) (store.Meeting, error)
	DeleteMeeting(ctx context.Context, id int64) (store.Meeting, error)
	AddParticipant(ctx context.Context, meetingID, userID int64) error

	Ping(ctx context.Context) error
}

// Options configure a Server.
type Options struct {
	Address string
	Port    int

	// PublicURL is the externally reachable base URL, used in QR codes.
	// Empty derives it from the request.
	PublicURL string

	// Metrics is served at MetricsPath when non-nil.
	Metrics     http.Handler
	MetricsPath string

	// MaxUploadBytes bounds multipart audio uploads.
	MaxUploadBytes int64

	// Providers reports model provider reachability in /health. Optional.
	Providers ProviderStatus
}

// ProviderStatus reports the reachability of each model provider.
type ProviderStatus interface {
	Status() map[string]connwatch.Status
}

// Server is the HTTP API server.
type Server struct {
	opts     Options
	records  Records
	prep     *prep.Service
	bus      *events.Bus
	logger   *slog.Logger
	server   *http.Server
	markdown goldmark.Markdown
	upgrader websocket.Upgrader
}

// NewServer creates a new API server.
func NewServer(opts Options, records Records, svc *prep.Service, bus *events.Bus, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = prep.DefaultMaxUploadBytes
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	return &Server{
		opts:     opts,
		records:  records,
		prep:     svc,
		bus:      bus,
		logger:   logger.With("component", "api"),
		markdown: goldmark.New(goldmark.WithExtensions(extension.GFM)),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// The browser client is served from another origin.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

// Handler returns the routed handler, wrapped in request logging.
func (s *Server) Handler() http.Handler {
	api := http.NewServeMux()

	// Users
	api.HandleFunc("POST /users", s.handleUserCreate)
	api.HandleFunc("POST /users/{$}", s.handleUserCreate)
	api.HandleFunc("GET /users", s.handleUserList)
	api.HandleFunc("GET /users/{$}", s.handleUserList)
	api.HandleFunc("GET /users/{user_id}", s.handleUserGet)
	api.HandleFunc("GET /users/{user_id}/meetings", s.handleUserMeetings)

	// Meetings
	api.HandleFunc("POST /meetings", s.handleMeetingCreate)
	api.HandleFunc("POST /meetings/{$}", s.handleMeetingCreate)
	api.HandleFunc("GET /meetings", s.handleMeetingList)
	api.HandleFunc("GET /meetings/{$}", s.handleMeetingList)
	api.HandleFunc("GET /meetings/{meeting_id}", s.handleMeetingGet)
	api.HandleFunc("PUT /meetings/{meeting_id}", s.handleMeetingUpdate)
	api.HandleFunc("DELETE /meetings/{meeting_id}", s.handleMeetingDelete)
	api.HandleFunc("POST /meetings/{meeting_id}/add_user", s.handleMeetingAddUser)

	// Meeting agenda
	api.HandleFunc("GET /meetings/{meeting_id}/agenda", s.handleMeetingAgenda)
	api.HandleFunc("GET /meetings/{meeting_id}/agenda.md", s.handleMeetingAgendaMarkdown)
	api.HandleFunc("GET /meetings/{meeting_id}/agenda.html", s.handleMeetingAgendaHTML)

	// Preparation conversation
	api.HandleFunc("GET /meetings/{meeting_id}/{user_id}/conversation", s.handleConversation)
	api.HandleFunc("POST /meetings/{meeting_id}/{user_id}/conversation/message", s.handleConversationMessage)
	api.HandleFunc("POST /meetings/{meeting_id}/{user_id}/conversation/audio", s.handleConversationAudio)
	api.HandleFunc("GET /meetings/{meeting_id}/{user_id}/conversation/ws", s.handleConversationLive)
	api.HandleFunc("GET /meetings/{meeting_id}/{user_id}/agenda", s.handleAgendaGet)
	api.HandleFunc("PUT /meetings/{meeting_id}/{user_id}/agenda", s.handleAgendaReplace)
	api.HandleFunc("PATCH /meetings/{meeting_id}/{user_id}/agenda/{index}", s.handleAgendaToggle)
	api.HandleFunc("GET /meetings/{meeting_id}/{user_id}/qrcode.png", s.handleQRCode)

	// Speech
	api.HandleFunc("POST /tts", s.handleTTS)
	api.HandleFunc("POST /tts/{$}", s.handleTTS)

	// Health endpoints
	api.HandleFunc("GET /version", s.handleVersion)
	api.HandleFunc("GET /health", s.handleHealth)

	mux := http.NewServeMux()
	mux.Handle("/", api)
	mux.Handle("/api/", http.StripPrefix("/api", api))
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if s.opts.Metrics != nil {
		mux.Handle("GET "+s.opts.MetricsPath, s.opts.Metrics)
	}

	return s.withLogging(mux)
}

// Start begins serving HTTP requests.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.opts.Address, s.opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second, // turns wait on the model
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	addr := s.opts.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	s.logger.Info("starting API server", "address", addr, "port", s.opts.Port)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// statusRecorder captures the response status for the request log.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets WebSocket upgrades through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	r.status = http.StatusSwitchingProtocols
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"request_id", reqID,
			"duration", time.Since(start),
		)
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]string{
		"name":    "codefusion",
		"version": buildinfo.Version,
		"status":  "ok",
	}, s.logger)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, buildinfo.RuntimeInfo(), s.logger)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.records.Ping(r.Context()); err != nil {
		s.logger.Warn("health check failed", "error", err)
		s.errorResponse(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}

	// A provider outage degrades turns but the API keeps serving.
	status := "healthy"
	var providers map[string]connwatch.Status
	if s.opts.Providers != nil {
		providers = s.opts.Providers.Status()
		for _, p := range providers {
			if !p.Ready {
				status = "degraded"
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	writeJSON(w, map[string]any{
		"status":    status,
		"providers": providers,
	}, s.logger)
}

func (s *Server) errorResponse(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	writeJSON(w, map[string]any{
		"error": map[string]any{
			"message": message,
			"type":    errorType(code),
			"code":    code,
		},
	}, s.logger)
}

func errorType(code int) string {
	switch {
	case code == http.StatusNotFound:
		return "not_found_error"
	case code == http.StatusConflict:
		return "conflict_error"
	case code >= 500:
		return "server_error"
	default:
		return "invalid_request_error"
	}
}

// fail maps a service or store error to an HTTP error response.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		tooLarge *prep.TooLargeError
		badType  *prep.UnsupportedTypeError
		maxBytes *http.MaxBytesError
	)
	switch {
	case errors.Is(err, store.ErrNotFound), errors.Is(err, conversation.ErrIndex):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.As(err, &tooLarge), errors.As(err, &maxBytes):
		s.errorResponse(w, http.StatusRequestEntityTooLarge, err.Error())
	case errors.As(err, &badType):
		s.errorResponse(w, http.StatusUnsupportedMediaType, err.Error())
	case errors.Is(err, prep.ErrInvalid):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrConflict):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, prep.ErrUnavailable):
		s.errorResponse(w, http.StatusNotImplemented, err.Error())
	case llm.IsUpstream(err):
		s.logger.Warn("upstream provider failed", "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusBadGateway, "model provider error")
	case errors.Is(err, context.DeadlineExceeded):
		s.errorResponse(w, http.StatusGatewayTimeout, "request timed out")
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

// pathID parses a numeric path wildcard, writing a 400 on failure.
func (s *Server) pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		s.errorResponse(w, http.StatusBadRequest, fmt.Sprintf("invalid %s", name))
		return 0, false
	}
	return id, true
}

// conversationKey parses the meeting_id and user_id wildcards.
func (s *Server) conversationKey(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	meetingID, ok := s.pathID(w, r, "meeting_id")
	if !ok {
		return 0, 0, false
	}
	userID, ok := s.pathID(w, r, "user_id")
	if !ok {
		return 0, 0, false
	}
	return meetingID, userID, true
}

func parseIntParam(r *http.Request, name string, defaultVal int) int {
	s := r.URL.Query().Get(name)
	if s == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return defaultVal
	}
	return n
}

// decodeJSON reads a JSON request body into v, writing a 400 on failure.
func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
