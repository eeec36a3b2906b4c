package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/doorpin/server/internal/doorpin/input"
	"github.com/doorpin/server/internal/doorpin/permission"
	"github.com/doorpin/server/internal/doorpin/relay"
	"github.com/doorpin/server/internal/doorpin/store"
	"github.com/doorpin/server/internal/doorpin/types"
)

// maxRequestBody caps JSON request bodies.
const maxRequestBody = 4096

type AccessService interface {
	Decide(ctx context.Context, req types.AccessRequest, source string) (types.AccessResponse, error)
	UnlockDoor(ctx context.Context, actor store.User, hold time.Duration) (*relay.Ticket, error)
}

type ReaderService interface {
	Start(ctx context.Context) error
	Stop()
	Status() input.Status
	LiveDevices() int
	ReadSingle(ctx context.Context, timeout time.Duration) (string, bool, error)
}

// Credentials resolves API keys to their owners.
type Credentials interface {
	store.APIKeyStore
	store.UserStore
}

type Dependencies struct {
	Logger      *slog.Logger
	Addr        string
	Access      AccessService
	Reader      ReaderService
	Credentials Credentials
	Limiter     *RateLimiter
	Metrics     http.Handler // optional; served at /metrics
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	access     AccessService
	reader     ReaderService
}

func NewServer(d Dependencies) *Server {
	s := &Server{
		logger: d.Logger.With(slog.String("component", "http")),
		access: d.Access,
		reader: d.Reader,
	}

	r := chi.NewRouter()
	r.Use(requestID, recoverer(s.logger), logRequests(s.logger))

	r.Get("/healthz", s.handleHealth)
	if d.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", d.Metrics)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(authenticate(d.Credentials, s.logger))

		r.Group(func(r chi.Router) {
			if d.Limiter != nil {
				r.Use(d.Limiter.Middleware)
			}
			r.Post("/access_request", s.handleAccessRequest)
			r.Post("/doors/unlock", s.handleUnlock)
		})

		r.With(requirePermission(permission.RfidsCreateOwn)).Get("/rfids/read", s.handleRfidRead)

		r.Route("/reader", func(r chi.Router) {
			r.Use(requirePermission(permission.ReaderControl))
			r.Post("/start", s.handleReaderStart)
			r.Post("/stop", s.handleReaderStop)
			r.Get("/status", s.handleReaderStatus)
		})
	})

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "bad_json", "invalid JSON body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}
