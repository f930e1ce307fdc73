package feed

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/redalert-desktop/redalert/internal/alerts"
	"github.com/redalert-desktop/redalert/internal/api"
	"github.com/redalert-desktop/redalert/internal/database"
	"github.com/redalert-desktop/redalert/internal/middleware"
	"github.com/redalert-desktop/redalert/internal/pipeline"
	"github.com/redalert-desktop/redalert/internal/services"
	"github.com/redalert-desktop/redalert/internal/utils"
)

// Querier is the slice of the alert client the feed server reads from
type Querier interface {
	GetDetailedAlerts(ctx context.Context, q services.Query) (alerts.Envelope[[]alerts.DayBucket], error)
	GetMostRecentAlerts(ctx context.Context, from, to time.Time) []alerts.Alert
	GetTotalAlertsByDay(ctx context.Context, q services.Query) (alerts.RawEnvelope, error)
	GetTotalAlerts(ctx context.Context, q services.Query) (alerts.RawEnvelope, error)
	GetMostTargetedLocations(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error)
	GetMostTargetedRegions(ctx context.Context, from, to time.Time, limit int) (alerts.RawEnvelope, error)
	GetMostRecentAlert(ctx context.Context) (alerts.RawEnvelope, error)
	GetRealTimeAlertCache(ctx context.Context) services.Snapshot
	FilterRelevant(in []alerts.Alert) []alerts.Alert
}

// HistoryReader lists locally recorded alerts
type HistoryReader interface {
	RecentAlerts(ctx context.Context, limit int) ([]database.AlertRecord, error)
}

// Options wires the feed server. History, Auth, CORS, StreamState and Stats
// are optional.
type Options struct {
	Port        int
	Client      Querier
	History     HistoryReader
	Hub         *Hub
	Auth        *middleware.FeedAuth
	CORS        *middleware.CORSMiddleware
	Location    *time.Location
	StreamState func() string
	Stats       func() pipeline.Stats
}

// Server is the local HTTP and WebSocket feed for the desktop UI
type Server struct {
	opts     Options
	hub      *Hub
	upgrader websocket.Upgrader
	logger   *zap.Logger
	http     *http.Server
	started  time.Time
}

// NewServer creates a feed server
func NewServer(opts Options, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Hub == nil {
		opts.Hub = NewHub(0)
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	s := &Server{
		opts: opts,
		hub:  opts.Hub,
		upgrader: websocket.Upgrader{
			// origin checks are the CORS middleware's job
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		logger:  logger,
		started: time.Now(),
	}
	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", opts.Port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the full middleware chain around the routes
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)

	var h http.Handler = mux
	if s.opts.Auth != nil {
		h = s.opts.Auth.Require(h)
	}
	if s.opts.CORS != nil {
		h = s.opts.CORS.Wrap(h)
	}
	h = middleware.AccessLog(s.logger)(h)
	return middleware.RequestIDMiddleware(h)
}

// SetupRoutes registers every feed route on mux
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /auth/login", s.handleLogin)
	mux.HandleFunc("GET /auth/verify", s.handleVerify)

	mux.HandleFunc("GET /api/alerts/active", s.handleActive)
	mux.HandleFunc("GET /api/alerts/recent", s.handleRecent)
	mux.HandleFunc("GET /api/alerts/latest", s.handleLatest)
	mux.HandleFunc("GET /api/alerts/details", s.handleDetails)
	mux.HandleFunc("GET /api/alerts/history", s.handleHistory)

	mux.HandleFunc("GET /api/stats/daily", s.handleDaily)
	mux.HandleFunc("GET /api/stats/total", s.handleTotal)
	mux.HandleFunc("GET /api/stats/top/places", s.handleTopPlaces)
	mux.HandleFunc("GET /api/stats/top/areas", s.handleTopAreas)

	mux.HandleFunc("GET /ws", s.handleWebSocket)
}

// Start serves in the background. Listen errors other than a clean
// shutdown are logged.
func (s *Server) Start() {
	go func() {
		s.logger.Info("Feed server listening", zap.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Feed server error", zap.Error(err))
		}
	}()
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

// ========== Health & Auth ==========

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"status":  "ok",
		"clients": s.hub.Size(),
		"uptime":  utils.FormatDuration(time.Since(s.started)),
	}
	if s.opts.StreamState != nil {
		resp["stream"] = s.opts.StreamState()
	}
	if s.opts.Stats != nil {
		resp["pipeline"] = s.opts.Stats()
	}
	api.RespondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.opts.Auth == nil {
		api.RespondError(w, http.StatusNotFound, "Authentication is disabled")
		return
	}

	var req api.LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.RespondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if fieldErrs := api.Validate(req); fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return
	}

	token, err := s.opts.Auth.Login(req.Username, req.Password)
	if errors.Is(err, middleware.ErrBadCredentials) {
		s.logger.Warn("Failed login attempt",
			zap.String("username", req.Username),
			zap.String("remote_addr", r.RemoteAddr),
		)
		api.RespondError(w, http.StatusUnauthorized, "Invalid username or password")
		return
	}
	if err != nil {
		s.logger.Error("Failed to generate token", zap.String("username", req.Username), zap.Error(err))
		api.RespondError(w, http.StatusInternalServerError, "Failed to generate token")
		return
	}

	s.logger.Info("User logged in", zap.String("username", req.Username), zap.String("remote_addr", r.RemoteAddr))
	api.RespondJSON(w, http.StatusOK, api.LoginResponse{
		Token:     token,
		Username:  req.Username,
		ExpiresIn: int(s.opts.Auth.Tokens().TTL().Seconds()),
	})
}

func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	user := middleware.UserFrom(r.Context())
	if user == "" {
		api.RespondError(w, http.StatusUnauthorized, "Not authenticated")
		return
	}
	api.RespondJSON(w, http.StatusOK, map[string]interface{}{
		"valid":    true,
		"username": user,
	})
}

// ========== Alerts ==========

// handleActive returns the real-time cache. ?relevant=1 drops drill and
// non-alert entries.
func (s *Server) handleActive(w http.ResponseWriter, r *http.Request) {
	snap := s.opts.Client.GetRealTimeAlertCache(r.Context())
	list := snap.Alerts
	if relevant, _ := strconv.ParseBool(r.URL.Query().Get("relevant")); relevant {
		list = s.opts.Client.FilterRelevant(list)
	}
	api.RespondJSON(w, http.StatusOK, api.AlertsResponse{Alerts: list, Count: len(list)})
}

// handleRecent defaults to the last 24 hours
func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	from, to := q.Range(s.opts.Location)
	now := time.Now().In(s.opts.Location)
	if to.IsZero() {
		to = now
	}
	if from.IsZero() {
		from = to.Add(-24 * time.Hour)
	}
	list := s.opts.Client.GetMostRecentAlerts(r.Context(), from, to)
	api.RespondJSON(w, http.StatusOK, api.AlertsResponse{Alerts: list, Count: len(list)})
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	env, err := s.opts.Client.GetMostRecentAlert(r.Context())
	s.respondEnvelope(w, env, err)
}

func (s *Server) handleDetails(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	env, err := s.opts.Client.GetDetailedAlerts(r.Context(), s.serviceQuery(q))
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, env)
}

// handleHistory lists alerts this daemon recorded itself
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		api.RespondError(w, http.StatusNotFound, "History is not enabled")
		return
	}
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	records, err := s.opts.History.RecentAlerts(r.Context(), q.Limit)
	if err != nil {
		s.logger.Error("Failed to read alert history", zap.Error(err))
		api.RespondError(w, http.StatusInternalServerError, "Failed to read alert history")
		return
	}
	api.RespondJSON(w, http.StatusOK, api.HistoryResponse{Records: records, Count: len(records)})
}

// ========== Stats ==========

func (s *Server) handleDaily(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	env, err := s.opts.Client.GetTotalAlertsByDay(r.Context(), s.serviceQuery(q))
	s.respondEnvelope(w, env, err)
}

func (s *Server) handleTotal(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	env, err := s.opts.Client.GetTotalAlerts(r.Context(), s.serviceQuery(q))
	s.respondEnvelope(w, env, err)
}

func (s *Server) handleTopPlaces(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	from, to := q.Range(s.opts.Location)
	env, err := s.opts.Client.GetMostTargetedLocations(r.Context(), from, to, q.Limit)
	s.respondEnvelope(w, env, err)
}

func (s *Server) handleTopAreas(w http.ResponseWriter, r *http.Request) {
	q, ok := s.parseQuery(w, r)
	if !ok {
		return
	}
	from, to := q.Range(s.opts.Location)
	env, err := s.opts.Client.GetMostTargetedRegions(r.Context(), from, to, q.Limit)
	s.respondEnvelope(w, env, err)
}

// ========== Helpers ==========

func (s *Server) parseQuery(w http.ResponseWriter, r *http.Request) (api.AlertQuery, bool) {
	q, fieldErrs := api.ParseAlertQuery(r.URL.Query())
	if fieldErrs != nil {
		api.RespondValidationError(w, fieldErrs)
		return q, false
	}
	return q, true
}

func (s *Server) serviceQuery(q api.AlertQuery) services.Query {
	from, to := q.Range(s.opts.Location)
	return services.Query{From: from, To: to, AlertTypeID: q.AlertType()}
}

func (s *Server) respondEnvelope(w http.ResponseWriter, env alerts.RawEnvelope, err error) {
	if err != nil {
		s.respondFailure(w, err)
		return
	}
	api.RespondJSON(w, http.StatusOK, env)
}

func (s *Server) respondFailure(w http.ResponseWriter, err error) {
	s.logger.Warn("Upstream query failed", zap.Error(err))
	api.RespondUpstreamError(w, err)
}
