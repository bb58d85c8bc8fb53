package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/scrims-network/guildkeeper/pkg/config"
	"github.com/scrims-network/guildkeeper/pkg/doccache"
	"github.com/scrims-network/guildkeeper/pkg/messenger"
	"github.com/scrims-network/guildkeeper/pkg/observability"
	"github.com/scrims-network/guildkeeper/pkg/permissions"
	"github.com/scrims-network/guildkeeper/pkg/positions"
	"github.com/scrims-network/guildkeeper/pkg/rolesync"
)

// Server is the operator HTTP server
type Server struct {
	cfg      config.ServerConfig
	engine   *permissions.Engine
	index    *positions.Index
	bindings *positions.BindingStore
	caches   *doccache.Registry
	syncer   *rolesync.Synchronizer
	msgr     *messenger.Messenger
	health   *observability.HealthChecker
	logger   *observability.Logger
	metrics  *observability.Metrics

	httpServer *http.Server
}

func NewServer(cfg config.ServerConfig, engine *permissions.Engine, index *positions.Index, bindings *positions.BindingStore, caches *doccache.Registry, syncer *rolesync.Synchronizer, msgr *messenger.Messenger, health *observability.HealthChecker, logger *observability.Logger, metrics *observability.Metrics) *Server {
	s := &Server{
		cfg:      cfg,
		engine:   engine,
		index:    index,
		bindings: bindings,
		caches:   caches,
		syncer:   syncer,
		msgr:     msgr,
		health:   health,
		logger:   logger.WithComponent("api"),
		metrics:  metrics,
	}
	s.httpServer = &http.Server{
		Addr:         cfg.Host + ":" + cfg.Port,
		Handler:      s.Router(),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	return s
}

// HTTPServer exposes the underlying server for shutdown coordination
func (s *Server) HTTPServer() *http.Server { return s.httpServer }

// Router builds the request router
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.requestMiddleware)

	r.HandleFunc("/healthz", s.health.Liveness).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.health.Readiness).Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	r.HandleFunc("/admin/reload", s.handleReload).Methods(http.MethodPost)
	r.HandleFunc("/admin/sync", s.handleSync).Methods(http.MethodPost)
	r.HandleFunc("/permissions/check", s.handlePermissionCheck).Methods(http.MethodGet)
	r.HandleFunc("/positions/{guildID}", s.handleGuildPositions).Methods(http.MethodGet)
	r.HandleFunc("/positions/{guildID}", s.handleCreateBinding).Methods(http.MethodPost)
	r.HandleFunc("/positions/bindings/{id}", s.handleDeleteBinding).Methods(http.MethodDelete)

	return r
}

// Start begins serving; blocks until the listener fails or Stop is called
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("http server listening")
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Stop gracefully shuts the server down
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) requestMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := observability.WithRequestID(r.Context(), requestID)
		w.Header().Set("X-Request-ID", requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tmpl, err := current.GetPathTemplate(); err == nil {
				route = tmpl
			}
		}
		if s.metrics != nil {
			s.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, http.StatusText(rec.status)).Inc()
			s.metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// handleReload resyncs every cache and broadcasts the reload to peers
func (s *Server) handleReload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 30*time.Second)
	defer cancel()

	if err := s.caches.ReloadAll(ctx); err != nil {
		s.logger.WithError(err).Error("operator reload failed")
		writeError(w, http.StatusInternalServerError, "reload failed")
		return
	}
	_ = s.msgr.Publish(ctx, messenger.ChannelReload, "operator")
	writeJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}

// handleSync triggers a full role synchronization run
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	go s.syncer.RunFull(context.Background(), "operator")
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync started"})
}

type checkResponse struct {
	Outcome    string  `json:"outcome"`
	Expiration *string `json:"expiration,omitempty"`
}

// handlePermissionCheck answers a single position or permission query.
// Denied and indeterminate both surface as a generic missing-permissions
// error; cache staleness is never exposed to callers.
func (s *Server) handlePermissionCheck(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	userID := q.Get("user_id")
	guildID := q.Get("guild_id")
	if userID == "" || guildID == "" {
		writeError(w, http.StatusBadRequest, "user_id and guild_id are required")
		return
	}

	var result permissions.Result
	switch {
	case q.Get("position") != "":
		if q.Get("online") == "true" {
			result = s.engine.HasOnlinePosition(userID, q.Get("position"), guildID)
		} else {
			result = s.engine.HasPosition(userID, q.Get("position"), guildID)
		}
	case q.Get("position_level") != "":
		result = s.engine.HasPositionLevel(userID, q.Get("position_level"), guildID)
	default:
		writeError(w, http.StatusBadRequest, "position or position_level is required")
		return
	}

	if !result.Granted() {
		writeError(w, http.StatusForbidden, "missing permissions")
		return
	}

	resp := checkResponse{Outcome: result.Outcome().String()}
	if exp, err := result.Expiration(r.Context()); err == nil && exp != nil {
		formatted := exp.UTC().Format(time.RFC3339)
		resp.Expiration = &formatted
	}
	writeJSON(w, http.StatusOK, resp)
}

type bindingResponse struct {
	ID       string `json:"id"`
	Position string `json:"position"`
	GuildID  string `json:"guildId"`
	RoleID   string `json:"roleId"`
}

// handleGuildPositions lists the position bindings configured in a guild
func (s *Server) handleGuildPositions(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guildID"]
	bindings := s.index.GuildBindings(guildID)
	out := make([]bindingResponse, 0, len(bindings))
	for _, b := range bindings {
		out = append(out, bindingResponse{
			ID:       b.ID,
			Position: b.Position,
			GuildID:  b.GuildID,
			RoleID:   b.RoleID,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type createBindingRequest struct {
	Position string `json:"position"`
	RoleID   string `json:"roleId"`
}

// handleCreateBinding binds a role to a position in a guild
func (s *Server) handleCreateBinding(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guildID"]

	var req createBindingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Position == "" || req.RoleID == "" {
		writeError(w, http.StatusBadRequest, "position and roleId are required")
		return
	}

	binding, err := s.bindings.CreateBinding(r.Context(), req.Position, guildID, req.RoleID)
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, bindingResponse{
		ID:       binding.ID,
		Position: binding.Position,
		GuildID:  binding.GuildID,
		RoleID:   binding.RoleID,
	})
}

// handleDeleteBinding removes one binding by id
func (s *Server) handleDeleteBinding(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deleted, err := s.bindings.DeleteBinding(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "delete failed")
		return
	}
	if !deleted {
		writeError(w, http.StatusNotFound, "binding not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
