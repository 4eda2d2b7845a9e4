// File: internal/server/server.go
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/monitor"
	"github.com/smartdevs17/govledger/internal/notification"
	"github.com/smartdevs17/govledger/internal/storage"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// maxBodyBytes bounds request bodies; batch verification is the largest payload
const maxBodyBytes = 4 << 20

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port          int           `json:"port"`
	Host          string        `json:"host"`
	ReadTimeout   time.Duration `json:"read_timeout"`
	WriteTimeout  time.Duration `json:"write_timeout"`
	EnableMetrics bool          `json:"enable_metrics"`
	EnableHealth  bool          `json:"enable_health"`
	Version       string        `json:"version"`
}

// HTTPServer exposes the ledger over a JSON API
type HTTPServer struct {
	config         *ServerConfig
	server         *http.Server
	router         *mux.Router
	ledger         *ledger.Ledger
	storage        storage.Storage
	monitor        *monitor.EventMonitor
	notification   *notification.Manager
	metricsManager *metrics.Manager
	logger         *logrus.Entry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewHTTPServer creates a new HTTP server. Storage, monitor, notification
// and metrics are optional.
func NewHTTPServer(
	config *ServerConfig,
	l *ledger.Ledger,
	store storage.Storage,
	mon *monitor.EventMonitor,
	notifier *notification.Manager,
	metricsManager *metrics.Manager,
) (*HTTPServer, error) {
	if l == nil {
		return nil, utils.NewAppError(utils.ErrCodeConfiguration, "HTTP server requires a ledger")
	}

	server := &HTTPServer{
		config:         config,
		ledger:         l,
		storage:        store,
		monitor:        mon,
		notification:   notifier,
		metricsManager: metricsManager,
		logger:         utils.ComponentLogger("http"),
		stopCh:         make(chan struct{}),
	}

	server.setupRouter()

	server.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      server.router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}

	return server, nil
}

// Handler returns the router, for embedding and tests
func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

// setupRouter sets up the HTTP routes
func (s *HTTPServer) setupRouter() {
	s.router = mux.NewRouter()

	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.corsMiddleware)
	if s.metricsManager != nil {
		s.router.Use(s.metricsMiddleware)
	}

	api := s.router.PathPrefix("/api/v1").Subrouter()

	if s.config.EnableHealth {
		s.router.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health", s.healthHandler).Methods("GET")
		api.HandleFunc("/health/detailed", s.detailedHealthHandler).Methods("GET")
	}

	if s.config.EnableMetrics && s.metricsManager != nil {
		s.router.Handle("/metrics", s.metricsManager.Handler())
		api.HandleFunc("/stats", s.statsHandler).Methods("GET")
	}

	// Burn rate and staking
	api.HandleFunc("/pressure", s.pressureHandler).Methods("POST")
	api.HandleFunc("/burn-rate", s.burnRateHandler).Methods("GET")
	api.HandleFunc("/fees", s.configureFeesHandler).Methods("POST")
	api.HandleFunc("/stake", s.stakeHandler).Methods("POST")
	api.HandleFunc("/unstake", s.unstakeHandler).Methods("POST")
	api.HandleFunc("/positions/{owner}", s.positionHandler).Methods("GET")
	api.HandleFunc("/rewards/{owner}", s.rewardsHandler).Methods("GET")
	api.HandleFunc("/staking/tiers", s.tiersHandler).Methods("GET")
	api.HandleFunc("/staking/totals", s.totalsHandler).Methods("GET")

	// Delegation
	api.HandleFunc("/delegate", s.delegateHandler).Methods("POST")
	api.HandleFunc("/undelegate", s.undelegateHandler).Methods("POST")
	api.HandleFunc("/delegation-lock", s.delegationLockHandler).Methods("POST")
	api.HandleFunc("/delegations/{delegator}", s.delegationHandler).Methods("GET")
	api.HandleFunc("/voting-power/{addr}", s.votingPowerHandler).Methods("GET")

	// Governance
	api.HandleFunc("/proposals", s.proposalHandler).Methods("POST")
	api.HandleFunc("/governance/history", s.governanceHistoryHandler).Methods("GET")
	api.HandleFunc("/governance/parameters", s.governanceParametersHandler).Methods("GET")
	api.HandleFunc("/governance/governed", s.governedParametersHandler).Methods("GET")
	api.HandleFunc("/governance/alerts/{user}", s.governanceAlertsHandler).Methods("GET")
	api.HandleFunc("/thresholds", s.thresholdsHandler).Methods("POST")
	api.HandleFunc("/thresholds/{user}", s.getThresholdsHandler).Methods("GET")

	// Templates; fixed paths before {id}
	api.HandleFunc("/templates", s.saveTemplateHandler).Methods("POST")
	api.HandleFunc("/templates", s.listTemplatesHandler).Methods("GET")
	api.HandleFunc("/templates/presets", s.presetsHandler).Methods("GET")
	api.HandleFunc("/templates/compare", s.compareTemplatesHandler).Methods("GET")
	api.HandleFunc("/templates/export", s.batchExportHandler).Methods("GET")
	api.HandleFunc("/templates/verify", s.verifyExportHandler).Methods("GET", "POST")
	api.HandleFunc("/templates/signature", s.exportSignatureHandler).Methods("GET", "POST")
	api.HandleFunc("/templates/{id}", s.getTemplateHandler).Methods("GET")
	api.HandleFunc("/templates/{id}/apply", s.applyTemplateHandler).Methods("POST")
	api.HandleFunc("/templates/{id}/changes", s.templateChangesHandler).Methods("GET")
	api.HandleFunc("/templates/{id}/versions/{version}", s.templateVersionHandler).Methods("GET")
	api.HandleFunc("/templates/{id}/export", s.exportTemplateHandler).Methods("GET")
	api.HandleFunc("/templates/{id}/stats", s.templateStatsHandler).Methods("GET")
	api.HandleFunc("/tags/{tag}", s.tagUsageHandler).Methods("GET")

	// Signatures
	api.HandleFunc("/signatures/verify", s.verifySignatureHandler).Methods("GET", "POST")
	api.HandleFunc("/signatures/batch-verify", s.batchVerifyHandler).Methods("GET", "POST")
	api.HandleFunc("/signatures/revoke", s.revokeSignatureHandler).Methods("POST")

	// Community templates and rewards
	api.HandleFunc("/community/templates", s.submitCommunityTemplateHandler).Methods("POST")
	api.HandleFunc("/community/templates", s.listCommunityTemplatesHandler).Methods("GET")
	api.HandleFunc("/community/templates/{index}/vote", s.voteHandler).Methods("POST")
	api.HandleFunc("/rewards/claim", s.claimRewardsHandler).Methods("POST")

	// Event log
	api.HandleFunc("/events", s.listEventsHandler).Methods("GET")
	api.HandleFunc("/monitor/status", s.monitorStatusHandler).Methods("GET")
}

// Start starts the HTTP server
func (s *HTTPServer) Start() error {
	s.logger.WithFields(logrus.Fields{
		"address":         s.server.Addr,
		"metrics_enabled": s.config.EnableMetrics,
	}).Info("Starting HTTP server")

	if s.metricsManager != nil {
		s.updateComponentHealth()
		go s.systemMetricsUpdater()
	}

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.WithError(err).Error("HTTP server error")
			errChan <- err
		}
	}()

	// Give the server a moment to start and check for immediate binding errors
	select {
	case err := <-errChan:
		return fmt.Errorf("failed to start HTTP server: %w", err)
	case <-time.After(100 * time.Millisecond):
		return nil
	}
}

// systemMetricsUpdater updates system metrics periodically
func (s *HTTPServer) systemMetricsUpdater() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.updateComponentHealth()
		case <-s.stopCh:
			return
		}
	}
}

func (s *HTTPServer) updateComponentHealth() {
	s.metricsManager.UpdateSystemMetrics()
	prom := s.metricsManager.GetPrometheusMetrics()
	if s.storage != nil {
		prom.UpdateComponentHealth("storage", s.storage.GetHealth().Healthy)
	}
	if s.monitor != nil {
		s.monitor.GetHealth()
	}
	if s.notification != nil {
		s.notification.GetHealth()
	}
	prom.UpdateComponentHealth("ledger", true)
}

// Stop stops the HTTP server
func (s *HTTPServer) Stop(ctx context.Context) error {
	s.logger.Info("Stopping HTTP server")
	s.stopOnce.Do(func() { close(s.stopCh) })
	return s.server.Shutdown(ctx)
}

// Health Handlers

func (s *HTTPServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339Nano),
		"version":         s.config.Version,
		"latest_sequence": s.ledger.Events().Latest(),
	})
}

func (s *HTTPServer) detailedHealthHandler(w http.ResponseWriter, r *http.Request) {
	healthy := true
	components := map[string]interface{}{}

	if s.storage != nil {
		h := s.storage.GetHealth()
		healthy = healthy && h.Healthy
		components["storage"] = h
	}
	if s.monitor != nil {
		h := s.monitor.GetHealth()
		healthy = healthy && h.Healthy
		components["monitor"] = h
	}
	if s.notification != nil {
		h := s.notification.GetHealth()
		healthy = healthy && h.Healthy
		components["notification"] = h
	}

	status, code := "healthy", http.StatusOK
	if !healthy {
		status, code = "degraded", http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]interface{}{
		"status":     status,
		"timestamp":  time.Now().UTC(),
		"version":    s.config.Version,
		"components": components,
	})
}

func (s *HTTPServer) statsHandler(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"timestamp":       time.Now().UTC(),
		"burn_rate":       s.ledger.BurnRate(),
		"staking":         s.ledger.StakingTotals(),
		"templates":       len(s.ledger.ListTemplates()),
		"latest_sequence": s.ledger.Events().Latest(),
	}
	if s.storage != nil {
		storageStats, err := s.storage.GetStorageStats()
		if err != nil {
			s.writeError(w, err)
			return
		}
		stats["storage"] = storageStats
	}
	if s.monitor != nil {
		stats["monitor"] = s.monitor.GetStats()
	}
	if s.notification != nil {
		stats["notification"] = s.notification.GetStats()
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *HTTPServer) monitorStatusHandler(w http.ResponseWriter, r *http.Request) {
	if s.monitor == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeNotFound, "Monitor not configured"))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":  s.monitor.GetStats(),
		"health": s.monitor.GetHealth(),
	})
}

// Utility Methods

// writeJSON writes a JSON response
func (s *HTTPServer) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.WithError(err).Error("Failed to encode JSON response")
	}
}

// statusFor maps error codes to HTTP statuses
func statusFor(code string) int {
	switch code {
	case utils.ErrCodeValidation, utils.ErrCodeInvalidAmount, utils.ErrCodeSignatureInvalid:
		return http.StatusBadRequest
	case utils.ErrCodeNotFound:
		return http.StatusNotFound
	case utils.ErrCodeTimelockActive, utils.ErrCodeLockActive, utils.ErrCodeDelegationLocked:
		return http.StatusConflict
	case utils.ErrCodeInsufficientBalance:
		return http.StatusUnprocessableEntity
	case utils.ErrCodeSignatureExpired, utils.ErrCodeSignatureRevoked:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error response with the error code and its HTTP status
func (s *HTTPServer) writeError(w http.ResponseWriter, err error) {
	code := utils.ErrorCode(err)
	status := statusFor(code)

	resp := map[string]interface{}{
		"error":     err.Error(),
		"code":      code,
		"status":    status,
		"timestamp": time.Now().UTC(),
	}
	var appErr *utils.AppError
	if errors.As(err, &appErr) {
		resp["error"] = appErr.Message
		if appErr.Details != "" {
			resp["details"] = appErr.Details
		}
	}

	entry := s.logger.WithFields(logrus.Fields{"status": status, "code": code, "error": err})
	if status >= http.StatusInternalServerError {
		entry.Error("HTTP error")
	} else {
		entry.Debug("HTTP request rejected")
	}

	s.writeJSON(w, status, resp)
}

// decodeBody decodes a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	if r.Body == nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Request body required")
	}
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return utils.NewAppError(utils.ErrCodeValidation, "Invalid request body", err.Error())
	}
	return nil
}

// pathAddress parses an address path variable
func pathAddress(r *http.Request, name string) (common.Address, error) {
	raw := mux.Vars(r)[name]
	if !utils.IsValidAddress(raw) {
		return common.Address{}, utils.NewAppError(utils.ErrCodeValidation, "Invalid address", raw)
	}
	return common.HexToAddress(raw), nil
}

// templateID accepts either a 0x-prefixed template hash or a template name
func templateID(raw string) common.Hash {
	if utils.IsValidHash(raw) {
		return common.HexToHash(raw)
	}
	return utils.TemplateID(raw)
}

// templateIDs parses a comma separated ids query parameter
func templateIDs(r *http.Request) ([]common.Hash, error) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		return nil, utils.NewAppError(utils.ErrCodeValidation, "ids query parameter required")
	}
	parts := strings.Split(raw, ",")
	ids := make([]common.Hash, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			ids = append(ids, templateID(p))
		}
	}
	return ids, nil
}

// queryUint parses an optional unsigned query parameter
func queryUint(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, utils.NewAppError(utils.ErrCodeValidation, "Invalid "+name+" parameter", raw)
	}
	return v, nil
}
