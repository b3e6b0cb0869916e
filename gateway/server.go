// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"visioncore/platform/access"
	"visioncore/platform/common/usage"
	"visioncore/platform/provisioning"
	"visioncore/platform/shared/logger"
	"visioncore/platform/transform"
)

// Server ties the access engine, transform registry, and provisioning
// surface into one HTTP service.
type Server struct {
	cfg         *Config
	log         *logger.Logger
	store       access.Store
	engine      *access.Engine
	registry    *transform.Registry
	limiter     *RateLimiter
	metrics     *Metrics
	provisioner *provisioning.Service
	webhooks    *provisioning.WebhookProcessor
	usage       *usage.Recorder
	promReg     *prometheus.Registry
}

// NewServer assembles a gateway server from its collaborators. usageRec may
// be nil when metering is not configured.
func NewServer(
	cfg *Config,
	store access.Store,
	registry *transform.Registry,
	limiter *RateLimiter,
	usageRec *usage.Recorder,
) *Server {
	log := logger.New("gateway")
	promReg := prometheus.NewRegistry()

	provisioner := provisioning.NewService(store, logger.New("provisioning"))
	return &Server{
		cfg:         cfg,
		log:         log,
		store:       store,
		engine:      access.NewEngine(store, cfg.BuildCatalog(), cfg.EngineConfig()),
		registry:    registry,
		limiter:     limiter,
		metrics:     NewMetrics(promReg),
		provisioner: provisioner,
		webhooks:    provisioning.NewWebhookProcessor(provisioner, cfg.BillingWebhookSecret),
		usage:       usageRec,
		promReg:     promReg,
	}
}

// Router builds the gateway's route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/", s.handleRoot).Methods("GET")
	r.HandleFunc("/health", s.handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(s.promReg, promhttp.HandlerOpts{})).Methods("GET")

	// Auth and pricing surface
	r.HandleFunc("/v1/auth/signup", s.handleSignup).Methods("POST")
	r.HandleFunc("/v1/auth/status", s.handleStatus).Methods("GET")
	r.HandleFunc("/v1/pricing", s.handlePricing).Methods("GET")

	// Billing partner webhooks
	r.HandleFunc("/webhook/billing/subscribe", s.handleWebhook(provisioning.EventSubscribed)).Methods("POST")
	r.HandleFunc("/webhook/billing/upgrade", s.handleWebhook(provisioning.EventUpgraded)).Methods("POST")
	r.HandleFunc("/webhook/billing/cancel", s.handleWebhook(provisioning.EventCancelled)).Methods("POST")

	// Admin provisioning surface
	r.HandleFunc("/admin/keys", s.requireAdmin(s.handleAdminIssueKey)).Methods("POST")
	r.HandleFunc("/admin/keys/{key}/tier", s.requireAdmin(s.handleAdminSetTier)).Methods("PUT")
	r.HandleFunc("/admin/keys/{key}/credits", s.requireAdmin(s.handleAdminAddCredits)).Methods("POST")
	r.HandleFunc("/admin/keys/{key}/disable", s.requireAdmin(s.handleAdminDisable)).Methods("POST")

	// One metered endpoint per registered feature
	for _, feature := range s.registry.Features() {
		r.HandleFunc("/v1/"+feature, s.featureHandler(feature)).Methods("POST")
	}

	r.Use(withRequestID)
	return r
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"service": "visioncore-gateway",
		"signup":  "/v1/auth/signup",
		"pricing": "/v1/pricing",
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		s.writeError(w, r, http.StatusServiceUnavailable, "quota store unreachable")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	s.writeJSON(w, status, map[string]interface{}{
		"error":      message,
		"request_id": RequestID(r.Context()),
	})
}
