// Copyright 2025 VisionCore
// SPDX-License-Identifier: Apache-2.0

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"visioncore/platform/access"
	"visioncore/platform/provisioning"
)

type signupRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// handleSignup issues a fresh FREE-tier key. Paid tiers are assigned through
// the billing webhook or the admin surface, never self-served.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" {
		s.writeError(w, r, http.StatusBadRequest, "email is required")
		return
	}

	account, err := s.provisioner.IssueKey(r.Context(), req.Email, req.Name, access.TierFree)
	if err != nil {
		switch {
		case errors.Is(err, access.ErrEmailExists):
			s.writeError(w, r, http.StatusConflict, "an account already exists for this email")
		default:
			s.writeError(w, r, http.StatusServiceUnavailable, "signup temporarily unavailable")
		}
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"api_key": account.Key,
		"tier":    account.Tier,
		"credits": account.Credits,
		"message": "keep this key secret, it will not be shown again",
	})
}

// handleStatus reports the caller's own tier, balance, and demo usage.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	key := r.Header.Get(apiKeyHeader)
	if key == "" {
		s.writeError(w, r, http.StatusUnauthorized, "missing API key")
		return
	}

	account, err := s.provisioner.Status(r.Context(), key)
	if err != nil {
		s.failAccess(w, r, key, "status", err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tier":       account.Tier,
		"credits":    account.Credits,
		"active":     account.Active,
		"demo_usage": account.DemoUsage,
	})
}

// handlePricing lists tiers, initial credit grants, and which features each
// tier unlocks. Public, no key required.
func (s *Server) handlePricing(w http.ResponseWriter, r *http.Request) {
	catalog := s.cfg.BuildCatalog()
	tiers := []access.Tier{access.TierFree, access.TierStarter, access.TierPro, access.TierEnterprise}

	plans := make([]map[string]interface{}, 0, len(tiers))
	for _, tier := range tiers {
		features := []string{}
		for _, name := range catalog.Features() {
			if tier.AtLeast(catalog.RequiredTier(name)) {
				features = append(features, name)
			}
		}
		plans = append(plans, map[string]interface{}{
			"tier":            tier,
			"initial_credits": provisioning.InitialCredits(tier),
			"rate_limit_rpm":  s.cfg.RateLimits[tier],
			"features":        features,
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"plans": plans})
}

type issueKeyRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Tier  string `json:"tier"`
}

func (s *Server) handleAdminIssueKey(w http.ResponseWriter, r *http.Request) {
	var req issueKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tier, ok := access.ParseTier(req.Tier)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "unknown tier")
		return
	}

	account, err := s.provisioner.IssueKey(r.Context(), req.Email, req.Name, tier)
	if err != nil {
		s.writeProvisioningError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, account)
}

func (s *Server) handleAdminSetTier(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tier string `json:"tier"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}
	tier, ok := access.ParseTier(req.Tier)
	if !ok {
		s.writeError(w, r, http.StatusBadRequest, "unknown tier")
		return
	}

	account, err := s.provisioner.SetTier(r.Context(), mux.Vars(r)["key"], tier)
	if err != nil {
		s.writeProvisioningError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleAdminAddCredits(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Amount int `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "invalid JSON body")
		return
	}

	account, err := s.provisioner.AddCredits(r.Context(), mux.Vars(r)["key"], req.Amount)
	if err != nil {
		if errors.Is(err, provisioning.ErrInvalidAmount) {
			s.writeError(w, r, http.StatusBadRequest, "amount must be positive")
			return
		}
		s.writeProvisioningError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, account)
}

func (s *Server) handleAdminDisable(w http.ResponseWriter, r *http.Request) {
	if err := s.provisioner.Disable(r.Context(), mux.Vars(r)["key"]); err != nil {
		s.writeProvisioningError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
}

func (s *Server) writeProvisioningError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, access.ErrKeyNotFound):
		s.writeError(w, r, http.StatusNotFound, "no such API key")
	case errors.Is(err, access.ErrEmailExists):
		s.writeError(w, r, http.StatusConflict, "an account already exists for this email")
	case errors.Is(err, access.ErrInvalidTier):
		s.writeError(w, r, http.StatusBadRequest, "unknown tier")
	default:
		s.writeError(w, r, http.StatusServiceUnavailable, "provisioning temporarily unavailable")
	}
}
