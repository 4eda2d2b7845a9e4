package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/smartdevs17/govledger/internal/models"
)

type proposalRequest struct {
	Proposer common.Address `json:"proposer"`
	models.GovernanceParams
	Reason string `json:"reason"`
}

// thresholdsRequest applies either a named preset or explicit deltas
type thresholdsRequest struct {
	User   common.Address `json:"user"`
	Preset string         `json:"preset,omitempty"`
	models.AlertThreshold
}

func (s *HTTPServer) proposalHandler(w http.ResponseWriter, r *http.Request) {
	var req proposalRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("proposer", req.Proposer); err != nil {
		s.writeError(w, err)
		return
	}
	change, err := s.ledger.SubmitGovernanceProposal(r.Context(), req.Proposer, req.GovernanceParams, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"change":                 change,
		"next_change_allowed_at": s.ledger.NextChangeAllowedAt(),
	})
}

func (s *HTTPServer) governanceHistoryHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.GetGovernanceHistory())
}

func (s *HTTPServer) governanceParametersHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"parameters":             s.ledger.GetGovernanceParameters(),
		"next_change_allowed_at": s.ledger.NextChangeAllowedAt(),
	})
}

func (s *HTTPServer) governedParametersHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.GetGovernedParameters())
}

func (s *HTTPServer) governanceAlertsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.writeError(w, err)
		return
	}
	alerts := s.ledger.GovernanceAlerts(user)
	if alerts == nil {
		alerts = []models.GovernanceAlert{}
	}
	s.writeJSON(w, http.StatusOK, alerts)
}

func (s *HTTPServer) thresholdsHandler(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("user", req.User); err != nil {
		s.writeError(w, err)
		return
	}

	var err error
	if req.Preset != "" {
		err = s.ledger.ApplyThresholdPreset(r.Context(), req.User, req.Preset)
	} else {
		err = s.ledger.SetAlertThresholds(r.Context(), req.User, req.AlertThreshold)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}

	th, _ := s.ledger.UserThresholds(req.User)
	s.writeJSON(w, http.StatusOK, th)
}

func (s *HTTPServer) getThresholdsHandler(w http.ResponseWriter, r *http.Request) {
	user, err := pathAddress(r, "user")
	if err != nil {
		s.writeError(w, err)
		return
	}
	th, custom := s.ledger.UserThresholds(user)
	if !custom {
		th = s.ledger.Config().DefaultThresholds
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      user,
		"custom":    custom,
		"threshold": th,
	})
}

func (s *HTTPServer) presetsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.GetAvailableTemplates())
}

// varOf is a small helper for single path variables
func varOf(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}
