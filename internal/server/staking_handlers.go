package server

import (
	"errors"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

type pressureRequest struct {
	Actor    common.Address `json:"actor"`
	Pressure *uint64        `json:"pressure"`
	BaseRate *uint64        `json:"base_rate,omitempty"`
}

type feesRequest struct {
	Actor     common.Address `json:"actor"`
	Collector common.Address `json:"collector"`
}

type stakeRequest struct {
	Owner  common.Address `json:"owner"`
	Amount uint64         `json:"amount"`
}

// unstakeRequest withdraws the whole position when amount is omitted or
// all is set
type unstakeRequest struct {
	Owner  common.Address `json:"owner"`
	Amount *uint64        `json:"amount,omitempty"`
	All    bool           `json:"all,omitempty"`
}

type delegateRequest struct {
	Delegator common.Address `json:"delegator"`
	Delegatee common.Address `json:"delegatee"`
}

type delegationLockRequest struct {
	Actor   common.Address `json:"actor"`
	Seconds uint64         `json:"seconds"`
}

// requireAddress rejects the zero address for a named request field
func requireAddress(field string, addr common.Address) error {
	if addr == (common.Address{}) {
		return utils.NewAppError(utils.ErrCodeValidation, field+" address required")
	}
	return nil
}

func (s *HTTPServer) pressureHandler(w http.ResponseWriter, r *http.Request) {
	var req pressureRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	if req.Pressure == nil && req.BaseRate == nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "pressure or base_rate required"))
		return
	}

	if req.BaseRate != nil {
		if err := s.ledger.SetBaseBurnRate(r.Context(), req.Actor, *req.BaseRate); err != nil {
			s.writeError(w, err)
			return
		}
	}
	if req.Pressure != nil {
		if _, err := s.ledger.UpdateEnvironmentalPressure(r.Context(), req.Actor, *req.Pressure); err != nil {
			s.writeError(w, err)
			return
		}
	}
	s.burnRateHandler(w, r)
}

func (s *HTTPServer) burnRateHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]uint64{
		"burn_rate":      s.ledger.BurnRate(),
		"base_burn_rate": s.ledger.BaseBurnRate(),
	})
}

func (s *HTTPServer) configureFeesHandler(w http.ResponseWriter, r *http.Request) {
	var req feesRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.ConfigureFees(r.Context(), req.Actor, req.Collector); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ledger.StakingTotals())
}

func (s *HTTPServer) stakeHandler(w http.ResponseWriter, r *http.Request) {
	var req stakeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("owner", req.Owner); err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.ledger.Stake(r.Context(), req.Owner, req.Amount)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, pos)
}

func (s *HTTPServer) unstakeHandler(w http.ResponseWriter, r *http.Request) {
	var req unstakeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("owner", req.Owner); err != nil {
		s.writeError(w, err)
		return
	}

	var (
		res *models.UnstakeResult
		err error
	)
	if req.All || req.Amount == nil {
		res, err = s.ledger.UnstakeAll(r.Context(), req.Owner)
	} else {
		res, err = s.ledger.Unstake(r.Context(), req.Owner, *req.Amount)
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) positionHandler(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	pos, err := s.ledger.GetPosition(owner)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, pos)
}

func (s *HTTPServer) rewardsHandler(w http.ResponseWriter, r *http.Request) {
	owner, err := pathAddress(r, "owner")
	if err != nil {
		s.writeError(w, err)
		return
	}
	staking, err := s.ledger.CalculateRewards(owner)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"owner":             owner,
		"staking_rewards":   staking,
		"community_rewards": s.ledger.UserRewards(owner),
	})
}

func (s *HTTPServer) tiersHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.Tiers())
}

func (s *HTTPServer) totalsHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.ledger.StakingTotals())
}

func (s *HTTPServer) delegateHandler(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("delegator", req.Delegator); err != nil {
		s.writeError(w, err)
		return
	}
	d, err := s.ledger.Delegate(r.Context(), req.Delegator, req.Delegatee)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, d)
}

func (s *HTTPServer) undelegateHandler(w http.ResponseWriter, r *http.Request) {
	var req delegateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("delegator", req.Delegator); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.Undelegate(r.Context(), req.Delegator); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"delegator":    req.Delegator,
		"voting_power": s.ledger.VotingPower(req.Delegator),
	})
}

func (s *HTTPServer) delegationLockHandler(w http.ResponseWriter, r *http.Request) {
	var req delegationLockRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.SetDelegationLockPeriod(r.Context(), req.Actor, req.Seconds); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, s.ledger.GetGovernedParameters())
}

func (s *HTTPServer) delegationHandler(w http.ResponseWriter, r *http.Request) {
	delegator, err := pathAddress(r, "delegator")
	if err != nil {
		s.writeError(w, err)
		return
	}
	resp := map[string]interface{}{
		"delegator": delegator,
		"delegates": s.ledger.Delegates(delegator),
		"history":   s.ledger.DelegationHistory(delegator),
	}
	if d, err := s.ledger.GetDelegation(delegator); err == nil {
		resp["active"] = d
	} else if !errors.Is(err, ledger.ErrNotFound) {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) votingPowerHandler(w http.ResponseWriter, r *http.Request) {
	addr, err := pathAddress(r, "addr")
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":      addr,
		"voting_power": s.ledger.VotingPower(addr),
		"staked":       s.ledger.StakeOf(addr),
	})
}
