package server

import (
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

type communityTemplateRequest struct {
	Submitter common.Address `json:"submitter"`
	Name      string         `json:"name"`
	models.GovernanceParams
}

type voteRequest struct {
	Voter common.Address `json:"voter"`
}

type claimRequest struct {
	User    common.Address `json:"user"`
	Indices []int          `json:"indices"`
}

func (s *HTTPServer) submitCommunityTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req communityTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("submitter", req.Submitter); err != nil {
		s.writeError(w, err)
		return
	}
	index, err := s.ledger.SubmitCommunityTemplate(r.Context(), req.Submitter, req.Name, req.GovernanceParams)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{"index": index})
}

func (s *HTTPServer) listCommunityTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	templates := s.ledger.CommunityTemplates()
	if templates == nil {
		templates = []models.CommunityTemplate{}
	}
	s.writeJSON(w, http.StatusOK, templates)
}

func (s *HTTPServer) voteHandler(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(varOf(r, "index"), 10, 64)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid template index", varOf(r, "index")))
		return
	}
	var req voteRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("voter", req.Voter); err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.VoteForTemplate(r.Context(), req.Voter, index); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"index": index,
		"voter": req.Voter,
		"voted": true,
	})
}

func (s *HTTPServer) claimRewardsHandler(w http.ResponseWriter, r *http.Request) {
	var req claimRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("user", req.User); err != nil {
		s.writeError(w, err)
		return
	}
	total, err := s.ledger.ClaimRewards(r.Context(), req.User, req.Indices)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":    req.User,
		"claimed": total,
	})
}

// listEventsHandler pages the in-memory event log; ?after, ?limit, ?offset,
// ?type, ?actor, ?from and ?to narrow the result
func (s *HTTPServer) listEventsHandler(w http.ResponseWriter, r *http.Request) {
	filter, err := eventFilterFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	events := s.ledger.Events().Query(*filter)
	if events == nil {
		events = []*models.LedgerEvent{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"count":  len(events),
		"latest": s.ledger.Events().Latest(),
	})
}

const (
	defaultEventLimit = 100
	maxEventLimit     = 1000
)

func eventFilterFromQuery(r *http.Request) (*models.EventFilter, error) {
	q := r.URL.Query()
	filter := &models.EventFilter{}

	after, err := queryUint(r, "after", 0)
	if err != nil {
		return nil, err
	}
	filter.AfterSequence = after

	limit, err := queryUint(r, "limit", defaultEventLimit)
	if err != nil {
		return nil, err
	}
	if limit == 0 || limit > maxEventLimit {
		limit = maxEventLimit
	}
	filter.Limit = int(limit)

	offset, err := queryUint(r, "offset", 0)
	if err != nil {
		return nil, err
	}
	filter.Offset = int(offset)

	if t := q.Get("type"); t != "" {
		typ := models.EventType(t)
		filter.Type = &typ
	}
	if a := q.Get("actor"); a != "" {
		if !utils.IsValidAddress(a) {
			return nil, utils.NewAppError(utils.ErrCodeValidation, "Invalid actor address", a)
		}
		actor := common.HexToAddress(a)
		filter.Actor = &actor
	}
	if q.Get("from") != "" {
		from, err := queryUint(r, "from", 0)
		if err != nil {
			return nil, err
		}
		filter.FromTime = &from
	}
	if q.Get("to") != "" {
		to, err := queryUint(r, "to", 0)
		if err != nil {
			return nil, err
		}
		filter.ToTime = &to
	}
	return filter, nil
}
