package server

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

type saveTemplateRequest struct {
	Actor common.Address `json:"actor"`
	ledger.TemplateInput
}

type applyTemplateRequest struct {
	Actor   common.Address `json:"actor"`
	Version uint64         `json:"version"`
}

// exportDataRequest carries the fields an export hash is computed over
type exportDataRequest struct {
	ID            string                  `json:"id"`
	Name          string                  `json:"name"`
	LatestVersion uint64                  `json:"latest_version"`
	Changes       []models.ChangeLogEntry `json:"changes"`
	ValidUntil    uint64                  `json:"valid_until,omitempty"`
}

// revokeRequest names the signature either by its raw bytes or by the
// hash returned from verification
type revokeRequest struct {
	Actor         common.Address `json:"actor"`
	SignatureHash common.Hash    `json:"signature_hash"`
	Signature     hexutil.Bytes  `json:"signature,omitempty"`
}

func (s *HTTPServer) saveTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req saveTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	version, err := s.ledger.SaveGovernanceTemplate(r.Context(), req.Actor, req.TemplateInput)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":      utils.TemplateID(req.Name),
		"name":    req.Name,
		"version": version,
	})
}

func (s *HTTPServer) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	templates := s.ledger.ListTemplates()
	if templates == nil {
		templates = []models.Template{}
	}
	s.writeJSON(w, http.StatusOK, templates)
}

func (s *HTTPServer) getTemplateHandler(w http.ResponseWriter, r *http.Request) {
	tpl, err := s.ledger.GetTemplate(templateID(varOf(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, tpl)
}

func (s *HTTPServer) applyTemplateHandler(w http.ResponseWriter, r *http.Request) {
	var req applyTemplateRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	params, err := s.ledger.ApplyTemplate(r.Context(), req.Actor, templateID(varOf(r, "id")), req.Version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, params)
}

func (s *HTTPServer) templateChangesHandler(w http.ResponseWriter, r *http.Request) {
	id := templateID(varOf(r, "id"))
	q := r.URL.Query()

	var (
		changes []models.ChangeLogEntry
		err     error
	)
	if q.Get("start") == "" && q.Get("end") == "" {
		changes, err = s.ledger.TemplateChangeLogs(id)
	} else {
		var start, end uint64
		if start, err = queryUint(r, "start", 0); err == nil {
			end, err = queryUint(r, "end", ^uint64(0))
		}
		if err == nil {
			changes, err = s.ledger.GetChangesByTimeRange(id, start, end)
		}
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	if changes == nil {
		changes = []models.ChangeLogEntry{}
	}
	s.writeJSON(w, http.StatusOK, changes)
}

func (s *HTTPServer) templateVersionHandler(w http.ResponseWriter, r *http.Request) {
	version, err := strconv.ParseUint(varOf(r, "version"), 10, 64)
	if err != nil {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Invalid version", varOf(r, "version")))
		return
	}
	entry, err := s.ledger.GetTemplateVersion(templateID(varOf(r, "id")), version)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, entry)
}

func (s *HTTPServer) compareTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := templateIDs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	cmp, err := s.ledger.CompareTemplates(ids)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, cmp)
}

func (s *HTTPServer) exportTemplateHandler(w http.ResponseWriter, r *http.Request) {
	exp, err := s.ledger.ExportTemplateData(templateID(varOf(r, "id")))
	if err != nil {
		s.writeError(w, err)
		return
	}

	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		s.writeJSON(w, http.StatusOK, exp)
	case "csv":
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Name+".csv"))
		w.WriteHeader(http.StatusOK)
		if err := ledger.WriteExportCSV(w, exp); err != nil {
			s.logger.WithError(err).Error("Failed to write CSV export")
		}
	default:
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Unsupported export format", format))
	}
}

func (s *HTTPServer) batchExportHandler(w http.ResponseWriter, r *http.Request) {
	ids, err := templateIDs(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	batch, err := s.ledger.BatchExportTemplates(ids)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *HTTPServer) templateStatsHandler(w http.ResponseWriter, r *http.Request) {
	id := templateID(varOf(r, "id"))
	stats, err := s.ledger.TemplateCategoryStats(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             id,
		"category_stats": stats,
	})
}

func (s *HTTPServer) tagUsageHandler(w http.ResponseWriter, r *http.Request) {
	tag := varOf(r, "tag")
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"tag":   tag,
		"count": s.ledger.TagUsageCount(tag),
	})
}

func (s *HTTPServer) verifyExportHandler(w http.ResponseWriter, r *http.Request) {
	var req exportDataRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id := templateID(req.ID)
	dataHash, err := s.ledger.GenerateDataHash(id, req.Name, req.LatestVersion, req.Changes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	valid, err := s.ledger.VerifyExportData(id, req.Name, req.LatestVersion, req.Changes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":        id,
		"valid":     valid,
		"data_hash": dataHash,
	})
}

func (s *HTTPServer) exportSignatureHandler(w http.ResponseWriter, r *http.Request) {
	var req exportDataRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	id := templateID(req.ID)
	dataHash, err := s.ledger.GenerateDataHash(id, req.Name, req.LatestVersion, req.Changes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	msg, err := s.ledger.GenerateExportSignature(id, req.Name, req.LatestVersion, req.Changes, req.ValidUntil)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":           id,
		"data_hash":    dataHash,
		"message_hash": msg,
		"valid_until":  req.ValidUntil,
	})
}

func (s *HTTPServer) verifySignatureHandler(w http.ResponseWriter, r *http.Request) {
	var req models.SignedExport
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sig, err := s.ledger.VerifySignedExport(&req)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sig)
}

func (s *HTTPServer) batchVerifyHandler(w http.ResponseWriter, r *http.Request) {
	var reqs []*models.SignedExport
	if err := decodeBody(r, &reqs); err != nil {
		s.writeError(w, err)
		return
	}
	if len(reqs) == 0 {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "At least one signed export required"))
		return
	}
	for i, req := range reqs {
		if req == nil {
			s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Null signed export", strconv.Itoa(i)))
			return
		}
	}
	s.writeJSON(w, http.StatusOK, s.ledger.BatchVerifySignatures(reqs))
}

func (s *HTTPServer) revokeSignatureHandler(w http.ResponseWriter, r *http.Request) {
	var req revokeRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	if err := requireAddress("actor", req.Actor); err != nil {
		s.writeError(w, err)
		return
	}
	if len(req.Signature) > 0 {
		sigHash := utils.SignatureHash(req.Signature)
		if req.SignatureHash != (common.Hash{}) && req.SignatureHash != sigHash {
			s.writeError(w, utils.NewAppError(utils.ErrCodeValidation,
				"Signature hash does not match signature", sigHash.Hex()))
			return
		}
		req.SignatureHash = sigHash
	}
	if req.SignatureHash == (common.Hash{}) {
		s.writeError(w, utils.NewAppError(utils.ErrCodeValidation, "Signature or signature_hash is required"))
		return
	}
	if err := s.ledger.RevokeSignature(r.Context(), req.Actor, req.SignatureHash); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"signature_hash": req.SignatureHash,
		"revoked":        true,
	})
}
