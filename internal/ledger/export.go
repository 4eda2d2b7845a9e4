package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const topTagCount = 3

// exportData is the canonical tuple behind a data hash. Field order is
// part of the encoding.
type exportData struct {
	ID            common.Hash
	Name          string
	LatestVersion uint64
	Changes       []models.ChangeLogEntry
}

type signedMessage struct {
	DataHash   common.Hash
	ValidUntil uint64
}

// GenerateDataHash returns keccak256 of the RLP encoding of the export
// tuple. Nil and empty tag lists hash identically.
func GenerateDataHash(id common.Hash, name string, latestVersion uint64, changes []models.ChangeLogEntry) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(&exportData{
		ID:            id,
		Name:          name,
		LatestVersion: latestVersion,
		Changes:       changes,
	})
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeInternal, "Failed to encode export data", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// ExportMessageHash binds a data hash to an expiry. It is the value an
// off-ledger signer signs.
func ExportMessageHash(dataHash common.Hash, validUntil uint64) (common.Hash, error) {
	enc, err := rlp.EncodeToBytes(&signedMessage{DataHash: dataHash, ValidUntil: validUntil})
	if err != nil {
		return common.Hash{}, utils.WrapError(utils.ErrCodeInternal, "Failed to encode export message", err)
	}
	return crypto.Keccak256Hash(enc), nil
}

// GenerateDataHash is the ledger-bound form of the package function
func (l *Ledger) GenerateDataHash(id common.Hash, name string, latestVersion uint64, changes []models.ChangeLogEntry) (common.Hash, error) {
	return GenerateDataHash(id, name, latestVersion, changes)
}

// GenerateExportSignature returns the message hash to be signed for the
// supplied export and expiry. A validUntil of 0 never expires.
func (l *Ledger) GenerateExportSignature(id common.Hash, name string, latestVersion uint64, changes []models.ChangeLogEntry, validUntil uint64) (common.Hash, error) {
	dataHash, err := GenerateDataHash(id, name, latestVersion, changes)
	if err != nil {
		return common.Hash{}, err
	}
	return ExportMessageHash(dataHash, validUntil)
}

func cacheKey(id common.Hash, version uint64) string {
	return fmt.Sprintf("%s:%d", id.Hex(), version)
}

// recordedDataHash returns the data hash of the ledger's own history of id
// up to version.
func (l *Ledger) recordedDataHash(id common.Hash, version uint64) (common.Hash, error) {
	key := cacheKey(id, version)
	if h, ok := l.hashCache.Get(key); ok {
		if l.metrics != nil {
			l.metrics.GetPrometheusMetrics().RecordHashCacheLookup(true)
		}
		return h, nil
	}
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().RecordHashCacheLookup(false)
	}

	l.tplMu.RLock()
	rec, ok := l.templates[id]
	if !ok {
		l.tplMu.RUnlock()
		return common.Hash{}, notFound("Template not found", id.Hex())
	}
	if version == 0 || version > rec.template.LatestVersion {
		l.tplMu.RUnlock()
		return common.Hash{}, notFound("Template version not found", fmt.Sprintf("%s v%d", id.Hex(), version))
	}
	name := rec.template.Name
	changes := copyChanges(rec.changes[:version])
	l.tplMu.RUnlock()

	h, err := GenerateDataHash(id, name, version, changes)
	if err != nil {
		return common.Hash{}, err
	}
	l.hashCache.Add(key, h)
	return h, nil
}

// ExportTemplateData returns the full export of a template
func (l *Ledger) ExportTemplateData(id common.Hash) (*models.TemplateExport, error) {
	l.tplMu.RLock()
	rec, ok := l.templates[id]
	if !ok {
		l.tplMu.RUnlock()
		return nil, notFound("Template not found", id.Hex())
	}
	exp := &models.TemplateExport{
		ID:            id,
		Name:          rec.template.Name,
		LatestVersion: rec.template.LatestVersion,
		Changes:       copyChanges(rec.changes),
		TopTags:       l.topTagsLocked(rec, topTagCount),
		CategoryStats: *l.categoryStats[id],
	}
	l.tplMu.RUnlock()

	h, err := l.recordedDataHash(id, exp.LatestVersion)
	if err != nil {
		return nil, err
	}
	exp.DataHash = h
	return exp, nil
}

// BatchExportTemplates exports several templates as parallel sequences
func (l *Ledger) BatchExportTemplates(ids []common.Hash) (*models.BatchExport, error) {
	l.tplMu.RLock()
	defer l.tplMu.RUnlock()

	out := &models.BatchExport{
		IDs:        make([]common.Hash, 0, len(ids)),
		Names:      make([]string, 0, len(ids)),
		Versions:   make([]uint64, 0, len(ids)),
		AllChanges: make([][]models.ChangeLogEntry, 0, len(ids)),
	}
	for _, id := range ids {
		rec, ok := l.templates[id]
		if !ok {
			return nil, notFound("Template not found", id.Hex())
		}
		out.IDs = append(out.IDs, id)
		out.Names = append(out.Names, rec.template.Name)
		out.Versions = append(out.Versions, rec.template.LatestVersion)
		out.AllChanges = append(out.AllChanges, copyChanges(rec.changes))
	}
	return out, nil
}

// VerifyExportData reports whether the supplied export matches the
// ledger's recorded history at that version.
func (l *Ledger) VerifyExportData(id common.Hash, name string, latestVersion uint64, changes []models.ChangeLogEntry) (bool, error) {
	supplied, err := GenerateDataHash(id, name, latestVersion, changes)
	if err != nil {
		return false, err
	}
	recorded, err := l.recordedDataHash(id, latestVersion)
	if err != nil {
		if utils.ErrorCode(err) == utils.ErrCodeNotFound {
			if _, terr := l.GetTemplate(id); terr == nil {
				return false, nil
			}
		}
		return false, err
	}
	return supplied == recorded, nil
}

// VerifySignedExport recovers the signer of an export signature. Revocation
// is checked before expiry, and both before the signature itself.
func (l *Ledger) VerifySignedExport(req *models.SignedExport) (*models.ExportSignature, error) {
	sigHash := utils.SignatureHash(req.Signature)

	l.exportMu.RLock()
	_, revoked := l.revoked[sigHash]
	l.exportMu.RUnlock()
	if revoked {
		return nil, utils.NewAppError(utils.ErrCodeSignatureRevoked, "Signature revoked", sigHash.Hex())
	}

	if req.ValidUntil != 0 && l.now() > req.ValidUntil {
		return nil, utils.NewAppError(utils.ErrCodeSignatureExpired, "Signature expired",
			fmt.Sprintf("valid until %d", req.ValidUntil))
	}

	dataHash, err := GenerateDataHash(req.TemplateID, req.Name, req.LatestVersion, req.Changes)
	if err != nil {
		return nil, err
	}
	msgHash, err := ExportMessageHash(dataHash, req.ValidUntil)
	if err != nil {
		return nil, err
	}
	signer, err := utils.RecoverMessageSigner(msgHash, req.Signature)
	if err != nil {
		return nil, err
	}

	return &models.ExportSignature{
		TemplateID:    req.TemplateID,
		DataHash:      dataHash,
		MessageHash:   msgHash,
		SignatureHash: sigHash,
		Signer:        signer,
		ValidUntil:    req.ValidUntil,
	}, nil
}

// BatchVerifySignatures verifies each entry independently
func (l *Ledger) BatchVerifySignatures(reqs []*models.SignedExport) *models.BatchVerifyResult {
	res := &models.BatchVerifyResult{
		IsValid: make([]bool, len(reqs)),
		Signers: make([]common.Address, len(reqs)),
		Errors:  make([]string, len(reqs)),
	}
	for i, req := range reqs {
		sig, err := l.VerifySignedExport(req)
		if err != nil {
			res.Errors[i] = utils.ErrorCode(err)
			continue
		}
		res.IsValid[i] = true
		res.Signers[i] = sig.Signer
	}
	return res
}

// RevokeSignature permanently invalidates a signature by its hash. Revoking
// an already revoked signature succeeds.
func (l *Ledger) RevokeSignature(ctx context.Context, actor common.Address, sigHash common.Hash) (err error) {
	defer l.track("revoke_signature", time.Now(), &err)

	l.exportMu.Lock()
	defer l.exportMu.Unlock()

	now := l.now()
	_, already := l.revoked[sigHash]
	if err := l.emit(ctx, models.EventSignatureRevoked, actor, now, &SignatureRevokedPayload{
		SignatureHash:  sigHash,
		AlreadyRevoked: already,
	}); err != nil {
		return err
	}
	if !already {
		l.revoked[sigHash] = now
	}
	l.logger.WithFields(logrus.Fields{
		"signature_hash": sigHash.Hex(),
		"already":        already,
	}).Info("Signature revoked")
	return nil
}

// IsRevoked reports whether a signature hash has been revoked
func (l *Ledger) IsRevoked(sigHash common.Hash) bool {
	l.exportMu.RLock()
	defer l.exportMu.RUnlock()
	_, ok := l.revoked[sigHash]
	return ok
}
