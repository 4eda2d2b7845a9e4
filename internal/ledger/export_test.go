package ledger

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

func seedTemplate(t *testing.T, l *Ledger, name string, versions int) common.Hash {
	t.Helper()
	for i := 0; i < versions; i++ {
		_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{
			Name:     name,
			LockDays: uint64(i + 1),
			Fee:      uint64(i + 2),
			Rebate:   uint64(i),
			Category: models.CategoryGovernance,
			Tags:     []string{"core", "v" + string(rune('0'+i))},
			Reason:   "Scheduled parameter review",
		})
		require.NoError(t, err)
	}
	return utils.TemplateID(name)
}

func signExport(t *testing.T, l *Ledger, exp *models.TemplateExport, validUntil uint64) (*models.SignedExport, common.Address) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	msg, err := l.GenerateExportSignature(exp.ID, exp.Name, exp.LatestVersion, exp.Changes, validUntil)
	require.NoError(t, err)
	sig, err := utils.SignMessageHash(key, msg)
	require.NoError(t, err)
	return &models.SignedExport{
		TemplateID:    exp.ID,
		Name:          exp.Name,
		LatestVersion: exp.LatestVersion,
		Changes:       exp.Changes,
		ValidUntil:    validUntil,
		Signature:     sig,
	}, crypto.PubkeyToAddress(key.PublicKey)
}

// malleate returns the high-s twin of sig, which recovers the same signer
// for the same message.
func malleate(sig []byte) []byte {
	out := append([]byte(nil), sig...)
	n := crypto.S256().Params().N
	s := new(big.Int).SetBytes(out[32:64])
	new(big.Int).Sub(n, s).FillBytes(out[32:64])
	out[crypto.RecoveryIDOffset] ^= 1
	return out
}

func TestDataHashDeterministic(t *testing.T) {
	l, _ := newTestLedger(t)
	id := seedTemplate(t, l, "hash", 3)

	exp, err := l.ExportTemplateData(id)
	require.NoError(t, err)

	h1, err := GenerateDataHash(exp.ID, exp.Name, exp.LatestVersion, exp.Changes)
	require.NoError(t, err)
	h2, err := GenerateDataHash(exp.ID, exp.Name, exp.LatestVersion, copyChanges(exp.Changes))
	require.NoError(t, err)
	assert.Equal(t, h1, h2)
	assert.Equal(t, exp.DataHash, h1)

	ok, err := l.VerifyExportData(exp.ID, exp.Name, exp.LatestVersion, exp.Changes)
	require.NoError(t, err)
	assert.True(t, ok)

	tampered := copyChanges(exp.Changes)
	tampered[1].NewFee++
	h3, err := GenerateDataHash(exp.ID, exp.Name, exp.LatestVersion, tampered)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
	ok, err = l.VerifyExportData(exp.ID, exp.Name, exp.LatestVersion, tampered)
	require.NoError(t, err)
	assert.False(t, ok)

	// earlier versions verify against their own prefix of history
	ok, err = l.VerifyExportData(exp.ID, exp.Name, 2, exp.Changes[:2])
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = l.VerifyExportData(exp.ID, exp.Name, 9, exp.Changes)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = l.VerifyExportData(utils.TemplateID("ghost"), "ghost", 1, nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNilAndEmptyTagsHashEqually(t *testing.T) {
	a := []models.ChangeLogEntry{{Version: 1, Tags: nil}}
	b := []models.ChangeLogEntry{{Version: 1, Tags: []string{}}}
	ha, err := GenerateDataHash(common.Hash{1}, "n", 1, a)
	require.NoError(t, err)
	hb, err := GenerateDataHash(common.Hash{1}, "n", 1, b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)
}

func TestExportTemplateData(t *testing.T) {
	l, _ := newTestLedger(t)
	id := seedTemplate(t, l, "export", 2)
	_, err := l.SaveGovernanceTemplate(ctx, bob, TemplateInput{Name: "other", Tags: []string{"v0"}})
	require.NoError(t, err)

	exp, err := l.ExportTemplateData(id)
	require.NoError(t, err)
	assert.Equal(t, "export", exp.Name)
	assert.Equal(t, uint64(2), exp.LatestVersion)
	assert.Len(t, exp.Changes, 2)
	assert.Equal(t, uint64(2), exp.CategoryStats.Governance)
	// core used twice, v0 twice globally, v1 once
	assert.Equal(t, []string{"core", "v0", "v1"}, exp.TopTags)

	batch, err := l.BatchExportTemplates([]common.Hash{id, utils.TemplateID("other")})
	require.NoError(t, err)
	assert.Equal(t, []string{"export", "other"}, batch.Names)
	assert.Equal(t, []uint64{2, 1}, batch.Versions)
	assert.Len(t, batch.AllChanges[0], 2)

	_, err = l.BatchExportTemplates([]common.Hash{id, {}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSignedExportLifecycle(t *testing.T) {
	l, clock := newTestLedger(t)
	id := seedTemplate(t, l, "signed", 2)
	exp, err := l.ExportTemplateData(id)
	require.NoError(t, err)

	validUntil := startTime + 3600
	req, signer := signExport(t, l, exp, validUntil)

	sig, err := l.VerifySignedExport(req)
	require.NoError(t, err)
	assert.Equal(t, signer, sig.Signer)
	assert.Equal(t, exp.DataHash, sig.DataHash)

	t.Run("Tampered data recovers another signer", func(t *testing.T) {
		bad := *req
		bad.Changes = copyChanges(req.Changes)
		bad.Changes[0].Reason = "Something else entirely"
		got, err := l.VerifySignedExport(&bad)
		if err == nil {
			assert.NotEqual(t, signer, got.Signer)
		}
	})

	t.Run("Malformed signature", func(t *testing.T) {
		bad := *req
		bad.Signature = req.Signature[:64]
		_, err := l.VerifySignedExport(&bad)
		assert.ErrorIs(t, err, ErrSignatureInvalid)
	})

	t.Run("Revocation beats validity", func(t *testing.T) {
		sigHash := utils.SignatureHash(req.Signature)
		require.NoError(t, l.RevokeSignature(ctx, bob, sigHash))
		require.NoError(t, l.RevokeSignature(ctx, bob, sigHash))
		assert.True(t, l.IsRevoked(sigHash))

		_, err := l.VerifySignedExport(req)
		assert.ErrorIs(t, err, ErrSignatureRevoked)

		clock.Advance(2 * time.Hour)
		_, err = l.VerifySignedExport(req)
		assert.ErrorIs(t, err, ErrSignatureRevoked)
	})

	t.Run("Equivalent encodings stay revoked", func(t *testing.T) {
		lowV := *req
		lowV.Signature = append([]byte(nil), req.Signature...)
		lowV.Signature[crypto.RecoveryIDOffset] -= 27
		_, err := l.VerifySignedExport(&lowV)
		assert.ErrorIs(t, err, ErrSignatureRevoked)

		highS := *req
		highS.Signature = malleate(req.Signature)
		_, err = l.VerifySignedExport(&highS)
		assert.ErrorIs(t, err, ErrSignatureRevoked)

		assert.Equal(t, utils.SignatureHash(req.Signature), utils.SignatureHash(lowV.Signature))
		assert.Equal(t, utils.SignatureHash(req.Signature), utils.SignatureHash(highS.Signature))
	})

	t.Run("Expiry", func(t *testing.T) {
		fresh, _ := signExport(t, l, exp, validUntil)
		_, err := l.VerifySignedExport(fresh)
		assert.ErrorIs(t, err, ErrSignatureExpired)

		forever, _ := signExport(t, l, exp, 0)
		_, err = l.VerifySignedExport(forever)
		assert.NoError(t, err)
	})
}

func TestSignatureEncodings(t *testing.T) {
	l, _ := newTestLedger(t)
	exp, err := l.ExportTemplateData(seedTemplate(t, l, "encodings", 1))
	require.NoError(t, err)
	req, signer := signExport(t, l, exp, 0)

	lowV := *req
	lowV.Signature = append([]byte(nil), req.Signature...)
	lowV.Signature[crypto.RecoveryIDOffset] -= 27
	got, err := l.VerifySignedExport(&lowV)
	require.NoError(t, err)
	assert.Equal(t, signer, got.Signer)
	assert.Equal(t, utils.SignatureHash(req.Signature), got.SignatureHash)

	highS := *req
	highS.Signature = malleate(req.Signature)
	_, err = l.VerifySignedExport(&highS)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	// revoking through the {0,1} form covers the original bytes
	require.NoError(t, l.RevokeSignature(ctx, bob, utils.SignatureHash(lowV.Signature)))
	_, err = l.VerifySignedExport(req)
	assert.ErrorIs(t, err, ErrSignatureRevoked)
}

func TestBatchVerifySignatures(t *testing.T) {
	l, _ := newTestLedger(t)
	id := seedTemplate(t, l, "batch", 1)
	exp, err := l.ExportTemplateData(id)
	require.NoError(t, err)

	good, signer := signExport(t, l, exp, 0)
	revoked, _ := signExport(t, l, exp, 0)
	require.NoError(t, l.RevokeSignature(ctx, alice, utils.SignatureHash(revoked.Signature)))
	broken := *good
	broken.Signature = []byte{1, 2, 3}

	res := l.BatchVerifySignatures([]*models.SignedExport{revoked, good, &broken})
	assert.Equal(t, []bool{false, true, false}, res.IsValid)
	assert.Equal(t, signer, res.Signers[1])
	assert.Equal(t, utils.ErrCodeSignatureRevoked, res.Errors[0])
	assert.Equal(t, utils.ErrCodeSignatureInvalid, res.Errors[2])
}

func TestExportFilesReproduceHash(t *testing.T) {
	l, _ := newTestLedger(t)
	id := seedTemplate(t, l, "files", 3)
	_, err := l.SaveGovernanceTemplate(ctx, alice, TemplateInput{
		Name:   "files",
		Reason: `Quoted "reason", with commas`,
	})
	require.NoError(t, err)

	exp, err := l.ExportTemplateData(id)
	require.NoError(t, err)

	t.Run("JSON", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteExportJSON(&buf, exp))
		parsed, err := ReadExportJSON(&buf)
		require.NoError(t, err)
		h, err := ExportFileHash(parsed)
		require.NoError(t, err)
		assert.Equal(t, exp.DataHash, h)
		assert.Equal(t, exp.DataHash, parsed.DataHash)
	})

	t.Run("CSV", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteExportCSV(&buf, exp))
		parsed, err := ReadExportCSV(&buf)
		require.NoError(t, err)
		h, err := ExportFileHash(parsed)
		require.NoError(t, err)
		assert.Equal(t, exp.DataHash, h)

		ok, err := l.VerifyExportData(parsed.ID, parsed.Name, parsed.LatestVersion, parsed.Changes)
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("Rejects garbage", func(t *testing.T) {
		_, err := ReadExportCSV(bytes.NewBufferString("a,b\n"))
		assert.ErrorIs(t, err, ErrValidation)
		_, err = ReadExportJSON(bytes.NewBufferString("{"))
		assert.ErrorIs(t, err, ErrValidation)
	})
}
