package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const startTime = uint64(1_700_000_000)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

func init() {
	utils.InitLogger("error", "text", "discard", "")
}

type testServer struct {
	srv    *HTTPServer
	ledger *ledger.Ledger
	clock  *ledger.ManualClock
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	clock := ledger.NewManualClock(startTime)
	m := metrics.NewManager()
	l, err := ledger.New(ledger.DefaultConfig(), eventlog.New(nil), clock, m)
	require.NoError(t, err)

	srv, err := NewHTTPServer(&ServerConfig{
		Host:          "127.0.0.1",
		Port:          0,
		EnableMetrics: true,
		EnableHealth:  true,
		Version:       "test",
	}, l, nil, nil, nil, m)
	require.NoError(t, err)
	return &testServer{srv: srv, ledger: l, clock: clock}
}

func (ts *testServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	ts.srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

func errorCode(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Code string `json:"code"`
	}
	decode(t, rec, &body)
	return body.Code
}

func TestNewHTTPServerRequiresLedger(t *testing.T) {
	_, err := NewHTTPServer(&ServerConfig{}, nil, nil, nil, nil, nil)
	assert.Error(t, err)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var health map[string]interface{}
	decode(t, rec, &health)
	assert.Equal(t, "healthy", health["status"])
	assert.Equal(t, "test", health["version"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = ts.do(t, http.MethodGet, "/api/v1/health/detailed", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "govledger_http_requests_total")
	assert.Contains(t, rec.Body.String(), `path="/api/v1/health"`)
}

func TestStakingEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/stake", map[string]interface{}{"owner": alice, "amount": 12000})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var pos models.StakePosition
	decode(t, rec, &pos)
	assert.Equal(t, uint64(12000), pos.Amount)
	assert.Equal(t, 2, pos.TierIndex)

	rec = ts.do(t, http.MethodPost, "/api/v1/stake", map[string]interface{}{"owner": alice, "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeInvalidAmount, errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/stake", map[string]interface{}{"amount": 5})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeValidation, errorCode(t, rec))

	rec = ts.do(t, http.MethodPost, "/api/v1/unstake", map[string]interface{}{"owner": alice, "all": true})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, utils.ErrCodeLockActive, errorCode(t, rec))

	ts.clock.Advance(90 * 24 * time.Hour)

	rec = ts.do(t, http.MethodPost, "/api/v1/unstake", map[string]interface{}{"owner": alice, "amount": 20000})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/rewards/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var rewards struct {
		StakingRewards uint64 `json:"staking_rewards"`
	}
	decode(t, rec, &rewards)
	assert.Positive(t, rewards.StakingRewards)

	rec = ts.do(t, http.MethodPost, "/api/v1/unstake", map[string]interface{}{"owner": alice, "amount": 2000})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res models.UnstakeResult
	decode(t, rec, &res)
	assert.Equal(t, uint64(10000), res.Remaining)
	assert.Equal(t, res.Amount, res.Fee+res.Returned)

	rec = ts.do(t, http.MethodPost, "/api/v1/unstake", map[string]interface{}{"owner": alice, "amount": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, utils.ErrCodeInvalidAmount, errorCode(t, rec))

	// no amount withdraws the whole position
	rec = ts.do(t, http.MethodPost, "/api/v1/unstake", map[string]interface{}{"owner": alice})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	res = models.UnstakeResult{}
	decode(t, rec, &res)
	assert.Equal(t, uint64(10000), res.Amount)
	assert.Equal(t, uint64(0), res.Remaining)

	rec = ts.do(t, http.MethodGet, "/api/v1/positions/"+alice.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/positions/"+bob.Hex(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/positions/not-an-address", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/pressure", map[string]interface{}{"actor": bob, "pressure": 40})
	require.Equal(t, http.StatusOK, rec.Code)
	var rate map[string]uint64
	decode(t, rec, &rate)
	assert.Equal(t, uint64(70), rate["burn_rate"])
}

func TestDelegationEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/stake", map[string]interface{}{"owner": bob, "amount": 800})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/delegate", map[string]interface{}{"delegator": bob, "delegatee": alice})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodGet, "/api/v1/voting-power/"+alice.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var power struct {
		VotingPower uint64 `json:"voting_power"`
	}
	decode(t, rec, &power)
	assert.Equal(t, uint64(800), power.VotingPower)

	rec = ts.do(t, http.MethodPost, "/api/v1/undelegate", map[string]interface{}{"delegator": bob})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, utils.ErrCodeDelegationLocked, errorCode(t, rec))

	rec = ts.do(t, http.MethodGet, "/api/v1/delegations/"+bob.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var deleg map[string]interface{}
	decode(t, rec, &deleg)
	assert.NotNil(t, deleg["active"])
}

func TestGovernanceEndpoints(t *testing.T) {
	ts := newTestServer(t)

	proposal := map[string]interface{}{
		"proposer":      alice,
		"min_duration":  3,
		"quorum_pct":    35,
		"delay_seconds": 86400,
		"reason":        "Raise quorum for the season",
	}
	rec := ts.do(t, http.MethodPost, "/api/v1/proposals", proposal)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		Change models.GovernanceChange `json:"change"`
	}
	decode(t, rec, &created)
	assert.Equal(t, models.SeverityCritical, created.Change.Severity)
	assert.Contains(t, rec.Body.String(), `"severity":"CRITICAL"`)

	rec = ts.do(t, http.MethodPost, "/api/v1/proposals", proposal)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, utils.ErrCodeTimelockActive, errorCode(t, rec))

	proposal["reason"] = "short"
	ts.clock.Advance(24 * time.Hour)
	rec = ts.do(t, http.MethodPost, "/api/v1/proposals", proposal)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/governance/history", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var history []models.GovernanceChange
	decode(t, rec, &history)
	assert.Len(t, history, 1)

	rec = ts.do(t, http.MethodPost, "/api/v1/thresholds", map[string]interface{}{"user": bob, "preset": "Conservative"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/thresholds", map[string]interface{}{"user": bob, "preset": "reckless"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/thresholds/"+bob.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"custom":true`)

	rec = ts.do(t, http.MethodGet, "/api/v1/governance/alerts/"+bob.Hex(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []models.GovernanceAlert
	decode(t, rec, &alerts)
	assert.Len(t, alerts, 1)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/presets", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var presets []models.ThresholdPreset
	decode(t, rec, &presets)
	assert.Len(t, presets, 3)
}

func TestTemplateEndpoints(t *testing.T) {
	ts := newTestServer(t)

	for i, fee := range []uint64{2, 3} {
		rec := ts.do(t, http.MethodPost, "/api/v1/templates", map[string]interface{}{
			"actor":     alice,
			"name":      "stable",
			"lock_days": 7,
			"fee":       fee,
			"rebate":    1,
			"category":  "ECONOMIC",
			"tags":      []string{"fees"},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var saved struct {
			Version uint64 `json:"version"`
		}
		decode(t, rec, &saved)
		assert.Equal(t, uint64(i+1), saved.Version)
	}

	rec := ts.do(t, http.MethodPost, "/api/v1/templates", map[string]interface{}{
		"actor": alice, "name": strings.Repeat("x", 21),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/stable", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var tpl models.Template
	decode(t, rec, &tpl)
	assert.Equal(t, utils.TemplateID("stable"), tpl.ID)
	assert.Equal(t, models.CategoryEconomic, tpl.Category)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/"+tpl.ID.Hex()+"/changes", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var changes []models.ChangeLogEntry
	decode(t, rec, &changes)
	assert.Len(t, changes, 2)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/stable/changes?start=10&end=5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	changes = nil
	decode(t, rec, &changes)
	assert.Empty(t, changes)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/stable/versions/1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/templates/stable/apply", map[string]interface{}{"actor": bob, "version": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var params models.GovernedParameters
	decode(t, rec, &params)
	assert.Equal(t, uint64(2), params.WithdrawalFee)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/stable/stats", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"economic":2`)

	rec = ts.do(t, http.MethodGet, "/api/v1/tags/fees", nil)
	assert.Contains(t, rec.Body.String(), `"count":2`)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/compare?ids=stable", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/compare?ids=stable,missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/export?ids=stable", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExportAndSignatureEndpoints(t *testing.T) {
	ts := newTestServer(t)
	_, err := ts.ledger.SaveGovernanceTemplate(testContext(t), alice, ledger.TemplateInput{Name: "signed", LockDays: 3, Fee: 4})
	require.NoError(t, err)

	rec := ts.do(t, http.MethodGet, "/api/v1/templates/signed/export?format=csv", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/csv", rec.Header().Get("Content-Type"))
	parsed, err := ledger.ReadExportCSV(rec.Body)
	require.NoError(t, err)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/signed/export?format=xml", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/templates/signed/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var exp models.TemplateExport
	decode(t, rec, &exp)

	body := map[string]interface{}{
		"id":             exp.ID.Hex(),
		"name":           parsed.Name,
		"latest_version": parsed.LatestVersion,
		"changes":        parsed.Changes,
	}
	rec = ts.do(t, http.MethodPost, "/api/v1/templates/verify", body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var verified struct {
		Valid    bool        `json:"valid"`
		DataHash common.Hash `json:"data_hash"`
	}
	decode(t, rec, &verified)
	assert.True(t, verified.Valid)
	assert.Equal(t, exp.DataHash, verified.DataHash)

	body["valid_until"] = startTime + 3600
	rec = ts.do(t, http.MethodPost, "/api/v1/templates/signature", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var msg struct {
		MessageHash common.Hash `json:"message_hash"`
	}
	decode(t, rec, &msg)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	sig, err := utils.SignMessageHash(key, msg.MessageHash)
	require.NoError(t, err)
	signed := &models.SignedExport{
		TemplateID:    exp.ID,
		Name:          exp.Name,
		LatestVersion: exp.LatestVersion,
		Changes:       exp.Changes,
		ValidUntil:    startTime + 3600,
		Signature:     sig,
	}

	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/verify", signed)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var es models.ExportSignature
	decode(t, rec, &es)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), es.Signer)

	assert.Equal(t, utils.SignatureHash(sig), es.SignatureHash)

	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/revoke", map[string]interface{}{"actor": bob})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// revoking the {0,1} recovery id form covers the {27,28} form too
	lowV := append([]byte(nil), sig...)
	lowV[crypto.RecoveryIDOffset] -= 27
	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/revoke", map[string]interface{}{
		"actor": bob, "signature": hexutil.Bytes(lowV), "signature_hash": common.Hash{0x01},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/revoke", map[string]interface{}{
		"actor": bob, "signature": hexutil.Bytes(lowV),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/verify", signed)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, utils.ErrCodeSignatureRevoked, errorCode(t, rec))

	broken := *signed
	broken.Signature = []byte{1, 2, 3}
	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/batch-verify", []*models.SignedExport{signed, &broken})
	require.Equal(t, http.StatusOK, rec.Code)
	var batch models.BatchVerifyResult
	decode(t, rec, &batch)
	assert.Equal(t, []bool{false, false}, batch.IsValid)
	assert.Equal(t, []string{utils.ErrCodeSignatureRevoked, utils.ErrCodeSignatureInvalid}, batch.Errors)

	rec = ts.do(t, http.MethodPost, "/api/v1/signatures/batch-verify", []*models.SignedExport{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCommunityAndEventEndpoints(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, http.MethodPost, "/api/v1/community/templates", map[string]interface{}{
		"submitter": alice, "name": "fast track", "min_duration": 1, "quorum_pct": 10, "delay_seconds": 3600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/community/templates/0/vote", map[string]interface{}{"voter": bob})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = ts.do(t, http.MethodPost, "/api/v1/community/templates/0/vote", map[string]interface{}{"voter": bob})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ts.do(t, http.MethodPost, "/api/v1/community/templates/9/vote", map[string]interface{}{"voter": bob})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ts.do(t, http.MethodGet, "/api/v1/community/templates", nil)
	var tpls []models.CommunityTemplate
	decode(t, rec, &tpls)
	require.Len(t, tpls, 1)
	assert.Equal(t, uint64(1), tpls[0].Votes)

	rec = ts.do(t, http.MethodPost, "/api/v1/rewards/claim", map[string]interface{}{"user": alice, "indices": []int{0}})
	assert.Equal(t, http.StatusConflict, rec.Code)

	ts.clock.Advance(7 * 24 * time.Hour)
	rec = ts.do(t, http.MethodPost, "/api/v1/rewards/claim", map[string]interface{}{"user": alice, "indices": []int{0}})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"claimed":50`)

	rec = ts.do(t, http.MethodGet, "/api/v1/events?type=TemplateRewarded", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page struct {
		Events []*models.LedgerEvent `json:"events"`
		Latest uint64                `json:"latest"`
	}
	decode(t, rec, &page)
	require.Len(t, page.Events, 1)
	assert.Equal(t, models.EventTemplateRewarded, page.Events[0].Type)

	rec = ts.do(t, http.MethodGet, "/api/v1/events?after=1&limit=1&actor="+bob.Hex(), nil)
	decode(t, rec, &page)
	require.Len(t, page.Events, 1)
	assert.Equal(t, bob, page.Events[0].Actor)
	assert.Greater(t, page.Events[0].Sequence, uint64(1))

	rec = ts.do(t, http.MethodGet, "/api/v1/events?limit=abc", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusMapping(t *testing.T) {
	tests := map[string]int{
		utils.ErrCodeValidation:          http.StatusBadRequest,
		utils.ErrCodeInvalidAmount:       http.StatusBadRequest,
		utils.ErrCodeSignatureInvalid:    http.StatusBadRequest,
		utils.ErrCodeNotFound:            http.StatusNotFound,
		utils.ErrCodeTimelockActive:      http.StatusConflict,
		utils.ErrCodeLockActive:          http.StatusConflict,
		utils.ErrCodeDelegationLocked:    http.StatusConflict,
		utils.ErrCodeInsufficientBalance: http.StatusUnprocessableEntity,
		utils.ErrCodeSignatureExpired:    http.StatusForbidden,
		utils.ErrCodeSignatureRevoked:    http.StatusForbidden,
		utils.ErrCodeDatabase:            http.StatusInternalServerError,
	}
	for code, want := range tests {
		assert.Equal(t, want, statusFor(code), code)
	}
}

// testContext mirrors testing.T.Context (Go 1.24+) for older toolchains.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
