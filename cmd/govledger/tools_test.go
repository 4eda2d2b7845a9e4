package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

func init() {
	utils.InitLogger("error", "text", "discard", "")
}

func exportFixture(t *testing.T) (*ledger.Ledger, *models.TemplateExport, string) {
	t.Helper()
	l, err := ledger.New(ledger.DefaultConfig(), eventlog.New(nil), ledger.NewManualClock(1_700_000_000), nil)
	require.NoError(t, err)

	author := common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	for _, fee := range []uint64{1, 4} {
		_, err := l.SaveGovernanceTemplate(context.Background(), author, ledger.TemplateInput{
			Name: "cli", LockDays: 2, Fee: fee, Tags: []string{"ops"}, Reason: "Adjust withdrawal fee",
		})
		require.NoError(t, err)
	}
	exp, err := l.ExportTemplateData(utils.TemplateID("cli"))
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "cli.json")
	f, err := os.Create(jsonPath)
	require.NoError(t, err)
	require.NoError(t, ledger.WriteExportJSON(f, exp))
	require.NoError(t, f.Close())

	var csvBuf bytes.Buffer
	require.NoError(t, ledger.WriteExportCSV(&csvBuf, exp))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cli.csv"), csvBuf.Bytes(), 0o644))

	return l, exp, jsonPath
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	defer rootCmd.SetArgs(nil)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHashCommand(t *testing.T) {
	_, exp, jsonPath := exportFixture(t)

	out, err := run(t, "hash", jsonPath)
	require.NoError(t, err)
	assert.Contains(t, out, exp.DataHash.Hex())

	out, err = run(t, "hash", filepath.Join(filepath.Dir(jsonPath), "cli.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, exp.DataHash.Hex())

	tampered := *exp
	tampered.Name = "other"
	path := filepath.Join(t.TempDir(), "tampered.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ledger.WriteExportJSON(f, &tampered))
	require.NoError(t, f.Close())

	_, err = run(t, "hash", path)
	assert.ErrorContains(t, err, "does not match")
}

func TestSignCommand(t *testing.T) {
	l, _, jsonPath := exportFixture(t)

	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	keyHex := hex.EncodeToString(crypto.FromECDSA(key))

	out, err := run(t, "sign", jsonPath, "--key", "0x"+keyHex)
	require.NoError(t, err)

	var signed models.SignedExport
	require.NoError(t, json.Unmarshal([]byte(out), &signed))
	assert.Equal(t, uint64(0), signed.ValidUntil)

	sig, err := l.VerifySignedExport(&signed)
	require.NoError(t, err)
	assert.Equal(t, crypto.PubkeyToAddress(key.PublicKey), sig.Signer)

	_, err = run(t, "sign", jsonPath, "--key", "zz")
	assert.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "govledger "+AppVersion+"\n", out)
}
