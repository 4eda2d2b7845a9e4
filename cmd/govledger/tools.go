// File: cmd/govledger/tools.go
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/smartdevs17/govledger/internal/ledger"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/internal/monitor"
	"github.com/smartdevs17/govledger/internal/storage"
	"github.com/smartdevs17/govledger/pkg/utils"
)

// storeSource adapts durable storage to the monitor's cursor interface so
// the CLI can follow a log written by a running server
type storeSource struct {
	ctx    context.Context
	store  storage.Storage
	logger *logrus.Entry
}

func (s *storeSource) Since(cursor uint64, limit int) []*models.LedgerEvent {
	events, err := s.store.GetEvents(s.ctx, models.EventFilter{AfterSequence: cursor, Limit: limit})
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read events")
		return nil
	}
	return events
}

func (s *storeSource) Latest() uint64 {
	seq, err := s.store.GetLatestSequence(s.ctx)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to read latest sequence")
		return 0
	}
	return seq
}

// eventsCmd prints the durable event log, optionally following new events
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print the stored ledger event log",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := utils.InitLogger(cfg.Logging.Level, cfg.Logging.Format, "stderr", ""); err != nil {
			return err
		}

		after, _ := cmd.Flags().GetUint64("after")
		limit, _ := cmd.Flags().GetInt("limit")
		typ, _ := cmd.Flags().GetString("type")
		actor, _ := cmd.Flags().GetString("actor")
		follow, _ := cmd.Flags().GetBool("follow")
		interval, _ := cmd.Flags().GetDuration("interval")
		asJSON, _ := cmd.Flags().GetBool("json")

		criteria := &monitor.FilterCriteria{}
		if typ != "" {
			criteria.EventTypes = []models.EventType{models.EventType(typ)}
		}
		if actor != "" {
			if !utils.IsValidAddress(actor) {
				return fmt.Errorf("invalid actor address %q", actor)
			}
			criteria.Actors = []common.Address{common.HexToAddress(actor)}
		}

		store, err := openStorage(&cfg.Storage)
		if err != nil {
			return err
		}
		defer store.Close()

		out := cmd.OutOrStdout()
		printed := 0
		printEvent := func(_ context.Context, ev *monitor.ParsedEvent) error {
			if limit > 0 && printed >= limit {
				return nil
			}
			printed++
			if asJSON {
				return json.NewEncoder(out).Encode(ev.Event)
			}
			_, err := fmt.Fprintln(out, ev.Summary())
			return err
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		mon := monitor.NewEventMonitor(&storeSource{
			ctx:    ctx,
			store:  store,
			logger: utils.ComponentLogger("cli"),
		}, &monitor.MonitorConfig{
			PollInterval:  interval,
			BatchSize:     cfg.Storage.BatchSize,
			StartSequence: after,
		}, nil)
		mon.AddHandler("print", criteria, printEvent)

		if !follow {
			for {
				if mon.PollOnce(ctx) == 0 || (limit > 0 && printed >= limit) {
					return nil
				}
			}
		}

		if err := mon.Start(ctx); err != nil {
			return err
		}
		<-ctx.Done()
		return mon.Stop()
	},
}

// readExportFile parses a JSON or CSV export, chosen by extension
func readExportFile(path string) (*models.TemplateExport, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".csv") {
		return ledger.ReadExportCSV(f)
	}
	return ledger.ReadExportJSON(f)
}

// hashCmd recomputes the data hash of an export file
var hashCmd = &cobra.Command{
	Use:   "hash <export-file>",
	Short: "Recompute the data hash of a JSON or CSV template export",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		exp, err := readExportFile(args[0])
		if err != nil {
			return err
		}
		h, err := ledger.ExportFileHash(exp)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "template:  %s (%s)\n", exp.Name, exp.ID.Hex())
		fmt.Fprintf(out, "version:   %d\n", exp.LatestVersion)
		fmt.Fprintf(out, "data hash: %s\n", h.Hex())
		if exp.DataHash != (common.Hash{}) && exp.DataHash != h {
			return fmt.Errorf("recorded data hash %s does not match file contents", exp.DataHash.Hex())
		}
		return nil
	},
}

// signCmd signs an export file with a local key, producing a request body
// for /api/v1/signatures/verify
var signCmd = &cobra.Command{
	Use:   "sign <export-file>",
	Short: "Sign a template export with an EIP-191 personal signature",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		keyHex, _ := cmd.Flags().GetString("key")
		if keyHex == "" {
			keyHex = os.Getenv("GOVLEDGER_SIGNER_KEY")
		}
		if keyHex == "" {
			return fmt.Errorf("signing key required (--key or GOVLEDGER_SIGNER_KEY)")
		}
		key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
		if err != nil {
			return fmt.Errorf("invalid signing key: %w", err)
		}

		validFor, _ := cmd.Flags().GetDuration("valid-for")
		var validUntil uint64
		if validFor > 0 {
			validUntil = uint64(time.Now().Add(validFor).Unix())
		}

		exp, err := readExportFile(args[0])
		if err != nil {
			return err
		}
		dataHash, err := ledger.ExportFileHash(exp)
		if err != nil {
			return err
		}
		msg, err := ledger.ExportMessageHash(dataHash, validUntil)
		if err != nil {
			return err
		}
		sig, err := utils.SignMessageHash(key, msg)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(&models.SignedExport{
			TemplateID:    exp.ID,
			Name:          exp.Name,
			LatestVersion: exp.LatestVersion,
			Changes:       exp.Changes,
			ValidUntil:    validUntil,
			Signature:     sig,
		})
	},
}

func init() {
	eventsCmd.Flags().Uint64("after", 0, "print events after this sequence")
	eventsCmd.Flags().Int("limit", 0, "print at most this many events without --follow (0 = all)")
	eventsCmd.Flags().String("type", "", "only events of this type")
	eventsCmd.Flags().String("actor", "", "only events by this address")
	eventsCmd.Flags().BoolP("follow", "f", false, "keep polling for new events")
	eventsCmd.Flags().Duration("interval", 2*time.Second, "poll interval with --follow")
	eventsCmd.Flags().Bool("json", false, "print raw events as JSON lines")

	signCmd.Flags().String("key", "", "hex secp256k1 private key")
	signCmd.Flags().Duration("valid-for", 0, "signature lifetime (0 = never expires)")
}
