package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/eventlog"
	"github.com/smartdevs17/govledger/internal/metrics"
	"github.com/smartdevs17/govledger/internal/models"
	"github.com/smartdevs17/govledger/pkg/utils"
)

const (
	BpsDenominator = 10000
	SecondsPerDay  = 86400
	SecondsPerYear = 365 * SecondsPerDay
)

// Config holds the ledger's economic and validation parameters
type Config struct {
	Tiers                []models.Tier
	BaseBurnRate         uint64
	BurnShareBps         uint64
	FeeCollector         common.Address
	DelegationLockPeriod time.Duration
	TimelockInterval     time.Duration
	InitialGovernance    models.GovernanceParams
	DefaultThresholds    models.AlertThreshold
	MinReasonLength      int
	MaxNameLength        int
	MaxTags              int
	MaxTagLength         int
	MaxLockDays          uint64
	RewardPerVote        uint64
	ClaimLockPeriod      time.Duration
	HashCacheSize        int
}

// DefaultTiers returns the stock three-tier table
func DefaultTiers() []models.Tier {
	return []models.Tier{
		{MinStake: 0, RewardRateBps: 1000, FeeBps: 300, LockPeriod: 30 * SecondsPerDay},
		{MinStake: 5000, RewardRateBps: 2000, FeeBps: 200, LockPeriod: 60 * SecondsPerDay},
		{MinStake: 10000, RewardRateBps: 3000, FeeBps: 100, LockPeriod: 90 * SecondsPerDay},
	}
}

// DefaultConfig returns a configuration with stock values
func DefaultConfig() *Config {
	return &Config{
		Tiers:                DefaultTiers(),
		BaseBurnRate:         50,
		BurnShareBps:         8000,
		DelegationLockPeriod: 3 * 24 * time.Hour,
		TimelockInterval:     24 * time.Hour,
		InitialGovernance: models.GovernanceParams{
			MinDuration:  3,
			QuorumPct:    20,
			DelaySeconds: SecondsPerDay,
		},
		DefaultThresholds: models.AlertThreshold{
			MinDurationDelta: 3,
			QuorumDelta:      10,
			DelayDelta:       12 * 3600,
			Enabled:          true,
		},
		MinReasonLength: 10,
		MaxNameLength:   20,
		MaxTags:         5,
		MaxTagLength:    32,
		MaxLockDays:     3650,
		RewardPerVote:   100,
		ClaimLockPeriod: 7 * 24 * time.Hour,
		HashCacheSize:   1024,
	}
}

// Validate checks the configuration for internal consistency
func (c *Config) Validate() error {
	if len(c.Tiers) == 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "At least one staking tier is required")
	}
	if c.Tiers[0].MinStake != 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "First staking tier must have a zero minimum stake")
	}
	for i, tier := range c.Tiers {
		if i > 0 && tier.MinStake <= c.Tiers[i-1].MinStake {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Staking tiers must have strictly ascending minimum stakes",
				fmt.Sprintf("tier %d", i))
		}
		if tier.FeeBps > BpsDenominator {
			return utils.NewAppError(utils.ErrCodeConfiguration, "Tier fee exceeds 100%", fmt.Sprintf("tier %d", i))
		}
	}
	if c.BaseBurnRate > 100 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Base burn rate must be at most 100")
	}
	if c.BurnShareBps > BpsDenominator {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Burn share exceeds 100%")
	}
	if err := validateGovernanceParams(c.InitialGovernance); err != nil {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Invalid initial governance parameters", err.Error())
	}
	if c.MaxNameLength <= 0 || c.MaxTags < 0 || c.MaxTagLength <= 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Template limits must be positive")
	}
	if c.RewardPerVote%2 != 0 {
		return utils.NewAppError(utils.ErrCodeConfiguration, "Reward per vote must be even")
	}
	return nil
}

type clockBox struct{ Clock }

// Ledger is the governance and economics state machine. Every successful
// write is recorded in the event log before state changes.
//
// Lock order: delegMu before stakeMu and paramsMu; govMu and tplMu before
// alertMu.
type Ledger struct {
	config  *Config
	events  *eventlog.Log
	metrics *metrics.Manager
	logger  *logrus.Entry

	clock     atomic.Pointer[clockBox]
	replaying atomic.Bool

	burnMu       sync.RWMutex
	baseBurnRate uint64
	burnRate     uint64
	pressure     uint64

	stakeMu          sync.RWMutex
	tiers            []models.Tier
	positions        map[common.Address]*models.StakePosition
	totalStaked      uint64
	totalBurned      uint64
	collectorBalance uint64
	feeCollector     common.Address

	delegMu           sync.RWMutex
	delegations       map[common.Address]*models.Delegation
	delegationHistory map[common.Address][]models.Delegation

	paramsMu sync.RWMutex
	params   models.GovernedParameters

	govMu      sync.RWMutex
	governance models.GovernanceParams
	lastChange uint64
	hasChanged bool
	history    []models.GovernanceChange

	alertMu    sync.RWMutex
	thresholds map[common.Address]models.AlertThreshold

	tplMu         sync.RWMutex
	templates     map[common.Hash]*templateRecord
	templateOrder []common.Hash
	categoryStats map[common.Hash]*models.CategoryStats
	tagUsage      map[string]uint64

	exportMu  sync.RWMutex
	revoked   map[common.Hash]uint64
	hashCache *lru.Cache[string, common.Hash]

	communityMu sync.RWMutex
	community   []*models.CommunityTemplate
	votes       map[uint64]map[common.Address]bool
	rewards     map[common.Address][]*models.RewardEntry
}

// New creates a ledger. A nil log creates an in-memory one, a nil clock
// uses the system clock and a nil metrics manager disables metrics.
func New(cfg *Config, log *eventlog.Log, clock Clock, m *metrics.Manager) (*Ledger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = eventlog.New(nil)
	}
	if clock == nil {
		clock = SystemClock{}
	}
	cacheSize := cfg.HashCacheSize
	if cacheSize <= 0 {
		cacheSize = 1024
	}
	cache, err := lru.New[string, common.Hash](cacheSize)
	if err != nil {
		return nil, utils.WrapError(utils.ErrCodeConfiguration, "Failed to create hash cache", err)
	}

	tiers := make([]models.Tier, len(cfg.Tiers))
	copy(tiers, cfg.Tiers)

	l := &Ledger{
		config:       cfg,
		events:       log,
		metrics:      m,
		logger:       utils.ComponentLogger("ledger"),
		baseBurnRate: cfg.BaseBurnRate,
		burnRate:     cfg.BaseBurnRate,
		tiers:        tiers,
		positions:    make(map[common.Address]*models.StakePosition),
		feeCollector: cfg.FeeCollector,
		delegations:  make(map[common.Address]*models.Delegation),

		delegationHistory: make(map[common.Address][]models.Delegation),
		params: models.GovernedParameters{
			DelegationLockPeriod: uint64(cfg.DelegationLockPeriod / time.Second),
		},
		governance:    cfg.InitialGovernance,
		thresholds:    make(map[common.Address]models.AlertThreshold),
		templates:     make(map[common.Hash]*templateRecord),
		categoryStats: make(map[common.Hash]*models.CategoryStats),
		tagUsage:      make(map[string]uint64),
		revoked:       make(map[common.Hash]uint64),
		hashCache:     cache,
		votes:         make(map[uint64]map[common.Address]bool),
		rewards:       make(map[common.Address][]*models.RewardEntry),
	}
	l.clock.Store(&clockBox{clock})
	if m != nil {
		m.GetPrometheusMetrics().UpdateBurnRate(l.burnRate)
	}
	return l, nil
}

// Events returns the underlying event log
func (l *Ledger) Events() *eventlog.Log {
	return l.events
}

// Config returns the ledger configuration
func (l *Ledger) Config() *Config {
	return l.config
}

func (l *Ledger) now() uint64 {
	return l.clock.Load().Now()
}

// emit appends an event describing the transition about to be applied.
// Callers mutate state only after emit succeeds.
func (l *Ledger) emit(ctx context.Context, typ models.EventType, actor common.Address, ts uint64, payload interface{}) error {
	if l.replaying.Load() {
		return nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return utils.WrapError(utils.ErrCodeInternal, "Failed to encode event payload", err)
	}
	ev, err := l.events.Append(ctx, &models.LedgerEvent{
		Type:      typ,
		Actor:     actor,
		Timestamp: ts,
		Data:      data,
	})
	if err != nil {
		l.logger.WithError(err).WithField("type", typ).Error("Failed to append event")
		return err
	}
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().RecordEventAppended(string(typ), ev.Sequence)
	}
	l.logger.WithFields(logrus.Fields{
		"type":     typ,
		"sequence": ev.Sequence,
		"actor":    actor.Hex(),
	}).Debug("Event appended")
	return nil
}

func (l *Ledger) track(operation string, start time.Time, errp *error) {
	status := "success"
	if errp != nil && *errp != nil {
		status = "error"
		l.logger.WithFields(logrus.Fields{
			"operation": operation,
			"code":      utils.ErrorCode(*errp),
		}).Debug("Operation rejected")
	}
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().RecordLedgerOperation(operation, status, time.Since(start))
	}
}
