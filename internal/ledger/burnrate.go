package ledger

import (
	"context"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/sirupsen/logrus"

	"github.com/smartdevs17/govledger/internal/models"
)

const maxBurnRate = 100

// adjustedBurnRate scales base by pressure percent, capped at 100.
// Pressure above 100 saturates the rate.
func adjustedBurnRate(base, pressure uint64) uint64 {
	if pressure > maxBurnRate {
		return maxBurnRate
	}
	rate := base + base*pressure/100
	if rate > maxBurnRate {
		return maxBurnRate
	}
	return rate
}

// UpdateEnvironmentalPressure recomputes the burn rate from an
// environmental pressure reading and returns the new rate.
func (l *Ledger) UpdateEnvironmentalPressure(ctx context.Context, actor common.Address, pressure uint64) (rate uint64, err error) {
	defer l.track("update_pressure", time.Now(), &err)

	l.burnMu.Lock()
	defer l.burnMu.Unlock()

	now := l.now()
	rate = adjustedBurnRate(l.baseBurnRate, pressure)
	if err := l.emit(ctx, models.EventBurnRateUpdated, actor, now, &BurnRatePayload{
		Pressure: pressure,
		Rate:     rate,
	}); err != nil {
		return 0, err
	}

	old := l.burnRate
	l.burnRate = rate
	l.pressure = pressure
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().UpdateBurnRate(rate)
	}
	l.logger.WithFields(logrus.Fields{
		"pressure": pressure,
		"old_rate": old,
		"new_rate": rate,
	}).Info("Burn rate updated")
	return rate, nil
}

// SetBaseBurnRate changes the base rate used for future pressure updates.
// The effective rate is recomputed from the last pressure reading.
func (l *Ledger) SetBaseBurnRate(ctx context.Context, actor common.Address, base uint64) (err error) {
	defer l.track("set_base_burn_rate", time.Now(), &err)

	if base > maxBurnRate {
		return validationError("Base burn rate must be at most 100")
	}

	l.burnMu.Lock()
	defer l.burnMu.Unlock()

	now := l.now()
	if err := l.emit(ctx, models.EventBaseBurnRateSet, actor, now, &BaseBurnRatePayload{Rate: base}); err != nil {
		return err
	}
	l.baseBurnRate = base
	l.burnRate = adjustedBurnRate(base, l.pressure)
	if l.metrics != nil {
		l.metrics.GetPrometheusMetrics().UpdateBurnRate(l.burnRate)
	}
	return nil
}

// BurnRate returns the current effective burn rate
func (l *Ledger) BurnRate() uint64 {
	l.burnMu.RLock()
	defer l.burnMu.RUnlock()
	return l.burnRate
}

// BaseBurnRate returns the configured base burn rate
func (l *Ledger) BaseBurnRate() uint64 {
	l.burnMu.RLock()
	defer l.burnMu.RUnlock()
	return l.baseBurnRate
}
