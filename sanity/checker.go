// Package sanity holds the reference implementation of the numeric bounds
// the accounting oracle asks about before it applies anything.
package sanity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/log"

	"github.com/rony4d/go-accounting-oracle/oracle"
)

var (
	ErrExitedValidatorsLimitExceeded       = errors.New("exited validators limit exceeded")
	ErrTooManyItemsPerExtraDataTransaction = errors.New("too many items per extra data transaction")
	ErrTooManyNodeOpsPerExtraDataItem      = errors.New("too many node operators per extra data item")
	ErrIncorrectFinalizationBatches        = errors.New("incorrect withdrawal finalization batches")
	ErrIncorrectSimulatedShareRate         = errors.New("incorrect simulated share rate")
)

// Limits bounds what one report may change. A zero limit is not enforced.
//
// ExitedValidatorsPerDayLimit caps the newly exited validators per day,
// extrapolated from the time elapsed since the previous report. The other two
// cap the items of one extra data chunk and the node operators of one item.
type Limits struct {
	ExitedValidatorsPerDayLimit      uint64 `yaml:"exitedValidatorsPerDayLimit" json:"exitedValidatorsPerDayLimit"`
	MaxItemsPerExtraDataTransaction  uint64 `yaml:"maxItemsPerExtraDataTransaction" json:"maxItemsPerExtraDataTransaction"`
	MaxNodeOperatorsPerExtraDataItem uint64 `yaml:"maxNodeOperatorsPerExtraDataItem" json:"maxNodeOperatorsPerExtraDataItem"`
}

// DefaultLimits are the bounds production networks start with.
func DefaultLimits() Limits {
	return Limits{
		ExitedValidatorsPerDayLimit:      9000,
		MaxItemsPerExtraDataTransaction:  8,
		MaxNodeOperatorsPerExtraDataItem: 100,
	}
}

// Checker implements oracle.SanityChecker. Limits may be changed while the
// oracle runs.
type Checker struct {
	mu     sync.RWMutex
	limits Limits
	log    log.Logger
}

var _ oracle.SanityChecker = (*Checker)(nil)

func NewChecker(limits Limits) *Checker {
	return &Checker{limits: limits, log: log.New("module", "sanity")}
}

func (c *Checker) Limits() Limits {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limits
}

func (c *Checker) SetLimits(limits Limits) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Info("Sanity limits changed", "prev", fmt.Sprintf("%+v", c.limits), "new", fmt.Sprintf("%+v", limits))
	c.limits = limits
}

// CheckAccountingReport rejects finalization batches that are not strictly
// increasing, and batches submitted without a share rate to finalize them
// at.
func (c *Checker) CheckAccountingReport(r oracle.AccountingReport) error {
	batches := r.WithdrawalFinalizationBatches
	for i := 1; i < len(batches); i++ {
		if batches[i] <= batches[i-1] {
			return fmt.Errorf("%w: batch %d (%d) not above %d", ErrIncorrectFinalizationBatches, i, batches[i], batches[i-1])
		}
	}
	if len(batches) != 0 && (r.SimulatedShareRate == nil || r.SimulatedShareRate.Sign() == 0) {
		return fmt.Errorf("%w: zero rate with %d finalization batches", ErrIncorrectSimulatedShareRate, len(batches))
	}
	return nil
}

func (c *Checker) CheckExitedValidatorsRatePerDay(rate uint64) error {
	if limit := c.Limits().ExitedValidatorsPerDayLimit; limit != 0 && rate > limit {
		return fmt.Errorf("%w: %d per day, limit %d", ErrExitedValidatorsLimitExceeded, rate, limit)
	}
	return nil
}

func (c *Checker) CheckExtraDataItemsCountPerTransaction(count uint64) error {
	if limit := c.Limits().MaxItemsPerExtraDataTransaction; limit != 0 && count > limit {
		return fmt.Errorf("%w: %d items, limit %d", ErrTooManyItemsPerExtraDataTransaction, count, limit)
	}
	return nil
}

func (c *Checker) CheckNodeOperatorsPerExtraDataItemCount(itemIndex, count uint64) error {
	if limit := c.Limits().MaxNodeOperatorsPerExtraDataItem; limit != 0 && count > limit {
		return fmt.Errorf("%w: item %d has %d, limit %d", ErrTooManyNodeOpsPerExtraDataItem, itemIndex, count, limit)
	}
	return nil
}
