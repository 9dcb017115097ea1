package integration

import (
	"errors"
	"fmt"
	"sync"

	"github.com/rony4d/go-accounting-oracle/oracle"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

var (
	ErrExitedCountDecreased     = errors.New("exited validators count cannot decrease")
	ErrReportTimestampDecreased = errors.New("report timestamp cannot decrease")
)

type operatorKey struct {
	itemType uint16
	moduleID uint32
	nodeOpID uint64
}

// Ledger is an in-memory system of record. It plays the balance, the staking
// module registry and the withdrawal queue for in-process networks.
type Ledger struct {
	mu sync.Mutex

	reports       []oracle.AccountingReport
	exited        map[uint64]uint64
	operators     map[operatorKey]uint64
	extraFinished int

	bunker        bool
	lastTimestamp uint64
}

var (
	_ oracle.Balance        = (*Ledger)(nil)
	_ oracle.ModuleRegistry = (*Ledger)(nil)
	_ oracle.Withdrawal     = (*Ledger)(nil)
)

func NewLedger() *Ledger {
	return &Ledger{
		exited:    make(map[uint64]uint64),
		operators: make(map[operatorKey]uint64),
	}
}

// CheckReport accepts every report; the oracle has already checked it.
func (l *Ledger) CheckReport(oracle.AccountingReport) error {
	return nil
}

func (l *Ledger) ApplyReport(r oracle.AccountingReport) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.reports = append(l.reports, r)
	return nil
}

func (l *Ledger) NewlyExitedValidatorsCount(moduleIDs, counts []uint64) (uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n uint64
	for i, id := range moduleIDs {
		prev := l.exited[id]
		if counts[i] < prev {
			return 0, fmt.Errorf("%w: module %d from %d to %d", ErrExitedCountDecreased, id, prev, counts[i])
		}
		n += counts[i] - prev
	}
	return n, nil
}

func (l *Ledger) UpdateExitedCounts(moduleIDs, counts []uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, id := range moduleIDs {
		if counts[i] < l.exited[id] {
			return fmt.Errorf("%w: module %d from %d to %d", ErrExitedCountDecreased, id, l.exited[id], counts[i])
		}
	}
	for i, id := range moduleIDs {
		l.exited[id] = counts[i]
	}
	return nil
}

func (l *Ledger) ApplyExtraDataItem(it extradata.Item) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, op := range it.NodeOperatorIDs {
		key := operatorKey{itemType: it.Type, moduleID: it.ModuleID, nodeOpID: op}
		if it.Type == extradata.TypeExitedValidators && it.KeyCounts[i] < l.operators[key] {
			return fmt.Errorf("%w: module %d operator %d", ErrExitedCountDecreased, it.ModuleID, op)
		}
	}
	for i, op := range it.NodeOperatorIDs {
		l.operators[operatorKey{itemType: it.Type, moduleID: it.ModuleID, nodeOpID: op}] = it.KeyCounts[i]
	}
	return nil
}

func (l *Ledger) OnExtraDataReportingFinished() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.extraFinished++
	return nil
}

func (l *Ledger) CheckOnReport(_ bool, _, currentTimestamp uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if currentTimestamp < l.lastTimestamp {
		return fmt.Errorf("%w: from %d to %d", ErrReportTimestampDecreased, l.lastTimestamp, currentTimestamp)
	}
	return nil
}

func (l *Ledger) OnReport(isBunkerMode bool, _, currentTimestamp uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bunker = isBunkerMode
	l.lastTimestamp = currentTimestamp
	return nil
}

// Reports returns every applied accounting report.
func (l *Ledger) Reports() []oracle.AccountingReport {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]oracle.AccountingReport(nil), l.reports...)
}

func (l *Ledger) ExitedValidators(moduleID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exited[moduleID]
}

// OperatorKeys returns the stuck or exited key count of a node operator.
func (l *Ledger) OperatorKeys(itemType uint16, moduleID uint32, nodeOpID uint64) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.operators[operatorKey{itemType: itemType, moduleID: moduleID, nodeOpID: nodeOpID}]
}

// FinishedExtraData is the number of reports whose extra data was fully
// delivered.
func (l *Ledger) FinishedExtraData() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.extraFinished
}

func (l *Ledger) BunkerMode() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bunker
}

// LastReportTimestamp is the timestamp of the last report seen by the
// withdrawal queue.
func (l *Ledger) LastReportTimestamp() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastTimestamp
}
