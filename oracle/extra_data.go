package oracle

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"

	"github.com/rony4d/go-accounting-oracle/events"
	"github.com/rony4d/go-accounting-oracle/oracle/extradata"
)

// ExtraDataProcessingState tracks delivery of the extra data of the last
// processed main report.
type ExtraDataProcessingState struct {
	RefSlot    uint64
	DataFormat uint64
	Submitted  bool
	// DataHash is the hash the next chunk must have.
	DataHash       common.Hash
	ItemsCount     uint64
	ItemsProcessed uint64
	LastSortingKey extradata.SortingKey
}

func (o *AccountingOracle) ExtraDataProcessingState() ExtraDataProcessingState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.extra
}

// checkCanSubmitExtraData is called with the lock held.
func (o *AccountingOracle) checkCanSubmitExtraData(format uint64) error {
	if err := o.checkProcessingDeadline(); err != nil {
		return err
	}
	st := o.extra
	if !o.hasExtra || st.RefSlot != o.report.RefSlot {
		return ErrCannotSubmitExtraDataBeforeMainData
	}
	if st.DataFormat != format {
		return expectedGot(ErrUnexpectedExtraDataFormat, st.DataFormat, format)
	}
	if st.Submitted {
		return ErrExtraDataAlreadyProcessed
	}
	return nil
}

// SubmitReportExtraDataEmpty finishes a report whose main data declared no
// extra data.
func (o *AccountingOracle) SubmitReportExtraDataEmpty(caller common.Address) error {
	if err := o.checkSenderIsAllowedToSubmitData(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkCanSubmitExtraData(extradata.FormatEmpty); err != nil {
		return err
	}
	if err := o.registry.OnExtraDataReportingFinished(); err != nil {
		return fmt.Errorf("module registry: %w", err)
	}
	o.extra.Submitted = true

	o.log.Debug("Empty extra data submitted", "refSlot", o.extra.RefSlot)
	o.sink.Emit(events.ExtraDataSubmitted{RefSlot: o.extra.RefSlot})
	return nil
}

// SubmitReportExtraDataList delivers one chunk of the extra data. Chunks
// must arrive in order; the first must hash to the value committed in the
// main report and every chunk names the hash of the next one.
func (o *AccountingOracle) SubmitReportExtraDataList(caller common.Address, chunk []byte) error {
	if err := o.checkSenderIsAllowedToSubmitData(caller); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()

	if err := o.checkCanSubmitExtraData(extradata.FormatList); err != nil {
		return err
	}
	st := o.extra
	if st.ItemsProcessed >= st.ItemsCount {
		return ErrExtraDataAlreadyProcessed
	}
	if len(chunk) < extradata.MinChunkSize {
		return fmt.Errorf("%w: item %d: chunk of %d bytes is too short", extradata.ErrInvalidExtraDataItem, st.ItemsProcessed, len(chunk))
	}
	hash := extradata.HashChunk(chunk)
	if hash != st.DataHash {
		return expectedGot(ErrUnexpectedExtraDataHash, st.DataHash.Hex(), hash.Hex())
	}

	decoded, err := extradata.DecodeChunk(chunk, extradata.Cursor{
		ItemsProcessed: st.ItemsProcessed,
		LastSortingKey: st.LastSortingKey,
	})
	if err != nil {
		return err
	}
	if err := o.sanity.CheckNodeOperatorsPerExtraDataItemCount(decoded.MaxNodeOpsIndex, decoded.MaxNodeOps); err != nil {
		return err
	}
	if err := o.sanity.CheckExtraDataItemsCountPerTransaction(uint64(len(decoded.Items))); err != nil {
		return err
	}
	processed := decoded.Cursor.ItemsProcessed
	if decoded.Final() && processed != st.ItemsCount {
		return expectedGot(ErrUnexpectedExtraDataItemsCount, st.ItemsCount, processed)
	}
	if !decoded.Final() && processed >= st.ItemsCount {
		return expectedGot(ErrUnexpectedExtraDataItemsCount, st.ItemsCount, processed)
	}

	for _, it := range decoded.Items {
		if err := o.registry.ApplyExtraDataItem(it); err != nil {
			return fmt.Errorf("module registry: item %d: %w", it.Index, err)
		}
	}
	if decoded.Final() {
		if err := o.registry.OnExtraDataReportingFinished(); err != nil {
			return fmt.Errorf("module registry: %w", err)
		}
	}

	o.extra.ItemsProcessed = processed
	o.extra.LastSortingKey = decoded.Cursor.LastSortingKey
	o.extra.DataHash = decoded.NextHash
	o.extra.Submitted = decoded.Final()

	o.log.Debug("Extra data chunk submitted", "refSlot", st.RefSlot, "items", len(decoded.Items),
		"processed", processed, "total", st.ItemsCount, "final", decoded.Final())
	o.sink.Emit(events.ExtraDataSubmitted{
		RefSlot:        st.RefSlot,
		ItemsProcessed: processed,
		ItemsCount:     st.ItemsCount,
		DataHash:       hash,
	})
	return nil
}
