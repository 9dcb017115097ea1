package oracle

import (
	"errors"
	"fmt"
)

// Authorization.
var (
	ErrSenderNotAllowed                = errors.New("sender not allowed")
	ErrSenderIsNotTheConsensusContract = errors.New("sender is not the consensus contract")
)

// Staleness and ordering.
var (
	ErrRefSlotCannotDecrease                       = errors.New("ref slot cannot decrease")
	ErrRefSlotMustBeGreaterThanProcessingOne       = errors.New("ref slot must be greater than processing one")
	ErrRefSlotAlreadyProcessing                    = errors.New("ref slot already processing")
	ErrNoConsensusReportToProcess                  = errors.New("no consensus report to process")
	ErrUnexpectedRefSlot                           = errors.New("unexpected ref slot")
	ErrUnexpectedContractVersion                   = errors.New("unexpected contract version")
	ErrUnexpectedConsensusVersion                  = errors.New("unexpected consensus version")
	ErrInitialRefSlotCannotBeLessThanProcessingOne = errors.New("initial ref slot cannot be less than processing one")
	ErrCannotSubmitExtraDataBeforeMainData         = errors.New("cannot submit extra data before main data")
	ErrExtraDataAlreadyProcessed                   = errors.New("extra data already processed")
)

// Integrity.
var (
	ErrHashCannotBeZero          = errors.New("hash cannot be zero")
	ErrUnexpectedDataHash        = errors.New("unexpected data hash")
	ErrUnexpectedExtraDataHash   = errors.New("unexpected extra data hash")
	ErrUnexpectedExtraDataFormat = errors.New("unexpected extra data format")
)

// Malformed report contents.
var (
	ErrInvalidReportData                              = errors.New("invalid report data")
	ErrInvalidExitedValidatorsData                    = errors.New("invalid exited validators data")
	ErrUnsupportedExtraDataFormat                     = errors.New("unsupported extra data format")
	ErrUnexpectedExtraDataItemsCount                  = errors.New("unexpected extra data items count")
	ErrExtraDataItemsCountCannotBeZeroForNonEmptyData = errors.New("extra data items count cannot be zero for non-empty data")
	ErrExtraDataHashCannotBeZeroForNonEmptyData       = errors.New("extra data hash cannot be zero for non-empty data")
)

// Deadlines.
var ErrProcessingDeadlineMissed = errors.New("processing deadline missed")

// Configuration and binding.
var (
	ErrUnexpectedChainConfig    = errors.New("unexpected chain config")
	ErrAddressCannotBeZero      = errors.New("address cannot be zero")
	ErrAddressCannotBeSame      = errors.New("address cannot be same")
	ErrVersionCannotBeSame      = errors.New("version cannot be same")
	ErrIncorrectOracleMigration = errors.New("incorrect oracle migration")
	ErrAlreadyInitialized       = errors.New("already initialized")
	ErrMissingCollaborator      = errors.New("missing collaborator")
)

// MigrationCode tells which legacy oracle check failed.
type MigrationCode uint8

const (
	MigrationChainConfigMismatch MigrationCode = iota
	MigrationFrameSizeMismatch
	MigrationInitialEpochMisaligned
)

func (c MigrationCode) String() string {
	switch c {
	case MigrationChainConfigMismatch:
		return "chain config mismatch"
	case MigrationFrameSizeMismatch:
		return "frame size mismatch"
	case MigrationInitialEpochMisaligned:
		return "initial epoch misaligned"
	}
	return "unknown"
}

// MigrationError is returned by Initialize when the legacy oracle does not
// line up with the committee. It matches ErrIncorrectOracleMigration.
type MigrationError struct {
	Code MigrationCode
}

func (e *MigrationError) Error() string {
	return fmt.Sprintf("%v(%d): %v", ErrIncorrectOracleMigration, e.Code, e.Code)
}

func (e *MigrationError) Unwrap() error {
	return ErrIncorrectOracleMigration
}

func expectedGot(err error, expected, got interface{}) error {
	return fmt.Errorf("%w: expected %v, got %v", err, expected, got)
}
