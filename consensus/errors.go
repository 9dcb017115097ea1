package consensus

import "errors"

var (
	// membership
	ErrDuplicateMember     = errors.New("duplicate member")
	ErrAddressCannotBeZero = errors.New("address cannot be zero")
	ErrNonMember           = errors.New("non member")

	// voting
	ErrEmptyReport                                         = errors.New("empty report")
	ErrInvalidSlot                                         = errors.New("invalid slot")
	ErrNonFastLaneMemberCannotReportWithinFastLaneInterval = errors.New("non fast lane member cannot report within fast lane interval")
	ErrUnexpectedConsensusVersion                          = errors.New("unexpected consensus version")
	ErrDuplicateReport                                     = errors.New("duplicate report")
	ErrConsensusReportAlreadyProcessing                    = errors.New("consensus report already processing")
	ErrRefSlotMustBeGreaterThanProcessingOne               = errors.New("ref slot must be greater than processing one")

	// frame config
	ErrInitialEpochAlreadyArrived                           = errors.New("initial epoch already arrived")
	ErrInitialEpochRefSlotCannotBeEarlierThanProcessingSlot = errors.New("initial epoch ref slot cannot be earlier than processing slot")

	// report processor
	ErrReportProcessorCannotBeZero = errors.New("report processor cannot be zero")
	ErrNewProcessorCannotBeTheSame = errors.New("new processor cannot be the same")
)
