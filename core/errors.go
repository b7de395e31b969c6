package core

import (
	"errors"
	"fmt"
)

// Precondition violations. Every operation validates its preconditions up
// front and returns one of these without touching state.
var (
	// ErrAuctionClosed rejects bids placed at or after the deadline.
	ErrAuctionClosed = errors.New("auction closed: bidding deadline has passed")

	// ErrBidTooLow rejects bids that do not strictly exceed 105% of the
	// current leading amount.
	ErrBidTooLow = errors.New("bid too low: must exceed 105% of the leading amount")

	// ErrAuctionStillOpen rejects withdrawals and settlement before the deadline.
	ErrAuctionStillOpen = errors.New("auction still open: deadline has not passed")

	// ErrWinnerCannotWithdraw rejects refund withdrawals by the leading bidder;
	// the winning funds are claimed only through settlement.
	ErrWinnerCannotWithdraw = errors.New("winner cannot withdraw: leading bid is claimed via settlement")

	// ErrNothingToWithdraw rejects withdrawals by accounts with a zero refund balance.
	ErrNothingToWithdraw = errors.New("nothing to withdraw: no refund balance for this account")

	// ErrAlreadySettled rejects a second settlement attempt.
	ErrAlreadySettled = errors.New("already settled: settlement has been finalized")

	// ErrNotAuthorized rejects operator-only operations invoked by anyone else.
	ErrNotAuthorized = errors.New("not authorized: operation is restricted to the operator")
)

// TransferStage names the outbound payout leg that failed.
type TransferStage string

const (
	// StageFee is the processing-fee leg of a refund withdrawal.
	StageFee TransferStage = "fee"
	// StageRefund is the net-refund leg of a refund withdrawal.
	StageRefund TransferStage = "refund"
	// StageSettlement is the payout of the winning amount to the beneficiary.
	StageSettlement TransferStage = "settlement"
	// StageEmergency is the operator's full-balance emergency drain.
	StageEmergency TransferStage = "emergency"
)

// TransferError reports a failed outbound value transfer. It is a distinct
// error class from the precondition sentinels so callers can tell "your
// request was invalid" from "the payout could not be delivered, retry later".
// Every state change of the failed operation has been rolled back.
type TransferError struct {
	Stage  TransferStage
	To     string
	Amount uint64
	Err    error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s transfer of %d to %s failed: %v", e.Stage, e.Amount, e.To, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// IsTransferError reports whether err is (or wraps) a failed outbound transfer.
func IsTransferError(err error) bool {
	var te *TransferError
	return errors.As(err, &te)
}
