package core

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ExtensionWindow is the anti-sniping margin: a bid landing within this
// window of the deadline pushes the deadline out by the same amount. The
// extension repeats on every near-deadline bid, without bound.
const ExtensionWindow = 10 * time.Minute

// AuctionLedger owns all durable auction state and issues outbound value
// transfers through its treasury.
//
// Every operation takes the caller identity and the current time explicitly,
// so behavior is fully deterministic under test. Operations assume serial
// top-level execution: the hosting runtime admits one call at a time, and the
// methods hold no lock so that code running inside an outbound transfer can
// legally re-enter them. Reentrant calls observe post-mutation state and are
// rejected by the ordinary preconditions.
type AuctionLedger struct {
	auctionID   string
	operator    string
	beneficiary string

	leadingBidder  string
	leadingAmount  uint64
	deadline       time.Time
	settled        bool
	pendingRefunds map[string]uint64

	treasury Treasury
	sink     EventSink
}

// NewAuctionLedger creates a ledger from its immutable configuration.
func NewAuctionLedger(cfg AuctionConfig, treasury Treasury, sink EventSink) (*AuctionLedger, error) {
	if cfg.Operator == "" {
		return nil, fmt.Errorf("auction config: operator account is required")
	}
	if cfg.Beneficiary == "" {
		return nil, fmt.Errorf("auction config: beneficiary account is required")
	}
	if cfg.Deadline.IsZero() {
		return nil, fmt.Errorf("auction config: deadline is required")
	}
	if treasury == nil {
		return nil, fmt.Errorf("auction config: treasury is required")
	}

	auctionID := cfg.AuctionID
	if auctionID == "" {
		auctionID = uuid.NewString()
	}

	return &AuctionLedger{
		auctionID:      auctionID,
		operator:       cfg.Operator,
		beneficiary:    cfg.Beneficiary,
		deadline:       cfg.Deadline,
		pendingRefunds: make(map[string]uint64),
		treasury:       treasury,
		sink:           sink,
	}, nil
}

// Bid places a competing bid of value by caller. The attached value must
// strictly exceed 105% of the leading amount (any positive value when no bid
// has been placed). The displaced bidder's amount is credited to their
// pending refund balance; a bid landing inside the extension window pushes
// the deadline out. No value leaves the ledger during a bid: the attached
// value stays in custody as the new leading bid.
func (l *AuctionLedger) Bid(caller string, value uint64, now time.Time) error {
	if caller == "" {
		return fmt.Errorf("bid: caller account must not be empty")
	}
	if !now.Before(l.deadline) {
		return ErrAuctionClosed
	}
	if !MinimumRaiseMet(l.leadingAmount, value) {
		return ErrBidTooLow
	}

	l.treasury.Receive(value)

	// Displace the previous leader before anything else so the refund
	// bookkeeping can never be skipped by a later failure.
	prevBidder, prevAmount := l.leadingBidder, l.leadingAmount
	l.leadingBidder, l.leadingAmount = caller, value
	if prevBidder != "" {
		l.pendingRefunds[prevBidder] += prevAmount
	}

	if !now.Before(l.deadline.Add(-ExtensionWindow)) {
		l.deadline = l.deadline.Add(ExtensionWindow)
	}

	l.publish(BidAccepted{
		EventID:   uuid.NewString(),
		AuctionID: l.auctionID,
		Bidder:    caller,
		Amount:    value,
		Deadline:  l.deadline,
		Timestamp: now,
	})
	return nil
}

// WithdrawExcess pays out the caller's pending refund balance, minus the
// operator's processing fee. The balance is zeroed before any transfer is
// issued, so a reentrant call during the payout finds nothing to withdraw.
// On any transfer failure the whole operation rolls back, including the
// zeroing and any transfer leg that had already gone out.
func (l *AuctionLedger) WithdrawExcess(caller string, now time.Time) (WithdrawReceipt, error) {
	if now.Before(l.deadline) {
		return WithdrawReceipt{}, ErrAuctionStillOpen
	}
	if caller == l.leadingBidder {
		return WithdrawReceipt{}, ErrWinnerCannotWithdraw
	}
	refund := l.pendingRefunds[caller]
	if refund == 0 {
		return WithdrawReceipt{}, ErrNothingToWithdraw
	}

	// Effects before interactions: close the reentrancy window.
	delete(l.pendingRefunds, caller)

	fee, net := SplitRefund(refund)
	tx := l.treasury.Begin()

	if fee > 0 {
		if err := tx.Transfer(l.operator, fee); err != nil {
			tx.Abort()
			l.pendingRefunds[caller] += refund
			return WithdrawReceipt{}, &TransferError{Stage: StageFee, To: l.operator, Amount: fee, Err: err}
		}
	}
	if err := tx.Transfer(caller, net); err != nil {
		tx.Abort()
		l.pendingRefunds[caller] += refund
		return WithdrawReceipt{}, &TransferError{Stage: StageRefund, To: caller, Amount: net, Err: err}
	}

	tx.Commit()
	return WithdrawReceipt{Refund: refund, Fee: fee, Net: net}, nil
}

// EndAuction settles the auction: the winning amount goes to the beneficiary
// and the settled flag flips, exactly once. A failed settlement transfer
// rolls the flag back so settlement can be retried.
func (l *AuctionLedger) EndAuction(caller string, now time.Time) error {
	if caller != l.operator {
		return ErrNotAuthorized
	}
	if now.Before(l.deadline) {
		return ErrAuctionStillOpen
	}
	if l.settled {
		return ErrAlreadySettled
	}

	l.settled = true

	if l.leadingAmount > 0 {
		tx := l.treasury.Begin()
		if err := tx.Transfer(l.beneficiary, l.leadingAmount); err != nil {
			tx.Abort()
			l.settled = false
			return &TransferError{Stage: StageSettlement, To: l.beneficiary, Amount: l.leadingAmount, Err: err}
		}
		tx.Commit()
	}

	l.publish(Settlement{
		EventID:   uuid.NewString(),
		AuctionID: l.auctionID,
		Winner:    l.leadingBidder,
		Amount:    l.leadingAmount,
		Timestamp: now,
	})
	return nil
}

// EmergencyWithdraw drains the ledger's entire held balance to the operator
// and returns the drained amount. It is an escape hatch for stuck value that
// bypasses all bidder-claim bookkeeping: pending refund balances are NOT
// zeroed, and once the backing funds are gone those claims are unpayable.
// Use PendingTotal to see how much claim value a drain would strand.
func (l *AuctionLedger) EmergencyWithdraw(caller string) (uint64, error) {
	if caller != l.operator {
		return 0, ErrNotAuthorized
	}

	amount := l.treasury.HeldBalance()
	if amount == 0 {
		return 0, nil
	}

	tx := l.treasury.Begin()
	if err := tx.Transfer(l.operator, amount); err != nil {
		tx.Abort()
		return 0, &TransferError{Stage: StageEmergency, To: l.operator, Amount: amount, Err: err}
	}
	tx.Commit()
	return amount, nil
}

// Details returns a copy of the ledger's durable state.
func (l *AuctionLedger) Details() AuctionDetails {
	return AuctionDetails{
		AuctionID:     l.auctionID,
		Operator:      l.operator,
		Beneficiary:   l.beneficiary,
		LeadingBidder: l.leadingBidder,
		LeadingAmount: l.leadingAmount,
		Deadline:      l.deadline,
		Settled:       l.settled,
	}
}

// Deposit returns the pending refund balance of an account. Zero means no
// outstanding claim.
func (l *AuctionLedger) Deposit(account string) uint64 {
	return l.pendingRefunds[account]
}

// PendingTotal returns the sum of all outstanding refund claims.
func (l *AuctionLedger) PendingTotal() uint64 {
	var total uint64
	for _, amount := range l.pendingRefunds {
		total += amount
	}
	return total
}

// Phase derives the lifecycle phase at the given time.
func (l *AuctionLedger) Phase(now time.Time) AuctionPhase {
	switch {
	case l.settled:
		return PhaseSettled
	case now.Before(l.deadline):
		return PhaseOpen
	default:
		return PhaseClosed
	}
}

func (l *AuctionLedger) publish(event Event) {
	if l.sink != nil {
		l.sink.Publish(event)
	}
}
