package core

import "time"

// AuctionPhase describes where the ledger sits in its lifecycle.
// Phases are derived from the deadline and the settled flag, never stored.
type AuctionPhase string

const (
	// PhaseOpen accepts bids: the current time is before the deadline.
	PhaseOpen AuctionPhase = "open"
	// PhaseClosed rejects bids but has not been settled yet.
	PhaseClosed AuctionPhase = "closed"
	// PhaseSettled is terminal: settlement proceeds have been paid out.
	PhaseSettled AuctionPhase = "settled"
)

// AuctionConfig carries the immutable parameters of a new ledger.
type AuctionConfig struct {
	// AuctionID identifies the ledger in events, snapshots and receipts.
	// Left empty, a random UUID is assigned.
	AuctionID string `json:"auction_id"`

	// Operator is the sole account authorized for settlement and the
	// emergency drain. It also receives the processing fee on refunds.
	Operator string `json:"operator"`

	// Beneficiary receives the winning amount at settlement.
	Beneficiary string `json:"beneficiary"`

	// Deadline is the moment after which new bids are rejected.
	Deadline time.Time `json:"deadline"`
}

// AuctionDetails is the read-only view of the ledger state.
type AuctionDetails struct {
	AuctionID     string    `json:"auction_id"`
	Operator      string    `json:"operator"`
	Beneficiary   string    `json:"beneficiary"`
	LeadingBidder string    `json:"leading_bidder,omitempty"`
	LeadingAmount uint64    `json:"leading_amount"`
	Deadline      time.Time `json:"deadline"`
	Settled       bool      `json:"settled"`
}

// WithdrawReceipt reports how a completed refund withdrawal was split.
// Fee + Net always equals Refund.
type WithdrawReceipt struct {
	Refund uint64 `json:"refund"`
	Fee    uint64 `json:"fee"`
	Net    uint64 `json:"net"`
}
