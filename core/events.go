package core

import "time"

// Event is a notification emitted by the ledger after an operation commits.
// An off-process listener drives delivery of the auctioned good from these.
type Event interface {
	Kind() string
}

// BidAccepted is emitted when a bid takes the lead.
type BidAccepted struct {
	EventID   string    `json:"event_id"`
	AuctionID string    `json:"auction_id"`
	Bidder    string    `json:"bidder"`
	Amount    uint64    `json:"amount"`
	// Deadline is the bidding deadline after any anti-sniping extension
	// this bid triggered.
	Deadline  time.Time `json:"deadline"`
	Timestamp time.Time `json:"timestamp"`
}

func (BidAccepted) Kind() string { return "bid_accepted" }

// Settlement is emitted when the auction is settled.
type Settlement struct {
	EventID   string    `json:"event_id"`
	AuctionID string    `json:"auction_id"`
	Winner    string    `json:"winner,omitempty"`
	Amount    uint64    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
}

func (Settlement) Kind() string { return "settlement" }

// EventSink receives ledger notifications. Events are published only for
// operations that commit; a rolled-back settlement emits nothing.
type EventSink interface {
	Publish(event Event)
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(event Event)

// Publish implements EventSink.
func (f EventSinkFunc) Publish(event Event) { f(event) }
