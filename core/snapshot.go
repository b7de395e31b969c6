package core

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// Snapshot is the durable CBOR form of the ledger state, used to carry the
// ledger across enclave restarts. It captures exactly the persistent fields;
// the treasury and event sink are reattached on restore.
type Snapshot struct {
	AuctionID      string            `cbor:"auction_id"`
	Operator       string            `cbor:"operator"`
	Beneficiary    string            `cbor:"beneficiary"`
	LeadingBidder  string            `cbor:"leading_bidder"`
	LeadingAmount  uint64            `cbor:"leading_amount"`
	DeadlineUnix   int64             `cbor:"deadline_unix_nano"`
	Settled        bool              `cbor:"settled"`
	PendingRefunds map[string]uint64 `cbor:"pending_refunds"`
}

// Snapshot encodes the ledger's durable state as CBOR.
func (l *AuctionLedger) Snapshot() ([]byte, error) {
	snap := Snapshot{
		AuctionID:      l.auctionID,
		Operator:       l.operator,
		Beneficiary:    l.beneficiary,
		LeadingBidder:  l.leadingBidder,
		LeadingAmount:  l.leadingAmount,
		DeadlineUnix:   l.deadline.UnixNano(),
		Settled:        l.settled,
		PendingRefunds: l.PendingRefunds(),
	}
	data, err := cbor.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode ledger snapshot: %w", err)
	}
	return data, nil
}

// RestoreLedger rebuilds a ledger from a CBOR snapshot, reattaching the
// treasury and event sink supplied by the hosting runtime.
func RestoreLedger(data []byte, treasury Treasury, sink EventSink) (*AuctionLedger, error) {
	var snap Snapshot
	if err := cbor.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode ledger snapshot: %w", err)
	}
	if snap.Operator == "" || snap.Beneficiary == "" {
		return nil, fmt.Errorf("ledger snapshot missing operator or beneficiary")
	}
	if treasury == nil {
		return nil, fmt.Errorf("restore ledger: treasury is required")
	}

	refunds := snap.PendingRefunds
	if refunds == nil {
		refunds = make(map[string]uint64)
	}

	return &AuctionLedger{
		auctionID:      snap.AuctionID,
		operator:       snap.Operator,
		beneficiary:    snap.Beneficiary,
		leadingBidder:  snap.LeadingBidder,
		leadingAmount:  snap.LeadingAmount,
		deadline:       time.Unix(0, snap.DeadlineUnix),
		settled:        snap.Settled,
		pendingRefunds: refunds,
		treasury:       treasury,
		sink:           sink,
	}, nil
}
