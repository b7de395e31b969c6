package core

import (
	"crypto/sha256"
	"fmt"
	"sort"
)

// ComputeSettlementHash computes the canonical hash of a settlement outcome.
// Used by both the enclave (to generate receipts) and validation (to verify
// them), so the formula must stay in lockstep on both sides.
//
// Formula: SHA256(auction_id + "|" + winner + "|" + amount + "|" + nonce)
func ComputeSettlementHash(auctionID, winner string, amount uint64, nonce string) string {
	data := fmt.Sprintf("%s|%s|%d|%s", auctionID, winner, amount, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeRefundsHash computes the canonical hash of the outstanding refund
// claims at settlement time, committing the receipt to the full set of
// displaced bidders.
//
// Formula: SHA256(nonce + "|" + sorted_account_amount_pairs)
// where sorted_account_amount_pairs = "acct1:amt1|acct2:amt2|..." sorted by account.
func ComputeRefundsHash(refunds map[string]uint64, nonce string) string {
	data := nonce

	accounts := make([]string, 0, len(refunds))
	for account := range refunds {
		accounts = append(accounts, account)
	}
	sort.Strings(accounts)

	for _, account := range accounts {
		data += fmt.Sprintf("|%s:%d", account, refunds[account])
	}
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// PendingRefunds returns a copy of the outstanding refund claims, for
// inclusion in settlement receipts.
func (l *AuctionLedger) PendingRefunds() map[string]uint64 {
	refunds := make(map[string]uint64, len(l.pendingRefunds))
	for account, amount := range l.pendingRefunds {
		refunds[account] = amount
	}
	return refunds
}
