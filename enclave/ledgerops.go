package main

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi"
)

// errorKind maps ledger errors to the stable kind strings of the wire
// protocol, so callers can distinguish invalid requests from payouts that
// could not be delivered.
func errorKind(err error) string {
	switch {
	case errors.Is(err, core.ErrAuctionClosed):
		return "auction_closed"
	case errors.Is(err, core.ErrBidTooLow):
		return "bid_too_low"
	case errors.Is(err, core.ErrAuctionStillOpen):
		return "auction_still_open"
	case errors.Is(err, core.ErrWinnerCannotWithdraw):
		return "winner_cannot_withdraw"
	case errors.Is(err, core.ErrNothingToWithdraw):
		return "nothing_to_withdraw"
	case errors.Is(err, core.ErrAlreadySettled):
		return "already_settled"
	case errors.Is(err, core.ErrNotAuthorized):
		return "not_authorized"
	}

	var transferErr *core.TransferError
	if errors.As(err, &transferErr) {
		return fmt.Sprintf("%s_transfer_failed", transferErr.Stage)
	}
	return "invalid_request"
}

func failure(responseType string, err error) ledgerapi.OpResponse {
	return ledgerapi.OpResponse{
		Type:      responseType,
		Success:   false,
		Message:   err.Error(),
		ErrorKind: errorKind(err),
	}
}

func success(responseType, message string) ledgerapi.OpResponse {
	return ledgerapi.OpResponse{
		Type:    responseType,
		Success: true,
		Message: message,
	}
}

func (s *EnclaveServer) handleBid(req ledgerapi.BidRequest, now time.Time) ledgerapi.BidResponse {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastEvent = nil

	if err := s.ledger.Bid(req.Bidder, req.Value, now); err != nil {
		log.Printf("INFO: Bid by %s for %d rejected: %v", req.Bidder, req.Value, err)
		return ledgerapi.BidResponse{OpResponse: failure("bid_response", err)}
	}
	s.persistLocked()

	details := s.ledger.Details()
	resp := ledgerapi.BidResponse{
		OpResponse:    success("bid_response", fmt.Sprintf("bid of %d accepted", req.Value)),
		LeadingAmount: details.LeadingAmount,
		Deadline:      details.Deadline,
	}
	if accepted, ok := s.lastEvent.(core.BidAccepted); ok {
		resp.EventID = accepted.EventID
	}
	return resp
}

func (s *EnclaveServer) handleWithdraw(req ledgerapi.WithdrawRequest, now time.Time) ledgerapi.WithdrawResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.ledger.WithdrawExcess(req.Caller, now)
	if err != nil {
		log.Printf("INFO: Withdrawal by %s rejected: %v", req.Caller, err)
		return ledgerapi.WithdrawResponse{OpResponse: failure("withdraw_response", err)}
	}
	s.persistLocked()

	return ledgerapi.WithdrawResponse{
		OpResponse: success("withdraw_response", fmt.Sprintf("refund of %d paid out (%d fee)", receipt.Refund, receipt.Fee)),
		Refund:     receipt.Refund,
		Fee:        receipt.Fee,
		Net:        receipt.Net,
	}
}

func (s *EnclaveServer) handleSettle(req ledgerapi.SettleRequest, now time.Time) ledgerapi.SettleResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.ledger.EndAuction(req.Caller, now); err != nil {
		log.Printf("INFO: Settlement by %s rejected: %v", req.Caller, err)
		return ledgerapi.SettleResponse{OpResponse: failure("settle_response", err)}
	}
	s.persistLocked()

	details := s.ledger.Details()
	resp := ledgerapi.SettleResponse{
		OpResponse: success("settle_response", fmt.Sprintf("settled %d to %s", details.LeadingAmount, details.Beneficiary)),
		Winner:     details.LeadingBidder,
		Amount:     details.LeadingAmount,
	}

	attester, err := s.attester()
	if err != nil {
		log.Printf("ERROR: Settlement receipt skipped, no attester: %v", err)
		resp.Message = "settled without attested receipt"
		return resp
	}
	receiptCOSE, err := GenerateSettlementReceipt(attester, details, s.ledger.PendingRefunds())
	if err != nil {
		log.Printf("ERROR: Settlement receipt generation failed: %v", err)
		resp.Message = "settled without attested receipt"
		return resp
	}
	resp.Receipt = &ledgerapi.SettlementReceipt{ReceiptCOSEBase64: receiptCOSE.EncodeBase64()}
	return resp
}

func (s *EnclaveServer) handleEmergencyWithdraw(req ledgerapi.EmergencyWithdrawRequest) ledgerapi.EmergencyWithdrawResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	drained, err := s.ledger.EmergencyWithdraw(req.Caller)
	if err != nil {
		log.Printf("INFO: Emergency withdrawal by %s rejected: %v", req.Caller, err)
		return ledgerapi.EmergencyWithdrawResponse{OpResponse: failure("emergency_withdraw_response", err)}
	}
	s.persistLocked()

	unbacked := s.ledger.PendingTotal()
	if unbacked > 0 {
		log.Printf("WARNING: Emergency drain of %d leaves %d in refund claims permanently unbacked", drained, unbacked)
	}

	return ledgerapi.EmergencyWithdrawResponse{
		OpResponse:     success("emergency_withdraw_response", fmt.Sprintf("drained %d to operator", drained)),
		Drained:        drained,
		UnbackedClaims: unbacked,
	}
}

func (s *EnclaveServer) handleDetails(req ledgerapi.DetailsRequest, now time.Time) ledgerapi.DetailsResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ledgerapi.DetailsResponse{
		OpResponse: success("details_response", ""),
		Details:    s.ledger.Details(),
		Phase:      s.ledger.Phase(now),
	}
}

func (s *EnclaveServer) handleDeposit(req ledgerapi.DepositRequest) ledgerapi.DepositResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	return ledgerapi.DepositResponse{
		OpResponse: success("deposit_response", ""),
		Account:    req.Account,
		Amount:     s.ledger.Deposit(req.Account),
	}
}

// persistLocked snapshots the ledger after a committed mutation. Persistence
// failures are logged, not surfaced: the operation itself has already
// committed and the next successful save supersedes this one.
func (s *EnclaveServer) persistLocked() {
	if s.store == nil {
		return
	}
	snapshot, err := s.ledger.Snapshot()
	if err != nil {
		log.Printf("ERROR: Failed to encode ledger snapshot: %v", err)
		return
	}
	if err := s.store.Save(snapshot); err != nil {
		log.Printf("ERROR: Failed to save ledger snapshot: %v", err)
	}
}
