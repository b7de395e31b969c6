package validation

import (
	"encoding/json"
	"fmt"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi"
)

// ReceiptValidationInput contains all inputs needed for settlement receipt validation
type ReceiptValidationInput struct {
	ReceiptCOSEBase64 ledgerapi.ReceiptCOSEBase64
	AuctionID         string            // Expected auction identifier
	Winner            string            // Expected winner ("" = expect no winner)
	Amount            uint64            // Expected winning amount (0 when no winner expected)
	Refunds           map[string]uint64 // Full refund claim set at settlement; nil = skip the refunds check
}

// ValidateSettlementReceipt validates an attested settlement receipt and verifies:
// - The enclave that produced it ran a known image (PCRs, certificate chain, signature)
// - The settlement commitment recomputes from the disclosed nonce
// - The refund claim commitment recomputes from the disclosed nonce
// - The settled winner and amount match the caller's expectation
//
// Returns:
//   - ReceiptValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateSettlementReceipt(input *ReceiptValidationInput) (*ReceiptValidationResult, error) {
	// Perform common attestation validation (PCRs, certificate, signature)
	baseResult, err := validateCommonAttestation(input.ReceiptCOSEBase64)
	if err != nil {
		return nil, err
	}

	// Parse the receipt to get user data for settlement-specific validation
	receipt, err := parseSettlementReceiptFromCOSE(input.ReceiptCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse settlement receipt: %w", err)
	}

	result := &ReceiptValidationResult{
		BaseValidationResult: *baseResult,
	}

	if receipt.UserData == nil {
		result.SettlementHashValid = false
		result.RefundsHashValid = false
		result.OutcomeValid = false
		result.ValidationDetails = append(result.ValidationDetails, "Receipt user data missing")
		return result, nil
	}

	result.SettlementHashValid = validateSettlementCommitment(receipt, result)
	result.RefundsHashValid = validateRefundsCommitment(input, receipt, result)
	result.OutcomeValid = validateOutcome(input, receipt, result)

	return result, nil
}

// validateSettlementCommitment recomputes the settlement hash from the fields
// and nonce the receipt discloses. A mismatch means the receipt body was
// altered after attestation.
func validateSettlementCommitment(receipt *ledgerapi.SettlementReceiptDoc, result *ReceiptValidationResult) bool {
	nonce := receipt.UserData.SettlementNonce
	if nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Settlement nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeSettlementHash(receipt.UserData.AuctionID, receipt.UserData.Winner, receipt.UserData.Amount, nonce)
	if computedHash == receipt.UserData.SettlementHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash mismatch: computed %s, receipt has %s", computedHash, receipt.UserData.SettlementHash))
	return false
}

func validateRefundsCommitment(input *ReceiptValidationInput, receipt *ledgerapi.SettlementReceiptDoc, result *ReceiptValidationResult) bool {
	if input.Refunds == nil {
		result.ValidationDetails = append(result.ValidationDetails, "Refunds hash not checked: no refund claim set provided")
		return true
	}

	nonce := receipt.UserData.RefundsNonce
	if nonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Refunds nonce missing from receipt")
		return false
	}

	computedHash := core.ComputeRefundsHash(input.Refunds, nonce)
	if computedHash == receipt.UserData.RefundsHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Refunds hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Refunds hash mismatch: computed %s, receipt has %s", computedHash, receipt.UserData.RefundsHash))
	return false
}

func validateOutcome(input *ReceiptValidationInput, receipt *ledgerapi.SettlementReceiptDoc, result *ReceiptValidationResult) bool {
	if input.AuctionID != receipt.UserData.AuctionID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID mismatch: expected %s, receipt has %s", input.AuctionID, receipt.UserData.AuctionID))
		return false
	}

	if input.Winner == "" {
		// Caller expects the auction settled with no bids
		if receipt.UserData.Winner == "" && receipt.UserData.Amount == 0 {
			result.ValidationDetails = append(result.ValidationDetails, "Outcome validation passed: no winner expected and none in receipt")
			return true
		}
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Outcome mismatch: expected no winner, receipt has %s at %d", receipt.UserData.Winner, receipt.UserData.Amount))
		return false
	}

	if input.Winner == receipt.UserData.Winner && input.Amount == receipt.UserData.Amount {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Outcome validation passed: %s won at %d", input.Winner, input.Amount))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Outcome mismatch: expected %s at %d, receipt has %s at %d",
		input.Winner, input.Amount, receipt.UserData.Winner, receipt.UserData.Amount))
	return false
}

// parseSettlementReceiptFromCOSE parses a SettlementReceiptDoc from base64-encoded COSE bytes
// This extracts the attestation document from the COSE_Sign1 payload
func parseSettlementReceiptFromCOSE(receiptCOSEB64 ledgerapi.ReceiptCOSEBase64) (*ledgerapi.SettlementReceiptDoc, error) {
	// Decode base64 COSE bytes
	coseBytes, err := receiptCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	// ParseAttestationDoc internally extracts the COSE_Sign1 payload and parses it
	attestationDoc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}

	var userData ledgerapi.SettlementUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}

	return &ledgerapi.SettlementReceiptDoc{
		AttestationDoc: attestationDoc,
		UserData:       &userData,
	}, nil
}
