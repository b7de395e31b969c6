package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/google/uuid"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// GenerateSettlementReceipt attests the settlement outcome. The receipt
// commits to the winner and amount directly and to the full set of
// outstanding refund claims through a nonce-keyed hash, so a displaced bidder
// can later prove what the ledger owed them at settlement time.
func GenerateSettlementReceipt(attester EnclaveAttester, details core.AuctionDetails, refunds map[string]uint64) (ledgerapi.ReceiptCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	settlementNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement nonce: %w", err)
	}
	refundsNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate refunds nonce: %w", err)
	}

	userData := &ledgerapi.SettlementUserData{
		ReceiptID:       uuid.NewString(),
		AuctionID:       details.AuctionID,
		Winner:          details.LeadingBidder,
		Amount:          details.LeadingAmount,
		SettlementHash:  core.ComputeSettlementHash(details.AuctionID, details.LeadingBidder, details.LeadingAmount, settlementNonce),
		SettlementNonce: settlementNonce,
		RefundsHash:     core.ComputeRefundsHash(refunds, refundsNonce),
		RefundsNonce:    refundsNonce,
		Timestamp:       time.Now().UTC(),
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal receipt user data: %w", err)
	}

	attestationNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	receiptCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(attestationNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: Settlement receipt attested: %d bytes", len(receiptCBOR))
	return ledgerapi.ReceiptCOSE(receiptCBOR), nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
// crypto/rand uses the NSM-enhanced kernel entropy pool inside the enclave
// and the standard pool elsewhere.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}
