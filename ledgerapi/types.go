package ledgerapi

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi/parsing"
)

// Request type strings, dispatched on the "type" field of every request.
const (
	TypePing      = "ping"
	TypeBid       = "bid"
	TypeWithdraw  = "withdraw"
	TypeSettle    = "settle"
	TypeEmergency = "emergency_withdraw"
	TypeDetails   = "details"
	TypeDeposit   = "deposit"
)

// BidRequest places a bid. Value is the attached value the runtime has
// already collected from the bidder.
type BidRequest struct {
	Type   string `json:"type"`
	Bidder string `json:"bidder"`
	Value  uint64 `json:"value"`
}

// WithdrawRequest claims the caller's pending refund balance.
type WithdrawRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
}

// SettleRequest finalizes the auction. Operator only.
type SettleRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
}

// EmergencyWithdrawRequest drains the full held balance. Operator only.
type EmergencyWithdrawRequest struct {
	Type   string `json:"type"`
	Caller string `json:"caller"`
}

// DetailsRequest reads the ledger state.
type DetailsRequest struct {
	Type string `json:"type"`
}

// DepositRequest reads one account's pending refund balance.
type DepositRequest struct {
	Type    string `json:"type"`
	Account string `json:"account"`
}

// OpResponse is the common envelope of every operation response. ErrorKind
// carries a stable machine-readable kind string when Success is false.
type OpResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	ErrorKind string `json:"error_kind,omitempty"`
}

// BidResponse reports an accepted bid and the possibly-extended deadline.
type BidResponse struct {
	OpResponse
	EventID       string    `json:"event_id,omitempty"`
	LeadingAmount uint64    `json:"leading_amount,omitempty"`
	Deadline      time.Time `json:"deadline"`
}

// WithdrawResponse reports a completed refund split.
type WithdrawResponse struct {
	OpResponse
	Refund uint64 `json:"refund,omitempty"`
	Fee    uint64 `json:"fee,omitempty"`
	Net    uint64 `json:"net,omitempty"`
}

// SettleResponse reports a finalized settlement, including the attested
// receipt when the enclave attester is available.
type SettleResponse struct {
	OpResponse
	Winner  string             `json:"winner,omitempty"`
	Amount  uint64             `json:"amount,omitempty"`
	Receipt *SettlementReceipt `json:"receipt,omitempty"`
}

// EmergencyWithdrawResponse reports a completed drain. UnbackedClaims is the
// total refund claim value left stranded by the drain; anything above zero
// means displaced bidders can no longer be paid.
type EmergencyWithdrawResponse struct {
	OpResponse
	Drained        uint64 `json:"drained"`
	UnbackedClaims uint64 `json:"unbacked_claims"`
}

// DetailsResponse returns the ledger state and its derived phase.
type DetailsResponse struct {
	OpResponse
	Details core.AuctionDetails `json:"details"`
	Phase   core.AuctionPhase   `json:"phase"`
}

// DepositResponse returns one account's pending refund balance.
type DepositResponse struct {
	OpResponse
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// SettlementUserData is the receipt payload the enclave embeds in the
// attestation document at settlement.
type SettlementUserData struct {
	ReceiptID       string    `json:"receipt_id"`
	AuctionID       string    `json:"auction_id"`
	Winner          string    `json:"winner,omitempty"`
	Amount          uint64    `json:"amount"`
	SettlementHash  string    `json:"settlement_hash"`
	SettlementNonce string    `json:"settlement_nonce"`
	RefundsHash     string    `json:"refunds_hash"`
	RefundsNonce    string    `json:"refunds_nonce"`
	Timestamp       time.Time `json:"timestamp"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc is the structured form of a Nitro attestation document.
type AttestationDoc struct {
	ModuleID        string    `json:"module_id"`
	Timestamp       time.Time `json:"timestamp"`
	DigestAlgorithm string    `json:"digest"`
	PCRs            PCRs      `json:"pcrs"`
	Certificate     string    `json:"certificate"`
	CABundle        []string  `json:"cabundle"`
	PublicKey       string    `json:"public_key"`
	Nonce           string    `json:"nonce"`
}

// SettlementReceiptDoc pairs the attestation document with the parsed
// settlement payload it attests to.
type SettlementReceiptDoc struct {
	AttestationDoc
	UserData *SettlementUserData `json:"user_data"`
}

// ReceiptCOSE holds raw COSE_Sign1 bytes of an attested settlement receipt.
type ReceiptCOSE []byte

// EncodeBase64 encodes the raw COSE bytes for JSON transport.
func (r ReceiptCOSE) EncodeBase64() ReceiptCOSEBase64 {
	return ReceiptCOSEBase64(base64.StdEncoding.EncodeToString(r))
}

// ParseAttestationDoc extracts the attestation document from the COSE_Sign1
// payload and returns it with the embedded user data bytes.
func (r ReceiptCOSE) ParseAttestationDoc() (AttestationDoc, []byte, error) {
	payload, err := parsing.ExtractCOSEPayload(r)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	raw, err := parsing.ParseNitroDocument(payload)
	if err != nil {
		return AttestationDoc{}, nil, err
	}

	doc := AttestationDoc{
		ModuleID: raw.ModuleID,
		// NSM timestamps are milliseconds since the Unix epoch.
		Timestamp:       time.UnixMilli(int64(raw.Timestamp)).UTC(),
		DigestAlgorithm: raw.Digest,
		PCRs: PCRs{
			ImageFileHash:   parsing.FormatPCR(raw.PCRs[0]),
			KernelHash:      parsing.FormatPCR(raw.PCRs[1]),
			ApplicationHash: parsing.FormatPCR(raw.PCRs[2]),
			IAMRoleHash:     parsing.FormatPCR(raw.PCRs[3]),
			InstanceIDHash:  parsing.FormatPCR(raw.PCRs[4]),
			SigningCertHash: parsing.FormatPCR(raw.PCRs[8]),
		},
		Certificate: base64.StdEncoding.EncodeToString(raw.Certificate),
		CABundle:    parsing.EncodeCertificateBundle(raw.CABundle),
		PublicKey:   base64.StdEncoding.EncodeToString(raw.PublicKey),
		Nonce:       string(raw.Nonce),
	}

	return doc, raw.UserData, nil
}

// ReceiptCOSEBase64 is the JSON transport form of a settlement receipt.
type ReceiptCOSEBase64 string

// Decode returns the raw COSE bytes.
func (r ReceiptCOSEBase64) Decode() (ReceiptCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(r))
	if err != nil {
		return nil, fmt.Errorf("decode receipt base64: %w", err)
	}
	return ReceiptCOSE(data), nil
}

// SettlementReceipt is the wire envelope of an attested settlement.
type SettlementReceipt struct {
	ReceiptCOSEBase64 ReceiptCOSEBase64 `json:"receipt_cose_base64"`
}
