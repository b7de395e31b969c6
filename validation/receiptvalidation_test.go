package validation

import (
	"encoding/base64"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi"
)

// buildTestReceipt wraps user data in an unsigned COSE_Sign1 attestation
// document, the same shape the enclave emits.
func buildTestReceipt(t *testing.T, userData ledgerapi.SettlementUserData) ledgerapi.ReceiptCOSEBase64 {
	t.Helper()

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		t.Fatalf("marshal user data: %v", err)
	}

	nestedDoc := map[string]any{
		"module_id":   "test-enclave-12345",
		"digest":      "SHA384",
		"timestamp":   uint64(1234567890000), // milliseconds, as NSM emits
		"pcrs":        map[uint64][]byte{0: make([]byte, 48), 1: make([]byte, 48), 2: make([]byte, 48)},
		"certificate": []byte("test-certificate-data"),
		"cabundle":    [][]byte{[]byte("test-ca-cert")},
		"public_key":  []byte("test-public-key-data"),
		"user_data":   userDataBytes,
		"nonce":       []byte("test-nonce"),
	}
	nestedBytes, err := cbor.Marshal(nestedDoc)
	if err != nil {
		t.Fatalf("marshal nested doc: %v", err)
	}

	coseBytes, err := cbor.Marshal([]any{
		[]byte{0x01}, map[string]any{}, nestedBytes, []byte{0x02},
	})
	if err != nil {
		t.Fatalf("marshal COSE array: %v", err)
	}

	return ledgerapi.ReceiptCOSE(coseBytes).EncodeBase64()
}

func testUserData() ledgerapi.SettlementUserData {
	userData := ledgerapi.SettlementUserData{
		ReceiptID:       "receipt-1",
		AuctionID:       "auction-1",
		Winner:          "bob",
		Amount:          200,
		SettlementNonce: "settle-nonce",
		RefundsNonce:    "refunds-nonce",
		Timestamp:       time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	userData.SettlementHash = core.ComputeSettlementHash("auction-1", "bob", 200, "settle-nonce")
	userData.RefundsHash = core.ComputeRefundsHash(map[string]uint64{"alice": 100}, "refunds-nonce")
	return userData
}

func TestParseSettlementReceiptFromCOSE(t *testing.T) {
	receiptB64 := buildTestReceipt(t, testUserData())

	receipt, err := parseSettlementReceiptFromCOSE(receiptB64)
	check.NoError(t, err)
	check.Equal(t, "test-enclave-12345", receipt.ModuleID)
	check.Equal(t, "auction-1", receipt.UserData.AuctionID)
	check.Equal(t, "bob", receipt.UserData.Winner)
	check.Equal(t, uint64(200), receipt.UserData.Amount)
}

func TestParseSettlementReceiptRejectsGarbage(t *testing.T) {
	_, err := parseSettlementReceiptFromCOSE("not base64!!!")
	check.Error(t, err)

	garbage := ledgerapi.ReceiptCOSEBase64(base64.StdEncoding.EncodeToString([]byte("not cbor")))
	_, err = parseSettlementReceiptFromCOSE(garbage)
	check.Error(t, err)
}

func TestValidateSettlementCommitment(t *testing.T) {
	receipt, err := parseSettlementReceiptFromCOSE(buildTestReceipt(t, testUserData()))
	check.NoError(t, err)

	result := &ReceiptValidationResult{}
	check.True(t, validateSettlementCommitment(receipt, result))

	// A tampered amount no longer matches the commitment.
	receipt.UserData.Amount = 999
	result = &ReceiptValidationResult{}
	check.False(t, validateSettlementCommitment(receipt, result))

	// A receipt without the nonce cannot be verified at all.
	receipt.UserData.SettlementNonce = ""
	result = &ReceiptValidationResult{}
	check.False(t, validateSettlementCommitment(receipt, result))
}

func TestValidateRefundsCommitment(t *testing.T) {
	receipt, err := parseSettlementReceiptFromCOSE(buildTestReceipt(t, testUserData()))
	check.NoError(t, err)

	input := &ReceiptValidationInput{Refunds: map[string]uint64{"alice": 100}}
	check.True(t, validateRefundsCommitment(input, receipt, &ReceiptValidationResult{}))

	wrong := &ReceiptValidationInput{Refunds: map[string]uint64{"alice": 100, "carol": 300}}
	check.False(t, validateRefundsCommitment(wrong, receipt, &ReceiptValidationResult{}))

	// nil refund set skips the check rather than failing it.
	skipped := &ReceiptValidationInput{}
	check.True(t, validateRefundsCommitment(skipped, receipt, &ReceiptValidationResult{}))
}

func TestValidateOutcome(t *testing.T) {
	receipt, err := parseSettlementReceiptFromCOSE(buildTestReceipt(t, testUserData()))
	check.NoError(t, err)

	match := &ReceiptValidationInput{AuctionID: "auction-1", Winner: "bob", Amount: 200}
	check.True(t, validateOutcome(match, receipt, &ReceiptValidationResult{}))

	wrongAmount := &ReceiptValidationInput{AuctionID: "auction-1", Winner: "bob", Amount: 150}
	check.False(t, validateOutcome(wrongAmount, receipt, &ReceiptValidationResult{}))

	wrongAuction := &ReceiptValidationInput{AuctionID: "auction-2", Winner: "bob", Amount: 200}
	check.False(t, validateOutcome(wrongAuction, receipt, &ReceiptValidationResult{}))

	expectedNoWinner := &ReceiptValidationInput{AuctionID: "auction-1"}
	check.False(t, validateOutcome(expectedNoWinner, receipt, &ReceiptValidationResult{}))
}

func TestValidateOutcomeNoBids(t *testing.T) {
	userData := testUserData()
	userData.Winner = ""
	userData.Amount = 0
	receipt, err := parseSettlementReceiptFromCOSE(buildTestReceipt(t, userData))
	check.NoError(t, err)

	input := &ReceiptValidationInput{AuctionID: "auction-1"}
	check.True(t, validateOutcome(input, receipt, &ReceiptValidationResult{}))
}

func TestValidatePCRs(t *testing.T) {
	knownSets := []PCRSet{
		{PCR0: "aaa", PCR1: "bbb", PCR2: "ccc", CommitHash: "deadbeef"},
		{PCR0: "ddd", PCR1: "eee", PCR2: "fff", CommitHash: "cafebabe"},
	}

	match, idx := ValidatePCRs(ledgerapi.PCRs{ImageFileHash: "ddd", KernelHash: "eee", ApplicationHash: "fff"}, knownSets)
	check.True(t, match)
	check.Equal(t, 1, idx)

	match, idx = ValidatePCRs(ledgerapi.PCRs{ImageFileHash: "aaa", KernelHash: "bbb", ApplicationHash: "zzz"}, knownSets)
	check.False(t, match)
	check.Equal(t, -1, idx)
}

func TestLoadPCRsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "pcrs.json")
	content := `{"pcr_sets":[{"pcr0":"aaa","pcr1":"bbb","pcr2":"ccc","commit_hash":"deadbeef"}]}`
	check.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	sets, err := LoadPCRsFromFile(path)
	check.NoError(t, err)
	check.Equal(t, 1, len(sets))
	check.Equal(t, "deadbeef", sets[0].CommitHash)

	_, err = LoadPCRsFromFile(filepath.Join(t.TempDir(), "missing.json"))
	check.Error(t, err)

	empty := filepath.Join(t.TempDir(), "empty.json")
	check.NoError(t, os.WriteFile(empty, []byte(`{"pcr_sets":[]}`), 0o600))
	_, err = LoadPCRsFromFile(empty)
	check.Error(t, err)
}

func TestDefaultPCRConfigLoads(t *testing.T) {
	sets, err := LoadPCRsFromFile(DefaultPCRConfigPath())
	check.NoError(t, err)
	check.True(t, len(sets) > 0)
}

func TestValidateCertificateChainRejectsBadInput(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	err := ValidateCertificateChain("not base64!!!", nil, at)
	check.Error(t, err)

	// Valid base64 but not a DER certificate.
	bogus := base64.StdEncoding.EncodeToString([]byte("test-certificate-data"))
	err = ValidateCertificateChain(bogus, nil, at)
	check.Error(t, err)
}

func TestVerifyCOSESignatureRejectsBadInput(t *testing.T) {
	err := VerifyCOSESignature("not base64!!!", "certificate")
	check.Error(t, err)

	receiptB64 := buildTestReceipt(t, testUserData())
	err = VerifyCOSESignature(receiptB64, "not base64!!!")
	check.Error(t, err)
}

func TestReceiptValidationResultIsValid(t *testing.T) {
	allValid := ReceiptValidationResult{
		BaseValidationResult: BaseValidationResult{PCRsValid: true, CertificateValid: true, SignatureValid: true},
		SettlementHashValid:  true,
		RefundsHashValid:     true,
		OutcomeValid:         true,
	}
	check.True(t, allValid.IsValid())

	oneFailed := allValid
	oneFailed.SignatureValid = false
	check.False(t, oneFailed.IsValid())
}
