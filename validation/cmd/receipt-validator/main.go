package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/cloudx-io/openescrow/ledgerapi"
	"github.com/cloudx-io/openescrow/validation"
)

func main() {
	// Define CLI flags
	var (
		receiptInput = flag.String("receipt", "", "Settlement receipt (file path, inline JSON, or raw base64 COSE)")
		auctionID    = flag.String("auction-id", "", "Expected auction identifier")
		winner       = flag.String("winner", "", "Expected winning account (empty = expect no winner)")
		amount       = flag.Uint64("amount", 0, "Expected winning amount")
		refundsInput = flag.String("refunds", "", "Refund claim set JSON, e.g. '{\"alice\":100}' (file path or inline; omit to skip)")
		outputFormat = flag.String("format", "text", "Output format: text or json")
		help         = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help {
		showUsage()
		os.Exit(0)
	}

	if *receiptInput == "" || *auctionID == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: --receipt and --auction-id are required\n")
		os.Exit(1)
	}

	receiptB64, err := readReceiptInput(*receiptInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}

	refunds, err := readRefundsInput(*refundsInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading refunds: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, err := validation.ValidateSettlementReceipt(&validation.ReceiptValidationInput{
		ReceiptCOSEBase64: receiptB64,
		AuctionID:         *auctionID,
		Winner:            *winner,
		Amount:            *amount,
		Refunds:           refunds,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Validates enclave-attested auction settlement receipts.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  receipt-validator --receipt <input> --auction-id <id> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --receipt <input>                 Settlement receipt: file path, inline JSON")
	fmt.Println("                                    ({\"receipt_cose_base64\": \"...\"}), or raw base64 COSE")
	fmt.Println("  --auction-id <id>                 Auction identifier the receipt must name")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --winner <account>                Expected winner (empty = expect no winner)")
	fmt.Println("  --amount <value>                  Expected winning amount")
	fmt.Println("  --refunds <json>                  Refund claim set to check against the refunds")
	fmt.Println("                                    commitment, e.g. '{\"alice\":100,\"carol\":300}'")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Receipt saved from a settle response")
	fmt.Println("  receipt-validator \\")
	fmt.Println("    --receipt settle_response_receipt.json \\")
	fmt.Println("    --auction-id auction-42 --winner bob --amount 200 \\")
	fmt.Println("    --refunds '{\"alice\":100}'")
	fmt.Println()
	fmt.Println("  # Auction that closed with no bids")
	fmt.Println("  receipt-validator --receipt receipt.b64 --auction-id auction-42")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

// readReceiptInput accepts a file path, an inline JSON settle-receipt
// envelope, or raw base64 COSE bytes.
func readReceiptInput(input string) (ledgerapi.ReceiptCOSEBase64, error) {
	raw := input
	if data, err := os.ReadFile(input); err == nil {
		raw = string(data)
	}
	raw = strings.TrimSpace(raw)

	if strings.HasPrefix(raw, "{") {
		var envelope ledgerapi.SettlementReceipt
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			return "", fmt.Errorf("parse receipt JSON: %w", err)
		}
		if envelope.ReceiptCOSEBase64 == "" {
			return "", fmt.Errorf("missing 'receipt_cose_base64' in receipt JSON")
		}
		return envelope.ReceiptCOSEBase64, nil
	}

	return ledgerapi.ReceiptCOSEBase64(raw), nil
}

func readRefundsInput(input string) (map[string]uint64, error) {
	if input == "" {
		return nil, nil
	}

	raw := input
	if data, err := os.ReadFile(input); err == nil {
		raw = string(data)
	}

	var refunds map[string]uint64
	if err := json.Unmarshal([]byte(raw), &refunds); err != nil {
		return nil, fmt.Errorf("parse refunds JSON: %w", err)
	}
	return refunds, nil
}

func outputText(result *validation.ReceiptValidationResult) {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println("============================")
	fmt.Println()

	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Settlement Hash Valid:   %v\n", result.SettlementHashValid)
	fmt.Printf("  Refunds Hash Valid:      %v\n", result.RefundsHashValid)
	fmt.Printf("  Outcome Valid:           %v\n", result.OutcomeValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("============================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.ReceiptValidationResult) {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"pcrs_valid":            result.PCRsValid,
		"certificate_valid":     result.CertificateValid,
		"signature_valid":       result.SignatureValid,
		"settlement_hash_valid": result.SettlementHashValid,
		"refunds_hash_valid":    result.RefundsHashValid,
		"outcome_valid":         result.OutcomeValid,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
