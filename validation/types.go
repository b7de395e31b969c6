package validation

// BaseValidationResult contains common validation results for all attestation types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// ReceiptValidationResult contains validation results specific to settlement receipts
type ReceiptValidationResult struct {
	BaseValidationResult
	SettlementHashValid bool
	RefundsHashValid    bool
	OutcomeValid        bool
}

// IsValid returns true if all receipt validation checks passed
func (r *ReceiptValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.SettlementHashValid && r.RefundsHashValid && r.OutcomeValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // openescrow repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
