package ledgerapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/check"
)

func TestReceiptCOSE_Base64RoundTrip(t *testing.T) {
	raw := ReceiptCOSE([]byte{0x01, 0x02, 0x03, 0xff})
	encoded := raw.EncodeBase64()

	decoded, err := encoded.Decode()
	check.Nil(t, err)
	check.Equal(t, raw, decoded)
}

func TestReceiptCOSEBase64_DecodeRejectsGarbage(t *testing.T) {
	_, err := ReceiptCOSEBase64("not base64!!!").Decode()
	check.NotNil(t, err)
}

func TestReceiptCOSE_ParseAttestationDoc(t *testing.T) {
	userData := []byte(`{"auction_id":"auction-1"}`)

	nested, err := cbor.Marshal(map[string]any{
		"module_id": "test-enclave-1",
		"digest":    "SHA384",
		"timestamp": uint64(1700000000000),
		"pcrs": map[uint64][]byte{
			0: {0xaa, 0xbb},
			1: {0xcc},
			2: {0xdd},
		},
		"certificate": []byte("cert-der"),
		"cabundle":    [][]byte{[]byte("ca-der")},
		"public_key":  []byte("pub"),
		"user_data":   userData,
		"nonce":       []byte("nonce-1"),
	})
	check.Nil(t, err)

	coseBytes, err := cbor.Marshal([]any{
		[]byte{0x01},
		map[string]any{},
		nested,
		[]byte{0x02},
	})
	check.Nil(t, err)

	doc, gotUserData, err := ReceiptCOSE(coseBytes).ParseAttestationDoc()
	check.Nil(t, err)
	check.Equal(t, "test-enclave-1", doc.ModuleID)
	check.Equal(t, "SHA384", doc.DigestAlgorithm)
	check.Equal(t, "aabb", doc.PCRs.ImageFileHash)
	check.Equal(t, "cc", doc.PCRs.KernelHash)
	check.Equal(t, "nonce-1", doc.Nonce)
	check.Equal(t, string(userData), string(gotUserData))

	// NSM timestamps are milliseconds; parsing them as seconds would land
	// tens of thousands of years out and break chain validation.
	check.True(t, doc.Timestamp.Equal(time.UnixMilli(1700000000000)))
	check.Equal(t, 2023, doc.Timestamp.Year())
}

func TestReceiptCOSE_ParseAttestationDocRejectsBadStructure(t *testing.T) {
	// Not CBOR at all.
	_, _, err := ReceiptCOSE([]byte{0xff, 0x00}).ParseAttestationDoc()
	check.NotNil(t, err)

	// Wrong element count.
	coseBytes, marshalErr := cbor.Marshal([]any{[]byte{0x01}, []byte{0x02}})
	check.Nil(t, marshalErr)
	_, _, err = ReceiptCOSE(coseBytes).ParseAttestationDoc()
	check.NotNil(t, err)
}

func TestRequestEnvelope_JSONShape(t *testing.T) {
	req := BidRequest{Type: TypeBid, Bidder: "alice", Value: 100}
	data, err := json.Marshal(req)
	check.Nil(t, err)

	var base struct {
		Type string `json:"type"`
	}
	check.Nil(t, json.Unmarshal(data, &base))
	check.Equal(t, TypeBid, base.Type)

	var decoded BidRequest
	check.Nil(t, json.Unmarshal(data, &decoded))
	check.Equal(t, req, decoded)
}
