package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"sync"
	"time"

	"github.com/mdlayher/vsock"

	"github.com/cloudx-io/openescrow/core"
	"github.com/cloudx-io/openescrow/ledgerapi"
	"github.com/cloudx-io/openescrow/store"
)

// EnclaveServer hosts one auction ledger behind a vsock listener. The mutex
// serializes top-level ledger operations: the ledger itself is lock-free so
// that transfer hooks may re-enter it, and the server is the runtime that
// guarantees one operation at a time.
type EnclaveServer struct {
	cfg Config

	mu        sync.Mutex
	ledger    *core.AuctionLedger
	vault     *core.Vault
	store     *store.SnapshotStore
	lastEvent core.Event

	attester func() (EnclaveAttester, error)
	clock    func() time.Time
}

func NewEnclaveServer(cfg Config) *EnclaveServer {
	return &EnclaveServer{
		cfg:      cfg,
		vault:    core.NewVault(),
		attester: getEnclaveAttester,
		clock:    time.Now,
	}
}

// initLedger restores the ledger from the configured snapshot store when one
// exists, otherwise opens a fresh auction whose deadline is the bidding
// window from now.
func (s *EnclaveServer) initLedger() error {
	sink := core.EventSinkFunc(s.recordEvent)

	if s.cfg.SnapshotPath != "" {
		snapshotStore, err := store.Open(s.cfg.SnapshotPath)
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		s.store = snapshotStore

		data, err := snapshotStore.Load()
		switch {
		case err == nil:
			ledger, err := core.RestoreLedger(data, s.vault, sink)
			if err != nil {
				return fmt.Errorf("failed to restore ledger snapshot: %w", err)
			}
			s.ledger = ledger
			details := ledger.Details()
			log.Printf("INFO: Restored auction %s from snapshot (deadline %s)", details.AuctionID, details.Deadline.Format(time.RFC3339))
			return nil
		case errors.Is(err, store.ErrNoSnapshot):
			log.Printf("INFO: No snapshot at %s, starting a fresh auction", s.cfg.SnapshotPath)
		default:
			return fmt.Errorf("failed to load ledger snapshot: %w", err)
		}
	}

	deadline := s.clock().Add(s.cfg.BiddingWindow)
	ledger, err := core.NewAuctionLedger(core.AuctionConfig{
		AuctionID:   s.cfg.AuctionID,
		Operator:    s.cfg.Operator,
		Beneficiary: s.cfg.Beneficiary,
		Deadline:    deadline,
	}, s.vault, sink)
	if err != nil {
		return fmt.Errorf("failed to create auction ledger: %w", err)
	}
	s.ledger = ledger

	details := ledger.Details()
	log.Printf("INFO: Opened auction %s for %s (deadline %s)", details.AuctionID, details.Beneficiary, deadline.Format(time.RFC3339))
	return nil
}

// recordEvent is the ledger's event sink. Callers holding the operation mutex
// read lastEvent to enrich their response.
func (s *EnclaveServer) recordEvent(event core.Event) {
	s.lastEvent = event
	log.Printf("INFO: Ledger event %s: %+v", event.Kind(), event)
}

func (s *EnclaveServer) Start() error {
	if err := s.initLedger(); err != nil {
		return err
	}

	listener, err := vsock.Listen(s.cfg.Port, nil)
	if err != nil {
		return fmt.Errorf("failed to create vsock listener: %w", err)
	}
	defer func() {
		if err := listener.Close(); err != nil {
			log.Printf("ERROR: Failed to close listener: %v", err)
		}
	}()

	log.Printf("INFO: Ledger server listening on vsock port %d", s.cfg.Port)

	semaphore := make(chan struct{}, s.cfg.MaxWorkers)
	log.Printf("INFO: Worker pool initialized with %d max concurrent workers", s.cfg.MaxWorkers)

	for {
		conn, err := listener.Accept()
		if err != nil {
			log.Printf("ERROR: Failed to accept vsock connection: %v", err)
			continue
		}

		// Acquire worker slot - immediate rejection if pool full
		select {
		case semaphore <- struct{}{}:
			go func(c net.Conn) {
				defer func() { <-semaphore }() // Release worker slot
				s.handleConnection(c)
			}(conn)
		default:
			log.Printf("INFO: No workers available, rejecting connection (pool full)")
			if err := conn.Close(); err != nil {
				log.Printf("ERROR: Failed to close rejected connection: %v", err)
			}
		}
	}
}

func (s *EnclaveServer) handleConnection(conn net.Conn) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: Panic recovered in handleConnection: %v", r)
		}
		if err := conn.Close(); err != nil {
			log.Printf("ERROR: Failed to close connection: %v", err)
		}
	}()

	_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))

	var buf bytes.Buffer
	_, err := io.Copy(&buf, conn)
	if err != nil {
		log.Printf("ERROR: Failed to read request: %v", err)
		return
	}

	response := s.dispatch(buf.Bytes())

	encoder := json.NewEncoder(conn)
	if err := encoder.Encode(response); err != nil {
		log.Printf("ERROR: Failed to encode response: %v", err)
	}
}

// dispatch routes a raw request by its type field and returns the response
// value to encode.
func (s *EnclaveServer) dispatch(raw []byte) any {
	var baseReq struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &baseReq); err != nil {
		log.Printf("ERROR: Failed to decode base request: %v", err)
		return ledgerapi.OpResponse{
			Type:      "error",
			Message:   fmt.Sprintf("Failed to decode request: %v", err),
			ErrorKind: "invalid_request",
		}
	}

	log.Printf("INFO: Received request type: %s", baseReq.Type)

	switch baseReq.Type {
	case ledgerapi.TypePing:
		return map[string]any{
			"type":      "pong",
			"message":   "ledger server is healthy",
			"timestamp": s.clock().Unix(),
		}

	case ledgerapi.TypeBid:
		var req ledgerapi.BidRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("bid_response", err)
		}
		return s.handleBid(req, s.clock())

	case ledgerapi.TypeWithdraw:
		var req ledgerapi.WithdrawRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("withdraw_response", err)
		}
		return s.handleWithdraw(req, s.clock())

	case ledgerapi.TypeSettle:
		var req ledgerapi.SettleRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("settle_response", err)
		}
		return s.handleSettle(req, s.clock())

	case ledgerapi.TypeEmergency:
		var req ledgerapi.EmergencyWithdrawRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("emergency_withdraw_response", err)
		}
		return s.handleEmergencyWithdraw(req)

	case ledgerapi.TypeDetails:
		var req ledgerapi.DetailsRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("details_response", err)
		}
		return s.handleDetails(req, s.clock())

	case ledgerapi.TypeDeposit:
		var req ledgerapi.DepositRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return decodeFailure("deposit_response", err)
		}
		return s.handleDeposit(req)

	default:
		return ledgerapi.OpResponse{
			Type:      "error",
			Message:   fmt.Sprintf("Unknown request type: %s", baseReq.Type),
			ErrorKind: "invalid_request",
		}
	}
}

func decodeFailure(responseType string, err error) ledgerapi.OpResponse {
	log.Printf("ERROR: Failed to decode request: %v", err)
	return ledgerapi.OpResponse{
		Type:      responseType,
		Message:   fmt.Sprintf("Failed to decode request: %v", err),
		ErrorKind: "invalid_request",
	}
}

func main() {
	cfg, err := LoadConfig()
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
	server := NewEnclaveServer(cfg)
	log.Fatal(server.Start())
}
