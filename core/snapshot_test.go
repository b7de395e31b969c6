package core

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/check"
)

func TestSnapshot_RoundTrip(t *testing.T) {
	ledger, vault, _ := newTestLedger(t)
	now := testDeadline.Add(-time.Hour)

	check.Nil(t, ledger.Bid("alice", 100, now))
	check.Nil(t, ledger.Bid("bob", 106, testDeadline.Add(-time.Minute)))

	data, err := ledger.Snapshot()
	check.Nil(t, err)

	restored, err := RestoreLedger(data, vault, nil)
	check.Nil(t, err)

	original := ledger.Details()
	check.Equal(t, original, restored.Details())
	check.Equal(t, uint64(100), restored.Deposit("alice"))
	check.Equal(t, PhaseOpen, restored.Phase(now))
}

func TestSnapshot_RestoredLedgerStillOperates(t *testing.T) {
	ledger, vault, _ := newTestLedger(t)
	now := testDeadline.Add(-time.Hour)

	check.Nil(t, ledger.Bid("alice", 100, now))
	check.Nil(t, ledger.Bid("bob", 200, now))

	data, err := ledger.Snapshot()
	check.Nil(t, err)

	restored, err := RestoreLedger(data, vault, nil)
	check.Nil(t, err)

	after := testDeadline.Add(time.Second)
	receipt, err := restored.WithdrawExcess("alice", after)
	check.Nil(t, err)
	check.Equal(t, uint64(98), receipt.Net)

	check.Nil(t, restored.EndAuction("operator", after))
	check.Equal(t, uint64(200), vault.Balance("seller"))
}

func TestSnapshot_SettledFlagSurvives(t *testing.T) {
	ledger, vault, _ := newTestLedger(t)

	check.Nil(t, ledger.EndAuction("operator", testDeadline.Add(time.Second)))

	data, err := ledger.Snapshot()
	check.Nil(t, err)

	restored, err := RestoreLedger(data, vault, nil)
	check.Nil(t, err)
	check.True(t, restored.Details().Settled)
	check.True(t, errors.Is(restored.EndAuction("operator", testDeadline.Add(time.Minute)), ErrAlreadySettled))
}

func TestRestoreLedger_RejectsGarbage(t *testing.T) {
	_, err := RestoreLedger([]byte{0xff, 0x00, 0x01}, NewVault(), nil)
	check.NotNil(t, err)
}

func TestRestoreLedger_RequiresTreasury(t *testing.T) {
	ledger, _, _ := newTestLedger(t)
	data, err := ledger.Snapshot()
	check.Nil(t, err)

	_, err = RestoreLedger(data, nil, nil)
	check.NotNil(t, err)
}
