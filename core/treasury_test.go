package core

import (
	"fmt"
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestVault_ReceiveAndHeldBalance(t *testing.T) {
	vault := NewVault()
	check.Equal(t, uint64(0), vault.HeldBalance())

	vault.Receive(100)
	vault.Receive(50)
	check.Equal(t, uint64(150), vault.HeldBalance())
}

func TestVaultTx_TransferMovesValueImmediately(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	tx := vault.Begin()
	check.Nil(t, tx.Transfer("alice", 60))

	// Visible before commit: the recipient's code must be able to see it.
	check.Equal(t, uint64(60), vault.Balance("alice"))
	check.Equal(t, uint64(40), vault.HeldBalance())

	tx.Commit()
	check.Equal(t, uint64(60), vault.Balance("alice"))
}

func TestVaultTx_InsufficientHeldBalance(t *testing.T) {
	vault := NewVault()
	vault.Receive(10)

	tx := vault.Begin()
	err := tx.Transfer("alice", 11)
	check.NotNil(t, err)
	check.Equal(t, uint64(10), vault.HeldBalance())
	check.Equal(t, uint64(0), vault.Balance("alice"))
	tx.Abort()
}

func TestVaultTx_AbortReversesAllLegs(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	tx := vault.Begin()
	check.Nil(t, tx.Transfer("alice", 30))
	check.Nil(t, tx.Transfer("bob", 20))
	tx.Abort()

	check.Equal(t, uint64(0), vault.Balance("alice"))
	check.Equal(t, uint64(0), vault.Balance("bob"))
	check.Equal(t, uint64(100), vault.HeldBalance())
}

func TestVaultTx_ClosedTxRejectsTransfers(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	tx := vault.Begin()
	tx.Commit()
	check.NotNil(t, tx.Transfer("alice", 1))
}

func TestVault_ReceiveHookRejection(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	vault.SetReceiveHook("alice", func(amount uint64) error {
		return fmt.Errorf("account frozen")
	})

	tx := vault.Begin()
	err := tx.Transfer("alice", 40)
	check.NotNil(t, err)

	// A rejected payment never happened.
	check.Equal(t, uint64(0), vault.Balance("alice"))
	check.Equal(t, uint64(100), vault.HeldBalance())
	tx.Abort()

	// Removing the hook restores delivery.
	vault.SetReceiveHook("alice", nil)
	tx = vault.Begin()
	check.Nil(t, tx.Transfer("alice", 40))
	tx.Commit()
	check.Equal(t, uint64(40), vault.Balance("alice"))
}

func TestVault_HookObservesCreditedBalance(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	var observed uint64
	vault.SetReceiveHook("alice", func(amount uint64) error {
		observed = vault.Balance("alice")
		return nil
	})

	tx := vault.Begin()
	check.Nil(t, tx.Transfer("alice", 25))
	tx.Commit()
	check.Equal(t, uint64(25), observed)
}

func TestVault_Accounts(t *testing.T) {
	vault := NewVault()
	vault.Receive(100)

	tx := vault.Begin()
	check.Nil(t, tx.Transfer("charlie", 10))
	check.Nil(t, tx.Transfer("alice", 10))
	check.Nil(t, tx.Transfer("bob", 10))
	tx.Commit()

	check.Equal(t, []string{"alice", "bob", "charlie"}, vault.Accounts())
}
