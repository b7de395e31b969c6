package core

import (
	"fmt"
	"sort"
)

// Treasury is the value-transfer capability supplied by the hosting runtime.
// The ledger owns a held balance inside the treasury: inbound bid value is
// retained there and outbound payouts are drawn from it.
//
// Outbound transfers may synchronously run arbitrary code in the receiving
// account, which can call back into the ledger before the transfer returns.
// The ledger defends against that by committing its own state before any
// transfer; the treasury's job is only to move value atomically.
type Treasury interface {
	// Receive places inbound attached value into the ledger's custody.
	// The hosting runtime has already collected the value from the caller,
	// so Receive cannot fail.
	Receive(amount uint64)

	// HeldBalance returns the value currently in the ledger's custody.
	HeldBalance() uint64

	// Begin opens a transfer transaction. Transfers inside it take effect
	// immediately (including recipient callbacks) but are undone as a unit
	// by Abort, so a failed later leg cannot strand an earlier one.
	Begin() TreasuryTx
}

// TreasuryTx is a group of outbound transfers that commits or aborts as a unit.
type TreasuryTx interface {
	// Transfer sends amount from the ledger's held balance to an account.
	// The recipient's code runs before Transfer returns; an error means the
	// transfer did not happen.
	Transfer(to string, amount uint64) error

	// Commit finalizes all transfers made in this transaction.
	Commit()

	// Abort reverses all transfers made in this transaction.
	Abort()
}

// ReceiveHook runs in the receiving account when a Vault transfer credits it.
// Returning an error rejects the payment and fails the transfer. The hook may
// call back into the ledger, which is exactly the reentrancy hazard the
// ledger's operation ordering defends against.
type ReceiveHook func(amount uint64) error

// Vault is an in-memory Treasury tracking external account balances alongside
// the ledger's held custody. It backs the enclave runtime and the test suite;
// a chain-connected host would supply its own Treasury instead.
type Vault struct {
	held     uint64
	balances map[string]uint64
	hooks    map[string]ReceiveHook
}

// NewVault returns an empty vault with no held balance.
func NewVault() *Vault {
	return &Vault{
		balances: make(map[string]uint64),
		hooks:    make(map[string]ReceiveHook),
	}
}

// Receive implements Treasury.
func (v *Vault) Receive(amount uint64) {
	v.held += amount
}

// HeldBalance implements Treasury.
func (v *Vault) HeldBalance() uint64 {
	return v.held
}

// Balance returns the external balance of an account.
func (v *Vault) Balance(account string) uint64 {
	return v.balances[account]
}

// Accounts returns every account with a nonzero balance, sorted.
func (v *Vault) Accounts() []string {
	accounts := make([]string, 0, len(v.balances))
	for account, balance := range v.balances {
		if balance > 0 {
			accounts = append(accounts, account)
		}
	}
	sort.Strings(accounts)
	return accounts
}

// SetReceiveHook installs code that runs whenever a transfer credits account.
// Passing nil removes the hook.
func (v *Vault) SetReceiveHook(account string, hook ReceiveHook) {
	if hook == nil {
		delete(v.hooks, account)
		return
	}
	v.hooks[account] = hook
}

// Begin implements Treasury.
func (v *Vault) Begin() TreasuryTx {
	return &vaultTx{vault: v}
}

type vaultEntry struct {
	to     string
	amount uint64
}

type vaultTx struct {
	vault   *Vault
	journal []vaultEntry
	closed  bool
}

func (tx *vaultTx) Transfer(to string, amount uint64) error {
	if tx.closed {
		return fmt.Errorf("treasury transaction already closed")
	}
	v := tx.vault
	if v.held < amount {
		return fmt.Errorf("held balance %d is less than transfer amount %d", v.held, amount)
	}

	// Credit first so the recipient's code observes the received value.
	v.held -= amount
	v.balances[to] += amount

	if hook := v.hooks[to]; hook != nil {
		if err := hook(amount); err != nil {
			// Recipient rejected the payment: this transfer did not happen.
			v.balances[to] -= amount
			v.held += amount
			return fmt.Errorf("recipient %s rejected payment: %w", to, err)
		}
	}

	tx.journal = append(tx.journal, vaultEntry{to: to, amount: amount})
	return nil
}

func (tx *vaultTx) Commit() {
	tx.journal = nil
	tx.closed = true
}

func (tx *vaultTx) Abort() {
	v := tx.vault
	for i := len(tx.journal) - 1; i >= 0; i-- {
		entry := tx.journal[i]
		v.balances[entry.to] -= entry.amount
		v.held += entry.amount
	}
	tx.journal = nil
	tx.closed = true
}
