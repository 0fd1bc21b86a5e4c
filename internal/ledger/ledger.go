// Package ledger implements the per-asset fractional ownership ledger: a
// mapping from holder address to owned quantity. It is the mechanism that
// lets many buyers hold fractions of one escrowed record without re-issuing
// asset objects per trade.
//
// A Ledger carries no lock of its own; the owning Marketplace serializes all
// access under its instance mutex.
package ledger

import (
	"errors"
	"sort"

	"github.com/custodia/marketplace-engine/internal/model"
)

// ErrInsufficientBalance is returned when a debit exceeds the holder's
// current balance.
var ErrInsufficientBalance = errors.New("ledger: debit exceeds holder balance")

// Ledger tracks fractional ownership of a single asset. No zero-balance
// entries persist: debiting a holder to zero removes the entry.
type Ledger struct {
	balances map[model.Address]uint64
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{balances: make(map[model.Address]uint64)}
}

// Credit adds qty to the holder's balance, inserting an entry if absent.
// Crediting zero is a no-op and never creates an entry.
func (l *Ledger) Credit(holder model.Address, qty uint64) {
	if qty == 0 {
		return
	}
	l.balances[holder] += qty
}

// Debit removes qty from the holder's balance. Fails with
// ErrInsufficientBalance if qty exceeds the current balance; an absent holder
// has balance 0. Entries that reach zero are pruned.
func (l *Ledger) Debit(holder model.Address, qty uint64) error {
	bal := l.balances[holder]
	if qty > bal {
		return ErrInsufficientBalance
	}
	if bal == qty {
		delete(l.balances, holder)
	} else {
		l.balances[holder] = bal - qty
	}
	return nil
}

// BalanceOf returns the holder's balance, 0 for holders with no entry.
func (l *Ledger) BalanceOf(holder model.Address) uint64 {
	return l.balances[holder]
}

// Total returns the sum of all balances. Bounded by the asset's total supply,
// so the sum cannot overflow.
func (l *Ledger) Total() uint64 {
	var sum uint64
	for _, bal := range l.balances {
		sum += bal
	}
	return sum
}

// Holders returns all addresses with a nonzero balance, sorted for
// deterministic output.
func (l *Ledger) Holders() []model.Address {
	holders := make([]model.Address, 0, len(l.balances))
	for addr := range l.balances {
		holders = append(holders, addr)
	}
	sort.Slice(holders, func(i, j int) bool { return holders[i] < holders[j] })
	return holders
}

// Len returns the number of holders with a nonzero balance.
func (l *Ledger) Len() int {
	return len(l.balances)
}
