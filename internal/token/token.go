// Package token implements the value-bearing payment unit the marketplace
// settles trades with, plus a Bank that tracks account balances and acts as
// the transfer destination for payouts.
//
// A Token carries an exact base-unit amount. Splits are overflow-safe by
// construction: value can only move between tokens, never be created.
package token

import (
	"errors"
	"math"
	"sync"

	"github.com/custodia/marketplace-engine/internal/model"
)

var (
	// ErrInsufficientValue is returned when a split asks for more than the
	// token carries.
	ErrInsufficientValue = errors.New("token: split amount exceeds token value")

	// ErrInsufficientFunds is returned when a withdrawal exceeds the
	// account balance.
	ErrInsufficientFunds = errors.New("token: withdrawal exceeds account balance")

	// ErrBalanceOverflow is returned when a mint or deposit would push an
	// account balance past the uint64 range.
	ErrBalanceOverflow = errors.New("token: account balance overflow")
)

// Token is a payment unit holding an exact base-unit value. A zero-value
// token is valid and carries nothing.
type Token struct {
	value uint64
}

// New creates a token carrying the given value.
func New(value uint64) *Token {
	return &Token{value: value}
}

// Value returns the amount the token currently carries.
func (t *Token) Value() uint64 {
	return t.value
}

// Split takes amount out of t and returns it as a new token. The remainder
// stays in t. Fails with ErrInsufficientValue if amount exceeds t's value.
func (t *Token) Split(amount uint64) (*Token, error) {
	if amount > t.value {
		return nil, ErrInsufficientValue
	}
	t.value -= amount
	return &Token{value: amount}, nil
}

// Merge moves the entire value of other into t, leaving other empty.
// Cannot overflow: both values came out of bounded account balances.
func (t *Token) Merge(other *Token) {
	t.value += other.value
	other.value = 0
}

// Bank tracks base-unit balances per address. It is the payment collaborator
// the marketplace transfers seller proceeds, protocol fees, and buyer change
// into.
type Bank struct {
	mu       sync.RWMutex
	balances map[model.Address]uint64
}

// NewBank creates an empty bank.
func NewBank() *Bank {
	return &Bank{balances: make(map[model.Address]uint64)}
}

// Mint credits newly issued value to an account. Development faucet only.
func (b *Bank) Mint(addr model.Address, amount uint64) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[addr] > math.MaxUint64-amount {
		return ErrBalanceOverflow
	}
	b.balances[addr] += amount
	return nil
}

// Withdraw debits an account and returns the value as a token.
func (b *Bank) Withdraw(addr model.Address, amount uint64) (*Token, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.balances[addr] < amount {
		return nil, ErrInsufficientFunds
	}
	b.balances[addr] -= amount
	if b.balances[addr] == 0 {
		delete(b.balances, addr)
	}
	return &Token{value: amount}, nil
}

// Transfer deposits the token's entire value into dest and empties the token.
// Never fails: total value in circulation is bounded by what was minted, so
// the balance addition cannot overflow.
func (b *Bank) Transfer(t *Token, dest model.Address) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if t.value > 0 {
		b.balances[dest] += t.value
		t.value = 0
	}
}

// BalanceOf returns the account balance, 0 for unknown addresses.
func (b *Bank) BalanceOf(addr model.Address) uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return b.balances[addr]
}
