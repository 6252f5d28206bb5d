package types

import (
	"errors"
	"math/big"
)

// ErrInsufficientBalance is returned by state backends when a transfer's
// source account cannot cover the amount. Engines map it onto their own
// typed rejection.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Account is the balance record for a single address. Client deposits,
// contractor payouts, stake principal and reward payments all move value
// between accounts; module vaults are ordinary accounts with reserved
// addresses so conservation checks can sum over the whole account set.
type Account struct {
	Nonce   uint64
	Balance *big.Int
}

// NewAccount returns an empty account with a zeroed balance.
func NewAccount() *Account {
	return &Account{Balance: big.NewInt(0)}
}

// Clone returns a deep copy of the account.
func (a *Account) Clone() *Account {
	if a == nil {
		return NewAccount()
	}
	clone := &Account{Nonce: a.Nonce, Balance: big.NewInt(0)}
	if a.Balance != nil {
		clone.Balance = new(big.Int).Set(a.Balance)
	}
	return clone
}
