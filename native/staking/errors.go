package staking

import "errors"

var (
	// ErrNoPosition marks operations on addresses with nothing staked.
	ErrNoPosition = errors.New("staking: no position for owner")
	// ErrInvalidAmount marks zero or negative stake amounts.
	ErrInvalidAmount = errors.New("staking: amount must be positive")
	// ErrInsufficientStake marks unstakes exceeding the position.
	ErrInsufficientStake = errors.New("staking: unstake exceeds position")
	// ErrInsufficientFunds marks deposits the staker cannot cover.
	ErrInsufficientFunds = errors.New("staking: insufficient funds")
	// ErrTreasuryDepleted marks reward payouts the treasury cannot cover.
	ErrTreasuryDepleted = errors.New("staking: reward treasury depleted")
)
