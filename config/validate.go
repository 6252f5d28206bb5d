package config

import (
	"fmt"
	"math/big"
	"strings"

	"buildledger/crypto"
)

// MaxRewardRateBps caps the configurable annual staking rate at 100%.
const MaxRewardRateBps = uint64(10_000)

// Validate checks a loaded configuration for values the node cannot start
// with.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}
	if strings.TrimSpace(cfg.RPCAddress) == "" {
		return fmt.Errorf("config: RPCAddress must not be empty")
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		return fmt.Errorf("config: DataDir must not be empty")
	}
	if cfg.RewardRateBps > MaxRewardRateBps {
		return fmt.Errorf("config: RewardRateBps %d exceeds %d", cfg.RewardRateBps, MaxRewardRateBps)
	}
	if arbiter := strings.TrimSpace(cfg.Arbiter); arbiter != "" {
		if _, err := crypto.DecodeAddress(arbiter); err != nil {
			return fmt.Errorf("config: invalid Arbiter: %w", err)
		}
	}
	for i, alloc := range cfg.GenesisAlloc {
		if _, err := crypto.DecodeAddress(strings.TrimSpace(alloc.Address)); err != nil {
			return fmt.Errorf("config: GenesisAlloc[%d]: invalid address: %w", i, err)
		}
		if _, err := ParseAmount(alloc.Balance); err != nil {
			return fmt.Errorf("config: GenesisAlloc[%d]: %w", i, err)
		}
	}
	return nil
}

// ParseAmount parses a non-negative decimal amount string.
func ParseAmount(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", value)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative: %q", value)
	}
	return amount, nil
}
