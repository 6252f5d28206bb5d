package staking

import "math/big"

// Position captures a single staker's holding. Since is the accrual baseline:
// rewards accrue linearly on Amount from that instant, and RewardDebt records
// the portion of that accrual already paid out, so no interval is ever paid
// twice.
type Position struct {
	Owner      [20]byte
	Amount     *big.Int
	Since      int64
	RewardDebt *big.Int
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := *p
	if p.Amount != nil {
		clone.Amount = new(big.Int).Set(p.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	if p.RewardDebt != nil {
		clone.RewardDebt = new(big.Int).Set(p.RewardDebt)
	} else {
		clone.RewardDebt = big.NewInt(0)
	}
	return &clone
}
