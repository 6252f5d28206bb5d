package state

import (
	"fmt"
	"math/big"

	"buildledger/native/staking"
)

const totalStakedKey = "staking/total"

func positionKey(owner [20]byte) []byte {
	return []byte(fmt.Sprintf("staking/position/%x", owner))
}

type storedPosition struct {
	Owner      [20]byte
	Amount     *big.Int
	Since      uint64
	RewardDebt *big.Int
}

// PositionPut persists a staking position.
func (m *Manager) PositionPut(pos *staking.Position) error {
	if pos == nil {
		return fmt.Errorf("state: nil position")
	}
	clone := pos.Clone()
	return m.write(positionKey(clone.Owner), &storedPosition{
		Owner:      clone.Owner,
		Amount:     clone.Amount,
		Since:      clampUnix(clone.Since),
		RewardDebt: clone.RewardDebt,
	})
}

// PositionGet loads the position stored for owner. The second return reports
// whether a record exists.
func (m *Manager) PositionGet(owner [20]byte) (*staking.Position, bool, error) {
	stored := new(storedPosition)
	ok, err := m.load(positionKey(owner), stored)
	if err != nil || !ok {
		return nil, false, err
	}
	return &staking.Position{
		Owner:      stored.Owner,
		Amount:     stored.Amount,
		Since:      int64(stored.Since),
		RewardDebt: stored.RewardDebt,
	}, true, nil
}

// PositionDelete removes the position stored for owner.
func (m *Manager) PositionDelete(owner [20]byte) error {
	return m.db.Delete(positionKey(owner))
}

// TotalStakedGet returns the aggregate staked principal.
func (m *Manager) TotalStakedGet() (*big.Int, error) {
	total := new(big.Int)
	ok, err := m.load([]byte(totalStakedKey), total)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return total, nil
}

// TotalStakedPut persists the aggregate staked principal.
func (m *Manager) TotalStakedPut(total *big.Int) error {
	if total == nil || total.Sign() < 0 {
		return fmt.Errorf("state: invalid total staked")
	}
	return m.write([]byte(totalStakedKey), total)
}

// LockStaker serializes mutations of a single staker's position.
func (m *Manager) LockStaker(owner [20]byte) func() {
	return m.locks.lock(fmt.Sprintf("staking/position/%x", owner))
}
