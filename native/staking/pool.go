package staking

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"buildledger/core/types"
)

const (
	// RateBpsDenominator is the fixed denominator for the annual rate.
	RateBpsDenominator = 10_000
	// SecondsPerYear converts the annual rate into per-second accrual.
	SecondsPerYear = 365 * 24 * 60 * 60
)

var errNilState = errors.New("staking pool: state not configured")

// poolState abstracts the subset of state manager functionality required by
// the staking pool. Mutations targeting the same owner are linearized by
// LockStaker; distinct stakers proceed in parallel.
type poolState interface {
	PositionPut(*Position) error
	PositionGet(owner [20]byte) (*Position, bool, error)
	PositionDelete(owner [20]byte) error
	TotalStakedGet() (*big.Int, error)
	TotalStakedPut(*big.Int) error
	Transfer(from, to [20]byte, amount *big.Int) error
	LockStaker(owner [20]byte) func()
}

// Pool tracks staked balances and accrues rewards at a fixed annual rate.
// Principal sits in the pool vault account; rewards are paid from a separate
// treasury account so the conservation invariant over principal is exact:
// sum of all position amounts equals the vault balance equals TotalStaked.
type Pool struct {
	state    poolState
	vault    [20]byte
	treasury [20]byte
	rateBps  uint64
	nowFn    func() int64
}

// NewPool creates a staking pool with the supplied annual reward rate in
// basis points (500 = 5% per year).
func NewPool(rateBps uint64) *Pool {
	return &Pool{
		rateBps: rateBps,
		nowFn:   func() int64 { return time.Now().Unix() },
	}
}

// SetState configures the state backend used by the pool.
func (p *Pool) SetState(state poolState) { p.state = state }

// SetVault configures the module account holding staked principal.
func (p *Pool) SetVault(addr [20]byte) { p.vault = addr }

// SetTreasury configures the account rewards are paid from.
func (p *Pool) SetTreasury(addr [20]byte) { p.treasury = addr }

// SetNowFunc overrides the time source, primarily for deterministic tests.
func (p *Pool) SetNowFunc(now func() int64) {
	if now == nil {
		p.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	p.nowFn = now
}

func (p *Pool) now() int64 {
	if p == nil || p.nowFn == nil {
		return time.Now().Unix()
	}
	return p.nowFn()
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// accrued computes the total reward earned on the position since its accrual
// baseline, before subtracting RewardDebt.
func (p *Pool) accrued(pos *Position, now int64) *big.Int {
	if pos == nil || pos.Amount == nil || pos.Amount.Sign() <= 0 {
		return big.NewInt(0)
	}
	elapsed := now - pos.Since
	if elapsed <= 0 || p.rateBps == 0 {
		return big.NewInt(0)
	}
	reward := new(big.Int).Mul(pos.Amount, new(big.Int).SetUint64(p.rateBps))
	reward.Mul(reward, big.NewInt(elapsed))
	reward.Div(reward, big.NewInt(RateBpsDenominator*SecondsPerYear))
	return reward
}

func (p *Pool) pending(pos *Position, now int64) *big.Int {
	earned := p.accrued(pos, now)
	debt := cloneBigInt(pos.RewardDebt)
	pendingAmt := new(big.Int).Sub(earned, debt)
	if pendingAmt.Sign() < 0 {
		return big.NewInt(0)
	}
	return pendingAmt
}

func (p *Pool) transfer(from, to [20]byte, amount *big.Int, short error) error {
	amt := cloneBigInt(amount)
	if amt.Sign() == 0 {
		return nil
	}
	if err := p.state.Transfer(from, to, amt); err != nil {
		if errors.Is(err, types.ErrInsufficientBalance) {
			return fmt.Errorf("%w: %v", short, err)
		}
		return err
	}
	return nil
}

// settle pays out the position's pending rewards and resets the accrual
// baseline to now. Called before any change to the staked amount so deposits
// of different ages never dilute or inflate each other's accrual.
func (p *Pool) settle(pos *Position, now int64) error {
	pendingAmt := p.pending(pos, now)
	if pendingAmt.Sign() > 0 {
		if err := p.transfer(p.treasury, pos.Owner, pendingAmt, ErrTreasuryDepleted); err != nil {
			return err
		}
	}
	pos.Since = now
	pos.RewardDebt = big.NewInt(0)
	return nil
}

// Stake deposits amount into the pool. An existing position is merged by
// settling its pending rewards first, then increasing the amount.
func (p *Pool) Stake(owner [20]byte, amount *big.Int) (*Position, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := p.state.LockStaker(owner)
	defer unlock()

	now := p.now()
	pos, ok, err := p.state.PositionGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		pos = &Position{Owner: owner, Amount: big.NewInt(0), Since: now, RewardDebt: big.NewInt(0)}
	} else if err := p.settle(pos, now); err != nil {
		return nil, err
	}
	if err := p.transfer(owner, p.vault, amt, ErrInsufficientFunds); err != nil {
		return nil, err
	}
	pos.Amount = new(big.Int).Add(pos.Amount, amt)
	if err := p.state.PositionPut(pos); err != nil {
		return nil, err
	}
	if err := p.adjustTotal(amt); err != nil {
		return nil, err
	}
	return pos.Clone(), nil
}

// Unstake withdraws amount of principal. Pending rewards settle first; a
// position drained to zero is removed.
func (p *Pool) Unstake(owner [20]byte, amount *big.Int) (*Position, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	amt := cloneBigInt(amount)
	if amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	unlock := p.state.LockStaker(owner)
	defer unlock()

	pos, ok, err := p.state.PositionGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNoPosition, owner)
	}
	if pos.Amount.Cmp(amt) < 0 {
		return nil, fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, pos.Amount, amt)
	}
	now := p.now()
	if err := p.settle(pos, now); err != nil {
		return nil, err
	}
	if err := p.transfer(p.vault, owner, amt, ErrInsufficientFunds); err != nil {
		return nil, err
	}
	pos.Amount = new(big.Int).Sub(pos.Amount, amt)
	if pos.Amount.Sign() == 0 {
		if err := p.state.PositionDelete(owner); err != nil {
			return nil, err
		}
	} else if err := p.state.PositionPut(pos); err != nil {
		return nil, err
	}
	if err := p.adjustTotal(new(big.Int).Neg(amt)); err != nil {
		return nil, err
	}
	if pos.Amount.Sign() == 0 {
		return nil, nil
	}
	return pos.Clone(), nil
}

// ClaimRewards pays the accrued pending rewards and advances RewardDebt so
// the same interval can never be claimed again.
func (p *Pool) ClaimRewards(owner [20]byte) (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	unlock := p.state.LockStaker(owner)
	defer unlock()

	pos, ok, err := p.state.PositionGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNoPosition, owner)
	}
	now := p.now()
	pendingAmt := p.pending(pos, now)
	if pendingAmt.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := p.transfer(p.treasury, owner, pendingAmt, ErrTreasuryDepleted); err != nil {
		return nil, err
	}
	pos.RewardDebt = new(big.Int).Add(cloneBigInt(pos.RewardDebt), pendingAmt)
	if err := p.state.PositionPut(pos); err != nil {
		return nil, err
	}
	return pendingAmt, nil
}

// PendingRewards reports the claimable amount without mutating state. An
// address with no position reports zero.
func (p *Pool) PendingRewards(owner [20]byte) (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	pos, ok, err := p.state.PositionGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return big.NewInt(0), nil
	}
	return p.pending(pos, p.now()), nil
}

// GetPosition returns a snapshot of the owner's position.
func (p *Pool) GetPosition(owner [20]byte) (*Position, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	pos, ok, err := p.state.PositionGet(owner)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %x", ErrNoPosition, owner)
	}
	return pos.Clone(), nil
}

// TotalStaked reports the aggregate principal held by the pool.
func (p *Pool) TotalStaked() (*big.Int, error) {
	if p == nil || p.state == nil {
		return nil, errNilState
	}
	total, err := p.state.TotalStakedGet()
	if err != nil {
		return nil, err
	}
	return cloneBigInt(total), nil
}

func (p *Pool) adjustTotal(delta *big.Int) error {
	total, err := p.state.TotalStakedGet()
	if err != nil {
		return err
	}
	updated := new(big.Int).Add(cloneBigInt(total), delta)
	if updated.Sign() < 0 {
		return fmt.Errorf("staking: total staked underflow")
	}
	return p.state.TotalStakedPut(updated)
}
