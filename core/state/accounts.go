package state

import (
	"fmt"
	"math/big"

	"buildledger/core/types"
)

func accountKey(addr [20]byte) []byte {
	return []byte(fmt.Sprintf("accounts/%x", addr))
}

// GetAccount loads the account stored for addr. Unknown addresses resolve to
// a fresh zero-balance account rather than an error.
func (m *Manager) GetAccount(addr [20]byte) (*types.Account, error) {
	account := new(types.Account)
	ok, err := m.load(accountKey(addr), account)
	if err != nil {
		return nil, err
	}
	if !ok {
		return types.NewAccount(), nil
	}
	if account.Balance == nil {
		account.Balance = big.NewInt(0)
	}
	return account, nil
}

// PutAccount persists the account record for addr.
func (m *Manager) PutAccount(addr [20]byte, account *types.Account) error {
	if account == nil {
		return fmt.Errorf("state: nil account for %x", addr)
	}
	stored := account.Clone()
	if stored.Balance == nil {
		stored.Balance = big.NewInt(0)
	}
	return m.write(accountKey(addr), stored)
}

// Transfer atomically moves amount from one account to the other. The debit
// and credit commit under a single lock, so concurrent transfers can neither
// create nor destroy value. A source balance short of amount fails with
// types.ErrInsufficientBalance and leaves both accounts untouched.
func (m *Manager) Transfer(from, to [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("state: invalid transfer amount")
	}
	if amount.Sign() == 0 || from == to {
		return nil
	}
	m.accountsMu.Lock()
	defer m.accountsMu.Unlock()

	fromAcc, err := m.GetAccount(from)
	if err != nil {
		return err
	}
	if fromAcc.Balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: balance %s short of %s", types.ErrInsufficientBalance, fromAcc.Balance, amount)
	}
	toAcc, err := m.GetAccount(to)
	if err != nil {
		return err
	}
	fromAcc.Balance = new(big.Int).Sub(fromAcc.Balance, amount)
	toAcc.Balance = new(big.Int).Add(toAcc.Balance, amount)
	if err := m.PutAccount(from, fromAcc); err != nil {
		return err
	}
	return m.PutAccount(to, toAcc)
}
