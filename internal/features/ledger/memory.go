package ledger

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"
	"time"

	"serotonyl.ru/geohealth/internal/common"
)

// MemoryStore — Store в памяти процесса. Используется в тестах и в режиме без БД.
// Семантика совпадает с Repository: fn работает с копией, при ошибке ничего не сохраняется.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[int64]*Account
	txs      []*Transaction
	rewards  map[int64]*Reward
	owned    []*OwnedReward
	nextID   int64
}

// NewMemoryStore создаёт пустое хранилище.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[int64]*Account),
		rewards:  make(map[int64]*Reward),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) CreateAccount(_ context.Context, accountID int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[accountID]; !ok {
		now := time.Now()
		m.accounts[accountID] = &Account{ID: accountID, Level: 1, CreatedAt: now, UpdatedAt: now}
	}
	acc := *m.accounts[accountID]
	return &acc, nil
}

func (m *MemoryStore) GetAccount(_ context.Context, accountID int64) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountNotFound)
	}
	acc := *a
	return &acc, nil
}

func (m *MemoryStore) ListAccounts(_ context.Context) ([]*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*Account, 0, len(m.accounts))
	for _, a := range m.accounts {
		acc := *a
		out = append(out, &acc)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) Mutate(_ context.Context, accountID int64, fn MutateFunc) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountNotFound)
	}

	acc := *a
	entries, err := fn(&acc)
	if err != nil {
		return nil, err
	}

	acc.UpdatedAt = time.Now()
	m.accounts[accountID] = &acc
	m.appendTransactions(accountID, entries)
	return entries, nil
}

func (m *MemoryStore) appendTransactions(accountID int64, entries []*Transaction) {
	for _, e := range entries {
		e.ID = m.id()
		e.AccountID = accountID
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now()
		}
		stored := *e
		stored.Metadata = maps.Clone(e.Metadata)
		m.txs = append(m.txs, &stored)
	}
}

func (m *MemoryStore) CreateReward(_ context.Context, rw *Reward) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rw.ID = m.id()
	rw.CreatedAt = time.Now()
	stored := *rw
	m.rewards[rw.ID] = &stored
	return nil
}

func (m *MemoryStore) GetReward(_ context.Context, rewardID int64) (*Reward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rw, ok := m.rewards[rewardID]
	if !ok {
		return nil, fmt.Errorf("reward_id=%d: %w", rewardID, common.ErrRewardUnavailable)
	}
	out := *rw
	return &out, nil
}

func (m *MemoryStore) Purchase(_ context.Context, accountID, rewardID int64, code string, fn PurchaseFunc) (*OwnedReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	a, ok := m.accounts[accountID]
	if !ok {
		return nil, fmt.Errorf("account_id=%d: %w", accountID, common.ErrAccountNotFound)
	}
	rw, ok := m.rewards[rewardID]
	if !ok {
		return nil, fmt.Errorf("reward_id=%d: %w", rewardID, common.ErrRewardUnavailable)
	}

	acc := *a
	reward := *rw
	debit, err := fn(&acc, &reward)
	if err != nil {
		return nil, err
	}

	m.accounts[accountID] = &acc
	m.rewards[rewardID] = &reward
	m.appendTransactions(accountID, []*Transaction{debit})

	owned := &OwnedReward{
		ID:            m.id(),
		AccountID:     accountID,
		RewardID:      rewardID,
		TransactionID: debit.ID,
		Code:          code,
		CreatedAt:     time.Now(),
	}
	stored := *owned
	m.owned = append(m.owned, &stored)
	return owned, nil
}

func (m *MemoryStore) OwnedRewards(_ context.Context, accountID int64) ([]*OwnedReward, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*OwnedReward
	for i := len(m.owned) - 1; i >= 0; i-- {
		if m.owned[i].AccountID == accountID {
			o := *m.owned[i]
			out = append(out, &o)
		}
	}
	return out, nil
}

func (m *MemoryStore) Transactions(_ context.Context, accountID int64, limit int) ([]*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*Transaction
	for i := len(m.txs) - 1; i >= 0 && len(out) < limit; i-- {
		if m.txs[i].AccountID == accountID {
			t := *m.txs[i]
			out = append(out, &t)
		}
	}
	return out, nil
}
