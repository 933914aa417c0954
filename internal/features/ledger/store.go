package ledger

import "context"

// MutateFunc получает копию аккаунта, изменяет её и возвращает транзакции для записи.
// Ошибка из функции отменяет всю операцию: ни аккаунт, ни журнал не меняются.
type MutateFunc func(acc *Account) ([]*Transaction, error)

// PurchaseFunc — то же для покупки: меняет аккаунт и награду, возвращает списание.
type PurchaseFunc func(acc *Account, reward *Reward) (*Transaction, error)

// Store — хранилище леджера. Mutate и Purchase атомарны: чтение, изменение
// и запись журнала выполняются одной транзакцией с блокировкой строки аккаунта.
type Store interface {
	CreateAccount(ctx context.Context, accountID int64) (*Account, error)
	GetAccount(ctx context.Context, accountID int64) (*Account, error)
	ListAccounts(ctx context.Context) ([]*Account, error)
	Mutate(ctx context.Context, accountID int64, fn MutateFunc) ([]*Transaction, error)

	CreateReward(ctx context.Context, reward *Reward) error
	GetReward(ctx context.Context, rewardID int64) (*Reward, error)
	Purchase(ctx context.Context, accountID, rewardID int64, code string, fn PurchaseFunc) (*OwnedReward, error)
	OwnedRewards(ctx context.Context, accountID int64) ([]*OwnedReward, error)

	Transactions(ctx context.Context, accountID int64, limit int) ([]*Transaction, error)
}

var (
	_ Store = (*Repository)(nil)
	_ Store = (*MemoryStore)(nil)
)
